package dedup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
)

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	set := Load(filepath.Join(t.TempDir(), "none.tsv"), "id", '\t', zap.NewNop())
	assert.Zero(t, set.Len())
}

func TestLoadMissingColumnIsEmptyAndLogged(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "t.tsv")
	require.NoError(t, os.WriteFile(path, []byte("other\nx\n"), 0o644))

	core, logs := observer.New(zapcore.WarnLevel)
	set := Load(path, "id", '\t', zap.New(core))
	assert.Zero(t, set.Len())
	assert.Equal(t, 1, logs.Len())
}

func TestLoadReadsIdentifierColumn(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "t.tsv")
	require.NoError(t, os.WriteFile(path, []byte("id\tv\nA\t1\nB\t2\n\t3\n"), 0o644))

	set := Load(path, "id", '\t', nil)
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains("A"))
	assert.True(t, set.Contains("B"))
	assert.False(t, set.Contains(""))
}

func TestFilter(t *testing.T) {
	t.Parallel()

	set := New()
	set.Add("A")

	recs := []crawler.Record{{"id": "A"}, {"id": "B"}, {"id": "B"}, {"id": "C"}, {"other": 1}}
	fresh, dropped := set.Filter(recs, "id")
	assert.Equal(t, 2, dropped)
	require.Len(t, fresh, 3)
	assert.Equal(t, "B", fresh[0].String("id"))
	assert.Equal(t, "C", fresh[1].String("id"))
	assert.Equal(t, 1, set.Len(), "filter must not mutate the set")
}
