package table

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pncp-crawler/internal/crawler"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestAppendCreatesSortedHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "listings.tsv")
	w := NewWriter('\t')

	require.NoError(t, w.Append(path, []crawler.Record{
		{"b": "2", "a": "1"},
		{"c": true},
	}))

	lines := readLines(t, path)
	require.Equal(t, []string{"a\tb\tc", "1\t2\t", "\t\tTrue"}, lines)
}

func TestAppendFollowsExistingHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "listings.tsv")
	w := NewWriter('\t')

	require.NoError(t, w.Append(path, []crawler.Record{{"a": "1", "b": "2"}}))
	require.NoError(t, w.Append(path, []crawler.Record{{"b": "4", "a": "3"}}))

	require.Equal(t, []string{"a\tb", "1\t2", "3\t4"}, readLines(t, path))
}

func TestAppendWidensHeaderWithoutDroppingColumns(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "listings.tsv")
	w := NewWriter('\t')

	require.NoError(t, w.Append(path, []crawler.Record{{"b": "1"}}))
	require.NoError(t, w.Append(path, []crawler.Record{{"a": "x", "b": "2"}}))

	tbl, err := w.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tbl.Header)
	assert.Equal(t, [][]string{{"", "1"}, {"x", "2"}}, tbl.Rows)
}

func TestReadMissingFile(t *testing.T) {
	t.Parallel()

	w := NewWriter(',')
	_, err := w.Read(filepath.Join(t.TempDir(), "nope.csv"))
	require.ErrorIs(t, err, os.ErrNotExist)

	recs, err := w.ReadRecords(filepath.Join(t.TempDir(), "nope.csv"))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestReadEmptyFileHasNoHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.tsv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := NewWriter('\t').Read(path)
	require.ErrorIs(t, err, ErrNoHeader)
}

func TestSanitizeRemovesOnlyExactDuplicates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "items.tsv")
	w := NewWriter('\t')
	require.NoError(t, w.Append(path, []crawler.Record{
		{"id": "A", "v": "1"},
		{"id": "A", "v": "1"},
		{"id": "A", "v": "2"},
	}))

	removed, err := w.Sanitize(path)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	tbl, err := w.Read(path)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A", "1"}, {"A", "2"}}, tbl.Rows)

	removed, err = w.Sanitize(path)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSanitizeMissingFile(t *testing.T) {
	t.Parallel()

	removed, err := NewWriter('\t').Sanitize(filepath.Join(t.TempDir(), "none.tsv"))
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSetFlags(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "listings.tsv")
	w := NewWriter('\t')
	require.NoError(t, w.Append(path, []crawler.Record{
		{crawler.ColControlNumber: "A", crawler.ColDetailsFetched: false, crawler.ColFilesFetched: false},
		{crawler.ColControlNumber: "B", crawler.ColDetailsFetched: true, crawler.ColFilesFetched: false},
		{crawler.ColControlNumber: "C", crawler.ColDetailsFetched: true, crawler.ColFilesFetched: true},
	}))

	changed, err := w.SetFlags(path, crawler.ColControlNumber, []string{"B", "C", "Z"},
		crawler.ColDetailsFetched, crawler.ColFilesFetched)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	recs, err := w.ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.False(t, recs[0].Bool(crawler.ColDetailsFetched))
	assert.False(t, recs[0].Bool(crawler.ColFilesFetched))
	assert.True(t, recs[1].Bool(crawler.ColDetailsFetched))
	assert.True(t, recs[1].Bool(crawler.ColFilesFetched))

	changed, err = w.SetFlags(path, crawler.ColControlNumber, nil, crawler.ColFilesFetched)
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestAppendReadsOnlyHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "items.tsv")
	w := NewWriter('\t')
	// A rewrite would drop the redundant quotes on the first row.
	require.NoError(t, os.WriteFile(path, []byte("a\tb\n\"1\"\t\"2\"\n"), 0o644))

	header, err := w.ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, header)

	require.NoError(t, w.Append(path, []crawler.Record{{"a": "3", "b": "4"}}))
	assert.Equal(t, []string{"a\tb", "\"1\"\t\"2\"", "3\t4"}, readLines(t, path))
}

func TestReadHeaderMissingAndEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := NewWriter('\t')
	_, err := w.ReadHeader(filepath.Join(dir, "absent.tsv"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	empty := filepath.Join(dir, "empty.tsv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = w.ReadHeader(empty)
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestCRLFValuesSurviveRewrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "listings.tsv")
	w := NewWriter('\t')
	require.NoError(t, w.Append(path, []crawler.Record{
		{crawler.ColControlNumber: "A", "description": "linha1\r\nlinha2"},
	}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	recs, err := w.ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "linha1\nlinha2", recs[0].String("description"))

	changed, err := w.SetFlags(path, crawler.ColControlNumber, []string{"A"}, crawler.ColDetailsFetched)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	recs, err = w.ReadRecords(path)
	require.NoError(t, err)
	assert.Equal(t, "linha1\nlinha2", recs[0].String("description"))

	// The same value appended again is an exact duplicate.
	require.NoError(t, os.WriteFile(path, before, 0o644))
	require.NoError(t, w.Append(path, []crawler.Record{
		{crawler.ColControlNumber: "A", "description": "linha1\r\nlinha2"},
	}))
	removed, err := w.Sanitize(path)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestUpdateRowsAddsColumns(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "files.tsv")
	w := NewWriter('\t')
	require.NoError(t, w.Append(path, []crawler.Record{{"url": "u1"}, {"url": "u2"}}))

	changed, err := w.UpdateRows(path, "url", func(key string, row crawler.Record) bool {
		if key != "u2" {
			return false
		}
		row[crawler.ColArchiveContents] = "a.pdf, b.pdf"
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	tbl, err := w.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{crawler.ColArchiveContents, "url"}, tbl.Header)
	assert.Equal(t, [][]string{{"", "u1"}, {"a.pdf, b.pdf", "u2"}}, tbl.Rows)
}

func TestRewriteLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "t.csv")
	w := NewWriter(',')
	require.NoError(t, w.Rewrite(path, Table{Header: []string{"a"}, Rows: [][]string{{"1"}}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "t.csv", entries[0].Name())
}
