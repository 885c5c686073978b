package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte(`{"id":1}`)
	uri, err := store.PutObject(context.Background(), "editais/json/a.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://editais/json/a.json", uri)

	payload[0] = '['
	got, ok := store.Object("editais/json/a.json")
	require.True(t, ok)
	assert.Equal(t, `{"id":1}`, string(got))
	assert.Equal(t, "application/json", store.ContentType("editais/json/a.json"))
}

func TestBlobStoreOverwritesAndListsKeys(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	_, err := store.PutObject(ctx, "b", "text/plain", bytes.NewBufferString("one"))
	require.NoError(t, err)
	_, err = store.PutObject(ctx, "a", "text/plain", bytes.NewBufferString("x"))
	require.NoError(t, err)
	_, err = store.PutObject(ctx, "b", "text/plain", bytes.NewBufferString("two"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, store.Keys())
	got, _ := store.Object("b")
	assert.Equal(t, "two", string(got))

	_, ok := store.Object("missing")
	assert.False(t, ok)
}
