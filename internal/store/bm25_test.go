package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeDoc(id, filePath, text string) KeywordDocument {
	return KeywordDocument{
		ID:       id,
		Text:     text,
		Metadata: map[string]string{MetaFilePath: filePath},
	}
}

func TestBleveKeywordIndexSearch(t *testing.T) {
	idx, err := NewBleveKeywordIndex("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	err = idx.AddDocuments(ctx, []KeywordDocument{
		makeDoc("a:0", "a.txt", "The invoice total exceeds the approved budget."),
		makeDoc("b:0", "b.txt", "Shipping manifest for container TCO-004."),
		makeDoc("c:0", "c.txt", "Weather was pleasant throughout the trip."),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Count())

	results, err := idx.Search(ctx, "invoice budget", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a:0", results[0].ID)
	assert.Equal(t, "a.txt", results[0].Metadata[MetaFilePath])
	assert.Greater(t, results[0].Score, 0.0)
}

func TestBleveKeywordIndexDomainIdentifiers(t *testing.T) {
	idx, err := NewBleveKeywordIndex("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	err = idx.AddDocuments(ctx, []KeywordDocument{
		makeDoc("m:0", "manifest.txt", "Container TCO-004 cleared customs."),
		makeDoc("m:1", "manifest.txt", "Container TCO-017 is delayed."),
	})
	require.NoError(t, err)

	// The full compound identifier must match exactly one document.
	results, err := idx.Search(ctx, "TCO-004", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "m:0", results[0].ID)

	// The shared fragment matches both.
	results, err = idx.Search(ctx, "TCO", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestBleveKeywordIndexDelete(t *testing.T) {
	idx, err := NewBleveKeywordIndex("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	err = idx.AddDocuments(ctx, []KeywordDocument{
		makeDoc("a:0", "a.txt", "alpha document"),
		makeDoc("a:1", "a.txt", "alpha continues"),
		makeDoc("b:0", "b.txt", "beta document"),
	})
	require.NoError(t, err)

	ids := idx.DocIDsForFile("a.txt")
	assert.Equal(t, []string{"a:0", "a:1"}, ids)

	require.NoError(t, idx.Delete(ctx, ids))
	assert.Equal(t, 1, idx.Count())
	assert.Empty(t, idx.DocIDsForFile("a.txt"))

	results, err := idx.Search(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBleveKeywordIndexPersistence(t *testing.T) {
	dir := t.TempDir()

	idx, err := NewBleveKeywordIndex(dir)
	require.NoError(t, err)

	ctx := context.Background()
	err = idx.AddDocuments(ctx, []KeywordDocument{
		makeDoc("a:0", "a.txt", "persistent keyword content"),
	})
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	reopened, err := NewBleveKeywordIndex(dir)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	assert.Equal(t, 1, reopened.Count())
	results, err := reopened.Search(ctx, "persistent", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a:0", results[0].ID)
}

func TestBleveKeywordIndexRebuildOnCorruptCorpus(t *testing.T) {
	dir := t.TempDir()

	idx, err := NewBleveKeywordIndex(dir)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, idx.AddDocuments(ctx, []KeywordDocument{
		makeDoc("a:0", "a.txt", "content before corruption"),
	}))
	require.NoError(t, idx.Close())

	// Corrupt the corpus sidecar. Both artifacts must be discarded together
	// so the index never serves documents the corpus cannot describe.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corpus.json"), []byte("{not json"), 0644))

	reopened, err := NewBleveKeywordIndex(dir)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	assert.Equal(t, 0, reopened.Count())
}

func TestBleveKeywordIndexTopK(t *testing.T) {
	idx, err := NewBleveKeywordIndex("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	docs := make([]KeywordDocument, 20)
	for i := range docs {
		docs[i] = makeDoc(fmt.Sprintf("d:%d", i), "d.txt", "shared term plus filler")
	}
	require.NoError(t, idx.AddDocuments(ctx, docs))

	results, err := idx.Search(ctx, "shared", 5)
	require.NoError(t, err)
	assert.Len(t, results, 5)
}
