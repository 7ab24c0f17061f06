package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestMetadata(t *testing.T) *SQLiteMetadataStore {
	t.Helper()
	s, err := OpenMetadataStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMetadataStoreUpsertAndGet(t *testing.T) {
	s := openTestMetadata(t)
	ctx := context.Background()

	rec := &FileRecord{
		FilePath:    "docs/readme.md",
		FileHash:    "abc123",
		Size:        2048,
		ChunksCount: 3,
		Status:      StatusIndexed,
	}
	require.NoError(t, s.UpsertFile(ctx, rec))

	got, err := s.GetFile(ctx, "docs/readme.md")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.FileHash, got.FileHash)
	assert.Equal(t, rec.Size, got.Size)
	assert.Equal(t, rec.ChunksCount, got.ChunksCount)
	assert.Equal(t, StatusIndexed, got.Status)
	assert.WithinDuration(t, time.Now(), got.UpdatedAt, 5*time.Second)
}

func TestMetadataStoreGetMissing(t *testing.T) {
	s := openTestMetadata(t)

	got, err := s.GetFile(context.Background(), "nope.txt")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMetadataStoreUpsertReplaces(t *testing.T) {
	s := openTestMetadata(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFile(ctx, &FileRecord{
		FilePath: "a.txt", FileHash: "v1", Size: 10, ChunksCount: 1, Status: StatusProcessing,
	}))
	require.NoError(t, s.UpsertFile(ctx, &FileRecord{
		FilePath: "a.txt", FileHash: "v2", Size: 20, ChunksCount: 2, Status: StatusIndexed,
	}))

	got, err := s.GetFile(ctx, "a.txt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v2", got.FileHash)
	assert.Equal(t, int64(20), got.Size)
	assert.Equal(t, StatusIndexed, got.Status)

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestMetadataStoreSetStatus(t *testing.T) {
	s := openTestMetadata(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFile(ctx, &FileRecord{
		FilePath: "a.txt", FileHash: "h", Status: StatusProcessing,
	}))
	require.NoError(t, s.SetStatus(ctx, "a.txt", StatusError))

	got, err := s.GetFile(ctx, "a.txt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusError, got.Status)

	assert.ErrorIs(t, s.SetStatus(ctx, "missing.txt", StatusIndexed), ErrFileNotFound)
}

func TestMetadataStoreDeleteFile(t *testing.T) {
	s := openTestMetadata(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFile(ctx, &FileRecord{FilePath: "a.txt", FileHash: "h", Status: StatusIndexed}))
	require.NoError(t, s.DeleteFile(ctx, "a.txt"))

	got, err := s.GetFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting a missing file is a no-op.
	assert.NoError(t, s.DeleteFile(ctx, "a.txt"))
}

func TestMetadataStoreListFilesOrdered(t *testing.T) {
	s := openTestMetadata(t)
	ctx := context.Background()

	for _, p := range []string{"c.txt", "a.txt", "b.txt"} {
		require.NoError(t, s.UpsertFile(ctx, &FileRecord{FilePath: p, FileHash: "h", Status: StatusIndexed}))
	}

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "a.txt", files[0].FilePath)
	assert.Equal(t, "b.txt", files[1].FilePath)
	assert.Equal(t, "c.txt", files[2].FilePath)
}
