// Package store provides the persistence layer for indexed data: the vector
// store (HNSW), the keyword index (Bleve), and file metadata (SQLite).
//
// Stores are always mutated per file via delete-then-reinsert, never partial
// in-place edits. That discipline is what makes the update executor's
// checkpoint/rollback tractable.
package store

import (
	"context"
	"fmt"
	"time"
)

// ProcessingStatus is the indexing state of one tracked file.
type ProcessingStatus string

const (
	StatusIndexed      ProcessingStatus = "indexed"
	StatusMetadataOnly ProcessingStatus = "metadata_only"
	StatusProcessing   ProcessingStatus = "processing"
	StatusError        ProcessingStatus = "error"
)

// FileRecord is the relational metadata row for one indexed file.
type FileRecord struct {
	FilePath    string
	FileHash    string // SHA256 of extracted text
	Size        int64  // file size in bytes
	ChunksCount int
	Status      ProcessingStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MetadataStore holds one row per indexed file.
type MetadataStore interface {
	// UpsertFile inserts or replaces the row for record.FilePath.
	UpsertFile(ctx context.Context, record *FileRecord) error

	// GetFile returns the row for path, or nil when absent.
	GetFile(ctx context.Context, path string) (*FileRecord, error)

	// SetStatus updates only the processing status of path's row.
	SetStatus(ctx context.Context, path string, status ProcessingStatus) error

	// DeleteFile removes path's row. Deleting an absent row is a no-op.
	DeleteFile(ctx context.Context, path string) error

	// ListFiles returns all rows ordered by file path.
	ListFiles(ctx context.Context) ([]*FileRecord, error)

	Close() error
}

// VectorRecord is one stored chunk with its embedding.
type VectorRecord struct {
	ID          string
	FilePath    string
	ChunkID     int
	TotalChunks int
	StartPos    int
	EndPos      int
	Text        string
	Vector      []float32
}

// VectorMatch is a ranked vector search hit.
type VectorMatch struct {
	Record VectorRecord
	Score  float32 // normalized similarity in [0, 1], higher is better
}

// VectorStore provides semantic retrieval over chunk embeddings. It must
// support retrieval and deletion by file path so updates can replace a
// file's chunk set wholesale.
type VectorStore interface {
	// Upsert inserts records, replacing any existing record with the same ID.
	Upsert(ctx context.Context, records []VectorRecord) error

	// Query returns the k nearest records to the query vector.
	Query(ctx context.Context, vector []float32, k int) ([]VectorMatch, error)

	// Delete removes records by ID.
	Delete(ctx context.Context, ids []string) error

	// GetByFile returns all records for one file, ordered by chunk ID.
	GetByFile(ctx context.Context, filePath string) ([]VectorRecord, error)

	// DeleteByFile removes all records for one file.
	DeleteByFile(ctx context.Context, filePath string) error

	// Count returns the number of stored records.
	Count() int

	// Save persists the store to path, Load restores it.
	Save(path string) error
	Load(path string) error
	Close() error
}

// KeywordDocument is one entry in the keyword index corpus.
type KeywordDocument struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// KeywordResult is a ranked keyword search hit.
type KeywordResult struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// KeywordIndex provides BM25-style keyword retrieval with domain-aware
// tokenization, persisted to disk after each mutation.
type KeywordIndex interface {
	// AddDocuments indexes docs, replacing entries with the same ID.
	AddDocuments(ctx context.Context, docs []KeywordDocument) error

	// Delete removes documents by ID.
	Delete(ctx context.Context, ids []string) error

	// DocIDsForFile returns the IDs of all documents whose metadata
	// file_path equals filePath.
	DocIDsForFile(filePath string) []string

	// Search returns the top-k non-zero-score matches for query,
	// sorted by descending score.
	Search(ctx context.Context, query string, topK int) ([]KeywordResult, error)

	// Count returns the number of indexed documents.
	Count() int

	Close() error
}

// MetaFilePath is the metadata key carrying a document's source file path.
const MetaFilePath = "file_path"

// ErrDimensionMismatch indicates a vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
