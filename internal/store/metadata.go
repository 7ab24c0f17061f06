package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrFileNotFound is returned when a file record does not exist.
var ErrFileNotFound = errors.New("file not found")

const metadataSchema = `
CREATE TABLE IF NOT EXISTS files (
	file_path    TEXT PRIMARY KEY,
	file_hash    TEXT NOT NULL,
	size         INTEGER NOT NULL,
	chunks_count INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);
`

// SQLiteMetadataStore tracks per-file indexing state in SQLite.
// It uses the pure-Go modernc.org/sqlite driver (no CGO).
type SQLiteMetadataStore struct {
	db *sql.DB
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// OpenMetadataStore opens (creating if needed) the metadata database at path.
func OpenMetadataStore(path string) (*SQLiteMetadataStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc.org/sqlite serializes access through a single connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(metadataSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteMetadataStore{db: db}, nil
}

// UpsertFile inserts or replaces a file record. CreatedAt is preserved on
// update; UpdatedAt is always set to now.
func (s *SQLiteMetadataStore) UpsertFile(ctx context.Context, rec *FileRecord) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (file_path, file_hash, size, chunks_count, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			file_hash = excluded.file_hash,
			size = excluded.size,
			chunks_count = excluded.chunks_count,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		rec.FilePath, rec.FileHash, rec.Size, rec.ChunksCount, string(rec.Status), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert file %s: %w", rec.FilePath, err)
	}
	return nil
}

// GetFile returns the record for filePath, or nil if the file is untracked.
func (s *SQLiteMetadataStore) GetFile(ctx context.Context, filePath string) (*FileRecord, error) {
	var rec FileRecord
	var status string
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT file_path, file_hash, size, chunks_count, status, created_at, updated_at
		FROM files WHERE file_path = ?`, filePath).
		Scan(&rec.FilePath, &rec.FileHash, &rec.Size, &rec.ChunksCount, &status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", filePath, err)
	}
	rec.Status = ProcessingStatus(status)
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	return &rec, nil
}

// SetStatus updates the processing status of an existing record.
func (s *SQLiteMetadataStore) SetStatus(ctx context.Context, filePath string, status ProcessingStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET status = ?, updated_at = ? WHERE file_path = ?`,
		string(status), time.Now().Unix(), filePath)
	if err != nil {
		return fmt.Errorf("failed to set status for %s: %w", filePath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update for %s: %w", filePath, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrFileNotFound, filePath)
	}
	return nil
}

// DeleteFile removes the record for filePath. Deleting a missing file is
// not an error.
func (s *SQLiteMetadataStore) DeleteFile(ctx context.Context, filePath string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE file_path = ?`, filePath); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", filePath, err)
	}
	return nil
}

// ListFiles returns all records ordered by file path.
func (s *SQLiteMetadataStore) ListFiles(ctx context.Context) ([]*FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path, file_hash, size, chunks_count, status, created_at, updated_at
		FROM files ORDER BY file_path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*FileRecord
	for rows.Next() {
		rec := &FileRecord{}
		var status string
		var createdAt, updatedAt int64
		if err := rows.Scan(&rec.FilePath, &rec.FileHash, &rec.Size, &rec.ChunksCount, &status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		rec.Status = ProcessingStatus(status)
		rec.CreatedAt = time.Unix(createdAt, 0)
		rec.UpdatedAt = time.Unix(updatedAt, 0)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate file rows: %w", err)
	}
	return records, nil
}

// Close closes the underlying database.
func (s *SQLiteMetadataStore) Close() error {
	return s.db.Close()
}
