// Package extract turns files on disk into plain text for chunking.
//
// Extraction outcomes are tagged values rather than loosely-typed errors:
// callers dispatch on ErrorKind to decide whether a file is skippable
// (unsupported), gone (not found), or failed (corrupt, too large). Binary
// formats (PDF, DOCX, OCR) are external collaborators and register their own
// Extractor implementations.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DefaultMaxFileSize is the largest file extracted by default (100MB).
// Larger files are rejected ahead of chunking to bound indexing cost.
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

// ErrorKind classifies extraction failures.
type ErrorKind int

const (
	// KindUnsupported means no extractor handles the file's extension.
	KindUnsupported ErrorKind = iota
	// KindNotFound means the file does not exist or is unreadable.
	KindNotFound
	// KindTooLarge means the file exceeds the configured size limit.
	KindTooLarge
	// KindCorrupt means the file's content could not be decoded.
	KindCorrupt
)

// String returns a human-readable kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindUnsupported:
		return "unsupported"
	case KindNotFound:
		return "not_found"
	case KindTooLarge:
		return "too_large"
	case KindCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Error is a tagged extraction failure.
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.Path, e.Kind)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind of err when it is an extraction Error.
func KindOf(err error) (ErrorKind, bool) {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	return 0, false
}

// Extractor converts one file format to plain text.
type Extractor interface {
	// Extract reads the file at path and returns its plain text.
	Extract(ctx context.Context, path string) (string, error)

	// Extensions returns the lowercased file extensions this extractor
	// handles, including the leading dot.
	Extensions() []string
}

// Registry dispatches files to extractors by extension.
type Registry struct {
	byExt       map[string]Extractor
	maxFileSize int64
}

// NewRegistry creates a registry with the built-in text extractors.
func NewRegistry(maxFileSize int64) *Registry {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	r := &Registry{
		byExt:       make(map[string]Extractor),
		maxFileSize: maxFileSize,
	}
	r.Register(NewPlainText(maxFileSize))
	r.Register(NewMarkdown(maxFileSize))
	return r
}

// Register adds an extractor for all of its extensions, replacing any
// previous registration.
func (r *Registry) Register(e Extractor) {
	for _, ext := range e.Extensions() {
		r.byExt[strings.ToLower(ext)] = e
	}
}

// Supported reports whether some extractor handles path's extension.
func (r *Registry) Supported(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extract dispatches path to the registered extractor.
func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	e, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", &Error{Kind: KindUnsupported, Path: path}
	}
	return e.Extract(ctx, path)
}

// readChecked reads path enforcing the size limit and UTF-8 validity.
// Shared by the built-in text extractors.
func readChecked(path string, maxSize int64) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &Error{Kind: KindNotFound, Path: path, Err: err}
	}
	if info.Size() > maxSize {
		return "", &Error{Kind: KindTooLarge, Path: path,
			Err: fmt.Errorf("%d bytes exceeds limit %d", info.Size(), maxSize)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", &Error{Kind: KindNotFound, Path: path, Err: err}
	}
	if !utf8.Valid(data) {
		return "", &Error{Kind: KindCorrupt, Path: path,
			Err: errors.New("content is not valid UTF-8")}
	}
	return string(data), nil
}
