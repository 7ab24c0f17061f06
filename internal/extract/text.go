package extract

import (
	"context"
	"regexp"
	"strings"
)

// PlainText extracts UTF-8 text files as-is.
type PlainText struct {
	maxSize int64
}

// NewPlainText creates a plain-text extractor with the given size limit.
func NewPlainText(maxSize int64) *PlainText {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &PlainText{maxSize: maxSize}
}

// Extensions returns the handled extensions.
func (p *PlainText) Extensions() []string {
	return []string{".txt", ".text", ".log", ".csv", ".json", ".yaml", ".yml"}
}

// Extract reads the file verbatim.
func (p *PlainText) Extract(ctx context.Context, path string) (string, error) {
	return readChecked(path, p.maxSize)
}

var _ Extractor = (*PlainText)(nil)

// Markdown extracts markdown files, stripping syntax that adds noise to
// retrieval: fenced code markers, heading markers, emphasis, and link
// targets (the link text survives).
type Markdown struct {
	maxSize int64
}

// NewMarkdown creates a markdown extractor with the given size limit.
func NewMarkdown(maxSize int64) *Markdown {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &Markdown{maxSize: maxSize}
}

// Extensions returns the handled extensions.
func (m *Markdown) Extensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}

var (
	mdHeading  = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdFence    = regexp.MustCompile("(?m)^```[^\n]*$")
	mdLink     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdEmphasis = regexp.MustCompile(`(\*\*|__|\*|_)([^*_]+)(\*\*|__|\*|_)`)
)

// Extract reads the file and strips markdown markers.
func (m *Markdown) Extract(ctx context.Context, path string) (string, error) {
	raw, err := readChecked(path, m.maxSize)
	if err != nil {
		return "", err
	}

	text := mdFence.ReplaceAllString(raw, "")
	text = mdHeading.ReplaceAllString(text, "")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdEmphasis.ReplaceAllString(text, "$2")
	return strings.TrimSpace(text) + "\n", nil
}

var _ Extractor = (*Markdown)(nil)
