// Package chunk splits extracted document text into overlapping,
// boundary-aware chunks. Chunks are the unit of embedding and retrieval.
package chunk

// Chunk size defaults, in bytes of source text.
const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 200
)

// DocumentChunk is a contiguous span of one source file's text.
// Immutable once produced; a re-chunked file supersedes its chunks wholesale.
type DocumentChunk struct {
	Text        string `json:"text"`
	ChunkID     int    `json:"chunk_id"`     // 0-based, sequential within the file
	TotalChunks int    `json:"total_chunks"` // same value on every chunk of the file
	FilePath    string `json:"file_path"`
	StartPos    int    `json:"start_pos"` // byte offset into source text
	EndPos      int    `json:"end_pos"`   // exclusive
}

// Options configures the chunker.
type Options struct {
	// ChunkSize is the target chunk length in bytes.
	ChunkSize int
	// ChunkOverlap is the number of bytes carried over between
	// consecutive chunks. Must be smaller than ChunkSize.
	ChunkOverlap int
}

// DefaultOptions returns the default chunking parameters.
func DefaultOptions() Options {
	return Options{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}

// Split splits text into chunks of roughly opts.ChunkSize bytes.
//
// Boundaries prefer, in order: a sentence terminator followed by whitespace,
// a paragraph break, any whitespace, and finally the hard byte boundary.
// This avoids splitting mid-word or mid-sentence where possible. The next
// chunk starts at max(previousStart+1, boundary-overlap) so progress is
// guaranteed and overlap is bounded.
func Split(text, filePath string, opts Options) []DocumentChunk {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 2
	}

	if len(text) == 0 {
		return nil
	}

	var chunks []DocumentChunk
	start := 0
	for start < len(text) {
		end := start + opts.ChunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = findBoundary(text, start, end)
		}

		chunks = append(chunks, DocumentChunk{
			Text:     text[start:end],
			ChunkID:  len(chunks),
			FilePath: filePath,
			StartPos: start,
			EndPos:   end,
		})

		if end >= len(text) {
			break
		}

		next := end - opts.ChunkOverlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	// TotalChunks is finalized only once the full sequence is known.
	for i := range chunks {
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}

// findBoundary scans backward from the hard boundary for a natural split
// point inside (start, hard]. Returns the hard boundary when nothing better
// exists in the window.
func findBoundary(text string, start, hard int) int {
	// Sentence terminator followed by whitespace. The separator whitespace
	// stays with the left chunk, so the cut lands at i+2; the scan starts at
	// hard-2 to keep the boundary within the window.
	for i := hard - 2; i > start; i-- {
		if isSentenceEnd(text[i]) && isWhitespace(text[i+1]) {
			return i + 2
		}
	}

	// Paragraph break.
	for i := hard - 1; i > start; i-- {
		if text[i] == '\n' && i+1 < len(text) && text[i+1] == '\n' {
			return i + 1
		}
	}

	// Any whitespace.
	for i := hard - 1; i > start; i-- {
		if isWhitespace(text[i]) {
			return i + 1
		}
	}

	return hard
}

func isSentenceEnd(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
