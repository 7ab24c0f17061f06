package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// DomainTokenizerName is the name of the domain-code tokenizer.
	DomainTokenizerName = "domain_tokenizer"

	// DomainAnalyzerName is the name of the domain analyzer.
	DomainAnalyzerName = "domain_analyzer"

	keywordIndexDirName = "keyword.bleve"
	corpusFileName      = "corpus.json"
)

func init() {
	_ = registry.RegisterTokenizer(DomainTokenizerName, domainTokenizerConstructor)
}

// BleveKeywordIndex implements KeywordIndex on Bleve with the domain-code
// analyzer. The Bleve directory and the JSON corpus sidecar are the two
// persisted artifacts; they are invalidated together and rebuilt wholesale
// when either fails to load.
type BleveKeywordIndex struct {
	mu         sync.RWMutex
	index      bleve.Index
	corpus     map[string]KeywordDocument
	corpusPath string
	closed     bool
}

var _ KeywordIndex = (*BleveKeywordIndex)(nil)

// bleveDocument is the document shape handed to Bleve.
type bleveDocument struct {
	Content string `json:"content"`
}

// NewBleveKeywordIndex opens or creates the keyword index under dir.
// An empty dir creates an in-memory index with no persistence (tests).
func NewBleveKeywordIndex(dir string) (*BleveKeywordIndex, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	if dir == "" {
		idx, err := bleve.NewMemOnly(indexMapping)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory index: %w", err)
		}
		return &BleveKeywordIndex{index: idx, corpus: make(map[string]KeywordDocument)}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	indexPath := filepath.Join(dir, keywordIndexDirName)
	corpusPath := filepath.Join(dir, corpusFileName)

	idx, corpus, err := openOrRebuild(indexPath, corpusPath, indexMapping)
	if err != nil {
		return nil, err
	}

	return &BleveKeywordIndex{
		index:      idx,
		corpus:     corpus,
		corpusPath: corpusPath,
	}, nil
}

// openOrRebuild opens both artifacts, wiping and recreating the pair when
// either is missing or unreadable.
func openOrRebuild(indexPath, corpusPath string, m *mapping.IndexMappingImpl) (bleve.Index, map[string]KeywordDocument, error) {
	idx, err := bleve.Open(indexPath)
	corpus, corpusErr := loadCorpus(corpusPath)

	if err == nil && corpusErr == nil {
		return idx, corpus, nil
	}

	if err == nil {
		_ = idx.Close()
	}
	if err != nil && err != bleve.ErrorIndexPathDoesNotExist {
		slog.Warn("keyword index unreadable, rebuilding",
			slog.String("path", indexPath),
			slog.String("error", err.Error()))
	}
	if corpusErr != nil && !os.IsNotExist(corpusErr) {
		slog.Warn("keyword corpus unreadable, rebuilding",
			slog.String("path", corpusPath),
			slog.String("error", corpusErr.Error()))
	}

	// Both artifacts are invalidated together.
	if rmErr := os.RemoveAll(indexPath); rmErr != nil {
		return nil, nil, fmt.Errorf("failed to clear keyword index: %w", rmErr)
	}
	if rmErr := os.Remove(corpusPath); rmErr != nil && !os.IsNotExist(rmErr) {
		return nil, nil, fmt.Errorf("failed to clear keyword corpus: %w", rmErr)
	}

	idx, err = bleve.New(indexPath, m)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create keyword index: %w", err)
	}
	return idx, make(map[string]KeywordDocument), nil
}

// createIndexMapping builds the Bleve mapping with the domain analyzer as
// default.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(DomainAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": DomainTokenizerName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = DomainAnalyzerName
	return indexMapping, nil
}

// AddDocuments indexes docs, replacing entries with the same ID, then
// persists the corpus sidecar.
func (b *BleveKeywordIndex) AddDocuments(ctx context.Context, docs []KeywordDocument) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDocument{Content: doc.Text}); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	for _, doc := range docs {
		b.corpus[doc.ID] = doc
	}
	return b.saveCorpus()
}

// Delete removes documents by ID and persists the corpus sidecar.
func (b *BleveKeywordIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
		delete(b.corpus, id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return b.saveCorpus()
}

// DocIDsForFile returns the IDs of all documents belonging to filePath,
// sorted for determinism.
func (b *BleveKeywordIndex) DocIDsForFile(filePath string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var ids []string
	for id, doc := range b.corpus {
		if doc.Metadata[MetaFilePath] == filePath {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Search returns the top-k matches with non-zero scores, descending.
func (b *BleveKeywordIndex) Search(ctx context.Context, query string, topK int) ([]KeywordResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(query) == "" {
		return []KeywordResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = topK

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]KeywordResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if hit.Score <= 0 {
			continue
		}
		results = append(results, KeywordResult{
			ID:       hit.ID,
			Score:    hit.Score,
			Metadata: b.corpus[hit.ID].Metadata,
		})
	}
	return results, nil
}

// Count returns the number of indexed documents.
func (b *BleveKeywordIndex) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.corpus)
}

// Close closes the index.
func (b *BleveKeywordIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// saveCorpus atomically writes the corpus sidecar. In-memory indexes have
// no sidecar. Callers hold b.mu.
func (b *BleveKeywordIndex) saveCorpus() error {
	if b.corpusPath == "" {
		return nil
	}

	docs := make([]KeywordDocument, 0, len(b.corpus))
	for _, doc := range b.corpus {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("failed to marshal corpus: %w", err)
	}

	tmp := b.corpusPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write corpus: %w", err)
	}
	if err := os.Rename(tmp, b.corpusPath); err != nil {
		return fmt.Errorf("failed to replace corpus: %w", err)
	}
	return nil
}

// loadCorpus reads the corpus sidecar into the ID map.
func loadCorpus(path string) (map[string]KeywordDocument, error) {
	corpus := make(map[string]KeywordDocument)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return corpus, nil
	}
	if err != nil {
		return nil, err
	}

	var docs []KeywordDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, err
	}
	for _, doc := range docs {
		corpus[doc.ID] = doc
	}
	return corpus, nil
}

// domainTokenizerConstructor creates the domain tokenizer for Bleve.
func domainTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveDomainTokenizer{}, nil
}

// bleveDomainTokenizer adapts TokenizeDomain to Bleve's tokenizer contract.
type bleveDomainTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *bleveDomainTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := strings.ToLower(string(input))
	tokens := TokenizeDomain(text)

	stream := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0

	for _, token := range tokens {
		start := strings.Index(text[offset:], token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		stream = append(stream, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		// Fragments of the same code share the whole token's span, so only
		// advance past tokens that appear in order.
		if end <= len(text) && start >= offset {
			offset = start
		}
	}

	return stream
}
