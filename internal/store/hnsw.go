package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// VectorStoreConfig configures the HNSW vector store.
type VectorStoreConfig struct {
	// Dimensions is the embedding dimension.
	Dimensions int

	// M is the HNSW max connections per layer (default: 16).
	M int

	// EfSearch is the HNSW query-time search width (default: 20).
	EfSearch int
}

// HNSWStore implements VectorStore on coder/hnsw (pure Go, no CGO).
// Records are kept alongside the graph so whole-file retrieval and
// checkpointing can return texts and embeddings without re-computation.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	records map[string]VectorRecord
	byFile  map[string]map[string]struct{} // file path -> record IDs

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

var _ VectorStore = (*HNSWStore)(nil)

// hnswSnapshot is the gob-serialized persistent form. The graph is rebuilt
// from records on load.
type hnswSnapshot struct {
	Config  VectorStoreConfig
	Records []VectorRecord
}

// NewHNSWStore creates an empty HNSW vector store.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	s := &HNSWStore{
		config:  cfg,
		records: make(map[string]VectorRecord),
		byFile:  make(map[string]map[string]struct{}),
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
	}
	s.graph = newGraph(cfg)
	return s, nil
}

func newGraph(cfg VectorStoreConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// Upsert inserts records, replacing existing records with the same ID.
func (s *HNSWStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, r := range records {
		if len(r.Vector) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(r.Vector)}
		}
	}

	for _, r := range records {
		// Lazy replacement: orphan the old graph node instead of deleting,
		// deleting the last node breaks the coder/hnsw graph.
		if old, exists := s.records[r.ID]; exists {
			if key, ok := s.idMap[r.ID]; ok {
				delete(s.keyMap, key)
				delete(s.idMap, r.ID)
			}
			s.removeFileRef(old.FilePath, r.ID)
		}

		key := s.nextKey
		s.nextKey++
		s.graph.Add(hnsw.MakeNode(key, r.Vector))

		s.idMap[r.ID] = key
		s.keyMap[key] = r.ID
		s.records[r.ID] = r
		if s.byFile[r.FilePath] == nil {
			s.byFile[r.FilePath] = make(map[string]struct{})
		}
		s.byFile[r.FilePath][r.ID] = struct{}{}
	}

	return nil
}

// Query returns the k nearest records to vector.
func (s *HNSWStore) Query(ctx context.Context, vector []float32, k int) ([]VectorMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(vector) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(vector)}
	}
	if s.graph.Len() == 0 {
		return []VectorMatch{}, nil
	}

	// Over-fetch to compensate for lazily deleted nodes still in the graph.
	fetch := k + (s.graph.Len() - len(s.idMap))
	nodes := s.graph.Search(vector, fetch)

	matches := make([]VectorMatch, 0, k)
	for _, node := range nodes {
		id, live := s.keyMap[node.Key]
		if !live {
			continue
		}
		distance := s.graph.Distance(vector, node.Value)
		matches = append(matches, VectorMatch{
			Record: s.records[id],
			Score:  1 - distance/2, // cosine distance in [0,2] -> similarity in [0,1]
		})
		if len(matches) == k {
			break
		}
	}
	return matches, nil
}

// Delete removes records by ID using lazy graph deletion.
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, id := range ids {
		r, exists := s.records[id]
		if !exists {
			continue
		}
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
		delete(s.records, id)
		s.removeFileRef(r.FilePath, id)
	}
	return nil
}

// GetByFile returns all records for filePath ordered by chunk ID.
func (s *HNSWStore) GetByFile(ctx context.Context, filePath string) ([]VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ids := s.byFile[filePath]
	records := make([]VectorRecord, 0, len(ids))
	for id := range ids {
		records = append(records, s.records[id])
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ChunkID < records[j].ChunkID })
	return records, nil
}

// DeleteByFile removes all records for filePath.
func (s *HNSWStore) DeleteByFile(ctx context.Context, filePath string) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.byFile[filePath]))
	for id := range s.byFile[filePath] {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	return s.Delete(ctx, ids)
}

// Count returns the number of live records.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Save persists the store to path atomically (temp file + rename).
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	snapshot := hnswSnapshot{Config: s.config, Records: make([]VectorRecord, 0, len(s.records))}
	for _, r := range s.records {
		snapshot.Records = append(snapshot.Records, r)
	}
	sort.Slice(snapshot.Records, func(i, j int) bool { return snapshot.Records[i].ID < snapshot.Records[j].ID })

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}

	w := bufio.NewWriter(file)
	if err := gob.NewEncoder(w).Encode(&snapshot); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Load restores the store from a snapshot, rebuilding the graph.
func (s *HNSWStore) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = file.Close() }()

	var snapshot hnswSnapshot
	if err := gob.NewDecoder(bufio.NewReader(file)).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snapshot.Config.Dimensions != s.config.Dimensions {
		return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: snapshot.Config.Dimensions}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	s.graph = newGraph(s.config)
	s.records = make(map[string]VectorRecord, len(snapshot.Records))
	s.byFile = make(map[string]map[string]struct{})
	s.idMap = make(map[string]uint64, len(snapshot.Records))
	s.keyMap = make(map[uint64]string, len(snapshot.Records))
	s.nextKey = 0

	for _, r := range snapshot.Records {
		key := s.nextKey
		s.nextKey++
		s.graph.Add(hnsw.MakeNode(key, r.Vector))
		s.idMap[r.ID] = key
		s.keyMap[key] = r.ID
		s.records[r.ID] = r
		if s.byFile[r.FilePath] == nil {
			s.byFile[r.FilePath] = make(map[string]struct{})
		}
		s.byFile[r.FilePath][r.ID] = struct{}{}
	}
	return nil
}

// Close closes the store.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// removeFileRef drops one ID from the per-file index. Callers hold s.mu.
func (s *HNSWStore) removeFileRef(filePath, id string) {
	if ids := s.byFile[filePath]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byFile, filePath)
		}
	}
}
