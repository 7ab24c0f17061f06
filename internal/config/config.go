// Package config loads and validates DocLens configuration from YAML files
// and DOCLENS_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DataDirName is the per-root directory holding all persisted index state.
const DataDirName = ".doclens"

// Duration is a time.Duration that unmarshals from YAML strings like "2s"
// as well as plain nanosecond integers.
type Duration time.Duration

// Std converts to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Config is the complete DocLens configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Diff       DiffConfig       `yaml:"diff"`
	Strategy   StrategyConfig   `yaml:"strategy"`
	Queue      QueueConfig      `yaml:"queue"`
	Search     SearchConfig     `yaml:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	LLM        LLMConfig        `yaml:"llm"`
	Watcher    WatcherConfig    `yaml:"watcher"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PathsConfig selects what gets indexed and where state lives.
type PathsConfig struct {
	// Root is the directory tree to index.
	Root string `yaml:"root"`

	// DataDir holds the index artifacts. Defaults to <root>/.doclens.
	DataDir string `yaml:"data_dir"`

	// Exclude are doublestar patterns, relative to Root.
	Exclude []string `yaml:"exclude"`

	// MaxFileSize bounds extracted files, in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`
}

// ChunkingConfig tunes the chunker.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// DiffConfig tunes the chunk differ's matching thresholds.
type DiffConfig struct {
	SimilarityThreshold     float64 `yaml:"similarity_threshold"`
	TextSimilarityThreshold float64 `yaml:"text_similarity_threshold"`
}

// StrategyConfig tunes update-strategy selection. Each threshold is
// independently tunable.
type StrategyConfig struct {
	MinChunksForIncremental int     `yaml:"min_chunks_for_incremental"`
	FullReindexThreshold    float64 `yaml:"full_reindex_threshold"`
	ChunkUpdateThreshold    float64 `yaml:"chunk_update_threshold"`
}

// QueueConfig bounds the update queue.
type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

// SearchConfig tunes hybrid retrieval.
type SearchConfig struct {
	SemanticWeight float64 `yaml:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`

	// RRFConstant is the rank-fusion smoothing parameter k.
	RRFConstant int `yaml:"rrf_constant"`

	MaxResults int `yaml:"max_results"`

	// Rerank enables the completion-backed re-ranker.
	Rerank bool `yaml:"rerank"`
}

// EmbeddingsConfig selects and tunes the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama", "static" or "" for auto-detection.
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Host       string `yaml:"host"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	CacheSize  int    `yaml:"cache_size"`
}

// LLMConfig configures the generative-completion provider.
type LLMConfig struct {
	Host    string        `yaml:"host"`
	Model   string        `yaml:"model"`
	Timeout Duration `yaml:"timeout"`
}

// WatcherConfig tunes file watching.
type WatcherConfig struct {
	DebounceWindow Duration `yaml:"debounce_window"`
}

// LoggingConfig tunes log output.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Default returns the standard configuration rooted at dir.
func Default(dir string) *Config {
	return &Config{
		Paths: PathsConfig{
			Root:        dir,
			DataDir:     filepath.Join(dir, DataDirName),
			MaxFileSize: 100 * 1024 * 1024,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    1500,
			ChunkOverlap: 200,
		},
		Diff: DiffConfig{
			SimilarityThreshold:     0.85,
			TextSimilarityThreshold: 0.7,
		},
		Strategy: StrategyConfig{
			MinChunksForIncremental: 10,
			FullReindexThreshold:    0.5,
			ChunkUpdateThreshold:    0.2,
		},
		Queue: QueueConfig{
			Capacity: 1000,
		},
		Search: SearchConfig{
			SemanticWeight: 0.6,
			KeywordWeight:  0.4,
			RRFConstant:    60,
			MaxResults:     10,
		},
		Embeddings: EmbeddingsConfig{
			BatchSize: 32,
			CacheSize: 10000,
		},
		LLM: LLMConfig{
			Timeout: Duration(120 * time.Second),
		},
		Watcher: WatcherConfig{
			DebounceWindow: Duration(2 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ConfigFileName is the per-root configuration file.
const ConfigFileName = "doclens.yaml"

// Load builds the configuration for dir: defaults, then dir/doclens.yaml if
// present, then DOCLENS_* environment overrides.
func Load(dir string) (*Config, error) {
	cfg := Default(dir)

	path := filepath.Join(dir, ConfigFileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if cfg.Paths.Root == "" {
		cfg.Paths.Root = dir
	}
	if cfg.Paths.DataDir == "" {
		cfg.Paths.DataDir = filepath.Join(cfg.Paths.Root, DataDirName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies DOCLENS_* environment variable overrides, the
// highest-priority configuration source.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCLENS_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("DOCLENS_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("DOCLENS_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DOCLENS_OLLAMA_HOST"); v != "" {
		c.Embeddings.Host = v
		if c.LLM.Host == "" {
			c.LLM.Host = v
		}
	}
	if v := os.Getenv("DOCLENS_SEMANTIC_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.SemanticWeight = f
		}
	}
	if v := os.Getenv("DOCLENS_KEYWORD_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.KeywordWeight = f
		}
	}
	if v := os.Getenv("DOCLENS_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.RRFConstant = n
		}
	}
	if v := os.Getenv("DOCLENS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be in [0, chunk_size), got %d", c.Chunking.ChunkOverlap)
	}
	if c.Diff.SimilarityThreshold < 0 || c.Diff.SimilarityThreshold > 1 {
		return fmt.Errorf("diff.similarity_threshold must be in [0, 1], got %g", c.Diff.SimilarityThreshold)
	}
	if c.Diff.TextSimilarityThreshold < 0 || c.Diff.TextSimilarityThreshold > 1 {
		return fmt.Errorf("diff.text_similarity_threshold must be in [0, 1], got %g", c.Diff.TextSimilarityThreshold)
	}
	if c.Strategy.ChunkUpdateThreshold > c.Strategy.FullReindexThreshold {
		return fmt.Errorf("strategy.chunk_update_threshold (%g) must not exceed full_reindex_threshold (%g)",
			c.Strategy.ChunkUpdateThreshold, c.Strategy.FullReindexThreshold)
	}
	if c.Search.SemanticWeight < 0 || c.Search.KeywordWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if c.Search.SemanticWeight+c.Search.KeywordWeight == 0 {
		return fmt.Errorf("at least one search weight must be positive")
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be positive, got %d", c.Queue.Capacity)
	}
	return nil
}
