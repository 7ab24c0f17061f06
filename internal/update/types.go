// Package update schedules and executes incremental index updates with
// checkpoint-based rollback.
package update

import (
	"time"

	"github.com/doclens/doclens/internal/store"
)

// Type classifies what happened to the file on disk.
type Type string

const (
	TypeCreated  Type = "created"
	TypeModified Type = "modified"
	TypeDeleted  Type = "deleted"
)

// Strategy selects how an update is applied to the index.
type Strategy string

const (
	// StrategyFullReindex drops and rebuilds every chunk of the file.
	StrategyFullReindex Strategy = "FULL_REINDEX"

	// StrategyChunkUpdate re-inserts only the diffed chunk set.
	StrategyChunkUpdate Strategy = "CHUNK_UPDATE"

	// StrategySmartHybrid updates changed chunks and re-verifies the rest.
	StrategySmartHybrid Strategy = "SMART_HYBRID"
)

// Priority bounds and bonuses for computed task priorities.
const (
	PriorityMin    = 0
	PriorityMax    = 1000
	PriorityUrgent = 1000

	activeSessionBonus  = 200.0
	recencyBonusMax     = 400.0
	recencyDecayHours   = 40.0
	sizeBonusMax        = 200.0
	sizeBonusCapBytes   = 100 * 1024 * 1024
	changeBonusMax      = 200.0
)

// Task is one queued unit of index maintenance work.
type Task struct {
	Priority         int
	FilePath         string
	UpdateType       Type
	Strategy         Strategy // empty means let the worker decide
	ChangePercentage float64
	ChangeKnown      bool // ChangePercentage came from a real diff, not a zero value
	FileSizeBytes    int64
	EnqueuedAt       time.Time
	LastQueried      time.Time
	InActiveSession  bool
	UserRequested    bool

	seq     uint64 // arrival order, assigned by the queue for FIFO tie-breaks
	heapIdx int    // position in the queue's heap, maintained by taskHeap
}

// Result is the recorded outcome of executing one task.
type Result struct {
	Success        bool
	FilePath       string
	Strategy       Strategy
	ChunksUpdated  int
	ProcessingTime time.Duration
	ErrorMessage   string
	CompletedAt    time.Time
}

// Checkpoint snapshots one file's indexed state before mutation so a failed
// update can be rolled back.
type Checkpoint struct {
	FilePath string
	Records  []store.VectorRecord
	Metadata *store.FileRecord // nil when the file was untracked
	TakenAt  time.Time
}
