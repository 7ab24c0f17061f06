package update

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Queue errors.
var (
	ErrQueueFull   = errors.New("update queue is full")
	ErrFileActive  = errors.New("file is already being processed")
	ErrQueueClosed = errors.New("update queue is closed")
)

const (
	// DefaultQueueCapacity bounds the number of pending tasks.
	DefaultQueueCapacity = 1000

	completedHistorySize = 100
	failedHistorySize    = 50
)

// Queue is a bounded priority queue of update tasks. Higher priority
// dequeues first, ties break by arrival order. Each file has at most one
// pending task and at most one active task at any time.
type Queue struct {
	mu       sync.Mutex
	heap     taskHeap
	pending  map[string]*Task // file path -> queued task
	active   map[string]*Task // file path -> dequeued, in-flight task
	capacity int
	nextSeq  uint64

	completed []Result
	failed    []Result

	notify chan struct{}
	closed bool
}

// NewQueue creates a queue holding at most capacity pending tasks.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		pending:  make(map[string]*Task),
		active:   make(map[string]*Task),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// ComputePriority scores a task. A user request is always urgent; otherwise
// independent bonuses for session activity, query recency, file size and
// change magnitude accumulate, clamped to [0, 1000].
func ComputePriority(task *Task, now time.Time) int {
	if task.UserRequested {
		return PriorityUrgent
	}

	score := 0.0
	if task.InActiveSession {
		score += activeSessionBonus
	}
	if !task.LastQueried.IsZero() {
		hours := now.Sub(task.LastQueried).Hours()
		if hours < 0 {
			hours = 0
		}
		if hours < recencyDecayHours {
			score += recencyBonusMax * (1 - hours/recencyDecayHours)
		}
	}
	if task.FileSizeBytes > 0 {
		frac := float64(task.FileSizeBytes) / float64(sizeBonusCapBytes)
		if frac > 1 {
			frac = 1
		}
		score += sizeBonusMax * (1 - frac)
	}
	if task.ChangeKnown {
		score += changeBonusMax * (1 - task.ChangePercentage)
	}

	p := int(score)
	if p < PriorityMin {
		p = PriorityMin
	}
	if p > PriorityMax {
		p = PriorityMax
	}
	return p
}

// Enqueue adds a task, computing its priority when none is supplied. A task
// for a file that already has a pending task merges into it, keeping the
// higher priority. Enqueueing fails for files currently being processed and
// when the queue is full.
func (q *Queue) Enqueue(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if _, isActive := q.active[task.FilePath]; isActive {
		return fmt.Errorf("%w: %s", ErrFileActive, task.FilePath)
	}

	if task.Priority == 0 && !task.UserRequested {
		task.Priority = ComputePriority(task, time.Now())
	} else if task.UserRequested {
		task.Priority = PriorityUrgent
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}

	if existing, ok := q.pending[task.FilePath]; ok {
		// Coalesce: one pending task per file, at the higher priority and
		// with the freshest change information.
		if task.Priority > existing.Priority {
			existing.Priority = task.Priority
			heap.Fix(&q.heap, existing.heapIdx)
		}
		existing.UpdateType = task.UpdateType
		existing.ChangePercentage = task.ChangePercentage
		existing.ChangeKnown = task.ChangeKnown
		existing.FileSizeBytes = task.FileSizeBytes
		existing.UserRequested = existing.UserRequested || task.UserRequested
		return nil
	}

	if len(q.heap.items) >= q.capacity {
		return fmt.Errorf("%w: capacity %d", ErrQueueFull, q.capacity)
	}

	task.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.heap, task)
	q.pending[task.FilePath] = task

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// GetNext removes and returns the highest-priority task, waiting up to
// timeout for one to arrive. It returns (nil, nil) when the wait expires.
// The returned task is marked active until MarkCompleted or MarkFailed.
func (q *Queue) GetNext(ctx context.Context, timeout time.Duration) (*Task, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		if q.heap.Len() > 0 {
			task := heap.Pop(&q.heap).(*Task)
			delete(q.pending, task.FilePath)
			q.active[task.FilePath] = task
			q.mu.Unlock()
			return task, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-q.notify:
		}
	}
}

// MarkCompleted finishes an active task with a successful result.
func (q *Queue) MarkCompleted(filePath string, result Result) {
	q.finish(filePath, result, true)
}

// MarkFailed finishes an active task with a failed result.
func (q *Queue) MarkFailed(filePath string, result Result) {
	q.finish(filePath, result, false)
}

func (q *Queue) finish(filePath string, result Result, success bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.active, filePath)
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now()
	}
	result.Success = success

	if success {
		q.completed = appendBounded(q.completed, result, completedHistorySize)
	} else {
		q.failed = appendBounded(q.failed, result, failedHistorySize)
	}
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// ActiveCount returns the number of in-flight tasks.
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// IsActive reports whether filePath is currently being processed.
func (q *Queue) IsActive(filePath string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.active[filePath]
	return ok
}

// CompletedHistory returns a copy of the bounded success history, oldest
// first.
func (q *Queue) CompletedHistory() []Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Result(nil), q.completed...)
}

// FailedHistory returns a copy of the bounded failure history, oldest first.
func (q *Queue) FailedHistory() []Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Result(nil), q.failed...)
}

// Close rejects further enqueues and wakes any waiting GetNext callers.
// Closing twice is a no-op.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

func appendBounded(history []Result, r Result, limit int) []Result {
	history = append(history, r)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

// taskHeap orders tasks by descending priority, then ascending arrival.
type taskHeap struct {
	items []*Task
}

func (h *taskHeap) Len() int { return len(h.items) }

func (h *taskHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.seq < b.seq
}

func (h *taskHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].heapIdx = i
	h.items[j].heapIdx = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.heapIdx = len(h.items)
	h.items = append(h.items, t)
}

func (h *taskHeap) Pop() any {
	old := h.items
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	t.heapIdx = -1
	return t
}
