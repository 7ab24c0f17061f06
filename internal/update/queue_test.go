package update

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePriority(t *testing.T) {
	now := time.Now()

	t.Run("user requested is always urgent", func(t *testing.T) {
		p := ComputePriority(&Task{UserRequested: true, InActiveSession: true}, now)
		assert.Equal(t, PriorityUrgent, p)
	})

	t.Run("active session bonus", func(t *testing.T) {
		p := ComputePriority(&Task{InActiveSession: true}, now)
		assert.Equal(t, 200, p)
	})

	t.Run("recency decays over time", func(t *testing.T) {
		fresh := ComputePriority(&Task{LastQueried: now}, now)
		stale := ComputePriority(&Task{LastQueried: now.Add(-20 * time.Hour)}, now)
		expired := ComputePriority(&Task{LastQueried: now.Add(-50 * time.Hour)}, now)
		assert.Equal(t, 400, fresh)
		assert.InDelta(t, 200, stale, 1)
		assert.Equal(t, 0, expired)
	})

	t.Run("small files score higher than large", func(t *testing.T) {
		small := ComputePriority(&Task{FileSizeBytes: 1024}, now)
		large := ComputePriority(&Task{FileSizeBytes: 200 * 1024 * 1024}, now)
		assert.Greater(t, small, large)
		assert.Equal(t, 0, large)
	})

	t.Run("small changes score higher than large", func(t *testing.T) {
		minor := ComputePriority(&Task{ChangePercentage: 0.1, ChangeKnown: true}, now)
		major := ComputePriority(&Task{ChangePercentage: 0.9, ChangeKnown: true}, now)
		assert.Greater(t, minor, major)
	})

	t.Run("a diffed zero-change task gets the full change bonus", func(t *testing.T) {
		diffed := ComputePriority(&Task{ChangePercentage: 0, ChangeKnown: true}, now)
		undiffed := ComputePriority(&Task{ChangePercentage: 0}, now)
		slight := ComputePriority(&Task{ChangePercentage: 0.01, ChangeKnown: true}, now)
		assert.Equal(t, 200, diffed)
		assert.Equal(t, 0, undiffed)
		assert.Greater(t, diffed, slight)
	})

	t.Run("bonuses clamp at max", func(t *testing.T) {
		p := ComputePriority(&Task{
			InActiveSession:  true,
			LastQueried:      now,
			FileSizeBytes:    1,
			ChangePercentage: 0.001,
			ChangeKnown:      true,
		}, now)
		assert.LessOrEqual(t, p, PriorityMax)
	})
}

func TestQueueUrgentDequeuesFirst(t *testing.T) {
	q := NewQueue(10)
	defer q.Close()

	require.NoError(t, q.Enqueue(&Task{FilePath: "background.txt", UpdateType: TypeModified}))
	require.NoError(t, q.Enqueue(&Task{FilePath: "session.txt", UpdateType: TypeModified, InActiveSession: true}))
	require.NoError(t, q.Enqueue(&Task{FilePath: "urgent.txt", UpdateType: TypeModified, UserRequested: true}))

	ctx := context.Background()
	first, err := q.GetNext(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "urgent.txt", first.FilePath)

	second, err := q.GetNext(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "session.txt", second.FilePath)

	third, err := q.GetNext(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "background.txt", third.FilePath)
}

func TestQueueFIFOOnEqualPriority(t *testing.T) {
	q := NewQueue(10)
	defer q.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(&Task{
			FilePath:   fmt.Sprintf("file%d.txt", i),
			UpdateType: TypeModified,
			Priority:   500,
		}))
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		task, err := q.GetNext(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("file%d.txt", i), task.FilePath)
		q.MarkCompleted(task.FilePath, Result{FilePath: task.FilePath})
	}
}

func TestQueueRejectsActiveFile(t *testing.T) {
	q := NewQueue(10)
	defer q.Close()

	require.NoError(t, q.Enqueue(&Task{FilePath: "a.txt", UpdateType: TypeModified}))
	task, err := q.GetNext(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, q.IsActive("a.txt"))

	err = q.Enqueue(&Task{FilePath: "a.txt", UpdateType: TypeModified})
	assert.ErrorIs(t, err, ErrFileActive)

	q.MarkCompleted(task.FilePath, Result{FilePath: task.FilePath})
	assert.False(t, q.IsActive("a.txt"))
	assert.NoError(t, q.Enqueue(&Task{FilePath: "a.txt", UpdateType: TypeModified}))
}

func TestQueueCoalescesPendingDuplicates(t *testing.T) {
	q := NewQueue(10)
	defer q.Close()

	require.NoError(t, q.Enqueue(&Task{FilePath: "a.txt", UpdateType: TypeCreated, Priority: 100}))
	require.NoError(t, q.Enqueue(&Task{FilePath: "a.txt", UpdateType: TypeModified, Priority: 700}))
	assert.Equal(t, 1, q.Len())

	task, err := q.GetNext(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 700, task.Priority)
	assert.Equal(t, TypeModified, task.UpdateType)
}

func TestQueueCapacity(t *testing.T) {
	q := NewQueue(2)
	defer q.Close()

	require.NoError(t, q.Enqueue(&Task{FilePath: "a.txt", UpdateType: TypeModified}))
	require.NoError(t, q.Enqueue(&Task{FilePath: "b.txt", UpdateType: TypeModified}))
	assert.ErrorIs(t, q.Enqueue(&Task{FilePath: "c.txt", UpdateType: TypeModified}), ErrQueueFull)
}

func TestQueueGetNextTimeout(t *testing.T) {
	q := NewQueue(10)
	defer q.Close()

	start := time.Now()
	task, err := q.GetNext(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, task)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestQueueGetNextWakesOnEnqueue(t *testing.T) {
	q := NewQueue(10)
	defer q.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = q.Enqueue(&Task{FilePath: "late.txt", UpdateType: TypeModified})
	}()

	task, err := q.GetNext(context.Background(), 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "late.txt", task.FilePath)
}

func TestQueueHistoriesBounded(t *testing.T) {
	q := NewQueue(1000)
	defer q.Close()

	ctx := context.Background()
	for i := 0; i < completedHistorySize+10; i++ {
		path := fmt.Sprintf("file%d.txt", i)
		require.NoError(t, q.Enqueue(&Task{FilePath: path, UpdateType: TypeModified}))
		task, err := q.GetNext(ctx, time.Second)
		require.NoError(t, err)
		q.MarkCompleted(task.FilePath, Result{FilePath: task.FilePath})
	}

	history := q.CompletedHistory()
	assert.Len(t, history, completedHistorySize)
	// Oldest entries were evicted.
	assert.Equal(t, "file10.txt", history[0].FilePath)

	for i := 0; i < failedHistorySize+5; i++ {
		path := fmt.Sprintf("bad%d.txt", i)
		require.NoError(t, q.Enqueue(&Task{FilePath: path, UpdateType: TypeModified}))
		task, err := q.GetNext(ctx, time.Second)
		require.NoError(t, err)
		q.MarkFailed(task.FilePath, Result{FilePath: task.FilePath, ErrorMessage: "boom"})
	}
	failures := q.FailedHistory()
	assert.Len(t, failures, failedHistorySize)
	for _, r := range failures {
		assert.False(t, r.Success)
	}
}

func TestQueueClosedRejectsEnqueue(t *testing.T) {
	q := NewQueue(10)
	q.Close()

	assert.ErrorIs(t, q.Enqueue(&Task{FilePath: "a.txt"}), ErrQueueClosed)

	_, err := q.GetNext(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrQueueClosed)
}
