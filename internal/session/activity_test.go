package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerActiveSession(t *testing.T) {
	tr := NewTracker(30 * time.Minute)
	current := time.Now()
	tr.now = func() time.Time { return current }

	assert.False(t, tr.InActiveSession("a.txt"))
	assert.True(t, tr.LastQueried("a.txt").IsZero())

	tr.RecordQuery("a.txt", "b.txt")
	assert.True(t, tr.InActiveSession("a.txt"))
	assert.True(t, tr.InActiveSession("b.txt"))
	assert.Equal(t, current, tr.LastQueried("a.txt"))

	// The session window expires.
	current = current.Add(31 * time.Minute)
	assert.False(t, tr.InActiveSession("a.txt"))
	assert.False(t, tr.LastQueried("a.txt").IsZero())
}

func TestTrackerForget(t *testing.T) {
	tr := NewTracker(0)
	tr.RecordQuery("a.txt")
	tr.Forget("a.txt")
	assert.False(t, tr.InActiveSession("a.txt"))
	assert.True(t, tr.LastQueried("a.txt").IsZero())
}
