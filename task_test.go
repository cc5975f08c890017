package arena

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueueOrder(t *testing.T) {
	q := newTaskQueue()
	base := time.Now()
	var got []int
	push := func(n int, at time.Time) *scheduledTask {
		task := &scheduledTask{executeAt: at, fn: func() { got = append(got, n) }}
		q.Push(task)
		return task
	}
	push(3, base.Add(2*time.Second))
	push(1, base)
	push(2, base)
	push(4, base.Add(time.Hour))
	cancelled := push(5, base.Add(time.Second))
	cancelled.cancelled.Store(true)

	for _, task := range q.PopDue(base.Add(time.Minute)) {
		task.fn()
	}
	assert.Equal(t, []int{1, 2, 3}, got, "due tasks pop by time, then submission")
	assert.Equal(t, 1, q.Len())

	at, ok := q.Peek()
	require.True(t, ok)
	assert.True(t, at.Equal(base.Add(time.Hour)))

	q.Clear()
	assert.Zero(t, q.Len())
	_, ok = q.Peek()
	assert.False(t, ok)
}

func TestTaskQueueCompaction(t *testing.T) {
	q := newTaskQueue()
	far := time.Now().Add(time.Hour)
	var keep []*scheduledTask
	for i := 0; i < 300; i++ {
		task := &scheduledTask{executeAt: far.Add(time.Duration(i) * time.Millisecond), fn: func() {}}
		q.Push(task)
		if i%3 == 0 {
			keep = append(keep, task)
		} else {
			task.cancelled.Store(true)
		}
	}
	q.Push(&scheduledTask{executeAt: far.Add(time.Minute), fn: func() {}})
	assert.Less(t, q.Len(), 200, "sweeps drop cancelled tasks")
	due := q.PopDue(far.Add(2 * time.Minute))
	assert.Len(t, due, len(keep)+1)
	for i := 1; i < len(due); i++ {
		assert.False(t, due[i].executeAt.Before(due[i-1].executeAt))
	}
}

func TestHandlesAreNilSafe(t *testing.T) {
	var th *TaskHandle
	var lh *LoopHandle
	assert.NotPanics(t, th.Cancel)
	assert.NotPanics(t, lh.Cancel)
}
