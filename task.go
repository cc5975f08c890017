package arena

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// scheduledTask is a function queued on the engine loop.
type scheduledTask struct {
	executeAt time.Time
	seq       uint64 // submission order, breaks ties on executeAt
	fn        func()
	cancelled atomic.Bool
}

// taskHeap orders tasks by due time, then by submission.
type taskHeap []*scheduledTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].executeAt.Equal(h[j].executeAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].executeAt.Before(h[j].executeAt)
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*scheduledTask)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old) - 1
	t := old[n]
	old[n] = nil
	*h = old[:n]
	return t
}

// compactEvery is how many pushes pass between sweeps of cancelled tasks.
const compactEvery = 128

// taskQueue holds the one-shot tasks of a scheduler. Cancelled tasks stay in
// the heap until they come due or a sweep drops them.
//
// Concurrency:
// Safe for concurrent use. Notify receives a value after every Push so the
// tick loop can run tasks queued between ticks without waiting.
type taskQueue struct {
	mu     sync.Mutex
	tasks  taskHeap
	seq    uint64
	pushes int
	notif  chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks: make(taskHeap, 0, 64),
		notif: make(chan struct{}, 1),
	}
}

// Push queues task.
func (q *taskQueue) Push(task *scheduledTask) {
	q.mu.Lock()
	q.seq++
	task.seq = q.seq
	heap.Push(&q.tasks, task)
	if q.pushes++; q.pushes%compactEvery == 0 {
		q.compact()
	}
	q.mu.Unlock()

	select {
	case q.notif <- struct{}{}:
	default:
	}
}

// PopDue removes every task due at or before now and returns the live ones
// in run order.
func (q *taskQueue) PopDue(now time.Time) []*scheduledTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*scheduledTask
	for len(q.tasks) > 0 && !q.tasks[0].executeAt.After(now) {
		t := heap.Pop(&q.tasks).(*scheduledTask)
		if !t.cancelled.Load() {
			due = append(due, t)
		}
	}
	return due
}

// compact drops cancelled tasks. Caller must hold mu.
func (q *taskQueue) compact() {
	live := q.tasks[:0]
	for _, t := range q.tasks {
		if !t.cancelled.Load() {
			live = append(live, t)
		}
	}
	clear(q.tasks[len(live):])
	q.tasks = live
	heap.Init(&q.tasks)
}

// Peek returns the due time of the next task.
func (q *taskQueue) Peek() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return time.Time{}, false
	}
	return q.tasks[0].executeAt, true
}

// Len returns the number of queued tasks, cancelled ones included.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Clear drops every queued task.
func (q *taskQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.tasks)
	q.tasks = q.tasks[:0]
}

// Notify returns the channel signalled by Push.
func (q *taskQueue) Notify() <-chan struct{} {
	return q.notif
}

// TaskHandle cancels a task queued with Scheduler.Schedule or Dispatch.
type TaskHandle struct {
	task *scheduledTask
}

// Cancel cancels the task. Cancelling a task that already ran does nothing.
func (h *TaskHandle) Cancel() {
	if h != nil && h.task != nil {
		h.task.cancelled.Store(true)
	}
}

// LoopHandle stops a loop started with Scheduler.Loop.
type LoopHandle struct {
	loop *loopState
}

// Cancel stops the loop before its next run.
func (h *LoopHandle) Cancel() {
	if h != nil && h.loop != nil {
		h.loop.cancelled.Store(true)
	}
}
