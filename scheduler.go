package arena

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Scheduler is the engine loop. It owns a single goroutine that runs loops
// and queued tasks, plus a worker pool for blocking jobs such as persistence
// and archive work. Every arena mutation happens on the loop goroutine.
//
// A scheduler that was never started runs in manual mode: Go runs jobs
// inline, and queued tasks and loops only run when Flush or Step is called.
//
// Concurrency:
// Dispatch, Schedule, Loop and Go are safe to call from any goroutine.
// Flush and Step must only be used in manual mode.
type Scheduler struct {
	log *zap.Logger

	queue *taskQueue

	// Loop management
	loops   []*loopState
	loopsMu sync.Mutex

	// Worker pool
	workers    int
	workerPool chan func()
	workerWG   sync.WaitGroup
	jobs       sync.WaitGroup
	poolMu     sync.RWMutex
	poolClosed bool

	// Execution state
	running atomic.Bool
	stopped atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc

	// Tick tracking
	tickRate   time.Duration
	tickNumber atomic.Uint64
}

// loopState tracks the state of a single repeating loop.
type loopState struct {
	name      string
	fn        func()
	interval  time.Duration
	lastRun   time.Time
	nextRun   time.Time
	cancelled atomic.Bool
}

// ShouldRun checks if the loop should run at the given time.
func (l *loopState) ShouldRun(now time.Time) bool {
	if l.interval == 0 {
		return true
	}
	return !now.Before(l.nextRun)
}

// MarkRun updates the last run time and schedules the next run.
func (l *loopState) MarkRun(now time.Time) {
	l.lastRun = now
	if l.interval > 0 {
		// Drift-free timing
		l.nextRun = l.nextRun.Add(l.interval)
		if l.nextRun.Before(now) {
			// Catch up if we're behind
			l.nextRun = now.Add(l.interval)
		}
	}
}

// NewScheduler creates a scheduler ticking at 20 TPS.
func NewScheduler(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		log:        log,
		queue:      newTaskQueue(),
		workers:    workers,
		workerPool: make(chan func(), workers*4),
		tickRate:   50 * time.Millisecond, // 20 TPS
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins the scheduler's tick loop.
func (s *Scheduler) Start() {
	if s.stopped.Load() || s.running.Swap(true) {
		return
	}

	for i := 0; i < s.workers; i++ {
		s.workerWG.Add(1)
		go s.worker()
	}

	go s.tickLoop()
}

// Running reports whether the loop goroutine is running.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Stop shuts the scheduler down. It waits for the loop to exit and for
// in-flight jobs to return; their contexts are cancelled first. Tasks still
// queued are dropped.
func (s *Scheduler) Stop() {
	if s.stopped.Swap(true) {
		return
	}
	if s.running.Swap(false) {
		close(s.stopCh)
		<-s.doneCh
	}
	s.cancel()
	s.jobs.Wait()

	s.poolMu.Lock()
	s.poolClosed = true
	close(s.workerPool)
	s.poolMu.Unlock()
	s.workerWG.Wait()

	s.queue.Clear()
}

// worker is a pool worker that executes jobs.
func (s *Scheduler) worker() {
	defer s.workerWG.Done()
	for fn := range s.workerPool {
		fn()
	}
}

// tickLoop is the main scheduler loop.
func (s *Scheduler) tickLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return

		case now := <-ticker.C:
			s.tick(now)

		case <-s.queue.Notify():
			s.processTasks(time.Now())
		}
	}
}

// tick executes one scheduler tick.
func (s *Scheduler) tick(now time.Time) {
	s.tickNumber.Add(1)

	s.loopsMu.Lock()
	loops := make([]*loopState, 0, len(s.loops))
	live := s.loops[:0]
	for _, l := range s.loops {
		if l.cancelled.Load() {
			continue
		}
		live = append(live, l)
		loops = append(loops, l)
	}
	for i := len(live); i < len(s.loops); i++ {
		s.loops[i] = nil
	}
	s.loops = live
	s.loopsMu.Unlock()

	for _, l := range loops {
		if l.cancelled.Load() || !l.ShouldRun(now) {
			continue
		}
		s.run("loop", l.name, l.fn)
		l.MarkRun(now)
	}

	s.processTasks(now)
}

// processTasks runs every due task in order.
func (s *Scheduler) processTasks(now time.Time) {
	for _, task := range s.queue.PopDue(now) {
		if task.cancelled.Load() {
			continue
		}
		s.run("task", "", task.fn)
	}
}

// run executes fn with panic recovery. A panicking loop or task is logged
// and the loop carries on.
func (s *Scheduler) run(kind, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic on engine loop",
				zap.String("kind", kind),
				zap.String("name", name),
				zap.Any("recovered", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	fn()
}

// Dispatch queues fn to run on the loop as soon as possible.
func (s *Scheduler) Dispatch(fn func()) *TaskHandle {
	return s.Schedule(fn, 0)
}

// Schedule queues fn to run on the loop after delay.
func (s *Scheduler) Schedule(fn func(), delay time.Duration) *TaskHandle {
	return s.ScheduleAt(fn, time.Now().Add(delay))
}

// ScheduleAt queues fn to run on the loop at the given time.
// If the time is in the past, fn runs on the next tick.
func (s *Scheduler) ScheduleAt(fn func(), at time.Time) *TaskHandle {
	task := &scheduledTask{executeAt: at, fn: fn}
	s.queue.Push(task)
	return &TaskHandle{task: task}
}

// Loop registers fn to run on the loop every interval. The first run happens
// one interval from now.
func (s *Scheduler) Loop(name string, fn func(), interval time.Duration) *LoopHandle {
	l := &loopState{
		name:     name,
		fn:       fn,
		interval: interval,
		nextRun:  time.Now().Add(interval),
	}
	s.loopsMu.Lock()
	s.loops = append(s.loops, l)
	s.loopsMu.Unlock()
	return &LoopHandle{loop: l}
}

// Go runs job on the worker pool with a context that expires after timeout
// (no deadline when timeout is zero) and is cancelled on Stop. done, if not
// nil, then runs on the loop with the job's error.
//
// In manual mode the job runs inline and done is queued.
func (s *Scheduler) Go(job func(ctx context.Context) error, timeout time.Duration, done func(error)) {
	run := func() {
		ctx, cancel := s.jobContext(timeout)
		defer cancel()
		err := s.runJob(ctx, job)
		if done != nil {
			s.Dispatch(func() { done(err) })
		}
	}

	if !s.running.Load() {
		if s.stopped.Load() {
			if done != nil {
				s.Dispatch(func() { done(ErrClosed) })
			}
			return
		}
		run()
		return
	}

	s.poolMu.RLock()
	defer s.poolMu.RUnlock()
	if s.poolClosed {
		return
	}
	s.jobs.Add(1)
	wrapped := func() {
		defer s.jobs.Done()
		run()
	}
	select {
	case s.workerPool <- wrapped:
	default:
		// Worker pool full
		go wrapped()
	}
}

func (s *Scheduler) jobContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(s.ctx, timeout)
	}
	return context.WithCancel(s.ctx)
}

// runJob turns a panicking job into an error.
func (s *Scheduler) runJob(ctx context.Context, job func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in job", zap.Any("recovered", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job(ctx)
}

// Flush runs queued tasks that are due now, including tasks they queue in
// turn, until none are left. Manual mode only.
func (s *Scheduler) Flush() {
	for {
		tasks := s.queue.PopDue(time.Now())
		if len(tasks) == 0 {
			return
		}
		for _, task := range tasks {
			if !task.cancelled.Load() {
				s.run("task", "", task.fn)
			}
		}
	}
}

// Step runs one tick as if it happened at now, followed by a Flush. Manual
// mode only.
func (s *Scheduler) Step(now time.Time) {
	s.tick(now)
	s.Flush()
}

// Ticks returns the number of ticks run so far.
func (s *Scheduler) Ticks() uint64 {
	return s.tickNumber.Load()
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	return s.queue.Len()
}
