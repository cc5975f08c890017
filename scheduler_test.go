package arena

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerManualGo(t *testing.T) {
	s := NewScheduler(nil)
	t.Cleanup(s.Stop)

	var (
		ran  bool
		done error
		hit  bool
	)
	boom := errors.New("boom")
	s.Go(func(ctx context.Context) error {
		ran = true
		return boom
	}, time.Second, func(err error) {
		hit, done = true, err
	})
	assert.True(t, ran, "jobs run inline in manual mode")
	assert.False(t, hit, "completions wait for Flush")

	s.Flush()
	assert.True(t, hit)
	assert.ErrorIs(t, done, boom)
}

func TestSchedulerJobPanicBecomesError(t *testing.T) {
	s := NewScheduler(nil)
	t.Cleanup(s.Stop)

	var got error
	s.Go(func(context.Context) error { panic("bad job") }, 0, func(err error) { got = err })
	s.Flush()
	require.Error(t, got)
	assert.Contains(t, got.Error(), "bad job")
}

func TestSchedulerFlushRunsNestedTasks(t *testing.T) {
	s := NewScheduler(nil)
	t.Cleanup(s.Stop)

	var order []string
	s.Dispatch(func() {
		order = append(order, "a")
		s.Dispatch(func() { order = append(order, "c") })
	})
	s.Dispatch(func() { order = append(order, "b") })
	s.Dispatch(func() { panic("ignored") })
	later := s.Schedule(func() { order = append(order, "later") }, time.Hour)

	s.Flush()
	assert.Equal(t, []string{"a", "b", "c"}, order)

	later.Cancel()
	s.Step(time.Now().Add(2 * time.Hour))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestSchedulerLoops(t *testing.T) {
	s := NewScheduler(nil)
	t.Cleanup(s.Stop)

	var runs int
	h := s.Loop("count", func() { runs++ }, time.Second)
	now := time.Now()

	s.Step(now)
	assert.Zero(t, runs, "first run is one interval away")
	s.Step(now.Add(time.Second))
	assert.Equal(t, 1, runs)
	s.Step(now.Add(1500 * time.Millisecond))
	assert.Equal(t, 1, runs)
	s.Step(now.Add(2 * time.Second))
	assert.Equal(t, 2, runs)

	h.Cancel()
	s.Step(now.Add(time.Hour))
	assert.Equal(t, 2, runs)
	assert.Equal(t, uint64(5), s.Ticks())
}

func TestSchedulerStarted(t *testing.T) {
	s := NewScheduler(nil)
	s.Start()
	require.True(t, s.Running())

	var completed atomic.Bool
	s.Go(func(ctx context.Context) error {
		return nil
	}, time.Second, func(err error) {
		completed.Store(err == nil)
	})
	require.Eventually(t, completed.Load, time.Second, 5*time.Millisecond)

	var ticks atomic.Int32
	s.Loop("tick", func() { ticks.Add(1) }, 0)
	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, 5*time.Millisecond)

	blocked := make(chan struct{})
	var cancelled atomic.Bool
	s.Go(func(ctx context.Context) error {
		close(blocked)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}, 0, nil)
	<-blocked

	s.Stop()
	assert.False(t, s.Running())
	assert.True(t, cancelled.Load(), "Stop cancels in-flight jobs and waits for them")
}

func TestSchedulerGoAfterStop(t *testing.T) {
	s := NewScheduler(nil)
	s.Stop()

	var got error
	ran := false
	s.Go(func(context.Context) error {
		ran = true
		return nil
	}, 0, func(err error) { got = err })
	s.Flush()
	assert.False(t, ran)
	assert.ErrorIs(t, got, ErrClosed)
}
