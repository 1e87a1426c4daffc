package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_TriggerNow(t *testing.T) {
	var runs atomic.Int32
	s := New(Task{
		Name:     "demo",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	require.NoError(t, s.TriggerNow(context.Background(), "demo"))
	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduler_TriggerNowUnknownTask(t *testing.T) {
	s := New()
	err := s.TriggerNow(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task")
}

func TestScheduler_TriggerNowPropagatesTaskError(t *testing.T) {
	boom := errors.New("sweep failed")
	s := New(Task{Name: "demo", Interval: time.Hour, Run: func(context.Context) error { return boom }})

	assert.ErrorIs(t, s.TriggerNow(context.Background(), "demo"), boom)
}

func TestScheduler_OverlappingRunsCollapse(t *testing.T) {
	var (
		runs    atomic.Int32
		started = make(chan struct{})
		release = make(chan struct{})
	)
	s := New(Task{
		Name:     "slow",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			close(started)
			<-release
			return nil
		},
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.TriggerNow(context.Background(), "slow")
	}()
	<-started

	// Triggers while a run is in flight join it instead of starting another.
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			_ = s.TriggerNow(context.Background(), "slow")
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduler_PeriodicTicksAndStop(t *testing.T) {
	var runs atomic.Int32
	s := New(Task{
		Name:     "fast",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()

	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop")
}

func TestScheduler_SkipsZeroIntervalTasks(t *testing.T) {
	var runs atomic.Int32
	s := New(Task{
		Name:     "disabled",
		Interval: 0,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	assert.Zero(t, runs.Load())
}
