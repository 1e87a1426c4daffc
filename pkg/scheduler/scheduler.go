// Package scheduler runs the periodic background tasks: the niche sweep,
// the scheduled-post sweep, the system audit and the storage lifecycle.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Task is one periodic unit of work.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler ticks each registered task on its own interval. Overlapping
// runs of the same task collapse into one via singleflight, so a slow
// sweep never stacks up behind itself.
type Scheduler struct {
	tasks  []Task
	flight singleflight.Group

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a scheduler over the given tasks. Tasks with a non-positive
// interval are skipped.
func New(tasks ...Task) *Scheduler {
	return &Scheduler{tasks: tasks}
}

// Start launches one ticker goroutine per task.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, task := range s.tasks {
		if task.Interval <= 0 {
			slog.Warn("Skipping task with no interval", "task", task.Name)
			continue
		}
		s.wg.Add(1)
		go func(t Task) {
			defer s.wg.Done()
			s.loop(runCtx, t)
		}(task)
	}
	slog.Info("Scheduler started", "tasks", len(s.tasks))
}

// Stop cancels all task loops and waits for in-flight runs.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	slog.Info("Scheduler stopped")
}

// TriggerNow runs one task immediately, joining any in-flight run.
func (s *Scheduler) TriggerNow(ctx context.Context, name string) error {
	for _, task := range s.tasks {
		if task.Name == name {
			return s.runOnce(ctx, task)
		}
	}
	return errUnknownTask(name)
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runOnce(ctx, task); err != nil && ctx.Err() == nil {
				slog.Error("Scheduled task failed", "task", task.Name, "error", err)
			}
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, task Task) error {
	_, err, shared := s.flight.Do(task.Name, func() (any, error) {
		started := time.Now()
		err := task.Run(ctx)
		slog.Info("Task run finished", "task", task.Name,
			"duration", time.Since(started).Round(time.Millisecond), "error", err)
		return nil, err
	})
	if shared {
		slog.Debug("Task run joined in-flight execution", "task", task.Name)
	}
	return err
}

type errUnknownTask string

func (e errUnknownTask) Error() string { return "unknown task " + string(e) }
