package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Subscriber receives job status payloads. Handlers must be fast and must
// not block; long work belongs on the queue.
type Subscriber func(JobStatusPayload)

// Listener holds a dedicated PostgreSQL connection in LISTEN mode and
// dispatches notifications to in-process subscribers. The connection is
// re-established with backoff after failures; notifications arriving while
// disconnected are lost (best-effort contract).
type Listener struct {
	dsn string

	mu          sync.RWMutex
	subscribers []Subscriber

	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener creates a listener for the given DSN.
func NewListener(dsn string) *Listener {
	return &Listener{dsn: dsn}
}

// Subscribe registers a handler for job status payloads.
func (l *Listener) Subscribe(fn Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers = append(l.subscribers, fn)
}

// Start launches the listen loop.
func (l *Listener) Start(ctx context.Context) {
	if l.cancel != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx)
	slog.Info("Job event listener started", "channel", JobsChannel)
}

// Stop terminates the listen loop and waits for it to exit.
func (l *Listener) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	slog.Info("Job event listener stopped")
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := l.listen(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("Event listener connection lost, reconnecting",
				"error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close(context.Background()) }()

	if _, err := conn.Exec(ctx, "LISTEN "+JobsChannel); err != nil {
		return err
	}

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var payload JobStatusPayload
		if err := json.Unmarshal([]byte(notification.Payload), &payload); err != nil {
			slog.Warn("Dropping malformed job event", "error", err)
			continue
		}
		l.dispatch(payload)
	}
}

func (l *Listener) dispatch(payload JobStatusPayload) {
	l.mu.RLock()
	subs := make([]Subscriber, len(l.subscribers))
	copy(subs, l.subscribers)
	l.mu.RUnlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Warn("Event subscriber panicked", "job_id", payload.JobID, "panic", r)
				}
			}()
			fn(payload)
		}()
	}
}
