package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"cabpool/internal/observability"
)

// Queue errors. A notification that gets either one is dropped.
var (
	ErrQueueFull   = errors.New("notification queue full")
	ErrQueueClosed = errors.New("notification queue closed")
)

type job struct {
	ctx     context.Context
	userID  string
	kind    string
	payload map[string]any
}

// Queue hands notifications to a fixed pool of workers so callers never wait
// on a transport. Notify drops instead of blocking when the buffer is full.
type Queue struct {
	next   Notifier
	jobs   chan job
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue starts workers delivering to next through a buffer of size jobs.
func NewQueue(next Notifier, size, workers int, logger *slog.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}
	q := &Queue{next: next, jobs: make(chan job, size), logger: logger}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.work()
	}
	return q
}

func (q *Queue) Notify(ctx context.Context, userID, kind string, payload map[string]any) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	// The request context is cancelled once the handler returns.
	j := job{ctx: context.WithoutCancel(ctx), userID: userID, kind: kind, payload: payload}
	select {
	case q.jobs <- j:
		return nil
	default:
		observability.NotificationsDroppedTotal.Inc()
		return ErrQueueFull
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for j := range q.jobs {
		if err := q.next.Notify(j.ctx, j.userID, j.kind, j.payload); err != nil {
			q.logger.WarnContext(j.ctx, "notification delivery failed", "user_id", j.userID, "kind", j.kind, "error", err)
		}
	}
}

// Close stops accepting notifications and waits for queued ones to be
// delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	q.wg.Wait()
}

var _ Notifier = (*Queue)(nil)
