package notify

import (
	"context"
	"log/slog"
	"time"

	"seanav/internal/tracking/metrics"
)

const defaultQueueSize = 256

// Queue is a bounded in-process Notifier. A full queue drops the
// notification rather than blocking the caller.
type Queue struct {
	ch      chan Notification
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type QueueOption func(*Queue)

func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		q.logger = logger
	}
}

func WithQueueMetrics(m *metrics.Metrics) QueueOption {
	return func(q *Queue) {
		q.metrics = m
	}
}

func NewQueue(size int, opts ...QueueOption) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	q := &Queue{ch: make(chan Notification, size), logger: slog.Default()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Publish(ctx context.Context, n Notification) {
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now()
	}
	select {
	case q.ch <- n:
	default:
		q.metrics.IncNotificationDropped()
		q.logger.WarnContext(ctx, "notification queue full, dropping",
			"event", string(n.Event),
			"key", n.Key(),
		)
	}
}

// Inbox is the consuming side for a Worker.
func (q *Queue) Inbox() <-chan Notification {
	return q.ch
}

// Len reports queued notifications.
func (q *Queue) Len() int {
	return len(q.ch)
}
