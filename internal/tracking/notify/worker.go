package notify

import (
	"context"
	"log/slog"
)

// Worker consumes notifications from a channel and hands each one to every
// sink. A failing sink is logged and does not stop delivery to the others.
type Worker struct {
	inbox  <-chan Notification
	sinks  []Sink
	logger *slog.Logger
}

func NewWorker(inbox <-chan Notification, logger *slog.Logger, sinks ...Sink) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{inbox: inbox, sinks: sinks, logger: logger}
}

// Run blocks until ctx is done or the inbox is closed.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.deliver(ctx, n)
		}
	}
}

func (w *Worker) deliver(ctx context.Context, n Notification) {
	for _, sink := range w.sinks {
		if err := sink.Deliver(ctx, n); err != nil {
			w.logger.ErrorContext(ctx, "notification delivery failed",
				"sink", sink.Name(),
				"event", string(n.Event),
				"key", n.Key(),
				"error", err,
			)
		}
	}
}
