// Package service is the tracking core: manifest creation, movement
// recording with reconciliation, statistics and listings.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"seanav/internal/tracking/metrics"
	"seanav/internal/tracking/notify"
	"seanav/internal/tracking/reconcile"
	"seanav/internal/tracking/seaport"
	"seanav/internal/tracking/stats"
	"seanav/internal/tracking/store"
	dErrors "seanav/pkg/domain-errors"
	"seanav/pkg/platform/sentinel"
)

const tracerName = "seanav/tracking"

// Service orchestrates the tracking components over one entity store.
type Service struct {
	store    store.Store
	engine   *reconcile.Engine
	resolver *seaport.Resolver
	stats    *stats.Aggregator
	notifier notify.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	loc      *time.Location
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithEngine(e *reconcile.Engine) Option {
	return func(s *Service) {
		s.engine = e
	}
}

func WithResolver(r *seaport.Resolver) Option {
	return func(s *Service) {
		s.resolver = r
	}
}

func WithAggregator(a *stats.Aggregator) Option {
	return func(s *Service) {
		s.stats = a
	}
}

// WithLocation sets the timezone used for exported timestamps.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// New constructs a Service. Components not supplied by options are built
// with their defaults over st and tx.
func New(st store.Store, tx store.TxRunner, opts ...Option) *Service {
	s := &Service{
		store:    st,
		notifier: notify.Discard{},
		logger:   slog.Default(),
		loc:      time.UTC,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = reconcile.New(tx, reconcile.WithLogger(s.logger), reconcile.WithMetrics(s.metrics))
	}
	if s.resolver == nil {
		s.resolver = seaport.New(st, seaport.WithLogger(s.logger))
	}
	if s.stats == nil {
		s.stats = stats.New(st, stats.WithLocation(s.loc), stats.WithLogger(s.logger), stats.WithMetrics(s.metrics))
	}
	return s
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "tracking."+name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// translate maps store sentinels onto domain codes. Errors that already
// carry a code pass through.
func translate(err error, notFoundMsg, internalMsg string) error {
	var de *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, notFoundMsg)
	case errors.Is(err, sentinel.ErrAlreadyUsed), errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "conflicting write")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidState, internalMsg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
	}
}
