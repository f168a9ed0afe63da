// Package reconcile pairs opening and closing registers of the same person.
//
// Only closings trigger transitions. A closing pairs with the most recent
// open opening of the same person at or before its own time; with none it
// is marked unmatched. Openings stay open until a closing claims them, so
// several may coexist. Denied and unauthorized registers never take part.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"seanav/internal/tracking/metrics"
	"seanav/internal/tracking/models"
	"seanav/internal/tracking/store"
	id "seanav/pkg/domain"
	dErrors "seanav/pkg/domain-errors"
	"seanav/pkg/platform/sentinel"
)

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 20 * time.Millisecond
)

// Unit is one atomic read-then-write step run under a TxRunner key.
type Unit func(ctx context.Context, s store.Store) (*models.MovementResult, error)

// Engine runs reconciliation units with conflict retries.
type Engine struct {
	tx          store.TxRunner
	logger      *slog.Logger
	metrics     *metrics.Metrics
	maxAttempts int
	backoff     time.Duration
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithMaxAttempts bounds how many times a conflicting unit is run.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithBackoff sets the linear backoff step between attempts.
func WithBackoff(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.backoff = d
		}
	}
}

func New(tx store.TxRunner, opts ...Option) *Engine {
	e := &Engine{
		tx:          tx,
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes unit under key, retrying the whole unit when the store
// reports a compare-and-write conflict. Units must therefore be safe to run
// again from scratch.
func (e *Engine) Run(ctx context.Context, key string, unit Unit) (*models.MovementResult, error) {
	start := time.Now()
	defer e.metrics.ObserveReconcile(start)

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		var result *models.MovementResult
		err := e.tx.RunInTx(ctx, key, func(ctx context.Context, s store.Store) error {
			var err error
			result, err = unit(ctx, s)
			return err
		})
		if err == nil {
			e.count(result)
			return result, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, err
		}

		lastErr = err
		e.metrics.IncConflictRetry()
		e.logger.WarnContext(ctx, "reconciliation conflict, retrying",
			"key", key,
			"attempt", attempt,
			"error", err,
		)
		if attempt == e.maxAttempts {
			break
		}
		if err := sleep(ctx, time.Duration(attempt)*e.backoff); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "reconciliation aborted")
		}
	}
	return nil, dErrors.Wrap(lastErr, dErrors.CodeConflictRetryExhausted,
		fmt.Sprintf("reconciliation still conflicting after %d attempts", e.maxAttempts))
}

func (e *Engine) count(result *models.MovementResult) {
	if result == nil || result.Replayed {
		return
	}
	if result.Counterpart != nil {
		e.metrics.IncPairResolved()
	}
	if result.Register != nil && result.Register.Resolution == models.ResolutionUnmatched {
		e.metrics.IncUnmatched()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ReconcileIn settles reg, which must already be stored with its current
// Version, using s. Call it inside a unit keyed by the register's person.
func (e *Engine) ReconcileIn(ctx context.Context, s store.Store, reg *models.Register) (*models.MovementResult, error) {
	result := &models.MovementResult{Register: reg}
	if !reg.Reconcilable() || reg.IsResolved || reg.Resolution != models.ResolutionOpen {
		return result, nil
	}
	ok, err := confirmed(ctx, s, reg)
	if err != nil || !ok {
		return result, err
	}

	if !reg.Kind.IsClosing() {
		return result, nil
	}
	return result, e.close(ctx, s, reg, result)
}

func (e *Engine) close(ctx context.Context, s store.Store, reg *models.Register, result *models.MovementResult) error {
	counters, err := s.FindRegisters(ctx, counterFilter(reg))
	if err != nil {
		return err
	}
	if len(counters) == 0 {
		reg.Resolution = models.ResolutionUnmatched
		if err := s.UpdateRegister(ctx, reg); err != nil {
			return err
		}
		e.logger.InfoContext(ctx, "closing register has no counter",
			"register_id", reg.ID.String(),
			"person_id", reg.PersonID.String(),
			"kind", string(reg.Kind),
		)
		return nil
	}

	counter := counters[0]
	link(counter, reg)
	if err := s.ResolvePair(ctx, counter, reg); err != nil {
		return err
	}
	result.Counterpart = counter
	e.logger.InfoContext(ctx, "registers paired",
		"register_id", reg.ID.String(),
		"counter_id", counter.ID.String(),
		"person_id", reg.PersonID.String(),
	)
	return nil
}

// counterFilter selects the most recent open opening at or before the
// closing time. Equal times fall back to the later createdAt.
func counterFilter(reg *models.Register) store.RegisterFilter {
	personID := *reg.PersonID
	excl := reg.ID
	return store.RegisterFilter{
		PersonID:            &personID,
		Kinds:               models.OpeningKinds,
		Resolved:            store.Bool(false),
		Resolutions:         []models.Resolution{models.ResolutionOpen},
		ExcludeDenied:       true,
		ExcludeUnauthorized: true,
		ConfirmedOnly:       true,
		ExcludeID:           &excl,
		To:                  reg.Time,
		Sort:                store.SortTimeDesc,
		Limit:               1,
	}
}

func link(counter, closing *models.Register) {
	cid, rid := counter.ID, closing.ID
	counter.IsResolved, closing.IsResolved = true, true
	counter.Resolution, closing.Resolution = models.ResolutionPaired, models.ResolutionPaired
	counter.ResolvedWith = &rid
	closing.ResolvedWith = &cid
}

func confirmed(ctx context.Context, s store.Reader, reg *models.Register) (bool, error) {
	if reg.ScopeKind != models.ScopeManifest {
		return true, nil
	}
	m, err := s.FindManifest(ctx, id.ManifestID(reg.ScopeID))
	if err != nil {
		return false, err
	}
	return m.Confirmed(), nil
}
