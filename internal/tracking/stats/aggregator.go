// Package stats computes dashboard statistics for a set of register scopes.
package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"seanav/internal/tracking/metrics"
	"seanav/internal/tracking/models"
	"seanav/internal/tracking/store"
	id "seanav/pkg/domain"
	pstrings "seanav/pkg/platform/strings"
)

// HistoryDays is the number of daily buckets per direction.
const HistoryDays = 7

// historyWindow is fetched once and bucketed in memory.
const historyWindow = 8 * 24 * time.Hour

// Aggregator is read-only and safe for concurrent use.
type Aggregator struct {
	reader  store.Reader
	loc     *time.Location
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Aggregator)

// WithLocation sets the timezone that defines day boundaries.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

func New(reader store.Reader, opts ...Option) *Aggregator {
	a := &Aggregator{reader: reader, loc: time.UTC, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Compute builds the report for registers whose scope is in scopeIDs. An
// empty scope set yields zero counts and empty buckets.
func (a *Aggregator) Compute(ctx context.Context, scopeIDs []uuid.UUID, now time.Time) (*models.StatisticsReport, error) {
	start := time.Now()
	defer a.metrics.ObserveStatistics(start)

	now = now.In(a.loc)
	report := &models.StatisticsReport{GeneratedAt: now}
	if len(scopeIDs) == 0 {
		report.WeeklyHistory = a.bucket(nil, now)
		return report, nil
	}

	var (
		incomplete []*models.Register
		window     []*models.Register
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		incomplete, err = a.reader.FindRegisters(gctx, store.OutstandingFilter(scopeIDs))
		return err
	})
	g.Go(func() error {
		var err error
		window, err = a.reader.FindRegisters(gctx, store.RegisterFilter{
			ScopeIDs:            scopeIDs,
			ExcludeDenied:       true,
			ExcludeUnauthorized: true,
			ConfirmedOnly:       true,
			From:                now.Add(-historyWindow),
			To:                  now,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range pstrings.DedupeBy(incomplete, personKey) {
		switch r.PersonCategory {
		case models.CategoryStaff:
			report.StaffCount++
		case models.CategoryContractor:
			report.ContractorCount++
		case models.CategoryVisitor:
			report.VisitCount++
		}
	}
	// The window keeps denied registers for the history; they never count as unmatched.
	for _, r := range window {
		if !r.IsDenied && r.Kind.IsClosing() && r.Resolution == models.ResolutionUnmatched {
			report.UnmatchedDepartCount++
		}
	}
	report.WeeklyHistory = a.bucket(window, now)

	a.logger.DebugContext(ctx, "statistics computed",
		"scopes", len(scopeIDs),
		"incomplete", report.IncompleteTotal(),
		"window_registers", len(window),
	)
	return report, nil
}

func personKey(r *models.Register) id.PersonID {
	if r.PersonID == nil {
		return id.PersonID{}
	}
	return *r.PersonID
}

// bucket counts openings and closings per local day. Bucket 0 is
// [startOfDay(now), now); bucket i covers the whole day i days earlier.
func (a *Aggregator) bucket(regs []*models.Register, now time.Time) models.WeeklyHistory {
	sod := StartOfDay(now)
	h := models.WeeklyHistory{
		Entry:  make([]models.HistoryPoint, HistoryDays),
		Depart: make([]models.HistoryPoint, HistoryDays),
	}
	for i := range HistoryDays {
		lower := sod.AddDate(0, 0, -i)
		upper := sod.AddDate(0, 0, -i+1)
		if i == 0 {
			upper = now
		}
		h.Entry[i].Datetime = lower.UnixMilli()
		h.Depart[i].Datetime = lower.UnixMilli()
		for _, r := range regs {
			if r.Time.Before(lower) || !r.Time.Before(upper) {
				continue
			}
			switch {
			case r.Kind.IsOpening():
				h.Entry[i].Count++
			case r.Kind.IsClosing():
				h.Depart[i].Count++
			}
		}
	}
	return h
}

// StartOfDay is midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
