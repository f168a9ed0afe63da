package service

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"seanav/internal/tracking/models"
	"seanav/internal/tracking/store"
	id "seanav/pkg/domain"
	dErrors "seanav/pkg/domain-errors"
	"seanav/pkg/requestcontext"
)

// GetStatistics computes the dashboard report for a company, sector or
// itinerary. A zero now means the request time.
func (s *Service) GetStatistics(ctx context.Context, ref models.ScopeRef, now time.Time) (_ *models.StatisticsReport, err error) {
	ctx, span := s.startSpan(ctx, "GetStatistics")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("scope_kind", string(ref.Kind)), attribute.String("scope_id", ref.ID.String()))

	if now.IsZero() {
		now = requestcontext.Now(ctx)
	}
	ids, err := s.scopeIDs(ctx, ref)
	if err != nil {
		return nil, err
	}
	report, err := s.stats.Compute(ctx, ids, now)
	if err != nil {
		return nil, translate(err, "scope not found", "failed to compute statistics")
	}
	return report, nil
}

// ListOutstanding returns the open openings in scope, newest first with ties
// broken by id. Unmatched closings are appended to the set on request.
func (s *Service) ListOutstanding(ctx context.Context, ref models.ScopeRef, filter models.OutstandingFilter) (_ []*models.Register, err error) {
	ctx, span := s.startSpan(ctx, "ListOutstanding")
	defer func() { endSpan(span, err) }()

	ids, err := s.scopeIDs(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*models.Register{}, nil
	}

	f := store.OutstandingFilter(ids)
	f.Category = filter.Category
	f.From, f.To = filter.From, filter.To
	out, err := s.store.FindRegisters(ctx, f)
	if err != nil {
		return nil, translate(err, "scope not found", "failed to list outstanding registers")
	}

	if filter.IncludeUnmatched {
		unmatched, err := s.store.FindRegisters(ctx, store.RegisterFilter{
			ScopeIDs:            ids,
			Kinds:               models.ClosingKinds,
			Resolved:            store.Bool(false),
			Resolutions:         []models.Resolution{models.ResolutionUnmatched},
			Category:            filter.Category,
			ExcludeDenied:       true,
			ExcludeUnauthorized: true,
			ConfirmedOnly:       true,
			From:                filter.From,
			To:                  filter.To,
		})
		if err != nil {
			return nil, translate(err, "scope not found", "failed to list unmatched registers")
		}
		out = append(out, unmatched...)
	}

	sortNewestFirst(out)
	if out == nil {
		out = []*models.Register{}
	}
	return out, nil
}

// ListRegisters returns every register in scope, newest first.
func (s *Service) ListRegisters(ctx context.Context, ref models.ScopeRef) (_ []*models.Register, err error) {
	ctx, span := s.startSpan(ctx, "ListRegisters")
	defer func() { endSpan(span, err) }()

	ids, err := s.scopeIDs(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*models.Register{}, nil
	}
	out, err := s.store.FindRegisters(ctx, store.RegisterFilter{ScopeIDs: ids})
	if err != nil {
		return nil, translate(err, "scope not found", "failed to list registers")
	}
	sortNewestFirst(out)
	if out == nil {
		out = []*models.Register{}
	}
	return out, nil
}

func sortNewestFirst(regs []*models.Register) {
	slices.SortStableFunc(regs, func(a, b *models.Register) int {
		if c := b.Time.Compare(a.Time); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}

// scopeIDs expands a statistics scope into register scope ids: a company
// into its sectors, an itinerary into its manifests.
func (s *Service) scopeIDs(ctx context.Context, ref models.ScopeRef) ([]uuid.UUID, error) {
	if ref.ID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "scope id is required")
	}
	switch ref.Kind {
	case models.StatsScopeSector:
		if _, err := s.store.FindSector(ctx, id.SectorID(ref.ID)); err != nil {
			return nil, translate(err, "sector not found", "failed to load sector")
		}
		return []uuid.UUID{ref.ID}, nil

	case models.StatsScopeCompany:
		companyID := id.CompanyID(ref.ID)
		if _, err := s.store.FindCompany(ctx, companyID); err != nil {
			return nil, translate(err, "company not found", "failed to load company")
		}
		sectors, err := s.store.ListSectorsByCompany(ctx, companyID)
		if err != nil {
			return nil, translate(err, "company not found", "failed to list sectors")
		}
		ids := make([]uuid.UUID, 0, len(sectors))
		for _, sec := range sectors {
			ids = append(ids, uuid.UUID(sec.ID))
		}
		return ids, nil

	case models.StatsScopeItinerary:
		itineraryID := id.ItineraryID(ref.ID)
		if _, err := s.store.FindItinerary(ctx, itineraryID); err != nil {
			return nil, translate(err, "itinerary not found", "failed to load itinerary")
		}
		manifests, err := s.store.ListManifestsByItinerary(ctx, itineraryID)
		if err != nil {
			return nil, translate(err, "itinerary not found", "failed to list manifests")
		}
		ids := make([]uuid.UUID, 0, len(manifests))
		for _, m := range manifests {
			ids = append(ids, uuid.UUID(m.ID))
		}
		return ids, nil

	default:
		return nil, dErrors.New(dErrors.CodeValidation, "unknown scope: "+string(ref.Kind))
	}
}
