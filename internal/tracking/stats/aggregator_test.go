package stats

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"seanav/internal/tracking/models"
	"seanav/internal/tracking/store"
	id "seanav/pkg/domain"
)

type AggregatorSuite struct {
	suite.Suite
	ctx    context.Context
	store  *store.InMemory
	agg    *Aggregator
	loc    *time.Location
	now    time.Time
	sector id.SectorID
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorSuite))
}

func (s *AggregatorSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
	s.loc = time.FixedZone("CLT", -4*3600)
	s.agg = New(s.store, WithLocation(s.loc))
	s.now = time.Date(2024, 5, 10, 15, 0, 0, 0, s.loc)
	s.sector = id.NewSectorID()
}

func (s *AggregatorSuite) scopes() []uuid.UUID {
	return store.UUIDs(s.sector)
}

func (s *AggregatorSuite) add(person id.PersonID, cat models.Category, kind models.Kind, at time.Time, mutate ...func(*models.Register)) *models.Register {
	r := &models.Register{
		ID:             id.NewRegisterID(),
		PersonID:       &person,
		ScopeKind:      models.ScopeSector,
		ScopeID:        uuid.UUID(s.sector),
		Kind:           kind,
		Time:           at,
		PersonCategory: cat,
		CreatedAt:      at,
	}
	for _, m := range mutate {
		m(r)
	}
	s.Require().NoError(s.store.CreateRegister(s.ctx, r))
	return r
}

// =============================================================================
// Incomplete counts
// =============================================================================

func (s *AggregatorSuite) TestIncompleteCountsByCategoryDedupedByPerson() {
	staff := id.NewPersonID()
	s.add(staff, models.CategoryStaff, models.KindEntry, s.now.Add(-3*time.Hour))
	s.add(staff, models.CategoryStaff, models.KindEntry, s.now.Add(-2*time.Hour))
	s.add(id.NewPersonID(), models.CategoryContractor, models.KindEntry, s.now.Add(-time.Hour))
	s.add(id.NewPersonID(), models.CategoryVisitor, models.KindCheckin, s.now.Add(-time.Hour))

	report, err := s.agg.Compute(s.ctx, s.scopes(), s.now)
	s.Require().NoError(err)
	s.Equal(1, report.StaffCount)
	s.Equal(1, report.ContractorCount)
	s.Equal(1, report.VisitCount)
	s.Equal(3, report.IncompleteTotal())
}

func (s *AggregatorSuite) TestIncompleteExcludesSettledAndBypassedRegisters() {
	s.add(id.NewPersonID(), models.CategoryStaff, models.KindEntry, s.now.Add(-time.Hour), func(r *models.Register) {
		r.IsResolved = true
		r.Resolution = models.ResolutionPaired
	})
	s.add(id.NewPersonID(), models.CategoryStaff, models.KindEntry, s.now.Add(-time.Hour), func(r *models.Register) {
		r.IsDenied = true
		r.DeniedReason = "expired badge"
	})
	s.add(id.NewPersonID(), models.CategoryStaff, models.KindEntry, s.now.Add(-time.Hour), func(r *models.Register) {
		r.PersonID = nil
		r.IsUnauthorized = true
		r.UnauthorizedRut = "1-9"
	})
	s.add(id.NewPersonID(), models.CategoryStaff, models.KindEntry, s.now.Add(-time.Hour), func(r *models.Register) {
		r.ScopeID = uuid.New()
	})

	report, err := s.agg.Compute(s.ctx, s.scopes(), s.now)
	s.Require().NoError(err)
	s.Zero(report.IncompleteTotal())
}

func (s *AggregatorSuite) TestUnconfirmedManifestIsIgnored() {
	person := &models.Person{ID: id.NewPersonID(), Name: "Ana", DocumentID: "P1", Category: models.CategoryVisitor}
	manifest := &models.Manifest{ID: id.NewManifestID(), ItineraryID: id.NewItineraryID(), ReservationStatus: 0, PersonID: person.ID}
	reg := &models.Register{
		ID:             id.NewRegisterID(),
		PersonID:       &person.ID,
		ScopeKind:      models.ScopeManifest,
		ScopeID:        uuid.UUID(manifest.ID),
		Kind:           models.KindCheckin,
		Time:           s.now.Add(-time.Hour),
		PersonCategory: models.CategoryVisitor,
	}
	manifest.RegisterID = reg.ID
	s.Require().NoError(s.store.CreateManifest(s.ctx, models.ManifestBundle{Manifest: manifest, Person: person, Register: reg}))

	report, err := s.agg.Compute(s.ctx, store.UUIDs(manifest.ID), s.now)
	s.Require().NoError(err)
	s.Zero(report.VisitCount)
	s.Zero(report.WeeklyHistory.Entry[0].Count)
}

// =============================================================================
// Weekly history
// =============================================================================

func (s *AggregatorSuite) TestWeeklyBuckets() {
	sod := time.Date(2024, 5, 10, 0, 0, 0, 0, s.loc)
	p := id.NewPersonID()
	s.add(p, models.CategoryStaff, models.KindEntry, sod.Add(10*time.Hour))
	s.add(p, models.CategoryStaff, models.KindDepart, sod)
	s.add(p, models.CategoryStaff, models.KindDepart, s.now)
	s.add(p, models.CategoryStaff, models.KindEntry, sod.Add(-time.Minute))
	s.add(p, models.CategoryStaff, models.KindEntry, sod.AddDate(0, 0, -6))
	s.add(p, models.CategoryStaff, models.KindEntry, sod.AddDate(0, 0, -6).Add(-time.Minute))
	s.add(p, models.CategoryStaff, models.KindEntry, sod.AddDate(0, 0, -3).Add(time.Hour), func(r *models.Register) {
		r.IsDenied = true
		r.DeniedReason = "no induction"
	})

	report, err := s.agg.Compute(s.ctx, s.scopes(), s.now)
	s.Require().NoError(err)

	h := report.WeeklyHistory
	s.Require().Len(h.Entry, HistoryDays)
	s.Require().Len(h.Depart, HistoryDays)
	s.Equal(sod.UnixMilli(), h.Entry[0].Datetime)
	s.Equal(sod.AddDate(0, 0, -6).UnixMilli(), h.Depart[6].Datetime)

	s.Equal(1, h.Entry[0].Count)
	s.Equal(1, h.Depart[0].Count, "a register exactly at now falls outside today's bucket")
	s.Equal(1, h.Entry[1].Count)
	s.Equal(1, h.Entry[3].Count, "denied registers still show up in the history")
	s.Equal(1, h.Entry[6].Count)
}

func (s *AggregatorSuite) TestDeniedRegistersCountInHistoryOnly() {
	s.add(id.NewPersonID(), models.CategoryStaff, models.KindEntry, s.now.Add(-time.Hour), func(r *models.Register) {
		r.IsDenied = true
		r.DeniedReason = "expired badge"
	})
	s.add(id.NewPersonID(), models.CategoryStaff, models.KindDepart, s.now.Add(-time.Hour), func(r *models.Register) {
		r.IsDenied = true
		r.DeniedReason = "expired badge"
		r.Resolution = models.ResolutionUnmatched
	})

	report, err := s.agg.Compute(s.ctx, s.scopes(), s.now)
	s.Require().NoError(err)
	s.Equal(1, report.WeeklyHistory.Entry[0].Count)
	s.Equal(1, report.WeeklyHistory.Depart[0].Count)
	s.Zero(report.IncompleteTotal())
	s.Zero(report.UnmatchedDepartCount)
}

func (s *AggregatorSuite) TestUnknownCategoryIsNotCounted() {
	s.add(id.NewPersonID(), "", models.KindEntry, s.now.Add(-time.Hour))
	s.add(id.NewPersonID(), models.Category("crew"), models.KindEntry, s.now.Add(-time.Hour))
	s.add(id.NewPersonID(), models.CategoryVisitor, models.KindEntry, s.now.Add(-time.Hour))

	report, err := s.agg.Compute(s.ctx, s.scopes(), s.now)
	s.Require().NoError(err)
	s.Equal(1, report.VisitCount)
	s.Equal(1, report.IncompleteTotal())
	s.Equal(3, report.WeeklyHistory.Entry[0].Count)
}

func (s *AggregatorSuite) TestDayBoundariesFollowLocation() {
	p := id.NewPersonID()
	// 02:00 UTC on the 10th is still the 9th in CLT.
	s.add(p, models.CategoryStaff, models.KindEntry, time.Date(2024, 5, 10, 2, 0, 0, 0, time.UTC))

	report, err := s.agg.Compute(s.ctx, s.scopes(), s.now)
	s.Require().NoError(err)
	s.Equal(0, report.WeeklyHistory.Entry[0].Count)
	s.Equal(1, report.WeeklyHistory.Entry[1].Count)

	utc, err := New(s.store).Compute(s.ctx, s.scopes(), s.now)
	s.Require().NoError(err)
	s.Equal(1, utc.WeeklyHistory.Entry[0].Count)
}

func (s *AggregatorSuite) TestUnmatchedDepartCount() {
	p := id.NewPersonID()
	s.add(p, models.CategoryStaff, models.KindDepart, s.now.Add(-time.Hour), func(r *models.Register) {
		r.Resolution = models.ResolutionUnmatched
	})
	s.add(p, models.CategoryStaff, models.KindDepart, s.now.Add(-2*time.Hour), func(r *models.Register) {
		r.IsResolved = true
		r.Resolution = models.ResolutionPaired
	})

	report, err := s.agg.Compute(s.ctx, s.scopes(), s.now)
	s.Require().NoError(err)
	s.Equal(1, report.UnmatchedDepartCount)
}

func (s *AggregatorSuite) TestEmptyScopeSet() {
	s.add(id.NewPersonID(), models.CategoryStaff, models.KindEntry, s.now.Add(-time.Hour))

	report, err := s.agg.Compute(s.ctx, nil, s.now)
	s.Require().NoError(err)
	s.Zero(report.IncompleteTotal())
	s.Len(report.WeeklyHistory.Entry, HistoryDays)
	s.Zero(report.WeeklyHistory.Entry[0].Count)
}

func (s *AggregatorSuite) TestStartOfDay() {
	t := time.Date(2024, 5, 10, 23, 59, 59, 0, s.loc)
	s.Equal(time.Date(2024, 5, 10, 0, 0, 0, 0, s.loc), StartOfDay(t))
}
