package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"seanav/internal/tracking/models"
	"seanav/internal/tracking/notify"
	"seanav/internal/tracking/reconcile"
	"seanav/internal/tracking/seaport"
	"seanav/internal/tracking/store"
	id "seanav/pkg/domain"
	dErrors "seanav/pkg/domain-errors"
	"seanav/pkg/platform/sentinel"
	"seanav/pkg/requestcontext"
)

type recordingNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recordingNotifier) Publish(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recordingNotifier) events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Event, 0, len(r.got))
	for _, n := range r.got {
		out = append(out, n.Event)
	}
	return out
}

// contendedTx reports a lock conflict for the first conflicts calls.
type contendedTx struct {
	store.TxRunner
	conflicts int
	keys      []string
}

func (c *contendedTx) RunInTx(ctx context.Context, key string, fn func(ctx context.Context, s store.Store) error) error {
	c.keys = append(c.keys, key)
	if len(c.keys) <= c.conflicts {
		return fmt.Errorf("lock %s: %w", key, sentinel.ErrConflict)
	}
	return c.TxRunner.RunInTx(ctx, key, fn)
}

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	store    *store.InMemory
	notifier *recordingNotifier
	service  *Service

	company   *models.Company
	sector    *models.Sector
	staff     *models.Person
	valpo     *models.Seaport
	coquimbo  *models.Seaport
	itinerary *models.Itinerary
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = store.NewInMemory()
	s.notifier = &recordingNotifier{}
	s.service = New(s.store, store.NewShardedTx(s.store), WithNotifier(s.notifier))

	s.company = &models.Company{ID: id.NewCompanyID(), Name: "Naviera"}
	s.Require().NoError(s.store.CreateCompany(s.ctx, s.company))
	s.sector = &models.Sector{ID: id.NewSectorID(), CompanyID: s.company.ID, Name: "Muelle"}
	s.Require().NoError(s.store.CreateSector(s.ctx, s.sector))
	s.staff = &models.Person{ID: id.NewPersonID(), Name: "Pedro Soto", Rut: "11111111-1", Category: models.CategoryStaff, Active: true}
	s.Require().NoError(s.store.CreatePerson(s.ctx, s.staff))

	s.valpo = &models.Seaport{ID: id.NewSeaportID(), LocationID: 1, LocationName: "Valparaiso"}
	s.coquimbo = &models.Seaport{ID: id.NewSeaportID(), LocationID: 2, LocationName: "Coquimbo"}
	s.Require().NoError(s.store.CreateSeaport(s.ctx, s.valpo))
	s.Require().NoError(s.store.CreateSeaport(s.ctx, s.coquimbo))
	s.itinerary = s.newItinerary(7, true)
}

func (s *ServiceSuite) newItinerary(refID int64, active bool) *models.Itinerary {
	it := &models.Itinerary{
		ID:         id.NewItineraryID(),
		RefID:      refID,
		Name:       "Ruta Norte",
		DepartAt:   s.now,
		ArrivalAt:  s.now.Add(48 * time.Hour),
		Active:     active,
		SeaportIDs: []id.SeaportID{s.valpo.ID, s.coquimbo.ID},
	}
	s.Require().NoError(s.store.CreateItinerary(s.ctx, it))
	return it
}

func (s *ServiceSuite) manifestRequest(onboard bool) models.CreateManifestRequest {
	return models.CreateManifestRequest{
		ItineraryRefID:  7,
		ReservationID:   5001,
		TicketID:        "T-1",
		OriginName:      "Valp",
		DestinationName: "Coqu",
		Person: models.PersonAttrs{
			Name:         "Ana Rojas",
			DocumentID:   "P123",
			DocumentType: "Pasaporte",
			Nationality:  "CL",
			Sex:          "F",
			Resident:     true,
		},
		IsOnboard: onboard,
	}
}

func (s *ServiceSuite) sectorMovement(kind models.Kind, at time.Time) models.RecordMovementRequest {
	return models.RecordMovementRequest{
		Rut:   s.staff.Rut,
		Scope: models.RegisterScope{Kind: models.ScopeSector, ID: uuid.UUID(s.sector.ID)},
		Kind:  kind,
		Time:  at,
	}
}

func (s *ServiceSuite) manifestMovement(m *models.Manifest, kind models.Kind, at time.Time) models.RecordMovementRequest {
	return models.RecordMovementRequest{
		Scope: models.RegisterScope{Kind: models.ScopeManifest, ID: uuid.UUID(m.ID)},
		Kind:  kind,
		Time:  at,
	}
}

func (s *ServiceSuite) reload(rid id.RegisterID) *models.Register {
	r, err := s.store.FindRegister(s.ctx, rid)
	s.Require().NoError(err)
	return r
}

// =============================================================================
// CreateManifest
// =============================================================================

func (s *ServiceSuite) TestCreateManifestOnboardThenCheckout() {
	m, err := s.service.CreateManifest(s.ctx, s.manifestRequest(true))
	s.Require().NoError(err)
	s.Equal(s.valpo.ID, m.OriginID)
	s.Equal(s.coquimbo.ID, m.DestinationID)
	s.Equal(models.ReservationConfirmed, m.ReservationStatus)

	initial := s.reload(m.RegisterID)
	s.Equal(models.KindCheckin, initial.Kind)
	s.Equal(s.now, initial.Time)
	s.Require().NotNil(initial.SeaportCheckin)
	s.Equal(s.valpo.ID, *initial.SeaportCheckin)
	s.Equal(models.StateOpen, initial.State())

	res, err := s.service.RecordMovement(s.ctx, s.manifestMovement(m, models.KindCheckout, s.now.Add(time.Hour)))
	s.Require().NoError(err)
	s.Require().NotNil(res.Counterpart)
	s.Equal(initial.ID, res.Counterpart.ID)

	initial = s.reload(initial.ID)
	closing := s.reload(res.Register.ID)
	s.Equal(models.StateResolved, initial.State())
	s.Equal(models.StateResolved, closing.State())
	s.Equal(closing.ID, *initial.ResolvedWith)
	s.Equal(initial.ID, *closing.ResolvedWith)

	s.Equal([]notify.Event{
		notify.EventManifestCreated,
		notify.EventRegisterCreated,
		notify.EventRegisterCreated,
		notify.EventRegisterResolved,
	}, s.notifier.events())
}

func (s *ServiceSuite) TestCreateManifestInactiveItineraryLeavesNothing() {
	inactive := s.newItinerary(8, false)
	req := s.manifestRequest(true)
	req.ItineraryRefID = 8

	_, err := s.service.CreateManifest(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	manifests, err := s.store.ListManifestsByItinerary(s.ctx, inactive.ID)
	s.Require().NoError(err)
	s.Empty(manifests)
	regs, err := s.store.FindRegisters(s.ctx, store.RegisterFilter{})
	s.Require().NoError(err)
	s.Empty(regs)
	s.Empty(s.notifier.events())
}

func (s *ServiceSuite) TestCreateManifestFailures() {
	s.Run("unknown itinerary", func() {
		req := s.manifestRequest(true)
		req.ItineraryRefID = 999
		_, err := s.service.CreateManifest(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unresolvable seaport", func() {
		req := s.manifestRequest(true)
		req.DestinationName = "Arica"
		_, err := s.service.CreateManifest(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeResolutionFailure))
	})

	s.Run("missing passenger document", func() {
		req := s.manifestRequest(true)
		req.Person.DocumentID = " "
		_, err := s.service.CreateManifest(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	manifests, err := s.store.ListManifestsByItinerary(s.ctx, s.itinerary.ID)
	s.Require().NoError(err)
	s.Empty(manifests)
}

func (s *ServiceSuite) TestCreateManifestRetriesLockConflict() {
	tx := &contendedTx{TxRunner: store.NewShardedTx(s.store), conflicts: 1}
	s.service = New(s.store, tx,
		WithNotifier(s.notifier),
		WithEngine(reconcile.New(tx, reconcile.WithBackoff(0))),
	)

	m, err := s.service.CreateManifest(s.ctx, s.manifestRequest(true))
	s.Require().NoError(err)
	s.Equal([]string{store.ItineraryKey(s.itinerary.ID), store.ItineraryKey(s.itinerary.ID)}, tx.keys)

	manifests, err := s.store.ListManifestsByItinerary(s.ctx, s.itinerary.ID)
	s.Require().NoError(err)
	s.Require().Len(manifests, 1)
	s.Equal(m.ID, manifests[0].ID)
	s.Equal(models.KindCheckin, s.reload(m.RegisterID).Kind)
}

func (s *ServiceSuite) TestCreateManifestLockConflictExhausted() {
	tx := &contendedTx{TxRunner: store.NewShardedTx(s.store), conflicts: 10}
	s.service = New(s.store, tx,
		WithNotifier(s.notifier),
		WithEngine(reconcile.New(tx, reconcile.WithBackoff(0), reconcile.WithMaxAttempts(3))),
	)

	_, err := s.service.CreateManifest(s.ctx, s.manifestRequest(true))
	s.True(dErrors.HasCode(err, dErrors.CodeConflictRetryExhausted))
	s.ErrorIs(err, sentinel.ErrConflict)
	s.Len(tx.keys, 3)

	manifests, err := s.store.ListManifestsByItinerary(s.ctx, s.itinerary.ID)
	s.Require().NoError(err)
	s.Empty(manifests)
	s.Empty(s.notifier.events())
}

func (s *ServiceSuite) TestCreateManifestSeaportOutsideItinerary() {
	other := &models.Seaport{ID: id.NewSeaportID(), LocationName: "Arica"}
	s.Require().NoError(s.store.CreateSeaport(s.ctx, other))

	req := s.manifestRequest(true)
	req.OriginName = "Arica"
	_, err := s.service.CreateManifest(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeResolutionFailure))
}

func (s *ServiceSuite) TestAmbiguousSeaportFailsClosed() {
	s.Require().NoError(s.store.CreateSeaport(s.ctx, &models.Seaport{ID: id.NewSeaportID(), LocationName: "Valdivia"}))
	it := &models.Itinerary{ID: id.NewItineraryID(), RefID: 9, Name: "Sin ruta", Active: true}
	s.Require().NoError(s.store.CreateItinerary(s.ctx, it))
	svc := New(s.store, store.NewShardedTx(s.store),
		WithResolver(seaport.New(s.store, seaport.WithAmbiguityPolicy(seaport.PolicyFailClosed))))

	req := s.manifestRequest(true)
	req.ItineraryRefID = 0
	req.ItineraryID = it.ID
	req.OriginName = "Val"
	_, err := svc.CreateManifest(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeAmbiguousMatch))
}

func (s *ServiceSuite) TestPendingRegisterIsUpgradedOnCheckin() {
	m, err := s.service.CreateManifest(s.ctx, s.manifestRequest(false))
	s.Require().NoError(err)
	pending := s.reload(m.RegisterID)
	s.Equal(models.KindPending, pending.Kind)
	s.Nil(pending.SeaportCheckin)

	req := s.manifestMovement(m, models.KindCheckin, s.now.Add(time.Hour))
	req.SeaportName = "valparaíso"
	res, err := s.service.RecordMovement(s.ctx, req)
	s.Require().NoError(err)
	s.Equal(pending.ID, res.Register.ID)

	upgraded := s.reload(pending.ID)
	s.Equal(models.KindCheckin, upgraded.Kind)
	s.True(upgraded.IsOnboard)
	s.Equal(s.valpo.ID, *upgraded.SeaportCheckin)

	regs, err := s.store.FindRegisters(s.ctx, store.RegisterFilter{ScopeIDs: store.UUIDs(m.ID)})
	s.Require().NoError(err)
	s.Len(regs, 1)
}

func (s *ServiceSuite) TestUnconfirmedManifestIsNotReconciled() {
	req := s.manifestRequest(true)
	status := 2
	req.ReservationStatus = &status
	m, err := s.service.CreateManifest(s.ctx, req)
	s.Require().NoError(err)

	res, err := s.service.RecordMovement(s.ctx, s.manifestMovement(m, models.KindCheckout, s.now.Add(time.Hour)))
	s.Require().NoError(err)
	s.Nil(res.Counterpart)
	s.False(s.reload(m.RegisterID).IsResolved)
}

// =============================================================================
// RecordMovement
// =============================================================================

func (s *ServiceSuite) TestSectorEntryAndDepartPair() {
	entry, err := s.service.RecordMovement(s.ctx, s.sectorMovement(models.KindEntry, s.now.Add(-2*time.Hour)))
	s.Require().NoError(err)
	s.Equal(models.CategoryStaff, entry.Register.PersonCategory)

	depart, err := s.service.RecordMovement(s.ctx, s.sectorMovement(models.KindDepart, s.now.Add(-time.Hour)))
	s.Require().NoError(err)
	s.Require().NotNil(depart.Counterpart)
	s.Equal(entry.Register.ID, depart.Counterpart.ID)
}

func (s *ServiceSuite) TestUnknownRutIsUnauthorized() {
	req := s.sectorMovement(models.KindEntry, s.now)
	req.Rut = "22222222-2"

	res, err := s.service.RecordMovement(s.ctx, req)
	s.Require().NoError(err)
	s.True(res.Register.IsUnauthorized)
	s.Equal("22222222-2", res.Register.UnauthorizedRut)
	s.Nil(res.Register.PersonID)

	out, err := s.service.ListOutstanding(s.ctx, models.ScopeRef{Kind: models.StatsScopeSector, ID: uuid.UUID(s.sector.ID)}, models.OutstandingFilter{})
	s.Require().NoError(err)
	s.Empty(out)
}

func (s *ServiceSuite) TestRecordMovementFailures() {
	s.Run("unknown sector", func() {
		req := s.sectorMovement(models.KindEntry, s.now)
		req.Scope.ID = uuid.New()
		_, err := s.service.RecordMovement(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown person id", func() {
		req := s.sectorMovement(models.KindEntry, s.now)
		pid := id.NewPersonID()
		req.PersonID = &pid
		_, err := s.service.RecordMovement(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("kind not valid for scope", func() {
		_, err := s.service.RecordMovement(s.ctx, s.sectorMovement(models.KindCheckin, s.now))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("denied without reason", func() {
		req := s.sectorMovement(models.KindEntry, s.now)
		req.IsDenied = true
		_, err := s.service.RecordMovement(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestManifestMovementForAnotherPerson() {
	m, err := s.service.CreateManifest(s.ctx, s.manifestRequest(true))
	s.Require().NoError(err)

	req := s.manifestMovement(m, models.KindCheckout, s.now.Add(time.Hour))
	req.PersonID = &s.staff.ID
	_, err = s.service.RecordMovement(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	req = s.manifestMovement(m, models.KindCheckout, s.now.Add(time.Hour))
	req.DocumentID = "OTHER"
	_, err = s.service.RecordMovement(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestCheckoutSeaportIsResolved() {
	m, err := s.service.CreateManifest(s.ctx, s.manifestRequest(true))
	s.Require().NoError(err)

	req := s.manifestMovement(m, models.KindCheckout, s.now.Add(time.Hour))
	req.SeaportName = "COQ"
	res, err := s.service.RecordMovement(s.ctx, req)
	s.Require().NoError(err)
	s.Require().NotNil(res.Register.SeaportCheckout)
	s.Equal(s.coquimbo.ID, *res.Register.SeaportCheckout)
}

func (s *ServiceSuite) TestIdempotencyKeyReplays() {
	req := s.sectorMovement(models.KindEntry, s.now)
	req.IdempotencyKey = "gate-7:0001"

	first, err := s.service.RecordMovement(s.ctx, req)
	s.Require().NoError(err)
	s.False(first.Replayed)

	second, err := s.service.RecordMovement(s.ctx, req)
	s.Require().NoError(err)
	s.True(second.Replayed)
	s.Equal(first.Register.ID, second.Register.ID)

	regs, err := s.store.FindRegisters(s.ctx, store.RegisterFilter{})
	s.Require().NoError(err)
	s.Len(regs, 1)
}

func (s *ServiceSuite) TestDeniedEntryNeverCountsAsIncomplete() {
	req := s.sectorMovement(models.KindEntry, s.now.Add(-time.Hour))
	req.IsDenied = true
	req.DeniedReason = "expired induction"
	_, err := s.service.RecordMovement(s.ctx, req)
	s.Require().NoError(err)

	depart, err := s.service.RecordMovement(s.ctx, s.sectorMovement(models.KindDepart, s.now.Add(-time.Minute)))
	s.Require().NoError(err)
	s.Nil(depart.Counterpart)

	report, err := s.service.GetStatistics(s.ctx, models.ScopeRef{Kind: models.StatsScopeSector, ID: uuid.UUID(s.sector.ID)}, time.Time{})
	s.Require().NoError(err)
	s.Zero(report.IncompleteTotal())
	s.Equal(1, report.WeeklyHistory.Entry[0].Count)
	s.Equal(1, report.UnmatchedDepartCount)
}

// =============================================================================
// Statistics and listings
// =============================================================================

func (s *ServiceSuite) TestStatisticsForCompany() {
	_, err := s.service.RecordMovement(s.ctx, s.sectorMovement(models.KindEntry, s.now.Add(-time.Hour)))
	s.Require().NoError(err)

	report, err := s.service.GetStatistics(s.ctx, models.ScopeRef{Kind: models.StatsScopeCompany, ID: uuid.UUID(s.company.ID)}, time.Time{})
	s.Require().NoError(err)
	s.Equal(1, report.StaffCount)
	s.Equal(1, report.WeeklyHistory.Entry[0].Count)
	s.Equal(s.now, report.GeneratedAt)
}

func (s *ServiceSuite) TestClosingWithoutOpeningCountsAsDepartOnly() {
	_, err := s.service.RecordMovement(s.ctx, s.sectorMovement(models.KindDepart, s.now.Add(-time.Hour)))
	s.Require().NoError(err)

	report, err := s.service.GetStatistics(s.ctx, models.ScopeRef{Kind: models.StatsScopeSector, ID: uuid.UUID(s.sector.ID)}, s.now)
	s.Require().NoError(err)
	s.Equal(1, report.WeeklyHistory.Depart[0].Count)
	s.Equal(1, report.UnmatchedDepartCount)
	s.Zero(report.IncompleteTotal())
}

func (s *ServiceSuite) TestStatisticsForItinerary() {
	_, err := s.service.CreateManifest(s.ctx, s.manifestRequest(true))
	s.Require().NoError(err)

	report, err := s.service.GetStatistics(s.ctx, models.ScopeRef{Kind: models.StatsScopeItinerary, ID: uuid.UUID(s.itinerary.ID)}, s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(1, report.VisitCount)
}

func (s *ServiceSuite) TestStatisticsUnknownScope() {
	_, err := s.service.GetStatistics(s.ctx, models.ScopeRef{Kind: models.StatsScopeCompany, ID: uuid.New()}, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.GetStatistics(s.ctx, models.ScopeRef{Kind: models.StatsScopeSector}, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestListOutstanding() {
	other := &models.Person{ID: id.NewPersonID(), Name: "Luis", Rut: "33333333-3", Category: models.CategoryContractor, Active: true}
	s.Require().NoError(s.store.CreatePerson(s.ctx, other))

	_, err := s.service.RecordMovement(s.ctx, s.sectorMovement(models.KindEntry, s.now.Add(-3*time.Hour)))
	s.Require().NoError(err)
	req := s.sectorMovement(models.KindEntry, s.now.Add(-time.Hour))
	req.Rut = other.Rut
	_, err = s.service.RecordMovement(s.ctx, req)
	s.Require().NoError(err)
	req = s.sectorMovement(models.KindDepart, s.now.Add(-30*time.Minute))
	req.Rut = "nobody"
	_, err = s.service.RecordMovement(s.ctx, req)
	s.Require().NoError(err)

	ref := models.ScopeRef{Kind: models.StatsScopeSector, ID: uuid.UUID(s.sector.ID)}
	first, err := s.service.ListOutstanding(s.ctx, ref, models.OutstandingFilter{})
	s.Require().NoError(err)
	s.Require().Len(first, 2)
	s.Equal(other.ID, *first[0].PersonID)

	second, err := s.service.ListOutstanding(s.ctx, ref, models.OutstandingFilter{})
	s.Require().NoError(err)
	s.Equal(first, second)

	staffOnly, err := s.service.ListOutstanding(s.ctx, ref, models.OutstandingFilter{Category: models.CategoryStaff})
	s.Require().NoError(err)
	s.Require().Len(staffOnly, 1)
	s.Equal(s.staff.ID, *staffOnly[0].PersonID)
}

func (s *ServiceSuite) TestListOutstandingIncludesUnmatched() {
	_, err := s.service.RecordMovement(s.ctx, s.sectorMovement(models.KindDepart, s.now.Add(-time.Hour)))
	s.Require().NoError(err)
	ref := models.ScopeRef{Kind: models.StatsScopeSector, ID: uuid.UUID(s.sector.ID)}

	without, err := s.service.ListOutstanding(s.ctx, ref, models.OutstandingFilter{})
	s.Require().NoError(err)
	s.Empty(without)

	with, err := s.service.ListOutstanding(s.ctx, ref, models.OutstandingFilter{IncludeUnmatched: true})
	s.Require().NoError(err)
	s.Require().Len(with, 1)
	s.Equal(models.ResolutionUnmatched, with[0].Resolution)
}

func (s *ServiceSuite) TestItineraryStatus() {
	m, err := s.service.CreateManifest(s.ctx, s.manifestRequest(true))
	s.Require().NoError(err)
	_, err = s.service.RecordMovement(s.ctx, s.manifestMovement(m, models.KindCheckout, s.now.Add(time.Hour)))
	s.Require().NoError(err)

	entries, err := s.service.ItineraryStatus(s.ctx, 7)
	s.Require().NoError(err)
	s.Equal([]models.ItineraryStatusEntry{
		{DocumentID: "P123", State: models.KindCheckin},
		{DocumentID: "P123", State: models.KindCheckout},
	}, entries)

	empty, err := s.service.ItineraryStatus(s.ctx, 404)
	s.Require().NoError(err)
	s.NotNil(empty)
	s.Empty(empty)
}

func (s *ServiceSuite) TestListRegisters() {
	_, err := s.service.RecordMovement(s.ctx, s.sectorMovement(models.KindEntry, s.now.Add(-2*time.Hour)))
	s.Require().NoError(err)
	_, err = s.service.RecordMovement(s.ctx, s.sectorMovement(models.KindDepart, s.now.Add(-time.Hour)))
	s.Require().NoError(err)

	regs, err := s.service.ListRegisters(s.ctx, models.ScopeRef{Kind: models.StatsScopeCompany, ID: uuid.UUID(s.company.ID)})
	s.Require().NoError(err)
	s.Require().Len(regs, 2)
	s.Equal(models.KindDepart, regs[0].Kind)
}

// =============================================================================
// Exports
// =============================================================================

func (s *ServiceSuite) TestTravelExport() {
	_, err := s.service.CreateManifest(s.ctx, s.manifestRequest(true))
	s.Require().NoError(err)

	export, err := s.service.ExportRows(s.ctx, models.ScopeRef{Kind: models.StatsScopeItinerary, ID: uuid.UUID(s.itinerary.ID)})
	s.Require().NoError(err)
	s.Equal(TravelColumns, export.Header)
	s.Require().Len(export.Rows, 1)
	s.Equal([]string{
		"5001", "T-1", "Ana Rojas", "Si", "CL", "F", "Pasaporte", "P123", "Valparaiso", "Coquimbo", "Embarcado",
	}, export.Rows[0])
}

func (s *ServiceSuite) TestAccessExportJoinsDeparture() {
	_, err := s.service.RecordMovement(s.ctx, s.sectorMovement(models.KindEntry, time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)))
	s.Require().NoError(err)
	req := s.sectorMovement(models.KindDepart, time.Date(2024, 5, 10, 17, 30, 0, 0, time.UTC))
	req.Comments = "turno completo"
	_, err = s.service.RecordMovement(s.ctx, req)
	s.Require().NoError(err)

	export, err := s.service.ExportRows(s.ctx, models.ScopeRef{Kind: models.StatsScopeSector, ID: uuid.UUID(s.sector.ID)})
	s.Require().NoError(err)
	s.Equal(AccessColumns, export.Header)
	s.Require().Len(export.Rows, 1)
	s.Equal([]string{
		"11111111-1", "Pedro Soto", "Empleado", "2024-05-10 08:00", "Muelle", "",
		"2024-05-10 17:30", "Muelle", "turno completo",
	}, export.Rows[0])
}
