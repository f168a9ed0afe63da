package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"seanav/internal/tracking/models"
	"seanav/internal/tracking/store"
	id "seanav/pkg/domain"
	dErrors "seanav/pkg/domain-errors"
	"seanav/pkg/platform/sentinel"
)

type EngineSuite struct {
	suite.Suite
	ctx    context.Context
	store  *store.InMemory
	engine *Engine
	base   time.Time
	sector id.SectorID
	person id.PersonID
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
	s.engine = New(store.NewShardedTx(s.store), WithBackoff(0))
	s.base = time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	s.sector = id.NewSectorID()
	s.person = id.NewPersonID()
}

func (s *EngineSuite) newRegister(kind models.Kind, at time.Time) *models.Register {
	person := s.person
	return &models.Register{
		ID:             id.NewRegisterID(),
		PersonID:       &person,
		ScopeKind:      models.ScopeSector,
		ScopeID:        uuid.UUID(s.sector),
		Kind:           kind,
		Time:           at,
		PersonCategory: models.CategoryStaff,
		CreatedAt:      time.Now(),
	}
}

// persistAndReconcile is the unit the service runs: store reg unless an
// earlier attempt already did, then reconcile the stored copy.
func (s *EngineSuite) persistAndReconcile(e *Engine, reg *models.Register) Unit {
	return func(ctx context.Context, st store.Store) (*models.MovementResult, error) {
		stored, err := st.FindRegister(ctx, reg.ID)
		if errors.Is(err, sentinel.ErrNotFound) {
			stored = reg.Clone()
			err = st.CreateRegister(ctx, stored)
		}
		if err != nil {
			return nil, err
		}
		return e.ReconcileIn(ctx, st, stored)
	}
}

func (s *EngineSuite) record(reg *models.Register) *models.MovementResult {
	res, err := s.engine.Run(s.ctx, store.PersonKey(*reg.PersonID), s.persistAndReconcile(s.engine, reg))
	s.Require().NoError(err)
	return res
}

func (s *EngineSuite) reload(rid id.RegisterID) *models.Register {
	r, err := s.store.FindRegister(s.ctx, rid)
	s.Require().NoError(err)
	return r
}

func (s *EngineSuite) outstanding() []*models.Register {
	out, err := s.store.FindRegisters(s.ctx, store.OutstandingFilter(nil))
	s.Require().NoError(err)
	return out
}

// =============================================================================
// Closings
// =============================================================================

func (s *EngineSuite) TestClosingPairsWithOpening() {
	entry := s.record(s.newRegister(models.KindEntry, s.base)).Register
	res := s.record(s.newRegister(models.KindDepart, s.base.Add(time.Hour)))

	s.Require().NotNil(res.Counterpart)
	s.Equal(entry.ID, res.Counterpart.ID)

	storedEntry := s.reload(entry.ID)
	storedDepart := s.reload(res.Register.ID)
	s.True(storedEntry.IsResolved)
	s.True(storedDepart.IsResolved)
	s.Equal(models.ResolutionPaired, storedEntry.Resolution)
	s.Equal(models.StateResolved, storedDepart.State())
	s.Equal(storedDepart.ID, *storedEntry.ResolvedWith)
	s.Equal(storedEntry.ID, *storedDepart.ResolvedWith)
	s.Empty(s.outstanding())
}

func (s *EngineSuite) TestClosingWithoutCounterIsUnmatched() {
	res := s.record(s.newRegister(models.KindDepart, s.base))

	s.Nil(res.Counterpart)
	stored := s.reload(res.Register.ID)
	s.False(stored.IsResolved)
	s.Equal(models.ResolutionUnmatched, stored.Resolution)
	s.Nil(stored.ResolvedWith)
}

func (s *EngineSuite) TestClosingIgnoresLaterOpenings() {
	entry := s.record(s.newRegister(models.KindEntry, s.base.Add(2*time.Hour))).Register
	res := s.record(s.newRegister(models.KindDepart, s.base.Add(time.Hour)))

	s.Nil(res.Counterpart)
	s.Equal(models.ResolutionUnmatched, res.Register.Resolution)
	s.False(s.reload(entry.ID).IsResolved)
}

func (s *EngineSuite) TestClosingIgnoresOtherPeople() {
	other := id.NewPersonID()
	entry := s.newRegister(models.KindEntry, s.base)
	entry.PersonID = &other
	s.record(entry)

	res := s.record(s.newRegister(models.KindDepart, s.base.Add(time.Hour)))
	s.Nil(res.Counterpart)
	s.Len(s.outstanding(), 1)
}

func (s *EngineSuite) TestCheckoutPairsWithSectorEntry() {
	entry := s.record(s.newRegister(models.KindEntry, s.base)).Register
	res := s.record(s.newRegister(models.KindCheckout, s.base.Add(time.Hour)))

	s.Require().NotNil(res.Counterpart)
	s.Equal(entry.ID, res.Counterpart.ID)
}

// =============================================================================
// Openings
// =============================================================================

func (s *EngineSuite) TestOpeningsStayOpenUntilClosed() {
	first := s.record(s.newRegister(models.KindEntry, s.base))
	second := s.record(s.newRegister(models.KindEntry, s.base.Add(time.Hour)))

	s.Nil(first.Counterpart)
	s.Nil(second.Counterpart)
	for _, r := range []*models.Register{first.Register, second.Register} {
		stored := s.reload(r.ID)
		s.False(stored.IsResolved)
		s.Equal(models.ResolutionOpen, stored.Resolution)
		s.Nil(stored.ResolvedWith)
	}
	s.Len(s.outstanding(), 2)
}

func (s *EngineSuite) TestStackedOpeningsPairLatestFirst() {
	e1 := s.record(s.newRegister(models.KindEntry, s.base)).Register
	e2 := s.record(s.newRegister(models.KindEntry, s.base.Add(time.Hour))).Register

	d1 := s.record(s.newRegister(models.KindDepart, s.base.Add(2*time.Hour)))
	s.Require().NotNil(d1.Counterpart)
	s.Equal(e2.ID, d1.Counterpart.ID)

	d2 := s.record(s.newRegister(models.KindDepart, s.base.Add(3*time.Hour)))
	s.Require().NotNil(d2.Counterpart)
	s.Equal(e1.ID, d2.Counterpart.ID)

	s.Equal(models.ResolutionPaired, s.reload(e1.ID).Resolution)
	s.Empty(s.outstanding())
}

func (s *EngineSuite) TestLateOpeningDoesNotDisturbOpenOne() {
	current := s.record(s.newRegister(models.KindEntry, s.base.Add(time.Hour))).Register
	late := s.record(s.newRegister(models.KindEntry, s.base)).Register

	s.Equal(models.ResolutionOpen, s.reload(current.ID).Resolution)
	s.Equal(models.ResolutionOpen, s.reload(late.ID).Resolution)

	depart := s.record(s.newRegister(models.KindDepart, s.base.Add(2*time.Hour)))
	s.Require().NotNil(depart.Counterpart)
	s.Equal(current.ID, depart.Counterpart.ID)
}

func (s *EngineSuite) TestEqualTimesPairWithLaterCreated() {
	first := s.newRegister(models.KindEntry, s.base)
	second := s.newRegister(models.KindEntry, s.base)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	s.record(first)
	s.record(second)

	depart := s.record(s.newRegister(models.KindDepart, s.base))
	s.Require().NotNil(depart.Counterpart)
	s.Equal(second.ID, depart.Counterpart.ID)
}

// =============================================================================
// Pairing counts
// =============================================================================

// replay records seq ("E" entry, "D" depart) one hour apart and returns the
// number of pairs formed. Every pair is checked for symmetric links and for
// a closing that is not earlier than its opening.
func (s *EngineSuite) replay(seq string) int {
	pairs := 0
	for i, c := range seq {
		kind := models.KindEntry
		if c == 'D' {
			kind = models.KindDepart
		}
		res := s.record(s.newRegister(kind, s.base.Add(time.Duration(i)*time.Hour)))
		if res.Counterpart == nil {
			continue
		}
		pairs++
		closing := s.reload(res.Register.ID)
		opening := s.reload(res.Counterpart.ID)
		s.False(closing.Time.Before(opening.Time), seq)
		s.Equal(opening.ID, *closing.ResolvedWith, seq)
		s.Equal(closing.ID, *opening.ResolvedWith, seq)
	}
	return pairs
}

func count(seq string, c rune) int {
	n := 0
	for _, r := range seq {
		if r == c {
			n++
		}
	}
	return n
}

func (s *EngineSuite) TestPairsEqualMinOfOpeningsAndClosings() {
	for _, seq := range []string{
		"ED",
		"EEDD",
		"EEED",
		"EEEDDD",
		"EDEEDD",
		"EEDEDD",
		"EEDDD",
		"EDDD",
		"EEEEDEDDDD",
	} {
		s.Run(seq, func() {
			s.SetupTest()
			pairs := s.replay(seq)
			s.Equal(min(count(seq, 'E'), count(seq, 'D')), pairs)

			resolved, err := s.store.FindRegisters(s.ctx, store.RegisterFilter{Resolved: store.Bool(true)})
			s.Require().NoError(err)
			s.Len(resolved, 2*pairs)
		})
	}
}

func (s *EngineSuite) TestPairsEqualMinOnRandomSequences() {
	rng := rand.New(rand.NewPCG(7, 11))
	for range 25 {
		// Closings never outnumber the openings before them, then a random
		// tail of extra closings arrives.
		var b strings.Builder
		open := 0
		for range 4 + rng.IntN(12) {
			if open > 0 && rng.IntN(2) == 0 {
				b.WriteByte('D')
				open--
				continue
			}
			b.WriteByte('E')
			open++
		}
		for range rng.IntN(open + 3) {
			b.WriteByte('D')
		}
		seq := b.String()

		s.Run(seq, func() {
			s.SetupTest()
			s.Equal(min(count(seq, 'E'), count(seq, 'D')), s.replay(seq))
		})
	}
}

// =============================================================================
// Bypass
// =============================================================================

func (s *EngineSuite) TestDeniedAndUnauthorizedBypass() {
	s.record(s.newRegister(models.KindEntry, s.base))

	denied := s.newRegister(models.KindDepart, s.base.Add(time.Hour))
	denied.IsDenied = true
	denied.DeniedReason = "no credential"
	res := s.record(denied)
	s.Nil(res.Counterpart)
	s.Equal(models.ResolutionOpen, s.reload(denied.ID).Resolution)

	unauth := &models.Register{
		ID:              id.NewRegisterID(),
		ScopeKind:       models.ScopeSector,
		ScopeID:         uuid.UUID(s.sector),
		Kind:            models.KindDepart,
		Time:            s.base.Add(2 * time.Hour),
		IsUnauthorized:  true,
		UnauthorizedRut: "9999999-9",
		CreatedAt:       time.Now(),
	}
	res, err := s.engine.Run(s.ctx, "rut:9999999-9", s.persistAndReconcile(s.engine, unauth))
	s.Require().NoError(err)
	s.Nil(res.Counterpart)

	s.Len(s.outstanding(), 1)
}

func (s *EngineSuite) TestUnconfirmedManifestIsNotReconciled() {
	person := &models.Person{ID: s.person, Name: "Ana", DocumentID: "P1", Category: models.CategoryVisitor}
	manifest := &models.Manifest{ID: id.NewManifestID(), ItineraryID: id.NewItineraryID(), ReservationStatus: 2, PersonID: s.person}
	checkin := s.newRegister(models.KindCheckin, s.base)
	checkin.ScopeKind = models.ScopeManifest
	checkin.ScopeID = uuid.UUID(manifest.ID)
	manifest.RegisterID = checkin.ID
	s.Require().NoError(s.store.CreateManifest(s.ctx, models.ManifestBundle{Manifest: manifest, Person: person, Register: checkin}))

	res, err := s.engine.Run(s.ctx, store.PersonKey(s.person), func(ctx context.Context, st store.Store) (*models.MovementResult, error) {
		reg, err := st.FindRegister(ctx, checkin.ID)
		if err != nil {
			return nil, err
		}
		return s.engine.ReconcileIn(ctx, st, reg)
	})
	s.Require().NoError(err)
	s.Nil(res.Counterpart)

	depart := s.record(s.newRegister(models.KindDepart, s.base.Add(time.Hour)))
	s.Nil(depart.Counterpart)
	s.False(s.reload(checkin.ID).IsResolved)
}

// =============================================================================
// Conflicts and concurrency
// =============================================================================

// conflictingStore fails the first n ResolvePair calls with a version conflict.
type conflictingStore struct {
	store.Store
	remaining atomic.Int32
}

func (c *conflictingStore) ResolvePair(ctx context.Context, counter, closing *models.Register) error {
	if c.remaining.Add(-1) >= 0 {
		return fmt.Errorf("register %s: %w", closing.ID, sentinel.ErrConflict)
	}
	return c.Store.ResolvePair(ctx, counter, closing)
}

func (s *EngineSuite) TestConflictIsRetried() {
	entry := s.record(s.newRegister(models.KindEntry, s.base)).Register

	cs := &conflictingStore{Store: s.store}
	cs.remaining.Store(2)
	e := New(store.NewShardedTx(cs), WithBackoff(time.Millisecond), WithMaxAttempts(3))
	depart := s.newRegister(models.KindDepart, s.base.Add(time.Hour))

	res, err := e.Run(s.ctx, store.PersonKey(s.person), s.persistAndReconcile(e, depart))
	s.Require().NoError(err)
	s.Require().NotNil(res.Counterpart)
	s.Equal(entry.ID, res.Counterpart.ID)
	s.True(s.reload(depart.ID).IsResolved)
}

func (s *EngineSuite) TestConflictRetryExhausted() {
	entry := s.record(s.newRegister(models.KindEntry, s.base)).Register

	cs := &conflictingStore{Store: s.store}
	cs.remaining.Store(10)
	e := New(store.NewShardedTx(cs), WithBackoff(0), WithMaxAttempts(2))
	depart := s.newRegister(models.KindDepart, s.base.Add(time.Hour))

	_, err := e.Run(s.ctx, store.PersonKey(s.person), s.persistAndReconcile(e, depart))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflictRetryExhausted))
	s.ErrorIs(err, sentinel.ErrConflict)
	s.False(s.reload(entry.ID).IsResolved)
}

func (s *EngineSuite) TestNonConflictErrorIsNotRetried() {
	var calls int
	_, err := s.engine.Run(s.ctx, "k", func(context.Context, store.Store) (*models.MovementResult, error) {
		calls++
		return nil, sentinel.ErrNotFound
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Equal(1, calls)
}

func (s *EngineSuite) TestRacingClosersPairOnce() {
	entry := s.record(s.newRegister(models.KindEntry, s.base)).Register

	const racers = 8
	results := make([]*models.MovementResult, racers)
	var wg sync.WaitGroup
	for i := range racers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg := s.newRegister(models.KindDepart, s.base.Add(time.Hour))
			res, err := s.engine.Run(s.ctx, store.PersonKey(s.person), s.persistAndReconcile(s.engine, reg))
			if err == nil {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	paired := 0
	for _, res := range results {
		s.Require().NotNil(res)
		if res.Counterpart != nil {
			paired++
			s.Equal(entry.ID, res.Counterpart.ID)
		} else {
			s.Equal(models.ResolutionUnmatched, res.Register.Resolution)
		}
	}
	s.Equal(1, paired)
}

func (s *EngineSuite) TestAlternatingSequencePairsEverything() {
	const visits = 20
	pairs := 0
	at := s.base
	for range visits {
		s.record(s.newRegister(models.KindEntry, at))
		at = at.Add(10 * time.Minute)
		if res := s.record(s.newRegister(models.KindDepart, at)); res.Counterpart != nil {
			pairs++
		}
		at = at.Add(10 * time.Minute)
	}
	s.Equal(visits, pairs)
	s.Empty(s.outstanding())

	resolved, err := s.store.FindRegisters(s.ctx, store.RegisterFilter{Resolved: store.Bool(true)})
	s.Require().NoError(err)
	s.Len(resolved, 2*visits)
	for _, r := range resolved {
		peer := s.reload(*r.ResolvedWith)
		s.Equal(r.ID, *peer.ResolvedWith)
	}
}

func (s *EngineSuite) TestCancelledContextStopsRetry() {
	ctx, cancel := context.WithCancel(s.ctx)
	cs := &conflictingStore{Store: s.store}
	cs.remaining.Store(10)
	e := New(store.NewShardedTx(cs), WithBackoff(time.Hour), WithMaxAttempts(3))
	s.record(s.newRegister(models.KindEntry, s.base))

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := e.Run(ctx, store.PersonKey(s.person), s.persistAndReconcile(e, s.newRegister(models.KindDepart, s.base.Add(time.Hour))))
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}
