package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"seanav/internal/tracking/models"
	id "seanav/pkg/domain"
	"seanav/pkg/platform/sentinel"
)

// InMemory is a map-backed Store. It keeps insertion order for every entity
// so iteration is deterministic, and hands out copies so callers cannot
// mutate stored state without going through the compare-and-write methods.
type InMemory struct {
	mu sync.RWMutex

	persons     map[id.PersonID]*models.Person
	personByRut map[string]id.PersonID
	companies   map[id.CompanyID]*models.Company
	sectors     map[id.SectorID]*models.Sector
	sectorOrder []id.SectorID
	seaports    map[id.SeaportID]*models.Seaport
	portOrder   []id.SeaportID
	itineraries map[id.ItineraryID]*models.Itinerary
	itinByRef   map[int64]id.ItineraryID
	manifests   map[id.ManifestID]*models.Manifest
	manOrder    []id.ManifestID
	registers   map[id.RegisterID]*models.Register
	regOrder    []id.RegisterID
	regByKey    map[string]id.RegisterID
}

// NewInMemory returns an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		persons:     make(map[id.PersonID]*models.Person),
		personByRut: make(map[string]id.PersonID),
		companies:   make(map[id.CompanyID]*models.Company),
		sectors:     make(map[id.SectorID]*models.Sector),
		seaports:    make(map[id.SeaportID]*models.Seaport),
		itineraries: make(map[id.ItineraryID]*models.Itinerary),
		itinByRef:   make(map[int64]id.ItineraryID),
		manifests:   make(map[id.ManifestID]*models.Manifest),
		registers:   make(map[id.RegisterID]*models.Register),
		regByKey:    make(map[string]id.RegisterID),
	}
}

func clonePerson(p *models.Person) *models.Person {
	c := *p
	if p.CompanyID != nil {
		co := *p.CompanyID
		c.CompanyID = &co
	}
	return &c
}

func cloneItinerary(it *models.Itinerary) *models.Itinerary {
	c := *it
	c.SeaportIDs = slices.Clone(it.SeaportIDs)
	return &c
}

func (s *InMemory) FindPerson(_ context.Context, personID id.PersonID) (*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.persons[personID]
	if !ok {
		return nil, fmt.Errorf("person %s: %w", personID, sentinel.ErrNotFound)
	}
	return clonePerson(p), nil
}

func (s *InMemory) FindPersonByRut(_ context.Context, rut string) (*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pid, ok := s.personByRut[rut]
	if !ok {
		return nil, fmt.Errorf("person with rut %s: %w", rut, sentinel.ErrNotFound)
	}
	return clonePerson(s.persons[pid]), nil
}

func (s *InMemory) FindCompany(_ context.Context, companyID id.CompanyID) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[companyID]
	if !ok {
		return nil, fmt.Errorf("company %s: %w", companyID, sentinel.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *InMemory) FindSector(_ context.Context, sectorID id.SectorID) (*models.Sector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.sectors[sectorID]
	if !ok {
		return nil, fmt.Errorf("sector %s: %w", sectorID, sentinel.ErrNotFound)
	}
	cp := *sec
	return &cp, nil
}

func (s *InMemory) ListSectorsByCompany(_ context.Context, companyID id.CompanyID) ([]*models.Sector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Sector
	for _, sid := range s.sectorOrder {
		if sec := s.sectors[sid]; sec.CompanyID == companyID {
			cp := *sec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemory) FindSeaport(_ context.Context, seaportID id.SeaportID) (*models.Seaport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.seaports[seaportID]
	if !ok {
		return nil, fmt.Errorf("seaport %s: %w", seaportID, sentinel.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *InMemory) ListSeaports(_ context.Context) ([]*models.Seaport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Seaport, 0, len(s.portOrder))
	for _, pid := range s.portOrder {
		cp := *s.seaports[pid]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemory) FindItinerary(_ context.Context, itineraryID id.ItineraryID) (*models.Itinerary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.itineraries[itineraryID]
	if !ok {
		return nil, fmt.Errorf("itinerary %s: %w", itineraryID, sentinel.ErrNotFound)
	}
	return cloneItinerary(it), nil
}

func (s *InMemory) FindItineraryByRefID(_ context.Context, refID int64) (*models.Itinerary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iid, ok := s.itinByRef[refID]
	if !ok {
		return nil, fmt.Errorf("itinerary ref %d: %w", refID, sentinel.ErrNotFound)
	}
	return cloneItinerary(s.itineraries[iid]), nil
}

func (s *InMemory) FindManifest(_ context.Context, manifestID id.ManifestID) (*models.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.manifests[manifestID]
	if !ok {
		return nil, fmt.Errorf("manifest %s: %w", manifestID, sentinel.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *InMemory) ListManifestsByItinerary(_ context.Context, itineraryID id.ItineraryID) ([]*models.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Manifest
	for _, mid := range s.manOrder {
		if m := s.manifests[mid]; m.ItineraryID == itineraryID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemory) FindRegister(_ context.Context, registerID id.RegisterID) (*models.Register, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.registers[registerID]
	if !ok {
		return nil, fmt.Errorf("register %s: %w", registerID, sentinel.ErrNotFound)
	}
	return r.Clone(), nil
}

func (s *InMemory) FindRegisterByIdempotencyKey(_ context.Context, key string) (*models.Register, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rid, ok := s.regByKey[key]
	if !ok {
		return nil, fmt.Errorf("register with key %s: %w", key, sentinel.ErrNotFound)
	}
	return s.registers[rid].Clone(), nil
}

func (s *InMemory) FindRegisters(_ context.Context, filter RegisterFilter) ([]*models.Register, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Register
	for _, rid := range s.regOrder {
		r := s.registers[rid]
		if !filter.matches(r) {
			continue
		}
		if filter.ConfirmedOnly && !s.confirmedLocked(r) {
			continue
		}
		out = append(out, r.Clone())
	}

	switch filter.Sort {
	case SortTimeDesc:
		slices.SortStableFunc(out, func(a, b *models.Register) int {
			if c := b.Time.Compare(a.Time); c != 0 {
				return c
			}
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	case SortTimeAsc:
		slices.SortStableFunc(out, func(a, b *models.Register) int {
			return cmp.Or(a.Time.Compare(b.Time), a.CreatedAt.Compare(b.CreatedAt))
		})
	}

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemory) confirmedLocked(r *models.Register) bool {
	if r.ScopeKind != models.ScopeManifest {
		return true
	}
	m, ok := s.manifests[id.ManifestID(r.ScopeID)]
	return ok && m.Confirmed()
}

func (s *InMemory) CreatePerson(_ context.Context, person *models.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertPersonLocked(person)
}

func (s *InMemory) insertPersonLocked(person *models.Person) error {
	if _, ok := s.persons[person.ID]; ok {
		return fmt.Errorf("person %s: %w", person.ID, sentinel.ErrAlreadyUsed)
	}
	if person.Rut != "" {
		if _, ok := s.personByRut[person.Rut]; ok {
			return fmt.Errorf("rut %s: %w", person.Rut, sentinel.ErrAlreadyUsed)
		}
		s.personByRut[person.Rut] = person.ID
	}
	s.persons[person.ID] = clonePerson(person)
	return nil
}

func (s *InMemory) CreateCompany(_ context.Context, company *models.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[company.ID]; ok {
		return fmt.Errorf("company %s: %w", company.ID, sentinel.ErrAlreadyUsed)
	}
	cp := *company
	s.companies[company.ID] = &cp
	return nil
}

func (s *InMemory) CreateSector(_ context.Context, sector *models.Sector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sectors[sector.ID]; ok {
		return fmt.Errorf("sector %s: %w", sector.ID, sentinel.ErrAlreadyUsed)
	}
	cp := *sector
	s.sectors[sector.ID] = &cp
	s.sectorOrder = append(s.sectorOrder, sector.ID)
	return nil
}

func (s *InMemory) CreateSeaport(_ context.Context, seaport *models.Seaport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seaports[seaport.ID]; ok {
		return fmt.Errorf("seaport %s: %w", seaport.ID, sentinel.ErrAlreadyUsed)
	}
	cp := *seaport
	s.seaports[seaport.ID] = &cp
	s.portOrder = append(s.portOrder, seaport.ID)
	return nil
}

func (s *InMemory) CreateItinerary(_ context.Context, itinerary *models.Itinerary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.itineraries[itinerary.ID]; ok {
		return fmt.Errorf("itinerary %s: %w", itinerary.ID, sentinel.ErrAlreadyUsed)
	}
	if itinerary.RefID != 0 {
		if _, ok := s.itinByRef[itinerary.RefID]; ok {
			return fmt.Errorf("itinerary ref %d: %w", itinerary.RefID, sentinel.ErrAlreadyUsed)
		}
		s.itinByRef[itinerary.RefID] = itinerary.ID
	}
	s.itineraries[itinerary.ID] = cloneItinerary(itinerary)
	return nil
}

func (s *InMemory) CreateManifest(_ context.Context, bundle models.ManifestBundle) error {
	if bundle.Manifest == nil || bundle.Person == nil || bundle.Register == nil {
		return fmt.Errorf("manifest bundle is incomplete: %w", sentinel.ErrInvalidState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check everything before the first write so a failure leaves nothing behind.
	if _, ok := s.manifests[bundle.Manifest.ID]; ok {
		return fmt.Errorf("manifest %s: %w", bundle.Manifest.ID, sentinel.ErrAlreadyUsed)
	}
	if _, ok := s.persons[bundle.Person.ID]; ok {
		return fmt.Errorf("person %s: %w", bundle.Person.ID, sentinel.ErrAlreadyUsed)
	}
	if bundle.Person.Rut != "" {
		if _, ok := s.personByRut[bundle.Person.Rut]; ok {
			return fmt.Errorf("rut %s: %w", bundle.Person.Rut, sentinel.ErrAlreadyUsed)
		}
	}
	if err := s.checkRegisterLocked(bundle.Register); err != nil {
		return err
	}

	_ = s.insertPersonLocked(bundle.Person)
	m := *bundle.Manifest
	s.manifests[m.ID] = &m
	s.manOrder = append(s.manOrder, m.ID)
	s.insertRegisterLocked(bundle.Register)
	return nil
}

func (s *InMemory) checkRegisterLocked(r *models.Register) error {
	if _, ok := s.registers[r.ID]; ok {
		return fmt.Errorf("register %s: %w", r.ID, sentinel.ErrAlreadyUsed)
	}
	if r.IdempotencyKey != "" {
		if _, ok := s.regByKey[r.IdempotencyKey]; ok {
			return fmt.Errorf("idempotency key %s: %w", r.IdempotencyKey, sentinel.ErrAlreadyUsed)
		}
	}
	return nil
}

func (s *InMemory) insertRegisterLocked(r *models.Register) {
	stored := r.Clone()
	s.registers[r.ID] = stored
	s.regOrder = append(s.regOrder, r.ID)
	if r.IdempotencyKey != "" {
		s.regByKey[r.IdempotencyKey] = r.ID
	}
}

func (s *InMemory) CreateRegister(_ context.Context, register *models.Register) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkRegisterLocked(register); err != nil {
		return err
	}
	s.insertRegisterLocked(register)
	return nil
}

func (s *InMemory) UpdateRegister(_ context.Context, register *models.Register) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersionLocked(register); err != nil {
		return err
	}
	s.replaceLocked(register)
	return nil
}

func (s *InMemory) ResolvePair(_ context.Context, counter, closing *models.Register) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersionLocked(counter); err != nil {
		return err
	}
	if err := s.checkVersionLocked(closing); err != nil {
		return err
	}
	s.replaceLocked(counter)
	s.replaceLocked(closing)
	return nil
}

func (s *InMemory) checkVersionLocked(r *models.Register) error {
	current, ok := s.registers[r.ID]
	if !ok {
		return fmt.Errorf("register %s: %w", r.ID, sentinel.ErrNotFound)
	}
	if current.Version != r.Version {
		return fmt.Errorf("register %s at version %d, have %d: %w", r.ID, current.Version, r.Version, sentinel.ErrConflict)
	}
	return nil
}

// replaceLocked stores r with a bumped version and reflects the new version
// back to the caller's copy. Insertion order and the idempotency key are
// immutable.
func (s *InMemory) replaceLocked(r *models.Register) {
	r.Version++
	stored := r.Clone()
	stored.IdempotencyKey = s.registers[r.ID].IdempotencyKey
	s.registers[r.ID] = stored
}
