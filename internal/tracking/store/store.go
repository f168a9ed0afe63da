// Package store is the entity store for people, reference data, manifests
// and registers. Implementations return pkg/platform/sentinel errors;
// services translate them.
package store

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"seanav/internal/tracking/models"
	id "seanav/pkg/domain"
)

// Store is the full entity store contract.
type Store interface {
	Reader
	Writer
}

// Reader holds the point, equality and predicate lookups.
type Reader interface {
	FindPerson(ctx context.Context, personID id.PersonID) (*models.Person, error)
	FindPersonByRut(ctx context.Context, rut string) (*models.Person, error)
	FindCompany(ctx context.Context, companyID id.CompanyID) (*models.Company, error)
	FindSector(ctx context.Context, sectorID id.SectorID) (*models.Sector, error)
	ListSectorsByCompany(ctx context.Context, companyID id.CompanyID) ([]*models.Sector, error)
	FindSeaport(ctx context.Context, seaportID id.SeaportID) (*models.Seaport, error)
	ListSeaports(ctx context.Context) ([]*models.Seaport, error)
	FindItinerary(ctx context.Context, itineraryID id.ItineraryID) (*models.Itinerary, error)
	FindItineraryByRefID(ctx context.Context, refID int64) (*models.Itinerary, error)
	FindManifest(ctx context.Context, manifestID id.ManifestID) (*models.Manifest, error)
	ListManifestsByItinerary(ctx context.Context, itineraryID id.ItineraryID) ([]*models.Manifest, error)
	FindRegister(ctx context.Context, registerID id.RegisterID) (*models.Register, error)
	FindRegisterByIdempotencyKey(ctx context.Context, key string) (*models.Register, error)
	FindRegisters(ctx context.Context, filter RegisterFilter) ([]*models.Register, error)
}

// Writer holds creation and the two compare-and-write mutations.
type Writer interface {
	CreatePerson(ctx context.Context, person *models.Person) error
	CreateCompany(ctx context.Context, company *models.Company) error
	CreateSector(ctx context.Context, sector *models.Sector) error
	CreateSeaport(ctx context.Context, seaport *models.Seaport) error
	CreateItinerary(ctx context.Context, itinerary *models.Itinerary) error
	// CreateManifest writes the manifest, its person and its first register
	// together or not at all.
	CreateManifest(ctx context.Context, bundle models.ManifestBundle) error
	CreateRegister(ctx context.Context, register *models.Register) error
	// UpdateRegister replaces a register when its Version still matches the
	// stored one and bumps Version. A stale version yields sentinel.ErrConflict.
	UpdateRegister(ctx context.Context, register *models.Register) error
	// ResolvePair writes both sides of a reconciled pair under the same
	// version check as UpdateRegister.
	ResolvePair(ctx context.Context, counter, closing *models.Register) error
}

// TxRunner runs fn as one atomic unit serialized against other units with
// the same key.
type TxRunner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context, s Store) error) error
}

// PersonKey and ItineraryKey are the lock keys used by the service.
func PersonKey(personID id.PersonID) string          { return "person:" + personID.String() }
func ItineraryKey(itineraryID id.ItineraryID) string { return "itinerary:" + itineraryID.String() }

// RegisterSort orders FindRegisters results.
type RegisterSort int

const (
	// SortInsertion keeps store order.
	SortInsertion RegisterSort = iota
	// SortTimeDesc orders by time, then createdAt, newest first.
	SortTimeDesc
	// SortTimeAsc orders by time, then createdAt, oldest first.
	SortTimeAsc
)

// RegisterFilter is the predicate for FindRegisters. Zero-valued fields do
// not filter.
type RegisterFilter struct {
	PersonID    *id.PersonID
	ScopeIDs    []uuid.UUID
	Kinds       []models.Kind
	Resolved    *bool
	Resolutions []models.Resolution
	Category    models.Category
	// ExcludeDenied and ExcludeUnauthorized drop registers the engine never pairs.
	ExcludeDenied       bool
	ExcludeUnauthorized bool
	// ConfirmedOnly drops registers scoped to manifests whose reservation is
	// not confirmed.
	ConfirmedOnly bool
	ExcludeID     *id.RegisterID
	// From and To bound Time, both inclusive.
	From  time.Time
	To    time.Time
	Sort  RegisterSort
	Limit int
}

// matches applies every predicate except ConfirmedOnly, which needs the
// manifest and is checked by the caller.
func (f RegisterFilter) matches(r *models.Register) bool {
	if f.PersonID != nil && (r.PersonID == nil || *r.PersonID != *f.PersonID) {
		return false
	}
	if len(f.ScopeIDs) > 0 && !slices.Contains(f.ScopeIDs, r.ScopeID) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, r.Kind) {
		return false
	}
	if f.Resolved != nil && r.IsResolved != *f.Resolved {
		return false
	}
	if len(f.Resolutions) > 0 && !slices.Contains(f.Resolutions, r.Resolution) {
		return false
	}
	if f.Category != "" && r.PersonCategory != f.Category {
		return false
	}
	if f.ExcludeDenied && r.IsDenied {
		return false
	}
	if f.ExcludeUnauthorized && r.IsUnauthorized {
		return false
	}
	if f.ExcludeID != nil && r.ID == *f.ExcludeID {
		return false
	}
	if !f.From.IsZero() && r.Time.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.Time.After(f.To) {
		return false
	}
	return true
}

// UUIDs converts typed scope ids for RegisterFilter.ScopeIDs.
func UUIDs[T ~[16]byte](ids ...T) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, v := range ids {
		out = append(out, uuid.UUID(v))
	}
	return out
}

// Bool returns a pointer for RegisterFilter.Resolved.
func Bool(b bool) *bool { return &b }

// OutstandingFilter is the predicate for openings still waiting for a
// counter: the same set the statistics count as incomplete.
func OutstandingFilter(scopeIDs []uuid.UUID) RegisterFilter {
	return RegisterFilter{
		ScopeIDs:            scopeIDs,
		Kinds:               models.OpeningKinds,
		Resolved:            Bool(false),
		Resolutions:         []models.Resolution{models.ResolutionOpen},
		ExcludeDenied:       true,
		ExcludeUnauthorized: true,
		ConfirmedOnly:       true,
	}
}
