package models

import (
	"time"

	"github.com/google/uuid"

	id "seanav/pkg/domain"
	dErrors "seanav/pkg/domain-errors"
)

// Kind is the movement a register records.
type Kind string

const (
	KindEntry    Kind = "entry"
	KindDepart   Kind = "depart"
	KindCheckin  Kind = "checkin"
	KindCheckout Kind = "checkout"
	KindPending  Kind = "pending"
)

// ParseKind validates a wire value.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindEntry, KindDepart, KindCheckin, KindCheckout, KindPending:
		return k, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unknown register kind: "+s)
	}
}

// IsOpening reports whether the kind starts a visit.
func (k Kind) IsOpening() bool { return k == KindEntry || k == KindCheckin }

// IsClosing reports whether the kind ends a visit.
func (k Kind) IsClosing() bool { return k == KindDepart || k == KindCheckout }

// OpeningKinds and ClosingKinds are the filter sets the engine and the
// aggregator query with.
var (
	OpeningKinds = []Kind{KindEntry, KindCheckin}
	ClosingKinds = []Kind{KindDepart, KindCheckout}
)

// ScopeKind says what a register's ScopeID points at.
type ScopeKind string

const (
	ScopeSector   ScopeKind = "sector"
	ScopeManifest ScopeKind = "manifest"
)

// Allows reports whether kind is valid inside this scope. Sectors record
// entries and departures, manifests record check-ins and check-outs.
func (s ScopeKind) Allows(k Kind) bool {
	switch s {
	case ScopeSector:
		return k == KindEntry || k == KindDepart
	case ScopeManifest:
		return k == KindCheckin || k == KindCheckout || k == KindPending
	default:
		return false
	}
}

// Resolution records how the engine settled a register.
type Resolution string

const (
	// ResolutionOpen is an opening still waiting for its counter, or a
	// register the engine does not handle.
	ResolutionOpen Resolution = ""
	// ResolutionPaired is set on both sides of a reconciled pair.
	ResolutionPaired Resolution = "paired"
	// ResolutionUnmatched is a closing for which no counter existed.
	ResolutionUnmatched Resolution = "unmatched"
)

// State is the two-state view of the reconciliation machine.
type State string

const (
	StateOpen     State = "OPEN"
	StateResolved State = "RESOLVED"
)

// Register is a single movement event.
type Register struct {
	ID              id.RegisterID  `json:"id"`
	PersonID        *id.PersonID   `json:"person,omitempty"`
	ScopeKind       ScopeKind      `json:"scopeKind"`
	ScopeID         uuid.UUID      `json:"scopeId"`
	Kind            Kind           `json:"type"`
	Time            time.Time      `json:"time"`
	PersonCategory  Category       `json:"personType,omitempty"`
	IsOnboard       bool           `json:"isOnboard"`
	IsDenied        bool           `json:"isDenied"`
	DeniedReason    string         `json:"deniedReason,omitempty"`
	IsUnauthorized  bool           `json:"isUnauthorized"`
	UnauthorizedRut string         `json:"unauthorizedRut,omitempty"`
	SeaportCheckin  *id.SeaportID  `json:"seaportCheckin,omitempty"`
	SeaportCheckout *id.SeaportID  `json:"seaportCheckout,omitempty"`
	Comments        string         `json:"comments,omitempty"`
	IsResolved      bool           `json:"isResolved"`
	ResolvedWith    *id.RegisterID `json:"resolvedRegister,omitempty"`
	Resolution      Resolution     `json:"resolution,omitempty"`
	IdempotencyKey  string         `json:"idempotencyKey,omitempty"`
	Version         int            `json:"-"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// State derives the machine state from the resolution flags.
func (r *Register) State() State {
	if r.IsResolved {
		return StateResolved
	}
	return StateOpen
}

// Reconcilable reports whether the engine may pair this register.
func (r *Register) Reconcilable() bool {
	return r.PersonID != nil && !r.IsDenied && !r.IsUnauthorized
}

// Outstanding reports whether r counts as an incomplete visit.
func (r *Register) Outstanding() bool {
	return r.Kind.IsOpening() && r.Reconcilable() && !r.IsResolved && r.Resolution == ResolutionOpen
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (r *Register) Clone() *Register {
	if r == nil {
		return nil
	}
	c := *r
	if r.PersonID != nil {
		p := *r.PersonID
		c.PersonID = &p
	}
	if r.SeaportCheckin != nil {
		s := *r.SeaportCheckin
		c.SeaportCheckin = &s
	}
	if r.SeaportCheckout != nil {
		s := *r.SeaportCheckout
		c.SeaportCheckout = &s
	}
	if r.ResolvedWith != nil {
		w := *r.ResolvedWith
		c.ResolvedWith = &w
	}
	return &c
}
