package models

import (
	"github.com/google/uuid"

	dErrors "seanav/pkg/domain-errors"
)

// StatsScopeKind names the aggregate a statistics or listing query covers.
type StatsScopeKind string

const (
	StatsScopeCompany   StatsScopeKind = "company"
	StatsScopeSector    StatsScopeKind = "sector"
	StatsScopeItinerary StatsScopeKind = "itinerary"
)

// ScopeRef identifies a company, sector or itinerary.
type ScopeRef struct {
	Kind StatsScopeKind
	ID   uuid.UUID
}

// ParseStatsScopeKind accepts both singular and the plural route segment.
func ParseStatsScopeKind(s string) (StatsScopeKind, error) {
	switch s {
	case "company", "companies":
		return StatsScopeCompany, nil
	case "sector", "sectors":
		return StatsScopeSector, nil
	case "itinerary", "itineraries":
		return StatsScopeItinerary, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unknown scope: "+s)
	}
}

// RegisterScope is the scope a single register belongs to.
type RegisterScope struct {
	Kind ScopeKind
	ID   uuid.UUID
}
