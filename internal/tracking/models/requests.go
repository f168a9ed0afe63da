package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	id "seanav/pkg/domain"
	dErrors "seanav/pkg/domain-errors"
)

// PersonAttrs describes a passenger on manifest creation.
type PersonAttrs struct {
	Name         string
	DocumentID   string
	DocumentType string
	Nationality  string
	Sex          string
	Resident     bool
}

// CreateManifestRequest is the input to manifest creation. Either
// ItineraryID or ItineraryRefID selects the itinerary.
type CreateManifestRequest struct {
	ItineraryID       id.ItineraryID
	ItineraryRefID    int64
	ReservationID     int64
	ReservationStatus *int
	TicketID          string
	OriginName        string
	DestinationName   string
	Person            PersonAttrs
	IsOnboard         bool
}

// Validate checks required fields.
func (r *CreateManifestRequest) Validate() error {
	r.OriginName = strings.TrimSpace(r.OriginName)
	r.DestinationName = strings.TrimSpace(r.DestinationName)
	r.Person.Name = strings.TrimSpace(r.Person.Name)
	r.Person.DocumentID = strings.TrimSpace(r.Person.DocumentID)

	if r.ItineraryID.IsNil() && r.ItineraryRefID == 0 {
		return dErrors.New(dErrors.CodeValidation, "itinerary is required")
	}
	if r.OriginName == "" {
		return dErrors.New(dErrors.CodeValidation, "origin is required")
	}
	if r.DestinationName == "" {
		return dErrors.New(dErrors.CodeValidation, "destination is required")
	}
	if r.Person.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "passenger name is required")
	}
	if r.Person.DocumentID == "" {
		return dErrors.New(dErrors.CodeValidation, "passenger documentId is required")
	}
	return nil
}

// RecordMovementRequest is the input to a single movement. The person is
// selected by PersonID, Rut or DocumentID in that order; for manifest scopes
// it defaults to the manifest passenger.
type RecordMovementRequest struct {
	PersonID       *id.PersonID
	Rut            string
	DocumentID     string
	Scope          RegisterScope
	Kind           Kind
	Time           time.Time
	IsDenied       bool
	DeniedReason   string
	SeaportID      *id.SeaportID
	SeaportName    string
	Comments       string
	IsOnboard      bool
	IdempotencyKey string
}

// Validate checks the kind is legal for the scope and the time is set.
func (r *RecordMovementRequest) Validate() error {
	r.Rut = strings.TrimSpace(r.Rut)
	r.DocumentID = strings.TrimSpace(r.DocumentID)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)

	if r.Scope.Kind != ScopeSector && r.Scope.Kind != ScopeManifest {
		return dErrors.New(dErrors.CodeValidation, "scope must be a sector or a manifest")
	}
	if r.Scope.ID == uuid.Nil {
		return dErrors.New(dErrors.CodeValidation, "scope id is required")
	}
	if !r.Scope.Kind.Allows(r.Kind) {
		return dErrors.New(dErrors.CodeValidation, "kind "+string(r.Kind)+" is not valid for a "+string(r.Scope.Kind))
	}
	if r.Time.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "time is required")
	}
	if r.Scope.Kind == ScopeSector && r.PersonID == nil && r.Rut == "" {
		return dErrors.New(dErrors.CodeValidation, "person or rut is required")
	}
	if r.IsDenied && strings.TrimSpace(r.DeniedReason) == "" {
		return dErrors.New(dErrors.CodeValidation, "deniedReason is required when isDenied")
	}
	return nil
}

// MovementResult reports what the engine did with a movement.
type MovementResult struct {
	Register    *Register `json:"register"`
	Counterpart *Register `json:"counterpart,omitempty"`
	Replayed    bool      `json:"replayed"`
}

// OutstandingFilter narrows ListOutstanding.
type OutstandingFilter struct {
	Category         Category
	From             time.Time
	To               time.Time
	IncludeUnmatched bool
}

// ItineraryStatusEntry is one row of the itinerary status view.
type ItineraryStatusEntry struct {
	DocumentID string `json:"documentId"`
	State      Kind   `json:"state"`
}
