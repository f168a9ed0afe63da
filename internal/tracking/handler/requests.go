package handler

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"seanav/internal/tracking/models"
	id "seanav/pkg/domain"
	dErrors "seanav/pkg/domain-errors"
)

// PersonPayload is the passenger block of a manifest request.
type PersonPayload struct {
	Name         string `json:"name"`
	DocumentID   string `json:"documentId"`
	DocumentType string `json:"documentType"`
	Nationality  string `json:"nationality"`
	Sex          string `json:"sex"`
	Resident     bool   `json:"resident"`
}

// CreateManifestRequest is the HTTP request body for POST /api/manifests.
type CreateManifestRequest struct {
	Itinerary         string        `json:"itinerary"`
	ItineraryRefID    int64         `json:"refId"`
	ReservationID     int64         `json:"reservationId"`
	ReservationStatus *int          `json:"reservationStatus"`
	TicketID          string        `json:"ticketId"`
	Origin            string        `json:"origin"`
	Destination       string        `json:"destination"`
	Person            PersonPayload `json:"person"`
	IsOnboard         bool          `json:"isOnboard"`

	parsedItinerary id.ItineraryID
}

// Validate implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateManifestRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.TicketID) > 64 || len(r.Person.DocumentID) > 64 {
		return dErrors.New(dErrors.CodeValidation, "ticketId and documentId must be at most 64 characters")
	}

	r.Itinerary = strings.TrimSpace(r.Itinerary)
	if r.Itinerary != "" {
		itineraryID, err := id.ParseItineraryID(r.Itinerary)
		if err != nil {
			return err
		}
		r.parsedItinerary = itineraryID
	}
	if r.parsedItinerary.IsNil() && r.ItineraryRefID == 0 {
		return dErrors.New(dErrors.CodeValidation, "itinerary or refId is required")
	}
	return nil
}

// ToModel builds the service request. Field-level checks beyond the wire
// format happen in the service.
func (r *CreateManifestRequest) ToModel() models.CreateManifestRequest {
	return models.CreateManifestRequest{
		ItineraryID:       r.parsedItinerary,
		ItineraryRefID:    r.ItineraryRefID,
		ReservationID:     r.ReservationID,
		ReservationStatus: r.ReservationStatus,
		TicketID:          strings.TrimSpace(r.TicketID),
		OriginName:        r.Origin,
		DestinationName:   r.Destination,
		Person: models.PersonAttrs{
			Name:         r.Person.Name,
			DocumentID:   r.Person.DocumentID,
			DocumentType: r.Person.DocumentType,
			Nationality:  r.Person.Nationality,
			Sex:          r.Person.Sex,
			Resident:     r.Person.Resident,
		},
		IsOnboard: r.IsOnboard,
	}
}

// RecordMovementRequest is the HTTP request body for POST /api/registers.
// Exactly one of Sector or Manifest names the scope.
type RecordMovementRequest struct {
	Person         string     `json:"person"`
	Rut            string     `json:"rut"`
	DocumentID     string     `json:"documentId"`
	Sector         string     `json:"sector"`
	Manifest       string     `json:"manifest"`
	Kind           string     `json:"type"`
	Time           *time.Time `json:"time"`
	IsDenied       bool       `json:"isDenied"`
	DeniedReason   string     `json:"deniedReason"`
	Seaport        string     `json:"seaport"`
	SeaportName    string     `json:"seaportName"`
	Comments       string     `json:"comments"`
	IsOnboard      bool       `json:"isOnboard"`
	IdempotencyKey string     `json:"idempotencyKey"`

	parsedPerson  *id.PersonID
	parsedSeaport *id.SeaportID
	parsedKind    models.Kind
	parsedScope   models.RegisterScope
}

// Validate parses ids and the kind. Scope and kind compatibility is checked
// by the service.
func (r *RecordMovementRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Comments) > 1024 {
		return dErrors.New(dErrors.CodeValidation, "comments must be at most 1024 characters")
	}

	kind, err := models.ParseKind(strings.TrimSpace(r.Kind))
	if err != nil {
		return err
	}
	r.parsedKind = kind

	sector, manifest := strings.TrimSpace(r.Sector), strings.TrimSpace(r.Manifest)
	switch {
	case sector != "" && manifest != "":
		return dErrors.New(dErrors.CodeValidation, "only one of sector or manifest may be set")
	case sector != "":
		sid, err := id.ParseSectorID(sector)
		if err != nil {
			return err
		}
		r.parsedScope = models.RegisterScope{Kind: models.ScopeSector, ID: uuid.UUID(sid)}
	case manifest != "":
		mid, err := id.ParseManifestID(manifest)
		if err != nil {
			return err
		}
		r.parsedScope = models.RegisterScope{Kind: models.ScopeManifest, ID: uuid.UUID(mid)}
	default:
		return dErrors.New(dErrors.CodeValidation, "sector or manifest is required")
	}

	if p := strings.TrimSpace(r.Person); p != "" {
		pid, err := id.ParsePersonID(p)
		if err != nil {
			return err
		}
		r.parsedPerson = &pid
	}
	if p := strings.TrimSpace(r.Seaport); p != "" {
		sid, err := id.ParseSeaportID(p)
		if err != nil {
			return err
		}
		r.parsedSeaport = &sid
	}
	return nil
}

// ToModel builds the service request; a missing time means now.
func (r *RecordMovementRequest) ToModel(now time.Time) models.RecordMovementRequest {
	at := now
	if r.Time != nil && !r.Time.IsZero() {
		at = *r.Time
	}
	return models.RecordMovementRequest{
		PersonID:       r.parsedPerson,
		Rut:            r.Rut,
		DocumentID:     r.DocumentID,
		Scope:          r.parsedScope,
		Kind:           r.parsedKind,
		Time:           at,
		IsDenied:       r.IsDenied,
		DeniedReason:   r.DeniedReason,
		SeaportID:      r.parsedSeaport,
		SeaportName:    strings.TrimSpace(r.SeaportName),
		Comments:       strings.TrimSpace(r.Comments),
		IsOnboard:      r.IsOnboard,
		IdempotencyKey: strings.TrimSpace(r.IdempotencyKey),
	}
}
