package models

import (
	"time"

	id "seanav/pkg/domain"
	dErrors "seanav/pkg/domain-errors"
)

// Category buckets people in statistics.
type Category string

const (
	CategoryStaff      Category = "staff"
	CategoryContractor Category = "contractor"
	CategoryVisitor    Category = "visitor"
)

// ParseCategory validates a wire value. Empty input means visitor, which is
// how travel passengers are counted.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case "":
		return CategoryVisitor, nil
	case CategoryStaff, CategoryContractor, CategoryVisitor:
		return c, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unknown person category: "+s)
	}
}

// Label is the export profile column value.
func (c Category) Label() string {
	switch c {
	case CategoryStaff:
		return "Empleado"
	case CategoryContractor:
		return "Contratista"
	default:
		return "Visita"
	}
}

// Person is anyone whose movements are tracked.
type Person struct {
	ID           id.PersonID   `json:"id"`
	Name         string        `json:"name"`
	DocumentID   string        `json:"documentId,omitempty"`
	DocumentType string        `json:"documentType,omitempty"`
	Nationality  string        `json:"nationality,omitempty"`
	Sex          string        `json:"sex,omitempty"`
	Resident     bool          `json:"resident"`
	Rut          string        `json:"rut,omitempty"`
	Category     Category      `json:"type"`
	Card         string        `json:"card,omitempty"`
	CompanyID    *id.CompanyID `json:"company,omitempty"`
	Active       bool          `json:"active"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// Company owns sectors.
type Company struct {
	ID          id.CompanyID `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
}

// Sector is an access-controlled area.
type Sector struct {
	ID          id.SectorID  `json:"id"`
	CompanyID   id.CompanyID `json:"company"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
}

// Seaport is reference data the core only reads.
type Seaport struct {
	ID           id.SeaportID `json:"id"`
	LocationID   int          `json:"locationId"`
	LocationName string       `json:"locationName"`
}

// Itinerary is a scheduled voyage.
type Itinerary struct {
	ID         id.ItineraryID `json:"id"`
	RefID      int64          `json:"refId"`
	Name       string         `json:"name"`
	DepartAt   time.Time      `json:"depart"`
	ArrivalAt  time.Time      `json:"arrival"`
	Active     bool           `json:"active"`
	SeaportIDs []id.SeaportID `json:"seaports"`
}

// ReservationConfirmed is the only reservation status that takes part in
// reconciliation and statistics.
const ReservationConfirmed = 1

// Manifest is one passenger booking on an itinerary.
type Manifest struct {
	ID                id.ManifestID  `json:"id"`
	ItineraryID       id.ItineraryID `json:"itinerary"`
	ReservationID     int64          `json:"reservationId"`
	ReservationStatus int            `json:"reservationStatus"`
	TicketID          string         `json:"ticketId"`
	OriginID          id.SeaportID   `json:"origin"`
	DestinationID     id.SeaportID   `json:"destination"`
	PersonID          id.PersonID    `json:"person"`
	RegisterID        id.RegisterID  `json:"register"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// Confirmed reports whether the manifest participates downstream.
func (m *Manifest) Confirmed() bool {
	return m.ReservationStatus == ReservationConfirmed
}

// ManifestBundle is the triple written atomically by manifest creation.
type ManifestBundle struct {
	Manifest *Manifest
	Person   *Person
	Register *Register
}
