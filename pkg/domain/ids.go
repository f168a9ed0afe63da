package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "seanav/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so a PersonID can never be passed
// where a RegisterID is expected.
type (
	PersonID    uuid.UUID
	CompanyID   uuid.UUID
	SectorID    uuid.UUID
	SeaportID   uuid.UUID
	ItineraryID uuid.UUID
	ManifestID  uuid.UUID
	RegisterID  uuid.UUID
)

func NewPersonID() PersonID       { return PersonID(uuid.New()) }
func NewCompanyID() CompanyID     { return CompanyID(uuid.New()) }
func NewSectorID() SectorID       { return SectorID(uuid.New()) }
func NewSeaportID() SeaportID     { return SeaportID(uuid.New()) }
func NewItineraryID() ItineraryID { return ItineraryID(uuid.New()) }
func NewManifestID() ManifestID   { return ManifestID(uuid.New()) }
func NewRegisterID() RegisterID   { return RegisterID(uuid.New()) }

func (id PersonID) String() string    { return uuid.UUID(id).String() }
func (id CompanyID) String() string   { return uuid.UUID(id).String() }
func (id SectorID) String() string    { return uuid.UUID(id).String() }
func (id SeaportID) String() string   { return uuid.UUID(id).String() }
func (id ItineraryID) String() string { return uuid.UUID(id).String() }
func (id ManifestID) String() string  { return uuid.UUID(id).String() }
func (id RegisterID) String() string  { return uuid.UUID(id).String() }

func (id PersonID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id CompanyID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id SectorID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SeaportID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ItineraryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ManifestID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id RegisterID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

func (id PersonID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id CompanyID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id SectorID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id SeaportID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id ItineraryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ManifestID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id RegisterID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }

func (id *PersonID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *CompanyID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *SectorID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *SeaportID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ItineraryID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ManifestID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *RegisterID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }

// parseUUID is the single parsing rule for every typed ID: non-empty,
// well-formed and not the nil UUID.
func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return parsed, nil
}

func ParsePersonID(s string) (PersonID, error) {
	u, err := parseUUID(s, "person ID")
	return PersonID(u), err
}

func ParseCompanyID(s string) (CompanyID, error) {
	u, err := parseUUID(s, "company ID")
	return CompanyID(u), err
}

func ParseSectorID(s string) (SectorID, error) {
	u, err := parseUUID(s, "sector ID")
	return SectorID(u), err
}

func ParseSeaportID(s string) (SeaportID, error) {
	u, err := parseUUID(s, "seaport ID")
	return SeaportID(u), err
}

func ParseItineraryID(s string) (ItineraryID, error) {
	u, err := parseUUID(s, "itinerary ID")
	return ItineraryID(u), err
}

func ParseManifestID(s string) (ManifestID, error) {
	u, err := parseUUID(s, "manifest ID")
	return ManifestID(u), err
}

func ParseRegisterID(s string) (RegisterID, error) {
	u, err := parseUUID(s, "register ID")
	return RegisterID(u), err
}
