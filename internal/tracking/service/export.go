package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"seanav/internal/tracking/models"
	"seanav/internal/tracking/store"
	id "seanav/pkg/domain"
	dErrors "seanav/pkg/domain-errors"
	"seanav/pkg/platform/sentinel"
)

// Column orders consumed by existing spreadsheets.
var (
	TravelColumns = []string{
		"Nro Reserva", "Nro Ticket", "Pasajero", "Residente", "Nacionalidad", "Sexo",
		"Documento", "Nro Documento", "Ciudad Origen", "Ciudad Destino", "Estado",
	}
	AccessColumns = []string{
		"RUT", "NOMBRE", "PERFIL", "ENTRADA", "SECTOR ENTRADA", "COMENTARIO",
		"SALIDA", "SECTOR SALIDA", "COMENTARIO",
	}
)

const exportTimeLayout = "2006-01-02 15:04"

// Export is a sheet ready to render.
type Export struct {
	Sheet  string
	Header []string
	Rows   [][]string
}

// ExportRows builds the travel sheet for an itinerary and the access-control
// sheet for a sector or company.
func (s *Service) ExportRows(ctx context.Context, ref models.ScopeRef) (_ *Export, err error) {
	ctx, span := s.startSpan(ctx, "ExportRows")
	defer func() { endSpan(span, err) }()

	switch ref.Kind {
	case models.StatsScopeItinerary:
		return s.travelExport(ctx, id.ItineraryID(ref.ID))
	case models.StatsScopeSector, models.StatsScopeCompany:
		return s.accessExport(ctx, ref)
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "unknown scope: "+string(ref.Kind))
	}
}

func (s *Service) travelExport(ctx context.Context, itineraryID id.ItineraryID) (*Export, error) {
	it, err := s.store.FindItinerary(ctx, itineraryID)
	if err != nil {
		return nil, translate(err, "itinerary not found", "failed to load itinerary")
	}
	manifests, err := s.store.ListManifestsByItinerary(ctx, it.ID)
	if err != nil {
		return nil, translate(err, "itinerary not found", "failed to list manifests")
	}

	ports := map[id.SeaportID]string{}
	portName := func(pid id.SeaportID) (string, error) {
		if name, ok := ports[pid]; ok {
			return name, nil
		}
		p, err := s.store.FindSeaport(ctx, pid)
		if err != nil {
			return "", translate(err, "seaport not found", "failed to load seaport")
		}
		ports[pid] = p.LocationName
		return p.LocationName, nil
	}

	export := &Export{Sheet: "Manifiesto", Header: TravelColumns}
	for _, m := range manifests {
		person, err := s.store.FindPerson(ctx, m.PersonID)
		if err != nil {
			return nil, translate(err, "passenger not found", "failed to load passenger")
		}
		origin, err := portName(m.OriginID)
		if err != nil {
			return nil, err
		}
		destination, err := portName(m.DestinationID)
		if err != nil {
			return nil, err
		}
		state, err := s.travelState(ctx, m)
		if err != nil {
			return nil, err
		}
		export.Rows = append(export.Rows, []string{
			strconv.FormatInt(m.ReservationID, 10),
			m.TicketID,
			person.Name,
			yesNo(person.Resident),
			person.Nationality,
			person.Sex,
			person.DocumentType,
			person.DocumentID,
			origin,
			destination,
			state,
		})
	}
	return export, nil
}

// travelState labels the passenger's latest register.
func (s *Service) travelState(ctx context.Context, m *models.Manifest) (string, error) {
	if !m.Confirmed() {
		return "No confirmado", nil
	}
	regs, err := s.store.FindRegisters(ctx, store.RegisterFilter{
		ScopeIDs:      store.UUIDs(m.ID),
		ExcludeDenied: true,
		Sort:          store.SortTimeDesc,
		Limit:         1,
	})
	if err != nil {
		return "", translate(err, "registers not found", "failed to list registers")
	}
	if len(regs) == 0 {
		return "Pendiente", nil
	}
	switch regs[0].Kind {
	case models.KindCheckin:
		return "Embarcado", nil
	case models.KindCheckout:
		return "Desembarcado", nil
	default:
		return "Pendiente", nil
	}
}

// accessExport emits one row per entry, joined with the departure it was
// paired with.
func (s *Service) accessExport(ctx context.Context, ref models.ScopeRef) (*Export, error) {
	ids, err := s.scopeIDs(ctx, ref)
	if err != nil {
		return nil, err
	}
	export := &Export{Sheet: "Registros", Header: AccessColumns}
	if len(ids) == 0 {
		return export, nil
	}

	entries, err := s.store.FindRegisters(ctx, store.RegisterFilter{
		ScopeIDs:            ids,
		Kinds:               []models.Kind{models.KindEntry},
		ExcludeDenied:       true,
		ExcludeUnauthorized: true,
		Sort:                store.SortTimeAsc,
	})
	if err != nil {
		return nil, translate(err, "scope not found", "failed to list registers")
	}

	sectors := map[id.SectorID]string{}
	sectorName := func(scopeID uuid.UUID) (string, error) {
		sid := id.SectorID(scopeID)
		if name, ok := sectors[sid]; ok {
			return name, nil
		}
		sec, err := s.store.FindSector(ctx, sid)
		if err != nil {
			return "", translate(err, "sector not found", "failed to load sector")
		}
		sectors[sid] = sec.Name
		return sec.Name, nil
	}
	people := map[id.PersonID]*models.Person{}

	for _, entry := range entries {
		person, ok := people[*entry.PersonID]
		if !ok {
			person, err = s.store.FindPerson(ctx, *entry.PersonID)
			if err != nil {
				return nil, translate(err, "person not found", "failed to load person")
			}
			people[person.ID] = person
		}
		entrySector, err := sectorName(entry.ScopeID)
		if err != nil {
			return nil, err
		}

		row := []string{
			person.Rut,
			person.Name,
			person.Category.Label(),
			s.formatTime(entry.Time),
			entrySector,
			entry.Comments,
			"", "", "",
		}
		if entry.ResolvedWith != nil {
			depart, err := s.store.FindRegister(ctx, *entry.ResolvedWith)
			if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return nil, translate(err, "register not found", "failed to load departure")
			}
			if depart != nil {
				row[6] = s.formatTime(depart.Time)
				if depart.ScopeKind == models.ScopeSector {
					if row[7], err = sectorName(depart.ScopeID); err != nil {
						return nil, err
					}
				}
				row[8] = depart.Comments
			}
		}
		export.Rows = append(export.Rows, row)
	}
	return export, nil
}

func (s *Service) formatTime(t time.Time) string {
	return t.In(s.loc).Format(exportTimeLayout)
}

func yesNo(b bool) string {
	if b {
		return "Si"
	}
	return "No"
}
