package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"seanav/internal/tracking/models"
	"seanav/internal/tracking/notify"
	"seanav/internal/tracking/store"
	id "seanav/pkg/domain"
	dErrors "seanav/pkg/domain-errors"
	"seanav/pkg/platform/sentinel"
	"seanav/pkg/requestcontext"
)

// movementScope is the resolved target of a movement.
type movementScope struct {
	sector    *models.Sector
	manifest  *models.Manifest
	itinerary *models.Itinerary
}

// RecordMovement stores one movement and reconciles it against the person's
// open registers. A repeated idempotency key returns the stored register.
func (s *Service) RecordMovement(ctx context.Context, req models.RecordMovementRequest) (_ *models.MovementResult, err error) {
	ctx, span := s.startSpan(ctx, "RecordMovement")
	defer func() { endSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("scope_kind", string(req.Scope.Kind)),
		attribute.String("kind", string(req.Kind)),
	)

	if replay, err := s.replay(ctx, req.IdempotencyKey); replay != nil || err != nil {
		return replay, err
	}

	scope, err := s.loadScope(ctx, req.Scope)
	if err != nil {
		return nil, err
	}
	person, err := s.resolvePerson(ctx, req, scope)
	if err != nil {
		return nil, err
	}

	reg := &models.Register{
		ID:             id.NewRegisterID(),
		ScopeKind:      req.Scope.Kind,
		ScopeID:        req.Scope.ID,
		Kind:           req.Kind,
		Time:           req.Time,
		IsOnboard:      req.IsOnboard,
		IsDenied:       req.IsDenied,
		DeniedReason:   req.DeniedReason,
		Comments:       req.Comments,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      requestcontext.Now(ctx),
	}
	if scope.manifest != nil {
		if err := s.attachSeaport(ctx, req, scope, reg); err != nil {
			return nil, err
		}
	}

	var result *models.MovementResult
	if person == nil {
		reg.IsUnauthorized = true
		reg.UnauthorizedRut = req.Rut
		result, err = s.recordUnauthorized(ctx, reg)
	} else {
		personID := person.ID
		reg.PersonID = &personID
		reg.PersonCategory = person.Category
		result, err = s.engine.Run(ctx, store.PersonKey(person.ID), s.movementUnit(reg))
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) && req.IdempotencyKey != "" {
			if replay, rerr := s.replay(ctx, req.IdempotencyKey); replay != nil || rerr != nil {
				return replay, rerr
			}
		}
		return nil, translate(err, "register dependency not found", "failed to record movement")
	}

	s.metrics.IncRegisterRecorded(string(result.Register.Kind))
	s.logger.InfoContext(ctx, "movement recorded",
		"request_id", requestcontext.RequestID(ctx),
		"register_id", result.Register.ID.String(),
		"kind", string(result.Register.Kind),
		"scope_kind", string(result.Register.ScopeKind),
		"resolution", string(result.Register.Resolution),
		"paired", result.Counterpart != nil,
	)
	s.publishMovement(ctx, result)
	return result, nil
}

func (s *Service) replay(ctx context.Context, key string) (*models.MovementResult, error) {
	if key == "" {
		return nil, nil
	}
	existing, err := s.store.FindRegisterByIdempotencyKey(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "register not found", "failed to look up idempotency key")
	}
	result := &models.MovementResult{Register: existing, Replayed: true}
	if existing.ResolvedWith != nil {
		counter, err := s.store.FindRegister(ctx, *existing.ResolvedWith)
		if err != nil {
			return nil, translate(err, "counter register not found", "failed to load counter register")
		}
		result.Counterpart = counter
	}
	return result, nil
}

func (s *Service) loadScope(ctx context.Context, ref models.RegisterScope) (*movementScope, error) {
	switch ref.Kind {
	case models.ScopeSector:
		sector, err := s.store.FindSector(ctx, id.SectorID(ref.ID))
		if err != nil {
			return nil, translate(err, "sector not found", "failed to load sector")
		}
		return &movementScope{sector: sector}, nil
	default:
		manifest, err := s.store.FindManifest(ctx, id.ManifestID(ref.ID))
		if err != nil {
			return nil, translate(err, "manifest not found", "failed to load manifest")
		}
		itinerary, err := s.store.FindItinerary(ctx, manifest.ItineraryID)
		if err != nil {
			return nil, translate(err, "itinerary not found", "failed to load itinerary")
		}
		return &movementScope{manifest: manifest, itinerary: itinerary}, nil
	}
}

// resolvePerson returns nil for an unknown rut, which records the movement
// as unauthorized.
func (s *Service) resolvePerson(ctx context.Context, req models.RecordMovementRequest, scope *movementScope) (*models.Person, error) {
	var (
		person *models.Person
		err    error
	)
	switch {
	case req.PersonID != nil:
		person, err = s.store.FindPerson(ctx, *req.PersonID)
		if err != nil {
			return nil, translate(err, "person not found", "failed to load person")
		}
	case req.Rut != "":
		person, err = s.store.FindPersonByRut(ctx, req.Rut)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, translate(err, "person not found", "failed to load person")
		}
	case scope.manifest != nil:
		person, err = s.store.FindPerson(ctx, scope.manifest.PersonID)
		if err != nil {
			return nil, translate(err, "passenger not found", "failed to load passenger")
		}
		if req.DocumentID != "" && req.DocumentID != person.DocumentID {
			return nil, dErrors.New(dErrors.CodeNotFound, "document does not match the manifest passenger")
		}
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "person or rut is required")
	}

	if scope.manifest != nil && person.ID != scope.manifest.PersonID {
		return nil, dErrors.New(dErrors.CodeInvalidState, "person is not the manifest passenger")
	}
	return person, nil
}

// attachSeaport sets the check-in or check-out seaport of a travel register.
func (s *Service) attachSeaport(ctx context.Context, req models.RecordMovementRequest, scope *movementScope, reg *models.Register) error {
	var port *models.Seaport
	switch {
	case req.SeaportID != nil:
		p, err := s.store.FindSeaport(ctx, *req.SeaportID)
		if err != nil {
			return translate(err, "seaport not found", "failed to load seaport")
		}
		port = p
	case req.SeaportName != "":
		p, err := s.resolver.ResolveWithin(ctx, req.SeaportName, scope.itinerary.SeaportIDs)
		if err != nil {
			return err
		}
		port = p
	default:
		return nil
	}

	portID := port.ID
	switch {
	case reg.Kind == models.KindCheckin:
		reg.SeaportCheckin = &portID
	case reg.Kind == models.KindCheckout:
		reg.SeaportCheckout = &portID
	}
	return nil
}

// movementUnit persists reg (or upgrades the passenger's pending register)
// and reconciles it. It is safe to rerun after a conflict: a register
// already written by an earlier attempt is reloaded instead of recreated.
func (s *Service) movementUnit(reg *models.Register) func(ctx context.Context, st store.Store) (*models.MovementResult, error) {
	target := reg.ID
	return func(ctx context.Context, st store.Store) (*models.MovementResult, error) {
		stored, err := st.FindRegister(ctx, target)
		switch {
		case err == nil && stored.Kind == models.KindPending:
			stored, err = upgradePending(ctx, st, stored, reg)
		case errors.Is(err, sentinel.ErrNotFound):
			stored, err = s.persist(ctx, st, reg)
		}
		if err != nil {
			return nil, err
		}
		target = stored.ID
		return s.engine.ReconcileIn(ctx, st, stored)
	}
}

func (s *Service) persist(ctx context.Context, st store.Store, reg *models.Register) (*models.Register, error) {
	if reg.Kind == models.KindCheckin && reg.ScopeKind == models.ScopeManifest && !reg.IsDenied {
		pending, err := st.FindRegisters(ctx, store.RegisterFilter{
			PersonID: reg.PersonID,
			ScopeIDs: []uuid.UUID{reg.ScopeID},
			Kinds:    []models.Kind{models.KindPending},
			Limit:    1,
		})
		if err != nil {
			return nil, err
		}
		if len(pending) > 0 {
			return upgradePending(ctx, st, pending[0], reg)
		}
	}
	stored := reg.Clone()
	if err := st.CreateRegister(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// upgradePending turns a pending travel register into the check-in it was
// waiting for, keeping its id.
func upgradePending(ctx context.Context, st store.Store, pending, checkin *models.Register) (*models.Register, error) {
	pending.Kind = models.KindCheckin
	pending.Time = checkin.Time
	pending.IsOnboard = true
	pending.SeaportCheckin = checkin.SeaportCheckin
	if checkin.Comments != "" {
		pending.Comments = checkin.Comments
	}
	if err := st.UpdateRegister(ctx, pending); err != nil {
		return nil, err
	}
	return pending, nil
}

func (s *Service) recordUnauthorized(ctx context.Context, reg *models.Register) (*models.MovementResult, error) {
	s.logger.WarnContext(ctx, "movement by unknown rut recorded as unauthorized",
		"request_id", requestcontext.RequestID(ctx),
		"scope_id", reg.ScopeID.String(),
		"kind", string(reg.Kind),
	)
	if err := s.store.CreateRegister(ctx, reg); err != nil {
		return nil, err
	}
	return &models.MovementResult{Register: reg}, nil
}

func (s *Service) publishMovement(ctx context.Context, result *models.MovementResult) {
	reg := result.Register
	s.notifier.Publish(ctx, notify.Notification{
		Event:    notify.EventRegisterCreated,
		ScopeID:  reg.ScopeID,
		Register: reg,
	})
	if result.Counterpart != nil {
		s.notifier.Publish(ctx, notify.Notification{
			Event:       notify.EventRegisterResolved,
			ScopeID:     reg.ScopeID,
			Register:    reg,
			Counterpart: result.Counterpart,
		})
	}
}
