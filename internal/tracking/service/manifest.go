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

// CreateManifest books a passenger on an active itinerary. The manifest, the
// passenger and the initial register are written together or not at all.
func (s *Service) CreateManifest(ctx context.Context, req models.CreateManifestRequest) (_ *models.Manifest, err error) {
	ctx, span := s.startSpan(ctx, "CreateManifest")
	defer func() { endSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	itinerary, err := s.loadItinerary(ctx, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("itinerary_id", itinerary.ID.String()))
	if !itinerary.Active {
		return nil, dErrors.New(dErrors.CodeInvalidState, "itinerary is not active")
	}

	origin, err := s.resolver.ResolveWithin(ctx, req.OriginName, itinerary.SeaportIDs)
	if err != nil {
		return nil, err
	}
	destination, err := s.resolver.ResolveWithin(ctx, req.DestinationName, itinerary.SeaportIDs)
	if err != nil {
		return nil, err
	}

	bundle := s.buildBundle(ctx, req, itinerary, origin, destination)
	_, err = s.engine.Run(ctx, store.ItineraryKey(itinerary.ID), func(ctx context.Context, st store.Store) (*models.MovementResult, error) {
		if err := st.CreateManifest(ctx, bundle); err != nil {
			return nil, err
		}
		return s.engine.ReconcileIn(ctx, st, bundle.Register)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "manifest already exists")
		}
		return nil, translate(err, "manifest dependency not found", "failed to create manifest")
	}

	s.metrics.IncManifestCreated()
	s.metrics.IncRegisterRecorded(string(bundle.Register.Kind))
	s.logger.InfoContext(ctx, "manifest created",
		"request_id", requestcontext.RequestID(ctx),
		"manifest_id", bundle.Manifest.ID.String(),
		"itinerary_id", itinerary.ID.String(),
		"register_kind", string(bundle.Register.Kind),
	)
	s.notifier.Publish(ctx, notify.Notification{
		Event:    notify.EventManifestCreated,
		ScopeID:  uuid.UUID(bundle.Manifest.ID),
		Manifest: bundle.Manifest,
	})
	s.notifier.Publish(ctx, notify.Notification{
		Event:    notify.EventRegisterCreated,
		ScopeID:  uuid.UUID(bundle.Manifest.ID),
		Register: bundle.Register,
	})
	return bundle.Manifest, nil
}

func (s *Service) loadItinerary(ctx context.Context, req models.CreateManifestRequest) (*models.Itinerary, error) {
	var (
		it  *models.Itinerary
		err error
	)
	if !req.ItineraryID.IsNil() {
		it, err = s.store.FindItinerary(ctx, req.ItineraryID)
	} else {
		it, err = s.store.FindItineraryByRefID(ctx, req.ItineraryRefID)
	}
	if err != nil {
		return nil, translate(err, "itinerary not found", "failed to load itinerary")
	}
	return it, nil
}

func (s *Service) buildBundle(ctx context.Context, req models.CreateManifestRequest, it *models.Itinerary, origin, destination *models.Seaport) models.ManifestBundle {
	now := requestcontext.Now(ctx)

	person := &models.Person{
		ID:           id.NewPersonID(),
		Name:         req.Person.Name,
		DocumentID:   req.Person.DocumentID,
		DocumentType: req.Person.DocumentType,
		Nationality:  req.Person.Nationality,
		Sex:          req.Person.Sex,
		Resident:     req.Person.Resident,
		Category:     models.CategoryVisitor,
		Active:       true,
		CreatedAt:    now,
	}

	status := models.ReservationConfirmed
	if req.ReservationStatus != nil {
		status = *req.ReservationStatus
	}
	manifest := &models.Manifest{
		ID:                id.NewManifestID(),
		ItineraryID:       it.ID,
		ReservationID:     req.ReservationID,
		ReservationStatus: status,
		TicketID:          req.TicketID,
		OriginID:          origin.ID,
		DestinationID:     destination.ID,
		PersonID:          person.ID,
		CreatedAt:         now,
	}

	personID := person.ID
	register := &models.Register{
		ID:             id.NewRegisterID(),
		PersonID:       &personID,
		ScopeKind:      models.ScopeManifest,
		ScopeID:        uuid.UUID(manifest.ID),
		Kind:           models.KindPending,
		Time:           now,
		PersonCategory: models.CategoryVisitor,
		IsOnboard:      req.IsOnboard,
		CreatedAt:      now,
	}
	if req.IsOnboard {
		originID := origin.ID
		register.Kind = models.KindCheckin
		register.SeaportCheckin = &originID
	}
	manifest.RegisterID = register.ID

	return models.ManifestBundle{Manifest: manifest, Person: person, Register: register}
}

// ItineraryStatus lists the register states of every confirmed passenger of
// the itinerary with the given reference id. An unknown itinerary yields an
// empty list.
func (s *Service) ItineraryStatus(ctx context.Context, refID int64) (_ []models.ItineraryStatusEntry, err error) {
	ctx, span := s.startSpan(ctx, "ItineraryStatus")
	defer func() { endSpan(span, err) }()

	it, err := s.store.FindItineraryByRefID(ctx, refID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return []models.ItineraryStatusEntry{}, nil
	}
	if err != nil {
		return nil, translate(err, "itinerary not found", "failed to load itinerary")
	}

	manifests, err := s.store.ListManifestsByItinerary(ctx, it.ID)
	if err != nil {
		return nil, translate(err, "itinerary not found", "failed to list manifests")
	}

	out := []models.ItineraryStatusEntry{}
	for _, m := range manifests {
		if !m.Confirmed() {
			continue
		}
		person, err := s.store.FindPerson(ctx, m.PersonID)
		if err != nil {
			return nil, translate(err, "passenger not found", "failed to load passenger")
		}
		regs, err := s.store.FindRegisters(ctx, store.RegisterFilter{
			ScopeIDs: store.UUIDs(m.ID),
			Sort:     store.SortTimeAsc,
		})
		if err != nil {
			return nil, translate(err, "registers not found", "failed to list registers")
		}
		for _, r := range regs {
			out = append(out, models.ItineraryStatusEntry{DocumentID: person.DocumentID, State: r.Kind})
		}
	}
	return out, nil
}
