package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"seanav/internal/tracking/models"
	"seanav/internal/tracking/service"
	dErrors "seanav/pkg/domain-errors"
	"seanav/pkg/platform/httputil"
	"seanav/pkg/requestcontext"
)

// Service defines the tracking operations the handler exposes.
type Service interface {
	CreateManifest(ctx context.Context, req models.CreateManifestRequest) (*models.Manifest, error)
	RecordMovement(ctx context.Context, req models.RecordMovementRequest) (*models.MovementResult, error)
	GetStatistics(ctx context.Context, ref models.ScopeRef, now time.Time) (*models.StatisticsReport, error)
	ListOutstanding(ctx context.Context, ref models.ScopeRef, filter models.OutstandingFilter) ([]*models.Register, error)
	ListRegisters(ctx context.Context, ref models.ScopeRef) ([]*models.Register, error)
	ItineraryStatus(ctx context.Context, refID int64) ([]models.ItineraryStatusEntry, error)
	ExportRows(ctx context.Context, ref models.ScopeRef) (*service.Export, error)
}

// Handler wires tracking endpoints to the tracking service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a tracking handler.
func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

var scopeSegments = map[string]models.StatsScopeKind{
	"companies":   models.StatsScopeCompany,
	"sectors":     models.StatsScopeSector,
	"itineraries": models.StatsScopeItinerary,
}

// Register mounts tracking endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/manifests", h.HandleCreateManifest)
	r.Post("/api/registers", h.HandleRecordMovement)
	r.Get("/api/registers/status", h.HandleItineraryStatus)

	for segment, kind := range scopeSegments {
		r.Get("/api/"+segment+"/{id}/statistics", h.HandleStatistics(kind))
		r.Get("/api/"+segment+"/{id}/registers", h.HandleListRegisters(kind))
		r.Get("/api/"+segment+"/{id}/registers/outstanding", h.HandleListOutstanding(kind))
	}
	r.Get("/api/sectors/{id}/registers/export", h.HandleExport(models.StatsScopeSector))
	r.Get("/api/companies/{id}/registers/export", h.HandleExport(models.StatsScopeCompany))
	r.Get("/api/itineraries/{id}/manifests/export", h.HandleExport(models.StatsScopeItinerary))
}

// HandleCreateManifest handles POST /api/manifests.
func (h *Handler) HandleCreateManifest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[CreateManifestRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	manifest, err := h.service.CreateManifest(ctx, req.ToModel())
	if err != nil {
		h.logger.ErrorContext(ctx, "manifest creation failed",
			"request_id", requestID,
			"reservation_id", req.ReservationID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "manifest created",
		"request_id", requestID,
		"manifest_id", manifest.ID.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, manifest)
}

// HandleRecordMovement handles POST /api/registers. The Idempotency-Key
// header is used when the body carries none.
func (h *Handler) HandleRecordMovement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[RecordMovementRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	result, err := h.service.RecordMovement(ctx, req.ToModel(requestcontext.Now(ctx)))
	if err != nil {
		h.logger.ErrorContext(ctx, "movement recording failed",
			"request_id", requestID,
			"kind", req.Kind,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	h.logger.InfoContext(ctx, "movement recorded",
		"request_id", requestID,
		"register_id", result.Register.ID.String(),
		"replayed", result.Replayed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, status, result)
}

// HandleItineraryStatus handles GET /api/registers/status?itinerary=<refId>.
func (h *Handler) HandleItineraryStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	refID, err := strconv.ParseInt(r.URL.Query().Get("itinerary"), 10, 64)
	if err != nil || refID <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "itinerary must be a positive reference id"))
		return
	}

	entries, err := h.service.ItineraryStatus(ctx, refID)
	if err != nil {
		h.logger.ErrorContext(ctx, "itinerary status failed",
			"request_id", requestcontext.RequestID(ctx),
			"itinerary_ref", refID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

// HandleStatistics handles GET /api/{scope}/{id}/statistics.
func (h *Handler) HandleStatistics(kind models.StatsScopeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()
		ref, ok := scopeRef(w, r, kind)
		if !ok {
			return
		}

		report, err := h.service.GetStatistics(ctx, ref, requestcontext.Now(ctx))
		if err != nil {
			h.logScopeError(ctx, "statistics failed", ref, err)
			httputil.WriteError(w, err)
			return
		}
		h.logger.InfoContext(ctx, "statistics computed",
			"request_id", requestcontext.RequestID(ctx),
			"scope_kind", string(ref.Kind),
			"scope_id", ref.ID.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		httputil.WriteJSON(w, http.StatusOK, report)
	}
}

// HandleListOutstanding handles GET /api/{scope}/{id}/registers/outstanding.
func (h *Handler) HandleListOutstanding(kind models.StatsScopeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ref, ok := scopeRef(w, r, kind)
		if !ok {
			return
		}
		filter, err := parseOutstandingFilter(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		limit, err := parseLimit(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		regs, err := h.service.ListOutstanding(ctx, ref, filter)
		if err != nil {
			h.logScopeError(ctx, "outstanding listing failed", ref, err)
			httputil.WriteError(w, err)
			return
		}
		if limit > 0 && len(regs) > limit {
			regs = regs[:limit]
		}
		httputil.WriteJSON(w, http.StatusOK, regs)
	}
}

// HandleListRegisters handles GET /api/{scope}/{id}/registers.
func (h *Handler) HandleListRegisters(kind models.StatsScopeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ref, ok := scopeRef(w, r, kind)
		if !ok {
			return
		}

		regs, err := h.service.ListRegisters(ctx, ref)
		if err != nil {
			h.logScopeError(ctx, "register listing failed", ref, err)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, regs)
	}
}

// HandleExport streams the scope's sheet as an xlsx workbook.
func (h *Handler) HandleExport(kind models.StatsScopeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ref, ok := scopeRef(w, r, kind)
		if !ok {
			return
		}

		export, err := h.service.ExportRows(ctx, ref)
		if err != nil {
			h.logScopeError(ctx, "export failed", ref, err)
			httputil.WriteError(w, err)
			return
		}
		if err := writeWorkbook(w, export, exportFilename(ref)); err != nil {
			h.logScopeError(ctx, "export rendering failed", ref, err)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render export"))
		}
	}
}

func (h *Handler) logScopeError(ctx context.Context, msg string, ref models.ScopeRef, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"scope_kind", string(ref.Kind),
		"scope_id", ref.ID.String(),
		"error", err,
	)
}

func scopeRef(w http.ResponseWriter, r *http.Request, kind models.StatsScopeKind) (models.ScopeRef, bool) {
	raw := chi.URLParam(r, "id")
	parsed, err := uuid.Parse(raw)
	if err != nil || parsed == uuid.Nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid "+string(kind)+" id"))
		return models.ScopeRef{}, false
	}
	return models.ScopeRef{Kind: kind, ID: parsed}, true
}

func parseOutstandingFilter(r *http.Request) (models.OutstandingFilter, error) {
	q := r.URL.Query()
	var f models.OutstandingFilter

	if raw := q.Get("type"); raw != "" {
		cat, err := models.ParseCategory(raw)
		if err != nil {
			return f, err
		}
		f.Category = cat
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, dErrors.New(dErrors.CodeBadRequest, p.name+" must be an RFC 3339 timestamp")
		}
		*p.dst = t
	}
	if raw := q.Get("includeUnmatched"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return f, dErrors.New(dErrors.CodeBadRequest, "includeUnmatched must be a boolean")
		}
		f.IncludeUnmatched = b
	}
	return f, nil
}

// parseLimit reads the optional page size; zero means unbounded.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer")
	}
	return n, nil
}
