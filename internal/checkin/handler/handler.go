// Package handler wires the check-in HTTP surface to the services behind it.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"presence/internal/checkin/models"
	"presence/internal/checkin/service"
	"presence/internal/platform/middleware"
	id "presence/pkg/domain"
	dErrors "presence/pkg/domain-errors"
	"presence/pkg/platform/httputil"
	"presence/pkg/requestcontext"
)

// maxBodyBytes bounds request bodies; a full sync batch fits well under it.
const maxBodyBytes = 1 << 20

// CheckinService defines the interface for check-in operations.
type CheckinService interface {
	Checkin(ctx context.Context, input models.CheckinInput) (models.CheckinResult, error)
	OfflineSync(ctx context.Context, items []models.SyncItem) (models.SyncReport, error)
	Status(ctx context.Context, registrationID id.RegistrationID) (service.AttendanceStatus, error)
}

// RosterService defines the interface for roster downloads.
type RosterService interface {
	Get(ctx context.Context, eventID id.EventID) (models.Roster, error)
}

// Handler wires check-in endpoints to the check-in and roster services.
type Handler struct {
	checkins CheckinService
	rosters  RosterService
	logger   *slog.Logger
}

// New constructs a check-in handler with its dependencies.
func New(checkins CheckinService, rosters RosterService, logger *slog.Logger) *Handler {
	return &Handler{
		checkins: checkins,
		rosters:  rosters,
		logger:   logger,
	}
}

// Register mounts check-in endpoints on the router. Write endpoints carry
// the operator role gate; any authenticated caller may read.
func (h *Handler) Register(r chi.Router) {
	operatorOnly := middleware.RequireCheckinOperator(h.logger)
	r.With(operatorOnly).Post("/checkin", h.HandleCheckin)
	r.With(operatorOnly).Post("/checkin/offline-sync", h.HandleOfflineSync)
	r.Get("/events/{eventID}/attendance-roster", h.HandleRoster)
	r.Get("/attendance/{registrationID}", h.HandleStatus)
}

// HandleCheckin handles POST /checkin requests.
//
// The body is buffered before decoding so the untouched snapshot can travel
// into the audit trail.
func (h *Handler) HandleCheckin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable request body"))
		return
	}

	var req CheckinRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.logger.WarnContext(ctx, "malformed check-in body",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.checkins.Checkin(ctx, req.ToInput(raw))
	if err != nil {
		h.logger.ErrorContext(ctx, "check-in failed",
			"request_id", requestID,
			"registration_id", req.RegistrationID,
			"event_id", req.EventID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "check-in classified",
		"request_id", requestID,
		"registration_id", req.RegistrationID,
		"event_id", req.EventID,
		"origin", req.Origin,
		"status", result.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, statusForResult(result.Status), fromResult(result))
}

func statusForResult(status models.CheckinStatus) int {
	switch status {
	case models.StatusAccepted:
		return http.StatusCreated
	case models.StatusDuplicate:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

// HandleOfflineSync handles POST /checkin/offline-sync requests.
//
// Items that fail to parse are classified in place instead of aborting the
// batch; the device clears its queue based on per-item results.
func (h *Handler) HandleOfflineSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[SyncRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	items := make([]models.SyncItem, 0, len(req.Checkins))
	malformed := make(map[int]SyncItemResponse)
	for i, wireItem := range req.Checkins {
		item, err := wireItem.Parse()
		if err != nil {
			malformed[i] = SyncItemResponse{
				RegistrationID: wireItem.RegistrationID,
				EventID:        wireItem.EventID,
				Status:         string(models.StatusRejected),
				Reason:         string(dErrors.CodeInvalidInput),
			}
			continue
		}
		items = append(items, item)
	}

	report, err := h.checkins.OfflineSync(ctx, items)
	if err != nil {
		h.logger.ErrorContext(ctx, "offline sync failed",
			"request_id", requestID,
			"items", len(req.Checkins),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := mergeMalformed(report, malformed, len(req.Checkins))

	h.logger.InfoContext(ctx, "offline sync reconciled",
		"request_id", requestID,
		"total", resp.Total,
		"accepted", resp.Accepted,
		"duplicate", resp.Duplicate,
		"failed", resp.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// mergeMalformed splices pre-parse failures back into the report so results
// line up with the submitted item order.
func mergeMalformed(report models.SyncReport, malformed map[int]SyncItemResponse, total int) SyncResponse {
	resp := fromReport(report)
	if len(malformed) == 0 {
		return resp
	}

	merged := make([]SyncItemResponse, 0, total)
	next := 0
	for i := 0; i < total; i++ {
		if failure, ok := malformed[i]; ok {
			merged = append(merged, failure)
			continue
		}
		if next < len(resp.Results) {
			merged = append(merged, resp.Results[next])
			next++
		}
	}

	resp.Total = total
	resp.Failed += len(malformed)
	resp.Results = merged
	return resp
}

// HandleRoster handles GET /events/{eventID}/attendance-roster requests.
func (h *Handler) HandleRoster(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	roster, err := h.rosters.Get(ctx, eventID)
	if err != nil {
		h.logger.ErrorContext(ctx, "roster build failed",
			"request_id", requestcontext.RequestID(ctx),
			"event_id", eventID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, fromRoster(roster))
}

// HandleStatus handles GET /attendance/{registrationID} requests.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	registrationID, err := id.ParseRegistrationID(chi.URLParam(r, "registrationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	status, err := h.checkins.Status(ctx, registrationID)
	if err != nil {
		h.logger.ErrorContext(ctx, "attendance lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"registration_id", registrationID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, fromStatus(registrationID.String(), status))
}
