// Package service implements the check-in coordination pipeline.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"presence/internal/checkin/models"
	"presence/internal/checkin/validate"
	id "presence/pkg/domain"
	dErrors "presence/pkg/domain-errors"
	"presence/pkg/platform/sentinel"
	"presence/pkg/requestcontext"
)

// Rejection reasons surfaced to callers.
const (
	ReasonDuplicate = "duplicate"
	ReasonInactive  = "inactive"
	ReasonNotFound  = "not_found"
)

// AttendanceStore is the durable record of successful check-ins. Record must
// enforce at-most-once per (registration, event) atomically at the storage
// layer and return sentinel.ErrConflict for the losers.
type AttendanceStore interface {
	Record(ctx context.Context, rec models.AttendanceRecord) (models.AttendanceRecord, error)
	Exists(ctx context.Context, registrationID id.RegistrationID, eventID id.EventID) (bool, error)
	Find(ctx context.Context, registrationID id.RegistrationID, eventID id.EventID) (models.AttendanceRecord, error)
	FindByRegistration(ctx context.Context, registrationID id.RegistrationID) (models.AttendanceRecord, error)
	ListByEvent(ctx context.Context, eventID id.EventID) ([]models.AttendanceRecord, error)
}

// AuditRecorder appends one entry per attempt and never fails the caller.
type AuditRecorder interface {
	Record(ctx context.Context, input models.CheckinInput, action models.Action, failureReason string)
}

// PairValidator confirms the event is live and the registration active.
type PairValidator interface {
	Validate(ctx context.Context, eventID id.EventID, registrationID id.RegistrationID) (validate.Result, error)
}

// OutcomeObserver feeds the metrics pipeline; nil-safe via noopObserver.
type OutcomeObserver interface {
	ObserveCheckin(origin, status string)
	ObserveSyncItem(status string)
}

type noopObserver struct{}

func (noopObserver) ObserveCheckin(string, string) {}
func (noopObserver) ObserveSyncItem(string)        {}

// Service is the stateless check-in gateway. All serialization happens in the
// attendance store's uniqueness constraint; the service holds no locks.
type Service struct {
	attendance AttendanceStore
	auditor    AuditRecorder
	validator  PairValidator
	observer   OutcomeObserver
	logger     *slog.Logger
}

func New(attendance AttendanceStore, auditor AuditRecorder, validator PairValidator, observer OutcomeObserver, logger *slog.Logger) *Service {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Service{
		attendance: attendance,
		auditor:    auditor,
		validator:  validator,
		observer:   observer,
		logger:     logger,
	}
}

// Checkin runs one attempt through the pipeline:
// authorize, audit the attempt, short-circuit known duplicates, validate
// upstream state, write, audit the terminal outcome.
//
// Business classifications (accepted, duplicate, rejected) come back as a
// CheckinResult with a nil error. Errors are reserved for authorization,
// upstream unavailability, and storage failures.
func (s *Service) Checkin(ctx context.Context, input models.CheckinInput) (models.CheckinResult, error) {
	if !requestcontext.RoleOf(ctx).CanOperateCheckin() {
		return models.CheckinResult{}, dErrors.New(dErrors.CodeForbidden, "role may not record check-ins")
	}
	if !input.Origin.Valid() {
		return models.CheckinResult{}, dErrors.New(dErrors.CodeBadRequest, "unknown origin")
	}

	attemptAction := models.ActionAttempt
	if input.Origin == models.OriginOffline {
		attemptAction = models.ActionOfflineSync
	}
	s.auditor.Record(ctx, input, attemptAction, "")

	result, err := s.settle(ctx, input)
	if err != nil {
		s.observer.ObserveCheckin(string(input.Origin), "error")
		return models.CheckinResult{}, err
	}
	s.observer.ObserveCheckin(string(input.Origin), string(result.Status))
	return result, nil
}

// settle runs the pipeline after the attempt entry is written, so every exit
// path below appends exactly one terminal audit entry.
func (s *Service) settle(ctx context.Context, input models.CheckinInput) (models.CheckinResult, error) {
	// Cheap probe to avoid wasted upstream calls for known duplicates. The
	// authoritative rejection still happens at write time.
	exists, err := s.attendance.Exists(ctx, input.RegistrationID, input.EventID)
	if err != nil {
		s.auditor.Record(ctx, input, models.ActionFailure, "attendance probe failed")
		return models.CheckinResult{}, dErrors.Wrap(dErrors.CodeInternal, "attendance probe failed", err)
	}
	if exists {
		return s.duplicate(ctx, input), nil
	}

	// Offline-origin check-ins skip upstream validation; the device already
	// accepted them while disconnected.
	if input.Origin != models.OriginOffline {
		validation, err := s.validator.Validate(ctx, input.EventID, input.RegistrationID)
		if err != nil {
			s.auditor.Record(ctx, input, models.ActionFailure, dErrors.MessageOf(err))
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return models.CheckinResult{Status: models.StatusRejected, Reason: ReasonNotFound}, nil
			}
			return models.CheckinResult{}, err
		}
		if !validation.EventActive {
			s.auditor.Record(ctx, input, models.ActionFailure, "event inactive")
			return models.CheckinResult{Status: models.StatusRejected, Reason: ReasonInactive}, nil
		}
		if !validation.RegistrationActive {
			s.auditor.Record(ctx, input, models.ActionFailure, "registration inactive")
			return models.CheckinResult{Status: models.StatusRejected, Reason: ReasonInactive}, nil
		}
	}

	recordedAt := input.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	rec := models.AttendanceRecord{
		ID:             uuid.New(),
		RegistrationID: input.RegistrationID,
		EventID:        input.EventID,
		RecordedAt:     recordedAt,
		Origin:         input.Origin,
	}
	if operatorID := requestcontext.OperatorID(ctx); !operatorID.IsNil() {
		rec.OperatorID = &operatorID
	}

	created, err := s.attendance.Record(ctx, rec)
	if err != nil {
		// Race lost between the probe and the write: the constraint is the
		// sole serialization point, so this is an expected outcome.
		if errors.Is(err, sentinel.ErrConflict) {
			return s.duplicate(ctx, input), nil
		}
		s.auditor.Record(ctx, input, models.ActionFailure, "attendance write failed")
		return models.CheckinResult{}, dErrors.Wrap(dErrors.CodeInternal, "attendance write failed", err)
	}

	s.auditor.Record(ctx, input, models.ActionSuccess, "")
	return models.CheckinResult{Status: models.StatusAccepted, Record: &created}, nil
}

func (s *Service) duplicate(ctx context.Context, input models.CheckinInput) models.CheckinResult {
	s.auditor.Record(ctx, input, models.ActionFailure, ReasonDuplicate)

	result := models.CheckinResult{Status: models.StatusDuplicate, Reason: ReasonDuplicate}
	existing, err := s.attendance.Find(ctx, input.RegistrationID, input.EventID)
	if err == nil {
		result.Record = &existing
	}
	return result
}

// OfflineSync reconciles a batch of queued offline check-ins. Each item runs
// the pipeline independently with validation skipped; one item's failure
// never aborts the rest.
func (s *Service) OfflineSync(ctx context.Context, items []models.SyncItem) (models.SyncReport, error) {
	if !requestcontext.RoleOf(ctx).CanOperateCheckin() {
		return models.SyncReport{}, dErrors.New(dErrors.CodeForbidden, "role may not sync check-ins")
	}

	report := models.SyncReport{Total: len(items)}
	for _, item := range items {
		itemResult := s.syncOne(ctx, item)
		switch itemResult.Status {
		case models.StatusAccepted:
			report.Accepted++
		case models.StatusDuplicate:
			report.Duplicate++
		default:
			report.Failed++
		}
		s.observer.ObserveSyncItem(string(itemResult.Status))
		report.Results = append(report.Results, itemResult)
	}
	return report, nil
}

func (s *Service) syncOne(ctx context.Context, item models.SyncItem) models.SyncItemResult {
	input := models.CheckinInput{
		RegistrationID: item.RegistrationID,
		EventID:        item.EventID,
		RecordedAt:     item.RecordedAt,
		Origin:         models.OriginOffline,
		RawPayload:     item.RawPayload,
	}

	s.auditor.Record(ctx, input, models.ActionOfflineSync, "")

	result, err := s.settle(ctx, input)
	if err != nil {
		s.logger.WarnContext(ctx, "offline sync item failed",
			"registration_id", item.RegistrationID.String(),
			"event_id", item.EventID.String(),
			"error", err,
		)
		return models.SyncItemResult{
			RegistrationID: item.RegistrationID,
			EventID:        item.EventID,
			Status:         models.StatusRejected,
			Reason:         string(dErrors.CodeOf(err)),
		}
	}

	return models.SyncItemResult{
		RegistrationID: item.RegistrationID,
		EventID:        item.EventID,
		Status:         result.Status,
		Reason:         result.Reason,
	}
}

// AttendanceStatus reports whether a registration has a recorded attendance.
type AttendanceStatus struct {
	HasAttendance bool
	Record        *models.AttendanceRecord
}

// Status looks up the attendance state for one registration. Any
// authenticated role may call it.
func (s *Service) Status(ctx context.Context, registrationID id.RegistrationID) (AttendanceStatus, error) {
	rec, err := s.attendance.FindByRegistration(ctx, registrationID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return AttendanceStatus{}, nil
	}
	if err != nil {
		return AttendanceStatus{}, dErrors.Wrap(dErrors.CodeInternal, "attendance lookup failed", err)
	}
	return AttendanceStatus{HasAttendance: true, Record: &rec}, nil
}
