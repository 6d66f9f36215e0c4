package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence/internal/checkin/models"
	"presence/internal/checkin/store/attendance"
	"presence/internal/checkin/validate"
	id "presence/pkg/domain"
	dErrors "presence/pkg/domain-errors"
	"presence/pkg/requestcontext"
)

type auditCall struct {
	action models.Action
	reason string
}

type auditSpy struct {
	calls []auditCall
}

func (a *auditSpy) Record(_ context.Context, _ models.CheckinInput, action models.Action, failureReason string) {
	a.calls = append(a.calls, auditCall{action: action, reason: failureReason})
}

type stubValidator struct {
	result validate.Result
	err    error
	calls  int
}

func (s *stubValidator) Validate(context.Context, id.EventID, id.RegistrationID) (validate.Result, error) {
	s.calls++
	return s.result, s.err
}

func bothActive() *stubValidator {
	return &stubValidator{result: validate.Result{EventActive: true, RegistrationActive: true}}
}

type fixture struct {
	service    *Service
	attendance *attendance.InMemoryStore
	audit      *auditSpy
	validator  *stubValidator
}

func newFixture(validator *stubValidator) *fixture {
	store := attendance.NewInMemory()
	audit := &auditSpy{}
	return &fixture{
		service:    New(store, audit, validator, nil, slog.New(slog.NewTextHandler(io.Discard, nil))),
		attendance: store,
		audit:      audit,
		validator:  validator,
	}
}

func attendantContext(t *testing.T) context.Context {
	t.Helper()
	operatorID, err := id.ParseOperatorID(uuid.NewString())
	require.NoError(t, err)
	return requestcontext.WithOperator(context.Background(), operatorID, requestcontext.RoleAttendant)
}

func onlineInput(t *testing.T) models.CheckinInput {
	t.Helper()
	return models.CheckinInput{
		RegistrationID: newRegistrationID(t),
		EventID:        newEventID(t),
		Origin:         models.OriginOnline,
	}
}

func newRegistrationID(t *testing.T) id.RegistrationID {
	t.Helper()
	registrationID, err := id.ParseRegistrationID(uuid.NewString())
	require.NoError(t, err)
	return registrationID
}

func newEventID(t *testing.T) id.EventID {
	t.Helper()
	eventID, err := id.ParseEventID(uuid.NewString())
	require.NoError(t, err)
	return eventID
}

func TestService_Checkin_Accepted(t *testing.T) {
	f := newFixture(bothActive())
	ctx := attendantContext(t)
	input := onlineInput(t)

	result, err := f.service.Checkin(ctx, input)

	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, result.Status)
	require.NotNil(t, result.Record)
	assert.Equal(t, input.RegistrationID, result.Record.RegistrationID)
	assert.Equal(t, input.EventID, result.Record.EventID)
	require.NotNil(t, result.Record.OperatorID, "operator identity comes from the context")
	assert.Equal(t, requestcontext.OperatorID(ctx), *result.Record.OperatorID)
	assert.False(t, result.Record.RecordedAt.IsZero())

	require.Len(t, f.audit.calls, 2, "one attempt entry and one terminal entry")
	assert.Equal(t, models.ActionAttempt, f.audit.calls[0].action)
	assert.Equal(t, models.ActionSuccess, f.audit.calls[1].action)
}

func TestService_Checkin_ParticipantForbidden(t *testing.T) {
	f := newFixture(bothActive())
	ctx := requestcontext.WithOperator(context.Background(), id.OperatorID{}, requestcontext.RoleParticipant)

	_, err := f.service.Checkin(ctx, onlineInput(t))

	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	assert.Empty(t, f.audit.calls)
	assert.Zero(t, f.validator.calls)
}

func TestService_Checkin_Idempotent(t *testing.T) {
	f := newFixture(bothActive())
	ctx := attendantContext(t)
	input := onlineInput(t)

	first, err := f.service.Checkin(ctx, input)
	require.NoError(t, err)
	require.Equal(t, models.StatusAccepted, first.Status)

	second, err := f.service.Checkin(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDuplicate, second.Status)
	assert.Equal(t, ReasonDuplicate, second.Reason)
	require.NotNil(t, second.Record, "duplicate reports the existing record")
	assert.Equal(t, first.Record.ID, second.Record.ID)

	records, err := f.attendance.ListByEvent(ctx, input.EventID)
	require.NoError(t, err)
	assert.Len(t, records, 1, "repeated submission never creates a second record")

	// Second call short-circuits on the probe; the validator runs only once.
	assert.Equal(t, 1, f.validator.calls)

	require.Len(t, f.audit.calls, 4)
	assert.Equal(t, models.ActionFailure, f.audit.calls[3].action)
	assert.Equal(t, ReasonDuplicate, f.audit.calls[3].reason)
}

func TestService_Checkin_RecordedAtPreserved(t *testing.T) {
	f := newFixture(bothActive())
	capturedAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	input := onlineInput(t)
	input.RecordedAt = capturedAt

	result, err := f.service.Checkin(attendantContext(t), input)

	require.NoError(t, err)
	require.NotNil(t, result.Record)
	assert.Equal(t, capturedAt, result.Record.RecordedAt)
}

func TestService_Checkin_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		validator  *stubValidator
		wantReason string
	}{
		{
			name:       "event inactive",
			validator:  &stubValidator{result: validate.Result{EventActive: false, RegistrationActive: true}},
			wantReason: ReasonInactive,
		},
		{
			name:       "registration inactive",
			validator:  &stubValidator{result: validate.Result{EventActive: true, RegistrationActive: false}},
			wantReason: ReasonInactive,
		},
		{
			name:       "registration unknown",
			validator:  &stubValidator{err: dErrors.New(dErrors.CodeNotFound, "registration not found")},
			wantReason: ReasonNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.validator)
			input := onlineInput(t)

			result, err := f.service.Checkin(attendantContext(t), input)

			require.NoError(t, err)
			assert.Equal(t, models.StatusRejected, result.Status)
			assert.Equal(t, tt.wantReason, result.Reason)
			assert.Nil(t, result.Record)

			exists, err := f.attendance.Exists(context.Background(), input.RegistrationID, input.EventID)
			require.NoError(t, err)
			assert.False(t, exists, "rejected attempts must not write attendance")

			require.Len(t, f.audit.calls, 2)
			assert.Equal(t, models.ActionFailure, f.audit.calls[1].action)
			assert.NotEmpty(t, f.audit.calls[1].reason)
		})
	}
}

func TestService_Checkin_UpstreamUnavailable(t *testing.T) {
	f := newFixture(&stubValidator{err: dErrors.New(dErrors.CodeUpstreamUnavailable, "events lookup unavailable")})

	_, err := f.service.Checkin(attendantContext(t), onlineInput(t))

	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable))

	require.Len(t, f.audit.calls, 2, "failed attempts still leave a terminal audit entry")
	assert.Equal(t, models.ActionFailure, f.audit.calls[1].action)
}

func TestService_Checkin_OfflineSkipsValidation(t *testing.T) {
	// A validator that would reject everything; the offline path must not
	// consult it.
	f := newFixture(&stubValidator{err: dErrors.New(dErrors.CodeUpstreamUnavailable, "unreachable")})
	input := onlineInput(t)
	input.Origin = models.OriginOffline

	result, err := f.service.Checkin(attendantContext(t), input)

	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, result.Status)
	assert.Zero(t, f.validator.calls)

	require.Len(t, f.audit.calls, 2)
	assert.Equal(t, models.ActionOfflineSync, f.audit.calls[0].action)
	assert.Equal(t, models.ActionSuccess, f.audit.calls[1].action)
}

func TestService_Checkin_UnknownOrigin(t *testing.T) {
	f := newFixture(bothActive())
	input := onlineInput(t)
	input.Origin = models.Origin("carrier-pigeon")

	_, err := f.service.Checkin(attendantContext(t), input)

	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	assert.Empty(t, f.audit.calls)
}

func TestService_OfflineSync_Convergence(t *testing.T) {
	f := newFixture(bothActive())
	ctx := attendantContext(t)

	eventID := newEventID(t)
	dupRegistration := newRegistrationID(t)
	otherRegistration := newRegistrationID(t)

	// The same pair queued twice on one device plus a distinct pair.
	items := []models.SyncItem{
		{RegistrationID: dupRegistration, EventID: eventID, RecordedAt: time.Now().UTC()},
		{RegistrationID: dupRegistration, EventID: eventID, RecordedAt: time.Now().UTC()},
		{RegistrationID: otherRegistration, EventID: eventID, RecordedAt: time.Now().UTC()},
	}

	report, err := f.service.OfflineSync(ctx, items)

	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, 1, report.Duplicate)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Results, 3)
	assert.Equal(t, models.StatusAccepted, report.Results[0].Status)
	assert.Equal(t, models.StatusDuplicate, report.Results[1].Status)
	assert.Equal(t, models.StatusAccepted, report.Results[2].Status)

	records, err := f.attendance.ListByEvent(ctx, eventID)
	require.NoError(t, err)
	assert.Len(t, records, 2, "converges to one record per pair")
}

func TestService_OfflineSync_Replay(t *testing.T) {
	f := newFixture(bothActive())
	ctx := attendantContext(t)

	items := []models.SyncItem{
		{RegistrationID: newRegistrationID(t), EventID: newEventID(t)},
		{RegistrationID: newRegistrationID(t), EventID: newEventID(t)},
	}

	first, err := f.service.OfflineSync(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Accepted)

	// A device that never received the ack re-submits the whole batch.
	second, err := f.service.OfflineSync(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Accepted)
	assert.Equal(t, 2, second.Duplicate)
}

// faultyStore fails writes for one marked pair to exercise batch isolation.
type faultyStore struct {
	*attendance.InMemoryStore
	failRegistration id.RegistrationID
}

func (s *faultyStore) Record(ctx context.Context, rec models.AttendanceRecord) (models.AttendanceRecord, error) {
	if rec.RegistrationID == s.failRegistration {
		return models.AttendanceRecord{}, errors.New("disk full")
	}
	return s.InMemoryStore.Record(ctx, rec)
}

func TestService_OfflineSync_ItemIsolation(t *testing.T) {
	audit := &auditSpy{}
	poisoned := newRegistrationID(t)
	store := &faultyStore{InMemoryStore: attendance.NewInMemory(), failRegistration: poisoned}
	svc := New(store, audit, bothActive(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	eventID := newEventID(t)
	items := []models.SyncItem{
		{RegistrationID: newRegistrationID(t), EventID: eventID},
		{RegistrationID: poisoned, EventID: eventID},
		{RegistrationID: newRegistrationID(t), EventID: eventID},
	}

	report, err := svc.OfflineSync(attendantContext(t), items)

	require.NoError(t, err)
	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Results, 3)
	assert.Equal(t, models.StatusRejected, report.Results[1].Status)
	assert.Equal(t, models.StatusAccepted, report.Results[2].Status, "failure does not abort later items")
}

func TestService_OfflineSync_ParticipantForbidden(t *testing.T) {
	f := newFixture(bothActive())

	_, err := f.service.OfflineSync(context.Background(), []models.SyncItem{
		{RegistrationID: newRegistrationID(t), EventID: newEventID(t)},
	})

	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestService_Status(t *testing.T) {
	f := newFixture(bothActive())
	ctx := attendantContext(t)
	input := onlineInput(t)

	status, err := f.service.Status(ctx, input.RegistrationID)
	require.NoError(t, err)
	assert.False(t, status.HasAttendance)
	assert.Nil(t, status.Record)

	_, err = f.service.Checkin(ctx, input)
	require.NoError(t, err)

	status, err = f.service.Status(ctx, input.RegistrationID)
	require.NoError(t, err)
	assert.True(t, status.HasAttendance)
	require.NotNil(t, status.Record)
	assert.Equal(t, input.EventID, status.Record.EventID)
}
