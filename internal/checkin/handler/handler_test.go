package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence/internal/checkin/audit"
	"presence/internal/checkin/metrics"
	"presence/internal/checkin/models"
	"presence/internal/checkin/roster"
	"presence/internal/checkin/service"
	"presence/internal/checkin/store/attendance"
	"presence/internal/checkin/store/auditlog"
	"presence/internal/checkin/upstream"
	"presence/internal/checkin/validate"
	id "presence/pkg/domain"
	dErrors "presence/pkg/domain-errors"
	"presence/pkg/platform/sentinel"
	"presence/pkg/testutil"
)

type stubValidator struct {
	result validate.Result
	err    error
}

func (s stubValidator) Validate(context.Context, id.EventID, id.RegistrationID) (validate.Result, error) {
	return s.result, s.err
}

type stubEvents struct {
	event upstream.Event
	err   error
}

func (s stubEvents) Lookup(context.Context, id.EventID) (upstream.Event, error) {
	return s.event, s.err
}

type stubRegistrations struct {
	registrations []upstream.Registration
	err           error
}

func (s stubRegistrations) ListByEvent(context.Context, id.EventID) ([]upstream.Registration, error) {
	return s.registrations, s.err
}

type env struct {
	router chi.Router
	audit  *auditlog.InMemoryStore
}

func newEnv(t *testing.T, validator stubValidator, events stubEvents, registrations stubRegistrations) *env {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())

	attendanceStore := attendance.NewInMemory()
	auditStore := auditlog.NewInMemory()
	recorder := audit.NewRecorder(auditStore, logger, m.AuditDropped)

	checkins := service.New(attendanceStore, recorder, validator, m, logger)
	rosters := roster.New(events, registrations, attendanceStore, nil, logger)

	router := chi.NewRouter()
	New(checkins, rosters, logger).Register(router)

	return &env{router: router, audit: auditStore}
}

func activeEnv(t *testing.T) *env {
	t.Helper()
	return newEnv(t,
		stubValidator{result: validate.Result{EventActive: true, RegistrationActive: true}},
		stubEvents{event: upstream.Event{Name: "GopherCon", EndsAt: time.Now().Add(time.Hour)}},
		stubRegistrations{},
	)
}

func checkinBody(registrationID, eventID string) map[string]any {
	return map[string]any{
		"registration_id": registrationID,
		"event_id":        eventID,
		"origin":          "online",
	}
}

func TestHandleCheckin_AcceptedThenDuplicate(t *testing.T) {
	e := activeEnv(t)
	registrationID := uuid.NewString()
	eventID := uuid.NewString()

	req := testutil.WithAttendant(testutil.NewJSONRequest(t, http.MethodPost, "/checkin", checkinBody(registrationID, eventID)))
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatus(t, rr, http.StatusCreated)
	first := testutil.UnmarshalResponse[CheckinResponse](t, rr)
	assert.Equal(t, "accepted", first.Status)
	require.NotNil(t, first.Attendance)
	assert.Equal(t, registrationID, first.Attendance.RegistrationID)
	assert.NotNil(t, first.Attendance.OperatorID)

	// The same pair submitted again reports the existing record.
	req = testutil.WithAttendant(testutil.NewJSONRequest(t, http.MethodPost, "/checkin", checkinBody(registrationID, eventID)))
	rr = testutil.DoRequest(e.router, req)

	testutil.AssertStatus(t, rr, http.StatusConflict)
	second := testutil.UnmarshalResponse[CheckinResponse](t, rr)
	assert.Equal(t, "duplicate", second.Status)
	assert.Equal(t, "duplicate", second.Reason)
	require.NotNil(t, second.Attendance)
	assert.Equal(t, first.Attendance.ID, second.Attendance.ID)
}

func TestHandleCheckin_EndedEventRejected(t *testing.T) {
	e := newEnv(t,
		stubValidator{result: validate.Result{EventActive: false, RegistrationActive: true}},
		stubEvents{},
		stubRegistrations{},
	)

	req := testutil.WithAttendant(testutil.NewJSONRequest(t, http.MethodPost, "/checkin", checkinBody(uuid.NewString(), uuid.NewString())))
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)
	resp := testutil.UnmarshalResponse[CheckinResponse](t, rr)
	assert.Equal(t, "rejected", resp.Status)
	assert.Equal(t, "inactive", resp.Reason)
}

func TestHandleCheckin_UpstreamUnavailable(t *testing.T) {
	e := newEnv(t,
		stubValidator{err: dErrors.New(dErrors.CodeUpstreamUnavailable, "events lookup unavailable")},
		stubEvents{},
		stubRegistrations{},
	)

	req := testutil.WithAttendant(testutil.NewJSONRequest(t, http.MethodPost, "/checkin", checkinBody(uuid.NewString(), uuid.NewString())))
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
	testutil.AssertErrorCode(t, rr, "upstream_unavailable")
}

func TestHandleCheckin_ParticipantForbidden(t *testing.T) {
	e := activeEnv(t)

	req := testutil.WithParticipant(testutil.NewJSONRequest(t, http.MethodPost, "/checkin", checkinBody(uuid.NewString(), uuid.NewString())))
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatus(t, rr, http.StatusForbidden)
	testutil.AssertErrorCode(t, rr, "forbidden")
}

func TestHandleCheckin_BadInput(t *testing.T) {
	e := activeEnv(t)

	t.Run("malformed JSON", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodPost, "/checkin")
		req.Body = io.NopCloser(strings.NewReader("{not json"))
		rr := testutil.DoRequest(e.router, testutil.WithAttendant(req))

		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		testutil.AssertErrorCode(t, rr, "bad_request")
	})

	t.Run("invalid registration id", func(t *testing.T) {
		req := testutil.WithAttendant(testutil.NewJSONRequest(t, http.MethodPost, "/checkin", checkinBody("not-a-uuid", uuid.NewString())))
		rr := testutil.DoRequest(e.router, req)

		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		testutil.AssertErrorCode(t, rr, "invalid_input")
	})

	t.Run("unknown origin", func(t *testing.T) {
		body := checkinBody(uuid.NewString(), uuid.NewString())
		body["origin"] = "telepathy"
		req := testutil.WithAttendant(testutil.NewJSONRequest(t, http.MethodPost, "/checkin", body))
		rr := testutil.DoRequest(e.router, req)

		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestHandleCheckin_AuditTrail(t *testing.T) {
	e := activeEnv(t)
	registrationID := uuid.NewString()
	eventID := uuid.NewString()

	req := testutil.WithAttendant(testutil.NewJSONRequest(t, http.MethodPost, "/checkin", checkinBody(registrationID, eventID)))
	testutil.DoRequest(e.router, req)

	entries := e.audit.All()
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActionAttempt, entries[0].Action)
	assert.Equal(t, models.ActionSuccess, entries[1].Action)
	assert.JSONEq(t, `{"registration_id":"`+registrationID+`","event_id":"`+eventID+`","origin":"online"}`, string(entries[0].RawPayload))
}

func TestHandleOfflineSync_MixedBatch(t *testing.T) {
	e := activeEnv(t)
	eventID := uuid.NewString()
	dupRegistration := uuid.NewString()

	body := map[string]any{
		"checkins": []map[string]any{
			{"registration_id": dupRegistration, "event_id": eventID},
			{"registration_id": "garbled", "event_id": eventID},
			{"registration_id": dupRegistration, "event_id": eventID},
		},
	}

	req := testutil.WithAttendant(testutil.NewJSONRequest(t, http.MethodPost, "/checkin/offline-sync", body))
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[SyncResponse](t, rr)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, 1, resp.Duplicate)
	assert.Equal(t, 1, resp.Failed)

	// Results stay in submission order with the malformed item in place.
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "accepted", resp.Results[0].Status)
	assert.Equal(t, "rejected", resp.Results[1].Status)
	assert.Equal(t, "invalid_input", resp.Results[1].Reason)
	assert.Equal(t, "garbled", resp.Results[1].RegistrationID)
	assert.Equal(t, "duplicate", resp.Results[2].Status)
}

// The sync envelope is keyed "checkins" on the wire; a device posting the
// documented body must get a reconciliation report, not a 400.
func TestHandleOfflineSync_WireEnvelope(t *testing.T) {
	e := activeEnv(t)
	registrationID := uuid.NewString()
	eventID := uuid.NewString()

	raw := `{"checkins":[{"registration_id":"` + registrationID + `","event_id":"` + eventID + `","recorded_at":"2026-06-14T09:30:00Z"}]}`
	req := httptest.NewRequest(http.MethodPost, "/checkin/offline-sync", strings.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rr := testutil.DoRequest(e.router, testutil.WithAttendant(req))

	testutil.AssertStatus(t, rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[SyncResponse](t, rr)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 1, resp.Accepted)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, registrationID, resp.Results[0].RegistrationID)
}

func TestHandleOfflineSync_EmptyBatch(t *testing.T) {
	e := activeEnv(t)

	req := testutil.WithAttendant(testutil.NewJSONRequest(t, http.MethodPost, "/checkin/offline-sync", map[string]any{"checkins": []any{}}))
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertErrorCode(t, rr, "bad_request")
}

func TestHandleRoster(t *testing.T) {
	eventID := uuid.NewString()
	parsedEventID, err := id.ParseEventID(eventID)
	require.NoError(t, err)
	registrationID, err := id.ParseRegistrationID(uuid.NewString())
	require.NoError(t, err)

	e := newEnv(t,
		stubValidator{result: validate.Result{EventActive: true, RegistrationActive: true}},
		stubEvents{event: upstream.Event{ID: parsedEventID, Name: "GopherCon", EndsAt: time.Now().Add(time.Hour)}},
		stubRegistrations{registrations: []upstream.Registration{{
			ID:      registrationID,
			EventID: parsedEventID,
			Name:    "ana",
			Status:  upstream.RegistrationStatusActive,
		}}},
	)

	req := testutil.WithAttendant(testutil.NewRequest(t, http.MethodGet, "/events/"+eventID+"/attendance-roster"))
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[RosterResponse](t, rr)
	assert.Equal(t, eventID, resp.EventID)
	assert.Equal(t, "GopherCon", resp.EventName)
	assert.Equal(t, 1, resp.TotalRegistrations)
	assert.Equal(t, 0, resp.TotalCheckedIn)
	require.Len(t, resp.Entries, 1)
	assert.False(t, resp.Entries[0].HasAttendance)
}

func TestHandleRoster_EventNotFound(t *testing.T) {
	e := newEnv(t,
		stubValidator{result: validate.Result{EventActive: true, RegistrationActive: true}},
		stubEvents{err: fmt.Errorf("event: %w", sentinel.ErrNotFound)},
		stubRegistrations{},
	)

	req := testutil.WithAttendant(testutil.NewRequest(t, http.MethodGet, "/events/"+uuid.NewString()+"/attendance-roster"))
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatus(t, rr, http.StatusNotFound)
	testutil.AssertErrorCode(t, rr, "not_found")
}

func TestHandleStatus(t *testing.T) {
	e := activeEnv(t)
	registrationID := uuid.NewString()
	eventID := uuid.NewString()

	req := testutil.WithAttendant(testutil.NewRequest(t, http.MethodGet, "/attendance/"+registrationID))
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	before := testutil.UnmarshalResponse[StatusResponse](t, rr)
	assert.False(t, before.HasAttendance)
	assert.Nil(t, before.Attendance)

	post := testutil.WithAttendant(testutil.NewJSONRequest(t, http.MethodPost, "/checkin", checkinBody(registrationID, eventID)))
	testutil.DoRequest(e.router, post)

	req = testutil.WithAttendant(testutil.NewRequest(t, http.MethodGet, "/attendance/"+registrationID))
	rr = testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	after := testutil.UnmarshalResponse[StatusResponse](t, rr)
	assert.True(t, after.HasAttendance)
	require.NotNil(t, after.Attendance)
	assert.Equal(t, eventID, after.Attendance.EventID)
}
