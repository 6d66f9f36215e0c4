package roster

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence/internal/checkin/models"
	"presence/internal/checkin/store/attendance"
	"presence/internal/checkin/upstream"
	id "presence/pkg/domain"
	dErrors "presence/pkg/domain-errors"
	"presence/pkg/platform/sentinel"
)

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

type mapCache struct {
	rosters map[id.EventID]models.Roster
	sets    int
}

func newMapCache() *mapCache {
	return &mapCache{rosters: make(map[id.EventID]models.Roster)}
}

func (c *mapCache) Get(_ context.Context, eventID id.EventID) (models.Roster, error) {
	roster, ok := c.rosters[eventID]
	if !ok {
		return models.Roster{}, sentinel.ErrNotFound
	}
	return roster, nil
}

func (c *mapCache) Set(_ context.Context, roster models.Roster) error {
	c.sets++
	c.rosters[roster.EventID] = roster
	return nil
}

func newEventID(t *testing.T) id.EventID {
	t.Helper()
	eventID, err := id.ParseEventID(uuid.NewString())
	require.NoError(t, err)
	return eventID
}

func newRegistration(t *testing.T, eventID id.EventID, name string) upstream.Registration {
	t.Helper()
	registrationID, err := id.ParseRegistrationID(uuid.NewString())
	require.NoError(t, err)
	return upstream.Registration{
		ID:            registrationID,
		EventID:       eventID,
		ParticipantID: uuid.NewString(),
		Name:          name,
		Email:         fmt.Sprintf("%s@example.com", name),
		Status:        upstream.RegistrationStatusActive,
		RegisteredAt:  time.Now().UTC(),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestService_Get_JoinsAttendance(t *testing.T) {
	ctx := context.Background()
	eventID := newEventID(t)
	checkedIn := newRegistration(t, eventID, "ana")
	pending := newRegistration(t, eventID, "bruno")

	store := attendance.NewInMemory()
	_, err := store.Record(ctx, models.AttendanceRecord{
		ID:             uuid.New(),
		RegistrationID: checkedIn.ID,
		EventID:        eventID,
		RecordedAt:     time.Now().UTC(),
		Origin:         models.OriginOnline,
	})
	require.NoError(t, err)

	svc := New(
		stubEvents{event: upstream.Event{ID: eventID, Name: "GopherCon", EndsAt: time.Now().Add(time.Hour)}},
		stubRegistrations{registrations: []upstream.Registration{pending, checkedIn}},
		store,
		newMapCache(),
		discardLogger(),
	)

	roster, err := svc.Get(ctx, eventID)

	require.NoError(t, err)
	assert.Equal(t, "GopherCon", roster.EventName)
	assert.Equal(t, 2, roster.TotalRegistrations)
	assert.Equal(t, 1, roster.TotalCheckedIn)
	require.Len(t, roster.Entries, 2)
	// Entries come back sorted by name.
	assert.Equal(t, "ana", roster.Entries[0].Name)
	assert.True(t, roster.Entries[0].HasAttendance)
	assert.Equal(t, "bruno", roster.Entries[1].Name)
	assert.False(t, roster.Entries[1].HasAttendance)
}

func TestService_Get_ServesFromCache(t *testing.T) {
	eventID := newEventID(t)
	cache := newMapCache()
	cache.rosters[eventID] = models.Roster{EventID: eventID, EventName: "cached"}

	// Sources that would fail if consulted.
	svc := New(
		stubEvents{err: fmt.Errorf("events: %w", sentinel.ErrUnavailable)},
		stubRegistrations{err: fmt.Errorf("registrations: %w", sentinel.ErrUnavailable)},
		attendance.NewInMemory(),
		cache,
		discardLogger(),
	)

	roster, err := svc.Get(context.Background(), eventID)

	require.NoError(t, err)
	assert.Equal(t, "cached", roster.EventName)
	assert.Zero(t, cache.sets)
}

func TestService_Get_PopulatesCacheOnMiss(t *testing.T) {
	eventID := newEventID(t)
	cache := newMapCache()
	svc := New(
		stubEvents{event: upstream.Event{ID: eventID, Name: "GopherCon"}},
		stubRegistrations{},
		attendance.NewInMemory(),
		cache,
		discardLogger(),
	)

	_, err := svc.Get(context.Background(), eventID)

	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.Contains(t, cache.rosters, eventID)
}

func TestService_Get_EventNotFound(t *testing.T) {
	svc := New(
		stubEvents{err: fmt.Errorf("event: %w", sentinel.ErrNotFound)},
		stubRegistrations{},
		attendance.NewInMemory(),
		nil,
		discardLogger(),
	)

	_, err := svc.Get(context.Background(), newEventID(t))

	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestService_Get_UpstreamUnavailable(t *testing.T) {
	svc := New(
		stubEvents{event: upstream.Event{Name: "GopherCon"}},
		stubRegistrations{err: fmt.Errorf("registrations: %w", sentinel.ErrUnavailable)},
		attendance.NewInMemory(),
		nil,
		discardLogger(),
	)

	_, err := svc.Get(context.Background(), newEventID(t))

	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable))
}
