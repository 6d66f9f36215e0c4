// Package roster assembles the attendance roster attendant devices download
// before going offline.
package roster

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"presence/internal/checkin/models"
	"presence/internal/checkin/upstream"
	id "presence/pkg/domain"
	dErrors "presence/pkg/domain-errors"
	"presence/pkg/platform/sentinel"
)

// EventLookup fetches the event the roster describes.
type EventLookup interface {
	Lookup(ctx context.Context, eventID id.EventID) (upstream.Event, error)
}

// RegistrationLister fetches every registration for an event.
type RegistrationLister interface {
	ListByEvent(ctx context.Context, eventID id.EventID) ([]upstream.Registration, error)
}

// AttendanceLister reads the locally recorded check-ins for an event.
type AttendanceLister interface {
	ListByEvent(ctx context.Context, eventID id.EventID) ([]models.AttendanceRecord, error)
}

// Service builds rosters by joining upstream registrations against local
// attendance, with a best-effort cache in front.
type Service struct {
	events        EventLookup
	registrations RegistrationLister
	attendance    AttendanceLister
	cache         Cache
	logger        *slog.Logger
}

func New(events EventLookup, registrations RegistrationLister, attendance AttendanceLister, cache Cache, logger *slog.Logger) *Service {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Service{
		events:        events,
		registrations: registrations,
		attendance:    attendance,
		cache:         cache,
		logger:        logger,
	}
}

// Get returns the roster for one event. Cache failures are swallowed; the
// roster is rebuilt from source instead.
func (s *Service) Get(ctx context.Context, eventID id.EventID) (models.Roster, error) {
	if cached, err := s.cache.Get(ctx, eventID); err == nil {
		return cached, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "roster cache read failed", "event_id", eventID.String(), "error", err)
	}

	roster, err := s.build(ctx, eventID)
	if err != nil {
		return models.Roster{}, err
	}

	if err := s.cache.Set(ctx, roster); err != nil {
		s.logger.WarnContext(ctx, "roster cache write failed", "event_id", eventID.String(), "error", err)
	}
	return roster, nil
}

func (s *Service) build(ctx context.Context, eventID id.EventID) (models.Roster, error) {
	var (
		event         upstream.Event
		registrations []upstream.Registration
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		event, err = s.events.Lookup(groupCtx, eventID)
		return err
	})
	group.Go(func() error {
		var err error
		registrations, err = s.registrations.ListByEvent(groupCtx, eventID)
		return err
	})
	if err := group.Wait(); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Roster{}, dErrors.Wrap(dErrors.CodeNotFound, "event not found", err)
		}
		return models.Roster{}, dErrors.Wrap(dErrors.CodeUpstreamUnavailable, "roster sources unavailable", err)
	}

	records, err := s.attendance.ListByEvent(ctx, eventID)
	if err != nil {
		return models.Roster{}, dErrors.Wrap(dErrors.CodeInternal, "attendance listing failed", err)
	}

	checkedIn := make(map[id.RegistrationID]struct{}, len(records))
	for _, rec := range records {
		checkedIn[rec.RegistrationID] = struct{}{}
	}

	totalCheckedIn := 0
	entries := make([]models.RosterEntry, 0, len(registrations))
	for _, registration := range registrations {
		_, hasAttendance := checkedIn[registration.ID]
		if hasAttendance {
			totalCheckedIn++
		}
		entries = append(entries, models.RosterEntry{
			RegistrationID: registration.ID,
			ParticipantID:  registration.ParticipantID,
			Name:           registration.Name,
			Email:          registration.Email,
			Status:         registration.Status,
			HasAttendance:  hasAttendance,
			RegisteredAt:   registration.RegisteredAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return models.Roster{
		EventID:            eventID,
		EventName:          event.Name,
		StartsAt:           event.StartsAt,
		EndsAt:             event.EndsAt,
		Entries:            entries,
		TotalRegistrations: len(entries),
		TotalCheckedIn:     totalCheckedIn,
	}, nil
}
