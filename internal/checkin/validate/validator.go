// Package validate confirms an event is live and a registration is active
// before a check-in is accepted.
package validate

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"presence/internal/checkin/upstream"
	id "presence/pkg/domain"
	dErrors "presence/pkg/domain-errors"
	"presence/pkg/platform/sentinel"
)

//go:generate mockgen -source=validator.go -destination=mocks/mocks.go -package=mocks

// EventLookup is the capability to fetch one event from the events
// collaborator.
type EventLookup interface {
	Lookup(ctx context.Context, eventID id.EventID) (upstream.Event, error)
}

// RegistrationLookup is the capability to fetch one registration from the
// registrations collaborator.
type RegistrationLookup interface {
	Lookup(ctx context.Context, registrationID id.RegistrationID) (upstream.Registration, error)
}

// Result reports what the upstream collaborators said about the pair.
type Result struct {
	EventActive        bool
	RegistrationActive bool
	Event              upstream.Event
	Registration       upstream.Registration
}

// Validator orchestrates both lookups in parallel under a shared deadline.
// There is no retry: a failed upstream call surfaces as upstream_unavailable
// so partial outages are visible instead of masked.
type Validator struct {
	events        EventLookup
	registrations RegistrationLookup
	timeout       time.Duration
}

func New(events EventLookup, registrations RegistrationLookup, timeout time.Duration) *Validator {
	return &Validator{
		events:        events,
		registrations: registrations,
		timeout:       timeout,
	}
}

// Validate fetches the event and registration concurrently. Lookup failures
// are returned as coded errors (not_found or upstream_unavailable); activity
// checks are reported through Result so the caller classifies the outcome.
func (v *Validator) Validate(ctx context.Context, eventID id.EventID, registrationID id.RegistrationID) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	var result Result

	g.Go(func() error {
		event, err := v.events.Lookup(ctx, eventID)
		if err != nil {
			return translate("event", err)
		}
		result.Event = event
		result.EventActive = event.Active(time.Now())
		return nil
	})

	g.Go(func() error {
		registration, err := v.registrations.Lookup(ctx, registrationID)
		if err != nil {
			return translate("registration", err)
		}
		result.Registration = registration
		result.RegistrationActive = registration.Active()
		return nil
	})

	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return result, nil
}

func translate(what string, err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(dErrors.CodeNotFound, what+" not found", err)
	}
	// Timeouts, transport failures, and unexpected responses all read as the
	// upstream being unavailable; the client decides whether to queue offline.
	return dErrors.Wrap(dErrors.CodeUpstreamUnavailable, what+" lookup failed", err)
}
