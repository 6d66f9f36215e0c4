// Package upstream holds HTTP clients for the collaborator services the
// check-in pipeline validates against. Both clients carry a bounded timeout
// and never retry: a failed call surfaces as unavailable instead of masking a
// partial outage.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"presence/internal/checkin/metrics"
	id "presence/pkg/domain"
	"presence/pkg/platform/sentinel"
)

// Event is the subset of the events collaborator's representation the
// check-in pipeline needs.
type Event struct {
	ID       id.EventID
	Name     string
	StartsAt time.Time
	EndsAt   time.Time
}

// Active reports whether the event is still running at the given instant.
// The end timestamp must be strictly in the future.
func (e Event) Active(at time.Time) bool {
	return e.EndsAt.After(at)
}

// EventsClient fetches events over HTTP.
type EventsClient struct {
	baseURL string
	client  *http.Client
	metrics *metrics.Metrics
}

func NewEventsClient(baseURL string, timeout time.Duration, m *metrics.Metrics) *EventsClient {
	return &EventsClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		metrics: m,
	}
}

type eventPayload struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	StartsAt    time.Time `json:"starts_at"`
	ActiveUntil time.Time `json:"active_until"`
}

// Lookup fetches one event. Returns sentinel.ErrNotFound for unknown events
// and sentinel.ErrUnavailable for transport failures and non-2xx responses.
func (c *EventsClient) Lookup(ctx context.Context, eventID id.EventID) (Event, error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.ObserveUpstream("events", time.Since(start))
		}
	}()

	url := fmt.Sprintf("%s/events/%s", c.baseURL, eventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Event{}, fmt.Errorf("build events request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Event{}, fmt.Errorf("events service: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Event{}, fmt.Errorf("event %s: %w", eventID, sentinel.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return Event{}, fmt.Errorf("events service returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var payload eventPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Event{}, fmt.Errorf("decode event: %w: %w", sentinel.ErrUnavailable, err)
	}

	parsedID, err := id.ParseEventID(payload.ID)
	if err != nil {
		return Event{}, fmt.Errorf("event payload id: %w: %w", sentinel.ErrUnavailable, err)
	}

	return Event{
		ID:       parsedID,
		Name:     payload.Name,
		StartsAt: payload.StartsAt,
		EndsAt:   payload.ActiveUntil,
	}, nil
}
