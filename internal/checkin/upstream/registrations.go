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

// RegistrationStatusActive is the only status that admits a check-in.
const RegistrationStatusActive = "active"

// Registration is the subset of the registrations collaborator's
// representation the check-in pipeline needs.
type Registration struct {
	ID            id.RegistrationID
	EventID       id.EventID
	ParticipantID string
	Name          string
	Email         string
	Status        string
	RegisteredAt  time.Time
}

// Active reports whether the registration admits a check-in.
func (r Registration) Active() bool {
	return r.Status == RegistrationStatusActive
}

// RegistrationsClient fetches registrations over HTTP.
type RegistrationsClient struct {
	baseURL string
	client  *http.Client
	metrics *metrics.Metrics
}

func NewRegistrationsClient(baseURL string, timeout time.Duration, m *metrics.Metrics) *RegistrationsClient {
	return &RegistrationsClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		metrics: m,
	}
}

type registrationPayload struct {
	ID            string    `json:"id"`
	EventID       string    `json:"event_id"`
	ParticipantID string    `json:"participant_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Status        string    `json:"status"`
	RegisteredAt  time.Time `json:"registered_at"`
}

func (p registrationPayload) toRegistration() (Registration, error) {
	registrationID, err := id.ParseRegistrationID(p.ID)
	if err != nil {
		return Registration{}, fmt.Errorf("registration payload id: %w: %w", sentinel.ErrUnavailable, err)
	}
	eventID, err := id.ParseEventID(p.EventID)
	if err != nil {
		return Registration{}, fmt.Errorf("registration payload event id: %w: %w", sentinel.ErrUnavailable, err)
	}
	return Registration{
		ID:            registrationID,
		EventID:       eventID,
		ParticipantID: p.ParticipantID,
		Name:          p.Name,
		Email:         p.Email,
		Status:        p.Status,
		RegisteredAt:  p.RegisteredAt,
	}, nil
}

// Lookup fetches one registration. Returns sentinel.ErrNotFound for unknown
// registrations and sentinel.ErrUnavailable for transport failures.
func (c *RegistrationsClient) Lookup(ctx context.Context, registrationID id.RegistrationID) (Registration, error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.ObserveUpstream("registrations", time.Since(start))
		}
	}()

	url := fmt.Sprintf("%s/registrations/%s", c.baseURL, registrationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Registration{}, fmt.Errorf("build registrations request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Registration{}, fmt.Errorf("registrations service: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Registration{}, fmt.Errorf("registration %s: %w", registrationID, sentinel.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return Registration{}, fmt.Errorf("registrations service returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var payload registrationPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Registration{}, fmt.Errorf("decode registration: %w: %w", sentinel.ErrUnavailable, err)
	}
	return payload.toRegistration()
}

// ListByEvent fetches every registration for an event, used to build the
// attendance roster.
func (c *RegistrationsClient) ListByEvent(ctx context.Context, eventID id.EventID) ([]Registration, error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.ObserveUpstream("registrations", time.Since(start))
		}
	}()

	url := fmt.Sprintf("%s/registrations?event_id=%s", c.baseURL, eventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build registrations request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registrations service: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registrations service returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var payloads []registrationPayload
	if err := json.NewDecoder(resp.Body).Decode(&payloads); err != nil {
		return nil, fmt.Errorf("decode registrations: %w: %w", sentinel.ErrUnavailable, err)
	}

	registrations := make([]Registration, 0, len(payloads))
	for _, payload := range payloads {
		registration, err := payload.toRegistration()
		if err != nil {
			return nil, err
		}
		registrations = append(registrations, registration)
	}
	return registrations, nil
}
