// Package client is the device-side gateway client used by attendant
// check-in stations.
//
// Capture never blocks on connectivity: when the gateway is unreachable the
// check-in lands in the durable local queue and the station keeps scanning.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"presence/internal/offline/queue"
	id "presence/pkg/domain"
	dErrors "presence/pkg/domain-errors"
	"presence/pkg/platform/sentinel"
)

// Outcome classifies a capture from the device's point of view.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
	// OutcomeQueued means the check-in is stored locally awaiting sync.
	OutcomeQueued Outcome = "queued"
)

// Result is the classified outcome of one capture.
type Result struct {
	Outcome Outcome
	Reason  string
}

// ConnectivityState reports the last observed gateway reachability.
type ConnectivityState interface {
	Online() bool
}

// Client talks to the check-in gateway and falls back to the local queue.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	queue   *queue.Queue
	state   ConnectivityState
	logger  *slog.Logger
}

func New(baseURL, token string, timeout time.Duration, q *queue.Queue, state ConnectivityState, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		queue:   q,
		state:   state,
		logger:  logger,
	}
}

type checkinPayload struct {
	RegistrationID string `json:"registration_id"`
	EventID        string `json:"event_id"`
	Origin         string `json:"origin"`
}

type checkinResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// Checkin submits one capture. Unreachable or degraded gateways queue the
// check-in locally; only client-side mistakes (bad token, invalid pair)
// surface as errors.
func (c *Client) Checkin(ctx context.Context, registrationID id.RegistrationID, eventID id.EventID) (Result, error) {
	if !c.state.Online() {
		return c.enqueue(ctx, registrationID, eventID)
	}

	body, err := json.Marshal(checkinPayload{
		RegistrationID: registrationID.String(),
		EventID:        eventID.String(),
		Origin:         "online",
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode check-in: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkin", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build check-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "gateway unreachable, queueing check-in",
			"registration_id", registrationID.String(),
			"error", err,
		)
		return c.enqueue(ctx, registrationID, eventID)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated:
		return Result{Outcome: OutcomeAccepted}, nil
	case resp.StatusCode == http.StatusConflict:
		return Result{Outcome: OutcomeDuplicate, Reason: "duplicate"}, nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		var payload checkinResponse
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return Result{Outcome: OutcomeRejected, Reason: payload.Reason}, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		// Gateway up but degraded; defer to sync like an outage.
		return c.enqueue(ctx, registrationID, eventID)
	default:
		var payload errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return Result{}, dErrors.New(dErrors.Code(payload.Error), payload.Description)
	}
}

func (c *Client) enqueue(ctx context.Context, registrationID id.RegistrationID, eventID id.EventID) (Result, error) {
	err := c.queue.Enqueue(ctx, registrationID, eventID, time.Now().UTC())
	if errors.Is(err, sentinel.ErrConflict) {
		return Result{Outcome: OutcomeQueued, Reason: "already queued"}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("queue check-in: %w", err)
	}
	return Result{Outcome: OutcomeQueued}, nil
}

type syncItemPayload struct {
	RegistrationID string    `json:"registration_id"`
	EventID        string    `json:"event_id"`
	RecordedAt     time.Time `json:"recorded_at"`
}

type syncPayload struct {
	Checkins []syncItemPayload `json:"checkins"`
}

type syncItemResult struct {
	RegistrationID string `json:"registration_id"`
	EventID        string `json:"event_id"`
	Status         string `json:"status"`
	Reason         string `json:"reason"`
}

type syncResult struct {
	Total     int              `json:"total"`
	Accepted  int              `json:"accepted"`
	Duplicate int              `json:"duplicate"`
	Failed    int              `json:"failed"`
	Results   []syncItemResult `json:"results"`
}

// ItemOutcome is the gateway's classification of one queued item.
type ItemOutcome struct {
	ItemID int64
	Status string
	Reason string
}

// SyncBatch uploads queued items for reconciliation and maps the per-item
// classifications back to queue row ids. The gateway returns results in
// submission order.
func (c *Client) SyncBatch(ctx context.Context, items []queue.Item) ([]ItemOutcome, error) {
	if len(items) == 0 {
		return nil, nil
	}

	payload := syncPayload{Checkins: make([]syncItemPayload, 0, len(items))}
	for _, item := range items {
		payload.Checkins = append(payload.Checkins, syncItemPayload{
			RegistrationID: item.RegistrationID.String(),
			EventID:        item.EventID.String(),
			RecordedAt:     item.RecordedAt,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode sync batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkin/offline-sync", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sync batch: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sync batch returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var result syncResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode sync result: %w", err)
	}
	if len(result.Results) != len(items) {
		return nil, fmt.Errorf("sync result count %d does not match batch size %d", len(result.Results), len(items))
	}

	outcomes := make([]ItemOutcome, 0, len(items))
	for i, itemResult := range result.Results {
		outcomes = append(outcomes, ItemOutcome{
			ItemID: items[i].ID,
			Status: itemResult.Status,
			Reason: itemResult.Reason,
		})
	}
	return outcomes, nil
}

// RosterEntry is one roster row as seen by the device.
type RosterEntry struct {
	RegistrationID string `json:"registration_id"`
	ParticipantID  string `json:"participant_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Status         string `json:"status"`
	HasAttendance  bool   `json:"has_attendance"`
}

// Roster is the attendance roster downloaded before going offline.
type Roster struct {
	EventID            string        `json:"event_id"`
	EventName          string        `json:"event_name"`
	TotalRegistrations int           `json:"total_registrations"`
	TotalCheckedIn     int           `json:"total_checked_in"`
	Entries            []RosterEntry `json:"entries"`
}

// DownloadRoster fetches the event roster so the device can verify
// registrations while offline.
func (c *Client) DownloadRoster(ctx context.Context, eventID id.EventID) (Roster, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events/"+eventID.String()+"/attendance-roster", nil)
	if err != nil {
		return Roster{}, fmt.Errorf("build roster request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Roster{}, fmt.Errorf("download roster: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Roster{}, fmt.Errorf("event %s: %w", eventID, sentinel.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return Roster{}, fmt.Errorf("roster returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var roster Roster
	if err := json.NewDecoder(resp.Body).Decode(&roster); err != nil {
		return Roster{}, fmt.Errorf("decode roster: %w", err)
	}
	return roster, nil
}
