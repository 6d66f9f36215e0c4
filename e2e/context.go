package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// TestContext drives HTTP calls against a running presence server and keeps
// the last response for assertion steps.
//
// Configuration comes from the environment:
//
//	PRESENCE_URL       base URL of the server under test (default http://localhost:8084)
//	ATTENDANT_TOKEN    bearer token with the attendant role
//	PARTICIPANT_TOKEN  bearer token with the participant role
type TestContext struct {
	baseURL string
	client  *http.Client

	token string

	lastStatus int
	lastBody   map[string]interface{}
	lastRaw    []byte
}

// NewTestContext builds a context pointed at the server under test.
func NewTestContext() *TestContext {
	baseURL := os.Getenv("PRESENCE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8084"
	}
	return &TestContext{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.token = os.Getenv("ATTENDANT_TOKEN")
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastRaw = nil
}

// UseAttendantToken authenticates subsequent requests as an attendant.
func (tc *TestContext) UseAttendantToken() {
	tc.token = os.Getenv("ATTENDANT_TOKEN")
}

// UseParticipantToken authenticates subsequent requests as a participant.
func (tc *TestContext) UseParticipantToken() {
	tc.token = os.Getenv("PARTICIPANT_TOKEN")
}

// POST sends a JSON body to the given path.
func (tc *TestContext) POST(path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, tc.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return tc.do(req)
}

// GET requests the given path.
func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequest(http.MethodGet, tc.baseURL+path, nil)
	if err != nil {
		return err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	if tc.token != "" {
		req.Header.Set("Authorization", "Bearer "+tc.token)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	tc.lastStatus = resp.StatusCode
	tc.lastRaw = raw
	tc.lastBody = nil
	if len(raw) > 0 {
		var decoded map[string]interface{}
		if err := json.Unmarshal(raw, &decoded); err == nil {
			tc.lastBody = decoded
		}
	}
	return nil
}

// LastStatus returns the status code of the last response.
func (tc *TestContext) LastStatus() int {
	return tc.lastStatus
}

// GetResponseField returns a top-level field from the last JSON response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	if tc.lastBody == nil {
		return nil, fmt.Errorf("last response was not a JSON object: %s", string(tc.lastRaw))
	}
	value, ok := tc.lastBody[field]
	if !ok {
		return nil, fmt.Errorf("response has no field %q: %s", field, string(tc.lastRaw))
	}
	return value, nil
}
