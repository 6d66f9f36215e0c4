// registrations-service is a stub of the registrations collaborator for
// local development and end-to-end runs. Any well-formed registration id
// resolves to an active registration; ids ending in "0000" resolve to a
// cancelled one.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type registration struct {
	ID            string    `json:"id"`
	EventID       string    `json:"event_id"`
	ParticipantID string    `json:"participant_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Status        string    `json:"status"`
	RegisteredAt  time.Time `json:"registered_at"`
}

func stubRegistration(registrationID, eventID string) registration {
	status := "active"
	if strings.HasSuffix(registrationID, "0000") {
		status = "cancelled"
	}
	return registration{
		ID:            registrationID,
		EventID:       eventID,
		ParticipantID: uuid.NewString(),
		Name:          "Stub Participant",
		Email:         "participant@example.com",
		Status:        status,
		RegisteredAt:  time.Now().UTC().Add(-72 * time.Hour),
	}
}

func main() {
	addr := os.Getenv("REGISTRATIONS_ADDR")
	if addr == "" {
		addr = ":8083"
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/registrations/{registrationID}", func(w http.ResponseWriter, req *http.Request) {
		registrationID := chi.URLParam(req, "registrationID")
		if _, err := uuid.Parse(registrationID); err != nil {
			http.NotFound(w, req)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stubRegistration(registrationID, uuid.NewString()))
	})
	r.Get("/registrations", func(w http.ResponseWriter, req *http.Request) {
		eventID := req.URL.Query().Get("event_id")
		if _, err := uuid.Parse(eventID); err != nil {
			http.Error(w, "event_id is required", http.StatusBadRequest)
			return
		}

		registrations := make([]registration, 0, 3)
		for i := 0; i < 3; i++ {
			registrations = append(registrations, stubRegistration(uuid.NewString(), eventID))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(registrations)
	})

	log.Printf("stub registrations service listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}
