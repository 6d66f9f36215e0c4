// events-service is a stub of the events collaborator for local development
// and end-to-end runs. Any well-formed event id resolves to a running event;
// ids ending in "0000" resolve to an event that already ended, so rejection
// paths can be exercised.
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

type event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	StartsAt    time.Time `json:"starts_at"`
	ActiveUntil time.Time `json:"active_until"`
}

func main() {
	addr := os.Getenv("EVENTS_ADDR")
	if addr == "" {
		addr = ":8082"
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/events/{eventID}", func(w http.ResponseWriter, req *http.Request) {
		eventID := chi.URLParam(req, "eventID")
		if _, err := uuid.Parse(eventID); err != nil {
			http.NotFound(w, req)
			return
		}

		now := time.Now().UTC()
		resp := event{
			ID:          eventID,
			Name:        "Stub Event",
			StartsAt:    now.Add(-2 * time.Hour),
			ActiveUntil: now.Add(8 * time.Hour),
		}
		if strings.HasSuffix(eventID, "0000") {
			resp.Name = "Ended Stub Event"
			resp.StartsAt = now.Add(-48 * time.Hour)
			resp.ActiveUntil = now.Add(-24 * time.Hour)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	log.Printf("stub events service listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}
