package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server tuned for check-in traffic: individual requests
// are small, but offline-sync uploads arrive in bursts over venue networks
// that can stall mid-body, so read and write allowances are generous while
// slow header attacks are still cut off early.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
