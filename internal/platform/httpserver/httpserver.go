// Package httpserver builds the process's single HTTP listener.
package httpserver

import (
	"net/http"
	"time"
)

// New returns a server with timeouts sized for the settlement API: requests
// are small JSON bodies, and the slowest handler path is a ticket issuance
// that waits on one oracle round trip.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
