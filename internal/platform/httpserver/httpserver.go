// Package httpserver constructs the process's HTTP server. The admission
// pipeline does the real per-request work; this only bounds how long a client
// may dawdle before the first step runs.
package httpserver

import (
	"net/http"
	"time"
)

// New builds the server fronting the protected routes. ReadHeaderTimeout cuts
// off slow-header clients before any session or policy lookup is spent on
// them.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
