package httpserver

import (
	"net/http"
	"time"
)

// New builds the HTTP server. Write timeout leaves room for the slowest
// upstream chain (authority + profile + store) plus encoding.
func New(addr string, handler http.Handler, requestTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
