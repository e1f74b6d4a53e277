// Package httpserver builds http.Servers with the timeouts every listener
// in this project uses. The registry itself has no HTTP API; this serves
// operational endpoints like the relay's metrics listener.
package httpserver

import (
	"net/http"
	"time"
)

func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
