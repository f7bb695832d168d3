// Package racetest provides a local TLS stand-in for the profile service.
package racetest

import (
	"crypto/x509"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// Host is the SNI name the httptest certificate is valid for.
const Host = "example.com"

// Server is an HTTPS server answering every request with a status chosen
// by a callback. It records each request it receives.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	requests []Received
	conns    atomic.Int64
}

// Received is one request seen by the server.
type Received struct {
	Method string
	Path   string
	Auth   string
	Body   string
}

// StatusFunc picks the response status for the n-th request (0-based).
type StatusFunc func(n int, r *http.Request) int

// NewServer starts a TLS server; it is closed when the test ends.
func NewServer(t testing.TB, status StatusFunc) *Server {
	t.Helper()
	s := &Server{}
	s.Server = httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		n := len(s.requests)
		s.requests = append(s.requests, Received{
			Method: r.Method,
			Path:   r.URL.Path,
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
		})
		s.mu.Unlock()
		w.WriteHeader(status(n, r))
	}))
	s.Server.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			s.conns.Add(1)
		}
	}
	s.StartTLS()
	t.Cleanup(s.Close)
	return s
}

// Always answers every request with code.
func Always(code int) StatusFunc {
	return func(int, *http.Request) int { return code }
}

// Pool returns a pool trusting the server certificate.
func (s *Server) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(s.Certificate())
	return pool
}

// Addr returns the listener address.
func (s *Server) Addr() string { return s.Listener.Addr().String() }

// Requests returns a copy of the requests received so far.
func (s *Server) Requests() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Received(nil), s.requests...)
}

// Connections returns the number of accepted connections.
func (s *Server) Connections() int { return int(s.conns.Load()) }

// APIServer is an HTTPS server for API clients.
type APIServer struct {
	*httptest.Server
}

// NewHTTP2Server starts an h2-capable TLS server; it is closed when the test ends.
func NewHTTP2Server(t testing.TB, h http.HandlerFunc) *APIServer {
	return newAPIServer(t, h, true)
}

// NewHTTP1Server starts a TLS server that only speaks HTTP/1.1.
func NewHTTP1Server(t testing.TB, h http.HandlerFunc) *APIServer {
	return newAPIServer(t, h, false)
}

func newAPIServer(t testing.TB, h http.HandlerFunc, h2 bool) *APIServer {
	t.Helper()
	srv := httptest.NewUnstartedServer(h)
	srv.EnableHTTP2 = h2
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return &APIServer{Server: srv}
}

// Pool returns a pool trusting the server certificate.
func (s *APIServer) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(s.Certificate())
	return pool
}
