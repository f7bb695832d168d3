package transport

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// DefaultAPITimeout bounds one collaborator API call.
const DefaultAPITimeout = 10 * time.Second

// BuildHTTP2Client creates the client used for ordinary API calls
// (release-time lookups, eligibility checks). It negotiates h2 and falls
// back to HTTP/1.1 for servers that do not offer it. It is never used on
// the race path.
func BuildHTTP2Client(rootCAs *x509.CertPool, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultAPITimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			RootCAs:    rootCAs,
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: DefaultDialTimeout,
	}
	// Only fails when h2 is already registered, which a fresh transport never has.
	_ = http2.ConfigureTransport(transport)

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
