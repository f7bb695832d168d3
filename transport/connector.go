// Package transport opens the secure connections used by a race.
//
// A Connector dials one pinned host over TLS; it holds only read-only
// configuration and is shared by every attempt of a race. Each Dial returns
// a connection owned exclusively by the caller.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultPort is the standard HTTPS port.
const DefaultPort = 443

// DefaultDialTimeout bounds TCP connect plus TLS handshake.
const DefaultDialTimeout = 5 * time.Second

// Connector dials TLS connections to a fixed host.
type Connector struct {
	host        string
	addr        string
	tlsConfig   *tls.Config
	dialTimeout time.Duration
}

// ConnectorConfig configures a Connector.
type ConnectorConfig struct {
	Host        string         // pinned host, used for SNI and certificate verification
	Port        int            // DefaultPort when zero
	Addr        string         // optional host:port override for the TCP dial (tests, proxies)
	RootCAs     *x509.CertPool // nil = system roots
	DialTimeout time.Duration  // DefaultDialTimeout when zero
}

// NewConnector validates cfg and builds the shared TLS configuration.
func NewConnector(cfg ConnectorConfig) (*Connector, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host required")
	}
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}
	addr := cfg.Addr
	if addr == "" {
		addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	return &Connector{
		host: cfg.Host,
		addr: addr,
		tlsConfig: &tls.Config{
			ServerName: cfg.Host,
			RootCAs:    cfg.RootCAs,
			MinVersion: tls.VersionTLS12,
			// Raw HTTP/1.1 bytes are written on the connection, so h2 must not be negotiated.
			NextProtos: []string{"http/1.1"},
		},
		dialTimeout: timeout,
	}, nil
}

// Host returns the pinned host name.
func (c *Connector) Host() string { return c.host }

// Addr returns the dialed address.
func (c *Connector) Addr() string { return c.addr }

// Dial opens a TCP connection and completes the TLS handshake.
func (c *Connector) Dial(ctx context.Context) (net.Conn, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.dialTimeout},
		Config:    c.tlsConfig.Clone(),
	}
	ctx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s (%s): %w", c.host, c.addr, err)
	}
	return conn, nil
}
