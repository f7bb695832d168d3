package transport

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RootInfo describes one loaded trust anchor.
type RootInfo struct {
	Path       string    `json:"path"`
	Subject    string    `json:"subject"`
	ValidUntil time.Time `json:"valid_until"`
	IsExpired  bool      `json:"is_expired"`
}

// TrustStore is a set of extra root certificates loaded from PEM files.
// It is built once before a race and then only read.
type TrustStore struct {
	pool  *x509.CertPool
	roots []RootInfo
}

// LoadTrustStore reads every PEM certificate from the given paths. A path may
// be a file or a directory; directories contribute their *.pem files.
// When withSystem is true the system roots are included as well.
func LoadTrustStore(withSystem bool, paths ...string) (*TrustStore, error) {
	pool := x509.NewCertPool()
	if withSystem {
		sys, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("failed to load system roots: %w", err)
		}
		pool = sys
	}

	ts := &TrustStore{pool: pool}
	for _, p := range paths {
		files, err := expand(p)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if err := ts.addFile(f); err != nil {
				return nil, err
			}
		}
	}
	return ts, nil
}

// Pool returns the certificate pool for TLS configs.
func (ts *TrustStore) Pool() *x509.CertPool { return ts.pool }

// Roots returns metadata for the loaded PEM certificates.
func (ts *TrustStore) Roots() []RootInfo {
	return append([]RootInfo(nil), ts.roots...)
}

// Expired returns loaded roots that are no longer valid.
func (ts *TrustStore) Expired() []RootInfo {
	var expired []RootInfo
	for _, r := range ts.roots {
		if r.IsExpired {
			expired = append(expired, r)
		}
	}
	return expired
}

func (ts *TrustStore) addFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read certificate: %w", err)
	}

	found := 0
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("failed to parse certificate in %s: %w", path, err)
		}
		ts.pool.AddCert(cert)
		ts.roots = append(ts.roots, RootInfo{
			Path:       path,
			Subject:    cert.Subject.String(),
			ValidUntil: cert.NotAfter,
			IsExpired:  time.Now().After(cert.NotAfter),
		})
		found++
	}
	if found == 0 {
		return fmt.Errorf("no PEM certificate found in %s", path)
	}
	return nil
}

func expand(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	matches, err := filepath.Glob(filepath.Join(path, "*.pem"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan certificate directory: %w", err)
	}
	return matches, nil
}
