// Package wire builds the raw HTTP/1.1 bytes written to the target service.
//
// Requests are assembled by hand instead of through net/http so the caller
// decides exactly which bytes leave during pre-staging and which are held
// back for the critical instant. Only the status line of the answer is read.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// DefaultHost is the pinned host of the profile service.
const DefaultHost = "api.minecraftservices.com"

// PlaceholderToken is sent by calibration probes instead of a real credential.
const PlaceholderToken = "token"

var (
	ErrNotStaged        = errors.New("request prefix not staged")
	ErrAlreadyStaged    = errors.New("request prefix already staged")
	ErrAlreadyCompleted = errors.New("request terminator already sent")
)

// Request is an immutable request template split into a prefix and the
// terminator that is withheld until the flush instant.
// One Request is shared read-only by every attempt of a race.
type Request struct {
	prefix     []byte
	terminator []byte
}

// NewRequest builds a Request from its two halves.
func NewRequest(prefix, terminator []byte) Request {
	return Request{
		prefix:     append([]byte(nil), prefix...),
		terminator: append([]byte(nil), terminator...),
	}
}

// Bytes returns the full request as it appears on the wire.
func (r Request) Bytes() []byte {
	out := make([]byte, 0, len(r.prefix)+len(r.terminator))
	out = append(out, r.prefix...)
	return append(out, r.terminator...)
}

// PrefixLen is the number of bytes written during pre-staging.
func (r Request) PrefixLen() int { return len(r.prefix) }

// TerminatorLen is the number of bytes left for the flush instant.
func (r Request) TerminatorLen() int { return len(r.terminator) }

// NewPartial returns a fresh per-attempt buffer for this request.
func (r Request) NewPartial() *PartialRequest {
	return &PartialRequest{req: r}
}

// PartialRequest tracks one attempt's progress through a Request.
// Stage must precede Complete; Complete writes at most once, even when the
// write fails, so a terminator is never transmitted twice.
type PartialRequest struct {
	req       Request
	staged    bool
	completed bool
}

// Stage writes everything except the terminator.
func (p *PartialRequest) Stage(w io.Writer) error {
	if p.staged {
		return ErrAlreadyStaged
	}
	p.staged = true
	if _, err := w.Write(p.req.prefix); err != nil {
		return fmt.Errorf("failed to stage request prefix: %w", err)
	}
	return nil
}

// Complete writes the withheld terminator.
func (p *PartialRequest) Complete(w io.Writer) error {
	if !p.staged {
		return ErrNotStaged
	}
	if p.completed {
		return ErrAlreadyCompleted
	}
	p.completed = true
	if _, err := w.Write(p.req.terminator); err != nil {
		return fmt.Errorf("failed to send request terminator: %w", err)
	}
	return nil
}

// Staged reports whether the prefix has been written.
func (p *PartialRequest) Staged() bool { return p.staged }

// Completed reports whether the terminator has been written.
func (p *PartialRequest) Completed() bool { return p.completed }

// AvailabilityRequest builds the name-change PUT. The blank line ending the
// header block is the terminator.
func AvailabilityRequest(host, name, token string) (Request, error) {
	if err := checkHeaderValues(host, name, token); err != nil {
		return Request{}, err
	}
	prefix := fmt.Sprintf("PUT /minecraft/profile/name/%s HTTP/1.1\r\nHost: %s\r\nAuthorization: Bearer %s\r\n",
		url.PathEscape(name), host, token)
	return NewRequest([]byte(prefix), []byte("\r\n")), nil
}

// CatalogRequest builds the profile-creation POST used for catalog races.
// The terminator is the blank line followed by the JSON body.
func CatalogRequest(host, name, token string) (Request, error) {
	if err := checkHeaderValues(host, name, token); err != nil {
		return Request{}, err
	}
	body, err := json.Marshal(struct {
		ProfileName string `json:"profileName"`
	}{ProfileName: name})
	if err != nil {
		return Request{}, fmt.Errorf("failed to marshal profile body: %w", err)
	}
	prefix := fmt.Sprintf("POST /minecraft/profile HTTP/1.1\r\nHost: %s\r\nAccept: application/json\r\nContent-Type: application/json\r\nContent-Length: %d\r\nAuthorization: Bearer %s\r\n",
		host, len(body), token)
	terminator := append([]byte("\r\n"), body...)
	return NewRequest([]byte(prefix), terminator), nil
}

func checkHeaderValues(host, name, token string) error {
	if host == "" {
		return fmt.Errorf("host required")
	}
	if name == "" {
		return fmt.Errorf("name required")
	}
	if token == "" {
		return fmt.Errorf("token required")
	}
	for _, v := range []string{host, name, token} {
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("header value %q contains a line break", v)
		}
	}
	return nil
}
