// Package resolve talks to the HTTP APIs consulted before a race: the
// drop-time API for the instant a name becomes claimable and the profile
// service for the account's name-change eligibility.
package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the public drop-time API.
const DefaultBaseURL = "https://mojang-api.teun.lol"

// ErrUnknownRelease is returned when no release instant can be determined.
var ErrUnknownRelease = errors.New("release instant unknown")

// Static always returns the same instant.
type Static struct {
	At time.Time
}

func (s Static) ReleaseInstant(context.Context, string, string) (time.Time, error) {
	if s.At.IsZero() {
		return time.Time{}, ErrUnknownRelease
	}
	return s.At.UTC(), nil
}

// HTTPResolver asks the drop-time API. When the API does not know the name
// and a previous holder is given, it submits the holder so the API can
// compute the instant.
type HTTPResolver struct {
	base   string
	client *http.Client
	log    *zap.Logger
}

// NewHTTPResolver creates a resolver for base. A nil client uses http.DefaultClient.
func NewHTTPResolver(base string, client *http.Client, log *zap.Logger) *HTTPResolver {
	if base == "" {
		base = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPResolver{base: strings.TrimRight(base, "/"), client: client, log: log}
}

type dropTime struct {
	UNIX *float64 `json:"UNIX"`
}

// ReleaseInstant returns the UTC release instant of name.
func (r *HTTPResolver) ReleaseInstant(ctx context.Context, name, previousHolder string) (time.Time, error) {
	if name == "" {
		return time.Time{}, fmt.Errorf("name required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/droptime/"+url.PathEscape(name), nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to build droptime request: %w", err)
	}
	at, status, err := r.do(req)
	if err != nil {
		return time.Time{}, err
	}
	if status == http.StatusOK {
		r.log.Info("Resolved release instant", zap.String("name", name), zap.Time("release", at))
		return at, nil
	}

	if previousHolder == "" {
		return time.Time{}, fmt.Errorf("%w: droptime lookup for %s returned HTTP %d and no previous holder was given",
			ErrUnknownRelease, name, status)
	}

	r.log.Info("Droptime unknown, submitting previous holder",
		zap.String("name", name), zap.String("previous_holder", previousHolder), zap.Int("status", status))

	body, err := json.Marshal(map[string]string{"name": name, "prevOwner": previousHolder})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to marshal upload body: %w", err)
	}
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, r.base+"/upload-droptime", bytes.NewReader(body))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	at, status, err = r.do(req)
	if err != nil {
		return time.Time{}, err
	}
	if status != http.StatusOK {
		return time.Time{}, fmt.Errorf("%w: upload-droptime for %s returned HTTP %d", ErrUnknownRelease, name, status)
	}
	r.log.Info("Resolved release instant", zap.String("name", name), zap.Time("release", at))
	return at, nil
}

// do runs req; the instant is only decoded for 200 answers.
func (r *HTTPResolver) do(req *http.Request) (time.Time, int, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return time.Time{}, resp.StatusCode, nil
	}

	var dt dropTime
	if err := json.NewDecoder(resp.Body).Decode(&dt); err != nil {
		return time.Time{}, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	if dt.UNIX == nil {
		return time.Time{}, resp.StatusCode, fmt.Errorf("%w: response has no UNIX field", ErrUnknownRelease)
	}
	return fromUnix(*dt.UNIX), resp.StatusCode, nil
}

// fromUnix converts fractional epoch seconds, keeping millisecond precision.
func fromUnix(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	ms := math.Round(frac * 1000)
	return time.Unix(int64(whole), int64(ms)*int64(time.Millisecond)).UTC()
}
