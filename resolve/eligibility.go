package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// DefaultServicesURL is the profile service API.
const DefaultServicesURL = "https://api.minecraftservices.com"

// ErrNotEligible is returned when the account may not change its name yet.
var ErrNotEligible = errors.New("name change not allowed within the cooldown period")

// EligibilityChecker asks the profile service whether the account behind a
// token may change its name now.
type EligibilityChecker struct {
	base   string
	client *http.Client
	log    *zap.Logger
}

// NewEligibilityChecker creates a checker for base. A nil client uses
// http.DefaultClient.
func NewEligibilityChecker(base string, client *http.Client, log *zap.Logger) *EligibilityChecker {
	if base == "" {
		base = DefaultServicesURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EligibilityChecker{base: strings.TrimRight(base, "/"), client: client, log: log}
}

type nameChange struct {
	Allowed *bool `json:"nameChangeAllowed"`
}

// CheckEligibility returns nil when a name change is allowed and
// ErrNotEligible when the account is in its cooldown period.
func (c *EligibilityChecker) CheckEligibility(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/minecraft/profile/namechange", nil)
	if err != nil {
		return fmt.Errorf("failed to build namechange request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("namechange check returned HTTP %d", resp.StatusCode)
	}

	var nc nameChange
	if err := json.NewDecoder(resp.Body).Decode(&nc); err != nil {
		return fmt.Errorf("failed to decode namechange response: %w", err)
	}
	if nc.Allowed == nil {
		return fmt.Errorf("namechange response has no nameChangeAllowed field")
	}
	if !*nc.Allowed {
		return ErrNotEligible
	}
	c.log.Debug("Name change allowed")
	return nil
}
