package race

import (
	"fmt"
	"strings"

	"github.com/st-keller/namerace/wire"
)

// Mode selects the endpoint raced and how many attempts fire.
type Mode int

const (
	// Regular races the name-change endpoint with a few attempts.
	Regular Mode = iota
	// Catalog races the profile-creation endpoint; it is more contested,
	// so more attempts fire.
	Catalog
)

// Attempts returns the fixed attempt count of the mode. Panics on invalid value.
func (m Mode) Attempts() int {
	switch m {
	case Regular:
		return 2
	case Catalog:
		return 6
	default:
		panic(fmt.Sprintf("invalid race.Mode: %d (must be Regular/Catalog)", int(m)))
	}
}

// String returns string representation.
func (m Mode) String() string {
	switch m {
	case Regular:
		return "regular"
	case Catalog:
		return "catalog"
	default:
		return fmt.Sprintf("Invalid(%d)", int(m))
	}
}

// ParseMode maps a config value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "regular":
		return Regular, nil
	case "catalog", "gc":
		return Catalog, nil
	default:
		return Regular, fmt.Errorf("unknown race mode %q (want regular or catalog)", s)
	}
}

// Request builds the request template raced in this mode.
func (m Mode) Request(host, name, token string) (wire.Request, error) {
	switch m {
	case Regular:
		return wire.AvailabilityRequest(host, name, token)
	case Catalog:
		return wire.CatalogRequest(host, name, token)
	default:
		return wire.Request{}, fmt.Errorf("invalid race mode %d", int(m))
	}
}
