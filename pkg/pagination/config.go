package pagination

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 100

// ErrNilSource is returned by New when no source is given.
var ErrNilSource = errors.New("page source is required")

// EndPolicy decides how totals reported by fetches after the first one
// move a cursor's end boundary.
//
// Whatever the policy, a fetch that returns no items for a non-empty window
// ends the cursor's range at that point.
type EndPolicy int

const (
	// EndFixed adopts only the total reported by the construction fetch.
	EndFixed EndPolicy = iota

	// EndShrink lets later totals lower the end boundary, never raise it.
	EndShrink

	// EndTrack lets later totals lower the end boundary. Only the cursor
	// owning the tail of the sequence may have it raised, so split siblings
	// never request overlapping windows.
	EndTrack
)

func (p EndPolicy) String() string {
	switch p {
	case EndFixed:
		return "fixed"
	case EndShrink:
		return "shrink"
	case EndTrack:
		return "track"
	default:
		return fmt.Sprintf("EndPolicy(%d)", int(p))
	}
}

// ParseEndPolicy converts a policy name ("fixed", "shrink", "track") to an
// EndPolicy.
func ParseEndPolicy(s string) (EndPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fixed":
		return EndFixed, nil
	case "shrink":
		return EndShrink, nil
	case "track":
		return EndTrack, nil
	default:
		return EndFixed, fmt.Errorf("unknown end policy %q", s)
	}
}

// Config holds cursor configuration.
type Config struct {
	// PageSize is the number of items requested per fetch. Zero or less
	// yields an empty sequence without fetching.
	PageSize int64

	// EndPolicy controls how reported totals move the end boundary.
	EndPolicy EndPolicy

	// Logger receives fetch and split events (default: component logger).
	Logger *zerolog.Logger
}

// DefaultConfig returns the default cursor configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:  DefaultPageSize,
		EndPolicy: EndFixed,
	}
}
