// Package ratelimit tracks an upstream request budget reported in response
// headers and gates requests on it. The state lives in Redis, so every
// process fetching from the same API shares one view of the budget.
package ratelimit

import (
	"time"
)

// Default header names.
const (
	DefaultRemainingHeader = "X-RateLimit-Remaining"
	DefaultResetHeader     = "X-RateLimit-Reset"
)

// Default thresholds.
const (
	// DefaultCriticalThreshold blocks requests until the budget resets when
	// fewer requests than this remain.
	DefaultCriticalThreshold = 5

	// DefaultWarningThreshold throttles requests when fewer requests than
	// this remain.
	DefaultWarningThreshold = 20

	// DefaultThrottleDelay is the pause applied per request while throttled.
	DefaultThrottleDelay = time.Second
)

// keyPrefix is prefixed to the Redis hash of every budget.
const keyPrefix = "pagedseq:rate_limit"

// Level is the gating decision for a state.
type Level string

const (
	LevelHealthy  Level = "healthy"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// State is the last known budget.
type State struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the state was last reported.
	LastUpdate time.Time `json:"last_update"`

	// Known is false until a response has reported the budget.
	Known bool `json:"known"`
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// TimeUntilReset returns the duration until the budget resets.
// Returns 0 if the reset time has already passed.
func (s *State) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// Config configures a Tracker.
type Config struct {
	// Name identifies the budget. Trackers with the same name share state.
	Name string

	// Response headers carrying the remaining requests and the seconds
	// until reset.
	RemainingHeader string
	ResetHeader     string

	CriticalThreshold int
	WarningThreshold  int
	ThrottleDelay     time.Duration
}

// DefaultConfig returns the default configuration for the budget name.
func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		RemainingHeader:   DefaultRemainingHeader,
		ResetHeader:       DefaultResetHeader,
		CriticalThreshold: DefaultCriticalThreshold,
		WarningThreshold:  DefaultWarningThreshold,
		ThrottleDelay:     DefaultThrottleDelay,
	}
}

// Level classifies s. Unknown states are healthy.
func (c Config) Level(s *State) Level {
	switch {
	case !s.Known:
		return LevelHealthy
	case s.Remaining < c.CriticalThreshold:
		return LevelCritical
	case s.Remaining < c.WarningThreshold:
		return LevelWarning
	default:
		return LevelHealthy
	}
}

func (c Config) key() string {
	return keyPrefix + ":" + c.Name
}
