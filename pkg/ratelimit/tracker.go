package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis hash fields.
const (
	fieldRemaining  = "remaining"
	fieldResetAt    = "reset_at"
	fieldLastUpdate = "last_update"
)

// Prometheus metrics for rate limit tracking.
var (
	remainingGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pagedseq_rate_limit_remaining",
		Help: "Requests remaining in the current rate limit window",
	}, []string{"name"})

	blocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagedseq_rate_limit_blocks_total",
		Help: "Total number of requests held until the rate limit reset",
	}, []string{"name"})

	throttlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagedseq_rate_limit_throttles_total",
		Help: "Total number of requests delayed by rate limit throttling",
	}, []string{"name"})
)

// Tracker records the budget reported by responses and gates requests.
// It is safe for concurrent use.
type Tracker struct {
	redis  *redis.Client
	config Config
	logger zerolog.Logger
}

// NewTracker creates a new rate limit tracker. Zero config fields take
// their defaults.
func NewTracker(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *Tracker {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	defaults := DefaultConfig(cfg.Name)
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.RemainingHeader == "" {
		cfg.RemainingHeader = defaults.RemainingHeader
	}
	if cfg.ResetHeader == "" {
		cfg.ResetHeader = defaults.ResetHeader
	}
	if cfg.CriticalThreshold <= 0 {
		cfg.CriticalThreshold = defaults.CriticalThreshold
	}
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = defaults.WarningThreshold
	}
	if cfg.ThrottleDelay <= 0 {
		cfg.ThrottleDelay = defaults.ThrottleDelay
	}
	return &Tracker{
		redis:  redisClient,
		config: cfg,
		logger: logger.With().Str("rate_limit", cfg.Name).Logger(),
	}
}

// Config returns the effective configuration.
func (t *Tracker) Config() Config {
	return t.config
}

// GetState retrieves the current state from Redis. A budget nobody has
// reported yet, or one whose window has reset, is returned as unknown.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	fields, err := t.redis.HGetAll(ctx, t.config.key()).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}
	if len(fields) == 0 {
		return &State{}, nil
	}

	remaining, err := strconv.Atoi(fields[fieldRemaining])
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldRemaining, err)
	}
	resetAt, err := strconv.ParseInt(fields[fieldResetAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldResetAt, err)
	}
	lastUpdate, err := strconv.ParseInt(fields[fieldLastUpdate], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldLastUpdate, err)
	}

	return &State{
		Remaining:  remaining,
		ResetAt:    time.UnixMilli(resetAt),
		LastUpdate: time.UnixMilli(lastUpdate),
		Known:      true,
	}, nil
}

// UpdateFromHeaders stores the budget reported in headers. Responses
// without the remaining header are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := strings.TrimSpace(headers.Get(t.config.RemainingHeader))
	if remainStr == "" {
		return nil
	}
	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", t.config.RemainingHeader, err)
	}

	resetStr := strings.TrimSpace(headers.Get(t.config.ResetHeader))
	if resetStr == "" {
		return fmt.Errorf("%s header missing", t.config.ResetHeader)
	}
	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", t.config.ResetHeader, err)
	}

	key := t.config.key()
	if resetSeconds <= 0 {
		// The window has already reset.
		if err := t.redis.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("clear rate limit state: %w", err)
		}
		remainingGauge.WithLabelValues(t.config.Name).Set(float64(remain))
		return nil
	}

	now := time.Now()
	window := time.Duration(resetSeconds) * time.Second
	state := &State{
		Remaining:  remain,
		ResetAt:    now.Add(window),
		LastUpdate: now,
		Known:      true,
	}

	// The hash expires with the window, so a reset budget reads as unknown.
	pipe := t.redis.TxPipeline()
	pipe.HSet(ctx, key,
		fieldRemaining, remain,
		fieldResetAt, state.ResetAt.UnixMilli(),
		fieldLastUpdate, now.UnixMilli(),
	)
	pipe.PExpire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	remainingGauge.WithLabelValues(t.config.Name).Set(float64(remain))

	switch t.config.Level(state) {
	case LevelCritical:
		t.logger.Error().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit CRITICAL - requests will be held until reset")
	case LevelWarning:
		t.logger.Warn().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit state updated")
	}
	return nil
}

// Wait blocks until a request may be sent. A critical budget holds the
// caller until the window resets and a warning budget delays it by
// ThrottleDelay. It returns ctx.Err() if ctx is done while waiting.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		return err
	}

	var delay time.Duration
	switch t.config.Level(state) {
	case LevelCritical:
		delay = state.TimeUntilReset()
		if delay == 0 {
			return nil
		}
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait_duration", delay).
			Msg("Rate limit critical - holding request")
		blocksTotal.WithLabelValues(t.config.Name).Inc()
	case LevelWarning:
		delay = t.config.ThrottleDelay
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Dur("wait_duration", delay).
			Msg("Rate limit warning - throttling request")
		throttlesTotal.WithLabelValues(t.config.Name).Inc()
	default:
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
