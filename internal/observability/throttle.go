package observability

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Throttle rate limits repetitive log lines per key. A flapping window can
// otherwise produce the same warning on every tick. Entries dropped since the
// last emitted line are reported in a "suppressed" field.
type Throttle struct {
	logger *zap.Logger
	every  time.Duration

	mu      sync.Mutex
	entries map[string]*throttleEntry
}

type throttleEntry struct {
	limiter    *rate.Limiter
	suppressed int
}

// NewThrottle emits at most one line per key every interval. A non-positive
// interval disables throttling.
func NewThrottle(logger *zap.Logger, every time.Duration) *Throttle {
	return &Throttle{
		logger:  logger,
		every:   every,
		entries: make(map[string]*throttleEntry),
	}
}

// Allow reports whether a line for key may be written now, and how many were
// dropped before it.
func (t *Throttle) Allow(key string) (bool, int) {
	if t.every <= 0 {
		return true, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(rate.Every(t.every), 1)}
		t.entries[key] = e
	}
	if !e.limiter.Allow() {
		e.suppressed++
		return false, 0
	}
	dropped := e.suppressed
	e.suppressed = 0
	return true, dropped
}

// Warn logs msg at warn level unless the key is currently throttled.
func (t *Throttle) Warn(key, msg string, fields ...zap.Field) {
	if ok, dropped := t.Allow(key); ok {
		if dropped > 0 {
			fields = append(fields, zap.Int("suppressed", dropped))
		}
		t.logger.Warn(msg, fields...)
	}
}

// Error logs msg at error level unless the key is currently throttled.
func (t *Throttle) Error(key, msg string, fields ...zap.Field) {
	if ok, dropped := t.Allow(key); ok {
		if dropped > 0 {
			fields = append(fields, zap.Int("suppressed", dropped))
		}
		t.logger.Error(msg, fields...)
	}
}
