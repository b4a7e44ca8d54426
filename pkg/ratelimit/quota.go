package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"mediakeeper/pkg/logger"
)

const (
	HeaderRemaining = "x-rate-limit-remaining"
	HeaderReset     = "x-rate-limit-reset"
)

// QuotaState is the upstream allowance reported for one resource family.
// It is re-derived from every response and never persisted.
type QuotaState struct {
	Remaining int
	ResetAt   time.Time
}

// Exhausted reports whether no requests remain in the current window
func (s QuotaState) Exhausted() bool {
	return s.Remaining <= 0
}

// ParseHeaders extracts a QuotaState from response headers. ok is false when
// either header is missing or unparseable.
func ParseHeaders(h http.Header) (QuotaState, bool) {
	rem := h.Get(HeaderRemaining)
	reset := h.Get(HeaderReset)
	if rem == "" || reset == "" {
		return QuotaState{}, false
	}
	remaining, err := strconv.Atoi(strings.TrimSpace(rem))
	if err != nil {
		return QuotaState{}, false
	}
	unix, err := strconv.ParseInt(strings.TrimSpace(reset), 10, 64)
	if err != nil {
		return QuotaState{}, false
	}
	return QuotaState{Remaining: remaining, ResetAt: time.Unix(unix, 0)}, true
}

// QuotaGate suspends the caller until an exhausted quota window has reset.
// The wait is process-wide: every caller sharing the gate pauses with it.
type QuotaGate struct {
	margin time.Duration
	logger logger.Logger

	mu    sync.Mutex
	last  map[string]QuotaState
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewQuotaGate creates a gate that waits until reset plus margin
func NewQuotaGate(margin time.Duration, log logger.Logger) *QuotaGate {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &QuotaGate{
		margin: margin,
		logger: log,
		last:   make(map[string]QuotaState),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// SetClock replaces the time source and sleeper; used by tests
func (g *QuotaGate) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if now != nil {
		g.now = now
	}
	if sleep != nil {
		g.sleep = sleep
	}
}

// Observe records the state for family and, when it is exhausted, blocks
// until ResetAt + margin has passed.
func (g *QuotaGate) Observe(ctx context.Context, family string, state QuotaState) error {
	g.mu.Lock()
	g.last[family] = state
	now, sleep := g.now, g.sleep
	g.mu.Unlock()

	if !state.Exhausted() {
		return nil
	}

	until := state.ResetAt.Add(g.margin)
	wait := until.Sub(now())
	if wait <= 0 {
		return nil
	}

	logger.LogQuotaWait(g.logger, family, until)
	if err := sleep(ctx, wait); err != nil {
		return err
	}

	g.mu.Lock()
	delete(g.last, family)
	g.mu.Unlock()
	return nil
}

// Last returns the most recent state observed for family
func (g *QuotaGate) Last(family string) (QuotaState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.last[family]
	return s, ok
}

// Family derives the quota resource family from an endpoint path, e.g.
// "favorites/list" -> "favorites", "/statuses/destroy/1.json" -> "statuses".
func Family(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "/")
	if i := strings.Index(endpoint, "/"); i >= 0 {
		endpoint = endpoint[:i]
	}
	return strings.TrimSuffix(endpoint, ".json")
}
