// Package ratelimit provides per-key token bucket rate limiting for MCP tools.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Limit is the refill rate (tokens per second) and burst of one bucket.
// A new bucket starts full.
type Limit struct {
	Rate  float64
	Burst int
}

// Limiter keeps one token bucket per key. It is safe for concurrent use.
type Limiter struct {
	limit Limit

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewLimiter creates a limiter whose buckets all follow limit.
func NewLimiter(limit Limit) *Limiter {
	return &Limiter{limit: limit, buckets: make(map[string]*bucket), now: time.Now}
}

// Allow takes one token from key's bucket, reporting false when it is empty.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.limit.Burst), last: now}
		l.buckets[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+l.limit.Rate*elapsed, float64(l.limit.Burst))
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// ToolLimiters maps tool names to their limiters. Buckets are keyed by
// nodenet uid, so a busy nodenet does not starve the others.
type ToolLimiters map[string]*Limiter

// DefaultToolLimits are generous for interactive use. Stepping is the
// expensive call and gets the tightest sustained rate.
var DefaultToolLimits = map[string]Limit{
	"nodenet_create":      {Rate: 10.0 / 60.0, Burst: 3},
	"nodenet_list":        {Rate: 1.0, Burst: 10},
	"nodenet_create_node": {Rate: 5.0, Burst: 50},
	"nodenet_delete_node": {Rate: 5.0, Burst: 50},
	"nodenet_link":        {Rate: 5.0, Burst: 50},
	"nodenet_unlink":      {Rate: 5.0, Burst: 50},
	"nodenet_step":        {Rate: 2.0, Burst: 5},
	"nodenet_get_node":    {Rate: 10.0, Burst: 50},
	"nodenet_export":      {Rate: 5.0 / 60.0, Burst: 2},
	"nodenet_graph":       {Rate: 30.0 / 60.0, Burst: 5},
}

// NewToolLimiters creates one limiter per entry of limits.
func NewToolLimiters(limits map[string]Limit) ToolLimiters {
	out := make(ToolLimiters, len(limits))
	for tool, limit := range limits {
		out[tool] = NewLimiter(limit)
	}
	return out
}

// CheckLimit returns an error when tool is rate limited for key. Tools
// without a limiter are always allowed.
func CheckLimit(limiters ToolLimiters, tool, key string) error {
	limiter, ok := limiters[tool]
	if !ok {
		return nil
	}
	if !limiter.Allow(key) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", tool)
	}
	return nil
}
