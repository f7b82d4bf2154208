package logging

import (
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
)

// RateLimiter caps how often "kernel bug" messages (§7: "observed values
// outside declared axis ranges or contradictory tool bits") are logged per
// source, using a fixed-window bucket the same shape as the teacher's
// PowerMonitor hourly energy ring buffer (internal/power/monitor.go):
// a window length and a per-key count that resets when the window rolls
// over.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	limit  int

	buckets map[string]*bucket
}

type bucket struct {
	windowStart time.Time
	count       int
	suppressed  int
}

// NewRateLimiter creates a limiter allowing at most limit messages per key
// within each window. The logger is supplied per call to KernelBug rather
// than stored, since callers from different plugins/devices share one
// limiter concurrently but log under their own Named() logger.
func NewRateLimiter(window time.Duration, limit int) *RateLimiter {
	return &RateLimiter{
		window:  window,
		limit:   limit,
		buckets: make(map[string]*bucket),
	}
}

// KernelBug logs a rate-limited kernel-bug message keyed by key (its caller
// LibinputBug passes the message format string). Suppressed occurrences are counted and
// reported once the window rolls over.
func (r *RateLimiter) KernelBug(log hclog.Logger, key, message string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	b, ok := r.buckets[key]
	if !ok || now.Sub(b.windowStart) >= r.window {
		if ok && b.suppressed > 0 {
			log.Warn("kernel bug: suppressed further occurrences", "key", key, "count", b.suppressed)
		}
		b = &bucket{windowStart: now}
		r.buckets[key] = b
	}

	if b.count >= r.limit {
		b.suppressed++
		return
	}
	b.count++
	log.Error(message, args...)
}
