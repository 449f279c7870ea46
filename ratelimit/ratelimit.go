// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package ratelimit implements a sliding window request limiter keyed by
// request source.
package ratelimit

import (
	"sync"
	"time"
)

// Config is the rate limiter configuration.
type Config struct {
	RPM    int           `help:"number of requests allowed per source per window" default:"60"`
	Window time.Duration `help:"length of the sliding window" default:"1m"`
}

// Limiter tracks request timestamps per source over a sliding window. Every
// source gets its own window; an exhausted source does not affect others.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time

	nowFn func() time.Time
}

// NewLimiter creates a Limiter from config.
func NewLimiter(config Config) *Limiter {
	return &Limiter{
		limit:  config.RPM,
		window: config.Window,
		hits:   make(map[string][]time.Time),
		nowFn:  time.Now,
	}
}

// TestSetNow overrides the clock. Only for tests.
func (limiter *Limiter) TestSetNow(now func() time.Time) { limiter.nowFn = now }

// Allow records a request from source and reports whether it fits in the
// window. Rejected requests are not recorded, so a throttled client does not
// push its own window further out by retrying.
func (limiter *Limiter) Allow(source string) bool {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := limiter.nowFn()
	cutoff := now.Add(-limiter.window)

	recent := limiter.hits[source][:0]
	for _, hit := range limiter.hits[source] {
		if hit.After(cutoff) {
			recent = append(recent, hit)
		}
	}

	if len(recent) >= limiter.limit {
		limiter.hits[source] = recent
		return false
	}

	limiter.hits[source] = append(recent, now)
	return true
}

// Prune drops sources whose whole window has expired. Callers run this
// periodically to keep memory proportional to active sources.
func (limiter *Limiter) Prune() {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	cutoff := limiter.nowFn().Add(-limiter.window)
	for source, hits := range limiter.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(limiter.hits, source)
		}
	}
}
