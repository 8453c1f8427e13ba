// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package llm holds transport-shared infrastructure: the call rate limiter
// used by both the web-session and direct-API transports.
package llm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateLimiterConfig configures the interactive-call rate limiter.
type RateLimiterConfig struct {
	// Enabled enables rate limiting (default: true)
	Enabled bool

	// MaxCalls is the number of calls allowed inside the window.
	// Default: 200
	MaxCalls int

	// Window is the sliding window duration. Default: 60s
	Window time.Duration

	// Logger for limiter events
	Logger *zap.Logger
}

// DefaultRateLimiterConfig returns the defaults for interactive calls.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Enabled:  true,
		MaxCalls: 200,
		Window:   60 * time.Second,
		Logger:   zap.NewNop(),
	}
}

// RateLimiter implements sliding-window rate limiting for upstream calls.
// WaitIfNeeded blocks until capacity is available rather than erroring, so
// interactive callers always complete, possibly delayed.
type RateLimiter struct {
	config RateLimiterConfig

	mu    sync.Mutex
	calls []time.Time

	// Metrics
	metricsMu sync.RWMutex
	metrics   RateLimiterMetrics
}

// RateLimiterMetrics tracks limiter behavior for health reports.
type RateLimiterMetrics struct {
	TotalCalls    int64
	DelayedCalls  int64
	TotalWaitMs   int64
	LastDelayedAt time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.MaxCalls <= 0 {
		config.MaxCalls = 200
	}
	if config.Window <= 0 {
		config.Window = 60 * time.Second
	}
	return &RateLimiter{config: config}
}

// WaitIfNeeded blocks until a call slot is available inside the sliding
// window, then records the call. Returns early with the context error if
// the context is canceled while waiting.
func (rl *RateLimiter) WaitIfNeeded(ctx context.Context) error {
	if !rl.config.Enabled {
		return nil
	}

	for {
		wait := rl.tryAcquire()
		if wait <= 0 {
			return nil
		}

		rl.recordDelay(wait)
		rl.config.Logger.Debug("rate limit reached, waiting",
			zap.Duration("wait", wait),
		)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// tryAcquire records the call and returns 0 when capacity is available.
// Otherwise it returns how long to wait for the oldest call to leave the
// window.
func (rl *RateLimiter) tryAcquire() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.config.Window)

	// Drop calls that left the window.
	kept := rl.calls[:0]
	for _, t := range rl.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	rl.calls = kept

	if len(rl.calls) < rl.config.MaxCalls {
		rl.calls = append(rl.calls, now)
		rl.metricsMu.Lock()
		rl.metrics.TotalCalls++
		rl.metricsMu.Unlock()
		return 0
	}

	return rl.calls[0].Add(rl.config.Window).Sub(now)
}

func (rl *RateLimiter) recordDelay(wait time.Duration) {
	rl.metricsMu.Lock()
	defer rl.metricsMu.Unlock()
	rl.metrics.DelayedCalls++
	rl.metrics.TotalWaitMs += wait.Milliseconds()
	rl.metrics.LastDelayedAt = time.Now()
}

// GetMetrics returns a snapshot of limiter metrics.
func (rl *RateLimiter) GetMetrics() RateLimiterMetrics {
	rl.metricsMu.RLock()
	defer rl.metricsMu.RUnlock()
	return rl.metrics
}
