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
package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRateLimiter_UnderCapacityNoWait(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.Logger = zaptest.NewLogger(t)
	rl := NewRateLimiter(config)

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, rl.WaitIfNeeded(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, int64(10), rl.GetMetrics().TotalCalls)
}

func TestRateLimiter_BlocksAtCapacity(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.Logger = zaptest.NewLogger(t)
	config.MaxCalls = 3
	config.Window = 200 * time.Millisecond
	rl := NewRateLimiter(config)

	for i := 0; i < 3; i++ {
		require.NoError(t, rl.WaitIfNeeded(context.Background()))
	}

	// Fourth call must wait for the window to slide.
	start := time.Now()
	require.NoError(t, rl.WaitIfNeeded(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.GreaterOrEqual(t, rl.GetMetrics().DelayedCalls, int64(1))
}

func TestRateLimiter_ContextCancelWhileWaiting(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.Logger = zaptest.NewLogger(t)
	config.MaxCalls = 1
	config.Window = 10 * time.Second
	rl := NewRateLimiter(config)

	require.NoError(t, rl.WaitIfNeeded(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := rl.WaitIfNeeded(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Enabled: false})
	require.NoError(t, rl.WaitIfNeeded(context.Background()))
	assert.Equal(t, int64(0), rl.GetMetrics().TotalCalls)
}
