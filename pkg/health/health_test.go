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
package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/weft/pkg/config"
	"github.com/teradata-labs/weft/pkg/types"
	"go.uber.org/zap/zaptest"
)

type fakeProber struct {
	calls int
	errs  []error // consumed in order; nil-padded afterwards
}

func (f *fakeProber) ProbeChallenge(ctx context.Context) error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func webConfig() *config.Config {
	cfg := config.Default()
	cfg.BearerToken = "token"
	cfg.Cookies = "cookies"
	return cfg
}

func newTestManager(t *testing.T, cfg *config.Config, prober Prober, reload ReloadFunc) *Manager {
	t.Helper()
	m := NewManager(cfg, prober, reload, zaptest.NewLogger(t))
	m.sleep = func(time.Duration) {}
	return m
}

func TestModeSelection(t *testing.T) {
	assert.Equal(t, ModeWeb, newTestManager(t, webConfig(), nil, nil).Mode())

	apiCfg := config.Default()
	apiCfg.APIKey = "sk-test"
	assert.Equal(t, ModeAPI, newTestManager(t, apiCfg, nil, nil).Mode())

	assert.Equal(t, ModeNone, newTestManager(t, config.Default(), nil, nil).Mode())

	// Web wins when both credential sets exist.
	both := webConfig()
	both.APIKey = "sk-test"
	assert.Equal(t, ModeWeb, newTestManager(t, both, nil, nil).Mode())
}

func TestCheckCachesVerdict(t *testing.T) {
	prober := &fakeProber{}
	m := newTestManager(t, webConfig(), prober, nil)

	require.NoError(t, m.Check(context.Background()))
	require.NoError(t, m.Check(context.Background()))
	assert.Equal(t, 1, prober.calls, "second check answers from cache")

	m.Invalidate()
	require.NoError(t, m.Check(context.Background()))
	assert.Equal(t, 2, prober.calls)
}

func TestCheckRetriesWithBackoffThenRelogin(t *testing.T) {
	prober := &fakeProber{errs: []error{
		types.ErrTokenExpired,
		types.ErrTokenExpired,
		types.ErrTokenExpired,
	}}
	var delays []time.Duration
	m := newTestManager(t, webConfig(), prober, nil)
	m.sleep = func(d time.Duration) { delays = append(delays, d) }

	err := m.Check(context.Background())
	assert.ErrorIs(t, err, ErrReloginRequired)
	assert.Equal(t, 3, prober.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, delays)
}

func TestCheckPicksUpRefreshedSecrets(t *testing.T) {
	prober := &fakeProber{errs: []error{types.ErrTokenExpired}}
	refreshed := webConfig()
	refreshed.BearerToken = "fresh-token"

	m := newTestManager(t, webConfig(), prober, func() (*config.Config, error) {
		return refreshed, nil
	})

	require.NoError(t, m.Check(context.Background()))
	assert.Equal(t, 2, prober.calls, "probe retried after the silent reload")
	assert.Equal(t, "fresh-token", m.Config().BearerToken)
}

func TestCheckNoCredentials(t *testing.T) {
	m := newTestManager(t, config.Default(), nil, nil)
	assert.ErrorIs(t, m.Check(context.Background()), ErrReloginRequired)
}

func TestAPIKeyAcceptedWithoutProbe(t *testing.T) {
	cfg := config.Default()
	cfg.APIKey = "sk-test"
	prober := &fakeProber{}
	m := newTestManager(t, cfg, prober, nil)

	require.NoError(t, m.Check(context.Background()))
	assert.Zero(t, prober.calls)
}

func TestReplaceResetsCache(t *testing.T) {
	prober := &fakeProber{errs: []error{
		types.ErrTokenExpired, types.ErrTokenExpired, types.ErrTokenExpired,
	}}
	m := newTestManager(t, webConfig(), prober, nil)
	require.Error(t, m.Check(context.Background()))

	m.Replace(webConfig())
	require.NoError(t, m.Check(context.Background()))
}

func TestReport(t *testing.T) {
	m := newTestManager(t, webConfig(), &fakeProber{}, nil)
	report := m.Report(context.Background())
	assert.Equal(t, ModeWeb, report.Mode)
	assert.True(t, report.Healthy)
	assert.Empty(t, report.Error)
	assert.False(t, report.CheckedAt.IsZero())
}
