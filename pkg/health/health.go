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

// Package health watches credential validity across transports. Checks
// are cached, probe failures trigger a silent re-read of the stored
// secrets (another process may have refreshed them), and only after
// bounded retries does the caller see a re-login demand.
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/pkg/config"
	"github.com/teradata-labs/weft/pkg/types"
	"go.uber.org/zap"
)

// Transport modes, in preference order.
const (
	ModeWeb  = "web"
	ModeAPI  = "api"
	ModeNone = "none"
)

// Probe retry policy.
const (
	cacheTTL       = 5 * time.Minute
	maxProbeTries  = 3
	backoffBase    = 2 * time.Second
	backoffCeiling = 10 * time.Second
)

// ErrReloginRequired is surfaced when every recovery path is exhausted.
var ErrReloginRequired = errors.New("session expired, re-login required")

// Prober is a cheap credential-validity check against the web backend.
// The web client's PoW challenge probe satisfies it.
type Prober interface {
	ProbeChallenge(ctx context.Context) error
}

// ReloadFunc re-reads the stored configuration, picking up secrets
// refreshed by another process.
type ReloadFunc func() (*config.Config, error)

// Manager decides which transport the credentials support and whether
// they are currently valid. Safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	cfg    *config.Config
	prober Prober
	reload ReloadFunc
	logger *zap.Logger

	lastCheck   time.Time
	lastHealthy bool
	lastErr     error

	// sleep is swappable in tests.
	sleep func(time.Duration)
}

// NewManager creates a health manager. prober may be nil when no web
// credentials exist; reload may be nil to disable silent re-reads.
func NewManager(cfg *config.Config, prober Prober, reload ReloadFunc, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = log.Logger()
	}
	return &Manager{
		cfg:    cfg,
		prober: prober,
		reload: reload,
		logger: logger,
		sleep:  time.Sleep,
	}
}

// Mode returns the transport the current credentials support: web wins
// over api, and none means no usable credentials at all.
func (m *Manager) Mode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return modeFor(m.cfg)
}

func modeFor(cfg *config.Config) string {
	switch {
	case cfg.HasWebCredentials():
		return ModeWeb
	case cfg.HasAPIKey():
		return ModeAPI
	default:
		return ModeNone
	}
}

// Config returns the current configuration snapshot.
func (m *Manager) Config() *config.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Replace hot-swaps the configuration (e.g. after a login flow) and
// resets the validity cache.
func (m *Manager) Replace(cfg *config.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.lastCheck = time.Time{}
	m.lastHealthy = false
	m.lastErr = nil
}

// Invalidate drops the cached verdict so the next Check probes again.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCheck = time.Time{}
}

// Check verifies the credentials are usable, answering from cache when
// the last verdict is fresh. Web credentials are probed with a PoW
// challenge; between failed attempts the stored secrets are silently
// re-read in case another process refreshed them. API keys are accepted
// on presence alone; the first real call settles their validity.
func (m *Manager) Check(ctx context.Context) error {
	m.mu.Lock()
	if !m.lastCheck.IsZero() && time.Since(m.lastCheck) < cacheTTL {
		err := m.lastErr
		m.mu.Unlock()
		return err
	}
	cfg := m.cfg
	m.mu.Unlock()

	err := m.verify(ctx, cfg)

	m.mu.Lock()
	m.lastCheck = time.Now()
	m.lastHealthy = err == nil
	m.lastErr = err
	m.mu.Unlock()
	return err
}

func (m *Manager) verify(ctx context.Context, cfg *config.Config) error {
	switch modeFor(cfg) {
	case ModeNone:
		return ErrReloginRequired
	case ModeAPI:
		return nil
	}

	if m.prober == nil {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < maxProbeTries; attempt++ {
		if attempt > 0 {
			delay := backoffBase << (attempt - 1)
			if delay > backoffCeiling {
				delay = backoffCeiling
			}
			m.sleep(delay)

			if fresh := m.reloadSecrets(); fresh != nil {
				cfg = fresh
			}
		}

		err := m.prober.ProbeChallenge(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		lastErr = err
		m.logger.Warn("credential probe failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	if errors.Is(lastErr, types.ErrTokenExpired) {
		return ErrReloginRequired
	}
	return lastErr
}

// reloadSecrets re-reads the stored config and swaps it in when the
// credentials actually changed. Returns the fresh config, or nil.
func (m *Manager) reloadSecrets() *config.Config {
	if m.reload == nil {
		return nil
	}
	fresh, err := m.reload()
	if err != nil {
		m.logger.Debug("config reload failed during probe", zap.Error(err))
		return nil
	}

	m.mu.Lock()
	changed := fresh.BearerToken != m.cfg.BearerToken ||
		fresh.Cookies != m.cfg.Cookies ||
		fresh.APIKey != m.cfg.APIKey
	if changed {
		m.cfg = fresh
		m.logger.Info("picked up refreshed credentials from disk")
	}
	m.mu.Unlock()

	if changed {
		return fresh
	}
	return nil
}

// Report is a point-in-time health summary for the CLI.
type Report struct {
	Mode      string    `json:"mode"`
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

// Report runs a (possibly cached) check and summarizes the result.
func (m *Manager) Report(ctx context.Context) Report {
	err := m.Check(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	report := Report{
		Mode:      modeFor(m.cfg),
		Healthy:   err == nil,
		CheckedAt: m.lastCheck,
	}
	if err != nil {
		report.Error = err.Error()
	}
	return report
}
