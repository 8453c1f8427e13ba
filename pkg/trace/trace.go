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

// Package trace records what each run actually did: a per-run JSON step
// trace for humans reading a single session, and a SQLite audit store
// for queries across runs.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teradata-labs/weft/internal/log"
	"go.uber.org/zap"
)

// Step is one recorded action within a run.
type Step struct {
	Seq      int       `json:"seq"`
	Kind     string    `json:"kind"` // send | tool | validate | merge | note
	Detail   string    `json:"detail"`
	At       time.Time `json:"at"`
	Duration int64     `json:"duration_ms,omitempty"`
}

// Run is a whole traced execution, flushed to disk on every step so a
// crash loses nothing.
type Run struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Task      string    `json:"task"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Success   *bool     `json:"success,omitempty"`
	Steps     []Step    `json:"steps"`

	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewRun starts a trace under dir. Tracing is fail-safe: when the dir
// cannot be created the run still works, it just never hits disk.
func NewRun(dir, mode, task string, logger *zap.Logger) *Run {
	if logger == nil {
		logger = log.Logger()
	}
	run := &Run{
		ID:        uuid.NewString(),
		Mode:      mode,
		Task:      task,
		StartedAt: time.Now(),
		logger:    logger,
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warn("trace dir unavailable, tracing to memory only", zap.Error(err))
		} else {
			run.path = filepath.Join(dir, fmt.Sprintf("%s_%s.json",
				run.StartedAt.Format("20060102_150405"), run.ID[:8]))
		}
	}
	return run
}

// Record appends one step and flushes.
func (r *Run) Record(kind, detail string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Steps = append(r.Steps, Step{
		Seq:      len(r.Steps) + 1,
		Kind:     kind,
		Detail:   detail,
		At:       time.Now(),
		Duration: duration.Milliseconds(),
	})
	r.flush()
}

// Finish seals the run with its outcome.
func (r *Run) Finish(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.EndedAt = time.Now()
	r.Success = &success
	r.flush()
}

// flush writes the trace file. Callers hold the mutex.
func (r *Run) flush() {
	if r.path == "" {
		return
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		r.logger.Warn("failed to marshal trace", zap.Error(err))
		return
	}
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		r.logger.Warn("failed to write trace", zap.Error(err))
	}
}

// Path returns the on-disk location of the trace, empty when tracing is
// memory-only.
func (r *Run) Path() string { return r.path }
