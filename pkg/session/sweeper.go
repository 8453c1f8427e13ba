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
package session

import (
	"github.com/robfig/cron/v3"
	"github.com/teradata-labs/weft/internal/log"
	"go.uber.org/zap"
)

// sweepSchedule runs the TTL sweep hourly.
const sweepSchedule = "@hourly"

// Sweeper periodically expires idle sessions in the background.
type Sweeper struct {
	cron  *cron.Cron
	store *Store
}

// NewSweeper creates a sweeper over the store. maxAgeHours <= 0 uses the
// default TTL.
func NewSweeper(store *Store, maxAgeHours int) (*Sweeper, error) {
	c := cron.New()
	logger := log.Logger()

	_, err := c.AddFunc(sweepSchedule, func() {
		if _, err := store.CleanupOld(maxAgeHours); err != nil {
			logger.Warn("session sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}

	return &Sweeper{cron: c, store: store}, nil
}

// Start begins background sweeping. An immediate sweep catches sessions
// that expired while the process was down.
func (s *Sweeper) Start() {
	s.store.CleanupOld(0) //nolint:errcheck
	s.cron.Start()
}

// Stop halts background sweeping; running sweeps finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
