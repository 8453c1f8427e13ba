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

// Package intel turns raw delegation outcomes into reusable knowledge:
// shadow learning compares what the backend produced against what the
// developer ultimately kept, failure analysis assigns a root cause to
// each failed delegation, and the risk predictor warns before a
// delegation that history says is likely to go wrong.
package intel

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/pkg/memory"
	"go.uber.org/zap"
)

// minCorrectionChars filters out cosmetic edits: a correction smaller
// than this is noise, not a lesson.
const minCorrectionChars = 20

// maxDiffChars bounds the stored diff text.
const maxDiffChars = 4000

// ShadowLearner records the deltas between delegated output and the
// version the developer kept. Each recorded correction later surfaces in
// the surgical briefing.
type ShadowLearner struct {
	store  *memory.SurgicalStore
	differ *diffmatchpatch.DiffMatchPatch
	logger *zap.Logger
}

// NewShadowLearner creates a learner feeding the given surgical store.
func NewShadowLearner(store *memory.SurgicalStore, logger *zap.Logger) *ShadowLearner {
	if logger == nil {
		logger = log.Logger()
	}
	return &ShadowLearner{
		store:  store,
		differ: diffmatchpatch.New(),
		logger: logger,
	}
}

// Observe compares the delegated output against the accepted version of
// a file and records the correction when it is substantive. Returns true
// when a correction was recorded.
func (s *ShadowLearner) Observe(file, delegated, accepted string) bool {
	if delegated == accepted {
		return false
	}

	diffs := s.differ.DiffMain(delegated, accepted, true)
	s.differ.DiffCleanupSemantic(diffs)

	inserted, deleted := 0, 0
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			inserted += len(d.Text)
		case diffmatchpatch.DiffDelete:
			deleted += len(d.Text)
		}
	}
	if inserted+deleted < minCorrectionChars {
		return false
	}

	diffText := renderDiff(diffs)
	if len(diffText) > maxDiffChars {
		diffText = diffText[:maxDiffChars] + "\n[... diff truncado ...]"
	}

	s.store.AddShadowCorrection(memory.ShadowCorrection{
		File:    file,
		Summary: summarizeCorrection(inserted, deleted),
		Diff:    diffText,
	})
	s.logger.Debug("recorded shadow correction",
		zap.String("file", file),
		zap.Int("inserted", inserted),
		zap.Int("deleted", deleted),
	)
	return true
}

// renderDiff renders changed hunks only; equal runs collapse to a short
// context marker.
func renderDiff(diffs []diffmatchpatch.Diff) string {
	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			fmt.Fprintf(&b, "+%s\n", strings.TrimRight(d.Text, "\n"))
		case diffmatchpatch.DiffDelete:
			fmt.Fprintf(&b, "-%s\n", strings.TrimRight(d.Text, "\n"))
		default:
			if len(d.Text) > 40 {
				b.WriteString("...\n")
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func summarizeCorrection(inserted, deleted int) string {
	switch {
	case inserted > 0 && deleted > 0:
		return fmt.Sprintf("el desarrollador reemplazo %d caracteres por %d", deleted, inserted)
	case inserted > 0:
		return fmt.Sprintf("el desarrollador agrego %d caracteres", inserted)
	default:
		return fmt.Sprintf("el desarrollador elimino %d caracteres", deleted)
	}
}
