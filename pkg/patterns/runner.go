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

// Package patterns implements the execution modes: delegate, quantum,
// multi-session, converse, multi-step and the agent loop. Every mode
// starts from the orchestrator's plan and adds its own driving loop on
// top of the three-phase protocol.
package patterns

import (
	"context"
	"strings"
	"time"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/pkg/memory"
	"github.com/teradata-labs/weft/pkg/orchestrator"
	"github.com/teradata-labs/weft/pkg/skills"
	"github.com/teradata-labs/weft/pkg/trace"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/validate"
	"go.uber.org/zap"
)

// Defaults shared by the mode drivers.
const (
	DefaultMaxReviewRounds      = 1
	DefaultChunkThresholdTokens = 30_000
	chunkBudgetTokens           = 5000
	chunkCarryoverLines         = 20
	contextFromMaxChars         = 4000
)

// Runner carries the shared machinery every mode driver needs.
type Runner struct {
	Orch *orchestrator.Orchestrator

	// Learning stores; optional, all recording is fail-safe.
	Surgical *memory.SurgicalStore
	Global   *memory.GlobalStore

	// Trace receives step records for the current run; optional.
	Trace *trace.Run

	// MaxReviewRounds bounds the post-task validate/review loop.
	MaxReviewRounds int

	// ChunkThresholdTokens switches delegate mode to chunked execution
	// when the template exceeds it.
	ChunkThresholdTokens int

	// NoValidate disables the response validator entirely.
	NoValidate bool

	// Thinking requests extended reasoning on the web transport.
	Thinking bool

	// NegotiateSkills asks the backend which skills it wants.
	NegotiateSkills bool
	Ask             skills.AskFunc

	Logger *zap.Logger
}

// Outcome is the common result shape of the mode drivers.
type Outcome struct {
	Content    string
	Level      types.TaskLevel
	Validation *validate.Result
	Strategy   string // set by quantum: the merge strategy used
	Turns      []Turn // set by converse and pipelines
	Steps      int    // set by the agent loop
}

// Turn is one prompt/response pair in a sequential mode.
type Turn struct {
	Prompt   string
	Response string
}

// Success reports whether the outcome passed validation (an unvalidated
// outcome counts as success).
func (o *Outcome) Success() bool {
	return o.Validation == nil || o.Validation.Valid
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Logger()
}

func (r *Runner) maxReviewRounds() int {
	if r.MaxReviewRounds > 0 {
		return r.MaxReviewRounds
	}
	return DefaultMaxReviewRounds
}

func (r *Runner) chunkThreshold() int {
	if r.ChunkThresholdTokens > 0 {
		return r.ChunkThresholdTokens
	}
	return DefaultChunkThresholdTokens
}

// validateResponse runs the validator unless disabled.
func (r *Runner) validateResponse(content string, opts validate.Options) *validate.Result {
	if r.NoValidate {
		return nil
	}
	return validate.Check(content, opts)
}

// executePlan runs the three-phase exchange. The truncation-driven
// continuation loop is part of validation, so NoValidate skips it too.
func (r *Runner) executePlan(ctx context.Context, plan *orchestrator.CallPlan, opts validate.Options) (*orchestrator.ExecuteResult, error) {
	if r.NoValidate {
		return r.Orch.Execute(ctx, plan, r.Thinking)
	}
	return r.Orch.ExecuteWithContinuation(ctx, plan, r.Thinking, opts)
}

// record feeds both memory stores with the delegation outcome. Nil
// stores and write failures are silently tolerated.
func (r *Runner) record(mode string, level types.TaskLevel, task, response string, result *validate.Result, skillsUsed []string, elapsed time.Duration) {
	success := result == nil || result.Valid
	truncated := result != nil && result.Truncated

	var failureDetail string
	if result != nil && !result.Valid {
		failureDetail = strings.Join(result.Issues, "; ")
	}

	if r.Surgical != nil {
		r.Surgical.RecordDelegation(memory.DelegationRecord{
			Task:       task,
			Mode:       mode,
			Success:    success,
			DurationMs: elapsed.Milliseconds(),
		}, response, failureDetail)
	}
	if r.Global != nil {
		r.Global.RecordDelegation(mode, level.String(), skillsUsed, success, truncated, elapsed.Milliseconds(), keywordsOf(task))
	}
	if r.Trace != nil {
		r.Trace.Record("validate", failureSummary(success, truncated), elapsed)
	}
}

func failureSummary(success, truncated bool) string {
	switch {
	case success:
		return "ok"
	case truncated:
		return "truncated"
	default:
		return "invalid"
	}
}

// keywordsOf extracts the coarse task keywords fed to the global
// keyword-success map.
func keywordsOf(task string) []string {
	fields := strings.Fields(strings.ToLower(task))
	var out []string
	for _, f := range fields {
		if len(f) >= 5 && len(out) < 5 {
			out = append(out, f)
		}
	}
	return out
}

// skillNames lists the names in a plan's pending skill injections.
func skillNames(plan *orchestrator.CallPlan) []string {
	var out []string
	for _, inj := range plan.PendingInjections {
		if inj.Type == orchestrator.TypeSkill {
			out = append(out, inj.Name)
		}
	}
	return out
}
