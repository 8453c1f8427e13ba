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
package patterns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/teradata-labs/weft/internal/tokens"
	"github.com/teradata-labs/weft/pkg/classifier"
	"github.com/teradata-labs/weft/pkg/orchestrator"
	"github.com/teradata-labs/weft/pkg/prompts"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/validate"
	"go.uber.org/zap"
)

// DelegateRequest describes a single-shot delegation.
type DelegateRequest struct {
	Task       string
	Identifier string // session identifier; defaults to "default"

	// Template is an optional TODO_*-marked scaffold the response must
	// cover.
	Template string

	// ProjectContext is an optional pre-task briefing injected once per
	// session.
	ProjectContext string

	// Level forces a task level; zero means classify.
	Level types.TaskLevel
}

// surgicalVerbs classify a task as a patch rather than fresh generation.
var surgicalVerbs = []string{"corrige", "arregla", "modifica", "cambia", "ajusta", "fix", "patch"}

var multiFileHints = []string{"archivos", "varios modulos", "multiple files", "multi-file", "varios ficheros"}

// Delegate runs one task through classification, prompt assembly, the
// three-phase protocol and the validate/review loop. Oversized templates
// switch to chunked execution.
func (r *Runner) Delegate(ctx context.Context, req DelegateRequest) (*Outcome, error) {
	start := time.Now()

	level := req.Level
	if level == 0 {
		level = classifier.ClassifyForMode(req.Task, "delegate")
	}
	identifier := req.Identifier
	if identifier == "" {
		identifier = "default"
	}

	promptOpts := promptOptions(req.Task, req.Template)
	planReq := orchestrator.PlanRequest{
		Mode:       "delegate",
		Identifier: identifier,
		Task:       composeTask(req.Task, req.Template),
		Level:      level,
		SystemPrompt: func() string {
			return prompts.Assemble(level, promptOpts)
		},
		NegotiateSkills: r.NegotiateSkills,
		Ask:             r.Ask,
	}
	if req.ProjectContext != "" {
		planReq.Extras = append(planReq.Extras, orchestrator.Injection{
			Type:    orchestrator.TypeKnowledge,
			Name:    "project-context",
			Content: req.ProjectContext,
		})
	}

	if req.Template != "" && tokens.Approximate(req.Template) > r.chunkThreshold() {
		return r.delegateChunked(ctx, planReq, req, level, start)
	}

	plan, err := r.Orch.Plan(ctx, planReq)
	if err != nil {
		return nil, err
	}
	usedSkills := skillNames(plan)

	valOpts := validate.Options{Template: req.Template}
	result, err := r.executePlan(ctx, plan, valOpts)
	if err != nil {
		return nil, err
	}
	content := result.Content

	check := r.validateResponse(content, valOpts)
	for round := 0; check != nil && !check.Valid && round < r.maxReviewRounds(); round++ {
		r.logger().Info("review round",
			zap.Int("round", round+1),
			zap.Strings("issues", check.Issues),
		)
		review, err := r.reviewOnce(ctx, planReq, check.Feedback)
		if err != nil {
			break
		}
		content = review
		check = r.validateResponse(content, valOpts)
	}

	r.record("delegate", level, req.Task, content, check, usedSkills, time.Since(start))
	return &Outcome{Content: content, Level: level, Validation: check}, nil
}

// reviewOnce sends the validator feedback into the same session and
// returns the revised response.
func (r *Runner) reviewOnce(ctx context.Context, planReq orchestrator.PlanRequest, feedback string) (string, error) {
	plan, err := r.Orch.Plan(ctx, planReq)
	if err != nil {
		return "", err
	}
	result, err := r.Orch.Exchange(ctx, plan, feedback, r.Thinking)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// delegateChunked splits the template at marker boundaries and runs the
// chunks sequentially, carrying the tail of each output into the next
// chunk's prompt.
func (r *Runner) delegateChunked(ctx context.Context, planReq orchestrator.PlanRequest, req DelegateRequest, level types.TaskLevel, start time.Time) (*Outcome, error) {
	chunks := SplitTemplate(req.Template, chunkBudgetTokens)
	r.logger().Info("template exceeds single-pass budget, chunking",
		zap.Int("chunks", len(chunks)),
	)

	var parts []string
	var usedSkills []string
	for i, chunk := range chunks {
		task := fmt.Sprintf("%s\n\nPARTE %d/%d DE LA PLANTILLA:\n```\n%s\n```",
			req.Task, i+1, len(chunks), chunk)
		if len(parts) > 0 {
			task += "\n\nCONTEXTO (final de la parte anterior):\n```\n" +
				lastLines(parts[len(parts)-1], chunkCarryoverLines) + "\n```"
		}

		chunkReq := planReq
		chunkReq.Task = task
		plan, err := r.Orch.Plan(ctx, chunkReq)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			usedSkills = skillNames(plan)
		}

		result, err := r.executePlan(ctx, plan, validate.Options{Template: chunk})
		if err != nil {
			return nil, err
		}
		parts = append(parts, result.Content)
		if r.Trace != nil {
			r.Trace.Record("send", fmt.Sprintf("chunk %d/%d", i+1, len(chunks)), 0)
		}
	}

	content := strings.Join(parts, "\n\n")
	check := r.validateResponse(content, validate.Options{Template: req.Template})
	r.record("chunked", level, req.Task, content, check, usedSkills, time.Since(start))
	return &Outcome{Content: content, Level: level, Validation: check}, nil
}

// SplitTemplate cuts a marker template into chunks of at most
// budgetTokens, breaking only at marker boundaries so no marker's block
// straddles two chunks.
func SplitTemplate(template string, budgetTokens int) []string {
	lines := strings.Split(template, "\n")

	// Segment at lines that carry a marker.
	var segments [][]string
	current := []string{}
	for _, line := range lines {
		if markerLine(line) && len(current) > 0 {
			segments = append(segments, current)
			current = nil
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		segments = append(segments, current)
	}

	var chunks []string
	var pending []string
	pendingTokens := 0
	for _, seg := range segments {
		segText := strings.Join(seg, "\n")
		segTokens := tokens.Approximate(segText)
		if pendingTokens > 0 && pendingTokens+segTokens > budgetTokens {
			chunks = append(chunks, strings.Join(pending, "\n"))
			pending = nil
			pendingTokens = 0
		}
		pending = append(pending, segText)
		pendingTokens += segTokens
	}
	if len(pending) > 0 {
		chunks = append(chunks, strings.Join(pending, "\n"))
	}
	return chunks
}

func markerLine(line string) bool {
	return strings.Contains(line, "TODO_")
}

func lastLines(text string, n int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// composeTask attaches the template to the task message.
func composeTask(task, template string) string {
	if template == "" {
		return task
	}
	return task + "\n\nPLANTILLA:\n```\n" + template + "\n```"
}

// promptOptions picks the optional prompt blocks from task shape.
func promptOptions(task, template string) prompts.Options {
	lower := strings.ToLower(task)
	opts := prompts.Options{
		Mode:        "delegate",
		HasTemplate: template != "",
	}
	switch {
	case containsAny(lower, surgicalVerbs):
		opts.Surgical = true
	case containsAny(lower, multiFileHints):
		opts.MultiFile = true
	default:
		opts.Generation = true
	}
	return opts
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
