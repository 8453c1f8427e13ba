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
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/teradata-labs/weft/internal/tokens"
	"github.com/teradata-labs/weft/pkg/tools"
	"github.com/teradata-labs/weft/pkg/types"
	"go.uber.org/zap"
)

// summaryMaxChars caps the opportunistic session summary.
const summaryMaxChars = 400

// ExecuteResult is the outcome of one three-phase exchange.
type ExecuteResult struct {
	Content    string
	ToolRounds int
	Executions []tools.Execution
}

// Execute drives the three-phase protocol over a plan: identity, pending
// injections, then the sanitized task with its tool loop. Every phase is
// independently deduplicated against the session ledger; phases 1 and 2
// are skipped entirely when nothing is owed.
func (o *Orchestrator) Execute(ctx context.Context, plan *CallPlan, thinking bool) (*ExecuteResult, error) {
	if _, err := o.ExecutePreamble(ctx, plan, thinking); err != nil {
		return nil, err
	}

	// Phase 3: the task, with the textual tool loop.
	message := Sanitize(plan.Task())
	out := &ExecuteResult{}
	for round := 0; ; round++ {
		result, err := o.send(ctx, plan, message, thinking)
		if err != nil {
			return nil, fmt.Errorf("phase 3 failed: %w", err)
		}
		if err := o.Store.Update(plan.SessionName, result.MessageID, ""); err != nil {
			return nil, err
		}

		calls := tools.ParseCalls(result.Content)
		if len(calls) == 0 || o.Dispatcher == nil || round >= o.maxToolRounds() {
			out.Content = tools.CleanFinalResponse(result.Content)
			break
		}

		out.ToolRounds++
		executions, framed := o.Dispatcher.Dispatch(ctx, calls)
		out.Executions = append(out.Executions, executions...)
		message = framed
	}

	o.updateSummary(plan)
	return out, nil
}

// send performs one upstream turn and reconciles recovery: when the
// transport had to re-create the upstream session (stall recovery), the
// stored session follows it and the parent chain resets.
func (o *Orchestrator) send(ctx context.Context, plan *CallPlan, prompt string, thinking bool) (*types.ChatResult, error) {
	sess := plan.Session
	result, err := o.Transport.Chat(ctx, types.ChatRequest{
		SessionID:       sess.UpstreamID,
		ParentMessageID: sess.ParentMessageID,
		Prompt:          prompt,
		ThinkingEnabled: thinking,
	})
	if err != nil {
		return nil, err
	}
	if result.SessionID != "" && result.SessionID != sess.UpstreamID {
		if err := o.Store.ResetUpstream(plan.SessionName, result.SessionID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// ExecutePreamble runs Phases 1 and 2 only: the identity prompt (when
// still owed) and the pending injections, each chaining the parent
// forward. Returns the Phase-1 response content, empty when Phase 1 was
// skipped; mode drivers that verify an activation literal read it.
func (o *Orchestrator) ExecutePreamble(ctx context.Context, plan *CallPlan, thinking bool) (string, error) {
	var phase1 string
	if plan.SystemPrompt != "" {
		identity := plan.SystemPrompt
		if o.Registry != nil {
			if block := o.Registry.CatalogueBlock(); block != "" {
				identity += "\n\n" + block
			}
		}
		if plan.AckOverride == "" {
			identity += "\n\nResponde unicamente: 'OK'"
		}

		result, err := o.send(ctx, plan, identity, thinking)
		if err != nil {
			return "", fmt.Errorf("phase 1 failed: %w", err)
		}
		if err := o.Store.Update(plan.SessionName, result.MessageID, ""); err != nil {
			return "", err
		}
		o.Store.RecordTokens(plan.SessionName, tokens.Approximate(identity), 0) //nolint:errcheck
		o.logger().Debug("phase 1 sent",
			zap.String("session", plan.SessionName),
			zap.Int("estimated_tokens", tokens.Approximate(identity)),
		)
		phase1 = result.Content
	}

	for _, inj := range plan.PendingInjections {
		frame := inj.Frame()
		result, err := o.send(ctx, plan, frame, thinking)
		if err != nil {
			return phase1, fmt.Errorf("phase 2 injection %s failed: %w", inj.ID(), err)
		}
		if err := o.Store.Update(plan.SessionName, result.MessageID, inj.ID()); err != nil {
			return phase1, err
		}
		o.Store.RecordTokens(plan.SessionName, 0, tokens.Approximate(frame)) //nolint:errcheck
	}
	return phase1, nil
}

// Exchange performs one raw upstream turn on the plan's session and
// records it: no sanitization, no tool loop. Mode drivers that own their
// own loop (the agent, pipelines) build on it.
func (o *Orchestrator) Exchange(ctx context.Context, plan *CallPlan, prompt string, thinking bool) (*types.ChatResult, error) {
	result, err := o.send(ctx, plan, prompt, thinking)
	if err != nil {
		return nil, err
	}
	if err := o.Store.Update(plan.SessionName, result.MessageID, ""); err != nil {
		return nil, err
	}
	return result, nil
}

// Task returns the raw Phase-3 task. Populated by the caller through
// WithTask; kept as a method so tests can observe sanitization in place.
func (p *CallPlan) Task() string { return p.task }

// WithTask attaches the user task to the plan.
func (p *CallPlan) WithTask(task string) *CallPlan {
	p.task = task
	return p
}

// updateSummary opportunistically refreshes the running summary off the
// latest task.
func (o *Orchestrator) updateSummary(plan *CallPlan) {
	task := strings.TrimSpace(plan.task)
	if task == "" {
		return
	}
	if len(task) > summaryMaxChars {
		task = task[:summaryMaxChars] + "..."
	}
	o.Store.SetSummary(plan.SessionName, "", task) //nolint:errcheck
}
