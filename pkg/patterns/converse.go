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

	"github.com/teradata-labs/weft/pkg/classifier"
	"github.com/teradata-labs/weft/pkg/orchestrator"
	"github.com/teradata-labs/weft/pkg/prompts"
)

// ConverseRequest feeds an ordered message list into one session.
type ConverseRequest struct {
	Identifier string
	Messages   []string

	// TransferFrom names a prior session whose running summary is
	// injected as knowledge before the first message.
	TransferFrom string
}

// Converse runs the messages sequentially through the same session and
// returns the last response plus the per-turn trace.
func (r *Runner) Converse(ctx context.Context, req ConverseRequest) (*Outcome, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("converse mode requires at least one message")
	}
	identifier := req.Identifier
	if identifier == "" {
		identifier = "default"
	}

	var extras []orchestrator.Injection
	if req.TransferFrom != "" {
		if inj, ok := r.transferInjection(req.TransferFrom); ok {
			extras = append(extras, inj)
		}
	}

	outcome := &Outcome{}
	for i, message := range req.Messages {
		level := classifier.Classify(message)
		plan, err := r.Orch.Plan(ctx, orchestrator.PlanRequest{
			Mode:       "converse",
			Identifier: identifier,
			Task:       message,
			Level:      level,
			SystemPrompt: func() string {
				return prompts.Assemble(level, prompts.Options{Mode: "converse"})
			},
			Extras: extras,
		})
		if err != nil {
			return nil, err
		}
		extras = nil // only the first plan carries the transfer

		if i == 0 && req.TransferFrom != "" {
			r.Orch.Store.RecordTransfer(req.TransferFrom, plan.SessionName) //nolint:errcheck
		}

		result, err := r.Orch.Execute(ctx, plan, r.Thinking)
		if err != nil {
			return nil, err
		}
		outcome.Turns = append(outcome.Turns, Turn{Prompt: message, Response: result.Content})
		outcome.Content = result.Content
		outcome.Level = level
	}
	return outcome, nil
}

// transferInjection builds the knowledge block from a prior session's
// running summary.
func (r *Runner) transferInjection(fromName string) (orchestrator.Injection, bool) {
	sess, ok := r.Orch.Store.Get(fromName)
	if !ok || sess.Summary == "" {
		return orchestrator.Injection{}, false
	}
	content := "Resumen de la sesion " + fromName + ":\n" + sess.Summary
	if sess.Topic != "" {
		content += "\nTema: " + sess.Topic
	}
	return orchestrator.Injection{
		Type:    orchestrator.TypeKnowledge,
		Name:    fromName,
		Content: content,
	}, true
}
