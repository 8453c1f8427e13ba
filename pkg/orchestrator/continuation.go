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
	"strings"

	"github.com/teradata-labs/weft/pkg/validate"
	"go.uber.org/zap"
)

// maxContinuations bounds how many times a truncated response is
// extended before we give up and return what we have.
const maxContinuations = 3

// continuePrompt asks the backend to resume a cut-off response without
// re-emitting what it already produced.
const continuePrompt = "Continue exactly where you stopped. Do not repeat prior code."

// ExecuteWithContinuation runs the three-phase exchange and, when the
// response shows truncation signs, keeps asking for the remainder and
// concatenates the parts. Tool executions from the first exchange carry
// over; continuation turns never run tools.
func (o *Orchestrator) ExecuteWithContinuation(ctx context.Context, plan *CallPlan, thinking bool, opts validate.Options) (*ExecuteResult, error) {
	result, err := o.Execute(ctx, plan, thinking)
	if err != nil {
		return nil, err
	}

	content := result.Content
	for attempt := 0; attempt < maxContinuations; attempt++ {
		check := validate.Check(content, opts)
		if !check.Truncated {
			break
		}
		o.logger().Info("response truncated, requesting continuation",
			zap.String("session", plan.SessionName),
			zap.Int("attempt", attempt+1),
		)

		next, err := o.send(ctx, plan, continuePrompt, thinking)
		if err != nil {
			break
		}
		if err := o.Store.Update(plan.SessionName, next.MessageID, ""); err != nil {
			return nil, err
		}
		part := strings.TrimSpace(next.Content)
		if part == "" {
			break
		}
		content = joinContinuation(content, part)
	}

	result.Content = content
	return result, nil
}

// joinContinuation splices a continuation onto the truncated tail,
// dropping a re-emitted overlap when the backend repeats the last line
// anyway.
func joinContinuation(head, tail string) string {
	headLines := strings.Split(strings.TrimRight(head, "\n"), "\n")
	lastLine := strings.TrimSpace(headLines[len(headLines)-1])
	if lastLine != "" {
		if idx := strings.Index(tail, lastLine); idx >= 0 && idx < 200 {
			tail = tail[idx+len(lastLine):]
			tail = strings.TrimLeft(tail, "\n")
			return strings.Join(headLines, "\n") + "\n" + tail
		}
	}
	return strings.TrimRight(head, "\n") + "\n" + tail
}
