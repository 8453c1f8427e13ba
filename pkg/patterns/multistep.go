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
	"encoding/json"
	"fmt"
	"sync"

	"github.com/teradata-labs/weft/pkg/classifier"
	"github.com/teradata-labs/weft/pkg/orchestrator"
	"github.com/teradata-labs/weft/pkg/prompts"
	"github.com/teradata-labs/weft/pkg/validate"
	"go.uber.org/zap"
)

// Step is one unit of a multi-step plan.
type Step struct {
	ID       string `json:"id"`
	Task     string `json:"task"`
	Template string `json:"template,omitempty"`

	// ContextFrom inlines the final responses of earlier steps, each
	// truncated at 4K chars.
	ContextFrom []string `json:"contextFrom,omitempty"`

	MaxRetries int  `json:"maxRetries,omitempty"`
	Validate   bool `json:"validate,omitempty"`

	// ParallelGroup labels steps that run concurrently. Consecutive
	// steps sharing a label form one group.
	ParallelGroup string `json:"parallelGroup,omitempty"`

	// DualMode runs the step through the quantum driver.
	DualMode bool `json:"dualMode,omitempty"`
}

// Plan is a whole multi-step execution plan.
type Plan struct {
	Steps []Step `json:"steps"`
}

// ParsePlan decodes a plan from JSON and validates step ids.
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}

	seen := make(map[string]bool)
	for i, step := range plan.Steps {
		if step.ID == "" {
			return nil, fmt.Errorf("step %d has no id", i)
		}
		if seen[step.ID] {
			return nil, fmt.Errorf("duplicate step id %q", step.ID)
		}
		seen[step.ID] = true
		for _, dep := range step.ContextFrom {
			if !seen[dep] {
				return nil, fmt.Errorf("step %q references %q which does not precede it", step.ID, dep)
			}
		}
	}
	return &plan, nil
}

// StepResult is the outcome of one executed step.
type StepResult struct {
	ID         string
	Content    string
	Validation *validate.Result
	Retries    int
}

// MultiStep executes a plan: consecutive steps sharing a parallelGroup
// label run concurrently, everything else runs in order. Each step's
// session is keyed by its id.
func (r *Runner) MultiStep(ctx context.Context, identifier string, plan *Plan) (map[string]*StepResult, error) {
	if identifier == "" {
		identifier = "default"
	}
	results := make(map[string]*StepResult, len(plan.Steps))

	for _, group := range groupSteps(plan.Steps) {
		if len(group) == 1 {
			res, err := r.runStep(ctx, identifier, group[0], results)
			if err != nil {
				return results, err
			}
			results[group[0].ID] = res
			continue
		}

		groupResults := make([]*StepResult, len(group))
		errs := make([]error, len(group))
		var wg sync.WaitGroup
		for i, step := range group {
			wg.Add(1)
			go func(i int, step Step) {
				defer wg.Done()
				groupResults[i], errs[i] = r.runStep(ctx, identifier, step, results)
			}(i, step)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				return results, err
			}
			results[group[i].ID] = groupResults[i]
		}
	}
	return results, nil
}

// groupSteps splits the plan into execution groups: runs of consecutive
// steps sharing a nonempty parallelGroup label.
func groupSteps(steps []Step) [][]Step {
	var groups [][]Step
	for i := 0; i < len(steps); {
		label := steps[i].ParallelGroup
		if label == "" {
			groups = append(groups, []Step{steps[i]})
			i++
			continue
		}
		j := i
		for j < len(steps) && steps[j].ParallelGroup == label {
			j++
		}
		groups = append(groups, steps[i:j])
		i = j
	}
	return groups
}

// runStep executes one step with its context and retry loop.
func (r *Runner) runStep(ctx context.Context, identifier string, step Step, prior map[string]*StepResult) (*StepResult, error) {
	task := step.Task
	for _, dep := range step.ContextFrom {
		res, ok := prior[dep]
		if !ok {
			continue
		}
		snippet := res.Content
		if len(snippet) > contextFromMaxChars {
			snippet = snippet[:contextFromMaxChars] + "\n[... contexto truncado ...]"
		}
		task += fmt.Sprintf("\n\nCONTEXTO DEL PASO %s:\n```\n%s\n```", dep, snippet)
	}

	if step.DualMode {
		outcome, err := r.Quantum(ctx, QuantumRequest{
			Task:       task,
			Identifier: identifier + ":" + step.ID,
			Template:   step.Template,
		})
		if err != nil {
			return nil, fmt.Errorf("step %q failed: %w", step.ID, err)
		}
		return &StepResult{ID: step.ID, Content: outcome.Content, Validation: outcome.Validation}, nil
	}

	level := classifier.ClassifyForMode(task, "multistep")
	planReq := orchestrator.PlanRequest{
		Mode:       "multistep",
		Identifier: identifier,
		Sub:        step.ID,
		Task:       composeTask(task, step.Template),
		Level:      level,
		SystemPrompt: func() string {
			return prompts.Assemble(level, prompts.Options{
				Mode:        "multistep",
				HasTemplate: step.Template != "",
			})
		},
	}

	valOpts := validate.Options{Template: step.Template}
	result := &StepResult{ID: step.ID}
	for attempt := 0; ; attempt++ {
		plan, err := r.Orch.Plan(ctx, planReq)
		if err != nil {
			return nil, fmt.Errorf("step %q failed: %w", step.ID, err)
		}

		exec, err := r.executePlan(ctx, plan, valOpts)
		if err != nil {
			return nil, fmt.Errorf("step %q failed: %w", step.ID, err)
		}
		result.Content = exec.Content

		if !step.Validate || r.NoValidate {
			return result, nil
		}
		result.Validation = validate.Check(result.Content, valOpts)
		if result.Validation.Valid || attempt >= step.MaxRetries {
			return result, nil
		}

		// Retry consumes the validator feedback.
		result.Retries++
		planReq.Task = result.Validation.Feedback
		r.logger().Info("step retry",
			zap.String("step", step.ID),
			zap.Int("attempt", attempt+1),
			zap.Strings("issues", result.Validation.Issues),
		)
	}
}
