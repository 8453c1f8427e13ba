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
	"sort"
	"sync"
	"time"

	"github.com/teradata-labs/weft/pkg/classifier"
	"github.com/teradata-labs/weft/pkg/orchestrator"
	"github.com/teradata-labs/weft/pkg/prompts"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/validate"
	"go.uber.org/zap"
)

// MultiRequest describes an N-instance delegation with named roles.
type MultiRequest struct {
	Task       string
	Identifier string
	Template   string

	// Roles name the instances: generator, reviewer, tester, merger,
	// specialist(domain).
	Roles []string

	// Pipeline runs the roles sequentially in descending priority,
	// feeding each output into the next. Default is parallel fan-out.
	Pipeline bool
}

// RoleResult is one instance's output.
type RoleResult struct {
	Role    string
	Content string
}

// Multi fans the task out to N role-suffixed sessions, in parallel or as
// a priority pipeline.
func (r *Runner) Multi(ctx context.Context, req MultiRequest) (*Outcome, []RoleResult, error) {
	if len(req.Roles) == 0 {
		return nil, nil, fmt.Errorf("multi mode requires at least one role")
	}
	start := time.Now()
	level := classifier.ClassifyForMode(req.Task, "multi")
	identifier := req.Identifier
	if identifier == "" {
		identifier = "default"
	}

	var results []RoleResult
	var err error
	if req.Pipeline {
		results, err = r.multiPipeline(ctx, req, identifier, level)
	} else {
		results, err = r.multiParallel(ctx, req, identifier, level)
	}
	if err != nil {
		return nil, nil, err
	}

	// The final content is the last pipeline stage, or the merger's
	// output when one ran, or the first result.
	content := finalContent(results)
	check := r.validateResponse(content, validate.Options{Template: req.Template})
	r.record("multi", level, req.Task, content, check, nil, time.Since(start))

	outcome := &Outcome{Content: content, Level: level, Validation: check}
	for _, res := range results {
		outcome.Turns = append(outcome.Turns, Turn{Prompt: res.Role, Response: res.Content})
	}
	return outcome, results, nil
}

func (r *Runner) multiParallel(ctx context.Context, req MultiRequest, identifier string, level types.TaskLevel) ([]RoleResult, error) {
	results := make([]RoleResult, len(req.Roles))
	errs := make([]error, len(req.Roles))

	var wg sync.WaitGroup
	for i, role := range req.Roles {
		wg.Add(1)
		go func(i int, role string) {
			defer wg.Done()
			content, err := r.runRole(ctx, req, identifier, role, level, composeTask(req.Task, req.Template))
			results[i] = RoleResult{Role: role, Content: content}
			errs[i] = err
		}(i, role)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// multiPipeline runs the roles in descending priority, feeding each
// output into the next stage's prompt.
func (r *Runner) multiPipeline(ctx context.Context, req MultiRequest, identifier string, level types.TaskLevel) ([]RoleResult, error) {
	roles := append([]string(nil), req.Roles...)
	sort.SliceStable(roles, func(i, j int) bool {
		return prompts.RolePriority(roles[i]) > prompts.RolePriority(roles[j])
	})

	var results []RoleResult
	previous := ""
	for _, role := range roles {
		task := composeTask(req.Task, req.Template)
		if previous != "" {
			task += "\n\nPREVIOUS OUTPUT:\n" + previous
		}

		content, err := r.runRole(ctx, req, identifier, role, level, task)
		if err != nil {
			return nil, err
		}
		results = append(results, RoleResult{Role: role, Content: content})
		previous = content
		r.logger().Debug("pipeline stage done", zap.String("role", role))
	}
	return results, nil
}

// runRole executes the task in one role's own session.
func (r *Runner) runRole(ctx context.Context, req MultiRequest, identifier, role string, level types.TaskLevel, task string) (string, error) {
	plan, err := r.Orch.Plan(ctx, orchestrator.PlanRequest{
		Mode:       "multi",
		Identifier: identifier,
		Sub:        role,
		Task:       task,
		Level:      level,
		SystemPrompt: func() string {
			return prompts.Assemble(level, prompts.Options{
				Mode:        "multi",
				HasTemplate: req.Template != "",
			}) + prompts.RoleSuffix(role)
		},
	})
	if err != nil {
		return "", err
	}
	result, err := r.executePlan(ctx, plan, validate.Options{Template: req.Template})
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

func finalContent(results []RoleResult) string {
	if len(results) == 0 {
		return ""
	}
	for _, res := range results {
		if res.Role == "merger" {
			return res.Content
		}
	}
	return results[len(results)-1].Content
}
