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
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// MaxResultChars bounds a single tool result injected back into the
// session. Longer results are truncated with an advisory note.
const MaxResultChars = 120_000

// Dispatcher executes parsed tool calls against a registry and frames the
// results for re-injection into the conversation.
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Logger()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Execution records one executed call for trace and learning consumers.
type Execution struct {
	Call   types.ToolCall
	Result *Result
}

// Dispatch executes each call in order and returns the executions plus the
// single user message that carries all results back to the LLM.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []types.ToolCall) ([]Execution, string) {
	var executions []Execution
	var blocks []string

	for _, call := range calls {
		result := d.execute(ctx, call)
		executions = append(executions, Execution{Call: call, Result: result})
		blocks = append(blocks, frameResult(call.Name, result))
	}

	return executions, strings.Join(blocks, "\n\n")
}

// execute runs a single call. Failures become structured results, never
// errors: the LLM sees what went wrong and can adjust.
func (d *Dispatcher) execute(ctx context.Context, call types.ToolCall) *Result {
	tool, ok := d.registry.Get(call.Name)
	if !ok {
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("unknown tool: %s", call.Name),
		}
	}

	if err := d.validateArgs(tool, call.Args); err != nil {
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("invalid arguments for %s: %v", call.Name, err),
		}
	}

	start := time.Now()
	result, err := tool.Execute(ctx, call.Args)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		d.logger.Warn("tool execution failed",
			zap.String("tool", call.Name),
			zap.Error(err),
		)
		return &Result{
			Success:         false,
			Error:           err.Error(),
			ExecutionTimeMs: elapsed,
		}
	}

	result.ExecutionTimeMs = elapsed
	return result
}

// validateArgs checks the call arguments against the tool's declared JSON
// schema. A tool without a schema accepts anything.
func (d *Dispatcher) validateArgs(tool Tool, args map[string]interface{}) error {
	schema := tool.InputSchema()
	if schema == nil {
		return nil
	}

	schemaJSON, err := schema.ToJSON()
	if err != nil {
		return nil // unserializable schema: skip validation
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("arguments are not JSON-serializable: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(argsJSON),
	)
	if err != nil {
		return nil // schema itself is broken: do not block the call
	}
	if !result.Valid() {
		var issues []string
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return fmt.Errorf("%s", strings.Join(issues, "; "))
	}
	return nil
}

// frameResult renders one tool result block in the wire format the session
// protocol expects.
func frameResult(name string, result *Result) string {
	body := result.Output
	if !result.Success {
		body = "ERROR: " + result.Error
	}
	if len(body) > MaxResultChars {
		body = body[:MaxResultChars] +
			"\n\n[... resultado truncado: excede el limite de 120000 caracteres ...]"
	}
	return fmt.Sprintf("Resultado de `%s`:\n```\n%s\n```", name, body)
}
