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
	"regexp"
	"strings"

	"github.com/teradata-labs/weft/pkg/orchestrator"
	"github.com/teradata-labs/weft/pkg/prompts"
	"github.com/teradata-labs/weft/pkg/types"
)

// planInstruction asks the backend to turn a requirements document into an
// executable multi-step plan.
const planInstruction = `Convierte el siguiente documento de requisitos en un plan de pasos
ejecutable. Responde SOLO con un bloque JSON:

` + "```json" + `
{"steps": [{"id": "...", "task": "...", "contextFrom": ["..."], "validate": true}]}
` + "```" + `

Reglas:
- Cada paso es una tarea de codigo concreta y autocontenida.
- Usa contextFrom para pasos que dependen de la salida de otros.
- Maximo 10 pasos.

DOCUMENTO DE REQUISITOS:
`

var jsonFence = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)```")

// RequirementsRequest turns a requirements document into a plan.
type RequirementsRequest struct {
	Doc        string
	Identifier string

	// AutoExecute runs the derived plan immediately through MultiStep.
	AutoExecute bool
}

// Requirements asks the backend for a multi-step plan derived from a
// requirements document. With AutoExecute the plan runs immediately and
// the step results are returned alongside it.
func (r *Runner) Requirements(ctx context.Context, req RequirementsRequest) (*Plan, map[string]*StepResult, error) {
	if strings.TrimSpace(req.Doc) == "" {
		return nil, nil, fmt.Errorf("requirements mode needs a document")
	}
	identifier := req.Identifier
	if identifier == "" {
		identifier = "default"
	}

	plan, err := r.Orch.Plan(ctx, orchestrator.PlanRequest{
		Mode:       "requirements",
		Identifier: identifier,
		Task:       planInstruction + req.Doc,
		Level:      types.LevelCodeSimple,
		SystemPrompt: func() string {
			return prompts.Assemble(types.LevelCodeSimple, prompts.Options{Mode: "requirements"})
		},
	})
	if err != nil {
		return nil, nil, err
	}

	result, err := r.Orch.Execute(ctx, plan, r.Thinking)
	if err != nil {
		return nil, nil, err
	}

	stepPlan, err := ExtractPlan(result.Content)
	if err != nil {
		return nil, nil, fmt.Errorf("backend did not return a usable plan: %w", err)
	}

	if !req.AutoExecute {
		return stepPlan, nil, nil
	}
	results, err := r.MultiStep(ctx, identifier, stepPlan)
	return stepPlan, results, err
}

// ExtractPlan pulls the plan JSON out of a response: the first fenced JSON
// block, or the raw body when the response is bare JSON.
func ExtractPlan(response string) (*Plan, error) {
	if m := jsonFence.FindStringSubmatch(response); m != nil {
		return ParsePlan([]byte(m[1]))
	}
	trimmed := strings.TrimSpace(response)
	if strings.HasPrefix(trimmed, "{") {
		return ParsePlan([]byte(trimmed))
	}
	return nil, fmt.Errorf("no JSON plan found in response")
}
