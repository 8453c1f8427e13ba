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
	"sync"
	"time"

	"github.com/teradata-labs/weft/pkg/classifier"
	"github.com/teradata-labs/weft/pkg/merge"
	"github.com/teradata-labs/weft/pkg/orchestrator"
	"github.com/teradata-labs/weft/pkg/prompts"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/validate"
	"go.uber.org/zap"
)

// QuantumRequest describes a dual-parallel delegation.
type QuantumRequest struct {
	Task       string
	Identifier string
	Template   string

	// Angles forces the two working angles; empty means detect.
	Angles [2]string
}

// Angle presets, matched against task wording.
var anglePresets = []struct {
	hints  []string
	angles [2]string
}{
	{
		hints:  []string{"canvas", "render", "interfaz", "ui", "pantalla", "sprite"},
		angles: [2]string{"logic_data", "ui_render"},
	},
	{
		hints:  []string{"api", "servidor", "endpoint", "backend", "frontend", "cliente"},
		angles: [2]string{"backend", "frontend"},
	},
}

var defaultAngles = [2]string{"structure", "implementation"}

// angleInstructions frame what each angle owns.
var angleInstructions = map[string]string{
	"logic_data":     "Encargate SOLO de la logica y las estructuras de datos. Nada de render ni DOM.",
	"ui_render":      "Encargate SOLO del render y la interfaz. Asume que la logica existe.",
	"backend":        "Encargate SOLO del lado servidor: endpoints, persistencia, validacion.",
	"frontend":       "Encargate SOLO del lado cliente: vistas, estado, llamadas a la API.",
	"structure":      "Encargate SOLO de la estructura: tipos, firmas, esqueleto de modulos.",
	"implementation": "Encargate SOLO de los cuerpos: implementa las firmas con logica completa.",
}

// Quantum runs the task from two complementary angles in parallel and
// merges the responses. When the merged result fails validation, one
// sequential fallback call gets both responses as extended context.
func (r *Runner) Quantum(ctx context.Context, req QuantumRequest) (*Outcome, error) {
	start := time.Now()
	level := classifier.ClassifyForMode(req.Task, "quantum")
	identifier := req.Identifier
	if identifier == "" {
		identifier = "default"
	}

	angles := req.Angles
	if angles[0] == "" || angles[1] == "" {
		angles = detectAngles(req.Task, req.Template)
	}
	r.logger().Info("quantum angles",
		zap.String("a", angles[0]),
		zap.String("b", angles[1]),
	)

	type sideResult struct {
		content string
		skills  []string
		err     error
	}
	results := [2]sideResult{}

	var wg sync.WaitGroup
	for i, angle := range angles {
		wg.Add(1)
		go func(i int, angle string) {
			defer wg.Done()
			content, used, err := r.quantumSide(ctx, req, identifier, angle, level)
			results[i] = sideResult{content: content, skills: used, err: err}
		}(i, angle)
	}
	wg.Wait()

	for _, res := range results {
		if res.err != nil {
			return nil, res.err
		}
	}

	merged := merge.Merge(req.Template, results[0].content, results[1].content)
	if r.Trace != nil {
		r.Trace.Record("merge", merged.Describe(), 0)
	}

	content := merged.Output
	valOpts := validate.Options{Template: req.Template}
	check := r.validateResponse(content, valOpts)

	if check != nil && !check.Valid {
		r.logger().Info("merged result failed validation, sequential fallback",
			zap.Strings("issues", check.Issues),
		)
		fallback, err := r.quantumFallback(ctx, req, identifier, level, results[0].content, results[1].content)
		if err == nil {
			content = fallback
			check = r.validateResponse(content, valOpts)
		}
	}

	r.record("quantum", level, req.Task, content, check, results[0].skills, time.Since(start))
	return &Outcome{
		Content:    content,
		Level:      level,
		Validation: check,
		Strategy:   merged.Strategy,
	}, nil
}

// quantumSide runs one angle in its own session.
func (r *Runner) quantumSide(ctx context.Context, req QuantumRequest, identifier, angle string, level types.TaskLevel) (string, []string, error) {
	instruction := angleInstructions[angle]
	if instruction == "" {
		if list, ok := strings.CutPrefix(angle, "markers:"); ok {
			instruction = fmt.Sprintf("Implementa SOLO estos marcadores: %s. Deja el resto intacto.", list)
		} else {
			instruction = fmt.Sprintf("Encargate SOLO del aspecto: %s.", angle)
		}
	}
	task := fmt.Sprintf("%s\n\nANGULO DE TRABAJO: %s\n%s", composeTask(req.Task, req.Template), angle, instruction)

	plan, err := r.Orch.Plan(ctx, orchestrator.PlanRequest{
		Mode:       "quantum",
		Identifier: identifier,
		Sub:        angle,
		Task:       task,
		Level:      level,
		SystemPrompt: func() string {
			return prompts.Assemble(level, prompts.Options{
				Mode:        "quantum",
				HasTemplate: req.Template != "",
			})
		},
		NegotiateSkills: r.NegotiateSkills,
		Ask:             r.Ask,
	})
	if err != nil {
		return "", nil, err
	}
	used := skillNames(plan)

	result, err := r.executePlan(ctx, plan, validate.Options{Template: req.Template})
	if err != nil {
		return "", nil, err
	}
	return result.Content, used, nil
}

// quantumFallback makes one sequential call with both partial responses
// inlined as context.
func (r *Runner) quantumFallback(ctx context.Context, req QuantumRequest, identifier string, level types.TaskLevel, a, b string) (string, error) {
	task := fmt.Sprintf(
		"%s\n\nDos intentos parciales produjeron esto.\n\nINTENTO A:\n```\n%s\n```\n\nINTENTO B:\n```\n%s\n```\n\nCombina lo mejor de ambos en una version completa y coherente.",
		composeTask(req.Task, req.Template), a, b)

	plan, err := r.Orch.Plan(ctx, orchestrator.PlanRequest{
		Mode:       "quantum",
		Identifier: identifier,
		Sub:        "merge",
		Task:       task,
		Level:      level,
		SystemPrompt: func() string {
			return prompts.Assemble(level, prompts.Options{Mode: "quantum", HasTemplate: req.Template != ""})
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

// detectAngles picks the two working angles: a preset matched on task
// wording, or an automatic split of the template's markers, or the
// structure/implementation default.
func detectAngles(task, template string) [2]string {
	lower := strings.ToLower(task)
	for _, preset := range anglePresets {
		if containsAny(lower, preset.hints) {
			return preset.angles
		}
	}

	if markers := validate.Markers(template); len(markers) >= 2 {
		half := len(markers) / 2
		return [2]string{
			"markers:" + strings.Join(markers[:half], ","),
			"markers:" + strings.Join(markers[half:], ","),
		}
	}
	return defaultAngles
}
