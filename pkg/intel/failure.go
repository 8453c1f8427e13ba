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
package intel

import (
	"strings"

	"github.com/teradata-labs/weft/pkg/memory"
	"github.com/teradata-labs/weft/pkg/validate"
)

// Root causes, most specific first. A failed delegation gets exactly
// one.
const (
	CauseTruncation     = "truncation"
	CauseMissingMarkers = "missing_markers"
	CauseForbiddenToken = "forbidden_token"
	CauseCanvasHooks    = "canvas_hooks"
	CauseEmptyResponse  = "empty_response"
	CauseUnknown        = "unknown"
)

// Analyze assigns a root cause and corrective advice to a failed
// delegation based on the validation verdict, and records the analysis
// in the surgical store when one is attached.
func Analyze(task string, check *validate.Result, response string, store *memory.SurgicalStore) memory.FailureAnalysis {
	analysis := memory.FailureAnalysis{Task: task}
	analysis.RootCause, analysis.Advice = classify(check, response)

	if store != nil {
		store.AddFailureAnalysis(analysis)
	}
	return analysis
}

func classify(check *validate.Result, response string) (cause, advice string) {
	if strings.TrimSpace(response) == "" {
		return CauseEmptyResponse,
			"el backend devolvio una respuesta vacia; reintentar con una sesion nueva"
	}

	if check == nil {
		return CauseUnknown, "revisar la respuesta manualmente"
	}

	if check.Truncated {
		return CauseTruncation,
			"dividir la tarea en fragmentos mas pequenos o subir el limite de tokens"
	}
	if len(check.TodosMissing) > 0 {
		if len(check.TodosMissing)*2 >= len(check.TodosFound)+len(check.TodosMissing) {
			return CauseMissingMarkers,
				"la plantilla supero la capacidad de una sola pasada; usar modo chunked"
		}
		return CauseMissingMarkers,
			"enumerar explicitamente los marcadores pendientes en el reintento"
	}

	for _, issue := range check.Issues {
		lower := strings.ToLower(issue)
		switch {
		case strings.Contains(lower, "innerhtml"):
			return CauseForbiddenToken,
				"prohibir innerHTML en el prompt y exigir manipulacion del DOM con nodos"
		case strings.Contains(lower, "save") || strings.Contains(lower, "restore"):
			return CauseCanvasHooks,
				"exigir pares ctx.save()/ctx.restore() balanceados"
		}
	}

	return CauseUnknown, "revisar la respuesta manualmente"
}
