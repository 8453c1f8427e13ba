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

// Package classifier derives the coarse task level from the first user
// message. The level drives prompt shape, skill budgets, and model
// selection; it deliberately stays at keyword-heuristic depth.
package classifier

import (
	"strings"

	"github.com/teradata-labs/weft/internal/tfidf"
	"github.com/teradata-labs/weft/pkg/types"
)

// Keyword families, matched against the normalized (lower-cased,
// accent-stripped) task text. Spanish and English variants side by side
// since the controller surface is bilingual.
var (
	greetings = []string{
		"hola", "buenas", "buenos dias", "buenas tardes", "buenas noches",
		"gracias", "hello", "hi", "hey", "thanks", "adios", "bye",
	}

	questionWords = []string{
		"que es", "que son", "como funciona", "como se", "por que",
		"cual es", "cuando", "donde", "what is", "what are", "how does",
		"how do", "why", "which", "explica", "explain", "diferencia",
		"difference",
	}

	codeVerbs = []string{
		"crea", "crear", "implementa", "implementar", "escribe", "escribir",
		"programa", "programar", "desarrolla", "desarrollar", "genera",
		"generar", "haz", "hacer", "construye", "arregla", "corrige",
		"refactoriza", "create", "implement", "write", "build", "develop",
		"generate", "make", "code", "fix", "refactor", "add",
	}

	codeNouns = []string{
		"funcion", "function", "clase", "class", "metodo", "method",
		"script", "array", "lista", "list", "objeto", "object", "modulo",
		"module", "componente", "component", "endpoint", "api", "loop",
		"bucle", "algoritmo", "algorithm", "regex", "query", "test",
		"html", "css", "javascript", "python", "codigo", "code",
	}

	// Each hit raises the complexity estimate; two or more means a
	// multi-concern task.
	complexMarkers = []string{
		"sistema", "system", "autenticacion", "authentication", "auth",
		"jwt", "oauth", "token", "refresh", "rate limiting", "rate-limit",
		"microservicio", "microservice", "arquitectura", "architecture",
		"base de datos", "database", "websocket", "concurren", "cache",
		"seguridad", "security", "escalab", "scalab", "distribuido",
		"distributed", "integracion", "integration", "pipeline",
		"completo", "complete", "full", "deploy", "docker", "backend",
		"frontend", "fullstack", "middleware", "sesion", "session",
	}
)

// longTaskChars is the length past which a coding task counts as complex
// regardless of marker hits.
const longTaskChars = 220

// Classify maps the task text to a level. Delegation is never inferred
// from text; the driver forces it (see ClassifyForMode).
func Classify(text string) types.TaskLevel {
	normalized := tfidf.Normalize(text)
	trimmed := strings.TrimSpace(normalized)
	if trimmed == "" {
		return types.LevelChat
	}

	markers := countHits(trimmed, complexMarkers)
	hasCode := containsAny(trimmed, codeVerbs) &&
		(containsAny(trimmed, codeNouns) || markers > 0)

	if !hasCode {
		if containsAny(trimmed, questionWords) || strings.Contains(trimmed, "?") {
			return types.LevelSimple
		}
		if containsAny(trimmed, greetings) || len(trimmed) < 30 {
			return types.LevelChat
		}
		return types.LevelSimple
	}

	if markers >= 2 || len(trimmed) > longTaskChars {
		return types.LevelCodeComplex
	}
	return types.LevelCodeSimple
}

// ClassifyForMode applies the driver override: delegation-class drivers
// force the top level, everything else falls back to text heuristics.
func ClassifyForMode(text, mode string) types.TaskLevel {
	switch mode {
	case "delegate", "quantum", "multi", "chunked", "agent", "multistep":
		return types.LevelDelegation
	default:
		return Classify(text)
	}
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func countHits(text string, words []string) int {
	hits := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			hits++
		}
	}
	return hits
}
