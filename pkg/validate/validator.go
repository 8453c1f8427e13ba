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

// Package validate checks generated responses for truncation, marker
// coverage and category-specific style breaches. Validation failure is
// data, not an error: results feed the retry loops as corrective
// feedback.
package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// Result is the outcome of validating one response against an optional
// template.
type Result struct {
	Valid     bool           `json:"valid"`
	Truncated bool           `json:"truncated"`
	Issues    []string       `json:"issues"`
	TodosFound   []string    `json:"todos_found"`
	TodosMissing []string    `json:"todos_missing"`
	Stats     map[string]int `json:"stats"`

	// Feedback is the corrective instruction for the retry prompt;
	// empty when valid.
	Feedback string `json:"feedback"`
}

// Options tune category-specific hooks.
type Options struct {
	// Template supplies the TODO_* markers that must be covered.
	Template string

	// CanvasRules enables the Canvas-specific hook set.
	CanvasRules bool

	// LetOnlyProject flags excessive const use as a breach.
	LetOnlyProject bool
}

// markerPattern finds TODO_* markers in templates and responses.
var markerPattern = regexp.MustCompile(`\bTODO_[A-Z0-9_]+\b`)

// unclosedFunctionHeader spots a function signature cut off before its
// body in the tail of a truncated generation.
var unclosedFunctionHeader = regexp.MustCompile(`(?:function\s+\w+\s*\([^)]*$|\w+\s*\([^)]*\)\s*\{\s*$)`)

// Check validates a response.
func Check(response string, opts Options) *Result {
	result := &Result{Valid: true, Stats: map[string]int{}}

	checkTruncation(response, result)
	if opts.Template != "" {
		checkMarkers(response, opts.Template, result)
	}
	if opts.CanvasRules {
		checkCanvas(response, opts.LetOnlyProject, result)
	}

	result.Stats["chars"] = len(response)
	result.Stats["lines"] = strings.Count(response, "\n") + 1

	if len(result.Issues) > 0 {
		result.Valid = false
		result.Feedback = buildFeedback(result)
	}
	return result
}

// lineCloser holds the characters a complete last line may end with.
const lineCloser = `;})]"'` + "`"

func checkTruncation(response string, result *Result) {
	trimmed := strings.TrimRight(response, " \t\n")
	if trimmed == "" {
		return
	}

	opens := strings.Count(response, "{") - strings.Count(response, "}")
	parens := strings.Count(response, "(") - strings.Count(response, ")")
	result.Stats["unclosed_braces"] = opens
	result.Stats["unclosed_parens"] = parens

	lastLine := trimmed
	if i := strings.LastIndexByte(trimmed, '\n'); i >= 0 {
		lastLine = strings.TrimSpace(trimmed[i+1:])
	}

	// Each sign flags truncation on its own.
	truncated := false
	if lastLine != "" && !strings.ContainsRune(lineCloser, rune(lastLine[len(lastLine)-1])) {
		// Prose endings (period) are fine; code endings are not.
		if !strings.HasSuffix(lastLine, ".") && !strings.HasSuffix(lastLine, "```") {
			truncated = true
		}
	}
	if opens > 2 || parens > 2 {
		truncated = true
	}

	tail := trimmed
	if len(tail) > 200 {
		tail = tail[len(tail)-200:]
	}
	if unclosedFunctionHeader.MatchString(tail) {
		truncated = true
	}

	if truncated {
		result.Truncated = true
		result.Issues = append(result.Issues, "truncation: la respuesta parece cortada")
	}
}

func checkMarkers(response, template string, result *Result) {
	markers := uniqueMarkers(template)
	if len(markers) == 0 {
		return
	}

	for _, marker := range markers {
		symbol := strings.TrimPrefix(marker, "TODO_")
		// Covered when the marker itself or its symbol shows up as a
		// definition in the response.
		if strings.Contains(response, marker) || definesSymbol(response, symbol) {
			result.TodosFound = append(result.TodosFound, marker)
		} else {
			result.TodosMissing = append(result.TodosMissing, marker)
		}
	}
	result.Stats["markers_total"] = len(markers)
	result.Stats["markers_found"] = len(result.TodosFound)

	if len(result.TodosMissing) > 0 {
		result.Issues = append(result.Issues,
			fmt.Sprintf("missing_markers: faltan %d de %d marcadores (%s)",
				len(result.TodosMissing), len(markers), strings.Join(result.TodosMissing, ", ")))
	}
}

// definesSymbol reports whether the response defines a symbol matching
// the marker name (case-insensitive, underscores flattened).
func definesSymbol(response, symbol string) bool {
	flat := strings.ToLower(strings.ReplaceAll(symbol, "_", ""))
	word := regexp.MustCompile(`\b` + regexp.QuoteMeta(flat) + `\b`)
	for _, line := range strings.Split(response, "\n") {
		lower := strings.ToLower(strings.ReplaceAll(line, "_", ""))
		if !word.MatchString(lower) {
			continue
		}
		if strings.Contains(lower, "function") || strings.Contains(lower, "const") ||
			strings.Contains(lower, "let") || strings.Contains(lower, "class") ||
			strings.Contains(lower, "def ") {
			return true
		}
	}
	return false
}

func checkCanvas(response string, letOnly bool, result *Result) {
	saves := strings.Count(response, "ctx.save()")
	restores := strings.Count(response, "ctx.restore()")
	if saves != restores {
		result.Issues = append(result.Issues,
			fmt.Sprintf("save_restore: %d ctx.save() vs %d ctx.restore()", saves, restores))
	}

	if strings.Contains(response, "innerHTML") {
		result.Issues = append(result.Issues, "innerHTML: token prohibido en este proyecto")
	}

	if letOnly {
		consts := strings.Count(response, "const ")
		lets := strings.Count(response, "let ")
		if consts > lets && consts > 3 {
			result.Issues = append(result.Issues,
				fmt.Sprintf("const_in_let_project: %d const en un proyecto solo-let", consts))
		}
	}
}

// BracesBalanced reports whether braces balance; exposed for the merge
// engine's acceptance check.
func BracesBalanced(text string) bool {
	return strings.Count(text, "{") == strings.Count(text, "}")
}

// Markers returns the unique TODO_* markers of a template, in order of
// first appearance.
func Markers(template string) []string {
	return uniqueMarkers(template)
}

func uniqueMarkers(template string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range markerPattern.FindAllString(template, -1) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func buildFeedback(result *Result) string {
	var b strings.Builder
	b.WriteString("La respuesta anterior tiene problemas. Corrige y reenvia:\n")
	for _, issue := range result.Issues {
		b.WriteString("- " + issue + "\n")
	}
	if result.Truncated {
		b.WriteString("Continua exactamente donde quedaste sin repetir codigo previo.\n")
	}
	return strings.TrimSpace(b.String())
}
