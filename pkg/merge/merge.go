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

// Package merge combines the outputs of parallel quantum/multi sessions.
// Template-guided marker merge first, declaration-level dedupe second,
// raw concatenation as the floor.
package merge

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/teradata-labs/weft/pkg/validate"
)

// Merge strategies, in fallback order.
const (
	StrategyTemplateGuided = "template_guided"
	StrategyDeclarations   = "declarations"
	StrategyRawConcat      = "raw_concat"
)

// minCoverage is the fraction of template markers a template-guided
// merge must cover to be accepted.
const minCoverage = 0.6

// Result is the outcome of a merge.
type Result struct {
	Output   string
	Strategy string

	// Conflicts lists the markers both sides supplied; the higher
	// quality block won each.
	Conflicts []string

	// Coverage is covered markers over total markers, template merges
	// only.
	Coverage float64
}

// Merge combines two parallel responses. With a template it tries the
// marker-guided merge and accepts it at >=60% coverage with balanced
// braces; otherwise it falls back to declaration-level dedupe, and to raw
// concatenation when even that collapses.
func Merge(template, a, b string) *Result {
	if template != "" {
		if result := templateGuided(template, a, b); result != nil {
			return result
		}
	}
	if result := declarations(a, b); result != nil {
		return result
	}
	return &Result{
		Output:   a + "\n\n" + b,
		Strategy: StrategyRawConcat,
	}
}

// templateGuided extracts marker-keyed blocks from each side, resolves
// per-marker collisions by quality score, and orders the merged blocks by
// the template's marker order. Returns nil when coverage or braces fail.
func templateGuided(template, a, b string) *Result {
	markers := validate.Markers(template)
	if len(markers) == 0 {
		return nil
	}

	blocksA := ExtractBlocks(a, markers)
	blocksB := ExtractBlocks(b, markers)

	var out []string
	var conflicts []string
	covered := 0
	for _, marker := range markers {
		blockA, okA := blocksA[marker]
		blockB, okB := blocksB[marker]
		switch {
		case okA && okB:
			conflicts = append(conflicts, marker)
			if QualityScore(blockB) > QualityScore(blockA) {
				out = append(out, blockB)
			} else {
				out = append(out, blockA)
			}
			covered++
		case okA:
			out = append(out, blockA)
			covered++
		case okB:
			out = append(out, blockB)
			covered++
		}
	}

	coverage := float64(covered) / float64(len(markers))
	merged := strings.Join(out, "\n\n")
	if covered < int(math.Ceil(minCoverage*float64(len(markers)))) || !validate.BracesBalanced(merged) {
		return nil
	}

	return &Result{
		Output:    merged,
		Strategy:  StrategyTemplateGuided,
		Conflicts: conflicts,
		Coverage:  coverage,
	}
}

// ExtractBlocks pulls the marker-keyed blocks out of a response: each
// block starts at the line carrying the marker (or defining its symbol)
// and extends until its braces balance back out, or to the next marker.
func ExtractBlocks(response string, markers []string) map[string]string {
	lines := strings.Split(response, "\n")
	starts := make(map[string]int, len(markers))

	for _, marker := range markers {
		symbol := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(marker, "TODO_"), "_", ""))
		// Whole-word match on the flattened line, so marker C never
		// latches onto the c in "function".
		symbolWord := regexp.MustCompile(`\b` + regexp.QuoteMeta(symbol) + `\b`)
		for i, line := range lines {
			if strings.Contains(line, marker) {
				starts[marker] = i
				break
			}
			flat := strings.ToLower(strings.ReplaceAll(line, "_", ""))
			if symbolWord.MatchString(flat) && isDefinition(line) {
				starts[marker] = i
				break
			}
		}
	}

	blocks := make(map[string]string, len(starts))
	for marker, start := range starts {
		blocks[marker] = captureBlock(lines, start, nextStart(starts, start))
	}
	return blocks
}

func isDefinition(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range []string{"function ", "const ", "let ", "var ", "class ", "def ", "async function "} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// nextStart returns the smallest start index greater than from, or -1.
func nextStart(starts map[string]int, from int) int {
	next := -1
	for _, s := range starts {
		if s > from && (next == -1 || s < next) {
			next = s
		}
	}
	return next
}

// captureBlock takes lines from start until the braces opened since the
// start line close again. Marker-comment starts with no braces extend to
// the end of the following definition block.
func captureBlock(lines []string, start, limit int) string {
	end := len(lines)
	if limit >= 0 && limit < end {
		end = limit
	}

	depth := 0
	opened := false
	last := start
	for i := start; i < end; i++ {
		depth += strings.Count(lines[i], "{") - strings.Count(lines[i], "}")
		if strings.Contains(lines[i], "{") {
			opened = true
		}
		last = i
		if opened && depth <= 0 {
			break
		}
	}
	return strings.TrimRight(strings.Join(lines[start:last+1], "\n"), "\n")
}

// QualityScore rates a code block: function-bodyness, control flow,
// error handling and validation raise it; very long single lines drag it
// down.
func QualityScore(block string) float64 {
	score := 0.0

	if strings.Contains(block, "function ") || strings.Contains(block, "=>") {
		score += 2
	}
	if strings.Contains(block, "{") && strings.Contains(block, "}") {
		score += 1
	}
	for _, kw := range []string{"if ", "if(", "for ", "for(", "while ", "while(", "switch"} {
		if strings.Contains(block, kw) {
			score += 1.5
			break
		}
	}
	for _, kw := range []string{"try", "catch", "throw", "err"} {
		if strings.Contains(block, kw) {
			score += 1.5
			break
		}
	}
	for _, kw := range []string{"=== undefined", "!== undefined", "== null", "!= null", "isNaN", "typeof", "Array.isArray"} {
		if strings.Contains(block, kw) {
			score += 1
			break
		}
	}

	for _, line := range strings.Split(block, "\n") {
		if len(line) > 300 {
			score -= 2
		}
	}

	// Normalize lightly by substance so empty stubs lose ties.
	score += math.Min(float64(len(strings.TrimSpace(block)))/500.0, 1.0)
	return score
}

var declPattern = regexp.MustCompile(`(?m)^\s*(?:(const|let|var)\s+(\w+)|(class)\s+(\w+)|(?:async\s+)?(function)\s+(\w+))`)

type declaration struct {
	kind string // var | class | function
	name string
	text string
}

// declarations merges by deduplicating top-level declarations on name,
// emitting variables first, then classes, then functions. On a duplicate
// name the higher quality variant wins, same scorer as the template
// path. Returns nil when neither side declares anything.
func declarations(a, b string) *Result {
	decls := extractDeclarations(a)
	decls = append(decls, extractDeclarations(b)...)
	if len(decls) == 0 {
		return nil
	}

	byName := make(map[string]declaration)
	var order []string
	for _, d := range decls {
		prev, ok := byName[d.name]
		if !ok {
			byName[d.name] = d
			order = append(order, d.name)
			continue
		}
		if QualityScore(d.text) > QualityScore(prev.text) {
			byName[d.name] = d
		}
	}

	groups := map[string][]string{"var": nil, "class": nil, "function": nil}
	for _, name := range order {
		d := byName[name]
		groups[d.kind] = append(groups[d.kind], d.text)
	}

	var out []string
	for _, kind := range []string{"var", "class", "function"} {
		out = append(out, groups[kind]...)
	}
	return &Result{
		Output:   strings.Join(out, "\n\n"),
		Strategy: StrategyDeclarations,
	}
}

func extractDeclarations(code string) []declaration {
	lines := strings.Split(code, "\n")
	var out []declaration

	for i := 0; i < len(lines); i++ {
		m := declPattern.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		var kind, name string
		switch {
		case m[2] != "":
			kind, name = "var", m[2]
		case m[4] != "":
			kind, name = "class", m[4]
		default:
			kind, name = "function", m[6]
		}

		text := captureDeclaration(lines, i)
		out = append(out, declaration{kind: kind, name: name, text: text})
		i += strings.Count(text, "\n")
	}
	return out
}

// captureDeclaration takes a single statement (up to the terminating
// semicolon) or a full braced body, whichever the declaration opens.
func captureDeclaration(lines []string, start int) string {
	if !strings.Contains(lines[start], "{") {
		end := start
		for end < len(lines) && !strings.HasSuffix(strings.TrimSpace(lines[end]), ";") {
			if strings.Contains(lines[end], "{") {
				return captureBlock(lines, start, -1)
			}
			end++
		}
		if end >= len(lines) {
			end = len(lines) - 1
		}
		return strings.Join(lines[start:end+1], "\n")
	}
	return captureBlock(lines, start, -1)
}

// Describe renders a short human summary of the merge for traces.
func (r *Result) Describe() string {
	return fmt.Sprintf("strategy=%s coverage=%.0f%% conflicts=%d",
		r.Strategy, r.Coverage*100, len(r.Conflicts))
}
