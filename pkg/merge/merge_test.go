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
package merge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quantumTemplate = `// TODO_A
// TODO_B
// TODO_C`

func TestMerge_TemplateGuidedResolvesConflicts(t *testing.T) {
	angleA := `// TODO_A
function a() {
	if (ready) { start(); }
}

// TODO_B
function b() { stub(); }`

	angleB := `// TODO_B
function b() {
	if (!input) { throw new Error("missing input"); }
	for (const item of items) { process(item); }
}

// TODO_C
function c() {
	render();
}`

	result := Merge(quantumTemplate, angleA, angleB)
	require.Equal(t, StrategyTemplateGuided, result.Strategy)
	assert.Equal(t, []string{"TODO_B"}, result.Conflicts)
	assert.InDelta(t, 1.0, result.Coverage, 1e-9)

	// A's block, B's richer B block, B's C block, in template order.
	idxA := strings.Index(result.Output, "function a()")
	idxB := strings.Index(result.Output, "throw new Error")
	idxC := strings.Index(result.Output, "function c()")
	require.True(t, idxA >= 0 && idxB >= 0 && idxC >= 0)
	assert.Less(t, idxA, idxB)
	assert.Less(t, idxB, idxC)
	assert.NotContains(t, result.Output, "stub()")
}

func TestMerge_RejectsLowCoverage(t *testing.T) {
	// Only one of three markers present on either side: 33% < 60%.
	result := Merge(quantumTemplate, "// TODO_A\nfunction a() { go(); }", "nothing relevant")
	assert.NotEqual(t, StrategyTemplateGuided, result.Strategy)
}

func TestMerge_DeclarationDedupe(t *testing.T) {
	a := `const speed = 5;
function move() { stub(); }`
	b := `class Player {
	jump() {}
}
function move() {
	if (x > max) { return; }
	x += speed;
}`

	result := Merge("", a, b)
	require.Equal(t, StrategyDeclarations, result.Strategy)

	// Duplicates resolve to the higher quality variant, not the first seen.
	assert.Contains(t, result.Output, "x += speed;")
	assert.NotContains(t, result.Output, "stub()")
	assert.Equal(t, 1, strings.Count(result.Output, "function move()"))

	// Vars before classes before functions.
	assert.Less(t, strings.Index(result.Output, "const speed"), strings.Index(result.Output, "class Player"))
	assert.Less(t, strings.Index(result.Output, "class Player"), strings.Index(result.Output, "function move"))
}

func TestMerge_RawConcatFloor(t *testing.T) {
	result := Merge("", "texto libre", "mas texto")
	assert.Equal(t, StrategyRawConcat, result.Strategy)
	assert.Contains(t, result.Output, "texto libre")
	assert.Contains(t, result.Output, "mas texto")
}

func TestQualityScore_PrefersSubstance(t *testing.T) {
	rich := `function validate(input) {
	if (input == null) { throw new Error("bad"); }
	for (const x of input) { check(x); }
}`
	stub := `function validate(input) { stub(); }`
	assert.Greater(t, QualityScore(rich), QualityScore(stub))
}

func TestQualityScore_PenalizesMinifiedLines(t *testing.T) {
	minified := "function f(){" + strings.Repeat("a();", 100) + "}"
	clean := "function f() {\n\ta();\n}"
	assert.Greater(t, QualityScore(clean), QualityScore(minified))
}

func TestExtractBlocks_SymbolDefinitionCounts(t *testing.T) {
	markers := []string{"TODO_UPDATE_SCORE"}
	response := `function updateScore(points) {
	score += points;
}`
	blocks := ExtractBlocks(response, markers)
	require.Contains(t, blocks, "TODO_UPDATE_SCORE")
	assert.Contains(t, blocks["TODO_UPDATE_SCORE"], "score += points;")
}
