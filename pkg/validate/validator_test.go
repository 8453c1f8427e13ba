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
package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completeCode = `function updateScore(points) {
	score += points;
	render();
}
`

func TestCheck_CompleteCodePasses(t *testing.T) {
	result := Check(completeCode, Options{})
	assert.True(t, result.Valid)
	assert.False(t, result.Truncated)
	assert.Empty(t, result.Feedback)
}

func TestCheck_TruncatedPrefixDetected(t *testing.T) {
	truncated := `function updateScore(points) {
	score += points;
	if (score > highScore) {
		highScore = score;
		const label = document.querySelector(`

	result := Check(truncated, Options{})
	assert.True(t, result.Truncated)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Feedback, "Continua exactamente donde quedaste")
}

func TestCheck_SuspiciousEndingAloneIsTruncation(t *testing.T) {
	// Balanced braces and parens, but the last line is cut mid-expression.
	result := Check("let total = base +", Options{})
	assert.True(t, result.Truncated)
	assert.False(t, result.Valid)
}

func TestCheck_OpenFunctionHeaderAloneIsTruncation(t *testing.T) {
	result := Check("function setup(canvas) {", Options{})
	assert.True(t, result.Truncated)
}

func TestCheck_BalancedBracesNotTruncated(t *testing.T) {
	assert.True(t, BracesBalanced(completeCode))
	assert.False(t, BracesBalanced("function a() {"))
}

func TestCheck_MarkerCoverage(t *testing.T) {
	template := `// TODO_INIT
// TODO_UPDATE
// TODO_RENDER`
	response := `function init() { setup(); }
const update = (dt) => { move(dt); }
`

	result := Check(response, Options{Template: template})
	assert.ElementsMatch(t, []string{"TODO_INIT", "TODO_UPDATE"}, result.TodosFound)
	assert.Equal(t, []string{"TODO_RENDER"}, result.TodosMissing)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Feedback, "missing_markers")
}

func TestCheck_CanvasHooks(t *testing.T) {
	response := `ctx.save();
ctx.translate(x, y);
draw();
element.innerHTML = markup;
`
	result := Check(response, Options{CanvasRules: true})
	require.False(t, result.Valid)

	joined := strings.Join(result.Issues, "\n")
	assert.Contains(t, joined, "save_restore: 1 ctx.save() vs 0 ctx.restore()")
	assert.Contains(t, joined, "innerHTML")
}

func TestCheck_ConstInLetProject(t *testing.T) {
	response := `const a = 1;
const b = 2;
const c = 3;
const d = 4;
let e = 5;
`
	result := Check(response, Options{CanvasRules: true, LetOnlyProject: true})
	assert.Contains(t, strings.Join(result.Issues, "\n"), "const_in_let_project")
}

func TestMarkers_OrderAndUniqueness(t *testing.T) {
	template := "TODO_B then TODO_A then TODO_B again"
	assert.Equal(t, []string{"TODO_B", "TODO_A"}, Markers(template))
}
