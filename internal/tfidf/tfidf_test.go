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
package tfidf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_Similarity(t *testing.T) {
	idx := New([]string{
		"jwt authentication tokens refresh login",
		"canvas rendering sprites game loop",
		"sql database queries migrations",
	})
	require.False(t, idx.Empty())

	sims := idx.Similarities("implement jwt login with refresh tokens")
	assert.Greater(t, sims[0], sims[1])
	assert.Greater(t, sims[0], sims[2])
	assert.Greater(t, sims[0], 0.0)
}

func TestIndex_EmptyQuery(t *testing.T) {
	idx := New([]string{"some document here"})
	assert.Equal(t, 0.0, idx.Similarity("", 0))
	assert.Equal(t, 0.0, idx.Similarity("x", 5))
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard("hello world", "world hello"))
	assert.Equal(t, 0.0, Jaccard("abc def", "xyz uvw"))

	mixed := Jaccard("jwt auth tokens", "jwt auth database")
	assert.Greater(t, mixed, 0.0)
	assert.Less(t, mixed, 1.0)
}

func TestNormalize_StripsAccents(t *testing.T) {
	assert.Equal(t, "funcion", Normalize("Función"))
	assert.Equal(t, "autenticacion", Normalize("autenticación"))
	assert.Equal(t, "nino", Normalize("niño"))
}

func TestTokenize_DropsShortTokens(t *testing.T) {
	toks := Tokenize("a un código de 1 test")
	assert.NotContains(t, toks, "a")
	assert.Contains(t, toks, "codigo")
	assert.Contains(t, toks, "test")
}
