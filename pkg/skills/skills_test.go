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
package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/weft/pkg/types"
	"go.uber.org/zap/zaptest"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	return NewCatalog([]*Skill{
		{
			Name:        "canvas-games",
			Description: "juegos 2D con canvas",
			Keywords:    []string{"juego", "canvas", "sprite", "game loop"},
			Content:     strings.Repeat("canvas game content ", 50),
		},
		{
			Name:        "jwt-patterns",
			Description: "autenticacion con JWT",
			Keywords:    []string{"jwt", "token", "autenticacion", "login"},
			Content:     strings.Repeat("jwt auth content ", 50),
		},
		{
			Name:        "css-layout",
			Description: "layouts con flexbox y grid",
			Keywords:    []string{"css", "flexbox", "grid", "layout"},
			Content:     strings.Repeat("css layout content ", 50),
		},
	}, zaptest.NewLogger(t))
}

func TestLoad_ParsesFrontMatter(t *testing.T) {
	dir := t.TempDir()
	raw := "---\ndescription: juegos 2D\nkeywords: juego, canvas\n---\n\nEl contenido completo.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "canvas-games.md"), []byte(raw), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	catalog, err := Load(dir, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, 1, catalog.Len())

	skill, ok := catalog.Get("canvas-games")
	require.True(t, ok)
	assert.Equal(t, "juegos 2D", skill.Description)
	assert.Equal(t, []string{"juego", "canvas"}, skill.Keywords)
	assert.Equal(t, "El contenido completo.\n", skill.Content)
}

func TestLoad_MissingDirIsEmpty(t *testing.T) {
	catalog, err := Load(filepath.Join(t.TempDir(), "nope"), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 0, catalog.Len())
}

func TestRank_KeywordAndGameBonus(t *testing.T) {
	catalog := testCatalog(t)

	ranked := catalog.Rank("crea un juego de canvas con sprites", nil)
	require.NotEmpty(t, ranked)
	assert.Equal(t, "canvas-games", ranked[0].Skill.Name)

	ranked = catalog.Rank("implementa login con jwt y refresh token", nil)
	assert.Equal(t, "jwt-patterns", ranked[0].Skill.Name)
}

func TestRank_EffectivenessBoost(t *testing.T) {
	catalog := testCatalog(t)
	// Equal keyword pull, boost breaks the tie.
	boost := func(name string) float64 {
		if name == "css-layout" {
			return 5.0
		}
		return 1.0
	}
	ranked := catalog.Rank("mejora el layout css con flexbox para el panel del juego canvas", boost)
	assert.Equal(t, "css-layout", ranked[0].Skill.Name)
}

func TestTokenBudget(t *testing.T) {
	assert.Equal(t, 0, TokenBudget(types.LevelChat))
	assert.Equal(t, 0, TokenBudget(types.LevelSimple))
	assert.Equal(t, 10_000, TokenBudget(types.LevelCodeSimple))
	assert.Equal(t, 40_000, TokenBudget(types.LevelCodeComplex))
	assert.Equal(t, 80_000, TokenBudget(types.LevelDelegation))
}

func TestSelect_BudgetAndErrorsReserve(t *testing.T) {
	catalog := testCatalog(t)

	sel := catalog.Select("crea un juego de canvas", types.LevelChat, nil, false)
	assert.Empty(t, sel.Skills)

	sel = catalog.Select("crea un juego de canvas", types.LevelDelegation, nil, false)
	require.NotEmpty(t, sel.Skills)
	assert.Equal(t, "canvas-games", sel.Skills[0].Name)
	assert.Zero(t, sel.ErrorsBudget)

	sel = catalog.Select("crea un juego de canvas", types.LevelDelegation, nil, true)
	assert.Equal(t, errorsReserve, sel.ErrorsBudget)
}

func TestNegotiate_LoadsExactlyRequested(t *testing.T) {
	catalog := testCatalog(t)
	ask := func(_ context.Context, prompt string) (string, error) {
		assert.Contains(t, prompt, "canvas-games: juegos 2D con canvas")
		return "1. `jwt-patterns`\n- canvas-games\n", nil
	}

	sel := catalog.Negotiate(context.Background(), "tarea", types.LevelDelegation, ask, nil, false)
	require.Len(t, sel.Skills, 2)
	// Catalogue order, not reply order.
	assert.Equal(t, "canvas-games", sel.Skills[0].Name)
	assert.Equal(t, "jwt-patterns", sel.Skills[1].Name)
}

func TestNegotiate_NoneMeansEmpty(t *testing.T) {
	catalog := testCatalog(t)
	ask := func(context.Context, string) (string, error) { return "NONE", nil }

	sel := catalog.Negotiate(context.Background(), "hola", types.LevelDelegation, ask, nil, false)
	assert.Empty(t, sel.Skills)
}

func TestNegotiate_FallsBackOnError(t *testing.T) {
	catalog := testCatalog(t)
	ask := func(context.Context, string) (string, error) { return "", fmt.Errorf("timeout") }

	sel := catalog.Negotiate(context.Background(), "crea un juego de canvas", types.LevelDelegation, ask, nil, false)
	require.NotEmpty(t, sel.Skills)
	assert.Equal(t, "canvas-games", sel.Skills[0].Name)
}

func TestNegotiate_FallsBackOnGarbage(t *testing.T) {
	catalog := testCatalog(t)
	ask := func(context.Context, string) (string, error) {
		return "No puedo ayudarte con eso ahora mismo, 12345 %%%", nil
	}

	sel := catalog.Negotiate(context.Background(), "login con jwt", types.LevelDelegation, ask, nil, false)
	require.NotEmpty(t, sel.Skills)
	assert.Equal(t, "jwt-patterns", sel.Skills[0].Name)
}
