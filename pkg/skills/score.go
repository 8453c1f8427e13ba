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
	"sort"
	"strings"

	"github.com/teradata-labs/weft/internal/tfidf"
)

// Hybrid score weights.
const (
	keywordWeight = 0.6
	tfidfWeight   = 0.4
	gameBonus     = 20.0
)

// gameSkills get the fixed bonus when the task smells like a game.
var gameSkills = map[string]bool{
	"canvas-games":   true,
	"game-loop":      true,
	"sprite-physics": true,
}

var gameKeywords = []string{
	"juego", "game", "canvas", "sprite", "arcade", "snake", "tetris",
	"pong", "plataformas", "platformer", "puntuacion", "score",
}

// EffectivenessFunc returns a multiplicative boost for a skill, derived
// from the cross-project Bayesian posterior. Nil means no boost.
type EffectivenessFunc func(name string) float64

// Scored pairs a skill with its hybrid score.
type Scored struct {
	Skill *Skill
	Score float64
}

// Rank scores every skill against the task text and returns them in
// descending score order: 0.6 * normalized keyword score + 0.4 * TF-IDF
// cosine, with a +20 raw-keyword bonus for game skills on game tasks,
// all optionally boosted by learned effectiveness.
func (c *Catalog) Rank(task string, effectiveness EffectivenessFunc) []Scored {
	if len(c.skills) == 0 {
		return nil
	}

	normalized := tfidf.Normalize(task)
	isGame := containsAny(normalized, gameKeywords)

	raw := make([]float64, len(c.skills))
	maxRaw := 0.0
	for i, s := range c.skills {
		raw[i] = keywordScore(normalized, s.Keywords)
		if isGame && gameSkills[s.Name] {
			raw[i] += gameBonus
		}
		if raw[i] > maxRaw {
			maxRaw = raw[i]
		}
	}

	cosines := c.index.Similarities(task)

	out := make([]Scored, 0, len(c.skills))
	for i, s := range c.skills {
		kw := 0.0
		if maxRaw > 0 {
			kw = raw[i] / maxRaw
		}
		score := keywordWeight*kw + tfidfWeight*cosines[i]
		if effectiveness != nil {
			if boost := effectiveness(s.Name); boost > 0 {
				score *= boost
			}
		}
		out = append(out, Scored{Skill: s, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// keywordScore sums the lengths of the keywords that substring-match the
// normalized task. Longer matches are stronger evidence.
func keywordScore(normalizedTask string, keywords []string) float64 {
	score := 0.0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(normalizedTask, tfidf.Normalize(kw)) {
			score += float64(len(kw))
		}
	}
	return score
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
