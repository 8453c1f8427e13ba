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

// Package skills loads the skill catalog and selects which skills to
// inject for a task, by hybrid keyword/TF-IDF scoring or by asking the
// backend directly (negotiation).
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/internal/tfidf"
	"go.uber.org/zap"
)

// Skill is one injectable knowledge asset.
type Skill struct {
	Name        string
	Description string
	Keywords    []string
	Content     string
}

// keywordBag is the text the TF-IDF index sees for a skill.
func (s *Skill) keywordBag() string {
	return s.Description + " " + strings.Join(s.Keywords, " ")
}

// Catalog holds all loaded skills plus the TF-IDF index over their
// keyword bags. Built once at init; rebuilt on skill-set change.
type Catalog struct {
	skills []*Skill
	byName map[string]*Skill
	index  *tfidf.Index
	logger *zap.Logger
}

// Load reads every *.md file under dir as one skill. The file starts
// with a front-matter block:
//
//	---
//	description: one line
//	keywords: comma, separated, terms
//	---
//
// followed by the full content. The skill name is the file basename.
// Files without front matter become content-only skills.
func Load(dir string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = log.Logger()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return newCatalog(nil, logger), nil
		}
		return nil, fmt.Errorf("failed to read skills dir: %w", err)
	}

	var skills []*Skill
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable skill", zap.String("path", path), zap.Error(err))
			continue
		}
		skill := parseSkill(strings.TrimSuffix(entry.Name(), ".md"), string(data))
		skills = append(skills, skill)
	}

	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return newCatalog(skills, logger), nil
}

// NewCatalog builds a catalog from in-memory skills. Tests and embedders
// use this directly.
func NewCatalog(skills []*Skill, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = log.Logger()
	}
	return newCatalog(skills, logger)
}

func newCatalog(skills []*Skill, logger *zap.Logger) *Catalog {
	byName := make(map[string]*Skill, len(skills))
	bags := make([]string, len(skills))
	for i, s := range skills {
		byName[s.Name] = s
		bags[i] = s.keywordBag()
	}
	return &Catalog{
		skills: skills,
		byName: byName,
		index:  tfidf.New(bags),
		logger: logger,
	}
}

func parseSkill(name, raw string) *Skill {
	skill := &Skill{Name: name, Content: raw}

	if !strings.HasPrefix(raw, "---\n") {
		return skill
	}
	rest := raw[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return skill
	}

	for _, line := range strings.Split(rest[:end], "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "description":
			skill.Description = value
		case "keywords":
			for _, kw := range strings.Split(value, ",") {
				if kw = strings.TrimSpace(kw); kw != "" {
					skill.Keywords = append(skill.Keywords, kw)
				}
			}
		}
	}

	body := rest[end+4:]
	skill.Content = strings.TrimLeft(body, "\n")
	return skill
}

// Get returns the named skill.
func (c *Catalog) Get(name string) (*Skill, bool) {
	s, ok := c.byName[name]
	return s, ok
}

// All returns the skills in catalogue order.
func (c *Catalog) All() []*Skill {
	return c.skills
}

// Len returns the number of loaded skills.
func (c *Catalog) Len() int { return len(c.skills) }

// CatalogueLines renders the compact "name: description" listing used by
// the negotiation protocol.
func (c *Catalog) CatalogueLines() string {
	var b strings.Builder
	for _, s := range c.skills {
		fmt.Fprintf(&b, "%s: %s\n", s.Name, s.Description)
	}
	return b.String()
}
