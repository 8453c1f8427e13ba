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

// Package toolkit provides the built-in filesystem and shell tools the CLI
// registers with the dispatcher. Every path is checked against the
// allowed-paths whitelist and every command against the allowed-commands
// whitelist before execution.
package toolkit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/teradata-labs/weft/pkg/tools"
)

// Guard enforces the config whitelists on tool arguments.
type Guard struct {
	allowedPaths    []string
	allowedCommands map[string]bool
}

// NewGuard builds a guard. Empty allowedPaths defaults to the current
// working directory subtree; empty allowedCommands denies all commands.
func NewGuard(allowedPaths, allowedCommands []string) *Guard {
	g := &Guard{allowedCommands: make(map[string]bool)}
	for _, c := range allowedCommands {
		g.allowedCommands[c] = true
	}
	if len(allowedPaths) == 0 {
		if cwd, err := os.Getwd(); err == nil {
			allowedPaths = []string{cwd}
		}
	}
	for _, p := range allowedPaths {
		if abs, err := filepath.Abs(p); err == nil {
			g.allowedPaths = append(g.allowedPaths, abs)
		}
	}
	return g
}

// CheckPath resolves path and verifies it falls under an allowed root.
func (g *Guard) CheckPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	for _, root := range g.allowedPaths {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("path %q is outside the allowed roots", path)
}

// CheckCommand verifies the command's binary is whitelisted.
func (g *Guard) CheckCommand(command string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return fmt.Errorf("empty command")
	}
	bin := filepath.Base(fields[0])
	if !g.allowedCommands[bin] {
		return fmt.Errorf("command %q is not in the allowed list", bin)
	}
	return nil
}

// Register adds every built-in tool to the registry.
func Register(registry *tools.Registry, guard *Guard) {
	registry.Register(&readFileTool{guard})
	registry.Register(&writeFileTool{guard})
	registry.Register(&makeDirectoryTool{guard})
	registry.Register(&moveFileTool{guard})
	registry.Register(&copyFileTool{guard})
	registry.Register(&listDirectoryTool{guard})
	registry.Register(&runCommandTool{guard})
}

// stringArg pulls a required string argument.
func stringArg(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return s, nil
}

func failure(err error) (*tools.Result, error) {
	return &tools.Result{Success: false, Error: err.Error()}, nil
}
