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
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// GetWeftDataDir returns the weft data directory.
//
// Priority:
// 1. WEFT_DATA_DIR environment variable (if set and non-empty)
// 2. ~/.weft (default)
//
// The returned path is always absolute. Tilde (~) in WEFT_DATA_DIR is
// expanded to the user's home directory; relative paths are converted to
// absolute paths.
//
// This function is called during bootstrap (before the config file is
// loaded) to locate the config file itself. It reads directly from
// os.Getenv, not from viper, to avoid circular dependency during config
// initialization.
func GetWeftDataDir() string {
	if dataDir := os.Getenv("WEFT_DATA_DIR"); dataDir != "" {
		return expandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir cannot be determined
		return ".weft"
	}
	return filepath.Join(homeDir, ".weft")
}

// GetWeftSubDir returns a subdirectory within the weft data directory.
// Example: GetWeftSubDir("skills") returns ~/.weft/skills
func GetWeftSubDir(subdir string) string {
	return filepath.Join(GetWeftDataDir(), subdir)
}

// SessionStorePath returns the path of the persistent session store file.
func SessionStorePath() string {
	return filepath.Join(GetWeftDataDir(), "sessions.json")
}

// GlobalMemoryPath returns the path of the cross-project memory file.
func GlobalMemoryPath() string {
	return filepath.Join(GetWeftDataDir(), "global_memory.json")
}

// ProjectMemoryPath returns the per-project memory file for a project id.
func ProjectMemoryPath(projectID string) string {
	return filepath.Join(GetWeftSubDir("projects"), projectID+".json")
}

// TraceLogDir returns the directory that holds per-run agent step traces.
func TraceLogDir() string {
	return GetWeftSubDir("traces")
}

// WasmModulePath returns the default location of the PoW solver module.
func WasmModulePath() string {
	return filepath.Join(GetWeftDataDir(), "pow_solver.wasm")
}

// expandPath expands ~ and resolves to absolute path
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
