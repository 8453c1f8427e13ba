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
package toolkit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/weft/pkg/tools"
)

func TestGuardRejectsOutsidePaths(t *testing.T) {
	root := t.TempDir()
	guard := NewGuard([]string{root}, nil)

	_, err := guard.CheckPath(filepath.Join(root, "a.txt"))
	assert.NoError(t, err)

	_, err = guard.CheckPath("/etc/passwd")
	assert.Error(t, err)

	// A sibling directory sharing the root as a name prefix is outside.
	_, err = guard.CheckPath(root + "-sibling/a.txt")
	assert.Error(t, err)
}

func TestGuardCommandWhitelist(t *testing.T) {
	guard := NewGuard(nil, []string{"echo"})
	assert.NoError(t, guard.CheckCommand("echo hola"))
	assert.Error(t, guard.CheckCommand("rm -rf /"))
	assert.Error(t, guard.CheckCommand(""))
}

func TestWriteReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	guard := NewGuard([]string{root}, nil)
	registry := tools.NewRegistry()
	Register(registry, guard)

	write, ok := registry.Get("write_file")
	require.True(t, ok)
	res, err := write.Execute(context.Background(), map[string]interface{}{
		"path":    filepath.Join(root, "sub", "out.txt"),
		"content": "contenido",
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)

	read, ok := registry.Get("read_file")
	require.True(t, ok)
	res, err = read.Execute(context.Background(), map[string]interface{}{
		"path": filepath.Join(root, "sub", "out.txt"),
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "contenido", res.Output)
}

func TestWriteOutsideRootFails(t *testing.T) {
	guard := NewGuard([]string{t.TempDir()}, nil)
	registry := tools.NewRegistry()
	Register(registry, guard)

	write, _ := registry.Get("write_file")
	res, err := write.Execute(context.Background(), map[string]interface{}{
		"path":    "/tmp/fuera.txt",
		"content": "x",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "outside the allowed roots")
}

func TestRunCommandDeniedWithoutWhitelist(t *testing.T) {
	guard := NewGuard(nil, nil)
	registry := tools.NewRegistry()
	Register(registry, guard)

	run, _ := registry.Get("run_command")
	res, err := run.Execute(context.Background(), map[string]interface{}{
		"command": "echo hola",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestRegisterExposesWriteClassTools(t *testing.T) {
	registry := tools.NewRegistry()
	Register(registry, NewGuard(nil, nil))
	for name := range tools.WriteClassTools {
		_, ok := registry.Get(name)
		assert.True(t, ok, name)
	}
}
