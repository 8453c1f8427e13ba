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
package trace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRunFlushesEveryStep(t *testing.T) {
	dir := t.TempDir()
	run := NewRun(dir, "delegate", "implementa el login", zaptest.NewLogger(t))
	require.NotEmpty(t, run.Path())

	run.Record("send", "phase 1", 120*time.Millisecond)
	run.Record("tool", "read_file main.js", 30*time.Millisecond)

	data, err := os.ReadFile(run.Path())
	require.NoError(t, err)
	var onDisk Run
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Len(t, onDisk.Steps, 2)
	assert.Equal(t, 1, onDisk.Steps[0].Seq)
	assert.Equal(t, "tool", onDisk.Steps[1].Kind)
	assert.Nil(t, onDisk.Success, "unfinished run has no verdict")

	run.Finish(true)
	data, err = os.ReadFile(run.Path())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &onDisk))
	require.NotNil(t, onDisk.Success)
	assert.True(t, *onDisk.Success)
	assert.False(t, onDisk.EndedAt.IsZero())
}

func TestRunMemoryOnlyWithoutDir(t *testing.T) {
	run := NewRun("", "agent", "tarea", zaptest.NewLogger(t))
	assert.Empty(t, run.Path())
	run.Record("note", "no disk", 0)
	run.Finish(false)
	assert.Len(t, run.Steps, 1)
}

func TestAuditStoreRoundTrip(t *testing.T) {
	store, err := OpenAudit(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.RecordDelegation("run-1", "delegate", "tarea a", "code_simple", true, false, 2*time.Second))
	require.NoError(t, store.RecordDelegation("run-2", "delegate", "tarea b", "code_complex", false, true, 4*time.Second))
	require.NoError(t, store.RecordDelegation("run-3", "quantum", "tarea c", "code_complex", true, false, 3*time.Second))
	require.NoError(t, store.RecordToolExecution("run-1", "read_file", true, 50*time.Millisecond))

	summaries, err := store.SummarizeByMode()
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "delegate", summaries[0].Mode)
	assert.Equal(t, 2, summaries[0].Total)
	assert.Equal(t, 1, summaries[0].Successes)
	assert.Equal(t, "quantum", summaries[1].Mode)
	assert.Equal(t, 1, summaries[1].Total)
}
