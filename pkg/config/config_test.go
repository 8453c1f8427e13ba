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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultChunkThresholdTokens, cfg.ChunkThresholdTokens)
	assert.True(t, cfg.AutoSelectModel)
	assert.True(t, cfg.ThinkingEnabled)
	assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
}

func TestLoadFrom_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, cfg.Model)
}

func TestLoadFrom_ParsesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"model": "custom-model", "max_tokens": 1234, "pool_size": 2}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-model", cfg.Model)
	assert.Equal(t, 1234, cfg.MaxTokens)
	assert.Equal(t, 2, cfg.PoolSize)
}

func TestLoadFrom_APIKeyEnvOverride(t *testing.T) {
	t.Setenv(APIKeyEnvVar, "env-key")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.True(t, cfg.HasAPIKey())
}

func TestDecryptOrEmpty_PlaintextPassthrough(t *testing.T) {
	// Legacy plaintext values (no enc: prefix) are preserved.
	assert.Equal(t, "plain-token", decryptOrEmpty("plain-token"))
	assert.Equal(t, "", decryptOrEmpty(""))
}

func TestDecryptOrEmpty_GarbageCiphertextDropped(t *testing.T) {
	assert.Equal(t, "", decryptOrEmpty("enc:!!!not-base64!!!"))
}

func TestCredentialModeChecks(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.HasWebCredentials())
	cfg.BearerToken = "b"
	cfg.Cookies = "c"
	assert.True(t, cfg.HasWebCredentials())
}

func TestAtomicWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, atomicWriteJSON(path, map[string]int{"a": 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"a": 1`)
	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
