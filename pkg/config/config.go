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

// Package config loads and persists the weft account configuration.
// Sensitive fields are encrypted at rest (see secrets.go); everything else
// is plain JSON managed through viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the per-account configuration. Field names mirror the on-disk
// JSON keys.
type Config struct {
	// AllowedPaths whitelists filesystem roots for tool execution
	AllowedPaths []string `mapstructure:"allowed_paths" json:"allowed_paths"`

	// AllowedCommands whitelists shell commands for tool execution
	AllowedCommands []string `mapstructure:"allowed_commands" json:"allowed_commands"`

	// Model is the default direct-API chat model
	Model string `mapstructure:"model" json:"model"`

	// MaxTokens is the default output cap when no level scaling applies
	MaxTokens int `mapstructure:"max_tokens" json:"max_tokens"`

	// MemoryPath overrides the per-project memory directory
	MemoryPath string `mapstructure:"memory_path" json:"memory_path"`

	// SummaryThreshold is the exchange count after which the running
	// session summary is refreshed
	SummaryThreshold int `mapstructure:"summary_threshold" json:"summary_threshold"`

	// SkillsDir is the skill catalog directory
	SkillsDir string `mapstructure:"skills_dir" json:"skills_dir"`

	// WasmPath is the PoW solver module location
	WasmPath string `mapstructure:"wasm_path" json:"wasm_path"`

	// BearerToken authenticates the web-session transport (encrypted at rest)
	BearerToken string `mapstructure:"bearer_token" json:"bearer_token,omitempty"`

	// Cookies carries the browser-session cookie jar (encrypted at rest)
	Cookies string `mapstructure:"cookies" json:"cookies,omitempty"`

	// APIKey authenticates the direct-API transport (encrypted at rest)
	APIKey string `mapstructure:"api_key" json:"api_key,omitempty"`

	// Lang selects the controller-facing language
	Lang string `mapstructure:"lang" json:"lang,omitempty"`

	// AutoSelectModel promotes complex tasks to the reasoning model
	AutoSelectModel bool `mapstructure:"auto_select_model" json:"auto_select_model"`

	// ThinkingEnabled requests extended reasoning on the web transport
	ThinkingEnabled bool `mapstructure:"thinking_enabled" json:"thinking_enabled"`

	// PoolSize bounds concurrent transport calls
	PoolSize int `mapstructure:"pool_size" json:"pool_size"`

	// ChunkThresholdTokens switches delegate mode to chunked execution
	ChunkThresholdTokens int `mapstructure:"chunk_threshold_tokens" json:"chunk_threshold_tokens"`
}

// Default configuration values.
const (
	DefaultModel                = "deepseek-chat"
	DefaultMaxTokens            = 4096
	DefaultSummaryThreshold     = 10
	DefaultPoolSize             = 5
	DefaultChunkThresholdTokens = 30000
)

// APIKeyEnvVar overrides the stored API key when set.
const APIKeyEnvVar = "WEFT_API_KEY"

// Default returns a config with all defaults applied.
func Default() *Config {
	return &Config{
		Model:                DefaultModel,
		MaxTokens:            DefaultMaxTokens,
		SummaryThreshold:     DefaultSummaryThreshold,
		SkillsDir:            GetWeftSubDir("skills"),
		WasmPath:             WasmModulePath(),
		AutoSelectModel:      true,
		ThinkingEnabled:      true,
		PoolSize:             DefaultPoolSize,
		ChunkThresholdTokens: DefaultChunkThresholdTokens,
	}
}

// Load reads the account config file from the data directory, decrypting
// sensitive fields. A missing file yields the defaults.
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(GetWeftDataDir(), "config.json"))
}

// LoadFrom reads a config file from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) || isConfigNotFound(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	// Decrypt sensitive fields. A field that fails to decrypt is dropped
	// rather than passed through as ciphertext.
	cfg.BearerToken = decryptOrEmpty(cfg.BearerToken)
	cfg.Cookies = decryptOrEmpty(cfg.Cookies)
	cfg.APIKey = decryptOrEmpty(cfg.APIKey)

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes the config to the data directory, encrypting sensitive
// fields first. The write is atomic (temp file + rename).
func (c *Config) Save() error {
	return c.SaveTo(filepath.Join(GetWeftDataDir(), "config.json"))
}

// SaveTo writes the config to an explicit path.
func (c *Config) SaveTo(path string) error {
	onDisk := *c
	var err error
	if onDisk.BearerToken, err = encryptIfSet(c.BearerToken); err != nil {
		return err
	}
	if onDisk.Cookies, err = encryptIfSet(c.Cookies); err != nil {
		return err
	}
	if onDisk.APIKey, err = encryptIfSet(c.APIKey); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	return atomicWriteJSON(path, &onDisk)
}

// HasWebCredentials reports whether the web-session transport can run.
func (c *Config) HasWebCredentials() bool {
	return c.BearerToken != "" && c.Cookies != ""
}

// HasAPIKey reports whether the direct-API transport can run.
func (c *Config) HasAPIKey() bool {
	return c.APIKey != ""
}

func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv(APIKeyEnvVar); key != "" {
		cfg.APIKey = key
	}
}

func isConfigNotFound(err error) bool {
	_, ok := err.(viper.ConfigFileNotFoundError)
	return ok
}
