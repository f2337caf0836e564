// Copyright 2026 The Weaved Authors
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

// Package config loads server configuration: built-in defaults, an
// optional TOML file, and environment variables, merged in ascending
// priority via viper. Watch reports changes to a file; it reloads
// nothing itself.
package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the fully-resolved, typed server configuration.
type Config struct {
	DataDir string `mapstructure:"data_dir"`

	HTTP  HTTPConfig  `mapstructure:"http"`
	Auth  AuthConfig  `mapstructure:"auth"`
	OTLP  OTLPConfig  `mapstructure:"otlp"`
	Eval  EvalConfig  `mapstructure:"eval"`
	Embed EmbedConfig `mapstructure:"embed"`

	Env      string `mapstructure:"env"`       // dev|staging|prod|test
	LogLevel string `mapstructure:"log_level"` // debug|info|warn|error

	MetricsAddr string `mapstructure:"metrics_addr"`

	Providers ProviderKeys `mapstructure:"providers"`
}

type HTTPConfig struct {
	Addr                  string `mapstructure:"addr"`
	MaxConnections        int    `mapstructure:"max_connections"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	EnableCORS            bool   `mapstructure:"enable_cors"`
	EnableCompression     bool   `mapstructure:"enable_compression"`
	UseProjectStorage     bool   `mapstructure:"use_project_storage"`
}

type AuthConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	JWTSecret string   `mapstructure:"jwt_secret"`
	APIKeys   []string `mapstructure:"api_keys"`
}

type OTLPConfig struct {
	GRPCAddr string `mapstructure:"grpc_addr"`
}

type EvalConfig struct {
	WorkerConcurrency int `mapstructure:"worker_concurrency"`
}

type EmbedConfig struct {
	Workers int `mapstructure:"workers"`
}

// ProviderKeys holds embedding/judge model API keys, populated from
// env vars only — never from the TOML file, to keep secrets out of
// version-controlled config.
type ProviderKeys struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	DeepseekAPIKey  string
	OllamaBaseURL   string
}

// Load resolves configuration in ascending priority: built-in
// defaults -> TOML file (optional, path from WEAVED_CONFIG) ->
// environment variables.
func Load() (*Config, error) {
	setDefaults()

	if cfgFile := os.Getenv("WEAVED_CONFIG"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", cfgFile, err)
		}
	}

	viper.SetEnvPrefix("WEAVED")
	viper.AutomaticEnv()
	viper.BindEnv("auth.enabled", "AUTH_ENABLED")
	viper.BindEnv("auth.jwt_secret", "JWT_SECRET")
	viper.BindEnv("auth.api_keys", "API_KEYS")
	viper.BindEnv("http.max_connections", "MAX_CONNECTIONS")
	viper.BindEnv("http.request_timeout_seconds", "REQUEST_TIMEOUT")
	viper.BindEnv("http.enable_cors", "ENABLE_CORS")
	viper.BindEnv("http.enable_compression", "ENABLE_COMPRESSION")
	viper.BindEnv("http.use_project_storage", "USE_PROJECT_STORAGE")
	viper.BindEnv("otlp.grpc_addr", "OTLP_GRPC_ADDR")
	viper.BindEnv("metrics_addr", "METRICS_ADDR")
	viper.BindEnv("eval.worker_concurrency", "EVAL_WORKER_CONCURRENCY")
	viper.BindEnv("embed.workers", "EMBEDDER_WORKERS")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.Providers = ProviderKeys{
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		DeepseekAPIKey:  os.Getenv("DEEPSEEK_API_KEY"),
		OllamaBaseURL:   os.Getenv("OLLAMA_BASE_URL"),
	}

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("data_dir", "./data")
	viper.SetDefault("env", "dev")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("metrics_addr", ":9090")

	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("http.max_connections", 1000)
	viper.SetDefault("http.request_timeout_seconds", 30)
	viper.SetDefault("http.enable_cors", true)
	viper.SetDefault("http.enable_compression", true)
	viper.SetDefault("http.use_project_storage", true)

	viper.SetDefault("auth.enabled", false)

	viper.SetDefault("otlp.grpc_addr", ":4317")

	viper.SetDefault("eval.worker_concurrency", 8)
	viper.SetDefault("embed.workers", 4)
}

// ReloadFunc is invoked with the path that changed whenever Watch
// detects a write to a watched file.
type ReloadFunc func(path string)

// Watch observes path (typically the pricing table or sanitization
// limits file) for writes and invokes onReload, the way viper wires
// fsnotify for its own config-file watching. The returned
// *fsnotify.Watcher must be closed by the caller on shutdown.
func Watch(path string, onReload ReloadFunc) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: creating watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watching %s: %w", path, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					onReload(event.Name)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher, nil
}
