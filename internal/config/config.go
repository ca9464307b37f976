// Package config handles agent and tool-server configuration loading.
//
// Configuration is read once at startup from a YAML file, overlaid with a
// small set of environment variables, validated, and then passed by pointer
// to the components that need it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order used when no
// explicit path is given: ./config.yaml, then ~/.config/mcp-agent/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mcp-agent", "config.yaml"))
	}
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise the first existing entry of DefaultSearchPaths is returned, or
// "" when there is none; a config file is optional.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Config holds all configuration for both binaries.
type Config struct {
	// Model is the Anthropic model used for orchestration and tool-side
	// completions.
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`

	// MaxRounds caps tool rounds per query.
	MaxRounds int `yaml:"max_rounds"`

	// ModelTimeout and ToolTimeout bound a single engine call and a single
	// tool call respectively.
	ModelTimeout time.Duration `yaml:"model_timeout"`
	ToolTimeout  time.Duration `yaml:"tool_timeout"`

	LogLevel string `yaml:"log_level"`

	// TranscriptPath, when set, persists user queries and final answers.
	TranscriptPath string `yaml:"transcript_path"`

	Anthropic AnthropicConfig `yaml:"anthropic"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Tools     ToolsConfig     `yaml:"tools"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ServerConfig describes the tool-server child process.
type ServerConfig struct {
	Command     string        `yaml:"command"`
	Args        []string      `yaml:"args"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// TelemetryConfig controls the JSONL event sink.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// ToolsConfig configures the tool server's backends.
type ToolsConfig struct {
	DatabasePath string `yaml:"database_path"`

	// ArtifactsDir is the root for every file the tools write.
	ArtifactsDir string `yaml:"artifacts_dir"`
	IndexFile    string `yaml:"index_file"`
	GraphFile    string `yaml:"graph_file"`

	ChunkTokens      int `yaml:"chunk_tokens"`
	IndexConcurrency int `yaml:"index_concurrency"`

	S3 S3Config `yaml:"s3"`
}

// S3Config locates the incident-file bucket. Empty keys fall back to the
// default AWS credential chain.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Model:        "claude-3-7-sonnet-latest",
		MaxTokens:    1000,
		MaxRounds:    8,
		ModelTimeout: 120 * time.Second,
		ToolTimeout:  60 * time.Second,
		LogLevel:     "info",
		Server: ServerConfig{
			Command:     "./bin/toolserver",
			StopTimeout: 5 * time.Second,
		},
		Telemetry: TelemetryConfig{Dir: ".agent"},
		Tools: ToolsConfig{
			DatabasePath:     "online_sales.db",
			ArtifactsDir:     ".agent/artifacts",
			IndexFile:        "s3_file_index.json",
			GraphFile:        "note_graph.json",
			ChunkTokens:      8000,
			IndexConcurrency: 4,
		},
	}
}

// Load reads configuration from a YAML file on top of Default. Environment
// variables referenced as ${VAR} in the file are expanded. An empty path
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays well-known environment variables. Non-empty variables
// win over file values.
func (c *Config) ApplyEnv() {
	overlay := []struct {
		key string
		dst *string
	}{
		{"ANTHROPIC_API_KEY", &c.Anthropic.APIKey},
		{"ANTHROPIC_BASE_URL", &c.Anthropic.BaseURL},
		{"AWS_REGION", &c.Tools.S3.Region},
		{"MCPA_S3_BUCKET", &c.Tools.S3.Bucket},
		{"MCPA_S3_PREFIX", &c.Tools.S3.Prefix},
	}
	for _, o := range overlay {
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model must be set"))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens))
	}
	if c.MaxRounds <= 0 {
		errs = append(errs, fmt.Errorf("max_rounds must be positive, got %d", c.MaxRounds))
	}
	if c.ModelTimeout < 0 {
		errs = append(errs, fmt.Errorf("model_timeout must not be negative, got %s", c.ModelTimeout))
	}
	if c.ToolTimeout < 0 {
		errs = append(errs, fmt.Errorf("tool_timeout must not be negative, got %s", c.ToolTimeout))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Tools.ChunkTokens <= 0 {
		errs = append(errs, fmt.Errorf("tools.chunk_tokens must be positive, got %d", c.Tools.ChunkTokens))
	}
	if c.Tools.IndexConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("tools.index_concurrency must be positive, got %d", c.Tools.IndexConcurrency))
	}
	return errors.Join(errs...)
}

// Resolve finds, loads, overlays and validates the configuration in one
// step. It is what both binaries call at startup.
func Resolve(explicit string) (*Config, string, error) {
	path, err := FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, path, nil
}
