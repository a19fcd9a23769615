// Package config loads Genesis's root configuration from YAML with
// ${ENV_VAR} expansion, grounded on pkg/config/config.go's
// Config/SetDefaults/Validate shape and pkg/config/env.go's
// regex-based env-substitution pass, trimmed to Genesis's own
// component surface.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Name   string       `yaml:"name,omitempty"`
	Server ServerConfig `yaml:"server,omitempty"`
	LLM    LLMConfig    `yaml:"llm,omitempty"`
	Vector VectorConfig `yaml:"vector,omitempty"`
	Embedder EmbedderConfig `yaml:"embedder,omitempty"`
	Precedent PrecedentConfig `yaml:"precedent,omitempty"`
	Executor  ExecutorConfig  `yaml:"executor,omitempty"`
	Checkpoint CheckpointConfig `yaml:"checkpoint,omitempty"`
	Planner   PlannerConfig   `yaml:"planner,omitempty"`
	Plugins   []PluginToolConfig `yaml:"plugins,omitempty"`
	Observability ObservabilityConfig `yaml:"observability,omitempty"`
}

// ObservabilityConfig groups the tracing and metrics sub-configs,
// mirroring the teacher's observability.Config shape at a scale that
// matches Genesis's single-tracer, three-metric surface.
type ObservabilityConfig struct {
	Tracer  TracerConfig  `yaml:"tracer,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// TracerConfig mirrors telemetry.TracerConfig so genesis.yaml can
// configure tracing without internal/config importing internal/telemetry.
type TracerConfig struct {
	Enabled      bool    `yaml:"enabled,omitempty"`
	EndpointURL  string  `yaml:"endpoint_url,omitempty"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`
	ServiceName  string  `yaml:"service_name,omitempty"`
}

// MetricsConfig mirrors telemetry.MetricsConfig.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
}

func (c *ObservabilityConfig) SetDefaults() {
	if c.Tracer.SamplingRate == 0 {
		c.Tracer.SamplingRate = 1.0
	}
	if c.Tracer.ServiceName == "" {
		c.Tracer.ServiceName = "genesis"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "genesis"
	}
}

func (c *ObservabilityConfig) Validate() error {
	if c.Tracer.Enabled && c.Tracer.EndpointURL == "" {
		return fmt.Errorf("observability: tracer.endpoint_url is required when tracer.enabled is true")
	}
	return nil
}

// ServerConfig configures the HTTP/WebSocket boundary.
type ServerConfig struct {
	Port int    `yaml:"port,omitempty"`
	Host string `yaml:"host,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Port)
	}
	return nil
}

// LLMConfig configures the structured-output provider agents call.
type LLMConfig struct {
	Provider    string        `yaml:"provider,omitempty"` // "openai" or "anthropic"
	Model       string        `yaml:"model,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty"`
	Host        string        `yaml:"host,omitempty"`
	MaxRetries  int           `yaml:"max_retries,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Temperature float64       `yaml:"temperature,omitempty"`
}

func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm: unsupported provider %q", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("llm: api_key is required")
	}
	return nil
}

// VectorConfig configures the precedent cache's vector backend.
type VectorConfig struct {
	Provider   string `yaml:"provider,omitempty"` // "chromem", "qdrant", "pinecone"
	Host       string `yaml:"host,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	Collection string `yaml:"collection,omitempty"`
}

func (c *VectorConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "chromem"
	}
}

func (c *VectorConfig) Validate() error {
	switch c.Provider {
	case "chromem", "qdrant", "pinecone":
	default:
		return fmt.Errorf("vector: unsupported provider %q", c.Provider)
	}
	if c.Provider != "chromem" && c.Host == "" {
		return fmt.Errorf("vector: host is required for provider %q", c.Provider)
	}
	return nil
}

// EmbedderConfig configures the embedding backend the precedent cache
// uses to compute similarity.
type EmbedderConfig struct {
	Provider string `yaml:"provider,omitempty"` // "openai", "ollama", "cohere"
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	Host     string `yaml:"host,omitempty"`
}

func (c *EmbedderConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
}

func (c *EmbedderConfig) Validate() error {
	switch c.Provider {
	case "openai", "ollama", "cohere":
	default:
		return fmt.Errorf("embedder: unsupported provider %q", c.Provider)
	}
	return nil
}

// PrecedentConfig configures the hybrid similarity cache's scoring.
type PrecedentConfig struct {
	Threshold     float64 `yaml:"threshold,omitempty"`
	VectorWeight  float64 `yaml:"vector_weight,omitempty"`
	LexicalWeight float64 `yaml:"lexical_weight,omitempty"`
	TopK          int     `yaml:"top_k,omitempty"`
}

func (c *PrecedentConfig) SetDefaults() {
	if c.Threshold == 0 {
		c.Threshold = 0.75
	}
	if c.VectorWeight == 0 && c.LexicalWeight == 0 {
		c.VectorWeight, c.LexicalWeight = 0.7, 0.3
	}
	if c.TopK == 0 {
		c.TopK = 10
	}
}

func (c *PrecedentConfig) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("precedent: threshold must be in [0,1], got %v", c.Threshold)
	}
	return nil
}

// ExecutorConfig configures per-tool invocation behavior.
type ExecutorConfig struct {
	StepTimeout     time.Duration `yaml:"step_timeout,omitempty"`
	MaxRetries      int           `yaml:"max_retries,omitempty"`
	WorkspaceRoot   string        `yaml:"workspace_root,omitempty"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec,omitempty"`
}

func (c *ExecutorConfig) SetDefaults() {
	if c.StepTimeout == 0 {
		c.StepTimeout = 120 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = os.TempDir()
	}
	if c.RateLimitPerSec == 0 {
		c.RateLimitPerSec = 4
	}
}

func (c *ExecutorConfig) Validate() error {
	if c.StepTimeout <= 0 {
		return fmt.Errorf("executor: step_timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("executor: max_retries must be non-negative")
	}
	return nil
}

// CheckpointConfig controls durable checkpoint writes.
type CheckpointConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

func (c *CheckpointConfig) SetDefaults() {
	if !c.Enabled {
		c.Enabled = true
	}
}

func (c *CheckpointConfig) Validate() error { return nil }

// PlannerConfig bounds path enumeration.
type PlannerConfig struct {
	MaxDepth   int `yaml:"max_depth,omitempty"`
	MaxResults int `yaml:"max_results,omitempty"`
}

func (c *PlannerConfig) SetDefaults() {
	if c.MaxDepth == 0 {
		c.MaxDepth = 4
	}
	if c.MaxResults == 0 {
		c.MaxResults = 16
	}
}

func (c *PlannerConfig) Validate() error {
	if c.MaxDepth < 1 {
		return fmt.Errorf("planner: max_depth must be at least 1")
	}
	return nil
}

// PluginParameter describes one argument a plugin tool's handler accepts,
// mirroring pathtool.Parameter so config can build registry entries
// without importing the registration package's internal shape twice.
type PluginParameter struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required,omitempty"`
}

// PluginToolConfig names a tool whose handler runs out-of-process behind
// a hashicorp/go-plugin binary instead of in-process. Registering one
// spawns BinaryPath at startup and wraps the resulting RPC client as the
// tool's handler, so the path planner treats it identically to a
// built-in tool while invocation crosses a process boundary.
type PluginToolConfig struct {
	Name       string            `yaml:"name"`
	BinaryPath string            `yaml:"binary_path"`
	InputType  string            `yaml:"input_type"`
	OutputType string            `yaml:"output_type"`
	Parameters []PluginParameter `yaml:"parameters,omitempty"`
}

func (c *PluginToolConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("plugin: name is required")
	}
	if c.BinaryPath == "" {
		return fmt.Errorf("plugin %q: binary_path is required", c.Name)
	}
	if c.InputType == "" || c.OutputType == "" {
		return fmt.Errorf("plugin %q: input_type and output_type are required", c.Name)
	}
	return nil
}

// SetDefaults fills every sub-config with its defaults.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.LLM.SetDefaults()
	c.Vector.SetDefaults()
	c.Embedder.SetDefaults()
	c.Precedent.SetDefaults()
	c.Executor.SetDefaults()
	c.Checkpoint.SetDefaults()
	c.Planner.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks every sub-config, collecting all errors rather than
// failing on the first so a misconfigured file reports everything wrong
// with it at once.
func (c *Config) Validate() error {
	var errs []string
	validators := []struct {
		name string
		fn   func() error
	}{
		{"server", c.Server.Validate},
		{"llm", c.LLM.Validate},
		{"vector", c.Vector.Validate},
		{"embedder", c.Embedder.Validate},
		{"precedent", c.Precedent.Validate},
		{"executor", c.Executor.Validate},
		{"checkpoint", c.Checkpoint.Validate},
		{"planner", c.Planner.Validate},
		{"observability", c.Observability.Validate},
	}
	for _, v := range validators {
		if err := v.fn(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", v.name, err))
		}
	}
	for i := range c.Plugins {
		if err := c.Plugins[i].Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("plugins[%d]: %v", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

var (
	envWithDefault = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`)
	envBraced      = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
)

// expandEnvVars substitutes ${VAR} and ${VAR:-default} references with
// their environment values, leaving unmatched patterns untouched.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	s = envWithDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envWithDefault.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})
	s = envBraced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envBraced.FindStringSubmatch(match)
		return os.Getenv(parts[1])
	})
	return s
}

// LoadEnvFiles loads .env.local then .env into the process environment,
// ignoring a missing file but surfacing any other read error.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("config: load %s: %w", file, err)
		}
	}
	return nil
}

// Load reads path, expands environment references, applies defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := expandEnvVars(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
