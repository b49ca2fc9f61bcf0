// Package config loads tern configuration from a YAML file with environment
// overrides. Durations are written as Go duration strings ("2s", "10m").
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tern configuration.
type Config struct {
	// Model configuration for the Gemini provider.
	Model ModelConfig `yaml:"model"`

	// Upload activation polling policy.
	Upload UploadConfig `yaml:"upload"`

	// Declared callable tools (user-declared; platform tools are registered
	// in code and win name collisions).
	Tools []ToolConfig `yaml:"tools"`

	// Incognito withholds memory-mutating behavior: no memory block is
	// injected and directives in model output are discarded.
	Incognito bool `yaml:"incognito"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ModelConfig configures the completion requests sent to the provider.
type ModelConfig struct {
	Name              string  `yaml:"name"`
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Timeout           string  `yaml:"timeout"`
	SystemInstruction string  `yaml:"system_instruction"`
	Temperature       float64 `yaml:"temperature"`
	TopP              float64 `yaml:"top_p"`
	TopK              int     `yaml:"top_k"`
	MaxOutputTokens   int     `yaml:"max_output_tokens"`
	ThinkingBudget    int     `yaml:"thinking_budget"`

	// EnableSearch turns on the provider's built-in web search tool.
	// Mutually exclusive with declared tools; declared tools win.
	EnableSearch bool `yaml:"enable_search"`

	// SafetyThresholds, e.g. {category: HARM_CATEGORY_HARASSMENT,
	// threshold: BLOCK_MEDIUM_AND_ABOVE}.
	SafetyThresholds []SafetyThreshold `yaml:"safety_thresholds"`
}

// SafetyThreshold is one provider safety setting.
type SafetyThreshold struct {
	Category  string `yaml:"category"`
	Threshold string `yaml:"threshold"`
}

// UploadConfig configures attachment activation polling.
type UploadConfig struct {
	PollInterval    string `yaml:"poll_interval"`
	MaxPollAttempts int    `yaml:"max_poll_attempts"`
}

// ToolConfig declares a callable tool.
type ToolConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Parameters  map[string]any `yaml:"parameters"`
	Endpoint    string         `yaml:"endpoint"`
	Method      string         `yaml:"method"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Name:            "gemini-2.5-flash",
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			Timeout:         "10m",
			Temperature:     1.0,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: 8192,
		},
		Upload: UploadConfig{
			PollInterval:    "2s",
			MaxPollAttempts: 15,
		},
	}
}

// Load reads the config file at path, applies defaults and environment
// overrides. A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets the environment win over the file for credentials.
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.Model.APIKey = key
	} else if key := os.Getenv("GOOGLE_API_KEY"); key != "" && cfg.Model.APIKey == "" {
		cfg.Model.APIKey = key
	}
	if model := os.Getenv("TERN_MODEL"); model != "" {
		cfg.Model.Name = model
	}
}

// Validate checks fields that would otherwise fail deep inside a turn.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Model.Name) == "" {
		return fmt.Errorf("model.name is required")
	}
	if _, err := c.ModelTimeout(); err != nil {
		return fmt.Errorf("model.timeout: %w", err)
	}
	if _, err := c.UploadPollInterval(); err != nil {
		return fmt.Errorf("upload.poll_interval: %w", err)
	}
	if c.Upload.MaxPollAttempts < 0 {
		return fmt.Errorf("upload.max_poll_attempts must be >= 0")
	}
	seen := make(map[string]bool, len(c.Tools))
	for _, t := range c.Tools {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return fmt.Errorf("tool with empty name")
		}
		if seen[name] {
			return fmt.Errorf("duplicate tool name: %s", name)
		}
		seen[name] = true
	}
	return nil
}

// ModelTimeout parses the model request timeout.
func (c *Config) ModelTimeout() (time.Duration, error) {
	return parseDuration(c.Model.Timeout, 10*time.Minute)
}

// UploadPollInterval parses the activation poll interval.
func (c *Config) UploadPollInterval() (time.Duration, error) {
	return parseDuration(c.Upload.PollInterval, 2*time.Second)
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}
