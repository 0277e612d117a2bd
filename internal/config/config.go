// Package config provides configuration loading and validation for the research agent.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/candidate-research/internal/llm"
	"github.com/jonathan/candidate-research/internal/pipeline/steps"
	"github.com/jonathan/candidate-research/internal/research"
	"github.com/jonathan/candidate-research/internal/synthesis"
	"github.com/jonathan/candidate-research/internal/types"
)

// Environment variables read by ApplyEnv
const (
	EnvAPIKey = "GEMINI_API_KEY"
	EnvPort   = "RESEARCH_PORT"
)

// Config is the agent configuration, loadable from JSON or YAML.
// All fields are optional; missing values come from Default.
type Config struct {
	// Server
	Port                     int    `json:"port,omitempty" yaml:"port,omitempty"`
	CORSOrigin               string `json:"cors_origin,omitempty" yaml:"cors_origin,omitempty"`
	RateLimitPerMinute       int    `json:"rate_limit_per_minute,omitempty" yaml:"rate_limit_per_minute,omitempty"`
	SubmitRateLimitPerMinute int    `json:"submit_rate_limit_per_minute,omitempty" yaml:"submit_rate_limit_per_minute,omitempty"`

	// Pipeline
	Stages        []steps.Stage `json:"stages,omitempty" yaml:"stages,omitempty"`
	StageDelay    string        `json:"stage_delay,omitempty" yaml:"stage_delay,omitempty"`       // Go duration, e.g. "2s"
	StageEstimate string        `json:"stage_estimate,omitempty" yaml:"stage_estimate,omitempty"` // Advisory ETA per stage
	StageTimeout  string        `json:"stage_timeout,omitempty" yaml:"stage_timeout,omitempty"`   // Empty disables the deadline
	SubmitPolicy  string        `json:"submit_policy,omitempty" yaml:"submit_policy,omitempty"`   // replace or reject

	// Intake
	MaxAttachmentBytes int      `json:"max_attachment_bytes,omitempty" yaml:"max_attachment_bytes,omitempty"`
	AcceptedMimeTypes  []string `json:"accepted_mime_types,omitempty" yaml:"accepted_mime_types,omitempty"`

	// Synthesis
	Synthesizer string `json:"synthesizer,omitempty" yaml:"synthesizer,omitempty"` // static or gemini
	ModelTier   string `json:"model_tier,omitempty" yaml:"model_tier,omitempty"`
	APIKey      string `json:"api_key,omitempty" yaml:"api_key,omitempty"` // Gemini API key

	// Output
	LogWindow int  `json:"log_window,omitempty" yaml:"log_window,omitempty"` // Log lines shown by the terminal printer
	Verbose   bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// Default returns the configuration of the demo wizard: five stages two seconds apart.
func Default() Config {
	return Config{
		Port:                     8080,
		CORSOrigin:               "*",
		RateLimitPerMinute:       120,
		SubmitRateLimitPerMinute: 10,
		Stages:                   steps.DefaultStages(),
		StageDelay:               "2s",
		StageEstimate:            "24s",
		SubmitPolicy:             string(research.PolicyReplace),
		MaxAttachmentBytes:       types.DefaultMaxAttachmentBytes,
		AcceptedMimeTypes:        types.DefaultIntakeRules().AcceptedMimeTypes,
		Synthesizer:              string(synthesis.KindStatic),
		ModelTier:                string(llm.TierStandard),
		LogWindow:                8,
	}
}

// LoadConfig loads configuration from a .json, .yaml or .yml file.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	case ".json", "":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (expected .json, .yaml or .yml)", ext)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Empty fields are allowed; they are filled by MergeWithDefaults.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535")
	}
	if c.RateLimitPerMinute < 0 || c.SubmitRateLimitPerMinute < 0 {
		return fmt.Errorf("config error: rate limits must be non-negative")
	}
	if c.MaxAttachmentBytes < 0 {
		return fmt.Errorf("config error: 'max_attachment_bytes' must be non-negative")
	}
	if c.LogWindow < 0 {
		return fmt.Errorf("config error: 'log_window' must be non-negative")
	}

	if len(c.Stages) > 0 {
		if err := steps.ValidateStages(c.Stages); err != nil {
			return fmt.Errorf("config error: %w", err)
		}
	}

	for name, value := range map[string]string{
		"stage_delay":    c.StageDelay,
		"stage_estimate": c.StageEstimate,
		"stage_timeout":  c.StageTimeout,
	} {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("config error: '%s': %w", name, err)
		}
	}

	if _, err := research.ParsePolicy(c.SubmitPolicy); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	kind, err := synthesis.ParseKind(c.Synthesizer)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if _, err := llm.ParseTier(c.ModelTier); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if kind == synthesis.KindGemini && c.APIKey == "" {
		return fmt.Errorf("config error: the gemini synthesizer needs an API key (%s)", EnvAPIKey)
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.CORSOrigin == "" {
		result.CORSOrigin = defaults.CORSOrigin
	}
	if result.RateLimitPerMinute == 0 {
		result.RateLimitPerMinute = defaults.RateLimitPerMinute
	}
	if result.SubmitRateLimitPerMinute == 0 {
		result.SubmitRateLimitPerMinute = defaults.SubmitRateLimitPerMinute
	}
	if len(result.Stages) == 0 {
		result.Stages = append([]steps.Stage(nil), defaults.Stages...)
	}
	if result.StageDelay == "" {
		result.StageDelay = defaults.StageDelay
	}
	if result.StageEstimate == "" {
		result.StageEstimate = defaults.StageEstimate
	}
	if result.StageTimeout == "" {
		result.StageTimeout = defaults.StageTimeout
	}
	if result.SubmitPolicy == "" {
		result.SubmitPolicy = defaults.SubmitPolicy
	}
	if result.MaxAttachmentBytes == 0 {
		result.MaxAttachmentBytes = defaults.MaxAttachmentBytes
	}
	if len(result.AcceptedMimeTypes) == 0 {
		result.AcceptedMimeTypes = append([]string(nil), defaults.AcceptedMimeTypes...)
	}
	if result.Synthesizer == "" {
		result.Synthesizer = defaults.Synthesizer
	}
	if result.ModelTier == "" {
		result.ModelTier = defaults.ModelTier
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.LogWindow == 0 {
		result.LogWindow = defaults.LogWindow
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// ApplyEnv overrides fields from the environment. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if key := getenv(EnvAPIKey); key != "" {
		c.APIKey = key
	}
	if port := getenv(EnvPort); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("config error: %s=%q is not a number", EnvPort, port)
		}
		c.Port = p
	}
	return nil
}

// StageDelayDuration returns the parsed stage delay. Call after Validate.
func (c *Config) StageDelayDuration() time.Duration {
	d, _ := parseDuration(c.StageDelay)
	return d
}

// StageEstimateDuration returns the parsed advisory per-stage estimate
func (c *Config) StageEstimateDuration() time.Duration {
	d, _ := parseDuration(c.StageEstimate)
	return d
}

// StageTimeoutDuration returns the parsed per-stage deadline, zero when disabled
func (c *Config) StageTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.StageTimeout)
	return d
}

// IntakeRules returns the attachment rules enforced at submission
func (c *Config) IntakeRules() types.IntakeRules {
	return types.IntakeRules{
		MaxAttachmentBytes: c.MaxAttachmentBytes,
		AcceptedMimeTypes:  append([]string(nil), c.AcceptedMimeTypes...),
	}
}

func parseDuration(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", s)
	}
	return d, nil
}
