// Package llm wraps the Gemini API behind a small client interface used by the
// evaluation synthesizer.
package llm

import (
	"fmt"
	"strings"
)

// ModelTier represents the capability level of a model
type ModelTier string

const (
	// TierLite is for short classification style prompts
	TierLite ModelTier = "lite"
	// TierStandard is for structured output
	TierStandard ModelTier = "standard"
	// TierAdvanced is for long-form reasoning over a whole candidate
	TierAdvanced ModelTier = "advanced"
)

// ParseTier maps a config value to a ModelTier. Empty means TierStandard.
func ParseTier(s string) (ModelTier, error) {
	switch t := ModelTier(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TierStandard, nil
	case TierLite, TierStandard, TierAdvanced:
		return t, nil
	default:
		return "", fmt.Errorf("unknown model tier %q", s)
	}
}

// Config holds model selection and request shaping for the client
type Config struct {
	Models            map[ModelTier]string
	Temperature       float32
	MaxOutputTokens   int32 // Zero leaves the provider default
	RequestsPerMinute int   // Zero disables client side throttling
}

// DefaultConfig returns the default Gemini configuration
func DefaultConfig() *Config {
	return &Config{
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Temperature:       0.2,
		RequestsPerMinute: 30,
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// WithModel returns a copy of the config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	out := *c
	out.Models = make(map[ModelTier]string, len(c.Models)+1)
	for k, v := range c.Models {
		out.Models[k] = v
	}
	out.Models[tier] = model
	return &out
}
