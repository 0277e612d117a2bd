package synthesis

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/candidate-research/internal/llm"
	"github.com/jonathan/candidate-research/internal/pipeline"
	"github.com/jonathan/candidate-research/internal/schemas"
	"github.com/jonathan/candidate-research/internal/types"
)

// Kind selects a synthesizer implementation
type Kind string

// Synthesizer kinds
const (
	KindStatic Kind = "static"
	KindGemini Kind = "gemini"
)

// ParseKind maps a config value to a Kind. Empty means KindStatic.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindStatic, nil
	case KindStatic, KindGemini:
		return k, nil
	default:
		return "", fmt.Errorf("unknown synthesizer %q (expected static or gemini)", s)
	}
}

// Validated checks every result from the wrapped synthesizer against the
// evaluation result schema. A result that fails is reported as an error.
func Validated(inner pipeline.Synthesizer) pipeline.Synthesizer {
	return pipeline.SynthesizerFunc(func(ctx context.Context, snap types.Snapshot) (*types.EvaluationResult, error) {
		result, err := inner.Synthesize(ctx, snap)
		if err != nil || result == nil {
			return result, err
		}
		if err := schemas.ValidateEvaluationValue(result); err != nil {
			return nil, fmt.Errorf("synthesized evaluation rejected: %w", err)
		}
		return result, nil
	})
}

// New builds the synthesizer for kind. The gemini kind needs a client.
func New(kind Kind, client llm.Client, tier llm.ModelTier, logger *zap.Logger) (pipeline.Synthesizer, error) {
	switch kind {
	case KindStatic, "":
		return Validated(NewStatic()), nil
	case KindGemini:
		if client == nil {
			return nil, fmt.Errorf("gemini synthesizer requires an llm client (set GEMINI_API_KEY)")
		}
		return &Gemini{Client: client, Tier: tier, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown synthesizer %q", kind)
	}
}
