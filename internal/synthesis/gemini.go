package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/candidate-research/internal/llm"
	"github.com/jonathan/candidate-research/internal/prompts"
	"github.com/jonathan/candidate-research/internal/schemas"
	"github.com/jonathan/candidate-research/internal/types"
)

const promptFile = "synthesis.json"

// maxDescriptionChars bounds how much of the job description goes into the prompt
const maxDescriptionChars = 12000

// Gemini asks an LLM to write the evaluation from the session context
type Gemini struct {
	Client llm.Client
	Tier   llm.ModelTier
	Logger *zap.Logger
}

// Synthesize renders the prompt, calls the model and decodes its JSON answer.
// The raw answer must satisfy the evaluation result schema.
func (g *Gemini) Synthesize(ctx context.Context, snap types.Snapshot) (*types.EvaluationResult, error) {
	if g.Client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	log := g.Logger
	if log == nil {
		log = zap.NewNop()
	}

	prompt, err := BuildPrompt(snap)
	if err != nil {
		return nil, err
	}
	system, err := prompts.Get(promptFile, "system")
	if err != nil {
		return nil, err
	}

	tier := g.Tier
	if tier == "" {
		tier = llm.TierStandard
	}
	log.Debug("Requesting evaluation",
		zap.String("session_id", snap.ID),
		zap.String("model", g.Client.Model(tier)),
		zap.Int("prompt_chars", len(prompt)))

	raw, err := g.Client.GenerateJSON(ctx, system, prompt, tier)
	if err != nil {
		return nil, fmt.Errorf("evaluation request failed: %w", err)
	}

	if err := schemas.ValidateEvaluation([]byte(raw)); err != nil {
		return nil, fmt.Errorf("model returned an invalid evaluation: %w", err)
	}

	var result types.EvaluationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to decode evaluation: %w", err)
	}
	return &result, nil
}

// BuildPrompt fills the evaluation prompt from a session snapshot
func BuildPrompt(snap types.Snapshot) (string, error) {
	in := snap.Intake

	notes := in.Notes
	if strings.TrimSpace(notes) == "" {
		notes = "(none)"
	}
	attachment := "(none)"
	if in.Attachment != nil {
		attachment = fmt.Sprintf("%s (%s, %d bytes)", in.Attachment.Name, in.Attachment.MimeType, in.Attachment.Size())
	}
	description := in.JobDescriptionText
	if len(description) > maxDescriptionChars {
		description = description[:maxDescriptionChars] + "\n[truncated]"
	}

	var stages strings.Builder
	for _, s := range snap.CompletedStages {
		stages.WriteString("- ")
		stages.WriteString(s)
		stages.WriteString("\n")
	}

	return prompts.Render(promptFile, "evaluate-candidate", map[string]string{
		"ProfileReference": in.ProfileReference,
		"Notes":            notes,
		"Attachment":       attachment,
		"JobDescription":   description,
		"Stages":           strings.TrimRight(stages.String(), "\n"),
	})
}
