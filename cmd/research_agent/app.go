package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/candidate-research/internal/config"
	"github.com/jonathan/candidate-research/internal/llm"
	"github.com/jonathan/candidate-research/internal/notify"
	"github.com/jonathan/candidate-research/internal/pipeline"
	"github.com/jonathan/candidate-research/internal/research"
	"github.com/jonathan/candidate-research/internal/synthesis"
)

// loadConfig reads the optional config file, applies the environment and the
// defaults, then validates the result.
func loadConfig(path string, getenv func(string) string) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	if err := cfg.ApplyEnv(getenv); err != nil {
		return config.Config{}, err
	}
	cfg = cfg.MergeWithDefaults(config.Default())

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// app wires the controller and its collaborators from a validated config
type app struct {
	cfg    config.Config
	log    *zap.Logger
	ctrl   *research.Controller
	client llm.Client
}

// newApp builds the controller. Notifications go to the log and to any extra sinks.
func newApp(ctx context.Context, cfg config.Config, log *zap.Logger, sinks ...notify.Sink) (*app, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &app{cfg: cfg, log: log}

	kind, err := synthesis.ParseKind(cfg.Synthesizer)
	if err != nil {
		return nil, err
	}
	tier, err := llm.ParseTier(cfg.ModelTier)
	if err != nil {
		return nil, err
	}
	if kind == synthesis.KindGemini {
		client, err := llm.NewGeminiClient(ctx, llm.DefaultConfig(), cfg.APIKey)
		if err != nil {
			return nil, err
		}
		a.client = client
	}

	synth, err := synthesis.New(kind, a.client, tier, log)
	if err != nil {
		a.closeClient()
		return nil, err
	}

	driver, err := pipeline.NewDriver(pipeline.Options{
		Stages:        cfg.Stages,
		Delay:         pipeline.FixedDelay(cfg.StageDelayDuration()),
		Synthesizer:   synth,
		StageTimeout:  cfg.StageTimeoutDuration(),
		StageEstimate: cfg.StageEstimateDuration(),
		Logger:        log,
		OnProgress: func(e pipeline.ProgressEvent) {
			log.Debug("Stage completed",
				zap.String("session_id", e.SessionID),
				zap.String("stage", e.Step),
				zap.Int("percent", e.Percent))
		},
	})
	if err != nil {
		a.closeClient()
		return nil, err
	}

	policy, err := research.ParsePolicy(cfg.SubmitPolicy)
	if err != nil {
		a.closeClient()
		return nil, err
	}

	a.ctrl, err = research.New(research.Options{
		Driver:   driver,
		Rules:    cfg.IntakeRules(),
		Policy:   policy,
		Notifier: notify.Multi(append([]notify.Sink{notify.NewLogSink(log)}, sinks...)...),
		Logger:   log,
	})
	if err != nil {
		a.closeClient()
		return nil, err
	}

	log.Debug("Research agent ready",
		zap.String("synthesizer", string(kind)),
		zap.Int("stages", len(cfg.Stages)),
		zap.String("submit_policy", string(policy)))
	return a, nil
}

// Close stops any running session and releases the model client
func (a *app) Close() {
	a.ctrl.Close()
	a.closeClient()
}

func (a *app) closeClient() {
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.log.Warn("Error closing model client", zap.Error(err))
		}
	}
}
