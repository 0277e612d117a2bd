// Package pipeline advances a research session through its ordered stage table.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/candidate-research/internal/pipeline/steps"
	"github.com/jonathan/candidate-research/internal/types"
)

// ProgressEvent represents a progress update during a pipeline run
type ProgressEvent struct {
	SessionID string `json:"session_id"`
	Step      string `json:"step"`
	Message   string `json:"message"`
	Percent   int    `json:"percent"`
}

// ProgressCallback is called after each committed stage
type ProgressCallback func(event ProgressEvent)

// Synthesizer produces the evaluation once every stage has completed
type Synthesizer interface {
	Synthesize(ctx context.Context, snap types.Snapshot) (*types.EvaluationResult, error)
}

// SynthesizerFunc adapts a function to the Synthesizer interface
type SynthesizerFunc func(ctx context.Context, snap types.Snapshot) (*types.EvaluationResult, error)

// Synthesize calls f
func (f SynthesizerFunc) Synthesize(ctx context.Context, snap types.Snapshot) (*types.EvaluationResult, error) {
	return f(ctx, snap)
}

// Tracker is the driver's write handle onto one session.
// Commit applies mutate atomically and returns false, without calling mutate,
// once the session has left Processing or has been replaced.
type Tracker interface {
	Commit(mutate func(s *types.Session)) bool
	Snapshot() (types.Snapshot, bool)
}

// Options holds configuration for a Driver
type Options struct {
	Stages        []steps.Stage
	Delay         Delay
	Synthesizer   Synthesizer
	StageTimeout  time.Duration // Zero disables the per-stage deadline
	StageEstimate time.Duration // Used for the advisory time remaining
	Clock         func() time.Time
	Logger        *zap.Logger
	OnProgress    ProgressCallback
}

// Driver runs the stage table against one session at a time
type Driver struct {
	opts Options
}

// NewDriver validates the stage table and fills in defaults
func NewDriver(opts Options) (*Driver, error) {
	if err := steps.ValidateStages(opts.Stages); err != nil {
		return nil, err
	}
	if opts.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}
	if opts.Delay == nil {
		opts.Delay = NoDelay
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.Stages = append([]steps.Stage(nil), opts.Stages...)
	return &Driver{opts: opts}, nil
}

// Stages returns a copy of the stage table
func (d *Driver) Stages() []steps.Stage {
	return append([]steps.Stage(nil), d.opts.Stages...)
}

// Prime sets the initial progress of a session entering Processing:
// the first stage is current and nothing is complete yet.
func (d *Driver) Prime(s *types.Session) {
	first := d.opts.Stages[0]
	s.Progress.OverallPercent = 0
	s.Progress.CurrentStageName = first.Name
	s.Progress.CurrentStageDescription = first.Description
	s.Progress.EstimatedSecondsRemaining = d.estimate(len(d.opts.Stages))
}

// Run advances the session stage by stage, then synthesizes the result.
// It returns nil when the session completed, ErrHalted when the session was
// cancelled or replaced, and a *PipelineError when the session failed.
func (d *Driver) Run(ctx context.Context, t Tracker) error {
	log := d.opts.Logger
	sessionID := ""
	if snap, ok := t.Snapshot(); ok {
		sessionID = snap.ID
		log = log.With(zap.String("session_id", sessionID))
	}

	for i, st := range d.opts.Stages {
		if ctx.Err() != nil {
			return ErrHalted
		}

		if err := d.wait(ctx, st); err != nil {
			if ctx.Err() != nil {
				return ErrHalted
			}
			return d.fail(t, log, st.Name, err)
		}

		now := d.opts.Clock()
		remaining := d.estimate(len(d.opts.Stages) - i - 1)
		stage := st
		committed := t.Commit(func(s *types.Session) {
			s.Progress.OverallPercent = stage.TargetPercent
			s.Progress.CurrentStageName = stage.Name
			s.Progress.CurrentStageDescription = stage.Description
			s.Progress.CompletedStageDescriptions = append(s.Progress.CompletedStageDescriptions, stage.Description)
			s.Progress.EstimatedSecondsRemaining = remaining
			s.AppendLog(now, fmt.Sprintf("%s: %s completed", now.Format("15:04:05"), stage.Description))
		})
		if !committed {
			log.Debug("Stage discarded, session no longer processing", zap.String("stage", st.Name))
			return ErrHalted
		}

		log.Debug("Stage completed", zap.String("stage", st.Name), zap.Int("percent", st.TargetPercent))
		d.emitProgress(ProgressEvent{
			SessionID: sessionID,
			Step:      st.Name,
			Message:   st.Description + " completed",
			Percent:   st.TargetPercent,
		})
	}

	snap, ok := t.Snapshot()
	if !ok || snap.Status != types.StatusProcessing {
		return ErrHalted
	}

	result, err := d.synthesize(ctx, snap)
	if err == nil && result == nil {
		err = errors.New("synthesizer returned no result")
	}
	if err != nil {
		if ctx.Err() != nil {
			return ErrHalted
		}
		return d.fail(t, log, StageSynthesis, err)
	}

	now := d.opts.Clock()
	final := result.Clone()
	committed := t.Commit(func(s *types.Session) {
		s.Status = types.StatusCompleted
		s.Result = final
		s.AppendLog(now, fmt.Sprintf("%s: Research completed", now.Format("15:04:05")))
	})
	if !committed {
		return ErrHalted
	}

	log.Info("Research session completed", zap.Int("overall_score", final.Scores.Overall))
	return nil
}

// wait blocks on the delay supplier, bounded by the per-stage deadline if one is set
func (d *Driver) wait(ctx context.Context, st steps.Stage) error {
	if d.opts.StageTimeout <= 0 {
		return d.opts.Delay.Wait(ctx, st)
	}

	stageCtx, cancel := context.WithTimeout(ctx, d.opts.StageTimeout)
	defer cancel()

	err := d.opts.Delay.Wait(stageCtx, st)
	if err != nil && ctx.Err() == nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		return &StageTimeoutError{Stage: st.Name, Timeout: d.opts.StageTimeout}
	}
	return err
}

// synthesize calls the synthesizer, bounded by the per-stage deadline if one is
// set. The deadline holds even when the synthesizer ignores its context.
func (d *Driver) synthesize(ctx context.Context, snap types.Snapshot) (*types.EvaluationResult, error) {
	if d.opts.StageTimeout <= 0 {
		return d.opts.Synthesizer.Synthesize(ctx, snap)
	}

	synthCtx, cancel := context.WithTimeout(ctx, d.opts.StageTimeout)
	defer cancel()

	type outcome struct {
		result *types.EvaluationResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := d.opts.Synthesizer.Synthesize(synthCtx, snap)
		done <- outcome{result: result, err: err}
	}()

	timedOut := func() bool {
		return ctx.Err() == nil && errors.Is(synthCtx.Err(), context.DeadlineExceeded)
	}

	select {
	case o := <-done:
		if o.err != nil && timedOut() {
			return nil, &StageTimeoutError{Stage: StageSynthesis, Timeout: d.opts.StageTimeout}
		}
		return o.result, o.err
	case <-synthCtx.Done():
		if timedOut() {
			return nil, &StageTimeoutError{Stage: StageSynthesis, Timeout: d.opts.StageTimeout}
		}
		return nil, ctx.Err()
	}
}

// fail moves the session to Failed, keeping everything committed so far
func (d *Driver) fail(t Tracker, log *zap.Logger, stage string, cause error) error {
	perr := &PipelineError{Stage: stage, Cause: cause}
	now := d.opts.Clock()

	committed := t.Commit(func(s *types.Session) {
		s.Status = types.StatusFailed
		s.Error = &types.ErrorDescriptor{Stage: stage, Message: cause.Error(), At: now}
		s.AppendLog(now, fmt.Sprintf("%s: %s failed: %v", now.Format("15:04:05"), stage, cause))
	})
	if !committed {
		return ErrHalted
	}

	log.Warn("Research session failed", zap.String("stage", stage), zap.Error(cause))
	return perr
}

// estimate returns the advisory seconds remaining for n stages, or nil when unknown
func (d *Driver) estimate(n int) *int {
	if d.opts.StageEstimate <= 0 {
		return nil
	}
	secs := int((time.Duration(n) * d.opts.StageEstimate).Seconds())
	return &secs
}

// emitProgress calls the progress callback if configured
func (d *Driver) emitProgress(event ProgressEvent) {
	if d.opts.OnProgress != nil {
		d.opts.OnProgress(event)
	}
}
