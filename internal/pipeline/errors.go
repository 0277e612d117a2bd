package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// StageSynthesis names the terminal synthesis step in error descriptors
const StageSynthesis = "synthesis"

// ErrHalted is returned when the session stopped processing underneath the driver
// (cancelled, replaced or discarded). No mutation was made after the halt.
var ErrHalted = errors.New("pipeline halted: session is no longer processing")

// PipelineError represents a stage or synthesis failure that moved the session to Failed
type PipelineError struct {
	Stage string
	Cause error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at %s: %v", e.Stage, e.Cause)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// StageTimeoutError represents a stage that exceeded its deadline
type StageTimeoutError struct {
	Stage   string
	Timeout time.Duration
}

func (e *StageTimeoutError) Error() string {
	return fmt.Sprintf("stage %s exceeded deadline of %s", e.Stage, e.Timeout)
}
