// Package types provides the data model for candidate research sessions.
package types

import (
	"time"
)

// Status is the lifecycle state of a research session
type Status string

// Session statuses
const (
	StatusSubmitted  Status = "submitted"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Active reports whether the session can still make progress.
func (s Status) Active() bool {
	return s == StatusSubmitted || s == StatusProcessing
}

// Terminal reports whether the session has reached a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether moving from one status to another is allowed.
// Statuses only move forward; Cancelled is reachable from any active status.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusSubmitted:
		return to == StatusProcessing || to == StatusCancelled
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	default:
		return false
	}
}

// Progress tracks how far the pipeline has advanced
type Progress struct {
	OverallPercent             int      `json:"overall_percent"`
	CurrentStageName           string   `json:"current_stage_name,omitempty"`
	CurrentStageDescription    string   `json:"current_stage_description,omitempty"`
	CompletedStageDescriptions []string `json:"completed_stage_descriptions"`
	EstimatedSecondsRemaining  *int     `json:"estimated_seconds_remaining,omitempty"` // Advisory only
}

// LogEntry is one timestamped line of the session activity log
type LogEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// ErrorDescriptor describes why a session failed
type ErrorDescriptor struct {
	Stage   string    `json:"stage,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Session is one research request and its lifecycle state.
// It is owned and mutated by the session controller only.
type Session struct {
	ID        string
	Status    Status
	Intake    Intake
	Progress  Progress
	Log       []LogEntry
	Result    *EvaluationResult
	Error     *ErrorDescriptor
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSession creates a session in the Submitted state holding a private copy of the intake.
func NewSession(id string, intake Intake, now time.Time) *Session {
	return &Session{
		ID:     id,
		Status: StatusSubmitted,
		Intake: intake.Clone(),
		Progress: Progress{
			CompletedStageDescriptions: []string{},
		},
		Log:       []LogEntry{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendLog adds a line to the activity log
func (s *Session) AppendLog(at time.Time, message string) {
	s.Log = append(s.Log, LogEntry{At: at, Message: message})
	s.UpdatedAt = at
}

// Snapshot is an immutable point-in-time copy of a session handed to observers.
// Progress is only set while the session is active, Result only when completed
// and Error only when failed.
type Snapshot struct {
	Version         uint64            `json:"version"`
	ID              string            `json:"id"`
	Status          Status            `json:"status"`
	Intake          Intake            `json:"intake"`
	Progress        *Progress         `json:"progress,omitempty"`
	CompletedStages []string          `json:"completed_stages"`
	Log             []LogEntry        `json:"log"`
	Result          *EvaluationResult `json:"result,omitempty"`
	Error           *ErrorDescriptor  `json:"error,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Snapshot deep-copies the session. The only memory shared with the session is
// the attachment bytes, which are read-only once the session exists.
func (s *Session) Snapshot(version uint64) Snapshot {
	snap := Snapshot{
		Version:         version,
		ID:              s.ID,
		Status:          s.Status,
		Intake:          s.Intake.shareAttachment(),
		CompletedStages: cloneStrings(s.Progress.CompletedStageDescriptions),
		Log:             append([]LogEntry{}, s.Log...),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}

	if s.Status.Active() {
		p := s.Progress
		p.CompletedStageDescriptions = cloneStrings(s.Progress.CompletedStageDescriptions)
		if s.Progress.EstimatedSecondsRemaining != nil {
			eta := *s.Progress.EstimatedSecondsRemaining
			p.EstimatedSecondsRemaining = &eta
		}
		snap.Progress = &p
	}

	if s.Status == StatusCompleted && s.Result != nil {
		snap.Result = s.Result.Clone()
	}

	if s.Status == StatusFailed && s.Error != nil {
		e := *s.Error
		snap.Error = &e
	}

	return snap
}

// OverallPercent returns the progress percentage and whether it is meaningful.
// It is only meaningful while the session is active.
func (s Snapshot) OverallPercent() (int, bool) {
	if s.Progress == nil {
		return 0, false
	}
	return s.Progress.OverallPercent, true
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
