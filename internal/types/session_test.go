package types

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusSubmitted, StatusProcessing, true},
		{StatusSubmitted, StatusCancelled, true},
		{StatusSubmitted, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusProcessing, StatusSubmitted, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusFailed, StatusCancelled, false},
		{StatusCancelled, StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusSubmitted.Active())
	assert.True(t, StatusProcessing.Active())
	assert.False(t, StatusCompleted.Active())

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusProcessing.Terminal())
}

func newTestSession() *Session {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewSession("abc", Intake{ProfileReference: "p", JobDescriptionText: "j"}, now)
	s.Status = StatusProcessing
	s.Progress.OverallPercent = 40
	s.Progress.CompletedStageDescriptions = []string{"one", "two"}
	eta := 60
	s.Progress.EstimatedSecondsRemaining = &eta
	s.AppendLog(now, "one completed")
	return s
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	s := newTestSession()
	snap := s.Snapshot(7)
	before := s.Snapshot(7)

	// Mutating the snapshot must not leak into the session
	snap.Progress.CompletedStageDescriptions[0] = "tampered"
	snap.CompletedStages[1] = "tampered"
	*snap.Progress.EstimatedSecondsRemaining = 0
	snap.Log[0].Message = "tampered"

	after := s.Snapshot(7)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("session changed through snapshot (-before +after):\n%s", diff)
	}
}

func TestSnapshot_SharesAttachmentBytes(t *testing.T) {
	data := []byte("%PDF-1.4 resume body")
	s := NewSession("s1", Intake{
		ProfileReference:   "p",
		JobDescriptionText: "j",
		Attachment:         &Attachment{Name: "cv.pdf", MimeType: MimePDF, Bytes: data},
	}, time.Now())

	a := s.Snapshot(1)
	b := s.Snapshot(2)
	require.NotNil(t, a.Intake.Attachment)
	assert.Same(t, &s.Intake.Attachment.Bytes[0], &a.Intake.Attachment.Bytes[0])
	assert.Same(t, &a.Intake.Attachment.Bytes[0], &b.Intake.Attachment.Bytes[0])
	assert.NotSame(t, &data[0], &s.Intake.Attachment.Bytes[0], "session keeps its own copy of the submitted bytes")

	// Header fields and appends stay private to the snapshot
	a.Intake.Attachment.Name = "tampered"
	a.Intake.Attachment.Bytes = append(a.Intake.Attachment.Bytes, '!')
	assert.Equal(t, "cv.pdf", s.Intake.Attachment.Name)
	assert.Equal(t, len(data), len(s.Snapshot(3).Intake.Attachment.Bytes))
	assert.Equal(t, len(data), cap(b.Intake.Attachment.Bytes))
}

func TestSnapshot_ProgressOnlyWhileActive(t *testing.T) {
	s := newTestSession()

	snap := s.Snapshot(1)
	pct, ok := snap.OverallPercent()
	require.True(t, ok)
	assert.Equal(t, 40, pct)

	s.Status = StatusCancelled
	snap = s.Snapshot(2)
	_, ok = snap.OverallPercent()
	assert.False(t, ok)
	assert.Nil(t, snap.Progress)
	assert.Equal(t, []string{"one", "two"}, snap.CompletedStages)
}

func TestSnapshot_ResultOnlyWhenCompleted(t *testing.T) {
	s := newTestSession()
	s.Result = &EvaluationResult{Strengths: []string{"a"}}

	assert.Nil(t, s.Snapshot(1).Result, "result must not be exposed while processing")

	s.Status = StatusCompleted
	snap := s.Snapshot(2)
	require.NotNil(t, snap.Result)
	snap.Result.Strengths[0] = "tampered"
	assert.Equal(t, "a", s.Result.Strengths[0])
}

func TestSnapshot_ErrorOnlyWhenFailed(t *testing.T) {
	s := newTestSession()
	s.Error = &ErrorDescriptor{Stage: "skills", Message: "boom"}
	assert.Nil(t, s.Snapshot(1).Error)

	s.Status = StatusFailed
	snap := s.Snapshot(2)
	require.NotNil(t, snap.Error)
	assert.Equal(t, "skills", snap.Error.Stage)
}

func TestEvaluationResultClone(t *testing.T) {
	r := &EvaluationResult{
		Scores:    Scores{Overall: 85},
		Strengths: []string{"s"},
		Concerns:  []string{"c"},
		CandidateProfile: CandidateProfile{
			Name:   "Jane",
			Skills: []string{"Go"},
		},
	}
	c := r.Clone()
	c.CandidateProfile.Skills[0] = "Rust"
	c.Concerns[0] = "x"

	assert.Equal(t, "Go", r.CandidateProfile.Skills[0])
	assert.Equal(t, "c", r.Concerns[0])
	assert.Nil(t, (*EvaluationResult)(nil).Clone())
}

func TestScoreBand(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{100, "strong"},
		{80, "strong"},
		{79, "moderate"},
		{60, "moderate"},
		{59, "weak"},
		{0, "weak"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ScoreBand(tt.score), "score %d", tt.score)
	}
}
