package research

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/jonathan/candidate-research/internal/export"
	"github.com/jonathan/candidate-research/internal/notify"
	"github.com/jonathan/candidate-research/internal/pipeline"
	"github.com/jonathan/candidate-research/internal/pipeline/steps"
	"github.com/jonathan/candidate-research/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testResult = types.EvaluationResult{
	Scores:           types.Scores{Overall: 85, SkillsMatch: 90, ExperienceMatch: 82, CulturalFit: 83},
	Strengths:        []string{"Strong technical background"},
	Concerns:         []string{"Limited domain experience"},
	Recommendation:   "Proceed to technical interview.",
	DetailedAnalysis: "Solid profile.",
	CandidateProfile: types.CandidateProfile{Name: "John Doe", Skills: []string{"Go"}},
}

func validIntake() types.Intake {
	return types.Intake{
		ProfileReference:   "https://www.linkedin.com/in/john-doe",
		JobDescriptionText: "Senior Go engineer for a payments platform.",
	}
}

// gate blocks each stage until released, reporting which stage is waiting
type gate struct {
	entered     chan steps.Stage
	release     chan struct{}
	ignoreAfter int // Stages with this target ignore ctx cancellation
}

func newGate() *gate {
	return &gate{entered: make(chan steps.Stage, 16), release: make(chan struct{}, 16)}
}

func (g *gate) Wait(ctx context.Context, st steps.Stage) error {
	g.entered <- st
	if g.ignoreAfter != 0 && st.TargetPercent == g.ignoreAfter {
		<-g.release
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.release:
		return nil
	}
}

func (g *gate) awaitStage(t *testing.T, target int) {
	t.Helper()
	for {
		select {
		case st := <-g.entered:
			if st.TargetPercent == target {
				return
			}
			g.release <- struct{}{}
		case <-time.After(2 * time.Second):
			t.Fatalf("stage %d never started", target)
		}
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingSink) Notify(e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) all() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

type fixture struct {
	ctrl *Controller
	sink *recordingSink
}

func newFixture(t *testing.T, delay pipeline.Delay, synth pipeline.Synthesizer, mutate func(*Options)) *fixture {
	t.Helper()
	if synth == nil {
		synth = pipeline.SynthesizerFunc(func(context.Context, types.Snapshot) (*types.EvaluationResult, error) {
			r := testResult
			return &r, nil
		})
	}
	driver, err := pipeline.NewDriver(pipeline.Options{
		Stages:        steps.DefaultStages(),
		Delay:         delay,
		Synthesizer:   synth,
		StageEstimate: 2 * time.Second,
		Logger:        zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	sink := &recordingSink{}
	opts := Options{Driver: driver, Notifier: sink, Logger: zaptest.NewLogger(t)}
	if mutate != nil {
		mutate(&opts)
	}
	ctrl, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)
	return &fixture{ctrl: ctrl, sink: sink}
}

func (f *fixture) await(t *testing.T, id string) types.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := f.ctrl.Await(ctx, id)
	require.NoError(t, err)
	return snap
}

// statusRecorder collects every snapshot published for one session
type statusRecorder struct {
	mu    sync.Mutex
	snaps []types.Snapshot
}

func (r *statusRecorder) observe(v ViewState) {
	if v.Session == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, *v.Session)
}

func (r *statusRecorder) forSession(id string) []types.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Snapshot
	for _, s := range r.snaps {
		if s.ID == id {
			out = append(out, s)
		}
	}
	return out
}

func TestNew_RequiresDriver(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorContains(t, err, "driver is required")
}

func TestSubmit_EmptyJobDescriptionIsRejected(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	in := validIntake()
	in.JobDescriptionText = ""
	id, err := f.ctrl.Submit(in)

	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, id)

	_, ok := f.ctrl.Current()
	assert.False(t, ok, "no session may exist after a rejected intake")
	assert.Equal(t, TabForm, f.ctrl.View().Tab)

	events := f.sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindSubmit, events[0].Kind)
	assert.False(t, events[0].OK())
}

func TestSubmit_WhitespaceOnlyDescriptionIsRejected(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	in := validIntake()
	in.JobDescriptionText = "  \n\t "
	_, err := f.ctrl.Submit(in)
	assert.True(t, types.IsValidationError(err))
}

func TestSubmit_RunsToCompletion(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	rec := &statusRecorder{}
	defer f.ctrl.Subscribe(rec.observe)()

	id, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	final := f.await(t, id)
	assert.Equal(t, types.StatusCompleted, final.Status)
	assert.Len(t, final.CompletedStages, 5)
	require.NotNil(t, final.Result)
	assert.Equal(t, 85, final.Result.Scores.Overall)
	_, ok := final.OverallPercent()
	assert.False(t, ok, "percent is not readable once completed")

	snaps := rec.forSession(id)
	require.NotEmpty(t, snaps)

	// Submitted -> Processing -> Completed, in that order, no skips or reversals
	var statuses []types.Status
	for _, s := range snaps {
		if len(statuses) == 0 || statuses[len(statuses)-1] != s.Status {
			statuses = append(statuses, s.Status)
		}
	}
	assert.Equal(t, []types.Status{types.StatusSubmitted, types.StatusProcessing, types.StatusCompleted}, statuses)

	// Percent never decreases and hits 100 while still processing
	last := -1
	sawHundred := false
	prevCompleted := 0
	var prevVersion uint64
	for _, s := range snaps {
		assert.Greater(t, s.Version, prevVersion)
		prevVersion = s.Version
		if p, ok := s.OverallPercent(); ok {
			assert.GreaterOrEqual(t, p, last)
			last = p
			if p == 100 {
				sawHundred = true
				assert.Equal(t, types.StatusProcessing, s.Status)
			}
		}
		n := len(s.CompletedStages)
		assert.True(t, n == prevCompleted || n == prevCompleted+1, "completed stages grow one at a time")
		assert.LessOrEqual(t, n, 5)
		prevCompleted = n
	}
	assert.True(t, sawHundred)

	view := f.ctrl.View()
	assert.Equal(t, TabResults, view.Tab)
	require.NotNil(t, view.Session)
	assert.Equal(t, id, view.Session.ID)

	events := f.sink.all()
	require.Len(t, events, 1)
	assert.True(t, events[0].OK())
	assert.Equal(t, id, events[0].SessionID)
}

func TestSubmit_ReturnsWhileProcessing(t *testing.T) {
	g := newGate()
	f := newFixture(t, g, nil, nil)

	id, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)

	g.awaitStage(t, 20)
	snap, ok := f.ctrl.Current()
	require.True(t, ok)
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, types.StatusProcessing, snap.Status)
	require.NotNil(t, snap.Progress)
	assert.Equal(t, 0, snap.Progress.OverallPercent)
	assert.Equal(t, "Profile Scraper Agent", snap.Progress.CurrentStageName)
	require.NotNil(t, snap.Progress.EstimatedSecondsRemaining)
	assert.Equal(t, 10, *snap.Progress.EstimatedSecondsRemaining)
	assert.Equal(t, TabProcessing, f.ctrl.View().Tab)
}

func TestCancel_MidStageThree(t *testing.T) {
	g := newGate()
	f := newFixture(t, g, nil, nil)

	id, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)

	g.awaitStage(t, 60)
	require.NoError(t, f.ctrl.Cancel())

	final := f.await(t, id)
	assert.Equal(t, types.StatusCancelled, final.Status)
	assert.LessOrEqual(t, len(final.CompletedStages), 2)
	assert.Nil(t, final.Result)
	assert.Nil(t, final.Progress)
	assert.Equal(t, TabForm, f.ctrl.View().Tab)
}

func TestCancel_InFlightStageIsDiscarded(t *testing.T) {
	g := newGate()
	g.ignoreAfter = 60
	f := newFixture(t, g, nil, nil)
	rec := &statusRecorder{}
	defer f.ctrl.Subscribe(rec.observe)()

	id, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)

	g.awaitStage(t, 60)
	require.NoError(t, f.ctrl.Cancel())
	// The stage finishes its wait after cancellation; its result must not land
	g.release <- struct{}{}
	f.ctrl.Close()

	snaps := rec.forSession(id)
	final := snaps[len(snaps)-1]
	assert.Equal(t, types.StatusCancelled, final.Status)
	assert.Len(t, final.CompletedStages, 2)
	for _, s := range snaps {
		assert.NotContains(t, s.CompletedStages, "Evaluating work history")
	}
}

func TestCancel_InvalidStates(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	err := f.ctrl.Cancel()
	var ise *InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, types.Status(""), ise.Status)

	id, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)
	f.await(t, id)

	err = f.ctrl.Cancel()
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, types.StatusCompleted, ise.Status)

	snap, _ := f.ctrl.Current()
	assert.Equal(t, types.StatusCompleted, snap.Status)
	assert.Len(t, snap.CompletedStages, 5)
}

func TestCancel_AfterFailureIsInvalid(t *testing.T) {
	synth := pipeline.SynthesizerFunc(func(context.Context, types.Snapshot) (*types.EvaluationResult, error) {
		return nil, errors.New("model unavailable")
	})
	f := newFixture(t, nil, synth, nil)

	id, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)
	final := f.await(t, id)
	assert.Equal(t, types.StatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, pipeline.StageSynthesis, final.Error.Stage)
	assert.Nil(t, final.Result)
	assert.Len(t, final.CompletedStages, 5)

	assert.True(t, IsInvalidState(f.ctrl.Cancel()))
	view := f.ctrl.View()
	assert.Equal(t, TabForm, view.Tab)
	require.NotNil(t, view.Session)
	assert.Equal(t, "model unavailable", view.Session.Error.Message)
}

func TestExport(t *testing.T) {
	f := newFixture(t, nil, nil, func(o *Options) {
		o.Clock = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }
	})

	_, err := f.ctrl.Export("json")
	assert.True(t, IsInvalidState(err), "export without a session")

	id, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)
	f.await(t, id)

	for _, format := range []string{"pdf", "json", "csv"} {
		t.Run(format, func(t *testing.T) {
			p, err := f.ctrl.Export(format)
			require.NoError(t, err)
			assert.Equal(t, export.Format(format), p.Format)
			assert.NotEmpty(t, p.Data)
			assert.Contains(t, p.Filename, id[:8])
		})
	}

	_, err = f.ctrl.Export("xml")
	var ufe *export.UnsupportedFormatError
	assert.ErrorAs(t, err, &ufe)

	events := f.sink.all()
	var exports []notify.Event
	for _, e := range events {
		if e.Kind == notify.KindExport {
			exports = append(exports, e)
		}
	}
	require.Len(t, exports, 5)
	assert.False(t, exports[0].OK())
	assert.True(t, exports[1].OK())
	assert.Equal(t, "pdf", exports[1].Format)
	assert.False(t, exports[4].OK())
}

func TestExport_BeforeCompletionIsInvalidState(t *testing.T) {
	g := newGate()
	f := newFixture(t, g, nil, nil)

	_, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)
	g.awaitStage(t, 40)

	for _, format := range []string{"pdf", "json", "csv", "bogus"} {
		_, err := f.ctrl.Export(format)
		var ise *InvalidStateError
		require.ErrorAs(t, err, &ise, format)
		assert.Equal(t, types.StatusProcessing, ise.Status)
	}
}

func TestExport_CSVOnCancelledSession(t *testing.T) {
	g := newGate()
	f := newFixture(t, g, nil, nil)

	_, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)
	g.awaitStage(t, 20)
	require.NoError(t, f.ctrl.Cancel())

	_, err = f.ctrl.Export("csv")
	var ise *InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, types.StatusCancelled, ise.Status)
}

func TestExport_SerializerFailureIsNotified(t *testing.T) {
	boom := errors.New("disk full")
	f := newFixture(t, nil, nil, func(o *Options) {
		o.Serializer = export.SerializerFunc(func(export.Format, export.Document) (*export.Payload, error) {
			return nil, boom
		})
	})
	id, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)
	f.await(t, id)

	_, err = f.ctrl.Export("pdf")
	assert.ErrorIs(t, err, boom)
	events := f.sink.all()
	assert.ErrorIs(t, events[len(events)-1].Err, boom)
}

func TestRestart(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		id, err := f.ctrl.Submit(validIntake())
		require.NoError(t, err)
		assert.False(t, seen[id], "session ids must be fresh")
		seen[id] = true
		f.await(t, id)

		f.ctrl.Restart()
		_, ok := f.ctrl.Current()
		assert.False(t, ok)
		assert.Equal(t, ViewState{Tab: TabForm}, f.ctrl.View())
	}
}

func TestRestart_StopsRunningPipeline(t *testing.T) {
	g := newGate()
	f := newFixture(t, g, nil, nil)

	id, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)
	g.awaitStage(t, 40)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	waitErr := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Await(ctx, id)
		waitErr <- err
	}()

	f.ctrl.Restart()
	assert.ErrorIs(t, <-waitErr, ErrDiscarded)

	_, ok := f.ctrl.Current()
	assert.False(t, ok)
}

func TestSubmit_ReplacePolicyDiscardsActiveSession(t *testing.T) {
	g := newGate()
	f := newFixture(t, g, nil, nil)
	rec := &statusRecorder{}
	defer f.ctrl.Subscribe(rec.observe)()

	first, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)
	g.awaitStage(t, 40)

	second, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	snap, ok := f.ctrl.Current()
	require.True(t, ok)
	assert.Equal(t, second, snap.ID)

	// Nothing from the first driver lands after the replacement
	f.ctrl.Close()
	for _, s := range rec.forSession(first) {
		assert.LessOrEqual(t, len(s.CompletedStages), 1)
	}
}

func TestSubmit_RejectPolicy(t *testing.T) {
	g := newGate()
	f := newFixture(t, g, nil, func(o *Options) { o.Policy = PolicyReject })

	first, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)
	g.awaitStage(t, 20)

	_, err = f.ctrl.Submit(validIntake())
	var ise *InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "submit", ise.Op)

	snap, _ := f.ctrl.Current()
	assert.Equal(t, first, snap.ID, "active session is untouched")

	require.NoError(t, f.ctrl.Cancel())
	second, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestMinimizeRestore(t *testing.T) {
	g := newGate()
	f := newFixture(t, g, nil, nil)

	var mu sync.Mutex
	var views []ViewState
	defer f.ctrl.Subscribe(func(v ViewState) {
		mu.Lock()
		views = append(views, v)
		mu.Unlock()
	})()

	_, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)
	g.awaitStage(t, 20)
	before, _ := f.ctrl.Current()

	f.ctrl.Minimize()
	f.ctrl.Minimize()
	assert.True(t, f.ctrl.View().Minimized)
	assert.Equal(t, TabProcessing, f.ctrl.View().Tab)

	after, _ := f.ctrl.Current()
	assert.Equal(t, before, after, "minimize does not touch the session")

	f.ctrl.Restore()
	assert.False(t, f.ctrl.View().Minimized)

	mu.Lock()
	defer mu.Unlock()
	// submitted, processing, minimize, restore; the repeated minimize is not published
	require.Len(t, views, 4)
	assert.True(t, views[2].Minimized)
	assert.Equal(t, views[1].Session.Version, views[2].Session.Version)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	var mu sync.Mutex
	calls := 0
	unsubscribe := f.ctrl.Subscribe(func(ViewState) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	f.ctrl.Minimize()
	unsubscribe()
	unsubscribe()
	f.ctrl.Restore()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	defer f.ctrl.Subscribe(func(v ViewState) {
		if v.Session != nil {
			v.Session.CompletedStages = append(v.Session.CompletedStages, "tampered")
			v.Session.Intake.ProfileReference = "tampered"
			if v.Session.Result != nil {
				v.Session.Result.Scores.Overall = 0
			}
		}
	})()

	id, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)
	final := f.await(t, id)

	assert.Len(t, final.CompletedStages, 5)
	assert.Equal(t, validIntake().ProfileReference, final.Intake.ProfileReference)
	assert.Equal(t, 85, final.Result.Scores.Overall)
}

func TestSubmit_AfterClose(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	f.ctrl.Close()
	_, err := f.ctrl.Submit(validIntake())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClose_DiscardsActiveSession(t *testing.T) {
	g := newGate()
	f := newFixture(t, g, nil, nil)

	var (
		mu    sync.Mutex
		views []ViewState
	)
	defer f.ctrl.Subscribe(func(v ViewState) {
		mu.Lock()
		defer mu.Unlock()
		views = append(views, v)
	})()

	id, err := f.ctrl.Submit(validIntake())
	require.NoError(t, err)
	g.awaitStage(t, 20)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	waitErr := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Await(ctx, id)
		waitErr <- err
	}()

	f.ctrl.Close()
	assert.ErrorIs(t, <-waitErr, ErrDiscarded)

	mu.Lock()
	last := views[len(views)-1]
	mu.Unlock()
	assert.Nil(t, last.Session, "observers see the session go away")
	assert.Equal(t, TabForm, last.Tab)

	_, ok := f.ctrl.Current()
	assert.False(t, ok)
}

func TestCancel_RacesStageCompletion(t *testing.T) {
	for i := 0; i < 50; i++ {
		t.Run(fmt.Sprintf("run_%d", i), func(t *testing.T) {
			f := newFixture(t, pipeline.NoDelay, nil, nil)
			rec := &statusRecorder{}
			defer f.ctrl.Subscribe(rec.observe)()

			id, err := f.ctrl.Submit(validIntake())
			require.NoError(t, err)
			cancelErr := f.ctrl.Cancel()
			final := f.await(t, id)
			f.ctrl.Close()

			if cancelErr == nil {
				assert.Equal(t, types.StatusCancelled, final.Status)
				assert.Nil(t, final.Result)
			} else {
				assert.True(t, IsInvalidState(cancelErr))
				assert.Equal(t, types.StatusCompleted, final.Status)
			}

			snaps := rec.forSession(id)
			for i, s := range snaps {
				if s.Status == types.StatusCancelled {
					assert.Len(t, snaps, i+1, "nothing may be published after cancellation")
					break
				}
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyReplace, p)

	p, err = ParsePolicy(" Reject ")
	require.NoError(t, err)
	assert.Equal(t, PolicyReject, p)

	_, err = ParsePolicy("queue")
	assert.ErrorContains(t, err, "unknown submit policy")
}

func TestInvalidStateError_Message(t *testing.T) {
	assert.Equal(t, "cannot cancel: no current session", (&InvalidStateError{Op: "cancel"}).Error())
	assert.Equal(t, "cannot export: session is processing",
		(&InvalidStateError{Op: "export", Status: types.StatusProcessing}).Error())
}
