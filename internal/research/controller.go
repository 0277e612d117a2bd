// Package research owns the current candidate research session and exposes the
// commands the presentation adapter issues against it.
package research

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/candidate-research/internal/export"
	"github.com/jonathan/candidate-research/internal/ingestion"
	"github.com/jonathan/candidate-research/internal/notify"
	"github.com/jonathan/candidate-research/internal/pipeline"
	"github.com/jonathan/candidate-research/internal/types"
)

// Observer receives every view change. It is called synchronously, in commit
// order, while the controller lock is held: it must return quickly and must
// not call back into the controller.
type Observer func(v ViewState)

// Options configures a Controller
type Options struct {
	Driver     *pipeline.Driver // Required
	Rules      types.IntakeRules
	Policy     SubmitPolicy
	Notifier   notify.Sink
	Serializer export.Serializer
	Logger     *zap.Logger
	NewID      func() string
	Clock      func() time.Time
}

// Controller is the sole owner of the current session
type Controller struct {
	opts Options
	log  *zap.Logger

	mu        sync.Mutex
	current   *types.Session
	gen       uint64 // Bumped whenever the current session is replaced or discarded
	version   uint64 // Snapshot version, increases on every session mutation
	cancelRun context.CancelFunc
	minimized bool
	closed    bool
	observers map[int]Observer
	nextObs   int

	runs sync.WaitGroup
}

// New creates a Controller with no current session
func New(opts Options) (*Controller, error) {
	if opts.Driver == nil {
		return nil, fmt.Errorf("pipeline driver is required")
	}
	if opts.Policy == "" {
		opts.Policy = PolicyReplace
	}
	if opts.Policy != PolicyReplace && opts.Policy != PolicyReject {
		return nil, fmt.Errorf("unknown submit policy %q", opts.Policy)
	}
	if opts.Rules.MaxAttachmentBytes == 0 && opts.Rules.AcceptedMimeTypes == nil {
		opts.Rules = types.DefaultIntakeRules()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	if opts.Serializer == nil {
		opts.Serializer = export.Default
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Controller{
		opts:      opts,
		log:       opts.Logger,
		observers: make(map[int]Observer),
	}, nil
}

// Submit validates the intake, replaces any current session and starts the
// pipeline. It returns as soon as the session is Processing.
func (c *Controller) Submit(intake types.Intake) (string, error) {
	in := ingestion.NormalizeIntake(intake)
	if err := types.ValidateIntake(in, c.opts.Rules); err != nil {
		c.log.Info("Intake rejected", zap.Error(err))
		c.notify(notify.Event{Kind: notify.KindSubmit, Err: err})
		return "", err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.notify(notify.Event{Kind: notify.KindSubmit, Err: ErrClosed})
		return "", ErrClosed
	}
	if c.opts.Policy == PolicyReject && c.current != nil && c.current.Status.Active() {
		err := &InvalidStateError{Op: "submit", Status: c.current.Status}
		c.mu.Unlock()
		c.notify(notify.Event{Kind: notify.KindSubmit, Err: err})
		return "", err
	}
	if c.current != nil {
		c.log.Info("Discarding previous session",
			zap.String("session_id", c.current.ID),
			zap.String("status", string(c.current.Status)))
	}
	c.discardLocked()

	now := c.opts.Clock()
	s := types.NewSession(c.opts.NewID(), in, now)
	s.AppendLog(now, fmt.Sprintf("%s: Research submitted", now.Format("15:04:05")))
	c.current = s
	c.publishLocked(true)

	s.Status = types.StatusProcessing
	c.opts.Driver.Prime(s)
	s.AppendLog(now, fmt.Sprintf("%s: Processing started", now.Format("15:04:05")))
	c.publishLocked(true)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelRun = cancel
	t := &tracker{c: c, gen: c.gen}
	log := c.log.With(zap.String("session_id", s.ID))

	c.runs.Add(1)
	go func() {
		defer c.runs.Done()
		defer cancel()
		err := c.opts.Driver.Run(ctx, t)
		switch {
		case err == nil:
			log.Debug("Pipeline finished")
		case errors.Is(err, pipeline.ErrHalted):
			log.Debug("Pipeline halted")
		default:
			log.Debug("Pipeline failed", zap.Error(err))
		}
	}()
	id := s.ID
	c.mu.Unlock()

	log.Info("Research session submitted")
	c.notify(notify.Event{Kind: notify.KindSubmit, SessionID: id})
	return id, nil
}

// Cancel moves an active session to Cancelled. Any stage still in flight is
// discarded when it completes.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return &InvalidStateError{Op: "cancel"}
	}
	if !types.CanTransition(c.current.Status, types.StatusCancelled) {
		return &InvalidStateError{Op: "cancel", Status: c.current.Status}
	}

	now := c.opts.Clock()
	c.current.Status = types.StatusCancelled
	c.current.AppendLog(now, fmt.Sprintf("%s: Research cancelled", now.Format("15:04:05")))
	if c.cancelRun != nil {
		c.cancelRun()
		c.cancelRun = nil
	}
	c.publishLocked(true)

	c.log.Info("Research session cancelled", zap.String("session_id", c.current.ID))
	return nil
}

// Export serializes the result of a completed session.
func (c *Controller) Export(format string) (*export.Payload, error) {
	c.mu.Lock()
	if c.current == nil || c.current.Status != types.StatusCompleted || c.current.Result == nil {
		err := &InvalidStateError{Op: "export"}
		if c.current != nil {
			err.Status = c.current.Status
		}
		c.mu.Unlock()
		c.notify(notify.Event{Kind: notify.KindExport, Format: format, Err: err})
		return nil, err
	}
	doc := export.Document{
		SessionID:        c.current.ID,
		ProfileReference: c.current.Intake.ProfileReference,
		GeneratedAt:      c.opts.Clock(),
		Result:           *c.current.Result.Clone(),
	}
	c.mu.Unlock()

	event := notify.Event{Kind: notify.KindExport, SessionID: doc.SessionID, Format: format, At: doc.GeneratedAt}

	f, err := export.ParseFormat(format)
	if err != nil {
		event.Err = err
		c.notify(event)
		return nil, err
	}

	payload, err := c.opts.Serializer.Serialize(f, doc)
	if err != nil {
		event.Err = err
		c.notify(event)
		return nil, err
	}

	c.notify(event)
	return payload, nil
}

// Restart discards the current session, whatever its state, and returns the
// controller to its initial state.
func (c *Controller) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.log.Info("Research session discarded", zap.String("session_id", c.current.ID))
	}
	c.discardLocked()
	c.minimized = false
	c.publishLocked(false)
}

// Minimize collapses the processing view. The session is untouched.
func (c *Controller) Minimize() {
	c.setMinimized(true)
}

// Restore expands the processing view again
func (c *Controller) Restore() {
	c.setMinimized(false)
}

func (c *Controller) setMinimized(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.minimized == v {
		return
	}
	c.minimized = v
	c.publishLocked(false)
}

// Current returns a snapshot of the current session
func (c *Controller) Current() (types.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return types.Snapshot{}, false
	}
	return c.current.Snapshot(c.version), true
}

// View returns the state the presentation adapter should render
func (c *Controller) View() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Subscribe registers an observer and returns its unsubscribe function.
func (c *Controller) Subscribe(obs Observer) func() {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = obs
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}

// Await blocks until the session with the given id reaches a terminal state
// and returns its final snapshot.
func (c *Controller) Await(ctx context.Context, id string) (types.Snapshot, error) {
	type outcome struct {
		snap types.Snapshot
		err  error
	}
	done := make(chan outcome, 1)
	deliver := func(o outcome) {
		select {
		case done <- o:
		default:
		}
	}

	unsubscribe := c.Subscribe(func(v ViewState) {
		switch {
		case v.Session == nil || v.Session.ID != id:
			deliver(outcome{err: ErrDiscarded})
		case v.Session.Status.Terminal():
			deliver(outcome{snap: *v.Session})
		}
	})
	defer unsubscribe()

	c.mu.Lock()
	switch {
	case c.current == nil || c.current.ID != id:
		deliver(outcome{err: ErrDiscarded})
	case c.current.Status.Terminal():
		deliver(outcome{snap: c.current.Snapshot(c.version)})
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return types.Snapshot{}, ctx.Err()
	case o := <-done:
		return o.snap, o.err
	}
}

// Close discards the current session, refuses further submissions and waits
// for the pipeline goroutine to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	if c.current != nil {
		c.log.Info("Research session discarded on close", zap.String("session_id", c.current.ID))
		c.discardLocked()
		c.publishLocked(false)
	}
	c.mu.Unlock()

	c.runs.Wait()
}

// discardLocked stops the running driver and forgets the current session.
// Pending commits from the old driver fail the generation check.
func (c *Controller) discardLocked() {
	if c.cancelRun != nil {
		c.cancelRun()
		c.cancelRun = nil
	}
	c.current = nil
	c.gen++
}

func (c *Controller) viewLocked() ViewState {
	v := ViewState{Minimized: c.minimized}
	if c.current != nil {
		snap := c.current.Snapshot(c.version)
		v.Session = &snap
	}
	v.Tab = TabFor(v.Session)
	return v
}

// publishLocked hands the current view to every observer. mutated is false for
// presentation-only changes, which keep the snapshot version.
func (c *Controller) publishLocked(mutated bool) {
	if mutated {
		c.version++
	}
	// Each observer gets a private copy
	for _, obs := range c.observers {
		obs(c.viewLocked())
	}
}

func (c *Controller) notify(e notify.Event) {
	if e.At.IsZero() {
		e.At = c.opts.Clock()
	}
	c.opts.Notifier.Notify(e)
}

// tracker is the driver's handle onto one generation of the current session
type tracker struct {
	c   *Controller
	gen uint64
}

func (t *tracker) Commit(mutate func(s *types.Session)) bool {
	c := t.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != t.gen || c.current == nil || c.current.Status != types.StatusProcessing {
		return false
	}
	mutate(c.current)
	c.publishLocked(true)
	return true
}

func (t *tracker) Snapshot() (types.Snapshot, bool) {
	c := t.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != t.gen || c.current == nil {
		return types.Snapshot{}, false
	}
	return c.current.Snapshot(c.version), true
}
