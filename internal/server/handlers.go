package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/candidate-research/internal/research"
	"github.com/jonathan/candidate-research/internal/types"
)

// SubmitRequest represents the request body for POST /session
type SubmitRequest struct {
	ProfileReference   string             `json:"profile_reference"`
	JobDescriptionText string             `json:"job_description_text"`
	Notes              string             `json:"notes,omitempty"`
	Attachment         *AttachmentRequest `json:"attachment,omitempty"`
}

// AttachmentRequest carries an uploaded document. Data is base64 in JSON.
type AttachmentRequest struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// SubmitResponse represents the response for POST /session
type SubmitResponse struct {
	SessionID string       `json:"session_id"`
	Status    types.Status `json:"status"`
}

// Intake converts the request into the controller's intake
func (req SubmitRequest) Intake() types.Intake {
	in := types.Intake{
		ProfileReference:   req.ProfileReference,
		JobDescriptionText: req.JobDescriptionText,
		Notes:              req.Notes,
	}
	if req.Attachment != nil {
		in.Attachment = &types.Attachment{
			Name:     req.Attachment.Name,
			MimeType: req.Attachment.MimeType,
			Bytes:    req.Attachment.Data,
		}
	}
	return in
}

// handleSubmit starts a new research session
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.jsonResponse(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		s.badRequest(w, "Invalid request body: "+err.Error())
		return
	}

	id, err := s.ctrl.Submit(req.Intake())
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	status := types.StatusProcessing
	if v := s.ctrl.View(); v.Session != nil && v.Session.ID == id {
		status = v.Session.Status
	}
	s.jsonResponse(w, http.StatusAccepted, SubmitResponse{SessionID: id, Status: status})
}

// handleView returns the current view state
func (s *Server) handleView(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.ctrl.View())
}

func (s *Server) handleCancel(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctrl.Cancel(); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.ctrl.View())
}

func (s *Server) handleRestart(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Restart()
	s.jsonResponse(w, http.StatusOK, s.ctrl.View())
}

func (s *Server) handleMinimize(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Minimize()
	s.jsonResponse(w, http.StatusOK, s.ctrl.View())
}

func (s *Server) handleRestore(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Restore()
	s.jsonResponse(w, http.StatusOK, s.ctrl.View())
}

// handleExport downloads the completed result in the requested format
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	payload, err := s.ctrl.Export(r.PathValue("format"))
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	w.Header().Set("Content-Type", payload.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", payload.Filename))
	w.Header().Set("Content-Length", fmt.Sprint(len(payload.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload.Data); err != nil {
		s.log.Warn("Error writing export", zap.Error(err))
	}
}

// viewLatch keeps only the newest view so a slow client never blocks the controller
type viewLatch struct {
	mu     sync.Mutex
	latest *research.ViewState
	ready  chan struct{}
}

func newViewLatch() *viewLatch {
	return &viewLatch{ready: make(chan struct{}, 1)}
}

func (l *viewLatch) put(v research.ViewState) {
	l.mu.Lock()
	l.latest = &v
	l.mu.Unlock()
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

// seed sets v unless the subscription already delivered a newer view
func (l *viewLatch) seed(v research.ViewState) {
	l.mu.Lock()
	if l.latest == nil {
		l.latest = &v
	}
	l.mu.Unlock()
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func (l *viewLatch) take() (research.ViewState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.latest == nil {
		return research.ViewState{}, false
	}
	v := *l.latest
	l.latest = nil
	return v, true
}

// handleEvents streams view changes over SSE until the client goes away.
// Intermediate views may be skipped when the client reads slowly; the newest
// view is always delivered.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	latch := newViewLatch()
	unsubscribe := s.ctrl.Subscribe(latch.put)
	defer unsubscribe()

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	log := s.log.With(zap.String("remote", r.RemoteAddr))
	log.Debug("Event stream opened")
	defer log.Debug("Event stream closed")

	latch.seed(s.ctrl.View())

	var keepAlive <-chan time.Time
	if s.cfg.KeepAlive > 0 {
		ticker := time.NewTicker(s.cfg.KeepAlive)
		defer ticker.Stop()
		keepAlive = ticker.C
	}

	completed := ""
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive:
			if err := sse.WriteComment("keep-alive"); err != nil {
				return
			}
		case <-latch.ready:
			v, ok := latch.take()
			if !ok {
				continue
			}
			if err := sse.WriteEvent(EventView, v); err != nil {
				log.Debug("Error writing SSE event", zap.Error(err))
				return
			}
			if v.Session != nil && v.Session.Status.Terminal() && completed != v.Session.ID {
				completed = v.Session.ID
				if e := v.Session.Error; e != nil {
					sse.WriteError(fmt.Sprintf("%s: %s", e.Stage, e.Message))
				}
				if err := sse.WriteComplete(v.Session.ID, string(v.Session.Status)); err != nil {
					return
				}
			}
		}
	}
}
