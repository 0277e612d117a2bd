package research

import "github.com/jonathan/candidate-research/internal/types"

// Tab is the view the presentation adapter should render
type Tab string

// Tabs
const (
	TabForm       Tab = "form"
	TabProcessing Tab = "processing"
	TabResults    Tab = "results"
)

// ViewState is the read-only state handed to the presentation adapter.
// Session is a private copy; nil when there is no current session.
type ViewState struct {
	Tab       Tab             `json:"tab"`
	Minimized bool            `json:"minimized"`
	Session   *types.Snapshot `json:"session,omitempty"`
}

// TabFor derives the tab from the session status alone.
// Failed and cancelled sessions go back to the form, which shows the error.
func TabFor(snap *types.Snapshot) Tab {
	if snap == nil {
		return TabForm
	}
	switch snap.Status {
	case types.StatusSubmitted, types.StatusProcessing:
		return TabProcessing
	case types.StatusCompleted:
		return TabResults
	default:
		return TabForm
	}
}
