package research

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/candidate-research/internal/types"
)

// InvalidStateError is returned when a command is issued in a state that forbids it.
// No mutation was made.
type InvalidStateError struct {
	Op     string
	Status types.Status // Empty when there is no current session
}

func (e *InvalidStateError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("cannot %s: no current session", e.Op)
	}
	return fmt.Sprintf("cannot %s: session is %s", e.Op, e.Status)
}

// IsInvalidState reports whether err is or wraps an *InvalidStateError
func IsInvalidState(err error) bool {
	var ise *InvalidStateError
	return errors.As(err, &ise)
}

// ErrClosed is returned by Submit after Close
var ErrClosed = errors.New("research controller is closed")

// ErrDiscarded is returned by Await when the awaited session was replaced or restarted away
var ErrDiscarded = errors.New("session was discarded before it finished")

// SubmitPolicy decides what Submit does while another session is still active
type SubmitPolicy string

// Submit policies
const (
	// PolicyReplace cancels and discards the active session
	PolicyReplace SubmitPolicy = "replace"
	// PolicyReject refuses the new submission with an InvalidStateError
	PolicyReject SubmitPolicy = "reject"
)

// ParsePolicy maps a config value to a SubmitPolicy. Empty means PolicyReplace.
func ParsePolicy(s string) (SubmitPolicy, error) {
	switch p := SubmitPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyReplace, nil
	case PolicyReplace, PolicyReject:
		return p, nil
	default:
		return "", fmt.Errorf("unknown submit policy %q (expected replace or reject)", s)
	}
}
