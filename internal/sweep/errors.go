package sweep

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition marks a remote state change attempted out of order.
// It always indicates a bug in the runner.
var ErrInvalidTransition = errors.New("invalid remote state transition")

// Stage names a remote lifecycle transition.
type Stage string

const (
	StageStopAll      Stage = "stop-all"
	StageStart        Stage = "start-service"
	StageSetAlgorithm Stage = "set-algorithm"
	StageRun          Stage = "run"
	StageStop         Stage = "stop-service"
)

// TransitionError is a failed lifecycle transition. These are never retried
// and abort the sweep.
type TransitionError struct {
	Stage     Stage
	Service   string
	Algorithm string
	Cause     error
}

func (e *TransitionError) Error() string {
	switch {
	case e.Service == "":
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Cause)
	case e.Algorithm == "":
		return fmt.Sprintf("%s failed for service %s: %v", e.Stage, e.Service, e.Cause)
	default:
		return fmt.Sprintf("%s failed for service %s, algorithm %s: %v", e.Stage, e.Service, e.Algorithm, e.Cause)
	}
}

func (e *TransitionError) Unwrap() error { return e.Cause }
