package automation

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes a failed action.
type ErrorKind string

const (
	KindInvalidCommand   ErrorKind = "InvalidCommand"
	KindMissingParameter ErrorKind = "MissingParameter"
	KindTargetNotFound   ErrorKind = "TargetNotFound"
	KindActionTimeout    ErrorKind = "ActionTimeout"
	// KindArtifactWrite is a local failure storing what an action captured.
	KindArtifactWrite ErrorKind = "ArtifactWrite"
)

var (
	ErrInvalidCommand   = errors.New("invalid command")
	ErrMissingParameter = errors.New("missing parameter")
	ErrTargetNotFound   = errors.New("target not found")
	ErrActionTimeout    = errors.New("action timed out")
	ErrArtifactWrite    = errors.New("artifact write failed")
	ErrSessionClosed    = errors.New("automation session closed")
)

// ActionError carries the action and selector that failed. It matches the
// sentinel of its kind with errors.Is and unwraps to the driver error.
type ActionError struct {
	Kind     ErrorKind
	Action   Action
	Selector string
	Detail   string
	Err      error
}

func (e *ActionError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Action)
	if e.Selector != "" {
		msg += " " + e.Selector
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ActionError) Unwrap() error { return e.Err }

func (e *ActionError) Is(target error) bool {
	switch e.Kind {
	case KindInvalidCommand:
		return target == ErrInvalidCommand
	case KindMissingParameter:
		return target == ErrMissingParameter
	case KindTargetNotFound:
		return target == ErrTargetNotFound
	case KindActionTimeout:
		return target == ErrActionTimeout
	case KindArtifactWrite:
		return target == ErrArtifactWrite
	}
	return false
}

func missing(action Action, param string) error {
	return &ActionError{Kind: KindMissingParameter, Action: action, Detail: param + " is required"}
}
