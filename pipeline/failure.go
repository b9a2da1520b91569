package pipeline

import (
	"context"
	"errors"

	"shorts-studio/generate"
)

// FailureKind classifies a failed transition for the user
type FailureKind string

const (
	KindConfiguration FailureKind = "configuration"
	KindBackend       FailureKind = "backend"
	KindMalformed     FailureKind = "malformed"
	KindEmpty         FailureKind = "empty"
	KindInvalid       FailureKind = "invalid"
)

// Failure is the structured, user-facing error recorded on State.LastError
type Failure struct {
	Kind    FailureKind
	Message string
	Detail  string
	err     error
}

func (f *Failure) Error() string {
	if f.Detail != "" && f.Detail != f.Message {
		return f.Message + ": " + f.Detail
	}
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.err
}

var (
	// ErrIllegalTransition means the operation is not allowed at the current stage
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrBusy means another transition is still running
	ErrBusy = errors.New("a transition is already in progress")
	// ErrReset means the run was reset while in flight and its results were dropped
	ErrReset = errors.New("run was reset")
)

func invalid(message string, err error) *Failure {
	return &Failure{Kind: KindInvalid, Message: message, err: err}
}

// classify maps a generation error onto the user-facing taxonomy
func classify(err error) *Failure {
	detail := err.Error()
	switch {
	case errors.Is(err, generate.ErrConfiguration):
		return &Failure{Kind: KindConfiguration, Message: detail, err: err}
	case errors.Is(err, generate.ErrEmptyResult):
		return &Failure{Kind: KindEmpty, Message: "Nothing found. Try a different input.", Detail: detail, err: err}
	case errors.Is(err, generate.ErrMalformedResponse):
		return &Failure{Kind: KindMalformed, Message: "Generation failed. Please try again.", Detail: detail, err: err}
	case errors.Is(err, context.Canceled):
		return &Failure{Kind: KindBackend, Message: "Generation was cancelled", Detail: detail, err: err}
	default:
		return &Failure{Kind: KindBackend, Message: "Something went wrong while talking to the generator", Detail: detail, err: err}
	}
}
