package pipeline

import (
	"fmt"

	"github.com/travelbuddy-ai/buddy-core/core/frames"
)

// TransportError covers failures on the client-facing connection. Sessions
// treat these as fatal for the connection but never for the process.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BackendError covers failures of an upstream service the pipeline depends
// on (speech-to-text, the model, text-to-speech). The session stays alive
// and apologizes to the caller instead of dropping the call.
type BackendError struct {
	Service string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Service, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// ToolError covers failures while executing a model-requested tool call.
// The failure text is surfaced to the model as the tool result, so this
// error only reaches the session for logging.
type ToolError struct {
	Name string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Name, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ProtocolViolation reports a stage emitting a frame kind it never declared.
// This is a programming error in the stage, not a runtime condition.
type ProtocolViolation struct {
	Stage string
	Kind  frames.Kind
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("stage %s emitted undeclared frame kind %s", e.Stage, e.Kind)
}
