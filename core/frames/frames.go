// Package frames defines the typed units of data and control that flow
// through a session pipeline.
//
// Data frames travel stage to stage in emission order. Control frames
// (speech boundaries, interruption, end of session) are delivered
// out-of-band to every stage so no stage has to drain queued data before
// reacting.
package frames

type Kind string

const (
	KindAudio             Kind = "audio"
	KindTranscriptPartial Kind = "transcript.partial"
	KindTranscriptFinal   Kind = "transcript.final"
	KindLLMTextDelta      Kind = "llm.text_delta"
	KindToolCallRequest   Kind = "tool_call.request"
	KindToolCallResult    Kind = "tool_call.result"
	KindSynthesisChunk    Kind = "synthesis.chunk"
	KindTurnEnded         Kind = "llm.turn_ended"
	KindSpeechStarted     Kind = "control.speech_started"
	KindSpeechStopped     Kind = "control.speech_stopped"
	KindInterrupt         Kind = "control.interrupt"
	KindEndOfSession      Kind = "control.end_of_session"
)

// Frame is a single unit flowing through the pipeline. Frames are immutable
// once emitted; a stage that needs to change a payload emits a new frame.
type Frame interface {
	Kind() Kind
	// IsControl reports whether the frame is delivered out-of-band to every
	// stage instead of through the ordered data queues.
	IsControl() bool
}

type dataFrame struct{}

func (dataFrame) IsControl() bool { return false }

type controlFrame struct{}

func (controlFrame) IsControl() bool { return true }

// Audio carries decoded PCM bytes at a declared sample rate.
type Audio struct {
	dataFrame
	Bytes      []byte
	SampleRate int
}

func (Audio) Kind() Kind { return KindAudio }

// TranscriptPartial is a low-latency transcript that may still be revised.
type TranscriptPartial struct {
	dataFrame
	Text string
}

func (TranscriptPartial) Kind() Kind { return KindTranscriptPartial }

// TranscriptFinal is the single, terminal transcript for one utterance.
type TranscriptFinal struct {
	dataFrame
	Text string
}

func (TranscriptFinal) Kind() Kind { return KindTranscriptFinal }

// LLMTextDelta is one streamed piece of assistant response text. Turn
// identifies the assistant turn the delta belongs to, so deltas of an
// interrupted turn still sitting in a queue can be dropped downstream.
type LLMTextDelta struct {
	dataFrame
	Text string
	Turn uint64
}

func (LLMTextDelta) Kind() Kind { return KindLLMTextDelta }

// ToolCallRequest is the model asking for an external capability.
type ToolCallRequest struct {
	dataFrame
	ID        string
	Name      string
	Arguments string
}

func (ToolCallRequest) Kind() Kind { return KindToolCallRequest }

// ToolCallResult carries the single outcome of a dispatched tool call,
// success text or a human-readable error.
type ToolCallResult struct {
	dataFrame
	ID   string
	Text string
}

func (ToolCallResult) Kind() Kind { return KindToolCallResult }

// TurnEnded marks the end of one complete assistant response, after any
// tool calls have resolved. It travels in-band so downstream stages see it
// after the last text delta of the turn.
type TurnEnded struct {
	dataFrame
	Turn uint64
}

func (TurnEnded) Kind() Kind { return KindTurnEnded }

// SynthesisChunk is synthesized speech audio at the output sample rate.
// Turn carries the stamp of the assistant turn or standalone utterance the
// audio belongs to.
type SynthesisChunk struct {
	dataFrame
	Audio []byte
	Turn  uint64
}

func (SynthesisChunk) Kind() Kind { return KindSynthesisChunk }

type SpeechStarted struct{ controlFrame }

func (SpeechStarted) Kind() Kind { return KindSpeechStarted }

type SpeechStopped struct{ controlFrame }

func (SpeechStopped) Kind() Kind { return KindSpeechStopped }

// Interrupt is raised when user speech is detected while the assistant is
// speaking. It cancels cancellable in-flight work only.
type Interrupt struct{ controlFrame }

func (Interrupt) Kind() Kind { return KindInterrupt }

type EndOfSession struct{ controlFrame }

func (EndOfSession) Kind() Kind { return KindEndOfSession }
