package pipeline

import (
	"context"

	"github.com/travelbuddy-ai/buddy-core/core/frames"
)

// outputStage is the pipeline tail. It hands frames to the transport's
// send function; everything the transport cannot use it simply ignores.
// Synthesis and turn markers stamped with a discarded turn are dropped so
// interrupted speech never reaches the caller's playback buffer.
type outputStage struct {
	send  func(frames.Frame) error
	clock *turnClock
}

func newOutputStage(send func(frames.Frame) error, clock *turnClock) *outputStage {
	if send == nil {
		send = func(frames.Frame) error { return nil }
	}
	return &outputStage{send: send, clock: clock}
}

func (o *outputStage) Name() string { return "output" }

func (o *outputStage) Accepts() []frames.Kind {
	return []frames.Kind{
		frames.KindSynthesisChunk,
		frames.KindTranscriptPartial,
		frames.KindTranscriptFinal,
		frames.KindToolCallRequest,
		frames.KindToolCallResult,
		frames.KindTurnEnded,
	}
}

func (o *outputStage) Emits() []frames.Kind { return nil }

func (o *outputStage) Attach(func(frames.Frame)) {}

func (o *outputStage) Process(_ context.Context, frame frames.Frame) error {
	switch frame := frame.(type) {
	case frames.SynthesisChunk:
		if o.clock.stale(frame.Turn) {
			return nil
		}
	case frames.TurnEnded:
		if o.clock.stale(frame.Turn) {
			return nil
		}
	}

	if err := o.send(frame); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// Control forwards interruptions so the client can flush audio it has
// already buffered for playback.
func (o *outputStage) Control(ctx context.Context, frame frames.Frame) {
	if frame.Kind() != frames.KindInterrupt {
		return
	}
	if err := o.send(frame); err != nil {
		logger.WarnContext(ctx, "Failed to forward interrupt to transport", "error", err)
	}
}
