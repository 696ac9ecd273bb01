package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/travelbuddy-ai/buddy-core/core/frames"
)

// userAggregator commits final transcripts to the conversation as user
// turns and forwards them downstream to trigger a response. Partial
// transcripts never touch the history; they are forwarded for observers
// only.
type userAggregator struct {
	conversation *Conversation
	emit         func(frames.Frame)

	pendingPartial string
}

func newUserAggregator(conversation *Conversation) *userAggregator {
	return &userAggregator{conversation: conversation}
}

func (a *userAggregator) Name() string { return "user-aggregator" }

func (a *userAggregator) Accepts() []frames.Kind {
	return []frames.Kind{frames.KindTranscriptPartial, frames.KindTranscriptFinal}
}

func (a *userAggregator) Emits() []frames.Kind {
	return []frames.Kind{frames.KindTranscriptPartial, frames.KindTranscriptFinal}
}

func (a *userAggregator) Attach(emit func(frames.Frame)) { a.emit = emit }

func (a *userAggregator) Process(_ context.Context, frame frames.Frame) error {
	switch frame := frame.(type) {
	case frames.TranscriptPartial:
		a.pendingPartial = frame.Text
		a.emit(frame)

	case frames.TranscriptFinal:
		text := strings.TrimSpace(frame.Text)
		if text == "" {
			return nil
		}
		a.pendingPartial = ""
		a.conversation.AppendUser(text)
		a.emit(frames.TranscriptFinal{Text: text})

	default:
		return fmt.Errorf("unexpected frame type %T", frame)
	}
	return nil
}

func (a *userAggregator) Control(context.Context, frames.Frame) {}
