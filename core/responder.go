package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/travelbuddy-ai/buddy-core/core/frames"
	"github.com/travelbuddy-ai/buddy-core/core/llms"
	"github.com/travelbuddy-ai/buddy-core/core/tools"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// LLM is the model client contract the pipeline consumes.
type LLM interface {
	Generate(ctx context.Context, conversation []llms.Message, tools []llms.Tool) llms.Stream
}

// responder turns a final transcript into one assistant response. It runs
// the model, streams text deltas downstream, resolves any requested tool
// calls and commits the completed turn to the conversation.
//
// An interruption cancels the active turn. Whatever the caller actually
// heard is still committed as the assistant turn, so the model's next
// response is grounded in what was said, not in what was generated. Tool
// calls already dispatched always resolve to exactly one result, but an
// interrupted turn is abandoned after the results land rather than
// re-prompting the model.
type responder struct {
	client       LLM
	dispatcher   *tools.Dispatcher
	conversation *Conversation
	clock        *turnClock

	emit func(frames.Frame)

	// spokenText reports how much of the current turn has actually been
	// played to the caller. Wired by the session to the synthesizer.
	spokenText func() string

	mu         sync.Mutex
	cancelTurn context.CancelFunc
}

func newResponder(client LLM, dispatcher *tools.Dispatcher, conversation *Conversation, clock *turnClock) *responder {
	return &responder{
		client:       client,
		dispatcher:   dispatcher,
		conversation: conversation,
		clock:        clock,
		spokenText:   func() string { return "" },
	}
}

func (r *responder) Name() string { return "responder" }

func (r *responder) Accepts() []frames.Kind {
	return []frames.Kind{frames.KindTranscriptFinal}
}

func (r *responder) Emits() []frames.Kind {
	return []frames.Kind{
		frames.KindLLMTextDelta,
		frames.KindToolCallRequest,
		frames.KindToolCallResult,
		frames.KindTurnEnded,
	}
}

func (r *responder) Attach(emit func(frames.Frame)) { r.emit = emit }

func (r *responder) Process(ctx context.Context, frame frames.Frame) error {
	transcript, ok := frame.(frames.TranscriptFinal)
	if !ok {
		return fmt.Errorf("unexpected frame type %T", frame)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancelTurn = cancel
	r.mu.Unlock()
	defer func() {
		cancel()
		r.mu.Lock()
		r.cancelTurn = nil
		r.mu.Unlock()
	}()

	return r.runTurn(ctx, transcript.Text)
}

func (r *responder) Control(_ context.Context, frame frames.Frame) {
	switch frame.Kind() {
	case frames.KindInterrupt, frames.KindEndOfSession:
		// Mark before cancelling so a delta racing the cancellation is
		// already stale when it reaches the synthesizer.
		r.clock.discard()
		r.mu.Lock()
		if r.cancelTurn != nil {
			r.cancelTurn()
		}
		r.mu.Unlock()
	}
}

func (r *responder) runTurn(ctx context.Context, transcript string) error {
	ctx, span := tracer.Start(ctx, "respond to transcript")
	defer span.End()
	span.SetAttributes(attribute.Int("conversation.length", r.conversation.Len()))

	turn := r.clock.begin()
	for {
		stream := r.client.Generate(ctx, r.conversation.Snapshot(), r.dispatcher.Tools())

		var message strings.Builder
		toolCalls := []llms.ToolCall{}
		for chunk, err := range stream.Chunks(ctx) {
			if err != nil {
				if ctx.Err() != nil {
					r.commitInterrupted(&message)
					return nil
				}
				err = fmt.Errorf("failed to stream llm response: %w", err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return &BackendError{Service: "llm", Err: err}
			}

			if ctx.Err() != nil {
				r.commitInterrupted(&message)
				return nil
			}

			switch chunk := chunk.(type) {
			case llms.StreamContentChunk:
				message.WriteString(chunk.Content())
				r.emit(frames.LLMTextDelta{Text: chunk.Content(), Turn: turn})

			case llms.StreamToolCallChunk:
				toolCalls = append(toolCalls, chunk.ToolCall())
			}
		}

		if len(toolCalls) == 0 {
			if ctx.Err() != nil {
				r.commitInterrupted(&message)
				return nil
			}
			r.conversation.AppendAssistant(message.String())
			r.emit(frames.TurnEnded{Turn: turn})
			return nil
		}

		r.conversation.AppendAssistantToolCalls(message.String(), toolCalls)
		for _, toolCall := range toolCalls {
			r.emit(frames.ToolCallRequest{
				ID:        toolCall.ID,
				Name:      toolCall.Name,
				Arguments: toolCall.Arguments,
			})

			result := r.dispatcher.Dispatch(ctx, toolCall)
			r.conversation.AppendToolResult(toolCall.ID, result)
			r.emit(frames.ToolCallResult{ID: toolCall.ID, Text: result})
		}

		// An interruption that landed while tools were running abandons the
		// turn here. The results are committed, so the model can pick them
		// up on the caller's next utterance.
		if ctx.Err() != nil {
			return nil
		}
	}
}

// commitInterrupted records the part of the response the caller heard.
func (r *responder) commitInterrupted(generated *strings.Builder) {
	spoken := strings.TrimSpace(r.spokenText())
	if spoken == "" && generated.Len() > 0 {
		// Nothing confirmed spoken. Keep the generated text rather than
		// losing the turn entirely.
		spoken = strings.TrimSpace(generated.String())
	}
	r.conversation.AppendAssistant(spoken)
}
