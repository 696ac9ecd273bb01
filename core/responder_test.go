package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/travelbuddy-ai/buddy-core/core/frames"
	"github.com/travelbuddy-ai/buddy-core/core/llms"
	"github.com/travelbuddy-ai/buddy-core/core/tools"
)

type stubContentChunk struct{ text string }

func (stubContentChunk) FinishReason() *string { return nil }
func (c stubContentChunk) Content() string     { return c.text }

type stubToolCallChunk struct{ call llms.ToolCall }

func (stubToolCallChunk) FinishReason() *string     { return nil }
func (c stubToolCallChunk) ToolCall() llms.ToolCall { return c.call }

type stubStream struct {
	chunks []llms.StreamChunk
	err    error
	// afterChunk runs after each yielded chunk.
	afterChunk func(index int)
}

func (s stubStream) Chunks(context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for i, chunk := range s.chunks {
			if !yield(chunk, nil) {
				return
			}
			if s.afterChunk != nil {
				s.afterChunk(i)
			}
		}
		if s.err != nil {
			yield(nil, s.err)
		}
	}
}

type stubLLM struct {
	streams   []stubStream
	calls     int
	snapshots [][]llms.Message
}

func (l *stubLLM) Generate(_ context.Context, conversation []llms.Message, _ []llms.Tool) llms.Stream {
	l.snapshots = append(l.snapshots, conversation)
	stream := l.streams[l.calls]
	l.calls++
	return stream
}

func newTestResponder(client LLM, dispatcher *tools.Dispatcher) (*responder, *Conversation, *[]frames.Frame) {
	conversation := NewConversation("system")
	if dispatcher == nil {
		dispatcher = tools.NewDispatcher(nil)
	}
	r := newResponder(client, dispatcher, conversation, &turnClock{})
	emitted := &[]frames.Frame{}
	r.Attach(func(frame frames.Frame) {
		*emitted = append(*emitted, frame)
	})
	return r, conversation, emitted
}

func TestResponderStreamsAndCommitsTurn(t *testing.T) {
	client := &stubLLM{streams: []stubStream{{
		chunks: []llms.StreamChunk{
			stubContentChunk{text: "The flight "},
			stubContentChunk{text: "leaves at nine."},
		},
	}}}
	r, conversation, emitted := newTestResponder(client, nil)

	if err := r.Process(context.Background(), frames.TranscriptFinal{Text: "when does it leave"}); err != nil {
		t.Fatalf("expected turn to succeed, got %v", err)
	}

	deltas := []string{}
	sawTurnEnded := false
	for _, frame := range *emitted {
		switch frame := frame.(type) {
		case frames.LLMTextDelta:
			deltas = append(deltas, frame.Text)
			if frame.Turn == 0 {
				t.Fatalf("expected deltas stamped with their turn")
			}
		case frames.TurnEnded:
			sawTurnEnded = true
			if frame.Turn == 0 {
				t.Fatalf("expected the turn marker stamped with its turn")
			}
		}
	}
	if len(deltas) != 2 || deltas[0] != "The flight " {
		t.Fatalf("expected streamed deltas in order, got %v", deltas)
	}
	if !sawTurnEnded {
		t.Fatalf("expected a turn ended frame after the last delta")
	}

	snapshot := conversation.Snapshot()
	last := snapshot[len(snapshot)-1]
	if last.Role != llms.RoleAssistant || last.Content != "The flight leaves at nine." {
		t.Fatalf("expected assembled assistant turn, got %+v", last)
	}
}

func TestResponderResolvesToolCallsBeforeFinishing(t *testing.T) {
	dispatcher := tools.NewDispatcher([]llms.Tool{
		llms.NewTool("search_flights", "", func(context.Context, struct{}) (string, error) {
			return "two options", nil
		}, llms.WithNonCancellable()),
	})
	client := &stubLLM{streams: []stubStream{
		{chunks: []llms.StreamChunk{
			stubToolCallChunk{call: llms.ToolCall{ID: "search_flights-1", Name: "search_flights", Arguments: `{}`}},
		}},
		{chunks: []llms.StreamChunk{
			stubContentChunk{text: "I found two options."},
		}},
	}}
	r, conversation, emitted := newTestResponder(client, dispatcher)

	if err := r.Process(context.Background(), frames.TranscriptFinal{Text: "find flights"}); err != nil {
		t.Fatalf("expected turn to succeed, got %v", err)
	}

	if client.calls != 2 {
		t.Fatalf("expected a second generation after tool results, got %d calls", client.calls)
	}

	resultFrames := 0
	for _, frame := range *emitted {
		if result, ok := frame.(frames.ToolCallResult); ok {
			resultFrames++
			if result.Text != "two options" {
				t.Fatalf("expected tool result text, got %q", result.Text)
			}
		}
	}
	if resultFrames != 1 {
		t.Fatalf("expected exactly one tool result frame, got %d", resultFrames)
	}

	// the second request must already include the tool exchange
	secondRequest := client.snapshots[1]
	var sawToolResult bool
	for i, message := range secondRequest {
		if message.Role == llms.RoleTool {
			sawToolResult = true
			if secondRequest[i-1].Role != llms.RoleAssistant || len(secondRequest[i-1].ToolCalls) == 0 {
				t.Fatalf("expected tool result adjacent to its assistant message")
			}
		}
	}
	if !sawToolResult {
		t.Fatalf("expected the tool result in the follow-up request")
	}

	snapshot := conversation.Snapshot()
	last := snapshot[len(snapshot)-1]
	if last.Content != "I found two options." {
		t.Fatalf("expected final assistant turn committed, got %+v", last)
	}
}

func TestResponderInterruptedMidStreamCommitsSpokenText(t *testing.T) {
	client := &stubLLM{}
	r, conversation, emitted := newTestResponder(client, nil)
	r.spokenText = func() string { return "The flight" }

	client.streams = []stubStream{{
		chunks: []llms.StreamChunk{
			stubContentChunk{text: "The flight "},
			stubContentChunk{text: "leaves at nine."},
		},
		afterChunk: func(index int) {
			if index == 0 {
				r.Control(context.Background(), frames.Interrupt{})
			}
		},
	}}

	if err := r.Process(context.Background(), frames.TranscriptFinal{Text: "when"}); err != nil {
		t.Fatalf("expected an interrupted turn to end cleanly, got %v", err)
	}

	for _, frame := range *emitted {
		if frame.Kind() == frames.KindTurnEnded {
			t.Fatalf("expected no turn ended frame on an interrupted turn")
		}
	}

	snapshot := conversation.Snapshot()
	last := snapshot[len(snapshot)-1]
	if last.Role != llms.RoleAssistant || last.Content != "The flight" {
		t.Fatalf("expected only the spoken text committed, got %+v", last)
	}
}

func TestResponderInterruptedDuringToolCallAbandonsTurn(t *testing.T) {
	var r *responder
	dispatcher := tools.NewDispatcher([]llms.Tool{
		llms.NewTool("book_flight", "", func(context.Context, struct{}) (string, error) {
			r.Control(context.Background(), frames.Interrupt{})
			return "booked", nil
		}, llms.WithNonCancellable()),
	})
	client := &stubLLM{streams: []stubStream{
		{chunks: []llms.StreamChunk{
			stubToolCallChunk{call: llms.ToolCall{ID: "book_flight-1", Name: "book_flight", Arguments: `{}`}},
		}},
	}}

	var conversation *Conversation
	r, conversation, _ = newTestResponder(client, dispatcher)

	if err := r.Process(context.Background(), frames.TranscriptFinal{Text: "book it"}); err != nil {
		t.Fatalf("expected an interrupted turn to end cleanly, got %v", err)
	}

	if client.calls != 1 {
		t.Fatalf("expected no follow-up generation after the interruption, got %d calls", client.calls)
	}

	snapshot := conversation.Snapshot()
	last := snapshot[len(snapshot)-1]
	if last.Role != llms.RoleTool || last.Content != "booked" {
		t.Fatalf("expected the booking result committed before abandoning, got %+v", last)
	}
}

func TestResponderReportsBackendFailure(t *testing.T) {
	client := &stubLLM{streams: []stubStream{{
		err: fmt.Errorf("connection reset"),
	}}}
	r, _, _ := newTestResponder(client, nil)

	err := r.Process(context.Background(), frames.TranscriptFinal{Text: "hello"})
	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected a backend error, got %v", err)
	}
	if backendErr.Service != "llm" {
		t.Fatalf("expected the llm service flagged, got %q", backendErr.Service)
	}
}
