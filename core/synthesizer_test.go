package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/travelbuddy-ai/buddy-core/core/frames"
	"github.com/travelbuddy-ai/buddy-core/core/texttospeech"
)

type stubGenerator struct {
	options texttospeech.TextToSpeechOptions

	// auto confirms marks immediately, as if the provider kept up with the
	// text in real time
	auto bool

	sent      []string
	marks     int
	ended     bool
	cancelled bool

	// pending segments awaiting a mark confirmation
	pending []string
}

func (g *stubGenerator) SendText(text string) error {
	g.sent = append(g.sent, text)
	if len(g.pending) == 0 {
		g.pending = append(g.pending, "")
	}
	g.pending[len(g.pending)-1] += text
	return nil
}

func (g *stubGenerator) Mark() error {
	g.marks++
	g.pending = append(g.pending, "")
	if g.auto {
		g.confirmMark()
	}
	return nil
}

func (g *stubGenerator) EndOfText() error {
	g.ended = true
	if g.auto {
		for len(g.pending) > 0 {
			g.confirmMark()
		}
		if g.options.SpeechEndedCallback != nil {
			g.options.SpeechEndedCallback(texttospeech.SpeechEndedReport{})
		}
	}
	return nil
}

func (g *stubGenerator) Cancel() error {
	g.cancelled = true
	return nil
}

func (g *stubGenerator) Close() error { return nil }

// confirmMark simulates the provider flushing speech up to the next mark.
func (g *stubGenerator) confirmMark() {
	if len(g.pending) == 0 {
		return
	}
	segment := g.pending[0]
	g.pending = g.pending[1:]
	if g.options.SpeechAudioCallback != nil {
		g.options.SpeechAudioCallback([]byte{1, 2, 3})
	}
	if g.options.SpeechMarkCallback != nil {
		g.options.SpeechMarkCallback(segment)
	}
}

type stubTTSClient struct {
	auto bool
	// fail rejects every generator, as if the provider were down
	fail bool

	mu         sync.Mutex
	attempts   int
	generators []*stubGenerator
}

func (c *stubTTSClient) NewSpeechGenerator(_ context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempts++
	if c.fail {
		return nil, fmt.Errorf("synthesis unavailable")
	}

	generator := &stubGenerator{auto: c.auto}
	for _, opt := range opts {
		opt(&generator.options)
	}
	c.generators = append(c.generators, generator)
	return generator, nil
}

func (c *stubTTSClient) generatorAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func newTestSynthesizer() (*speechSynthesizer, *stubTTSClient, *[]frames.Frame, *turnClock) {
	client := &stubTTSClient{}
	clock := &turnClock{}
	synthesizer := newSpeechSynthesizer(client, clock)
	emitted := &[]frames.Frame{}
	synthesizer.Attach(func(frame frames.Frame) {
		*emitted = append(*emitted, frame)
	})
	return synthesizer, client, emitted, clock
}

func TestSynthesizerStreamsTextAndMarksSentences(t *testing.T) {
	synthesizer, client, _, clock := newTestSynthesizer()
	turn := clock.begin()

	_ = synthesizer.Process(context.Background(), frames.LLMTextDelta{Text: "The flight ", Turn: turn})
	_ = synthesizer.Process(context.Background(), frames.LLMTextDelta{Text: "leaves at nine.", Turn: turn})

	if len(client.generators) != 1 {
		t.Fatalf("expected one generator per turn, got %d", len(client.generators))
	}
	generator := client.generators[0]
	if len(generator.sent) != 2 {
		t.Fatalf("expected both deltas sent, got %v", generator.sent)
	}
	if generator.marks != 1 {
		t.Fatalf("expected a mark at the sentence boundary, got %d", generator.marks)
	}

	_ = synthesizer.Process(context.Background(), frames.TurnEnded{Turn: turn})
	if !generator.ended {
		t.Fatalf("expected end of text after the turn ended")
	}
}

func TestSynthesizerEmitsAudioFrames(t *testing.T) {
	synthesizer, client, emitted, clock := newTestSynthesizer()
	turn := clock.begin()

	_ = synthesizer.Process(context.Background(), frames.LLMTextDelta{Text: "Hello.", Turn: turn})
	client.generators[0].confirmMark()

	if len(*emitted) != 1 {
		t.Fatalf("expected one synthesis chunk, got %d frames", len(*emitted))
	}
	chunk, ok := (*emitted)[0].(frames.SynthesisChunk)
	if !ok {
		t.Fatalf("expected a synthesis chunk, got %v", (*emitted)[0].Kind())
	}
	if chunk.Turn != turn {
		t.Fatalf("expected the chunk stamped with its turn, got %d", chunk.Turn)
	}
}

func TestSynthesizerTracksSpokenText(t *testing.T) {
	synthesizer, client, _, clock := newTestSynthesizer()
	turn := clock.begin()

	_ = synthesizer.Process(context.Background(), frames.LLMTextDelta{Text: "The flight leaves at nine.", Turn: turn})
	_ = synthesizer.Process(context.Background(), frames.LLMTextDelta{Text: " It lands at noon.", Turn: turn})

	generator := client.generators[0]
	generator.confirmMark()

	if spoken := synthesizer.SpokenText(); spoken != "The flight leaves at nine." {
		t.Fatalf("expected only confirmed speech tracked, got %q", spoken)
	}
}

func TestSynthesizerInterruptCancelsGenerator(t *testing.T) {
	synthesizer, client, _, clock := newTestSynthesizer()
	turn := clock.begin()

	_ = synthesizer.Process(context.Background(), frames.LLMTextDelta{Text: "Let me check.", Turn: turn})
	synthesizer.Control(context.Background(), frames.Interrupt{})

	if !client.generators[0].cancelled {
		t.Fatalf("expected the generator cancelled on interrupt")
	}

	// the next turn gets a fresh generator and a fresh spoken tracker
	next := clock.begin()
	_ = synthesizer.Process(context.Background(), frames.LLMTextDelta{Text: "Sure.", Turn: next})
	if len(client.generators) != 2 {
		t.Fatalf("expected a new generator after the interrupt, got %d", len(client.generators))
	}
	if spoken := synthesizer.SpokenText(); spoken != "" {
		t.Fatalf("expected the spoken tracker reset, got %q", spoken)
	}
}

func TestSynthesizerDropsStaleDeltasAfterInterrupt(t *testing.T) {
	synthesizer, client, emitted, clock := newTestSynthesizer()
	turn := clock.begin()

	_ = synthesizer.Process(context.Background(), frames.LLMTextDelta{Text: "The flight ", Turn: turn})
	synthesizer.Control(context.Background(), frames.Interrupt{})

	// deltas of the interrupted turn that were still queued behind the
	// interrupt must not be spoken to the caller
	_ = synthesizer.Process(context.Background(), frames.LLMTextDelta{Text: "leaves at nine.", Turn: turn})

	if len(client.generators) != 1 {
		t.Fatalf("expected no generator opened for a stale delta, got %d", len(client.generators))
	}
	if sent := client.generators[0].sent; len(sent) != 1 {
		t.Fatalf("expected the stale delta dropped, got %v", sent)
	}
	if len(*emitted) != 0 {
		t.Fatalf("expected no audio for the interrupted turn, got %v", *emitted)
	}

	// the stale turn marker must not finish a generator either
	_ = synthesizer.Process(context.Background(), frames.TurnEnded{Turn: turn})
	if client.generators[0].ended {
		t.Fatalf("expected no end of text for the interrupted turn")
	}
}

func TestSynthesizerInterruptCancelsStandaloneSpeech(t *testing.T) {
	synthesizer, client, _, _ := newTestSynthesizer()

	if err := synthesizer.Speak(context.Background(), "Hey there!"); err != nil {
		t.Fatalf("expected speak to succeed, got %v", err)
	}
	synthesizer.Control(context.Background(), frames.Interrupt{})

	if !client.generators[0].cancelled {
		t.Fatalf("expected the standalone generator cancelled on interrupt")
	}
}

func TestSynthesizerSpeakUsesStandaloneGenerator(t *testing.T) {
	synthesizer, client, emitted, _ := newTestSynthesizer()

	if err := synthesizer.Speak(context.Background(), "Hey there!"); err != nil {
		t.Fatalf("expected speak to succeed, got %v", err)
	}

	if len(client.generators) != 1 {
		t.Fatalf("expected a dedicated generator, got %d", len(client.generators))
	}
	generator := client.generators[0]
	if len(generator.sent) != 1 || generator.sent[0] != "Hey there!" {
		t.Fatalf("expected the utterance sent verbatim, got %v", generator.sent)
	}
	if !generator.ended {
		t.Fatalf("expected the standalone generator finished")
	}

	generator.confirmMark()
	if len(*emitted) != 1 || (*emitted)[0].Kind() != frames.KindSynthesisChunk {
		t.Fatalf("expected welcome audio emitted, got %v", *emitted)
	}
	if spoken := synthesizer.SpokenText(); spoken != "" {
		t.Fatalf("expected standalone speech to not touch the spoken tracker, got %q", spoken)
	}
}
