package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/travelbuddy-ai/buddy-core/core/frames"
	"github.com/travelbuddy-ai/buddy-core/core/texttospeech"
)

// TextToSpeech is the synthesis client contract the pipeline consumes.
type TextToSpeech interface {
	NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error)
}

// speechSynthesizer streams assistant text into a speech generator and
// emits the produced audio. One generator lives per assistant turn; marks
// placed at sentence boundaries confirm which text the caller has actually
// heard, which is what an interrupted turn commits to the history.
//
// Deltas of a discarded turn that were still queued when the interruption
// landed are dropped instead of synthesized.
type speechSynthesizer struct {
	client TextToSpeech
	clock  *turnClock

	emit func(frames.Frame)
	// onSpeaking reports whether assistant speech is flowing to the caller.
	onSpeaking func(bool)

	mu         sync.Mutex
	generator  texttospeech.SpeechGenerator
	turn       uint64
	spoken     strings.Builder
	standalone []texttospeech.SpeechGenerator
}

func newSpeechSynthesizer(client TextToSpeech, clock *turnClock) *speechSynthesizer {
	return &speechSynthesizer{client: client, clock: clock, onSpeaking: func(bool) {}}
}

func (s *speechSynthesizer) Name() string { return "synthesizer" }

func (s *speechSynthesizer) Accepts() []frames.Kind {
	return []frames.Kind{frames.KindLLMTextDelta}
}

func (s *speechSynthesizer) Forwards() []frames.Kind {
	return []frames.Kind{frames.KindTurnEnded}
}

func (s *speechSynthesizer) Emits() []frames.Kind {
	return []frames.Kind{frames.KindSynthesisChunk}
}

func (s *speechSynthesizer) Attach(emit func(frames.Frame)) { s.emit = emit }

func (s *speechSynthesizer) Process(ctx context.Context, frame frames.Frame) error {
	switch frame := frame.(type) {
	case frames.LLMTextDelta:
		if s.clock.stale(frame.Turn) {
			return nil
		}
		generator, err := s.ensureGenerator(ctx, frame.Turn)
		if err != nil {
			return &BackendError{Service: "text-to-speech", Err: err}
		}
		if err := generator.SendText(frame.Text); err != nil {
			return &BackendError{Service: "text-to-speech", Err: err}
		}
		if endsSentence(frame.Text) {
			if err := generator.Mark(); err != nil {
				return &BackendError{Service: "text-to-speech", Err: err}
			}
		}

	case frames.TurnEnded:
		if s.clock.stale(frame.Turn) {
			return nil
		}
		s.mu.Lock()
		generator := s.generator
		s.mu.Unlock()
		if generator != nil {
			if err := generator.EndOfText(); err != nil {
				return &BackendError{Service: "text-to-speech", Err: err}
			}
		}

	default:
		return fmt.Errorf("unexpected frame type %T", frame)
	}
	return nil
}

func (s *speechSynthesizer) Control(ctx context.Context, frame frames.Frame) {
	switch frame.Kind() {
	case frames.KindInterrupt, frames.KindEndOfSession:
		s.clock.discard()

		s.mu.Lock()
		generator := s.generator
		s.generator = nil
		standalone := s.standalone
		s.standalone = nil
		s.mu.Unlock()

		if generator != nil {
			_ = generator.Cancel()
		}
		for _, g := range standalone {
			_ = g.Cancel()
		}
		s.onSpeaking(false)
	}
}

// Speak synthesizes a standalone utterance outside any model turn, used
// for the welcome message and failure apologies. The utterance does not
// touch the spoken tracker but is still interruptible like any turn.
func (s *speechSynthesizer) Speak(ctx context.Context, text string) error {
	turn := s.clock.begin()

	var generator texttospeech.SpeechGenerator
	var err error
	generator, err = s.client.NewSpeechGenerator(ctx,
		texttospeech.WithSpeechAudioCallback(func(audio []byte) {
			s.onSpeaking(true)
			s.emit(frames.SynthesisChunk{Audio: audio, Turn: turn})
		}),
		texttospeech.WithSpeechEndedCallback(func(texttospeech.SpeechEndedReport) {
			s.mu.Lock()
			if i := slices.Index(s.standalone, generator); i >= 0 {
				s.standalone = slices.Delete(s.standalone, i, i+1)
			}
			s.mu.Unlock()
			s.onSpeaking(false)
		}),
	)
	if err != nil {
		return &BackendError{Service: "text-to-speech", Err: err}
	}

	s.mu.Lock()
	s.standalone = append(s.standalone, generator)
	s.mu.Unlock()

	if err := generator.SendText(text); err != nil {
		return &BackendError{Service: "text-to-speech", Err: err}
	}
	if err := generator.Mark(); err != nil {
		return &BackendError{Service: "text-to-speech", Err: err}
	}
	return generator.EndOfText()
}

// SpokenText reports the confirmed-spoken text of the current turn.
func (s *speechSynthesizer) SpokenText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spoken.String()
}

func (s *speechSynthesizer) currentTurn() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// ensureGenerator lazily opens the per-turn generator. Only the stage
// goroutine calls it, so the creation itself can run unlocked and only the
// handoff of the generator field is guarded against the client callbacks.
func (s *speechSynthesizer) ensureGenerator(ctx context.Context, turn uint64) (texttospeech.SpeechGenerator, error) {
	s.mu.Lock()
	if s.generator != nil {
		s.turn = turn
		generator := s.generator
		s.mu.Unlock()
		return generator, nil
	}
	s.mu.Unlock()

	var generator texttospeech.SpeechGenerator
	var err error
	generator, err = s.client.NewSpeechGenerator(ctx,
		texttospeech.WithSpeechAudioCallback(func(audio []byte) {
			s.onSpeaking(true)
			s.emit(frames.SynthesisChunk{Audio: audio, Turn: s.currentTurn()})
		}),
		texttospeech.WithSpeechMarkCallback(func(segment string) {
			s.mu.Lock()
			s.spoken.WriteString(segment)
			s.mu.Unlock()
		}),
		texttospeech.WithSpeechEndedCallback(func(texttospeech.SpeechEndedReport) {
			s.mu.Lock()
			// a late report from a cancelled turn must not clear the
			// generator the next turn is already using
			if s.generator == generator {
				s.generator = nil
			}
			s.mu.Unlock()
			s.onSpeaking(false)
		}),
		texttospeech.WithErrorCallback(func(err error) {
			logger.WarnContext(ctx, "Speech generation error", "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.spoken.Reset()
	s.generator = generator
	s.turn = turn
	s.mu.Unlock()
	return generator, nil
}

func endsSentence(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?', ':', '\n':
		return true
	}
	return false
}
