package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/travelbuddy-ai/buddy-core/core/audio"
	"github.com/travelbuddy-ai/buddy-core/core/frames"
	"github.com/travelbuddy-ai/buddy-core/core/llms"
	"github.com/travelbuddy-ai/buddy-core/core/speechtotext"
	"github.com/travelbuddy-ai/buddy-core/core/tools"
)

type SessionState string

const (
	StateConnecting SessionState = "connecting"
	StateActive     SessionState = "active"
	StateClosing    SessionState = "closing"
	StateClosed     SessionState = "closed"
)

// Session binds one caller connection to one pipeline. The transport drives
// it: Connected when the client attaches, ReceiveAudio for every inbound
// audio payload, Disconnected when the connection goes away. Disconnecting
// drains in-flight tool calls before the session reaches StateClosed, so a
// booking that already left the building still completes.
type Session struct {
	mu    sync.Mutex
	state SessionState

	pipeline     *Pipeline
	conversation *Conversation

	detector    *speechDetector
	synthesizer *speechSynthesizer
	responder   *responder

	options sessionOptions

	closeOnce sync.Once
}

type sessionOptions struct {
	llm        LLM
	stt        SpeechToText
	tts        TextToSpeech
	dispatcher *tools.Dispatcher

	systemPrompt   string
	welcomeMessage string

	inputEncoding audio.EncodingInfo
	cancelPolicy  speechtotext.CancelPolicy
	drainTimeout  time.Duration

	output func(frames.Frame) error
}

type SessionOption func(*sessionOptions)

func WithLLM(client LLM) SessionOption {
	return func(o *sessionOptions) { o.llm = client }
}

func WithSpeechToText(client SpeechToText) SessionOption {
	return func(o *sessionOptions) { o.stt = client }
}

func WithTextToSpeech(client TextToSpeech) SessionOption {
	return func(o *sessionOptions) { o.tts = client }
}

func WithDispatcher(dispatcher *tools.Dispatcher) SessionOption {
	return func(o *sessionOptions) { o.dispatcher = dispatcher }
}

func WithSystemPrompt(prompt string) SessionOption {
	return func(o *sessionOptions) { o.systemPrompt = prompt }
}

func WithWelcomeMessage(message string) SessionOption {
	return func(o *sessionOptions) { o.welcomeMessage = message }
}

func WithInputEncodingInfo(encoding audio.EncodingInfo) SessionOption {
	return func(o *sessionOptions) { o.inputEncoding = encoding }
}

func WithCancelPolicy(policy speechtotext.CancelPolicy) SessionOption {
	return func(o *sessionOptions) { o.cancelPolicy = policy }
}

// WithDrainTimeout bounds how long Disconnected waits for in-flight tool
// calls before closing anyway.
func WithDrainTimeout(timeout time.Duration) SessionOption {
	return func(o *sessionOptions) { o.drainTimeout = timeout }
}

// WithOutput sets the transport send function frames are delivered to.
func WithOutput(send func(frames.Frame) error) SessionOption {
	return func(o *sessionOptions) { o.output = send }
}

func NewSession(opts ...SessionOption) (*Session, error) {
	options := sessionOptions{
		systemPrompt:   systemPrompt(time.Now()),
		welcomeMessage: welcomeMessage,
		inputEncoding:  audio.GetDefaultInputEncodingInfo(),
		cancelPolicy:   speechtotext.CancelPolicyFinalize,
		drainTimeout:   35 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	if options.llm == nil {
		return nil, fmt.Errorf("session requires an LLM client")
	}
	if options.stt == nil {
		return nil, fmt.Errorf("session requires a speech-to-text client")
	}
	if options.tts == nil {
		return nil, fmt.Errorf("session requires a text-to-speech client")
	}
	if options.dispatcher == nil {
		options.dispatcher = tools.NewDispatcher(nil)
	}

	s := &Session{
		state:        StateConnecting,
		conversation: NewConversation(options.systemPrompt),
		options:      options,
	}

	clock := &turnClock{}
	s.detector = newSpeechDetector(options.inputEncoding)
	s.synthesizer = newSpeechSynthesizer(options.tts, clock)
	s.responder = newResponder(options.llm, options.dispatcher, s.conversation, clock)

	s.synthesizer.onSpeaking = s.detector.SetAssistantSpeaking
	s.responder.spokenText = s.synthesizer.SpokenText

	s.pipeline = NewPipeline([]Stage{
		s.detector,
		newTranscriber(options.stt, options.inputEncoding, options.cancelPolicy),
		newUserAggregator(s.conversation),
		s.responder,
		s.synthesizer,
		newOutputStage(options.output, clock),
	}, WithErrorHandler(s.handleError))

	return s, nil
}

// Connected starts the pipeline and greets the caller. The greeting is
// spoken directly, without a model round-trip, and recorded in the history
// so the model knows the conversation was opened.
func (s *Session) Connected(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.state = StateActive
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "session connected")
	defer span.End()

	if err := s.pipeline.Start(ctx); err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		return err
	}

	if s.options.welcomeMessage != "" {
		s.conversation.AppendAssistant(s.options.welcomeMessage)
		if err := s.synthesizer.Speak(ctx, s.options.welcomeMessage); err != nil {
			logger.WarnContext(ctx, "Failed to speak welcome message", "error", err)
		}
	}

	return nil
}

// ReceiveAudio feeds one inbound audio payload into the pipeline.
func (s *Session) ReceiveAudio(payload []byte) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state != StateActive {
		return &TransportError{Op: "receive", Err: fmt.Errorf("session is %s", state)}
	}

	s.pipeline.Push(frames.Audio{
		Bytes:      payload,
		SampleRate: s.options.inputEncoding.SampleRate,
	})
	return nil
}

// Disconnected tears the session down. In-flight non-cancellable tool
// calls are given until the drain timeout to finish.
func (s *Session) Disconnected(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosing
		s.mu.Unlock()

		ctx, span := tracer.Start(ctx, "session disconnected")
		defer span.End()

		s.pipeline.Broadcast(ctx, frames.EndOfSession{})

		drainCtx, cancel := context.WithTimeout(ctx, s.options.drainTimeout)
		defer cancel()
		if err := s.options.dispatcher.Wait(drainCtx); err != nil {
			logger.WarnContext(ctx, "Gave up waiting for in-flight tool calls", "error", err)
		}

		s.pipeline.Close()

		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
	})
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Conversation returns a point-in-time snapshot of the message history.
func (s *Session) Conversation() []llms.Message {
	return s.conversation.Snapshot()
}

func (s *Session) handleError(err error) {
	ctx := context.Background()
	logger.ErrorContext(ctx, "Pipeline error", "error", err)

	var backendErr *BackendError
	var toolErr *ToolError
	if !errors.As(err, &backendErr) && !errors.As(err, &toolErr) {
		return
	}

	// Speech synthesis failures cannot be apologized for over speech.
	if backendErr != nil && backendErr.Service == "text-to-speech" {
		return
	}

	go func() {
		if speakErr := s.synthesizer.Speak(ctx, apologyMessage); speakErr != nil {
			logger.WarnContext(ctx, "Failed to speak apology", "error", speakErr)
		}
	}()
}
