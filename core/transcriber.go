package pipeline

import (
	"context"
	"fmt"

	"github.com/travelbuddy-ai/buddy-core/core/audio"
	"github.com/travelbuddy-ai/buddy-core/core/frames"
	"github.com/travelbuddy-ai/buddy-core/core/speechtotext"
)

// SpeechToText is the transcription client contract the pipeline consumes.
type SpeechToText interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
	Close(ctx context.Context) error
}

// transcriber forwards caller audio to the transcription client and turns
// its callbacks into transcript frames.
type transcriber struct {
	client   SpeechToText
	encoding audio.EncodingInfo
	policy   speechtotext.CancelPolicy

	emit func(frames.Frame)
}

func newTranscriber(client SpeechToText, encoding audio.EncodingInfo, policy speechtotext.CancelPolicy) *transcriber {
	return &transcriber{client: client, encoding: encoding, policy: policy}
}

func (t *transcriber) Name() string { return "transcriber" }

func (t *transcriber) Accepts() []frames.Kind {
	return []frames.Kind{frames.KindAudio}
}

func (t *transcriber) Emits() []frames.Kind {
	return []frames.Kind{frames.KindTranscriptPartial, frames.KindTranscriptFinal}
}

func (t *transcriber) Attach(emit func(frames.Frame)) { t.emit = emit }

func (t *transcriber) start(ctx context.Context) error {
	if err := t.client.Transcribe(ctx,
		speechtotext.WithEncodingInfo(t.encoding),
		speechtotext.WithPartialTranscriptionCallback(func(transcript string) {
			t.emit(frames.TranscriptPartial{Text: transcript})
		}),
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			t.emit(frames.TranscriptFinal{Text: transcript})
		}),
	); err != nil {
		return &BackendError{Service: "speech-to-text", Err: err}
	}
	return nil
}

func (t *transcriber) Process(_ context.Context, frame frames.Frame) error {
	audioFrame, ok := frame.(frames.Audio)
	if !ok {
		return fmt.Errorf("unexpected frame type %T", frame)
	}

	if err := t.client.SendAudio(audioFrame.Bytes); err != nil {
		return &BackendError{Service: "speech-to-text", Err: err}
	}
	return nil
}

func (t *transcriber) Control(ctx context.Context, frame frames.Frame) {
	if frame.Kind() != frames.KindEndOfSession {
		return
	}

	// Finalize lets the provider flush a trailing utterance before the
	// socket goes away; discard tears the stream down immediately.
	if t.policy == speechtotext.CancelPolicyDiscard {
		_ = t.client.Close(ctx)
		return
	}
	go func() {
		if err := t.client.Close(ctx); err != nil {
			logger.WarnContext(ctx, "Failed to close transcription stream", "error", err)
		}
	}()
}
