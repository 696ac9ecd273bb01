package speechtotext

import "github.com/travelbuddy-ai/buddy-core/core/audio"

// CancelPolicy controls what happens to an in-flight utterance when the
// turn is interrupted.
type CancelPolicy string

const (
	// CancelPolicyFinalize finalizes the utterance with whatever has been
	// transcribed so far.
	CancelPolicyFinalize CancelPolicy = "finalize"
	// CancelPolicyDiscard drops the in-flight utterance entirely.
	CancelPolicyDiscard CancelPolicy = "discard"
)

type TranscriptionOptions struct {
	// PartialTranscriptionCallback receives low-latency transcript pieces
	// that may still be revised.
	PartialTranscriptionCallback func(transcript string)
	// TranscriptionCallback receives the single final transcript per
	// completed utterance.
	TranscriptionCallback func(transcript string)

	SpeechStartedCallback func()
	SpeechEndedCallback   func()

	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

func WithTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.TranscriptionCallback = callback
	}
}

func WithPartialTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.PartialTranscriptionCallback = callback
	}
}

func WithSpeechStartedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechStartedCallback = callback
	}
}

func WithSpeechEndedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechEndedCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}
