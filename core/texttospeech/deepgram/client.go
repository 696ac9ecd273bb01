package deepgram

import (
	"context"
	"fmt"
	"slices"

	"github.com/travelbuddy-ai/buddy-core/core/audio"
	"github.com/travelbuddy-ai/buddy-core/core/texttospeech"
)

type deepgramVoice string

const (
	VoiceAuraAsteria deepgramVoice = "aura-2-asteria-en"
	VoiceAuraThalia  deepgramVoice = "aura-2-thalia-en"
	VoiceAuraLuna    deepgramVoice = "aura-2-luna-en"
	VoiceAuraOrion   deepgramVoice = "aura-2-orion-en"
	VoiceAuraArcas   deepgramVoice = "aura-2-arcas-en"

	defaultVoice = VoiceAuraAsteria
)

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{
		VoiceAuraAsteria,
		VoiceAuraThalia,
		VoiceAuraLuna,
		VoiceAuraOrion,
		VoiceAuraArcas,
	}
}

type TextToSpeechClient struct {
	voice   deepgramVoice
	options texttospeech.TextToSpeechOptions
}

func NewTextToSpeechClient(voice deepgramVoice) (*TextToSpeechClient, error) {
	client := &TextToSpeechClient{
		voice:   defaultVoice,
		options: texttospeech.TextToSpeechOptions{EncodingInfo: audio.GetDefaultOutputEncodingInfo()},
	}

	if !slices.Contains(GetAvailableVoices(), voice) {
		return nil, fmt.Errorf("invalid voice")
	}

	client.voice = voice

	return client, nil
}

func (c *TextToSpeechClient) Close(ctx context.Context) {}

func (c *TextToSpeechClient) SetVoice(voice deepgramVoice) {
	c.voice = voice
}
