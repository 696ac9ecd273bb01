package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/travelbuddy-ai/buddy-core/core/audio"
	"github.com/travelbuddy-ai/buddy-core/core/frames"
)

const (
	vadFrameDurationMs = 20

	// Hysteresis thresholds on 16-bit RMS. Start is deliberately higher
	// than stop so breathing noise near the boundary does not flap the
	// speaking state.
	vadStartRMSThreshold = 1000.0
	vadStopRMSThreshold  = 500.0

	// Frames above/below threshold required to flip state. 3 frames (60ms)
	// to start keeps clicks from triggering an interruption; 25 frames
	// (500ms) of silence before speech is considered stopped.
	vadActivationFrames = 3
	vadHangoverFrames   = 25
)

// speechDetector watches inbound caller audio for speech boundaries. Audio
// always passes through unchanged; the detector only adds control frames.
// When speech starts while the assistant is speaking it raises an
// interruption.
type speechDetector struct {
	emit     func(frames.Frame)
	encoding audio.EncodingInfo
	rebuffer *audio.Rebuffer

	speaking      bool
	framesAbove   int
	framesBelow   int
	assistantBusy atomic.Bool
}

func newSpeechDetector(encoding audio.EncodingInfo) *speechDetector {
	frameSize := encoding.SampleRate * encoding.Format.ByteSize() * vadFrameDurationMs / 1000
	return &speechDetector{
		encoding: encoding,
		rebuffer: audio.NewRebuffer(frameSize),
	}
}

func (d *speechDetector) Name() string { return "speech-detector" }

func (d *speechDetector) Accepts() []frames.Kind {
	return []frames.Kind{frames.KindAudio}
}

func (d *speechDetector) Emits() []frames.Kind {
	return []frames.Kind{frames.KindAudio}
}

func (d *speechDetector) Attach(emit func(frames.Frame)) { d.emit = emit }

// SetAssistantSpeaking records whether assistant audio is currently being
// played to the caller. Only then does detected speech interrupt.
func (d *speechDetector) SetAssistantSpeaking(speaking bool) {
	d.assistantBusy.Store(speaking)
}

func (d *speechDetector) Process(_ context.Context, frame frames.Frame) error {
	audioFrame, ok := frame.(frames.Audio)
	if !ok {
		return fmt.Errorf("unexpected frame type %T", frame)
	}

	d.emit(audioFrame)

	for _, chunk := range d.rebuffer.Push(audioFrame.Bytes) {
		d.observe(rms16(chunk))
	}
	return nil
}

func (d *speechDetector) observe(energy float64) {
	if !d.speaking {
		if energy >= vadStartRMSThreshold {
			d.framesAbove++
			if d.framesAbove >= vadActivationFrames {
				d.speaking = true
				d.framesBelow = 0
				d.emit(frames.SpeechStarted{})
				if d.assistantBusy.Load() {
					d.emit(frames.Interrupt{})
				}
			}
		} else {
			d.framesAbove = 0
		}
		return
	}

	if energy <= vadStopRMSThreshold {
		d.framesBelow++
		if d.framesBelow >= vadHangoverFrames {
			d.speaking = false
			d.framesAbove = 0
			d.emit(frames.SpeechStopped{})
		}
	} else {
		d.framesBelow = 0
	}
}

func (d *speechDetector) Control(context.Context, frames.Frame) {}

// rms16 computes the root mean square of little-endian 16-bit PCM samples.
func rms16(chunk []byte) float64 {
	if len(chunk) < 2 {
		return 0
	}

	var sum float64
	sampleCount := len(chunk) / 2
	for i := 0; i < sampleCount; i++ {
		sample := int16(binary.LittleEndian.Uint16(chunk[2*i:]))
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(sampleCount))
}
