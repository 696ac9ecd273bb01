package audio

// Rebuffer regroups arbitrarily sized PCM chunks into fixed-size frames.
// Incoming bytes are never dropped; a trailing remainder is held until the
// next push completes it.
type Rebuffer struct {
	frameSize int
	pending   []byte
}

func NewRebuffer(frameSize int) *Rebuffer {
	if frameSize <= 0 {
		frameSize = 1
	}
	return &Rebuffer{frameSize: frameSize}
}

// Push appends chunk to the pending buffer and returns every complete frame
// now available, in order.
func (r *Rebuffer) Push(chunk []byte) [][]byte {
	r.pending = append(r.pending, chunk...)

	var frames [][]byte
	for len(r.pending) >= r.frameSize {
		frame := make([]byte, r.frameSize)
		copy(frame, r.pending[:r.frameSize])
		frames = append(frames, frame)
		r.pending = r.pending[r.frameSize:]
	}
	return frames
}

// Pending returns the number of buffered bytes not yet forming a full frame.
func (r *Rebuffer) Pending() int {
	return len(r.pending)
}

// Flush returns the incomplete remainder, if any, and resets the buffer.
func (r *Rebuffer) Flush() []byte {
	if len(r.pending) == 0 {
		return nil
	}
	remainder := make([]byte, len(r.pending))
	copy(remainder, r.pending)
	r.pending = r.pending[:0]
	return remainder
}
