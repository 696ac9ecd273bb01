package pipeline

import (
	"sync"

	"github.com/travelbuddy-ai/buddy-core/core/frames"
)

// frameQueue is the ordered hand-off between adjacent stages. Text and tool
// frames are never dropped; audio frames are dropped oldest-first once the
// queue is at capacity, so a slow consumer degrades to choppy audio instead
// of unbounded memory growth.
type frameQueue struct {
	mu           sync.Mutex
	frames       []frames.Frame
	consumed     int
	capacity     int
	closed       bool
	updateSignal chan struct{}

	droppedAudio int
}

func newFrameQueue(capacity int) *frameQueue {
	return &frameQueue{
		capacity:     capacity,
		updateSignal: make(chan struct{}, 1),
	}
}

func (q *frameQueue) Push(frame frames.Frame) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}

	if frame.Kind() == frames.KindAudio || frame.Kind() == frames.KindSynthesisChunk {
		if len(q.frames)-q.consumed >= q.capacity {
			for i := q.consumed; i < len(q.frames); i++ {
				kind := q.frames[i].Kind()
				if kind == frames.KindAudio || kind == frames.KindSynthesisChunk {
					q.frames = append(q.frames[:i], q.frames[i+1:]...)
					q.droppedAudio++
					break
				}
			}
		}
	}

	q.frames = append(q.frames, frame)
	q.mu.Unlock()
	q.signalUpdate()
}

// Frames yields queued frames in order, blocking while the queue is empty.
// It returns once the queue is closed and drained.
func (q *frameQueue) Frames(yield func(frames.Frame) bool) {
	for {
		q.mu.Lock()
		if q.consumed < len(q.frames) {
			frame := q.frames[q.consumed]
			q.consumed++
			if q.consumed == len(q.frames) {
				q.frames = q.frames[:0]
				q.consumed = 0
			}
			q.mu.Unlock()
			if !yield(frame) {
				return
			}
			continue
		}

		if q.closed {
			q.mu.Unlock()
			return
		}

		q.mu.Unlock()
		<-q.updateSignal
	}
}

func (q *frameQueue) DroppedAudio() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.droppedAudio
}

func (q *frameQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signalUpdate()
}

func (q *frameQueue) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}
