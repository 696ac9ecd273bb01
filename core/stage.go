package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/travelbuddy-ai/buddy-core/core/frames"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stage is a single processing step in the pipeline. Frames whose kind is
// not in Accepts pass through to the next stage untouched. Frames produced
// through the emit callback must have a kind declared in Emits; control
// frames are the exception, they are broadcast to every stage instead of
// travelling downstream.
type Stage interface {
	Name() string
	Accepts() []frames.Kind
	Emits() []frames.Kind

	// Attach hands the stage its emit callback. Called once, before Start.
	Attach(emit func(frames.Frame))

	Process(ctx context.Context, frame frames.Frame) error

	// Control delivers broadcast control frames. It must not block.
	Control(ctx context.Context, frame frames.Frame)
}

// starter is implemented by stages that hold upstream connections.
type starter interface {
	start(ctx context.Context) error
}

// forwarder is implemented by stages that act on a frame kind while letting
// the frame itself continue downstream unchanged. The stage sees the frame
// through Process in queue order but does not count as its producer.
type forwarder interface {
	Forwards() []frames.Kind
}

// Pipeline chains stages with bounded queues and runs one goroutine per
// stage. Data frames flow strictly downstream; control frames fan out to
// every stage out of band.
type Pipeline struct {
	stages []Stage
	queues []*frameQueue

	onError   func(error)
	onControl func(frames.Frame)

	done      []chan struct{}
	closeOnce sync.Once
}

const defaultQueueCapacity = 256

type PipelineOption func(*Pipeline)

// WithErrorHandler sets the callback invoked when a stage fails to process
// a frame or violates its emit declaration.
func WithErrorHandler(handler func(error)) PipelineOption {
	return func(p *Pipeline) { p.onError = handler }
}

// WithControlObserver sets a callback invoked for every broadcast control
// frame, after the stages have seen it.
func WithControlObserver(observer func(frames.Frame)) PipelineOption {
	return func(p *Pipeline) { p.onControl = observer }
}

func NewPipeline(stages []Stage, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		stages:    stages,
		onError:   func(error) {},
		onControl: func(frames.Frame) {},
	}

	for _, opt := range opts {
		opt(p)
	}

	p.queues = make([]*frameQueue, len(stages))
	for i := range stages {
		p.queues[i] = newFrameQueue(defaultQueueCapacity)
	}

	return p
}

// Start attaches emit callbacks, starts stages that hold upstream
// connections and launches the per-stage processing loops.
func (p *Pipeline) Start(ctx context.Context) error {
	for i, stage := range p.stages {
		var next *frameQueue
		if i+1 < len(p.queues) {
			next = p.queues[i+1]
		}

		stage.Attach(p.emitFunc(ctx, stage, next))
	}

	for _, stage := range p.stages {
		if s, ok := stage.(starter); ok {
			if err := s.start(ctx); err != nil {
				return fmt.Errorf("failed to start stage %s: %w", stage.Name(), err)
			}
		}
	}

	p.done = make([]chan struct{}, len(p.stages))
	for i, stage := range p.stages {
		p.done[i] = make(chan struct{})
		go p.run(ctx, stage, p.queues[i], nextQueue(p.queues, i), p.done[i])
	}

	return nil
}

func nextQueue(queues []*frameQueue, i int) *frameQueue {
	if i+1 < len(queues) {
		return queues[i+1]
	}
	return nil
}

func (p *Pipeline) emitFunc(ctx context.Context, stage Stage, next *frameQueue) func(frames.Frame) {
	return func(frame frames.Frame) {
		if frame.IsControl() {
			p.Broadcast(ctx, frame)
			return
		}

		if !slices.Contains(stage.Emits(), frame.Kind()) {
			p.onError(&ProtocolViolation{Stage: stage.Name(), Kind: frame.Kind()})
			return
		}

		if next != nil {
			next.Push(frame)
		}
	}
}

func (p *Pipeline) run(ctx context.Context, stage Stage, in *frameQueue, next *frameQueue, done chan struct{}) {
	defer close(done)

	accepts := stage.Accepts()
	var forwards []frames.Kind
	if f, ok := stage.(forwarder); ok {
		forwards = f.Forwards()
	}

	for frame := range in.Frames {
		if slices.Contains(forwards, frame.Kind()) {
			p.process(ctx, stage, frame)
			if next != nil {
				next.Push(frame)
			}
			continue
		}

		if !slices.Contains(accepts, frame.Kind()) {
			if next != nil {
				next.Push(frame)
			}
			continue
		}

		p.process(ctx, stage, frame)
	}
}

func (p *Pipeline) process(ctx context.Context, stage Stage, frame frames.Frame) {
	if err := stage.Process(ctx, frame); err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.onError(err)
	}
}

// Push feeds a frame into the head of the pipeline.
func (p *Pipeline) Push(frame frames.Frame) {
	if len(p.queues) == 0 {
		return
	}
	p.queues[0].Push(frame)
}

// Broadcast delivers a control frame to every stage, bypassing the queues
// so an interruption is not stuck behind buffered audio.
func (p *Pipeline) Broadcast(ctx context.Context, frame frames.Frame) {
	for _, stage := range p.stages {
		stage.Control(ctx, frame)
	}
	p.onControl(frame)
}

// Close drains and stops the stages head to tail, so frames emitted while
// an upstream stage drains are still processed downstream.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		for i, queue := range p.queues {
			queue.Close()
			if p.done != nil {
				<-p.done[i]
			}
		}
	})
}
