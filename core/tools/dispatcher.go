package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/travelbuddy-ai/buddy-core/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Dispatcher executes model-requested tool calls. Every dispatch produces
// exactly one result, errors included, so the conversation never ends up
// with a dangling tool call.
type Dispatcher struct {
	tools map[string]llms.Tool

	inFlight sync.WaitGroup
}

func NewDispatcher(toolSet []llms.Tool) *Dispatcher {
	tools := make(map[string]llms.Tool, len(toolSet))
	for _, tool := range toolSet {
		tools[tool.Function.Name] = tool
	}
	return &Dispatcher{tools: tools}
}

func (d *Dispatcher) Tools() []llms.Tool {
	toolSet := make([]llms.Tool, 0, len(d.tools))
	for _, tool := range d.tools {
		toolSet = append(toolSet, tool)
	}
	return toolSet
}

func (d *Dispatcher) Lookup(name string) (llms.Tool, bool) {
	tool, ok := d.tools[name]
	return tool, ok
}

// Dispatch runs a single tool call and returns its result text. Tools
// registered non-cancellable run on a detached context so an interruption
// of the surrounding turn cannot abort a request already in flight.
func (d *Dispatcher) Dispatch(ctx context.Context, call llms.ToolCall) string {
	ctx, span := tracer.Start(ctx, "Dispatch", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	))
	defer span.End()

	d.inFlight.Add(1)
	defer d.inFlight.Done()

	tool, ok := d.tools[call.Name]
	if !ok {
		logger.WarnContext(ctx, "Unknown tool requested", "tool", call.Name)
		return fmt.Sprintf("Error calling travel service: unknown tool %q", call.Name)
	}

	if !tool.Cancellable {
		ctx = context.WithoutCancel(ctx)
	}

	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		logger.ErrorContext(ctx, "Tool call failed", "tool", call.Name, "error", err)
		return fmt.Sprintf("Error calling travel service: %v", err)
	}

	return result
}

// Wait blocks until every in-flight tool call has completed or the context
// is done. Used when draining a closing session.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
