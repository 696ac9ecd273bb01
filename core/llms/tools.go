package llms

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// Tool is a capability the model may request by name. The argument schema is
// reflected from the handler's typed parameter struct; fields without an
// omitempty tag are required.
type Tool struct {
	Function ToolFunction

	// Cancellable marks calls that an interruption may abort. Tools with
	// remote side effects should be registered non-cancellable.
	Cancellable bool

	execute func(ctx context.Context, arguments string) (string, error)
}

type ToolFunction struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// NewTool builds a tool from a typed handler. Arguments arrive from the
// model as a JSON object string and are unmarshalled into T before the
// handler runs.
func NewTool[T any](name, description string, handler func(context.Context, T) (string, error), opts ...ToolOption) Tool {
	reflector := jsonschema.Reflector{DoNotReference: true}

	var parameters T
	schema := reflector.ReflectFromType(reflect.TypeOf(parameters))
	schema.Version = ""

	tool := Tool{
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  schema,
		},
		Cancellable: true,
		execute: func(ctx context.Context, arguments string) (string, error) {
			var parameters T
			if arguments != "" {
				if err := json.Unmarshal([]byte(arguments), &parameters); err != nil {
					return "", fmt.Errorf("failed to parse tool arguments: %w", err)
				}
			}
			return handler(ctx, parameters)
		},
	}

	for _, opt := range opts {
		opt(&tool)
	}

	return tool
}

// Execute runs the tool handler with the model-provided argument string.
func (t Tool) Execute(ctx context.Context, arguments string) (string, error) {
	if t.execute == nil {
		return "", fmt.Errorf("tool %q has no handler", t.Function.Name)
	}
	return t.execute(ctx, arguments)
}

type ToolOption func(*Tool)

// WithNonCancellable marks the tool's calls as running to completion even
// when the surrounding turn is interrupted.
func WithNonCancellable() ToolOption {
	return func(t *Tool) {
		t.Cancellable = false
	}
}
