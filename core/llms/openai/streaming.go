package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"github.com/travelbuddy-ai/buddy-core/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	url = "https://api.openai.com/v1/chat/completions"

	chunkPrefix = "data:"
	endMessage  = "[DONE]"
)

const DefaultModel = "gpt-4o-mini"

// Client streams chat completions with function calling.
type Client struct {
	apiKey string
	model  string
}

func NewClient(apiKey string, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{apiKey: apiKey, model: model}
}

// Generate returns a stream over one model response for the conversation
// snapshot. Tool calls are yielded once their arguments are fully
// assembled from the streamed deltas.
func (c *Client) Generate(_ context.Context, conversation []llms.Message, baseTools []llms.Tool) llms.Stream {
	var tools []tool
	if len(baseTools) > 0 {
		copier.Copy(&tools, baseTools)
		for i := range tools {
			tools[i].Type = "function"
		}
	}

	return &Stream{
		apiKey:   c.apiKey,
		model:    c.model,
		tools:    tools,
		messages: toWireMessages(conversation),
	}
}

type Stream struct {
	apiKey string

	model    string
	tools    []tool
	messages []message
}

type requestBody struct {
	Model      string    `json:"model"`
	Messages   []message `json:"messages"`
	Stream     bool      `json:"stream"`
	Tools      []tool    `json:"tools,omitempty"`
	ToolChoice string    `json:"tool_choice,omitempty"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Content   string     `json:"content"`
			ToolCalls []toolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.model))
		var toolNames []string
		for _, tool := range s.tools {
			toolNames = append(toolNames, tool.Function.Name)
		}
		span.SetAttributes(attribute.StringSlice("request.available_tools", toolNames))

		toolChoice := ""
		if len(s.tools) > 0 {
			toolChoice = "auto"
		}

		reqBody := requestBody{
			Model:      s.model,
			Messages:   s.messages,
			Stream:     true,
			Tools:      s.tools,
			ToolChoice: toolChoice,
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			err = fmt.Errorf("error marshalling JSON: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			err = fmt.Errorf("error creating HTTP request: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.apiKey)

		client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)}
		requestStarted := time.Now()
		span.AddEvent("request started")
		resp, err := client.Do(req)
		if err != nil {
			err = fmt.Errorf("error sending request: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			if errorBody, err := io.ReadAll(resp.Body); err == nil {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}

			err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		firstToken := false
		pendingToolCalls := map[int]*llms.ToolCall{}
		pendingOrder := []int{}
		flushToolCalls := func(finishReason *string) bool {
			for _, index := range pendingOrder {
				call := pendingToolCalls[index]
				if !yield(StreamToolCallChunk{finishReason: finishReason, toolCall: *call}, nil) {
					return false
				}
			}
			pendingToolCalls = map[int]*llms.ToolCall{}
			pendingOrder = nil
			return true
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))
			if !firstToken {
				firstToken = true
				span.AddEvent("received first chunk", trace.WithAttributes(
					attribute.Float64("response.request_to_first_token_time", time.Since(requestStarted).Seconds()),
				))
			}

			if len(chunk) == 0 {
				continue
			}
			if chunk == endMessage {
				break
			}

			var responseBody streamingResponseBody
			if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
				err = fmt.Errorf("error unmarshalling JSON: %w", err)
				span.RecordError(err)
				if !yield(nil, err) {
					return
				}
				continue
			}
			if len(responseBody.Choices) == 0 {
				continue
			}

			delta := responseBody.Choices[0].Delta
			finishReason := responseBody.Choices[0].FinishReason

			// Tool call arguments stream in pieces keyed by index; the call
			// is only usable once all pieces have arrived.
			for _, deltaCall := range delta.ToolCalls {
				index := 0
				if deltaCall.Index != nil {
					index = *deltaCall.Index
				}
				pending, ok := pendingToolCalls[index]
				if !ok {
					pending = &llms.ToolCall{}
					pendingToolCalls[index] = pending
					pendingOrder = append(pendingOrder, index)
				}
				if deltaCall.ID != "" {
					pending.ID = deltaCall.ID
				}
				if deltaCall.Function.Name != "" {
					pending.Name = deltaCall.Function.Name
				}
				pending.Arguments += deltaCall.Function.Arguments
			}

			if delta.Content != "" {
				if !yield(StreamContentChunk{finishReason: finishReason, content: delta.Content}, nil) {
					return
				}
			}

			if finishReason != nil && *finishReason == "tool_calls" {
				if !flushToolCalls(finishReason) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("error reading streamed response: %w", err))
			return
		}

		// A close without a finish reason still flushes assembled calls so
		// none are silently dropped.
		flushToolCalls(nil)
	}
}

type StreamContentChunk struct {
	finishReason *string
	content      string
}

func (s StreamContentChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamContentChunk) Content() string {
	return s.content
}

type StreamToolCallChunk struct {
	finishReason *string
	toolCall     llms.ToolCall
}

func (s StreamToolCallChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamToolCallChunk) ToolCall() llms.ToolCall {
	return s.toolCall
}
