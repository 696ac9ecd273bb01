package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const webhookTimeout = 30 * time.Second

// WebhookClient forwards tool calls to the travel backend over HTTP. The
// backend speaks the Vapi tool-call webhook dialect, so every request wraps
// a single call in a toolCallList and every response is unwrapped through
// the same precedence the backend's hosted runtime uses.
type WebhookClient struct {
	url        string
	token      string
	httpClient *http.Client
}

func NewWebhookClient(url, token string) *WebhookClient {
	return &WebhookClient{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Timeout: webhookTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
					return operationName + " " + request.URL.Path
				}),
			),
		},
	}
}

type webhookPayload struct {
	Message webhookMessage `json:"message"`
	Call    webhookCall    `json:"call"`
}

type webhookMessage struct {
	Type         string            `json:"type"`
	ToolCallList []webhookToolCall `json:"toolCallList"`
}

type webhookToolCall struct {
	ID       string          `json:"id"`
	Function webhookFunction `json:"function"`
}

// Arguments is raw JSON so the backend receives the object itself, not a
// string-escaped copy of it.
type webhookFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type webhookCall struct {
	ID string `json:"id"`
}

// Call sends a single named tool call to the backend and returns the result
// text. Arguments must be a JSON object string as produced by the model; an
// empty string is sent as the empty object.
func (c *WebhookClient) Call(ctx context.Context, name string, arguments string) (string, error) {
	ctx, span := tracer.Start(ctx, "webhook.Call", trace.WithAttributes(
		attribute.String("tool.name", name),
	))
	defer span.End()

	args := json.RawMessage(arguments)
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	payload := webhookPayload{
		Message: webhookMessage{
			Type: "tool-calls",
			ToolCallList: []webhookToolCall{{
				ID: fmt.Sprintf("%s-%s", name, uuid.NewString()[:8]),
				Function: webhookFunction{
					Name:      name,
					Arguments: args,
				},
			}},
		},
		Call: webhookCall{ID: "call-" + uuid.NewString()[:8]},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach travel backend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read webhook response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("travel backend returned status %d", resp.StatusCode)
	}

	result, err := extractResult(respBody)
	if err != nil {
		return "", err
	}

	logger.InfoContext(ctx, "Webhook tool call completed",
		"tool", name, "response_bytes", len(respBody))
	return result, nil
}

// extractResult unwraps the backend's response. Precedence follows the
// webhook dialect: results[0].result as a non-empty string, then results[0]
// serialized, then a top-level result field, then the whole body. Non-object
// bodies (arrays, bare values) are serialized as text rather than rejected.
func extractResult(body []byte) (string, error) {
	var parsed struct {
		Results []json.RawMessage `json:"results"`
		Result  json.RawMessage   `json:"result"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		var asString string
		if json.Unmarshal(body, &asString) == nil {
			return asString, nil
		}
		if json.Valid(body) {
			return string(body), nil
		}
		return "", fmt.Errorf("failed to parse webhook response: %w", err)
	}

	if len(parsed.Results) > 0 {
		var first struct {
			Result *string `json:"result"`
		}
		if err := json.Unmarshal(parsed.Results[0], &first); err == nil && first.Result != nil && *first.Result != "" {
			return *first.Result, nil
		}
		return string(parsed.Results[0]), nil
	}

	if parsed.Result != nil {
		var asString string
		if err := json.Unmarshal(parsed.Result, &asString); err == nil {
			return asString, nil
		}
		return string(parsed.Result), nil
	}

	return string(body), nil
}
