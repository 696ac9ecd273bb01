package tools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWebhookCallSendsToolCallEnvelope(t *testing.T) {
	var body []byte
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		var err error
		if body, err = io.ReadAll(r.Body); err != nil {
			t.Fatalf("expected readable payload, got %v", err)
		}
		_, _ = w.Write([]byte(`{"results":[{"result":"ok"}]}`))
	}))
	defer server.Close()

	client := NewWebhookClient(server.URL, "secret-token")
	result, err := client.Call(context.Background(), "search_flights", `{"origin":"ZAG"}`)
	if err != nil {
		t.Fatalf("expected call to succeed, got %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected result \"ok\", got %q", result)
	}

	if authHeader != "Bearer secret-token" {
		t.Fatalf("expected bearer auth header, got %q", authHeader)
	}

	var received webhookPayload
	if err := json.Unmarshal(body, &received); err != nil {
		t.Fatalf("expected decodable payload, got %v", err)
	}
	if received.Message.Type != "tool-calls" {
		t.Fatalf("expected message type tool-calls, got %q", received.Message.Type)
	}
	if len(received.Message.ToolCallList) != 1 {
		t.Fatalf("expected exactly one tool call, got %d", len(received.Message.ToolCallList))
	}

	call := received.Message.ToolCallList[0]
	if call.Function.Name != "search_flights" {
		t.Fatalf("expected function name search_flights, got %q", call.Function.Name)
	}
	if !strings.HasPrefix(call.ID, "search_flights-") {
		t.Fatalf("expected tool call id prefixed with the tool name, got %q", call.ID)
	}
	if !strings.HasPrefix(received.Call.ID, "call-") {
		t.Fatalf("expected call id prefixed with call-, got %q", received.Call.ID)
	}

	// arguments must arrive as a JSON object on the wire, never as an
	// escaped string
	var generic map[string]any
	if err := json.Unmarshal(body, &generic); err != nil {
		t.Fatalf("expected decodable payload, got %v", err)
	}
	message := generic["message"].(map[string]any)
	function := message["toolCallList"].([]any)[0].(map[string]any)["function"].(map[string]any)
	arguments, ok := function["arguments"].(map[string]any)
	if !ok {
		t.Fatalf("expected arguments serialized as an object, got %T: %v", function["arguments"], function["arguments"])
	}
	if arguments["origin"] != "ZAG" {
		t.Fatalf("expected the argument values preserved, got %v", arguments)
	}
}

func TestWebhookCallSendsEmptyArgumentsAsObject(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"results":[{"result":"ok"}]}`))
	}))
	defer server.Close()

	client := NewWebhookClient(server.URL, "")
	if _, err := client.Call(context.Background(), "get_current_date", ""); err != nil {
		t.Fatalf("expected call to succeed, got %v", err)
	}

	var received webhookPayload
	if err := json.Unmarshal(body, &received); err != nil {
		t.Fatalf("expected decodable payload, got %v", err)
	}
	if string(received.Message.ToolCallList[0].Function.Arguments) != `{}` {
		t.Fatalf("expected empty arguments sent as the empty object, got %s",
			received.Message.ToolCallList[0].Function.Arguments)
	}
}

func TestWebhookResponsePrecedence(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		expected string
	}{
		{name: "results entry with string result", body: `{"results":[{"result":"two flights found"}]}`, expected: "two flights found"},
		{name: "results entry without string result", body: `{"results":[{"flights":[1,2]}]}`, expected: `{"flights":[1,2]}`},
		{name: "results entry with empty result falls back to the entry", body: `{"results":[{"result":"","flights":[1,2]}]}`, expected: `{"result":"","flights":[1,2]}`},
		{name: "top level string result", body: `{"result":"booked"}`, expected: "booked"},
		{name: "top level object result", body: `{"result":{"status":"booked"}}`, expected: `{"status":"booked"}`},
		{name: "whole body fallback", body: `{"status":"ok"}`, expected: `{"status":"ok"}`},
		{name: "array body serialized as text", body: `[{"status":"ok"}]`, expected: `[{"status":"ok"}]`},
		{name: "bare string body unquoted", body: `"all booked"`, expected: "all booked"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewWebhookClient(server.URL, "")
			result, err := client.Call(context.Background(), "search_hotels", `{}`)
			if err != nil {
				t.Fatalf("expected call to succeed, got %v", err)
			}
			if result != tc.expected {
				t.Fatalf("expected result %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestWebhookCallErrorsOnBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewWebhookClient(server.URL, "")
	if _, err := client.Call(context.Background(), "book_flight", `{}`); err == nil {
		t.Fatalf("expected an error for a 502 response")
	}
}

func TestWebhookCallErrorsOnUnreachableBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := NewWebhookClient(server.URL, "")
	client.httpClient.Timeout = 500 * time.Millisecond

	if _, err := client.Call(context.Background(), "book_hotel", `{}`); err == nil {
		t.Fatalf("expected an error when the backend is unreachable")
	}
}
