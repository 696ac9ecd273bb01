// Package websocket carries a session over a single duplex websocket.
// Inbound binary messages are caller audio; outbound binary messages are
// synthesized speech. Everything else travels as small JSON events.
package websocket

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	pipeline "github.com/travelbuddy-ai/buddy-core/core"
	"github.com/travelbuddy-ai/buddy-core/core/frames"
)

// SessionFactory builds a session bound to the given transport send
// function. One session is created per websocket connection.
type SessionFactory func(send func(frames.Frame) error) (*pipeline.Session, error)

type Handler struct {
	upgrader   websocket.Upgrader
	newSession SessionFactory
}

func NewHandler(factory SessionFactory) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The demo front end is served from the same process but a
			// different port during development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		newSession: factory,
	}
}

type event struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
	Name string `json:"name,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "websocket session")
	defer span.End()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnContext(ctx, "Failed to upgrade websocket", "error", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(frame frames.Frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()

		switch frame := frame.(type) {
		case frames.SynthesisChunk:
			return conn.WriteMessage(websocket.BinaryMessage, frame.Audio)
		case frames.TranscriptPartial:
			return conn.WriteJSON(event{Type: string(frame.Kind()), Text: frame.Text})
		case frames.TranscriptFinal:
			return conn.WriteJSON(event{Type: string(frame.Kind()), Text: frame.Text})
		case frames.ToolCallRequest:
			return conn.WriteJSON(event{Type: string(frame.Kind()), ID: frame.ID, Name: frame.Name})
		case frames.ToolCallResult:
			return conn.WriteJSON(event{Type: string(frame.Kind()), ID: frame.ID})
		case frames.TurnEnded:
			return conn.WriteJSON(event{Type: string(frame.Kind())})
		case frames.Interrupt:
			return conn.WriteJSON(event{Type: string(frame.Kind())})
		default:
			return nil
		}
	}

	session, err := h.newSession(send)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to create session", "error", err)
		return
	}

	if err := session.Connected(ctx); err != nil {
		logger.ErrorContext(ctx, "Failed to start session", "error", err)
		return
	}
	// The request context dies with the handler; teardown must not.
	defer session.Disconnected(context.WithoutCancel(ctx))

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WarnContext(ctx, "Websocket read error", "error", err)
			}
			return
		}

		if msgType != websocket.BinaryMessage {
			continue
		}

		if err := session.ReceiveAudio(msg); err != nil {
			logger.WarnContext(ctx, "Failed to deliver audio to session", "error", err)
			return
		}
	}
}
