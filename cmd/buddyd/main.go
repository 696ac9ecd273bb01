package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pipeline "github.com/travelbuddy-ai/buddy-core/core"
	"github.com/travelbuddy-ai/buddy-core/core/frames"
	"github.com/travelbuddy-ai/buddy-core/core/llms/openai"
	sttdeepgram "github.com/travelbuddy-ai/buddy-core/core/speechtotext/deepgram"
	ttsdeepgram "github.com/travelbuddy-ai/buddy-core/core/texttospeech/deepgram"
	"github.com/travelbuddy-ai/buddy-core/core/tools"
	"github.com/travelbuddy-ai/buddy-core/core/transport/websocket"
)

//go:embed static
var staticFiles embed.FS

type config struct {
	port         string
	openAIKey    string
	openAIModel  string
	webhookURL   string
	webhookToken string
}

func loadConfig() (config, error) {
	cfg := config{
		port:        envOr("PORT", "7860"),
		openAIKey:   os.Getenv("OPENAI_API_KEY"),
		openAIModel: envOr("OPENAI_MODEL", openai.DefaultModel),
		webhookURL:  os.Getenv("TRAVEL_WEBHOOK_URL"),
		// Optional, the backend may be open in development.
		webhookToken: os.Getenv("TRAVEL_WEBHOOK_TOKEN"),
	}

	if cfg.openAIKey == "" {
		return cfg, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if _, ok := os.LookupEnv("DEEPGRAM_API_KEY"); !ok {
		return cfg, fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	if cfg.webhookURL == "" {
		return cfg, fmt.Errorf("TRAVEL_WEBHOOK_URL is required")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	dispatcher := tools.NewDispatcher(tools.TravelTools(
		tools.NewWebhookClient(cfg.webhookURL, cfg.webhookToken),
	))
	llmClient := openai.NewClient(cfg.openAIKey, cfg.openAIModel)

	handler := websocket.NewHandler(func(send func(frames.Frame) error) (*pipeline.Session, error) {
		ttsClient, err := ttsdeepgram.NewTextToSpeechClient(ttsdeepgram.VoiceAuraAsteria)
		if err != nil {
			return nil, err
		}

		return pipeline.NewSession(
			pipeline.WithLLM(llmClient),
			pipeline.WithSpeechToText(sttdeepgram.NewTranscriptionClient()),
			pipeline.WithTextToSpeech(ttsClient),
			pipeline.WithDispatcher(dispatcher),
			pipeline.WithOutput(send),
		)
	})

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("failed to load static files: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", handler)
	mux.Handle("/", http.FileServer(http.FS(static)))

	server := &http.Server{
		Addr:    ":" + cfg.port,
		Handler: mux,
	}

	go func() {
		log.Printf("Travel Buddy listening on :%s", cfg.port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 40*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
