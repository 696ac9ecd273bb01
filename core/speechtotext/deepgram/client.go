package deepgram

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TranscriptionClient streams audio to Deepgram's listen API and reports
// transcripts and speech boundaries through callbacks.
type TranscriptionClient struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	lastMsgTs time.Time

	accumulatedTranscript string
	unendedSegment        bool
}

func NewTranscriptionClient() *TranscriptionClient {
	return &TranscriptionClient{lastMsgTs: time.Now()}
}

func (s *TranscriptionClient) Close(_ context.Context) error {
	return s.StopStream()
}
