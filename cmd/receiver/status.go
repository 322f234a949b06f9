package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/andrijaa/opusrtp-streamer/internal/jitter"
	"github.com/andrijaa/opusrtp-streamer/internal/pipeline"
)

// statusUpgrader accepts any origin; the status feed is diagnostic-only
// and carries no session state worth restricting.
var statusUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// statusSnapshot is the JSON payload pushed to every connected client
// once a second: the receiver's own counters plus the jitter buffer's,
// tagged with the stream's diagnostic ID.
type statusSnapshot struct {
	StreamID string                 `json:"stream_id"`
	At       time.Time              `json:"at"`
	Receiver pipeline.ReceiverStats `json:"receiver"`
	Jitter   jitter.Stats           `json:"jitter"`
	Fill     int                    `json:"jitter_buffer_fill"`
}

// statusServer is a read-only WebSocket status feed: a second consumer
// of live stats beyond the Prometheus scrape endpoint, for a
// single-operator deployment without a metrics stack.
type statusServer struct {
	recv     *pipeline.Receiver
	buf      *jitter.Buffer
	streamID string
	log      *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newStatusServer(recv *pipeline.Receiver, buf *jitter.Buffer, log *zap.Logger) *statusServer {
	return &statusServer{
		recv:     recv,
		buf:      buf,
		streamID: uuid.NewString(),
		log:      log,
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

func (s *statusServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := statusUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("status upgrade failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	// The feed is push-only; a blocked read just detects disconnects.
	go func() {
		defer s.removeClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *statusServer) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

// run broadcasts a status snapshot once a second until stop is closed.
func (s *statusServer) run(stop <-chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.broadcast()
		}
	}
}

func (s *statusServer) broadcast() {
	snap := statusSnapshot{
		StreamID: s.streamID,
		At:       time.Now(),
		Receiver: s.recv.Stats(),
		Jitter:   s.buf.Stats(),
		Fill:     s.buf.Fill(),
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(s.clients, conn)
			conn.Close()
		}
	}
}
