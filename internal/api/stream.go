package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamBuffer  = 512
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The status API is a local, read-only surface.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleLogStream upgrades to a websocket and forwards every log line
// published after connect. An optional ?node= query restricts the stream to
// one node. Slow clients fall behind by dropping lines at the broker, never
// by backpressuring the ingestors.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	node := r.URL.Query().Get("node")
	sub := s.broker.Subscribe(node, streamBuffer)
	defer s.broker.Unsubscribe(sub)

	s.logger.Info("log stream started", "subscriber_id", sub.ID, "node", node)

	// Reader goroutine: we never expect client data, but reading is what
	// surfaces close frames.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-closed:
			s.logger.Info("log stream closed by client", "subscriber_id", sub.ID)
			return
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case line, ok := <-sub.Ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteJSON(line); err != nil {
				s.logger.Debug("log stream write failed", "subscriber_id", sub.ID, "error", err)
				return
			}
		}
	}
}
