package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// streamSet tracks open streams so shutdown can close them; hijacked
// connections are invisible to http.Server.Shutdown.
type streamSet struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newStreamSet() *streamSet {
	return &streamSet{conns: make(map[*websocket.Conn]struct{})}
}

func (s *streamSet) add(c *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *streamSet) remove(c *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *streamSet) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		deadline := time.Now().Add(writeWait)
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		_ = c.Close()
	}
}

// streamPos pushes one freshly queried position per tick until the peer
// goes away. Each push is an ordinary query, so the body only moves when a
// subscriber asks for it.
func (s *Server) streamPos(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}

	upgrader := upgrader
	upgrader.CheckOrigin = s.checkOrigin

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Stream upgrade failed", "id", id, "error", err)
		return
	}
	s.streams.add(conn)
	defer func() {
		s.streams.remove(conn)
		conn.Close()
	}()

	// The reader only exists to notice the peer closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for {
		pos, err := s.engine.QueryPosition(id)
		if err != nil {
			s.log.Error("Stream query failed", "id", id, "error", err)
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(pos); err != nil {
			s.log.Debug("Stream closed", "id", id, "error", err)
			return
		}

		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || origin == s.origin
}
