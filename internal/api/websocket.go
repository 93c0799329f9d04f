package api

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// upgrader configures the WebSocket upgrader. Origin checking is
// handled by the CORS middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleWebSocket upgrades the connection and attaches it to the hub.
// Every connection starts as an app client; the hardware controller
// promotes itself with an IDENTIFY message once attached.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	if s.wsCfg.MaxMessageSize > 0 {
		conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	}

	client := s.hub.Attach(conn)
	s.logger.Debug("websocket client attached", "client_id", client.ID(), "remote", r.RemoteAddr)
}
