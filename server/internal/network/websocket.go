package network

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/utils"
)

// WebSocketServer upgrades HTTP requests into hub peers. Each binary message
// carries one frame body; the first one is the handshake.
type WebSocketServer struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewWebSocketServer creates the upgrade handler. Origins are not checked.
func NewWebSocketServer(hub *Hub) *WebSocketServer {
	return &WebSocketServer{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and pumps messages into the hub.
func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.LogWarnf("[%s] WebSocket upgrade failed: %v", r.RemoteAddr, err)
		return
	}
	conn.SetReadLimit(MaxMessageSize)

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, body, err := conn.ReadMessage()
	if err != nil {
		utils.LogWarnf("[%s] No handshake: %v", r.RemoteAddr, err)
		conn.Close()
		return
	}
	_, handshake, err := DecodeBody(body)
	if err != nil {
		utils.LogWarnf("[%s] Bad handshake frame: %v", r.RemoteAddr, err)
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	id := s.hub.Attach(&wsPeer{conn: conn}, handshake)
	for {
		kind, body, err := conn.ReadMessage()
		if err != nil {
			reason := err.Error()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = "closed by client"
			}
			s.hub.Detach(id, reason)
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		ch, payload, err := DecodeBody(body)
		if err != nil {
			continue
		}
		s.hub.Deliver(id, ch, payload)
	}
}

type wsPeer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *wsPeer) WriteFrame(ch protocol.Channel, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteMessage(websocket.BinaryMessage, EncodeBody(ch, payload))
}

func (p *wsPeer) Close() error {
	return p.conn.Close()
}
