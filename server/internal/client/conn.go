package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/network"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
)

// Conn is one client connection to a match server.
type Conn interface {
	Send(ctx context.Context, ch protocol.Channel, payload []byte) error
	Receive(ctx context.Context) (protocol.Channel, []byte, error)
	Close() error
}

// DialTCP connects to the TCP listener and sends the handshake.
func DialTCP(ctx context.Context, addr, name string) (Conn, error) {
	hs, err := protocol.EncodeHandshake(protocol.ProtocolID, name)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c := &tcpConn{conn: nc}
	if err := c.Send(ctx, protocol.ChannelEvents, hs); err != nil {
		nc.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	return c, nil
}

type tcpConn struct {
	mu   sync.Mutex
	conn net.Conn
}

func (c *tcpConn) Send(ctx context.Context, ch protocol.Channel, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline, _ := ctx.Deadline()
	c.conn.SetWriteDeadline(deadline)
	return network.WriteFrame(c.conn, ch, payload)
}

func (c *tcpConn) Receive(ctx context.Context) (protocol.Channel, []byte, error) {
	deadline, _ := ctx.Deadline()
	c.conn.SetReadDeadline(deadline)
	return network.ReadFrame(c.conn)
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

// DialWebSocket connects to the /ws endpoint and sends the handshake.
func DialWebSocket(ctx context.Context, url, name string) (Conn, error) {
	hs, err := protocol.EncodeHandshake(protocol.ProtocolID, name)
	if err != nil {
		return nil, err
	}
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	ws.SetReadLimit(network.MaxMessageSize)
	c := &wsConn{conn: ws}
	if err := c.Send(ctx, protocol.ChannelEvents, hs); err != nil {
		ws.Close(websocket.StatusInternalError, "handshake failed")
		return nil, fmt.Errorf("handshake: %w", err)
	}
	return c, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Send(ctx context.Context, ch protocol.Channel, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageBinary, network.EncodeBody(ch, payload))
}

func (c *wsConn) Receive(ctx context.Context) (protocol.Channel, []byte, error) {
	for {
		typ, body, err := c.conn.Read(ctx)
		if err != nil {
			return 0, nil, err
		}
		if typ != websocket.MessageBinary {
			continue
		}
		return network.DecodeBody(body)
	}
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
