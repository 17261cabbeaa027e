package network

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/utils"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
)

// TCPServer accepts length-prefixed TCP peers and hands them to a Hub.
type TCPServer struct {
	listener net.Listener
	addr     string
	hub      *Hub
	wg       sync.WaitGroup
	shutdown chan struct{}
}

// NewTCPServer creates a TCPServer listening on addr once started.
func NewTCPServer(addr string, hub *Hub) *TCPServer {
	utils.LogInfof("Initializing TCP Server for %s...", addr)
	return &TCPServer{
		addr:     addr,
		hub:      hub,
		shutdown: make(chan struct{}),
	}
}

// Start begins listening for TCP connections.
func (s *TCPServer) Start() error {
	var err error
	s.listener, err = net.Listen("tcp", s.addr)
	if err != nil {
		utils.LogErrorf("Error starting TCP server on %s: %v", s.addr, err)
		return err
	}
	utils.LogInfof("TCP Server started and listening on %s", s.listener.Addr())

	s.wg.Add(1)
	go s.acceptConnections()
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *TCPServer) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *TCPServer) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				utils.LogInfo("TCP accept loop shutting down.")
				return
			default:
				utils.LogErrorf("Error accepting connection: %v", err)
				if errors.Is(err, net.ErrClosed) {
					return
				}
				continue
			}
		}
		utils.LogInfof("Accepted new connection from %s", conn.RemoteAddr())

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection reads the handshake frame, attaches the peer to the hub,
// then forwards every following frame until the connection ends.
func (s *TCPServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, handshake, err := ReadFrame(conn)
	if err != nil {
		utils.LogWarnf("[%s] No handshake: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	id := s.hub.Attach(&tcpPeer{conn: conn}, handshake)
	for {
		ch, payload, err := ReadFrame(conn)
		if err != nil {
			s.handleReadError(conn, id, err)
			return
		}
		s.hub.Deliver(id, ch, payload)

		select {
		case <-s.shutdown:
			s.hub.Detach(id, "server shutdown")
			return
		default:
		}
	}
}

func (s *TCPServer) handleReadError(conn net.Conn, id model.PlayerID, err error) {
	reason := err.Error()
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF):
		utils.LogInfof("[%s] Connection closed by client (EOF).", conn.RemoteAddr())
		reason = "EOF"
	case errors.As(err, &ne) && ne.Timeout():
		utils.LogInfof("[%s] Connection timeout.", conn.RemoteAddr())
		reason = "Timeout"
	case errors.Is(err, net.ErrClosed):
		reason = "closed"
	default:
		utils.LogWarnf("[%s] Error reading from connection: %v", conn.RemoteAddr(), err)
	}
	s.hub.Detach(id, reason)
}

// Stop closes the listener and every connection, then waits for the handlers.
func (s *TCPServer) Stop() {
	utils.LogInfo("Attempting to stop TCP Server...")
	close(s.shutdown)
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			utils.LogErrorf("Error closing TCP listener: %v", err)
		}
	}
	s.hub.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		utils.LogInfo("TCP Server stopped successfully.")
	case <-time.After(10 * time.Second):
		utils.LogWarn("TCP Server shutdown timed out waiting for goroutines.")
	}
}

type tcpPeer struct {
	mu   sync.Mutex
	conn net.Conn
}

func (p *tcpPeer) WriteFrame(ch protocol.Channel, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return WriteFrame(p.conn, ch, payload)
}

func (p *tcpPeer) Close() error {
	return p.conn.Close()
}
