package network

import (
	"errors"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
)

// ErrUnknownPeer is returned when addressing a peer that is not connected.
var ErrUnknownPeer = errors.New("network: unknown peer")

// ConnEventKind distinguishes connection lifecycle signals.
type ConnEventKind int

const (
	PeerConnected ConnEventKind = iota
	PeerDisconnected
)

// ConnEvent is a connection lifecycle signal surfaced by PollEvents.
type ConnEvent struct {
	Kind ConnEventKind
	Peer model.PlayerID
	// Handshake is the payload the peer sent on connect. Empty for disconnects.
	Handshake []byte
}

// Transport is what the match loop needs from the network. All methods are
// non-blocking: inbound traffic is polled, outbound traffic is queued until
// Flush.
type Transport interface {
	Send(peer model.PlayerID, ch protocol.Channel, payload []byte) error
	Broadcast(ch protocol.Channel, payload []byte)
	PollEvents() []ConnEvent
	Receive(peer model.PlayerID, ch protocol.Channel) ([]byte, bool)
	// Peers lists connected peers in ascending id order.
	Peers() []model.PlayerID
	// Disconnect flushes anything queued for peer, then drops it.
	Disconnect(peer model.PlayerID, reason string)
	Flush()
}
