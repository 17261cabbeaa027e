package network

import (
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	godsutils "github.com/emirpasic/gods/utils"
	"golang.org/x/time/rate"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/metrics"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/utils"
)

// PeerConn is the write side of one connected peer.
type PeerConn interface {
	WriteFrame(ch protocol.Channel, payload []byte) error
	Close() error
}

type frame struct {
	ch      protocol.Channel
	payload []byte
}

type peer struct {
	id        model.PlayerID
	conn      PeerConn
	inbox     map[protocol.Channel][][]byte
	outbox    []frame
	limiter   *rate.Limiter
	// announced is set once the connect event has been polled. Broadcasts
	// skip peers the match loop has not seen yet.
	announced bool
}

// Hub implements Transport on top of any number of listeners. Listener
// goroutines call Attach, Deliver and Detach; the match loop polls the
// Transport methods from its own goroutine.
type Hub struct {
	mu      sync.Mutex
	ids     *utils.IDSequence
	peers   *treemap.Map // uint64 -> *peer
	events  []ConnEvent
	limit   rate.Limit
	burst   int
	metrics *metrics.Metrics
}

// NewHub creates a hub. maxPerSecond caps inbound messages per peer; zero
// or less disables the cap.
func NewHub(maxPerSecond int, m *metrics.Metrics) *Hub {
	h := &Hub{
		ids:     utils.NewIDSequence(),
		peers:   treemap.NewWith(godsutils.UInt64Comparator),
		limit:   rate.Inf,
		metrics: m,
	}
	if maxPerSecond > 0 {
		h.limit = rate.Limit(maxPerSecond)
		h.burst = maxPerSecond
	}
	return h
}

// Attach registers a new connection and queues its connect event.
func (h *Hub) Attach(conn PeerConn, handshake []byte) model.PlayerID {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := model.PlayerID(h.ids.Next())
	h.peers.Put(uint64(id), &peer{
		id:      id,
		conn:    conn,
		inbox:   make(map[protocol.Channel][][]byte),
		limiter: rate.NewLimiter(h.limit, h.burst),
	})
	h.events = append(h.events, ConnEvent{Kind: PeerConnected, Peer: id, Handshake: handshake})
	h.metrics.ConnectedPeers.Set(float64(h.peers.Size()))
	utils.LogInfof("[Hub] Peer %d attached.", id)
	return id
}

// Deliver queues an inbound payload. It reports false if the peer is gone or
// the payload was dropped by the rate limit.
func (h *Hub) Deliver(id model.PlayerID, ch protocol.Channel, payload []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.get(id)
	if !ok {
		return false
	}
	if !p.limiter.Allow() {
		h.metrics.RateLimited.Inc()
		utils.LogDebugf("[Hub] Peer %d over rate limit, dropping %d bytes.", id, len(payload))
		return false
	}
	p.inbox[ch] = append(p.inbox[ch], payload)
	return true
}

// Detach removes a peer whose connection ended and queues its disconnect
// event. Detaching an unknown peer is a no-op.
func (h *Hub) Detach(id model.PlayerID, reason string) {
	h.mu.Lock()
	p, ok := h.remove(id, reason)
	h.mu.Unlock()
	if ok {
		p.conn.Close()
	}
}

// Close drops every peer without queuing events. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	var conns []PeerConn
	for _, v := range h.peers.Values() {
		conns = append(conns, v.(*peer).conn)
	}
	h.peers.Clear()
	h.metrics.ConnectedPeers.Set(0)
	h.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

func (h *Hub) Send(id model.PlayerID, ch protocol.Channel, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.get(id)
	if !ok {
		return ErrUnknownPeer
	}
	p.outbox = append(p.outbox, frame{ch: ch, payload: payload})
	return nil
}

func (h *Hub) Broadcast(ch protocol.Channel, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, v := range h.peers.Values() {
		p := v.(*peer)
		if p.announced {
			p.outbox = append(p.outbox, frame{ch: ch, payload: payload})
		}
	}
}

func (h *Hub) PollEvents() []ConnEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := h.events
	h.events = nil
	for _, ev := range events {
		if ev.Kind != PeerConnected {
			continue
		}
		if p, ok := h.get(ev.Peer); ok {
			p.announced = true
		}
	}
	return events
}

func (h *Hub) Receive(id model.PlayerID, ch protocol.Channel) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.get(id)
	if !ok || len(p.inbox[ch]) == 0 {
		return nil, false
	}
	payload := p.inbox[ch][0]
	p.inbox[ch] = p.inbox[ch][1:]
	return payload, true
}

func (h *Hub) Peers() []model.PlayerID {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := h.peers.Keys()
	ids := make([]model.PlayerID, len(keys))
	for i, k := range keys {
		ids[i] = model.PlayerID(k.(uint64))
	}
	return ids
}

func (h *Hub) Disconnect(id model.PlayerID, reason string) {
	h.mu.Lock()
	p, ok := h.remove(id, reason)
	h.mu.Unlock()
	if !ok {
		return
	}
	writeAll(p)
	p.conn.Close()
}

// Flush writes every queued outbound frame. A peer whose write fails is detached.
func (h *Hub) Flush() {
	h.mu.Lock()
	pending := make([]*peer, 0, h.peers.Size())
	for _, v := range h.peers.Values() {
		p := v.(*peer)
		if len(p.outbox) == 0 {
			continue
		}
		pending = append(pending, &peer{id: p.id, conn: p.conn, outbox: p.outbox})
		p.outbox = nil
	}
	h.mu.Unlock()

	for _, p := range pending {
		if err := writeAll(p); err != nil {
			utils.LogWarnf("[Hub] Write to peer %d failed: %v", p.id, err)
			h.Detach(p.id, err.Error())
		}
	}
}

func writeAll(p *peer) error {
	for _, f := range p.outbox {
		if err := p.conn.WriteFrame(f.ch, f.payload); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) get(id model.PlayerID) (*peer, bool) {
	v, ok := h.peers.Get(uint64(id))
	if !ok {
		return nil, false
	}
	return v.(*peer), true
}

// remove must be called with h.mu held.
func (h *Hub) remove(id model.PlayerID, reason string) (*peer, bool) {
	p, ok := h.get(id)
	if !ok {
		return nil, false
	}
	h.peers.Remove(uint64(id))
	h.events = append(h.events, ConnEvent{Kind: PeerDisconnected, Peer: id})
	h.metrics.ConnectedPeers.Set(float64(h.peers.Size()))
	utils.LogInfof("[Hub] Peer %d detached: %s", id, reason)
	return p, true
}
