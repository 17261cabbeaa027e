package game

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/archive"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/metrics"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/network"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/utils"
)

// DefaultTickInterval is how often the loop drains the transport.
const DefaultTickInterval = 50 * time.Millisecond

const archiveTimeout = 10 * time.Second

// ServerOptions configures a Server. Tables is required.
type ServerOptions struct {
	Tables       *model.Tables
	Layout       *model.Layout
	Conditions   WinConditions    // defaults to NoWinConditions
	Metrics      *metrics.Metrics // defaults to a private registry
	Archiver     archive.Archiver // optional
	TickInterval time.Duration    // defaults to DefaultTickInterval
}

// Server owns the canonical GameState of one match at a time and drives it
// from transport traffic. It is not safe for concurrent use: every method
// must be called from the goroutine that ticks it.
type Server struct {
	transport  network.Transport
	tables     *model.Tables
	layout     *model.Layout
	conditions WinConditions
	metrics    *metrics.Metrics
	archiver   archive.Archiver
	interval   time.Duration

	state     *GameState
	matchID   string
	startedAt time.Time
}

// NewServer creates a server with a fresh PreGame match.
func NewServer(transport network.Transport, opts ServerOptions) *Server {
	s := &Server{
		transport:  transport,
		tables:     opts.Tables,
		layout:     opts.Layout,
		conditions: opts.Conditions,
		metrics:    opts.Metrics,
		archiver:   opts.Archiver,
		interval:   opts.TickInterval,
	}
	if s.conditions == nil {
		s.conditions = NoWinConditions
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.interval <= 0 {
		s.interval = DefaultTickInterval
	}
	s.newMatch()
	return s
}

func (s *Server) newMatch() {
	s.state = NewGameState(s.tables, s.layout)
	s.matchID = uuid.NewString()
	s.startedAt = time.Now()
	utils.LogInfof("[Match %s] Waiting for players.", s.matchID)
}

// State returns a deep copy of the current match state.
func (s *Server) State() *GameState {
	return s.state.Clone()
}

// History returns a copy of the accepted events of the current match.
func (s *Server) History() []protocol.Event {
	return append([]protocol.Event(nil), s.state.History...)
}

// MatchID identifies the current match.
func (s *Server) MatchID() string {
	return s.matchID
}

// Run ticks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick drains connection events, then every peer's pending messages in
// ascending peer order, then flushes outbound traffic.
func (s *Server) Tick() {
	for _, ev := range s.transport.PollEvents() {
		switch ev.Kind {
		case network.PeerConnected:
			s.handleConnect(ev.Peer, ev.Handshake)
		case network.PeerDisconnected:
			s.handleDisconnect(ev.Peer)
		}
	}
	for _, peer := range s.transport.Peers() {
		for {
			payload, ok := s.transport.Receive(peer, protocol.ChannelEvents)
			if !ok {
				break
			}
			s.handleMessage(peer, payload)
		}
	}
	s.transport.Flush()
}

func (s *Server) handleConnect(peer model.PlayerID, handshake []byte) {
	protocolID, name, err := protocol.DecodeHandshake(handshake)
	if err != nil || protocolID != protocol.ProtocolID {
		utils.LogWarnf("[Match %s] Peer %d sent a bad handshake (protocol %d, err %v).", s.matchID, peer, protocolID, err)
		s.transport.Disconnect(peer, "bad handshake")
		return
	}
	if s.state.Stage == model.StageEnded {
		s.transport.Disconnect(peer, "match over")
		return
	}
	join := protocol.PlayerJoined{PlayerID: peer, Name: name}
	if !Validate(s.state, s.tables, join) {
		utils.LogWarnf("[Match %s] Rejecting peer %d (%s): match full.", s.matchID, peer, name)
		s.metrics.EventsRejected.WithLabelValues(join.EventName()).Inc()
		s.transport.Disconnect(peer, "match full")
		return
	}

	s.transport.Send(peer, protocol.ChannelControl, protocol.EncodeWelcome(peer))
	for _, id := range s.state.PlayerIDs() {
		existing := protocol.PlayerJoined{PlayerID: id, Name: s.state.Players[id].Name}
		if payload, err := protocol.Encode(existing); err == nil {
			s.transport.Send(peer, protocol.ChannelEvents, payload)
		}
	}
	s.apply(join)
	utils.LogInfof("[Match %s] Player %d (%s) joined as %s.", s.matchID, peer, name, s.state.Players[peer].Faction)

	if len(s.state.Players) == model.MaxPlayers {
		s.apply(protocol.BeginGame{GoesFirst: peer})
	}
}

func (s *Server) handleDisconnect(peer model.PlayerID) {
	if _, ok := s.state.Players[peer]; !ok {
		return
	}
	utils.LogInfof("[Match %s] Player %d left.", s.matchID, peer)
	s.apply(protocol.PlayerDisconnected{PlayerID: peer})
	s.apply(protocol.EndGame{Reason: protocol.PlayerLeft{PlayerID: peer}})

	if len(s.state.Players) == 0 && s.state.Stage == model.StageEnded {
		s.finishMatch()
	}
}

func (s *Server) handleMessage(peer model.PlayerID, payload []byte) {
	if _, ok := s.state.Players[peer]; !ok {
		return
	}
	e, err := protocol.Decode(payload)
	if err != nil {
		s.metrics.MalformedMessages.Inc()
		utils.LogDebugf("[Match %s] Dropping malformed message from %d: %v", s.matchID, peer, err)
		return
	}
	if actor, ok := protocol.ActingPlayer(e); !ok || actor != peer {
		s.reject(peer, e)
		return
	}
	s.apply(e)
}

// apply validates, consumes and broadcasts e, then checks the win conditions
// unless e itself ends the match. It reports whether e was accepted.
func (s *Server) apply(e protocol.Event) bool {
	if !Validate(s.state, s.tables, e) {
		actor, _ := protocol.ActingPlayer(e)
		s.reject(actor, e)
		return false
	}
	payload, err := protocol.Encode(e)
	if err != nil {
		utils.LogErrorf("[Match %s] Cannot encode %s: %v", s.matchID, protocol.String(e), err)
		return false
	}
	Consume(s.state, s.tables, e)
	s.transport.Broadcast(protocol.ChannelEvents, payload)
	s.metrics.EventsAccepted.WithLabelValues(e.EventName()).Inc()

	if _, ending := e.(protocol.EndGame); !ending && s.state.Stage == model.StageInGame {
		if winner, ok := DetermineWinner(s.state, s.conditions); ok {
			utils.LogInfof("[Match %s] Player %d wins.", s.matchID, winner)
			s.apply(protocol.EndGame{Reason: protocol.PlayerWon{Winner: winner}})
		}
	}
	return true
}

func (s *Server) reject(peer model.PlayerID, e protocol.Event) {
	s.metrics.EventsRejected.WithLabelValues(e.EventName()).Inc()
	utils.LogWarnf("[Match %s] Rejected event from player %d: %s", s.matchID, peer, protocol.String(e))
}

// finishMatch archives the ended match and starts a new one.
func (s *Server) finishMatch() {
	s.metrics.MatchesCompleted.Inc()
	if s.archiver != nil {
		rec := archive.NewMatchRecord(s.matchID, s.startedAt, time.Now(), s.state.History)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			defer cancel()
			if err := s.archiver.SaveMatch(ctx, rec); err != nil {
				utils.LogErrorf("[Match %s] Archiving failed: %v", rec.ID, err)
			}
		}()
	}
	utils.LogInfof("[Match %s] Ended after %d events.", s.matchID, len(s.state.History))
	s.newMatch()
}
