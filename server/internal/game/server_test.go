package game

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/archive"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/metrics"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/network"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
)

// fakeTransport records outbound traffic and lets tests script inbound
// traffic. Broadcasts are recorded once, not per peer.
type fakeTransport struct {
	events       []network.ConnEvent
	peers        map[model.PlayerID]bool
	inbox        map[model.PlayerID][][]byte
	sent         map[model.PlayerID][]protocol.Event
	welcomed     map[model.PlayerID]model.PlayerID
	broadcasts   []protocol.Event
	disconnected map[model.PlayerID]string
	flushes      int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		peers:        make(map[model.PlayerID]bool),
		inbox:        make(map[model.PlayerID][][]byte),
		sent:         make(map[model.PlayerID][]protocol.Event),
		welcomed:     make(map[model.PlayerID]model.PlayerID),
		disconnected: make(map[model.PlayerID]string),
	}
}

func (f *fakeTransport) connect(t *testing.T, id model.PlayerID, protocolID uint64, name string) {
	t.Helper()
	hs, err := protocol.EncodeHandshake(protocolID, name)
	if err != nil {
		t.Fatalf("EncodeHandshake: %v", err)
	}
	f.peers[id] = true
	f.events = append(f.events, network.ConnEvent{Kind: network.PeerConnected, Peer: id, Handshake: hs})
}

func (f *fakeTransport) drop(id model.PlayerID) {
	delete(f.peers, id)
	f.events = append(f.events, network.ConnEvent{Kind: network.PeerDisconnected, Peer: id})
}

func (f *fakeTransport) submit(t *testing.T, id model.PlayerID, e protocol.Event) {
	t.Helper()
	payload, err := protocol.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	f.inbox[id] = append(f.inbox[id], payload)
}

func mustDecode(payload []byte) protocol.Event {
	e, err := protocol.Decode(payload)
	if err != nil {
		panic(err)
	}
	return e
}

func (f *fakeTransport) Send(id model.PlayerID, ch protocol.Channel, payload []byte) error {
	if !f.peers[id] {
		return network.ErrUnknownPeer
	}
	if ch == protocol.ChannelControl {
		welcome, err := protocol.DecodeWelcome(payload)
		if err != nil {
			panic(err)
		}
		f.welcomed[id] = welcome
		return nil
	}
	f.sent[id] = append(f.sent[id], mustDecode(payload))
	return nil
}

func (f *fakeTransport) Broadcast(ch protocol.Channel, payload []byte) {
	f.broadcasts = append(f.broadcasts, mustDecode(payload))
}

func (f *fakeTransport) PollEvents() []network.ConnEvent {
	events := f.events
	f.events = nil
	return events
}

func (f *fakeTransport) Receive(id model.PlayerID, ch protocol.Channel) ([]byte, bool) {
	if len(f.inbox[id]) == 0 {
		return nil, false
	}
	payload := f.inbox[id][0]
	f.inbox[id] = f.inbox[id][1:]
	return payload, true
}

func (f *fakeTransport) Peers() []model.PlayerID {
	ids := make([]model.PlayerID, 0, len(f.peers))
	for id := range f.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (f *fakeTransport) Disconnect(id model.PlayerID, reason string) {
	f.disconnected[id] = reason
	f.drop(id)
}

func (f *fakeTransport) Flush() { f.flushes++ }

type fakeArchiver struct {
	saved chan *archive.MatchRecord
}

func (a *fakeArchiver) SaveMatch(ctx context.Context, rec *archive.MatchRecord) error {
	a.saved <- rec
	return nil
}

func newTestServer(t *testing.T, conditions WinConditions) (*Server, *fakeTransport, *metrics.Metrics) {
	t.Helper()
	ft := newFakeTransport()
	m := metrics.New()
	srv := NewServer(ft, ServerOptions{
		Tables:     testTables(t),
		Layout:     testLayout(),
		Conditions: conditions,
		Metrics:    m,
	})
	return srv, ft, m
}

// joinBoth connects Alice as peer 1 and Bob as peer 2 in separate ticks.
func joinBoth(t *testing.T, srv *Server, ft *fakeTransport) {
	t.Helper()
	ft.connect(t, 1, protocol.ProtocolID, "Alice")
	srv.Tick()
	ft.connect(t, 2, protocol.ProtocolID, "Bob")
	srv.Tick()
}

func TestServerJoinStartsMatch(t *testing.T) {
	srv, ft, _ := newTestServer(t, nil)
	joinBoth(t, srv, ft)

	want := []protocol.Event{
		protocol.PlayerJoined{PlayerID: 1, Name: "Alice"},
		protocol.PlayerJoined{PlayerID: 2, Name: "Bob"},
		protocol.BeginGame{GoesFirst: 2},
	}
	if len(ft.broadcasts) != len(want) {
		t.Fatalf("broadcasts = %v, want %v", ft.broadcasts, want)
	}
	for i := range want {
		if ft.broadcasts[i] != want[i] {
			t.Errorf("broadcast %d = %s, want %s", i, protocol.String(ft.broadcasts[i]), protocol.String(want[i]))
		}
	}

	t.Run("PeersLearnTheirIDs", func(t *testing.T) {
		if ft.welcomed[1] != 1 || ft.welcomed[2] != 2 {
			t.Errorf("welcomes = %v", ft.welcomed)
		}
	})

	t.Run("LateJoinerGetsBackfill", func(t *testing.T) {
		if len(ft.sent[2]) != 1 || ft.sent[2][0] != want[0] {
			t.Errorf("backfill to peer 2 = %v", ft.sent[2])
		}
		if len(ft.sent[1]) != 0 {
			t.Errorf("first joiner received backfill %v", ft.sent[1])
		}
	})

	t.Run("StateMatchesBroadcasts", func(t *testing.T) {
		s := srv.State()
		if s.Stage != model.StageInGame || s.ActivePlayer != 2 {
			t.Errorf("stage=%v active=%d", s.Stage, s.ActivePlayer)
		}
		if s.Players[1].Faction != model.FactionVolcano || s.Players[2].Faction != model.FactionDinosaur {
			t.Error("factions not assigned by join order")
		}
		if len(s.History) != len(ft.broadcasts) {
			t.Errorf("history %d, broadcasts %d", len(s.History), len(ft.broadcasts))
		}
	})

	if ft.flushes != 2 {
		t.Errorf("flushes = %d, want one per tick", ft.flushes)
	}
}

func TestServerRejectsConnections(t *testing.T) {
	t.Run("BadHandshake", func(t *testing.T) {
		srv, ft, _ := newTestServer(t, nil)
		ft.connect(t, 1, 99, "Mallory")
		srv.Tick()
		if ft.disconnected[1] != "bad handshake" {
			t.Errorf("disconnect reason = %q", ft.disconnected[1])
		}
		if len(srv.State().Players) != 0 || len(ft.broadcasts) != 0 {
			t.Error("bad handshake registered a player")
		}
	})

	t.Run("MatchFull", func(t *testing.T) {
		srv, ft, m := newTestServer(t, nil)
		joinBoth(t, srv, ft)
		ft.connect(t, 3, protocol.ProtocolID, "Carol")
		srv.Tick()
		if ft.disconnected[3] != "match full" {
			t.Errorf("disconnect reason = %q", ft.disconnected[3])
		}
		if _, ok := srv.State().Players[3]; ok {
			t.Error("third peer registered")
		}
		if got := testutil.ToFloat64(m.EventsRejected.WithLabelValues("PlayerJoined")); got != 1 {
			t.Errorf("rejected joins = %v, want 1", got)
		}
		if len(ft.sent[3]) != 0 || ft.welcomed[3] != 0 {
			t.Error("rejected peer received a welcome or backfill")
		}
	})
}

func TestServerMessages(t *testing.T) {
	srv, ft, m := newTestServer(t, nil)
	joinBoth(t, srv, ft)
	base := len(ft.broadcasts)

	t.Run("Malformed", func(t *testing.T) {
		ft.inbox[2] = append(ft.inbox[2], []byte{0xEE, 1, 2})
		srv.Tick()
		if got := testutil.ToFloat64(m.MalformedMessages); got != 1 {
			t.Errorf("malformed = %v, want 1", got)
		}
		if len(ft.broadcasts) != base {
			t.Error("malformed message broadcast")
		}
	})

	t.Run("OutOfTurn", func(t *testing.T) {
		ft.submit(t, 1, protocol.EndTurn{PlayerID: 1})
		srv.Tick()
		if len(ft.broadcasts) != base {
			t.Error("out-of-turn event broadcast")
		}
		if got := testutil.ToFloat64(m.EventsRejected.WithLabelValues("EndTurn")); got != 1 {
			t.Errorf("rejected EndTurn = %v, want 1", got)
		}
	})

	t.Run("Impersonation", func(t *testing.T) {
		ft.submit(t, 1, protocol.EndTurn{PlayerID: 2})
		srv.Tick()
		if srv.State().ActivePlayer != 2 || len(ft.broadcasts) != base {
			t.Error("peer 1 ended peer 2's turn")
		}
	})

	t.Run("ServerOnlyEvent", func(t *testing.T) {
		ft.submit(t, 2, protocol.EndGame{Reason: protocol.PlayerWon{Winner: 2}})
		ft.submit(t, 2, protocol.PlayerDisconnected{PlayerID: 1})
		srv.Tick()
		if len(ft.broadcasts) != base || srv.State().Stage != model.StageInGame {
			t.Error("client-originated lifecycle event applied")
		}
	})

	t.Run("Accepted", func(t *testing.T) {
		ft.submit(t, 2, protocol.EndTurn{PlayerID: 2})
		srv.Tick()
		if len(ft.broadcasts) != base+1 || ft.broadcasts[base] != (protocol.EndTurn{PlayerID: 2}) {
			t.Fatalf("broadcasts = %v", ft.broadcasts[base:])
		}
		if srv.State().ActivePlayer != 1 {
			t.Errorf("active = %d, want 1", srv.State().ActivePlayer)
		}
		if got := testutil.ToFloat64(m.EventsAccepted.WithLabelValues("EndTurn")); got != 1 {
			t.Errorf("accepted EndTurn = %v, want 1", got)
		}
	})

	t.Run("UnregisteredPeerIgnored", func(t *testing.T) {
		ft.peers[7] = true
		ft.submit(t, 7, protocol.EndTurn{PlayerID: 7})
		before := testutil.ToFloat64(m.EventsRejected.WithLabelValues("EndTurn"))
		srv.Tick()
		if got := testutil.ToFloat64(m.EventsRejected.WithLabelValues("EndTurn")); got != before {
			t.Error("message from an unregistered peer was processed")
		}
		delete(ft.peers, 7)
	})
}

func TestServerDeclaresWinner(t *testing.T) {
	plugged := func(s *GameState) bool { return len(s.History) > 3 }
	srv, ft, _ := newTestServer(t, Predicates{Plugged: plugged})
	joinBoth(t, srv, ft)

	ft.submit(t, 2, protocol.EndTurn{PlayerID: 2})
	ft.submit(t, 1, protocol.EndTurn{PlayerID: 1})
	srv.Tick()

	n := len(ft.broadcasts)
	want := protocol.EndGame{Reason: protocol.PlayerWon{Winner: 2}}
	if n < 2 || ft.broadcasts[n-1] != want {
		t.Fatalf("last broadcast = %v, want %s", ft.broadcasts[n-1], protocol.String(want))
	}
	if srv.State().Stage != model.StageEnded {
		t.Errorf("stage = %v, want Ended", srv.State().Stage)
	}
	if ft.broadcasts[n-2] != (protocol.EndTurn{PlayerID: 2}) {
		t.Error("peer 1's EndTurn should be rejected once the match ended")
	}
}

func TestServerChecksWinnerAfterServerEvents(t *testing.T) {
	inGame := func(s *GameState) bool { return s.Stage == model.StageInGame }
	always := func(*GameState) bool { return true }
	srv, ft, m := newTestServer(t, Predicates{DinosDead: inGame, VillagesDestroyed: always})
	joinBoth(t, srv, ft)

	want := []protocol.Event{
		protocol.PlayerJoined{PlayerID: 1, Name: "Alice"},
		protocol.PlayerJoined{PlayerID: 2, Name: "Bob"},
		protocol.BeginGame{GoesFirst: 2},
		protocol.EndGame{Reason: protocol.PlayerWon{Winner: 1}},
	}
	if len(ft.broadcasts) != len(want) {
		t.Fatalf("broadcasts = %v, want %v", ft.broadcasts, want)
	}
	for i := range want {
		if ft.broadcasts[i] != want[i] {
			t.Errorf("broadcast %d = %s, want %s", i, protocol.String(ft.broadcasts[i]), protocol.String(want[i]))
		}
	}
	if srv.State().Stage != model.StageEnded {
		t.Errorf("stage = %v, want Ended", srv.State().Stage)
	}
	if got := testutil.ToFloat64(m.EventsRejected.WithLabelValues("EndGame")); got != 0 {
		t.Errorf("rejected EndGame = %v, want 0", got)
	}
}

func TestServerDisconnectEndsAndResetsMatch(t *testing.T) {
	ft := newFakeTransport()
	m := metrics.New()
	arch := &fakeArchiver{saved: make(chan *archive.MatchRecord, 1)}
	srv := NewServer(ft, ServerOptions{Tables: testTables(t), Layout: testLayout(), Metrics: m, Archiver: arch})
	firstMatch := srv.MatchID()
	joinBoth(t, srv, ft)

	ft.drop(1)
	srv.Tick()
	n := len(ft.broadcasts)
	if ft.broadcasts[n-2] != (protocol.PlayerDisconnected{PlayerID: 1}) ||
		ft.broadcasts[n-1] != (protocol.EndGame{Reason: protocol.PlayerLeft{PlayerID: 1}}) {
		t.Fatalf("tail broadcasts = %v", ft.broadcasts[n-2:])
	}
	if srv.State().Stage != model.StageEnded {
		t.Fatalf("stage = %v, want Ended", srv.State().Stage)
	}

	t.Run("NoJoinAfterEnd", func(t *testing.T) {
		ft.connect(t, 3, protocol.ProtocolID, "Carol")
		srv.Tick()
		if ft.disconnected[3] != "match over" {
			t.Errorf("disconnect reason = %q", ft.disconnected[3])
		}
	})

	ft.drop(2)
	srv.Tick()

	if srv.MatchID() == firstMatch {
		t.Error("match id not rotated")
	}
	if s := srv.State(); s.Stage != model.StagePreGame || len(s.Players) != 0 || len(s.History) != 0 {
		t.Errorf("new match not fresh: %+v", s)
	}
	if got := testutil.ToFloat64(m.MatchesCompleted); got != 1 {
		t.Errorf("matches completed = %v, want 1", got)
	}

	select {
	case rec := <-arch.saved:
		if rec.ID != firstMatch || len(rec.Players) != 2 || rec.Winner != nil {
			t.Errorf("archived record = %+v", rec)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("match was not archived")
	}
}

func TestServerRunStopsOnCancel(t *testing.T) {
	ft := newFakeTransport()
	srv := NewServer(ft, ServerOptions{Tables: testTables(t), TickInterval: time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := srv.Run(ctx); err != context.DeadlineExceeded {
		t.Errorf("Run = %v, want deadline exceeded", err)
	}
	if ft.flushes == 0 {
		t.Error("Run never ticked")
	}
}
