package protocol

import (
	"fmt"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
)

// ProtocolID must match between client and server for a handshake to succeed.
const ProtocolID uint64 = 1208

// Channel separates traffic classes on a transport.
type Channel uint8

const (
	// ChannelEvents carries serialized game events, reliable and ordered.
	ChannelEvents Channel = 0
	// ChannelControl carries session messages that are not game events,
	// such as the welcome that tells a peer its assigned id.
	ChannelControl Channel = 1
)

// Event is the closed set of state transitions a match can go through.
// Events are immutable values; they are copied into history, never mutated.
type Event interface {
	isEvent()
	// EventName is the variant name used in logs.
	EventName() string
}

// EndReason explains why a match ended.
type EndReason interface {
	isEndReason()
}

// PlayerLeft ends a match because a participant disconnected.
type PlayerLeft struct {
	PlayerID model.PlayerID
}

// PlayerWon ends a match because a win condition was met.
type PlayerWon struct {
	Winner model.PlayerID
}

func (PlayerLeft) isEndReason() {}
func (PlayerWon) isEndReason() {}

// BeginGame starts play with GoesFirst as the active player.
type BeginGame struct {
	GoesFirst model.PlayerID
}

// EndGame moves the match to its final stage.
type EndGame struct {
	Reason EndReason
}

// PlayerJoined registers a new participant.
type PlayerJoined struct {
	PlayerID model.PlayerID
	Name     string
}

// PlayerDisconnected removes a participant.
type PlayerDisconnected struct {
	PlayerID model.PlayerID
}

// BuildUnit recruits a unit at a friendly building on tile At.
type BuildUnit struct {
	PlayerID model.PlayerID
	At       uint32
	UnitKind model.UnitKind
}

// MoveUnit moves the unit on tile From to tile To, attacking an enemy there.
type MoveUnit struct {
	PlayerID model.PlayerID
	From     uint32
	To       uint32
}

// EndTurn passes the turn to the other player.
type EndTurn struct {
	PlayerID model.PlayerID
}

func (BeginGame) isEvent() {}
func (EndGame) isEvent() {}
func (PlayerJoined) isEvent() {}
func (PlayerDisconnected) isEvent() {}
func (BuildUnit) isEvent() {}
func (MoveUnit) isEvent() {}
func (EndTurn) isEvent() {}

func (BeginGame) EventName() string { return "BeginGame" }
func (EndGame) EventName() string { return "EndGame" }
func (PlayerJoined) EventName() string { return "PlayerJoined" }
func (PlayerDisconnected) EventName() string { return "PlayerDisconnected" }
func (BuildUnit) EventName() string { return "BuildUnit" }
func (MoveUnit) EventName() string { return "MoveUnit" }
func (EndTurn) EventName() string { return "EndTurn" }

// ActingPlayer returns the player issuing a turn action. Only BuildUnit,
// MoveUnit and EndTurn are submitted by players; every other event is
// synthesized by the server.
func ActingPlayer(e Event) (model.PlayerID, bool) {
	switch ev := e.(type) {
	case BuildUnit:
		return ev.PlayerID, true
	case MoveUnit:
		return ev.PlayerID, true
	case EndTurn:
		return ev.PlayerID, true
	}
	return 0, false
}

// Describe renders an event as a flat map for logs and archived histories.
func Describe(e Event) map[string]interface{} {
	d := map[string]interface{}{"type": e.EventName()}
	switch ev := e.(type) {
	case BeginGame:
		d["goesFirst"] = ev.GoesFirst
	case EndGame:
		switch r := ev.Reason.(type) {
		case PlayerLeft:
			d["reason"] = "PlayerLeft"
			d["playerId"] = r.PlayerID
		case PlayerWon:
			d["reason"] = "PlayerWon"
			d["winner"] = r.Winner
		}
	case PlayerJoined:
		d["playerId"] = ev.PlayerID
		d["name"] = ev.Name
	case PlayerDisconnected:
		d["playerId"] = ev.PlayerID
	case BuildUnit:
		d["playerId"] = ev.PlayerID
		d["at"] = ev.At
		d["unitKind"] = ev.UnitKind
	case MoveUnit:
		d["playerId"] = ev.PlayerID
		d["from"] = ev.From
		d["to"] = ev.To
	case EndTurn:
		d["playerId"] = ev.PlayerID
	}
	return d
}

// String formats an event for log lines.
func String(e Event) string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s%+v", e.EventName(), e)
}
