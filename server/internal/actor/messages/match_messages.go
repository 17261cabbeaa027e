package messages

import (
	"github.com/xtr3m3nerd/DinoJam2/server/internal/game"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
)

// Tick asks the MatchActor to run one iteration of the match loop.
type Tick struct{}

// SnapshotRequest asks for a deep copy of the current match state.
type SnapshotRequest struct{}

// SnapshotResponse is the reply to SnapshotRequest.
type SnapshotResponse struct {
	MatchID string
	State   *game.GameState
}

// HistoryRequest asks for the accepted events of the current match.
type HistoryRequest struct{}

// HistoryResponse is the reply to HistoryRequest.
type HistoryResponse struct {
	MatchID string
	Events  []protocol.Event
}

// Ping is a simple message that can be used for health checks or keep-alives.
type Ping struct {
	Timestamp int64
}

// Pong is the response to a Ping.
type Pong struct {
	Timestamp    int64
	ResponseTime int64
}
