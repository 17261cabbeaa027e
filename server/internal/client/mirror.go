// Package client keeps a local replica of a match by consuming the events the
// server broadcasts.
package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/game"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/utils"
)

// ErrDesync is returned when a server event cannot be applied to the replica.
var ErrDesync = errors.New("client: replica out of sync with server")

// Mirror is the client-side replica. Events from the server are consumed
// without validation since the server already validated them. Apply and Drain
// may be called from different goroutines.
type Mirror struct {
	mu        sync.Mutex
	tables    *model.Tables
	state     *game.GameState
	pending   []protocol.Event
	observers []func(protocol.Event)
}

// NewMirror creates a replica starting from the same layout as the server.
func NewMirror(tables *model.Tables, layout *model.Layout) *Mirror {
	return &Mirror{
		tables: tables,
		state:  game.NewGameState(tables, layout),
	}
}

// Apply decodes one server payload and consumes it. Malformed payloads are
// dropped and reported as protocol.ErrMalformed.
func (m *Mirror) Apply(payload []byte) (protocol.Event, error) {
	e, err := protocol.Decode(payload)
	if err != nil {
		utils.LogDebugf("[Mirror] Dropping malformed payload: %v", err)
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.consume(e); err != nil {
		return nil, err
	}
	m.pending = append(m.pending, e)
	return e, nil
}

func (m *Mirror) consume(e protocol.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrDesync, protocol.String(e), r)
		}
	}()
	game.Consume(m.state, m.tables, e)
	return nil
}

// Subscribe registers fn to receive every event on Drain.
func (m *Mirror) Subscribe(fn func(protocol.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Drain hands every queued event to every observer once, in arrival order,
// and empties the queue. It returns the number of events delivered.
func (m *Mirror) Drain() int {
	m.mu.Lock()
	events := m.pending
	m.pending = nil
	observers := make([]func(protocol.Event), len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, e := range events {
		for _, fn := range observers {
			fn(e)
		}
	}
	return len(events)
}

// State returns a deep copy of the replica.
func (m *Mirror) State() *game.GameState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}
