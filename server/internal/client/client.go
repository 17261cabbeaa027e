package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/utils"
)

var (
	// ErrConnectionLost wraps every transport failure seen by a Client.
	ErrConnectionLost = errors.New("client: connection lost")
	// ErrNotWelcomed is returned when acting before the server assigned an id.
	ErrNotWelcomed = errors.New("client: player id not assigned yet")
)

// Client pumps server traffic into a Mirror and submits the local player's
// actions.
type Client struct {
	conn   Conn
	mirror *Mirror

	mu sync.Mutex
	id model.PlayerID
}

// New wraps an established connection.
func New(conn Conn, mirror *Mirror) *Client {
	return &Client{conn: conn, mirror: mirror}
}

// Mirror returns the replica fed by Run.
func (c *Client) Mirror() *Mirror {
	return c.mirror
}

// ID returns the id the server assigned to this client.
func (c *Client) ID() (model.PlayerID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id, c.id != 0
}

// Run reads from the connection until ctx is done or the connection fails.
// Transport failures are returned wrapped in ErrConnectionLost; a replica
// that cannot apply a server event returns ErrDesync.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	for {
		ch, payload, err := c.conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}
		switch ch {
		case protocol.ChannelControl:
			id, err := protocol.DecodeWelcome(payload)
			if err != nil {
				utils.LogWarnf("[Client] Bad control message: %v", err)
				continue
			}
			c.mu.Lock()
			c.id = id
			c.mu.Unlock()
			utils.LogInfof("[Client] Joined as player %d.", id)
		case protocol.ChannelEvents:
			if _, err := c.mirror.Apply(payload); errors.Is(err, ErrDesync) {
				return err
			}
		}
	}
}

// Submit encodes and sends e as-is.
func (c *Client) Submit(ctx context.Context, e protocol.Event) error {
	payload, err := protocol.Encode(e)
	if err != nil {
		return err
	}
	if err := c.conn.Send(ctx, protocol.ChannelEvents, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	return nil
}

// BuildUnit asks to build kind on the building at tile at.
func (c *Client) BuildUnit(ctx context.Context, at uint32, kind model.UnitKind) error {
	return c.act(ctx, func(id model.PlayerID) protocol.Event {
		return protocol.BuildUnit{PlayerID: id, At: at, UnitKind: kind}
	})
}

// MoveUnit asks to move the unit on tile from to tile to.
func (c *Client) MoveUnit(ctx context.Context, from, to uint32) error {
	return c.act(ctx, func(id model.PlayerID) protocol.Event {
		return protocol.MoveUnit{PlayerID: id, From: from, To: to}
	})
}

// EndTurn passes the turn to the opponent.
func (c *Client) EndTurn(ctx context.Context) error {
	return c.act(ctx, func(id model.PlayerID) protocol.Event {
		return protocol.EndTurn{PlayerID: id}
	})
}

func (c *Client) act(ctx context.Context, build func(model.PlayerID) protocol.Event) error {
	id, ok := c.ID()
	if !ok {
		return ErrNotWelcomed
	}
	return c.Submit(ctx, build(id))
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
