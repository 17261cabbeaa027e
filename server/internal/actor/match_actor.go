package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/actor/messages"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/game"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/utils"
)

// MatchActor owns a game.Server. Every tick and every read of the match
// state goes through its mailbox, so the server is only touched from one
// goroutine at a time.
type MatchActor struct {
	server   *game.Server
	interval time.Duration
	done     chan struct{}
}

// NewMatchActor creates a MatchActor. A positive interval makes the actor
// tick itself; otherwise ticks must be sent as *messages.Tick.
func NewMatchActor(server *game.Server, interval time.Duration) actor.Actor {
	return &MatchActor{
		server:   server,
		interval: interval,
	}
}

// Receive is the message handling loop for the MatchActor.
func (a *MatchActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		utils.LogInfof("[MatchActor %s] Started, match %s.", ctx.Self().Id, a.server.MatchID())
		if a.interval > 0 {
			a.done = make(chan struct{})
			go a.tickLoop(ctx.ActorSystem(), ctx.Self(), a.done)
		}

	case *actor.Stopping:
		utils.LogInfof("[MatchActor %s] Stopping.", ctx.Self().Id)
		if a.done != nil {
			close(a.done)
			a.done = nil
		}

	case *actor.Stopped:
		utils.LogInfof("[MatchActor %s] Stopped.", ctx.Self().Id)

	case *messages.Tick:
		a.server.Tick()

	case *messages.SnapshotRequest:
		ctx.Respond(&messages.SnapshotResponse{MatchID: a.server.MatchID(), State: a.server.State()})

	case *messages.HistoryRequest:
		ctx.Respond(&messages.HistoryResponse{MatchID: a.server.MatchID(), Events: a.server.History()})

	case *messages.Ping:
		ctx.Respond(&messages.Pong{Timestamp: msg.Timestamp, ResponseTime: utils.GetCurrentTimestampMS()})

	default:
		utils.LogDebugf("[MatchActor %s] Received unknown message: %+v", ctx.Self().Id, msg)
	}
}

func (a *MatchActor) tickLoop(system *actor.ActorSystem, self *actor.PID, done <-chan struct{}) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			system.Root.Send(self, &messages.Tick{})
		}
	}
}

// PropsForMatch creates actor.Props for MatchActor.
func PropsForMatch(server *game.Server, interval time.Duration) *actor.Props {
	return actor.PropsFromProducer(func() actor.Actor { return NewMatchActor(server, interval) })
}

// ErrUnexpectedReply is returned when the actor answers with the wrong type.
var ErrUnexpectedReply = errors.New("actor: unexpected reply")

// MatchRef is a handle for talking to a spawned MatchActor.
type MatchRef struct {
	system  *actor.ActorSystem
	pid     *actor.PID
	timeout time.Duration
}

// SpawnMatch starts a MatchActor under the system root.
func SpawnMatch(system *actor.ActorSystem, server *game.Server, interval, timeout time.Duration) (*MatchRef, error) {
	pid, err := system.Root.SpawnNamed(PropsForMatch(server, interval), "match")
	if err != nil {
		return nil, fmt.Errorf("spawn match actor: %w", err)
	}
	return &MatchRef{system: system, pid: pid, timeout: timeout}, nil
}

// Tick runs one loop iteration asynchronously.
func (r *MatchRef) Tick() {
	r.system.Root.Send(r.pid, &messages.Tick{})
}

// Snapshot returns a deep copy of the match state.
func (r *MatchRef) Snapshot() (*messages.SnapshotResponse, error) {
	res, err := r.system.Root.RequestFuture(r.pid, &messages.SnapshotRequest{}, r.timeout).Result()
	if err != nil {
		return nil, err
	}
	snap, ok := res.(*messages.SnapshotResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedReply, res)
	}
	return snap, nil
}

// History returns the accepted events of the current match.
func (r *MatchRef) History() (*messages.HistoryResponse, error) {
	res, err := r.system.Root.RequestFuture(r.pid, &messages.HistoryRequest{}, r.timeout).Result()
	if err != nil {
		return nil, err
	}
	hist, ok := res.(*messages.HistoryResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedReply, res)
	}
	return hist, nil
}

// Ping checks that the actor is processing its mailbox.
func (r *MatchRef) Ping() error {
	res, err := r.system.Root.RequestFuture(r.pid, &messages.Ping{Timestamp: utils.GetCurrentTimestampMS()}, r.timeout).Result()
	if err != nil {
		return err
	}
	if _, ok := res.(*messages.Pong); !ok {
		return fmt.Errorf("%w: %T", ErrUnexpectedReply, res)
	}
	return nil
}

// Stop stops the actor and waits for it to finish.
func (r *MatchRef) Stop() {
	if err := r.system.Root.StopFuture(r.pid).Wait(); err != nil {
		utils.LogWarnf("[MatchActor %s] Stop: %v", r.pid.Id, err)
	}
}
