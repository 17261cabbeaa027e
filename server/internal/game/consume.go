package game

import (
	"fmt"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
)

// Consume applies an event that already passed Validate and appends it to the
// history. Calling it with an event that references missing state is a broken
// contract and panics.
func Consume(s *GameState, tables *model.Tables, e protocol.Event) {
	switch ev := e.(type) {
	case protocol.BeginGame:
		s.ActivePlayer = ev.GoesFirst
		s.Stage = model.StageInGame

	case protocol.EndGame:
		s.Stage = model.StageEnded

	case protocol.PlayerJoined:
		faction := model.FactionVolcano
		if len(s.Players) > 0 {
			faction = model.FactionDinosaur
		}
		s.Players[ev.PlayerID] = &model.Player{Name: ev.Name, Faction: faction}

	case protocol.PlayerDisconnected:
		delete(s.Players, ev.PlayerID)

	case protocol.BuildUnit:
		desc := tables.Unit(ev.UnitKind)
		player := mustPlayer(s, ev.PlayerID)
		s.Board[ev.At].Unit = &model.Unit{
			Position:       model.PositionOf(int(ev.At)),
			Kind:           ev.UnitKind,
			Health:         desc.MaxHP,
			RangeRemaining: desc.MoveRange,
		}
		player.Gold -= desc.Cost

	case protocol.MoveUnit:
		from, to := &s.Board[ev.From], &s.Board[ev.To]
		mover := from.Unit
		if mover == nil {
			panic(fmt.Sprintf("game: MoveUnit from empty tile %d", ev.From))
		}
		if to.Unit != nil {
			result := resolveAttack(tables, mover, to.Unit)
			if !result.IsDefenderDefeated {
				break
			}
		}
		from.Unit = nil
		mover.Position = model.PositionOf(int(ev.To))
		to.Unit = mover

	case protocol.EndTurn:
		next, ok := nextPlayer(s, ev.PlayerID)
		if !ok {
			panic(fmt.Sprintf("game: EndTurn by %d with no other player", ev.PlayerID))
		}
		s.ActivePlayer = next
		mustPlayer(s, next).Gold += s.TurnIncome

	default:
		panic(fmt.Sprintf("game: cannot consume %T", e))
	}
	s.History = append(s.History, e)
}

// nextPlayer returns the lowest registered id other than current.
func nextPlayer(s *GameState, current model.PlayerID) (model.PlayerID, bool) {
	for _, id := range s.PlayerIDs() {
		if id != current {
			return id, true
		}
	}
	return 0, false
}

func mustPlayer(s *GameState, id model.PlayerID) *model.Player {
	p, ok := s.Players[id]
	if !ok {
		panic(fmt.Sprintf("game: player %d is not registered", id))
	}
	return p
}
