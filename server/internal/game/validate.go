package game

import (
	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
)

// Validate reports whether e may be applied to s. It never mutates s and never
// panics: every table lookup is guarded, so any well-formed event can be
// checked, including ones from hostile peers.
func Validate(s *GameState, tables *model.Tables, e protocol.Event) bool {
	switch ev := e.(type) {
	case protocol.BeginGame:
		if s.Stage != model.StagePreGame {
			return false
		}
		_, ok := s.Players[ev.GoesFirst]
		return ok

	case protocol.EndGame:
		switch r := ev.Reason.(type) {
		case protocol.PlayerWon:
			if s.Stage != model.StageInGame {
				return false
			}
			_, ok := s.Players[r.Winner]
			return ok
		case protocol.PlayerLeft:
			return true
		}
		return false

	case protocol.PlayerJoined:
		if _, exists := s.Players[ev.PlayerID]; exists {
			return false
		}
		return len(s.Players) < model.MaxPlayers

	case protocol.PlayerDisconnected:
		_, ok := s.Players[ev.PlayerID]
		return ok

	case protocol.BuildUnit:
		player, ok := activePlayer(s, ev.PlayerID)
		if !ok || !inBounds(ev.At) || !tables.HasUnit(ev.UnitKind) {
			return false
		}
		tile := &s.Board[ev.At]
		if tile.Building == nil || tile.Unit != nil || !tables.HasBuilding(tile.Building.Kind) {
			return false
		}
		if tables.Building(tile.Building.Kind).Faction != player.Faction {
			return false
		}
		unit := tables.Unit(ev.UnitKind)
		return unit.Cost <= player.Gold && unit.Faction == player.Faction

	case protocol.MoveUnit:
		player, ok := activePlayer(s, ev.PlayerID)
		if !ok || !inBounds(ev.From) || !inBounds(ev.To) {
			return false
		}
		from, to := &s.Board[ev.From], &s.Board[ev.To]
		if !tables.HasTerrain(to.Terrain) || tables.TerrainOf(to.Terrain).Wall {
			return false
		}
		if from.Unit == nil || !tables.HasUnit(from.Unit.Kind) {
			return false
		}
		mover := tables.Unit(from.Unit.Kind)
		if mover.Faction != player.Faction {
			return false
		}
		if to.Unit != nil {
			if !tables.HasUnit(to.Unit.Kind) {
				return false
			}
			return tables.Unit(to.Unit.Kind).Faction != mover.Faction
		}
		return true

	case protocol.EndTurn:
		_, ok := activePlayer(s, ev.PlayerID)
		return ok
	}
	return false
}

// activePlayer returns the player record for id if id is registered, holds
// the turn, and the match is in progress.
func activePlayer(s *GameState, id model.PlayerID) (*model.Player, bool) {
	if s.Stage != model.StageInGame || s.ActivePlayer != id {
		return nil, false
	}
	p, ok := s.Players[id]
	return p, ok
}

func inBounds(i uint32) bool {
	return i < model.BoardSize
}
