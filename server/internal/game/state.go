package game

import (
	"fmt"
	"sort"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
)

// GameState is the authoritative model of one match. The server owns the
// canonical copy; each client keeps a replica advanced by the same events.
type GameState struct {
	Stage        model.Stage
	Board        [model.BoardSize]model.BoardTile
	ActivePlayer model.PlayerID
	Players      map[model.PlayerID]*model.Player
	History      []protocol.Event
	// TurnIncome is credited to a player when their turn begins.
	TurnIncome uint32
}

// NewGameState builds a PreGame state with the layout's terrain and buildings.
// A nil layout yields an empty board of terrain kind 0.
func NewGameState(tables *model.Tables, layout *model.Layout) *GameState {
	s := &GameState{
		Stage:   model.StagePreGame,
		Players: make(map[model.PlayerID]*model.Player),
	}
	if layout == nil {
		return s
	}
	s.TurnIncome = layout.TurnIncome
	for y, row := range layout.Terrain {
		for x, k := range row {
			s.Board[y*model.BoardWidth+x].Terrain = k
		}
	}
	for _, p := range layout.Buildings {
		pos := model.Position{X: p.X, Y: p.Y}
		s.Board[pos.Index()].Building = &model.Building{
			Position: pos,
			Kind:     p.Kind,
			Health:   tables.Building(p.Kind).MaxHP,
		}
	}
	return s
}

// Clone returns a deep copy of the state.
func (s *GameState) Clone() *GameState {
	c := &GameState{
		Stage:        s.Stage,
		ActivePlayer: s.ActivePlayer,
		Players:      make(map[model.PlayerID]*model.Player, len(s.Players)),
		History:      make([]protocol.Event, len(s.History)),
		TurnIncome:   s.TurnIncome,
	}
	for i := range s.Board {
		c.Board[i] = s.Board[i].Clone()
	}
	for id, p := range s.Players {
		cp := *p
		c.Players[id] = &cp
	}
	copy(c.History, s.History)
	return c
}

// PlayerIDs returns the registered ids in ascending order.
func (s *GameState) PlayerIDs() []model.PlayerID {
	ids := make([]model.PlayerID, 0, len(s.Players))
	for id := range s.Players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PlayerWithFaction returns the id of the player on faction f.
func (s *GameState) PlayerWithFaction(f model.Faction) (model.PlayerID, bool) {
	for _, id := range s.PlayerIDs() {
		if s.Players[id].Faction == f {
			return id, true
		}
	}
	return 0, false
}

// CountUnits returns the number of units on the board that belong to f.
func (s *GameState) CountUnits(tables *model.Tables, f model.Faction) int {
	n := 0
	for i := range s.Board {
		u := s.Board[i].Unit
		if u != nil && tables.HasUnit(u.Kind) && tables.Unit(u.Kind).Faction == f {
			n++
		}
	}
	return n
}

// CountBuildings returns the number of standing buildings that belong to f.
func (s *GameState) CountBuildings(tables *model.Tables, f model.Faction) int {
	n := 0
	for i := range s.Board {
		b := s.Board[i].Building
		if b != nil && b.Health > 0 && tables.HasBuilding(b.Kind) && tables.Building(b.Kind).Faction == f {
			n++
		}
	}
	return n
}

// Replay rebuilds a state from a recorded history. Every event must validate
// against the state produced by the ones before it.
func Replay(tables *model.Tables, layout *model.Layout, events []protocol.Event) (*GameState, error) {
	s := NewGameState(tables, layout)
	for i, e := range events {
		if !Validate(s, tables, e) {
			return s, fmt.Errorf("replay: event %d (%s) is not valid", i, protocol.String(e))
		}
		Consume(s, tables, e)
	}
	return s, nil
}
