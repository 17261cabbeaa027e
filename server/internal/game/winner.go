package game

import "github.com/xtr3m3nerd/DinoJam2/server/internal/model"

// WinConditions are the victory predicates checked after every accepted event.
type WinConditions interface {
	VolcanoPlugged(s *GameState) bool
	AllDinosDead(s *GameState) bool
	AllDinoVillagesDestroyed(s *GameState) bool
}

// Predicates implements WinConditions with plain functions. A nil predicate
// never holds, so the zero value declares no winner.
type Predicates struct {
	Plugged           func(*GameState) bool
	DinosDead         func(*GameState) bool
	VillagesDestroyed func(*GameState) bool
}

func (p Predicates) VolcanoPlugged(s *GameState) bool {
	return p.Plugged != nil && p.Plugged(s)
}

func (p Predicates) AllDinosDead(s *GameState) bool {
	return p.DinosDead != nil && p.DinosDead(s)
}

func (p Predicates) AllDinoVillagesDestroyed(s *GameState) bool {
	return p.VillagesDestroyed != nil && p.VillagesDestroyed(s)
}

// NoWinConditions never declares a winner.
var NoWinConditions WinConditions = Predicates{}

// DetermineWinner checks the victory conditions in order. A plugged volcano
// wins for the Dinosaur player if one is registered; otherwise losing every dinosaur unit and
// village wins for the Volcano player.
func DetermineWinner(s *GameState, wc WinConditions) (model.PlayerID, bool) {
	if wc.VolcanoPlugged(s) {
		if id, ok := s.PlayerWithFaction(model.FactionDinosaur); ok {
			return id, true
		}
	}
	if wc.AllDinosDead(s) && wc.AllDinoVillagesDestroyed(s) {
		return s.PlayerWithFaction(model.FactionVolcano)
	}
	return 0, false
}
