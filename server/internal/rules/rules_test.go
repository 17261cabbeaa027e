package rules

import (
	"testing"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/descriptor"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/game"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/protocol"
)

func bundled(t *testing.T) (*model.Tables, *model.Layout) {
	t.Helper()
	tables, layout, err := descriptor.Load("../../data")
	if err != nil {
		t.Fatalf("descriptor.Load: %v", err)
	}
	return tables, layout
}

func kindNamed(t *testing.T, tables *model.Tables, name string) model.UnitKind {
	t.Helper()
	for i, u := range tables.Units {
		if u.Name == name {
			return model.UnitKind(i)
		}
	}
	t.Fatalf("no unit named %q", name)
	return 0
}

func started(t *testing.T, tables *model.Tables, layout *model.Layout) *game.GameState {
	t.Helper()
	s := game.NewGameState(tables, layout)
	for _, e := range []protocol.Event{
		protocol.PlayerJoined{PlayerID: 1, Name: "Alice"},
		protocol.PlayerJoined{PlayerID: 2, Name: "Bob"},
		protocol.BeginGame{GoesFirst: 1},
	} {
		if !game.Validate(s, tables, e) {
			t.Fatalf("setup event %s rejected", protocol.String(e))
		}
		game.Consume(s, tables, e)
	}
	return s
}

func TestSnapshotFields(t *testing.T) {
	tables, layout := bundled(t)
	s := started(t, tables, layout)
	s.Board[9].Unit = &model.Unit{Position: model.PositionOf(9), Kind: kindNamed(t, tables, "raptor"), Health: 7}

	script, err := New("fields", `
function volcano_plugged(state)
  local t = state.tiles[10]
  return state.stage == "InGame"
    and state.active_player == 1
    and state.events == 3
    and #state.players == 2
    and state.players[2].faction == "Dinosaur"
    and state.units.Dinosaur == 1
    and state.units.Volcano == 0
    and state.buildings.Dinosaur == 2
    and #state.tiles == 64
    and t.index == 9 and t.x == 1 and t.y == 1
    and t.unit.name == "raptor" and t.unit.health == 7
end
`, tables)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer script.Close()

	if !script.VolcanoPlugged(s) {
		t.Error("snapshot does not expose the expected fields")
	}
}

func TestMissingAndFailingPredicates(t *testing.T) {
	tables, layout := bundled(t)
	s := started(t, tables, layout)

	script, err := New("partial", `
function all_dinos_dead(state) error("boom") end
function all_dino_villages_destroyed(state)
  while true do end
end
`, tables)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer script.Close()

	tests := []struct {
		name string
		call func(*game.GameState) bool
	}{
		{"Missing", script.VolcanoPlugged},
		{"RuntimeError", script.AllDinosDead},
		{"Timeout", script.AllDinoVillagesDestroyed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.call(s) {
				t.Error("predicate held")
			}
		})
	}

	t.Run("StillUsable", func(t *testing.T) {
		if winner, ok := game.DetermineWinner(s, script); ok {
			t.Errorf("winner %d declared by a broken script", winner)
		}
	})
}

func TestLoadErrors(t *testing.T) {
	tables, _ := bundled(t)
	if _, err := New("syntax", "function (", tables); err == nil {
		t.Error("syntax error accepted")
	}
	if _, err := New("io", `io.write("x")`, tables); err == nil {
		t.Error("io library should not be available")
	}
	if _, err := Load("does-not-exist.lua", tables); err == nil {
		t.Error("missing file accepted")
	}
}

func TestBundledRules(t *testing.T) {
	tables, layout := bundled(t)
	script, err := Load("../../data/rules.lua", tables)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer script.Close()

	t.Run("FreshMatchHasNoWinner", func(t *testing.T) {
		if winner, ok := game.DetermineWinner(started(t, tables, layout), script); ok {
			t.Errorf("winner %d at start", winner)
		}
	})

	t.Run("DinosaurOnVolcano", func(t *testing.T) {
		s := started(t, tables, layout)
		volcano := model.Position{X: 7, Y: 0}.Index()
		s.Board[volcano].Unit = &model.Unit{Position: model.PositionOf(volcano), Kind: kindNamed(t, tables, "raptor"), Health: 1}
		if winner, ok := game.DetermineWinner(s, script); !ok || winner != 2 {
			t.Errorf("DetermineWinner = (%d, %v), want Bob", winner, ok)
		}
	})

	t.Run("VillagesOccupied", func(t *testing.T) {
		s := started(t, tables, layout)
		golem := kindNamed(t, tables, "magma_golem")
		for i := range s.Board {
			b := s.Board[i].Building
			if b != nil && tables.Building(b.Kind).Faction == model.FactionDinosaur {
				s.Board[i].Unit = &model.Unit{Position: model.PositionOf(i), Kind: golem, Health: 8}
			}
		}
		if winner, ok := game.DetermineWinner(s, script); !ok || winner != 1 {
			t.Errorf("DetermineWinner = (%d, %v), want Alice", winner, ok)
		}
	})
}
