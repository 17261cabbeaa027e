// Package rules evaluates win conditions written in Lua.
//
// A script defines any of the global functions volcano_plugged, all_dinos_dead
// and all_dino_villages_destroyed. Each is called with a snapshot table:
//
//	state.stage          "PreGame" | "InGame" | "Ended"
//	state.active_player  id of the player holding the turn
//	state.events         number of events in the history
//	state.units          {Volcano = n, Dinosaur = n}
//	state.buildings      {Volcano = n, Dinosaur = n} (standing only)
//	state.players        array of {id, name, faction, gold}
//	state.tiles          array of {index, x, y, terrain, wall, unit?, building?}
//
// Units carry {name, kind, faction, health}; buildings the same fields.
package rules

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/game"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/utils"
)

// Names of the predicate functions a script may define.
const (
	FuncVolcanoPlugged           = "volcano_plugged"
	FuncAllDinosDead             = "all_dinos_dead"
	FuncAllDinoVillagesDestroyed = "all_dino_villages_destroyed"
)

// CallTimeout bounds a single predicate call.
const CallTimeout = 100 * time.Millisecond

// Script is a game.WinConditions backed by a Lua state. It is safe for
// concurrent use.
type Script struct {
	mu     sync.Mutex
	name   string
	L      *lua.LState
	tables *model.Tables
}

var _ game.WinConditions = (*Script)(nil)

// Load compiles the script at path.
func Load(path string, tables *model.Tables) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	return New(path, string(src), tables)
}

// New compiles source. Only the base, table, string and math libraries are
// available to the script.
func New(name, source string, tables *model.Tables) (*Script, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), CallTimeout)
	defer cancel()
	L.SetContext(ctx)
	err := L.DoString(source)
	L.RemoveContext()
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("rules: load %s: %w", name, err)
	}

	s := &Script{name: name, L: L, tables: tables}
	for _, fn := range []string{FuncVolcanoPlugged, FuncAllDinosDead, FuncAllDinoVillagesDestroyed} {
		if !s.defines(fn) {
			utils.LogWarnf("[Rules %s] %s is not defined and will never hold.", name, fn)
		}
	}
	return s, nil
}

// Close releases the Lua state.
func (s *Script) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.L.Close()
}

func (s *Script) VolcanoPlugged(st *game.GameState) bool {
	return s.call(FuncVolcanoPlugged, st)
}

func (s *Script) AllDinosDead(st *game.GameState) bool {
	return s.call(FuncAllDinosDead, st)
}

func (s *Script) AllDinoVillagesDestroyed(st *game.GameState) bool {
	return s.call(FuncAllDinoVillagesDestroyed, st)
}

func (s *Script) defines(fn string) bool {
	return s.L.GetGlobal(fn).Type() == lua.LTFunction
}

// call runs fn against st. A missing function or a runtime error is false.
func (s *Script) call(fn string, st *game.GameState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.L.GetGlobal(fn)
	if f.Type() != lua.LTFunction {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), CallTimeout)
	defer cancel()
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	if err := s.L.CallByParam(lua.P{Fn: f, NRet: 1, Protect: true}, s.snapshot(st)); err != nil {
		utils.LogErrorf("[Rules %s] %s failed: %v", s.name, fn, err)
		return false
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)
	return lua.LVAsBool(ret)
}

func (s *Script) snapshot(st *game.GameState) *lua.LTable {
	L := s.L
	t := L.NewTable()
	t.RawSetString("stage", lua.LString(st.Stage.String()))
	t.RawSetString("active_player", lua.LNumber(st.ActivePlayer))
	t.RawSetString("events", lua.LNumber(len(st.History)))

	units, buildings := L.NewTable(), L.NewTable()
	for _, f := range []model.Faction{model.FactionVolcano, model.FactionDinosaur} {
		units.RawSetString(f.String(), lua.LNumber(st.CountUnits(s.tables, f)))
		buildings.RawSetString(f.String(), lua.LNumber(st.CountBuildings(s.tables, f)))
	}
	t.RawSetString("units", units)
	t.RawSetString("buildings", buildings)

	players := L.NewTable()
	for _, id := range st.PlayerIDs() {
		p := st.Players[id]
		pt := L.NewTable()
		pt.RawSetString("id", lua.LNumber(id))
		pt.RawSetString("name", lua.LString(p.Name))
		pt.RawSetString("faction", lua.LString(p.Faction.String()))
		pt.RawSetString("gold", lua.LNumber(p.Gold))
		players.Append(pt)
	}
	t.RawSetString("players", players)

	tiles := L.NewTable()
	for i := range st.Board {
		tile := &st.Board[i]
		pos := model.PositionOf(i)
		tt := L.NewTable()
		tt.RawSetString("index", lua.LNumber(i))
		tt.RawSetString("x", lua.LNumber(pos.X))
		tt.RawSetString("y", lua.LNumber(pos.Y))
		if s.tables.HasTerrain(tile.Terrain) {
			terrain := s.tables.TerrainOf(tile.Terrain)
			tt.RawSetString("terrain", lua.LString(terrain.Name))
			tt.RawSetString("wall", lua.LBool(terrain.Wall))
		}
		if u := tile.Unit; u != nil && s.tables.HasUnit(u.Kind) {
			d := s.tables.Unit(u.Kind)
			tt.RawSetString("unit", s.piece(d.Name, uint32(u.Kind), d.Faction, u.Health))
		}
		if b := tile.Building; b != nil && s.tables.HasBuilding(b.Kind) {
			d := s.tables.Building(b.Kind)
			tt.RawSetString("building", s.piece(d.Name, uint32(b.Kind), d.Faction, b.Health))
		}
		tiles.Append(tt)
	}
	t.RawSetString("tiles", tiles)
	return t
}

func (s *Script) piece(name string, kind uint32, f model.Faction, health uint32) *lua.LTable {
	t := s.L.NewTable()
	t.RawSetString("name", lua.LString(name))
	t.RawSetString("kind", lua.LNumber(kind))
	t.RawSetString("faction", lua.LString(f.String()))
	t.RawSetString("health", lua.LNumber(health))
	return t
}
