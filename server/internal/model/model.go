package model

import (
	"fmt"
	"strings"
)

// Board dimensions. The board is a fixed square grid indexed row-major.
const (
	BoardWidth  = 8
	BoardHeight = 8
	BoardSize   = BoardWidth * BoardHeight

	// MaxPlayers is the number of participants in one match.
	MaxPlayers = 2
)

// PlayerID identifies a connected client for the lifetime of its session.
type PlayerID uint64

// Faction is one of the two opposing sides.
type Faction int

const (
	FactionVolcano Faction = iota
	FactionDinosaur
)

func (f Faction) String() string {
	switch f {
	case FactionVolcano:
		return "Volcano"
	case FactionDinosaur:
		return "Dinosaur"
	default:
		return fmt.Sprintf("Faction(%d)", int(f))
	}
}

// ParseFaction converts a descriptor faction label into a Faction.
func ParseFaction(label string) (Faction, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "volcano":
		return FactionVolcano, nil
	case "dinosaur":
		return FactionDinosaur, nil
	}
	return 0, fmt.Errorf("unknown faction label %q", label)
}

func (f Faction) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Faction) UnmarshalText(text []byte) error {
	parsed, err := ParseFaction(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Stage is the coarse lifecycle phase of a match.
type Stage int

const (
	StagePreGame Stage = iota
	StageInGame
	StageEnded
)

func (s Stage) String() string {
	switch s {
	case StagePreGame:
		return "PreGame"
	case StageInGame:
		return "InGame"
	case StageEnded:
		return "Ended"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Position is a grid coordinate on the board.
type Position struct {
	X uint32 `json:"x"`
	Y uint32 `json:"y"`
}

// PositionOf returns the grid coordinate of a tile index.
func PositionOf(index int) Position {
	return Position{X: uint32(index % BoardWidth), Y: uint32(index / BoardWidth)}
}

// Index returns the tile index of the coordinate.
func (p Position) Index() int {
	return int(p.Y)*BoardWidth + int(p.X)
}

// InBounds reports whether a tile index addresses a board cell.
func InBounds(index int) bool {
	return index >= 0 && index < BoardSize
}

// Player is a registered match participant.
type Player struct {
	Name    string  `json:"name"`
	Faction Faction `json:"faction"`
	Gold    uint32  `json:"gold"`
}

// Unit is a live unit on the board.
type Unit struct {
	Position       Position `json:"position"`
	Kind           UnitKind `json:"kind"`
	Health         uint32   `json:"health"`
	RangeRemaining uint32   `json:"rangeRemaining"`
}

// Building is a live building on the board.
type Building struct {
	Position Position     `json:"position"`
	Kind     BuildingKind `json:"kind"`
	Health   uint32       `json:"health"`
}

// BoardTile is one cell of the board. A tile holds at most one unit and one building.
type BoardTile struct {
	Terrain  TerrainKind `json:"terrain"`
	Unit     *Unit       `json:"unit,omitempty"`
	Building *Building   `json:"building,omitempty"`
}

// Clone returns a copy of the tile that shares no pointers with the original.
func (t BoardTile) Clone() BoardTile {
	c := BoardTile{Terrain: t.Terrain}
	if t.Unit != nil {
		u := *t.Unit
		c.Unit = &u
	}
	if t.Building != nil {
		b := *t.Building
		c.Building = &b
	}
	return c
}
