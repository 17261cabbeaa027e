package model

import "fmt"

// UnitKind indexes Tables.Units.
type UnitKind uint32

// TerrainKind indexes Tables.Terrain. Kind 0 is the default terrain.
type TerrainKind uint32

// BuildingKind indexes Tables.Buildings.
type BuildingKind uint32

// UnitDescriptor is the static stat block of a unit kind.
type UnitDescriptor struct {
	Name         string  `toml:"name" json:"name"`
	PubName      string  `toml:"pub_name" json:"pubName"`
	MaxHP        uint32  `toml:"max_hp" json:"maxHp"`
	MoveRange    uint32  `toml:"move_range" json:"moveRange"`
	AttackRange  uint32  `toml:"attack_range" json:"attackRange"`
	Damage       uint32  `toml:"damage" json:"damage"`
	Cost         uint32  `toml:"cost" json:"cost"`
	SpriteIdx    uint32  `toml:"sprite_idx" json:"spriteIdx"`
	FactionLabel string  `toml:"faction" json:"factionLabel"`
	Faction      Faction `toml:"-" json:"faction"`
}

// TerrainDescriptor is the static description of a terrain kind.
type TerrainDescriptor struct {
	Name      string `toml:"name" json:"name"`
	SpriteIdx uint32 `toml:"sprite_idx" json:"spriteIdx"`
	Wall      bool   `toml:"wall" json:"wall"`
}

// BuildingDescriptor is the static stat block of a building kind.
type BuildingDescriptor struct {
	Name         string  `toml:"name" json:"name"`
	PubName      string  `toml:"pub_name" json:"pubName"`
	MaxHP        uint32  `toml:"max_hp" json:"maxHp"`
	SpriteIdx    uint32  `toml:"sprite_idx" json:"spriteIdx"`
	FactionLabel string  `toml:"faction" json:"factionLabel"`
	Faction      Faction `toml:"-" json:"faction"`
}

// Tables holds the read-only descriptor tables. They are loaded once and
// passed explicitly to everything that needs them.
type Tables struct {
	Units     []UnitDescriptor
	Terrain   []TerrainDescriptor
	Buildings []BuildingDescriptor
}

// ResolveFactions converts every faction label into its typed Faction.
func (t *Tables) ResolveFactions() error {
	for i := range t.Units {
		f, err := ParseFaction(t.Units[i].FactionLabel)
		if err != nil {
			return fmt.Errorf("unit %d (%s): %w", i, t.Units[i].Name, err)
		}
		t.Units[i].Faction = f
	}
	for i := range t.Buildings {
		f, err := ParseFaction(t.Buildings[i].FactionLabel)
		if err != nil {
			return fmt.Errorf("building %d (%s): %w", i, t.Buildings[i].Name, err)
		}
		t.Buildings[i].Faction = f
	}
	return nil
}

func (t *Tables) HasUnit(k UnitKind) bool { return int(k) < len(t.Units) }
func (t *Tables) HasTerrain(k TerrainKind) bool { return int(k) < len(t.Terrain) }
func (t *Tables) HasBuilding(k BuildingKind) bool { return int(k) < len(t.Buildings) }

// Unit returns the descriptor for k. It panics if k is out of range.
func (t *Tables) Unit(k UnitKind) *UnitDescriptor {
	if !t.HasUnit(k) {
		panic(fmt.Sprintf("model: unit kind %d out of range (%d descriptors)", k, len(t.Units)))
	}
	return &t.Units[k]
}

// TerrainOf returns the descriptor for k. It panics if k is out of range.
func (t *Tables) TerrainOf(k TerrainKind) *TerrainDescriptor {
	if !t.HasTerrain(k) {
		panic(fmt.Sprintf("model: terrain kind %d out of range (%d descriptors)", k, len(t.Terrain)))
	}
	return &t.Terrain[k]
}

// Building returns the descriptor for k. It panics if k is out of range.
func (t *Tables) Building(k BuildingKind) *BuildingDescriptor {
	if !t.HasBuilding(k) {
		panic(fmt.Sprintf("model: building kind %d out of range (%d descriptors)", k, len(t.Buildings)))
	}
	return &t.Buildings[k]
}

// BuildingPlacement puts a building on the board at match start.
type BuildingPlacement struct {
	X    uint32       `toml:"x" json:"x"`
	Y    uint32       `toml:"y" json:"y"`
	Kind BuildingKind `toml:"kind" json:"kind"`
}

// Layout is the starting board of a match.
type Layout struct {
	Terrain    [][]TerrainKind     `toml:"terrain" json:"terrain"`
	Buildings  []BuildingPlacement `toml:"building" json:"buildings"`
	TurnIncome uint32              `toml:"turn_income" json:"turnIncome"`
}

// Validate checks the layout against the board size and the descriptor tables.
func (l *Layout) Validate(t *Tables) error {
	if len(l.Terrain) != 0 && len(l.Terrain) != BoardHeight {
		return fmt.Errorf("layout has %d terrain rows, want %d", len(l.Terrain), BoardHeight)
	}
	for y, row := range l.Terrain {
		if len(row) != BoardWidth {
			return fmt.Errorf("layout terrain row %d has %d cells, want %d", y, len(row), BoardWidth)
		}
		for x, k := range row {
			if !t.HasTerrain(k) {
				return fmt.Errorf("layout terrain (%d,%d): unknown kind %d", x, y, k)
			}
		}
	}
	seen := make(map[int]bool, len(l.Buildings))
	for i, b := range l.Buildings {
		if b.X >= BoardWidth || b.Y >= BoardHeight {
			return fmt.Errorf("layout building %d at (%d,%d) is off the board", i, b.X, b.Y)
		}
		if !t.HasBuilding(b.Kind) {
			return fmt.Errorf("layout building %d: unknown kind %d", i, b.Kind)
		}
		idx := Position{X: b.X, Y: b.Y}.Index()
		if seen[idx] {
			return fmt.Errorf("layout building %d at (%d,%d) overlaps another building", i, b.X, b.Y)
		}
		seen[idx] = true
	}
	return nil
}
