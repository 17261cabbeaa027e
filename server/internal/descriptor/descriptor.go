// Package descriptor loads the descriptor tables and the board layout from
// TOML files.
package descriptor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/model"
)

// File names inside a data directory.
const (
	UnitsFile     = "units.toml"
	TerrainFile   = "terrain.toml"
	BuildingsFile = "buildings.toml"
	LayoutFile    = "layout.toml"
)

type unitFile struct {
	Unit []model.UnitDescriptor `toml:"unit"`
}

type terrainFile struct {
	Terrain []model.TerrainDescriptor `toml:"terrain"`
}

type buildingFile struct {
	Building []model.BuildingDescriptor `toml:"building"`
}

// Load reads the four data files from dir.
func Load(dir string) (*model.Tables, *model.Layout, error) {
	read := func(name string) (string, error) {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("read %s: %w", name, err)
		}
		return string(b), nil
	}
	var docs [4]string
	for i, name := range []string{UnitsFile, TerrainFile, BuildingsFile, LayoutFile} {
		doc, err := read(name)
		if err != nil {
			return nil, nil, err
		}
		docs[i] = doc
	}
	return Parse(docs[0], docs[1], docs[2], docs[3])
}

// Parse decodes the descriptor and layout documents, resolves factions and
// checks the layout against the tables.
func Parse(units, terrain, buildings, layout string) (*model.Tables, *model.Layout, error) {
	var (
		uf unitFile
		tf terrainFile
		bf buildingFile
		lf model.Layout
	)
	if err := decode(UnitsFile, units, &uf); err != nil {
		return nil, nil, err
	}
	if err := decode(TerrainFile, terrain, &tf); err != nil {
		return nil, nil, err
	}
	if err := decode(BuildingsFile, buildings, &bf); err != nil {
		return nil, nil, err
	}
	if err := decode(LayoutFile, layout, &lf); err != nil {
		return nil, nil, err
	}

	tables := &model.Tables{Units: uf.Unit, Terrain: tf.Terrain, Buildings: bf.Building}
	if len(tables.Terrain) == 0 {
		return nil, nil, fmt.Errorf("%s: terrain kind 0 is required", TerrainFile)
	}
	if err := tables.ResolveFactions(); err != nil {
		return nil, nil, err
	}
	if err := lf.Validate(tables); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", LayoutFile, err)
	}
	return tables, &lf, nil
}

// decode rejects keys the target does not know, which catches typos in hand
// edited data files.
func decode(name, doc string, v interface{}) error {
	md, err := toml.Decode(doc, v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%s: unknown keys %s", name, strings.Join(keys, ", "))
	}
	return nil
}
