// Package volume turns zonal forest statistics into a per-species volume
// breakdown with a sawlog, pulpwood and slash split.
package volume

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Category groups species that share a sortiment table.
type Category string

// Species categories.
const (
	Conifer   Category = "conifer"
	Broadleaf Category = "broadleaf"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool { return c == Conifer || c == Broadleaf }

// SpeciesParams are the conversion parameters of one tree species.
type SpeciesParams struct {
	Key          string   `yaml:"key" json:"key"`
	Name         string   `yaml:"name" json:"name"`
	Category     Category `yaml:"category" json:"category"`
	YieldRatio   float64  `yaml:"yield_ratio" json:"yield_ratio"`     // m³fub per m³sk
	BiomassRatio float64  `yaml:"biomass_ratio" json:"biomass_ratio"` // slash share of underbark volume
	Band         int      `yaml:"band" json:"band"`                   // band in the species statistics
	File         string   `yaml:"file" json:"file"`                   // per-species raster file
}

// Table is the ordered list of species the estimator reports on.
type Table struct {
	Species []SpeciesParams `yaml:"species" json:"species"`
}

// DefaultTable returns the compiled-in species parameters.
func DefaultTable() *Table {
	return &Table{Species: []SpeciesParams{
		{Key: "tall", Name: "Tall", Category: Conifer, YieldRatio: 0.83, BiomassRatio: 0.20, Band: 5, File: "SLUskogskarta_volTall.tif"},
		{Key: "gran", Name: "Gran", Category: Conifer, YieldRatio: 0.83, BiomassRatio: 0.30, Band: 6, File: "SLUskogskarta_volGran.tif"},
		{Key: "bjork", Name: "Björk", Category: Broadleaf, YieldRatio: 0.78, BiomassRatio: 0.18, Band: 7, File: "SLUskogskarta_volBjork.tif"},
		{Key: "contorta", Name: "Contorta", Category: Conifer, YieldRatio: 0.80, BiomassRatio: 0.22, Band: 8, File: "SLUskogskarta_volContorta.tif"},
		{Key: "bok", Name: "Bok", Category: Broadleaf, YieldRatio: 0.80, BiomassRatio: 0.20, Band: 9, File: "SLUskogskarta_volBok.tif"},
		{Key: "ek", Name: "Ek", Category: Broadleaf, YieldRatio: 0.75, BiomassRatio: 0.20, Band: 10, File: "SLUskogskarta_volEk.tif"},
		{Key: "ovrigt", Name: "Övrigt löv", Category: Broadleaf, YieldRatio: 0.75, BiomassRatio: 0.18, Band: 11, File: "SLUskogskarta_volOvrigtLov.tif"},
	}}
}

// LoadTable reads a YAML species file and merges it onto the defaults.
// Entries whose key matches a default replace its non-zero fields; other
// entries are appended. An empty path returns the defaults.
func LoadTable(path string) (*Table, error) {
	t := DefaultTable()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "volume: read species table %s", path)
	}
	var override Table
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, eris.Wrapf(err, "volume: parse species table %s", path)
	}
	t.merge(override.Species)
	if err := t.Validate(); err != nil {
		return nil, eris.Wrapf(err, "volume: species table %s", path)
	}
	return t, nil
}

func (t *Table) merge(overrides []SpeciesParams) {
	for _, o := range overrides {
		i := t.index(o.Key)
		if i < 0 {
			t.Species = append(t.Species, o)
			continue
		}
		cur := &t.Species[i]
		if o.Name != "" {
			cur.Name = o.Name
		}
		if o.Category != "" {
			cur.Category = o.Category
		}
		if o.YieldRatio != 0 {
			cur.YieldRatio = o.YieldRatio
		}
		if o.BiomassRatio != 0 {
			cur.BiomassRatio = o.BiomassRatio
		}
		if o.Band != 0 {
			cur.Band = o.Band
		}
		if o.File != "" {
			cur.File = o.File
		}
	}
}

func (t *Table) index(key string) int {
	for i, s := range t.Species {
		if s.Key == key {
			return i
		}
	}
	return -1
}

// Validate checks every entry for a key, a known category and ratios in [0, 1].
func (t *Table) Validate() error {
	if len(t.Species) == 0 {
		return eris.New("no species")
	}
	seen := make(map[string]bool, len(t.Species))
	for _, s := range t.Species {
		switch {
		case s.Key == "":
			return eris.New("species without key")
		case seen[s.Key]:
			return eris.Errorf("duplicate species %q", s.Key)
		case !s.Category.Valid():
			return eris.Errorf("species %q: unknown category %q", s.Key, s.Category)
		case s.YieldRatio <= 0 || s.YieldRatio > 1:
			return eris.Errorf("species %q: yield ratio %v outside (0, 1]", s.Key, s.YieldRatio)
		case s.BiomassRatio < 0 || s.BiomassRatio > 1:
			return eris.Errorf("species %q: biomass ratio %v outside [0, 1]", s.Key, s.BiomassRatio)
		case s.Band < 0:
			return eris.Errorf("species %q: negative band", s.Key)
		}
		seen[s.Key] = true
	}
	return nil
}

// Lookup returns the parameters for key.
func (t *Table) Lookup(key string) (SpeciesParams, bool) {
	if i := t.index(key); i >= 0 {
		return t.Species[i], true
	}
	return SpeciesParams{}, false
}

// Files returns the raster file names in table order.
func (t *Table) Files() []string {
	out := make([]string, len(t.Species))
	for i, s := range t.Species {
		out[i] = s.File
	}
	return out
}

// MaxBand returns the highest species band index.
func (t *Table) MaxBand() int {
	m := 0
	for _, s := range t.Species {
		m = max(m, s.Band)
	}
	return m
}
