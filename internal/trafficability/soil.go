package trafficability

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// SoilClass is a coarse soil-type category relevant to bearing capacity.
type SoilClass int

// Soil classes, in the order used to break ties between equally common classes.
const (
	SoilBedrock SoilClass = iota
	SoilTill
	SoilSand
	SoilClay
	SoilPeat
	SoilUnknown
)

// SoilClasses lists every class in tie-break order.
var SoilClasses = []SoilClass{SoilBedrock, SoilTill, SoilSand, SoilClay, SoilPeat, SoilUnknown}

var soilNames = map[SoilClass]struct{ key, display string }{
	SoilBedrock: {"bedrock", "Berg/hällmark"},
	SoilTill:    {"till", "Morän"},
	SoilSand:    {"sand", "Sand/grus"},
	SoilClay:    {"clay", "Lera/silt"},
	SoilPeat:    {"peat", "Torv"},
	SoilUnknown: {"unknown", "Okänd"},
}

func (s SoilClass) String() string {
	if n, ok := soilNames[s]; ok {
		return n.key
	}
	return "unknown"
}

// DisplayName returns the Swedish label shown to users.
func (s SoilClass) DisplayName() string {
	if n, ok := soilNames[s]; ok {
		return n.display
	}
	return soilNames[SoilUnknown].display
}

// MarshalText encodes the class as its key.
func (s SoilClass) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a class key.
func (s *SoilClass) UnmarshalText(b []byte) error {
	for _, c := range SoilClasses {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return eris.Errorf("trafficability: unknown soil class %q", string(b))
}

// soilPatterns are matched in order against the folded description text.
var soilPatterns = []struct {
	class    SoilClass
	patterns []string
}{
	{SoilBedrock, []string{"berg", "häll"}},
	{SoilTill, []string{"morän", "moran"}},
	{SoilSand, []string{"sand", "grus", "isälv"}},
	{SoilClay, []string{"lera", "silt"}},
	{SoilPeat, []string{"torv", "kärr", "mosse"}},
}

// ParseSoilText maps a free-text soil description such as "Sandig morän"
// or "Kalt berg" to a class. Matching is case-insensitive and insensitive to
// Unicode composition. Text matching nothing is SoilUnknown.
func ParseSoilText(text string) SoilClass {
	folded := cases.Fold().String(norm.NFC.String(text))
	if folded == "" {
		return SoilUnknown
	}
	for _, p := range soilPatterns {
		for _, pat := range p.patterns {
			if strings.Contains(folded, pat) {
				return p.class
			}
		}
	}
	return SoilUnknown
}
