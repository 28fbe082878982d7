// Package ranks resolves the patent (rank tier) a profile holds for a given
// XP total. Both the mobile API and the admin dashboard read tiers from here.
package ranks

import (
	"errors"
	"fmt"
	"sort"
)

// Patent is one named XP tier.
type Patent struct {
	Name        string `json:"name" yaml:"name"`
	MinXP       int64  `json:"min_xp" yaml:"min_xp"`
	IconLibrary string `json:"icon_library" yaml:"icon_library"`
	IconName    string `json:"icon_name" yaml:"icon_name"`
}

// Table is an ordered set of patents, highest threshold first.
type Table struct {
	tiers []Patent
}

var (
	ErrEmptyTable        = errors.New("patent table has no tiers")
	ErrDuplicateName     = errors.New("duplicate patent name")
	ErrDuplicateMinXP    = errors.New("duplicate patent threshold")
	ErrNegativeThreshold = errors.New("patent threshold must not be negative")
)

// DefaultPatents is the product's standard ladder.
var DefaultPatents = []Patent{
	{Name: "Lenda EcoDigital", MinXP: 1000, IconLibrary: "Entypo", IconName: "trophy"},
	{Name: "Arquiteto Sustentável", MinXP: 600, IconLibrary: "MaterialIcons", IconName: "precision-manufacturing"},
	{Name: "Mestre da Limpeza", MinXP: 300, IconLibrary: "FontAwesome6", IconName: "broom"},
	{Name: "Guardião Verde", MinXP: 100, IconLibrary: "MaterialCommunityIcons", IconName: "shield-crown"},
	{Name: "Iniciante Digital", MinXP: 0, IconLibrary: "FontAwesome", IconName: "pagelines"},
}

// Default is the table built from DefaultPatents.
var Default = MustTable(DefaultPatents)

// NewTable validates tiers and sorts them by descending threshold.
func NewTable(tiers []Patent) (*Table, error) {
	if len(tiers) == 0 {
		return nil, ErrEmptyTable
	}

	names := make(map[string]struct{}, len(tiers))
	thresholds := make(map[int64]struct{}, len(tiers))
	sorted := make([]Patent, len(tiers))
	copy(sorted, tiers)

	for _, p := range sorted {
		if p.MinXP < 0 {
			return nil, fmt.Errorf("%w: %q has %d", ErrNegativeThreshold, p.Name, p.MinXP)
		}
		if _, ok := names[p.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, p.Name)
		}
		if _, ok := thresholds[p.MinXP]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateMinXP, p.MinXP)
		}
		names[p.Name] = struct{}{}
		thresholds[p.MinXP] = struct{}{}
	}

	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinXP > sorted[j].MinXP })
	return &Table{tiers: sorted}, nil
}

// MustTable is NewTable for package-level tables; it panics on invalid input.
func MustTable(tiers []Patent) *Table {
	t, err := NewTable(tiers)
	if err != nil {
		panic(err)
	}
	return t
}

// For returns the highest tier whose MinXP is <= xp. Negative XP counts as 0.
// If no tier qualifies the lowest tier is returned.
func (t *Table) For(xp int64) Patent {
	if xp < 0 {
		xp = 0
	}
	for _, p := range t.tiers {
		if xp >= p.MinXP {
			return p
		}
	}
	return t.Lowest()
}

// ForOptional resolves a possibly absent XP value; nil counts as 0.
func (t *Table) ForOptional(xp *int64) Patent {
	if xp == nil {
		return t.For(0)
	}
	return t.For(*xp)
}

// Next returns the tier directly above p.
func (t *Table) Next(p Patent) (Patent, bool) {
	for i, tier := range t.tiers {
		if tier.Name == p.Name {
			if i == 0 {
				return Patent{}, false
			}
			return t.tiers[i-1], true
		}
	}
	return Patent{}, false
}

// Progress is the percentage of the next tier's threshold already earned,
// clamped to [0, 100]. The top tier always reports 100.
func (t *Table) Progress(xp int64) float64 {
	if xp < 0 {
		xp = 0
	}
	next, ok := t.Next(t.For(xp))
	if !ok || next.MinXP == 0 {
		return 100
	}
	pct := float64(xp) / float64(next.MinXP) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

func (t *Table) ByName(name string) (Patent, bool) {
	for _, p := range t.tiers {
		if p.Name == name {
			return p, true
		}
	}
	return Patent{}, false
}

func (t *Table) Top() Patent    { return t.tiers[0] }
func (t *Table) Lowest() Patent { return t.tiers[len(t.tiers)-1] }

// IsTop reports whether name is the highest tier.
func (t *Table) IsTop(name string) bool { return t.tiers[0].Name == name }

// Tiers returns a copy of the tiers, highest first.
func (t *Table) Tiers() []Patent {
	out := make([]Patent, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// For resolves xp against the Default table.
func For(xp int64) Patent { return Default.For(xp) }
