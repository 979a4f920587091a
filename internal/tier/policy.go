package tier

import "math"

const (
	// UnitScale converts fractional endpoint costs into the integer units
	// used by every ledger counter and cap. A cost of 0.1 is 1 scaled unit.
	UnitScale = 10

	DefaultTierName = "tier1"
)

// Tier is one row of the tier catalog. Caps are in scaled units.
type Tier struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	MinuteCap int64  `json:"minute_cap"`
	DailyCap  int64  `json:"daily_cap"`
}

// Policy holds the tier catalog, ordered lowest to highest daily cap.
// The first entry is the default tier for unknown or missing tier names.
type Policy struct {
	tiers []Tier
}

// Spec is the unscaled form of a tier, as it appears in configuration.
// Minute and Daily are whole cost units per minute/day.
type Spec struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Minute int64  `json:"minute"`
	Daily  int64  `json:"daily"`
}

func NewPolicy(specs []Spec) *Policy {
	if len(specs) == 0 {
		return DefaultPolicy()
	}

	tiers := make([]Tier, 0, len(specs))
	for _, s := range specs {
		tiers = append(tiers, Tier{
			Name:      s.Name,
			Label:     s.Label,
			MinuteCap: s.Minute * UnitScale,
			DailyCap:  s.Daily * UnitScale,
		})
	}

	return &Policy{tiers: tiers}
}

func DefaultPolicy() *Policy {
	return NewPolicy([]Spec{
		{Name: "tier1", Label: "Tier 1", Minute: 10, Daily: 50},
		{Name: "tier2", Label: "Tier 2", Minute: 15, Daily: 100},
	})
}

// Returns the default (lowest) tier.
func (p *Policy) Default() Tier {
	return p.tiers[0]
}

// Resolves a tier name to its catalog entry, falling back to the default
// tier for unknown or empty names.
func (p *Policy) Lookup(name string) Tier {
	for _, t := range p.tiers {
		if t.Name == name {
			return t
		}
	}
	return p.Default()
}

// LimitsFor returns the scaled minute and daily caps for a tier name.
func (p *Policy) LimitsFor(name string) (int64, int64) {
	t := p.Lookup(name)
	return t.MinuteCap, t.DailyCap
}

// Highest picks the tier with the largest daily cap among the given names.
// Empty names are skipped; an empty or all-blank list yields the default
// tier. Ties keep the first encountered.
func (p *Policy) Highest(names []string) Tier {
	best := p.Default()
	found := false

	for _, name := range names {
		if name == "" {
			continue
		}
		t := p.Lookup(name)
		if !found || t.DailyCap > best.DailyCap {
			best = t
			found = true
		}
	}

	return best
}

// Next returns the tier directly above the named one, if any.
func (p *Policy) Next(name string) (Tier, bool) {
	current := p.Lookup(name)
	for _, t := range p.tiers {
		if t.DailyCap > current.DailyCap {
			return t, true
		}
	}
	return Tier{}, false
}

// Catalog returns the configured tiers, lowest first.
func (p *Policy) Catalog() []Tier {
	out := make([]Tier, len(p.tiers))
	copy(out, p.tiers)
	return out
}

// ScaleCost converts a fractional endpoint cost into scaled units. Every
// metered request consumes at least one unit, so a zero-cost endpoint
// cannot loop for free.
func ScaleCost(cost float64) int64 {
	units := int64(math.Round(cost * UnitScale))
	if units < 1 {
		units = 1
	}
	return units
}
