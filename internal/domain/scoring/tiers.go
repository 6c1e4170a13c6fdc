package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/okian/shipwatch/internal/domain/model"
)

// Scheme names accepted by ParseScheme.
const (
	SchemeThree = "three"
	SchemeFive  = "five"
)

// Tier maps every score at or above Min to Severity.
type Tier struct {
	Min      int
	Severity model.Severity
}

// Tiers is a severity table ordered from the highest Min down.
type Tiers []Tier

// ThreeTier is the default High/Medium/Low table.
func ThreeTier() Tiers {
	return Tiers{
		{Min: 70, Severity: model.SeverityHigh},
		{Min: 40, Severity: model.SeverityMedium},
		{Min: 0, Severity: model.SeverityLow},
	}
}

// FiveTier adds Critical and Minimal around the three-tier table.
func FiveTier() Tiers {
	return Tiers{
		{Min: 85, Severity: model.SeverityCritical},
		{Min: 70, Severity: model.SeverityHigh},
		{Min: 40, Severity: model.SeverityMedium},
		{Min: 15, Severity: model.SeverityLow},
		{Min: 0, Severity: model.SeverityMinimal},
	}
}

// ParseScheme resolves a scheme name to its table.
func ParseScheme(name string) (Tiers, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SchemeThree, "3":
		return ThreeTier(), nil
	case SchemeFive, "5":
		return FiveTier(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
}

// For returns the severity of score.
func (t Tiers) For(score int) model.Severity {
	for _, tier := range t.sorted() {
		if score >= tier.Min {
			return tier.Severity
		}
	}
	return t.Lowest()
}

// Highest returns the top severity of the table.
func (t Tiers) Highest() model.Severity {
	s := t.sorted()
	if len(s) == 0 {
		return model.SeverityHigh
	}
	return s[0].Severity
}

// Lowest returns the bottom severity of the table.
func (t Tiers) Lowest() model.Severity {
	s := t.sorted()
	if len(s) == 0 {
		return model.SeverityLow
	}
	return s[len(s)-1].Severity
}

// Rank orders severities of the table, 0 being the lowest. Unknown
// severities rank -1.
func (t Tiers) Rank(sev model.Severity) int {
	s := t.sorted()
	for i, tier := range s {
		if tier.Severity == sev {
			return len(s) - 1 - i
		}
	}
	return -1
}

func (t Tiers) sorted() Tiers {
	if sort.SliceIsSorted(t, func(i, j int) bool { return t[i].Min > t[j].Min }) {
		return t
	}
	out := make(Tiers, len(t))
	copy(out, t)
	sort.Slice(out, func(i, j int) bool { return out[i].Min > out[j].Min })
	return out
}
