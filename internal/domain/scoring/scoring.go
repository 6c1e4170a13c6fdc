// Package scoring turns the facts of one shipment into a bounded risk score,
// its reasons and a severity tier.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/internal/domain/stage"
)

const maxScore = 100

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithPolicy replaces the default policy. Invalid policies are ignored.
func WithPolicy(p Policy) Option {
	return func(s *Scorer) {
		if p.Validate() == nil {
			s.policy = p
		}
	}
}

// WithTiers replaces the default three-tier severity table.
func WithTiers(t Tiers) Option {
	return func(s *Scorer) {
		if len(t) > 0 {
			s.tiers = t
		}
	}
}

// Facts are the per-shipment measurements the scorer works from.
// DaysToETA is negative once the ETA has passed.
type Facts struct {
	Shipment           model.ShipmentRecord
	Events             []model.Event
	CurrentStage       string
	DaysToETA          float64
	DaysSinceLastEvent float64
	DwellDays          float64
	DistanceKM         float64
	DistanceKnown      bool
	Now                time.Time
}

// Breakdown shows how a score was composed.
type Breakdown struct {
	Reasons   int  `json:"reasons"`
	Temporal  int  `json:"temporal"`
	Modifiers int  `json:"modifiers"`
	Capped    bool `json:"capped"`
}

// Result is the output of Score.
type Result struct {
	Score     int
	Severity  model.Severity
	Reasons   model.Reasons
	Breakdown Breakdown
}

// Scorer evaluates Facts against a Policy.
type Scorer struct {
	policy Policy
	tiers  Tiers
}

// NewScorer creates a scorer with the default policy and three-tier table.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		policy: DefaultPolicy(),
		tiers:  ThreeTier(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the active policy.
func (s *Scorer) Policy() Policy { return s.policy }

// Tiers returns the active severity table.
func (s *Scorer) Tiers() Tiers { return s.tiers }

// Score computes the risk of one shipment.
func (s *Scorer) Score(f Facts) Result {
	p := s.policy
	reasons := s.Reasons(f)
	stale := f.DaysSinceLastEvent > p.StaleDays

	b := Breakdown{Reasons: len(reasons) * p.ReasonWeight}
	if f.DaysToETA < 0 {
		b.Temporal = p.PastETAPoints
	} else {
		b.Temporal = below(p.ETABands, f.DaysToETA)
	}
	b.Temporal += above(p.StalenessBands, f.DaysSinceLastEvent)

	if len(reasons) > 0 || f.DaysToETA < p.SignalDaysToETA || stale || f.DwellDays > p.LongDwellDays {
		b.Modifiers = s.modifiers(f)
	}

	score := b.Reasons + b.Temporal + b.Modifiers
	if s.healthy(f, reasons) {
		limit := p.HealthyCap
		if len(reasons) > 0 {
			limit = p.HealthyStaleCap
		}
		if score > limit {
			score = limit
			b.Capped = true
		}
	}
	score = clamp(score)

	return Result{
		Score:     score,
		Severity:  s.tiers.For(score),
		Reasons:   reasons,
		Breakdown: b,
	}
}

// Reasons evaluates the categorical risk flags in a stable order.
func (s *Scorer) Reasons(f Facts) model.Reasons {
	p := s.policy
	kind := stage.Classify(f.CurrentStage)
	since := f.DaysSinceLastEvent

	reasons := model.Reasons{}
	if since > p.StaleDays {
		reasons = reasons.Add(model.ReasonStaleStatus)
	}
	if kind.AtPort() && since > p.PortCongestionDays {
		reasons = reasons.Add(model.ReasonPortCongestion)
	}
	if kind.AtCustoms() && since > p.CustomsHoldDays {
		reasons = reasons.Add(model.ReasonCustomsHold)
	}
	if f.DaysToETA < 0 && !stage.IsDelivered(f.CurrentStage) {
		reasons = reasons.Add(model.ReasonMissedDeparture)
	}
	if f.DwellDays > p.LongDwellDays {
		reasons = reasons.Add(model.ReasonLongDwell)
	}
	if kind.BeforePickup() && since > p.NoPickupDays {
		reasons = reasons.Add(model.ReasonNoPickup)
	}
	if kind.AtHub() && since > p.HubCongestionDays {
		reasons = reasons.Add(model.ReasonHubCongestion)
	}

	text := " " + eventText(f.Events)
	for _, r := range []model.RiskReason{model.ReasonWeatherAlert, model.ReasonCapacityShortage, model.ReasonDocsMissing} {
		for _, kw := range p.Keywords[string(r)] {
			// whole words only
			if kw = stage.Normalize(kw); kw != "" && strings.Contains(text, " "+kw+" ") {
				reasons = reasons.Add(r)
				break
			}
		}
	}
	return reasons
}

func (s *Scorer) modifiers(f Facts) int {
	p := s.policy
	total := 0
	if f.DistanceKnown {
		total += above(p.DistanceBands, f.DistanceKM)
	}
	if f.Shipment.International() {
		total += p.InternationalPoints
	}
	for _, m := range p.PeakMonths {
		if f.Now.Month() == m {
			total += p.PeakSeasonPoints
			break
		}
	}
	if wd := f.Now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		total += p.WeekendPoints
	}
	if f.Shipment.Express() && f.DaysToETA < p.ExpressWindowDays {
		total += p.ExpressPoints
	}
	return total
}

// healthy reports whether the shipment is comfortably on track: far from its
// ETA, not dwelling and flagged at most as stale.
func (s *Scorer) healthy(f Facts, reasons model.Reasons) bool {
	p := s.policy
	if f.DaysToETA < p.HealthyMinDaysToETA || f.DwellDays > p.HealthyMaxDwellDays {
		return false
	}
	for _, r := range reasons {
		if r != model.ReasonStaleStatus {
			return false
		}
	}
	return true
}

// eventText joins every stage and description into one normalized string.
func eventText(events []model.Event) string {
	var b strings.Builder
	for _, e := range events {
		for _, t := range []string{e.Stage, e.Description} {
			if n := stage.Normalize(t); n != "" {
				b.WriteString(n)
				b.WriteByte(' ')
			}
		}
	}
	return b.String()
}

func clamp(score int) int {
	return int(math.Max(0, math.Min(maxScore, float64(score))))
}
