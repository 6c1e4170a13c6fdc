// Package engine assembles an Alert from a shipment's plan and its tracking
// events. Compute is a pure function of its inputs: the same shipment, events
// and now always yield the same Alert.
package engine

import (
	"math"
	"time"

	"github.com/okian/shipwatch/internal/domain/dwell"
	"github.com/okian/shipwatch/internal/domain/geo"
	"github.com/okian/shipwatch/internal/domain/lifecycle"
	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/internal/domain/scoring"
	"github.com/okian/shipwatch/internal/domain/timeline"
)

const day = 24 * time.Hour

// Option applies a configuration option to the Engine.
type Option func(*config)

type config struct {
	cities *geo.Table
	jitter timeline.Jitter
	scorer *scoring.Scorer
	rules  lifecycle.Rules
}

// WithCities sets the city table used for distance estimates.
func WithCities(t *geo.Table) Option {
	return func(c *config) {
		if t != nil {
			c.cities = t
		}
	}
}

// WithJitter sets the jitter source of synthesized timestamps.
func WithJitter(j timeline.Jitter) Option {
	return func(c *config) {
		if j != nil {
			c.jitter = j
		}
	}
}

// WithScorer replaces the default scorer.
func WithScorer(s *scoring.Scorer) Option {
	return func(c *config) {
		if s != nil {
			c.scorer = s
		}
	}
}

// WithRules replaces the default cancellation thresholds. Invalid rules are ignored.
func WithRules(r lifecycle.Rules) Option {
	return func(c *config) {
		if r.Validate() == nil {
			c.rules = r
		}
	}
}

// Engine computes alerts. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	gen    *timeline.Generator
	scorer *scoring.Scorer
	rules  lifecycle.Rules
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	c := config{
		cities: geo.NewTable(),
		jitter: timeline.NoJitter{},
		scorer: scoring.NewScorer(),
		rules:  lifecycle.DefaultRules(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return &Engine{
		gen:    timeline.NewGenerator(timeline.WithCities(c.cities), timeline.WithJitter(c.jitter)),
		scorer: c.scorer,
		rules:  c.rules,
	}
}

// Tiers returns the severity table alerts are graded with.
func (e *Engine) Tiers() scoring.Tiers { return e.scorer.Tiers() }

// Compute builds the alert of one shipment as of now.
func (e *Engine) Compute(s model.ShipmentRecord, events []model.Event, now time.Time) model.Alert {
	sorted := dwell.Sorted(events)
	current := currentStage(s, sorted)

	hint := s.CurrentStatus
	if hint == "" {
		hint = current
	}
	tpl := e.gen.Generate(timeline.Input{
		Key:        s.ShipmentID,
		Mode:       s.Mode,
		OrderDate:  s.OrderDate,
		PlannedETA: s.ExpectedDelivery,
		StageHint:  hint,
		OriginCity: s.OriginCity,
		DestCity:   s.DestCity,
		Now:        now,
	})

	daysToETA := float64(s.ExpectedDelivery.Sub(now)) / float64(day)
	dwellDays := dwell.Days(sorted, current, now)

	alert := model.Alert{
		ShipmentID:   s.ShipmentID,
		CurrentStage: current,
		DaysToETA:    wholeDays(daysToETA),
		RiskReasons:  model.Reasons{},
		ComputedAt:   now,
	}

	decision := e.rules.Evaluate(lifecycle.Input{
		Shipment:     s,
		Events:       sorted,
		CurrentStage: current,
		DwellDays:    dwellDays,
		Now:          now,
	})
	alert.Status = decision.Status
	tiers := e.scorer.Tiers()

	if decision.Status == model.StatusFuture {
		alert.Steps = expectedOnly(tpl)
		alert.Severity = tiers.Lowest()
		return alert
	}

	alert.Steps = timeline.Reconcile(tpl, sorted, timeline.Context{Mode: s.Mode, OrderDate: s.OrderDate, Now: now})
	if decision.Status == model.StatusCompleted {
		alert.Severity = tiers.Lowest()
		return alert
	}

	km, known := e.gen.Distance(s.OriginCity, s.DestCity)
	res := e.scorer.Score(scoring.Facts{
		Shipment:           s,
		Events:             sorted,
		CurrentStage:       current,
		DaysToETA:          daysToETA,
		DaysSinceLastEvent: daysSinceLastEvent(s, sorted, now),
		DwellDays:          dwellDays,
		DistanceKM:         km,
		DistanceKnown:      known,
		Now:                now,
	})
	alert.RiskScore = res.Score
	alert.Severity = res.Severity
	alert.RiskReasons = res.Reasons

	if decision.Status == model.StatusCanceled {
		alert.RiskScore = 100
		alert.Severity = tiers.Highest()
		alert.RiskReasons = alert.RiskReasons.Add(model.ReasonLost)
		alert.Steps = timeline.AppendRefund(alert.Steps, decision.At, decision.Reason)
	}
	return alert
}

// currentStage is the stage of the latest event, falling back to the
// recorded status and then to the first template step.
func currentStage(s model.ShipmentRecord, sorted []model.Event) string {
	if len(sorted) > 0 {
		return sorted[len(sorted)-1].Stage
	}
	if s.CurrentStatus != "" {
		return s.CurrentStatus
	}
	return timeline.StepNames(s.Mode)[0]
}

func daysSinceLastEvent(s model.ShipmentRecord, sorted []model.Event, now time.Time) float64 {
	last := s.OrderDate
	if len(sorted) > 0 {
		last = sorted[len(sorted)-1].Timestamp
	}
	d := float64(now.Sub(last)) / float64(day)
	if d < 0 {
		return 0
	}
	return d
}

func expectedOnly(tpl timeline.Template) []model.ReconciledStep {
	steps := make([]model.ReconciledStep, len(tpl.Steps))
	for i, st := range tpl.Steps {
		steps[i] = model.ReconciledStep{
			Name:              st.Name,
			Order:             st.Order,
			ExpectedTimestamp: st.ExpectedTimestamp,
			Source:            model.SourceExpected,
		}
	}
	return steps
}

func wholeDays(d float64) int {
	if d <= 0 {
		return 0
	}
	return int(math.Floor(d))
}
