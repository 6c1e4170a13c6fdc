// Package timeline builds the expected step template of a shipment and
// reconciles it with observed tracking events.
package timeline

import (
	"math"
	"time"

	"github.com/okian/shipwatch/internal/domain/geo"
	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/internal/domain/stage"
)

// Template tuning constants.
const (
	minPlanned        = time.Millisecond
	stepFloorHours    = 0.5
	defaultProgress   = 0.7
	jitterRatio       = 0.05
	lateRatio         = 0.20
	minGap            = 5 * time.Minute
	airSpeedKMH       = 800.0
	seaSpeedKMH       = 22.0
	roadSpeedKMH      = 70.0
	airTransitMinHrs  = 6.0
	seaTransitMinHrs  = 24.0
	roadTransitMinHrs = 8.0
)

type stepDef struct {
	name    string
	hours   float64
	instant bool
	transit bool
}

var templates = map[model.Mode][]stepDef{
	model.ModeAir: {
		{name: "Order created"},
		{name: "Picked up from shipper", hours: 12},
		{name: "Arrived at origin airport", hours: 6},
		{name: "Departed origin airport", instant: true},
		{name: "In transit", hours: 24, transit: true},
		{name: "Arrived at destination airport", hours: 2},
		{name: "Customs clearance", hours: 24},
		{name: "Out for delivery", hours: 8},
		{name: "Package received by customer", hours: 4},
	},
	model.ModeSea: {
		{name: "Order created"},
		{name: "Picked up from shipper", hours: 24},
		{name: "Arrived at origin port", hours: 24},
		{name: "Loaded on vessel", hours: 24},
		{name: "Departed origin port", instant: true},
		{name: "In transit", hours: 480, transit: true},
		{name: "Arrived at destination port", hours: 12},
		{name: "Arrived at customs", hours: 6},
		{name: "Customs cleared", hours: 48},
		{name: "Transferred to regional facility", hours: 12},
		{name: "Out for delivery", hours: 12},
		{name: "Package received by customer", hours: 6},
	},
	model.ModeRoad: {
		{name: "Order created"},
		{name: "Picked up from shipper", hours: 8},
		{name: "Arrived at origin hub", hours: 6},
		{name: "Departed origin hub", instant: true},
		{name: "In transit", hours: 48, transit: true},
		{name: "Crossed border", instant: true},
		{name: "Arrived at destination hub", hours: 6},
		{name: "Transferred to regional facility", hours: 8},
		{name: "Out for delivery", hours: 8},
		{name: "Package received by customer", hours: 4},
	},
}

// StepNames returns the template step names for mode. Unknown modes use the Road template.
func StepNames(mode model.Mode) []string {
	defs := definitions(mode)
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.name
	}
	return out
}

func definitions(mode model.Mode) []stepDef {
	if defs, ok := templates[mode]; ok {
		return defs
	}
	return templates[model.ModeRoad]
}

// Input describes the shipment plan a template is generated for.
type Input struct {
	Key        string
	Mode       model.Mode
	OrderDate  time.Time
	PlannedETA time.Time
	StageHint  string
	OriginCity string
	DestCity   string
	Now        time.Time
}

// Template is the generated expected timeline.
type Template struct {
	Steps []model.ExpectedStep
	// HintIndex is the in-progress step, or -1 when the shipment has not started.
	HintIndex     int
	DistanceKM    float64
	DistanceKnown bool
}

// Names returns the step names in order.
func (t *Template) Names() []string {
	out := make([]string, len(t.Steps))
	for i := range t.Steps {
		out[i] = t.Steps[i].Name
	}
	return out
}

// Generator produces step templates. It is safe for concurrent use.
type Generator struct {
	cities *geo.Table
	jitter Jitter
}

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithCities sets the table used for distance-scaled transit legs.
func WithCities(t *geo.Table) Option {
	return func(g *Generator) {
		if t != nil {
			g.cities = t
		}
	}
}

// WithJitter sets the jitter source for synthesized actuals.
func WithJitter(j Jitter) Option {
	return func(g *Generator) {
		if j != nil {
			g.jitter = j
		}
	}
}

// NewGenerator creates a Generator with the built-in city table and no jitter.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		cities: geo.NewTable(),
		jitter: NoJitter{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Distance exposes the generator's city table.
func (g *Generator) Distance(origin, dest string) (float64, bool) {
	return g.cities.Distance(origin, dest)
}

// Generate builds the expected steps for in.
func (g *Generator) Generate(in Input) Template {
	defs := definitions(in.Mode)
	hours := make([]float64, len(defs))
	km, known := g.cities.Distance(in.OriginCity, in.DestCity)

	for i, d := range defs {
		h := d.hours
		if d.transit && known {
			h = transitHours(in.Mode, km)
		}
		if d.instant {
			h = 0
		} else if i > 0 && h <= 0 {
			h = stepFloorHours
		}
		hours[i] = h
	}

	var totalHours float64
	for _, h := range hours {
		totalHours += h
	}
	if totalHours <= 0 {
		totalHours = 1
	}
	planned := in.PlannedETA.Sub(in.OrderDate)
	if planned < minPlanned {
		planned = minPlanned
	}

	tpl := Template{
		Steps:         make([]model.ExpectedStep, len(defs)),
		DistanceKM:    km,
		DistanceKnown: known,
	}
	var cum float64
	for i, d := range defs {
		cum += hours[i]
		tpl.Steps[i] = model.ExpectedStep{
			Name:                  d.name,
			Order:                 i,
			ExpectedDurationHours: hours[i],
			ExpectedTimestamp:     in.OrderDate.Add(scale(planned, cum/totalHours)),
			Instant:               d.instant,
			Transit:               d.transit,
		}
	}

	tpl.HintIndex = hintIndex(in, tpl.Names())
	g.synthesize(in, &tpl, hours, totalHours, planned)
	return tpl
}

// hintIndex locates the in-progress step from the free-text status.
func hintIndex(in Input, names []string) int {
	if in.OrderDate.After(in.Now) {
		return -1
	}
	if c := stage.Rank(in.StageHint, names); len(c) > 0 {
		return c[0].Index
	}
	return int(float64(len(names)) * defaultProgress)
}

// synthesize fills SynthesizedAt for steps up to the hint index.
func (g *Generator) synthesize(in Input, tpl *Template, hours []float64, totalHours float64, planned time.Duration) {
	var prev time.Time
	for i := 0; i <= tpl.HintIndex && i < len(tpl.Steps); i++ {
		step := &tpl.Steps[i]
		if i == 0 {
			at := in.OrderDate
			step.SynthesizedAt = &at
			prev = at
			continue
		}

		span := step.ExpectedTimestamp.Sub(in.OrderDate)
		at := step.ExpectedTimestamp.Add(scale(span, jitterRatio*g.jitter.Fraction(in.Key, i)))

		gap := scale(planned, hours[i]/totalHours)
		if gap < minGap {
			gap = minGap
		}
		upper := step.ExpectedTimestamp.Add(scale(span, lateRatio))
		if at.After(upper) {
			at = upper
		}
		if lower := prev.Add(gap); at.Before(lower) {
			at = lower
		}
		if at.After(in.Now) {
			return
		}
		step.SynthesizedAt = &at
		prev = at
	}
}

func transitHours(mode model.Mode, km float64) float64 {
	switch mode {
	case model.ModeAir:
		return math.Max(airTransitMinHrs, km/airSpeedKMH)
	case model.ModeSea:
		return math.Max(seaTransitMinHrs, km/seaSpeedKMH)
	default:
		return math.Max(roadTransitMinHrs, km/roadSpeedKMH)
	}
}

func scale(d time.Duration, f float64) time.Duration {
	return time.Duration(float64(d) * f)
}
