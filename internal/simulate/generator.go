package simulate

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

const hoursPerDay = 24

type stagePlan struct {
	name  string
	hours float64
}

// Stage names and nominal durations as carriers report them.
var modeStages = map[string][]stagePlan{
	"Air": {
		{"Order created", 0},
		{"Picked up from shipper", 12},
		{"Arrived at origin airport", 6},
		{"Departed origin airport", 0},
		{"In transit", 24},
		{"Arrived at destination airport", 2},
		{"Customs clearance", 24},
		{"Out for delivery", 8},
		{"Package received by customer", 4},
	},
	"Sea": {
		{"Order created", 0},
		{"Picked up from shipper", 24},
		{"Arrived at origin port", 24},
		{"Loaded on vessel", 24},
		{"Departed origin port", 0},
		{"In transit", 480},
		{"Arrived at destination port", 12},
		{"Arrived at customs", 6},
		{"Customs cleared", 48},
		{"Transferred to regional facility", 12},
		{"Out for delivery", 12},
		{"Package received by customer", 6},
	},
	"Road": {
		{"Order created", 0},
		{"Picked up from shipper", 8},
		{"Arrived at origin hub", 6},
		{"Departed origin hub", 0},
		{"In transit", 48},
		{"Arrived at destination hub", 6},
		{"Transferred to regional facility", 8},
		{"Out for delivery", 8},
		{"Package received by customer", 4},
	},
}

var (
	modes    = []string{"Air", "Sea", "Road"}
	cities   = []string{"Shanghai", "Rotterdam", "Singapore", "Los Angeles", "Hamburg", "Dubai", "Memphis", "Chicago", "Busan", "London"}
	carriers = []string{"Maersk", "DHL", "FedEx", "UPS", "CMA CGM"}
	levels   = []string{"standard", "express", "economy"}
	owners   = []string{"ops-emea", "ops-apac", "ops-amer"}
)

// Kind classifies how a generated shipment progresses.
type Kind int

const (
	KindOnTrack Kind = iota
	KindStalled
	KindDelivered
	KindFuture
)

// Generator produces reproducible scenarios from a seed.
type Generator struct {
	rng *rand.Rand
	src *rand.ChaCha8
	now time.Time
}

// NewGenerator returns a generator whose output depends only on seed and now.
func NewGenerator(seed uint64, now time.Time) *Generator {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	src := rand.NewChaCha8(key)
	return &Generator{rng: rand.New(src), src: src, now: now.UTC().Truncate(time.Second)}
}

// Generate returns n scenarios.
func (g *Generator) Generate(n int) ([]Scenario, error) {
	out := make([]Scenario, 0, n)
	for i := 0; i < n; i++ {
		sc, err := g.next()
		if err != nil {
			return nil, fmt.Errorf("scenario %d: %w", i, err)
		}
		out = append(out, sc)
	}
	return out, nil
}

func (g *Generator) kind() Kind {
	switch p := g.rng.IntN(100); {
	case p < 50:
		return KindOnTrack
	case p < 75:
		return KindStalled
	case p < 90:
		return KindDelivered
	default:
		return KindFuture
	}
}

func (g *Generator) next() (Scenario, error) {
	id, err := uuid.NewRandomFromReader(g.src)
	if err != nil {
		return Scenario{}, err
	}
	mode := modes[g.rng.IntN(len(modes))]
	plan := modeStages[mode]
	kind := g.kind()

	// actual offsets from the order date, jittered around the nominal durations
	offsets := make([]time.Duration, len(plan))
	var total time.Duration
	for i, st := range plan {
		total += time.Duration(st.hours * (0.6 + 0.8*g.rng.Float64()) * float64(time.Hour))
		offsets[i] = total
	}
	nominal := time.Duration(0)
	for _, st := range plan {
		nominal += time.Duration(st.hours * float64(time.Hour))
	}

	var order time.Time
	switch kind {
	case KindFuture:
		order = g.now.Add(time.Duration(1+g.rng.IntN(5)) * hoursPerDay * time.Hour)
	case KindDelivered:
		order = g.now.Add(-total - time.Duration(1+g.rng.IntN(48))*time.Hour)
	default:
		order = g.now.Add(-time.Duration(g.rng.Float64() * float64(total)))
	}
	order = order.Truncate(time.Minute)

	// stalled shipments stop reporting somewhere before now
	cutoff := g.now
	if kind == KindStalled {
		cutoff = order.Add(time.Duration(g.rng.Float64() * float64(g.now.Sub(order))))
	}

	sc := Scenario{Shipment: Shipment{
		ShipmentID:       id.String(),
		OrderDate:        order,
		ExpectedDelivery: order.Add(nominal + nominal/10).Truncate(hoursPerDay * time.Hour),
		Mode:             mode,
		OriginCity:       cities[g.rng.IntN(len(cities))],
		DestCity:         cities[g.rng.IntN(len(cities))],
		ServiceLevel:     levels[g.rng.IntN(len(levels))],
		Carrier:          carriers[g.rng.IntN(len(carriers))],
		Owner:            owners[g.rng.IntN(len(owners))],
	}}
	if kind != KindFuture {
		for i, st := range plan {
			ts := order.Add(offsets[i])
			if ts.After(cutoff) {
				break
			}
			sc.Events = append(sc.Events, Event{
				EventID:   fmt.Sprintf("%s-%02d", sc.Shipment.ShipmentID, i),
				Timestamp: ts,
				Stage:     st.name,
				Location:  sc.Shipment.OriginCity,
			})
		}
	}
	if len(sc.Events) > 0 {
		sc.Shipment.CurrentStatus = sc.Events[len(sc.Events)-1].Stage
		if g.rng.IntN(5) == 0 {
			sc.Replays = append(sc.Replays, sc.Events[g.rng.IntN(len(sc.Events))])
		}
	}
	return sc, nil
}
