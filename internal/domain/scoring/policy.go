package scoring

import (
	"fmt"
	"time"

	"github.com/okian/shipwatch/internal/domain/model"
)

// Band awards Points when a value crosses Limit. Whether the value must be
// below or above Limit depends on the table the band belongs to.
type Band struct {
	Limit  float64 `koanf:"limit"`
	Points int     `koanf:"points"`
}

// Policy holds every threshold and weight of the risk model.
type Policy struct {
	ReasonWeight int `koanf:"reason_weight"`

	// Reason thresholds, in days.
	StaleDays          float64 `koanf:"stale_days"`
	LongDwellDays      float64 `koanf:"long_dwell_days"`
	CustomsHoldDays    float64 `koanf:"customs_hold_days"`
	PortCongestionDays float64 `koanf:"port_congestion_days"`
	HubCongestionDays  float64 `koanf:"hub_congestion_days"`
	NoPickupDays       float64 `koanf:"no_pickup_days"`

	// PastETAPoints applies once the ETA has passed. ETABands apply to the
	// days left before it, first matching band wins.
	PastETAPoints int    `koanf:"past_eta_points"`
	ETABands      []Band `koanf:"eta_bands"`

	// StalenessBands apply to the days since the last event, first match wins.
	StalenessBands []Band `koanf:"staleness_bands"`

	// Contextual modifiers.
	DistanceBands       []Band              `koanf:"distance_bands"`
	InternationalPoints int                 `koanf:"international_points"`
	PeakSeasonPoints    int                 `koanf:"peak_season_points"`
	PeakMonths          []time.Month        `koanf:"peak_months"`
	WeekendPoints       int                 `koanf:"weekend_points"`
	ExpressPoints       int                 `koanf:"express_points"`
	ExpressWindowDays   float64             `koanf:"express_window_days"`
	SignalDaysToETA     float64             `koanf:"signal_days_to_eta"`
	Keywords            map[string][]string `koanf:"keywords"`

	// Healthy safeguard.
	HealthyMinDaysToETA float64 `koanf:"healthy_min_days_to_eta"`
	HealthyMaxDwellDays float64 `koanf:"healthy_max_dwell_days"`
	HealthyCap          int     `koanf:"healthy_cap"`
	HealthyStaleCap     int     `koanf:"healthy_stale_cap"`
}

// DefaultPolicy returns the stock risk model.
func DefaultPolicy() Policy {
	return Policy{
		ReasonWeight:       10,
		StaleDays:          3,
		LongDwellDays:      2,
		CustomsHoldDays:    1,
		PortCongestionDays: 2,
		HubCongestionDays:  1,
		NoPickupDays:       1,

		PastETAPoints:  50,
		ETABands:       []Band{{Limit: 1, Points: 35}, {Limit: 2, Points: 25}, {Limit: 3, Points: 15}},
		StalenessBands: []Band{{Limit: 5, Points: 25}, {Limit: 3, Points: 15}, {Limit: 1, Points: 5}},

		DistanceBands:       []Band{{Limit: 10000, Points: 8}, {Limit: 5000, Points: 5}, {Limit: 2000, Points: 3}},
		InternationalPoints: 5,
		PeakSeasonPoints:    5,
		PeakMonths:          []time.Month{time.November, time.December},
		WeekendPoints:       3,
		ExpressPoints:       5,
		ExpressWindowDays:   2,
		SignalDaysToETA:     3,
		Keywords: map[string][]string{
			string(model.ReasonWeatherAlert): {
				"weather delay", "weather alert", "severe weather", "bad weather", "adverse weather",
				"storm", "typhoon", "hurricane", "blizzard", "heavy snow", "snowstorm", "flooding", "dense fog",
			},
			string(model.ReasonCapacityShortage): {
				"capacity shortage", "no capacity", "over capacity", "overbooked", "rolled over", "no space", "equipment shortage",
			},
			string(model.ReasonDocsMissing): {
				"missing document", "missing documents", "documents missing", "docs missing", "missing docs",
				"incomplete paperwork", "paperwork incomplete", "incomplete documentation", "documentation incomplete",
				"awaiting documents", "awaiting docs", "documents pending",
			},
		},

		HealthyMinDaysToETA: 7,
		HealthyMaxDwellDays: 3,
		HealthyCap:          15,
		HealthyStaleCap:     25,
	}
}

// Validate rejects policies that would produce meaningless scores.
func (p Policy) Validate() error {
	if p.ReasonWeight < 0 || p.PastETAPoints < 0 {
		return fmt.Errorf("%w: weights must not be negative", ErrInvalidPolicy)
	}
	if p.StaleDays <= 0 {
		return fmt.Errorf("%w: stale_days must be positive, got %v", ErrInvalidPolicy, p.StaleDays)
	}
	if p.HealthyCap < 0 || p.HealthyStaleCap < p.HealthyCap || p.HealthyStaleCap > maxScore {
		return fmt.Errorf("%w: healthy caps must satisfy 0 <= healthy_cap <= healthy_stale_cap <= %d", ErrInvalidPolicy, maxScore)
	}
	for _, m := range p.PeakMonths {
		if m < time.January || m > time.December {
			return fmt.Errorf("%w: peak month %d out of range", ErrInvalidPolicy, m)
		}
	}
	return nil
}

// below returns the points of the first band whose Limit is greater than v.
func below(bands []Band, v float64) int {
	for _, b := range bands {
		if v < b.Limit {
			return b.Points
		}
	}
	return 0
}

// above returns the points of the first band whose Limit is less than v.
func above(bands []Band, v float64) int {
	for _, b := range bands {
		if v > b.Limit {
			return b.Points
		}
	}
	return 0
}
