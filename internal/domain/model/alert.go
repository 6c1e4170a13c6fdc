package model

import "time"

// ExpectedStep is one entry of a mode template with its planned completion time.
type ExpectedStep struct {
	Name                  string     `json:"name"`
	Order                 int        `json:"order"`
	ExpectedDurationHours float64    `json:"expected_duration_hours"`
	ExpectedTimestamp     time.Time  `json:"expected_timestamp"`
	Instant               bool       `json:"instant,omitempty"`
	Transit               bool       `json:"transit,omitempty"`
	SynthesizedAt         *time.Time `json:"synthesized_at,omitempty"`
}

// StepSource records where a reconciled actual timestamp came from.
type StepSource string

const (
	SourceExpected    StepSource = "expected"
	SourceObserved    StepSource = "observed"
	SourceInferred    StepSource = "inferred"
	SourceSynthesized StepSource = "synthesized"
	SourceTerminal    StepSource = "terminal"
)

// ReconciledStep merges an expected step with the actual progress, if any.
type ReconciledStep struct {
	Name              string     `json:"name"`
	Order             int        `json:"order"`
	ExpectedTimestamp time.Time  `json:"expected_timestamp"`
	ActualTimestamp   *time.Time `json:"actual_timestamp,omitempty"`
	Location          string     `json:"location,omitempty"`
	Description       string     `json:"description,omitempty"`
	Source            StepSource `json:"source"`
}

// Done reports whether the step has an actual timestamp.
func (s *ReconciledStep) Done() bool { return s.ActualTimestamp != nil }

// RiskReason is a categorical risk flag.
type RiskReason string

const (
	ReasonStaleStatus      RiskReason = "stale_status"
	ReasonPortCongestion   RiskReason = "port_congestion"
	ReasonCustomsHold      RiskReason = "customs_hold"
	ReasonMissedDeparture  RiskReason = "missed_departure"
	ReasonLongDwell        RiskReason = "long_dwell"
	ReasonNoPickup         RiskReason = "no_pickup"
	ReasonHubCongestion    RiskReason = "hub_congestion"
	ReasonWeatherAlert     RiskReason = "weather_alert"
	ReasonCapacityShortage RiskReason = "capacity_shortage"
	ReasonDocsMissing      RiskReason = "docs_missing"
	ReasonLost             RiskReason = "lost"
)

// Reasons is an insertion-ordered set of risk reasons.
type Reasons []RiskReason

// Add appends r unless it is already present.
func (rs Reasons) Add(r RiskReason) Reasons {
	if rs.Has(r) {
		return rs
	}
	return append(rs, r)
}

// Has reports whether r is in the set.
func (rs Reasons) Has(r RiskReason) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

// Severity is the discrete risk tier.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
	SeverityMinimal  Severity = "Minimal"
)

// Status is the lifecycle state of a shipment.
type Status string

const (
	StatusFuture     Status = "future"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCanceled }

// Alert is the computed risk view of one shipment.
type Alert struct {
	ShipmentID     string           `json:"shipment_id"`
	CurrentStage   string           `json:"current_stage"`
	DaysToETA      int              `json:"days_to_eta"`
	RiskScore      int              `json:"risk_score"`
	Severity       Severity         `json:"severity"`
	RiskReasons    Reasons          `json:"risk_reasons"`
	Status         Status           `json:"status"`
	Steps          []ReconciledStep `json:"steps"`
	ComputedAt     time.Time        `json:"computed_at"`
	AcknowledgedAt *time.Time       `json:"acknowledged_at,omitempty"`

	// Stale is set by the store when the plan or events changed after
	// ComputedAt.
	Stale bool `json:"-"`
}
