package simulate

import (
	"time"

	"github.com/zoobzio/clockz"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Shipments  int           // Number of shipments to generate
	Workers    int           // Number of concurrent submitters
	Rate       float64       // Requests per second, 0 for unlimited
	Seed       uint64        // Scenario seed
	Timeout    time.Duration // HTTP request timeout
	Settle     time.Duration // How long to wait for the recompute queue to drain
	TopN       int           // Risk board rows to fetch
	Retries    uint64        // Retries per request on backpressure
	OutputFile string        // Where to write the generated scenarios, empty to skip
	Verbose    bool

	// Clock anchors the generated timelines; nil means the real clock.
	Clock clockz.Clock
}

// DefaultConfig returns the settings used by the CLI when no flag is given.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "http://localhost:9080",
		Shipments: 200,
		Workers:   8,
		Seed:      1,
		Timeout:   30 * time.Second,
		Settle:    30 * time.Second,
		TopN:      20,
		Retries:   5,
	}
}

// Shipment is the plan sent to POST /shipments.
type Shipment struct {
	ShipmentID       string    `json:"shipment_id"`
	OrderDate        time.Time `json:"order_date"`
	ExpectedDelivery time.Time `json:"expected_delivery"`
	Mode             string    `json:"mode"`
	CurrentStatus    string    `json:"current_status,omitempty"`
	OriginCity       string    `json:"origin_city,omitempty"`
	DestCity         string    `json:"dest_city,omitempty"`
	ServiceLevel     string    `json:"service_level,omitempty"`
	Carrier          string    `json:"carrier,omitempty"`
	Owner            string    `json:"owner,omitempty"`
}

// Event is one tracking event sent to POST /shipments/{id}/events.
type Event struct {
	EventID     string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	Stage       string    `json:"stage"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
}

// Scenario is a shipment with the events it reports, in submission order.
// Replays holds events sent a second time to exercise deduplication.
type Scenario struct {
	Shipment Shipment `json:"shipment"`
	Events   []Event  `json:"events"`
	Replays  []Event  `json:"replays,omitempty"`
}

// Step is the part of a reconciled step the verifier reads.
type Step struct {
	Name              string     `json:"name"`
	Order             int        `json:"order"`
	ExpectedTimestamp time.Time  `json:"expected_timestamp"`
	ActualTimestamp   *time.Time `json:"actual_timestamp,omitempty"`
	Source            string     `json:"source"`
}

// Alert is the response of GET /shipments/{id}/alert.
type Alert struct {
	ShipmentID   string    `json:"shipment_id"`
	CurrentStage string    `json:"current_stage"`
	DaysToETA    int       `json:"days_to_eta"`
	RiskScore    int       `json:"risk_score"`
	Severity     string    `json:"severity"`
	RiskReasons  []string  `json:"risk_reasons"`
	Status       string    `json:"status"`
	Steps        []Step    `json:"steps"`
	ComputedAt   time.Time `json:"computed_at"`
}

// Entry is one risk board row.
type Entry struct {
	Rank       int    `json:"rank"`
	ShipmentID string `json:"shipment_id"`
	Score      int    `json:"risk_score"`
	Severity   string `json:"severity"`
}

type ingestResponse struct {
	Status     string `json:"status"`
	Accepted   int    `json:"accepted"`
	Duplicates int    `json:"duplicates"`
}

// Stats holds run statistics.
type Stats struct {
	ShipmentsGenerated int
	ShipmentsSubmitted int
	ShipmentsFailed    int
	EventsAccepted     int
	EventsDuplicate    int
	Backpressured      int
	AlertsRetrieved    int
	BoardEntries       int
	Violations         []string
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
