// Package lifecycle decides where a shipment stands in its life: not started,
// moving, delivered or written off.
package lifecycle

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/internal/domain/stage"
)

// Default cancellation thresholds.
const (
	DefaultCancelDwellDays   = 30.0
	DefaultCancelPastETADays = 14.0
)

const day = 24 * time.Hour

// ErrInvalidRules is returned when a threshold is not positive.
var ErrInvalidRules = errors.New("invalid lifecycle rules")

// Rules holds the thresholds of the implicit cancellation gate. Both must be
// reached for a shipment to be written off.
type Rules struct {
	CancelDwellDays   float64 `koanf:"cancel_dwell_days"`
	CancelPastETADays float64 `koanf:"cancel_past_eta_days"`
}

// DefaultRules returns the stock thresholds.
func DefaultRules() Rules {
	return Rules{CancelDwellDays: DefaultCancelDwellDays, CancelPastETADays: DefaultCancelPastETADays}
}

// Validate checks that both thresholds are positive.
func (r Rules) Validate() error {
	if r.CancelDwellDays <= 0 {
		return fmt.Errorf("%w: cancel_dwell_days must be positive, got %v", ErrInvalidRules, r.CancelDwellDays)
	}
	if r.CancelPastETADays <= 0 {
		return fmt.Errorf("%w: cancel_past_eta_days must be positive, got %v", ErrInvalidRules, r.CancelPastETADays)
	}
	return nil
}

// Input is what the detector looks at. Events must be sorted chronologically.
type Input struct {
	Shipment     model.ShipmentRecord
	Events       []model.Event
	CurrentStage string
	DwellDays    float64
	Now          time.Time
}

// Decision is the evaluated status. For canceled shipments Reason and At
// describe the terminal refund step.
type Decision struct {
	Status model.Status
	Reason string
	At     time.Time
}

// DaysPastETA returns how many days now is past the planned delivery, or a
// negative value when the ETA is still ahead.
func DaysPastETA(s model.ShipmentRecord, now time.Time) float64 {
	return float64(now.Sub(s.ExpectedDelivery)) / float64(day)
}

// Evaluate applies the rules in order: future, completed, explicit loss,
// implicit loss, in progress. Completed and future shipments are never
// considered for cancellation.
func (r Rules) Evaluate(in Input) Decision {
	if in.Shipment.OrderDate.After(in.Now) {
		return Decision{Status: model.StatusFuture}
	}
	if Delivered(in.Events, in.Now) {
		return Decision{Status: model.StatusCompleted}
	}
	if d, ok := explicitLoss(in); ok {
		return d
	}

	pastETA := DaysPastETA(in.Shipment, in.Now)
	if in.DwellDays >= r.CancelDwellDays && pastETA >= r.CancelPastETADays {
		return Decision{
			Status: model.StatusCanceled,
			Reason: fmt.Sprintf("%d days in '%s', %d days past ETA", floorDays(in.DwellDays), in.CurrentStage, floorDays(pastETA)),
			At:     in.Now,
		}
	}
	return Decision{Status: model.StatusInProgress}
}

// Delivered reports whether the last event at or before now is a delivery
// completion. Events must be sorted.
func Delivered(events []model.Event, now time.Time) bool {
	if len(events) == 0 {
		return false
	}
	last := events[len(events)-1]
	if last.Timestamp.After(now) {
		return false
	}
	return stage.IsDelivered(last.Stage) || stage.IsDelivered(last.Description)
}

func explicitLoss(in Input) (Decision, bool) {
	for _, e := range in.Events {
		for _, text := range []string{e.Stage, e.Description} {
			if stage.SignalsLoss(text) {
				at := e.Timestamp
				if at.After(in.Now) {
					at = in.Now
				}
				return Decision{Status: model.StatusCanceled, Reason: fmt.Sprintf("carrier reported '%s'", text), At: at}, true
			}
		}
	}
	if stage.SignalsLoss(in.Shipment.CurrentStatus) {
		return Decision{
			Status: model.StatusCanceled,
			Reason: fmt.Sprintf("status '%s'", in.Shipment.CurrentStatus),
			At:     in.Now,
		}, true
	}
	return Decision{}, false
}

func floorDays(d float64) int {
	if d <= 0 {
		return 0
	}
	return int(math.Floor(d))
}
