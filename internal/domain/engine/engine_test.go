package engine_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/shipwatch/internal/domain/engine"
	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/internal/domain/scoring"
	"github.com/okian/shipwatch/internal/domain/timeline"
	. "github.com/smartystreets/goconvey/convey"
)

// Monday.
var t0 = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func seaShipment() model.ShipmentRecord {
	return model.ShipmentRecord{
		ShipmentID:       "SEA-1",
		OrderDate:        t0,
		ExpectedDelivery: t0.Add(20 * day),
		Mode:             model.ModeSea,
		CurrentStatus:    "Arrived at customs",
		OriginCity:       "Rotterdam",
		OriginCountry:    "NL",
		DestCity:         "Hamburg",
		DestCountry:      "NL",
		ServiceLevel:     "Standard",
	}
}

func TestComputeCustomsScenario(t *testing.T) {
	Convey("Given a Sea shipment that reached customs on day 18", t, func() {
		events := []model.Event{
			{ID: "e2", Timestamp: t0.Add(18 * day), Stage: "Arrived at customs"},
			{ID: "e1", Timestamp: t0, Stage: "Order created"},
		}
		alert := engine.New().Compute(seaShipment(), events, t0.Add(19*day))

		Convey("Then it is in progress one day from the ETA", func() {
			So(alert.Status, ShouldEqual, model.StatusInProgress)
			So(alert.DaysToETA, ShouldEqual, 1)
			So(alert.CurrentStage, ShouldEqual, "Arrived at customs")
		})

		Convey("Then the risk is moderate and not High", func() {
			So(alert.RiskReasons.Has(model.ReasonCustomsHold), ShouldBeFalse)
			So(alert.RiskScore, ShouldBeBetweenOrEqual, 25, 39)
			So(alert.Severity, ShouldEqual, model.SeverityLow)
		})

		Convey("Then the timeline is reconciled", func() {
			So(len(alert.Steps), ShouldEqual, 12)
			So(*alert.Steps[7].ActualTimestamp, ShouldEqual, t0.Add(18*day))
			So(alert.ComputedAt, ShouldEqual, t0.Add(19*day))
		})
	})
}

func TestComputeFuture(t *testing.T) {
	Convey("Given an order placed after now", t, func() {
		s := seaShipment()
		s.OrderDate = t0.Add(5 * day)
		s.ExpectedDelivery = t0.Add(25 * day)
		alert := engine.New().Compute(s, nil, t0)

		Convey("Then it is future with expected-only steps", func() {
			So(alert.Status, ShouldEqual, model.StatusFuture)
			So(alert.RiskScore, ShouldEqual, 0)
			So(alert.Severity, ShouldEqual, model.SeverityLow)
			So(alert.RiskReasons, ShouldBeEmpty)
			So(alert.DaysToETA, ShouldEqual, 25)
			for _, st := range alert.Steps {
				So(st.ActualTimestamp, ShouldBeNil)
				So(st.Source, ShouldEqual, model.SourceExpected)
			}
		})
	})
}

func TestComputeCompleted(t *testing.T) {
	Convey("Given a delivered shipment well past its ETA", t, func() {
		events := []model.Event{
			{Timestamp: t0, Stage: "Order created"},
			{Timestamp: t0.Add(26 * day), Stage: "Delivered", Description: "Signed for by J. Doe"},
		}
		alert := engine.New().Compute(seaShipment(), events, t0.Add(40*day))

		Convey("Then it is completed with no risk", func() {
			So(alert.Status, ShouldEqual, model.StatusCompleted)
			So(alert.RiskScore, ShouldEqual, 0)
			So(alert.RiskReasons, ShouldBeEmpty)
			So(alert.DaysToETA, ShouldEqual, 0)
			So(*alert.Steps[11].ActualTimestamp, ShouldEqual, t0.Add(26*day))
		})
	})
}

func TestComputeCanceled(t *testing.T) {
	Convey("Given a shipment stuck in transit for 35 days and 20 days past ETA", t, func() {
		now := t0.Add(40 * day)
		events := []model.Event{
			{Timestamp: t0, Stage: "Order created"},
			{Timestamp: t0.Add(5 * day), Stage: "In transit"},
		}
		s := seaShipment()
		s.CurrentStatus = "In transit"
		alert := engine.New(engine.WithScorer(scoring.NewScorer(scoring.WithTiers(scoring.FiveTier())))).Compute(s, events, now)

		Convey("Then it is canceled at the top tier", func() {
			So(alert.Status, ShouldEqual, model.StatusCanceled)
			So(alert.RiskScore, ShouldEqual, 100)
			So(alert.Severity, ShouldEqual, model.SeverityCritical)
			So(alert.RiskReasons[len(alert.RiskReasons)-1], ShouldEqual, model.ReasonLost)
		})

		Convey("Then a refund step closes the timeline", func() {
			last := alert.Steps[len(alert.Steps)-1]
			So(last.Name, ShouldEqual, timeline.RefundStepName)
			So(last.Description, ShouldEqual, "35 days in 'In transit', 20 days past ETA")
			So(*last.ActualTimestamp, ShouldEqual, now)
		})
	})

	Convey("Given the same stall only 10 days past ETA", t, func() {
		events := []model.Event{{Timestamp: t0.Add(-1 * day), Stage: "In transit"}}
		alert := engine.New().Compute(seaShipment(), events, t0.Add(30*day))
		So(alert.Status, ShouldEqual, model.StatusInProgress)
		So(alert.RiskScore, ShouldBeGreaterThanOrEqualTo, 50)
	})
}

func TestComputeIdempotent(t *testing.T) {
	Convey("Given identical inputs and a frozen clock", t, func() {
		eng := engine.New(engine.WithJitter(timeline.NewSeededJitter(7)))
		s := seaShipment()
		s.CurrentStatus = "In transit"
		events := []model.Event{
			{Timestamp: t0.Add(3 * day), Stage: "Loaded on vessel", Description: "storm delay expected"},
			{Timestamp: t0.Add(time.Hour), Stage: "Picked up"},
		}
		now := t0.Add(9 * day)

		a, err := json.Marshal(eng.Compute(s, events, now))
		So(err, ShouldBeNil)
		b, err := json.Marshal(eng.Compute(s, events, now))
		So(err, ShouldBeNil)

		Convey("Then the alerts are byte-identical", func() {
			So(string(a), ShouldEqual, string(b))
		})

		Convey("Then the caller's events are untouched", func() {
			So(events[0].Stage, ShouldEqual, "Loaded on vessel")
		})
	})
}

func TestComputeWithoutEvents(t *testing.T) {
	Convey("Given a shipment with no tracking events yet", t, func() {
		s := seaShipment()
		s.CurrentStatus = ""
		alert := engine.New().Compute(s, nil, t0.Add(2*day))

		Convey("Then the first step is the current stage and pickup is overdue", func() {
			So(alert.CurrentStage, ShouldEqual, "Order created")
			So(alert.RiskReasons.Has(model.ReasonNoPickup), ShouldBeTrue)
			So(alert.Steps[0].ActualTimestamp, ShouldNotBeNil)
		})
	})
}
