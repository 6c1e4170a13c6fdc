package lifecycle_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/shipwatch/internal/domain/lifecycle"
	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2025, time.January, 6, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func shipment() model.ShipmentRecord {
	return model.ShipmentRecord{
		ShipmentID:       "S-1",
		OrderDate:        t0,
		ExpectedDelivery: t0.Add(20 * day),
		Mode:             model.ModeSea,
		CurrentStatus:    "In transit",
	}
}

// stalled builds an input whose ETA passed pastETA days ago and whose current
// stage was entered dwell days ago.
func stalled(dwell, pastETA float64) lifecycle.Input {
	s := shipment()
	now := s.ExpectedDelivery.Add(time.Duration(pastETA * float64(day)))
	return lifecycle.Input{
		Shipment:     s,
		Events:       []model.Event{{Timestamp: t0.Add(day), Stage: "In transit"}},
		CurrentStage: "In transit",
		DwellDays:    dwell,
		Now:          now,
	}
}

func TestEvaluateCancellationGate(t *testing.T) {
	convey.Convey("Given the default rules", t, func() {
		rules := lifecycle.DefaultRules()

		convey.Convey("When the dwell is long but the ETA is barely missed", func() {
			convey.So(rules.Evaluate(stalled(31, 10)).Status, convey.ShouldEqual, model.StatusInProgress)
		})

		convey.Convey("When the ETA is long gone but the dwell is short", func() {
			convey.So(rules.Evaluate(stalled(25, 20)).Status, convey.ShouldEqual, model.StatusInProgress)
		})

		convey.Convey("When both thresholds are reached", func() {
			d := rules.Evaluate(stalled(35, 20))

			convey.Convey("Then the shipment is canceled with a readable reason", func() {
				convey.So(d.Status, convey.ShouldEqual, model.StatusCanceled)
				convey.So(d.Reason, convey.ShouldEqual, "35 days in 'In transit', 20 days past ETA")
			})
		})
	})

	convey.Convey("Given stricter configured rules", t, func() {
		rules := lifecycle.Rules{CancelDwellDays: 10, CancelPastETADays: 5}
		convey.So(rules.Evaluate(stalled(31, 10)).Status, convey.ShouldEqual, model.StatusCanceled)
	})
}

func TestEvaluateOrder(t *testing.T) {
	rules := lifecycle.DefaultRules()

	convey.Convey("Given an order placed in the future", t, func() {
		in := stalled(40, 30)
		in.Now = t0.Add(-day)
		in.Shipment.CurrentStatus = "Canceled"
		convey.So(rules.Evaluate(in).Status, convey.ShouldEqual, model.StatusFuture)
	})

	convey.Convey("Given a delivered shipment that stalled before delivery", t, func() {
		in := stalled(40, 30)
		in.Events = append(in.Events, model.Event{Timestamp: t0.Add(30 * day), Stage: "Delivered"})
		convey.So(rules.Evaluate(in).Status, convey.ShouldEqual, model.StatusCompleted)
	})

	convey.Convey("Given an explicit refund event", t, func() {
		in := stalled(0, -5)
		in.Events = append(in.Events, model.Event{Timestamp: t0.Add(3 * day), Stage: "Exception", Description: "Refund issued to customer"})
		d := rules.Evaluate(in)

		convey.Convey("Then it is canceled at the event time", func() {
			convey.So(d.Status, convey.ShouldEqual, model.StatusCanceled)
			convey.So(d.At, convey.ShouldEqual, t0.Add(3*day))
			convey.So(d.Reason, convey.ShouldContainSubstring, "Refund issued")
		})
	})

	convey.Convey("Given a lost status on the record", t, func() {
		in := stalled(0, -5)
		in.Shipment.CurrentStatus = "Lost in transit"
		convey.So(rules.Evaluate(in).Status, convey.ShouldEqual, model.StatusCanceled)
	})
}

func TestDelivered(t *testing.T) {
	convey.Convey("Given various final events", t, func() {
		now := t0.Add(10 * day)
		ev := func(stageName string, at time.Time) []model.Event {
			return []model.Event{{Timestamp: t0, Stage: "Order created"}, {Timestamp: at, Stage: stageName}}
		}

		convey.So(lifecycle.Delivered(ev("Delivered", t0.Add(day)), now), convey.ShouldBeTrue)
		convey.So(lifecycle.Delivered(ev("Package received by customer", t0.Add(day)), now), convey.ShouldBeTrue)
		convey.So(lifecycle.Delivered(ev("Delivery attempt failed", t0.Add(day)), now), convey.ShouldBeFalse)
		convey.So(lifecycle.Delivered(ev("Delivered", t0.Add(20*day)), now), convey.ShouldBeFalse)
		convey.So(lifecycle.Delivered(nil, now), convey.ShouldBeFalse)

		convey.Convey("Then a delivery followed by another scan is not completion", func() {
			events := []model.Event{
				{Timestamp: t0.Add(day), Stage: "Delivered"},
				{Timestamp: t0.Add(2 * day), Stage: "Returned to hub"},
			}
			convey.So(lifecycle.Delivered(events, now), convey.ShouldBeFalse)
		})
	})
}

func TestRulesValidate(t *testing.T) {
	convey.Convey("Given rule sets", t, func() {
		convey.So(lifecycle.DefaultRules().Validate(), convey.ShouldBeNil)
		err := lifecycle.Rules{CancelDwellDays: 0, CancelPastETADays: 14}.Validate()
		convey.So(errors.Is(err, lifecycle.ErrInvalidRules), convey.ShouldBeTrue)
	})
}
