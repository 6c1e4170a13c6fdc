package dwell_test

import (
	"testing"
	"time"

	"github.com/okian/shipwatch/internal/domain/dwell"
	"github.com/okian/shipwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2025, time.May, 5, 0, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func TestDays(t *testing.T) {
	Convey("Given a shipment sitting at customs", t, func() {
		events := []model.Event{
			{Timestamp: t0.Add(18 * day), Stage: "Arrived at customs"},
			{Timestamp: t0, Stage: "Order created"},
		}

		Convey("Then dwell counts from the customs arrival", func() {
			So(dwell.Days(events, "Arrived at customs", t0.Add(19*day)), ShouldAlmostEqual, 1.0, 1e-9)
		})

		Convey("Then a fuzzy stage name still matches", func() {
			So(dwell.Days(events, "customs", t0.Add(20*day)), ShouldAlmostEqual, 2.0, 1e-9)
		})
	})

	Convey("Given a shipment that moved on", t, func() {
		events := []model.Event{
			{Timestamp: t0, Stage: "Arrived at customs"},
			{Timestamp: t0.Add(day), Stage: "Customs cleared"},
			{Timestamp: t0.Add(2 * day), Stage: "Out for delivery"},
		}
		So(dwell.Days(events, "Arrived at customs", t0.Add(10*day)), ShouldEqual, 0)
	})

	Convey("Given repeated scans of the same stage", t, func() {
		events := []model.Event{
			{Timestamp: t0, Stage: "In transit"},
			{Timestamp: t0.Add(day), Stage: "Arrived at hub"},
			{Timestamp: t0.Add(3 * day), Stage: "In transit"},
			{Timestamp: t0.Add(5 * day), Stage: "in transit"},
		}

		Convey("Then dwell counts from the current stay only", func() {
			So(dwell.Days(events, "In transit", t0.Add(7*day)), ShouldAlmostEqual, 4.0, 1e-9)
		})
	})

	Convey("Given no events or a clock before the event", t, func() {
		So(dwell.Days(nil, "In transit", t0), ShouldEqual, 0)
		events := []model.Event{{Timestamp: t0.Add(day), Stage: "In transit"}}
		So(dwell.Days(events, "In transit", t0), ShouldEqual, 0)
	})
}

func TestSorted(t *testing.T) {
	Convey("Given unordered events with invalid entries", t, func() {
		events := []model.Event{
			{Timestamp: t0.Add(2 * day), Stage: "b"},
			{Stage: "no time"},
			{Timestamp: t0, Stage: "a"},
			{Timestamp: t0.Add(day), Stage: "  "},
		}
		out := dwell.Sorted(events)

		Convey("Then only valid events remain in time order", func() {
			So(len(out), ShouldEqual, 2)
			So(out[0].Stage, ShouldEqual, "a")
			So(out[1].Stage, ShouldEqual, "b")
			So(events[0].Stage, ShouldEqual, "b")
		})
	})
}
