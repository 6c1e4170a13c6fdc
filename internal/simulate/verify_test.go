package simulate

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func at(t time.Time) *time.Time { return &t }

func TestVerifyAlert(t *testing.T) {
	Convey("Given a scenario and its alert", t, func() {
		order := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
		sc := Scenario{Shipment: Shipment{ShipmentID: "SHP-1", OrderDate: order}}
		alert := Alert{
			ShipmentID: "SHP-1",
			RiskScore:  40,
			Severity:   "Medium",
			Status:     "in_progress",
			Steps: []Step{
				{Name: "Order created", Order: 1, ActualTimestamp: at(order)},
				{Name: "Picked up from shipper", Order: 2, ActualTimestamp: at(order.Add(6 * time.Hour))},
				{Name: "In transit", Order: 3},
			},
		}

		Convey("When the alert is consistent", func() {
			Convey("Then nothing is reported", func() {
				So(VerifyAlert(sc, alert), ShouldBeEmpty)
			})
		})

		Convey("When the score leaves the 0..100 range", func() {
			alert.RiskScore = 101

			Convey("Then it is reported", func() {
				So(VerifyAlert(sc, alert), ShouldHaveLength, 1)
			})
		})

		Convey("When a step completes before its predecessor", func() {
			alert.Steps[2].ActualTimestamp = at(order.Add(time.Hour))

			Convey("Then the timeline is reported", func() {
				v := VerifyAlert(sc, alert)
				So(v, ShouldHaveLength, 1)
				So(v[0], ShouldContainSubstring, "before its predecessor")
			})
		})

		Convey("When a step completes before the order date", func() {
			alert.Steps[0].ActualTimestamp = at(order.Add(-time.Hour))

			Convey("Then it is reported", func() {
				So(VerifyAlert(sc, alert)[0], ShouldContainSubstring, "before the order date")
			})
		})

		Convey("When steps are out of order and severity is missing", func() {
			alert.Steps[1].Order = 1
			alert.Severity = ""

			Convey("Then both are reported", func() {
				So(VerifyAlert(sc, alert), ShouldHaveLength, 2)
			})
		})
	})
}

func TestVerifyBoard(t *testing.T) {
	Convey("Given a risk board", t, func() {
		board := []Entry{
			{Rank: 1, ShipmentID: "a", Score: 90},
			{Rank: 2, ShipmentID: "b", Score: 70},
			{Rank: 3, ShipmentID: "c", Score: 70},
		}

		Convey("When it is ranked correctly", func() {
			Convey("Then nothing is reported", func() {
				So(VerifyBoard(board, nil), ShouldBeEmpty)
			})
		})

		Convey("When a lower row has a higher score", func() {
			board[2].Score = 95

			Convey("Then it is reported", func() {
				So(VerifyBoard(board, nil), ShouldHaveLength, 1)
			})
		})

		Convey("When ranks skip and an ID repeats", func() {
			board[2] = Entry{Rank: 4, ShipmentID: "a", Score: 10}

			Convey("Then both are reported", func() {
				So(VerifyBoard(board, nil), ShouldHaveLength, 2)
			})
		})

		Convey("When a delivered shipment is listed", func() {
			alerts := map[string]Alert{"b": {ShipmentID: "b", Status: "completed"}}

			Convey("Then it is reported", func() {
				v := VerifyBoard(board, alerts)
				So(v, ShouldHaveLength, 1)
				So(v[0], ShouldContainSubstring, "completed")
			})
		})
	})
}
