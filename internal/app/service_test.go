package service_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/zoobzio/clockz"

	service "github.com/okian/shipwatch/internal/app"
	"github.com/okian/shipwatch/internal/adapters/repository"
	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const day = 24 * time.Hour

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

func newStore(t *testing.T) *repository.SQLStore {
	t.Helper()
	s, err := repository.Open(context.Background(), repository.DriverSQLite, filepath.Join(t.TempDir(), "svc.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// roadPlan is a Road shipment ordered five days before now and due in ten.
func roadPlan(id string, now time.Time) model.ShipmentRecord {
	return model.ShipmentRecord{
		ShipmentID:       id,
		OrderDate:        now.Add(-5 * day),
		ExpectedDelivery: now.Add(10 * day),
		Mode:             "road",
		CurrentStatus:    "In transit",
		OriginCity:       "Berlin",
		OriginCountry:    "DE",
		DestCity:         "Paris",
		DestCountry:      "FR",
		ServiceLevel:     "Standard",
		Owner:            "ops",
	}
}

func progress(now time.Time) []model.Event {
	return []model.Event{
		{ID: "e1", Timestamp: now.Add(-5 * day), Stage: "Order created"},
		{ID: "e2", Timestamp: now.Add(-2 * day), Stage: "In transit"},
	}
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New(newStore(t))

		Convey("Then it reports sensible defaults before start", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["queueSize"], ShouldEqual, 10_000)
			So(stats["alertStaleness"], ShouldEqual, "15m0s")
			So(stats, ShouldNotContainKey, "queueLength")
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(newStore(t),
			service.WithWorkerCount(8),
			service.WithQueueSize(50_000),
			service.WithDedupeSize(25_000),
			service.WithAlertStaleness(time.Minute),
			service.WithRefreshInterval(0),
		)

		Convey("Then the options are applied", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 8)
			So(stats["queueSize"], ShouldEqual, 50_000)
			So(stats["dedupeSize"], ShouldEqual, 25_000)
			So(stats["alertStaleness"], ShouldEqual, "1m0s")
			So(stats["refreshInterval"], ShouldEqual, "0s")
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(newStore(t), service.WithWorkerCount(2), service.WithRefreshInterval(0))
		defer svc.Stop()
		ctx := context.Background()

		Convey("When used before start", func() {
			_, err := svc.IngestEvents(ctx, "SHP-1", progress(time.Now()))
			_, alertErr := svc.Alert(ctx, "SHP-1")
			_, topErr := svc.TopRisk(ctx, 10)

			Convey("Then every pipeline operation reports it", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(errors.Is(alertErr, service.ErrNotStarted), ShouldBeTrue)
				So(errors.Is(topErr, service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When started, stopped and started again", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)

			svc.Stop()
			So(svc.GetStats()["started"], ShouldEqual, false)
			svc.Stop()

			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then the service runs with fresh components", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["queueLength"], ShouldEqual, 0)
				So(stats["riskBoardSize"], ShouldEqual, 0)
			})
		})
	})
}

func TestService_UpsertShipment(t *testing.T) {
	Convey("Given a started service", t, func() {
		store := newStore(t)
		clock := clockz.NewFakeClock()
		svc := service.New(store, service.WithClock(clock), service.WithWorkerCount(1), service.WithRefreshInterval(0))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When the plan is incomplete", func() {
			noID := roadPlan("", clock.Now())
			noETA := roadPlan("SHP-1", clock.Now())
			noETA.ExpectedDelivery = time.Time{}
			badMode := roadPlan("SHP-1", clock.Now())
			badMode.Mode = "rail"

			Convey("Then it is rejected as invalid input", func() {
				So(errors.Is(svc.UpsertShipment(ctx, noID), service.ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(svc.UpsertShipment(ctx, noETA), service.ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(svc.UpsertShipment(ctx, badMode), service.ErrInvalidInput), ShouldBeTrue)
			})
		})

		Convey("When a valid plan is stored", func() {
			So(svc.UpsertShipment(ctx, roadPlan("SHP-1", clock.Now())), ShouldBeNil)

			Convey("Then the mode is canonicalized", func() {
				got, err := store.GetShipment(ctx, "SHP-1")
				So(err, ShouldBeNil)
				So(got.Mode, ShouldEqual, model.ModeRoad)
			})

			Convey("Then an alert is computed in the background", func() {
				So(waitFor(func() bool {
					_, err := store.GetAlert(ctx, "SHP-1")
					return err == nil
				}), ShouldBeTrue)
			})
		})
	})
}

func TestService_IngestEvents(t *testing.T) {
	Convey("Given a started service with one shipment", t, func() {
		store := newStore(t)
		clock := clockz.NewFakeClock()
		svc := service.New(store, service.WithClock(clock), service.WithWorkerCount(1), service.WithRefreshInterval(0))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		So(svc.UpsertShipment(ctx, roadPlan("SHP-1", clock.Now())), ShouldBeNil)

		Convey("When events arrive twice", func() {
			first, err := svc.IngestEvents(ctx, "SHP-1", progress(clock.Now()))
			So(err, ShouldBeNil)
			second, err := svc.IngestEvents(ctx, "SHP-1", progress(clock.Now()))
			So(err, ShouldBeNil)

			Convey("Then only the first delivery counts", func() {
				So(first, ShouldEqual, 2)
				So(second, ShouldEqual, 0)
				events, err := store.Events(ctx, "SHP-1")
				So(err, ShouldBeNil)
				So(len(events), ShouldEqual, 2)
			})
		})

		Convey("When an event lacks a timestamp", func() {
			events := progress(clock.Now())
			events[1].Timestamp = time.Time{}
			n, err := svc.IngestEvents(ctx, "SHP-1", events)

			Convey("Then the whole batch is rejected", func() {
				So(n, ShouldEqual, 0)
				So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
				stored, _ := store.Events(ctx, "SHP-1")
				So(stored, ShouldBeEmpty)
			})
		})

		Convey("When events target an unknown shipment", func() {
			_, err := svc.IngestEvents(ctx, "GHOST", progress(clock.Now()))

			Convey("Then not found is reported and a retry is not mistaken for a replay", func() {
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
				So(svc.UpsertShipment(ctx, roadPlan("GHOST", clock.Now())), ShouldBeNil)
				n, err := svc.IngestEvents(ctx, "GHOST", progress(clock.Now()))
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
			})
		})
	})
}

func TestService_Alert(t *testing.T) {
	Convey("Given a shipment with tracking events", t, func() {
		store := newStore(t)
		clock := clockz.NewFakeClock()
		svc := service.New(store,
			service.WithClock(clock),
			service.WithWorkerCount(1),
			service.WithAlertStaleness(10*time.Minute),
			service.WithRefreshInterval(0),
		)
		ctx := context.Background()
		// written around the service so no background job races the clock
		So(store.PutShipment(ctx, roadPlan("SHP-1", clock.Now())), ShouldBeNil)
		_, err := store.AppendEvents(ctx, "SHP-1", progress(clock.Now()))
		So(err, ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When the alert is requested", func() {
			a, err := svc.Alert(ctx, "SHP-1")

			Convey("Then it reflects the latest events", func() {
				So(err, ShouldBeNil)
				So(a.ShipmentID, ShouldEqual, "SHP-1")
				So(a.Status, ShouldEqual, model.StatusInProgress)
				So(a.CurrentStage, ShouldEqual, "In transit")
				So(a.Steps, ShouldNotBeEmpty)
			})
		})

		Convey("When the stored alert is fresh", func() {
			first, err := svc.Alert(ctx, "SHP-1")
			So(err, ShouldBeNil)
			clock.Advance(time.Minute)
			second, err := svc.Alert(ctx, "SHP-1")
			So(err, ShouldBeNil)

			Convey("Then it is served without recomputing", func() {
				So(second.ComputedAt.Equal(first.ComputedAt), ShouldBeTrue)
			})
		})

		Convey("When the stored alert is older than the staleness window", func() {
			first, err := svc.Alert(ctx, "SHP-1")
			So(err, ShouldBeNil)
			clock.Advance(time.Hour)
			second, err := svc.Alert(ctx, "SHP-1")
			So(err, ShouldBeNil)

			Convey("Then it is recomputed at the current time", func() {
				So(second.ComputedAt.After(first.ComputedAt), ShouldBeTrue)
				So(second.ComputedAt.Equal(clock.Now()), ShouldBeTrue)
			})
		})

		Convey("When a delivery arrives while the stored alert is fresh", func() {
			first, err := svc.Alert(ctx, "SHP-1")
			So(err, ShouldBeNil)
			So(first.Status, ShouldEqual, model.StatusInProgress)
			delivered := []model.Event{{ID: "e3", Timestamp: clock.Now().Add(-time.Minute), Stage: "Package received by customer"}}
			n, err := svc.IngestEvents(ctx, "SHP-1", delivered)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			second, err := svc.Alert(ctx, "SHP-1")
			So(err, ShouldBeNil)

			Convey("Then the stored alert is not served", func() {
				So(second.Status, ShouldEqual, model.StatusCompleted)
				So(second.CurrentStage, ShouldEqual, "Package received by customer")
			})
		})

		Convey("When the plan changes while the stored alert is fresh", func() {
			first, err := svc.Alert(ctx, "SHP-1")
			So(err, ShouldBeNil)
			replanned := roadPlan("SHP-1", clock.Now())
			replanned.ExpectedDelivery = replanned.ExpectedDelivery.Add(10 * day)
			So(svc.UpsertShipment(ctx, replanned), ShouldBeNil)
			second, err := svc.Alert(ctx, "SHP-1")
			So(err, ShouldBeNil)

			Convey("Then the alert follows the new plan", func() {
				So(second.DaysToETA, ShouldEqual, first.DaysToETA+10)
			})
		})

		Convey("When the shipment is unknown", func() {
			_, err := svc.Alert(ctx, "GHOST")

			Convey("Then not found is reported", func() {
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_Acknowledge(t *testing.T) {
	Convey("Given a computed alert", t, func() {
		store := newStore(t)
		clock := clockz.NewFakeClock()
		svc := service.New(store, service.WithClock(clock), service.WithWorkerCount(1), service.WithRefreshInterval(0))
		ctx := context.Background()
		So(store.PutShipment(ctx, roadPlan("SHP-1", clock.Now())), ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		_, err := svc.Alert(ctx, "SHP-1")
		So(err, ShouldBeNil)

		Convey("When an operator acknowledges it", func() {
			a, err := svc.Acknowledge(ctx, "SHP-1")
			So(err, ShouldBeNil)

			Convey("Then the acknowledgement is visible to readers", func() {
				So(a.AcknowledgedAt, ShouldNotBeNil)
				So(a.AcknowledgedAt.Equal(clock.Now()), ShouldBeTrue)

				acked := true
				list, err := svc.ListAlerts(ctx, repository.AlertFilter{Acknowledged: &acked})
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 1)

				got, err := svc.Alert(ctx, "SHP-1")
				So(err, ShouldBeNil)
				So(got.AcknowledgedAt, ShouldNotBeNil)
			})
		})

		Convey("When the alert does not exist", func() {
			_, err := svc.Acknowledge(ctx, "GHOST")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Refresh(t *testing.T) {
	Convey("Given shipments with and without alerts", t, func() {
		store := newStore(t)
		clock := clockz.NewFakeClock()
		svc := service.New(store,
			service.WithClock(clock),
			service.WithWorkerCount(1),
			service.WithAlertStaleness(10*time.Minute),
			service.WithRefreshInterval(0),
		)
		ctx := context.Background()
		// stored directly so nothing is queued yet
		So(store.PutShipment(ctx, roadPlan("SHP-1", clock.Now())), ShouldBeNil)
		So(store.PutShipment(ctx, roadPlan("SHP-2", clock.Now())), ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When the sweep runs", func() {
			n, err := svc.Refresh(ctx)
			So(err, ShouldBeNil)

			Convey("Then shipments without an alert are recomputed", func() {
				So(n, ShouldEqual, 2)
				So(waitFor(func() bool {
					_, e1 := store.GetAlert(ctx, "SHP-1")
					_, e2 := store.GetAlert(ctx, "SHP-2")
					return e1 == nil && e2 == nil
				}), ShouldBeTrue)
			})

			Convey("Then a second sweep finds nothing while alerts are fresh", func() {
				So(waitFor(func() bool {
					_, e1 := store.GetAlert(ctx, "SHP-1")
					_, e2 := store.GetAlert(ctx, "SHP-2")
					return e1 == nil && e2 == nil
				}), ShouldBeTrue)
				again, err := svc.Refresh(ctx)
				So(err, ShouldBeNil)
				So(again, ShouldEqual, 0)

				clock.Advance(time.Hour)
				later, err := svc.Refresh(ctx)
				So(err, ShouldBeNil)
				So(later, ShouldEqual, 2)
			})
		})
	})
}
