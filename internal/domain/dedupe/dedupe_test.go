package dedupe_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/shipwatch/internal/domain/dedupe"
	"github.com/okian/shipwatch/internal/domain/model"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When created with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should be empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When recording keys", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("A new key is reported unseen and recorded", func() {
				So(d.SeenAndRecord(ctx, "SHP-1/e1"), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("A repeated key is reported seen", func() {
				d.SeenAndRecord(ctx, "SHP-1/e1")
				So(d.SeenAndRecord(ctx, "SHP-1/e1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("Unrecord lets the key through again", func() {
				d.SeenAndRecord(ctx, "SHP-1/e1")
				d.Unrecord(ctx, "SHP-1/e1")
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "SHP-1/e1"), ShouldBeFalse)
			})

			Convey("Unrecord of an unknown key is a no-op", func() {
				d.SeenAndRecord(ctx, "a")
				d.Unrecord(ctx, "b")
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When bounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for _, k := range []string{"k1", "k2", "k3"} {
				So(d.SeenAndRecord(ctx, k), ShouldBeFalse)
			}

			Convey("The oldest key is evicted first", func() {
				So(d.SeenAndRecord(ctx, "k4"), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 3)

				So(d.SeenAndRecord(ctx, "k2"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "k3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "k4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "k1"), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 3)
			})

			Convey("A seen hit does not refresh the key's position", func() {
				So(d.SeenAndRecord(ctx, "k1"), ShouldBeTrue)
				d.SeenAndRecord(ctx, "k4")
				So(d.SeenAndRecord(ctx, "k2"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "k1"), ShouldBeFalse)
			})
		})

		Convey("When unbounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
			const n = 1000
			for i := 0; i < n; i++ {
				So(d.SeenAndRecord(ctx, fmt.Sprintf("k-%d", i)), ShouldBeFalse)
			}

			Convey("Nothing is evicted", func() {
				So(d.Size(), ShouldEqual, int64(n))
				So(d.SeenAndRecord(ctx, "k-0"), ShouldBeTrue)
			})
		})

		Convey("When keys are unusual", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(-1))
			long := strings.Repeat("a", 10_000)

			So(d.SeenAndRecord(ctx, ""), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, ""), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, long), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, long), ShouldBeTrue)
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given a deduper shared by many goroutines", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2000))
		const goroutines = 10
		const perGoroutine = 100

		var wg sync.WaitGroup
		var mu sync.Mutex
		fresh := 0
		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perGoroutine; j++ {
					// Every goroutine races on the same keys.
					if !d.SeenAndRecord(ctx, fmt.Sprintf("k-%d", j)) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Each key is reported unseen exactly once", func() {
			So(fresh, ShouldEqual, perGoroutine)
			So(d.Size(), ShouldEqual, int64(perGoroutine))
		})
	})
}

func TestKey(t *testing.T) {
	Convey("Given tracking events", t, func() {
		at := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

		Convey("Carrier IDs are scoped by shipment", func() {
			e := model.Event{ID: "evt-9", Stage: "In Transit", Timestamp: at}
			So(dedupe.Key("SHP-1", e), ShouldEqual, "SHP-1/evt-9")
			So(dedupe.Key("SHP-2", e), ShouldNotEqual, dedupe.Key("SHP-1", e))
		})

		Convey("Events without IDs are fingerprinted", func() {
			a := model.Event{Stage: "Customs Hold", Timestamp: at}
			b := model.Event{Stage: "  customs   HOLD ", Timestamp: at.In(time.FixedZone("CET", 3600)), Description: "other text"}
			c := model.Event{Stage: "Customs Hold", Timestamp: at.Add(time.Minute)}

			So(dedupe.Key("SHP-1", a), ShouldStartWith, "SHP-1/#")
			So(dedupe.Key("SHP-1", a), ShouldEqual, dedupe.Key("SHP-1", b))
			So(dedupe.Key("SHP-1", a), ShouldNotEqual, dedupe.Key("SHP-1", c))
			So(dedupe.Key("SHP-1", a), ShouldNotEqual, dedupe.Key("SHP-2", a))
		})
	})
}
