package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	. "github.com/smartystreets/goconvey/convey"

	shipkafka "github.com/okian/shipwatch/internal/adapters/mq/kafka"
	"github.com/okian/shipwatch/internal/adapters/repository"
	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/pkg/logger"
)

// sliceReader hands out msgs and cancels the run once they are exhausted.
type sliceReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
	cancel    context.CancelFunc
}

func (r *sliceReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *sliceReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *sliceReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type flakyIngester struct {
	mu       sync.Mutex
	failures map[string]int // remaining transient failures per shipment
	calls    map[string]int
	got      map[string][]model.Event
}

func (f *flakyIngester) IngestEvents(_ context.Context, id string, events []model.Event) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if id == "unknown" {
		return 0, fmt.Errorf("ingest: %w", repository.ErrNotFound)
	}
	if f.failures[id] > 0 {
		f.failures[id]--
		return 0, errors.New("database is locked")
	}
	f.got[id] = append(f.got[id], events...)
	return len(events), nil
}

func batch(offset int64, id string, n int) kafka.Message {
	b := shipkafka.EventBatch{ShipmentID: id}
	for i := 0; i < n; i++ {
		b.Events = append(b.Events, model.Event{Stage: "In Transit", Timestamp: time.Date(2025, 3, 1, i, 0, 0, 0, time.UTC)})
	}
	raw, _ := json.Marshal(b)
	return kafka.Message{Offset: offset, Value: raw}
}

func TestConsumer(t *testing.T) {
	Convey("Given a consumer over a scripted reader", t, func() {
		So(logger.Init(logger.WithWriter(io.Discard)), ShouldBeNil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		keyed := batch(5, "", 1)
		keyed.Key = []byte("SHP-KEY")

		r := &sliceReader{cancel: cancel, msgs: []kafka.Message{
			batch(1, "SHP-1", 2),
			{Offset: 2, Value: []byte("{not json")},
			batch(3, "SHP-FLAKY", 1),
			batch(4, "unknown", 1),
			keyed,
			batch(6, "SHP-DOWN", 1),
		}}
		ing := &flakyIngester{
			failures: map[string]int{"SHP-FLAKY": 2, "SHP-DOWN": 100},
			calls:    map[string]int{},
			got:      map[string][]model.Event{},
		}
		c := shipkafka.NewConsumer(r, ing, shipkafka.WithRetries(3, time.Millisecond))

		So(c.Run(ctx), ShouldBeNil)

		Convey("Then ingested and unprocessable messages are committed", func() {
			So(r.committed, ShouldResemble, []int64{1, 2, 3, 4, 5})
			So(r.closed, ShouldBeTrue)
		})

		Convey("And transient failures are retried", func() {
			So(len(ing.got["SHP-1"]), ShouldEqual, 2)
			So(len(ing.got["SHP-FLAKY"]), ShouldEqual, 1)
			So(ing.calls["SHP-FLAKY"], ShouldEqual, 3)
			So(ing.calls["SHP-DOWN"], ShouldEqual, 4)
		})

		Convey("And permanent failures are not retried", func() {
			So(ing.calls["unknown"], ShouldEqual, 1)
		})

		Convey("And the message key stands in for a missing shipment ID", func() {
			So(len(ing.got["SHP-KEY"]), ShouldEqual, 1)
		})
	})
}

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestProducer(t *testing.T) {
	Convey("Given a producer", t, func() {
		w := &captureWriter{}
		p := shipkafka.NewProducer(w)
		at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		a := model.Alert{
			ShipmentID: "SHP-1",
			RiskScore:  72,
			Severity:   model.SeverityHigh,
			Status:     model.StatusInProgress,
			Steps:      []model.ReconciledStep{{Name: "Order Placed"}},
			ComputedAt: at,
		}

		Convey("When an alert is published", func() {
			So(p.PublishAlert(context.Background(), a), ShouldBeNil)

			Convey("Then it is keyed by shipment without steps", func() {
				So(w.msgs, ShouldHaveLength, 1)
				m := w.msgs[0]
				So(string(m.Key), ShouldEqual, "SHP-1")
				So(m.Time.Equal(at), ShouldBeTrue)

				var got model.Alert
				So(json.Unmarshal(m.Value, &got), ShouldBeNil)
				So(got.RiskScore, ShouldEqual, 72)
				So(got.Steps, ShouldBeEmpty)
				So(string(m.Headers[0].Value), ShouldEqual, "High")
			})

			Convey("And the caller's alert is untouched", func() {
				So(a.Steps, ShouldHaveLength, 1)
			})
		})

		Convey("When the writer fails", func() {
			w.err = errors.New("broker down")
			err := p.PublishAlert(context.Background(), a)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "SHP-1")
		})
	})
}
