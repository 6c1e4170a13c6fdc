// Package dedupe remembers ingested tracking events so replays are dropped.
package dedupe

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/internal/domain/stage"
)

const defaultMaxSize = 50_000

// Deduper records seen event keys to ensure at-most-once ingestion.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so a failed ingestion can be retried.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// Key identifies an event of a shipment. Carrier-assigned IDs are used as is;
// events without one are fingerprinted from stage and timestamp so a replayed
// scan maps to the same key.
func Key(shipmentID string, e model.Event) string {
	if e.ID != "" {
		return shipmentID + "/" + e.ID
	}
	h := xxhash.New()
	_, _ = h.WriteString(shipmentID)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(stage.Normalize(e.Stage))
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(e.Timestamp.UTC().Format("2006-01-02T15:04:05.999999999Z"))
	return shipmentID + "/#" + strconv.FormatUint(h.Sum64(), 16)
}

// inMemoryDeduper keeps keys in insertion order and evicts the oldest once
// maxSize is reached. maxSize <= 0 means unbounded.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
		seen:    make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}
	d.seen[key] = d.order.PushBack(key)
	d.size.Store(int64(len(d.seen)))
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[key]; ok {
		d.order.Remove(el)
		delete(d.seen, key)
		d.size.Store(int64(len(d.seen)))
	}
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	if front := d.order.Front(); front != nil {
		d.order.Remove(front)
		delete(d.seen, front.Value.(string))
	}
}

// Size returns the current number of remembered keys.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
