// Package dwell measures how long a shipment has been stuck in its current stage.
package dwell

import (
	"sort"
	"time"

	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/internal/domain/stage"
)

const day = 24 * time.Hour

// Days returns the days elapsed since the shipment entered stageName, provided
// the latest event still matches it. A shipment that moved on has zero dwell.
//
// The entry time is the earliest event of the trailing run of matching events,
// so a stage that was left and re-entered counts from the re-entry.
func Days(events []model.Event, stageName string, now time.Time) float64 {
	sorted := Sorted(events)
	if len(sorted) == 0 || !stage.Similar(sorted[len(sorted)-1].Stage, stageName) {
		return 0
	}

	entered := sorted[len(sorted)-1].Timestamp
	for i := len(sorted) - 2; i >= 0; i-- {
		if !stage.Similar(sorted[i].Stage, stageName) {
			break
		}
		entered = sorted[i].Timestamp
	}

	d := now.Sub(entered)
	if d < 0 {
		return 0
	}
	return float64(d) / float64(day)
}

// Sorted returns a chronologically ordered copy of events without entries
// lacking a timestamp or a stage.
func Sorted(events []model.Event) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if e.Timestamp.IsZero() || stage.Normalize(e.Stage) == "" {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
