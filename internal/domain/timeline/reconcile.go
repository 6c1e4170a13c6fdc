package timeline

import (
	"sort"
	"strings"
	"time"

	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/internal/domain/stage"
)

// Nominal re-anchoring durations in hours.
const (
	afterCustomsArrivalHours = 1.0
	refundDelay              = time.Hour
)

var (
	clearanceHours = map[model.Mode]float64{model.ModeAir: 24, model.ModeSea: 48, model.ModeRoad: 24}
	regionalHours  = map[model.Mode]float64{model.ModeAir: 6, model.ModeSea: 12, model.ModeRoad: 8}
)

// RefundStepName is the terminal step appended to canceled shipments.
const RefundStepName = "Refund customer"

// Context carries the per-shipment facts the reconciler needs.
type Context struct {
	Mode      model.Mode
	OrderDate time.Time
	Now       time.Time
}

// group collects the events sharing one normalized stage name.
type group struct {
	name   string
	latest model.Event
}

// foldState is threaded through the forward pass over the steps.
type foldState struct {
	lastActual    time.Time
	hasActual     bool
	lastExpected  time.Time
	lastCompleted int
}

// Reconcile merges the template with the observed events. The result keeps
// template order, actual timestamps never decrease and never precede the order date.
func Reconcile(tpl Template, events []model.Event, c Context) []model.ReconciledStep {
	steps := make([]model.ReconciledStep, len(tpl.Steps))
	for i, s := range tpl.Steps {
		steps[i] = model.ReconciledStep{
			Name:              s.Name,
			Order:             s.Order,
			ExpectedTimestamp: s.ExpectedTimestamp,
			Source:            model.SourceExpected,
		}
	}

	groups := groupEvents(events)
	if len(groups) == 0 {
		for i, s := range tpl.Steps {
			if s.SynthesizedAt != nil {
				at := *s.SynthesizedAt
				steps[i].ActualTimestamp = &at
				steps[i].Source = model.SourceSynthesized
			}
		}
		return steps
	}

	assigned := assign(tpl.Names(), groups)
	lastConfirmed := -1
	for i := range assigned {
		if assigned[i] >= 0 {
			lastConfirmed = i
		}
	}
	if lastConfirmed < 0 && !c.OrderDate.After(c.Now) && len(steps) > 0 {
		lastConfirmed = 0
	}

	st := foldState{lastCompleted: -1}
	for i := range steps {
		st = foldStep(st, i, tpl, steps, assigned, groups, lastConfirmed, c)
	}
	inferBackward(steps, c.OrderDate)
	return steps
}

// foldStep reconciles step i and returns the updated state.
func foldStep(st foldState, i int, tpl Template, steps []model.ReconciledStep, assigned []int, groups []group, lastConfirmed int, c Context) foldState {
	rs := &steps[i]

	switch {
	case assigned[i] >= 0:
		ev := groups[assigned[i]].latest
		at := ev.Timestamp
		if at.Before(c.OrderDate) {
			at = c.OrderDate
		}
		if st.hasActual && !at.After(st.lastActual) {
			at = st.lastActual.Add(minGap)
		}
		rs.ActualTimestamp = &at
		rs.Location = ev.Location
		rs.Description = ev.Description
		rs.Source = model.SourceObserved
		st.lastActual, st.hasActual, st.lastCompleted = at, true, i

	case i == 0 && !c.OrderDate.After(c.Now):
		at := c.OrderDate
		rs.ActualTimestamp = &at
		rs.Source = model.SourceInferred
		st.lastActual, st.hasActual, st.lastCompleted = at, true, i

	case i > lastConfirmed && st.lastCompleted >= 0:
		anchor := st.lastExpected
		if i-1 == st.lastCompleted {
			anchor = st.lastActual
		}
		prev := tpl.Steps[i-1]
		candidate := anchor.Add(hoursDuration(nominalHours(tpl.Steps[i], prev, c.Mode)))
		if rs.ExpectedTimestamp.Before(candidate) {
			rs.ExpectedTimestamp = candidate
		}
	}

	if rs.ExpectedTimestamp.Before(st.lastExpected) {
		rs.ExpectedTimestamp = st.lastExpected
	}
	st.lastExpected = rs.ExpectedTimestamp
	return st
}

// inferBackward fills unconfirmed steps that precede a confirmed one. Each gap
// between confirmed steps is filled from its upper end and abandoned at the
// first step that cannot keep the minimum spacing.
func inferBackward(steps []model.ReconciledStep, orderDate time.Time) {
	last := -1
	for i := range steps {
		if steps[i].Done() {
			last = i
		}
	}

	for i := last - 1; i >= 0; {
		if steps[i].Done() {
			i--
			continue
		}
		next := *steps[i+1].ActualTimestamp
		floor := orderDate
		prev := previousActual(steps, i)
		if prev != nil {
			if f := prev.Add(minGap); f.After(floor) {
				floor = f
			}
		}
		at := next.Add(-minGap)
		if at.Before(floor) {
			i = skipToConfirmed(steps, i)
			continue
		}
		steps[i].ActualTimestamp = &at
		steps[i].Source = model.SourceInferred
		i--
	}
}

func previousActual(steps []model.ReconciledStep, i int) *time.Time {
	for j := i - 1; j >= 0; j-- {
		if steps[j].Done() {
			return steps[j].ActualTimestamp
		}
	}
	return nil
}

func skipToConfirmed(steps []model.ReconciledStep, i int) int {
	for j := i - 1; j >= 0; j-- {
		if steps[j].Done() {
			return j
		}
	}
	return -1
}

// groupEvents buckets events by normalized stage. Groups keep the order of
// their first appearance in time and remember their latest event.
func groupEvents(events []model.Event) []group {
	sorted := make([]model.Event, 0, len(events))
	for _, e := range events {
		if e.Timestamp.IsZero() || stage.Normalize(e.Stage) == "" {
			continue
		}
		sorted = append(sorted, e)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	idx := make(map[string]int)
	var out []group
	for _, e := range sorted {
		key := stage.Normalize(e.Stage)
		if k, ok := idx[key]; ok {
			out[k].latest = e
			continue
		}
		idx[key] = len(out)
		out = append(out, group{name: key, latest: e})
	}
	return out
}

// assign maps each step to at most one group and each group to at most one
// step. Stronger confidences are assigned first; within a pass, steps are
// visited in template order. Refund, cancellation and loss events complete no
// step.
func assign(names []string, groups []group) []int {
	assigned := make([]int, len(names))
	for i := range assigned {
		assigned[i] = -1
	}
	claimed := make([]bool, len(groups))
	for g := range groups {
		claimed[g] = stage.Classify(groups[g].name).Terminal()
	}

	for _, level := range []stage.Confidence{stage.ExactMatch, stage.SubstringMatch, stage.KeywordMatch, stage.KindMatch} {
		for i, name := range names {
			if assigned[i] >= 0 {
				continue
			}
			for g := range groups {
				if claimed[g] || stage.Match(name, groups[g].name) < level {
					continue
				}
				assigned[i] = g
				claimed[g] = true
				break
			}
		}
	}
	return assigned
}

// nominalHours is the realistic duration of cur once the previous step is done.
func nominalHours(cur, prev model.ExpectedStep, mode model.Mode) float64 {
	switch {
	case isClearance(cur.Name):
		return modeHours(clearanceHours, mode)
	case stage.Classify(prev.Name) == stage.CustomsArrival && !isClearance(prev.Name):
		return afterCustomsArrivalHours
	case stage.Classify(cur.Name) == stage.RegionalFacility:
		return modeHours(regionalHours, mode)
	}
	return cur.ExpectedDurationHours
}

func isClearance(name string) bool {
	return stage.Classify(name) == stage.CustomsCleared || strings.Contains(stage.Normalize(name), "clearance")
}

func modeHours(table map[model.Mode]float64, mode model.Mode) float64 {
	if h, ok := table[mode]; ok {
		return h
	}
	return table[model.ModeRoad]
}

func hoursDuration(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// AppendRefund adds the terminal refund step at or after at, and at least one
// hour after the latest actual timestamp.
func AppendRefund(steps []model.ReconciledStep, at time.Time, reason string) []model.ReconciledStep {
	for i := range steps {
		if steps[i].Done() {
			if earliest := steps[i].ActualTimestamp.Add(refundDelay); at.Before(earliest) {
				at = earliest
			}
		}
	}
	return append(steps, model.ReconciledStep{
		Name:              RefundStepName,
		Order:             len(steps),
		ExpectedTimestamp: at,
		ActualTimestamp:   &at,
		Description:       reason,
		Source:            model.SourceTerminal,
	})
}
