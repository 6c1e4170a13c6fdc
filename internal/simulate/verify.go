package simulate

import (
	"fmt"
	"time"
)

const (
	minRiskScore = 0
	maxRiskScore = 100
)

// VerifyAlert checks one alert against the scenario that produced it.
func VerifyAlert(sc Scenario, a Alert) []string {
	var out []string
	id := sc.Shipment.ShipmentID
	if a.ShipmentID != id {
		out = append(out, fmt.Sprintf("%s: alert is for %q", id, a.ShipmentID))
	}
	if a.RiskScore < minRiskScore || a.RiskScore > maxRiskScore {
		out = append(out, fmt.Sprintf("%s: risk score %d out of range", id, a.RiskScore))
	}
	if a.Severity == "" {
		out = append(out, id+": empty severity")
	}
	if len(a.Steps) == 0 {
		out = append(out, id+": no steps")
	}

	var last time.Time
	for i, st := range a.Steps {
		if i > 0 && st.Order <= a.Steps[i-1].Order {
			out = append(out, fmt.Sprintf("%s: step %q out of order", id, st.Name))
		}
		if st.ActualTimestamp == nil {
			continue
		}
		ts := *st.ActualTimestamp
		if ts.Before(sc.Shipment.OrderDate) {
			out = append(out, fmt.Sprintf("%s: step %q completed before the order date", id, st.Name))
		}
		if ts.Before(last) {
			out = append(out, fmt.Sprintf("%s: step %q completed before its predecessor", id, st.Name))
		}
		last = ts
	}
	return out
}

// VerifyBoard checks the ranking rules of a risk board snapshot. alerts maps
// shipment IDs to the alerts fetched in the same run.
func VerifyBoard(board []Entry, alerts map[string]Alert) []string {
	var out []string
	seen := make(map[string]bool, len(board))
	for i, e := range board {
		if e.Rank != i+1 {
			out = append(out, fmt.Sprintf("board row %d has rank %d", i, e.Rank))
		}
		if i > 0 && e.Score > board[i-1].Score {
			out = append(out, fmt.Sprintf("board rank %d (%d) outranks a lower score", e.Rank, e.Score))
		}
		if seen[e.ShipmentID] {
			out = append(out, e.ShipmentID+": listed twice on the board")
		}
		seen[e.ShipmentID] = true
		if a, ok := alerts[e.ShipmentID]; ok && (a.Status == "completed" || a.Status == "canceled") {
			out = append(out, fmt.Sprintf("%s: %s shipment on the board", e.ShipmentID, a.Status))
		}
	}
	return out
}
