// Package types contains common types used across the application
package types

import "github.com/okian/shipwatch/internal/domain/model"

// RiskEntry represents a risk board row.
type RiskEntry struct {
	Rank       int            `json:"rank"`
	ShipmentID string         `json:"shipment_id"`
	Score      int            `json:"risk_score"`
	Severity   model.Severity `json:"severity"`
}
