// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/okian/shipwatch/internal/adapters/repository"
	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/internal/domain/types"
	"github.com/okian/shipwatch/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	ShipmentDependencies
	AlertDependencies
	RiskBoardDependencies
}

// ShipmentDependencies covers the write side and per-shipment reads.
type ShipmentDependencies interface {
	UpsertShipment(ctx context.Context, s model.ShipmentRecord) error
	IngestEvents(ctx context.Context, shipmentID string, events []model.Event) (int, error)
	Alert(ctx context.Context, shipmentID string) (model.Alert, error)
}

// AlertDependencies covers alert listing and acknowledgement.
type AlertDependencies interface {
	ListAlerts(ctx context.Context, f repository.AlertFilter) ([]model.Alert, error)
	Acknowledge(ctx context.Context, shipmentID string) (model.Alert, error)
}

// RiskBoardDependencies exposes the risk ranking.
type RiskBoardDependencies interface {
	TopRisk(ctx context.Context, n int) ([]types.RiskEntry, error)
	RiskRank(ctx context.Context, shipmentID string) (types.RiskEntry, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	shipmentsHandler *ShipmentsHandler
	alertsHandler    *AlertsHandler
	riskBoardHandler *RiskBoardHandler
}

// NewServer creates a new API server with all handlers. maxLimit caps the
// limit parameter of list endpoints.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		shipmentsHandler: NewShipmentsHandler(deps),
		alertsHandler:    NewAlertsHandler(deps, maxLimit),
		riskBoardHandler: NewRiskBoardHandler(deps, maxLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /shipments", MetricsMiddleware(s.shipmentsHandler.HandleUpsert, "shipments"))
	mux.HandleFunc("POST /shipments/{id}/events", MetricsMiddleware(s.shipmentsHandler.HandleIngestEvents, "shipment_events"))
	mux.HandleFunc("GET /shipments/{id}/alert", MetricsMiddleware(s.shipmentsHandler.HandleGetAlert, "shipment_alert"))

	mux.HandleFunc("GET /alerts", MetricsMiddleware(s.alertsHandler.HandleList, "alerts"))
	mux.HandleFunc("POST /alerts/{id}/ack", MetricsMiddleware(s.alertsHandler.HandleAcknowledge, "alert_ack"))

	mux.HandleFunc("GET /riskboard", MetricsMiddleware(s.riskBoardHandler.HandleTop, "riskboard"))
	mux.HandleFunc("GET /riskboard/{id}", MetricsMiddleware(s.riskBoardHandler.HandleRank, "riskboard_rank"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure classifies err and writes the matching error response.
// Internal errors are logged and answered without detail.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Get().Named("http").Error(r.Context(), "request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err))
		writeError(w, status, code, nil)
		return
	}
	writeError(w, status, code, err)
}

// parseLimit reads the optional limit query parameter. Zero means "use the
// default"; values above max are rejected.
func parseLimit(r *http.Request, maxLimit int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, ErrBadRequest
	}
	if maxLimit > 0 && n > maxLimit {
		return 0, ErrLimitExceeded
	}
	return n, nil
}
