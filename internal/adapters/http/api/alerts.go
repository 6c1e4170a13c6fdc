package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/shipwatch/internal/adapters/repository"
	"github.com/okian/shipwatch/internal/domain/model"
)

// alertQuery mirrors the query parameters of GET /alerts.
type alertQuery struct {
	Severity string `json:"severity" validate:"omitempty,oneof=Critical High Medium Low Minimal"`
	Status   string `json:"status" validate:"omitempty,oneof=future in_progress completed canceled"`
	Owner    string `json:"owner" validate:"max=128"`
}

// AlertsHandler handles alert listing and acknowledgement.
type AlertsHandler struct {
	deps     AlertDependencies
	maxLimit int
}

// NewAlertsHandler creates a new alerts handler.
func NewAlertsHandler(deps AlertDependencies, maxLimit int) *AlertsHandler {
	return &AlertsHandler{deps: deps, maxLimit: maxLimit}
}

// HandleList handles GET /alerts?severity=&status=&owner=&acknowledged=&limit=.
func (h *AlertsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := alertQuery{Severity: q.Get("severity"), Status: q.Get("status"), Owner: q.Get("owner")}
	if err := validateRequest(query); err != nil {
		writeFailure(w, r, err)
		return
	}
	limit, err := parseLimit(r, h.maxLimit)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	f := repository.AlertFilter{
		Severity: model.Severity(query.Severity),
		Status:   model.Status(query.Status),
		Owner:    query.Owner,
		Limit:    limit,
	}
	if raw := q.Get("acknowledged"); raw != "" {
		acked, err := strconv.ParseBool(raw)
		if err != nil {
			writeFailure(w, r, fmt.Errorf("%w: acknowledged must be true or false", ErrBadRequest))
			return
		}
		f.Acknowledged = &acked
	}

	alerts, err := h.deps.ListAlerts(r.Context(), f)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// HandleAcknowledge handles POST /alerts/{id}/ack.
func (h *AlertsHandler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Acknowledge(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
