package api

import "net/http"

// RiskBoardHandler serves the ranking of open shipments.
type RiskBoardHandler struct {
	deps     RiskBoardDependencies
	maxLimit int
}

// NewRiskBoardHandler creates a new risk board handler.
func NewRiskBoardHandler(deps RiskBoardDependencies, maxLimit int) *RiskBoardHandler {
	return &RiskBoardHandler{deps: deps, maxLimit: maxLimit}
}

// HandleTop handles GET /riskboard?limit=N.
func (h *RiskBoardHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	n, err := parseLimit(r, h.maxLimit)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	entries, err := h.deps.TopRisk(r.Context(), n)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleRank handles GET /riskboard/{id}.
func (h *RiskBoardHandler) HandleRank(w http.ResponseWriter, r *http.Request) {
	entry, err := h.deps.RiskRank(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
