package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/shipwatch/internal/domain/model"
)

const maxBodyBytes = 1 << 20

// shipmentRequest mirrors the OpenAPI schema for POST /shipments.
type shipmentRequest struct {
	ShipmentID       string    `json:"shipment_id" validate:"required,max=128"`
	OrderDate        time.Time `json:"order_date" validate:"required"`
	ExpectedDelivery time.Time `json:"expected_delivery" validate:"required"`
	Mode             string    `json:"mode" validate:"required,transport_mode"`
	CurrentStatus    string    `json:"current_status" validate:"max=256"`
	OriginCity       string    `json:"origin_city" validate:"max=128"`
	OriginCountry    string    `json:"origin_country" validate:"max=64"`
	DestCity         string    `json:"dest_city" validate:"max=128"`
	DestCountry      string    `json:"dest_country" validate:"max=64"`
	ServiceLevel     string    `json:"service_level" validate:"max=64"`
	Carrier          string    `json:"carrier" validate:"max=128"`
	Owner            string    `json:"owner" validate:"max=128"`
}

func (s shipmentRequest) record() model.ShipmentRecord {
	return model.ShipmentRecord{
		ShipmentID:       s.ShipmentID,
		OrderDate:        s.OrderDate,
		ExpectedDelivery: s.ExpectedDelivery,
		Mode:             model.Mode(s.Mode),
		CurrentStatus:    s.CurrentStatus,
		OriginCity:       s.OriginCity,
		OriginCountry:    s.OriginCountry,
		DestCity:         s.DestCity,
		DestCountry:      s.DestCountry,
		ServiceLevel:     s.ServiceLevel,
		Carrier:          s.Carrier,
		Owner:            s.Owner,
	}
}

// eventsRequest mirrors the OpenAPI schema for POST /shipments/{id}/events.
type eventsRequest struct {
	Events []eventRequest `json:"events" validate:"required,min=1,max=1000,dive"`
}

type eventRequest struct {
	EventID     string    `json:"event_id" validate:"max=128"`
	Timestamp   time.Time `json:"timestamp" validate:"required"`
	Stage       string    `json:"stage" validate:"required,max=256"`
	Description string    `json:"description" validate:"max=1024"`
	Location    string    `json:"location" validate:"max=256"`
}

type ingestResponse struct {
	Status     string `json:"status"`
	Accepted   int    `json:"accepted"`
	Duplicates int    `json:"duplicates"`
}

type ackResponse struct {
	Status     string `json:"status"`
	ShipmentID string `json:"shipment_id"`
}

// ShipmentsHandler handles shipment plans, their events and their alert.
type ShipmentsHandler struct {
	deps ShipmentDependencies
}

// NewShipmentsHandler creates a new shipments handler.
func NewShipmentsHandler(deps ShipmentDependencies) *ShipmentsHandler {
	return &ShipmentsHandler{deps: deps}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return validateRequest(v)
}

// HandleUpsert handles POST /shipments.
func (h *ShipmentsHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	var req shipmentRequest
	if err := decode(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := h.deps.UpsertShipment(r.Context(), req.record()); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", ShipmentID: req.ShipmentID})
}

// HandleIngestEvents handles POST /shipments/{id}/events. Replayed events are
// acknowledged and counted as duplicates.
func (h *ShipmentsHandler) HandleIngestEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req eventsRequest
	if err := decode(w, r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	events := make([]model.Event, len(req.Events))
	for i, e := range req.Events {
		events[i] = model.Event{
			ID:          e.EventID,
			ShipmentID:  id,
			Timestamp:   e.Timestamp,
			Stage:       e.Stage,
			Description: e.Description,
			Location:    e.Location,
		}
	}
	n, err := h.deps.IngestEvents(r.Context(), id, events)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ingestResponse{Status: "accepted", Accepted: n, Duplicates: len(events) - n})
}

// HandleGetAlert handles GET /shipments/{id}/alert.
func (h *ShipmentsHandler) HandleGetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Alert(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
