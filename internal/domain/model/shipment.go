// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownMode is returned by ParseMode for values outside Air, Sea and Road.
var ErrUnknownMode = errors.New("unknown transport mode")

// Mode is the transport mode of a shipment.
type Mode string

const (
	ModeAir  Mode = "Air"
	ModeSea  Mode = "Sea"
	ModeRoad Mode = "Road"
)

// ParseMode resolves a case-insensitive mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "air":
		return ModeAir, nil
	case "sea", "ocean":
		return ModeSea, nil
	case "road", "truck", "ground":
		return ModeRoad, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// ShipmentRecord is the static plan of a shipment. The engine never mutates it.
type ShipmentRecord struct {
	ShipmentID       string    `json:"shipment_id"`
	OrderDate        time.Time `json:"order_date"`
	ExpectedDelivery time.Time `json:"expected_delivery"`
	Mode             Mode      `json:"mode"`
	CurrentStatus    string    `json:"current_status"`
	OriginCity       string    `json:"origin_city"`
	OriginCountry    string    `json:"origin_country,omitempty"`
	DestCity         string    `json:"dest_city"`
	DestCountry      string    `json:"dest_country,omitempty"`
	ServiceLevel     string    `json:"service_level"`
	Carrier          string    `json:"carrier"`
	Owner            string    `json:"owner"`
}

// International reports whether both countries are known and differ.
func (s *ShipmentRecord) International() bool {
	o := strings.ToLower(strings.TrimSpace(s.OriginCountry))
	d := strings.ToLower(strings.TrimSpace(s.DestCountry))
	return o != "" && d != "" && o != d
}

// Express reports whether the service level is an expedited one.
func (s *ShipmentRecord) Express() bool {
	lvl := strings.ToLower(s.ServiceLevel)
	for _, k := range []string{"express", "priority", "next day", "overnight"} {
		if strings.Contains(lvl, k) {
			return true
		}
	}
	return false
}

// Event is a single tracking scan. Events arrive unordered and may repeat a stage.
type Event struct {
	ID          string    `json:"event_id,omitempty"`
	ShipmentID  string    `json:"shipment_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Stage       string    `json:"stage"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
}
