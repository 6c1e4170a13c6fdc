// Package stage normalizes free-text tracking stages and matches them against
// template step names.
package stage

import (
	"strings"
	"unicode"
)

// Kind is the normalized checkpoint a stage name refers to.
type Kind int

const (
	Unknown Kind = iota
	OrderCreated
	AwaitingPickup
	PickedUp
	OriginHub
	OriginPort
	OriginAirport
	Loaded
	Departed
	InTransit
	BorderCrossing
	DestinationHub
	DestinationPort
	DestinationAirport
	CustomsArrival
	CustomsCleared
	RegionalFacility
	OutForDelivery
	DeliveryAttempt
	Delivered
	Refund
	Canceled
	Lost
)

var kindNames = [...]string{
	"unknown", "order_created", "awaiting_pickup", "picked_up", "origin_hub", "origin_port",
	"origin_airport", "loaded", "departed", "in_transit", "border_crossing", "destination_hub",
	"destination_port", "destination_airport", "customs_arrival", "customs_cleared",
	"regional_facility", "out_for_delivery", "delivery_attempt", "delivered", "refund",
	"canceled", "lost",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// AtPort reports whether the kind is a seaport checkpoint.
func (k Kind) AtPort() bool {
	return k == OriginPort || k == DestinationPort || k == Loaded
}

// AtHub reports whether the kind is a sorting hub or facility checkpoint.
func (k Kind) AtHub() bool {
	return k == OriginHub || k == DestinationHub || k == RegionalFacility
}

// AtCustoms reports whether the shipment is held by customs and not yet released.
func (k Kind) AtCustoms() bool { return k == CustomsArrival }

// BeforePickup reports whether the carrier has not collected the goods yet.
func (k Kind) BeforePickup() bool { return k == OrderCreated || k == AwaitingPickup }

// Terminal reports whether the kind ends the journey without delivery.
func (k Kind) Terminal() bool { return k == Refund || k == Canceled || k == Lost }

// Normalize lowercases s, replaces punctuation with spaces and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Classify maps a free-text stage name to a Kind.
func Classify(name string) Kind {
	n := Normalize(name)
	if n == "" {
		return Unknown
	}
	words := strings.Fields(n)
	switch {
	case strings.Contains(n, "refund"):
		return Refund
	case strings.Contains(n, "cancel"):
		return Canceled
	case hasWord(words, "lost"):
		return Lost
	case IsDelivered(n):
		return Delivered
	case strings.Contains(n, "deliver") && (strings.Contains(n, "attempt") || strings.Contains(n, "failed")):
		return DeliveryAttempt
	case strings.Contains(n, "out for delivery"):
		return OutForDelivery
	case strings.Contains(n, "customs"):
		if strings.Contains(n, "cleared") || strings.Contains(n, "released") || strings.Contains(n, "complete") {
			return CustomsCleared
		}
		return CustomsArrival
	case strings.Contains(n, "border"):
		return BorderCrossing
	case strings.Contains(n, "regional"):
		return RegionalFacility
	case strings.Contains(n, "transit"):
		return InTransit
	case strings.Contains(n, "departed") || strings.Contains(n, "departure"):
		return Departed
	case strings.Contains(n, "loaded"):
		return Loaded
	case strings.Contains(n, "awaiting pickup") || strings.Contains(n, "ready for pickup"):
		return AwaitingPickup
	case strings.Contains(n, "picked up") || strings.Contains(n, "pickup"):
		return PickedUp
	case strings.Contains(n, "order") || strings.Contains(n, "label created"):
		return OrderCreated
	}

	dest := strings.Contains(n, "destination") || strings.Contains(n, "arrived at dest")
	switch {
	case hasWord(words, "airport"):
		return pick(dest, DestinationAirport, OriginAirport)
	case hasWord(words, "port") || hasWord(words, "vessel") || hasWord(words, "terminal"):
		return pick(dest, DestinationPort, OriginPort)
	case hasWord(words, "hub") || hasWord(words, "facility") || hasWord(words, "warehouse") || strings.Contains(n, "sort"):
		return pick(dest, DestinationHub, OriginHub)
	}
	return Unknown
}

// IsDelivered reports whether s is a delivery-completion phrase. Attempts and
// failures are not completions.
func IsDelivered(s string) bool {
	n := Normalize(s)
	for _, neg := range []string{"attempt", "failed", "undeliver", "not delivered"} {
		if strings.Contains(n, neg) {
			return false
		}
	}
	return strings.Contains(n, "delivered") ||
		strings.Contains(n, "received by customer") ||
		strings.Contains(n, "package received") ||
		strings.Contains(n, "signed for")
}

// SignalsLoss reports whether s explicitly mentions a refund, a cancellation or a loss.
func SignalsLoss(s string) bool {
	n := Normalize(s)
	if n == "" {
		return false
	}
	return strings.Contains(n, "refund") || strings.Contains(n, "cancel") || hasWord(strings.Fields(n), "lost")
}

// Similar is a bidirectional substring check on normalized names.
func Similar(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

func hasWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}

func pick(dest bool, d, o Kind) Kind {
	if dest {
		return d
	}
	return o
}
