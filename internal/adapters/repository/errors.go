package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidLimit    = errors.New("invalid limit")
	ErrInvalidShipment = errors.New("invalid shipment")
	ErrUnknownDriver   = errors.New("unknown database driver")
)
