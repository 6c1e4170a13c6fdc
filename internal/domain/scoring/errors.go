package scoring

import "errors"

var (
	// ErrInvalidPolicy is returned when a policy fails validation.
	ErrInvalidPolicy = errors.New("invalid risk policy")
	// ErrUnknownScheme is returned for an unrecognised severity scheme name.
	ErrUnknownScheme = errors.New("unknown severity scheme")
)
