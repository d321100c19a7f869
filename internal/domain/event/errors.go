package event

import "errors"

var (
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrMissingEventType = errors.New("missing webhook event type")
	ErrInvalidEvent     = errors.New("invalid canonical event")
)
