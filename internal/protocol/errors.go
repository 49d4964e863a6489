package protocol

import "errors"

var (
	ErrFrameTooLarge    = errors.New("protocol: frame too large")
	ErrMissingData      = errors.New("protocol: missing data")
	ErrMissingEventType = errors.New("protocol: missing eventType")
	ErrMissingID        = errors.New("protocol: missing id")
	ErrMissingRecipient = errors.New("protocol: missing recipient route")
	ErrMissingKeyURL    = errors.New("protocol: missing envelope encryptionKeyUrl")
	ErrTypeMismatch     = errors.New("protocol: frame type mismatch")
)
