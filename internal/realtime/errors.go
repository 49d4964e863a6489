package realtime

import "errors"

var (
	ErrDisconnected = errors.New("realtime: disconnected")
	ErrNotConnected = errors.New("realtime: no active transport")
	ErrMissingURL   = errors.New("realtime: missing web socket url")
	ErrNoRoute      = errors.New("realtime: no route for publish")
)
