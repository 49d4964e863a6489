package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeInbound parses one inbound frame. Frames wrapped as {"data": <frame>} by
// socket layers are unwrapped once.
func DecodeInbound(raw []byte) (InboundFrame, error) {
	if len(raw) > MaxFrameBytes {
		return InboundFrame{}, ErrFrameTooLarge
	}
	var outer struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &outer); err != nil {
		return InboundFrame{}, fmt.Errorf("protocol: decode frame: %w", err)
	}
	if len(outer.Data) == 0 || string(outer.Data) == "null" {
		return InboundFrame{}, ErrMissingData
	}

	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return InboundFrame{}, fmt.Errorf("protocol: decode frame: %w", err)
	}
	if strings.TrimSpace(frame.Data.EventType) != "" {
		return frame, nil
	}

	var nested InboundFrame
	if err := json.Unmarshal(outer.Data, &nested); err == nil && strings.TrimSpace(nested.Data.EventType) != "" {
		return nested, nil
	}
	return InboundFrame{}, ErrMissingEventType
}

// PayloadString returns the payload as a string; JSON strings are unquoted.
func (d EventData) PayloadString() string {
	if len(d.Payload) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(d.Payload, &s); err == nil {
		return s
	}
	return string(d.Payload)
}
