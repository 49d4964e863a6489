package protocol

import "encoding/json"

const (
	// FrameTypePublish is the outbound frame type for board publishes.
	FrameTypePublish = "publishRequest"
	// FrameTypeAuthorization is the first frame sent on a newly dialed transport.
	FrameTypeAuthorization = "authorization"

	AlertTypeNone = "none"

	EventTypeBufferState   = "mercury.buffer_state"
	EventTypeRequest       = "request"
	EventTypeBoardActivity = "board.activity"

	// MaxFrameBytes bounds one inbound frame.
	MaxFrameBytes = 1 << 20
)

// Recipient addresses one routing key on the realtime fabric.
type Recipient struct {
	AlertType string            `json:"alertType"`
	Route     string            `json:"route"`
	Headers   map[string]string `json:"headers"`
}

// EnvelopeHeader carries the key reference the payload is encrypted under.
type EnvelopeHeader struct {
	EncryptionKeyURL string `json:"encryptionKeyUrl"`
}

// PublishData is the data section of a publishRequest frame.
type PublishData struct {
	EventType   string         `json:"eventType"`
	ContentType string         `json:"contentType"`
	Envelope    EnvelopeHeader `json:"envelope"`
	Payload     string         `json:"payload"`
	RequestID   string         `json:"requestId,omitempty"`
}

// OutboundFrame is the publishRequest frame written to the transport.
type OutboundFrame struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Recipients []Recipient `json:"recipients"`
	Data       PublishData `json:"data"`
}

// AuthorizationFrame is sent once after dialing, before any other frame.
type AuthorizationFrame struct {
	ID   string            `json:"id"`
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

// Actor identifies who produced an inbound event.
type Actor struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
}

// EventData is the data section of an inbound frame.
type EventData struct {
	EventType      string          `json:"eventType"`
	Actor          *Actor          `json:"actor,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
	RequestID      string          `json:"requestId,omitempty"`
	ContentType    string          `json:"contentType,omitempty"`
	Envelope       *EnvelopeHeader `json:"envelope,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// InboundFrame is one event frame read from the transport.
type InboundFrame struct {
	ID         string    `json:"id,omitempty"`
	Data       EventData `json:"data"`
	Timestamp  int64     `json:"timestamp,omitempty"`
	TrackingID string    `json:"trackingId,omitempty"`
}
