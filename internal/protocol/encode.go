package protocol

import (
	"encoding/json"
	"strings"
)

// Validate checks the structural invariants of an outbound frame.
func (f OutboundFrame) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return ErrMissingID
	}
	if f.Type != FrameTypePublish {
		return ErrTypeMismatch
	}
	if len(f.Recipients) == 0 {
		return ErrMissingRecipient
	}
	for _, r := range f.Recipients {
		if strings.TrimSpace(r.Route) == "" {
			return ErrMissingRecipient
		}
	}
	if strings.TrimSpace(f.Data.EventType) == "" {
		return ErrMissingEventType
	}
	if strings.TrimSpace(f.Data.Envelope.EncryptionKeyURL) == "" {
		return ErrMissingKeyURL
	}
	return nil
}

// NewPublishFrame assembles a publishRequest frame with one recipient per route.
func NewPublishFrame(id string, routes []string, data PublishData) OutboundFrame {
	recipients := make([]Recipient, 0, len(routes))
	for _, route := range routes {
		recipients = append(recipients, Recipient{
			AlertType: AlertTypeNone,
			Route:     route,
			Headers:   map[string]string{},
		})
	}
	return OutboundFrame{
		ID:         id,
		Type:       FrameTypePublish,
		Recipients: recipients,
		Data:       data,
	}
}

// NewAuthorizationFrame builds the bearer authorization frame.
func NewAuthorizationFrame(id, token string) AuthorizationFrame {
	return AuthorizationFrame{
		ID:   id,
		Type: FrameTypeAuthorization,
		Data: map[string]string{"token": "Bearer " + token},
	}
}

// EncodeOutbound validates and marshals an outbound frame.
func EncodeOutbound(f OutboundFrame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(f)
}
