package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/boardsync/internal/board"
	"github.com/danmuck/boardsync/internal/codec"
	"github.com/danmuck/boardsync/internal/protocol"
	"github.com/danmuck/boardsync/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EncryptedMessage is a payload the caller has already encrypted.
type EncryptedMessage struct {
	Payload          string
	EncryptionKeyURL string
}

// Publisher sends board activity on the manager's active transport.
type Publisher struct {
	m     *Manager
	codec *codec.Codec
	newID func() string
}

func NewPublisher(m *Manager, cd *codec.Codec) *Publisher {
	return &Publisher{m: m, codec: cd, newID: uuid.NewString}
}

// Publish encrypts message under the channel's default key and sends it to the channel's
// binding. A board.FileRef is sent as FILE; strings are sent as-is and anything else is
// JSON-encoded, both as STRING. It returns once the frame is written.
func (p *Publisher) Publish(ctx context.Context, channel board.Channel, message any) (protocol.OutboundFrame, error) {
	frame, err := p.build(ctx, channel, message, "")
	if err != nil {
		return protocol.OutboundFrame{}, err
	}
	return frame, p.send(ctx, frame)
}

// PublishEncrypted sends a pre-encrypted payload to the session binding without
// touching the codec.
func (p *Publisher) PublishEncrypted(ctx context.Context, msg EncryptedMessage, contentType board.ContentType) (protocol.OutboundFrame, error) {
	route, err := p.route(board.Channel{})
	if err != nil {
		return protocol.OutboundFrame{}, err
	}
	frame := protocol.NewPublishFrame(p.newID(), []string{route}, protocol.PublishData{
		EventType:   protocol.EventTypeBoardActivity,
		ContentType: string(contentType),
		Envelope:    protocol.EnvelopeHeader{EncryptionKeyURL: msg.EncryptionKeyURL},
		Payload:     msg.Payload,
	})
	return frame, p.send(ctx, frame)
}

// Request publishes message with a fresh request id and waits for the correlated
// request event, the context, or the configured request timeout.
func (p *Publisher) Request(ctx context.Context, channel board.Channel, message any) (protocol.InboundFrame, error) {
	requestID := p.newID()
	frame, err := p.build(ctx, channel, message, requestID)
	if err != nil {
		return protocol.InboundFrame{}, err
	}
	timeout := p.m.cfg.RequestTimeout
	now := time.Now()
	done, err := p.m.pending.Add(session.PendingRequest{
		RequestID:  requestID,
		Binding:    frame.Recipients[0].Route,
		QueuedAt:   now,
		DeadlineAt: now.Add(timeout),
	})
	if err != nil {
		return protocol.InboundFrame{}, err
	}
	if err := p.send(ctx, frame); err != nil {
		p.m.pending.Remove(requestID)
		return protocol.InboundFrame{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res.Frame, res.Err
	case <-timer.C:
		p.m.pending.Remove(requestID)
		return protocol.InboundFrame{}, fmt.Errorf("realtime: request %s timed out after %s", requestID, timeout)
	case <-ctx.Done():
		p.m.pending.Remove(requestID)
		return protocol.InboundFrame{}, ctx.Err()
	}
}

func (p *Publisher) build(ctx context.Context, channel board.Channel, message any, requestID string) (protocol.OutboundFrame, error) {
	route, err := p.route(channel)
	if err != nil {
		return protocol.OutboundFrame{}, err
	}
	keyURL := strings.TrimSpace(channel.DefaultEncryptionKeyURL)
	if keyURL == "" {
		return protocol.OutboundFrame{}, board.ErrMissingEncryptionKey
	}

	var (
		payload     string
		contentType board.ContentType
	)
	switch msg := message.(type) {
	case board.FileRef:
		contentType = board.ContentTypeFile
		payload, err = p.codec.EncryptFile(ctx, keyURL, msg)
	case *board.FileRef:
		contentType = board.ContentTypeFile
		payload, err = p.codec.EncryptFile(ctx, keyURL, *msg)
	default:
		contentType = board.ContentTypeString
		var plaintext string
		plaintext, err = plainText(message)
		if err == nil {
			payload, err = p.codec.EncryptText(ctx, keyURL, plaintext)
		}
	}
	if err != nil {
		return protocol.OutboundFrame{}, &board.EncryptionError{Op: "encrypt", Err: err}
	}

	return protocol.NewPublishFrame(p.newID(), []string{route}, protocol.PublishData{
		EventType:   protocol.EventTypeBoardActivity,
		ContentType: string(contentType),
		Envelope:    protocol.EnvelopeHeader{EncryptionKeyURL: keyURL},
		Payload:     payload,
		RequestID:   requestID,
	}), nil
}

func plainText(message any) (string, error) {
	switch msg := message.(type) {
	case string:
		return msg, nil
	case []byte:
		return string(msg), nil
	case json.RawMessage:
		return string(msg), nil
	}
	raw, err := json.Marshal(message)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// route prefers the channel's own binding and falls back to the first session binding.
func (p *Publisher) route(channel board.Channel) (string, error) {
	if strings.TrimSpace(channel.ChannelID) != "" {
		return channel.Binding(), nil
	}
	if bindings := p.m.Bindings(); len(bindings) > 0 && bindings[0] != "" {
		return bindings[0], nil
	}
	return "", ErrNoRoute
}

func (p *Publisher) send(ctx context.Context, frame protocol.OutboundFrame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	if err := p.m.Send(ctx, frame); err != nil {
		return err
	}
	p.m.metrics.Publish(frame.Data.ContentType)
	log.Debug().
		Str("id", frame.ID).
		Str("binding", frame.Recipients[0].Route).
		Str("content_type", frame.Data.ContentType).
		Msg("realtime publish sent")
	return nil
}
