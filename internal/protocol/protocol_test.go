package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/boardsync/internal/testutil/testlog"
)

func TestEncodeOutboundShape(t *testing.T) {
	testlog.Start(t)
	frame := NewPublishFrame("stubbedUUIDv4", []string{"binding"}, PublishData{
		EventType:   EventTypeBoardActivity,
		ContentType: "STRING",
		Envelope:    EnvelopeHeader{EncryptionKeyURL: "fakeURL"},
		Payload:     "encryptedData",
	})
	raw, err := EncodeOutbound(frame)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{
		"id":   "stubbedUUIDv4",
		"type": "publishRequest",
		"recipients": []any{
			map[string]any{"alertType": "none", "route": "binding", "headers": map[string]any{}},
		},
		"data": map[string]any{
			"eventType":   "board.activity",
			"contentType": "STRING",
			"envelope":    map[string]any{"encryptionKeyUrl": "fakeURL"},
			"payload":     "encryptedData",
		},
	}
	gotJSON, _ := json.Marshal(got)
	wantJSON, _ := json.Marshal(want)
	if string(gotJSON) != string(wantJSON) {
		t.Fatalf("unexpected frame\n got=%s\nwant=%s", gotJSON, wantJSON)
	}
}

func TestEncodeOutboundValidation(t *testing.T) {
	testlog.Start(t)
	base := NewPublishFrame("id", []string{"route"}, PublishData{
		EventType: EventTypeBoardActivity,
		Envelope:  EnvelopeHeader{EncryptionKeyURL: "k"},
	})
	cases := []struct {
		name   string
		mutate func(*OutboundFrame)
		want   error
	}{
		{name: "missing id", mutate: func(f *OutboundFrame) { f.ID = " " }, want: ErrMissingID},
		{name: "wrong type", mutate: func(f *OutboundFrame) { f.Type = "other" }, want: ErrTypeMismatch},
		{name: "no recipients", mutate: func(f *OutboundFrame) { f.Recipients = nil }, want: ErrMissingRecipient},
		{name: "empty route", mutate: func(f *OutboundFrame) { f.Recipients[0].Route = "" }, want: ErrMissingRecipient},
		{name: "no event type", mutate: func(f *OutboundFrame) { f.Data.EventType = "" }, want: ErrMissingEventType},
		{name: "no key", mutate: func(f *OutboundFrame) { f.Data.Envelope.EncryptionKeyURL = "" }, want: ErrMissingKeyURL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := base
			f.Recipients = append([]Recipient(nil), base.Recipients...)
			tc.mutate(&f)
			if _, err := EncodeOutbound(f); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDecodeInbound(t *testing.T) {
	testlog.Start(t)
	raw := []byte(`{"id":"e1","data":{"eventType":"board.activity","actor":{"id":"actorId"},"conversationId":"c1","envelope":{"encryptionKeyUrl":"k"},"payload":"cipher"},"timestamp":1700000000000,"trackingId":"suffix_1"}`)
	frame, err := DecodeInbound(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Data.EventType != EventTypeBoardActivity || frame.Data.Actor == nil || frame.Data.Actor.ID != "actorId" {
		t.Fatalf("unexpected frame: %+v", frame)
	}
	if frame.Data.PayloadString() != "cipher" {
		t.Fatalf("unexpected payload: %q", frame.Data.PayloadString())
	}
	if frame.TrackingID != "suffix_1" || frame.Timestamp != 1700000000000 {
		t.Fatalf("unexpected metadata: %+v", frame)
	}
}

func TestDecodeInboundUnwrapsSocketEnvelope(t *testing.T) {
	testlog.Start(t)
	raw := []byte(`{"data":{"data":{"eventType":"mercury.buffer_state"}}}`)
	frame, err := DecodeInbound(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Data.EventType != EventTypeBufferState {
		t.Fatalf("unexpected event type %q", frame.Data.EventType)
	}
}

func TestDecodeInboundRejectsMalformed(t *testing.T) {
	testlog.Start(t)
	cases := map[string]error{
		`{}`:                    ErrMissingData,
		`{"data":null}`:         ErrMissingData,
		`{"data":{"actor":{}}}`: ErrMissingEventType,
		`{"data":{"data":{}}}`:  ErrMissingEventType,
	}
	for raw, want := range cases {
		if _, err := DecodeInbound([]byte(raw)); !errors.Is(err, want) {
			t.Fatalf("DecodeInbound(%s) expected %v, got %v", raw, want, err)
		}
	}
	if _, err := DecodeInbound([]byte(`not json`)); err == nil {
		t.Fatalf("expected json error")
	}
	big := []byte(`{"data":{"eventType":"x","payload":"` + strings.Repeat("a", MaxFrameBytes) + `"}}`)
	if _, err := DecodeInbound(big); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected frame too large, got %v", err)
	}
}

func TestAuthorizationFrame(t *testing.T) {
	testlog.Start(t)
	f := NewAuthorizationFrame("a1", "tok")
	if f.Type != FrameTypeAuthorization || f.Data["token"] != "Bearer tok" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}
