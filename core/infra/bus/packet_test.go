package bus

import (
	"testing"
)

type invalidatePayload struct {
	Key    string `json:"key"`
	Prefix bool   `json:"prefix"`
}

func TestPacketRoundTrip(t *testing.T) {
	packet, err := NewPacket(KindInvalidate, "router-1", "trace-1", invalidatePayload{Key: "crew:cosmetics:", Prefix: true})
	if err != nil {
		t.Fatalf("new packet: %v", err)
	}
	data, err := encodePacket(packet)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodePacket(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != KindInvalidate || decoded.SenderID != "router-1" || decoded.TraceID != "trace-1" {
		t.Fatalf("envelope mismatch: %#v", decoded)
	}
	var payload invalidatePayload
	if err := decoded.DecodePayload(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Key != "crew:cosmetics:" || !payload.Prefix {
		t.Fatalf("payload mismatch: %#v", payload)
	}
}

func TestDecodePayloadEmpty(t *testing.T) {
	p := &Packet{Kind: KindProcessResult}
	var out map[string]any
	if err := p.DecodePayload(&out); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestDecodePacketInvalid(t *testing.T) {
	if _, err := decodePacket([]byte("{")); err == nil {
		t.Fatalf("expected error for invalid packet")
	}
}

func TestCrewSubject(t *testing.T) {
	if got := CrewSubject("Cosmetics", "sales crew"); got != "crew.cosmetics.sales_crew" {
		t.Fatalf("unexpected subject %q", got)
	}
	if got := CrewSubject("", ""); got != "crew.unknown.unknown" {
		t.Fatalf("unexpected subject %q", got)
	}
}

func TestPublishNilGuards(t *testing.T) {
	var b *NatsBus
	if err := b.Publish("s", &Packet{}); err != errNilBus {
		t.Fatalf("expected errNilBus, got %v", err)
	}
	bus := &NatsBus{}
	if err := bus.Publish("", &Packet{}); err != errNilBus {
		t.Fatalf("expected errNilBus for uninitialized conn, got %v", err)
	}
}
