package bus

import (
	"encoding/json"
	"fmt"
	"time"
)

// Packet kinds carried on the bus.
const (
	KindInvalidate     = "cache.invalidate"
	KindProcessRequest = "crew.process.request"
	KindProcessResult  = "crew.process.result"
)

// Packet is the JSON envelope every bus message travels in.
type Packet struct {
	TraceID   string          `json:"trace_id,omitempty"`
	SenderID  string          `json:"sender_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewPacket wraps a payload value in an envelope of the given kind.
func NewPacket(kind, senderID, traceID string, payload any) (*Packet, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal packet payload: %w", err)
	}
	return &Packet{
		TraceID:   traceID,
		SenderID:  senderID,
		CreatedAt: time.Now().UTC(),
		Kind:      kind,
		Payload:   raw,
	}, nil
}

// DecodePayload unmarshals the packet payload into dest.
func (p *Packet) DecodePayload(dest any) error {
	if p == nil || len(p.Payload) == 0 {
		return fmt.Errorf("empty packet payload")
	}
	if err := json.Unmarshal(p.Payload, dest); err != nil {
		return fmt.Errorf("decode %s payload: %w", p.Kind, err)
	}
	return nil
}

func encodePacket(p *Packet) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal packet: %w", err)
	}
	return data, nil
}

func decodePacket(data []byte) (*Packet, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal packet: %w", err)
	}
	return &p, nil
}
