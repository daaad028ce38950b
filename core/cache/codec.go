package cache

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Wire layout of the current encoding: 4-byte magic, uvarint payload length,
// JSON payload. Entries written before the envelope existed are raw
// proto-marshaled structpb.Struct values; Decode falls back to that variant.
var envelopeMagic = []byte("CMX1")

var (
	// ErrUnreadable marks an entry that decodes under neither encoding.
	ErrUnreadable = errors.New("cache entry unreadable")
)

// Encode wraps a value in the current self-describing envelope.
func Encode(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode cache value: %w", err)
	}
	buf := make([]byte, 0, len(envelopeMagic)+binary.MaxVarintLen64+len(payload))
	buf = append(buf, envelopeMagic...)
	buf = binary.AppendUvarint(buf, uint64(len(payload)))
	buf = append(buf, payload...)
	return buf, nil
}

// EncodeLegacy writes a value in the pre-envelope binary encoding.
// Kept for rolling-upgrade tests and migration tooling.
func EncodeLegacy(v map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(v)
	if err != nil {
		return nil, fmt.Errorf("encode legacy value: %w", err)
	}
	return proto.Marshal(s)
}

// Decode extracts the JSON payload from an entry, trying the current
// envelope first and the legacy binary encoding second. The legacy bool
// reports which variant matched. ErrUnreadable means neither did; callers
// treat that as a miss, never as a request failure.
func Decode(data []byte) (payload json.RawMessage, legacy bool, err error) {
	if len(data) == 0 {
		return nil, false, ErrUnreadable
	}
	if bytes.HasPrefix(data, envelopeMagic) {
		rest := data[len(envelopeMagic):]
		n, read := binary.Uvarint(rest)
		if read <= 0 || uint64(len(rest)-read) < n {
			return nil, false, ErrUnreadable
		}
		raw := rest[read : read+int(n)]
		if !json.Valid(raw) {
			return nil, false, ErrUnreadable
		}
		return json.RawMessage(raw), false, nil
	}
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, false, ErrUnreadable
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return nil, false, ErrUnreadable
	}
	return raw, true, nil
}
