package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wiremux/wiremux"
)

// MsgPack encodes frames as MessagePack maps carrying the channel tag as a
// top-level key. Payload fields keep their native MessagePack forms, so
// time.Time travels as the timestamp extension rather than a string.
type MsgPack struct{}

var _ wiremux.Codec = MsgPack{}

// Encode marshals msg as a map keyed by json tag names, then splices in the
// channel tag by rewriting the map header. The tag entry is appended last so
// it wins over any payload field of the same name, matching the JSON codec.
func (MsgPack) Encode(channel string, msg any) ([]byte, error) {
	var payload bytes.Buffer
	enc := msgpack.NewEncoder(&payload)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(msg); err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	count, body, err := splitMapHeader(payload.Bytes())
	if err != nil {
		return nil, fmt.Errorf("stamp channel tag: %w", err)
	}

	var frame bytes.Buffer
	frame.Grow(len(body) + len(wiremux.ChannelKey) + len(channel) + 7)
	out := msgpack.NewEncoder(&frame)
	if err := out.EncodeMapLen(count + 1); err != nil {
		return nil, fmt.Errorf("stamp channel tag: %w", err)
	}
	frame.Write(body)
	if err := out.EncodeString(wiremux.ChannelKey); err != nil {
		return nil, fmt.Errorf("stamp channel tag: %w", err)
	}
	if err := out.EncodeString(channel); err != nil {
		return nil, fmt.Errorf("stamp channel tag: %w", err)
	}
	return frame.Bytes(), nil
}

// Binary reports whether encoded frames are binary. MessagePack frames are.
func (MsgPack) Binary() bool { return true }

// Decode unmarshals the frame into a map and reads the channel tag from it.
func (MsgPack) Decode(raw []byte) (string, any, error) {
	var intermediate map[string]any
	if err := msgpack.Unmarshal(raw, &intermediate); err != nil {
		return "", nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	tag, ok := intermediate[wiremux.ChannelKey]
	if !ok {
		return "", nil, ErrMissingTag
	}
	channel, ok := tag.(string)
	if !ok {
		return "", nil, fmt.Errorf("%w: %T", ErrBadTag, tag)
	}
	return channel, intermediate, nil
}

// splitMapHeader reads the header off an encoded MessagePack map, returning
// the entry count and the raw entry bytes that follow it.
func splitMapHeader(raw []byte) (int, []byte, error) {
	if len(raw) == 0 {
		return 0, nil, errors.New("empty payload")
	}
	switch c := raw[0]; {
	case c >= 0x80 && c <= 0x8f:
		return int(c & 0x0f), raw[1:], nil
	case c == 0xde:
		if len(raw) < 3 {
			return 0, nil, errors.New("truncated map16 header")
		}
		return int(binary.BigEndian.Uint16(raw[1:3])), raw[3:], nil
	case c == 0xdf:
		if len(raw) < 5 {
			return 0, nil, errors.New("truncated map32 header")
		}
		return int(binary.BigEndian.Uint32(raw[1:5])), raw[5:], nil
	default:
		return 0, nil, fmt.Errorf("payload encodes as type %#02x, want map", c)
	}
}
