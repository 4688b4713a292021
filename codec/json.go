package codec

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/wiremux/wiremux"
)

// JSON encodes frames as JSON objects with the channel tag spliced into the
// marshaled document.
type JSON struct{}

var _ wiremux.Codec = JSON{}

// Encode marshals msg and stamps the channel tag, overwriting any field of
// the same name the payload happens to carry.
func (JSON) Encode(channel string, msg any) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	raw, err = sjson.SetBytes(raw, wiremux.ChannelKey, channel)
	if err != nil {
		return nil, fmt.Errorf("stamp channel tag: %w", err)
	}
	return raw, nil
}

// Binary reports whether encoded frames are binary. JSON frames are text.
func (JSON) Binary() bool { return false }

// Decode extracts the channel tag without a full parse, then unmarshals the
// whole document as the intermediate value.
func (JSON) Decode(raw []byte) (string, any, error) {
	tag := gjson.GetBytes(raw, wiremux.ChannelKey)
	if !tag.Exists() {
		return "", nil, ErrMissingTag
	}
	if tag.Type != gjson.String {
		return "", nil, fmt.Errorf("%w: %s", ErrBadTag, tag.Type)
	}
	var intermediate map[string]any
	if err := json.Unmarshal(raw, &intermediate); err != nil {
		return "", nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	return tag.String(), intermediate, nil
}
