// Package codec provides the reference codecs for wiremux frames.
//
// Both codecs carry the channel tag as a top-level field named by
// wiremux.ChannelKey and name payload fields after json struct tags, so a
// message type needs no extra annotations to travel over either encoding.
package codec

import (
	"errors"
	"fmt"
	"sort"

	"github.com/wiremux/wiremux"
)

var (
	// ErrMissingTag reports a frame without a channel tag.
	ErrMissingTag = errors.New("frame has no channel tag")

	// ErrBadTag reports a channel tag that is not a string.
	ErrBadTag = errors.New("channel tag is not a string")
)

var codecs = map[string]wiremux.Codec{
	"json":    JSON{},
	"msgpack": MsgPack{},
}

// ForName returns the codec registered under name.
func ForName(name string) (wiremux.Codec, error) {
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("unknown codec %q (have %v)", name, Names())
	}
	return c, nil
}

// Names returns the available codec names in sorted order.
func Names() []string {
	out := make([]string, 0, len(codecs))
	for name := range codecs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsBinary reports whether c emits binary frames. Transports that distinguish
// text from binary frames use it to pick a frame type; codecs without a
// Binary method count as text.
func IsBinary(c wiremux.Codec) bool {
	b, ok := c.(interface{ Binary() bool })
	return ok && b.Binary()
}
