package wiremux

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
)

// ChannelKey is the tag field the reference codecs stamp into every frame.
// The finalizer strips it from map intermediates before conversion so it
// never counts as an unknown payload field.
const ChannelKey = "channel"

// StructFinalizer converts map intermediates into registered struct types
// with mapstructure. The zero value is ready to use.
type StructFinalizer struct {
	// TagName selects the struct tag used for field naming. Defaults to
	// "json" so wire names match the JSON codec.
	TagName string
}

var _ Finalizer = (*StructFinalizer)(nil)

// Finalize runs the entry validator against the intermediate, then decodes
// it into a freshly constructed value of the entry's type, honoring the
// entry's Strict and Hook options. The result is a struct value, not a
// pointer.
func (f *StructFinalizer) Finalize(intermediate any, entry *Entry) (any, error) {
	if entry == nil {
		return nil, errors.New("registry entry is required")
	}
	if entry.Validate != nil && !entry.Validate(intermediate) {
		return nil, fmt.Errorf("%w: channel %q", ErrValidateFailed, entry.Channel)
	}
	if m, ok := intermediate.(map[string]any); ok {
		delete(m, ChannelKey)
	}

	out := reflect.New(entry.Type)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out.Interface(),
		TagName:     f.tagName(),
		ErrorUnused: entry.Options.Strict,
		DecodeHook:  entry.Options.Hook,
	})
	if err != nil {
		return nil, fmt.Errorf("build decoder for channel %q: %w", entry.Channel, err)
	}
	if err := dec.Decode(intermediate); err != nil {
		return nil, fmt.Errorf("convert %q intermediate: %w", entry.Channel, err)
	}
	return out.Elem().Interface(), nil
}

func (f *StructFinalizer) tagName() string {
	if f.TagName != "" {
		return f.TagName
	}
	return "json"
}
