package wiremux

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

// ValidateFunc checks a decoded intermediate value before it is converted
// into its registered message type. Returning false drops the message.
type ValidateFunc func(v any) bool

// Options carries per-channel finalize configuration.
type Options struct {
	// Strict rejects intermediate fields that have no destination in the
	// message type.
	Strict bool

	// Hook customizes field conversion during finalize. Accepts anything
	// mapstructure accepts as a decode hook.
	Hook mapstructure.DecodeHookFunc
}

// Entry binds one channel tag to one message type.
type Entry struct {
	Channel  string
	Type     reflect.Type
	Validate ValidateFunc
	Options  Options
}

// Registry maps channel tags to message types and back. Registration is
// expected to finish during initialization, before traffic flows; entries
// are never removed. A registry may be shared read-only by any number of
// managers.
type Registry struct {
	mu        sync.RWMutex
	byChannel map[string]*Entry
	byType    map[reflect.Type]*Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byChannel: make(map[string]*Entry),
		byType:    make(map[reflect.Type]*Entry),
	}
}

// Register binds channel to typ. Registering a channel that already has an
// entry silently replaces it. Pointer types are normalized to their element
// type; a non-struct type or an empty channel panics, both being
// declaration-time caller bugs.
func (r *Registry) Register(channel string, typ reflect.Type, validate ValidateFunc, opts Options) {
	if channel == "" {
		panic("wiremux: channel tag must not be empty")
	}
	typ = messageType(channel, typ)
	e := &Entry{Channel: channel, Type: typ, Validate: validate, Options: opts}

	r.mu.Lock()
	r.byChannel[channel] = e
	r.byType[typ] = e
	r.mu.Unlock()
}

// Lookup returns the entry registered under channel.
func (r *Registry) Lookup(channel string) (*Entry, bool) {
	r.mu.RLock()
	e, ok := r.byChannel[channel]
	r.mu.RUnlock()
	return e, ok
}

// EntryOf returns the entry whose message type matches typ, normalizing
// pointer types the same way Register does. Absence means the type was
// never registered.
func (r *Registry) EntryOf(typ reflect.Type) (*Entry, bool) {
	if typ == nil {
		return nil, false
	}
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	r.mu.RLock()
	e, ok := r.byType[typ]
	r.mu.RUnlock()
	return e, ok
}

// Channels returns the registered channel tags in sorted order.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.byChannel))
	for channel := range r.byChannel {
		out = append(out, channel)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Register binds channel to the struct type T on r. One call per message
// type at initialization is the intended usage:
//
//	wiremux.Register[Ping](reg, "ping", validate.Object(validate.Fields{
//		"nonce": validate.NonEmptyString(),
//	}), wiremux.Options{})
func Register[T any](r *Registry, channel string, validate ValidateFunc, opts Options) {
	r.Register(channel, reflect.TypeOf((*T)(nil)).Elem(), validate, opts)
}

func messageType(channel string, typ reflect.Type) reflect.Type {
	if typ == nil {
		panic(fmt.Sprintf("wiremux: register %q: message type is required", channel))
	}
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		panic(fmt.Sprintf("wiremux: register %q: message type must be a struct, got %s", channel, typ))
	}
	return typ
}
