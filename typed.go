package wiremux

import (
	"context"
	"fmt"
	"reflect"
)

// ListenFor registers fn for every message of type T and returns a function
// that stops the subscription. T must be the registered struct type.
func ListenFor[T any](m *Manager, fn func(T)) (stop func(), err error) {
	entry, ok := m.registry.EntryOf(reflect.TypeOf((*T)(nil)).Elem())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, reflect.TypeOf((*T)(nil)).Elem())
	}
	l := ListenerFunc(func(msg any) {
		if v, ok := msg.(T); ok {
			fn(v)
		}
	})
	m.Listen(entry.Channel, l)
	return func() { m.StopListening(entry.Channel, l) }, nil
}

// Reply is a typed handle on a one-shot awaiter.
type Reply[T any] struct {
	p *Pending
}

// AwaitNextOf registers a one-shot awaiter for the next message of type T
// that satisfies match. A nil match accepts any message of the type. The
// usual sequence is register, send the request, then Wait, so a fast
// response cannot slip past the awaiter.
func AwaitNextOf[T any](m *Manager, match func(T) bool) (*Reply[T], error) {
	entry, ok := m.registry.EntryOf(reflect.TypeOf((*T)(nil)).Elem())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, reflect.TypeOf((*T)(nil)).Elem())
	}
	p := m.AwaitNext(entry.Channel, func(msg any) bool {
		v, ok := msg.(T)
		if !ok {
			return false
		}
		return match == nil || match(v)
	})
	return &Reply[T]{p: p}, nil
}

// Wait blocks until a message matches or ctx ends, with the same
// cancellation semantics as Pending.Wait.
func (r *Reply[T]) Wait(ctx context.Context) (T, error) {
	msg, err := r.p.Wait(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return msg.(T), nil
}

// Done returns the underlying awaiter channel.
func (r *Reply[T]) Done() <-chan any {
	return r.p.Done()
}

// Cancel withdraws the awaiter and reports whether it was still pending.
func (r *Reply[T]) Cancel() bool {
	return r.p.Cancel()
}
