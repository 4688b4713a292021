package wiremux

import (
	"context"
	"slices"
	"sync"
)

// Listener receives every message delivered on a channel it is registered
// for. The engine tracks listeners by identity, so implementations must be
// comparable values; pointer receivers satisfy that naturally.
type Listener interface {
	OnMessage(msg any)
}

type funcListener struct {
	fn func(msg any)
}

func (l *funcListener) OnMessage(msg any) {
	l.fn(msg)
}

// ListenerFunc adapts fn to the Listener interface. Every call mints a
// distinct listener identity; keep the result to stop listening later.
func ListenerFunc(fn func(msg any)) Listener {
	return &funcListener{fn: fn}
}

// MatchFunc filters messages for a one-shot awaiter. A nil MatchFunc matches
// every message on the channel. Match functions run under the engine lock
// and must not call back into the engine or manager.
type MatchFunc func(msg any) bool

// Pending is a registered one-shot awaiter. It resolves with the first
// message on its channel that satisfies its match function.
type Pending struct {
	channel string
	match   MatchFunc
	ch      chan any
	engine  *Engine
}

// Channel returns the channel tag the awaiter is registered for.
func (p *Pending) Channel() string {
	return p.channel
}

// Done returns a channel that yields the matched message. It is closed
// without a value if the awaiter is canceled.
func (p *Pending) Done() <-chan any {
	return p.ch
}

// Cancel withdraws the awaiter and reports whether it was still pending.
// False means a message already matched or the awaiter was already canceled.
func (p *Pending) Cancel() bool {
	e := p.engine
	e.mu.Lock()
	i := slices.Index(e.awaiters, p)
	if i < 0 {
		e.mu.Unlock()
		return false
	}
	e.awaiters = slices.Delete(e.awaiters, i, i+1)
	e.mu.Unlock()
	close(p.ch)
	return true
}

// Wait blocks until a message matches or ctx ends. Cancellation withdraws
// the awaiter; a message that matched before the cancellation took effect is
// returned rather than dropped.
func (p *Pending) Wait(ctx context.Context) (any, error) {
	select {
	case msg, ok := <-p.ch:
		if !ok {
			return nil, ErrCanceled
		}
		return msg, nil
	case <-ctx.Done():
	}
	if p.Cancel() {
		return nil, ctx.Err()
	}
	if msg, ok := <-p.ch; ok {
		return msg, nil
	}
	return nil, ErrCanceled
}

type listenerSet struct {
	order   []Listener
	members map[Listener]struct{}
}

// Engine fans messages out to listeners and one-shot awaiters by channel
// tag. Awaiters take precedence: the first one whose match accepts a message
// consumes it before any listener sees it.
type Engine struct {
	mu        sync.Mutex
	listeners map[string]*listenerSet
	awaiters  []*Pending
}

// NewEngine returns an engine with no registrations.
func NewEngine() *Engine {
	return &Engine{listeners: make(map[string]*listenerSet)}
}

// Listen registers l for every message delivered on channel. Registering the
// same listener value twice is a no-op.
func (e *Engine) Listen(channel string, l Listener) {
	if l == nil {
		return
	}
	e.mu.Lock()
	set := e.listeners[channel]
	if set == nil {
		set = &listenerSet{members: make(map[Listener]struct{})}
		e.listeners[channel] = set
	}
	if _, dup := set.members[l]; !dup {
		set.members[l] = struct{}{}
		set.order = append(set.order, l)
	}
	e.mu.Unlock()
}

// StopListening removes l from channel. Unknown registrations are ignored.
func (e *Engine) StopListening(channel string, l Listener) {
	e.mu.Lock()
	if set, ok := e.listeners[channel]; ok {
		if _, member := set.members[l]; member {
			delete(set.members, l)
			if i := slices.Index(set.order, l); i >= 0 {
				set.order = slices.Delete(set.order, i, i+1)
			}
			if len(set.order) == 0 {
				delete(e.listeners, channel)
			}
		}
	}
	e.mu.Unlock()
}

// AwaitNext registers a one-shot awaiter for the next message on channel
// that satisfies match. Awaiters resolve in registration order.
func (e *Engine) AwaitNext(channel string, match MatchFunc) *Pending {
	p := &Pending{
		channel: channel,
		match:   match,
		ch:      make(chan any, 1),
		engine:  e,
	}
	e.mu.Lock()
	e.awaiters = append(e.awaiters, p)
	e.mu.Unlock()
	return p
}

// Notify delivers msg to the first matching awaiter on channel, or to every
// listener registered for channel when no awaiter matches. Listener
// callbacks run outside the engine lock in registration order; removing a
// listener during a notify affects later notifies only.
func (e *Engine) Notify(channel string, msg any) {
	e.mu.Lock()
	for i, p := range e.awaiters {
		if p.channel != channel {
			continue
		}
		if p.match != nil && !p.match(msg) {
			continue
		}
		e.awaiters = slices.Delete(e.awaiters, i, i+1)
		e.mu.Unlock()
		p.ch <- msg
		return
	}
	var snapshot []Listener
	if set, ok := e.listeners[channel]; ok {
		snapshot = slices.Clone(set.order)
	}
	e.mu.Unlock()

	for _, l := range snapshot {
		l.OnMessage(msg)
	}
}
