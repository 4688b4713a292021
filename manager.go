package wiremux

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// Codec translates between wire frames and (channel, intermediate) pairs.
// Decode must fail for undecodable input and for frames whose channel tag is
// missing or not a string; the receive pipeline treats every decode failure
// as malformed input.
type Codec interface {
	Encode(channel string, msg any) ([]byte, error)
	Decode(raw []byte) (channel string, intermediate any, err error)
}

// Transmitter is the transport's emit primitive.
type Transmitter interface {
	Transmit(p []byte) error
}

// Finalizer turns a decoded intermediate into the registered message type,
// applying the entry's validator and options.
type Finalizer interface {
	Finalize(intermediate any, entry *Entry) (any, error)
}

// Receiver is the manager surface a transport drives: one HandleData call
// per inbound frame, plus the Ready transition once frames can be
// transmitted.
type Receiver interface {
	HandleData(raw []byte)
	Ready() error
}

// Config assembles a Manager.
type Config struct {
	// Registry maps channel tags to message types. Required; typically
	// shared read-only between managers.
	Registry *Registry

	// Codec encodes and decodes wire frames. Required.
	Codec Codec

	// Transmitter sends encoded frames to the peer. Required.
	Transmitter Transmitter

	// Finalizer validates and converts decoded intermediates. Defaults to
	// a StructFinalizer.
	Finalizer Finalizer

	// Logger receives receive-path drop diagnostics. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Manager binds one endpoint of a duplex channel. Outbound messages are
// tagged from the registry, encoded, and transmitted, or buffered until the
// transport reports ready; inbound frames are decoded, validated, converted
// to their registered type, and fanned out to listeners and awaiters.
// Methods are safe for concurrent use.
type Manager struct {
	registry    *Registry
	codec       Codec
	transmitter Transmitter
	finalizer   Finalizer
	engine      *Engine
	log         *slog.Logger

	stateMu sync.Mutex
	ready   bool
	outbox  []any

	sendMu sync.Mutex
}

var _ Receiver = (*Manager)(nil)

// NewManager validates cfg and returns a manager in the not-ready state.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Codec == nil {
		return nil, errors.New("codec is required")
	}
	if cfg.Transmitter == nil {
		return nil, errors.New("transmitter is required")
	}
	finalizer := cfg.Finalizer
	if finalizer == nil {
		finalizer = &StructFinalizer{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry:    cfg.Registry,
		codec:       cfg.Codec,
		transmitter: cfg.Transmitter,
		finalizer:   finalizer,
		engine:      NewEngine(),
		log:         logger,
	}, nil
}

// HandleData decodes, validates, and dispatches one inbound frame.
// Malformed frames, unknown channels, and validation failures are logged and
// dropped; nothing a peer sends can surface an error through this path.
func (m *Manager) HandleData(raw []byte) {
	channel, intermediate, err := m.codec.Decode(raw)
	if err != nil {
		m.log.Warn("dropping undecodable frame", "err", err, "frame", framePreview(raw, 120))
		return
	}
	entry, ok := m.registry.Lookup(channel)
	if !ok {
		m.log.Warn("dropping frame for unregistered channel", "channel", channel)
		return
	}
	msg, err := m.finalizer.Finalize(intermediate, entry)
	if err != nil {
		m.log.Warn("dropping frame that failed finalize", "channel", channel, "err", err)
		return
	}
	m.engine.Notify(channel, msg)
}

// Send queues or transmits one outbound message. The concrete type of msg
// must be registered (pointers are normalized); the channel tag is stamped
// from the registry, never read from the message itself. Before the ready
// transition messages are buffered in order; after it they are encoded and
// transmitted synchronously.
func (m *Manager) Send(msg any) error {
	if msg == nil {
		return errors.New("message is required")
	}
	if _, ok := m.registry.EntryOf(reflect.TypeOf(msg)); !ok {
		return fmt.Errorf("%w: %T", ErrNotRegistered, msg)
	}

	m.stateMu.Lock()
	if !m.ready {
		m.outbox = append(m.outbox, msg)
		m.stateMu.Unlock()
		return nil
	}
	m.stateMu.Unlock()

	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	return m.transmit(msg)
}

// Ready marks the transport writable and drains messages buffered before
// the transition, in enqueue order. The first call wins; later calls are
// no-ops. Drain failures are joined and returned; the buffer clears either
// way and the manager stays ready.
func (m *Manager) Ready() error {
	m.stateMu.Lock()
	if m.ready {
		m.stateMu.Unlock()
		return nil
	}
	m.ready = true
	queued := m.outbox
	m.outbox = nil
	m.stateMu.Unlock()

	if len(queued) == 0 {
		return nil
	}
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	var errs []error
	for _, msg := range queued {
		if err := m.transmit(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Listen registers l for every message delivered on channel.
func (m *Manager) Listen(channel string, l Listener) {
	m.engine.Listen(channel, l)
}

// StopListening removes l from channel.
func (m *Manager) StopListening(channel string, l Listener) {
	m.engine.StopListening(channel, l)
}

// AwaitNext registers a one-shot awaiter for the next message on channel
// that satisfies match.
func (m *Manager) AwaitNext(channel string, match MatchFunc) *Pending {
	return m.engine.AwaitNext(channel, match)
}

// transmit stamps, encodes, and writes one message. Callers hold sendMu so
// the ready drain and concurrent sends cannot interleave frames.
func (m *Manager) transmit(msg any) error {
	entry, ok := m.registry.EntryOf(reflect.TypeOf(msg))
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotRegistered, msg)
	}
	raw, err := m.codec.Encode(entry.Channel, msg)
	if err != nil {
		return fmt.Errorf("encode %q frame: %w", entry.Channel, err)
	}
	if err := m.transmitter.Transmit(raw); err != nil {
		return fmt.Errorf("transmit %q frame: %w", entry.Channel, err)
	}
	return nil
}

func framePreview(raw []byte, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(string(raw))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit])
}
