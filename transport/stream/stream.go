// Package stream frames wiremux traffic over byte-stream transports such as
// TCP connections, unix sockets, and pipes.
package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/wiremux/wiremux"
)

// DefaultMaxFrame bounds inbound and outbound frame size. An oversized
// length prefix means the stream can no longer be trusted, so the limit is
// connection-fatal rather than a per-message drop.
const DefaultMaxFrame = 16 << 20

// Endpoint carries length-prefixed frames over an io.ReadWriter. Each frame
// is a 4-byte big-endian payload length followed by the payload.
type Endpoint struct {
	rw       io.ReadWriter
	maxFrame uint32

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

var _ wiremux.Transmitter = (*Endpoint)(nil)

// Option adjusts an Endpoint.
type Option func(*Endpoint)

// WithMaxFrame overrides DefaultMaxFrame.
func WithMaxFrame(n uint32) Option {
	return func(e *Endpoint) {
		if n > 0 {
			e.maxFrame = n
		}
	}
}

// New wraps rw in a framing endpoint.
func New(rw io.ReadWriter, opts ...Option) *Endpoint {
	e := &Endpoint{
		rw:       rw,
		maxFrame: DefaultMaxFrame,
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transmit writes one frame.
func (e *Endpoint) Transmit(p []byte) error {
	if uint64(len(p)) > uint64(e.maxFrame) {
		return fmt.Errorf("frame of %d bytes exceeds max %d", len(p), e.maxFrame)
	}
	select {
	case <-e.closed:
		return wiremux.ErrClosed
	default:
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(p)))

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if _, err := e.rw.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := e.rw.Write(p); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// Run reports the ready transition to r, then delivers inbound frames until
// ctx ends or the stream fails. A clean peer close returns nil; a ready
// drain failure is reported in the returned error but does not stop the
// stream. When the underlying stream is an io.Closer, ctx cancellation
// closes it to unblock the read.
func (e *Endpoint) Run(ctx context.Context, r wiremux.Receiver) error {
	if r == nil {
		return errors.New("receiver is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	drainErr := r.Ready()

	stop := context.AfterFunc(ctx, func() { e.Close() })
	defer stop()

	for {
		frame, err := e.readFrame()
		if err != nil {
			e.Close()
			switch {
			case ctx.Err() != nil:
				return errors.Join(drainErr, ctx.Err())
			case errors.Is(err, io.EOF):
				return drainErr
			default:
				return errors.Join(drainErr, err)
			}
		}
		r.HandleData(frame)
	}
}

// Close marks the endpoint closed and closes the underlying stream when it
// implements io.Closer. Safe to call more than once.
func (e *Endpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closed)
		if c, ok := e.rw.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

// readFrame returns io.EOF only for a close on a frame boundary; a stream
// that ends mid-frame is an error.
func (e *Endpoint) readFrame() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(e.rw, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read frame header: %w", err)
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > e.maxFrame {
		return nil, fmt.Errorf("frame of %d bytes exceeds max %d", n, e.maxFrame)
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(e.rw, frame); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return frame, nil
}
