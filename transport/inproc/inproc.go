// Package inproc links two wiremux endpoints inside one process. It stands
// in for the worker-goroutine case and backs tests that need a full duplex
// channel without any I/O.
package inproc

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/wiremux/wiremux"
)

const frameBuffer = 64

// Endpoint is one side of an in-process duplex pair. Delivery is
// asynchronous through a buffered queue, so an endpoint may transmit from
// inside its own receive path without deadlocking.
type Endpoint struct {
	peer *Endpoint

	frames chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

var _ wiremux.Transmitter = (*Endpoint)(nil)

// Pair returns two linked endpoints.
func Pair() (*Endpoint, *Endpoint) {
	a := &Endpoint{frames: make(chan []byte, frameBuffer), closed: make(chan struct{})}
	b := &Endpoint{frames: make(chan []byte, frameBuffer), closed: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

// Transmit hands a copy of one frame to the peer's inbound queue. It blocks
// while the queue is full and fails once either side is closed.
func (e *Endpoint) Transmit(p []byte) error {
	select {
	case <-e.closed:
		return wiremux.ErrClosed
	case <-e.peer.closed:
		return wiremux.ErrClosed
	default:
	}

	frame := bytes.Clone(p)
	select {
	case <-e.closed:
		return wiremux.ErrClosed
	case <-e.peer.closed:
		return wiremux.ErrClosed
	case e.peer.frames <- frame:
		return nil
	}
}

// Run reports the ready transition to r, then delivers queued frames until
// ctx ends or this side closes. A ready drain failure is reported in the
// returned error but does not stop delivery.
func (e *Endpoint) Run(ctx context.Context, r wiremux.Receiver) error {
	if r == nil {
		return errors.New("receiver is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	drainErr := r.Ready()

	for {
		select {
		case <-ctx.Done():
			e.Close()
			return errors.Join(drainErr, ctx.Err())
		case <-e.closed:
			return drainErr
		case frame := <-e.frames:
			r.HandleData(frame)
		}
	}
}

// Close shuts this side of the pair; frames still buffered are dropped.
// Safe to call more than once.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)
	})
	return nil
}
