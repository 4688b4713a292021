package wiremux

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEngineListenersReceiveInRegistrationOrder(t *testing.T) {
	e := NewEngine()
	var order []string
	e.Listen("tick", ListenerFunc(func(any) { order = append(order, "first") }))
	e.Listen("tick", ListenerFunc(func(any) { order = append(order, "second") }))

	e.Notify("tick", 1)

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected registration order, got %#v", order)
	}
}

func TestEngineDuplicateListenerIsIdempotent(t *testing.T) {
	e := NewEngine()
	got := &captureListener{}
	e.Listen("tick", got)
	e.Listen("tick", got)

	e.Notify("tick", "x")

	if msgs := got.snapshot(); len(msgs) != 1 {
		t.Fatalf("expected one delivery for duplicate registration, got %d", len(msgs))
	}
}

func TestEngineStopListening(t *testing.T) {
	e := NewEngine()
	kept := &captureListener{}
	dropped := &captureListener{}
	e.Listen("tick", kept)
	e.Listen("tick", dropped)

	e.StopListening("tick", dropped)
	e.StopListening("tick", &captureListener{}) // unknown registration is a no-op
	e.StopListening("other", kept)

	e.Notify("tick", "x")

	if len(kept.snapshot()) != 1 {
		t.Fatalf("expected kept listener to receive the message")
	}
	if len(dropped.snapshot()) != 0 {
		t.Fatalf("expected removed listener to stay silent")
	}
}

func TestEngineChannelsAreIsolated(t *testing.T) {
	e := NewEngine()
	tick := &captureListener{}
	tock := &captureListener{}
	e.Listen("tick", tick)
	e.Listen("tock", tock)

	e.Notify("tick", 1)

	if len(tick.snapshot()) != 1 || len(tock.snapshot()) != 0 {
		t.Fatalf("expected delivery on tick only, got tick=%d tock=%d",
			len(tick.snapshot()), len(tock.snapshot()))
	}
}

func TestEngineAwaiterConsumesBeforeListeners(t *testing.T) {
	e := NewEngine()
	got := &captureListener{}
	e.Listen("tick", got)
	p := e.AwaitNext("tick", nil)

	e.Notify("tick", "consumed")

	select {
	case msg := <-p.Done():
		if msg != "consumed" {
			t.Fatalf("expected awaited message, got %#v", msg)
		}
	default:
		t.Fatalf("awaiter did not resolve")
	}
	if len(got.snapshot()) != 0 {
		t.Fatalf("awaited message must not reach listeners")
	}

	e.Notify("tick", "broadcast")
	if msgs := got.snapshot(); len(msgs) != 1 || msgs[0] != "broadcast" {
		t.Fatalf("expected second message on listener, got %#v", msgs)
	}
}

func TestEngineAwaitersResolveInRegistrationOrder(t *testing.T) {
	e := NewEngine()
	first := e.AwaitNext("tick", nil)
	second := e.AwaitNext("tick", nil)

	e.Notify("tick", "a")
	e.Notify("tick", "b")

	if msg := <-first.Done(); msg != "a" {
		t.Fatalf("expected first awaiter to win first message, got %#v", msg)
	}
	if msg := <-second.Done(); msg != "b" {
		t.Fatalf("expected second awaiter to win second message, got %#v", msg)
	}
}

func TestEngineAwaiterMatchSkipsToListeners(t *testing.T) {
	e := NewEngine()
	got := &captureListener{}
	e.Listen("tick", got)
	p := e.AwaitNext("tick", func(msg any) bool {
		n, ok := msg.(int)
		return ok && n > 10
	})

	e.Notify("tick", 3)

	if len(got.snapshot()) != 1 {
		t.Fatalf("expected non-matching message to broadcast")
	}
	select {
	case <-p.Done():
		t.Fatalf("awaiter resolved on non-matching message")
	default:
	}

	e.Notify("tick", 30)
	if msg := <-p.Done(); msg != 30 {
		t.Fatalf("expected matching message, got %#v", msg)
	}
	if len(got.snapshot()) != 1 {
		t.Fatalf("matching message must not broadcast")
	}
}

func TestPendingCancelRestoresBroadcast(t *testing.T) {
	e := NewEngine()
	got := &captureListener{}
	e.Listen("tick", got)
	p := e.AwaitNext("tick", nil)

	if !p.Cancel() {
		t.Fatalf("expected cancel of pending awaiter to succeed")
	}
	if p.Cancel() {
		t.Fatalf("expected second cancel to report not pending")
	}

	e.Notify("tick", "x")
	if len(got.snapshot()) != 1 {
		t.Fatalf("expected canceled awaiter to stop consuming messages")
	}
	if _, ok := <-p.Done(); ok {
		t.Fatalf("expected done channel closed after cancel")
	}
}

func TestPendingCancelAfterMatchReportsFalse(t *testing.T) {
	e := NewEngine()
	p := e.AwaitNext("tick", nil)
	e.Notify("tick", "x")

	if p.Cancel() {
		t.Fatalf("expected cancel after match to report not pending")
	}
	if msg := <-p.Done(); msg != "x" {
		t.Fatalf("expected matched message to remain readable, got %#v", msg)
	}
}

func TestPendingWaitReturnsMatch(t *testing.T) {
	e := NewEngine()
	p := e.AwaitNext("tick", nil)
	e.Notify("tick", "x")

	msg, err := p.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if msg != "x" {
		t.Fatalf("expected matched message, got %#v", msg)
	}
}

func TestPendingWaitHonorsContext(t *testing.T) {
	e := NewEngine()
	got := &captureListener{}
	e.Listen("tick", got)
	p := e.AwaitNext("tick", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	e.Notify("tick", "x")
	if len(got.snapshot()) != 1 {
		t.Fatalf("expected expired awaiter to stop consuming messages")
	}
}

func TestPendingWaitPrefersDeliveredMessageOverCancellation(t *testing.T) {
	e := NewEngine()
	p := e.AwaitNext("tick", nil)
	e.Notify("tick", "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	msg, err := p.Wait(ctx)
	if err != nil {
		t.Fatalf("expected delivered message despite canceled context, got %v", err)
	}
	if msg != "x" {
		t.Fatalf("expected matched message, got %#v", msg)
	}
}

func TestPendingWaitAfterCancelReportsCanceled(t *testing.T) {
	e := NewEngine()
	p := e.AwaitNext("tick", nil)
	p.Cancel()

	if _, err := p.Wait(context.Background()); !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
}

func TestPendingChannelAccessor(t *testing.T) {
	e := NewEngine()
	p := e.AwaitNext("tick", nil)
	if p.Channel() != "tick" {
		t.Fatalf("expected channel tick, got %q", p.Channel())
	}
}
