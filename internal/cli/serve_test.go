package cli

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/wiremux/wiremux/codec"
	"github.com/wiremux/wiremux/internal/chatproto"
	"github.com/wiremux/wiremux/internal/config"
)

func testServerConfig() *config.Config {
	return &config.Config{
		Listen: config.ListenConfig{
			Addr:      "127.0.0.1:0",
			Transport: config.TransportTCP,
			MaxFrame:  1 << 20,
		},
		Codec: config.CodecConfig{Name: "json"},
		Chat: config.ChatConfig{
			Server:       "127.0.0.1:0",
			Transport:    config.TransportTCP,
			HistoryLimit: 10,
			ReplyTimeout: time.Second,
		},
	}
}

func TestNewServerRejectsUnknownCodec(t *testing.T) {
	cfg := testServerConfig()
	cfg.Codec.Name = "bson"

	if _, err := newServer(cfg, discardLogger()); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}

func TestServerRespondsToPing(t *testing.T) {
	srv, err := newServer(testServerConfig(), discardLogger())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	tr := &recordingTransmitter{}
	m, err := srv.attach(tr)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer srv.detach(m)
	if err := m.Ready(); err != nil {
		t.Fatalf("ready: %v", err)
	}

	frame, err := codec.JSON{}.Encode(chatproto.ChannelPing, chatproto.Ping{Nonce: "probe-1"})
	if err != nil {
		t.Fatalf("encode ping: %v", err)
	}
	m.HandleData(frame)

	frames := tr.take()
	if len(frames) != 1 {
		t.Fatalf("transmitted %d frames, want 1", len(frames))
	}
	channel, intermediate, err := codec.JSON{}.Decode(frames[0])
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if channel != chatproto.ChannelPong {
		t.Fatalf("reply channel = %q, want %q", channel, chatproto.ChannelPong)
	}
	fields := intermediate.(map[string]any)
	if fields["nonce"] != "probe-1" {
		t.Fatalf("pong nonce = %v, want probe-1", fields["nonce"])
	}
}

func TestServerEchoesSay(t *testing.T) {
	srv, err := newServer(testServerConfig(), discardLogger())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	tr := &recordingTransmitter{}
	m, err := srv.attach(tr)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer srv.detach(m)
	if err := m.Ready(); err != nil {
		t.Fatalf("ready: %v", err)
	}

	frame, err := codec.JSON{}.Encode(chatproto.ChannelSay, chatproto.Say{ID: "m-1", Text: "hello"})
	if err != nil {
		t.Fatalf("encode say: %v", err)
	}
	m.HandleData(frame)

	frames := tr.take()
	if len(frames) != 1 {
		t.Fatalf("transmitted %d frames, want 1", len(frames))
	}
	channel, intermediate, err := codec.JSON{}.Decode(frames[0])
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if channel != chatproto.ChannelEcho {
		t.Fatalf("reply channel = %q, want %q", channel, chatproto.ChannelEcho)
	}
	fields := intermediate.(map[string]any)
	if fields["id"] != "m-1" || fields["text"] != "hello" {
		t.Fatalf("echo fields = %v", fields)
	}
	if fields["served"] == nil {
		t.Fatal("echo missing served timestamp")
	}
}

func TestBroadcastStatusReachesEveryPeer(t *testing.T) {
	srv, err := newServer(testServerConfig(), discardLogger())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	first := &recordingTransmitter{}
	m1, err := srv.attach(first)
	if err != nil {
		t.Fatalf("attach first: %v", err)
	}
	if err := m1.Ready(); err != nil {
		t.Fatalf("ready first: %v", err)
	}
	second := &recordingTransmitter{}
	m2, err := srv.attach(second)
	if err != nil {
		t.Fatalf("attach second: %v", err)
	}
	if err := m2.Ready(); err != nil {
		t.Fatalf("ready second: %v", err)
	}

	srv.broadcastStatus()

	for i, tr := range []*recordingTransmitter{first, second} {
		frames := tr.take()
		if len(frames) != 1 {
			t.Fatalf("peer %d received %d frames, want 1", i, len(frames))
		}
		channel, intermediate, err := codec.JSON{}.Decode(frames[0])
		if err != nil {
			t.Fatalf("peer %d decode: %v", i, err)
		}
		if channel != chatproto.ChannelStatus {
			t.Fatalf("peer %d channel = %q, want %q", i, channel, chatproto.ChannelStatus)
		}
		fields := intermediate.(map[string]any)
		if got := fields["peers"].(float64); got != 2 {
			t.Fatalf("peer %d status peers = %v, want 2", i, got)
		}
	}

	srv.detach(m2)
	srv.broadcastStatus()

	if frames := second.take(); len(frames) != 0 {
		t.Fatalf("detached peer received %d frames, want 0", len(frames))
	}
	frames := first.take()
	if len(frames) != 1 {
		t.Fatalf("remaining peer received %d frames, want 1", len(frames))
	}
	_, intermediate, err := codec.JSON{}.Decode(frames[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := intermediate.(map[string]any)["peers"].(float64); got != 1 {
		t.Fatalf("status peers after detach = %v, want 1", got)
	}
}

func TestServeStopsWhenContextCancelled(t *testing.T) {
	home := createTestHome(t)
	writeValidConfig(t, home)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"serve"})

	if err := root.ExecuteContext(ctx); err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func TestHeartbeatRejectsBadSchedule(t *testing.T) {
	if _, err := newHeartbeat("every other tuesday", func() {}); err == nil {
		t.Fatal("expected error for unparseable schedule")
	}
}

func TestHeartbeatStartStop(t *testing.T) {
	hb, err := newHeartbeat("@every 1h", func() {})
	if err != nil {
		t.Fatalf("new heartbeat: %v", err)
	}

	if err := hb.Stop(context.Background()); err != nil {
		t.Fatalf("stop before start: %v", err)
	}

	hb.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := hb.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
