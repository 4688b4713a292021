// Package chatproto declares the message vocabulary spoken by the wiremux
// serve and chat commands. Every connection shares one registry, so the
// channel bindings live here rather than with either command.
package chatproto

import (
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"

	"github.com/wiremux/wiremux"
	"github.com/wiremux/wiremux/validate"
)

// Channel tags carried on the wire.
const (
	ChannelPing   = "ping"
	ChannelPong   = "pong"
	ChannelSay    = "say"
	ChannelEcho   = "echo"
	ChannelStatus = "status"
)

// Ping probes the peer for liveness. Nonce correlates the answering Pong.
type Ping struct {
	Nonce string `json:"nonce"`
}

// Pong answers a Ping, carrying the probe nonce back with the answer time.
type Pong struct {
	Nonce string    `json:"nonce"`
	At    time.Time `json:"at"`
}

// Say carries one line of chat text. ID correlates the echoed reply.
type Say struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Echo returns a Say line to its sender with the serve time.
type Echo struct {
	ID     string    `json:"id"`
	Text   string    `json:"text"`
	Served time.Time `json:"served"`
}

// Status is broadcast to every connection on the server heartbeat.
type Status struct {
	Peers  int           `json:"peers"`
	Uptime time.Duration `json:"uptime"`
	At     time.Time     `json:"at"`
}

// NewNonce returns a correlation id for Ping and Say messages.
func NewNonce() string {
	return uuid.New().String()
}

var (
	registryOnce sync.Once
	registry     *wiremux.Registry
)

// Registry returns the shared channel registry for the chat vocabulary.
// Registration runs once; the result is read-only and safe to hand to any
// number of managers.
func Registry() *wiremux.Registry {
	registryOnce.Do(func() {
		registry = wiremux.NewRegistry()
		register(registry)
	})
	return registry
}

func register(r *wiremux.Registry) {
	// Text codecs deliver timestamps as RFC 3339 strings and durations as
	// nanosecond numbers; binary codecs deliver time.Time natively. The hook
	// and the validators accept both forms.
	opts := wiremux.Options{
		Strict: true,
		Hook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	}
	timestamp := validate.Or(validate.NonEmptyString(), validate.Time())

	wiremux.Register[Ping](r, ChannelPing, validate.Object(validate.Fields{
		"nonce": validate.NonEmptyString(),
	}), opts)
	wiremux.Register[Pong](r, ChannelPong, validate.Object(validate.Fields{
		"nonce": validate.NonEmptyString(),
		"at":    timestamp,
	}), opts)
	wiremux.Register[Say](r, ChannelSay, validate.Object(validate.Fields{
		"id":   validate.NonEmptyString(),
		"text": validate.String(),
	}), opts)
	wiremux.Register[Echo](r, ChannelEcho, validate.Object(validate.Fields{
		"id":     validate.NonEmptyString(),
		"text":   validate.String(),
		"served": timestamp,
	}), opts)
	wiremux.Register[Status](r, ChannelStatus, validate.Object(validate.Fields{
		"peers":  validate.Number(),
		"uptime": validate.Or(validate.Number(), validate.NonEmptyString()),
		"at":     timestamp,
	}), opts)
}
