package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/wiremux/wiremux"
	"github.com/wiremux/wiremux/codec"
	"github.com/wiremux/wiremux/internal/chatproto"
	"github.com/wiremux/wiremux/internal/config"
	"github.com/wiremux/wiremux/internal/logging"
	"github.com/wiremux/wiremux/transport/stream"
	"github.com/wiremux/wiremux/transport/ws"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			srv, err := newServer(cfg, logging.Logger())
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.run(runCtx); err != nil {
				return err
			}
			logging.Logger().Info("server stopped")
			return nil
		},
	}
}

// peerEndpoint is the transport surface the server drives per connection.
// Both the stream and websocket endpoints satisfy it.
type peerEndpoint interface {
	wiremux.Transmitter
	Run(ctx context.Context, r wiremux.Receiver) error
	Close() error
}

// server accepts peers on one transport and speaks the chat vocabulary with
// each over a dedicated manager backed by the shared registry.
type server struct {
	cfg   *config.Config
	codec wiremux.Codec
	log   *slog.Logger
	start time.Time

	mu    sync.Mutex
	peers map[*wiremux.Manager]struct{}
}

func newServer(cfg *config.Config, log *slog.Logger) (*server, error) {
	c, err := codec.ForName(cfg.Codec.Name)
	if err != nil {
		return nil, err
	}
	return &server{
		cfg:   cfg,
		codec: c,
		log:   log,
		start: time.Now(),
		peers: make(map[*wiremux.Manager]struct{}),
	}, nil
}

// run listens on the configured address and serves peers until ctx ends.
func (s *server) run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen.Addr)
	if err != nil {
		return fmt.Errorf("listen on %q: %w", s.cfg.Listen.Addr, err)
	}
	s.log.Info(
		"server listening",
		"addr", ln.Addr().String(),
		"transport", s.cfg.Listen.Transport,
		"codec", s.cfg.Codec.Name,
	)

	if s.cfg.Heartbeat.Enabled {
		hb, err := newHeartbeat(s.cfg.Heartbeat.Schedule, s.broadcastStatus)
		if err != nil {
			ln.Close()
			return err
		}
		hb.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := hb.Stop(stopCtx); err != nil {
				s.log.Warn("heartbeat stop", "err", err)
			}
		}()
	}

	if s.cfg.Listen.Transport == config.TransportWS {
		return s.serveWS(ctx, ln)
	}
	return s.serveTCP(ctx, ln)
}

func (s *server) serveTCP(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			wg.Wait()
			return fmt.Errorf("accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			endpoint := stream.New(conn, stream.WithMaxFrame(uint32(s.cfg.Listen.MaxFrame)))
			s.servePeer(ctx, conn.RemoteAddr().String(), endpoint)
		}()
	}
	wg.Wait()
	return nil
}

func (s *server) serveWS(ctx context.Context, ln net.Listener) error {
	upgrader := websocket.Upgrader{}
	binary := codec.IsBinary(s.codec)

	mux := http.NewServeMux()
	mux.HandleFunc(config.WSPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("upgrade websocket", "remote", r.RemoteAddr, "err", err)
			return
		}
		s.servePeer(ctx, conn.RemoteAddr().String(), ws.NewEndpoint(conn, binary))
	})

	srv := &http.Server{Handler: mux}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve websocket: %w", err)
	}
	return nil
}

// servePeer attaches a manager to one connection and pumps it until the peer
// leaves or ctx ends.
func (s *server) servePeer(ctx context.Context, remote string, endpoint peerEndpoint) {
	manager, err := s.attach(endpoint)
	if err != nil {
		s.log.Warn("attach peer", "remote", remote, "err", err)
		endpoint.Close()
		return
	}
	defer s.detach(manager)

	s.log.Info("peer connected", "remote", remote)
	if err := endpoint.Run(ctx, manager); err != nil && ctx.Err() == nil {
		s.log.Warn("peer connection failed", "remote", remote, "err", err)
		return
	}
	s.log.Info("peer disconnected", "remote", remote)
}

// attach builds the per-connection manager and registers the responders.
func (s *server) attach(t wiremux.Transmitter) (*wiremux.Manager, error) {
	m, err := wiremux.NewManager(wiremux.Config{
		Registry:    chatproto.Registry(),
		Codec:       s.codec,
		Transmitter: t,
		Logger:      s.log,
	})
	if err != nil {
		return nil, err
	}

	if _, err := wiremux.ListenFor(m, func(p chatproto.Ping) {
		if err := m.Send(chatproto.Pong{Nonce: p.Nonce, At: time.Now().UTC()}); err != nil {
			s.log.Warn("send pong", "err", err)
		}
	}); err != nil {
		return nil, err
	}
	if _, err := wiremux.ListenFor(m, func(say chatproto.Say) {
		if err := m.Send(chatproto.Echo{ID: say.ID, Text: say.Text, Served: time.Now().UTC()}); err != nil {
			s.log.Warn("send echo", "err", err)
		}
	}); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.peers[m] = struct{}{}
	s.mu.Unlock()
	return m, nil
}

func (s *server) detach(m *wiremux.Manager) {
	s.mu.Lock()
	delete(s.peers, m)
	s.mu.Unlock()
}

// broadcastStatus sends one status frame to every connected peer.
func (s *server) broadcastStatus() {
	s.mu.Lock()
	peers := make([]*wiremux.Manager, 0, len(s.peers))
	for m := range s.peers {
		peers = append(peers, m)
	}
	s.mu.Unlock()

	status := chatproto.Status{
		Peers:  len(peers),
		Uptime: time.Since(s.start).Round(time.Second),
		At:     time.Now().UTC(),
	}
	for _, m := range peers {
		if err := m.Send(status); err != nil {
			s.log.Warn("send status", "err", err)
		}
	}
}
