package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wiremux/wiremux"
	"github.com/wiremux/wiremux/codec"
	"github.com/wiremux/wiremux/internal/chatproto"
	"github.com/wiremux/wiremux/internal/config"
	"github.com/wiremux/wiremux/internal/logging"
	"github.com/wiremux/wiremux/transport/stream"
	"github.com/wiremux/wiremux/transport/ws"
)

const defaultChatPrompt = "you> "

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Connect to a server and chat interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runChat(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runChat(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	c, err := codec.ForName(cfg.Codec.Name)
	if err != nil {
		return err
	}
	endpoint, err := dialServer(ctx, cfg, c)
	if err != nil {
		return err
	}

	manager, err := wiremux.NewManager(wiremux.Config{
		Registry:    chatproto.Registry(),
		Codec:       c,
		Transmitter: endpoint,
		Logger:      logging.Logger(),
	})
	if err != nil {
		endpoint.Close()
		return err
	}

	client := &chatClient{
		manager: manager,
		timeout: cfg.Chat.ReplyTimeout,
		out:     out,
	}
	if err := client.subscribe(); err != nil {
		endpoint.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- endpoint.Run(runCtx, manager) }()

	replErr := runChatREPL(runCtx, client, in, out, cfg.Chat.HistoryLimit)

	cancel()
	if err := <-runDone; err != nil && replErr == nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("connection: %w", err)
	}
	return replErr
}

func dialServer(ctx context.Context, cfg *config.Config, c wiremux.Codec) (peerEndpoint, error) {
	if cfg.Chat.Transport == config.TransportWS {
		endpoint, err := ws.Dial(ctx, cfg.Chat.Endpoint(), codec.IsBinary(c))
		if err != nil {
			return nil, err
		}
		return endpoint, nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.Chat.Server)
	if err != nil {
		return nil, fmt.Errorf("dial %q: %w", cfg.Chat.Server, err)
	}
	return stream.New(conn), nil
}

// chatClient owns the REPL side of one connection.
type chatClient struct {
	manager *wiremux.Manager
	timeout time.Duration

	outMu sync.Mutex
	out   io.Writer
}

// subscribe registers the print listeners before the transport starts so no
// early frame is missed. Pongs claimed by a /ping awaiter never reach the
// pong listener; it only sees the unsolicited ones.
func (c *chatClient) subscribe() error {
	if _, err := wiremux.ListenFor(c.manager, func(e chatproto.Echo) {
		c.meta(fmt.Sprintf("echo> %s (id=%s served=%s)", e.Text, e.ID, e.Served.Format(time.RFC3339)))
	}); err != nil {
		return err
	}
	if _, err := wiremux.ListenFor(c.manager, func(st chatproto.Status) {
		c.meta(fmt.Sprintf("status> peers=%d uptime=%s", st.Peers, st.Uptime))
	}); err != nil {
		return err
	}
	if _, err := wiremux.ListenFor(c.manager, func(p chatproto.Pong) {
		c.meta(fmt.Sprintf("pong> nonce=%s (unsolicited)", p.Nonce))
	}); err != nil {
		return err
	}
	return nil
}

func (c *chatClient) meta(text string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, text)
}

// say ships one line of chat text. The echoed reply is printed by the echo
// listener when it arrives.
func (c *chatClient) say(text string) error {
	return c.manager.Send(chatproto.Say{ID: chatproto.NewNonce(), Text: text})
}

func (c *chatClient) command(ctx context.Context, input string) error {
	tokens, err := shlex.Split(strings.TrimSpace(input))
	if err != nil {
		return fmt.Errorf("parse command: %w", err)
	}
	if len(tokens) == 0 {
		return errors.New("empty command")
	}

	switch tokens[0] {
	case "/help":
		c.meta("Commands: /ping, /await <channel>, /quit")
		return nil
	case "/ping":
		return c.ping(ctx)
	case "/await":
		if len(tokens) < 2 {
			return errors.New("usage: /await <channel>")
		}
		return c.await(ctx, tokens[1])
	default:
		return fmt.Errorf("unknown command %q (try /help)", tokens[0])
	}
}

// ping measures a round trip. The awaiter is registered before the probe is
// sent so a fast reply cannot slip past it.
func (c *chatClient) ping(ctx context.Context) error {
	nonce := chatproto.NewNonce()
	reply, err := wiremux.AwaitNextOf(c.manager, func(p chatproto.Pong) bool {
		return p.Nonce == nonce
	})
	if err != nil {
		return err
	}

	start := time.Now()
	if err := c.manager.Send(chatproto.Ping{Nonce: nonce}); err != nil {
		reply.Cancel()
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	pong, err := reply.Wait(waitCtx)
	if err != nil {
		return fmt.Errorf("await pong: %w", err)
	}
	c.meta(fmt.Sprintf("pong> nonce=%s rtt=%s", pong.Nonce, time.Since(start).Round(time.Microsecond)))
	return nil
}

// await blocks until the next message on channel arrives or the reply
// timeout passes.
func (c *chatClient) await(ctx context.Context, channel string) error {
	pending := c.manager.AwaitNext(channel, nil)
	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	msg, err := pending.Wait(waitCtx)
	if err != nil {
		return fmt.Errorf("await %q: %w", channel, err)
	}
	c.meta(fmt.Sprintf("%s> %+v", channel, msg))
	return nil
}

type chatChannel interface {
	Read(ctx context.Context) (string, error)
}

type readlineChatChannel struct {
	rl *readline.Instance
}

func newReadlineChatChannel(in io.Reader, out io.Writer, historyLimit int) (*readlineChatChannel, error) {
	stdin, ok := in.(io.ReadCloser)
	if !ok {
		return nil, errors.New("stdin is not read-closer")
	}
	inFile, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(inFile.Fd())) {
		return nil, errors.New("stdin is not terminal")
	}
	outFile, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(outFile.Fd())) {
		return nil, errors.New("stdout is not terminal")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          defaultChatPrompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".wiremux_history"),
		HistoryLimit:    historyLimit,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           stdin,
		Stdout:          out,
		Stderr:          out,
	})
	if err != nil {
		return nil, err
	}
	return &readlineChatChannel{rl: rl}, nil
}

func (c *readlineChatChannel) Read(_ context.Context) (string, error) {
	line, err := c.rl.Readline()
	if err != nil {
		if err == readline.ErrInterrupt || err == io.EOF {
			return "", io.EOF
		}
		return "", err
	}
	return line, nil
}

func (c *readlineChatChannel) Close() error {
	return c.rl.Close()
}

type stdioChatChannel struct {
	in     *bufio.Reader
	out    io.Writer
	prompt string
}

func newStdioChatChannel(in io.Reader, out io.Writer) *stdioChatChannel {
	return &stdioChatChannel{
		in:     bufio.NewReader(in),
		out:    out,
		prompt: defaultChatPrompt,
	}
}

func (c *stdioChatChannel) Read(_ context.Context) (string, error) {
	if _, err := fmt.Fprint(c.out, c.prompt); err != nil {
		return "", err
	}
	line, err := c.in.ReadString('\n')
	if err != nil {
		if len(line) > 0 {
			return line, nil
		}
		return "", err
	}
	return line, nil
}

func runChatREPL(ctx context.Context, client *chatClient, in io.Reader, out io.Writer, historyLimit int) error {
	var channel chatChannel
	readlineChannel, err := newReadlineChatChannel(in, out, historyLimit)
	if err == nil {
		channel = readlineChannel
	}
	if channel == nil {
		channel = newStdioChatChannel(in, out)
	}
	if closer, ok := channel.(io.Closer); ok {
		defer closer.Close()
	}

	client.meta("Connected. Type /help for commands, /quit to leave.")

	for {
		raw, err := channel.Read(ctx)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		input := strings.TrimSpace(raw)
		if input == "" {
			continue
		}
		switch strings.ToLower(input) {
		case "/quit", "quit", "/exit", "exit":
			return nil
		}

		if strings.HasPrefix(input, "/") {
			if err := client.command(ctx, input); err != nil {
				client.meta(fmt.Sprintf("error: %v", err))
			}
			continue
		}

		if err := client.say(input); err != nil {
			client.meta(fmt.Sprintf("error: %v", err))
		}
	}
}
