// Package console is a local transport for operators: every line typed at
// the prompt arrives as a direct message from the configured identity and
// replies are printed to the terminal.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/jholhewres/wabridge/pkg/wabridge/channels"
)

// ChatID is the chat every console message belongs to.
const ChatID = "console"

// Config holds console settings.
type Config struct {
	// Identity is the sender id attached to typed lines (usually the owner).
	Identity string
	Name     string

	Prompt      string
	HistoryFile string
}

// Console implements channels.MediaChannel, ReceiptChannel and
// ReactionChannel on a readline terminal.
type Console struct {
	cfg    Config
	logger *slog.Logger

	rl        *readline.Instance
	out       io.Writer
	messages  chan *channels.IncomingMessage
	done      chan struct{}
	connected atomic.Bool
	lastMsg   atomic.Value // time.Time
	closeOnce sync.Once
	outMu     sync.Mutex
}

// New creates a Console. Connect opens the terminal.
func New(cfg Config, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prompt == "" {
		cfg.Prompt = "you> "
	}
	if cfg.Name == "" {
		cfg.Name = "operator"
	}
	return &Console{
		cfg:      cfg,
		logger:   logger.With("component", "console"),
		messages: make(chan *channels.IncomingMessage, 16),
		done:     make(chan struct{}),
	}
}

// Name returns "console".
func (c *Console) Name() string { return "console" }

// Connect opens the readline prompt and starts reading lines.
func (c *Console) Connect(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.cfg.Prompt,
		HistoryFile:     c.cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("opening console: %w", err)
	}
	c.rl = rl
	c.out = rl.Stdout()
	c.connected.Store(true)

	go c.readLoop(ctx)
	return nil
}

func (c *Console) readLoop(ctx context.Context) {
	defer c.closeMessages()
	for {
		line, err := c.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return
			}
			continue
		}
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}

		msg := c.lineToMessage(line)
		select {
		case c.messages <- msg:
			c.lastMsg.Store(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// lineToMessage wraps a typed line as an inbound text message.
func (c *Console) lineToMessage(line string) *channels.IncomingMessage {
	return &channels.IncomingMessage{
		ID:        uuid.NewString(),
		Channel:   c.Name(),
		From:      c.cfg.Identity,
		FromName:  c.cfg.Name,
		ChatID:    ChatID,
		Type:      channels.MessageText,
		Text:      line,
		Timestamp: time.Now(),
	}
}

func (c *Console) closeMessages() {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.messages)
		close(c.done)
	})
}

// Done is closed once the operator leaves the prompt.
func (c *Console) Done() <-chan struct{} { return c.done }

// Disconnect closes the prompt.
func (c *Console) Disconnect() error {
	c.connected.Store(false)
	if c.rl != nil {
		return c.rl.Close()
	}
	return nil
}

// Send prints a reply.
func (c *Console) Send(_ context.Context, to string, msg *channels.OutgoingMessage) error {
	if to != ChatID {
		c.printf("[to %s] %s\n", to, msg.Content)
		return nil
	}
	c.printf("bot> %s\n", msg.Content)
	return nil
}

// SendMedia prints a placeholder for media.
func (c *Console) SendMedia(_ context.Context, _ string, media *channels.MediaMessage) error {
	kind := string(media.Type)
	if media.Voice {
		kind = "voice"
	}
	c.printf("bot> [%s, %d bytes] %s\n", kind, len(media.Data), media.Caption)
	return nil
}

// DownloadMedia is unsupported: the console only produces text.
func (c *Console) DownloadMedia(context.Context, *channels.IncomingMessage) ([]byte, string, error) {
	return nil, "", channels.ErrMediaNotSupported
}

// MarkRead is a no-op.
func (c *Console) MarkRead(context.Context, string, []string) error { return nil }

// SendReaction shows the reaction inline.
func (c *Console) SendReaction(_ context.Context, _, _, emoji string) error {
	if emoji != "" {
		c.printf("      %s\n", emoji)
	}
	return nil
}

// Receive returns the typed lines.
func (c *Console) Receive() <-chan *channels.IncomingMessage { return c.messages }

// IsConnected reports whether the prompt is open.
func (c *Console) IsConnected() bool { return c.connected.Load() }

// Health reports the prompt state.
func (c *Console) Health() channels.HealthStatus {
	h := channels.HealthStatus{Connected: c.connected.Load()}
	if t, ok := c.lastMsg.Load().(time.Time); ok {
		h.LastMessageAt = t
	}
	return h
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if c.out == nil {
		return
	}
	fmt.Fprintf(c.out, format, args...)
	if c.rl != nil {
		c.rl.Refresh()
	}
}
