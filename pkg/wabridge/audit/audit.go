// Package audit posts inbound and outbound chat messages to the message
// log webhook. Delivery is fire-and-forget: Log returns immediately and a
// failed post is only logged.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageType is the payload kind recorded in the log.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeAudio MessageType = "audio"
)

// SignatureHeader carries the shared webhook secret.
const SignatureHeader = "x-webhook-signature"

// Message is the logged message record.
type Message struct {
	MessageID          string      `json:"messageId"`
	RemoteJID          string      `json:"remoteJid"`
	FromMe             bool        `json:"fromMe"`
	Timestamp          int64       `json:"timestamp"`
	Type               MessageType `json:"type"`
	Text               string      `json:"text,omitempty"`
	AudioTranscription string      `json:"audioTranscription,omitempty"`
}

// Event is the webhook body.
type Event struct {
	Event   string  `json:"event"`
	Message Message `json:"message"`
}

// Config holds webhook settings.
type Config struct {
	URL     string        `yaml:"url"`
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
}

// Caller is the subset of the provider gateway used here.
type Caller interface {
	CallJSON(ctx context.Context, name, url string, payload, out any, timeout time.Duration, header http.Header) error
}

// Logger posts audit events in the background.
type Logger struct {
	cfg    Config
	gw     Caller
	now    func() time.Time
	logger *slog.Logger

	wg sync.WaitGroup
}

// New creates a Logger. An empty URL disables posting.
func New(cfg Config, gw Caller, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Logger{
		cfg:    cfg,
		gw:     gw,
		now:    time.Now,
		logger: logger.With("component", "audit"),
	}
}

// Inbound logs a message received from a chat. For audio the classified
// text (transcript or failure marker) is also recorded as the transcription.
// A missing id becomes msg_<unix millis>.
func (l *Logger) Inbound(messageID, chatJID string, typ MessageType, text string) {
	now := l.now()
	if messageID == "" {
		messageID = fmt.Sprintf("msg_%d", now.UnixMilli())
	}
	transcription := ""
	if typ == TypeAudio {
		transcription = text
	}
	l.Log(Message{
		MessageID:          messageID,
		RemoteJID:          chatJID,
		FromMe:             false,
		Timestamp:          now.Unix(),
		Type:               typ,
		Text:               text,
		AudioTranscription: transcription,
	})
}

// Outbound logs a reply sent by the bridge. A message id is generated.
func (l *Logger) Outbound(chatJID, text string) {
	l.Log(Message{
		MessageID: "out_" + uuid.NewString(),
		RemoteJID: chatJID,
		FromMe:    true,
		Timestamp: l.now().Unix(),
		Type:      TypeText,
		Text:      text,
	})
}

// Log posts msg without blocking the caller.
func (l *Logger) Log(msg Message) {
	if l == nil || l.cfg.URL == "" || l.gw == nil {
		return
	}

	header := make(http.Header)
	header.Set(SignatureHeader, l.cfg.Secret)
	ev := Event{Event: "message", Message: msg}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		// Detached from the request context: the reply path may finish first.
		err := l.gw.CallJSON(context.Background(), "audit", l.cfg.URL, ev, nil, l.cfg.Timeout, header)
		if err != nil {
			l.logger.Warn("audit webhook failed",
				"message_id", msg.MessageID, "from_me", msg.FromMe, "error", err)
		}
	}()
}

// Wait blocks until in-flight posts finish.
func (l *Logger) Wait() {
	if l != nil {
		l.wg.Wait()
	}
}

// Flush is Wait with an upper bound. It reports false when posts were
// still running at the deadline; those keep going in the background.
func (l *Logger) Flush(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		l.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
