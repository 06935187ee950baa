// Package whatsapp is the WhatsApp transport of the bridge, built on
// whatsmeow. It links as a companion device (QR login, session kept in
// SQLite), turns whatsmeow events into channels.IncomingMessage values and
// sends text, media, reactions and read receipts.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the session store.

	"github.com/jholhewres/wabridge/pkg/wabridge/channels"
)

// Config holds WhatsApp transport settings.
type Config struct {
	// SessionDir holds whatsapp.db when DatabasePath is empty.
	SessionDir string `yaml:"session_dir"`

	// DatabasePath overrides the session database location.
	DatabasePath string `yaml:"database_path"`

	// DeviceName is shown in the phone's linked devices list.
	DeviceName string `yaml:"device_name"`

	// Trigger marks a group message as addressed to the bot when it appears
	// in the text (e.g. "@assistant"). Mentions of the bot's own number
	// always count.
	Trigger string `yaml:"trigger"`

	RespondToGroups bool `yaml:"respond_to_groups"`
	RespondToDMs    bool `yaml:"respond_to_dms"`

	// MaxMediaSizeMB bounds inbound media downloads.
	MaxMediaSizeMB int `yaml:"max_media_size_mb"`

	ReconnectBackoff     time.Duration `yaml:"reconnect_backoff"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`

	HealthMonitor HealthMonitorConfig `yaml:"health_monitor"`
}

// DefaultConfig returns the default transport settings.
func DefaultConfig() Config {
	return Config{
		SessionDir:           "./sessions/whatsapp",
		DeviceName:           "wabridge",
		RespondToGroups:      true,
		RespondToDMs:         true,
		MaxMediaSizeMB:       16,
		ReconnectBackoff:     5 * time.Second,
		MaxReconnectAttempts: 10,
		HealthMonitor:        DefaultHealthMonitorConfig(),
	}
}

// QREvent is a login QR update delivered to observers.
type QREvent struct {
	// Type is "code", "success", "timeout" or "error".
	Type    string    `json:"type"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// WhatsApp implements channels.MediaChannel, channels.ReceiptChannel and
// channels.ReactionChannel.
type WhatsApp struct {
	cfg    Config
	client *whatsmeow.Client
	logger *slog.Logger

	messages       chan *channels.IncomingMessage
	messagesClosed atomic.Bool

	connected         atomic.Bool
	state             atomic.Value // ConnectionState
	lastMsg           atomic.Value // time.Time
	errorCount        atomic.Int64
	reconnectAttempts atomic.Int32
	reconnectGuard    atomic.Bool

	qrMu        sync.Mutex
	qrObservers []chan QREvent
	lastQR      *QREvent

	// senders remembers who sent recent messages so reactions and receipts
	// in groups can name the participant.
	senders *senderCache

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a WhatsApp transport. Connect starts it.
func New(cfg Config, logger *slog.Logger) *WhatsApp {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 5 * time.Second
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = "wabridge"
	}
	w := &WhatsApp{
		cfg:      cfg,
		logger:   logger.With("component", "whatsapp"),
		messages: make(chan *channels.IncomingMessage, 256),
		senders:  newSenderCache(512),
		ctx:      context.Background(),
	}
	w.setState(StateDisconnected)
	return w
}

func (w *WhatsApp) getState() ConnectionState {
	if v, ok := w.state.Load().(ConnectionState); ok {
		return v
	}
	return StateDisconnected
}

func (w *WhatsApp) setState(s ConnectionState) { w.state.Store(s) }

// State returns the current connection state.
func (w *WhatsApp) State() ConnectionState { return w.getState() }

// ownJID returns the linked account's JID, or "" before login.
func (w *WhatsApp) ownJID() string {
	if w.client != nil && w.client.Store.ID != nil {
		return w.client.Store.ID.String()
	}
	return ""
}

// SubscribeQR registers an observer for login QR events. The most recent
// unexpired code is replayed to late subscribers.
func (w *WhatsApp) SubscribeQR() (<-chan QREvent, func()) {
	ch := make(chan QREvent, 8)

	w.qrMu.Lock()
	w.qrObservers = append(w.qrObservers, ch)
	if w.lastQR != nil {
		ch <- *w.lastQR
	}
	w.qrMu.Unlock()

	return ch, func() {
		w.qrMu.Lock()
		defer w.qrMu.Unlock()
		for i, obs := range w.qrObservers {
			if obs == ch {
				w.qrObservers = append(w.qrObservers[:i], w.qrObservers[i+1:]...)
				close(ch)
				return
			}
		}
	}
}

// LastQR returns the pending QR code, if any.
func (w *WhatsApp) LastQR() (QREvent, bool) {
	w.qrMu.Lock()
	defer w.qrMu.Unlock()
	if w.lastQR == nil {
		return QREvent{}, false
	}
	return *w.lastQR, true
}

func (w *WhatsApp) notifyQR(evt QREvent) {
	evt.At = time.Now()

	w.qrMu.Lock()
	defer w.qrMu.Unlock()

	if evt.Type == "code" {
		w.lastQR = &evt
	} else {
		w.lastQR = nil
	}
	for _, ch := range w.qrObservers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Name returns "whatsapp".
func (w *WhatsApp) Name() string { return "whatsapp" }

// Connect opens the session store and connects. Without a stored session the
// QR login runs in the background and Connect returns immediately.
func (w *WhatsApp) Connect(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.setState(StateConnecting)

	dbPath := w.cfg.DatabasePath
	if dbPath == "" {
		dbPath = strings.TrimRight(w.cfg.SessionDir, "/") + "/whatsapp.db"
	}
	w.logger.Info("opening session store", "path", dbPath)

	container, err := sqlstore.New(w.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", dbPath),
		waLog.Noop)
	if err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("creating session store: %w", err)
	}

	device, err := container.GetFirstDevice(w.ctx)
	if err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("getting device: %w", err)
	}

	store.SetOSInfo(w.cfg.DeviceName, [3]uint32{1, 0, 0})

	w.client = whatsmeow.NewClient(device, waLog.Noop)
	w.client.AddEventHandler(w.handleEvent)
	w.client.EnableAutoReconnect = true

	if w.client.Store.ID == nil {
		w.setState(StateWaitingQR)
		w.logger.Info("no stored session, waiting for QR login")
		go func() {
			if err := w.loginWithQR(w.ctx); err != nil {
				w.logger.Warn("QR login did not complete", "error", err)
			}
		}()
		return nil
	}

	if err := w.client.Connect(); err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("connecting: %w", err)
	}
	w.connected.Store(true)
	w.logger.Info("connected with stored session", "jid", w.ownJID())

	w.StartHealthMonitor(w.ctx, w.cfg.HealthMonitor)
	return nil
}

// Disconnect closes the connection and the inbound stream.
func (w *WhatsApp) Disconnect() error {
	w.setState(StateDisconnected)
	w.connected.Store(false)

	if w.cancel != nil {
		w.cancel()
	}
	if w.client != nil {
		w.client.Disconnect()
	}
	if w.messagesClosed.CompareAndSwap(false, true) {
		close(w.messages)
	}
	w.logger.Info("disconnected")
	return nil
}

// Logout unlinks the device and deletes the stored session.
func (w *WhatsApp) Logout(ctx context.Context) error {
	if w.client == nil {
		return nil
	}
	w.setState(StateLoggingOut)
	w.connected.Store(false)

	if err := w.client.Logout(ctx); err != nil {
		w.logger.Warn("logout failed, deleting local session", "error", err)
		w.client.Disconnect()
		if delErr := w.client.Store.Delete(ctx); delErr != nil {
			return fmt.Errorf("deleting session: %w", delErr)
		}
	}
	w.setState(StateDisconnected)
	return nil
}

func (w *WhatsApp) loginWithQR(ctx context.Context) error {
	qrChan, err := w.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("getting QR channel: %w", err)
	}
	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connecting for QR: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.setState(StateDisconnected)
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return fmt.Errorf("QR channel closed")
			}
			switch evt.Event {
			case "code":
				w.setState(StateWaitingQR)
				w.logger.Info("QR code ready, scan it with WhatsApp > Linked devices")
				w.notifyQR(QREvent{Type: "code", Code: evt.Code})
			case "success":
				w.connected.Store(true)
				w.reconnectAttempts.Store(0)
				w.setState(StateConnected)
				w.logger.Info("device linked")
				w.notifyQR(QREvent{Type: "success", Message: "linked"})
				w.StartHealthMonitor(w.ctx, w.cfg.HealthMonitor)
				return nil
			case "timeout":
				w.setState(StateDisconnected)
				w.notifyQR(QREvent{Type: "timeout", Message: "QR code expired"})
				return fmt.Errorf("QR code timeout")
			default:
				if evt.Error != nil {
					w.setState(StateDisconnected)
					w.notifyQR(QREvent{Type: "error", Message: evt.Error.Error()})
					return fmt.Errorf("QR login: %w", evt.Error)
				}
			}
		}
	}
}

// attemptReconnect retries with linear backoff capped at five minutes.
func (w *WhatsApp) attemptReconnect() {
	if !w.reconnectGuard.CompareAndSwap(false, true) {
		return
	}
	defer w.reconnectGuard.Store(false)

	w.setState(StateReconnecting)
	for {
		if w.ctx.Err() != nil || w.client == nil {
			return
		}
		attempt := w.reconnectAttempts.Add(1)
		if w.cfg.MaxReconnectAttempts > 0 && attempt > int32(w.cfg.MaxReconnectAttempts) {
			w.logger.Error("giving up reconnecting", "attempts", attempt-1)
			w.setState(StateDisconnected)
			return
		}

		backoff := min(w.cfg.ReconnectBackoff*time.Duration(attempt), 5*time.Minute)
		w.logger.Info("reconnecting", "attempt", attempt, "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-w.ctx.Done():
			return
		}

		if w.client.IsConnected() {
			w.client.Disconnect()
		}
		if err := w.client.Connect(); err != nil {
			w.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
			continue
		}
		// handleConnected flips state once the server confirms.
		return
	}
}

// Send delivers a text message.
func (w *WhatsApp) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error {
	if !w.connected.Load() {
		return channels.ErrChannelDisconnected
	}
	jid, err := parseJID(to)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", to, err)
	}

	var quotedSender string
	if msg.ReplyTo != "" {
		quotedSender, _ = w.senders.get(msg.ReplyTo)
	}
	if _, err := w.client.SendMessage(ctx, jid, buildTextMessage(msg.Content, msg.ReplyTo, quotedSender)); err != nil {
		w.errorCount.Add(1)
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Receive returns the inbound stream.
func (w *WhatsApp) Receive() <-chan *channels.IncomingMessage { return w.messages }

// IsConnected reports whether the session is connected.
func (w *WhatsApp) IsConnected() bool { return w.connected.Load() }

// NeedsQR reports whether the device still has to be linked.
func (w *WhatsApp) NeedsQR() bool {
	return w.client != nil && w.client.Store.ID == nil && !w.connected.Load()
}

// Health returns connection details.
func (w *WhatsApp) Health() channels.HealthStatus {
	h := channels.HealthStatus{
		Connected:  w.connected.Load(),
		ErrorCount: int(w.errorCount.Load()),
		Details: map[string]any{
			"state":              string(w.getState()),
			"reconnect_attempts": w.reconnectAttempts.Load(),
		},
	}
	if t, ok := w.lastMsg.Load().(time.Time); ok {
		h.LastMessageAt = t
	}
	if jid := w.ownJID(); jid != "" {
		h.Details["jid"] = jid
	}
	return h
}

// SendMedia uploads and sends an image, audio clip, video or document.
func (w *WhatsApp) SendMedia(ctx context.Context, to string, media *channels.MediaMessage) error {
	if !w.connected.Load() {
		return channels.ErrChannelDisconnected
	}
	jid, err := parseJID(to)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", to, err)
	}

	waMsg, err := w.buildMediaMessage(ctx, media)
	if err != nil {
		return fmt.Errorf("building media message: %w", err)
	}
	if _, err := w.client.SendMessage(ctx, jid, waMsg); err != nil {
		w.errorCount.Add(1)
		return fmt.Errorf("sending media: %w", err)
	}
	return nil
}

// DownloadMedia fetches and decrypts an inbound attachment.
func (w *WhatsApp) DownloadMedia(ctx context.Context, msg *channels.IncomingMessage) ([]byte, string, error) {
	if msg.Media == nil {
		return nil, "", fmt.Errorf("message has no media")
	}
	if w.client == nil {
		return nil, "", channels.ErrChannelDisconnected
	}
	return w.downloadMedia(ctx, msg.Media)
}

// MarkRead sends read receipts for messages in a chat.
func (w *WhatsApp) MarkRead(ctx context.Context, chatID string, messageIDs []string) error {
	if !w.connected.Load() || len(messageIDs) == 0 {
		return nil
	}
	chat, err := parseJID(chatID)
	if err != nil {
		return err
	}
	sender := chat
	if s, ok := w.senders.get(messageIDs[0]); ok {
		if jid, err := types.ParseJID(s); err == nil {
			sender = jid
		}
	}

	ids := make([]types.MessageID, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = types.MessageID(id)
	}
	return w.client.MarkRead(ctx, ids, time.Now(), chat, sender)
}

// SendReaction reacts to a message with an emoji ("" removes it).
func (w *WhatsApp) SendReaction(ctx context.Context, chatID, messageID, emoji string) error {
	if !w.connected.Load() {
		return channels.ErrChannelDisconnected
	}
	chat, err := parseJID(chatID)
	if err != nil {
		return err
	}
	sender := chat
	if s, ok := w.senders.get(messageID); ok {
		if jid, err := types.ParseJID(s); err == nil {
			sender = jid
		}
	}
	_, err = w.client.SendMessage(ctx, chat, w.client.BuildReaction(chat, sender, types.MessageID(messageID), emoji))
	return err
}

// emitMessage hands an inbound message to the Receive stream.
func (w *WhatsApp) emitMessage(msg *channels.IncomingMessage) {
	if w.messagesClosed.Load() {
		return
	}
	select {
	case w.messages <- msg:
		w.lastMsg.Store(time.Now())
	case <-w.ctx.Done():
	default:
		w.logger.Warn("inbound queue full, dropping message", "from", msg.From, "type", msg.Type)
	}
}

// senderCache is a bounded FIFO map of message id to sender JID.
type senderCache struct {
	mu    sync.Mutex
	limit int
	order []string
	byID  map[string]string
}

func newSenderCache(limit int) *senderCache {
	return &senderCache{limit: limit, byID: make(map[string]string, limit)}
}

func (c *senderCache) put(id, sender string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[id]; ok {
		c.byID[id] = sender
		return
	}
	c.byID[id] = sender
	c.order = append(c.order, id)
	if len(c.order) > c.limit {
		delete(c.byID, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *senderCache) get(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byID[id]
	return s, ok
}
