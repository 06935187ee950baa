// Package bridge is the inbound-message orchestrator of wabridge.
//
// Every message is classified into text, checked against the access
// rules, then either dispatched as a slash command or answered by the AI
// backend. Messages of one chat are handled in arrival order; different
// chats run concurrently. A per-chat lock also serializes proactive
// check-ins with inbound traffic of the same chat.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jholhewres/wabridge/pkg/wabridge/aichat"
	"github.com/jholhewres/wabridge/pkg/wabridge/audit"
	"github.com/jholhewres/wabridge/pkg/wabridge/channels"
	"github.com/jholhewres/wabridge/pkg/wabridge/conversation"
	"github.com/jholhewres/wabridge/pkg/wabridge/media"
	"github.com/jholhewres/wabridge/pkg/wabridge/provider"
	"github.com/jholhewres/wabridge/pkg/wabridge/transcribe"
	"github.com/jholhewres/wabridge/pkg/wabridge/tts"
)

// Reaction markers.
const (
	reactThinking = "🤔"
	reactSuccess  = "✅"
	reactFailure  = "❌"
)

// Outbound is the transport surface the bridge talks to. channels.Manager
// implements it.
type Outbound interface {
	Send(ctx context.Context, channel, to string, msg *channels.OutgoingMessage) error
	SendMedia(ctx context.Context, channel, to string, media *channels.MediaMessage) error
	SendReaction(ctx context.Context, channel, chatID, messageID, emoji string) error
	MarkRead(ctx context.Context, channel, chatID string, messageIDs []string) error
	DownloadMedia(ctx context.Context, msg *channels.IncomingMessage) ([]byte, string, error)
	IsConnected(channel string) bool
}

// Chat asks the AI backend.
type Chat interface {
	Ask(ctx context.Context, turns []aichat.Turn, systemPrompt string, enableTools bool) (string, error)
}

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, bool)
}

// Speaker turns text into audio.
type Speaker interface {
	Speak(ctx context.Context, text string) ([]byte, bool)
}

// MediaService covers generation and contact lookup.
type MediaService interface {
	Image(ctx context.Context, prompt string) (string, error)
	Music(ctx context.Context, prompt string) (*media.Track, error)
	Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error)
	ResolveContact(ctx context.Context, identifier string) (*media.Contact, error)
}

// Auditor records messages in the audit log without blocking.
type Auditor interface {
	Inbound(messageID, chatJID string, typ audit.MessageType, text string)
	Outbound(chatJID, text string)
	// Flush waits up to timeout for pending records and reports whether
	// they all finished.
	Flush(timeout time.Duration) bool
}

// Option customises a Bridge.
type Option func(*Bridge)

// WithChat replaces the AI backend client.
func WithChat(c Chat) Option { return func(b *Bridge) { b.chat = c } }

// WithTranscriber replaces the transcription chain.
func WithTranscriber(t Transcriber) Option { return func(b *Bridge) { b.transcriber = t } }

// WithSpeaker replaces the voice pipeline.
func WithSpeaker(s Speaker) Option { return func(b *Bridge) { b.speaker = s } }

// WithMedia replaces the media client.
func WithMedia(m MediaService) Option { return func(b *Bridge) { b.media = m } }

// WithAuditor replaces the audit logger.
func WithAuditor(a Auditor) Option { return func(b *Bridge) { b.audit = a } }

// WithClock replaces time.Now for the bridge and its conversation store.
func WithClock(now func() time.Time) Option { return func(b *Bridge) { b.now = now } }

type handlerFunc func(ctx context.Context, req *request) string

// request is a validated command invocation.
type request struct {
	msg   *channels.IncomingMessage
	cmd   *Command
	args  string
	level AccessLevel
}

// senderName is the display name used in prompts.
func (r *request) senderName() string {
	if r.msg.FromName != "" {
		return r.msg.FromName
	}
	return normalizeID(r.msg.From)
}

// Bridge is the orchestrator.
type Bridge struct {
	cfg    *Config
	out    Outbound
	logger *slog.Logger
	now    func() time.Time

	access     *AccessResolver
	store      *conversation.Store
	objectives *ObjectiveQueue
	proactive  *ProactiveScheduler

	chat        Chat
	transcriber Transcriber
	speaker     Speaker
	media       MediaService
	audit       Auditor

	handlers [handlerCount]handlerFunc

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	queuesMu sync.Mutex
	queues   map[string]chan *channels.IncomingMessage
	stopped  bool

	quit     chan struct{}
	stopOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Bridge. Collaborators not replaced by options are built
// from cfg on a shared provider gateway.
func New(cfg *Config, out Outbound, logger *slog.Logger, opts ...Option) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		cfg:    cfg,
		out:    out,
		logger: logger.With("component", "bridge"),
		now:    time.Now,
		access: NewAccessResolver(cfg.Owner, cfg.AllowedNumbers),
		locks:  make(map[string]*sync.Mutex),
		queues: make(map[string]chan *channels.IncomingMessage),
		quit:   make(chan struct{}),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(b)
	}

	gw := provider.New(provider.Config{}, logger)
	if b.chat == nil {
		b.chat = aichat.New(cfg.ChatConfig(), gw, logger)
	}
	if b.transcriber == nil {
		b.transcriber = transcribe.New(cfg.TranscriptionConfig(), gw, logger)
	}
	if b.speaker == nil {
		primaryURL, fallbackURL := cfg.TTSURLs()
		b.speaker = tts.NewPipeline(cfg.TTS,
			tts.NewHTTPProvider("elevenlabs", primaryURL, 0, cfg.TTS.Timeout, gw),
			map[string]tts.Provider{
				"openai": tts.NewHTTPProvider("openai", fallbackURL, cfg.TTS.FallbackSpeed, cfg.TTS.Timeout, gw),
			}, logger)
	}
	if b.media == nil {
		b.media = media.New(cfg.MediaConfig(), gw, logger)
	}
	if b.audit == nil {
		b.audit = audit.New(cfg.AuditConfig(), gw, logger)
	}

	b.store = conversation.NewStore(cfg.Context, logger, conversation.WithClock(b.now))
	b.objectives = NewObjectiveQueue(b.now)
	b.proactive = NewProactiveScheduler(cfg.Proactive.DefaultInterval, b.proactiveTick, logger)
	b.handlers = b.handlerTable()
	return b
}

// Start starts the scheduler (context sweep and proactive timers).
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)
	if err := b.proactive.AddSweep(b.store.Config().SweepInterval, func() { b.store.SweepExpired() }); err != nil {
		return err
	}
	b.proactive.Start()
	b.logger.Info("bridge started",
		"name", b.cfg.Name,
		"open_mode", b.access.Open(),
		"auto_reply", b.cfg.AutoReply,
	)
	return nil
}

const auditFlushTimeout = 5 * time.Second

// Stop stops the scheduler, answers the messages already queued and then
// waits a bounded time for pending audit posts. Messages arriving after
// Stop are dropped.
func (b *Bridge) Stop() {
	b.proactive.Stop()
	b.stopOnce.Do(func() {
		b.queuesMu.Lock()
		b.stopped = true
		b.queuesMu.Unlock()
		close(b.quit)
	})
	b.wg.Wait()
	if b.cancel != nil {
		b.cancel()
	}
	if !b.audit.Flush(auditFlushTimeout) {
		b.logger.Warn("audit posts still pending at shutdown", "waited", auditFlushTimeout)
	}
	b.logger.Info("bridge stopped")
}

// Run consumes msgs until the channel closes or ctx ends. Each chat gets
// its own worker so that its messages stay ordered.
func (b *Bridge) Run(ctx context.Context, msgs <-chan *channels.IncomingMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if msg == nil || msg.ChatID == "" {
				continue
			}
			b.enqueue(ctx, msg)
		}
	}
}

const chatQueueSize = 64

func (b *Bridge) enqueue(ctx context.Context, msg *channels.IncomingMessage) {
	b.queuesMu.Lock()
	defer b.queuesMu.Unlock()
	if b.stopped {
		b.logger.Debug("bridge stopping, message dropped", "chat", msg.ChatID, "id", msg.ID)
		return
	}

	q, ok := b.queues[msg.ChatID]
	if !ok {
		q = make(chan *channels.IncomingMessage, chatQueueSize)
		b.queues[msg.ChatID] = q
		b.wg.Add(1)
		go b.drain(ctx, msg.ChatID, q)
	}
	select {
	case q <- msg:
	case <-ctx.Done():
	case <-b.quit:
	}
}

// drain handles one chat's queue and exits after a quiet period, or once
// the queue is empty after Stop.
func (b *Bridge) drain(ctx context.Context, chatID string, q chan *channels.IncomingMessage) {
	defer b.wg.Done()
	const idle = 2 * time.Minute
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.quit:
			for {
				select {
				case msg := <-q:
					b.HandleMessage(ctx, msg)
				default:
					return
				}
			}
		case msg := <-q:
			b.HandleMessage(ctx, msg)
			timer.Reset(idle)
		case <-timer.C:
			// enqueue holds queuesMu while sending; never block on it here.
			if !b.queuesMu.TryLock() {
				timer.Reset(time.Second)
				continue
			}
			if len(q) > 0 {
				b.queuesMu.Unlock()
				timer.Reset(idle)
				continue
			}
			delete(b.queues, chatID)
			b.queuesMu.Unlock()
			return
		}
	}
}

// lockChat serializes work on one chat.
func (b *Bridge) lockChat(chatID string) func() {
	b.locksMu.Lock()
	mu, ok := b.locks[chatID]
	if !ok {
		mu = &sync.Mutex{}
		b.locks[chatID] = mu
	}
	b.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// HandleMessage runs the whole pipeline for one inbound message. It never
// panics and never returns an error: every failure ends as a log line or a
// chat reply.
func (b *Bridge) HandleMessage(ctx context.Context, msg *channels.IncomingMessage) {
	if msg == nil || msg.ChatID == "" {
		return
	}
	unlock := b.lockChat(msg.ChatID)
	defer unlock()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic handling message",
				"chat", msg.ChatID, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	level := b.access.Resolve(msg.From)
	if !b.access.Admits(level) {
		b.logger.Info("ignoring message from non-allowed sender", "sender", normalizeID(msg.From))
		return
	}

	in := b.classify(ctx, msg)
	if in.Text == "" {
		b.logger.Debug("no text content", "chat", msg.ChatID, "type", msg.Type)
		return
	}
	b.logger.Info("message received",
		"chat", msg.ChatID, "sender", msg.FromName, "level", level.String(), "preview", preview(in.Text, 100))

	typ := audit.TypeText
	if in.Voice {
		typ = audit.TypeAudio
	}
	b.audit.Inbound(msg.ID, msg.ChatID, typ, in.Text)

	if msg.ID != "" {
		if err := b.out.MarkRead(ctx, msg.Channel, msg.ChatID, []string{msg.ID}); err != nil {
			b.logger.Debug("read receipt failed", "error", err)
		}
	}

	if b.dispatch(ctx, msg, in.Text, level) {
		return
	}

	if !b.cfg.AutoReply {
		b.logger.Debug("auto-reply disabled, skipping", "chat", msg.ChatID)
		return
	}
	if msg.IsGroup && !msg.Mentioned {
		b.logger.Debug("not mentioned in group, skipping", "chat", msg.ChatID)
		return
	}

	b.answer(ctx, msg, in.Text)
}

// answer is the free-form chat path.
func (b *Bridge) answer(ctx context.Context, msg *channels.IncomingMessage, text string) {
	b.react(ctx, msg, reactThinking)

	conv := b.store.Get(msg.ChatID)
	conv.AppendUserTurn(text)

	name := msg.FromName
	if name == "" {
		name = normalizeID(msg.From)
	}
	reply, err := b.chat.Ask(ctx, conv.Turns(), b.systemPrompt(name), false)
	if err != nil {
		b.logger.Warn("AI call failed", "chat", msg.ChatID, "error", err)
		b.react(ctx, msg, reactFailure)
		b.reply(ctx, msg.Channel, msg.ChatID, "Sorry, I encountered an error: "+err.Error())
		return
	}
	if reply == "" {
		b.logger.Warn("empty AI reply", "chat", msg.ChatID)
		return
	}

	conv.AppendAssistantTurn(reply)
	b.react(ctx, msg, reactSuccess)

	if conv.RespondWithVoice() {
		conv.SetRespondWithVoice(false)
		if b.sendVoice(ctx, msg.Channel, msg.ChatID, reply) {
			b.reply(ctx, msg.Channel, msg.ChatID, voiceCaption(reply))
		} else {
			b.logger.Info("voice reply unavailable, sending text", "chat", msg.ChatID)
			b.reply(ctx, msg.Channel, msg.ChatID, reply)
		}
	} else {
		b.reply(ctx, msg.Channel, msg.ChatID, reply)
	}

	b.audit.Outbound(msg.ChatID, reply)
}

// sendVoice synthesizes text and sends it as a voice note.
func (b *Bridge) sendVoice(ctx context.Context, channel, chatID, text string) bool {
	audio, ok := b.speaker.Speak(ctx, text)
	if !ok {
		return false
	}
	err := b.out.SendMedia(ctx, channel, chatID, &channels.MediaMessage{
		Type:     channels.MessageAudio,
		Data:     audio,
		MimeType: "audio/mpeg",
		Filename: "reply.mp3",
		Voice:    true,
	})
	if err != nil {
		b.logger.Warn("delivery failed", "kind", "delivery_failed", "chat", chatID, "media", "voice", "error", err)
		return false
	}
	return true
}

func voiceCaption(text string) string { return "🎙️ _" + text + "_" }

func (b *Bridge) systemPrompt(senderName string) string {
	return fmt.Sprintf("You are %s, responding via WhatsApp to %s. Keep responses concise and mobile-friendly. "+
		"You can use WhatsApp formatting: *bold*, _italic_, ~strikethrough~, ```code```.", b.cfg.Name, senderName)
}

// reply sends text to a chat. Delivery failures are logged.
func (b *Bridge) reply(ctx context.Context, channel, chatID, text string) error {
	err := b.out.Send(ctx, channel, chatID, &channels.OutgoingMessage{Content: text})
	if err != nil {
		b.logger.Warn("delivery failed", "kind", "delivery_failed", "chat", chatID, "error", err)
	}
	return err
}

func (b *Bridge) react(ctx context.Context, msg *channels.IncomingMessage, emoji string) {
	if msg.ID == "" {
		return
	}
	if err := b.out.SendReaction(ctx, msg.Channel, msg.ChatID, msg.ID, emoji); err != nil {
		b.logger.Debug("reaction failed", "emoji", emoji, "error", err)
	}
}

// proactiveTick is the scheduled check-in of one chat.
func (b *Bridge) proactiveTick(channel, chatID string) {
	unlock := b.lockChat(chatID)
	defer unlock()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic in proactive tick", "chat", chatID, "panic", r)
		}
	}()

	text := b.checkIn(b.ctx)
	if b.reply(b.ctx, channel, chatID, text) == nil {
		b.audit.Outbound(chatID, text)
	}
}

// checkIn builds a check-in: progress on the next objective, or a status
// summary when none is open.
func (b *Bridge) checkIn(ctx context.Context) string {
	msg := fmt.Sprintf("🤖 *%s Check-in* (%s)\n\n", b.cfg.Name, b.now().Format("03:04 PM"))

	obj, ok := b.objectives.Next()
	if !ok {
		c := b.objectives.Counts()
		return msg +
			"✅ *Status:* Online and ready\n" +
			fmt.Sprintf("💬 *Active chats:* %d\n", b.store.Count()) +
			fmt.Sprintf("📊 *Objectives:* %d/%d complete\n\n", c.Done, c.Total) +
			"_No active objectives. Use /objective add to give me work!_"
	}

	msg += fmt.Sprintf("📋 *Working on:* %s\n\n", obj.Description)
	system := fmt.Sprintf("You are %s checking in via WhatsApp. You're working on: %q\n\n"+
		"Report your progress briefly. What have you done? What's next?\n"+
		"Use WhatsApp formatting: *bold*, _italic_.\nKeep it under 200 words.", b.cfg.Name, obj.Description)
	reply, err := b.chat.Ask(ctx, []aichat.Turn{{
		Role:    aichat.RoleUser,
		Content: "Progress update on objective: " + obj.Description,
	}}, system, true)
	if err != nil {
		b.logger.Warn("progress update failed", "objective", obj.ID, "error", err)
		return msg + "_Progress update unavailable: " + err.Error() + "_"
	}
	return msg + reply
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
