package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Manager runs every registered channel, merges their inbound messages into
// one stream and routes replies back to the channel a chat belongs to.
type Manager struct {
	channels map[string]Channel
	messages chan *IncomingMessage
	logger   *slog.Logger

	listenWg sync.WaitGroup

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates an empty Manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		channels: make(map[string]Channel),
		messages: make(chan *IncomingMessage, 256),
		logger:   logger.With("component", "channels"),
	}
}

// Register adds a channel. Must be called before Start.
func (m *Manager) Register(ch Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := ch.Name()
	if _, exists := m.channels[name]; exists {
		return fmt.Errorf("channel %q already registered", name)
	}
	m.channels[name] = ch
	m.logger.Info("channel registered", "channel", name)
	return nil
}

// Start connects every channel and begins forwarding its messages.
// A channel that fails to connect is logged and skipped; Start fails only
// when channels are registered and none connected.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.mu.RLock()
	snapshot := make(map[string]Channel, len(m.channels))
	for k, v := range m.channels {
		snapshot[k] = v
	}
	m.mu.RUnlock()

	if len(snapshot) == 0 {
		m.logger.Warn("no channels registered")
		return nil
	}

	var connected int
	for name, ch := range snapshot {
		if err := ch.Connect(m.ctx); err != nil {
			m.logger.Error("failed to connect channel", "channel", name, "error", err)
			continue
		}
		connected++
		m.logger.Info("channel connected", "channel", name)

		m.listenWg.Add(1)
		go func(c Channel) {
			defer m.listenWg.Done()
			m.listen(c)
		}(ch)
	}

	if connected == 0 {
		return fmt.Errorf("no channel connected")
	}
	return nil
}

// Stop disconnects every channel and closes the merged stream.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}

	m.mu.RLock()
	for name, ch := range m.channels {
		if err := ch.Disconnect(); err != nil {
			m.logger.Error("error disconnecting channel", "channel", name, "error", err)
		}
	}
	m.mu.RUnlock()

	m.listenWg.Wait()
	close(m.messages)
	m.logger.Info("channels stopped")
}

// Messages returns the merged inbound stream.
func (m *Manager) Messages() <-chan *IncomingMessage {
	return m.messages
}

// Channel returns a channel by name.
func (m *Manager) Channel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// Send delivers a text message through the named channel.
func (m *Manager) Send(ctx context.Context, channel, to string, msg *OutgoingMessage) error {
	ch, err := m.connected(channel)
	if err != nil {
		return err
	}
	return ch.Send(ctx, to, msg)
}

// SendMedia delivers media through the named channel.
func (m *Manager) SendMedia(ctx context.Context, channel, to string, media *MediaMessage) error {
	ch, err := m.connected(channel)
	if err != nil {
		return err
	}
	mc, ok := ch.(MediaChannel)
	if !ok {
		return ErrMediaNotSupported
	}
	return mc.SendMedia(ctx, to, media)
}

// SendReaction reacts to a message. Channels without reactions ignore it.
func (m *Manager) SendReaction(ctx context.Context, channel, chatID, messageID, emoji string) error {
	ch, err := m.connected(channel)
	if err != nil {
		return err
	}
	rc, ok := ch.(ReactionChannel)
	if !ok {
		return nil
	}
	return rc.SendReaction(ctx, chatID, messageID, emoji)
}

// MarkRead acknowledges messages. Channels without receipts ignore it.
func (m *Manager) MarkRead(ctx context.Context, channel, chatID string, messageIDs []string) error {
	ch, err := m.connected(channel)
	if err != nil {
		return err
	}
	rc, ok := ch.(ReceiptChannel)
	if !ok {
		return nil
	}
	return rc.MarkRead(ctx, chatID, messageIDs)
}

// DownloadMedia fetches the attachment of an inbound message.
func (m *Manager) DownloadMedia(ctx context.Context, msg *IncomingMessage) ([]byte, string, error) {
	ch, ok := m.Channel(msg.Channel)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrChannelNotFound, msg.Channel)
	}
	mc, ok := ch.(MediaChannel)
	if !ok {
		return nil, "", ErrMediaNotSupported
	}
	return mc.DownloadMedia(ctx, msg)
}

// IsConnected reports whether the named channel is connected.
func (m *Manager) IsConnected(channel string) bool {
	ch, ok := m.Channel(channel)
	return ok && ch.IsConnected()
}

// HealthAll returns the health of every channel.
func (m *Manager) HealthAll() map[string]HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make(map[string]HealthStatus, len(m.channels))
	for name, ch := range m.channels {
		statuses[name] = ch.Health()
	}
	return statuses
}

func (m *Manager) connected(name string) (Channel, error) {
	ch, ok := m.Channel(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	if !ch.IsConnected() {
		return nil, fmt.Errorf("%s: %w", name, ErrChannelDisconnected)
	}
	return ch, nil
}

func (m *Manager) listen(ch Channel) {
	for {
		select {
		case msg, ok := <-ch.Receive():
			if !ok {
				return
			}
			select {
			case m.messages <- msg:
			case <-m.ctx.Done():
				return
			}
		case <-m.ctx.Done():
			return
		}
	}
}
