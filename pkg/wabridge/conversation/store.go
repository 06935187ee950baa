// Package conversation keeps the short-term history of each chat.
//
// A Context holds at most MaxTurns turns (oldest evicted first) and expires
// TTL after its last activity. An expired context is never resurrected:
// Get replaces it with a fresh one and SweepExpired drops it.
package conversation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jholhewres/wabridge/pkg/wabridge/aichat"
)

const (
	// DefaultMaxTurns is the default history bound per chat.
	DefaultMaxTurns = 20

	// DefaultTTL is the inactivity window before a context expires.
	DefaultTTL = 30 * time.Minute

	// DefaultSweepInterval is how often idle contexts are swept.
	DefaultSweepInterval = 5 * time.Minute
)

// Config holds store settings.
type Config struct {
	MaxTurns      int           `yaml:"max_turns"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultConfig returns the default store settings.
func DefaultConfig() Config {
	return Config{
		MaxTurns:      DefaultMaxTurns,
		TTL:           DefaultTTL,
		SweepInterval: DefaultSweepInterval,
	}
}

// Context is the per-chat conversation state.
type Context struct {
	ChatID string

	turns            []aichat.Turn
	maxTurns         int
	lastActivity     time.Time
	respondWithVoice bool
	now              func() time.Time

	mu sync.Mutex
}

// AppendUserTurn records a user message.
func (c *Context) AppendUserTurn(text string) {
	c.append(aichat.Turn{Role: aichat.RoleUser, Content: text})
}

// AppendAssistantTurn records an assistant reply.
func (c *Context) AppendAssistantTurn(text string) {
	c.append(aichat.Turn{Role: aichat.RoleAssistant, Content: text})
}

func (c *Context) append(t aichat.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, t)
	if c.maxTurns > 0 && len(c.turns) > c.maxTurns {
		c.turns = append([]aichat.Turn(nil), c.turns[len(c.turns)-c.maxTurns:]...)
	}
	c.lastActivity = c.now()
}

// Turns returns a copy of the history, oldest first.
func (c *Context) Turns() []aichat.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]aichat.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of stored turns.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// LastActivity returns the time of the last recorded turn.
func (c *Context) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// RespondWithVoice reports whether the next reply should be spoken.
func (c *Context) RespondWithVoice() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.respondWithVoice
}

// SetRespondWithVoice sets or clears the voice reply flag.
func (c *Context) SetRespondWithVoice(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.respondWithVoice = v
}

func (c *Context) expired(now time.Time, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ttl > 0 && now.Sub(c.lastActivity) > ttl
}

// Store holds one Context per chat.
type Store struct {
	cfg      Config
	contexts map[string]*Context
	now      func() time.Time
	logger   *slog.Logger
	mu       sync.Mutex
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store.
func NewStore(cfg Config, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	s := &Store{
		cfg:      cfg,
		contexts: make(map[string]*Context),
		now:      time.Now,
		logger:   logger.With("component", "conversation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective store settings.
func (s *Store) Config() Config { return s.cfg }

// Get returns the chat's context, creating a fresh one when absent or expired.
func (s *Store) Get(chatID string) *Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if c, ok := s.contexts[chatID]; ok && !c.expired(now, s.cfg.TTL) {
		return c
	}

	c := &Context{
		ChatID:       chatID,
		maxTurns:     s.cfg.MaxTurns,
		lastActivity: now,
		now:          s.now,
	}
	s.contexts[chatID] = c
	return c
}

// Clear drops the chat's context. Returns false if there was none.
func (s *Store) Clear(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.contexts[chatID]
	delete(s.contexts, chatID)
	return ok
}

// SweepExpired removes every context idle for longer than the TTL.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, c := range s.contexts {
		if c.expired(now, s.cfg.TTL) {
			delete(s.contexts, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("expired conversations swept",
			"removed", removed, "remaining", len(s.contexts))
	}
	return removed
}

// Count returns the number of stored contexts, expired or not.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contexts)
}
