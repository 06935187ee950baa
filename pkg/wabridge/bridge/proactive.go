// Package bridge – proactive.go runs the recurring jobs of the bridge on
// robfig/cron: one "@every Nm" entry per chat in proactive mode, plus the
// conversation sweep.
package bridge

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// TickFunc is called on every proactive tick for a chat.
type TickFunc func(channel, chatID string)

// proactiveEntry is the armed timer of one chat.
type proactiveEntry struct {
	id       cron.EntryID
	channel  string
	interval int
}

// ProactiveScheduler owns the cron instance and the per-chat timers.
type ProactiveScheduler struct {
	cron            *cron.Cron
	tick            TickFunc
	defaultInterval int
	logger          *slog.Logger

	mu        sync.Mutex
	entries   map[string]proactiveEntry
	intervals map[string]int
	running   bool
}

// NewProactiveScheduler creates a stopped scheduler.
func NewProactiveScheduler(defaultInterval int, tick TickFunc, logger *slog.Logger) *ProactiveScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultInterval < MinProactiveInterval || defaultInterval > MaxProactiveInterval {
		defaultInterval = 30
	}
	logger = logger.With("component", "proactive")
	cl := cronLogger{logger}
	return &ProactiveScheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		tick:            tick,
		defaultInterval: defaultInterval,
		logger:          logger,
		entries:         make(map[string]proactiveEntry),
		intervals:       make(map[string]int),
	}
}

// Start starts the cron loop.
func (s *ProactiveScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started", "cron_entries", len(s.cron.Entries()))
}

// Stop stops the loop and waits up to 10s for running jobs.
func (s *ProactiveScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
	case <-time.After(10 * time.Second):
		s.logger.Warn("scheduler stop timed out")
	}
	s.logger.Info("scheduler stopped")
}

// AddSweep registers a periodic job that is not tied to a chat.
func (s *ProactiveScheduler) AddSweep(every time.Duration, fn func()) error {
	if _, err := s.cron.AddFunc("@every "+every.String(), fn); err != nil {
		return fmt.Errorf("scheduling sweep: %w", err)
	}
	return nil
}

// Enable arms the chat's timer. minutes <= 0 uses the chat's configured
// interval. An existing timer for the chat is replaced, never duplicated.
func (s *ProactiveScheduler) Enable(channel, chatID string, minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if minutes <= 0 {
		minutes = s.intervalLocked(chatID)
	}
	if err := checkInterval(minutes); err != nil {
		return err
	}
	s.intervals[chatID] = minutes
	return s.armLocked(channel, chatID, minutes)
}

// Disable cancels the chat's timer. Disabling a disabled chat is a no-op.
func (s *ProactiveScheduler) Disable(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[chatID]
	if !ok {
		return false
	}
	s.cron.Remove(e.id)
	delete(s.entries, chatID)
	s.logger.Info("proactive mode stopped", "chat", chatID)
	return true
}

// SetInterval records the chat's interval and re-arms its timer when enabled.
func (s *ProactiveScheduler) SetInterval(chatID string, minutes int) error {
	if err := checkInterval(minutes); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intervals[chatID] = minutes
	if e, ok := s.entries[chatID]; ok {
		return s.armLocked(e.channel, chatID, minutes)
	}
	return nil
}

// Interval returns the chat's interval in minutes.
func (s *ProactiveScheduler) Interval(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intervalLocked(chatID)
}

// Enabled reports whether the chat has an armed timer.
func (s *ProactiveScheduler) Enabled(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[chatID]
	return ok
}

// Chats returns the chats in proactive mode, sorted.
func (s *ProactiveScheduler) Chats() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *ProactiveScheduler) intervalLocked(chatID string) int {
	if m, ok := s.intervals[chatID]; ok {
		return m
	}
	return s.defaultInterval
}

// armLocked replaces the chat's entry with a new one. Caller holds mu.
func (s *ProactiveScheduler) armLocked(channel, chatID string, minutes int) error {
	if old, ok := s.entries[chatID]; ok {
		s.cron.Remove(old.id)
		delete(s.entries, chatID)
	}
	id, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", minutes), func() {
		s.tick(channel, chatID)
	})
	if err != nil {
		return fmt.Errorf("scheduling proactive tick: %w", err)
	}
	s.entries[chatID] = proactiveEntry{id: id, channel: channel, interval: minutes}
	s.logger.Info("proactive mode started", "chat", chatID, "interval_min", minutes)
	return nil
}

// errInterval is the user-facing range error.
var errInterval = fmt.Errorf("interval must be between %d and %d minutes", MinProactiveInterval, MaxProactiveInterval)

func checkInterval(minutes int) error {
	if minutes < MinProactiveInterval || minutes > MaxProactiveInterval {
		return errInterval
	}
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
