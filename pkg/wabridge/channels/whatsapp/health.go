package whatsapp

import (
	"context"
	"time"

	"go.mau.fi/whatsmeow/types"
)

// HealthMonitorConfig configures detection of silently dead connections.
type HealthMonitorConfig struct {
	Enabled bool `yaml:"enabled"`

	CheckInterval time.Duration `yaml:"check_interval"`

	// MaxSilentDuration is how long without activity before the client's
	// own connection state is double-checked.
	MaxSilentDuration time.Duration `yaml:"max_silent_duration"`

	// ForceReconnectAfter forces a reconnect after this much silence even
	// when the socket looks alive (0 disables).
	ForceReconnectAfter time.Duration `yaml:"force_reconnect_after"`

	// PresenceInterval is how often an "available" presence is sent to
	// keep the session warm.
	PresenceInterval time.Duration `yaml:"presence_interval"`
}

// DefaultHealthMonitorConfig returns the default monitor settings.
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		Enabled:             true,
		CheckInterval:       30 * time.Second,
		MaxSilentDuration:   5 * time.Minute,
		ForceReconnectAfter: 15 * time.Minute,
		PresenceInterval:    2 * time.Minute,
	}
}

// StartHealthMonitor runs the health check and presence loops until ctx ends.
func (w *WhatsApp) StartHealthMonitor(ctx context.Context, cfg HealthMonitorConfig) {
	if !cfg.Enabled {
		return
	}
	def := DefaultHealthMonitorConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.MaxSilentDuration <= 0 {
		cfg.MaxSilentDuration = def.MaxSilentDuration
	}
	if cfg.PresenceInterval <= 0 {
		cfg.PresenceInterval = def.PresenceInterval
	}

	go func() {
		check := time.NewTicker(cfg.CheckInterval)
		presence := time.NewTicker(cfg.PresenceInterval)
		defer check.Stop()
		defer presence.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-check.C:
				if w.needsReconnect(cfg, time.Since(w.lastActivity()), w.client != nil && w.client.IsConnected()) {
					w.setState(StateReconnecting)
					w.connected.Store(false)
					go w.attemptReconnect()
				}
			case <-presence.C:
				w.sendPresence(ctx)
			}
		}
	}()
}

// needsReconnect decides from the silence window and the socket state.
func (w *WhatsApp) needsReconnect(cfg HealthMonitorConfig, silent time.Duration, socketUp bool) bool {
	if w.getState() != StateConnected || silent <= cfg.MaxSilentDuration {
		return false
	}
	if !socketUp {
		w.logger.Error("socket down while state is connected", "silent", silent)
		return true
	}
	if cfg.ForceReconnectAfter > 0 && silent > cfg.ForceReconnectAfter {
		w.logger.Warn("forcing reconnect after long silence", "silent", silent)
		return true
	}
	return false
}

func (w *WhatsApp) sendPresence(ctx context.Context) {
	if w.getState() != StateConnected || w.client == nil {
		return
	}
	if err := w.client.SendPresence(ctx, types.PresenceAvailable); err != nil {
		w.logger.Warn("presence update failed", "error", err)
		return
	}
	w.UpdateLastMsgTime()
}

func (w *WhatsApp) lastActivity() time.Time {
	if t, ok := w.lastMsg.Load().(time.Time); ok {
		return t
	}
	return time.Time{}
}
