// Package bridge – config.go defines the configuration of the bridge and
// derives the settings of each collaborator from it.
package bridge

import (
	"strings"
	"time"

	"github.com/jholhewres/wabridge/pkg/wabridge/aichat"
	"github.com/jholhewres/wabridge/pkg/wabridge/audit"
	"github.com/jholhewres/wabridge/pkg/wabridge/channels/whatsapp"
	"github.com/jholhewres/wabridge/pkg/wabridge/conversation"
	"github.com/jholhewres/wabridge/pkg/wabridge/gateway"
	"github.com/jholhewres/wabridge/pkg/wabridge/media"
	"github.com/jholhewres/wabridge/pkg/wabridge/transcribe"
	"github.com/jholhewres/wabridge/pkg/wabridge/tts"
)

const (
	// MinProactiveInterval and MaxProactiveInterval bound the proactive
	// tick interval, in minutes.
	MinProactiveInterval = 5
	MaxProactiveInterval = 120
)

// Config holds all bridge configuration.
type Config struct {
	// Name is the persona name used in the system prompt and status replies.
	Name string `yaml:"name" validate:"required"`

	// Owner is the owner's identity (bare digits or a full JID).
	Owner string `yaml:"owner" validate:"required"`

	// AllowedNumbers grants collaborator access. Empty means open mode:
	// anyone may chat, commands still check their level.
	AllowedNumbers []string `yaml:"allowed_numbers"`

	// AutoReply answers free-form (non-command) messages with the AI.
	AutoReply bool `yaml:"auto_reply"`

	API           APIConfig           `yaml:"api"`
	Webhook       WebhookConfig       `yaml:"webhook"`
	Transcription transcribe.Config   `yaml:"transcription"`
	TTS           tts.Config          `yaml:"tts"`
	Context       conversation.Config `yaml:"context"`
	Proactive     ProactiveConfig     `yaml:"proactive"`
	Media         media.Config        `yaml:"media"`
	Gateway       gateway.Config      `yaml:"gateway"`
	Channels      ChannelsConfig      `yaml:"channels"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// APIConfig configures the backend that hosts the AI, speech and media
// endpoints.
type APIConfig struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// APIKey authenticates chat calls. Prefer ${WABRIDGE_API_KEY} or the
	// OS keyring over a literal value.
	APIKey string `yaml:"api_key"`

	Model       string        `yaml:"model"`
	Channel     string        `yaml:"channel"`
	ChatTimeout time.Duration `yaml:"chat_timeout" validate:"min=0"`
}

// WebhookConfig configures the audit webhook.
type WebhookConfig struct {
	// Secret is sent in the x-webhook-signature header. An empty secret
	// still posts, the receiver decides.
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`

	// Disabled turns audit posting off entirely.
	Disabled bool `yaml:"disabled"`
}

// ProactiveConfig configures the proactive scheduler.
type ProactiveConfig struct {
	// DefaultInterval is used by "/proactive on" without an interval, in minutes.
	DefaultInterval int `yaml:"default_interval" validate:"min=5,max=120"`
}

// ChannelsConfig configures the transports.
type ChannelsConfig struct {
	WhatsApp whatsapp.Config `yaml:"whatsapp"`
}

// LoggingConfig configures the slog handler built by the CLI.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// DefaultConfig returns the configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:      "Assistant",
		AutoReply: true,
		API: APIConfig{
			BaseURL:     "http://localhost:3000",
			Model:       "claude",
			Channel:     "whatsapp",
			ChatTimeout: 60 * time.Second,
		},
		Webhook:       WebhookConfig{Timeout: 10 * time.Second},
		Transcription: transcribe.DefaultConfig(),
		TTS:           tts.DefaultConfig(),
		Context:       conversation.DefaultConfig(),
		Proactive:     ProactiveConfig{DefaultInterval: 30},
		Media:         media.DefaultConfig(),
		Gateway:       gateway.DefaultConfig(),
		Channels:      ChannelsConfig{WhatsApp: whatsapp.DefaultConfig()},
		Logging:       LoggingConfig{Level: "info", Format: "json"},
	}
}

func (c *Config) baseURL() string {
	return strings.TrimRight(c.API.BaseURL, "/")
}

// ChatConfig derives the AI backend settings.
func (c *Config) ChatConfig() aichat.Config {
	return aichat.Config{
		URL:     c.baseURL() + "/api/chat",
		APIKey:  c.API.APIKey,
		Model:   c.API.Model,
		Channel: c.API.Channel,
		Timeout: c.API.ChatTimeout,
	}
}

// TranscriptionConfig derives the transcription settings. The cloud
// endpoint defaults to the backend's whisper route.
func (c *Config) TranscriptionConfig() transcribe.Config {
	tc := c.Transcription
	if tc.CloudURL == "" {
		tc.CloudURL = c.baseURL() + "/api/whisper"
	}
	return tc
}

// AuditConfig derives the audit webhook settings.
func (c *Config) AuditConfig() audit.Config {
	if c.Webhook.Disabled {
		return audit.Config{}
	}
	return audit.Config{
		URL:     c.baseURL() + "/api/webhooks/whatsapp",
		Secret:  c.Webhook.Secret,
		Timeout: c.Webhook.Timeout,
	}
}

// MediaConfig derives the media client settings.
func (c *Config) MediaConfig() media.Config {
	mc := c.Media
	mc.BaseURL = c.baseURL()
	return mc
}

// TTSURLs returns the primary and fallback synthesis endpoints.
func (c *Config) TTSURLs() (primary, fallback string) {
	return c.baseURL() + "/api/tts/elevenlabs", c.baseURL() + "/api/tts"
}
