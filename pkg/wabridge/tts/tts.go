// Package tts provides text-to-speech for voice replies.
//
// Synthesis goes through a primary provider. When the primary fails and its
// error body names a fallback (`{"fallback": "openai"}`), the named provider
// is tried with its own voice and speed. No signal means no fallback.
package tts

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/jholhewres/wabridge/pkg/wabridge/provider"
)

// Provider is the interface for TTS backends.
type Provider interface {
	// Synthesize converts text to audio.
	// Returns audio bytes, MIME type (e.g. "audio/mpeg"), and error.
	Synthesize(ctx context.Context, text, voice string) ([]byte, string, error)
}

// Caller is the subset of the provider gateway used by HTTPProvider.
type Caller interface {
	Call(ctx context.Context, req *provider.Request) (*provider.Response, error)
}

// HTTPProvider posts JSON to a synthesis endpoint and returns the raw body
// as audio.
type HTTPProvider struct {
	name    string
	url     string
	speed   float64
	timeout time.Duration
	gw      Caller
}

// NewHTTPProvider creates a provider. A zero speed omits voice and speed
// from the payload (the primary endpoint picks its own voice).
func NewHTTPProvider(name, url string, speed float64, timeout time.Duration, gw Caller) *HTTPProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{name: name, url: url, speed: speed, timeout: timeout, gw: gw}
}

// Synthesize implements Provider.
func (p *HTTPProvider) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	payload := map[string]any{"text": text}
	if p.speed > 0 {
		payload["voice"] = voice
		payload["speed"] = p.speed
	}
	req, err := provider.NewJSONRequest("tts-"+p.name, p.url, payload, p.timeout)
	if err != nil {
		return nil, "", err
	}
	resp, err := p.gw.Call(ctx, req)
	if err != nil {
		return nil, "", err
	}
	if len(resp.Body) == 0 {
		return nil, "", provider.Malformed("%s: empty audio response", p.name)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "audio/mpeg"
	}
	return resp.Body, mime, nil
}

// Config holds voice pipeline settings.
type Config struct {
	// MaxChars is the longest text synthesized; longer text is cut and
	// suffixed with "...".
	MaxChars int `yaml:"max_chars"`

	Timeout       time.Duration `yaml:"timeout"`
	FallbackVoice string        `yaml:"fallback_voice"`
	FallbackSpeed float64       `yaml:"fallback_speed"`
}

// DefaultConfig returns the default pipeline settings.
func DefaultConfig() Config {
	return Config{
		MaxChars:      5000,
		Timeout:       30 * time.Second,
		FallbackVoice: "nova",
		FallbackSpeed: 1.0,
	}
}

// Pipeline is the voice response pipeline.
type Pipeline struct {
	cfg       Config
	primary   Provider
	fallbacks map[string]Provider
	logger    *slog.Logger
}

// NewPipeline creates a pipeline with a primary provider and named fallbacks.
func NewPipeline(cfg Config, primary Provider, fallbacks map[string]Provider, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = def.MaxChars
	}
	if cfg.FallbackVoice == "" {
		cfg.FallbackVoice = def.FallbackVoice
	}
	if fallbacks == nil {
		fallbacks = map[string]Provider{}
	}
	return &Pipeline{
		cfg:       cfg,
		primary:   primary,
		fallbacks: fallbacks,
		logger:    logger.With("component", "tts"),
	}
}

// Speak synthesizes text. It returns false when no provider produced audio.
func (p *Pipeline) Speak(ctx context.Context, text string) ([]byte, bool) {
	text = Truncate(text, p.cfg.MaxChars)
	if text == "" {
		return nil, false
	}

	audio, _, err := p.primary.Synthesize(ctx, text, "")
	if err == nil {
		return audio, true
	}

	name := fallbackHint(err)
	fb, ok := p.fallbacks[name]
	if name == "" || !ok {
		p.logger.Warn("speech synthesis failed", "error", err, "fallback", name)
		return nil, false
	}

	p.logger.Info("primary synthesis failed, using fallback", "fallback", name, "error", err)
	audio, _, err = fb.Synthesize(ctx, text, p.cfg.FallbackVoice)
	if err != nil {
		p.logger.Warn("fallback synthesis failed", "fallback", name, "error", err)
		return nil, false
	}
	return audio, true
}

// fallbackHint reads the "fallback" field from a failed call's error body.
func fallbackHint(err error) string {
	f, ok := provider.AsFailure(err)
	if !ok || f.Kind != provider.FailureHTTP || len(f.Body) == 0 {
		return ""
	}
	var body struct {
		Fallback string `json:"fallback"`
	}
	if json.Unmarshal(f.Body, &body) != nil {
		return ""
	}
	return body.Fallback
}

// Truncate cuts text to limit runes and appends "..." when it was longer.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}
