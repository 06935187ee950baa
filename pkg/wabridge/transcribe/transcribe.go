// Package transcribe turns voice-note audio into text using a local
// Whisper-compatible server first and the cloud endpoint as a backstop.
package transcribe

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/jholhewres/wabridge/pkg/wabridge/provider"
)

// Config holds transcription settings.
type Config struct {
	// LocalURL is the base URL of the local Whisper server.
	LocalURL string `yaml:"local_url"`

	// CloudURL is the full URL of the cloud transcription endpoint.
	// Filled from the API base URL when empty.
	CloudURL string `yaml:"cloud_url"`

	// Language is the hint passed to the cloud provider.
	Language string `yaml:"language"`

	LocalTimeout time.Duration `yaml:"local_timeout"`
	CloudTimeout time.Duration `yaml:"cloud_timeout"`
}

// DefaultConfig returns the default transcription settings.
func DefaultConfig() Config {
	return Config{
		LocalURL:     "http://localhost:8082",
		Language:     "en",
		LocalTimeout: 30 * time.Second,
		CloudTimeout: 60 * time.Second,
	}
}

// Caller is the subset of the provider gateway used here.
type Caller interface {
	Call(ctx context.Context, req *provider.Request) (*provider.Response, error)
}

// Resolver runs the local → cloud chain.
type Resolver struct {
	cfg    Config
	gw     Caller
	logger *slog.Logger
}

// New creates a Resolver.
func New(cfg Config, gw Caller, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.LocalURL == "" {
		cfg.LocalURL = def.LocalURL
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.LocalTimeout <= 0 {
		cfg.LocalTimeout = def.LocalTimeout
	}
	if cfg.CloudTimeout <= 0 {
		cfg.CloudTimeout = def.CloudTimeout
	}
	cfg.LocalURL = strings.TrimRight(cfg.LocalURL, "/")
	return &Resolver{cfg: cfg, gw: gw, logger: logger.With("component", "transcribe")}
}

// Transcribe returns the transcript and true, or "" and false when both
// providers failed. Failures are logged, never returned.
func (r *Resolver) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, bool) {
	if len(audio) == 0 {
		return "", false
	}
	file := provider.FilePart{Field: "file", Filename: filenameFor(mimeType), Data: audio}

	text, err := r.attempt(ctx, "whisper-local",
		r.cfg.LocalURL+"/v1/audio/transcriptions", file, nil, r.cfg.LocalTimeout)
	if err == nil {
		return text, true
	}
	r.logger.Debug("local transcription unavailable, falling back to cloud", "error", err)

	if r.cfg.CloudURL == "" {
		r.logger.Warn("no cloud transcription endpoint configured")
		return "", false
	}

	text, err = r.attempt(ctx, "whisper-cloud", r.cfg.CloudURL, file,
		map[string]string{"language": r.cfg.Language}, r.cfg.CloudTimeout)
	if err != nil {
		r.logger.Warn("transcription failed", "error", err)
		return "", false
	}
	return text, true
}

func (r *Resolver) attempt(ctx context.Context, name, url string, file provider.FilePart, fields map[string]string, timeout time.Duration) (string, error) {
	req, err := provider.NewMultipartRequest(name, url, file, fields, timeout)
	if err != nil {
		return "", err
	}
	resp, err := r.gw.Call(ctx, req)
	if err != nil {
		return "", err
	}
	return parseTranscript(resp.Body)
}

// parseTranscript accepts a JSON {"text": ...} body or a bare text body.
// An empty transcript is treated as malformed.
func parseTranscript(body []byte) (string, error) {
	raw := strings.TrimSpace(string(body))
	text := raw
	if strings.HasPrefix(raw, "{") {
		var j struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(body, &j); err != nil {
			return "", provider.Malformed("decoding transcript: %v", err)
		}
		text = strings.TrimSpace(j.Text)
	}
	if text == "" {
		return "", provider.Malformed("empty transcript")
	}
	return text, nil
}

func filenameFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return "voice.mp3"
	case strings.Contains(mimeType, "mp4"), strings.Contains(mimeType, "m4a"):
		return "voice.m4a"
	case strings.Contains(mimeType, "wav"):
		return "voice.wav"
	default:
		return "voice.ogg"
	}
}
