// Package media wraps the generative-media and contact endpoints of the
// backend: image generation, music generation and contact resolution.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jholhewres/wabridge/pkg/wabridge/provider"
)

// ErrGenerationFailed is returned when the backend reports a failed job.
var ErrGenerationFailed = errors.New("generation failed")

// Config holds media endpoint settings.
type Config struct {
	BaseURL       string        `yaml:"-"`
	ImageTimeout  time.Duration `yaml:"image_timeout"`
	MusicTimeout  time.Duration `yaml:"music_timeout"`
	MusicDuration int           `yaml:"music_duration"`
}

// DefaultConfig returns the default media settings.
func DefaultConfig() Config {
	return Config{
		ImageTimeout:  60 * time.Second,
		MusicTimeout:  330 * time.Second,
		MusicDuration: 30,
	}
}

// Caller is the subset of the provider gateway used here.
type Caller interface {
	Call(ctx context.Context, req *provider.Request) (*provider.Response, error)
	CallJSON(ctx context.Context, name, url string, payload, out any, timeout time.Duration, header http.Header) error
}

// Client calls the media endpoints.
type Client struct {
	cfg    Config
	gw     Caller
	logger *slog.Logger
}

// New creates a Client.
func New(cfg Config, gw Caller, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = def.ImageTimeout
	}
	if cfg.MusicTimeout <= 0 {
		cfg.MusicTimeout = def.MusicTimeout
	}
	if cfg.MusicDuration <= 0 {
		cfg.MusicDuration = def.MusicDuration
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, gw: gw, logger: logger.With("component", "media")}
}

// Image generates an image and returns its URL.
func (c *Client) Image(ctx context.Context, prompt string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.gw.CallJSON(ctx, "image", c.cfg.BaseURL+"/api/image-generate",
		map[string]string{"prompt": prompt}, &out, c.cfg.ImageTimeout, nil)
	if err != nil {
		return "", err
	}
	return out.URL, nil
}

// Track is a generated music clip.
type Track struct {
	Title    string
	Duration int
	BPM      string
	Key      string
	Audio    []byte
}

type musicRequest struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
	Format   string `json:"format"`
}

type musicResponse struct {
	Status      string `json:"status"`
	Title       string `json:"title"`
	Duration    int    `json:"duration"`
	AudioURL    string `json:"audioUrl"`
	AudioBase64 string `json:"audioBase64"`
	Metadata    struct {
		BPM any    `json:"bpm"`
		Key string `json:"key"`
	} `json:"metadata"`
}

// Music generates a clip. The endpoint polls its own job, so one call
// covers the whole generation.
func (c *Client) Music(ctx context.Context, prompt string) (*Track, error) {
	var out musicResponse
	err := c.gw.CallJSON(ctx, "music", c.cfg.BaseURL+"/api/music/generate",
		musicRequest{Prompt: prompt, Duration: c.cfg.MusicDuration, Format: "mp3"},
		&out, c.cfg.MusicTimeout, nil)
	if err != nil {
		return nil, err
	}
	if out.Status == "failed" {
		return nil, ErrGenerationFailed
	}

	track := &Track{Title: out.Title, Duration: out.Duration, Key: out.Metadata.Key}
	if out.Metadata.BPM != nil {
		track.BPM = fmt.Sprint(out.Metadata.BPM)
	}

	switch {
	case out.AudioURL != "":
		c.logger.Debug("downloading generated audio", "url", out.AudioURL)
		track.Audio, err = c.Fetch(ctx, out.AudioURL, c.cfg.MusicTimeout)
		if err != nil {
			return nil, fmt.Errorf("downloading audio: %w", err)
		}
	case out.AudioBase64 != "":
		track.Audio, err = base64.StdEncoding.DecodeString(out.AudioBase64)
		if err != nil {
			return nil, provider.Malformed("decoding audio: %v", err)
		}
	default:
		return nil, provider.Malformed("no audio data in response")
	}
	return track, nil
}

// Fetch downloads a URL produced by one of the endpoints.
func (c *Client) Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	resp, err := c.gw.Call(ctx, &provider.Request{
		Name:    "media-fetch",
		Method:  http.MethodGet,
		URL:     url,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Contact is a resolved messaging target.
type Contact struct {
	PhoneNumber string `json:"phoneNumber"`
	DisplayName string `json:"displayName"`
}

// ResolveContact looks a name or number up in the owner's contacts.
func (c *Client) ResolveContact(ctx context.Context, identifier string) (*Contact, error) {
	var out Contact
	err := c.gw.CallJSON(ctx, "resolve-contact", c.cfg.BaseURL+"/api/whatsapp/resolve-contact",
		map[string]string{"identifier": identifier}, &out, 10*time.Second, nil)
	if err != nil {
		return nil, err
	}
	if out.PhoneNumber == "" {
		return nil, provider.Malformed("no phone number for %q", identifier)
	}
	if out.DisplayName == "" {
		out.DisplayName = identifier
	}
	return &out, nil
}

// NormalizePhoneNumber strips formatting and returns the digits when they
// form a plausible international number (10 to 15 digits).
func NormalizePhoneNumber(input string) (string, bool) {
	var b strings.Builder
	for i, r := range input {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", false
		}
	}
	digits := b.String()
	if len(digits) < 10 || len(digits) > 15 {
		return "", false
	}
	return digits, true
}
