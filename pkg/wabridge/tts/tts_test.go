package tts

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jholhewres/wabridge/pkg/wabridge/provider"
)

// serverBehavior configures the simulated endpoints.
type serverBehavior struct {
	primaryFail  bool
	primaryHint  string
	fallbackFail bool
}

// ttsServer simulates the primary (/primary) and fallback (/fallback) endpoints.
type ttsServer struct {
	*httptest.Server
	serverBehavior

	mu           sync.Mutex
	lastFallback map[string]any
	lastText     string
}

func newTTSServer(t *testing.T, b serverBehavior) *ttsServer {
	s := &ttsServer{serverBehavior: b}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.lastText, _ = body["text"].(string)

		switch r.URL.Path {
		case "/primary":
			if s.primaryFail {
				w.WriteHeader(http.StatusServiceUnavailable)
				if s.primaryHint != "" {
					json.NewEncoder(w).Encode(map[string]string{"fallback": s.primaryHint})
				}
				return
			}
			w.Header().Set("Content-Type", "audio/mpeg")
			w.Write([]byte("primary-audio"))
		case "/fallback":
			s.lastFallback = body
			if s.fallbackFail {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte("fallback-audio"))
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *ttsServer) fallbackBody() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFallback
}

func (s *ttsServer) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastText
}

func (s *ttsServer) pipeline(cfg Config) *Pipeline {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	gw := provider.New(provider.Config{}, logger)
	primary := NewHTTPProvider("elevenlabs", s.URL+"/primary", 0, time.Second, gw)
	fallback := NewHTTPProvider("openai", s.URL+"/fallback", 1.0, time.Second, gw)
	return NewPipeline(cfg, primary, map[string]Provider{"openai": fallback}, logger)
}

func TestSpeak(t *testing.T) {
	t.Run("primary success", func(t *testing.T) {
		s := newTTSServer(t, serverBehavior{})
		audio, ok := s.pipeline(DefaultConfig()).Speak(context.Background(), "hi")
		if !ok || string(audio) != "primary-audio" {
			t.Fatalf("expected primary audio, got %q (%v)", audio, ok)
		}
	})

	t.Run("signalled fallback returns fallback bytes", func(t *testing.T) {
		s := newTTSServer(t, serverBehavior{primaryFail: true, primaryHint: "openai"})

		audio, ok := s.pipeline(DefaultConfig()).Speak(context.Background(), "hi")
		if !ok || string(audio) != "fallback-audio" {
			t.Fatalf("expected fallback audio, got %q (%v)", audio, ok)
		}
		fb := s.fallbackBody()
		if fb["voice"] != "nova" || fb["speed"] != 1.0 {
			t.Errorf("fallback should carry its own voice/speed, got %v", fb)
		}
	})

	t.Run("failure without signal returns nothing", func(t *testing.T) {
		s := newTTSServer(t, serverBehavior{primaryFail: true})

		if audio, ok := s.pipeline(DefaultConfig()).Speak(context.Background(), "hi"); ok || audio != nil {
			t.Fatalf("expected no audio, got %q", audio)
		}
		if s.fallbackBody() != nil {
			t.Error("fallback must not be called without a signal")
		}
	})

	t.Run("unknown fallback name returns nothing", func(t *testing.T) {
		s := newTTSServer(t, serverBehavior{primaryFail: true, primaryHint: "polly"})

		if _, ok := s.pipeline(DefaultConfig()).Speak(context.Background(), "hi"); ok {
			t.Fatal("expected failure for unknown fallback")
		}
	})

	t.Run("failing fallback returns nothing", func(t *testing.T) {
		s := newTTSServer(t, serverBehavior{primaryFail: true, primaryHint: "openai", fallbackFail: true})

		if _, ok := s.pipeline(DefaultConfig()).Speak(context.Background(), "hi"); ok {
			t.Fatal("expected failure when fallback fails")
		}
	})

	t.Run("long text is truncated not rejected", func(t *testing.T) {
		s := newTTSServer(t, serverBehavior{})
		long := strings.Repeat("a", 6000)

		audio, ok := s.pipeline(Config{MaxChars: 5000}).Speak(context.Background(), long)
		if !ok || audio == nil {
			t.Fatal("expected audio for long text")
		}
		sent := s.text()
		if utf8.RuneCountInString(sent) != 5003 || !strings.HasSuffix(sent, "...") {
			t.Errorf("expected 5000 chars plus ellipsis, got %d chars", len(sent))
		}
	})
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"toolong", 3, "too..."},
		{"héllo wörld", 5, "héllo..."},
		{"anything", 0, "anything"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.limit); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}
