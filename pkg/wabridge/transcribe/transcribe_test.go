package transcribe

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jholhewres/wabridge/pkg/wabridge/provider"
)

func newResolver(t *testing.T, local, cloud string) *Resolver {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	gw := provider.New(provider.Config{}, logger)
	return New(Config{
		LocalURL:     local,
		CloudURL:     cloud,
		LocalTimeout: 50 * time.Millisecond,
		CloudTimeout: time.Second,
	}, gw, logger)
}

func TestTranscribe(t *testing.T) {
	t.Run("local success skips cloud", func(t *testing.T) {
		var cloudHits atomic.Int32
		local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/audio/transcriptions" {
				t.Errorf("unexpected local path %s", r.URL.Path)
			}
			w.Write([]byte(`{"text":" from local "}`))
		}))
		defer local.Close()
		cloud := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cloudHits.Add(1)
		}))
		defer cloud.Close()

		text, ok := newResolver(t, local.URL, cloud.URL).Transcribe(context.Background(), []byte("ogg"), "audio/ogg")
		if !ok || text != "from local" {
			t.Fatalf("expected 'from local', got %q (%v)", text, ok)
		}
		if cloudHits.Load() != 0 {
			t.Error("cloud should not be called when local succeeds")
		}
	})

	t.Run("local timeout falls through to cloud with language hint", func(t *testing.T) {
		release := make(chan struct{})
		local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-release:
			}
		}))
		defer local.Close()
		defer close(release)

		cloud := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse: %v", err)
			}
			if r.FormValue("language") != "en" {
				t.Errorf("expected language hint 'en', got %q", r.FormValue("language"))
			}
			w.Write([]byte(`{"text":"hello"}`))
		}))
		defer cloud.Close()

		text, ok := newResolver(t, local.URL, cloud.URL).Transcribe(context.Background(), []byte("ogg"), "audio/ogg")
		if !ok || text != "hello" {
			t.Fatalf("expected 'hello', got %q (%v)", text, ok)
		}
	})

	t.Run("empty local transcript falls through", func(t *testing.T) {
		local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"text":""}`))
		}))
		defer local.Close()
		cloud := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"text":"cloud"}`))
		}))
		defer cloud.Close()

		text, ok := newResolver(t, local.URL, cloud.URL).Transcribe(context.Background(), []byte("ogg"), "")
		if !ok || text != "cloud" {
			t.Fatalf("expected 'cloud', got %q (%v)", text, ok)
		}
	})

	t.Run("both failing returns false", func(t *testing.T) {
		fail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer fail.Close()

		text, ok := newResolver(t, fail.URL, fail.URL).Transcribe(context.Background(), []byte("ogg"), "audio/ogg")
		if ok || text != "" {
			t.Fatalf("expected failure, got %q (%v)", text, ok)
		}
	})

	t.Run("empty audio returns false without calling providers", func(t *testing.T) {
		if _, ok := newResolver(t, "http://127.0.0.1:1", "").Transcribe(context.Background(), nil, ""); ok {
			t.Fatal("expected false for empty audio")
		}
	})
}

func TestParseTranscript(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"json", `{"text":"hi there"}`, "hi there", false},
		{"plain", "plain transcript\n", "plain transcript", false},
		{"empty json", `{"text":"  "}`, "", true},
		{"broken json", `{"text":`, "", true},
		{"blank", "   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTranscript([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
