package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/jholhewres/wabridge/pkg/wabridge/provider"
)

func newClient(base string) *Client {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return New(Config{BaseURL: base}, provider.New(provider.Config{}, logger), logger)
}

func TestImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/image-generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["prompt"] != "a cat" {
			t.Errorf("unexpected prompt %q", body["prompt"])
		}
		w.Write([]byte(`{"url":"https://cdn.example/cat.png"}`))
	}))
	defer srv.Close()

	url, err := newClient(srv.URL + "/").Image(context.Background(), "a cat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://cdn.example/cat.png" {
		t.Errorf("got %q", url)
	}
}

func TestMusic(t *testing.T) {
	t.Run("audio url is downloaded", func(t *testing.T) {
		var srv *httptest.Server
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/music/generate":
				var req musicRequest
				json.NewDecoder(r.Body).Decode(&req)
				if req.Duration != 30 || req.Format != "mp3" {
					t.Errorf("unexpected request %+v", req)
				}
				json.NewEncoder(w).Encode(map[string]any{
					"title":    "Lo-fi",
					"duration": 30,
					"audioUrl": srv.URL + "/files/track.mp3",
					"metadata": map[string]any{"bpm": 90, "key": "C minor"},
				})
			case "/files/track.mp3":
				w.Write([]byte("mp3-bytes"))
			}
		}))
		defer srv.Close()

		track, err := newClient(srv.URL).Music(context.Background(), "chill beats")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(track.Audio) != "mp3-bytes" || track.BPM != "90" || track.Key != "C minor" {
			t.Errorf("unexpected track %+v", track)
		}
	})

	t.Run("base64 audio", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"audioBase64": base64.StdEncoding.EncodeToString([]byte("raw")),
			})
		}))
		defer srv.Close()

		track, err := newClient(srv.URL).Music(context.Background(), "x")
		if err != nil || string(track.Audio) != "raw" {
			t.Fatalf("expected decoded audio, got %v %v", track, err)
		}
	})

	t.Run("failed job", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"failed"}`))
		}))
		defer srv.Close()

		if _, err := newClient(srv.URL).Music(context.Background(), "x"); !errors.Is(err, ErrGenerationFailed) {
			t.Fatalf("expected ErrGenerationFailed, got %v", err)
		}
	})

	t.Run("rate limited keeps status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := newClient(srv.URL).Music(context.Background(), "x")
		f, ok := provider.AsFailure(err)
		if !ok || f.Status != http.StatusTooManyRequests {
			t.Fatalf("expected 429 failure, got %v", err)
		}
	})

	t.Run("no audio is malformed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"title":"empty"}`))
		}))
		defer srv.Close()

		_, err := newClient(srv.URL).Music(context.Background(), "x")
		if f, ok := provider.AsFailure(err); !ok || f.Kind != provider.FailureMalformed {
			t.Fatalf("expected malformed, got %v", err)
		}
	})
}

func TestResolveContact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["identifier"] == "Mom" {
			w.Write([]byte(`{"phoneNumber":"15551230000","displayName":"Mom"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	got, err := c.ResolveContact(context.Background(), "Mom")
	if err != nil || got.PhoneNumber != "15551230000" {
		t.Fatalf("unexpected result %+v %v", got, err)
	}
	if _, err := c.ResolveContact(context.Background(), "Nobody"); err == nil {
		t.Error("expected error for unknown contact")
	}
}

func TestNormalizePhoneNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"+14155551234", "14155551234", true},
		{"(415) 555-1234", "4155551234", true},
		{"+1 415.555.1234", "14155551234", true},
		{"12345", "", false},
		{"1234567890123456", "", false},
		{"John", "", false},
		{"415+5551234", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizePhoneNumber(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizePhoneNumber(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
