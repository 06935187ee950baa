package provider

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestCall(t *testing.T) {
	g := New(Config{}, testLogger())

	t.Run("returns body on 2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("expected json content type, got %q", r.Header.Get("Content-Type"))
			}
			if r.Header.Get("X-Request-ID") == "" {
				t.Error("expected request id header")
			}
			w.Write([]byte(`{"text":"ok"}`))
		}))
		defer srv.Close()

		req, err := NewJSONRequest("test", srv.URL, map[string]string{"a": "b"}, time.Second)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := g.Call(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var out struct{ Text string }
		if err := resp.DecodeJSON(&out); err != nil {
			t.Fatal(err)
		}
		if out.Text != "ok" {
			t.Errorf("expected 'ok', got %q", out.Text)
		}
	})

	t.Run("non-2xx is http_error with status and body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"fallback":"openai"}`))
		}))
		defer srv.Close()

		_, err := g.Call(context.Background(), &Request{Name: "test", URL: srv.URL, Timeout: time.Second})
		f, ok := AsFailure(err)
		if !ok {
			t.Fatalf("expected *Failure, got %v", err)
		}
		if f.Kind != FailureHTTP {
			t.Errorf("expected http_error, got %s", f.Kind)
		}
		if f.Status != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", f.Status)
		}
		if !strings.Contains(string(f.Body), "fallback") {
			t.Errorf("expected body to be preserved, got %q", f.Body)
		}
	})

	t.Run("slow collaborator is timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-release:
			}
		}))
		defer srv.Close()
		defer close(release)

		start := time.Now()
		_, err := g.Call(context.Background(), &Request{Name: "slow", URL: srv.URL, Timeout: 50 * time.Millisecond})
		f, ok := AsFailure(err)
		if !ok || f.Kind != FailureTimeout {
			t.Fatalf("expected timeout failure, got %v", err)
		}
		if time.Since(start) > 2*time.Second {
			t.Error("call did not return promptly after timeout")
		}
	})

	t.Run("unreachable host is http_error with zero status", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := g.Call(context.Background(), &Request{Name: "gone", URL: url, Timeout: time.Second})
		f, ok := AsFailure(err)
		if !ok || f.Kind != FailureHTTP || f.Status != 0 {
			t.Fatalf("expected unreachable http_error, got %v", err)
		}
	})

	t.Run("undecodable body is malformed_response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer srv.Close()

		var out struct{ URL string }
		err := g.CallJSON(context.Background(), "test", srv.URL, map[string]string{}, &out, time.Second, nil)
		f, ok := AsFailure(err)
		if !ok || f.Kind != FailureMalformed {
			t.Fatalf("expected malformed_response, got %v", err)
		}
	})
}

func TestCallBodyLimit(t *testing.T) {
	g := New(Config{MaxResponseBytes: 16}, testLogger())
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"at the limit", strings.Repeat("a", 16), false},
		{"over the limit", strings.Repeat("a", 17), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resp, err := g.Call(context.Background(), &Request{Name: "test", URL: srv.URL, Timeout: time.Second})
			if !tt.wantErr {
				if err != nil || string(resp.Body) != tt.body {
					t.Fatalf("expected full body, got %v", err)
				}
				return
			}
			f, ok := AsFailure(err)
			if !ok || f.Kind != FailureMalformed || f.Status != http.StatusOK {
				t.Fatalf("expected malformed_response, got %v", err)
			}
		})
	}

	if New(Config{}, testLogger()).cfg.MaxResponseBytes != maxResponseBody {
		t.Error("default limit not applied")
	}
}

func TestNewMultipartRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("expected language=en, got %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "voice.ogg" || string(data) != "audio" {
			t.Errorf("unexpected file part %q %q", hdr.Filename, data)
		}
	}))
	defer srv.Close()

	req, err := NewMultipartRequest("whisper", srv.URL,
		FilePart{Field: "file", Filename: "voice.ogg", Data: []byte("audio")},
		map[string]string{"language": "en"}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(Config{}, testLogger()).Call(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFailureKindString(t *testing.T) {
	tests := []struct {
		kind FailureKind
		want string
	}{
		{FailureTimeout, "timeout"},
		{FailureHTTP, "http_error"},
		{FailureMalformed, "malformed_response"},
		{FailureKind(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("%d: expected %q, got %q", tt.kind, tt.want, got)
		}
	}
}
