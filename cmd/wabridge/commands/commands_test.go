package commands

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"+55 (11) 99999-8888": "5511999998888",
		"15551230000":         "15551230000",
		"abc":                 "",
	}
	for in, want := range tests {
		if got := normalizePhone(in); got != want {
			t.Errorf("normalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSetupValidators(t *testing.T) {
	tests := []struct {
		name    string
		check   func(string) error
		in      string
		wantErr bool
	}{
		{"owner ok", validateOwner, "+1 555 123 0000", false},
		{"owner empty", validateOwner, "  ", true},
		{"owner short", validateOwner, "12345", true},
		{"allowed empty", validateAllowed, "", false},
		{"allowed list", validateAllowed, "15551231111, 15551232222\n15551233333", false},
		{"allowed bad entry", validateAllowed, "15551231111, bob", true},
		{"url ok", validateURL, "https://bridge.example.com", false},
		{"url bare host", validateURL, "bridge.example.com", true},
		{"interval ok", validateInterval, "30", false},
		{"interval low", validateInterval, "4", true},
		{"interval high", validateInterval, "121", true},
		{"interval text", validateInterval, "soon", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("got %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMaskSecret(t *testing.T) {
	if got := maskSecret("sk-1234567890abcd"); got != "****abcd" {
		t.Errorf("got %q", got)
	}
	if got := maskSecret("short"); got != "****" {
		t.Errorf("got %q", got)
	}
	if maskSecret("") != "" {
		t.Error("empty stays empty")
	}
}

func TestRootCmd(t *testing.T) {
	root := NewRootCmd("1.2.3")
	if root.Version != "1.2.3" {
		t.Errorf("version %q", root.Version)
	}

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	got := strings.Join(names, ",")
	for _, want := range []string{"serve", "console", "setup", "config"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %s in %s", want, got)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil || root.PersistentFlags().Lookup("verbose") == nil {
		t.Error("global flags missing")
	}
}

func TestHealthCmd(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"connected", `{"status":"ok","channels":{"whatsapp":"connected"}}`, ""},
		{"disconnected", `{"status":"ok","channels":{"whatsapp":"disconnected"}}`, "whatsapp disconnected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					http.NotFound(w, r)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			var out bytes.Buffer
			root := NewRootCmd("test")
			root.SetOut(&out)
			root.SetErr(&out)
			root.SetArgs([]string{"health", "--addr", strings.TrimPrefix(srv.URL, "http://")})

			err := root.Execute()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatal(err)
				}
				if !strings.Contains(out.String(), `"status":"ok"`) {
					t.Errorf("unexpected output %q", out.String())
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected %q, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		root := NewRootCmd("test")
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{"health", "--addr", "127.0.0.1:1", "--timeout", "1s"})
		if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "unreachable") {
			t.Errorf("expected unreachable error, got %v", err)
		}
	})
}

func TestInvalidConfigRefusesToStart(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing owner", "name: Bot\n", "Owner"},
		{"interval out of range", "owner: \"15551230000\"\nproactive:\n  default_interval: 200\n", "DefaultInterval"},
		{"owner without digits", "owner: boss\n", "no digits"},
	}
	for _, tt := range tests {
		for _, sub := range []string{"serve", "console"} {
			t.Run(tt.name+"/"+sub, func(t *testing.T) {
				path := filepath.Join(t.TempDir(), "config.yaml")
				if err := os.WriteFile(path, []byte(tt.yaml), 0o600); err != nil {
					t.Fatal(err)
				}

				root := NewRootCmd("test")
				root.SetOut(&bytes.Buffer{})
				root.SetErr(&bytes.Buffer{})
				root.SetArgs([]string{sub, "--config", path})

				err := root.Execute()
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected %q error, got %v", tt.wantErr, err)
				}
			})
		}
	}
}
