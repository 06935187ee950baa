package whatsapp

import (
	"log/slog"
	"os"
	"testing"
	"time"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"github.com/jholhewres/wabridge/pkg/wabridge/channels"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		w := New(Config{}, nil)
		if w.Name() != "whatsapp" {
			t.Errorf("expected name whatsapp, got %s", w.Name())
		}
		if w.State() != StateDisconnected {
			t.Errorf("expected disconnected, got %s", w.State())
		}
		if w.cfg.ReconnectBackoff != 5*time.Second || w.cfg.DeviceName != "wabridge" {
			t.Errorf("defaults not applied: %+v", w.cfg)
		}
		if w.IsConnected() {
			t.Error("new transport must not be connected")
		}
	})

	t.Run("send fails while disconnected", func(t *testing.T) {
		w := New(DefaultConfig(), testLogger())
		err := w.Send(t.Context(), "15551234567", &channels.OutgoingMessage{Content: "hi"})
		if err != channels.ErrChannelDisconnected {
			t.Errorf("expected ErrChannelDisconnected, got %v", err)
		}
	})
}

func TestQRSubscription(t *testing.T) {
	w := New(DefaultConfig(), testLogger())

	t.Run("late subscriber gets pending code", func(t *testing.T) {
		w.notifyQR(QREvent{Type: "code", Code: "qr-1"})

		ch, unsubscribe := w.SubscribeQR()
		defer unsubscribe()
		select {
		case evt := <-ch:
			if evt.Code != "qr-1" {
				t.Errorf("expected replayed code, got %+v", evt)
			}
		case <-time.After(time.Second):
			t.Fatal("no replay")
		}
		if qr, ok := w.LastQR(); !ok || qr.Code != "qr-1" {
			t.Errorf("LastQR = %+v, %v", qr, ok)
		}
	})

	t.Run("success clears pending code", func(t *testing.T) {
		w.notifyQR(QREvent{Type: "success"})
		if _, ok := w.LastQR(); ok {
			t.Error("code must be cleared after success")
		}
	})

	t.Run("unsubscribe closes channel", func(t *testing.T) {
		ch, unsubscribe := w.SubscribeQR()
		unsubscribe()
		if _, open := <-ch; open {
			t.Error("expected closed channel")
		}
	})
}

func TestExtractMessageContent(t *testing.T) {
	tests := []struct {
		name     string
		msg      *waE2E.Message
		wantType channels.MessageType
		wantText string
		check    func(t *testing.T, m *channels.IncomingMessage)
	}{
		{
			name:     "conversation",
			msg:      &waE2E.Message{Conversation: proto.String("hello")},
			wantType: channels.MessageText,
			wantText: "hello",
		},
		{
			name: "extended text",
			msg: &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
				Text: proto.String("@bot hi"),
			}},
			wantType: channels.MessageText,
			wantText: "@bot hi",
		},
		{
			name: "voice note",
			msg: &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
				PTT:        proto.Bool(true),
				Mimetype:   proto.String("audio/ogg; codecs=opus"),
				DirectPath: proto.String("/v/t62/abc"),
				Seconds:    proto.Uint32(4),
			}},
			wantType: channels.MessageAudio,
			check: func(t *testing.T, m *channels.IncomingMessage) {
				if m.Media == nil || !m.Media.Voice || m.Media.Duration != 4 {
					t.Errorf("unexpected media %+v", m.Media)
				}
			},
		},
		{
			name: "document with caption",
			msg: &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
				FileName: proto.String("report.pdf"),
				Caption:  proto.String("Q3"),
			}},
			wantType: channels.MessageDocument,
			wantText: "Q3",
			check: func(t *testing.T, m *channels.IncomingMessage) {
				if m.Media.Filename != "report.pdf" {
					t.Errorf("expected filename, got %q", m.Media.Filename)
				}
			},
		},
		{
			name: "location",
			msg: &waE2E.Message{LocationMessage: &waE2E.LocationMessage{
				DegreesLatitude:  proto.Float64(37.7749),
				DegreesLongitude: proto.Float64(-122.4194),
			}},
			wantType: channels.MessageLocation,
			check: func(t *testing.T, m *channels.IncomingMessage) {
				if m.Location == nil || m.Location.Latitude != 37.7749 {
					t.Errorf("unexpected location %+v", m.Location)
				}
			},
		},
		{
			name: "contact",
			msg: &waE2E.Message{ContactMessage: &waE2E.ContactMessage{
				DisplayName: proto.String("Alice"),
			}},
			wantType: channels.MessageContact,
			check: func(t *testing.T, m *channels.IncomingMessage) {
				if m.Contact == nil || m.Contact.DisplayName != "Alice" {
					t.Errorf("unexpected contact %+v", m.Contact)
				}
			},
		},
		{
			name:     "sticker",
			msg:      &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}},
			wantType: channels.MessageSticker,
		},
		{
			name:     "ephemeral wrapper",
			msg:      &waE2E.Message{EphemeralMessage: &waE2E.FutureProofMessage{Message: &waE2E.Message{Conversation: proto.String("inner")}}},
			wantType: channels.MessageText,
			wantText: "inner",
		},
		{
			name:     "unknown",
			msg:      &waE2E.Message{},
			wantType: channels.MessageUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &channels.IncomingMessage{}
			extractMessageContent(unwrapMessage(tt.msg), m, 16)
			if m.Type != tt.wantType {
				t.Errorf("type = %s, want %s", m.Type, tt.wantType)
			}
			if m.Text != tt.wantText {
				t.Errorf("text = %q, want %q", m.Text, tt.wantText)
			}
			if tt.check != nil {
				tt.check(t, m)
			}
		})
	}

	t.Run("oversized media loses download reference", func(t *testing.T) {
		m := &channels.IncomingMessage{}
		extractMessageContent(&waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			DirectPath: proto.String("/big"),
			FileLength: proto.Uint64(20 << 20),
		}}, m, 16)
		if m.Media.DirectPath != "" {
			t.Error("expected direct path to be dropped")
		}
	})
}

func TestMentions(t *testing.T) {
	tests := []struct {
		name     string
		mentions []string
		own      []string
		want     bool
	}{
		{"own phone", []string{"15550001111@s.whatsapp.net"}, []string{"15550001111"}, true},
		{"own lid", []string{"98765@lid"}, []string{"15550001111", "98765"}, true},
		{"device suffix", []string{"15550001111:3@s.whatsapp.net"}, []string{"15550001111"}, true},
		{"someone else", []string{"15559998888@s.whatsapp.net"}, []string{"15550001111"}, false},
		{"no identity", []string{"15550001111@s.whatsapp.net"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mentionsAny(tt.mentions, tt.own); got != tt.want {
				t.Errorf("mentionsAny = %v, want %v", got, tt.want)
			}
		})
	}

	if !hasTrigger("hey @Assistant what's up", "@assistant") {
		t.Error("trigger match must be case-insensitive")
	}
	if hasTrigger("hello", "") {
		t.Error("empty trigger must never match")
	}
}

func TestParseJID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"5511999999999", "5511999999999@s.whatsapp.net", false},
		{"+55 11 99999-9999", "5511999999999@s.whatsapp.net", false},
		{"5511999999999@s.whatsapp.net", "5511999999999@s.whatsapp.net", false},
		{"120363000000000000@g.us", "120363000000000000@g.us", false},
		{"123", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		jid, err := parseJID(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseJID(%q) err = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && jid.String() != tt.want {
			t.Errorf("parseJID(%q) = %s, want %s", tt.in, jid, tt.want)
		}
	}
}

func TestBuildTextMessage(t *testing.T) {
	plain := buildTextMessage("hi", "", "")
	if plain.GetConversation() != "hi" || plain.ExtendedTextMessage != nil {
		t.Errorf("expected plain conversation, got %v", plain)
	}

	quoted := buildTextMessage("re", "MSG1", "1555@s.whatsapp.net")
	ctx := quoted.GetExtendedTextMessage().GetContextInfo()
	if ctx.GetStanzaID() != "MSG1" || ctx.GetParticipant() != "1555@s.whatsapp.net" {
		t.Errorf("unexpected quote context %v", ctx)
	}
}

func TestSenderCache(t *testing.T) {
	c := newSenderCache(2)
	c.put("a", "1")
	c.put("b", "2")
	c.put("c", "3")

	if _, ok := c.get("a"); ok {
		t.Error("oldest entry must be evicted")
	}
	if s, ok := c.get("c"); !ok || s != "3" {
		t.Errorf("expected newest entry, got %q %v", s, ok)
	}
}

func TestNeedsReconnect(t *testing.T) {
	w := New(DefaultConfig(), testLogger())
	cfg := DefaultHealthMonitorConfig()

	w.setState(StateDisconnected)
	if w.needsReconnect(cfg, time.Hour, false) {
		t.Error("never reconnect from a non-connected state")
	}

	w.setState(StateConnected)
	if w.needsReconnect(cfg, time.Minute, false) {
		t.Error("short silence must not trigger")
	}
	if !w.needsReconnect(cfg, 6*time.Minute, false) {
		t.Error("dead socket after silence must trigger")
	}
	if w.needsReconnect(cfg, 6*time.Minute, true) {
		t.Error("live socket below force threshold must not trigger")
	}
	if !w.needsReconnect(cfg, 20*time.Minute, true) {
		t.Error("force threshold must trigger")
	}
}
