package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jholhewres/wabridge/pkg/wabridge/channels"
)

func TestLineToMessage(t *testing.T) {
	c := New(Config{Identity: "15551234567"}, nil)
	msg := c.lineToMessage("/status")

	if msg.ChatID != ChatID || msg.From != "15551234567" || msg.FromName != "operator" {
		t.Errorf("unexpected envelope %+v", msg)
	}
	if msg.Type != channels.MessageText || msg.Text != "/status" || msg.ID == "" {
		t.Errorf("unexpected content %+v", msg)
	}
	if msg.IsGroup {
		t.Error("console messages are direct")
	}
}

func TestOutput(t *testing.T) {
	var buf bytes.Buffer
	c := New(Config{}, nil)
	c.out = &buf

	ctx := context.Background()
	c.Send(ctx, ChatID, &channels.OutgoingMessage{Content: "hello"})
	c.Send(ctx, "15550001111@s.whatsapp.net", &channels.OutgoingMessage{Content: "fwd"})
	c.SendMedia(ctx, ChatID, &channels.MediaMessage{Type: channels.MessageAudio, Voice: true, Data: []byte("abc")})
	c.SendReaction(ctx, ChatID, "id", "✅")

	out := buf.String()
	for _, want := range []string{"bot> hello", "[to 15550001111@s.whatsapp.net] fwd", "[voice, 3 bytes]", "✅"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, _, err := c.DownloadMedia(ctx, &channels.IncomingMessage{}); !errors.Is(err, channels.ErrMediaNotSupported) {
		t.Errorf("expected ErrMediaNotSupported, got %v", err)
	}
}
