package bridge

import (
	"context"
	"testing"

	"github.com/jholhewres/wabridge/pkg/wabridge/channels"
)

func TestClassify(t *testing.T) {
	h := newHarness(t, nil, WithTranscriber(&fakeTranscriber{text: "call me back", ok: true}))
	h.out.audio = []byte("ogg")

	tests := []struct {
		name      string
		msg       channels.IncomingMessage
		wantText  string
		wantVoice bool
	}{
		{"text", channels.IncomingMessage{Type: channels.MessageText, Text: "hi"}, "hi", false},
		{"image with caption", channels.IncomingMessage{Type: channels.MessageImage, Text: "look"}, "[Image] look", false},
		{"image caption in media", channels.IncomingMessage{Type: channels.MessageImage, Media: &channels.MediaInfo{Caption: "sunset"}}, "[Image] sunset", false},
		{"image without caption", channels.IncomingMessage{Type: channels.MessageImage, Media: &channels.MediaInfo{}}, "", false},
		{"video", channels.IncomingMessage{Type: channels.MessageVideo, Text: "clip"}, "[Video] clip", false},
		{"document", channels.IncomingMessage{Type: channels.MessageDocument, Text: "invoice", Media: &channels.MediaInfo{Filename: "q3.pdf"}}, "[Document: q3.pdf] invoice", false},
		{"document without caption", channels.IncomingMessage{Type: channels.MessageDocument, Media: &channels.MediaInfo{Filename: "q3.pdf"}}, "", false},
		{"voice", channels.IncomingMessage{Type: channels.MessageAudio}, "[Voice] call me back", true},
		{"sticker", channels.IncomingMessage{Type: channels.MessageSticker}, "[Sticker received]", false},
		{"contact", channels.IncomingMessage{Type: channels.MessageContact, Contact: &channels.ContactInfo{DisplayName: "Ana"}}, "[Contact shared: Ana]", false},
		{"location", channels.IncomingMessage{Type: channels.MessageLocation, Location: &channels.LocationInfo{Latitude: 37.7749, Longitude: -122.4194}}, "[Location: 37.7749, -122.4194]", false},
		{"reaction", channels.IncomingMessage{Type: channels.MessageReaction, Text: "👍"}, "", false},
		{"unknown", channels.IncomingMessage{Type: channels.MessageUnknown}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			got := h.b.classify(context.Background(), &msg)
			if got.Text != tt.wantText || got.Voice != tt.wantVoice {
				t.Errorf("got %+v, want text %q voice %v", got, tt.wantText, tt.wantVoice)
			}
		})
	}

	t.Run("voice download failure", func(t *testing.T) {
		h.out.audio = nil
		got := h.b.classify(context.Background(), &channels.IncomingMessage{Type: channels.MessageAudio})
		if got.Text != transcriptionFailed || !got.Voice {
			t.Errorf("got %+v", got)
		}
	})
}
