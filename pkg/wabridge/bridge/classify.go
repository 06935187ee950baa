package bridge

import (
	"context"
	"strconv"

	"github.com/jholhewres/wabridge/pkg/wabridge/channels"
)

const transcriptionFailed = "[Voice message - transcription failed]"

// classified is an inbound payload reduced to text.
type classified struct {
	// Text is what the dispatcher and the AI see. Empty means drop.
	Text string

	// Voice is set for audio payloads, transcribed or not.
	Voice bool
}

// classify reduces msg to a single text line. Captionless media and
// unknown payloads yield an empty Text.
func (b *Bridge) classify(ctx context.Context, msg *channels.IncomingMessage) classified {
	switch msg.Type {
	case channels.MessageText:
		return classified{Text: msg.Text}

	case channels.MessageImage:
		if c := caption(msg); c != "" {
			return classified{Text: "[Image] " + c}
		}

	case channels.MessageVideo:
		if c := caption(msg); c != "" {
			return classified{Text: "[Video] " + c}
		}

	case channels.MessageDocument:
		if c := caption(msg); c != "" {
			name := ""
			if msg.Media != nil {
				name = msg.Media.Filename
			}
			return classified{Text: "[Document: " + name + "] " + c}
		}

	case channels.MessageAudio:
		out := classified{Voice: true, Text: transcriptionFailed}
		if t, ok := b.transcribeVoice(ctx, msg); ok {
			out.Text = "[Voice] " + t
		}
		return out

	case channels.MessageSticker:
		return classified{Text: "[Sticker received]"}

	case channels.MessageContact:
		name := ""
		if msg.Contact != nil {
			name = msg.Contact.DisplayName
		}
		return classified{Text: "[Contact shared: " + name + "]"}

	case channels.MessageLocation:
		if msg.Location != nil {
			return classified{Text: "[Location: " +
				strconv.FormatFloat(msg.Location.Latitude, 'f', -1, 64) + ", " +
				strconv.FormatFloat(msg.Location.Longitude, 'f', -1, 64) + "]"}
		}
	}
	return classified{}
}

func caption(msg *channels.IncomingMessage) string {
	if msg.Text != "" {
		return msg.Text
	}
	if msg.Media != nil {
		return msg.Media.Caption
	}
	return ""
}

// transcribeVoice downloads the audio and runs the transcription chain.
func (b *Bridge) transcribeVoice(ctx context.Context, msg *channels.IncomingMessage) (string, bool) {
	audio, mime, err := b.out.DownloadMedia(ctx, msg)
	if err != nil {
		b.logger.Warn("voice download failed", "chat", msg.ChatID, "error", err)
		return "", false
	}
	if mime == "" && msg.Media != nil {
		mime = msg.Media.MimeType
	}
	return b.transcriber.Transcribe(ctx, audio, mime)
}
