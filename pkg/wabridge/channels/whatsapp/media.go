package whatsapp

import (
	"context"
	"fmt"
	"net/http"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"github.com/jholhewres/wabridge/pkg/wabridge/channels"
)

// buildTextMessage builds a plain or quoting text message.
func buildTextMessage(text, replyTo, quotedSender string) *waE2E.Message {
	if replyTo == "" {
		return &waE2E.Message{Conversation: proto.String(text)}
	}
	ctxInfo := &waE2E.ContextInfo{
		StanzaID:      proto.String(replyTo),
		QuotedMessage: &waE2E.Message{Conversation: proto.String("")},
	}
	if quotedSender != "" {
		ctxInfo.Participant = proto.String(quotedSender)
	}
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(text),
			ContextInfo: ctxInfo,
		},
	}
}

// buildMediaMessage uploads media.Data and wraps the upload in the message
// kind matching media.Type.
func (w *WhatsApp) buildMediaMessage(ctx context.Context, media *channels.MediaMessage) (*waE2E.Message, error) {
	if len(media.Data) == 0 {
		return nil, fmt.Errorf("empty media payload")
	}
	mimeType := media.MimeType
	if mimeType == "" {
		mimeType = http.DetectContentType(media.Data)
	}

	switch media.Type {
	case channels.MessageImage:
		up, err := w.client.Upload(ctx, media.Data, whatsmeow.MediaImage)
		if err != nil {
			return nil, fmt.Errorf("uploading image: %w", err)
		}
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       optString(media.Caption),
			Mimetype:      proto.String(mimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}, nil

	case channels.MessageAudio:
		if media.Voice && media.MimeType == "" {
			mimeType = "audio/ogg; codecs=opus"
		}
		up, err := w.client.Upload(ctx, media.Data, whatsmeow.MediaAudio)
		if err != nil {
			return nil, fmt.Errorf("uploading audio: %w", err)
		}
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			Mimetype:      proto.String(mimeType),
			PTT:           proto.Bool(media.Voice),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}, nil

	case channels.MessageVideo:
		up, err := w.client.Upload(ctx, media.Data, whatsmeow.MediaVideo)
		if err != nil {
			return nil, fmt.Errorf("uploading video: %w", err)
		}
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption:       optString(media.Caption),
			Mimetype:      proto.String(mimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}, nil

	case channels.MessageDocument:
		up, err := w.client.Upload(ctx, media.Data, whatsmeow.MediaDocument)
		if err != nil {
			return nil, fmt.Errorf("uploading document: %w", err)
		}
		name := media.Filename
		if name == "" {
			name = "file"
		}
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Caption:       optString(media.Caption),
			FileName:      proto.String(name),
			Title:         proto.String(name),
			Mimetype:      proto.String(mimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}, nil
	}
	return nil, fmt.Errorf("%w: %s", channels.ErrMediaNotSupported, media.Type)
}

// downloadMedia rebuilds the downloadable message from the stored
// references and lets whatsmeow fetch and decrypt it.
func (w *WhatsApp) downloadMedia(ctx context.Context, info *channels.MediaInfo) ([]byte, string, error) {
	if info.DirectPath == "" && info.URL == "" {
		return nil, "", fmt.Errorf("media has no download reference (too large or expired)")
	}

	var msg whatsmeow.DownloadableMessage
	switch info.Type {
	case channels.MessageImage:
		msg = &waE2E.ImageMessage{
			URL: proto.String(info.URL), DirectPath: proto.String(info.DirectPath),
			MediaKey: info.MediaKey, FileSHA256: info.FileSHA256, FileEncSHA256: info.FileEncSHA256,
			FileLength: proto.Uint64(info.FileSize), Mimetype: proto.String(info.MimeType),
		}
	case channels.MessageAudio:
		msg = &waE2E.AudioMessage{
			URL: proto.String(info.URL), DirectPath: proto.String(info.DirectPath),
			MediaKey: info.MediaKey, FileSHA256: info.FileSHA256, FileEncSHA256: info.FileEncSHA256,
			FileLength: proto.Uint64(info.FileSize), Mimetype: proto.String(info.MimeType),
		}
	case channels.MessageVideo:
		msg = &waE2E.VideoMessage{
			URL: proto.String(info.URL), DirectPath: proto.String(info.DirectPath),
			MediaKey: info.MediaKey, FileSHA256: info.FileSHA256, FileEncSHA256: info.FileEncSHA256,
			FileLength: proto.Uint64(info.FileSize), Mimetype: proto.String(info.MimeType),
		}
	case channels.MessageDocument:
		msg = &waE2E.DocumentMessage{
			URL: proto.String(info.URL), DirectPath: proto.String(info.DirectPath),
			MediaKey: info.MediaKey, FileSHA256: info.FileSHA256, FileEncSHA256: info.FileEncSHA256,
			FileLength: proto.Uint64(info.FileSize), Mimetype: proto.String(info.MimeType),
		}
	default:
		return nil, "", fmt.Errorf("%w: %s", channels.ErrMediaNotSupported, info.Type)
	}

	data, err := w.client.Download(ctx, msg)
	if err != nil {
		return nil, "", fmt.Errorf("downloading %s: %w", info.Type, err)
	}
	return data, info.MimeType, nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return proto.String(s)
}
