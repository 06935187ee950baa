package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jholhewres/wabridge/pkg/wabridge/channels"
	"github.com/jholhewres/wabridge/pkg/wabridge/media"
	"github.com/jholhewres/wabridge/pkg/wabridge/provider"
)

func (b *Bridge) cmdGenerate(ctx context.Context, req *request) string {
	m := headRestPattern.FindStringSubmatch(req.args)
	if m == nil {
		return "*🎨 Generate Content*\n\n" +
			"Usage: `/generate <type> <prompt>`\n\n" +
			"*Types:* music, image, video\n\n" +
			"*Examples:*\n" +
			"• `/generate music chill lo-fi beat`\n" +
			"• `/generate image sunset over ocean`"
	}
	kind, prompt := m[1], m[2]
	switch strings.ToLower(kind) {
	case "music":
		return b.generateMusic(ctx, req.msg, prompt)
	case "image":
		return b.generateImage(ctx, req.msg, prompt)
	case "video":
		return "🎬 *Video generation* coming soon!"
	}
	return fmt.Sprintf("❓ Unknown type: %s. Use music, image, or video.", kind)
}

func (b *Bridge) cmdImage(ctx context.Context, req *request) string {
	return b.generateImage(ctx, req.msg, req.args)
}

func (b *Bridge) cmdMusic(ctx context.Context, req *request) string {
	return b.generateMusic(ctx, req.msg, req.args)
}

const imageFetchTimeout = 60 * time.Second

func (b *Bridge) generateImage(ctx context.Context, msg *channels.IncomingMessage, prompt string) string {
	b.reply(ctx, msg.Channel, msg.ChatID, fmt.Sprintf(
		"🎨 *Generating image...*\n\nPrompt: _\"%s\"_\n\n_This may take 15-30 seconds._", prompt))

	url, err := b.media.Image(ctx, prompt)
	if err != nil {
		b.logger.Warn("image generation failed", "error", err)
		if f, ok := provider.AsFailure(err); ok && f.Kind == provider.FailureHTTP {
			return "❌ Image generation failed. Service may be unavailable."
		}
		return "❌ Error: " + err.Error()
	}
	if url == "" {
		return "❌ No image generated"
	}

	data, err := b.media.Fetch(ctx, url, imageFetchTimeout)
	if err != nil {
		b.logger.Warn("image download failed", "url", url, "error", err)
		return "❌ Error: " + err.Error()
	}
	err = b.out.SendMedia(ctx, msg.Channel, msg.ChatID, &channels.MediaMessage{
		Type:     channels.MessageImage,
		Data:     data,
		Caption:  fmt.Sprintf("🖼️ _\"%s\"_", prompt),
		Filename: "image.png",
	})
	if err != nil {
		b.logger.Warn("delivery failed", "kind", "delivery_failed", "chat", msg.ChatID, "media", "image", "error", err)
		return "❌ Error: " + err.Error()
	}
	return ""
}

func (b *Bridge) generateMusic(ctx context.Context, msg *channels.IncomingMessage, prompt string) string {
	b.reply(ctx, msg.Channel, msg.ChatID, fmt.Sprintf(
		"🎵 *Generating music...*\n\nPrompt: _\"%s\"_\n\n"+
			"_This may take 30-90 seconds. I'll send the track when it's ready._", prompt))

	track, err := b.media.Music(ctx, prompt)
	if err != nil {
		b.logger.Warn("music generation failed", "error", err)
		return "❌ *Music generation failed*\n\n" + musicFailure(err)
	}

	err = b.out.SendMedia(ctx, msg.Channel, msg.ChatID, &channels.MediaMessage{
		Type:     channels.MessageAudio,
		Data:     track.Audio,
		MimeType: "audio/mpeg",
		Filename: fmt.Sprintf("track-%d.mp3", b.now().Unix()),
		Caption:  musicCaption(track, prompt),
	})
	if err != nil {
		b.logger.Warn("delivery failed", "kind", "delivery_failed", "chat", msg.ChatID, "media", "audio", "error", err)
		return "❌ *Music generation failed*\n\nError: " + err.Error()
	}
	return ""
}

// musicFailure renders a music error for the chat.
func musicFailure(err error) string {
	if errors.Is(err, media.ErrGenerationFailed) {
		return "The generation encountered an error.\n\n_Try a different prompt or shorter duration._"
	}
	f, ok := provider.AsFailure(err)
	if !ok {
		return "Error: " + err.Error() + "\n\n_Please check that the music generation service is running._"
	}

	switch {
	case f.Kind == provider.FailureTimeout:
		return "Generation timed out after 5 minutes.\n\n_Try a simpler prompt or shorter duration._"
	case f.Status == 503:
		return "The music generation service is not configured or unavailable."
	case f.Status == 429:
		return fmt.Sprintf("Rate limit exceeded. You can generate up to 10 tracks per hour.\n\n_Try again in %d seconds_",
			retryAfter(f.Body))
	case f.Status == 500:
		return "Music generation service encountered an error."
	}

	detail := f.Detail
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(f.Body, &body) == nil && body.Error != "" {
		detail = body.Error
	}
	return "Error: " + detail + "\n\n_Please check that the music generation service is running._"
}

// retryAfter reads retryAfter from an error body, defaulting to 60.
func retryAfter(body []byte) int {
	var v struct {
		RetryAfter int `json:"retryAfter"`
	}
	if json.Unmarshal(body, &v) != nil || v.RetryAfter <= 0 {
		return 60
	}
	return v.RetryAfter
}

func musicCaption(t *media.Track, prompt string) string {
	return fmt.Sprintf("🎵 *%s*\n\nPrompt: _\"%s\"_\nDuration: %ds\nBPM: %s\nKey: %s",
		orDefault(t.Title, "Generated Track"), prompt, t.Duration,
		orDefault(t.BPM, "Unknown"), orDefault(t.Key, "Unknown"))
}
