package whatsapp

import (
	"fmt"
	"strings"
	"time"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/jholhewres/wabridge/pkg/wabridge/channels"
)

// ConnectionState is the transport's connection lifecycle state.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateWaitingQR    ConnectionState = "waiting_qr"
	StateLoggingOut   ConnectionState = "logging_out"
	StateBanned       ConnectionState = "banned"
)

// handleEvent dispatches whatsmeow events.
func (w *WhatsApp) handleEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		w.handleMessageEvt(evt)

	case *events.Connected:
		w.setState(StateConnected)
		w.connected.Store(true)
		w.errorCount.Store(0)
		w.reconnectAttempts.Store(0)
		w.UpdateLastMsgTime()
		w.logger.Info("connected", "jid", w.ownJID())

	case *events.Disconnected:
		previous := w.getState()
		w.setState(StateDisconnected)
		w.connected.Store(false)
		w.logger.Warn("connection lost")
		if previous == StateConnected && w.ctx.Err() == nil {
			go w.attemptReconnect()
		}

	case *events.StreamReplaced:
		w.setState(StateDisconnected)
		w.connected.Store(false)
		w.logger.Error("stream replaced by another client")

	case *events.LoggedOut:
		w.setState(StateDisconnected)
		w.connected.Store(false)
		w.logger.Error("logged out by server, QR login required", "reason", evt.Reason.String())
		go func() {
			if err := w.loginWithQR(w.ctx); err != nil {
				w.logger.Warn("QR re-login did not complete", "error", err)
			}
		}()

	case *events.TemporaryBan:
		w.setState(StateBanned)
		w.connected.Store(false)
		w.logger.Error("temporary ban", "code", evt.Code.String(), "expire", evt.Expire.String())

	case *events.KeepAliveTimeout:
		w.errorCount.Add(1)
		if evt.ErrorCount >= 3 && w.getState() == StateConnected {
			w.logger.Error("keep-alive failing, forcing reconnect", "error_count", evt.ErrorCount)
			w.setState(StateReconnecting)
			w.connected.Store(false)
			go w.attemptReconnect()
		}

	case *events.KeepAliveRestored:
		w.errorCount.Store(0)

	case *events.ConnectFailure:
		w.setState(StateDisconnected)
		w.connected.Store(false)
		permanent := evt.PermanentDisconnectDescription()
		w.logger.Error("connect failure", "reason", evt.Reason.String(), "permanent", permanent)
		if permanent == "" && w.ctx.Err() == nil {
			go w.attemptReconnect()
		}

	case *events.PairSuccess:
		w.logger.Info("device paired", "jid", evt.ID.String(), "platform", evt.Platform)
	}
}

// handleMessageEvt converts an inbound whatsmeow message and emits it.
func (w *WhatsApp) handleMessageEvt(evt *events.Message) {
	w.UpdateLastMsgTime()

	if evt.Info.IsFromMe || evt.Info.Chat.Server == types.BroadcastServer {
		return
	}
	isGroup := evt.Info.IsGroup
	if (isGroup && !w.cfg.RespondToGroups) || (!isGroup && !w.cfg.RespondToDMs) {
		return
	}

	msg := &channels.IncomingMessage{
		ID:        string(evt.Info.ID),
		Channel:   w.Name(),
		From:      w.resolvePhoneJID(evt.Info.Sender),
		FromName:  evt.Info.PushName,
		ChatID:    w.resolvePhoneJID(evt.Info.Chat),
		IsGroup:   isGroup,
		Timestamp: evt.Info.Timestamp,
	}
	if msg.FromName == "" {
		msg.FromName = evt.Info.Sender.User
	}

	waMsg := unwrapMessage(evt.Message)
	extractMessageContent(waMsg, msg, w.cfg.MaxMediaSizeMB)

	ctxInfo := contextInfoOf(waMsg)
	if id := ctxInfo.GetStanzaID(); id != "" {
		msg.ReplyTo = id
	}
	if isGroup {
		msg.Mentioned = w.isMentioned(ctxInfo.GetMentionedJID(), msg.Text)
	}

	w.senders.put(msg.ID, evt.Info.Sender.String())
	w.emitMessage(msg)
}

// resolvePhoneJID maps a LID (linked identity) JID to the phone-number JID
// when the store knows it, so access checks see phone numbers.
func (w *WhatsApp) resolvePhoneJID(jid types.JID) string {
	if jid.Server == types.HiddenUserServer && w.client != nil && w.client.Store != nil {
		if alt, err := w.client.Store.GetAltJID(w.ctx, jid); err == nil && !alt.IsEmpty() {
			return alt.String()
		}
	}
	return jid.String()
}

// isMentioned reports whether the bot's own identity is in mentions or the
// configured trigger word appears in text.
func (w *WhatsApp) isMentioned(mentions []string, text string) bool {
	var own []string
	if w.client != nil && w.client.Store != nil {
		if w.client.Store.ID != nil {
			own = append(own, w.client.Store.ID.User)
		}
		if !w.client.Store.LID.IsEmpty() {
			own = append(own, w.client.Store.LID.User)
		}
	}
	return mentionsAny(mentions, own) || hasTrigger(text, w.cfg.Trigger)
}

// mentionsAny reports whether any mention's user part is one of users.
func mentionsAny(mentions, users []string) bool {
	for _, m := range mentions {
		user, _, _ := strings.Cut(m, "@")
		user, _, _ = strings.Cut(user, ":")
		for _, u := range users {
			if u != "" && user == u {
				return true
			}
		}
	}
	return false
}

func hasTrigger(text, trigger string) bool {
	trigger = strings.TrimSpace(trigger)
	return trigger != "" && strings.Contains(strings.ToLower(text), strings.ToLower(trigger))
}

// unwrapMessage strips ephemeral and view-once envelopes.
func unwrapMessage(m *waE2E.Message) *waE2E.Message {
	for i := 0; i < 3 && m != nil; i++ {
		switch {
		case m.GetEphemeralMessage().GetMessage() != nil:
			m = m.GetEphemeralMessage().GetMessage()
		case m.GetViewOnceMessage().GetMessage() != nil:
			m = m.GetViewOnceMessage().GetMessage()
		case m.GetViewOnceMessageV2().GetMessage() != nil:
			m = m.GetViewOnceMessageV2().GetMessage()
		case m.GetDocumentWithCaptionMessage().GetMessage() != nil:
			m = m.GetDocumentWithCaptionMessage().GetMessage()
		default:
			return m
		}
	}
	return m
}

// extractMessageContent fills msg's type, text and attachment from waMsg.
// Attachments above maxMB are reported without download references.
func extractMessageContent(waMsg *waE2E.Message, msg *channels.IncomingMessage, maxMB int) {
	msg.Type = channels.MessageUnknown
	if waMsg == nil {
		return
	}

	switch {
	case waMsg.Conversation != nil:
		msg.Type = channels.MessageText
		msg.Text = waMsg.GetConversation()

	case waMsg.ExtendedTextMessage != nil:
		msg.Type = channels.MessageText
		msg.Text = waMsg.GetExtendedTextMessage().GetText()

	case waMsg.ImageMessage != nil:
		img := waMsg.GetImageMessage()
		msg.Type = channels.MessageImage
		msg.Text = img.GetCaption()
		msg.Media = &channels.MediaInfo{
			Type:          channels.MessageImage,
			MimeType:      img.GetMimetype(),
			FileSize:      img.GetFileLength(),
			Caption:       img.GetCaption(),
			URL:           img.GetURL(),
			DirectPath:    img.GetDirectPath(),
			MediaKey:      img.GetMediaKey(),
			FileSHA256:    img.GetFileSHA256(),
			FileEncSHA256: img.GetFileEncSHA256(),
		}

	case waMsg.AudioMessage != nil:
		audio := waMsg.GetAudioMessage()
		msg.Type = channels.MessageAudio
		msg.Media = &channels.MediaInfo{
			Type:          channels.MessageAudio,
			MimeType:      audio.GetMimetype(),
			FileSize:      audio.GetFileLength(),
			Duration:      audio.GetSeconds(),
			Voice:         audio.GetPTT(),
			URL:           audio.GetURL(),
			DirectPath:    audio.GetDirectPath(),
			MediaKey:      audio.GetMediaKey(),
			FileSHA256:    audio.GetFileSHA256(),
			FileEncSHA256: audio.GetFileEncSHA256(),
		}

	case waMsg.VideoMessage != nil:
		video := waMsg.GetVideoMessage()
		msg.Type = channels.MessageVideo
		msg.Text = video.GetCaption()
		msg.Media = &channels.MediaInfo{
			Type:          channels.MessageVideo,
			MimeType:      video.GetMimetype(),
			FileSize:      video.GetFileLength(),
			Caption:       video.GetCaption(),
			Duration:      video.GetSeconds(),
			URL:           video.GetURL(),
			DirectPath:    video.GetDirectPath(),
			MediaKey:      video.GetMediaKey(),
			FileSHA256:    video.GetFileSHA256(),
			FileEncSHA256: video.GetFileEncSHA256(),
		}

	case waMsg.DocumentMessage != nil:
		doc := waMsg.GetDocumentMessage()
		msg.Type = channels.MessageDocument
		msg.Text = doc.GetCaption()
		msg.Media = &channels.MediaInfo{
			Type:          channels.MessageDocument,
			MimeType:      doc.GetMimetype(),
			Filename:      doc.GetFileName(),
			FileSize:      doc.GetFileLength(),
			Caption:       doc.GetCaption(),
			URL:           doc.GetURL(),
			DirectPath:    doc.GetDirectPath(),
			MediaKey:      doc.GetMediaKey(),
			FileSHA256:    doc.GetFileSHA256(),
			FileEncSHA256: doc.GetFileEncSHA256(),
		}

	case waMsg.StickerMessage != nil:
		msg.Type = channels.MessageSticker

	case waMsg.LocationMessage != nil:
		loc := waMsg.GetLocationMessage()
		msg.Type = channels.MessageLocation
		msg.Location = &channels.LocationInfo{
			Latitude:  loc.GetDegreesLatitude(),
			Longitude: loc.GetDegreesLongitude(),
			Name:      loc.GetName(),
		}

	case waMsg.LiveLocationMessage != nil:
		loc := waMsg.GetLiveLocationMessage()
		msg.Type = channels.MessageLocation
		msg.Location = &channels.LocationInfo{
			Latitude:  loc.GetDegreesLatitude(),
			Longitude: loc.GetDegreesLongitude(),
		}

	case waMsg.ContactMessage != nil:
		c := waMsg.GetContactMessage()
		msg.Type = channels.MessageContact
		msg.Contact = &channels.ContactInfo{DisplayName: c.GetDisplayName(), VCard: c.GetVcard()}

	case waMsg.ReactionMessage != nil:
		msg.Type = channels.MessageReaction
		msg.Text = waMsg.GetReactionMessage().GetText()
	}

	if msg.Media != nil && maxMB > 0 && msg.Media.FileSize > uint64(maxMB)<<20 {
		msg.Media.DirectPath = ""
		msg.Media.URL = ""
	}
}

// contextInfoOf returns the quote/mention context of any message kind.
func contextInfoOf(m *waE2E.Message) *waE2E.ContextInfo {
	switch {
	case m == nil:
		return nil
	case m.ExtendedTextMessage != nil:
		return m.GetExtendedTextMessage().GetContextInfo()
	case m.ImageMessage != nil:
		return m.GetImageMessage().GetContextInfo()
	case m.AudioMessage != nil:
		return m.GetAudioMessage().GetContextInfo()
	case m.VideoMessage != nil:
		return m.GetVideoMessage().GetContextInfo()
	case m.DocumentMessage != nil:
		return m.GetDocumentMessage().GetContextInfo()
	case m.StickerMessage != nil:
		return m.GetStickerMessage().GetContextInfo()
	}
	return nil
}

// parseJID accepts "5511999999999", "+55 11 99999-9999",
// "5511999999999@s.whatsapp.net" or a group id "123-456@g.us".
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}
	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}

// UpdateLastMsgTime records connection activity for the health monitor.
func (w *WhatsApp) UpdateLastMsgTime() {
	w.lastMsg.Store(time.Now())
}
