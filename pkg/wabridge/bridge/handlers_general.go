package bridge

import (
	"context"
	"fmt"
)

func (b *Bridge) cmdHelp(_ context.Context, req *request) string {
	if req.args != "" {
		if c, ok := lookupCommand(req.args); ok {
			return formatCommandHelp(c)
		}
		return fmt.Sprintf("❓ Unknown command: */%s*", req.args)
	}
	return formatHelp(b.cfg.Name, commandsFor(req.level))
}

func (b *Bridge) cmdStatus(_ context.Context, req *request) string {
	return fmt.Sprintf("🤖 *%s Status*\n\n✅ Connected: %s\n💬 Active conversations: %d\n🔄 Auto-reply: %s",
		b.cfg.Name,
		yesNo(b.out.IsConnected(req.msg.Channel), "Yes", "No"),
		b.store.Count(),
		yesNo(b.cfg.AutoReply, "Enabled", "Disabled"),
	)
}

func (b *Bridge) cmdClear(_ context.Context, req *request) string {
	b.store.Clear(req.msg.ChatID)
	return "🗑️ Conversation context cleared."
}

// cmdVoice answers args with a voice note right away. Without args it arms
// voice mode for the chat's next message.
func (b *Bridge) cmdVoice(ctx context.Context, req *request) string {
	conv := b.store.Get(req.msg.ChatID)
	if req.args == "" {
		conv.SetRespondWithVoice(true)
		return "🎙️ *Voice mode on*\n\n_Your next message will be answered with a voice note._"
	}

	conv.AppendUserTurn(req.args)
	reply, err := b.chat.Ask(ctx, conv.Turns(), b.systemPrompt(req.senderName()), false)
	if err != nil {
		return "Error: " + err.Error()
	}
	if reply == "" {
		return ""
	}
	conv.AppendAssistantTurn(reply)
	conv.SetRespondWithVoice(false)

	if b.sendVoice(ctx, req.msg.Channel, req.msg.ChatID, reply) {
		return voiceCaption(reply)
	}
	return reply
}

func yesNo(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}
