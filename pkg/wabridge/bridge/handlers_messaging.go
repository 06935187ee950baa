package bridge

import (
	"context"
	"fmt"

	"github.com/jholhewres/wabridge/pkg/wabridge/channels"
	"github.com/jholhewres/wabridge/pkg/wabridge/media"
)

func (b *Bridge) cmdContacts(ctx context.Context, req *request) string {
	action, rest := splitAction(req.args)
	switch action {
	case "list":
		return b.runTool(ctx, req, "list_contacts", nil)
	case "add":
		if m := headRestPattern.FindStringSubmatch(rest); m != nil {
			return b.runTool(ctx, req, "add_contact", params{"phoneNumber": m[1], "name": m[2]})
		}
		return "Usage: `/contacts add <phone> <name>`"
	case "remove":
		if rest != "" {
			return b.runTool(ctx, req, "remove_contact", params{"name": rest})
		}
	}
	return "*📒 Contact Commands*\n\n" +
		"`/contacts list`\n" +
		"`/contacts add <phone> <name>`\n" +
		"`/contacts remove <name>`"
}

const sendUsage = "*📤 Send Message*\n\n" +
	"Usage: `/send <contact> <message>`\n\n" +
	"*Examples:*\n" +
	"• `/send Mom Happy birthday!`\n" +
	"• `/send +14155551234 Hello!`\n" +
	"• `/send John Meeting at 3pm?`\n\n" +
	"_Contact can be a name (from contacts) or phone number._"

// cmdSend resolves the contact through the backend, falling back to the
// identifier itself when it is a plausible phone number.
func (b *Bridge) cmdSend(ctx context.Context, req *request) string {
	m := headRestPattern.FindStringSubmatch(req.args)
	if m == nil {
		return sendUsage
	}
	identifier, text := m[1], m[2]

	contact, err := b.media.ResolveContact(ctx, identifier)
	if err != nil {
		b.logger.Debug("contact lookup failed", "identifier", identifier, "error", err)
		phone, ok := media.NormalizePhoneNumber(identifier)
		if !ok {
			return fmt.Sprintf("❌ *Contact not found*\n\nCouldn't find %q.\n\n"+
				"_Use a phone number (e.g., +14155551234) or add them to your contacts first._", identifier)
		}
		contact = &media.Contact{PhoneNumber: phone, DisplayName: identifier}
	}

	b.sendToContact(ctx, req.msg, contact, text)
	return ""
}

// sendToContact delivers text to a third party and reports progress to the
// requesting chat.
func (b *Bridge) sendToContact(ctx context.Context, from *channels.IncomingMessage, c *media.Contact, text string) {
	b.reply(ctx, from.Channel, from.ChatID, fmt.Sprintf(
		"📤 *Sending to %s*\n\nMessage: _\"%s\"_\n\n_Sending..._", c.DisplayName, text))

	err := b.out.Send(ctx, from.Channel, c.PhoneNumber, &channels.OutgoingMessage{Content: text})
	if err != nil {
		b.logger.Warn("delivery failed", "kind", "delivery_failed", "to", c.PhoneNumber, "error", err)
		b.reply(ctx, from.Channel, from.ChatID, fmt.Sprintf(
			"❌ *Failed to send to %s*\n\nError: %v", c.DisplayName, err))
		return
	}
	b.audit.Outbound(c.PhoneNumber, text)
	b.logger.Info("owner message relayed", "to", c.PhoneNumber, "preview", preview(text, 50))
	b.reply(ctx, from.Channel, from.ChatID, fmt.Sprintf("✅ *Message sent to %s*", c.DisplayName))
}

func (b *Bridge) cmdBroadcast(ctx context.Context, req *request) string {
	targets := b.access.AllowList()
	if len(targets) == 0 {
		return "📢 *Broadcast*\n\n_No allow-listed contacts to send to._"
	}

	sent := 0
	for _, phone := range targets {
		err := b.out.Send(ctx, req.msg.Channel, phone, &channels.OutgoingMessage{Content: req.args})
		if err != nil {
			b.logger.Warn("delivery failed", "kind", "delivery_failed", "to", phone, "error", err)
			continue
		}
		b.audit.Outbound(phone, req.args)
		sent++
	}
	return fmt.Sprintf("📢 *Broadcast sent*\n\nDelivered to %d of %d contacts.", sent, len(targets))
}
