package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const intervalRangeReply = "❌ Interval must be between 5 and 120 minutes"

func (b *Bridge) cmdProactive(_ context.Context, req *request) string {
	action, rest := splitAction(req.args)
	chatID := req.msg.ChatID

	switch action {
	case "on":
		minutes := 0
		if rest = strings.TrimSpace(rest); rest != "" {
			n, err := strconv.Atoi(rest)
			if err != nil {
				return intervalRangeReply
			}
			minutes = n
		}
		if err := b.proactive.Enable(req.msg.Channel, chatID, minutes); err != nil {
			if errors.Is(err, errInterval) {
				return intervalRangeReply
			}
			b.logger.Error("enabling proactive mode", "chat", chatID, "error", err)
			return "❌ " + err.Error()
		}
		return fmt.Sprintf("✅ *Proactive mode enabled*\n\nI'll message you every %d minutes with updates.",
			b.proactive.Interval(chatID))

	case "off":
		b.proactive.Disable(chatID)
		return "⏸️ *Proactive mode disabled*"

	case "status":
		return b.proactiveStatus(chatID)

	case "interval":
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return intervalRangeReply
		}
		if err := b.proactive.SetInterval(chatID, n); err != nil {
			if errors.Is(err, errInterval) {
				return intervalRangeReply
			}
			return "❌ " + err.Error()
		}
		return fmt.Sprintf("✅ Interval set to %d minutes", n)
	}

	return "*🤖 Proactive Mode*\n\n" +
		"`/proactive on` - Enable auto-updates\n" +
		"`/proactive off` - Disable\n" +
		"`/proactive status` - Show current status\n" +
		"`/proactive interval <minutes>` - Set interval (5-120)"
}

func (b *Bridge) proactiveStatus(chatID string) string {
	c := b.objectives.Counts()
	var sb strings.Builder
	sb.WriteString("*🤖 Proactive Status*\n\n")
	fmt.Fprintf(&sb, "Mode: %s\n", yesNo(b.proactive.Enabled(chatID), "✅ Enabled", "⏸️ Disabled"))
	fmt.Fprintf(&sb, "Interval: %d minutes\n", b.proactive.Interval(chatID))
	fmt.Fprintf(&sb, "Objectives: %d total\n", c.Total)
	fmt.Fprintf(&sb, "  • Pending: %d\n", c.Pending)
	fmt.Fprintf(&sb, "  • Working: %d\n", c.Working)
	fmt.Fprintf(&sb, "  • Done: %d\n", c.Done)
	fmt.Fprintf(&sb, "Active chats: %d", len(b.proactive.Chats()))
	return sb.String()
}

func (b *Bridge) cmdObjective(_ context.Context, req *request) string {
	action, rest := splitAction(req.args)
	rest = strings.TrimSpace(rest)

	switch action {
	case "add":
		if rest == "" {
			break
		}
		o := b.objectives.Add(rest)
		return fmt.Sprintf("✅ *Objective added* (#%d)\n\n_%s_", o.ID, o.Description)

	case "list":
		items := b.objectives.List()
		if len(items) == 0 {
			return "📋 No objectives set.\n\n_Use `/objective add <description>` to add one._"
		}
		var sb strings.Builder
		sb.WriteString("*📋 Objectives*\n\n")
		for _, o := range items {
			fmt.Fprintf(&sb, "%s #%d: %s\n", objectiveIcon(o.Status), o.ID, o.Description)
		}
		return strings.TrimRight(sb.String(), "\n")

	case "complete", "done":
		id, err := strconv.Atoi(rest)
		if err != nil || !b.objectives.Complete(id) {
			return fmt.Sprintf("❌ Objective #%s not found", rest)
		}
		return fmt.Sprintf("✅ Objective #%d marked complete", id)

	case "clear":
		b.objectives.Clear()
		return "🗑️ All objectives cleared"
	}

	return "*🎯 Objective Commands*\n\n" +
		"`/objective add <description>`\n" +
		"`/objective list`\n" +
		"`/objective complete <id>`\n" +
		"`/objective clear`"
}

func objectiveIcon(s ObjectiveStatus) string {
	switch s {
	case ObjectiveDone:
		return "✅"
	case ObjectiveWorking:
		return "🔄"
	default:
		return "⏳"
	}
}
