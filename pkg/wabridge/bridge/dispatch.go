package bridge

import (
	"context"
	"fmt"

	"github.com/jholhewres/wabridge/pkg/wabridge/channels"
)

// handlerTable binds every HandlerID to its function.
func (b *Bridge) handlerTable() [handlerCount]handlerFunc {
	return [handlerCount]handlerFunc{
		handleHelp:   b.cmdHelp,
		handleStatus: b.cmdStatus,
		handleClear:  b.cmdClear,
		handleVoice:  b.cmdVoice,

		handleSearch:    b.cmdSearch,
		handleSchedule:  b.cmdSchedule,
		handleWeather:   b.cmdWeather,
		handleRemember:  b.cmdRemember,
		handleSkills:    b.cmdSkills,
		handleResearch:  b.cmdResearch,
		handleBuild:     b.cmdBuild,
		handleTool:      b.cmdTool,
		handleToolsList: b.cmdToolsList,
		handleProject:   b.cmdProject,
		handleTicket:    b.cmdTicket,
		handleCode:      b.cmdCode,
		handleGit:       b.cmdGit,
		handleCron:      b.cmdCron,
		handleReport:    b.cmdReport,
		handleWeb:       b.cmdWeb,
		handleCanvas:    b.cmdCanvas,

		handleContacts:  b.cmdContacts,
		handleSend:      b.cmdSend,
		handleBroadcast: b.cmdBroadcast,

		handleGenerate: b.cmdGenerate,
		handleImage:    b.cmdImage,
		handleMusic:    b.cmdMusic,

		handleProactive: b.cmdProactive,
		handleObjective: b.cmdObjective,
	}
}

// dispatch runs text as a command. It returns false when text is not a
// command, so the caller can fall through to the chat path.
func (b *Bridge) dispatch(ctx context.Context, msg *channels.IncomingMessage, text string, level AccessLevel) bool {
	name, args, ok := parseCommand(text)
	if !ok {
		return false
	}

	cmd, found := lookupCommand(name)
	if !found {
		b.reply(ctx, msg.Channel, msg.ChatID,
			fmt.Sprintf("❓ Unknown command: */%s*\n\nType */help* to see available commands.", name))
		return true
	}

	if !level.Allows(cmd.Level) {
		b.logger.Info("command denied", "command", cmd.Name, "level", level.String(), "required", cmd.Level.String())
		b.reply(ctx, msg.Channel, msg.ChatID,
			fmt.Sprintf("⛔ You don't have permission to use */%s*.\n\nType */help* to see available commands.", cmd.Name))
		return true
	}

	if problem := cmd.validate(args); problem != "" {
		b.reply(ctx, msg.Channel, msg.ChatID, problem)
		return true
	}

	b.logger.Info("command", "command", cmd.Name, "chat", msg.ChatID, "level", level.String())
	h := b.handlers[cmd.Handler]
	if h == nil {
		b.logger.Error("command has no handler", "command", cmd.Name)
		return true
	}

	out := h(ctx, &request{msg: msg, cmd: cmd, args: args, level: level})
	if out != "" {
		if b.reply(ctx, msg.Channel, msg.ChatID, out) == nil {
			b.audit.Outbound(msg.ChatID, out)
		}
	}
	return true
}
