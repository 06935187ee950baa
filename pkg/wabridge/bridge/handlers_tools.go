package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jholhewres/wabridge/pkg/wabridge/aichat"
)

type params map[string]any

// runTool asks the backend to run one tool and returns its answer.
func (b *Bridge) runTool(ctx context.Context, req *request, tool string, p params) string {
	if p == nil {
		p = params{}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("❌ Error executing %s: %v", tool, err)
	}
	system := fmt.Sprintf("You are %s responding via WhatsApp. Execute the %s tool with the given parameters "+
		"and provide a concise, mobile-friendly response. Use WhatsApp formatting: *bold*, _italic_.", b.cfg.Name, tool)

	reply, err := b.chat.Ask(ctx, []aichat.Turn{{
		Role:    aichat.RoleUser,
		Content: fmt.Sprintf("Use the %s tool with these parameters: %s", tool, raw),
	}}, system, true)
	switch {
	case err != nil:
		return err.Error()
	case reply == "":
		return "No response"
	}
	return reply
}

// splitAction splits "action rest" with the action lower-cased.
func splitAction(args string) (string, string) {
	action, rest, _ := strings.Cut(args, " ")
	return strings.ToLower(action), rest
}

// splitDash splits "a - b" on the first " - ".
func splitDash(s string) (string, string) {
	a, rest, _ := strings.Cut(s, " - ")
	return strings.TrimSpace(a), strings.TrimSpace(rest)
}

var (
	headRestPattern  = regexp.MustCompile(`(?s)^(\S+)\s+(.+)$`)
	quotedJobPattern = regexp.MustCompile(`^["'](.+?)["']\s+(.+)$`)
)

func (b *Bridge) cmdSearch(ctx context.Context, req *request) string {
	return b.runTool(ctx, req, "search_portfolio", params{"query": req.args})
}

func (b *Bridge) cmdSchedule(ctx context.Context, req *request) string {
	return b.runTool(ctx, req, "get_available_times", params{"timeframe": orDefault(req.args, "next week")})
}

func (b *Bridge) cmdWeather(ctx context.Context, req *request) string {
	return b.runTool(ctx, req, "show_weather", params{"location": orDefault(req.args, "San Francisco")})
}

func (b *Bridge) cmdRemember(ctx context.Context, req *request) string {
	return b.runTool(ctx, req, "remember", params{"query": req.args})
}

func (b *Bridge) cmdSkills(ctx context.Context, req *request) string {
	return b.runTool(ctx, req, "list_skills", params{"category": req.args})
}

func (b *Bridge) cmdWeb(ctx context.Context, req *request) string {
	url, question, _ := strings.Cut(req.args, " ")
	return b.runTool(ctx, req, "web_fetch", params{
		"url":    url,
		"prompt": orDefault(strings.TrimSpace(question), "Summarize the main content"),
	})
}

// cmdTool runs "name [json]". Arguments that are not JSON become a query.
func (b *Bridge) cmdTool(ctx context.Context, req *request) string {
	name, rest, _ := strings.Cut(req.args, " ")
	rest = strings.TrimSpace(rest)
	if name == "" {
		return "*Usage:* `/tool <tool_name> [json_args]`\n\nExample: `/tool list_projects`"
	}
	p := params{}
	if rest != "" {
		if err := json.Unmarshal([]byte(rest), &p); err != nil {
			p = params{"query": rest}
		}
	}
	return b.runTool(ctx, req, name, p)
}

type toolGroup struct {
	name  string
	tools []string
}

var toolGroups = []toolGroup{
	{"portfolio", []string{"search_portfolio", "navigate_to", "list_themes"}},
	{"calendar", []string{"schedule_call", "get_available_times", "book_meeting", "cancel_meeting"}},
	{"memory", []string{"remember", "recall_preference", "memorize", "learn", "forget"}},
	{"projects", []string{"create_project", "list_projects", "create_prd", "create_ticket", "update_ticket"}},
	{"coding", []string{"clone_repository", "read_file", "write_file", "run_command", "git_status", "git_commit"}},
	{"cron", []string{"create_cron_job", "list_cron_jobs", "toggle_cron_job", "delete_cron_job"}},
	{"channels", []string{"send_channel_message", "get_channel_conversations", "search_channel_messages"}},
	{"canvas", []string{"create_canvas", "open_canvas", "list_canvases"}},
}

func (b *Bridge) cmdToolsList(_ context.Context, req *request) string {
	category := strings.ToLower(req.args)
	for _, g := range toolGroups {
		if g.name != category {
			continue
		}
		lines := make([]string, len(g.tools))
		for i, t := range g.tools {
			lines[i] = "• `" + t + "`"
		}
		return fmt.Sprintf("*🔧 %s Tools*\n\n%s", strings.ToUpper(g.name), strings.Join(lines, "\n"))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "*🔧 %s Tools*\n\n", b.cfg.Name)
	for _, g := range toolGroups {
		fmt.Fprintf(&sb, "*%s:* %d tools\n", g.name, len(g.tools))
	}
	sb.WriteString("\n_Use `/tools <category>` for details_")
	return sb.String()
}

func (b *Bridge) cmdProject(ctx context.Context, req *request) string {
	action, rest := splitAction(req.args)
	switch action {
	case "list":
		return b.runTool(ctx, req, "list_projects", params{"status": orDefault(rest, "active")})
	case "create":
		name, desc := splitDash(rest)
		return b.runTool(ctx, req, "create_project", params{"name": name, "description": desc})
	case "kanban":
		return b.runTool(ctx, req, "get_project_kanban", params{"projectSlug": rest})
	}
	return "*📋 Project Commands*\n\n" +
		"`/project list` - List all projects\n" +
		"`/project create Name - Description`\n" +
		"`/project kanban ProjectSlug`"
}

func (b *Bridge) cmdTicket(ctx context.Context, req *request) string {
	action, rest := splitAction(req.args)
	switch action {
	case "create":
		title, desc := splitDash(rest)
		return b.runTool(ctx, req, "create_ticket", params{"title": title, "description": desc, "priority": "P1"})
	case "list":
		return b.runTool(ctx, req, "list_coding_tasks", params{"status": orDefault(rest, "all")})
	case "update":
		if m := headRestPattern.FindStringSubmatch(rest); m != nil {
			return b.runTool(ctx, req, "update_ticket", params{"ticketId": m[1], "updates": m[2]})
		}
		return "Usage: `/ticket update TICKET-ID status:done`"
	}
	return "*🎫 Ticket Commands*\n\n" +
		"`/ticket create Title - Description`\n" +
		"`/ticket list [status]`\n" +
		"`/ticket update TICKET-ID status:done`"
}

func (b *Bridge) cmdCode(ctx context.Context, req *request) string {
	action, rest := splitAction(req.args)
	switch action {
	case "clone":
		return b.runTool(ctx, req, "clone_repository", params{"repoUrl": rest})
	case "run":
		return b.runTool(ctx, req, "run_command", params{"command": rest})
	case "read":
		return b.runTool(ctx, req, "read_file", params{"path": rest})
	case "write":
		if m := headRestPattern.FindStringSubmatch(rest); m != nil {
			return b.runTool(ctx, req, "write_file", params{"path": m[1], "content": m[2]})
		}
		return "Usage: `/code write <path> <content>`"
	}
	return "*💻 Code Commands*\n\n" +
		"`/code clone <repo_url>`\n" +
		"`/code run <command>`\n" +
		"`/code read <path>`\n" +
		"`/code write <path> <content>`"
}

func (b *Bridge) cmdGit(ctx context.Context, req *request) string {
	action, rest := splitAction(req.args)
	switch action {
	case "status":
		return b.runTool(ctx, req, "git_status", nil)
	case "diff":
		return b.runTool(ctx, req, "git_diff", params{"filepath": rest})
	case "commit":
		return b.runTool(ctx, req, "git_commit", params{"message": strings.Trim(rest, `"'`)})
	case "push":
		return b.runTool(ctx, req, "git_push", nil)
	}
	return "*📦 Git Commands*\n\n" +
		"`/git status`\n" +
		"`/git diff [file]`\n" +
		"`/git commit \"message\"`\n" +
		"`/git push`"
}

func (b *Bridge) cmdCron(ctx context.Context, req *request) string {
	action, rest := splitAction(req.args)
	switch action {
	case "list":
		return b.runTool(ctx, req, "list_cron_jobs", nil)
	case "create":
		if m := quotedJobPattern.FindStringSubmatch(rest); m != nil {
			return b.runTool(ctx, req, "create_cron_job", params{"name": m[1], "schedule": m[2]})
		}
		return "Usage: `/cron create \"Job Name\" * * * * *`"
	case "toggle":
		return b.runTool(ctx, req, "toggle_cron_job", params{"jobId": rest})
	case "delete":
		return b.runTool(ctx, req, "delete_cron_job", params{"jobId": rest})
	}
	return "*⏰ Cron Commands*\n\n" +
		"`/cron list`\n" +
		"`/cron create \"Name\" * * * * *`\n" +
		"`/cron toggle <job_id>`\n" +
		"`/cron delete <job_id>`"
}

func (b *Bridge) cmdCanvas(ctx context.Context, req *request) string {
	action, rest := splitAction(req.args)
	switch action {
	case "list":
		return b.runTool(ctx, req, "list_canvases", nil)
	case "create":
		kind, name := splitDash(rest)
		return b.runTool(ctx, req, "create_canvas", params{"type": orDefault(kind, "freeform"), "name": name})
	case "open":
		return b.runTool(ctx, req, "open_canvas", params{"canvasId": rest})
	}
	return "*🎨 Canvas Commands*\n\n" +
		"`/canvas list`\n" +
		"`/canvas create <type> - <name>`\n" +
		"`/canvas open <canvas_id>`"
}

func (b *Bridge) cmdReport(ctx context.Context, req *request) string {
	period := orDefault(req.args, "today")
	system := fmt.Sprintf("You are %s generating a status report via WhatsApp.\n"+
		"Generate a brief status report for %s.\n"+
		"Include: what you've been working on, accomplishments, blockers, next steps.\n"+
		"Use WhatsApp formatting: *bold*, _italic_.\n"+
		"Keep it concise and mobile-friendly.", b.cfg.Name, period)
	reply, err := b.chat.Ask(ctx, []aichat.Turn{{
		Role:    aichat.RoleUser,
		Content: "Generate a status report for " + period,
	}}, system, true)
	switch {
	case err != nil:
		return err.Error()
	case reply == "":
		return "Unable to generate report"
	}
	return reply
}

func (b *Bridge) cmdResearch(ctx context.Context, req *request) string {
	return b.agenticTask(ctx, req, "research")
}

func (b *Bridge) cmdBuild(ctx context.Context, req *request) string {
	return b.agenticTask(ctx, req, "build")
}

// agenticTask announces a long task, then relays the backend's first
// answer. Both are sent directly; the handler returns nothing.
func (b *Bridge) agenticTask(ctx context.Context, req *request, kind string) string {
	b.reply(ctx, req.msg.Channel, req.msg.ChatID, fmt.Sprintf(
		"🚀 *Starting %s task...*\n\nTask: _\"%s\"_\n\n_%s will work on this and update you with progress._",
		kind, req.args, b.cfg.Name))

	system := fmt.Sprintf("You are %s working autonomously on a %s task via WhatsApp.\n"+
		"Task: %s\n\n"+
		"Work on this task step by step. You have access to all your tools.\n"+
		"When you complete a step, report your progress concisely.\n"+
		"Use WhatsApp formatting: *bold*, _italic_, ```code```.", b.cfg.Name, kind, req.args)
	reply, err := b.chat.Ask(ctx, []aichat.Turn{{
		Role:    aichat.RoleUser,
		Content: fmt.Sprintf("Start %s task: %s", kind, req.args),
	}}, system, true)
	if err != nil {
		b.logger.Warn("agentic task failed", "kind", kind, "error", err)
		return "❌ " + err.Error()
	}
	return reply
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
