// Package bridge – commands.go holds the slash-command registry.
//
// The registry is static: every entry names a HandlerID from a closed set,
// and dispatch looks the handler up in a table indexed by that id.
package bridge

import (
	"fmt"
	"regexp"
	"strings"
)

// HandlerID identifies a command handler.
type HandlerID int

const (
	handleHelp HandlerID = iota
	handleStatus
	handleClear
	handleVoice

	handleSearch
	handleSchedule
	handleWeather
	handleRemember
	handleSkills
	handleResearch
	handleBuild
	handleTool
	handleToolsList
	handleProject
	handleTicket
	handleCode
	handleGit
	handleCron
	handleReport
	handleWeb
	handleCanvas

	handleContacts
	handleSend
	handleBroadcast

	handleGenerate
	handleImage
	handleMusic

	handleProactive
	handleObjective

	handlerCount
)

// Category groups commands in /help.
type Category string

const (
	CategoryGeneral    Category = "general"
	CategoryTools      Category = "tools"
	CategoryMessaging  Category = "messaging"
	CategoryGeneration Category = "generation"
	CategoryAutonomy   Category = "autonomy"
)

var categoryOrder = []Category{
	CategoryGeneral, CategoryTools, CategoryMessaging, CategoryGeneration, CategoryAutonomy,
}

// Command is a registry entry.
type Command struct {
	Name         string
	Aliases      []string
	Description  string
	Usage        string
	Examples     []string
	Level        AccessLevel
	Category     Category
	RequiresArgs bool
	Handler      HandlerID
}

// commands is the registry, in /help order.
var commands = []*Command{
	{
		Name: "help", Aliases: []string{"h", "?"},
		Description: "Show available commands",
		Usage:       "/help [command]",
		Examples:    []string{"/help", "/help voice"},
		Level:       AccessVisitor, Category: CategoryGeneral, Handler: handleHelp,
	},
	{
		Name: "status", Aliases: []string{"s"},
		Description: "Show bridge status",
		Usage:       "/status",
		Examples:    []string{"/status"},
		Level:       AccessVisitor, Category: CategoryGeneral, Handler: handleStatus,
	},
	{
		Name:        "clear",
		Description: "Clear conversation context",
		Usage:       "/clear",
		Examples:    []string{"/clear"},
		Level:       AccessOwner, Category: CategoryGeneral, Handler: handleClear,
	},
	{
		Name: "voice", Aliases: []string{"v", "speak"},
		Description: "Get a response as a voice message",
		Usage:       "/voice [message]",
		Examples:    []string{"/voice Tell me a joke", "/voice"},
		Level:       AccessCollaborator, Category: CategoryGeneral, Handler: handleVoice,
	},

	{
		Name: "search", Aliases: []string{"find"},
		Description: "Search the portfolio",
		Usage:       "/search <query>",
		Examples:    []string{"/search React projects", "/search AI experience"},
		Level:       AccessCollaborator, Category: CategoryTools, RequiresArgs: true, Handler: handleSearch,
	},
	{
		Name: "schedule", Aliases: []string{"cal", "book"},
		Description: "Check availability or book a meeting",
		Usage:       "/schedule [date/time]",
		Examples:    []string{"/schedule tomorrow", "/schedule next week"},
		Level:       AccessCollaborator, Category: CategoryTools, Handler: handleSchedule,
	},
	{
		Name: "weather", Aliases: []string{"w"},
		Description: "Get weather information",
		Usage:       "/weather [location]",
		Examples:    []string{"/weather San Francisco", "/weather"},
		Level:       AccessVisitor, Category: CategoryTools, Handler: handleWeather,
	},
	{
		Name: "remember", Aliases: []string{"recall", "mem"},
		Description: "Query the assistant's memory",
		Usage:       "/remember <query>",
		Examples:    []string{"/remember our last conversation", "/remember preferences"},
		Level:       AccessCollaborator, Category: CategoryTools, RequiresArgs: true, Handler: handleRemember,
	},
	{
		Name: "skills", Aliases: []string{"sk"},
		Description: "List available AI skills",
		Usage:       "/skills [category]",
		Examples:    []string{"/skills", "/skills creative"},
		Level:       AccessOwner, Category: CategoryTools, Handler: handleSkills,
	},
	{
		Name: "research", Aliases: []string{"r"},
		Description: "Start a research task",
		Usage:       "/research <topic>",
		Examples:    []string{"/research latest AI developments", "/research competitor analysis"},
		Level:       AccessOwner, Category: CategoryTools, RequiresArgs: true, Handler: handleResearch,
	},
	{
		Name: "build", Aliases: []string{"create"},
		Description: "Build a feature or component",
		Usage:       "/build <description>",
		Examples:    []string{"/build new landing page", "/build API endpoint for users"},
		Level:       AccessOwner, Category: CategoryTools, RequiresArgs: true, Handler: handleBuild,
	},
	{
		Name: "tool", Aliases: []string{"t", "run"},
		Description: "Execute a tool directly",
		Usage:       "/tool <tool_name> [args as JSON]",
		Examples: []string{
			"/tool list_projects",
			`/tool create_ticket {"title":"Fix bug"}`,
			`/tool remember {"query":"last meeting"}`,
		},
		Level: AccessOwner, Category: CategoryTools, RequiresArgs: true, Handler: handleTool,
	},
	{
		Name: "tools", Aliases: []string{"toollist"},
		Description: "List available tools",
		Usage:       "/tools [category]",
		Examples:    []string{"/tools", "/tools memory", "/tools coding"},
		Level:       AccessCollaborator, Category: CategoryTools, Handler: handleToolsList,
	},
	{
		Name: "project", Aliases: []string{"proj", "p"},
		Description: "Create or manage projects",
		Usage:       "/project <create|list|kanban> [args]",
		Examples:    []string{"/project list", "/project create MyApp - A cool app idea", "/project kanban MyApp"},
		Level:       AccessOwner, Category: CategoryTools, Handler: handleProject,
	},
	{
		Name: "ticket", Aliases: []string{"task", "issue"},
		Description: "Create or update tickets",
		Usage:       "/ticket <create|update|list> [args]",
		Examples: []string{
			"/ticket create Fix login bug - users cant log in",
			"/ticket list todo",
			"/ticket update PROJ-001 status:done",
		},
		Level: AccessOwner, Category: CategoryTools, RequiresArgs: true, Handler: handleTicket,
	},
	{
		Name: "code", Aliases: []string{"dev"},
		Description: "Execute coding tasks in the sandbox",
		Usage:       "/code <action> [args]",
		Examples:    []string{"/code clone https://github.com/user/repo", "/code run npm test", "/code read src/index.ts"},
		Level:       AccessOwner, Category: CategoryTools, RequiresArgs: true, Handler: handleCode,
	},
	{
		Name:        "git",
		Description: "Git operations",
		Usage:       "/git <status|diff|commit|push>",
		Examples:    []string{"/git status", `/git commit "feat: add login"`, "/git push"},
		Level:       AccessOwner, Category: CategoryTools, RequiresArgs: true, Handler: handleGit,
	},
	{
		Name: "cron", Aliases: []string{"schedule-job", "job"},
		Description: "Manage scheduled jobs",
		Usage:       "/cron <list|create|toggle|delete> [args]",
		Examples:    []string{"/cron list", `/cron create "daily report" 0 9 * * *`, "/cron toggle job_123"},
		Level:       AccessOwner, Category: CategoryTools, Handler: handleCron,
	},
	{
		Name: "report", Aliases: []string{"summary", "sitrep"},
		Description: "Get a status report",
		Usage:       "/report [period]",
		Examples:    []string{"/report", "/report today", "/report week"},
		Level:       AccessOwner, Category: CategoryTools, Handler: handleReport,
	},
	{
		Name: "web", Aliases: []string{"browse", "fetch"},
		Description: "Fetch and analyze web content",
		Usage:       "/web <url> [question]",
		Examples:    []string{"/web https://example.com summarize this", "/web https://news.ycombinator.com top stories"},
		Level:       AccessCollaborator, Category: CategoryTools, RequiresArgs: true, Handler: handleWeb,
	},
	{
		Name: "canvas", Aliases: []string{"design"},
		Description: "Create or manage design canvases",
		Usage:       "/canvas <create|list|open> [args]",
		Examples:    []string{"/canvas list", "/canvas create wireframe - homepage", "/canvas open canvas_123"},
		Level:       AccessOwner, Category: CategoryTools, Handler: handleCanvas,
	},

	{
		Name: "contacts", Aliases: []string{"c"},
		Description: "Manage contacts",
		Usage:       "/contacts [list|add|remove]",
		Examples:    []string{"/contacts list", "/contacts add +1234567890 John"},
		Level:       AccessOwner, Category: CategoryMessaging, Handler: handleContacts,
	},
	{
		Name: "send", Aliases: []string{"msg", "text"},
		Description: "Send a message to a contact",
		Usage:       "/send <contact> <message>",
		Examples:    []string{"/send Mom Happy birthday!", "/send +1234567890 Hello"},
		Level:       AccessOwner, Category: CategoryMessaging, RequiresArgs: true, Handler: handleSend,
	},
	{
		Name: "broadcast", Aliases: []string{"bc"},
		Description: "Send a message to every allow-listed contact",
		Usage:       "/broadcast <message>",
		Examples:    []string{"/broadcast Happy holidays!"},
		Level:       AccessOwner, Category: CategoryMessaging, RequiresArgs: true, Handler: handleBroadcast,
	},

	{
		Name: "generate", Aliases: []string{"gen"},
		Description: "Generate content (music, image)",
		Usage:       "/generate <type> <prompt>",
		Examples:    []string{"/generate music chill lo-fi beat", "/generate image sunset over ocean"},
		Level:       AccessOwner, Category: CategoryGeneration, RequiresArgs: true, Handler: handleGenerate,
	},
	{
		Name: "image", Aliases: []string{"img", "picture"},
		Description: "Generate images from text",
		Usage:       "/image <prompt>",
		Examples:    []string{"/image a futuristic city at sunset", "/image minimalist logo for tech startup"},
		Level:       AccessOwner, Category: CategoryGeneration, RequiresArgs: true, Handler: handleImage,
	},
	{
		Name: "music", Aliases: []string{"m", "song", "beat"},
		Description: "Generate music from a prompt",
		Usage:       "/music <prompt>",
		Examples: []string{
			"/music chill lo-fi beats for studying",
			"/music epic orchestral trailer music",
			"/music 90s hip hop beat with jazzy samples",
		},
		Level: AccessOwner, Category: CategoryGeneration, RequiresArgs: true, Handler: handleMusic,
	},

	{
		Name: "proactive", Aliases: []string{"auto", "autonomous"},
		Description: "Toggle proactive mode",
		Usage:       "/proactive <on|off|status|interval>",
		Examples:    []string{"/proactive on", "/proactive off", "/proactive status", "/proactive interval 30"},
		Level:       AccessOwner, Category: CategoryAutonomy, Handler: handleProactive,
	},
	{
		Name: "objective", Aliases: []string{"goal", "mission"},
		Description: "Set objectives for proactive mode",
		Usage:       "/objective <add|list|complete|clear> [description]",
		Examples:    []string{"/objective add Research competitors", "/objective list", "/objective complete 1"},
		Level:       AccessOwner, Category: CategoryAutonomy, RequiresArgs: true, Handler: handleObjective,
	},
}

// commandIndex maps names and aliases to entries.
var commandIndex = func() map[string]*Command {
	idx := make(map[string]*Command, len(commands)*2)
	for _, c := range commands {
		idx[c.Name] = c
		for _, a := range c.Aliases {
			idx[a] = c
		}
	}
	return idx
}()

// lookupCommand finds a command by name or alias, ignoring case and a
// leading slash.
func lookupCommand(name string) (*Command, bool) {
	c, ok := commandIndex[strings.TrimPrefix(strings.ToLower(name), "/")]
	return c, ok
}

// commandsFor returns the commands available at level, in registry order.
func commandsFor(level AccessLevel) []*Command {
	out := make([]*Command, 0, len(commands))
	for _, c := range commands {
		if level.Allows(c.Level) {
			out = append(out, c)
		}
	}
	return out
}

var commandPattern = regexp.MustCompile(`(?s)^/(\S+)(?:\s+(.*))?$`)

// parseCommand splits "/name args" into a lower-cased name and trimmed
// args. ok is false when text is not a command.
func parseCommand(text string) (name, args string, ok bool) {
	m := commandPattern.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return strings.ToLower(m[1]), strings.TrimSpace(m[2]), true
}

// validate returns the reply for invalid arguments, or "" when args are
// acceptable.
func (c *Command) validate(args string) string {
	if !c.RequiresArgs || args != "" {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*/%s* requires arguments.\n\n*Usage:* %s\n\n*Examples:*\n", c.Name, c.Usage)
	for i, ex := range c.Examples {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("  • " + ex)
	}
	return b.String()
}

// formatHelp lists cmds grouped by category.
func formatHelp(title string, cmds []*Command) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*🤖 %s Commands*\n\n", title)
	for _, cat := range categoryOrder {
		var section []*Command
		for _, c := range cmds {
			if c.Category == cat {
				section = append(section, c)
			}
		}
		if len(section) == 0 {
			continue
		}
		b.WriteString("*" + strings.ToUpper(string(cat)) + "*\n")
		for _, c := range section {
			aliases := ""
			if len(c.Aliases) > 0 {
				aliases = " (" + strings.Join(c.Aliases, ", ") + ")"
			}
			fmt.Fprintf(&b, "/%s%s - %s\n", c.Name, aliases, c.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("_Type /help <command> for details_")
	return b.String()
}

// formatCommandHelp describes one command.
func formatCommandHelp(c *Command) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*/%s*\n%s\n\n*Usage:* `%s`\n*Examples:*\n", c.Name, c.Description, c.Usage)
	for _, ex := range c.Examples {
		b.WriteString("  • " + ex + "\n")
	}
	if len(c.Aliases) > 0 {
		slashed := make([]string, len(c.Aliases))
		for i, a := range c.Aliases {
			slashed[i] = "/" + a
		}
		b.WriteString("\n*Aliases:* " + strings.Join(slashed, ", "))
	}
	return b.String()
}
