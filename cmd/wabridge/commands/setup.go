package commands

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jholhewres/wabridge/pkg/wabridge/bridge"
)

// newSetupCmd creates the `wabridge setup` command for interactive configuration.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Starts an interactive wizard to create config.yaml.
Asks for the assistant name, owner number, allowed numbers and the
backend URL. The API key goes to the OS keyring, never to the file.

Examples:
  wabridge setup`,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, err := runInteractiveSetup()
			return err
		},
	}
}

// runInteractiveSetup guides the user through config creation and returns
// the path written.
func runInteractiveSetup() (string, error) {
	cfg := bridge.DefaultConfig()

	var (
		owner     string
		allowed   string
		apiKey    string
		interval  = fmt.Sprint(cfg.Proactive.DefaultInterval)
		gatewayOn = cfg.Gateway.Enabled
		path      = "config.yaml"
	)

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║             wabridge Setup Wizard            ║")
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Assistant name").
				Value(&cfg.Name).
				Validate(required("name")),
			huh.NewInput().
				Title("Your phone number (owner)").
				Description("Country code included, e.g. 5511999998888. The owner can run every command.").
				Value(&owner).
				Validate(validateOwner),
			huh.NewText().
				Title("Allowed numbers").
				Description("Collaborators, comma separated. Leave empty to let anyone chat.").
				Value(&allowed).
				Validate(validateAllowed),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Backend base URL").
				Description("Hosts /api/chat, /api/tts, /api/generate and the audit webhook.").
				Value(&cfg.API.BaseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("API key").
				Description("Stored in the OS keyring. Leave empty to use $WABRIDGE_API_KEY.").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Webhook secret").
				Description("Sent as x-webhook-signature with audit events.").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.Webhook.Secret),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Answer free-form messages with the AI?").
				Value(&cfg.AutoReply),
			huh.NewInput().
				Title("Proactive check-in interval (minutes)").
				Value(&interval).
				Validate(validateInterval),
			huh.NewConfirm().
				Title("Enable the HTTP gateway?").
				Description("Health, status, objectives and login QR on " + cfg.Gateway.Address + ".").
				Value(&gatewayOn),
			huh.NewSelect[string]().
				Title("Log format").
				Options(huh.NewOption("JSON", "json"), huh.NewOption("Text", "text")).
				Value(&cfg.Logging.Format),
			huh.NewInput().
				Title("Config file").
				Value(&path).
				Validate(required("path")),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", fmt.Errorf("setup cancelled")
		}
		return "", err
	}

	cfg.Owner = normalizePhone(owner)
	for _, n := range splitList(allowed) {
		cfg.AllowedNumbers = append(cfg.AllowedNumbers, normalizePhone(n))
	}
	fmt.Sscan(interval, &cfg.Proactive.DefaultInterval)
	cfg.Gateway.Enabled = gatewayOn

	if apiKey != "" {
		if err := bridge.StoreAPIKey(apiKey); err != nil {
			fmt.Println("   [!] Could not store the API key in the keyring:", err)
			fmt.Println("   Export it instead: export WABRIDGE_API_KEY=...")
		} else {
			fmt.Println("   API key stored in the OS keyring.")
		}
	}

	// config.yaml never contains the real key.
	cfg.API.APIKey = "${" + bridge.APIKeyEnv + "}"

	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		overwrite := false
		err := huh.NewConfirm().
			Title(path + " exists. Overwrite? A backup is kept.").
			Value(&overwrite).
			Run()
		if err != nil || !overwrite {
			return "", fmt.Errorf("kept existing %s", path)
		}
	}
	if err := bridge.SaveConfigToFile(cfg, path); err != nil {
		return "", err
	}

	fmt.Println()
	fmt.Printf("Config written to %s\n", path)
	fmt.Println("Start the bridge with: wabridge serve")
	fmt.Println()
	return path, nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateOwner(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("the bot needs an owner")
	}
	if len(normalizePhone(s)) < 10 {
		return errors.New("number seems too short, include the country code")
	}
	return nil
}

func validateAllowed(s string) error {
	for _, n := range splitList(s) {
		if len(normalizePhone(n)) < 10 {
			return fmt.Errorf("%q is not a phone number", n)
		}
	}
	return nil
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("enter a full URL, e.g. https://example.com")
	}
	return nil
}

func validateInterval(s string) error {
	var n int
	if _, err := fmt.Sscan(s, &n); err != nil || n < bridge.MinProactiveInterval || n > bridge.MaxProactiveInterval {
		return fmt.Errorf("enter a number between %d and %d", bridge.MinProactiveInterval, bridge.MaxProactiveInterval)
	}
	return nil
}

// normalizePhone keeps only the digits of a phone number.
func normalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
