package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/wabridge/pkg/wabridge/bridge"
)

// newConfigCmd creates `wabridge config` to inspect and manage the configuration.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage the configuration",
		Long: `Inspect and manage the wabridge configuration.

Examples:
  wabridge config init
  wabridge config show
  wabridge config validate
  wabridge config set-key`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
		newConfigValidateCmd(),
		newConfigSetKeyCmd(),
	)

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a config.yaml with defaults",
		Long: `Write config.yaml with default values. The owner is left as an
environment reference, fill it in or export WABRIDGE_OWNER.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			const path = "config.yaml"
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, use 'wabridge setup' to rewrite it", path)
			}

			cfg := bridge.DefaultConfig()
			cfg.Owner = "${WABRIDGE_OWNER}"
			cfg.API.APIKey = "${" + bridge.APIKeyEnv + "}"
			if err := bridge.SaveConfigToFile(cfg, path); err != nil {
				return err
			}
			fmt.Printf("Config created at ./%s\n", path)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			bridge.ResolveAPIKey(cfg, silentLogger())

			cfg.API.APIKey = maskSecret(cfg.API.APIKey)
			cfg.Webhook.Secret = maskSecret(cfg.Webhook.Secret)
			cfg.Gateway.AuthToken = maskSecret(cfg.Gateway.AuthToken)

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}
			fmt.Printf("# %s\n%s", path, data)
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Printf("%s is valid\n", path)
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the API key in the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			if !bridge.KeyringAvailable() {
				return fmt.Errorf("OS keyring unavailable, export %s instead", bridge.APIKeyEnv)
			}
			key, err := bridge.ReadPassword("API key (hidden input): ")
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("empty key, nothing stored")
			}
			if err := bridge.StoreAPIKey(key); err != nil {
				return err
			}
			fmt.Println("API key stored in the OS keyring.")
			return nil
		},
	}
}

// loadConfig loads the config without offering the setup wizard.
func loadConfig(cmd *cobra.Command) (*bridge.Config, string, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = bridge.FindConfigFile()
	}
	if path == "" {
		return nil, "", fmt.Errorf("no configuration file found, run 'wabridge setup'")
	}
	cfg, err := bridge.LoadConfigFromFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config from %s: %w", path, err)
	}
	return cfg, path, nil
}

// maskSecret keeps the last four characters of long secrets.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
