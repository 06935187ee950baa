package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jholhewres/wabridge/pkg/wabridge/bridge"
	"github.com/jholhewres/wabridge/pkg/wabridge/channels"
	"github.com/jholhewres/wabridge/pkg/wabridge/channels/console"
)

// newConsoleCmd creates `wabridge console`, a local chat with the bridge.
func newConsoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Chat with the bridge from the terminal",
		Long: `Open a terminal prompt wired to the same pipeline WhatsApp messages
go through. Lines are sent as the owner, so every command is available.
Type exit or press Ctrl+D to leave.

Examples:
  wabridge console
  wabridge console --as 15551234567`,
		RunE: runConsole,
	}
	cmd.Flags().String("as", "", "sender identity (defaults to the owner)")
	return cmd
}

func runConsole(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// Logs go to the terminal too, keep them quiet unless asked.
	if cfg.Logging.Level == "" || cfg.Logging.Level == "info" {
		cfg.Logging.Level = "warn"
	}
	cfg.Logging.Format = "text"
	logger := newLogger(cmd, cfg)
	bridge.ResolveAPIKey(cfg, logger)

	identity, _ := cmd.Flags().GetString("as")
	if identity == "" {
		identity = cfg.Owner
	}

	history := ""
	if home, err := os.UserHomeDir(); err == nil {
		history = filepath.Join(home, ".wabridge_history")
	}

	con := console.New(console.Config{
		Identity:    identity,
		Name:        "operator",
		HistoryFile: history,
	}, logger)

	mgr := channels.NewManager(logger)
	if err := mgr.Register(con); err != nil {
		return fmt.Errorf("registering console: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bridge.New(cfg, mgr, logger)
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("opening console: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		mgr.Stop()
		return fmt.Errorf("failed to start bridge: %w", err)
	}
	go b.Run(ctx, mgr.Messages())

	fmt.Printf("%s is listening. Type /help for commands, exit to quit.\n", cfg.Name)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	select {
	case <-con.Done():
	case <-sigChan:
	}

	shutdown(logger, func() {
		b.Stop()
		mgr.Stop()
		cancel()
	})
	return nil
}
