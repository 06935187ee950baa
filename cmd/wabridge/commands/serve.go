package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jholhewres/wabridge/pkg/wabridge/bridge"
	"github.com/jholhewres/wabridge/pkg/wabridge/channels"
	"github.com/jholhewres/wabridge/pkg/wabridge/channels/whatsapp"
	"github.com/jholhewres/wabridge/pkg/wabridge/gateway"
)

// newServeCmd creates the `wabridge serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to WhatsApp and start answering messages",
		Long: `Start wabridge as a daemon: link the WhatsApp session, answer
incoming messages and run proactive check-ins. When the gateway is
enabled a small HTTP API exposes health, status and objectives.

Examples:
  wabridge serve
  wabridge serve --config ./config.yaml -v`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, cfg)
	bridge.ResolveAPIKey(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := channels.NewManager(logger)
	wa := whatsapp.New(cfg.Channels.WhatsApp, logger)
	if err := mgr.Register(wa); err != nil {
		return fmt.Errorf("registering WhatsApp: %w", err)
	}

	// Login QR codes arrive while Start blocks on the first connection.
	qr, unsubscribe := wa.SubscribeQR()
	defer unsubscribe()
	go printQR(ctx, qr, cfg.Gateway)

	b := bridge.New(cfg, mgr, logger)

	var gw *gateway.Gateway
	if cfg.Gateway.Enabled {
		gw = gateway.New(cfg.Gateway, b, mgr, logger, gateway.WithQR(wa))
		if err := gw.Start(ctx); err != nil {
			return fmt.Errorf("starting gateway: %w", err)
		}
	}

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start channels: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		mgr.Stop()
		return fmt.Errorf("failed to start bridge: %w", err)
	}
	go b.Run(ctx, mgr.Messages())

	logger.Info("wabridge running. Press Ctrl+C to stop.",
		"name", cfg.Name,
		"auto_reply", cfg.AutoReply,
		"open_mode", len(cfg.AllowedNumbers) == 0,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")
	shutdown(logger, func() {
		if gw != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := gw.Stop(stopCtx); err != nil {
				logger.Warn("gateway shutdown", "error", err)
			}
		}
		// Queued replies drain before the channels and the root context go.
		b.Stop()
		mgr.Stop()
		cancel()
	})
	return nil
}

// shutdown runs stop and gives up after ten seconds.
func shutdown(logger *slog.Logger, stop func()) {
	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}
}

// printQR shows login codes on the terminal until the device is linked.
func printQR(ctx context.Context, events <-chan whatsapp.QREvent, gw gateway.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			switch evt.Type {
			case "code":
				fmt.Println()
				fmt.Println("Scan this code with WhatsApp > Linked devices:")
				fmt.Println(evt.Code)
				if gw.Enabled {
					fmt.Printf("(also available at http://%s/api/qr)\n", gw.Address)
				}
				fmt.Println()
			case "success":
				fmt.Println("Device linked.")
				return
			default:
				fmt.Printf("QR login: %s\n", evt.Message)
			}
		}
	}
}

// newLogger builds the slog logger from the config and the --verbose flag.
func newLogger(cmd *cobra.Command, cfg *bridge.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// resolveConfig loads the config file, offering the setup wizard when none exists.
func resolveConfig(cmd *cobra.Command) (*bridge.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		return loadValidConfig(configPath)
	}

	if found := bridge.FindConfigFile(); found != "" {
		cfg, err := loadValidConfig(found)
		if err != nil {
			return nil, err
		}
		slog.Info("config loaded", "path", found)
		return cfg, nil
	}

	fmt.Println()
	fmt.Println("No configuration file found.")
	fmt.Println("wabridge needs a config.yaml before connecting to WhatsApp.")
	fmt.Println()

	runSetup := true
	err := huh.NewConfirm().
		Title("Run interactive setup now?").
		Affirmative("Yes").
		Negative("No").
		Value(&runSetup).
		Run()
	if err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}
	if !runSetup {
		fmt.Println()
		fmt.Println("Run 'wabridge setup' to create the configuration.")
		return nil, fmt.Errorf("configuration required before starting")
	}

	path, err := runInteractiveSetup()
	if err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}

	cfg, err := loadValidConfig(path)
	if err != nil {
		return nil, err
	}
	slog.Info("config loaded after setup", "path", path)
	return cfg, nil
}

// loadValidConfig loads path and rejects configs the daemon cannot run with.
func loadValidConfig(path string) (*bridge.Config, error) {
	cfg, err := bridge.LoadConfigFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// splitList parses a comma or whitespace separated list.
func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	})
}
