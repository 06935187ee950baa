package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/wabridge/pkg/wabridge/provider"
)

// newHealthCmd creates `wabridge health`, used by Docker HEALTHCHECK and
// monitoring. It queries the gateway of a running `wabridge serve`.
func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running bridge through its gateway",
		Long: `Query /health on the gateway of a running bridge and print the
result. Exits non-zero when the gateway is unreachable or a channel is
disconnected.`,
		RunE: runHealth,
	}
	cmd.Flags().String("addr", "", "gateway address (defaults to gateway.address from the config)")
	cmd.Flags().Duration("timeout", 5*time.Second, "request timeout")
	return cmd
}

func runHealth(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if addr == "" {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !cfg.Gateway.Enabled {
			return fmt.Errorf("gateway disabled in config, pass --addr")
		}
		addr = cfg.Gateway.Address
	}

	client := provider.New(provider.Config{}, silentLogger())
	resp, err := client.Call(context.Background(), &provider.Request{
		Name:    "health",
		Method:  http.MethodGet,
		URL:     "http://" + addr + "/health",
		Timeout: timeout,
	})
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}

	var health struct {
		Status   string            `json:"status"`
		Channels map[string]string `json:"channels"`
	}
	if err := resp.DecodeJSON(&health); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(resp.Body))

	for name, state := range health.Channels {
		if state != "connected" {
			return fmt.Errorf("channel %s disconnected", name)
		}
	}
	return nil
}
