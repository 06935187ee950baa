// Package gateway provides the optional HTTP status API of the bridge.
package gateway

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jholhewres/wabridge/pkg/wabridge/channels"
	"github.com/jholhewres/wabridge/pkg/wabridge/channels/whatsapp"
)

// Config configures the HTTP gateway.
type Config struct {
	Enabled     bool     `yaml:"enabled"`
	Address     string   `yaml:"address"`
	AuthToken   string   `yaml:"auth_token"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DefaultConfig returns the gateway defaults: disabled, loopback only.
func DefaultConfig() Config {
	return Config{Address: "127.0.0.1:8086"}
}

// Status is the bridge state exposed on /api/status.
type Status struct {
	Name                string         `json:"name"`
	AutoReply           bool           `json:"auto_reply"`
	OpenMode            bool           `json:"open_mode"`
	ActiveConversations int            `json:"active_conversations"`
	ProactiveChats      []string       `json:"proactive_chats"`
	Objectives          ObjectiveTally `json:"objectives"`
}

// ObjectiveTally counts objectives by status.
type ObjectiveTally struct {
	Pending int `json:"pending"`
	Working int `json:"working"`
	Done    int `json:"done"`
	Total   int `json:"total"`
}

// Objective is one queued objective.
type Objective struct {
	ID          int       `json:"id"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Source is the bridge side of the gateway.
type Source interface {
	Status() Status
	Objectives() []Objective
	AddObjective(description string) Objective
}

// HealthSource reports transport health. channels.Manager implements it.
type HealthSource interface {
	HealthAll() map[string]channels.HealthStatus
}

// QRSource exposes the latest login QR event.
type QRSource interface {
	LastQR() (whatsapp.QREvent, bool)
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithQR exposes /api/qr backed by src.
func WithQR(src QRSource) Option {
	return func(g *Gateway) { g.qr = src }
}

// Gateway is the HTTP status server.
type Gateway struct {
	config    Config
	source    Source
	health    HealthSource
	qr        QRSource
	server    *http.Server
	logger    *slog.Logger
	startedAt time.Time
}

// New creates a Gateway.
func New(cfg Config, source Source, health HealthSource, logger *slog.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = DefaultConfig().Address
	}
	g := &Gateway{
		config:    cfg,
		source:    source,
		health:    health,
		logger:    logger.With("component", "gateway"),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handler returns the routed handler with the middleware chain applied.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health (always public)
	mux.HandleFunc("/health", g.handleHealth)

	mux.HandleFunc("/api/status", g.handleStatus)
	mux.HandleFunc("/api/objectives", g.handleObjectives)
	if g.qr != nil {
		mux.HandleFunc("/api/qr", g.handleQR)
	}

	return g.securityHeadersMiddleware(g.corsMiddleware(g.authMiddleware(mux)))
}

// Start starts the HTTP server in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:              g.config.Address,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if g.config.AuthToken == "" && !isLoopback(g.config.Address) {
		g.logger.Warn("SECURITY: gateway has no auth token and is bound to a non-loopback address",
			"address", g.config.Address)
	}

	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.logger.Error("gateway server error", "error", err)
		}
	}()
	g.logger.Info("gateway started", "address", g.config.Address)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway stopping...")
	return g.server.Shutdown(ctx)
}

func isLoopback(address string) bool {
	host, _, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
