// Package server orchestrates every gateway component: the capability
// registry, payment gate, reliability layer, dispatcher, discovery engine,
// backend caller, orchestrator and usage ledger, exposed over one JSON
// HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/morezero/capability-gateway/internal/config"
	"github.com/morezero/capability-gateway/pkg/backend"
	"github.com/morezero/capability-gateway/pkg/bazaar"
	"github.com/morezero/capability-gateway/pkg/db"
	"github.com/morezero/capability-gateway/pkg/discovery"
	"github.com/morezero/capability-gateway/pkg/dispatcher"
	"github.com/morezero/capability-gateway/pkg/facilitator"
	"github.com/morezero/capability-gateway/pkg/orchestrator"
	"github.com/morezero/capability-gateway/pkg/paymentgate"
	"github.com/morezero/capability-gateway/pkg/planner"
	"github.com/morezero/capability-gateway/pkg/ratelimit"
	"github.com/morezero/capability-gateway/pkg/registry"
	"github.com/morezero/capability-gateway/pkg/reliability"
)

const logPrefix = "server:server"

// gatewayVersion is reported in /do's meta.version field and /status's
// gateway field.
const gatewayVersion = "1.0.0"

// shutdownWindow bounds how long Run waits for in-flight requests to drain
// after a shutdown signal, per spec.md §5.
const shutdownWindow = 20 * time.Second

// Gateway holds every component wired together by Run and threaded through
// the HTTP handlers, the same way the teacher threads one *registry.Registry
// and one *pgxpool.Pool through its subscription handlers.
type Gateway struct {
	cfg         *config.Config
	pool        *pgxpool.Pool
	registry    *registry.Registry
	dispatcher  *dispatcher.Dispatcher
	discovery   *discovery.Engine
	backend     *backend.Client
	reliability *reliability.Registry
	gate        *paymentgate.Gate
	planner     *orchestrator.Planner
	limiter     *ratelimit.Limiter
	ledger      *db.LedgerRepository
	allowList   paymentgate.PeerAllowList

	httpServer *http.Server
}

// New wires every component from cfg against ctx: the registry bootstrap
// load, the database pool and optional migrations, the payment gate's
// background sweep/settlement workers, and every other dependency Run
// threads through the HTTP handlers. ctx governs the lifetime of the
// payment gate's background work; callers that build a Gateway outside Run
// (e.g. tests) own calling Close when done.
func New(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	g := &Gateway{cfg: cfg}

	caps, err := registry.LoadBootstrapFile(cfg.RegistryBootstrapFile)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load capability catalog: %w", logPrefix, err)
	}
	g.registry = registry.New(caps)
	slog.Info(fmt.Sprintf("%s - Loaded %d capabilities from %s", logPrefix, len(caps), cfg.RegistryBootstrapFile))

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	g.pool = pool

	if cfg.RunMigrations {
		files, err := db.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, files); err != nil {
			pool.Close()
			return nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}
	g.ledger = db.NewLedgerRepository(pool)

	g.backend = backend.New(cfg.BackendBypassCredential)
	g.reliability = reliability.NewRegistry()
	g.dispatcher = dispatcher.New(g.registry, nil)

	if cfg.BazaarURL != "" {
		g.discovery = discovery.New(bazaar.New(cfg.BazaarURL), g.registry)
		g.dispatcher = dispatcher.New(g.registry, g.discovery)
	}

	g.allowList = paymentgate.NewPeerAllowList(cfg.AllowLoopback, cfg.AllowListedPeers)
	g.gate = paymentgate.New(paymentgate.Config{
		Facilitator:    facilitator.New(cfg.FacilitatorURL),
		FacilitatorURL: cfg.FacilitatorURL,
		PayoutAddress:  cfg.PayoutAddress,
		Network:        cfg.PaymentNetwork,
		Asset:          cfg.PaymentAsset,
		Scheme:         cfg.PaymentScheme,
		BypassKey:      cfg.TestBypassKey,
		AllowList:      g.allowList,
	})
	g.gate.Run(ctx)

	g.planner = orchestrator.NewPlanner(planner.New(cfg.PlannerBaseURL, cfg.PlannerAPIKey, cfg.PlannerModel))
	g.limiter = ratelimit.New()

	return g, nil
}

// Handler returns the Gateway's full HTTP handler chain, for tests that want
// to drive it with httptest without starting a real listener.
func (g *Gateway) Handler() http.Handler {
	return g.routes()
}

// Close releases the Gateway's background resources: the payment gate's
// settlement queue and the database pool. Run calls this as part of its own
// shutdown sequence; callers of New outside Run must call it themselves.
func (g *Gateway) Close() {
	g.gate.Close()
	g.pool.Close()
}

// Run loads configuration, wires every component, serves HTTP until a
// shutdown signal arrives, then drains and exits.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	setupLogging(cfg.LogLevel)

	if err := cfg.ValidateForServe(); err != nil {
		return fmt.Errorf("%s - invalid configuration: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Starting capability gateway", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, err := New(ctx, cfg)
	if err != nil {
		return err
	}

	g.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: g.routes(),
	}

	go func() {
		slog.Info(fmt.Sprintf("%s - Listening on %s", logPrefix, g.httpServer.Addr))
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - Gateway is ready", logPrefix))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownWindow)
	defer shutdownCancel()
	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error(fmt.Sprintf("%s - HTTP shutdown error: %v", logPrefix, err))
	}
	g.Close()
	cancel()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// routes builds the full handler chain: httprouter for dispatch, the rate
// limiter and security headers as http.Handler middleware, and rs/cors
// wrapping everything per spec.md §6's outbound CORS requirement.
func (g *Gateway) routes() http.Handler {
	r := httprouter.New()

	r.GET("/health", g.handleHealth)
	r.GET("/status", g.handleStatus)
	r.GET("/capabilities", g.handleCapabilities)
	r.GET("/mcp", g.handleMCP)
	r.GET("/providers", g.handleProviders)
	r.GET("/discover", g.handleDiscover)
	r.POST("/do", g.handleDo)
	r.POST("/do/chain", g.handleDoChain)
	r.GET("/usage", g.handleUsageTotals)
	r.GET("/usage/capabilities", g.handleUsageByCapability)
	r.GET("/usage/timeline", g.handleUsageTimeline)

	var handler http.Handler = r
	handler = withCompression(handler)
	handler = withSecurityHeaders(handler)
	handler = withRequestID(handler)
	handler = g.limiter.Middleware(handler)

	c := cors.New(cors.Options{
		AllowedOrigins: splitOrigins(g.cfg.AllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "x-wallet-address", "x-payment", "x-test-key", "payment-signature"},
	})
	return c.Handler(handler)
}
