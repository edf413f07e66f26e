package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jensholdgaard/bazaar/internal/blackmarket"
	"github.com/jensholdgaard/bazaar/internal/clock"
	"github.com/jensholdgaard/bazaar/internal/config"
	"github.com/jensholdgaard/bazaar/internal/economy"
	"github.com/jensholdgaard/bazaar/internal/health"
	"github.com/jensholdgaard/bazaar/internal/leader"
	"github.com/jensholdgaard/bazaar/internal/market"
	"github.com/jensholdgaard/bazaar/internal/notify"
	"github.com/jensholdgaard/bazaar/internal/ops"
	"github.com/jensholdgaard/bazaar/internal/session"
	"github.com/jensholdgaard/bazaar/internal/store"
	"github.com/jensholdgaard/bazaar/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/bazaar/internal/store/postgres"
	_ "github.com/jensholdgaard/bazaar/internal/store/sqlite"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

// openSink and onlinePresence are the standalone host adapters: every actor
// is treated as reachable with unlimited capacity. A game-server embedding
// replaces them with real inventory and presence lookups.
type openSink struct{}

func (openSink) CanReceive(context.Context, string) bool { return true }
func (openSink) Grant(context.Context, string, []byte) error { return nil }

type onlinePresence struct{}

func (onlinePresence) IsOnline(string) bool { return true }

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup telemetry.
	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Open store using the configured driver (postgres or sqlite).
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Discord.Enabled {
		notifier, err = notify.NewDiscord(cfg.Discord.WebhookURL, logger)
		if err != nil {
			return fmt.Errorf("creating discord notifier: %w", err)
		}
	}

	registry := session.NewRegistry(nil, logger, tp.TracerProvider)

	marketMgr := market.NewManager(
		repos,
		economy.NewMemoryLedger(),
		openSink{},
		onlinePresence{},
		registry,
		notifier,
		market.Config{
			SellerMultiplier:     cfg.BlackMarket.SellerMultiplier,
			MaxListingsPerSeller: cfg.Market.MaxListingsPerSeller,
			ListingTTL:           cfg.Market.ListingTTL,
		},
		clk, logger, tp.TracerProvider,
	)

	scheduler := blackmarket.NewScheduler(
		repos.Listings, repos.Timers, registry, notifier,
		blackmarket.Config{
			Enabled:         cfg.BlackMarket.Enabled,
			RefreshInterval: cfg.BlackMarket.RefreshInterval,
			DiscountPct:     cfg.BlackMarket.DiscountPct,
		},
		clk, rand.New(rand.NewSource(time.Now().UnixNano())),
		logger, tp.TracerProvider,
	)

	// Setup health checks.
	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	// HTTP server for health checks and operator endpoints (all replicas).
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())
	ops.NewHandler(scheduler, logger).Register(mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "http server error", slog.Any("error", listenErr))
		}
	}()

	// runCore is the work that only the leader may run: the rotation
	// schedule and the expiry sweep mutate shared state.
	runCore := func(ctx context.Context) {
		if startErr := scheduler.Start(ctx); startErr != nil {
			logger.ErrorContext(ctx, "starting scheduler failed", slog.Any("error", startErr))
			return
		}

		go marketMgr.RunExpirySweep(ctx, cfg.Market.SweepInterval)

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "bazaard is running", slog.String("version", version))

		// Block until leadership is lost or the process is shutting down.
		<-ctx.Done()

		healthHandler.SetReady(false)
		scheduler.Stop()
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, leader.Config(cfg.LeaderElection), logger, runCore, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		runCore(ctx)
		logger.Info("shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
