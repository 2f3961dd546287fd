package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveshop/go/internal/bus"
	"github.com/mcdev12/liveshop/go/internal/config"
	"github.com/mcdev12/liveshop/go/internal/gateway"
	"github.com/mcdev12/liveshop/go/internal/livestream/catalog"
	"github.com/mcdev12/liveshop/go/internal/livestream/orchestrator"
	"github.com/mcdev12/liveshop/go/internal/livestream/poll"
	"github.com/mcdev12/liveshop/go/internal/livestream/script"
	"github.com/mcdev12/liveshop/go/internal/logging"
	"github.com/mcdev12/liveshop/go/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := config.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	cfg := config.NewConfigFromEnv()
	logging.Setup(cfg.LogLevel, cfg.LogFormat, "livestream")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	b, err := bus.Open(cfg.BusDriver, cfg.BusConfig())
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.BusDriver).Msg("failed to open bus")
	}
	defer b.Close()

	cat, err := loadCatalog(cfg.CatalogDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load event catalog")
	}

	met := metrics.New()
	builder := script.NewBuilder(script.NewRand())
	agg := poll.NewAggregator(b, poll.WithLookup(cat), poll.WithMetrics(met))

	orch, err := orchestrator.NewOrchestrator(b, cat, builder, agg, orchestrator.Config{
		TickInterval:   cfg.TickInterval,
		MaxLoops:       cfg.LoopLimit(),
		StrictNoReplay: cfg.StrictNoReplay,
	}, orchestrator.WithMetrics(met))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create orchestrator")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.AutoStart() {
		orch.StartLoop()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := orch.Run(ctx); err != nil {
			log.Fatal().Err(err).Msg("orchestrator failed")
		}
	}()

	// The in-memory bus does not cross processes, so widgets connect here instead of the gateway.
	var gw *gateway.Service
	if cfg.BusDriver == config.BusDriverMemory {
		gwCfg := gateway.DefaultConfig()
		gwCfg.HistoryLimit = cfg.HistoryReplay
		gw = gateway.NewService(gwCfg, b)
		go func() {
			if err := gw.Start(ctx); err != nil {
				log.Error().Err(err).Msg("gateway service failed")
			}
		}()
	}

	server := setupServer(cfg, orch, b, met, gw)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("bus", cfg.BusDriver).
			Bool("auto_start", cfg.AutoStart()).
			Int("max_loops", cfg.LoopLimit()).
			Msg("livestream server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn().Msg("orchestrator did not stop before the shutdown deadline")
	}

	log.Info().Msg("livestream server stopped")
}

func loadCatalog(dir string) (*catalog.Catalog, error) {
	if dir == "" {
		return catalog.Default()
	}
	log.Info().Str("dir", dir).Msg("loading event catalog from disk")
	return catalog.LoadDir(dir)
}
