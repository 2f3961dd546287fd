package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveshop/go/internal/bus"
	"github.com/mcdev12/liveshop/go/internal/config"
	"github.com/mcdev12/liveshop/go/internal/gateway"
	"github.com/mcdev12/liveshop/go/internal/logging"
)

func main() {
	if err := config.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	cfg := config.NewConfigFromEnv()
	logging.Setup(cfg.LogLevel, cfg.LogFormat, "livestream-gateway")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.BusDriver != config.BusDriverNATS {
		log.Fatal().Str("driver", cfg.BusDriver).Msg("the standalone gateway needs the nats bus; the game server hosts the gateway for the memory bus")
	}

	b, err := bus.Open(cfg.BusDriver, cfg.BusConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open bus")
	}
	defer b.Close()

	log.Info().
		Str("nats_url", cfg.NATSURL).
		Str("addr", cfg.GatewayAddr).
		Msg("starting livestream gateway")

	gwCfg := gateway.DefaultConfig()
	gwCfg.HistoryLimit = cfg.HistoryReplay
	gatewayService := gateway.NewService(gwCfg, b)

	mux := http.NewServeMux()
	gatewayService.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet},
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:        cfg.GatewayAddr,
		Handler:     logging.RequestLogger(c.Handler(mux)),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	log.Info().Msg("livestream gateway shutdown complete")
}
