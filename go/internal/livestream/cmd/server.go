package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/liveshop/go/internal/bus"
	"github.com/mcdev12/liveshop/go/internal/config"
	"github.com/mcdev12/liveshop/go/internal/gateway"
	"github.com/mcdev12/liveshop/go/internal/livestream/control"
	"github.com/mcdev12/liveshop/go/internal/livestream/orchestrator"
	"github.com/mcdev12/liveshop/go/internal/logging"
	"github.com/mcdev12/liveshop/go/internal/metrics"
)

func setupServer(cfg config.Config, orch *orchestrator.Orchestrator, b bus.Bus, met *metrics.Metrics, gw *gateway.Service) *http.Server {
	r := chi.NewRouter()
	r.Use(logging.RequestLogger)
	r.Use(metrics.RequestMiddleware(met))

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	// Control RPC
	controlPath, controlHandler := control.NewHandler(control.NewService(b, orch))
	r.Handle(controlPath+"*", controlHandler)

	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(orch.Snapshot()); err != nil {
			log.Error().Err(err).Msg("failed to write state")
		}
	})
	r.Handle("/metrics", met.Handler())
	setupHealthCheck(r)

	if gw != nil {
		mux := http.NewServeMux()
		gw.RegisterRoutes(mux)
		r.Handle("/ws", mux)
		r.Handle("/ws/stats", mux)
		r.Handle("/history", mux)
	}

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: h2c.NewHandler(c.Handler(r), &http2.Server{}),
	}
}

func setupHealthCheck(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}
