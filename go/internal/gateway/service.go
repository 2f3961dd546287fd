package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveshop/go/internal/bus"
)

// Service fans bus traffic out to widget websockets and forwards widget input back onto the bus.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	forwarder         *Forwarder
}

// Config holds gateway settings.
type Config struct {
	ConnectionConfig ConnectionConfig
	// HistoryLimit is the number of persisted messages replayed per channel on connect.
	HistoryLimit int
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		HistoryLimit:     100,
	}
}

func NewService(config Config, b bus.Bus) *Service {
	s := &Service{forwarder: NewForwarder(b)}
	s.connectionManager = NewConnectionManager(config.ConnectionConfig, s.handleClientMessage)
	s.wsHandler = NewWebSocketHandler(s.connectionManager, b, config.HistoryLimit)
	s.eventConsumer = NewEventConsumer(s.connectionManager, b)
	return s
}

// Start runs the gateway until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting livestream gateway service")

	if err := s.eventConsumer.Start(ctx); err != nil {
		return fmt.Errorf("start event consumer: %w", err)
	}
	go s.connectionManager.Start(ctx)

	<-ctx.Done()

	log.Info().Msg("livestream gateway service shutting down")
	return s.Stop()
}

func (s *Service) Stop() error {
	if err := s.eventConsumer.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop event consumer")
	}
	log.Info().Msg("livestream gateway service stopped")
	return nil
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.Stats()
}

func (s *Service) handleClientMessage(conn *Connection, msg ClientMessage) error {
	return s.forwarder.Forward(context.Background(), conn.UserID, msg)
}
