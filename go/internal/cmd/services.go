package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/guessmoji/go/internal/config"
	"github.com/mcdev12/guessmoji/go/internal/gateway"
	"github.com/mcdev12/guessmoji/go/internal/models"
	"github.com/mcdev12/guessmoji/go/internal/services"
)

type Gateway struct {
	API         *gateway.Handler
	WebSockets  *gateway.WebSocketHandler
	Connections *gateway.ConnectionManager
}

func setupGateway(cfg *config.Config, svc *services.Services) *Gateway {
	tokens := gateway.NewTokenManager(jwtSecret(cfg), cfg.Gateway.TokenTTL, svc.Clock)

	api := gateway.NewHandler(svc.Players, svc.Rooms, svc.Engine, svc.Chat, tokens, svc.Clock, gateway.HandlerConfig{
		ChatRate:   cfg.Gateway.ChatRate,
		ChatBurst:  cfg.Gateway.ChatBurst,
		GuessRate:  cfg.Gateway.GuessRate,
		GuessBurst: cfg.Gateway.GuessBurst,
	})

	connCfg := gateway.DefaultConnectionConfig()
	connCfg.CheckOrigin = gateway.OriginChecker(cfg.Gateway.AllowedOrigins)

	connections := gateway.NewConnectionManager(connCfg, gateway.ConnectionDeps{
		Rooms:   svc.Rooms,
		Chat:    svc.Chat,
		Clock:   svc.Clock,
		OnFrame: api.HandleFrame,
		OnTimeout: func(ctx context.Context, code string, turn models.Turn) error {
			_, err := svc.Engine.HandleTimeout(ctx, code, turn)
			return err
		},
	})

	return &Gateway{
		API:         api,
		WebSockets:  gateway.NewWebSocketHandler(connections, tokens, svc.Rooms),
		Connections: connections,
	}
}

// jwtSecret falls back to a per-process secret, which logs everyone out on restart.
func jwtSecret(cfg *config.Config) string {
	if cfg.Gateway.JWTSecret != "" {
		return cfg.Gateway.JWTSecret
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Fatal().Err(err).Msg("failed to generate JWT secret")
	}
	log.Warn().Msg("JWT_SECRET is not set, using a random secret")
	return hex.EncodeToString(buf)
}
