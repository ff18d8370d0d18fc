package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/guessmoji/go/internal/client"
	"github.com/mcdev12/guessmoji/go/internal/config"
	"github.com/mcdev12/guessmoji/go/internal/services"
	"github.com/mcdev12/guessmoji/go/internal/session"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	// keep the terminal for the game; only problems are logged
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Level() < zerolog.InfoLevel {
		zerolog.SetGlobalLevel(cfg.Level())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Args()); err != nil {
		if errors.Is(err, client.ErrUsage) || errors.Is(err, session.ErrNoSession) {
			fmt.Fprintln(os.Stderr, err)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string) error {
	kv, err := session.OpenSQLiteKV(cfg.Session.Path)
	if err != nil {
		return err
	}
	defer kv.Close()

	svc, err := services.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	c := client.New(client.Deps{
		Players: svc.Players,
		Rooms:   svc.Rooms,
		Engine:  svc.Engine,
		Chat:    svc.Chat,
		Session: kv,
		Clock:   svc.Clock,
		Out:     os.Stdout,
	})
	return c.Run(ctx, args, os.Stdin)
}
