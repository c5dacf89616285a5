package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/SWCCGArena/rando/internal/bot"
	"github.com/SWCCGArena/rando/internal/config"
	"github.com/SWCCGArena/rando/pkg/swccg"
)

// Headless runner: one bot seat against a GEMP server, no Postgres, no
// Redis, no admin API. Stats and achievements are skipped; chat and play
// work the same as under the server.
func main() {
	cfg := config.Load()
	url := flag.String("url", cfg.GempURL, "GEMP server base URL")
	username := flag.String("username", cfg.GempUsername, "GEMP login")
	brainName := flag.String("brain", cfg.Brain, "brain (static, neural)")
	cardDir := flag.String("cards", cfg.CardJSONDir, "directory with Light.json/Dark.json")
	single := flag.Bool("single", false, "stop after one game instead of rejoining the hall")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	bot.GonnxModelPath = cfg.GonnxModelPath

	if *username == "" {
		log.Fatal().Msg("Username required (-username or GEMP_USERNAME)")
	}
	cfg.GempURL = *url
	cfg.GempUsername = *username
	cfg.Brain = *brainName

	cardDB, err := swccg.LoadCardDB(*cardDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", *cardDir).Msg("Card database load failed")
	}
	log.Info().Int("cards", cardDB.Len()).Msg("Card database loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Received shutdown signal")
		cancel()
	}()

	client, err := bot.NewClient(cfg.GempURL, cfg.GempUsername, cfg.RequestTimeout, cfg.LocalFastMode, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Client setup failed")
	}
	coord := bot.NewCoordinator(client, bot.DefaultPacing(), log.Logger)
	brain := bot.BrainForName(cfg.Brain, cardDB, nil, log.Logger)

	worker := bot.NewWorker(bot.WorkerConfig{
		Name:        cfg.GempUsername,
		Config:      cfg,
		Coordinator: coord,
		CardDB:      cardDB,
		Brain:       brain,
		SingleGame:  *single,
	}, log.Logger)

	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("Worker failed")
	}
	log.Info().Msg("Worker exited")
}
