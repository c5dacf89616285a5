package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SWCCGArena/rando/internal/auth"
	"github.com/SWCCGArena/rando/internal/bot"
	"github.com/SWCCGArena/rando/internal/config"
	"github.com/SWCCGArena/rando/internal/handler"
	"github.com/SWCCGArena/rando/internal/logger"
	"github.com/SWCCGArena/rando/internal/middleware"
	"github.com/SWCCGArena/rando/internal/repository/postgres"
	redisrepo "github.com/SWCCGArena/rando/internal/repository/redis"
	"github.com/SWCCGArena/rando/internal/service"
	"github.com/SWCCGArena/rando/pkg/swccg"
)

func main() {
	logger.Init()
	cfg := config.Load()
	bot.GonnxModelPath = cfg.GonnxModelPath
	log.Info().Str("gempURL", cfg.GempURL).Str("brain", cfg.Brain).Msg("Config loaded")

	// Card database
	cardDB, err := swccg.LoadCardDB(cfg.CardJSONDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.CardJSONDir).Msg("Card database load failed")
	}
	log.Info().Int("cards", cardDB.Len()).Msg("Card database loaded")

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Enable Redis keyspace notifications so the watchdog sees status expiry.
	if err := redisClient.Underlying().ConfigSet(context.Background(), "notify-keyspace-events", "Ex").Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to set Redis keyspace notifications (offline detection degrades to polling)")
	}

	// Repos
	userRepo := postgres.NewUserRepo(db)
	statsRepo := postgres.NewStatsRepo(db)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)
	googleOAuth := auth.NewGoogleOAuth(
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.GoogleRedirectURL,
	)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	statsSvc := service.NewStatsService(statsRepo, logger.Get())
	workers := service.NewWorkerManager(cardDB, statsSvc, redisClient, wsHub, logger.Get())
	watchdog := service.NewWatchdog(redisClient.Underlying(), wsHub, workers, logger.Get())

	// Register the configured seat; extra seats can be registered later
	// through the admin API once multi-seat config lands.
	if cfg.GempUsername != "" {
		if err := workers.Register(service.WorkerDef{Name: cfg.GempUsername, Config: cfg}); err != nil {
			log.Fatal().Err(err).Msg("Worker registration failed")
		}
	}

	// Handlers
	authHandler := handler.NewAuthHandler(googleOAuth, jwtMgr, userRepo)
	workerHandler := handler.NewWorkerHandler(workers)
	statsHandler := handler.NewStatsHandler(statsRepo)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth (public)
	mux.HandleFunc("GET /auth/google/login", authHandler.GoogleLogin)
	mux.HandleFunc("GET /auth/google/callback", authHandler.GoogleCallback)
	mux.HandleFunc("POST /auth/refresh", authHandler.RefreshToken)
	mux.HandleFunc("GET /auth/dev", authHandler.DevLogin)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /me", authHandler.Me)
	api.HandleFunc("GET /workers", workerHandler.ListWorkers)
	api.HandleFunc("GET /workers/{name}", workerHandler.GetWorker)
	api.HandleFunc("GET /workers/{name}/board", workerHandler.GetBoard)
	api.HandleFunc("GET /workers/{name}/trace", workerHandler.GetTrace)
	api.HandleFunc("POST /workers/{name}/start", workerHandler.StartWorker)
	api.HandleFunc("POST /workers/{name}/stop", workerHandler.StopWorker)
	api.HandleFunc("GET /stats", statsHandler.Overall)
	api.HandleFunc("GET /games", statsHandler.RecentGames)
	api.HandleFunc("GET /players", statsHandler.TopPlayers)
	api.HandleFunc("GET /players/{name}", statsHandler.Player)
	api.HandleFunc("GET /players/{name}/achievements", statsHandler.PlayerAchievements)
	api.HandleFunc("GET /records/{type}", statsHandler.GlobalRecord)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Logger, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start the watchdog and, when credentials are configured, the bot.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watchdog.Start(ctx)

	if cfg.GempUsername != "" && cfg.GempPassword != "" {
		if err := workers.Start(cfg.GempUsername); err != nil {
			log.Error().Err(err).Msg("Worker autostart failed (start it through the API)")
		}
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()
	workers.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
