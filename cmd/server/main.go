package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"handraise/config"
	"handraise/internal/app"
	"handraise/internal/kv"
	"handraise/internal/kv/rediskv"
	"handraise/internal/repository"
	"handraise/internal/service"
	"handraise/internal/transport/rest"
	"handraise/internal/transport/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("store setup failed")
	}
	defer cleanup()

	repo, repoCleanup, err := buildArchive(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("archive setup failed")
	}
	defer repoCleanup()

	rooms := service.NewRoomService(store, repo, clockwork.NewRealClock())
	a := &app.App{
		Config:   cfg,
		Rooms:    rooms,
		Sessions: service.NewSessionService(rooms),
		Hub:      ws.NewHub(rooms),
	}

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: rest.NewRouter(a),
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("store", cfg.StoreBackend).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown did not complete cleanly")
	}
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.PrettyLog {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (kv.Store, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		log.Warn().Msg("using in-memory store; state is lost on restart")
		return kv.NewMemory(), func() {}, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, nil, err
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
		return rediskv.New(client, cfg.StoreTimeout), func() { _ = client.Close() }, nil

	default:
		return nil, nil, errors.New("unknown STORE_BACKEND: " + cfg.StoreBackend)
	}
}

func buildArchive(ctx context.Context, cfg *config.Config) (repository.RoomRepo, func(), error) {
	if cfg.MongoURI == "" {
		log.Info().Msg("room archive disabled (MONGO_URI not set)")
		return nil, func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}
	log.Info().Msg("connected to mongodb")

	cleanup := func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	}
	return repository.NewRoomRepo(client, cfg.MongoDatabase), cleanup, nil
}
