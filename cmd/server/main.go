package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/inspirecraft/realtime/internal/api"
	"github.com/inspirecraft/realtime/internal/auth"
	"github.com/inspirecraft/realtime/internal/config"
	"github.com/inspirecraft/realtime/internal/events"
	"github.com/inspirecraft/realtime/internal/logger"
	"github.com/inspirecraft/realtime/internal/metrics"
	"github.com/inspirecraft/realtime/internal/middleware"
	"github.com/inspirecraft/realtime/internal/presence"
	"github.com/inspirecraft/realtime/internal/repository"
	"github.com/inspirecraft/realtime/internal/repository/memory"
	"github.com/inspirecraft/realtime/internal/service"
	"github.com/inspirecraft/realtime/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	logg, err := logger.New(logger.Config{Development: cfg.Server.Development})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer logg.Sync()

	metrics.Init()

	var verifier *auth.Verifier
	if cfg.JWT.Algorithm == "RS256" {
		verifier, err = auth.NewRS256Verifier(cfg.JWT.PublicKeyPath)
	} else {
		verifier, err = auth.NewHS256Verifier(cfg.JWT.Secret)
	}
	if err != nil {
		logg.Fatalw("jwt verifier init", "err", err)
	}

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	var (
		convRepo    repository.ConversationRepo
		msgRepo     repository.MessageRepo
		likeRepo    repository.LikeRepo
		contentRepo repository.ContentRepo
		userRepo    repository.UserRepo
	)
	switch cfg.Store {
	case "memory":
		logg.Infow("using in-memory store")
		convRepo = memory.NewConversationRepo()
		msgRepo = memory.NewMessageRepo()
		likeRepo = memory.NewLikeRepo()
		contentRepo = memory.NewContentRepo()
		userRepo = memory.NewUserRepo()
	default:
		client, err := repository.NewMongoClient(rootCtx, cfg.Mongo.URI)
		if err != nil {
			logg.Fatalw("mongo connect", "err", err)
		}
		defer client.Disconnect(context.Background())
		db := client.Database(cfg.Mongo.Database)
		if err := repository.EnsureIndexes(rootCtx, db); err != nil {
			logg.Fatalw("mongo indexes", "err", err)
		}
		convRepo = repository.NewMongoConversationRepo(db)
		msgRepo = repository.NewMongoMessageRepo(db)
		likeRepo = repository.NewMongoLikeRepo(db)
		contentRepo = repository.NewMongoContentRepo(db)
		userRepo = repository.NewMongoUserRepo(db)
	}

	var rdb *redis.Client
	var presenceStore *presence.Store
	var limiter *middleware.RateLimiter
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		presenceStore = presence.NewStore(rdb, cfg.Redis.Prefix, 2*cfg.PingInterval)
		limiter = middleware.NewRateLimiter(rdb, cfg.Redis.Prefix+":rl", cfg.RateLimit.Limit, cfg.RateWindow)
	}

	var sink service.EventSink
	if cfg.Kafka.Enabled {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logg)
		defer producer.Close()
		sink = producer
	}

	hub := ws.NewHub(logg)
	registry := presence.NewRegistry()
	defer registry.Close()

	if rdb != nil {
		bridge := ws.NewRedisBridge(rdb, cfg.Redis.Prefix+":events", uuid.NewString(), hub, logg)
		hub.SetRelay(bridge)
		go func() {
			if err := bridge.Run(rootCtx); err != nil && rootCtx.Err() == nil {
				logg.Errorw("redis bridge", "err", err)
			}
		}()
	}

	convSvc := service.NewConversationService(convRepo, msgRepo, logg)
	msgSvc := service.NewMessageService(msgRepo, convRepo, hub, sink, logg)
	socialSvc := service.NewSocialService(likeRepo, contentRepo, userRepo, sink, logg)
	reconciler := service.NewReconciler(likeRepo, contentRepo, userRepo, logg)

	wsSrv := ws.NewServer(hub, registry, presenceStore, convSvc, verifier, ws.Options{
		PingInterval:   cfg.PingInterval,
		WriteWait:      cfg.WSWriteWait,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		SendBuffer:     cfg.WS.SendBuffer,
	}, logg)

	handlers := api.NewHandlers(convSvc, msgSvc, socialSvc, reconciler, userRepo, registry, presenceStore, logg)

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	api.Register(app, handlers, wsSrv, auth.Middleware(verifier), limiter)

	metricsSrv := &http.Server{
		Addr:    ":" + cfg.Server.MetricsPort,
		Handler: metrics.Handler(),
	}
	go func() {
		logg.Infow("metrics listening", "port", cfg.Server.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Errorw("metrics server", "err", err)
		}
	}()

	errs := make(chan error, 1)
	go func() {
		logg.Infow("realtime service listening", "port", cfg.Server.Port)
		errs <- app.Listen(":" + cfg.Server.Port)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errs:
		logg.Fatalw("server error", "err", err)
	case s := <-sig:
		logg.Infow("signal received", "signal", s.String())
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber shutdown", "err", err)
	}
	_ = metricsSrv.Shutdown(shutdownCtx)
	logg.Infow("shut down")
}
