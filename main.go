package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"harvesttutor/internal/api"
	"harvesttutor/internal/config"
	"harvesttutor/internal/diagnosis"
	"harvesttutor/internal/gateway"
	"harvesttutor/internal/models"
	"harvesttutor/internal/redis"
	"harvesttutor/internal/service/classify"
	"harvesttutor/internal/service/explain"
	"harvesttutor/internal/service/voice"
	"harvesttutor/internal/worker"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 30 * time.Second
	// an analysis stream stays open for the whole cycle
	writeTimeout         = 3 * time.Minute
	idleTimeout          = 60 * time.Second
	shutdownGraceTimeout = 15 * time.Second
	rateLimitWindow      = time.Minute
)

func main() {
	cfg, err := config.Load(os.Getenv(config.EnvConfigPath))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	setupLogging(cfg.BasicConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
	}
	cacheTTL := time.Duration(cfg.Redis.TTL) * time.Minute

	catalog := models.NewCatalog(cfg.Languages)
	classifier := classify.New(cfg.Classifier)

	provCfg, _ := cfg.ExplainerProvider()
	explainer, err := explain.New(ctx, cfg.Explainer.Provider, provCfg, time.Duration(cfg.Explainer.Timeout)*time.Second)
	if err != nil {
		log.Fatalf("init explainer: %v", err)
	}
	if !explainer.Configured() {
		log.Warnf("no API key for %s, explanations will fall back", cfg.Explainer.Provider)
	}
	speech := voice.New(cfg.Voice)
	if rdb != nil {
		cache := redis.NewCache(rdb, "harvest", cacheTTL)
		explainer.WithCache(cache)
		speech.WithCache(cache)
	}

	var gw diagnosis.Gateway
	switch cfg.Gateway.Mode {
	case config.GatewayHTTP:
		gw = gateway.NewHTTP(cfg.Gateway.BaseURL, time.Duration(cfg.Gateway.Timeout)*time.Second)
	default:
		gw = gateway.NewDirect(classifier, explainer, speech, catalog)
	}
	log.Printf("gateway mode: %s", cfg.Gateway.Mode)

	manager := worker.NewManager(diagnosis.New(gw), catalog, worker.Config{
		MaxConcurrent: cfg.BasicConfig.MaxConcurrentAnalyses,
		SessionTTL:    time.Duration(cfg.BasicConfig.SessionIdleTTL) * time.Minute,
	})
	manager.StartJanitor(ctx, time.Duration(cfg.BasicConfig.JanitorInterval)*time.Minute)

	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(), api.CORS(cfg.BasicConfig.AllowedOrigins))
	api.NewHandler(manager, catalog).RegisterRoutes(router)
	api.NewRelay(classifier, explainer, speech, catalog, classifier.Crops()).
		RegisterRoutes(router, api.RateLimit(cfg.BasicConfig.RateLimit, rateLimitWindow))

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("shutdown signal received: %s", sig)
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGraceTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("graceful shutdown failed: %v", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server stopped: %v", err)
		}
	}
}

func setupLogging(basic config.BasicConfig) {
	if basic.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(basic.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
