package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fgcbrasil/fgcbrasil/gateway/handlers"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/backend"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/config"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/database"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/session"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/sessions"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/views"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/logger"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/metrics"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: feed=%s mongo=%v redis=%v backend=%s", cfg.Feed.Kind, cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.Backend.URL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := handlers.NewHealthHandler(startTime)

	var rdb *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
		} else {
			logger.Infof("Connected to Redis: %s", addr)
		}
		health.AddCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	var mdb *mongo.Database
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, database.DefaultRetry)
		if err != nil {
			logger.Warnf("%v", err)
		} else {
			defer func() { _ = client.Disconnect(context.Background()) }()
			mdb = client.Database(cfg.MongoDB.Database)
			health.AddCheck("mongo", func(ctx context.Context) error { return client.Ping(ctx, nil) })
		}
	}

	feed, err := profileFeed(cfg, rdb, mdb)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	sessionsSvc := sessions.NewService(sessionRepository(ctx, rdb, mdb, cfg.MongoDB.SessionCollection), cfg.Session.TTL)
	markers := markerStore(rdb)

	newClient, verr := identityClients(ctx, cfg.Auth)
	if verr != nil {
		logger.Warnf("identity: %v", verr)
		health.AddCheck("oidc", func(context.Context) error { return verr })
	}
	registry := session.NewRegistry(feed, newClient, sessionsSvc, cfg.Session.IdleTTL)
	defer registry.CloseAll()
	go registry.RunJanitor(ctx, time.Minute)

	api := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)
	loader := views.NewLoader(api, markers, cfg.Streamers)
	actions := views.NewActions(api, markers, cfg.Session.TTL)

	r := gin.New()
	r.Use(middleware.RequestID(), gin.Logger(), gin.Recovery())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	health.Register(r)
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	// everything below knows the caller's session
	root := r.Group("/", sessionChain(cfg, rdb, registry)...)
	handlers.NewAuthHandler(cfg.Session, registry, sessionsSvc, actions).Register(root)
	handlers.NewSessionHandler(loader).Register(root)
	handlers.NewActionsHandler(actions).Register(root)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	// no write timeout: /session/events holds its response open
	srv := &http.Server{Addr: addr, Handler: r, ReadTimeout: cfg.Server.ReadTimeout}
	go func() {
		logger.Infof("Starting portal gateway on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// stop live stores first so open event streams end
	registry.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
