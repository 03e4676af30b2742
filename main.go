package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lehigh-university-libraries/vision-query/internal/config"
	"github.com/lehigh-university-libraries/vision-query/internal/handlers"
	"github.com/lehigh-university-libraries/vision-query/internal/middleware"
	"github.com/lehigh-university-libraries/vision-query/internal/services/backend"
	"github.com/lehigh-university-libraries/vision-query/internal/services/samples"
	"github.com/lehigh-university-libraries/vision-query/internal/storage"
	"github.com/lehigh-university-libraries/vision-query/internal/utils"
	"github.com/lehigh-university-libraries/vision-query/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	// Console logging until the configured mode is known.
	if err := utils.InitLogger(gin.DebugMode); err != nil {
		panic(err)
	}

	if err := godotenv.Load(); err != nil {
		utils.Logger.Warn("Error loading .env file", zap.Error(err))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		utils.ExitOnError("Unable to load configuration", err)
	}

	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		utils.ExitOnError("Unable to initialise logger", err)
	}
	defer utils.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New("vision-query")
	}

	client, err := backend.New(backend.Config{
		APIURL:  cfg.Backend.APIURL,
		Timeout: cfg.Backend.Timeout,
	}, m)
	if err != nil {
		utils.ExitOnError("Unable to create backend client", err)
	}

	store := storage.New()
	h := handlers.New(ctx, store, client, samples.NewPicker(), m, cfg.Upload.MaxSize)

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.MaxMultipartMemory = cfg.Upload.MaxSize
	r.Use(gin.Recovery(), middleware.Logger(), middleware.Session())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	api := r.Group("/api")
	api.Use(cors.New(corsConfig))

	h.Register(r, api)
	r.GET("/healthcheck", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	go sweepSessions(ctx, store, m, cfg.Session.TTL, cfg.Session.SweepInterval)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		utils.Logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			utils.Logger.Error("Server forced to shutdown", zap.Error(err))
		}
	}()

	utils.Logger.Info("Image processor interface available",
		zap.String("addr", cfg.Server.Addr),
		zap.String("api_url", cfg.Backend.APIURL))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		utils.ExitOnError("Server failed to start", err)
	}
}

func sweepSessions(ctx context.Context, store *storage.SessionStore, m *metrics.Metrics, ttl, interval time.Duration) {
	if ttl <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(ttl); n > 0 {
				utils.Logger.Debug("Swept idle sessions", zap.Int("count", n))
			}
			m.SetSessions(store.Len())
		}
	}
}
