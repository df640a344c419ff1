package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/Lunnius/Npstest/config"
	"github.com/Lunnius/Npstest/handler"
	"github.com/Lunnius/Npstest/middleware"
	"github.com/Lunnius/Npstest/pkg/document"
	"github.com/Lunnius/Npstest/pkg/logger"
	"github.com/Lunnius/Npstest/service"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

const configPathEnv = "NPSTEST_CONFIG"

func main() {
	path := os.Getenv(configPathEnv)
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("failed to load config", "path", path, "error", err)
		os.Exit(1)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully",
		"database", cfg.Database.Driver,
		"storage", cfg.Storage.Driver,
		"timezone", cfg.Render.Location().String(),
	)

	ctx := context.Background()

	ledger, pool, err := newLedger(ctx, &cfg.Database)
	if err != nil {
		slog.Error("failed to initialize ledger", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	store, err := newArtifactStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize artifact store", "error", err)
		os.Exit(1)
	}

	renderer, err := document.NewRenderer(
		document.WithLocation(cfg.Render.Location()),
		document.WithBackground(cfg.Render.Background),
	)
	if err != nil {
		slog.Error("failed to initialize renderer", "error", err)
		os.Exit(1)
	}

	processHandler := handler.NewProcessHandler(service.NewProcessService(ledger, store, renderer))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(corsMiddleware())
	router.Use(noCacheMiddleware())
	router.Use(middleware.RateLimit(cfg.Server.RateLimit))

	router.GET("/health", healthHandler(pool))
	processHandler.Register(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		return
	}

	slog.Info("server exited gracefully")
}

// newLedger opens the configured ledger. The pool is nil for the memory driver.
func newLedger(ctx context.Context, cfg *config.DatabaseConfig) (service.Ledger, *pgxpool.Pool, error) {
	if cfg.Driver != config.DriverPostgres {
		slog.Warn("using in-memory ledger, data is lost on restart")
		return service.NewMemoryLedger(), nil, nil
	}

	pool, err := service.NewPostgresPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	ledger := service.NewPostgresLedger(pool)
	if err := ledger.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return ledger, pool, nil
}

func newArtifactStore(ctx context.Context, cfg *config.Config) (service.ArtifactStore, error) {
	if cfg.Storage.Driver != config.DriverMinio {
		slog.Warn("using in-memory artifact store, documents are lost on restart")
		return service.NewMemoryArtifactStore(cfg.Storage.BaseURL), nil
	}

	store, err := service.NewMinioStore(&cfg.Minio)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func healthHandler(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if pool != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "degraded",
					"error":  "database unreachable",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// noCacheMiddleware keeps process state and signed links out of caches
func noCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Next()
	}
}
