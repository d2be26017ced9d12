// Command api serves the HTTP surface of spec.md §6 and runs the discovery
// path (spec.md §2) on demand. Boot sequence follows the teacher's
// api/cmd/main.go: config -> logger -> database -> migrations -> Redis ->
// services -> router.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/balajiparimelazhagan/fincoach-api/internal/api"
	"github.com/balajiparimelazhagan/fincoach-api/internal/clustering"
	"github.com/balajiparimelazhagan/fincoach-api/internal/config"
	"github.com/balajiparimelazhagan/fincoach-api/internal/database"
	"github.com/balajiparimelazhagan/fincoach-api/internal/discovery"
	"github.com/balajiparimelazhagan/fincoach-api/internal/locking"
	"github.com/balajiparimelazhagan/fincoach-api/internal/persistence"
	"github.com/balajiparimelazhagan/fincoach-api/internal/secrets"
	"github.com/balajiparimelazhagan/fincoach-api/internal/service"
	"github.com/balajiparimelazhagan/fincoach-api/internal/summarize"
)

const lockTTL = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := initLogger(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting recurring-obligation-engine api")

	if cfg.Vault.URL != "" && cfg.Vault.Token != "" {
		vaultClient, err := secrets.NewClient(cfg.Vault.URL, cfg.Vault.Token)
		if err != nil {
			logger.Warn("failed to initialize vault client, using config-based secrets", zap.Error(err))
		} else if err := vaultClient.LoadInto("secret/recurring-engine", cfg, logger); err != nil {
			logger.Warn("failed to load secrets from vault, using config", zap.Error(err))
		}
	} else {
		logger.Info("vault not configured, using config-based secrets")
	}

	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := database.RunMigrations(db, "internal/database/migrations"); err != nil {
		logger.Fatal("failed to run database migrations", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	locker := locking.NewLocker(redisClient, lockTTL)

	repo := persistence.NewPatternRepo(db, logger)
	discoveryCfg := discovery.Config{
		Tolerance: clustering.Tolerance{
			RelativePct:    cfg.Detection.AmountRelativeTolerance,
			AbsoluteAmount: cfg.Detection.AmountAbsoluteTolerance,
		},
		MinConfidence: cfg.Detection.MinConfidence,
		MinGroupSize:  cfg.Detection.MinGroupSize,
	}
	patternService := service.NewPatternService(db, logger, locker, repo, discoveryCfg, summarize.NullSummarizer{})

	handlers := api.NewHandlers(patternService, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginZapLogger(logger))
	router.Use(corsMiddleware())

	api.RegisterRoutes(router, handlers)

	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("starting http server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}

func initLogger(level string) (*zap.Logger, error) {
	var logLevel zap.AtomicLevel
	switch level {
	case "debug":
		logLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		logLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		logLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = logLevel
	zcfg.OutputPaths = []string{"stdout"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}

func ginZapLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-User-Id")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
