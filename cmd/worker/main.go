// Command worker runs the runtime matcher path (spec.md §2, §4.5): it
// consumes transaction.created notifications from the out-of-core
// ingestion pipeline and, for each one, serialises and evaluates the
// matching algorithm against the transaction's candidate patterns.
//
// It also drains asynchronous discover.requested commands for callers that
// prefer a fire-and-forget HTTP response over a synchronous Discover call
// (spec.md §6). Boot sequence follows the teacher's worker/cmd/main.go:
// config -> logger -> database -> event bus -> services -> consume.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/balajiparimelazhagan/fincoach-api/internal/clustering"
	"github.com/balajiparimelazhagan/fincoach-api/internal/config"
	"github.com/balajiparimelazhagan/fincoach-api/internal/database"
	"github.com/balajiparimelazhagan/fincoach-api/internal/discovery"
	"github.com/balajiparimelazhagan/fincoach-api/internal/eventbus"
	"github.com/balajiparimelazhagan/fincoach-api/internal/grouping"
	"github.com/balajiparimelazhagan/fincoach-api/internal/locking"
	"github.com/balajiparimelazhagan/fincoach-api/internal/matcher"
	"github.com/balajiparimelazhagan/fincoach-api/internal/persistence"
	"github.com/balajiparimelazhagan/fincoach-api/internal/service"
	"github.com/balajiparimelazhagan/fincoach-api/internal/summarize"
)

const (
	lockTTL       = 5 * time.Minute
	maxRetries    = 5
	baseDelay     = 2 * time.Second
	maxDelay      = 30 * time.Second
	matcherBudget = 30 * time.Second
)

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

	logger.Info("starting recurring-obligation-engine worker")

	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	locker := locking.NewLocker(redisClient, lockTTL)

	bus, err := eventbus.NewRedisEventBus(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("failed to connect event bus", zap.Error(err))
	}
	defer bus.Close()

	maxMissSweepCycles := cfg.Detection.MaxMissSweepCycles
	txMatcher := matcher.NewMatcher(db, logger, locker, maxMissSweepCycles)

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	txConsumer := newRetryingConsumer(bus, logger, txMatcher)
	if _, err := bus.Subscribe(ctx, eventbus.TopicTransactionCreated, txConsumer.handle); err != nil {
		logger.Fatal("failed to subscribe to transaction events", zap.Error(err))
	}

	discoveryConsumer := newDiscoveryConsumer(patternService, logger)
	if _, err := bus.Subscribe(ctx, eventbus.TopicDiscoveryRequested, discoveryConsumer.handle); err != nil {
		logger.Fatal("failed to subscribe to discovery-requested events", zap.Error(err))
	}

	logger.Info("worker ready, consuming events")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker...")
	cancel()
	logger.Info("worker shutdown complete")
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
	return zcfg.Build()
}

// retryingConsumer wraps the matcher with spec.md §5/§7's bounded-retry,
// exponential-backoff, dead-letter handling: a matcher run that times out
// or fails is retried inside this handler, with the delay doubling from
// baseDelay up to maxDelay; once maxRetries attempts for the same
// transaction have all failed it gives up and republishes the transaction
// id to the dead-letter stream rather than losing it.
type retryingConsumer struct {
	bus     eventbus.EventBus
	logger  *zap.Logger
	matcher *matcher.Matcher
}

func newRetryingConsumer(bus eventbus.EventBus, logger *zap.Logger, m *matcher.Matcher) *retryingConsumer {
	return &retryingConsumer{bus: bus, logger: logger, matcher: m}
}

func (r *retryingConsumer) handle(ctx context.Context, payload map[string]interface{}) error {
	rawID, ok := payload["transaction_id"].(string)
	if !ok {
		r.logger.Error("transaction.created event missing transaction_id")
		return nil
	}
	transactionID, err := uuid.Parse(rawID)
	if err != nil {
		r.logger.Error("transaction.created event has invalid transaction_id", zap.String("raw", rawID))
		return nil
	}

	delay := baseDelay
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, matcherBudget)
		lastErr = r.matcher.MatchTransaction(attemptCtx, transactionID)
		cancel()
		if lastErr == nil {
			return nil
		}

		r.logger.Warn("matcher attempt failed",
			zap.String("transaction_id", transactionID.String()),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt == maxRetries {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}

	r.logger.Error("matcher retry budget exhausted, moving to dead letter",
		zap.String("transaction_id", transactionID.String()), zap.Error(lastErr))
	if err := r.bus.Publish(ctx, eventbus.TopicTransactionDeadLetter, eventbus.TransactionCreatedEvent{TransactionID: transactionID.String()}); err != nil {
		r.logger.Error("failed to publish to dead letter stream", zap.Error(err))
		return err
	}
	// Acknowledge the original message: it has been durably recorded in
	// the dead-letter stream, so it must not be redelivered here too.
	return nil
}

// discoveryConsumer drains asynchronous Discover requests (spec.md §6).
type discoveryConsumer struct {
	patterns *service.PatternService
	logger   *zap.Logger
}

func newDiscoveryConsumer(patterns *service.PatternService, logger *zap.Logger) *discoveryConsumer {
	return &discoveryConsumer{patterns: patterns, logger: logger}
}

func (d *discoveryConsumer) handle(ctx context.Context, payload map[string]interface{}) error {
	rawUserID, ok := payload["user_id"].(string)
	if !ok {
		d.logger.Error("discovery.requested event missing user_id")
		return nil
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		d.logger.Error("discovery.requested event has invalid user_id", zap.String("raw", rawUserID))
		return nil
	}

	var filters grouping.Filters
	if rawPayee, ok := payload["payee_id"].(string); ok && rawPayee != "" {
		if payeeID, err := uuid.Parse(rawPayee); err == nil {
			filters.PayeeID = &payeeID
		}
	}

	result, err := d.patterns.Discover(ctx, userID, filters)
	if err != nil {
		d.logger.Error("async discovery failed", zap.String("user_id", userID.String()), zap.Error(err))
		return err
	}

	d.logger.Info("async discovery complete",
		zap.String("user_id", userID.String()),
		zap.Int("patterns", len(result.Patterns)),
		zap.Int("rejections", len(result.Rejections)))
	return nil
}
