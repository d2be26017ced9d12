package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/balajiparimelazhagan/fincoach-api/internal/config"
)

// Connect opens a gorm connection to Postgres using cfg, with gorm's own
// query logging silenced in favor of the zap logger the rest of the service
// uses (the teacher's cmd/main.go follows the same pattern: gorm.Config{}
// with default logging turned down once the app has its own logger).
func Connect(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Info("connected to database", zap.String("host", cfg.Host), zap.String("name", cfg.Name))
	return db, nil
}
