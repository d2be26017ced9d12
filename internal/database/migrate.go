package database

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// RunMigrations applies every migrations/*.up.sql file that has not already
// been recorded in schema_migrations, in lexical (i.e. numeric-prefix)
// order. Adapted from the teacher's worker/internal/database migration
// runner: same glob-and-track approach, same tolerance for
// "already exists" errors on re-apply.
func RunMigrations(db *gorm.DB, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("glob migration files: %w", err)
	}
	sort.Strings(files)

	if err := createMigrationsTable(db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, file := range files {
		if err := runMigration(db, file); err != nil {
			return fmt.Errorf("run migration %s: %w", file, err)
		}
	}
	return nil
}

func createMigrationsTable(db *gorm.DB) error {
	return db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			version VARCHAR(255) NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`).Error
}

func runMigration(db *gorm.DB, filePath string) error {
	version := strings.TrimSuffix(filepath.Base(filePath), ".up.sql")

	var count int64
	if err := db.Table("schema_migrations").Where("version = ?", version).Count(&count).Error; err != nil {
		return fmt.Errorf("check migration status: %w", err)
	}
	if count > 0 {
		return nil
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read migration file: %w", err)
	}

	for _, stmt := range splitStatements(string(content)) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := db.Exec(stmt).Error; err != nil {
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			return fmt.Errorf("execute statement: %w", err)
		}
	}

	return db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version).Error
}

// splitStatements splits a migration file on semicolon-terminated
// statements. It does not need to understand PL/pgSQL function bodies
// because this service's migrations are plain DDL.
func splitStatements(sql string) []string {
	return strings.Split(sql, ";")
}
