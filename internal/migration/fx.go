package migration

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bwmarrin/snowflake"

	"github.com/veribill/veribill/internal/config"
	"github.com/veribill/veribill/internal/ratelimit"
	"github.com/veribill/veribill/internal/seed"
)

var Module = fx.Module("migration",
	fx.Invoke(Run),
)

const (
	schemaLockKey = "migrate:schema"
	schemaLockTTL = 5 * time.Minute
)

// Run applies the embedded schema and seeds the shipped invoice
// templates, under a cross-instance lock so one instance per
// deployment does the work. The SQL files target postgres; other
// drivers (sqlite in tests) rely on AutoMigrate and skip the
// versioned migrations.
func Run(conn *gorm.DB, cfg config.Config, node *snowflake.Node, limiter *ratelimit.VerifyLimiter, log *zap.Logger) error {
	log = log.Named("migration")
	ctx := context.Background()

	token, ok, err := limiter.TryLock(ctx, schemaLockKey, schemaLockTTL)
	if err != nil {
		return err
	}
	if !ok {
		log.Info("another instance holds the schema lock, skipping migrations and seed")
		return nil
	}
	defer func() {
		if err := limiter.Unlock(ctx, schemaLockKey, token); err != nil {
			log.Warn("failed to release schema lock", zap.Error(err))
		}
	}()

	if cfg.DBType == "postgres" {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			log.Error("failed to run migrations", zap.Error(err))
			return err
		}
		log.Info("migrations applied")
	} else {
		log.Info("skipping versioned migrations", zap.String("db_type", cfg.DBType))
	}

	if err := seed.EnsureDefaultTemplates(conn, node); err != nil {
		log.Error("failed to seed default templates", zap.Error(err))
		return err
	}
	return nil
}
