package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"doccontrol/portal-backend/internal/config"
	"doccontrol/portal-backend/internal/documents"
	"doccontrol/portal-backend/internal/projects"
)

// DB holds both access paths to the same connection pool: sqlx for the
// approval engine and gorm for project membership and the activity log.
type DB struct {
	SQL  *sqlx.DB
	Gorm *gorm.DB
}

func Open(cfg config.DatabaseConfig, log *zap.Logger) (*DB, error) {
	sqlDB, err := sqlx.Connect("postgres", cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB.DB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open gorm session: %w", err)
	}

	log.Info("Connected to database",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("db_name", cfg.DBName))

	return &DB{SQL: sqlDB, Gorm: gormDB}, nil
}

// Migrate creates the tables used by the portal. Projects go first since
// documents reference them by id.
func (db *DB) Migrate(ctx context.Context) error {
	if err := projects.NewMembershipRepository(db.Gorm).Migrate(); err != nil {
		return fmt.Errorf("failed to migrate projects: %w", err)
	}
	if err := documents.EnsureSchema(ctx, db.SQL); err != nil {
		return err
	}
	if err := documents.NewActivityLog(db.Gorm).Migrate(); err != nil {
		return fmt.Errorf("failed to migrate document activity: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.SQL.Close()
}
