package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type MatchResult struct {
	ID         uint      `gorm:"primaryKey"`
	SessionID  string    `gorm:"size:64;index"`
	Winner     string    `gorm:"size:128"`
	WinnerRole string    `gorm:"size:16"`
	Loser      string    `gorm:"size:128"`
	Reason     string    `gorm:"size:128"`
	EndedAt    time.Time `gorm:"index"`
	CreatedAt  time.Time
}

func (MatchResult) TableName() string { return "match_results" }

func toRow(r Result) MatchResult {
	return MatchResult{
		SessionID:  r.SessionID,
		Winner:     r.Winner,
		WinnerRole: r.WinnerRole,
		Loser:      r.Loser,
		Reason:     r.Reason,
		EndedAt:    r.EndedAt.UTC(),
	}
}

// Open connects to postgres and migrates the results table.
func Open(dsn string, log *zap.Logger) (*gorm.DB, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	log.Info("opening results archive",
		zap.String("host", cfg.Host),
		zap.Uint16("port", cfg.Port),
		zap.String("database", cfg.Database))

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.AutoMigrate(&MatchResult{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return db, nil
}

// GormSaver writes results as match_results rows.
func GormSaver(db *gorm.DB) SaveFunc {
	return func(ctx context.Context, r Result) error {
		row := toRow(r)
		return db.WithContext(ctx).Create(&row).Error
	}
}

func CloseDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
