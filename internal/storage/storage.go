package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/liamashdown/whaletracker/internal/config"
	"github.com/liamashdown/whaletracker/internal/metrics"
)

// DB wraps the GORM database connection
type DB struct {
	conn *gorm.DB
	log  *logrus.Logger
}

// New creates a new database connection with GORM
func New(cfg *config.Config, log *logrus.Logger) (*DB, error) {
	db, err := Open(mysql.Open(cfg.DatabaseDSN), log)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.DatabaseMaxConns)
	sqlDB.SetMaxIdleConns(max(cfg.DatabaseMaxConns/2, 1))
	sqlDB.SetConnMaxIdleTime(cfg.DatabaseMaxIdleTime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("Database connection established")

	return db, nil
}

// Open wraps an arbitrary GORM dialector
func Open(dialector gorm.Dialector, log *logrus.Logger) (*DB, error) {
	gormLogger := logger.New(
		&gormLogAdapter{log: log},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &DB{conn: conn, log: log}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate runs GORM auto-migration (for development only)
func (db *DB) AutoMigrate() error {
	return db.conn.AutoMigrate(
		&AppState{},
		&DispatchedAlert{},
	)
}

// GetState retrieves a state value by key
func (db *DB) GetState(ctx context.Context, key string) (string, error) {
	var state AppState
	err := db.conn.WithContext(ctx).Where("state_key = ?", key).First(&state).Error
	metrics.RecordDatabaseQuery("get_state", ignoreNotFound(err))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return state.StateValue, nil
}

// SetState sets a state value
func (db *DB) SetState(ctx context.Context, key, value string) error {
	state := AppState{
		StateKey:   key,
		StateValue: value,
		UpdatedTS:  time.Now().Unix(),
	}
	err := db.conn.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&state).Error
	metrics.RecordDatabaseQuery("set_state", err)
	return err
}

// HasDispatched reports whether an alert with key was already sent
func (db *DB) HasDispatched(ctx context.Context, key string) (bool, error) {
	var count int64
	err := db.conn.WithContext(ctx).
		Model(&DispatchedAlert{}).
		Where("dedup_key = ?", key).
		Count(&count).Error
	metrics.RecordDatabaseQuery("has_dispatched", err)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// LastDispatchFor returns when address last triggered an alert
func (db *DB) LastDispatchFor(ctx context.Context, address string) (time.Time, bool, error) {
	var alert DispatchedAlert
	err := db.conn.WithContext(ctx).
		Where("address = ?", address).
		Order("created_ts DESC").
		First(&alert).Error
	metrics.RecordDatabaseQuery("last_dispatch", ignoreNotFound(err))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(alert.CreatedTS, 0), true, nil
}

// RecordDispatch inserts a dispatched alert
func (db *DB) RecordDispatch(ctx context.Context, alert *DispatchedAlert) error {
	err := db.conn.WithContext(ctx).Create(alert).Error
	metrics.RecordDatabaseQuery("record_dispatch", err)
	return err
}

// RecentDispatches lists the newest dispatched alerts
func (db *DB) RecentDispatches(ctx context.Context, limit int) ([]DispatchedAlert, error) {
	var out []DispatchedAlert
	err := db.conn.WithContext(ctx).Order("created_ts DESC").Limit(limit).Find(&out).Error
	metrics.RecordDatabaseQuery("recent_dispatches", err)
	return out, err
}

func ignoreNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// gormLogAdapter adapts logrus to GORM's logger interface
type gormLogAdapter struct {
	log *logrus.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}
