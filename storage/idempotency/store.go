package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Record is a completed request that can be replayed for the same key.
type Record struct {
	Key        string `gorm:"primaryKey;size:200"`
	RequestID  string `gorm:"size:64"`
	Method     string `gorm:"size:8"`
	Path       string `gorm:"size:255"`
	BodyDigest string `gorm:"size:64"`
	Status     int
	Response   string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

// TableName pins the table name regardless of gorm naming strategy.
func (Record) TableName() string { return "idempotency_keys" }

// Store persists idempotency records through gorm.
type Store struct {
	db *gorm.DB
}

// Open connects to the given driver and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("idempotency: dsn required")
	}
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("idempotency: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("idempotency: open %s: %w", driver, err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("idempotency: nil database")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("idempotency: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Lookup returns the stored record for key.
func (s *Store) Lookup(ctx context.Context, key string) (*Record, bool, error) {
	var rec Record
	err := s.db.WithContext(ctx).First(&rec, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

// Save stores rec unless the key already exists; the first write wins.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Key == "" {
		return fmt.Errorf("idempotency: record key required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec).Error
}

// Purge deletes records created before cutoff and reports how many went.
func (s *Store) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Record{})
	return res.RowsAffected, res.Error
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
