// Package sqlkv implements the KV contract on a single SQL table with a
// version column, through GORM. Postgres and SQLite are supported.
package sqlkv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-email-gate/internal/domain"
	"github.com/go-email-gate/internal/pkg/id"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var errCheckFailed = errors.New("version check failed")

// kvRow is one key. ExpiresAt is unix milliseconds, 0 means no expiry.
type kvRow struct {
	Key       string `gorm:"column:kv_key;primaryKey;size:255"`
	Value     []byte `gorm:"column:value"`
	Version   string `gorm:"column:version;size:32;not null"`
	ExpiresAt int64  `gorm:"column:expires_at;not null;default:0;index"`
}

func (kvRow) TableName() string { return "kv_entries" }

const liveClause = "(expires_at = 0 OR expires_at > ?)"

type KVStore struct {
	db  *gorm.DB
	now func() time.Time
}

// Open picks the Postgres driver for postgres:// URLs and key=value DSNs,
// SQLite otherwise, and migrates the table.
func Open(dsn string) (*KVStore, error) {
	db, err := gorm.Open(dialector(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return New(db)
}

func dialector(dsn string) gorm.Dialector {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") || strings.Contains(d, "host=") {
		return postgres.Open(d)
	}
	return sqlite.Open(d)
}

// New wraps an open connection and migrates the table.
func New(db *gorm.DB) (*KVStore, error) {
	if err := db.AutoMigrate(&kvRow{}); err != nil {
		return nil, fmt.Errorf("migrate kv_entries: %w", err)
	}
	return &KVStore{db: db, now: time.Now}, nil
}

func (s *KVStore) Get(ctx context.Context, key string) (domain.KVEntry, error) {
	var row kvRow
	err := s.db.WithContext(ctx).
		Where("kv_key = ? AND "+liveClause, key, s.now().UnixMilli()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.KVEntry{}, nil
	}
	if err != nil {
		return domain.KVEntry{}, err
	}
	return domain.KVEntry{Value: row.Value, Version: row.Version}, nil
}

func (s *KVStore) AtomicCheckAndSet(ctx context.Context, checks []domain.KVCheck, writes []domain.KVWrite) (bool, error) {
	now := s.now()
	nowMs := now.UnixMilli()
	expected := make(map[string]string, len(checks))
	for _, c := range checks {
		expected[c.Key] = c.ExpectedVersion
	}
	written := make(map[string]bool, len(writes))
	for _, w := range writes {
		written[w.Key] = true
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range checks {
			if written[c.Key] {
				continue
			}
			if err := s.check(tx, c, nowMs); err != nil {
				return err
			}
		}
		for _, w := range writes {
			row := kvRow{Key: w.Key, Value: w.Value, Version: id.New()}
			if w.TTL > 0 {
				row.ExpiresAt = now.Add(w.TTL).UnixMilli()
			}
			v, checked := expected[w.Key]
			if err := s.write(tx, row, v, checked, nowMs); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errCheckFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// check verifies a key that is not written in this transaction.
func (s *KVStore) check(tx *gorm.DB, c domain.KVCheck, nowMs int64) error {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row kvRow
	err := q.Where("kv_key = ? AND "+liveClause, c.Key, nowMs).Take(&row).Error
	current := ""
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return err
	default:
		current = row.Version
	}
	if current != c.ExpectedVersion {
		return errCheckFailed
	}
	return nil
}

// write stores row. A checked write with a version is a conditional UPDATE; a
// checked write expecting absence is an INSERT that may only replace an
// expired row. Unchecked writes upsert.
func (s *KVStore) write(tx *gorm.DB, row kvRow, expectedVersion string, checked bool, nowMs int64) error {
	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "kv_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "version", "expires_at"}),
	}
	switch {
	case !checked:
		return tx.Clauses(conflict).Create(&row).Error

	case expectedVersion != "":
		res := tx.Model(&kvRow{}).
			Where("kv_key = ? AND version = ? AND "+liveClause, row.Key, expectedVersion, nowMs).
			Updates(map[string]interface{}{
				"value":      row.Value,
				"version":    row.Version,
				"expires_at": row.ExpiresAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errCheckFailed
		}
		return nil

	default:
		conflict.Where = clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "kv_entries.expires_at <> 0 AND kv_entries.expires_at <= ?", Vars: []interface{}{nowMs}},
		}}
		res := tx.Clauses(conflict).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errCheckFailed
		}
		return nil
	}
}

// Sweep deletes expired rows and returns how many were removed.
func (s *KVStore) Sweep(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <> 0 AND expires_at <= ?", s.now().UnixMilli()).
		Delete(&kvRow{})
	return res.RowsAffected, res.Error
}

func (s *KVStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
