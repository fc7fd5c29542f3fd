package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLiteStore keeps blobs in the room_blobs table.
type SQLiteStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// OpenSQLiteStore opens and migrates the database at path.
func OpenSQLiteStore(path string, clock func() time.Time, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := database.OpenSQLite(path, logger)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(db, clock)
}

// NewSQLiteStore wraps an already migrated gorm handle.
func NewSQLiteStore(db *gorm.DB, clock func() time.Time) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("storage: database handle is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &SQLiteStore{db: db, clock: clock}, nil
}

func (s *SQLiteStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ValidKey(key); err != nil {
		return nil, err
	}
	var blob database.RoomBlob
	err := s.db.WithContext(ctx).Where("name = ?", key).Take(&blob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: select %s: %w", key, err)
	}
	return []byte(blob.Cipher), nil
}

func (s *SQLiteStore) Create(ctx context.Context, key string, data []byte) error {
	if err := ValidKey(key); err != nil {
		return err
	}
	now := s.clock().UTC().Unix()
	blob := database.RoomBlob{
		Name:             key,
		Cipher:           string(data),
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&blob)
		if result.Error != nil {
			return fmt.Errorf("storage: insert %s: %w", key, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyExists
		}
		return nil
	})
}

func (s *SQLiteStore) Write(ctx context.Context, key string, data []byte) error {
	if err := ValidKey(key); err != nil {
		return err
	}
	now := s.clock().UTC().Unix()
	blob := database.RoomBlob{
		Name:             key,
		Cipher:           string(data),
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"cipher", "updated_at_s"}),
		}).Create(&blob).Error
		if err != nil {
			return fmt.Errorf("storage: upsert %s: %w", key, err)
		}
		return nil
	})
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
