package database

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Both repairs target rows written outside SQLiteStore, such as a legacy chats/ file loaded
// with the sqlite3 shell's readfile(), which keeps the trailing newline and sets no times.
const (
	migrationTrimImportedCiphers = "2026-10-01_trim_imported_ciphers"
	migrationBackfillUpdatedAt   = "2026-10-08_backfill_updated_at"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type schemaMigration struct {
	name string
	run  func(tx *gorm.DB) error
}

// schemaMigrations run in order, each at most once per database.
var schemaMigrations = []schemaMigration{
	{name: migrationTrimImportedCiphers, run: trimImportedCiphers},
	{name: migrationBackfillUpdatedAt, run: backfillUpdatedAt},
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, migration := range schemaMigrations {
		applied, err := runMigration(db, migration, time.Now)
		if err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		if applied {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// runMigration applies one migration and its bookkeeping row in a single transaction.
func runMigration(db *gorm.DB, migration schemaMigration, clock func() time.Time) (bool, error) {
	applied := false
	err := db.Transaction(func(tx *gorm.DB) error {
		var existing migrationRecord
		lookup := tx.Where("name = ?", migration.name).Take(&existing).Error
		switch {
		case lookup == nil:
			return nil
		case !errors.Is(lookup, gorm.ErrRecordNotFound):
			return lookup
		}
		if err := migration.run(tx); err != nil {
			return err
		}
		applied = true
		return tx.Create(&migrationRecord{
			Name:             migration.name,
			AppliedAtSeconds: clock().UTC().Unix(),
		}).Error
	})
	return applied, err
}

func trimImportedCiphers(tx *gorm.DB) error {
	return tx.Model(&RoomBlob{}).
		Where("cipher <> TRIM(cipher)").
		Update("cipher", gorm.Expr("TRIM(cipher)")).Error
}

func backfillUpdatedAt(tx *gorm.DB) error {
	return tx.Model(&RoomBlob{}).
		Where("updated_at_s = 0").
		Update("updated_at_s", gorm.Expr("created_at_s")).Error
}
