package store

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vibevault/vibevault/pkg/log"
	"github.com/vibevault/vibevault/pkg/types"
)

// Store provides row-level operations over the VibeVault SQLite database.
// All mutating public operations run inside a single transaction; a failed
// write is retried once before being surfaced as a StoreError, except for
// domain errors (not found, conflict, validation), which are returned as is.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Open opens (or creates) the database under dataDir and runs migrations.
func Open(dataDir string) (*Store, error) {
	return OpenPath(filepath.Join(dataDir, "vibevault.db"))
}

// OpenPath opens the database at an explicit path. Used by tests and the
// migration tool.
func OpenPath(dbPath string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: log.WithComponent("store"),
	}

	if err := s.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// write runs fn in a transaction, retrying once on a store-level failure.
// Domain errors (not-found, conflict, validation) are never retried.
func (s *Store) write(op string, fn func(tx *gorm.DB) error) error {
	attempt := func() error {
		return s.db.Transaction(fn)
	}

	err := attempt()
	if err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}

	s.logger.Warn().Err(err).Str("op", op).Msg("write failed, retrying once")
	if err = attempt(); err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}
	return &types.StoreError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	var verr *types.ValidationError
	return errors.Is(err, types.ErrNotFound) ||
		errors.Is(err, types.ErrConflict) ||
		errors.Is(err, types.ErrAlreadyRegistered) ||
		errors.As(err, &verr)
}

func notFoundOr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ErrNotFound
	}
	return &types.StoreError{Op: op, Err: err}
}
