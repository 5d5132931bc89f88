package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"checkout-service/config"
	"checkout-service/internal/apperr"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

// SQLSTATE codes the store classifies.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
)

// Store is the Postgres implementation of service.Repository.
type Store struct {
	querier
	db     *sqlx.DB
	logger *zap.Logger
}

var _ service.Repository = (*Store)(nil)

// NewStore creates a new database store
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{querier: querier{q: db}, db: db, logger: util.Named("store")}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema when it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn in a READ COMMITTED transaction. Checkout writes take their
// own row locks, so a blocked stock decrement re-checks the stock it waited on
// instead of failing with a serialization error.
func (s *Store) WithTx(ctx context.Context, fn func(tx service.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return apperr.Persistence(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(&pgTx{querier: querier{q: tx}, tx: tx}); err != nil {
		return mapError(err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", zap.Error(err))
		return apperr.Persistence(fmt.Errorf("failed to commit transaction: %w", mapError(err)))
	}
	return nil
}

// pgTx is one checkout transaction.
type pgTx struct {
	querier
	tx *sqlx.Tx
}

var _ service.Tx = (*pgTx)(nil)

// querier holds the queries shared by the pool and a transaction.
type querier struct {
	q sqlx.ExtContext
}

// mapError classifies driver errors into apperr kinds. Errors that already
// carry a kind pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return apperr.Persistence(err)
	case codeUniqueViolation:
		return apperr.Conflict("duplicate value violates %s", pqErr.Constraint).
			WithDetail("constraint", pqErr.Constraint)
	case codeForeignKeyViolation:
		return apperr.NotFound("referenced row missing for %s", pqErr.Constraint).
			WithDetail("constraint", pqErr.Constraint)
	case codeCheckViolation:
		return apperr.Validation("value violates %s", pqErr.Constraint).
			WithDetail("constraint", pqErr.Constraint)
	}
	return err
}

// notFound turns sql.ErrNoRows into a NotFound error for the named entity.
func notFound(err error, entity string, id interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("%s %v not found", entity, id)
	}
	return err
}
