// Package store holds the gorm-backed repositories for users, resources, the subscription catalog
// and the entitlement ledger.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/collectit/marketplace/internal/apperr"
	dbutil "github.com/collectit/marketplace/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is a repository handle. Inside InTx it is bound to the open transaction.
type Store struct {
	db *gorm.DB
}

// New constructs a Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// InTx runs fn as a single unit of work. Returning an error rolls every write back.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store: not initialized")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, errDB := s.db.DB()
	if errDB != nil {
		return errDB
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// forUpdate adds a row lock. SQLite serializes writers and has no FOR UPDATE.
func (s *Store) forUpdate(q *gorm.DB) *gorm.DB {
	if dbutil.IsSQLite(s.db) {
		return q
	}
	return q.Clauses(clause.Locking{Strength: "UPDATE"})
}

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// NewPage validates a page request.
func NewPage(number, size int) (Page, error) {
	if number < 1 {
		return Page{}, apperr.Validation("page number must be at least 1")
	}
	if size < 1 {
		return Page{}, apperr.Validation("page size must be at least 1")
	}
	if number-1 > math.MaxInt/size {
		return Page{}, apperr.Validation("page number %d is out of range", number)
	}
	return Page{Number: number, Size: size}, nil
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(format, args...)
	}
	return err
}
