package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxCreateRetries bounds retries of lock-then-create sequences that lose a
// race against a concurrent insert of the same key.
const maxCreateRetries = 3

// firstWhere retrieves a single record of type T matching the conditions and
// converts gorm.ErrRecordNotFound to notFoundErr.
func firstWhere[T any](db *gorm.DB, ctx context.Context, notFoundErr error, query string, args ...any) (*T, error) {
	var result T
	if err := db.WithContext(ctx).Where(query, args...).First(&result).Error; err != nil {
		return nil, convertNotFoundError(err, notFoundErr)
	}
	return &result, nil
}

// lockWhere is firstWhere with a row lock, for use inside a transaction.
// SQLite has no row locks; its single connection serializes writers.
func lockWhere[T any](tx *gorm.DB, notFoundErr error, query string, args ...any) (*T, error) {
	q := tx
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var result T
	err := q.Where(query, args...).First(&result).Error
	if err != nil {
		return nil, convertNotFoundError(err, notFoundErr)
	}
	return &result, nil
}

// withCreateRetry runs fn in a transaction and retries when it fails on a
// unique constraint, which happens when two writers create the same row.
func withCreateRetry(db *gorm.DB, ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < maxCreateRetries; attempt++ {
		err = db.WithContext(ctx).Transaction(fn)
		if !isUniqueConstraintError(err) {
			return err
		}
	}
	return err
}
