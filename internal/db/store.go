package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the gorm-backed inspection record store, session registry and
// audit log. It is safe for concurrent use; consistency between concurrent
// writers is enforced by transactions and the partial unique indexes.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open database handle
func NewStore(conn *gorm.DB) *Store {
	return &Store{db: conn}
}

// DB returns the underlying handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// lockRow adds a row lock of the given strength (UPDATE or SHARE) to tx.
// sqlite serializes writers on its single connection and has no row locks.
func lockRow(tx *gorm.DB, strength string) *gorm.DB {
	if tx.Dialector.Name() != DriverPostgres {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: strength})
}
