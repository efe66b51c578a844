package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PgErrUniqueViolation is the postgres unique_violation code
const PgErrUniqueViolation = "23505"

var (
	ErrNotFound         = errors.New("record not found")
	ErrActiveItemExists = errors.New("an active item already exists for this session and code")
	ErrItemNotActive    = errors.New("item is not active")
	ErrLimitExceeded    = errors.New("parallel item limit reached")
	ErrDuplicateSession = errors.New("worker already has an active session")
	ErrSessionInactive  = errors.New("session is not active")
	ErrWorkerMismatch   = errors.New("session belongs to a different worker")
)

// isUniqueViolation reports whether err came from a unique constraint
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == PgErrUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
