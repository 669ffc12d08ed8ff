package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// UniqueConstraint identifies a unique index by its Postgres name and by the
// table.column form sqlite reports.
type UniqueConstraint struct {
	Name   string
	Table  string
	Column string
}

// IsUniqueViolation reports whether err is a unique constraint violation.
// When c.Name is empty any unique violation matches.
func IsUniqueViolation(err error, c UniqueConstraint) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		return c.Name == "" || pgErr.ConstraintName == c.Name
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "duplicate key value"):
		return c.Name == "" || strings.Contains(msg, c.Name)
	case strings.Contains(msg, "UNIQUE constraint failed"):
		if c.Name == "" {
			return true
		}
		return c.Table != "" && strings.Contains(msg, c.Table+"."+c.Column)
	}
	return false
}

// IsNotFound reports whether err is gorm's record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
