package aggregates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
)

// ruleError is raised inside a write body, before the operation name is known.
// MapError turns it into a *domainagg.Error carrying the op.
type ruleError struct {
	code domainagg.ErrorCode
	msg  string
}

func (e *ruleError) Error() string { return e.msg }

func rule(code domainagg.ErrorCode, msg string) error {
	return &ruleError{code: code, msg: strings.TrimSpace(msg)}
}

func ValidationError(msg string) error { return rule(domainagg.CodeValidation, msg) }
func InvariantError(msg string) error  { return rule(domainagg.CodeInvariantViolation, msg) }
func ConflictError(msg string) error   { return rule(domainagg.CodeConflict, msg) }
func RetryableError(msg string) error  { return rule(domainagg.CodeRetryable, msg) }

// MapError classifies a failure from a write body or the database driver.
// Errors that already carry a code pass through untouched.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*domainagg.Error); ok {
		return err
	}
	var re *ruleError
	if errors.As(err, &re) {
		return domainagg.NewError(re.code, op, re.msg, err)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainagg.Wrap(domainagg.CodeNotFound, op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domainagg.Wrap(domainagg.CodeRetryable, op, err)
	}
	if code, ok := postgresCode(err); ok {
		return domainagg.Wrap(code, op, err)
	}
	return domainagg.Wrap(messageCode(err.Error()), op, err)
}

// postgresCode maps SQLSTATE classes the tracking writes can hit.
func postgresCode(err error) (domainagg.ErrorCode, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	switch strings.TrimSpace(pgErr.Code) {
	case "23505": // unique_violation: duplicate barcode, batch number, membership pair
		return domainagg.CodeConflict, true
	case "23503":
		return domainagg.CodePreconditionFailed, true
	case "40001", "40P01", "55P03":
		return domainagg.CodeRetryable, true
	}
	return "", false
}

// messageCode covers sqlite, which reports constraint and lock failures only as text.
func messageCode(msg string) domainagg.ErrorCode {
	msg = strings.ToLower(msg)
	has := func(parts ...string) bool {
		for _, p := range parts {
			if strings.Contains(msg, p) {
				return true
			}
		}
		return false
	}
	switch {
	case has("unique constraint failed", "duplicate key", "already exists"):
		return domainagg.CodeConflict
	case has("foreign key constraint failed"):
		return domainagg.CodePreconditionFailed
	case has("database is locked", "deadlock", "serialization", "timeout", "temporar"):
		return domainagg.CodeRetryable
	}
	return domainagg.CodeInternal
}

func notFound(op, entity string, id fmt.Stringer) error {
	return domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("%s not found: %s", entity, id.String()), nil)
}
