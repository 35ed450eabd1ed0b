package aggregates

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"gorm.io/gorm"
)

func TestMapError_Validation(t *testing.T) {
	err := MapError("op", ValidationError("bad input"))
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_Conflict(t *testing.T) {
	err := MapError("op", ConflictError("stale"))
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("expected conflict code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_NotFound(t *testing.T) {
	err := MapError("op", gorm.ErrRecordNotFound)
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("expected not_found code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_PassthroughAggregateError(t *testing.T) {
	in := domainagg.NewError(domainagg.CodeRetryable, "op", "retry", errors.New("boom"))
	out := MapError("other", in)
	if out != in {
		t.Fatalf("expected passthrough aggregate error")
	}
}

func TestMapError_SQLiteMessages(t *testing.T) {
	cases := []struct {
		msg  string
		code domainagg.ErrorCode
	}{
		{"UNIQUE constraint failed: batch_assemblies.batch_id, batch_assemblies.assembly_id", domainagg.CodeConflict},
		{"FOREIGN KEY constraint failed", domainagg.CodePreconditionFailed},
		{"database is locked", domainagg.CodeRetryable},
		{"no such table: assemblies", domainagg.CodeInternal},
	}
	for _, tc := range cases {
		if got := domainagg.CodeOf(MapError("op", errors.New(tc.msg))); got != tc.code {
			t.Fatalf("%q: want=%s got=%s", tc.msg, tc.code, got)
		}
	}
}

func TestMapError_PgUniqueViolation(t *testing.T) {
	err := MapError("op", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}))
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("expected conflict code, got %q", domainagg.CodeOf(err))
	}
}
