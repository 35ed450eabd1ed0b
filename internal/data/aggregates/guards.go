package aggregates

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
)

// VersionGuard writes to rows that carry an integer version column. Every write
// names the version it read; a row that moved on in between is a conflict.
type VersionGuard struct {
	db *gorm.DB
}

func NewVersionGuard(db *gorm.DB) VersionGuard {
	return VersionGuard{db: db}
}

func (g VersionGuard) conn(dbc dbctx.Context) (*gorm.DB, error) {
	switch {
	case dbc.Tx != nil:
		return dbc.Tx.WithContext(dbc.Ctx), nil
	case g.db != nil:
		return g.db.WithContext(dbc.Ctx), nil
	}
	return nil, ValidationError("version guard has no connection")
}

// Bump applies updates to table/id when the stored version equals read, and
// sets version to read+1 in the same statement. updated_at is stamped unless
// the caller set it.
func (g VersionGuard) Bump(dbc dbctx.Context, table string, id uuid.UUID, read int, updates map[string]any) error {
	db, err := g.conn(dbc)
	if err != nil {
		return err
	}
	table = strings.TrimSpace(table)
	if table == "" || id == uuid.Nil {
		return ValidationError("version bump needs a table and an id")
	}
	if read < 0 {
		return ValidationError(fmt.Sprintf("negative version %d", read))
	}
	set := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		set[k] = v
	}
	set["version"] = read + 1
	if _, ok := set["updated_at"]; !ok {
		set["updated_at"] = time.Now().UTC()
	}
	res := db.Table(table).Where("id = ? AND version = ?", id, read).Updates(set)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ConflictError(fmt.Sprintf("%s row %s changed since version %d", table, id, read))
	}
	return nil
}

// RequireVersion checks a client-supplied version against the locked row.
// A nil expectation always passes.
func RequireVersion(current int, expected *int) error {
	if expected == nil {
		return nil
	}
	if *expected < 0 {
		return ValidationError("expected version must not be negative")
	}
	if current != *expected {
		return ConflictError(fmt.Sprintf("version is %d, request expected %d", current, *expected))
	}
	return nil
}
