package aggregates

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
)

// TxRunner runs an aggregate write inside one database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

const (
	txAttempts = 3
	txBackoff  = 25 * time.Millisecond
)

type gormTxRunner struct {
	db       *gorm.DB
	hooks    Hooks
	attempts int
	backoff  time.Duration
}

// NewTxRunner returns a runner backed by gorm transactions. A transaction that
// fails on a lock timeout, deadlock or serialization error is rerun from the
// start; fn must therefore reset anything it accumulates outside the database.
func NewTxRunner(db *gorm.DB, hooks Hooks) TxRunner {
	if hooks == nil {
		hooks = noopHooks{}
	}
	return &gormTxRunner{db: db, hooks: hooks, attempts: txAttempts, backoff: txBackoff}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return domainagg.NewError(domainagg.CodeInternal, "aggregate.tx", "transaction runner has no database", nil)
	}
	for attempt := 1; ; attempt++ {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(dbctx.Context{Ctx: ctx, Tx: tx})
		})
		if err == nil || attempt >= r.attempts || !rerunnable(err) {
			return err
		}
		r.hooks.IncRetry("aggregate.tx")
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * r.backoff):
		}
	}
}

// rerunnable reports lock and serialization failures. Cancellation is final.
func rerunnable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return domainagg.IsCode(MapError("aggregate.tx", err), domainagg.CodeRetryable)
}
