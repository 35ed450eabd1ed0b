package testutil

import (
	"context"
	"sync"

	"github.com/yungbote/trackflow-backend/internal/data/aggregates"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
)

// FaultyTxRunner wraps a real runner and injects failures around the write body.
// FailCommit is returned from inside the wrapped transaction after the body
// succeeds, so the database discards everything the body wrote.
type FaultyTxRunner struct {
	Inner      aggregates.TxRunner
	FailBegin  error
	FailCommit error

	mu        sync.Mutex
	calls     int
	rollbacks int
}

var _ aggregates.TxRunner = (*FaultyTxRunner)(nil)

func (r *FaultyTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.calls++
	failBegin, failCommit := r.FailBegin, r.FailCommit
	r.mu.Unlock()

	if failBegin != nil {
		return failBegin
	}
	body := func(dbc dbctx.Context) error {
		if fn != nil {
			if err := fn(dbc); err != nil {
				return err
			}
		}
		return failCommit
	}

	var err error
	if r.Inner != nil {
		err = r.Inner.InTx(ctx, body)
	} else {
		err = body(dbctx.Context{Ctx: ctx})
	}
	if err != nil {
		r.mu.Lock()
		r.rollbacks++
		r.mu.Unlock()
	}
	return err
}

// Counts returns how many transactions were started and how many ended in rollback.
func (r *FaultyTxRunner) Counts() (calls, rollbacks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, r.rollbacks
}
