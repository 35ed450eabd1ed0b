package aggregates

import (
	"context"
	"errors"
	"testing"
	"time"

	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
)

func TestExecuteWriteReportsOutcome(t *testing.T) {
	cases := []struct {
		name      string
		body      error
		status    string
		conflicts int
		retries   int
	}{
		{name: "success", status: "success"},
		{name: "invariant", body: InvariantError("child count mismatch"), status: string(domainagg.CodeInvariantViolation)},
		{name: "conflict", body: ConflictError("stale version"), status: string(domainagg.CodeConflict), conflicts: 1},
		{name: "retryable", body: RetryableError("lock timeout"), status: string(domainagg.CodeRetryable), retries: 1},
		{name: "plain error", body: errors.New("boom"), status: string(domainagg.CodeInternal)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hooks := &spyHooks{}
			err := executeWrite(context.Background(), BaseDeps{Runner: directRunner{}, Hooks: hooks}, "Tracking.Test", func(dbctx.Context) error {
				return tc.body
			})
			if (err == nil) != (tc.body == nil) {
				t.Fatalf("err = %v", err)
			}
			if err != nil && string(domainagg.CodeOf(err)) != tc.status {
				t.Fatalf("code = %s, want %s", domainagg.CodeOf(err), tc.status)
			}
			if len(hooks.ops) != 1 || hooks.ops[0] != "Tracking.Test:"+tc.status {
				t.Fatalf("observed = %v", hooks.ops)
			}
			if len(hooks.conflicts) != tc.conflicts || len(hooks.retries) != tc.retries {
				t.Fatalf("conflicts=%v retries=%v", hooks.conflicts, hooks.retries)
			}
		})
	}
}

func TestExecuteWriteDefaultsOpName(t *testing.T) {
	hooks := &spyHooks{}
	_ = executeWrite(context.Background(), BaseDeps{Runner: directRunner{}, Hooks: hooks}, "  ", func(dbctx.Context) error { return nil })
	if len(hooks.ops) != 1 || hooks.ops[0] != "aggregate.write:success" {
		t.Fatalf("observed = %v", hooks.ops)
	}
}

func TestRecordPendingCountsEachStep(t *testing.T) {
	hooks := &spyHooks{}
	var out domainagg.Outcome
	out.AddPending(domainagg.StepIssueBarcode, "a", errors.New("bind failed"))
	out.AddPending(domainagg.StepIssueBarcode, "b", nil)

	recordPending(BaseDeps{Hooks: hooks}, "Tracking.Assembly.Create", out)
	if len(hooks.pending) != 2 || hooks.pending[0] != domainagg.StepIssueBarcode {
		t.Fatalf("pending = %v", hooks.pending)
	}
	if out.Pending[1].Error != "unknown error" {
		t.Fatalf("nil cause recorded as %q", out.Pending[1].Error)
	}
}

func TestWriteStatus(t *testing.T) {
	for err, want := range map[error]string{
		ConflictError("x"):       string(domainagg.CodeConflict),
		context.DeadlineExceeded: string(domainagg.CodeRetryable),
	} {
		if got := writeStatus(err); got != want {
			t.Fatalf("writeStatus(%v) = %s, want %s", err, got, want)
		}
	}
	if writeStatus(nil) != "success" {
		t.Fatalf("nil error should be success")
	}
}

type directRunner struct{}

func (directRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	return fn(dbctx.Context{Ctx: ctx})
}

type spyHooks struct {
	ops       []string
	conflicts []string
	retries   []string
	pending   []string
	fanOuts   []int
	reweighs  []string
}

func (h *spyHooks) ObserveOperation(name, status string, _ time.Duration) {
	h.ops = append(h.ops, name+":"+status)
}
func (h *spyHooks) IncConflict(name string)         { h.conflicts = append(h.conflicts, name) }
func (h *spyHooks) IncRetry(name string)            { h.retries = append(h.retries, name) }
func (h *spyHooks) IncPendingEffect(_, step string) { h.pending = append(h.pending, step) }
func (h *spyHooks) ObserveFanOut(n int)             { h.fanOuts = append(h.fanOuts, n) }
func (h *spyHooks) IncReweigh(name string)          { h.reweighs = append(h.reweighs, name) }
