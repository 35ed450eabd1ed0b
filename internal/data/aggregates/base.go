package aggregates

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

const tracerName = "trackflow/aggregates"

// BaseDeps is shared by every aggregate. Only DB is required.
type BaseDeps struct {
	DB     *gorm.DB
	Log    *logger.Logger
	Runner TxRunner
	Hooks  Hooks
	Guard  VersionGuard
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	if d.Runner == nil {
		d.Runner = NewTxRunner(d.DB, d.Hooks)
	}
	if d.Guard.db == nil {
		d.Guard = NewVersionGuard(d.DB)
	}
	return d
}

// executeWrite runs fn as the named aggregate operation: one transaction, one
// span, one observation. The returned error always carries a domain code.
func executeWrite(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context) error) error {
	deps = deps.withDefaults()
	if op = strings.TrimSpace(op); op == "" {
		op = "aggregate.write"
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, op, trace.WithAttributes(attribute.String("aggregate.op", op)))
	defer span.End()

	start := time.Now()
	err := MapError(op, deps.Runner.InTx(ctx, fn))
	status := writeStatus(err)
	deps.Hooks.ObserveOperation(op, status, time.Since(start))
	span.SetAttributes(attribute.String("aggregate.status", status))
	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, status)
	switch domainagg.CodeOf(err) {
	case domainagg.CodeConflict:
		deps.Hooks.IncConflict(op)
	case domainagg.CodeRetryable:
		deps.Hooks.IncRetry(op)
		deps.Log.Warn("aggregate write gave up", append(ctxutil.TraceFields(ctx), "op", op, "error", err)...)
	case domainagg.CodeInternal:
		deps.Log.Error("aggregate write failed", append(ctxutil.TraceFields(ctx), "op", op, "error", err)...)
	}
	return err
}

// writeStatus is the metric label for an outcome: "success" or the error code.
func writeStatus(err error) string {
	if err == nil {
		return "success"
	}
	if code := domainagg.CodeOf(MapError("aggregate.status", err)); code != "" {
		return string(code)
	}
	return "failure"
}

// recordPending counts each effect the operation left for later.
func recordPending(deps BaseDeps, op string, out domainagg.Outcome) {
	for _, p := range out.Pending {
		deps.Hooks.IncPendingEffect(op, p.Step)
	}
}
