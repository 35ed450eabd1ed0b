package aggregates

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yungbote/trackflow-backend/internal/data/repos"
	repotest "github.com/yungbote/trackflow-backend/internal/data/repos/testutil"
	types "github.com/yungbote/trackflow-backend/internal/domain"
	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}

func (h *harness) reloadBatch(t *testing.T, id uuid.UUID) *types.LogisticsBatch {
	t.Helper()
	b, err := h.repos.Batches.GetByID(dbctx.Context{Ctx: h.ctx, Tx: h.tx}, id)
	if err != nil || b == nil {
		t.Fatalf("reload batch: err=%v", err)
	}
	return b
}

func (h *harness) memberCount(t *testing.T, batchID uuid.UUID) int64 {
	t.Helper()
	n, err := h.repos.BatchAssembly.CountByBatch(dbctx.Context{Ctx: h.ctx, Tx: h.tx}, batchID)
	if err != nil {
		t.Fatalf("count members: %v", err)
	}
	return n
}

func TestBatchAddRemoveKeepsTotalWeight(t *testing.T) {
	h := newHarness(t, nil)
	p := repotest.SeedProject(t, h.ctx, h.tx, "P-W")
	b := repotest.SeedBatch(t, h.ctx, h.tx, p.ID, "W-1", tracking.BatchStatusPending)
	heavy := repotest.SeedAssembly(t, h.ctx, h.tx, p.ID, "Heavy", "50", 2)
	light := repotest.SeedAssembly(t, h.ctx, h.tx, p.ID, "Light", "30", 1)
	actor := uuid.New()

	first, err := h.batches.AddAssembly(h.ctx, domainagg.AddBatchAssemblyInput{BatchID: b.ID, AssemblyID: heavy.ID, ActorID: &actor})
	if err != nil {
		t.Fatalf("AddAssembly heavy: %v", err)
	}
	if !first.TotalWeight.Equal(mustDecimal(t, "100")) {
		t.Fatalf("after heavy: want=100 got=%s", first.TotalWeight)
	}
	if first.PreviousStatus != tracking.AssemblyStatusWaiting || first.Assembly.Status != tracking.AssemblyStatusCompleted {
		t.Fatalf("status coercion: prev=%q now=%q", first.PreviousStatus, first.Assembly.Status)
	}

	second, err := h.batches.AddAssembly(h.ctx, domainagg.AddBatchAssemblyInput{BatchID: b.ID, AssemblyID: light.ID})
	if err != nil {
		t.Fatalf("AddAssembly light: %v", err)
	}
	if !second.TotalWeight.Equal(mustDecimal(t, "130")) {
		t.Fatalf("after light: want=130 got=%s", second.TotalWeight)
	}

	stored := h.reloadBatch(t, b.ID)
	if !stored.TotalWeight.Equal(mustDecimal(t, "130")) || stored.Version != 2 {
		t.Fatalf("stored batch: weight=%s version=%d", stored.TotalWeight, stored.Version)
	}

	removed, err := h.batches.RemoveAssembly(h.ctx, domainagg.RemoveBatchAssemblyInput{BatchID: b.ID, AssemblyID: light.ID})
	if err != nil {
		t.Fatalf("RemoveAssembly: %v", err)
	}
	if !removed.TotalWeight.Equal(mustDecimal(t, "100")) {
		t.Fatalf("after remove: want=100 got=%s", removed.TotalWeight)
	}

	dbc := dbctx.Context{Ctx: h.ctx, Tx: h.tx}
	asm, _ := h.repos.Assemblies.GetByID(dbc, light.ID)
	if asm.Status != tracking.AssemblyStatusCompleted {
		t.Fatalf("removal must not revert status, got %q", asm.Status)
	}
	logs, err := h.repos.StatusLogs.ListByAssembly(dbc, heavy.ID, 10)
	if err != nil || len(logs) != 1 {
		t.Fatalf("status logs: err=%v len=%d", err, len(logs))
	}
	if logs[0].FromStatus != tracking.AssemblyStatusWaiting || logs[0].Source != tracking.StatusSourceBatchLink {
		t.Fatalf("status log: %+v", logs[0])
	}
	if logs[0].ChangedBy == nil || *logs[0].ChangedBy != actor {
		t.Fatalf("status log actor: %v", logs[0].ChangedBy)
	}
	if len(h.hooks.reweighs) != 3 {
		t.Fatalf("reweigh hooks: want=3 got=%d", len(h.hooks.reweighs))
	}
}

func TestBatchAddDuplicateIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	p := repotest.SeedProject(t, h.ctx, h.tx, "P-D")
	b := repotest.SeedBatch(t, h.ctx, h.tx, p.ID, "D-1", tracking.BatchStatusPending)
	a := repotest.SeedAssembly(t, h.ctx, h.tx, p.ID, "A", "12.5", 1)

	if _, err := h.batches.AddAssembly(h.ctx, domainagg.AddBatchAssemblyInput{BatchID: b.ID, AssemblyID: a.ID}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	again, err := h.batches.AddAssembly(h.ctx, domainagg.AddBatchAssemblyInput{BatchID: b.ID, AssemblyID: a.ID})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if !again.AlreadyAdded {
		t.Fatalf("second add should report AlreadyAdded")
	}
	if !again.TotalWeight.Equal(mustDecimal(t, "12.5")) {
		t.Fatalf("weight changed on duplicate: %s", again.TotalWeight)
	}
	if n := h.memberCount(t, b.ID); n != 1 {
		t.Fatalf("membership rows: want=1 got=%d", n)
	}
	if v := h.reloadBatch(t, b.ID).Version; v != 1 {
		t.Fatalf("duplicate add must not bump version, got %d", v)
	}
}

func TestBatchMembershipFrozenWhenLocked(t *testing.T) {
	for _, status := range []string{tracking.BatchStatusDelivered, tracking.BatchStatusCancelled} {
		t.Run(status, func(t *testing.T) {
			h := newHarness(t, nil)
			p := repotest.SeedProject(t, h.ctx, h.tx, "P-L")
			b := repotest.SeedBatch(t, h.ctx, h.tx, p.ID, "L-1", status)
			member := repotest.SeedAssembly(t, h.ctx, h.tx, p.ID, "Member", "10", 1)
			outsider := repotest.SeedAssembly(t, h.ctx, h.tx, p.ID, "Outsider", "10", 1)
			repotest.SeedMembership(t, h.ctx, h.tx, b.ID, member.ID)

			_, err := h.batches.AddAssembly(h.ctx, domainagg.AddBatchAssemblyInput{BatchID: b.ID, AssemblyID: outsider.ID})
			if !domainagg.IsCode(err, domainagg.CodeValidation) {
				t.Fatalf("add on %s: want validation, got %v", status, err)
			}
			_, err = h.batches.RemoveAssembly(h.ctx, domainagg.RemoveBatchAssemblyInput{BatchID: b.ID, AssemblyID: member.ID})
			if !domainagg.IsCode(err, domainagg.CodeValidation) {
				t.Fatalf("remove on %s: want validation, got %v", status, err)
			}
			if n := h.memberCount(t, b.ID); n != 1 {
				t.Fatalf("membership changed: %d", n)
			}
			asm, _ := h.repos.Assemblies.GetByID(dbctx.Context{Ctx: h.ctx, Tx: h.tx}, outsider.ID)
			if asm.Status != tracking.AssemblyStatusWaiting {
				t.Fatalf("rejected add changed status to %q", asm.Status)
			}
		})
	}
}

func TestBatchAddProjectMismatch(t *testing.T) {
	h := newHarness(t, nil)
	p1 := repotest.SeedProject(t, h.ctx, h.tx, "P-1")
	p2 := repotest.SeedProject(t, h.ctx, h.tx, "P-2")
	b := repotest.SeedBatch(t, h.ctx, h.tx, p1.ID, "M-1", tracking.BatchStatusPending)
	a := repotest.SeedAssembly(t, h.ctx, h.tx, p2.ID, "Foreign", "5", 1)

	_, err := h.batches.AddAssembly(h.ctx, domainagg.AddBatchAssemblyInput{BatchID: b.ID, AssemblyID: a.ID})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("want validation, got %v", err)
	}
	if n := h.memberCount(t, b.ID); n != 0 {
		t.Fatalf("mismatch created %d membership rows", n)
	}
}

func TestBatchAddByBarcode(t *testing.T) {
	h := newHarness(t, nil)
	p := repotest.SeedProject(t, h.ctx, h.tx, "P-S")
	b := repotest.SeedBatch(t, h.ctx, h.tx, p.ID, "S-1", tracking.BatchStatusPending)
	a := repotest.SeedAssembly(t, h.ctx, h.tx, p.ID, "Scanned", "7", 1)
	repotest.SeedBarcode(t, h.ctx, h.tx, "ASM-SCAN-0001", &a.ID, nil)
	repotest.SeedBarcode(t, h.ctx, h.tx, "BAT-SCAN-0001", nil, &b.ID)

	res, err := h.batches.AddAssembly(h.ctx, domainagg.AddBatchAssemblyInput{BatchID: b.ID, Barcode: "  ASM-SCAN-0001 "})
	if err != nil {
		t.Fatalf("add by barcode: %v", err)
	}
	if res.Assembly.ID != a.ID {
		t.Fatalf("resolved wrong assembly")
	}

	_, err = h.batches.AddAssembly(h.ctx, domainagg.AddBatchAssemblyInput{BatchID: b.ID, Barcode: "ASM-NOPE"})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("unknown barcode: want not_found, got %v", err)
	}
	_, err = h.batches.AddAssembly(h.ctx, domainagg.AddBatchAssemblyInput{BatchID: b.ID, Barcode: "BAT-SCAN-0001"})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("batch barcode: want validation, got %v", err)
	}
}

func TestBatchRemoveMissingMember(t *testing.T) {
	h := newHarness(t, nil)
	p := repotest.SeedProject(t, h.ctx, h.tx, "P-R")
	b := repotest.SeedBatch(t, h.ctx, h.tx, p.ID, "R-1", tracking.BatchStatusPending)

	_, err := h.batches.RemoveAssembly(h.ctx, domainagg.RemoveBatchAssemblyInput{BatchID: b.ID, AssemblyID: uuid.New()})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("want not_found, got %v", err)
	}
	_, err = h.batches.AddAssembly(h.ctx, domainagg.AddBatchAssemblyInput{BatchID: uuid.New(), AssemblyID: uuid.New()})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("missing batch: want not_found, got %v", err)
	}
}

func TestBatchChangeStatus(t *testing.T) {
	h := newHarness(t, nil)
	p := repotest.SeedProject(t, h.ctx, h.tx, "P-C")
	b := repotest.SeedBatch(t, h.ctx, h.tx, p.ID, "C-1", tracking.BatchStatusPending)
	a := repotest.SeedAssembly(t, h.ctx, h.tx, p.ID, "Late", "3", 1)
	repotest.SeedMembership(t, h.ctx, h.tx, b.ID, a.ID)

	_, err := h.batches.ChangeStatus(h.ctx, domainagg.ChangeBatchStatusInput{BatchID: b.ID, Status: "Delivered"})
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("Pending -> Delivered: want conflict, got %v", err)
	}

	stale := 7
	_, err = h.batches.ChangeStatus(h.ctx, domainagg.ChangeBatchStatusInput{BatchID: b.ID, Status: "in transit", ExpectedVersion: &stale})
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("stale version: want conflict, got %v", err)
	}

	res, err := h.batches.ChangeStatus(h.ctx, domainagg.ChangeBatchStatusInput{BatchID: b.ID, Status: "in transit"})
	if err != nil {
		t.Fatalf("Pending -> In Transit: %v", err)
	}
	if res.PreviousStatus != tracking.BatchStatusPending || res.Batch.Status != tracking.BatchStatusInTransit {
		t.Fatalf("status result: prev=%q now=%q", res.PreviousStatus, res.Batch.Status)
	}
	if len(res.AssembliesComplete) != 1 || res.AssembliesComplete[0] != a.ID {
		t.Fatalf("completed members: %v", res.AssembliesComplete)
	}
	stored := h.reloadBatch(t, b.ID)
	if stored.Status != tracking.BatchStatusInTransit || !stored.TotalWeight.Equal(mustDecimal(t, "3")) {
		t.Fatalf("stored batch: status=%q weight=%s", stored.Status, stored.TotalWeight)
	}

	logs, _ := h.repos.StatusLogs.ListByAssembly(dbctx.Context{Ctx: h.ctx, Tx: h.tx}, a.ID, 10)
	if len(logs) != 1 || logs[0].Source != tracking.StatusSourceBatchStatus {
		t.Fatalf("status logs: %+v", logs)
	}

	if _, err := h.batches.ChangeStatus(h.ctx, domainagg.ChangeBatchStatusInput{BatchID: b.ID, Status: "Shipped"}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("unknown status: want validation, got %v", err)
	}
}

func TestBatchReweighRepairsDrift(t *testing.T) {
	h := newHarness(t, nil)
	p := repotest.SeedProject(t, h.ctx, h.tx, "P-RW")
	b := repotest.SeedBatch(t, h.ctx, h.tx, p.ID, "RW-1", tracking.BatchStatusPending)
	a := repotest.SeedAssembly(t, h.ctx, h.tx, p.ID, "A", "40", 1)
	repotest.SeedMembership(t, h.ctx, h.tx, b.ID, a.ID)

	total, err := h.batches.Reweigh(h.ctx, b.ID)
	if err != nil {
		t.Fatalf("Reweigh: %v", err)
	}
	if !total.Equal(mustDecimal(t, "40")) {
		t.Fatalf("Reweigh total: %s", total)
	}
}

func TestBatchConcurrentAddsSerialize(t *testing.T) {
	db := repotest.DB(t)
	if !repotest.IsPostgres(db) {
		t.Skip("row-lock serialization needs TEST_POSTGRES_DSN")
	}
	ctx := context.Background()
	log := repotest.Logger(t)
	set := repos.NewSet(db, log)
	agg := NewBatchAggregate(BatchAggregateDeps{
		Base:       BaseDeps{DB: db, Log: log},
		Batches:    set.Batches,
		Members:    set.BatchAssembly,
		Assemblies: set.Assemblies,
		Barcodes:   set.Barcodes,
		StatusLogs: set.StatusLogs,
	})

	suffix := uuid.NewString()[:8]
	p := repotest.SeedProject(t, ctx, db, "P-CC-"+suffix)
	b := repotest.SeedBatch(t, ctx, db, p.ID, "CC-"+suffix, tracking.BatchStatusPending)
	const n = 8
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		a := repotest.SeedAssembly(t, ctx, db, p.ID, fmt.Sprintf("CC-%d", i), "10", 1)
		ids = append(ids, a.ID)
	}
	t.Cleanup(func() {
		db.Where("batch_id = ?", b.ID).Delete(&types.BatchAssembly{})
		db.Where("assembly_id IN ?", ids).Delete(&types.AssemblyStatusLog{})
		db.Where("id IN ?", ids).Delete(&types.Assembly{})
		db.Where("id = ?", b.ID).Delete(&types.LogisticsBatch{})
		db.Where("id = ?", p.ID).Delete(&types.Project{})
	})

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := agg.AddAssembly(ctx, domainagg.AddBatchAssemblyInput{BatchID: b.ID, AssemblyID: id})
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent add: %v", err)
		}
	}

	stored, err := set.Batches.GetByID(dbctx.Context{Ctx: ctx}, b.ID)
	if err != nil || stored == nil {
		t.Fatalf("reload: %v", err)
	}
	if !stored.TotalWeight.Equal(decimal.NewFromInt(10 * n)) {
		t.Fatalf("total weight: want=%d got=%s", 10*n, stored.TotalWeight)
	}
	if stored.Version != n {
		t.Fatalf("version: want=%d got=%d", n, stored.Version)
	}
}

func TestAggregatesShareLockOrder(t *testing.T) {
	h := newHarness(t, nil)
	for _, c := range []domainagg.Contract{h.assemblies.Contract(), h.batches.Contract()} {
		if !c.LocksBefore("logistics_batches", "assemblies") || c.LocksBefore("assemblies", "logistics_batches") {
			t.Fatalf("%s locks in order %v", c.Name, c.LockOrder)
		}
		if c.LocksBefore("logistics_batches", "qc_images") {
			t.Fatalf("%s claims a lock on an unlocked table", c.Name)
		}
	}
}
