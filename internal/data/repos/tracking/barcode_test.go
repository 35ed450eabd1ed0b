package tracking

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/trackflow-backend/internal/data/repos/testutil"
	types "github.com/yungbote/trackflow-backend/internal/domain"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
)

func TestBarcodeRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewBarcodeRepo(db, testutil.Logger(t))

	p := testutil.SeedProject(t, ctx, tx, "P-BC")
	a := testutil.SeedAssembly(t, ctx, tx, p.ID, "A", "2", 1)
	b := testutil.SeedBatch(t, ctx, tx, p.ID, "B-1", "Pending")

	if _, err := repo.Create(dbc, &types.Barcode{Code: "X", AssemblyID: &a.ID, BatchID: &b.ID}); err == nil {
		t.Fatalf("expected error for barcode with two targets")
	}
	if _, err := repo.Create(dbc, &types.Barcode{Code: "Y"}); err == nil {
		t.Fatalf("expected error for barcode with no target")
	}

	if _, err := repo.Create(dbc, &types.Barcode{Code: "ASM-1", AssemblyID: &a.ID}); err != nil {
		t.Fatalf("Create assembly barcode: %v", err)
	}
	if _, err := repo.Create(dbc, &types.Barcode{Code: "BAT-1", BatchID: &b.ID}); err != nil {
		t.Fatalf("Create batch barcode: %v", err)
	}

	got, err := repo.GetByCode(dbc, " ASM-1 ")
	if err != nil || got == nil || got.AssemblyID == nil || *got.AssemblyID != a.ID {
		t.Fatalf("GetByCode: err=%v row=%+v", err, got)
	}
	if got, err := repo.GetByBatchID(dbc, b.ID); err != nil || got == nil || got.Code != "BAT-1" {
		t.Fatalf("GetByBatchID: err=%v row=%+v", err, got)
	}
	if got, err := repo.GetByCode(dbc, "NOPE"); err != nil || got != nil {
		t.Fatalf("GetByCode missing: err=%v row=%+v", err, got)
	}
	if rows, err := repo.ListByAssemblyIDs(dbc, []uuid.UUID{a.ID, uuid.New()}); err != nil || len(rows) != 1 {
		t.Fatalf("ListByAssemblyIDs: err=%v len=%d", err, len(rows))
	}
	if n, err := repo.DeleteByAssemblyIDs(dbc, []uuid.UUID{a.ID}); err != nil || n != 1 {
		t.Fatalf("DeleteByAssemblyIDs: err=%v n=%d", err, n)
	}
}
