package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yungbote/trackflow-backend/internal/data/repos"
	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/events"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
)

func TestAssemblyCreatePublishesAndStampsActor(t *testing.T) {
	h := newHarness(t)
	p := h.project(t)

	res, err := h.assemblies.Create(h.ctx, domainagg.CreateAssemblyInput{
		Name:      "Beam-A",
		ProjectID: p.ID,
		Weight:    decimal.NewFromInt(100),
		Quantity:  3,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.ChildCount != 3 || res.Outcome.Partial() {
		t.Fatalf("unexpected result: children=%d pending=%v", res.ChildCount, res.Outcome.Pending)
	}
	if n := h.publisher.count(events.AssemblyCreated); n != 1 {
		t.Fatalf("AssemblyCreated published %d times", n)
	}
	if len(h.scheduler.ids) != 0 {
		t.Fatalf("nothing should be scheduled, got %v", h.scheduler.ids)
	}

	children, err := h.assemblies.Children(dbctx.Context{Ctx: h.ctx}, res.Assembly.ID)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 3 {
		t.Fatalf("children = %d, want 3", len(children))
	}
	for i, c := range children {
		want := tracking.ChildName("Beam-A", i+1)
		if c.Name != want || c.Quantity != 1 || !c.Weight.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("child %d = %s qty=%d weight=%s", i, c.Name, c.Quantity, c.Weight)
		}
	}
}

func TestAssemblyCreateFailedCommitLeavesNoRows(t *testing.T) {
	h := newHarnessWith(t, harnessOpts{failCommit: errors.New("disk full")})
	p := h.project(t)

	_, err := h.assemblies.Create(h.ctx, domainagg.CreateAssemblyInput{
		Name:      "Truss",
		ProjectID: p.ID,
		Weight:    decimal.NewFromInt(40),
		Quantity:  4,
	})
	if !domainagg.IsCode(err, domainagg.CodeInternal) {
		t.Fatalf("want internal error, got %v", err)
	}
	rows, total, err := h.repos.Assemblies.List(dbctx.Context{Ctx: h.ctx}, repos.AssemblyFilter{ProjectID: &p.ID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 0 || len(rows) != 0 {
		t.Fatalf("rolled back create left %d rows", total)
	}
	if n := h.publisher.count(events.AssemblyCreated); n != 0 {
		t.Fatalf("AssemblyCreated published for a rolled back create")
	}
	if got := h.hooks.LastStatus("Tracking.Assembly.Create"); got != string(domainagg.CodeInternal) {
		t.Fatalf("operation status = %q", got)
	}
	if _, rollbacks := h.runner.Counts(); rollbacks != 1 {
		t.Fatalf("rollbacks = %d", rollbacks)
	}
}

func TestAssemblyCreateSchedulesBackfillForFailedBarcodes(t *testing.T) {
	h := newHarnessWith(t, harnessOpts{assemblyCode: failingCode})
	p := h.project(t)

	res, err := h.assemblies.Create(h.ctx, domainagg.CreateAssemblyInput{
		Name:      "Column",
		ProjectID: p.ID,
		Weight:    decimal.NewFromInt(10),
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(res.Outcome.Pending) != 3 {
		t.Fatalf("pending = %d, want 3 (parent + 2 children)", len(res.Outcome.Pending))
	}
	if len(h.scheduler.ids) != 3 {
		t.Fatalf("scheduled %d ids, want 3", len(h.scheduler.ids))
	}
}

func TestAssemblyCreateReportsScheduleAndPublishFailures(t *testing.T) {
	h := newHarnessWith(t, harnessOpts{assemblyCode: failingCode})
	h.scheduler.err = errors.New("temporal down")
	h.publisher.err = errors.New("broker down")
	p := h.project(t)

	res, err := h.assemblies.Create(h.ctx, domainagg.CreateAssemblyInput{
		Name:      "Plate",
		ProjectID: p.ID,
		Weight:    decimal.NewFromInt(5),
		Quantity:  1,
	})
	if err != nil {
		t.Fatalf("Create must succeed when only side effects fail: %v", err)
	}
	steps := map[string]int{}
	for _, pe := range res.Outcome.Pending {
		steps[pe.Step]++
	}
	if steps[domainagg.StepIssueBarcode] != 1 || steps[domainagg.StepPublishEvent] != 1 || steps[domainagg.StepBackfill] != 1 {
		t.Fatalf("unexpected pending steps: %v", steps)
	}
	got, err := h.repos.Assemblies.GetByID(dbctx.Context{Ctx: h.ctx}, res.Assembly.ID)
	if err != nil || got == nil {
		t.Fatalf("assembly should be committed: %v %v", got, err)
	}
}

func TestAssemblySkipBarcodesSchedulesEveryRow(t *testing.T) {
	h := newHarness(t)
	p := h.project(t)
	res, err := h.assemblies.Create(h.ctx, domainagg.CreateAssemblyInput{
		Name:         "Truss",
		ProjectID:    p.ID,
		Weight:       decimal.NewFromInt(1),
		Quantity:     2,
		SkipBarcodes: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Barcode != "" {
		t.Fatalf("no barcode expected, got %s", res.Barcode)
	}
	if len(h.scheduler.ids) != 3 {
		t.Fatalf("scheduled %d, want 3", len(h.scheduler.ids))
	}
}

func TestAssemblyGetDetail(t *testing.T) {
	h := newHarness(t)
	p := h.project(t)
	res, err := h.assemblies.Create(h.ctx, domainagg.CreateAssemblyInput{
		Name:      "Girder",
		ProjectID: p.ID,
		Weight:    decimal.NewFromInt(20),
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	d, err := h.assemblies.Get(dbctx.Context{Ctx: h.ctx}, res.Assembly.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Barcode != res.Barcode || d.ChildCount != 2 || len(d.BatchIDs) != 0 {
		t.Fatalf("unexpected detail: barcode=%s children=%d batches=%v", d.Barcode, d.ChildCount, d.BatchIDs)
	}

	byCode, err := h.assemblies.GetByBarcode(dbctx.Context{Ctx: h.ctx}, "  "+res.Barcode+" ")
	if err != nil {
		t.Fatalf("GetByBarcode: %v", err)
	}
	if byCode.ID != res.Assembly.ID {
		t.Fatalf("GetByBarcode resolved %s", byCode.ID)
	}

	if _, err := h.assemblies.Get(dbctx.Context{Ctx: h.ctx}, uuid.New()); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("missing assembly: want not_found, got %v", err)
	}
}

func TestAssemblyGetByBarcodeRejectsBatchToken(t *testing.T) {
	h := newHarness(t)
	p := h.project(t)
	created, err := h.batches.Create(h.ctx, CreateBatchInput{ProjectID: p.ID, ClientName: "ACME"})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	_, err = h.assemblies.GetByBarcode(dbctx.Context{Ctx: h.ctx}, created.Barcode)
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("want validation, got %v", err)
	}
}

func TestAssemblyUpdateReweighsBatchAndPublishes(t *testing.T) {
	h := newHarness(t)
	p := h.project(t)
	a := h.assembly(t, p.ID, "Brace", "50", 1)
	b := h.batch(t, p.ID, tracking.BatchStatusPending)
	if _, err := h.batches.AddAssembly(h.ctx, b.ID, a.ID, ""); err != nil {
		t.Fatalf("AddAssembly: %v", err)
	}
	h.publisher.events = nil

	w := decimal.NewFromInt(70)
	res, err := h.assemblies.Update(h.ctx, a.ID, domainagg.AssemblyPatch{Weight: &w}, "")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(res.BatchesReweighed) != 1 || res.BatchesReweighed[0] != b.ID {
		t.Fatalf("reweighed = %v", res.BatchesReweighed)
	}
	got, _ := h.repos.Batches.GetByID(dbctx.Context{Ctx: h.ctx}, b.ID)
	if !got.TotalWeight.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("total weight = %s, want 70", got.TotalWeight)
	}
	if h.publisher.count(events.AssemblyUpdated) != 1 || h.publisher.count(events.BatchUpdated) != 1 {
		t.Fatalf("published %v", h.publisher.eventTypes())
	}
}

func TestAssemblyChangeStatusRejectsUnknown(t *testing.T) {
	h := newHarness(t)
	p := h.project(t)
	a := h.assembly(t, p.ID, "Rail", "1", 1)

	if _, err := h.assemblies.ChangeStatus(h.ctx, a.ID, "Shipped", tracking.StatusSourceMobile); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("want validation, got %v", err)
	}
	res, err := h.assemblies.ChangeStatus(h.ctx, a.ID, "welding", tracking.StatusSourceMobile)
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if res.Assembly.Status != tracking.AssemblyStatusWelding {
		t.Fatalf("status = %s", res.Assembly.Status)
	}
	logs, err := h.assemblies.StatusHistory(dbctx.Context{Ctx: h.ctx}, a.ID, 10)
	if err != nil {
		t.Fatalf("StatusHistory: %v", err)
	}
	if len(logs) != 1 || logs[0].Source != tracking.StatusSourceMobile || logs[0].ChangedBy == nil || *logs[0].ChangedBy != h.actor.ID {
		t.Fatalf("unexpected status log: %+v", logs)
	}
}

func TestAssemblyUpdateQC(t *testing.T) {
	h := newHarness(t)
	p := h.project(t)
	a := h.assembly(t, p.ID, "Stair", "1", 1)
	notes := "weld porosity"
	res, err := h.assemblies.UpdateQC(h.ctx, a.ID, "rework", &notes)
	if err != nil {
		t.Fatalf("UpdateQC: %v", err)
	}
	if res.Assembly.QualityControlStatus != tracking.QCStatusRework || res.Assembly.QualityControlNotes != notes {
		t.Fatalf("qc = %s %q", res.Assembly.QualityControlStatus, res.Assembly.QualityControlNotes)
	}
	if _, err := h.assemblies.UpdateQC(h.ctx, a.ID, "great", nil); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("want validation, got %v", err)
	}
}

func TestAssemblyDeleteRemovesStoredObjects(t *testing.T) {
	h := newHarness(t)
	p := h.project(t)
	a := h.assembly(t, p.ID, "Frame", "1", 1)

	up, err := h.assemblies.UploadDrawing(h.ctx, a.ID, FileUpload{FileName: "frame rev1.pdf", Body: strings.NewReader("pdf")})
	if err != nil {
		t.Fatalf("UploadDrawing: %v", err)
	}
	drawing := up.Assembly.DrawingKey
	if !strings.HasPrefix(drawing, "drawings/"+a.ID.String()+"/") || !strings.HasSuffix(drawing, "_frame_rev1.pdf") {
		t.Fatalf("drawing key = %s", drawing)
	}
	img, err := h.qc.UploadImage(h.ctx, a.ID, QCImageInput{File: FileUpload{FileName: "weld.jpg", ContentType: "image/jpeg", Body: strings.NewReader("jpg")}})
	if err != nil {
		t.Fatalf("UploadImage: %v", err)
	}

	res, err := h.assemblies.Delete(h.ctx, a.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(res.DeletedIDs) != 1 {
		t.Fatalf("deleted = %v", res.DeletedIDs)
	}
	if h.bucket.has(drawing) || h.bucket.has(img.StorageKey) {
		t.Fatalf("stored objects survived delete: %v", h.bucket.objects)
	}
	if h.publisher.count(events.AssemblyDeleted) != 1 {
		t.Fatalf("published %v", h.publisher.eventTypes())
	}
}

func TestAssemblyUploadDrawingReplacesPrevious(t *testing.T) {
	h := newHarness(t)
	p := h.project(t)
	a := h.assembly(t, p.ID, "Bracket", "1", 1)

	first, err := h.assemblies.UploadDrawing(h.ctx, a.ID, FileUpload{FileName: "a.pdf", Body: strings.NewReader("1")})
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	second, err := h.assemblies.UploadDrawing(h.ctx, a.ID, FileUpload{FileName: "b.pdf", Body: strings.NewReader("2")})
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if h.bucket.has(first.Assembly.DrawingKey) || !h.bucket.has(second.Assembly.DrawingKey) {
		t.Fatalf("old drawing should be gone, new one kept: %v", h.bucket.objects)
	}

	h.bucket.uploadErr = errors.New("quota")
	if _, err := h.assemblies.UploadDrawing(h.ctx, a.ID, FileUpload{FileName: "c.pdf", Body: strings.NewReader("3")}); err == nil {
		t.Fatalf("expected upload error")
	}
	got, _ := h.repos.Assemblies.GetByID(dbctx.Context{Ctx: h.ctx}, a.ID)
	if got.DrawingKey != second.Assembly.DrawingKey {
		t.Fatalf("failed upload must not change the key: %s", got.DrawingKey)
	}
}

func TestAssemblyRepairChildren(t *testing.T) {
	h := newHarness(t)
	p := h.project(t)
	res, err := h.assemblies.Create(h.ctx, domainagg.CreateAssemblyInput{
		Name:      "Purlin",
		ProjectID: p.ID,
		Weight:    decimal.NewFromInt(3),
		Quantity:  3,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// drop child 2 to simulate a legacy partial fan-out
	if _, err := h.repos.Barcodes.DeleteByAssemblyIDs(dbctx.Context{Ctx: h.ctx}, res.ChildIDs[1:2]); err != nil {
		t.Fatalf("drop barcode: %v", err)
	}
	if _, err := h.repos.Assemblies.DeleteByIDs(dbctx.Context{Ctx: h.ctx}, res.ChildIDs[1:2]); err != nil {
		t.Fatalf("drop child: %v", err)
	}

	rep, err := h.assemblies.RepairChildren(h.ctx, res.Assembly.ID)
	if err != nil {
		t.Fatalf("RepairChildren: %v", err)
	}
	if len(rep.Created) != 1 || rep.Existing != 2 {
		t.Fatalf("created=%d existing=%d", len(rep.Created), rep.Existing)
	}
	again, err := h.assemblies.RepairChildren(h.ctx, res.Assembly.ID)
	if err != nil {
		t.Fatalf("second repair: %v", err)
	}
	if len(again.Created) != 0 {
		t.Fatalf("repair must be idempotent, created %d", len(again.Created))
	}
}

func TestAssemblyListRejectsUnknownStatus(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.assemblies.List(dbctx.Context{Ctx: h.ctx}, repos.AssemblyFilter{Status: "nope"}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("want validation, got %v", err)
	}
}
