package aggregates

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yungbote/trackflow-backend/internal/barcode"
	"github.com/yungbote/trackflow-backend/internal/data/repos"
	types "github.com/yungbote/trackflow-backend/internal/domain"
	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
)

type AssemblyAggregateDeps struct {
	Base BaseDeps

	Projects   repos.ProjectRepo
	Assemblies repos.AssemblyRepo
	Barcodes   repos.BarcodeRepo
	Batches    repos.BatchRepo
	Members    repos.BatchAssemblyRepo
	StatusLogs repos.StatusLogRepo
	QCImages   repos.QCImageRepo

	// NewCode issues barcode tokens; nil means barcode.Generate.
	NewCode func(prefix string) (string, error)
}

type assemblyAggregate struct {
	deps   AssemblyAggregateDeps
	writer batchWriter
}

func NewAssemblyAggregate(deps AssemblyAggregateDeps) domainagg.AssemblyAggregate {
	deps.Base = deps.Base.withDefaults()
	if deps.NewCode == nil {
		deps.NewCode = barcode.Generate
	}
	return &assemblyAggregate{
		deps: deps,
		writer: batchWriter{
			batches:  deps.Batches,
			members:  deps.Members,
			guard:    deps.Base.Guard,
			hooks:    deps.Base.Hooks,
			opPrefix: "Tracking.Assembly",
		},
	}
}

func (a *assemblyAggregate) Contract() domainagg.Contract {
	return domainagg.AssemblyAggregateContract
}

func (a *assemblyAggregate) configured() bool {
	d := a.deps
	return d.Projects != nil && d.Assemblies != nil && d.Barcodes != nil && d.Batches != nil &&
		d.Members != nil && d.StatusLogs != nil && d.QCImages != nil
}

func (a *assemblyAggregate) Create(ctx context.Context, in domainagg.CreateAssemblyInput) (domainagg.CreateAssemblyResult, error) {
	const op = "Tracking.Assembly.Create"
	var out domainagg.CreateAssemblyResult

	root, err := rootFromInput(op, in)
	if err != nil {
		return out, err
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "assembly aggregate repos not configured", nil)
	}

	err = executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.CreateAssemblyResult{}
		p, err := a.deps.Projects.GetByID(dbc, in.ProjectID)
		if err != nil {
			return err
		}
		if p == nil {
			return notFound(op, "project", in.ProjectID)
		}

		row := *root
		row.ID = uuid.New()
		if _, err := a.deps.Assemblies.Create(dbc, []*types.Assembly{&row}); err != nil {
			return err
		}
		out.Assembly = &row

		created := []*types.Assembly{&row}
		if row.IsParent {
			children := make([]*types.Assembly, 0, row.OriginalQuantity)
			for n := 1; n <= row.OriginalQuantity; n++ {
				children = append(children, childOf(&row, n))
			}
			if _, err := a.deps.Assemblies.Create(dbc, children); err != nil {
				return err
			}
			for _, c := range children {
				out.ChildIDs = append(out.ChildIDs, c.ID)
			}
			out.ChildCount = len(children)
			created = append(created, children...)
		}

		if in.SkipBarcodes {
			return nil
		}
		for _, asm := range created {
			code, err := a.issueBarcode(dbc, asm.ID)
			if err != nil {
				out.Outcome.AddPending(domainagg.StepIssueBarcode, asm.ID.String(), err)
				continue
			}
			if asm.ID == row.ID {
				out.Barcode = code
			}
		}
		return nil
	})
	if err != nil {
		return domainagg.CreateAssemblyResult{}, err
	}
	a.deps.Base.Hooks.ObserveFanOut(out.ChildCount)
	recordPending(a.deps.Base, op, out.Outcome)
	if out.Outcome.Partial() {
		a.deps.Base.Log.Warn("assembly created with pending effects",
			"assembly_id", out.Assembly.ID,
			"pending", len(out.Outcome.Pending),
		)
	}
	return out, nil
}

// issueBarcode binds a fresh token to the assembly inside a savepoint, so a failed
// bind rolls back alone and leaves the surrounding fan-out intact.
func (a *assemblyAggregate) issueBarcode(dbc dbctx.Context, assemblyID uuid.UUID) (string, error) {
	if dbc.Tx == nil {
		return "", fmt.Errorf("issue barcode: missing transaction")
	}
	code, err := a.deps.NewCode(barcode.PrefixAssembly)
	if err != nil {
		return "", err
	}
	id := assemblyID
	err = dbc.Tx.Transaction(func(sp *gorm.DB) error {
		_, err := a.deps.Barcodes.Create(dbctx.Context{Ctx: dbc.Ctx, Tx: sp}, &types.Barcode{
			Code:       code,
			AssemblyID: &id,
		})
		return err
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

func (a *assemblyAggregate) EnsureChildren(ctx context.Context, parentID uuid.UUID) (domainagg.EnsureChildrenResult, error) {
	const op = "Tracking.Assembly.EnsureChildren"
	out := domainagg.EnsureChildrenResult{ParentID: parentID}
	if parentID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing assembly id", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "assembly aggregate repos not configured", nil)
	}

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.EnsureChildrenResult{ParentID: parentID}
		parent, err := a.deps.Assemblies.LockByID(dbc, parentID)
		if err != nil {
			return err
		}
		if !parent.IsParent || parent.IsChild() {
			return domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("assembly %s is not a parent", parent.Name), nil)
		}
		created, existing, err := a.fillChildren(dbc, parent)
		if err != nil {
			return err
		}
		out.Existing = existing
		for _, c := range created {
			out.Created = append(out.Created, c.ID)
			if _, err := a.issueBarcode(dbc, c.ID); err != nil {
				out.Outcome.AddPending(domainagg.StepIssueBarcode, c.ID.String(), err)
			}
		}
		return nil
	})
	if err != nil {
		return domainagg.EnsureChildrenResult{ParentID: parentID}, err
	}
	a.deps.Base.Hooks.ObserveFanOut(len(out.Created))
	recordPending(a.deps.Base, op, out.Outcome)
	return out, nil
}

// fillChildren inserts children for every number in 1..OriginalQuantity that has no row.
// The caller must hold the parent row lock.
func (a *assemblyAggregate) fillChildren(dbc dbctx.Context, parent *types.Assembly) ([]*types.Assembly, int, error) {
	nums, err := a.deps.Assemblies.ChildNumbers(dbc, parent.ID)
	if err != nil {
		return nil, 0, err
	}
	have := make(map[int]struct{}, len(nums))
	for _, n := range nums {
		have[n] = struct{}{}
	}
	var missing []*types.Assembly
	for n := 1; n <= parent.OriginalQuantity; n++ {
		if _, ok := have[n]; ok {
			continue
		}
		missing = append(missing, childOf(parent, n))
	}
	if len(missing) > 0 {
		if _, err := a.deps.Assemblies.Create(dbc, missing); err != nil {
			return nil, 0, err
		}
	}
	return missing, len(nums), nil
}

func (a *assemblyAggregate) Update(ctx context.Context, in domainagg.UpdateAssemblyInput) (domainagg.UpdateAssemblyResult, error) {
	const op = "Tracking.Assembly.Update"
	var out domainagg.UpdateAssemblyResult
	if in.AssemblyID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing assembly id", nil)
	}
	updates, err := patchUpdates(op, in.Patch)
	if err != nil {
		return out, err
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "assembly aggregate repos not configured", nil)
	}
	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = tracking.StatusSourceManual
	}

	err = executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.UpdateAssemblyResult{}
		current, err := a.deps.Assemblies.GetByID(dbc, in.AssemblyID)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound(op, "assembly", in.AssemblyID)
		}

		grow := false
		if q, ok := updates["quantity"].(int); ok {
			switch {
			case current.IsParent:
				if q < current.OriginalQuantity {
					return domainagg.NewError(domainagg.CodeValidation, op,
						fmt.Sprintf("quantity cannot drop below %d; delete the parent to remove children", current.OriginalQuantity), nil)
				}
				updates["original_quantity"] = q
				grow = q > current.OriginalQuantity
			case q != 1:
				return domainagg.NewError(domainagg.CodeValidation, op, "quantity of a single or child assembly is fixed at 1", nil)
			}
		}

		var children []*types.Assembly
		family := []uuid.UUID{current.ID}
		if current.IsParent {
			if children, err = a.deps.Assemblies.ListChildren(dbc, current.ID); err != nil {
				return err
			}
			for _, c := range children {
				family = append(family, c.ID)
			}
		}

		_, weightChanged := updates["weight"]
		_, qtyChanged := updates["quantity"]
		reweigh := weightChanged || qtyChanged

		var locked []*types.LogisticsBatch
		if reweigh {
			if locked, err = a.lockFamilyBatches(dbc, family, nil); err != nil {
				return err
			}
		}
		asm, err := a.deps.Assemblies.LockByID(dbc, current.ID)
		if err != nil {
			return err
		}
		if reweigh {
			// a batch link committed between the first read and the row lock
			if locked, err = a.lockFamilyBatches(dbc, family, locked); err != nil {
				return err
			}
		}

		if err := a.deps.Assemblies.UpdateFields(dbc, asm.ID, updates); err != nil {
			return err
		}

		var logs []*types.AssemblyStatusLog
		newStatus, statusChanged := updates["status"].(string)
		if statusChanged && newStatus != asm.Status {
			logs = append(logs, newStatusLog(asm.ID, asm.Status, newStatus, source, in.ActorID, nil))
		}

		if asm.IsParent {
			propagate := make(map[string]interface{})
			for _, k := range tracking.PropagatedFields {
				if v, ok := updates[k]; ok {
					propagate[k] = v
				}
			}
			if len(propagate) > 0 && len(children) > 0 {
				n, err := a.deps.Assemblies.UpdateChildrenFields(dbc, asm.ID, propagate)
				if err != nil {
					return err
				}
				out.ChildrenUpdated = int(n)
			}
			if statusChanged {
				for _, c := range children {
					if c.Status == newStatus {
						continue
					}
					logs = append(logs, newStatusLog(c.ID, c.Status, newStatus, tracking.StatusSourceParentPropagation, in.ActorID,
						map[string]any{"parent_id": asm.ID.String()}))
				}
			}
		}
		if err := a.deps.StatusLogs.Create(dbc, logs); err != nil {
			return err
		}

		reloaded, err := a.deps.Assemblies.GetByID(dbc, asm.ID)
		if err != nil {
			return err
		}
		if grow {
			created, _, err := a.fillChildren(dbc, reloaded)
			if err != nil {
				return err
			}
			for _, c := range created {
				out.ChildrenCreated = append(out.ChildrenCreated, c.ID)
				if _, err := a.issueBarcode(dbc, c.ID); err != nil {
					out.Outcome.AddPending(domainagg.StepIssueBarcode, c.ID.String(), err)
				}
			}
		}

		if reweigh {
			if out.BatchesReweighed, err = a.writer.reweighAll(dbc, locked); err != nil {
				return err
			}
		}
		out.Assembly = reloaded
		return nil
	})
	if err != nil {
		return domainagg.UpdateAssemblyResult{}, err
	}
	recordPending(a.deps.Base, op, out.Outcome)
	return out, nil
}

// lockFamilyBatches locks the batches holding any of the assemblies, skipping those in have.
func (a *assemblyAggregate) lockFamilyBatches(dbc dbctx.Context, family []uuid.UUID, have []*types.LogisticsBatch) ([]*types.LogisticsBatch, error) {
	ids, err := a.deps.Members.BatchIDsForAssemblies(dbc, family)
	if err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]struct{}, len(have))
	for _, b := range have {
		seen[b.ID] = struct{}{}
	}
	var fresh []uuid.UUID
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	rows, err := a.writer.lockBatches(dbc, fresh)
	if err != nil {
		return nil, err
	}
	return append(have, rows...), nil
}

func (a *assemblyAggregate) Delete(ctx context.Context, in domainagg.DeleteAssemblyInput) (domainagg.DeleteAssemblyResult, error) {
	const op = "Tracking.Assembly.Delete"
	var out domainagg.DeleteAssemblyResult
	if in.AssemblyID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing assembly id", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "assembly aggregate repos not configured", nil)
	}

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		out = domainagg.DeleteAssemblyResult{}
		current, err := a.deps.Assemblies.GetByID(dbc, in.AssemblyID)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound(op, "assembly", in.AssemblyID)
		}
		if current.IsChild() {
			return domainagg.NewError(domainagg.CodeValidation, op,
				fmt.Sprintf("%s is a fan-out child; delete its parent instead", current.Name), nil)
		}

		rows := []*types.Assembly{current}
		if current.IsParent {
			children, err := a.deps.Assemblies.ListChildren(dbc, current.ID)
			if err != nil {
				return err
			}
			rows = append(rows, children...)
		}
		ids := make([]uuid.UUID, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.ID)
			if k := strings.TrimSpace(r.DrawingKey); k != "" {
				out.StorageKeys = append(out.StorageKeys, k)
			}
		}

		locked, err := a.lockFamilyBatches(dbc, ids, nil)
		if err != nil {
			return err
		}
		if _, err := a.deps.Assemblies.LockByID(dbc, current.ID); err != nil {
			return err
		}
		if locked, err = a.lockFamilyBatches(dbc, ids, locked); err != nil {
			return err
		}
		for _, b := range locked {
			if b.IsLocked() {
				return ConflictError(fmt.Sprintf("assembly is part of %s batch %s", strings.ToLower(b.Status), b.BatchNumber))
			}
		}

		images, err := a.deps.QCImages.ListByAssemblyIDs(dbc, ids)
		if err != nil {
			return err
		}
		for _, img := range images {
			out.StorageKeys = append(out.StorageKeys, img.StorageKey)
		}

		if _, err := a.deps.Members.DeleteByAssemblyIDs(dbc, ids); err != nil {
			return err
		}
		if _, err := a.deps.Barcodes.DeleteByAssemblyIDs(dbc, ids); err != nil {
			return err
		}
		if _, err := a.deps.StatusLogs.DeleteByAssemblyIDs(dbc, ids); err != nil {
			return err
		}
		if _, err := a.deps.QCImages.DeleteByAssemblyIDs(dbc, ids); err != nil {
			return err
		}
		if _, err := a.deps.Assemblies.DeleteByIDs(dbc, ids); err != nil {
			return err
		}
		if out.BatchesReweighed, err = a.writer.reweighAll(dbc, locked); err != nil {
			return err
		}
		out.DeletedIDs = ids
		return nil
	})
	if err != nil {
		return domainagg.DeleteAssemblyResult{}, err
	}
	return out, nil
}

// rootFromInput validates the create input and returns the parent or single row template.
func rootFromInput(op string, in domainagg.CreateAssemblyInput) (*types.Assembly, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "name is required", nil)
	}
	if in.ProjectID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "project_id is required", nil)
	}
	if in.Quantity < 0 {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "quantity must not be negative", nil)
	}
	for field, v := range map[string]decimal.Decimal{"weight": in.Weight, "width": in.Width, "height": in.Height, "length": in.Length} {
		if v.IsNegative() {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, field+" must not be negative", nil)
		}
	}
	status := tracking.AssemblyStatusWaiting
	if strings.TrimSpace(in.Status) != "" {
		if status = tracking.NormalizeAssemblyStatus(in.Status); status == "" {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("unknown assembly status %q", in.Status), nil)
		}
	}
	qc := tracking.QCStatusPending
	if strings.TrimSpace(in.QualityControlStatus) != "" {
		if qc = tracking.NormalizeQCStatus(in.QualityControlStatus); qc == "" {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("unknown quality control status %q", in.QualityControlStatus), nil)
		}
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "end_date is before start_date", nil)
	}

	qty := in.Quantity
	if qty < 1 {
		qty = 1
	}
	return &types.Assembly{
		Name:                 name,
		ProjectID:            in.ProjectID,
		Weight:               in.Weight,
		Quantity:             qty,
		Width:                in.Width,
		Height:               in.Height,
		Length:               in.Length,
		PaintingSpec:         strings.TrimSpace(in.PaintingSpec),
		Status:               status,
		StartDate:            in.StartDate,
		EndDate:              in.EndDate,
		QualityControlStatus: qc,
		QualityControlNotes:  strings.TrimSpace(in.QualityControlNotes),
		IsParent:             qty > 1,
		OriginalQuantity:     qty,
	}, nil
}

// childOf builds child n of parent, copying every propagated attribute.
func childOf(parent *types.Assembly, n int) *types.Assembly {
	pid := parent.ID
	num := n
	return &types.Assembly{
		ID:                   uuid.New(),
		Name:                 tracking.ChildName(parent.Name, n),
		ProjectID:            parent.ProjectID,
		Weight:               parent.Weight,
		Quantity:             1,
		Width:                parent.Width,
		Height:               parent.Height,
		Length:               parent.Length,
		PaintingSpec:         parent.PaintingSpec,
		Status:               parent.Status,
		StartDate:            parent.StartDate,
		EndDate:              parent.EndDate,
		QualityControlStatus: parent.QualityControlStatus,
		QualityControlNotes:  parent.QualityControlNotes,
		ParentID:             &pid,
		ChildNumber:          &num,
		OriginalQuantity:     1,
	}
}

// patchUpdates converts a patch into column updates, validating each field.
func patchUpdates(op string, p domainagg.AssemblyPatch) (map[string]interface{}, error) {
	updates := make(map[string]interface{})
	invalid := func(msg string) error {
		return domainagg.NewError(domainagg.CodeValidation, op, msg, nil)
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, invalid("name must not be empty")
		}
		updates["name"] = name
	}
	dims := []struct {
		col string
		v   *decimal.Decimal
	}{
		{"weight", p.Weight},
		{"width", p.Width},
		{"height", p.Height},
		{"length", p.Length},
	}
	for _, d := range dims {
		if d.v == nil {
			continue
		}
		if d.v.IsNegative() {
			return nil, invalid(d.col + " must not be negative")
		}
		updates[d.col] = *d.v
	}
	if p.Quantity != nil {
		if *p.Quantity < 1 {
			return nil, invalid("quantity must be at least 1")
		}
		updates["quantity"] = *p.Quantity
	}
	if p.PaintingSpec != nil {
		updates["painting_spec"] = strings.TrimSpace(*p.PaintingSpec)
	}
	if p.Status != nil {
		s := tracking.NormalizeAssemblyStatus(*p.Status)
		if s == "" {
			return nil, invalid(fmt.Sprintf("unknown assembly status %q", *p.Status))
		}
		updates["status"] = s
	}
	if p.StartDate != nil {
		updates["start_date"] = p.StartDate.UTC()
	}
	if p.EndDate != nil {
		updates["end_date"] = p.EndDate.UTC()
	}
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return nil, invalid("end_date is before start_date")
	}
	if p.QualityControlStatus != nil {
		s := tracking.NormalizeQCStatus(*p.QualityControlStatus)
		if s == "" {
			return nil, invalid(fmt.Sprintf("unknown quality control status %q", *p.QualityControlStatus))
		}
		updates["quality_control_status"] = s
	}
	if p.QualityControlNotes != nil {
		updates["quality_control_notes"] = strings.TrimSpace(*p.QualityControlNotes)
	}
	if p.DrawingKey != nil {
		updates["drawing_key"] = strings.TrimSpace(*p.DrawingKey)
	}
	if len(updates) == 0 {
		return nil, invalid("no fields to update")
	}
	return updates, nil
}
