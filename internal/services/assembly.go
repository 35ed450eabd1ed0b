package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/trackflow-backend/internal/data/repos"
	types "github.com/yungbote/trackflow-backend/internal/domain"
	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/events"
	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/gcp"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

const detailStatusLogLimit = 50

type AssemblyService interface {
	List(dbc dbctx.Context, f repos.AssemblyFilter) ([]*types.Assembly, int64, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*AssemblyDetail, error)
	// GetByBarcode resolves an assembly token. Batch tokens are rejected.
	GetByBarcode(dbc dbctx.Context, code string) (*AssemblyDetail, error)
	Children(dbc dbctx.Context, id uuid.UUID) ([]*types.Assembly, error)
	StatusHistory(dbc dbctx.Context, id uuid.UUID, limit int) ([]*types.AssemblyStatusLog, error)

	Create(ctx context.Context, in domainagg.CreateAssemblyInput) (domainagg.CreateAssemblyResult, error)
	Update(ctx context.Context, id uuid.UUID, patch domainagg.AssemblyPatch, source string) (domainagg.UpdateAssemblyResult, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, status, source string) (domainagg.UpdateAssemblyResult, error)
	UpdateQC(ctx context.Context, id uuid.UUID, status string, notes *string) (domainagg.UpdateAssemblyResult, error)
	Delete(ctx context.Context, id uuid.UUID) (AssemblyDeleteResult, error)
	// RepairChildren inserts the missing children of a parent order.
	RepairChildren(ctx context.Context, id uuid.UUID) (domainagg.EnsureChildrenResult, error)
	UploadDrawing(ctx context.Context, id uuid.UUID, file FileUpload) (domainagg.UpdateAssemblyResult, error)
}

// AssemblyDetail is an assembly with its barcode, batch links and recent history.
type AssemblyDetail struct {
	*types.Assembly
	Barcode    string                     `json:"barcode,omitempty"`
	BatchIDs   []uuid.UUID                `json:"batch_ids"`
	ChildCount int                        `json:"child_count"`
	StatusLog  []*types.AssemblyStatusLog `json:"status_log"`
	DrawingURL string                     `json:"drawing_url,omitempty"`
}

type AssemblyDeleteResult struct {
	domainagg.DeleteAssemblyResult
	Outcome domainagg.Outcome
}

// FileUpload is a multipart file already opened by the handler.
type FileUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type assemblyService struct {
	db            *gorm.DB
	log           *logger.Logger
	agg           domainagg.AssemblyAggregate
	assemblyRepo  repos.AssemblyRepo
	barcodeRepo   repos.BarcodeRepo
	membersRepo   repos.BatchAssemblyRepo
	statusLogRepo repos.StatusLogRepo
	bucket        gcp.BucketService
	fx            effects
	now           func() time.Time
}

type AssemblyServiceDeps struct {
	Aggregate  domainagg.AssemblyAggregate
	Assemblies repos.AssemblyRepo
	Barcodes   repos.BarcodeRepo
	Members    repos.BatchAssemblyRepo
	StatusLogs repos.StatusLogRepo
	Bucket     gcp.BucketService
	Publisher  events.Publisher
	// Scheduler may be nil; pending barcode issues then wait for the admin backfill.
	Scheduler BackfillScheduler
}

func NewAssemblyService(db *gorm.DB, log *logger.Logger, deps AssemblyServiceDeps) AssemblyService {
	serviceLog := log.With("service", "AssemblyService")
	return &assemblyService{
		db:            db,
		log:           serviceLog,
		agg:           deps.Aggregate,
		assemblyRepo:  deps.Assemblies,
		barcodeRepo:   deps.Barcodes,
		membersRepo:   deps.Members,
		statusLogRepo: deps.StatusLogs,
		bucket:        deps.Bucket,
		fx:            effects{log: serviceLog, publisher: deps.Publisher, scheduler: deps.Scheduler},
		now:           time.Now,
	}
}

func (s *assemblyService) List(dbc dbctx.Context, f repos.AssemblyFilter) ([]*types.Assembly, int64, error) {
	if f.Status != "" {
		st := tracking.NormalizeAssemblyStatus(f.Status)
		if st == "" {
			return nil, 0, domainagg.Newf(domainagg.CodeValidation, "Assemblies.List", "unknown status %q", f.Status)
		}
		f.Status = st
	}
	return s.assemblyRepo.List(dbc, f)
}

func (s *assemblyService) load(dbc dbctx.Context, op string, id uuid.UUID) (*types.Assembly, error) {
	a, err := s.assemblyRepo.GetByID(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("get assembly: %w", err)
	}
	if a == nil {
		return nil, domainagg.Newf(domainagg.CodeNotFound, op, "assembly %s not found", id)
	}
	return a, nil
}

func (s *assemblyService) Get(dbc dbctx.Context, id uuid.UUID) (*AssemblyDetail, error) {
	a, err := s.load(dbc, "Assemblies.Get", id)
	if err != nil {
		return nil, err
	}
	return s.detail(dbc, a)
}

func (s *assemblyService) detail(dbc dbctx.Context, a *types.Assembly) (*AssemblyDetail, error) {
	out := &AssemblyDetail{Assembly: a, BatchIDs: []uuid.UUID{}}
	g, gctx := errgroup.WithContext(dbc.Ctx)
	sub := dbctx.Context{Ctx: gctx, Tx: dbc.Tx}
	g.Go(func() error {
		b, err := s.barcodeRepo.GetByAssemblyID(sub, a.ID)
		if err != nil {
			return fmt.Errorf("load barcode: %w", err)
		}
		if b != nil {
			out.Barcode = b.Code
		}
		return nil
	})
	g.Go(func() error {
		ids, err := s.membersRepo.BatchIDsForAssemblies(sub, []uuid.UUID{a.ID})
		if err != nil {
			return fmt.Errorf("load batch links: %w", err)
		}
		if len(ids) > 0 {
			out.BatchIDs = ids
		}
		return nil
	})
	g.Go(func() error {
		logs, err := s.statusLogRepo.ListByAssembly(sub, a.ID, detailStatusLogLimit)
		if err != nil {
			return fmt.Errorf("load status log: %w", err)
		}
		out.StatusLog = logs
		return nil
	})
	if a.IsParent {
		g.Go(func() error {
			nums, err := s.assemblyRepo.ChildNumbers(sub, a.ID)
			if err != nil {
				return fmt.Errorf("count children: %w", err)
			}
			out.ChildCount = len(nums)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if out.StatusLog == nil {
		out.StatusLog = []*types.AssemblyStatusLog{}
	}
	if k := strings.TrimSpace(a.DrawingKey); k != "" && s.bucket != nil {
		out.DrawingURL = s.bucket.GetPublicURL(gcp.BucketCategoryDrawing, k)
	}
	return out, nil
}

func (s *assemblyService) GetByBarcode(dbc dbctx.Context, code string) (*AssemblyDetail, error) {
	const op = "Assemblies.GetByBarcode"
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "barcode is required", nil)
	}
	b, err := s.barcodeRepo.GetByCode(dbc, code)
	if err != nil {
		return nil, fmt.Errorf("lookup barcode: %w", err)
	}
	if b == nil {
		return nil, domainagg.Newf(domainagg.CodeNotFound, op, "barcode %s is not registered", code)
	}
	if b.Kind() != tracking.BarcodeKindAssembly {
		return nil, domainagg.Newf(domainagg.CodeValidation, op, "barcode %s belongs to a batch", code)
	}
	a, err := s.load(dbc, op, b.TargetID())
	if err != nil {
		return nil, err
	}
	return s.detail(dbc, a)
}

func (s *assemblyService) Children(dbc dbctx.Context, id uuid.UUID) ([]*types.Assembly, error) {
	if _, err := s.load(dbc, "Assemblies.Children", id); err != nil {
		return nil, err
	}
	return s.assemblyRepo.ListChildren(dbc, id)
}

func (s *assemblyService) StatusHistory(dbc dbctx.Context, id uuid.UUID, limit int) ([]*types.AssemblyStatusLog, error) {
	if _, err := s.load(dbc, "Assemblies.StatusHistory", id); err != nil {
		return nil, err
	}
	return s.statusLogRepo.ListByAssembly(dbc, id, limit)
}

func (s *assemblyService) Create(ctx context.Context, in domainagg.CreateAssemblyInput) (domainagg.CreateAssemblyResult, error) {
	in.ActorID = ctxutil.ActorID(ctx)
	res, err := s.agg.Create(ctx, in)
	if err != nil {
		return res, err
	}
	s.log.Info("assembly created",
		"assembly_id", res.Assembly.ID,
		"project_id", res.Assembly.ProjectID,
		"children", res.ChildCount,
	)
	s.fx.publish(ctx, &res.Outcome, events.New(events.AssemblyCreated, res.Assembly.ProjectID, res.Assembly.ID, map[string]any{
		"assembly":    res.Assembly,
		"child_count": res.ChildCount,
		"barcode":     res.Barcode,
	}))
	var skipped []uuid.UUID
	if in.SkipBarcodes {
		skipped = append([]uuid.UUID{res.Assembly.ID}, res.ChildIDs...)
	}
	s.fx.scheduleBackfill(ctx, &res.Outcome, skipped...)
	return res, nil
}

func (s *assemblyService) Update(ctx context.Context, id uuid.UUID, patch domainagg.AssemblyPatch, source string) (domainagg.UpdateAssemblyResult, error) {
	res, err := s.agg.Update(ctx, domainagg.UpdateAssemblyInput{
		AssemblyID: id,
		Patch:      patch,
		ActorID:    ctxutil.ActorID(ctx),
		Source:     source,
	})
	if err != nil {
		return res, err
	}
	asm := res.Assembly
	evs := []events.Event{events.New(events.AssemblyUpdated, asm.ProjectID, asm.ID, map[string]any{
		"assembly":         asm,
		"children_updated": res.ChildrenUpdated,
		"children_created": len(res.ChildrenCreated),
	})}
	for _, batchID := range res.BatchesReweighed {
		evs = append(evs, events.New(events.BatchUpdated, asm.ProjectID, batchID, map[string]any{
			"reason":      "assembly_updated",
			"assembly_id": asm.ID,
		}))
	}
	s.fx.publish(ctx, &res.Outcome, evs...)
	s.fx.scheduleBackfill(ctx, &res.Outcome)
	return res, nil
}

func (s *assemblyService) ChangeStatus(ctx context.Context, id uuid.UUID, status, source string) (domainagg.UpdateAssemblyResult, error) {
	st := tracking.NormalizeAssemblyStatus(status)
	if st == "" {
		return domainagg.UpdateAssemblyResult{}, domainagg.Newf(domainagg.CodeValidation, "Assemblies.ChangeStatus",
			"status must be one of %s", strings.Join(tracking.AssemblyStatuses(), ", "))
	}
	return s.Update(ctx, id, domainagg.AssemblyPatch{Status: &st}, source)
}

func (s *assemblyService) UpdateQC(ctx context.Context, id uuid.UUID, status string, notes *string) (domainagg.UpdateAssemblyResult, error) {
	st := tracking.NormalizeQCStatus(status)
	if st == "" {
		return domainagg.UpdateAssemblyResult{}, domainagg.Newf(domainagg.CodeValidation, "Assemblies.UpdateQC", "unknown quality control status %q", status)
	}
	return s.Update(ctx, id, domainagg.AssemblyPatch{QualityControlStatus: &st, QualityControlNotes: notes}, tracking.StatusSourceManual)
}

func (s *assemblyService) Delete(ctx context.Context, id uuid.UUID) (AssemblyDeleteResult, error) {
	var out AssemblyDeleteResult
	current, err := s.load(dbctx.Context{Ctx: ctx}, "Assemblies.Delete", id)
	if err != nil {
		return out, err
	}
	res, err := s.agg.Delete(ctx, domainagg.DeleteAssemblyInput{AssemblyID: id, ActorID: ctxutil.ActorID(ctx)})
	if err != nil {
		return out, err
	}
	out.DeleteAssemblyResult = res
	s.log.Info("assembly deleted", "assembly_id", id, "rows", len(res.DeletedIDs), "batches_reweighed", len(res.BatchesReweighed))

	s.removeObjects(ctx, res.StorageKeys)

	evs := []events.Event{events.New(events.AssemblyDeleted, current.ProjectID, id, map[string]any{
		"deleted_ids": res.DeletedIDs,
	})}
	for _, batchID := range res.BatchesReweighed {
		evs = append(evs, events.New(events.BatchUpdated, current.ProjectID, batchID, map[string]any{
			"reason":      "assembly_deleted",
			"assembly_id": id,
		}))
	}
	s.fx.publish(ctx, &out.Outcome, evs...)
	return out, nil
}

// removeObjects deletes stored files of removed rows. Orphans are only logged.
func (s *assemblyService) removeObjects(ctx context.Context, keys []string) {
	if s.bucket == nil {
		return
	}
	dbc := dbctx.Context{Ctx: context.WithoutCancel(ctx)}
	for _, key := range keys {
		cat, ok := gcp.CategoryForKey(key)
		if !ok {
			s.log.Warn("unknown storage key left in bucket", "key", key)
			continue
		}
		if err := s.bucket.DeleteFile(dbc, cat, key); err != nil {
			s.log.Warn("storage object delete failed", "key", key, "error", err)
		}
	}
}

func (s *assemblyService) RepairChildren(ctx context.Context, id uuid.UUID) (domainagg.EnsureChildrenResult, error) {
	res, err := s.agg.EnsureChildren(ctx, id)
	if err != nil {
		return res, err
	}
	if len(res.Created) > 0 {
		s.log.Info("missing children restored", "assembly_id", id, "created", len(res.Created), "existing", res.Existing)
		if parent, err := s.assemblyRepo.GetByID(dbctx.Context{Ctx: ctx}, id); err == nil && parent != nil {
			s.fx.publish(ctx, &res.Outcome, events.New(events.AssemblyUpdated, parent.ProjectID, id, map[string]any{
				"assembly":         parent,
				"children_created": len(res.Created),
			}))
		}
	}
	s.fx.scheduleBackfill(ctx, &res.Outcome)
	return res, nil
}

func (s *assemblyService) UploadDrawing(ctx context.Context, id uuid.UUID, file FileUpload) (domainagg.UpdateAssemblyResult, error) {
	const op = "Assemblies.UploadDrawing"
	if s.bucket == nil {
		return domainagg.UpdateAssemblyResult{}, domainagg.NewError(domainagg.CodeInternal, op, "object storage is not configured", nil)
	}
	if file.Body == nil || strings.TrimSpace(file.FileName) == "" {
		return domainagg.UpdateAssemblyResult{}, domainagg.NewError(domainagg.CodeValidation, op, "drawing file is required", nil)
	}
	current, err := s.load(dbctx.Context{Ctx: ctx}, op, id)
	if err != nil {
		return domainagg.UpdateAssemblyResult{}, err
	}

	key := gcp.ObjectKey(gcp.BucketCategoryDrawing, id, file.FileName, s.now())
	if err := s.bucket.UploadFile(dbctx.Context{Ctx: ctx}, gcp.BucketCategoryDrawing, key, file.Body); err != nil {
		return domainagg.UpdateAssemblyResult{}, fmt.Errorf("upload drawing: %w", err)
	}
	res, err := s.Update(ctx, id, domainagg.AssemblyPatch{DrawingKey: &key}, tracking.StatusSourceManual)
	if err != nil {
		s.removeObjects(ctx, []string{key})
		return res, err
	}
	if old := strings.TrimSpace(current.DrawingKey); old != "" && old != key {
		s.removeObjects(ctx, []string{old})
	}
	s.log.Info("drawing uploaded", "assembly_id", id, "key", key, "size", file.Size)
	return res, nil
}
