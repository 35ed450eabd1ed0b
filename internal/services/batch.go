package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/trackflow-backend/internal/barcode"
	dataagg "github.com/yungbote/trackflow-backend/internal/data/aggregates"
	"github.com/yungbote/trackflow-backend/internal/data/repos"
	types "github.com/yungbote/trackflow-backend/internal/domain"
	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/events"
	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

const (
	unknownAssemblyName = "Unknown Assembly"
	unknownUserName     = "Unknown User"
)

type BatchService interface {
	List(dbc dbctx.Context, f repos.BatchFilter) ([]*types.LogisticsBatch, int64, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*BatchDetail, error)
	// ValidateBarcode resolves a scanned batch token for the handheld.
	ValidateBarcode(dbc dbctx.Context, code string) (*BatchDetail, error)
	Create(ctx context.Context, in CreateBatchInput) (BatchCreateResult, error)
	Update(ctx context.Context, id uuid.UUID, in BatchPatch) (*types.LogisticsBatch, error)
	// Delete removes a batch that has not shipped, with its memberships and barcode.
	// Member assemblies keep their status.
	Delete(ctx context.Context, id uuid.UUID) error
	ChangeStatus(ctx context.Context, id uuid.UUID, status string, expectedVersion *int) (BatchStatusResult, error)

	AddAssembly(ctx context.Context, batchID uuid.UUID, assemblyID uuid.UUID, code string) (BatchAddResult, error)
	RemoveAssembly(ctx context.Context, batchID, assemblyID uuid.UUID) (BatchRemoveResult, error)
	ListAssemblies(dbc dbctx.Context, batchID uuid.UUID) (*BatchMembers, error)
}

type BatchDetail struct {
	*types.LogisticsBatch
	Barcode       string `json:"barcode,omitempty"`
	AssemblyCount int64  `json:"assembly_count"`
}

type CreateBatchInput struct {
	BatchNumber     string    `json:"batch_number"`
	ClientName      string    `json:"client_name"`
	ProjectID       uuid.UUID `json:"project_id"`
	DeliveryAddress string    `json:"delivery_address"`
	Notes           string    `json:"notes"`
	// Barcode is an optional pre-printed token; empty issues a BAT token.
	Barcode string `json:"barcode"`
}

type BatchPatch struct {
	ClientName      *string    `json:"client_name"`
	DeliveryAddress *string    `json:"delivery_address"`
	Notes           *string    `json:"notes"`
	ProjectID       *uuid.UUID `json:"project_id"`
}

type BatchCreateResult struct {
	Batch   *types.LogisticsBatch
	Barcode string
	Outcome domainagg.Outcome
}

type BatchStatusResult struct {
	domainagg.ChangeBatchStatusResult
	Outcome domainagg.Outcome
}

type BatchAddResult struct {
	domainagg.AddBatchAssemblyResult
	Outcome domainagg.Outcome
}

type BatchRemoveResult struct {
	domainagg.RemoveBatchAssemblyResult
	Outcome domainagg.Outcome
}

// BatchMember is the listing snapshot of one membership row.
type BatchMember struct {
	AssemblyID   uuid.UUID       `json:"assembly_id"`
	Name         string          `json:"name"`
	Status       string          `json:"status"`
	Weight       decimal.Decimal `json:"weight"`
	Quantity     int             `json:"quantity"`
	LineWeight   decimal.Decimal `json:"line_weight"`
	Width        decimal.Decimal `json:"width"`
	Height       decimal.Decimal `json:"height"`
	Length       decimal.Decimal `json:"length"`
	PaintingSpec string          `json:"painting_spec"`
	IsParent     bool            `json:"is_parent"`
	ChildNumber  *int            `json:"child_number,omitempty"`
	Barcode      string          `json:"barcode,omitempty"`
	AddedBy      *uuid.UUID      `json:"added_by,omitempty"`
	AddedByName  string          `json:"added_by_name"`
	AddedAt      time.Time       `json:"added_at"`
}

type BatchMembers struct {
	Batch      *types.LogisticsBatch `json:"batch"`
	Assemblies []BatchMember         `json:"assemblies"`
}

type batchService struct {
	db           *gorm.DB
	log          *logger.Logger
	agg          domainagg.BatchAggregate
	batchRepo    repos.BatchRepo
	membersRepo  repos.BatchAssemblyRepo
	assemblyRepo repos.AssemblyRepo
	barcodeRepo  repos.BarcodeRepo
	projectRepo  repos.ProjectRepo
	userRepo     repos.UserRepo
	fx           effects
	newCode      func(prefix string) (string, error)
	now          func() time.Time
}

type BatchServiceDeps struct {
	Aggregate  domainagg.BatchAggregate
	Batches    repos.BatchRepo
	Members    repos.BatchAssemblyRepo
	Assemblies repos.AssemblyRepo
	Barcodes   repos.BarcodeRepo
	Projects   repos.ProjectRepo
	Users      repos.UserRepo
	Publisher  events.Publisher
	// NewCode issues batch tokens; nil means barcode.Generate.
	NewCode func(prefix string) (string, error)
}

func NewBatchService(db *gorm.DB, log *logger.Logger, deps BatchServiceDeps) BatchService {
	serviceLog := log.With("service", "BatchService")
	newCode := deps.NewCode
	if newCode == nil {
		newCode = barcode.Generate
	}
	return &batchService{
		db:           db,
		log:          serviceLog,
		agg:          deps.Aggregate,
		batchRepo:    deps.Batches,
		membersRepo:  deps.Members,
		assemblyRepo: deps.Assemblies,
		barcodeRepo:  deps.Barcodes,
		projectRepo:  deps.Projects,
		userRepo:     deps.Users,
		fx:           effects{log: serviceLog, publisher: deps.Publisher},
		newCode:      newCode,
		now:          time.Now,
	}
}

func (s *batchService) List(dbc dbctx.Context, f repos.BatchFilter) ([]*types.LogisticsBatch, int64, error) {
	if f.Status != "" {
		st := tracking.NormalizeBatchStatus(f.Status)
		if st == "" {
			return nil, 0, domainagg.Newf(domainagg.CodeValidation, "Batches.List", "unknown batch status %q", f.Status)
		}
		f.Status = st
	}
	return s.batchRepo.List(dbc, f)
}

func (s *batchService) load(dbc dbctx.Context, op string, id uuid.UUID) (*types.LogisticsBatch, error) {
	b, err := s.batchRepo.GetByID(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	if b == nil {
		return nil, domainagg.Newf(domainagg.CodeNotFound, op, "batch %s not found", id)
	}
	return b, nil
}

func (s *batchService) Get(dbc dbctx.Context, id uuid.UUID) (*BatchDetail, error) {
	b, err := s.load(dbc, "Batches.Get", id)
	if err != nil {
		return nil, err
	}
	return s.detail(dbc, b)
}

func (s *batchService) detail(dbc dbctx.Context, b *types.LogisticsBatch) (*BatchDetail, error) {
	out := &BatchDetail{LogisticsBatch: b}
	bc, err := s.barcodeRepo.GetByBatchID(dbc, b.ID)
	if err != nil {
		return nil, fmt.Errorf("load batch barcode: %w", err)
	}
	if bc != nil {
		out.Barcode = bc.Code
	}
	if out.AssemblyCount, err = s.membersRepo.CountByBatch(dbc, b.ID); err != nil {
		return nil, fmt.Errorf("count batch members: %w", err)
	}
	return out, nil
}

func (s *batchService) ValidateBarcode(dbc dbctx.Context, code string) (*BatchDetail, error) {
	const op = "Batches.ValidateBarcode"
	code = barcode.Normalize(code)
	if code == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "barcode is required", nil)
	}
	if !barcode.HasPrefix(code, barcode.PrefixBatch) {
		s.log.Warn("batch scan without batch prefix", "code", code)
	}
	bc, err := s.barcodeRepo.GetByCode(dbc, code)
	if err != nil {
		return nil, fmt.Errorf("lookup barcode: %w", err)
	}
	if bc == nil {
		b, err := s.batchRepo.GetByNumber(dbc, code)
		if err != nil {
			return nil, fmt.Errorf("lookup batch number: %w", err)
		}
		if b == nil {
			return nil, domainagg.Newf(domainagg.CodeNotFound, op, "no batch for %s", code)
		}
		return s.detail(dbc, b)
	}
	if bc.Kind() != tracking.BarcodeKindBatch {
		return nil, domainagg.Newf(domainagg.CodeValidation, op, "barcode %s belongs to an assembly", code)
	}
	b, err := s.load(dbc, op, bc.TargetID())
	if err != nil {
		return nil, err
	}
	return s.detail(dbc, b)
}

func (s *batchService) Create(ctx context.Context, in CreateBatchInput) (BatchCreateResult, error) {
	const op = "Batches.Create"
	var out BatchCreateResult
	if in.ProjectID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "project_id is required", nil)
	}
	number := strings.ToUpper(strings.TrimSpace(in.BatchNumber))
	if number == "" {
		generated, err := s.batchNumber()
		if err != nil {
			return out, err
		}
		number = generated
	}
	custom := barcode.Normalize(in.Barcode)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		out = BatchCreateResult{}
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		p, err := s.projectRepo.GetByID(dbc, in.ProjectID)
		if err != nil {
			return err
		}
		if p == nil {
			return domainagg.Newf(domainagg.CodeValidation, op, "project %s does not exist", in.ProjectID)
		}
		if custom != "" {
			taken, err := s.barcodeRepo.GetByCode(dbc, custom)
			if err != nil {
				return err
			}
			if taken != nil {
				return domainagg.Newf(domainagg.CodeConflict, op, "barcode %s is already bound", custom)
			}
		}
		b := &types.LogisticsBatch{
			BatchNumber:     number,
			ClientName:      strings.TrimSpace(in.ClientName),
			ProjectID:       in.ProjectID,
			DeliveryAddress: strings.TrimSpace(in.DeliveryAddress),
			Notes:           strings.TrimSpace(in.Notes),
			TotalWeight:     decimal.Zero,
			Status:          tracking.BatchStatusPending,
			Version:         1,
			CreatedBy:       ctxutil.ActorID(ctx),
		}
		if _, err := s.batchRepo.Create(dbc, b); err != nil {
			if domainagg.IsCode(dataagg.MapError(op, err), domainagg.CodeConflict) {
				return domainagg.Newf(domainagg.CodeConflict, op, "batch number %s already exists", number)
			}
			return err
		}
		out.Batch = b

		if custom != "" {
			// a pre-printed label is part of the request, so its failure fails the create
			id := b.ID
			if _, err := s.barcodeRepo.Create(dbc, &types.Barcode{Code: custom, BatchID: &id}); err != nil {
				return err
			}
			out.Barcode = custom
			return nil
		}
		code, err := s.issueBatchBarcode(dbc, b.ID)
		if err != nil {
			out.Outcome.AddPending(domainagg.StepIssueBarcode, b.ID.String(), err)
			return nil
		}
		out.Barcode = code
		return nil
	})
	if err != nil {
		if domainagg.CodeOf(err) == "" {
			return BatchCreateResult{}, dataagg.MapError(op, err)
		}
		return BatchCreateResult{}, err
	}
	s.log.Info("batch created", "batch_id", out.Batch.ID, "batch_number", out.Batch.BatchNumber, "project_id", out.Batch.ProjectID)
	s.fx.publish(ctx, &out.Outcome, events.New(events.BatchUpdated, out.Batch.ProjectID, out.Batch.ID, map[string]any{
		"reason": "created",
		"batch":  out.Batch,
	}))
	return out, nil
}

func (s *batchService) issueBatchBarcode(dbc dbctx.Context, batchID uuid.UUID) (string, error) {
	code, err := s.newCode(barcode.PrefixBatch)
	if err != nil {
		return "", err
	}
	id := batchID
	err = dbc.Tx.Transaction(func(sp *gorm.DB) error {
		_, err := s.barcodeRepo.Create(dbctx.Context{Ctx: dbc.Ctx, Tx: sp}, &types.Barcode{Code: code, BatchID: &id})
		return err
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// batchNumber is "B-YYYYMMDD-XXXX" with the random tail of a batch token.
func (s *batchService) batchNumber() (string, error) {
	token, err := s.newCode(barcode.PrefixBatch)
	if err != nil {
		return "", fmt.Errorf("generate batch number: %w", err)
	}
	tail := token
	if i := strings.LastIndex(token, "-"); i >= 0 && len(token)-i > 4 {
		tail = token[len(token)-4:]
	}
	return fmt.Sprintf("B-%s-%s", s.now().UTC().Format("20060102"), strings.ToUpper(tail)), nil
}

func (s *batchService) Update(ctx context.Context, id uuid.UUID, in BatchPatch) (*types.LogisticsBatch, error) {
	const op = "Batches.Update"
	var out *types.LogisticsBatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		b, err := s.batchRepo.LockByID(dbc, id)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{}
		if in.ClientName != nil {
			updates["client_name"] = strings.TrimSpace(*in.ClientName)
		}
		if in.DeliveryAddress != nil {
			updates["delivery_address"] = strings.TrimSpace(*in.DeliveryAddress)
		}
		if in.Notes != nil {
			updates["notes"] = strings.TrimSpace(*in.Notes)
		}
		if in.ProjectID != nil && *in.ProjectID != b.ProjectID {
			n, err := s.membersRepo.CountByBatch(dbc, b.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				return domainagg.NewError(domainagg.CodeValidation, op, "project cannot change while the batch has assemblies", nil)
			}
			p, err := s.projectRepo.GetByID(dbc, *in.ProjectID)
			if err != nil {
				return err
			}
			if p == nil {
				return domainagg.Newf(domainagg.CodeValidation, op, "project %s does not exist", *in.ProjectID)
			}
			updates["project_id"] = *in.ProjectID
		}
		if len(updates) == 0 {
			return domainagg.NewError(domainagg.CodeValidation, op, "no fields to update", nil)
		}
		updates["version"] = b.Version + 1
		if err := s.batchRepo.UpdateFields(dbc, b.ID, updates); err != nil {
			return err
		}
		out, err = s.batchRepo.GetByID(dbc, b.ID)
		return err
	})
	if err != nil {
		if domainagg.CodeOf(err) == "" {
			return nil, dataagg.MapError(op, err)
		}
		return nil, err
	}
	var outcome domainagg.Outcome
	s.fx.publish(ctx, &outcome, events.New(events.BatchUpdated, out.ProjectID, out.ID, map[string]any{
		"reason": "updated",
		"batch":  out,
	}))
	return out, nil
}

func (s *batchService) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "Batches.Delete"
	var deleted *types.LogisticsBatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		b, err := s.batchRepo.LockByID(dbc, id)
		if err != nil {
			return err
		}
		if b.Status == tracking.BatchStatusInTransit || b.Status == tracking.BatchStatusDelivered {
			return domainagg.Newf(domainagg.CodeConflict, op, "batch %s is %s and cannot be deleted", b.BatchNumber, strings.ToLower(b.Status))
		}
		if _, err := s.membersRepo.DeleteByBatch(dbc, b.ID); err != nil {
			return err
		}
		if _, err := s.barcodeRepo.DeleteByBatchID(dbc, b.ID); err != nil {
			return err
		}
		if err := s.batchRepo.Delete(dbc, b.ID); err != nil {
			return err
		}
		deleted = b
		return nil
	})
	if err != nil {
		if domainagg.CodeOf(err) == "" {
			return dataagg.MapError(op, err)
		}
		return err
	}
	s.log.Info("batch deleted", "batch_id", id, "batch_number", deleted.BatchNumber)
	var outcome domainagg.Outcome
	s.fx.publish(ctx, &outcome, events.New(events.BatchUpdated, deleted.ProjectID, id, map[string]any{
		"reason": "deleted",
	}))
	return nil
}

func (s *batchService) ChangeStatus(ctx context.Context, id uuid.UUID, status string, expectedVersion *int) (BatchStatusResult, error) {
	var out BatchStatusResult
	res, err := s.agg.ChangeStatus(ctx, domainagg.ChangeBatchStatusInput{
		BatchID:         id,
		Status:          status,
		ExpectedVersion: expectedVersion,
		ActorID:         ctxutil.ActorID(ctx),
	})
	if err != nil {
		return out, err
	}
	out.ChangeBatchStatusResult = res
	b := res.Batch
	if b.Status == res.PreviousStatus {
		return out, nil
	}
	s.log.Info("batch status changed",
		"batch_id", b.ID,
		"from", res.PreviousStatus,
		"to", b.Status,
		"assemblies_completed", len(res.AssembliesComplete),
	)
	evs := []events.Event{events.New(events.BatchUpdated, b.ProjectID, b.ID, map[string]any{
		"reason":          "status",
		"batch":           b,
		"previous_status": res.PreviousStatus,
	})}
	for _, asmID := range res.AssembliesComplete {
		evs = append(evs, events.New(events.AssemblyUpdated, b.ProjectID, asmID, map[string]any{
			"status":   tracking.AssemblyStatusCompleted,
			"batch_id": b.ID,
		}))
	}
	s.fx.publish(ctx, &out.Outcome, evs...)
	return out, nil
}

func (s *batchService) AddAssembly(ctx context.Context, batchID uuid.UUID, assemblyID uuid.UUID, code string) (BatchAddResult, error) {
	var out BatchAddResult
	res, err := s.agg.AddAssembly(ctx, domainagg.AddBatchAssemblyInput{
		BatchID:    batchID,
		AssemblyID: assemblyID,
		Barcode:    code,
		ActorID:    ctxutil.ActorID(ctx),
	})
	if err != nil {
		return out, err
	}
	out.AddBatchAssemblyResult = res
	if res.AlreadyAdded {
		return out, nil
	}
	s.log.Info("assembly added to batch",
		"batch_id", res.Batch.ID,
		"assembly_id", res.Assembly.ID,
		"total_weight", res.TotalWeight.String(),
	)
	b := res.Batch
	evs := []events.Event{events.New(events.BatchAssemblyAdded, b.ProjectID, b.ID, map[string]any{
		"assembly_id":     res.Assembly.ID,
		"assembly_name":   res.Assembly.Name,
		"previous_status": res.PreviousStatus,
		"total_weight":    res.TotalWeight,
		"version":         b.Version,
	})}
	if res.PreviousStatus != tracking.AssemblyStatusCompleted {
		evs = append(evs, events.New(events.AssemblyUpdated, b.ProjectID, res.Assembly.ID, map[string]any{
			"assembly": res.Assembly,
		}))
	}
	s.fx.publish(ctx, &out.Outcome, evs...)
	return out, nil
}

func (s *batchService) RemoveAssembly(ctx context.Context, batchID, assemblyID uuid.UUID) (BatchRemoveResult, error) {
	var out BatchRemoveResult
	res, err := s.agg.RemoveAssembly(ctx, domainagg.RemoveBatchAssemblyInput{
		BatchID:    batchID,
		AssemblyID: assemblyID,
		ActorID:    ctxutil.ActorID(ctx),
	})
	if err != nil {
		return out, err
	}
	out.RemoveBatchAssemblyResult = res
	s.log.Info("assembly removed from batch", "batch_id", batchID, "assembly_id", assemblyID, "total_weight", res.TotalWeight.String())
	b := res.Batch
	s.fx.publish(ctx, &out.Outcome, events.New(events.BatchAssemblyRemoved, b.ProjectID, b.ID, map[string]any{
		"assembly_id":  assemblyID,
		"total_weight": res.TotalWeight,
		"version":      b.Version,
	}))
	return out, nil
}

// ListAssemblies never fails on a missing related row: absent assemblies and users
// are reported with placeholder names.
func (s *batchService) ListAssemblies(dbc dbctx.Context, batchID uuid.UUID) (*BatchMembers, error) {
	b, err := s.load(dbc, "Batches.ListAssemblies", batchID)
	if err != nil {
		return nil, err
	}
	rows, err := s.membersRepo.ListByBatch(dbc, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch members: %w", err)
	}
	out := &BatchMembers{Batch: b, Assemblies: make([]BatchMember, 0, len(rows))}
	if len(rows) == 0 {
		return out, nil
	}

	asmIDs := make([]uuid.UUID, 0, len(rows))
	var userIDs []uuid.UUID
	for _, r := range rows {
		asmIDs = append(asmIDs, r.AssemblyID)
		if r.AddedBy != nil {
			userIDs = append(userIDs, *r.AddedBy)
		}
	}

	assemblies := map[uuid.UUID]*types.Assembly{}
	codes := map[uuid.UUID]string{}
	names := map[uuid.UUID]string{}
	g, gctx := errgroup.WithContext(dbc.Ctx)
	sub := dbctx.Context{Ctx: gctx, Tx: dbc.Tx}
	g.Go(func() error {
		list, err := s.assemblyRepo.GetByIDs(sub, asmIDs)
		if err != nil {
			return fmt.Errorf("load member assemblies: %w", err)
		}
		for _, a := range list {
			assemblies[a.ID] = a
		}
		return nil
	})
	g.Go(func() error {
		list, err := s.barcodeRepo.ListByAssemblyIDs(sub, asmIDs)
		if err != nil {
			s.log.Warn("member barcode lookup failed", "batch_id", batchID, "error", err)
			return nil
		}
		for _, bc := range list {
			if bc.AssemblyID != nil {
				codes[*bc.AssemblyID] = bc.Code
			}
		}
		return nil
	})
	if len(userIDs) > 0 && s.userRepo != nil {
		g.Go(func() error {
			list, err := s.userRepo.GetByIDs(sub, userIDs)
			if err != nil {
				s.log.Warn("member user lookup failed", "batch_id", batchID, "error", err)
				return nil
			}
			for _, u := range list {
				names[u.ID] = u.DisplayName()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range rows {
		m := BatchMember{
			AssemblyID:  r.AssemblyID,
			Name:        unknownAssemblyName,
			Weight:      decimal.Zero,
			LineWeight:  decimal.Zero,
			Width:       decimal.Zero,
			Height:      decimal.Zero,
			Length:      decimal.Zero,
			Barcode:     codes[r.AssemblyID],
			AddedBy:     r.AddedBy,
			AddedByName: unknownUserName,
			AddedAt:     r.AddedAt,
		}
		if a, ok := assemblies[r.AssemblyID]; ok {
			m.Name = a.Name
			m.Status = a.Status
			m.Weight = a.Weight
			m.Quantity = a.Quantity
			m.LineWeight = a.LineWeight()
			m.Width = a.Width
			m.Height = a.Height
			m.Length = a.Length
			m.PaintingSpec = a.PaintingSpec
			m.IsParent = a.IsParent
			m.ChildNumber = a.ChildNumber
		}
		if r.AddedBy != nil {
			if n, ok := names[*r.AddedBy]; ok && n != "" {
				m.AddedByName = n
			}
		}
		out.Assemblies = append(out.Assemblies, m)
	}
	return out, nil
}
