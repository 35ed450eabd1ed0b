package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/trackflow-backend/internal/barcode"
	dataagg "github.com/yungbote/trackflow-backend/internal/data/aggregates"
	"github.com/yungbote/trackflow-backend/internal/data/repos"
	types "github.com/yungbote/trackflow-backend/internal/domain"
	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

// BarcodeService is the registry of scannable tokens. A token is bound to exactly one
// assembly or batch and is never rewritten.
type BarcodeService interface {
	Resolve(dbc dbctx.Context, token string) (*Resolution, error)
	// Bind attaches code to the target; an empty code issues a fresh token. When the target
	// already has a barcode that binding is returned unchanged.
	Bind(ctx context.Context, in BindBarcodeInput) (*types.Barcode, error)
	// Backfill issues tokens for assemblies that have none: the given ids, or up to limit
	// of the oldest unbarcoded assemblies when ids is empty.
	Backfill(ctx context.Context, ids []uuid.UUID, limit int) (BackfillResult, error)
}

type Resolution struct {
	Code     string                `json:"code"`
	Kind     tracking.BarcodeKind  `json:"kind"`
	ID       uuid.UUID             `json:"id"`
	Assembly *types.Assembly       `json:"assembly,omitempty"`
	Batch    *types.LogisticsBatch `json:"batch,omitempty"`
}

type BindBarcodeInput struct {
	Code     string
	Kind     tracking.BarcodeKind
	TargetID uuid.UUID
}

type BackfillResult struct {
	Scanned int               `json:"scanned"`
	Issued  int               `json:"issued"`
	Outcome domainagg.Outcome `json:"outcome"`
}

type barcodeService struct {
	db           *gorm.DB
	log          *logger.Logger
	barcodeRepo  repos.BarcodeRepo
	assemblyRepo repos.AssemblyRepo
	batchRepo    repos.BatchRepo
	newCode      func(prefix string) (string, error)
}

func NewBarcodeService(db *gorm.DB, log *logger.Logger, barcodeRepo repos.BarcodeRepo, assemblyRepo repos.AssemblyRepo, batchRepo repos.BatchRepo) BarcodeService {
	return &barcodeService{
		db:           db,
		log:          log.With("service", "BarcodeService"),
		barcodeRepo:  barcodeRepo,
		assemblyRepo: assemblyRepo,
		batchRepo:    batchRepo,
		newCode:      barcode.Generate,
	}
}

func (s *barcodeService) Resolve(dbc dbctx.Context, token string) (*Resolution, error) {
	const op = "Barcodes.Resolve"
	code := barcode.Normalize(token)
	if code == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "barcode is required", nil)
	}
	b, err := s.barcodeRepo.GetByCode(dbc, code)
	if err != nil {
		return nil, fmt.Errorf("resolve barcode: %w", err)
	}
	if b == nil {
		return nil, domainagg.Newf(domainagg.CodeNotFound, op, "barcode %s is not registered", code)
	}
	out := &Resolution{Code: b.Code, Kind: b.Kind(), ID: b.TargetID()}
	switch out.Kind {
	case tracking.BarcodeKindAssembly:
		if out.Assembly, err = s.assemblyRepo.GetByID(dbc, out.ID); err != nil {
			return nil, fmt.Errorf("load barcode assembly: %w", err)
		}
		if out.Assembly == nil {
			return nil, domainagg.Newf(domainagg.CodeNotFound, op, "assembly for barcode %s no longer exists", code)
		}
	case tracking.BarcodeKindBatch:
		if out.Batch, err = s.batchRepo.GetByID(dbc, out.ID); err != nil {
			return nil, fmt.Errorf("load barcode batch: %w", err)
		}
		if out.Batch == nil {
			return nil, domainagg.Newf(domainagg.CodeNotFound, op, "batch for barcode %s no longer exists", code)
		}
	}
	return out, nil
}

func (s *barcodeService) Bind(ctx context.Context, in BindBarcodeInput) (*types.Barcode, error) {
	var out *types.Barcode
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.bindTx(dbctx.Context{Ctx: ctx, Tx: tx}, in)
		out = b
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// bindTx needs dbc.Tx; the insert runs in a savepoint so a lost race can be re-read.
func (s *barcodeService) bindTx(dbc dbctx.Context, in BindBarcodeInput) (*types.Barcode, error) {
	const op = "Barcodes.Bind"
	if in.TargetID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "target id is required", nil)
	}
	if err := s.requireTarget(dbc, op, in.Kind, in.TargetID); err != nil {
		return nil, err
	}
	existing, err := s.forTarget(dbc, in.Kind, in.TargetID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	code := barcode.Normalize(in.Code)
	if code == "" {
		if code, err = s.newCode(barcode.PrefixFor(in.Kind)); err != nil {
			return nil, fmt.Errorf("generate barcode: %w", err)
		}
	}
	taken, err := s.barcodeRepo.GetByCode(dbc, code)
	if err != nil {
		return nil, err
	}
	if taken != nil {
		return nil, domainagg.Newf(domainagg.CodeConflict, op, "barcode %s is already bound to %s %s", code, taken.Kind(), taken.TargetID())
	}

	row := &types.Barcode{Code: code}
	id := in.TargetID
	if in.Kind == tracking.BarcodeKindAssembly {
		row.AssemblyID = &id
	} else {
		row.BatchID = &id
	}
	createErr := dbc.Tx.Transaction(func(sp *gorm.DB) error {
		_, err := s.barcodeRepo.Create(dbctx.Context{Ctx: dbc.Ctx, Tx: sp}, row)
		return err
	})
	if createErr == nil {
		s.log.Info("barcode bound", "code", code, "kind", in.Kind, "target_id", in.TargetID)
		return row, nil
	}
	if !domainagg.IsCode(dataagg.MapError(op, createErr), domainagg.CodeConflict) {
		return nil, createErr
	}
	// a concurrent bind won; its row is the answer when it targets the same entity
	if existing, err = s.forTarget(dbc, in.Kind, in.TargetID); err == nil && existing != nil {
		return existing, nil
	}
	return nil, domainagg.Newf(domainagg.CodeConflict, op, "barcode %s is already bound", code)
}

func (s *barcodeService) requireTarget(dbc dbctx.Context, op string, kind tracking.BarcodeKind, id uuid.UUID) error {
	switch kind {
	case tracking.BarcodeKindAssembly:
		a, err := s.assemblyRepo.GetByID(dbc, id)
		if err != nil {
			return err
		}
		if a == nil {
			return domainagg.Newf(domainagg.CodeNotFound, op, "assembly %s not found", id)
		}
	case tracking.BarcodeKindBatch:
		b, err := s.batchRepo.GetByID(dbc, id)
		if err != nil {
			return err
		}
		if b == nil {
			return domainagg.Newf(domainagg.CodeNotFound, op, "batch %s not found", id)
		}
	default:
		return domainagg.Newf(domainagg.CodeValidation, op, "unknown barcode kind %q", kind)
	}
	return nil
}

func (s *barcodeService) forTarget(dbc dbctx.Context, kind tracking.BarcodeKind, id uuid.UUID) (*types.Barcode, error) {
	if kind == tracking.BarcodeKindBatch {
		return s.barcodeRepo.GetByBatchID(dbc, id)
	}
	return s.barcodeRepo.GetByAssemblyID(dbc, id)
}

func (s *barcodeService) Backfill(ctx context.Context, ids []uuid.UUID, limit int) (BackfillResult, error) {
	var out BackfillResult
	dbc := dbctx.Context{Ctx: ctx}
	if len(ids) == 0 {
		rows, err := s.assemblyRepo.ListWithoutBarcode(dbc, limit)
		if err != nil {
			return out, fmt.Errorf("list unbarcoded assemblies: %w", err)
		}
		for _, r := range rows {
			ids = append(ids, r.ID)
		}
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		out.Scanned++
		existing, err := s.barcodeRepo.GetByAssemblyID(dbc, id)
		if err != nil {
			out.Outcome.AddPending(domainagg.StepIssueBarcode, id.String(), err)
			continue
		}
		if existing != nil {
			continue
		}
		if _, err := s.Bind(ctx, BindBarcodeInput{Kind: tracking.BarcodeKindAssembly, TargetID: id}); err != nil {
			if domainagg.IsCode(err, domainagg.CodeNotFound) {
				// deleted since the backfill was scheduled
				continue
			}
			out.Outcome.AddPending(domainagg.StepIssueBarcode, id.String(), err)
			continue
		}
		out.Issued++
	}
	if out.Outcome.Partial() {
		s.log.Warn("barcode backfill incomplete", "scanned", out.Scanned, "issued", out.Issued, "failed", len(out.Outcome.Pending))
	} else if out.Issued > 0 {
		s.log.Info("barcode backfill done", "scanned", out.Scanned, "issued", out.Issued)
	}
	return out, nil
}
