package tracking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/trackflow-backend/internal/domain"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

type BarcodeRepo interface {
	Create(dbc dbctx.Context, b *types.Barcode) (*types.Barcode, error)
	GetByCode(dbc dbctx.Context, code string) (*types.Barcode, error)
	GetByAssemblyID(dbc dbctx.Context, assemblyID uuid.UUID) (*types.Barcode, error)
	GetByBatchID(dbc dbctx.Context, batchID uuid.UUID) (*types.Barcode, error)
	ListByAssemblyIDs(dbc dbctx.Context, assemblyIDs []uuid.UUID) ([]*types.Barcode, error)
	DeleteByAssemblyIDs(dbc dbctx.Context, assemblyIDs []uuid.UUID) (int64, error)
	DeleteByBatchID(dbc dbctx.Context, batchID uuid.UUID) (int64, error)
}

type barcodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBarcodeRepo(db *gorm.DB, baseLog *logger.Logger) BarcodeRepo {
	return &barcodeRepo{db: db, log: baseLog.With("repo", "BarcodeRepo")}
}

func (r *barcodeRepo) Create(dbc dbctx.Context, b *types.Barcode) (*types.Barcode, error) {
	if b == nil || strings.TrimSpace(b.Code) == "" {
		return nil, fmt.Errorf("missing barcode code")
	}
	if b.Kind() == "" {
		return nil, fmt.Errorf("barcode must reference an assembly or a batch")
	}
	if b.AssemblyID != nil && b.BatchID != nil {
		return nil, fmt.Errorf("barcode cannot reference both an assembly and a batch")
	}
	if err := dbc.Resolve(r.db).Create(b).Error; err != nil {
		return nil, err
	}
	return b, nil
}

func (r *barcodeRepo) takeOne(dbc dbctx.Context, query string, arg interface{}) (*types.Barcode, error) {
	var out types.Barcode
	err := dbc.Resolve(r.db).Where(query, arg).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *barcodeRepo) GetByCode(dbc dbctx.Context, code string) (*types.Barcode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	return r.takeOne(dbc, "code = ?", code)
}

func (r *barcodeRepo) GetByAssemblyID(dbc dbctx.Context, assemblyID uuid.UUID) (*types.Barcode, error) {
	if assemblyID == uuid.Nil {
		return nil, nil
	}
	return r.takeOne(dbc, "assembly_id = ?", assemblyID)
}

func (r *barcodeRepo) GetByBatchID(dbc dbctx.Context, batchID uuid.UUID) (*types.Barcode, error) {
	if batchID == uuid.Nil {
		return nil, nil
	}
	return r.takeOne(dbc, "batch_id = ?", batchID)
}

func (r *barcodeRepo) ListByAssemblyIDs(dbc dbctx.Context, assemblyIDs []uuid.UUID) ([]*types.Barcode, error) {
	out := []*types.Barcode{}
	if len(assemblyIDs) == 0 {
		return out, nil
	}
	if err := dbc.Resolve(r.db).Where("assembly_id IN ?", assemblyIDs).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *barcodeRepo) DeleteByAssemblyIDs(dbc dbctx.Context, assemblyIDs []uuid.UUID) (int64, error) {
	if len(assemblyIDs) == 0 {
		return 0, nil
	}
	res := dbc.Resolve(r.db).Where("assembly_id IN ?", assemblyIDs).Delete(&types.Barcode{})
	return res.RowsAffected, res.Error
}

func (r *barcodeRepo) DeleteByBatchID(dbc dbctx.Context, batchID uuid.UUID) (int64, error) {
	if batchID == uuid.Nil {
		return 0, nil
	}
	res := dbc.Resolve(r.db).Where("batch_id = ?", batchID).Delete(&types.Barcode{})
	return res.RowsAffected, res.Error
}
