package tracking

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	types "github.com/yungbote/trackflow-backend/internal/domain"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

type BatchAssemblyRepo interface {
	Create(dbc dbctx.Context, row *types.BatchAssembly) (*types.BatchAssembly, error)
	Get(dbc dbctx.Context, batchID, assemblyID uuid.UUID) (*types.BatchAssembly, error)
	ListByBatch(dbc dbctx.Context, batchID uuid.UUID) ([]*types.BatchAssembly, error)
	CountByBatch(dbc dbctx.Context, batchID uuid.UUID) (int64, error)
	BatchIDsForAssemblies(dbc dbctx.Context, assemblyIDs []uuid.UUID) ([]uuid.UUID, error)
	AssemblyIDsForBatch(dbc dbctx.Context, batchID uuid.UUID) ([]uuid.UUID, error)
	WeightLines(dbc dbctx.Context, batchID uuid.UUID) ([]tracking.WeightLine, error)
	DeletePair(dbc dbctx.Context, batchID, assemblyID uuid.UUID) (int64, error)
	DeleteByAssemblyIDs(dbc dbctx.Context, assemblyIDs []uuid.UUID) (int64, error)
	DeleteByBatch(dbc dbctx.Context, batchID uuid.UUID) (int64, error)
}

type batchAssemblyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchAssemblyRepo(db *gorm.DB, baseLog *logger.Logger) BatchAssemblyRepo {
	return &batchAssemblyRepo{db: db, log: baseLog.With("repo", "BatchAssemblyRepo")}
}

func (r *batchAssemblyRepo) Create(dbc dbctx.Context, row *types.BatchAssembly) (*types.BatchAssembly, error) {
	if row == nil || row.BatchID == uuid.Nil || row.AssemblyID == uuid.Nil {
		return nil, fmt.Errorf("batch_id and assembly_id are required")
	}
	if err := dbc.Resolve(r.db).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *batchAssemblyRepo) Get(dbc dbctx.Context, batchID, assemblyID uuid.UUID) (*types.BatchAssembly, error) {
	var out types.BatchAssembly
	err := dbc.Resolve(r.db).
		Where("batch_id = ? AND assembly_id = ?", batchID, assemblyID).
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *batchAssemblyRepo) ListByBatch(dbc dbctx.Context, batchID uuid.UUID) ([]*types.BatchAssembly, error) {
	out := []*types.BatchAssembly{}
	if batchID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Resolve(r.db).
		Where("batch_id = ?", batchID).
		Order("added_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *batchAssemblyRepo) CountByBatch(dbc dbctx.Context, batchID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.Resolve(r.db).Model(&types.BatchAssembly{}).Where("batch_id = ?", batchID).Count(&n).Error
	return n, err
}

func (r *batchAssemblyRepo) BatchIDsForAssemblies(dbc dbctx.Context, assemblyIDs []uuid.UUID) ([]uuid.UUID, error) {
	out := []uuid.UUID{}
	if len(assemblyIDs) == 0 {
		return out, nil
	}
	if err := dbc.Resolve(r.db).
		Model(&types.BatchAssembly{}).
		Where("assembly_id IN ?", assemblyIDs).
		Distinct().
		Pluck("batch_id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *batchAssemblyRepo) AssemblyIDsForBatch(dbc dbctx.Context, batchID uuid.UUID) ([]uuid.UUID, error) {
	out := []uuid.UUID{}
	if err := dbc.Resolve(r.db).
		Model(&types.BatchAssembly{}).
		Where("batch_id = ?", batchID).
		Order("added_at ASC").
		Pluck("assembly_id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type weightRow struct {
	AssemblyID uuid.UUID
	Weight     decimal.Decimal
	Quantity   int
}

// WeightLines reads the current weight and quantity of every member from the assemblies table.
func (r *batchAssemblyRepo) WeightLines(dbc dbctx.Context, batchID uuid.UUID) ([]tracking.WeightLine, error) {
	var rows []weightRow
	if err := dbc.Resolve(r.db).
		Table("batch_assemblies").
		Select("assemblies.id AS assembly_id, assemblies.weight AS weight, assemblies.quantity AS quantity").
		Joins("JOIN assemblies ON assemblies.id = batch_assemblies.assembly_id").
		Where("batch_assemblies.batch_id = ?", batchID).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]tracking.WeightLine, 0, len(rows))
	for _, row := range rows {
		out = append(out, tracking.WeightLine{AssemblyID: row.AssemblyID, Weight: row.Weight, Quantity: row.Quantity})
	}
	return out, nil
}

func (r *batchAssemblyRepo) DeletePair(dbc dbctx.Context, batchID, assemblyID uuid.UUID) (int64, error) {
	res := dbc.Resolve(r.db).
		Where("batch_id = ? AND assembly_id = ?", batchID, assemblyID).
		Delete(&types.BatchAssembly{})
	return res.RowsAffected, res.Error
}

func (r *batchAssemblyRepo) DeleteByAssemblyIDs(dbc dbctx.Context, assemblyIDs []uuid.UUID) (int64, error) {
	if len(assemblyIDs) == 0 {
		return 0, nil
	}
	res := dbc.Resolve(r.db).Where("assembly_id IN ?", assemblyIDs).Delete(&types.BatchAssembly{})
	return res.RowsAffected, res.Error
}

func (r *batchAssemblyRepo) DeleteByBatch(dbc dbctx.Context, batchID uuid.UUID) (int64, error) {
	res := dbc.Resolve(r.db).Where("batch_id = ?", batchID).Delete(&types.BatchAssembly{})
	return res.RowsAffected, res.Error
}
