package tracking

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/trackflow-backend/internal/domain"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

type StatusLogRepo interface {
	Create(dbc dbctx.Context, rows []*types.AssemblyStatusLog) error
	ListByAssembly(dbc dbctx.Context, assemblyID uuid.UUID, limit int) ([]*types.AssemblyStatusLog, error)
	DeleteByAssemblyIDs(dbc dbctx.Context, assemblyIDs []uuid.UUID) (int64, error)
}

type statusLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStatusLogRepo(db *gorm.DB, baseLog *logger.Logger) StatusLogRepo {
	return &statusLogRepo{db: db, log: baseLog.With("repo", "StatusLogRepo")}
}

func (r *statusLogRepo) Create(dbc dbctx.Context, rows []*types.AssemblyStatusLog) error {
	if len(rows) == 0 {
		return nil
	}
	return dbc.Resolve(r.db).CreateInBatches(&rows, 200).Error
}

func (r *statusLogRepo) ListByAssembly(dbc dbctx.Context, assemblyID uuid.UUID, limit int) ([]*types.AssemblyStatusLog, error) {
	out := []*types.AssemblyStatusLog{}
	if err := dbc.Resolve(r.db).
		Where("assembly_id = ?", assemblyID).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *statusLogRepo) DeleteByAssemblyIDs(dbc dbctx.Context, assemblyIDs []uuid.UUID) (int64, error) {
	if len(assemblyIDs) == 0 {
		return 0, nil
	}
	res := dbc.Resolve(r.db).Where("assembly_id IN ?", assemblyIDs).Delete(&types.AssemblyStatusLog{})
	return res.RowsAffected, res.Error
}
