package quality

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/trackflow-backend/internal/domain"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

type QCImageRepo interface {
	Create(dbc dbctx.Context, img *types.QCImage) (*types.QCImage, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.QCImage, error)
	ListByAssembly(dbc dbctx.Context, assemblyID uuid.UUID) ([]*types.QCImage, error)
	ListByAssemblyIDs(dbc dbctx.Context, assemblyIDs []uuid.UUID) ([]*types.QCImage, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
	DeleteByAssemblyIDs(dbc dbctx.Context, assemblyIDs []uuid.UUID) (int64, error)
}

type qcImageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQCImageRepo(db *gorm.DB, baseLog *logger.Logger) QCImageRepo {
	return &qcImageRepo{db: db, log: baseLog.With("repo", "QCImageRepo")}
}

func (r *qcImageRepo) Create(dbc dbctx.Context, img *types.QCImage) (*types.QCImage, error) {
	if img == nil || img.AssemblyID == uuid.Nil || img.StorageKey == "" {
		return nil, fmt.Errorf("assembly_id and storage_key are required")
	}
	if err := dbc.Resolve(r.db).Create(img).Error; err != nil {
		return nil, err
	}
	return img, nil
}

func (r *qcImageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.QCImage, error) {
	var out types.QCImage
	err := dbc.Resolve(r.db).Where("id = ?", id).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *qcImageRepo) ListByAssembly(dbc dbctx.Context, assemblyID uuid.UUID) ([]*types.QCImage, error) {
	return r.ListByAssemblyIDs(dbc, []uuid.UUID{assemblyID})
}

func (r *qcImageRepo) ListByAssemblyIDs(dbc dbctx.Context, assemblyIDs []uuid.UUID) ([]*types.QCImage, error) {
	out := []*types.QCImage{}
	if len(assemblyIDs) == 0 {
		return out, nil
	}
	if err := dbc.Resolve(r.db).
		Where("assembly_id IN ?", assemblyIDs).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *qcImageRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	return dbc.Resolve(r.db).Where("id = ?", id).Delete(&types.QCImage{}).Error
}

func (r *qcImageRepo) DeleteByAssemblyIDs(dbc dbctx.Context, assemblyIDs []uuid.UUID) (int64, error) {
	if len(assemblyIDs) == 0 {
		return 0, nil
	}
	res := dbc.Resolve(r.db).Where("assembly_id IN ?", assemblyIDs).Delete(&types.QCImage{})
	return res.RowsAffected, res.Error
}
