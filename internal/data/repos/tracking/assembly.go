package tracking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/trackflow-backend/internal/domain"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

type AssemblyFilter struct {
	ProjectID *uuid.UUID
	ParentID  *uuid.UUID
	Status    string
	Search    string
	// TopLevelOnly hides fan-out children so a parent shows once.
	TopLevelOnly bool
	Limit        int
	Offset       int
}

type AssemblyRepo interface {
	Create(dbc dbctx.Context, rows []*types.Assembly) ([]*types.Assembly, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Assembly, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Assembly, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Assembly, error)
	List(dbc dbctx.Context, f AssemblyFilter) ([]*types.Assembly, int64, error)
	ListChildren(dbc dbctx.Context, parentID uuid.UUID) ([]*types.Assembly, error)
	ChildNumbers(dbc dbctx.Context, parentID uuid.UUID) ([]int, error)
	ListWithoutBarcode(dbc dbctx.Context, limit int) ([]*types.Assembly, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateChildrenFields(dbc dbctx.Context, parentID uuid.UUID, updates map[string]interface{}) (int64, error)
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error)
}

type assemblyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssemblyRepo(db *gorm.DB, baseLog *logger.Logger) AssemblyRepo {
	return &assemblyRepo{db: db, log: baseLog.With("repo", "AssemblyRepo")}
}

func (r *assemblyRepo) Create(dbc dbctx.Context, rows []*types.Assembly) ([]*types.Assembly, error) {
	if len(rows) == 0 {
		return []*types.Assembly{}, nil
	}
	if err := dbc.Resolve(r.db).CreateInBatches(&rows, 200).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *assemblyRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Assembly, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Assembly
	err := dbc.Resolve(r.db).Where("id = ?", id).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *assemblyRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Assembly, error) {
	out := []*types.Assembly{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Resolve(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assemblyRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Assembly, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID required dbc.Tx")
	}
	var out types.Assembly
	if err := dbc.Tx.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *assemblyRepo) List(dbc dbctx.Context, f AssemblyFilter) ([]*types.Assembly, int64, error) {
	q := dbc.Resolve(r.db).Model(&types.Assembly{})
	if f.ProjectID != nil && *f.ProjectID != uuid.Nil {
		q = q.Where("project_id = ?", *f.ProjectID)
	}
	if f.ParentID != nil && *f.ParentID != uuid.Nil {
		q = q.Where("parent_id = ?", *f.ParentID)
	} else if f.TopLevelOnly {
		q = q.Where("parent_id IS NULL")
	}
	if s := strings.TrimSpace(f.Status); s != "" {
		q = q.Where("status = ?", s)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if f.ParentID != nil && *f.ParentID != uuid.Nil {
		q = q.Order("child_number ASC")
	} else {
		q = q.Order("created_at DESC")
	}
	out := []*types.Assembly{}
	if err := q.Limit(clampLimit(f.Limit)).
		Offset(max(f.Offset, 0)).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *assemblyRepo) ListChildren(dbc dbctx.Context, parentID uuid.UUID) ([]*types.Assembly, error) {
	out := []*types.Assembly{}
	if parentID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Resolve(r.db).
		Where("parent_id = ?", parentID).
		Order("child_number ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assemblyRepo) ChildNumbers(dbc dbctx.Context, parentID uuid.UUID) ([]int, error) {
	var nums []int
	if err := dbc.Resolve(r.db).
		Model(&types.Assembly{}).
		Where("parent_id = ? AND child_number IS NOT NULL", parentID).
		Order("child_number ASC").
		Pluck("child_number", &nums).Error; err != nil {
		return nil, err
	}
	return nums, nil
}

// ListWithoutBarcode returns assemblies with no barcode row, oldest first.
func (r *assemblyRepo) ListWithoutBarcode(dbc dbctx.Context, limit int) ([]*types.Assembly, error) {
	out := []*types.Assembly{}
	if err := dbc.Resolve(r.db).
		Model(&types.Assembly{}).
		Joins("LEFT JOIN barcodes ON barcodes.assembly_id = assemblies.id").
		Where("barcodes.id IS NULL").
		Order("assemblies.created_at ASC").
		Limit(clampLimit(limit)).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assemblyRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return dbc.Resolve(r.db).Model(&types.Assembly{}).Where("id = ?", id).Updates(updates).Error
}

func (r *assemblyRepo) UpdateChildrenFields(dbc dbctx.Context, parentID uuid.UUID, updates map[string]interface{}) (int64, error) {
	if parentID == uuid.Nil {
		return 0, fmt.Errorf("missing parent id")
	}
	if len(updates) == 0 {
		return 0, nil
	}
	updates["updated_at"] = time.Now().UTC()
	res := dbc.Resolve(r.db).Model(&types.Assembly{}).Where("parent_id = ?", parentID).Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *assemblyRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.Resolve(r.db).Where("id IN ?", ids).Delete(&types.Assembly{})
	return res.RowsAffected, res.Error
}
