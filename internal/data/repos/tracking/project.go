package tracking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/trackflow-backend/internal/domain"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

type ProjectFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

type ProjectRepo interface {
	Create(dbc dbctx.Context, p *types.Project) (*types.Project, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Project, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Project, error)
	List(dbc dbctx.Context, f ProjectFilter) ([]*types.Project, int64, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	CountDependents(dbc dbctx.Context, id uuid.UUID) (int64, error)
}

type projectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return &projectRepo{db: db, log: baseLog.With("repo", "ProjectRepo")}
}

func (r *projectRepo) Create(dbc dbctx.Context, p *types.Project) (*types.Project, error) {
	if p == nil {
		return nil, fmt.Errorf("missing project")
	}
	if err := dbc.Resolve(r.db).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (r *projectRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Project, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Project
	err := dbc.Resolve(r.db).Where("id = ?", id).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *projectRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Project, error) {
	out := []*types.Project{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Resolve(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *projectRepo) List(dbc dbctx.Context, f ProjectFilter) ([]*types.Project, int64, error) {
	q := dbc.Resolve(r.db).Model(&types.Project{})
	if s := strings.TrimSpace(f.Status); s != "" {
		q = q.Where("status = ?", s)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(code) LIKE ? OR LOWER(client_name) LIKE ?", like, like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	out := []*types.Project{}
	if err := q.Order("created_at DESC").Limit(clampLimit(f.Limit)).Offset(max(f.Offset, 0)).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *projectRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return dbc.Resolve(r.db).Model(&types.Project{}).Where("id = ?", id).Updates(updates).Error
}

func (r *projectRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	return dbc.Resolve(r.db).Where("id = ?", id).Delete(&types.Project{}).Error
}

// CountDependents counts assemblies and batches that still reference the project.
func (r *projectRepo) CountDependents(dbc dbctx.Context, id uuid.UUID) (int64, error) {
	db := dbc.Resolve(r.db)
	var assemblies, batches int64
	if err := db.Model(&types.Assembly{}).Where("project_id = ?", id).Count(&assemblies).Error; err != nil {
		return 0, err
	}
	if err := db.Model(&types.LogisticsBatch{}).Where("project_id = ?", id).Count(&batches).Error; err != nil {
		return 0, err
	}
	return assemblies + batches, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
