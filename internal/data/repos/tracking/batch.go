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

type BatchFilter struct {
	ProjectID *uuid.UUID
	Status    string
	Search    string
	Limit     int
	Offset    int
}

type BatchRepo interface {
	Create(dbc dbctx.Context, b *types.LogisticsBatch) (*types.LogisticsBatch, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.LogisticsBatch, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.LogisticsBatch, error)
	GetByNumber(dbc dbctx.Context, number string) (*types.LogisticsBatch, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.LogisticsBatch, error)
	LockByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.LogisticsBatch, error)
	List(dbc dbctx.Context, f BatchFilter) ([]*types.LogisticsBatch, int64, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type batchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchRepo(db *gorm.DB, baseLog *logger.Logger) BatchRepo {
	return &batchRepo{db: db, log: baseLog.With("repo", "BatchRepo")}
}

func (r *batchRepo) Create(dbc dbctx.Context, b *types.LogisticsBatch) (*types.LogisticsBatch, error) {
	if b == nil {
		return nil, fmt.Errorf("missing batch")
	}
	if err := dbc.Resolve(r.db).Create(b).Error; err != nil {
		return nil, err
	}
	return b, nil
}

func (r *batchRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.LogisticsBatch, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.takeOne(dbc, "id = ?", id)
}

func (r *batchRepo) GetByNumber(dbc dbctx.Context, number string) (*types.LogisticsBatch, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, nil
	}
	return r.takeOne(dbc, "batch_number = ?", number)
}

func (r *batchRepo) takeOne(dbc dbctx.Context, query string, arg interface{}) (*types.LogisticsBatch, error) {
	var out types.LogisticsBatch
	err := dbc.Resolve(r.db).Where(query, arg).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *batchRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.LogisticsBatch, error) {
	out := []*types.LogisticsBatch{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Resolve(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *batchRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.LogisticsBatch, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID required dbc.Tx")
	}
	var out types.LogisticsBatch
	if err := dbc.Tx.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// LockByIDs locks rows in id order so concurrent multi-batch writers cannot deadlock.
func (r *batchRepo) LockByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.LogisticsBatch, error) {
	out := []*types.LogisticsBatch{}
	if len(ids) == 0 {
		return out, nil
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByIDs required dbc.Tx")
	}
	if err := dbc.Tx.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *batchRepo) List(dbc dbctx.Context, f BatchFilter) ([]*types.LogisticsBatch, int64, error) {
	q := dbc.Resolve(r.db).Model(&types.LogisticsBatch{})
	if f.ProjectID != nil && *f.ProjectID != uuid.Nil {
		q = q.Where("project_id = ?", *f.ProjectID)
	}
	if s := strings.TrimSpace(f.Status); s != "" {
		q = q.Where("status = ?", s)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(batch_number) LIKE ? OR LOWER(client_name) LIKE ?", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	out := []*types.LogisticsBatch{}
	if err := q.Order("created_at DESC").Limit(clampLimit(f.Limit)).Offset(max(f.Offset, 0)).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *batchRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return dbc.Resolve(r.db).Model(&types.LogisticsBatch{}).Where("id = ?", id).Updates(updates).Error
}

func (r *batchRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	return dbc.Resolve(r.db).Where("id = ?", id).Delete(&types.LogisticsBatch{}).Error
}
