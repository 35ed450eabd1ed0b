package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/trackflow-backend/internal/domain"
	domainuser "github.com/yungbote/trackflow-backend/internal/domain/user"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

type NFCCardRepo interface {
	Create(dbc dbctx.Context, card *types.NFCCard) (*types.NFCCard, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.NFCCard, error)
	GetByCardID(dbc dbctx.Context, cardID string) (*types.NFCCard, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.NFCCard, error)
	List(dbc dbctx.Context) ([]*types.NFCCard, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Touch(dbc dbctx.Context, id uuid.UUID, at time.Time) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	DeleteByUser(dbc dbctx.Context, userID uuid.UUID) (int64, error)
}

type nfcCardRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNFCCardRepo(db *gorm.DB, baseLog *logger.Logger) NFCCardRepo {
	return &nfcCardRepo{db: db, log: baseLog.With("repo", "NFCCardRepo")}
}

func (r *nfcCardRepo) Create(dbc dbctx.Context, card *types.NFCCard) (*types.NFCCard, error) {
	if card == nil || card.UserID == uuid.Nil {
		return nil, fmt.Errorf("card with user_id is required")
	}
	card.CardID = domainuser.NormalizeCardID(card.CardID)
	if card.CardID == "" {
		return nil, fmt.Errorf("missing card_id")
	}
	if err := dbc.Resolve(r.db).Create(card).Error; err != nil {
		return nil, err
	}
	return card, nil
}

func (r *nfcCardRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.NFCCard, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.NFCCard
	err := dbc.Resolve(r.db).Where("id = ?", id).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *nfcCardRepo) GetByCardID(dbc dbctx.Context, cardID string) (*types.NFCCard, error) {
	cardID = domainuser.NormalizeCardID(cardID)
	if cardID == "" {
		return nil, nil
	}
	var out types.NFCCard
	err := dbc.Resolve(r.db).Where("card_id = ?", cardID).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *nfcCardRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.NFCCard, error) {
	out := []*types.NFCCard{}
	if err := dbc.Resolve(r.db).Where("user_id = ?", userID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nfcCardRepo) List(dbc dbctx.Context) ([]*types.NFCCard, error) {
	out := []*types.NFCCard{}
	if err := dbc.Resolve(r.db).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nfcCardRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return dbc.Resolve(r.db).Model(&types.NFCCard{}).Where("id = ?", id).Updates(updates).Error
}

func (r *nfcCardRepo) Touch(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	return dbc.Resolve(r.db).Model(&types.NFCCard{}).Where("id = ?", id).Update("last_used_at", at.UTC()).Error
}

func (r *nfcCardRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	return dbc.Resolve(r.db).Where("id = ?", id).Delete(&types.NFCCard{}).Error
}

func (r *nfcCardRepo) DeleteByUser(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	res := dbc.Resolve(r.db).Where("user_id = ?", userID).Delete(&types.NFCCard{})
	return res.RowsAffected, res.Error
}
