package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/trackflow-backend/internal/data/repos"
	types "github.com/yungbote/trackflow-backend/internal/domain"
	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	domainuser "github.com/yungbote/trackflow-backend/internal/domain/user"
	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

// ErrNFCDataMissing is returned when a handheld request lacks the card or operator id.
var ErrNFCDataMissing = domainagg.NewError(domainagg.CodeUnauthorized, "NFC.Authenticate", "NFC card data not available", nil)

type NFCService interface {
	List(dbc dbctx.Context) ([]*types.NFCCard, error)
	Bind(ctx context.Context, in BindCardInput) (*types.NFCCard, error)
	Unbind(ctx context.Context, id uuid.UUID) error
	Validate(ctx context.Context, cardID string) (*CardValidation, error)
	// Authenticate checks the card/operator pair sent by the handheld and returns a
	// context carrying the operator as the request principal.
	Authenticate(ctx context.Context, cardID, userID string) (context.Context, error)
}

type BindCardInput struct {
	CardID string    `json:"card_id"`
	UserID uuid.UUID `json:"user_id"`
	Label  string    `json:"label"`
}

type CardValidation struct {
	Valid    bool      `json:"valid"`
	CardID   string    `json:"card_id"`
	UserID   uuid.UUID `json:"user_id"`
	UserName string    `json:"user_name"`
	Role     string    `json:"role"`
}

type nfcService struct {
	db       *gorm.DB
	log      *logger.Logger
	cardRepo repos.NFCCardRepo
	userRepo repos.UserRepo
	now      func() time.Time
}

func NewNFCService(db *gorm.DB, log *logger.Logger, cardRepo repos.NFCCardRepo, userRepo repos.UserRepo) NFCService {
	return &nfcService{
		db:       db,
		log:      log.With("service", "NFCService"),
		cardRepo: cardRepo,
		userRepo: userRepo,
		now:      time.Now,
	}
}

func (s *nfcService) List(dbc dbctx.Context) ([]*types.NFCCard, error) {
	return s.cardRepo.List(dbc)
}

// Bind is idempotent for the same card and user. A card bound to someone else is a conflict.
func (s *nfcService) Bind(ctx context.Context, in BindCardInput) (*types.NFCCard, error) {
	const op = "NFC.Bind"
	cardID := domainuser.NormalizeCardID(in.CardID)
	if cardID == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "card_id is required", nil)
	}
	if in.UserID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "user_id is required", nil)
	}

	var out *types.NFCCard
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		u, err := s.userRepo.GetByID(dbc, in.UserID)
		if err != nil {
			return err
		}
		if u == nil {
			return domainagg.Newf(domainagg.CodeNotFound, op, "user %s not found", in.UserID)
		}
		existing, err := s.cardRepo.GetByCardID(dbc, cardID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.UserID != in.UserID {
				return domainagg.Newf(domainagg.CodeConflict, op, "card %s is bound to another user", cardID)
			}
			if !existing.IsActive {
				if err := s.cardRepo.UpdateFields(dbc, existing.ID, map[string]interface{}{"is_active": true}); err != nil {
					return err
				}
				existing.IsActive = true
			}
			out = existing
			return nil
		}
		card, err := s.cardRepo.Create(dbc, &types.NFCCard{
			CardID:   cardID,
			UserID:   in.UserID,
			Label:    strings.TrimSpace(in.Label),
			IsActive: true,
		})
		if err != nil {
			return err
		}
		out = card
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("nfc card bound", "card_id", cardID, "user_id", in.UserID)
	return out, nil
}

func (s *nfcService) Unbind(ctx context.Context, id uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	card, err := s.cardRepo.GetByID(dbc, id)
	if err != nil {
		return fmt.Errorf("load card: %w", err)
	}
	if card == nil {
		return domainagg.Newf(domainagg.CodeNotFound, "NFC.Unbind", "card %s not found", id)
	}
	if err := s.cardRepo.Delete(dbc, id); err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	s.log.Info("nfc card unbound", "card_id", card.CardID, "user_id", card.UserID)
	return nil
}

func (s *nfcService) Validate(ctx context.Context, cardID string) (*CardValidation, error) {
	card, u, err := s.activeCard(ctx, "NFC.Validate", cardID)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, card)
	return &CardValidation{
		Valid:    true,
		CardID:   card.CardID,
		UserID:   u.ID,
		UserName: u.DisplayName(),
		Role:     domainuser.NormalizeRole(u.Role),
	}, nil
}

func (s *nfcService) Authenticate(ctx context.Context, cardID, userID string) (context.Context, error) {
	const op = "NFC.Authenticate"
	if strings.TrimSpace(cardID) == "" || strings.TrimSpace(userID) == "" {
		return ctx, ErrNFCDataMissing
	}
	uid, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return ctx, domainagg.NewError(domainagg.CodeUnauthorized, op, "invalid user id", nil)
	}
	card, u, err := s.activeCard(ctx, op, cardID)
	if err != nil {
		if domainagg.IsCode(err, domainagg.CodeNotFound) {
			return ctx, domainagg.NewError(domainagg.CodeUnauthorized, op, "unknown or inactive card", nil)
		}
		return ctx, err
	}
	if card.UserID != uid {
		return ctx, domainagg.NewError(domainagg.CodeUnauthorized, op, "card does not belong to this user", nil)
	}
	s.touch(ctx, card)
	role := domainuser.NormalizeRole(u.Role)
	if role == "" {
		role = domainuser.RoleWorker
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{
		UserID: u.ID,
		Role:   role,
		CardID: card.CardID,
	}), nil
}

func (s *nfcService) activeCard(ctx context.Context, op, cardID string) (*types.NFCCard, *types.User, error) {
	if domainuser.NormalizeCardID(cardID) == "" {
		return nil, nil, domainagg.NewError(domainagg.CodeValidation, op, "card_id is required", nil)
	}
	dbc := dbctx.Context{Ctx: ctx}
	card, err := s.cardRepo.GetByCardID(dbc, cardID)
	if err != nil {
		return nil, nil, fmt.Errorf("load card: %w", err)
	}
	if card == nil || !card.IsActive {
		return nil, nil, domainagg.NewError(domainagg.CodeNotFound, op, "card not registered", nil)
	}
	u, err := s.userRepo.GetByID(dbc, card.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load card user: %w", err)
	}
	if u == nil || !u.IsActive {
		return nil, nil, domainagg.NewError(domainagg.CodeNotFound, op, "card owner is not active", nil)
	}
	return card, u, nil
}

// touch stamps last_used_at; failure only costs the timestamp.
func (s *nfcService) touch(ctx context.Context, card *types.NFCCard) {
	if err := s.cardRepo.Touch(dbctx.Context{Ctx: ctx}, card.ID, s.now()); err != nil {
		s.log.Warn("nfc card touch failed", "card_id", card.CardID, "error", err)
	}
}
