package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/trackflow-backend/internal/data/repos"
	types "github.com/yungbote/trackflow-backend/internal/domain"
	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	domainuser "github.com/yungbote/trackflow-backend/internal/domain/user"
	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

const minPasswordLength = 8

type UserService interface {
	GetMe(dbc dbctx.Context) (*types.User, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*types.User, error)
	List(dbc dbctx.Context, f repos.UserFilter) ([]*types.User, int64, error)
	Create(ctx context.Context, in CreateUserInput) (*types.User, error)
	Update(ctx context.Context, id uuid.UUID, in UpdateUserInput) (*types.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ResetPassword(ctx context.Context, id uuid.UUID, password string) error
}

type CreateUserInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// UpdateUserInput fields are optional; nil leaves the column unchanged.
type UpdateUserInput struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Role      *string `json:"role"`
	IsActive  *bool   `json:"is_active"`
}

type userService struct {
	db       *gorm.DB
	log      *logger.Logger
	userRepo repos.UserRepo
	cardRepo repos.NFCCardRepo
}

func NewUserService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo, cardRepo repos.NFCCardRepo) UserService {
	serviceLog := log.With("service", "UserService")
	return &userService{
		db:       db,
		log:      serviceLog,
		userRepo: userRepo,
		cardRepo: cardRepo,
	}
}

func (us *userService) GetMe(dbc dbctx.Context) (*types.User, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		us.log.Warn("Request data not set in context")
		return nil, domainagg.NewError(domainagg.CodeUnauthorized, "Users.GetMe", "request data not set in context", nil)
	}
	return us.Get(dbc, rd.UserID)
}

func (us *userService) Get(dbc dbctx.Context, id uuid.UUID) (*types.User, error) {
	u, err := us.userRepo.GetByID(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, domainagg.Newf(domainagg.CodeNotFound, "Users.Get", "user %s not found", id)
	}
	return u, nil
}

func (us *userService) List(dbc dbctx.Context, f repos.UserFilter) ([]*types.User, int64, error) {
	if f.Role != "" {
		f.Role = domainuser.NormalizeRole(f.Role)
	}
	return us.userRepo.List(dbc, f)
}

func (us *userService) Create(ctx context.Context, in CreateUserInput) (*types.User, error) {
	const op = "Users.Create"
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "a valid email is required", nil)
	}
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if first == "" || last == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "first_name and last_name are required", nil)
	}
	role := domainuser.NormalizeRole(in.Role)
	if role == "" {
		return nil, domainagg.Newf(domainagg.CodeValidation, op, "unknown role %q", in.Role)
	}
	hash, err := hashPassword(op, in.Password)
	if err != nil {
		return nil, err
	}

	dbc := dbctx.Context{Ctx: ctx}
	exists, err := us.userRepo.EmailExists(dbc, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, domainagg.Newf(domainagg.CodeConflict, op, "email %s is already registered", email)
	}
	u := &types.User{
		Email:     email,
		Password:  hash,
		FirstName: first,
		LastName:  last,
		Role:      role,
		IsActive:  true,
	}
	if _, err := us.userRepo.Create(dbc, []*types.User{u}); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	us.log.Info("user created", "user_id", u.ID, "role", role)
	return u, nil
}

func (us *userService) Update(ctx context.Context, id uuid.UUID, in UpdateUserInput) (*types.User, error) {
	const op = "Users.Update"
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := us.Get(dbc, id); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.FirstName != nil {
		v := strings.TrimSpace(*in.FirstName)
		if v == "" {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, "first_name cannot be empty", nil)
		}
		updates["first_name"] = v
	}
	if in.LastName != nil {
		v := strings.TrimSpace(*in.LastName)
		if v == "" {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, "last_name cannot be empty", nil)
		}
		updates["last_name"] = v
	}
	if in.Role != nil {
		role := domainuser.NormalizeRole(*in.Role)
		if role == "" {
			return nil, domainagg.Newf(domainagg.CodeValidation, op, "unknown role %q", *in.Role)
		}
		updates["role"] = role
	}
	if in.IsActive != nil {
		if !*in.IsActive && isSelf(ctx, id) {
			return nil, domainagg.NewError(domainagg.CodeValidation, op, "you cannot deactivate your own account", nil)
		}
		updates["is_active"] = *in.IsActive
	}
	if err := us.userRepo.UpdateFields(dbc, id, updates); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return us.Get(dbc, id)
}

// Delete soft-deletes the user and unbinds their NFC cards in one transaction.
func (us *userService) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "Users.Delete"
	if isSelf(ctx, id) {
		return domainagg.NewError(domainagg.CodeValidation, op, "you cannot delete your own account", nil)
	}
	return us.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		u, err := us.userRepo.GetByID(dbc, id)
		if err != nil {
			return err
		}
		if u == nil {
			return domainagg.Newf(domainagg.CodeNotFound, op, "user %s not found", id)
		}
		n, err := us.cardRepo.DeleteByUser(dbc, id)
		if err != nil {
			return err
		}
		if err := us.userRepo.SoftDelete(dbc, id); err != nil {
			return err
		}
		us.log.Info("user deleted", "user_id", id, "cards_unbound", n)
		return nil
	})
}

func (us *userService) ResetPassword(ctx context.Context, id uuid.UUID, password string) error {
	const op = "Users.ResetPassword"
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := us.Get(dbc, id); err != nil {
		return err
	}
	hash, err := hashPassword(op, password)
	if err != nil {
		return err
	}
	if err := us.userRepo.UpdateFields(dbc, id, map[string]interface{}{"password": hash}); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	us.log.Info("password reset", "user_id", id)
	return nil
}

func hashPassword(op, password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", domainagg.Newf(domainagg.CodeValidation, op, "password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func isSelf(ctx context.Context, id uuid.UUID) bool {
	actor := ctxutil.ActorID(ctx)
	return actor != nil && *actor == id
}
