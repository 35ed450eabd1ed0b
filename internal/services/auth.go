package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/trackflow-backend/internal/data/repos"
	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	domainuser "github.com/yungbote/trackflow-backend/internal/domain/user"
	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

// AuthService verifies bearer tokens minted by the identity provider. Tokens are
// HS256 with the user id in "sub" and an optional session id in "sid".
type AuthService interface {
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
}

// Claims is the token payload this service accepts.
type Claims struct {
	SessionID string `json:"sid,omitempty"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type authService struct {
	db           *gorm.DB
	log          *logger.Logger
	userRepo     repos.UserRepo
	jwtSecretKey string
}

func NewAuthService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo, jwtSecretKey string) AuthService {
	serviceLog := log.With("service", "AuthService")
	return &authService{
		db:           db,
		log:          serviceLog,
		userRepo:     userRepo,
		jwtSecretKey: jwtSecretKey,
	}
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	const op = "Auth.VerifyToken"
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return ctx, domainagg.NewError(domainagg.CodeUnauthorized, op, "missing token", nil)
	}
	if strings.TrimSpace(as.jwtSecretKey) == "" {
		return ctx, domainagg.NewError(domainagg.CodeInternal, op, "jwt secret not configured", nil)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(as.jwtSecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		as.log.Debug("token rejected", "error", err)
		return ctx, domainagg.NewError(domainagg.CodeUnauthorized, op, "invalid token", err)
	}

	userID, err := uuid.Parse(strings.TrimSpace(claims.Subject))
	if err != nil || userID == uuid.Nil {
		return ctx, domainagg.NewError(domainagg.CodeUnauthorized, op, "invalid token subject", nil)
	}
	u, err := as.userRepo.GetByID(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return ctx, fmt.Errorf("load token user: %w", err)
	}
	if u == nil || !u.IsActive {
		return ctx, domainagg.NewError(domainagg.CodeUnauthorized, op, "user is not active", nil)
	}

	sessionID, err := uuid.Parse(strings.TrimSpace(claims.SessionID))
	if err != nil || sessionID == uuid.Nil {
		// one SSE client per token when the provider does not name a session
		sessionID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(tokenString))
	}

	role := domainuser.NormalizeRole(u.Role)
	if role == "" {
		role = domainuser.RoleWorker
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{
		TokenString: tokenString,
		UserID:      u.ID,
		SessionID:   sessionID,
		Role:        role,
	}), nil
}
