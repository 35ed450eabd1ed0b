package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/trackflow-backend/internal/http/response"
	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
	"github.com/yungbote/trackflow-backend/internal/services"
)

const (
	HeaderNFCCardID = "X-NFC-Card-Id"
	HeaderUserID    = "X-User-Id"
)

type AuthMiddleware struct {
	log         *logger.Logger
	authService services.AuthService
	nfcService  services.NFCService
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService, nfcService services.NFCService) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), authService: authService, nfcService: nfcService}
}

// RequireAuth accepts a bearer token, or ?token= for EventSource clients that cannot set headers.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingToken)
			return
		}
		ctx, err := am.authService.SetContextFromToken(c.Request.Context(), tokenString)
		if err != nil {
			response.RespondAppError(c, err)
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole must run after RequireAuth or NFCAuth.
func (am *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[strings.ToLower(r)] = true
	}
	return func(c *gin.Context) {
		rd := ctxutil.GetRequestData(c.Request.Context())
		if rd == nil || rd.UserID == uuid.Nil {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", errMissingToken)
			return
		}
		if !allowed[strings.ToLower(rd.Role)] {
			am.log.Warn("role rejected", "user_id", rd.UserID, "role", rd.Role, "path", c.FullPath())
			response.RespondError(c, http.StatusForbidden, "forbidden", errForbidden)
			return
		}
		c.Next()
	}
}

// NFCAuth authenticates handheld requests by the card tapped and the operator id it claims.
func (am *AuthMiddleware) NFCAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, err := am.nfcService.Authenticate(c.Request.Context(), c.GetHeader(HeaderNFCCardID), c.GetHeader(HeaderUserID))
		if err != nil {
			response.RespondAppError(c, err)
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return strings.TrimSpace(c.Query("token"))
}
