package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
	"github.com/yungbote/trackflow-backend/internal/services"
)

type stubAuth struct{ role string }

func (s stubAuth) SetContextFromToken(ctx context.Context, token string) (context.Context, error) {
	if token != "good" {
		return ctx, domainagg.NewError(domainagg.CodeUnauthorized, "test", "invalid token", nil)
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: uuid.New(), Role: s.role}), nil
}

type stubNFC struct {
	services.NFCService
	card, user string
}

func (s stubNFC) Authenticate(ctx context.Context, cardID, userID string) (context.Context, error) {
	if cardID == "" || userID == "" {
		return ctx, services.ErrNFCDataMissing
	}
	if cardID != s.card || userID != s.user {
		return ctx, domainagg.NewError(domainagg.CodeUnauthorized, "test", "card does not belong to this user", nil)
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: uuid.MustParse(userID), Role: "worker", CardID: cardID}), nil
}

func newAuthRouter(role string, nfc stubNFC) *gin.Engine {
	gin.SetMode(gin.TestMode)
	am := NewAuthMiddleware(logger.Nop(), stubAuth{role: role}, nfc)
	r := gin.New()
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	r.GET("/me", am.RequireAuth(), ok)
	r.POST("/users", am.RequireAuth(), am.RequireRole("admin"), ok)
	r.GET("/mobile", am.NFCAuth(), ok)
	return r
}

func do(r *gin.Engine, method, path string, headers map[string]string) int {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec.Code
}

func TestRequireAuth(t *testing.T) {
	r := newAuthRouter("worker", stubNFC{})
	cases := []struct {
		name    string
		path    string
		headers map[string]string
		want    int
	}{
		{"bearer", "/me", map[string]string{"Authorization": "Bearer good"}, http.StatusNoContent},
		{"query token", "/me?token=good", nil, http.StatusNoContent},
		{"missing", "/me", nil, http.StatusUnauthorized},
		{"bad token", "/me", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"worker on admin route", "/users", map[string]string{"Authorization": "Bearer good"}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			method := http.MethodGet
			if tc.path == "/users" {
				method = http.MethodPost
			}
			if got := do(r, method, tc.path, tc.headers); got != tc.want {
				t.Fatalf("status = %d want %d", got, tc.want)
			}
		})
	}

	admin := newAuthRouter("admin", stubNFC{})
	if got := do(admin, http.MethodPost, "/users", map[string]string{"Authorization": "Bearer good"}); got != http.StatusNoContent {
		t.Fatalf("admin status = %d", got)
	}
}

func TestNFCAuth(t *testing.T) {
	user := uuid.NewString()
	r := newAuthRouter("worker", stubNFC{card: "04A1B2", user: user})

	if got := do(r, http.MethodGet, "/mobile", map[string]string{HeaderNFCCardID: "04A1B2", HeaderUserID: user}); got != http.StatusNoContent {
		t.Fatalf("valid card status = %d", got)
	}
	if got := do(r, http.MethodGet, "/mobile", map[string]string{HeaderUserID: user}); got != http.StatusUnauthorized {
		t.Fatalf("missing card status = %d", got)
	}
	if got := do(r, http.MethodGet, "/mobile", map[string]string{HeaderNFCCardID: "04A1B2", HeaderUserID: uuid.NewString()}); got != http.StatusUnauthorized {
		t.Fatalf("wrong user status = %d", got)
	}
}
