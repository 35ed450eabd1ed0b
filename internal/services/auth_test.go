package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	repotest "github.com/yungbote/trackflow-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	domainuser "github.com/yungbote/trackflow-backend/internal/domain/user"
	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
)

const testJWTSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func claimsFor(sub string, ttl time.Duration) Claims {
	return Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}}
}

func TestAuthAcceptsValidToken(t *testing.T) {
	h := newHarness(t)
	auth := NewAuthService(h.db, repotest.Logger(t), h.repos.Users, testJWTSecret)
	sid := uuid.New()

	c := claimsFor(h.actor.ID.String(), time.Hour)
	c.SessionID = sid.String()
	tok := signToken(t, jwt.SigningMethodHS256, testJWTSecret, c)

	ctx, err := auth.SetContextFromToken(context.Background(), " "+tok)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID != h.actor.ID || rd.SessionID != sid || rd.Role != domainuser.RoleAdmin {
		t.Fatalf("request data = %+v", rd)
	}

	// without sid the session is derived from the token
	tok = signToken(t, jwt.SigningMethodHS256, testJWTSecret, claimsFor(h.actor.ID.String(), time.Hour))
	ctx1, _ := auth.SetContextFromToken(context.Background(), tok)
	ctx2, _ := auth.SetContextFromToken(context.Background(), tok)
	s1, s2 := ctxutil.GetRequestData(ctx1).SessionID, ctxutil.GetRequestData(ctx2).SessionID
	if s1 == uuid.Nil || s1 != s2 {
		t.Fatalf("derived sessions differ: %s %s", s1, s2)
	}
}

func TestAuthRejectsBadTokens(t *testing.T) {
	h := newHarness(t)
	auth := NewAuthService(h.db, repotest.Logger(t), h.repos.Users, testJWTSecret)
	inactive := repotest.SeedUser(t, context.Background(), h.db, uniqueEmail("gone"))
	if err := h.db.Model(inactive).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	sub := h.actor.ID.String()

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"expired", signToken(t, jwt.SigningMethodHS256, testJWTSecret, claimsFor(sub, -time.Minute))},
		{"wrong secret", signToken(t, jwt.SigningMethodHS256, "other", claimsFor(sub, time.Hour))},
		{"wrong alg", signToken(t, jwt.SigningMethodHS512, testJWTSecret, claimsFor(sub, time.Hour))},
		{"no expiry", signToken(t, jwt.SigningMethodHS256, testJWTSecret, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub}})},
		{"bad subject", signToken(t, jwt.SigningMethodHS256, testJWTSecret, claimsFor("alice", time.Hour))},
		{"unknown user", signToken(t, jwt.SigningMethodHS256, testJWTSecret, claimsFor(uuid.NewString(), time.Hour))},
		{"inactive user", signToken(t, jwt.SigningMethodHS256, testJWTSecret, claimsFor(inactive.ID.String(), time.Hour))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := auth.SetContextFromToken(context.Background(), tc.token); !domainagg.IsCode(err, domainagg.CodeUnauthorized) {
				t.Fatalf("want unauthorized, got %v", err)
			}
		})
	}
}

func TestAuthRequiresSecret(t *testing.T) {
	h := newHarness(t)
	auth := NewAuthService(h.db, repotest.Logger(t), h.repos.Users, "")
	tok := signToken(t, jwt.SigningMethodHS256, testJWTSecret, claimsFor(h.actor.ID.String(), time.Hour))
	if _, err := auth.SetContextFromToken(context.Background(), tok); !domainagg.IsCode(err, domainagg.CodeInternal) {
		t.Fatalf("want internal, got %v", err)
	}
}
