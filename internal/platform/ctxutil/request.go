package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type requestDataKey struct{}

// RequestData carries the authenticated principal for the current request.
// Dashboard requests populate it from the bearer token, handheld requests from the NFC pair.
type RequestData struct {
	TokenString string
	UserID      uuid.UUID
	SessionID   uuid.UUID
	Role        string
	CardID      string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if ctx == nil {
		return nil
	}
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}

// ActorID returns the authenticated user id, or nil when the request is anonymous.
func ActorID(ctx context.Context) *uuid.UUID {
	rd := GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil
	}
	id := rd.UserID
	return &id
}

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
