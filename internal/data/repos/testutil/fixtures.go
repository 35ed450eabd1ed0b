package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	types "github.com/yungbote/trackflow-backend/internal/domain"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/domain/user"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:        uuid.New(),
		Email:     email,
		Password:  "pw",
		FirstName: "A",
		LastName:  "B",
		Role:      user.RoleWorker,
		IsActive:  true,
	}
	return insert(tb, ctx, tx, "user", u)
}

func SeedNFCCard(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, cardID string) *types.NFCCard {
	tb.Helper()
	c := &types.NFCCard{
		ID:       uuid.New(),
		CardID:   user.NormalizeCardID(cardID),
		UserID:   userID,
		IsActive: true,
	}
	return insert(tb, ctx, tx, "nfc card", c)
}

func SeedProject(tb testing.TB, ctx context.Context, tx *gorm.DB, code string) *types.Project {
	tb.Helper()
	p := &types.Project{
		ID:     uuid.New(),
		Name:   "Project " + code,
		Code:   code,
		Status: tracking.ProjectStatusActive,
	}
	return insert(tb, ctx, tx, "project", p)
}

// SeedAssembly inserts a standalone assembly; weight is in kilograms.
func SeedAssembly(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID uuid.UUID, name string, weight string, quantity int) *types.Assembly {
	tb.Helper()
	a := &types.Assembly{
		ID:                   uuid.New(),
		Name:                 name,
		ProjectID:            projectID,
		Weight:               decimal.RequireFromString(weight),
		Quantity:             quantity,
		OriginalQuantity:     quantity,
		Status:               tracking.AssemblyStatusWaiting,
		QualityControlStatus: tracking.QCStatusPending,
	}
	return insert(tb, ctx, tx, "assembly", a)
}

func SeedBarcode(tb testing.TB, ctx context.Context, tx *gorm.DB, code string, assemblyID, batchID *uuid.UUID) *types.Barcode {
	tb.Helper()
	b := &types.Barcode{
		ID:         uuid.New(),
		Code:       code,
		AssemblyID: assemblyID,
		BatchID:    batchID,
	}
	return insert(tb, ctx, tx, "barcode", b)
}

func SeedBatch(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID uuid.UUID, number string, status string) *types.LogisticsBatch {
	tb.Helper()
	b := &types.LogisticsBatch{
		ID:          uuid.New(),
		BatchNumber: number,
		ClientName:  "Client",
		ProjectID:   projectID,
		TotalWeight: decimal.Zero,
		Status:      status,
	}
	return insert(tb, ctx, tx, "batch", b)
}

func SeedMembership(tb testing.TB, ctx context.Context, tx *gorm.DB, batchID, assemblyID uuid.UUID) *types.BatchAssembly {
	tb.Helper()
	row := &types.BatchAssembly{
		ID:         uuid.New(),
		BatchID:    batchID,
		AssemblyID: assemblyID,
		AddedAt:    time.Now().UTC(),
	}
	return insert(tb, ctx, tx, "batch assembly", row)
}

func insert[T any](tb testing.TB, ctx context.Context, tx *gorm.DB, what string, row *T) *T {
	tb.Helper()
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed %s: %v", what, err)
	}
	return row
}
