package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	repotest "github.com/yungbote/trackflow-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
)

func TestNFCBindIsIdempotentPerUser(t *testing.T) {
	h := newHarness(t)
	worker := repotest.SeedUser(t, context.Background(), h.db, uniqueEmail("worker"))
	other := repotest.SeedUser(t, context.Background(), h.db, uniqueEmail("other"))
	cardID := uniqueCode("04a1")

	first, err := h.nfc.Bind(h.ctx, BindCardInput{CardID: cardID, UserID: worker.ID, Label: "badge"})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	second, err := h.nfc.Bind(h.ctx, BindCardInput{CardID: strings.ToLower(cardID), UserID: worker.ID})
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("rebind created a second card")
	}
	if _, err := h.nfc.Bind(h.ctx, BindCardInput{CardID: cardID, UserID: other.ID}); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("foreign card: want conflict, got %v", err)
	}
	if _, err := h.nfc.Bind(h.ctx, BindCardInput{CardID: uniqueCode("x"), UserID: uuid.New()}); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("unknown user: want not_found, got %v", err)
	}

	cards, err := h.nfc.List(dbctx.Context{Ctx: h.ctx})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	found := false
	for _, c := range cards {
		found = found || c.ID == first.ID
	}
	if !found {
		t.Fatalf("bound card missing from list")
	}
}

func TestNFCValidateAndAuthenticate(t *testing.T) {
	h := newHarness(t)
	worker := repotest.SeedUser(t, context.Background(), h.db, uniqueEmail("worker"))
	card := repotest.SeedNFCCard(t, context.Background(), h.db, worker.ID, uniqueCode("04b2"))

	v, err := h.nfc.Validate(h.ctx, card.CardID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !v.Valid || v.UserID != worker.ID || v.UserName != worker.DisplayName() {
		t.Fatalf("unexpected validation: %+v", v)
	}

	ctx, err := h.nfc.Authenticate(context.Background(), card.CardID, worker.ID.String())
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID != worker.ID || rd.CardID != card.CardID {
		t.Fatalf("request data = %+v", rd)
	}
	got, _ := h.repos.NFCCards.GetByID(dbctx.Context{Ctx: h.ctx}, card.ID)
	if got.LastUsedAt == nil {
		t.Fatalf("last_used_at not stamped")
	}

	if _, err := h.nfc.Authenticate(context.Background(), "", worker.ID.String()); err != ErrNFCDataMissing {
		t.Fatalf("missing card: want ErrNFCDataMissing, got %v", err)
	}
	if _, err := h.nfc.Authenticate(context.Background(), card.CardID, uuid.NewString()); !domainagg.IsCode(err, domainagg.CodeUnauthorized) {
		t.Fatalf("wrong owner: want unauthorized, got %v", err)
	}
	if _, err := h.nfc.Authenticate(context.Background(), uniqueCode("ghost"), worker.ID.String()); !domainagg.IsCode(err, domainagg.CodeUnauthorized) {
		t.Fatalf("unknown card: want unauthorized, got %v", err)
	}
	if _, err := h.nfc.Authenticate(context.Background(), card.CardID, "not-a-uuid"); !domainagg.IsCode(err, domainagg.CodeUnauthorized) {
		t.Fatalf("bad user id: want unauthorized, got %v", err)
	}
}

func TestNFCUnbind(t *testing.T) {
	h := newHarness(t)
	worker := repotest.SeedUser(t, context.Background(), h.db, uniqueEmail("worker"))
	card := repotest.SeedNFCCard(t, context.Background(), h.db, worker.ID, uniqueCode("04c3"))

	if err := h.nfc.Unbind(h.ctx, card.ID); err != nil {
		t.Fatalf("Unbind: %v", err)
	}
	if _, err := h.nfc.Validate(h.ctx, card.CardID); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("unbound card: want not_found, got %v", err)
	}
	if err := h.nfc.Unbind(h.ctx, card.ID); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("second unbind: want not_found, got %v", err)
	}
}
