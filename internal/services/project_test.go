package services

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/trackflow-backend/internal/data/repos"
	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
)

func TestProjectCreateNormalizes(t *testing.T) {
	h := newHarness(t)
	code := uniqueCode("site")

	p, err := h.projects.Create(h.ctx, ProjectInput{Name: " Bridge ", Code: code, Status: "on hold"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Name != "Bridge" || p.Status != tracking.ProjectStatusOnHold {
		t.Fatalf("unexpected project: %+v", p)
	}
	if _, err := h.projects.Create(h.ctx, ProjectInput{Name: "Other", Code: code}); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("duplicate code: want conflict, got %v", err)
	}
	if _, err := h.projects.Create(h.ctx, ProjectInput{Name: "X", Code: uniqueCode("C"), Status: "Paused"}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("bad status: want validation, got %v", err)
	}
	if _, err := h.projects.Create(h.ctx, ProjectInput{Code: uniqueCode("C")}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("missing name: want validation, got %v", err)
	}
}

func TestProjectUpdateAndList(t *testing.T) {
	h := newHarness(t)
	p := h.project(t)

	status := "finished"
	got, err := h.projects.Update(h.ctx, p.ID, ProjectPatch{Status: &status})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Status != tracking.ProjectStatusFinished {
		t.Fatalf("status = %s", got.Status)
	}
	list, _, err := h.projects.List(dbctx.Context{Ctx: h.ctx}, repos.ProjectFilter{Status: "FINISHED", Search: p.Code})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != p.ID {
		t.Fatalf("List returned %d rows", len(list))
	}
	if _, err := h.projects.Update(h.ctx, uuid.New(), ProjectPatch{Status: &status}); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("missing project: want not_found, got %v", err)
	}
}

func TestProjectDeleteRefusedWithDependents(t *testing.T) {
	h := newHarness(t)
	p := h.project(t)
	h.assembly(t, p.ID, "Beam", "1", 1)

	if err := h.projects.Delete(h.ctx, p.ID); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("want conflict, got %v", err)
	}
	empty := h.project(t)
	if err := h.projects.Delete(h.ctx, empty.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := h.projects.Get(dbctx.Context{Ctx: h.ctx}, empty.ID); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("deleted project still readable: %v", err)
	}
}
