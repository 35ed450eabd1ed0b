package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackflow-backend/internal/services"
)

type fakeAssemblies struct {
	services.AssemblyService
	created   domainagg.CreateAssemblyInput
	gotSource string
}

func (f *fakeAssemblies) Create(_ context.Context, in domainagg.CreateAssemblyInput) (domainagg.CreateAssemblyResult, error) {
	f.created = in
	res := domainagg.CreateAssemblyResult{
		Assembly:   &tracking.Assembly{Name: in.Name, Quantity: in.Quantity},
		ChildCount: in.Quantity,
		Barcode:    "ASM-TEST-1",
	}
	if in.Quantity > 1 {
		res.Outcome.AddPending(domainagg.StepIssueBarcode, uuid.NewString(), context.DeadlineExceeded)
	}
	return res, nil
}

func (f *fakeAssemblies) ChangeStatus(_ context.Context, id uuid.UUID, status, source string) (domainagg.UpdateAssemblyResult, error) {
	f.gotSource = source
	return domainagg.UpdateAssemblyResult{Assembly: &tracking.Assembly{Status: status}}, nil
}

func TestAssemblyCreate(t *testing.T) {
	f := &fakeAssemblies{}
	r := gin.New()
	r.POST("/assemblies", NewAssemblyHandler(f).Create)
	projectID := uuid.New()

	w := serve(r, http.MethodPost, "/assemblies", map[string]any{
		"name": "Truss", "project_id": projectID.String(), "weight": "10.25", "quantity": 1,
	})
	wantStatus(t, w, http.StatusCreated)
	if !f.created.Weight.Equal(decimal.RequireFromString("10.25")) || f.created.ProjectID != projectID {
		t.Fatalf("input = %+v", f.created)
	}
	if body := decode(t, w); body["barcode"] != "ASM-TEST-1" {
		t.Fatalf("body = %v", body)
	}

	w = serve(r, http.MethodPost, "/assemblies", map[string]any{
		"name": "Truss", "project_id": projectID.String(), "weight": 4, "quantity": 3,
	})
	wantStatus(t, w, http.StatusMultiStatus)
	if body := decode(t, w); body["child_count"] != float64(3) {
		t.Fatalf("body = %v", body)
	}

	w = serve(r, http.MethodPost, "/assemblies", map[string]any{"name": "Truss", "project_id": "nope"})
	wantStatus(t, w, http.StatusBadRequest)
}

func TestAssemblyStatusSource(t *testing.T) {
	f := &fakeAssemblies{}
	h := NewAssemblyHandler(f)
	card := func(c *gin.Context) {
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: uuid.New(), CardID: "04AA"})
		c.Request = c.Request.WithContext(ctx)
	}
	r := gin.New()
	r.PATCH("/assemblies/:id/status", h.ChangeStatus)
	r.PATCH("/mobile/assemblies/:id/status", card, h.ChangeStatus)

	id := uuid.NewString()
	wantStatus(t, serve(r, http.MethodPatch, "/assemblies/"+id+"/status", map[string]string{"status": "Welding"}), http.StatusOK)
	if f.gotSource != tracking.StatusSourceManual {
		t.Fatalf("dashboard source = %q", f.gotSource)
	}
	wantStatus(t, serve(r, http.MethodPatch, "/mobile/assemblies/"+id+"/status", map[string]string{"status": "Welding"}), http.StatusOK)
	if f.gotSource != tracking.StatusSourceMobile {
		t.Fatalf("mobile source = %q", f.gotSource)
	}
}
