package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/services"
)

type fakeBatches struct {
	services.BatchService

	add      func(batchID, assemblyID uuid.UUID, code string) (services.BatchAddResult, error)
	gotCode  string
	gotAsmID uuid.UUID
}

func (f *fakeBatches) AddAssembly(_ context.Context, batchID, assemblyID uuid.UUID, code string) (services.BatchAddResult, error) {
	f.gotCode = code
	f.gotAsmID = assemblyID
	return f.add(batchID, assemblyID, code)
}

func batchRouter(f *fakeBatches) *gin.Engine {
	r := gin.New()
	h := NewBatchHandler(f)
	r.POST("/batches/:id/assemblies", h.AddAssembly)
	return r
}

func addResult(already bool) services.BatchAddResult {
	return services.BatchAddResult{AddBatchAssemblyResult: domainagg.AddBatchAssemblyResult{
		Batch:          &tracking.LogisticsBatch{BatchNumber: "B-1"},
		Assembly:       &tracking.Assembly{Name: "Beam"},
		AlreadyAdded:   already,
		PreviousStatus: tracking.AssemblyStatusCompleted,
		TotalWeight:    decimal.NewFromInt(12),
	}}
}

func TestBatchAddAssemblyResponses(t *testing.T) {
	batchID := uuid.New()
	path := "/batches/" + batchID.String() + "/assemblies"

	t.Run("added", func(t *testing.T) {
		f := &fakeBatches{add: func(uuid.UUID, uuid.UUID, string) (services.BatchAddResult, error) {
			return addResult(false), nil
		}}
		asmID := uuid.New()
		w := serve(batchRouter(f), http.MethodPost, path, map[string]string{"assembly_id": asmID.String()})
		wantStatus(t, w, http.StatusCreated)
		if body := decode(t, w); body["added"] != true || body["total_weight"] != "12" {
			t.Fatalf("body = %v", body)
		}
		if f.gotAsmID != asmID {
			t.Fatalf("assembly id not forwarded")
		}
	})

	t.Run("already added", func(t *testing.T) {
		f := &fakeBatches{add: func(uuid.UUID, uuid.UUID, string) (services.BatchAddResult, error) {
			return addResult(true), nil
		}}
		w := serve(batchRouter(f), http.MethodPost, path, map[string]string{"barcode": "ASM-X-1"})
		wantStatus(t, w, http.StatusOK)
		if body := decode(t, w); body["already_added"] != true {
			t.Fatalf("body = %v", body)
		}
		if f.gotCode != "ASM-X-1" || f.gotAsmID != uuid.Nil {
			t.Fatalf("barcode lookup not forwarded: code=%q id=%s", f.gotCode, f.gotAsmID)
		}
	})

	t.Run("partial", func(t *testing.T) {
		f := &fakeBatches{add: func(b, _ uuid.UUID, _ string) (services.BatchAddResult, error) {
			res := addResult(false)
			res.Outcome.AddPending(domainagg.StepPublishEvent, b.String(), errors.New("broker down"))
			return res, nil
		}}
		w := serve(batchRouter(f), http.MethodPost, path, map[string]string{"assembly_id": uuid.NewString()})
		wantStatus(t, w, http.StatusMultiStatus)
		body := decode(t, w)
		if body["partial"] != true || body["added"] != true {
			t.Fatalf("body = %v", body)
		}
		if pending, _ := body["pending"].([]any); len(pending) != 1 {
			t.Fatalf("pending = %v", body["pending"])
		}
	})
}

func TestBatchAddAssemblyErrors(t *testing.T) {
	batchID := uuid.New()
	path := "/batches/" + batchID.String() + "/assemblies"

	cases := []struct {
		name   string
		path   string
		body   any
		err    error
		status int
		code   string
	}{
		{"no target", path, map[string]string{}, nil, http.StatusBadRequest, "validation"},
		{"bad assembly id", path, map[string]string{"assembly_id": "x"}, nil, http.StatusBadRequest, "validation"},
		{"bad batch id", "/batches/nope/assemblies", map[string]string{"assembly_id": uuid.NewString()}, nil, http.StatusBadRequest, "validation"},
		{"locked batch", path, map[string]string{"assembly_id": uuid.NewString()},
			domainagg.NewError(domainagg.CodeValidation, "batch.add_assembly", "batch is locked", nil), http.StatusBadRequest, "validation"},
		{"missing assembly", path, map[string]string{"barcode": "ASM-GONE"},
			domainagg.NewError(domainagg.CodeNotFound, "batch.add_assembly", "assembly not found", nil), http.StatusNotFound, "not_found"},
		{"lock contention", path, map[string]string{"assembly_id": uuid.NewString()},
			domainagg.NewError(domainagg.CodeConflict, "batch.add_assembly", "batch changed", nil), http.StatusConflict, "conflict"},
		{"database down", path, map[string]string{"assembly_id": uuid.NewString()},
			errors.New("dial tcp: refused"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeBatches{add: func(uuid.UUID, uuid.UUID, string) (services.BatchAddResult, error) {
				return services.BatchAddResult{}, tc.err
			}}
			w := serve(batchRouter(f), http.MethodPost, tc.path, tc.body)
			wantStatus(t, w, tc.status)
			if tc.code != "" && errorCode(t, w) != tc.code {
				t.Fatalf("code = %q, want %q", errorCode(t, w), tc.code)
			}
		})
	}
}
