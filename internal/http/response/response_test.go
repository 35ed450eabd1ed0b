package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
)

func run(t *testing.T, h gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	h(c)
	return rec
}

func TestRespondAppErrorMapsCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domainagg.NewError(domainagg.CodeNotFound, "op", "missing", nil), http.StatusNotFound, "not_found"},
		{domainagg.NewError(domainagg.CodeValidation, "op", "bad", nil), http.StatusBadRequest, "validation"},
		{domainagg.NewError(domainagg.CodeConflict, "op", "taken", nil), http.StatusConflict, "conflict"},
		{errors.New("db exploded"), http.StatusInternalServerError, "server_error"},
	}
	for _, tc := range cases {
		rec := run(t, func(c *gin.Context) { RespondAppError(c, tc.err) })
		if rec.Code != tc.status {
			t.Fatalf("%v: status=%d want %d", tc.err, rec.Code, tc.status)
		}
		var env ErrorEnvelope
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Error.Code != tc.code || env.Error.Message == "" {
			t.Fatalf("envelope = %+v", env)
		}
	}
}

func TestRespondAppErrorHidesInternals(t *testing.T) {
	rec := run(t, func(c *gin.Context) { RespondAppError(c, errors.New("password=hunter2")) })
	var env ErrorEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	if env.Error.Message != "internal server error" {
		t.Fatalf("leaked message %q", env.Error.Message)
	}
}

func TestRespondOutcome(t *testing.T) {
	rec := run(t, func(c *gin.Context) { RespondOutcome(c, http.StatusCreated, gin.H{"id": "x"}, domainagg.Outcome{}) })
	if rec.Code != http.StatusCreated {
		t.Fatalf("clean outcome status = %d", rec.Code)
	}

	var out domainagg.Outcome
	out.AddPending(domainagg.StepIssueBarcode, "a1", errors.New("boom"))
	rec = run(t, func(c *gin.Context) { RespondOutcome(c, http.StatusCreated, gin.H{"id": "x"}, out) })
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("partial status = %d", rec.Code)
	}
	var body struct {
		ID      string                    `json:"id"`
		Partial bool                      `json:"partial"`
		Pending []domainagg.PendingEffect `json:"pending"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Partial || body.ID != "x" || len(body.Pending) != 1 || body.Pending[0].Step != domainagg.StepIssueBarcode {
		t.Fatalf("body = %+v", body)
	}
}
