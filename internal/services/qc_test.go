package services

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
)

func qcUpload(name, contentType string) FileUpload {
	body := "\x89PNG fake"
	return FileUpload{FileName: name, ContentType: contentType, Size: int64(len(body)), Body: strings.NewReader(body)}
}

func TestQCUploadAndList(t *testing.T) {
	h := newHarness(t)
	p := h.project(t)
	a := h.assembly(t, p.ID, "Girder", "1", 1)

	img, err := h.qc.UploadImage(h.ctx, a.ID, QCImageInput{File: qcUpload("weld seam.png", "image/png"), Notes: " porosity "})
	if err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	if img.QCStatus != tracking.QCStatusPending || img.Notes != "porosity" {
		t.Fatalf("unexpected image: %+v", img)
	}
	if !strings.HasPrefix(img.StorageKey, "qc-images/"+a.ID.String()+"/") || !strings.HasSuffix(img.StorageKey, "_weld_seam.png") {
		t.Fatalf("storage key = %s", img.StorageKey)
	}
	if !h.bucket.has(img.StorageKey) {
		t.Fatalf("object not uploaded")
	}
	if img.UploadedBy == nil || *img.UploadedBy != h.actor.ID {
		t.Fatalf("uploaded_by not stamped")
	}

	list, err := h.qc.ListImages(dbctx.Context{Ctx: h.ctx}, a.ID)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if len(list) != 1 || list[0].URL != "https://cdn.test/"+img.StorageKey {
		t.Fatalf("list = %+v", list)
	}
	if _, err := h.qc.ListImages(dbctx.Context{Ctx: h.ctx}, uuid.New()); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("missing assembly: want not_found, got %v", err)
	}
}

func TestQCUploadRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	p := h.project(t)
	a := h.assembly(t, p.ID, "Girder", "1", 1)

	cases := []struct {
		name string
		in   QCImageInput
		code domainagg.ErrorCode
	}{
		{"not an image", QCImageInput{File: qcUpload("notes.pdf", "application/pdf")}, domainagg.CodeValidation},
		{"no file", QCImageInput{}, domainagg.CodeValidation},
		{"bad status", QCImageInput{File: qcUpload("a.jpg", "image/jpeg"), QCStatus: "meh"}, domainagg.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.qc.UploadImage(h.ctx, a.ID, tc.in); !domainagg.IsCode(err, tc.code) {
				t.Fatalf("want %s, got %v", tc.code, err)
			}
		})
	}
	if _, err := h.qc.UploadImage(h.ctx, uuid.New(), QCImageInput{File: qcUpload("a.jpg", "image/jpeg")}); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("missing assembly: want not_found, got %v", err)
	}
	if len(h.bucket.objects) != 0 {
		t.Fatalf("rejected uploads left %d objects", len(h.bucket.objects))
	}
}

func TestQCDeleteRemovesObject(t *testing.T) {
	h := newHarness(t)
	p := h.project(t)
	a := h.assembly(t, p.ID, "Girder", "1", 1)
	img, err := h.qc.UploadImage(h.ctx, a.ID, QCImageInput{File: qcUpload("a.jpg", "image/jpeg"), QCStatus: "passed"})
	if err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	if img.QCStatus != tracking.QCStatusPassed {
		t.Fatalf("status = %s", img.QCStatus)
	}

	if err := h.qc.DeleteImage(h.ctx, img.ID); err != nil {
		t.Fatalf("DeleteImage: %v", err)
	}
	if h.bucket.has(img.StorageKey) {
		t.Fatalf("object still in bucket")
	}
	if err := h.qc.DeleteImage(h.ctx, img.ID); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("second delete: want not_found, got %v", err)
	}
}
