package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/trackflow-backend/internal/data/repos"
	types "github.com/yungbote/trackflow-backend/internal/domain"
	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/gcp"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

type QCService interface {
	ListImages(dbc dbctx.Context, assemblyID uuid.UUID) ([]*types.QCImage, error)
	UploadImage(ctx context.Context, assemblyID uuid.UUID, in QCImageInput) (*types.QCImage, error)
	DeleteImage(ctx context.Context, id uuid.UUID) error
}

type QCImageInput struct {
	File     FileUpload
	QCStatus string
	Notes    string
}

type qcService struct {
	db           *gorm.DB
	log          *logger.Logger
	imageRepo    repos.QCImageRepo
	assemblyRepo repos.AssemblyRepo
	bucket       gcp.BucketService
	now          func() time.Time
}

func NewQCService(db *gorm.DB, log *logger.Logger, imageRepo repos.QCImageRepo, assemblyRepo repos.AssemblyRepo, bucket gcp.BucketService) QCService {
	return &qcService{
		db:           db,
		log:          log.With("service", "QCService"),
		imageRepo:    imageRepo,
		assemblyRepo: assemblyRepo,
		bucket:       bucket,
		now:          time.Now,
	}
}

func (s *qcService) ListImages(dbc dbctx.Context, assemblyID uuid.UUID) ([]*types.QCImage, error) {
	a, err := s.assemblyRepo.GetByID(dbc, assemblyID)
	if err != nil {
		return nil, fmt.Errorf("get assembly: %w", err)
	}
	if a == nil {
		return nil, domainagg.Newf(domainagg.CodeNotFound, "QC.ListImages", "assembly %s not found", assemblyID)
	}
	images, err := s.imageRepo.ListByAssembly(dbc, assemblyID)
	if err != nil {
		return nil, fmt.Errorf("list qc images: %w", err)
	}
	for _, img := range images {
		s.attachURL(img)
	}
	return images, nil
}

func (s *qcService) attachURL(img *types.QCImage) {
	if s.bucket != nil && img.StorageKey != "" {
		img.URL = s.bucket.GetPublicURL(gcp.BucketCategoryQCImage, img.StorageKey)
	}
}

func (s *qcService) UploadImage(ctx context.Context, assemblyID uuid.UUID, in QCImageInput) (*types.QCImage, error) {
	const op = "QC.UploadImage"
	if s.bucket == nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "object storage is not configured", nil)
	}
	if in.File.Body == nil || strings.TrimSpace(in.File.FileName) == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "image file is required", nil)
	}
	ct := strings.ToLower(strings.TrimSpace(in.File.ContentType))
	if ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, domainagg.Newf(domainagg.CodeValidation, op, "unsupported content type %q", in.File.ContentType)
	}
	status := tracking.QCStatusPending
	if strings.TrimSpace(in.QCStatus) != "" {
		if status = tracking.NormalizeQCStatus(in.QCStatus); status == "" {
			return nil, domainagg.Newf(domainagg.CodeValidation, op, "unknown quality control status %q", in.QCStatus)
		}
	}

	dbc := dbctx.Context{Ctx: ctx}
	a, err := s.assemblyRepo.GetByID(dbc, assemblyID)
	if err != nil {
		return nil, fmt.Errorf("get assembly: %w", err)
	}
	if a == nil {
		return nil, domainagg.Newf(domainagg.CodeNotFound, op, "assembly %s not found", assemblyID)
	}

	key := gcp.ObjectKey(gcp.BucketCategoryQCImage, assemblyID, in.File.FileName, s.now())
	if err := s.bucket.UploadFile(dbc, gcp.BucketCategoryQCImage, key, in.File.Body); err != nil {
		return nil, fmt.Errorf("upload qc image: %w", err)
	}
	img := &types.QCImage{
		AssemblyID:  assemblyID,
		StorageKey:  key,
		FileName:    strings.TrimSpace(in.File.FileName),
		ContentType: ct,
		SizeBytes:   in.File.Size,
		QCStatus:    status,
		Notes:       strings.TrimSpace(in.Notes),
		UploadedBy:  ctxutil.ActorID(ctx),
	}
	if _, err := s.imageRepo.Create(dbc, img); err != nil {
		if derr := s.bucket.DeleteFile(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, gcp.BucketCategoryQCImage, key); derr != nil {
			s.log.Warn("orphaned qc image left in bucket", "key", key, "error", derr)
		}
		return nil, fmt.Errorf("save qc image: %w", err)
	}
	s.attachURL(img)
	s.log.Info("qc image uploaded", "assembly_id", assemblyID, "image_id", img.ID, "size", img.SizeBytes)
	return img, nil
}

func (s *qcService) DeleteImage(ctx context.Context, id uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	img, err := s.imageRepo.GetByID(dbc, id)
	if err != nil {
		return fmt.Errorf("get qc image: %w", err)
	}
	if img == nil {
		return domainagg.Newf(domainagg.CodeNotFound, "QC.DeleteImage", "qc image %s not found", id)
	}
	if err := s.imageRepo.Delete(dbc, id); err != nil {
		return fmt.Errorf("delete qc image: %w", err)
	}
	if s.bucket != nil {
		if err := s.bucket.DeleteFile(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, gcp.BucketCategoryQCImage, img.StorageKey); err != nil {
			s.log.Warn("qc image object delete failed", "key", img.StorageKey, "error", err)
		}
	}
	return nil
}
