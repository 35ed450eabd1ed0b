package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/trackflow-backend/internal/observability"
	"github.com/yungbote/trackflow-backend/internal/platform/gcp"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

var newBucketService = gcp.NewBucketService

const (
	storageReasonMissingBucket = "missing_bucket"
	storageReasonConnectFailed = "connect_failed"
)

// StorageBootstrapError reports why the object store could not be opened.
// Reason is one of the gcp Reason* values, missing_bucket or connect_failed.
type StorageBootstrapError struct {
	Reason   string
	Settings gcp.StorageSettings
	Cause    error
}

func (e *StorageBootstrapError) Error() string {
	return fmt.Sprintf("object storage (%s, mode=%s): %v", e.Reason, e.Settings.Mode, e.Cause)
}

func (e *StorageBootstrapError) Unwrap() error { return e.Cause }

func storageBootstrapFailure(s gcp.StorageSettings, err error) *StorageBootstrapError {
	reason := storageReasonConnectFailed
	var cfgErr *gcp.StorageConfigError
	if errors.As(err, &cfgErr) {
		reason = cfgErr.Reason
	}
	return &StorageBootstrapError{Reason: reason, Settings: s, Cause: err}
}

// openBucketService builds the QC image and drawing store. Both bucket names are required.
func openBucketService(ctx context.Context, log *logger.Logger, cfg Config, metrics *observability.Metrics) (gcp.BucketService, error) {
	settings, err := gcp.ParseStorageSettings(cfg.ObjectStorageMode, cfg.StorageEmulatorHost)
	if err == nil && (cfg.QCImageBucket == "" || cfg.DrawingBucket == "") {
		err = &StorageBootstrapError{
			Reason:   storageReasonMissingBucket,
			Settings: settings,
			Cause:    errors.New("QC_GCS_BUCKET_NAME and DRAWING_GCS_BUCKET_NAME are required"),
		}
	}
	var bucket gcp.BucketService
	if err == nil {
		bucket, err = newBucketService(ctx, log, gcp.BucketConfig{
			Storage:          settings,
			QCImageBucket:    cfg.QCImageBucket,
			QCImageCDNDomain: cfg.QCImageCDNDomain,
			DrawingBucket:    cfg.DrawingBucket,
			DrawingCDNDomain: cfg.DrawingCDNDomain,
			PublicBaseURL:    cfg.StoragePublicURL,
		}, metrics)
	}
	if err != nil {
		var be *StorageBootstrapError
		if !errors.As(err, &be) {
			be = storageBootstrapFailure(settings, err)
		}
		metrics.IncStorageOp("all", "bootstrap", be.Reason)
		log.Error("object storage unavailable", "reason", be.Reason, "mode", settings.Mode, "emulator_host", settings.EmulatorHost, "error", be.Cause)
		return nil, be
	}
	metrics.IncStorageOp("all", "bootstrap", "ok")
	return bucket, nil
}
