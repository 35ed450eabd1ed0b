package app

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/trackflow-backend/internal/observability"
	"github.com/yungbote/trackflow-backend/internal/platform/gcp"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

type stubBucket struct {
	gcp.BucketService
}

func captureBucketConfig(t *testing.T) *gcp.BucketConfig {
	t.Helper()
	orig := newBucketService
	t.Cleanup(func() { newBucketService = orig })

	captured := &gcp.BucketConfig{}
	newBucketService = func(_ context.Context, _ *logger.Logger, cfg gcp.BucketConfig, _ *observability.Metrics) (gcp.BucketService, error) {
		*captured = cfg
		return &stubBucket{}, nil
	}
	return captured
}

func storageConfig(mode, host string) Config {
	return Config{
		ObjectStorageMode:   mode,
		StorageEmulatorHost: host,
		QCImageBucket:       "tf-qc",
		DrawingBucket:       "tf-drawings",
		QCImageCDNDomain:    "cdn.example.com",
	}
}

func TestOpenBucketServiceModes(t *testing.T) {
	captured := captureBucketConfig(t)
	ctx := context.Background()

	got, err := openBucketService(ctx, logger.Nop(), storageConfig("gcs", ""), nil)
	if err != nil {
		t.Fatalf("openBucketService: %v", err)
	}
	if _, ok := got.(*stubBucket); !ok {
		t.Fatalf("bucket: got %T", got)
	}
	if captured.Storage.Mode != gcp.StorageModeGCS || captured.QCImageBucket != "tf-qc" || captured.QCImageCDNDomain != "cdn.example.com" {
		t.Fatalf("config: %+v", *captured)
	}

	if _, err := openBucketService(ctx, logger.Nop(), storageConfig("gcs_emulator", "http://fake-gcs:4443"), nil); err != nil {
		t.Fatalf("emulator: %v", err)
	}
	if captured.Storage.Mode != gcp.StorageModeEmulator || captured.Storage.Implicit {
		t.Fatalf("emulator settings: %+v", captured.Storage)
	}

	if _, err := openBucketService(ctx, logger.Nop(), storageConfig("", "http://fake-gcs:4443"), nil); err != nil {
		t.Fatalf("implicit emulator: %v", err)
	}
	if captured.Storage.Mode != gcp.StorageModeEmulator || !captured.Storage.Implicit {
		t.Fatalf("implicit settings: %+v", captured.Storage)
	}
}

func TestOpenBucketServiceFailures(t *testing.T) {
	captureBucketConfig(t)
	noBuckets := storageConfig("gcs", "")
	noBuckets.DrawingBucket = ""

	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"invalid mode", storageConfig("s3", ""), gcp.ReasonInvalidMode},
		{"missing emulator host", storageConfig("gcs_emulator", ""), gcp.ReasonMissingEmulatorHost},
		{"invalid emulator host", storageConfig("gcs_emulator", "not-a-url"), gcp.ReasonInvalidEmulatorHost},
		{"missing bucket", noBuckets, storageReasonMissingBucket},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := openBucketService(context.Background(), logger.Nop(), tc.cfg, nil)
			var be *StorageBootstrapError
			if !errors.As(err, &be) || be.Reason != tc.want {
				t.Fatalf("want reason %q, got %v", tc.want, err)
			}
		})
	}
}

func TestOpenBucketServiceConnectFailure(t *testing.T) {
	orig := newBucketService
	t.Cleanup(func() { newBucketService = orig })
	cause := errors.New("credentials: not found")
	newBucketService = func(context.Context, *logger.Logger, gcp.BucketConfig, *observability.Metrics) (gcp.BucketService, error) {
		return nil, cause
	}
	_, err := openBucketService(context.Background(), logger.Nop(), storageConfig("gcs", ""), nil)
	var be *StorageBootstrapError
	if !errors.As(err, &be) || be.Reason != storageReasonConnectFailed || !errors.Is(err, cause) {
		t.Fatalf("unexpected error %v", err)
	}
}
