package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/yungbote/trackflow-backend/internal/observability"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

const (
	uploadTimeout = 2 * time.Minute
	deleteTimeout = 30 * time.Second
)

type BucketCategory string

const (
	BucketCategoryQCImage BucketCategory = "qc_image"
	BucketCategoryDrawing BucketCategory = "drawing"
)

var categories = []BucketCategory{BucketCategoryQCImage, BucketCategoryDrawing}

// KeyPrefix is the first path segment of objects stored under the category.
func (c BucketCategory) KeyPrefix() string {
	switch c {
	case BucketCategoryQCImage:
		return "qc-images"
	case BucketCategoryDrawing:
		return "drawings"
	}
	return string(c)
}

// ObjectKey builds "{prefix}/{entityId}/{unixMillis}_{filename}". Only the base
// name of filename is kept and whitespace runs become underscores.
func ObjectKey(category BucketCategory, entityID uuid.UUID, filename string, at time.Time) string {
	name := strings.TrimSpace(path.Base(strings.ReplaceAll(filename, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		name = "file"
	}
	name = strings.Join(strings.Fields(name), "_")
	return fmt.Sprintf("%s/%s/%d_%s", category.KeyPrefix(), entityID, at.UnixMilli(), name)
}

// CategoryForKey maps a stored key back to its category by prefix.
func CategoryForKey(key string) (BucketCategory, bool) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	for _, c := range categories {
		if strings.HasPrefix(key, c.KeyPrefix()+"/") {
			return c, true
		}
	}
	return "", false
}

// BucketService stores QC photos and drawings.
type BucketService interface {
	UploadFile(dbc dbctx.Context, category BucketCategory, key string, file io.Reader) error
	DeleteFile(dbc dbctx.Context, category BucketCategory, key string) error
	GetPublicURL(category BucketCategory, key string) string
}

// BucketConfig names the bucket of each category. CDN domains are optional.
type BucketConfig struct {
	Storage          StorageSettings
	QCImageBucket    string
	QCImageCDNDomain string
	DrawingBucket    string
	DrawingCDNDomain string
	PublicBaseURL    string
}

type bucketTarget struct {
	name string
	cdn  string
}

type bucketService struct {
	log        *logger.Logger
	metrics    *observability.Metrics
	client     *storage.Client
	settings   StorageSettings
	targets    map[BucketCategory]bucketTarget
	publicBase string
}

func NewBucketService(ctx context.Context, log *logger.Logger, cfg BucketConfig, metrics *observability.Metrics) (BucketService, error) {
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	targets := map[BucketCategory]bucketTarget{
		BucketCategoryQCImage: {name: strings.TrimSpace(cfg.QCImageBucket), cdn: strings.TrimSpace(cfg.QCImageCDNDomain)},
		BucketCategoryDrawing: {name: strings.TrimSpace(cfg.DrawingBucket), cdn: strings.TrimSpace(cfg.DrawingCDNDomain)},
	}
	for c, t := range targets {
		if t.name == "" {
			return nil, fmt.Errorf("no bucket configured for %s", c)
		}
	}
	publicBase, err := publicBaseURL(cfg.Storage, cfg.PublicBaseURL)
	if err != nil {
		return nil, err
	}
	client, err := newStorageClient(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	log = log.With("service", "BucketService")
	log.Info("object storage ready",
		"mode", cfg.Storage.Mode,
		"implicit_mode", cfg.Storage.Implicit,
		"qc_image_bucket", targets[BucketCategoryQCImage].name,
		"drawing_bucket", targets[BucketCategoryDrawing].name,
	)
	return &bucketService{
		log:        log,
		metrics:    metrics,
		client:     client,
		settings:   cfg.Storage,
		targets:    targets,
		publicBase: publicBase,
	}, nil
}

func newStorageClient(ctx context.Context, s StorageSettings) (*storage.Client, error) {
	if s.Emulated() {
		// the storage client only reads the emulator endpoint from the environment
		if err := os.Setenv("STORAGE_EMULATOR_HOST", s.EmulatorHost); err != nil {
			return nil, err
		}
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	return storage.NewClient(ctx, append(credentialOptions(), option.WithScopes(storage.ScopeReadWrite))...)
}

// credentialOptions accepts service account credentials inline as JSON or as a
// file path. With neither set the client falls back to application default credentials.
func credentialOptions() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case creds == "":
		return nil
	case strings.HasPrefix(creds, "{"):
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

// publicBaseURL is the origin links are built on when no CDN domain is set:
// the explicit override, else the emulator, else "" for storage.googleapis.com.
func publicBaseURL(s StorageSettings, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if s.Emulated() {
			return s.EmulatorHost, nil
		}
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("OBJECT_STORAGE_PUBLIC_BASE_URL %q is not an absolute URL", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

func (bs *bucketService) target(c BucketCategory) (bucketTarget, error) {
	t, ok := bs.targets[c]
	if !ok {
		return bucketTarget{}, fmt.Errorf("unknown bucket category %q", c)
	}
	return t, nil
}

func (bs *bucketService) observe(c BucketCategory, op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	bs.metrics.IncStorageOp(string(c), op, status)
}

func (bs *bucketService) UploadFile(dbc dbctx.Context, category BucketCategory, key string, file io.Reader) (err error) {
	defer func() { bs.observe(category, "upload", err) }()
	t, err := bs.target(category)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(dbc.Ctx, uploadTimeout)
	defer cancel()

	w := bs.client.Bucket(t.name).Object(key).NewWriter(ctx)
	w.ContentType = contentTypeForKey(key)
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", key, err)
	}
	return nil
}

// DeleteFile removes one object. A key that is already gone is not an error.
func (bs *bucketService) DeleteFile(dbc dbctx.Context, category BucketCategory, key string) (err error) {
	defer func() { bs.observe(category, "delete", err) }()
	t, err := bs.target(category)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(dbc.Ctx, deleteTimeout)
	defer cancel()
	err = bs.client.Bucket(t.name).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		bs.log.Debug("object already deleted", "key", key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s from %s: %w", key, t.name, err)
	}
	return nil
}

func (bs *bucketService) GetPublicURL(category BucketCategory, key string) string {
	t, err := bs.target(category)
	if err != nil {
		return key
	}
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	switch {
	case t.cdn != "":
		return fmt.Sprintf("https://%s/%s", t.cdn, key)
	case bs.settings.Emulated() && bs.publicBase != "":
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", bs.publicBase, url.PathEscape(t.name), url.PathEscape(key))
	case bs.publicBase != "":
		return fmt.Sprintf("%s/%s/%s", bs.publicBase, t.name, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", t.name, key)
}

func contentTypeForKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if i := strings.IndexByte(k, '?'); i >= 0 {
		k = k[:i]
	}
	switch path.Ext(k) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".pdf":
		return "application/pdf"
	case ".dwg":
		return "image/vnd.dwg"
	case ".dxf":
		return "image/vnd.dxf"
	}
	return ""
}
