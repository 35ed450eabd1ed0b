package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dataagg "github.com/yungbote/trackflow-backend/internal/data/aggregates"
	aggtest "github.com/yungbote/trackflow-backend/internal/data/aggregates/testutil"
	"github.com/yungbote/trackflow-backend/internal/data/repos"
	repotest "github.com/yungbote/trackflow-backend/internal/data/repos/testutil"
	types "github.com/yungbote/trackflow-backend/internal/domain"
	"github.com/yungbote/trackflow-backend/internal/domain/user"
	"github.com/yungbote/trackflow-backend/internal/events"
	"github.com/yungbote/trackflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackflow-backend/internal/platform/dbctx"
	"github.com/yungbote/trackflow-backend/internal/platform/gcp"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) eventTypes() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func (p *fakePublisher) count(t events.Type) int {
	n := 0
	for _, got := range p.eventTypes() {
		if got == t {
			n++
		}
	}
	return n
}

type fakeScheduler struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (s *fakeScheduler) ScheduleBarcodeBackfill(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.ids = append(s.ids, ids...)
	return nil
}

type fakeBucket struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	uploadErr error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}}
}

func (b *fakeBucket) UploadFile(_ dbctx.Context, _ gcp.BucketCategory, key string, file io.Reader) error {
	if b.uploadErr != nil {
		return b.uploadErr
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *fakeBucket) DeleteFile(_ dbctx.Context, _ gcp.BucketCategory, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	b.deleted = append(b.deleted, key)
	return nil
}

func (b *fakeBucket) GetPublicURL(_ gcp.BucketCategory, key string) string {
	return "https://cdn.test/" + key
}

func (b *fakeBucket) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

// harness wires every service against one test database. Services own their
// transactions, so the database is used directly rather than through a rolled-back tx.
type harness struct {
	ctx       context.Context
	db        *gorm.DB
	repos     repos.Set
	actor     *types.User
	publisher *fakePublisher
	scheduler *fakeScheduler
	bucket    *fakeBucket
	hooks     *aggtest.HooksRecorder
	runner    *aggtest.FaultyTxRunner

	assemblies AssemblyService
	batches    BatchService
	barcodes   BarcodeService
	projects   ProjectService
	users      UserService
	nfc        NFCService
	qc         QCService
}

type harnessOpts struct {
	assemblyCode func(string) (string, error)
	batchCode    func(string) (string, error)
	failCommit   error
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, harnessOpts{})
}

func newHarnessWith(t *testing.T, opts harnessOpts) *harness {
	t.Helper()
	db := repotest.DB(t)
	log := repotest.Logger(t)
	set := repos.NewSet(db, log)

	hooks := &aggtest.HooksRecorder{}
	runner := &aggtest.FaultyTxRunner{Inner: dataagg.NewTxRunner(db, hooks), FailCommit: opts.failCommit}
	base := dataagg.BaseDeps{DB: db, Log: log, Hooks: hooks, Runner: runner}
	asmAgg := dataagg.NewAssemblyAggregate(dataagg.AssemblyAggregateDeps{
		Base:       base,
		Projects:   set.Projects,
		Assemblies: set.Assemblies,
		Barcodes:   set.Barcodes,
		Batches:    set.Batches,
		Members:    set.BatchAssembly,
		StatusLogs: set.StatusLogs,
		QCImages:   set.QCImages,
		NewCode:    opts.assemblyCode,
	})
	batchAgg := dataagg.NewBatchAggregate(dataagg.BatchAggregateDeps{
		Base:       base,
		Batches:    set.Batches,
		Members:    set.BatchAssembly,
		Assemblies: set.Assemblies,
		Barcodes:   set.Barcodes,
		StatusLogs: set.StatusLogs,
	})

	h := &harness{
		db:        db,
		repos:     set,
		publisher: &fakePublisher{},
		scheduler: &fakeScheduler{},
		bucket:    newFakeBucket(),
		hooks:     hooks,
		runner:    runner,
	}
	h.actor = repotest.SeedUser(t, context.Background(), db, uniqueEmail("actor"))
	if err := db.Model(&types.User{}).Where("id = ?", h.actor.ID).Update("role", user.RoleAdmin).Error; err != nil {
		t.Fatalf("promote actor: %v", err)
	}
	h.ctx = ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: h.actor.ID, Role: user.RoleAdmin})

	h.assemblies = NewAssemblyService(db, log, AssemblyServiceDeps{
		Aggregate:  asmAgg,
		Assemblies: set.Assemblies,
		Barcodes:   set.Barcodes,
		Members:    set.BatchAssembly,
		StatusLogs: set.StatusLogs,
		Bucket:     h.bucket,
		Publisher:  h.publisher,
		Scheduler:  h.scheduler,
	})
	h.batches = NewBatchService(db, log, BatchServiceDeps{
		Aggregate:  batchAgg,
		Batches:    set.Batches,
		Members:    set.BatchAssembly,
		Assemblies: set.Assemblies,
		Barcodes:   set.Barcodes,
		Projects:   set.Projects,
		Users:      set.Users,
		Publisher:  h.publisher,
		NewCode:    opts.batchCode,
	})
	h.barcodes = NewBarcodeService(db, log, set.Barcodes, set.Assemblies, set.Batches)
	h.projects = NewProjectService(db, log, set.Projects)
	h.users = NewUserService(db, log, set.Users, set.NFCCards)
	h.nfc = NewNFCService(db, log, set.NFCCards, set.Users)
	h.qc = NewQCService(db, log, set.QCImages, set.Assemblies, h.bucket)
	return h
}

func (h *harness) project(t *testing.T) *types.Project {
	t.Helper()
	return repotest.SeedProject(t, context.Background(), h.db, uniqueCode("P"))
}

func (h *harness) assembly(t *testing.T, projectID uuid.UUID, name, weight string, qty int) *types.Assembly {
	t.Helper()
	return repotest.SeedAssembly(t, context.Background(), h.db, projectID, name, weight, qty)
}

func (h *harness) batch(t *testing.T, projectID uuid.UUID, status string) *types.LogisticsBatch {
	t.Helper()
	return repotest.SeedBatch(t, context.Background(), h.db, projectID, uniqueCode("B"), status)
}

func uniqueCode(prefix string) string {
	return prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
}

func uniqueEmail(name string) string {
	return name + "-" + uuid.NewString()[:8] + "@example.com"
}

func failingCode(string) (string, error) {
	return "", errors.New("entropy unavailable")
}
