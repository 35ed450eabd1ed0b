package aggregates

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/trackflow-backend/internal/data/repos"
	repotest "github.com/yungbote/trackflow-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
)

type harness struct {
	ctx        context.Context
	tx         *gorm.DB
	hooks      *spyHooks
	repos      repos.Set
	assemblies domainagg.AssemblyAggregate
	batches    domainagg.BatchAggregate
}

// newHarness builds both aggregates on one rolled-back test transaction.
func newHarness(t *testing.T, newCode func(string) (string, error)) *harness {
	t.Helper()
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	log := repotest.Logger(t)
	set := repos.NewSet(tx, log)
	hooks := &spyHooks{}
	base := BaseDeps{
		DB:     tx,
		Log:    log,
		Runner: NewTxRunner(tx, hooks),
		Guard:  NewVersionGuard(tx),
		Hooks:  hooks,
	}
	return &harness{
		ctx:   context.Background(),
		tx:    tx,
		hooks: hooks,
		repos: set,
		assemblies: NewAssemblyAggregate(AssemblyAggregateDeps{
			Base:       base,
			Projects:   set.Projects,
			Assemblies: set.Assemblies,
			Barcodes:   set.Barcodes,
			Batches:    set.Batches,
			Members:    set.BatchAssembly,
			StatusLogs: set.StatusLogs,
			QCImages:   set.QCImages,
			NewCode:    newCode,
		}),
		batches: NewBatchAggregate(BatchAggregateDeps{
			Base:       base,
			Batches:    set.Batches,
			Members:    set.BatchAssembly,
			Assemblies: set.Assemblies,
			Barcodes:   set.Barcodes,
			StatusLogs: set.StatusLogs,
		}),
	}
}
