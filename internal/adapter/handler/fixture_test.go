package handler

import (
	"testing"
	"time"

	"github.com/rl1809/benefit-ledger/internal/adapter/directory"
	"github.com/rl1809/benefit-ledger/internal/adapter/storage"
	"github.com/rl1809/benefit-ledger/internal/core/service"
)

type testEnv struct {
	locker   *storage.MemoryLocker
	services Services
}

func newTestEnv(t *testing.T, lockWait time.Duration) *testEnv {
	t.Helper()
	dir := directory.NewMemoryDirectory()
	dir.PutDelegate("d1", true)
	dir.PutAffiliate("a1")
	dir.PutChild("c1", "a1")

	locker := storage.NewMemoryLocker(lockWait)
	ledger := service.NewLedger(storage.NewMemoryStore(), locker)
	return &testEnv{
		locker: locker,
		services: Services{
			Catalog:     service.NewCatalogService(ledger),
			Allocations: service.NewAllocationService(ledger, dir),
			Deliveries:  service.NewDeliveryService(ledger, dir),
			Queries:     service.NewQueryService(ledger),
			Checker:     service.NewInvariantChecker(ledger),
		},
	}
}
