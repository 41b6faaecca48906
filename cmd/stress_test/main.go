package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/benefit-ledger/internal/adapter/directory"
	"github.com/rl1809/benefit-ledger/internal/adapter/storage"
	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/core/service"
	"github.com/rl1809/benefit-ledger/internal/port"
)

const (
	redisAddr      = "localhost:6379"
	initialStock   = 20
	totalRequests  = 50
	delegateCount  = 5
	deliveryRounds = 10
)

func main() {
	ctx := context.Background()

	var locker port.Locker = storage.NewMemoryLocker(5 * time.Second)
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("redis unavailable (%v), using in-process locks", err)
	} else {
		opts := storage.DefaultLockOptions()
		opts.Tries = 100
		locker = storage.NewRedisLocker(rdb, opts)
		log.Println("using redis locks")
	}
	defer rdb.Close()

	dir := directory.NewMemoryDirectory()
	for d := 0; d < delegateCount; d++ {
		dir.PutDelegate(delegateID(d), true)
	}
	for r := 0; r < totalRequests; r++ {
		dir.PutAffiliate(fmt.Sprintf("affiliate-%d", r))
	}

	ledger := service.NewLedger(storage.NewMemoryStore(), locker)
	catalog := service.NewCatalogService(ledger)
	allocations := service.NewAllocationService(ledger, dir)
	deliveries := service.NewDeliveryService(ledger, dir)
	checker := service.NewInvariantChecker(ledger)

	benefit, err := catalog.CreateBenefit(ctx, service.CreateBenefitRequest{
		Name:         "school kit",
		Category:     "education",
		AgeRange:     domain.AgeRange{Min: 5, Max: 12},
		InitialStock: initialStock,
	})
	if err != nil {
		log.Fatalf("failed to create benefit: %v", err)
	}

	var assigned, insufficient, busy atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := allocations.Assign(ctx, delegateID(n%delegateCount), benefit.ID, 1)
			count(err, &assigned, &insufficient, &busy)
		}(i)
	}
	wg.Wait()

	var delivered, empty, deliverBusy atomic.Int32
	for i := 0; i < delegateCount*deliveryRounds; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := deliveries.Deliver(ctx, service.DeliverRequest{
				DelegateID: delegateID(n % delegateCount),
				BenefitID:  benefit.ID,
				Recipient:  domain.Recipient{Type: domain.RecipientAffiliate, ID: fmt.Sprintf("affiliate-%d", n%totalRequests)},
			})
			count(err, &delivered, &empty, &deliverBusy)
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	final, err := ledger.Store().GetBenefit(ctx, benefit.ID)
	if err != nil {
		log.Fatalf("failed to read benefit: %v", err)
	}
	violations, err := checker.Check(ctx, benefit.ID)
	if err != nil {
		log.Fatalf("invariant check failed: %v", err)
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:      %d\n", initialStock)
	fmt.Printf("Assign Requests:    %d\n", totalRequests)
	fmt.Printf("Assigned:           %d\n", assigned.Load())
	fmt.Printf("Insufficient:       %d\n", insufficient.Load())
	fmt.Printf("Busy:               %d\n", busy.Load())
	fmt.Printf("Delivered:          %d\n", delivered.Load())
	fmt.Printf("Nothing To Deliver: %d\n", empty.Load())
	fmt.Printf("Deliver Busy:       %d\n", deliverBusy.Load())
	fmt.Printf("Duration:           %v\n", elapsed)
	fmt.Println("==========================================")

	if assigned.Load()+int32(final.UnassignedStock) == initialStock {
		fmt.Printf("PASS: assigned %d + unassigned %d = %d\n", assigned.Load(), final.UnassignedStock, initialStock)
	} else {
		fmt.Printf("FAIL: assigned %d + unassigned %d != %d\n", assigned.Load(), final.UnassignedStock, initialStock)
	}
	if delivered.Load() <= assigned.Load() {
		fmt.Println("PASS: no unit delivered twice")
	} else {
		fmt.Printf("FAIL: delivered %d of %d assigned units\n", delivered.Load(), assigned.Load())
	}
	if len(violations) == 0 {
		fmt.Println("PASS: ledger invariants hold")
	} else {
		for _, v := range violations {
			fmt.Printf("FAIL: %s %s: %s\n", v.BenefitID, v.DelegateID, v.Detail)
		}
	}
}

func delegateID(n int) string {
	return fmt.Sprintf("delegate-%d", n)
}

func count(err error, ok, rejected, busy *atomic.Int32) {
	switch {
	case err == nil:
		ok.Add(1)
	case errors.Is(err, domain.ErrBusy):
		busy.Add(1)
	default:
		rejected.Add(1)
	}
}
