package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/platform/metrics"
	"github.com/rl1809/benefit-ledger/internal/port"
)

const (
	lockKeyPrefix    = "lock:ledger:"
	defaultTxTimeout = 5 * time.Second
)

// Ledger is the transactional core shared by the ledger services. Every
// mutation runs under the lock of the key it touches and inside one store
// transaction.
type Ledger struct {
	store     port.LedgerStore
	locker    port.Locker
	audit     port.AuditSink
	cache     port.CacheRepository
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
	txTimeout time.Duration
}

type Option func(*Ledger)

func WithAuditSink(sink port.AuditSink) Option {
	return func(l *Ledger) { l.audit = sink }
}

// WithCache enables the advisory benefit snapshot cache.
func WithCache(cache port.CacheRepository) Option {
	return func(l *Ledger) { l.cache = cache }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// WithTxTimeout bounds a transaction once its lock is held.
func WithTxTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.txTimeout = d }
}

func NewLedger(store port.LedgerStore, locker port.Locker, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		locker:    locker,
		audit:     nopAuditSink{},
		logger:    zap.NewNop(),
		tracer:    otel.Tracer("github.com/rl1809/benefit-ledger/internal/core/service"),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		txTimeout: defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Store() port.LedgerStore {
	return l.store
}

func pairKey(benefitID, delegateID string) string {
	return lockKeyPrefix + benefitID + ":" + delegateID
}

func benefitKey(benefitID string) string {
	return lockKeyPrefix + benefitID
}

func (l *Ledger) catalog(tx port.LedgerTx) BenefitCatalog {
	return BenefitCatalog{tx: tx, now: l.now}
}

func (l *Ledger) inventory(tx port.LedgerTx) DelegateInventory {
	return DelegateInventory{tx: tx, now: l.now}
}

func (l *Ledger) deliveries(tx port.LedgerTx) DeliveryLedger {
	return DeliveryLedger{tx: tx}
}

// execute runs fn under lockKey in a single transaction.
func (l *Ledger) execute(ctx context.Context, op, lockKey string, fn func(ctx context.Context, tx port.LedgerTx) error) error {
	start := time.Now()
	ctx, span := l.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attribute.String("ledger.lock_key", lockKey)))
	defer span.End()

	err := l.locked(ctx, op, lockKey, fn)
	l.finish(ctx, span, op, start, err)
	return err
}

func (l *Ledger) locked(ctx context.Context, op, lockKey string, fn func(ctx context.Context, tx port.LedgerTx) error) error {
	waitStart := time.Now()
	unlock, err := l.locker.Lock(ctx, lockKey)
	l.metrics.ObserveLockWait(op, time.Since(waitStart))
	if err != nil {
		return err
	}

	// Once the lock is held the transaction no longer follows the caller:
	// a dropped request still commits or rolls back as a whole.
	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.txTimeout)
	defer cancel()
	defer func() {
		if err := unlock(work); err != nil {
			l.logger.Warn("release ledger lock", zap.String("key", lockKey), zap.Error(err))
		}
	}()

	return l.store.RunInTx(work, fn)
}

func (l *Ledger) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = string(domain.KindOf(err))
	}
	l.metrics.ObserveOperation(op, result, time.Since(start))
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, result)

	switch domain.KindOf(err) {
	case domain.KindLedgerCorruption:
		l.metrics.IncrementCorruptions()
		l.logger.Error("ledger invariant violated", zap.String("op", op), zap.Error(err))
		l.emit(ctx, domain.AuditLedgerCorruption, map[string]string{"op": op, "detail": err.Error()})
	case domain.KindInternal:
		l.logger.Error("ledger operation failed", zap.String("op", op), zap.Error(err))
	case domain.KindBusy:
		l.logger.Warn("ledger operation busy", zap.String("op", op), zap.Error(err))
	default:
		l.logger.Debug("ledger operation rejected", zap.String("op", op), zap.Error(err))
	}
}

func (l *Ledger) emit(ctx context.Context, kind domain.AuditKind, ids map[string]string) {
	l.audit.Emit(context.WithoutCancel(ctx), domain.AuditEvent{
		Kind:      kind,
		ActorID:   ActorFrom(ctx),
		Timestamp: l.now(),
		EntityIDs: ids,
	})
}

// invalidate drops the cached snapshot of b, the benefit as committed.
func (l *Ledger) invalidate(ctx context.Context, b domain.Benefit) {
	if l.cache == nil {
		return
	}
	if err := l.cache.InvalidateBenefit(context.WithoutCancel(ctx), b.ID, b.Version); err != nil {
		l.logger.Warn("invalidate benefit snapshot", zap.String("benefit_id", b.ID), zap.Error(err))
	}
}

func requireID(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return domain.Validation("%s is required", name)
	}
	return nil
}

func requireQuantity(qty int) error {
	if qty <= 0 {
		return domain.Validation("quantity must be positive, got %d", qty)
	}
	return nil
}

type nopAuditSink struct{}

func (nopAuditSink) Emit(context.Context, domain.AuditEvent) {}
