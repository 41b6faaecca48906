package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/platform/metrics"
)

const writeTimeout = 5 * time.Second

// Writer persists one audit event.
type Writer interface {
	Write(ctx context.Context, event domain.AuditEvent) error
}

// Dispatcher queues events and hands them to a Writer from a fixed pool of
// workers. Emit never blocks: when the queue is full the event is dropped
// and counted.
type Dispatcher struct {
	writer  Writer
	queue   chan domain.AuditEvent
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(writer Writer, workers, queueSize int, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		writer:  writer,
		queue:   make(chan domain.AuditEvent, queueSize),
		metrics: m,
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	return d
}

func (d *Dispatcher) Emit(_ context.Context, event domain.AuditEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.metrics.IncrementAuditDropped()
		return
	}
	select {
	case d.queue <- event:
	default:
		d.metrics.IncrementAuditDropped()
		d.logger.Warn("audit queue full, event dropped", zap.String("kind", string(event.Kind)))
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) workerLoop(id int) {
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := d.writer.Write(ctx, event); err != nil {
			d.metrics.IncrementAuditFailed()
			d.logger.Error("write audit event",
				zap.Int("worker", id),
				zap.String("kind", string(event.Kind)),
				zap.Error(err),
			)
		}
		cancel()
	}
}
