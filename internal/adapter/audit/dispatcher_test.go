package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/platform/metrics"
)

// gatedWriter records events and blocks each write until release is closed.
type gatedWriter struct {
	mu      sync.Mutex
	written []domain.AuditEvent
	started chan struct{}
	release chan struct{}
	err     error
}

func newGatedWriter() *gatedWriter {
	return &gatedWriter{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (w *gatedWriter) Write(_ context.Context, e domain.AuditEvent) error {
	w.started <- struct{}{}
	<-w.release
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, e)
	return w.err
}

func (w *gatedWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.written)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func event(kind domain.AuditKind) domain.AuditEvent {
	return domain.AuditEvent{
		Kind:      kind,
		ActorID:   "operator",
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		EntityIDs: map[string]string{"benefit_id": "b1"},
	}
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := newGatedWriter()
	d := NewDispatcher(w, 1, 1, metrics.New(reg), zap.NewNop())
	ctx := context.Background()

	d.Emit(ctx, event(domain.AuditAssigned))
	<-w.started
	d.Emit(ctx, event(domain.AuditDelivered))
	d.Emit(ctx, event(domain.AuditDeliveryReversed))

	close(w.release)
	d.Close()

	assert.Equal(t, 2, w.count())
	assert.Equal(t, float64(1), counterValue(t, reg, "ledger_audit_events_dropped_total"))
}

func TestDispatcher_CloseDrainsQueue(t *testing.T) {
	w := newGatedWriter()
	close(w.release)
	d := NewDispatcher(w, 2, 8, nil, nil)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), event(domain.AuditAssigned))
	}
	d.Close()
	d.Close()

	assert.Equal(t, 5, w.count())
	d.Emit(context.Background(), event(domain.AuditAssigned))
	assert.Equal(t, 5, w.count(), "emit after close is dropped")
}

func TestDispatcher_CountsWriteFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := newGatedWriter()
	w.err = errors.New("disk full")
	close(w.release)
	d := NewDispatcher(w, 1, 4, metrics.New(reg), zap.NewNop())

	d.Emit(context.Background(), event(domain.AuditDelivered))
	d.Emit(context.Background(), event(domain.AuditDelivered))
	d.Close()

	assert.Equal(t, float64(2), counterValue(t, reg, "ledger_audit_events_failed_total"))
}

func TestLogWriter_Levels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	w := NewLogWriter(zap.New(core))
	ctx := context.Background()

	require.NoError(t, w.Write(ctx, event(domain.AuditAssigned)))
	require.NoError(t, w.Write(ctx, event(domain.AuditLedgerCorruption)))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, "audit", entries[0].LoggerName)
	assert.Equal(t, "b1", entries[0].ContextMap()["benefit_id"])
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
}
