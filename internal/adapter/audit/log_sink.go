package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
)

// LogWriter writes audit events as structured log lines.
type LogWriter struct {
	logger *zap.Logger
}

func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger.Named("audit")}
}

func (w *LogWriter) Write(_ context.Context, event domain.AuditEvent) error {
	fields := make([]zap.Field, 0, len(event.EntityIDs)+3)
	fields = append(fields,
		zap.String("kind", string(event.Kind)),
		zap.String("actor_id", event.ActorID),
		zap.Time("timestamp", event.Timestamp),
	)
	for k, v := range event.EntityIDs {
		fields = append(fields, zap.String(k, v))
	}
	if event.Kind == domain.AuditLedgerCorruption {
		w.logger.Error("audit event", fields...)
		return nil
	}
	w.logger.Info("audit event", fields...)
	return nil
}
