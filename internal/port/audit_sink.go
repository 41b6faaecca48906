package port

import (
	"context"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
)

// AuditSink accepts events fire-and-forget; ledger correctness never depends on it.
type AuditSink interface {
	Emit(ctx context.Context, event domain.AuditEvent)
}
