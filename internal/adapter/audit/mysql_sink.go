package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
)

// MySQLWriter appends audit events to the events table.
type MySQLWriter struct {
	db *sql.DB
}

func NewMySQLWriter(db *sql.DB) *MySQLWriter {
	return &MySQLWriter{db: db}
}

func (w *MySQLWriter) Write(ctx context.Context, event domain.AuditEvent) error {
	ids, err := json.Marshal(event.EntityIDs)
	if err != nil {
		return fmt.Errorf("marshal entity ids: %w", err)
	}
	_, err = w.db.ExecContext(ctx,
		"INSERT INTO events (event_type, actor_id, entity_ids, occurred_at) VALUES (?, ?, ?, ?)",
		string(event.Kind), event.ActorID, ids, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event %s: %w", event.Kind, err)
	}
	return nil
}
