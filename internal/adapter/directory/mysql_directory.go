package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/port"
)

// MySQLDirectory reads the membership tables owned by the surrounding
// application. It never writes them.
type MySQLDirectory struct {
	db *sql.DB
}

func NewMySQLDirectory(db *sql.DB) *MySQLDirectory {
	return &MySQLDirectory{db: db}
}

func (d *MySQLDirectory) Delegate(ctx context.Context, delegateID string) (port.DelegateInfo, error) {
	info := port.DelegateInfo{ID: delegateID}
	err := d.db.QueryRowContext(ctx,
		"SELECT is_active FROM delegates WHERE id = ?", delegateID,
	).Scan(&info.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return port.DelegateInfo{}, domain.NotFound("delegate %s not found", delegateID)
	}
	if err != nil {
		return port.DelegateInfo{}, fmt.Errorf("query delegate %s: %w", delegateID, err)
	}
	return info, nil
}

func (d *MySQLDirectory) AffiliateExists(ctx context.Context, affiliateID string) (bool, error) {
	return d.exists(ctx, "SELECT 1 FROM affiliates WHERE id = ?", affiliateID)
}

func (d *MySQLDirectory) ChildBelongsTo(ctx context.Context, childID, affiliateID string) (bool, error) {
	return d.exists(ctx, "SELECT 1 FROM children WHERE id = ? AND affiliate_id = ?", childID, affiliateID)
}

func (d *MySQLDirectory) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("directory lookup: %w", err)
	}
	return true, nil
}
