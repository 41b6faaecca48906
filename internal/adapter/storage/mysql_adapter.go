package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
	"github.com/rl1809/benefit-ledger/internal/port"
)

var ErrOptimisticLock = errors.New("optimistic lock conflict")

const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errDuplicateEntry  = 1062
	errNoReferencedRow = 1452
	errCheckConstraint = 3819
)

const (
	benefitColumns    = "id, name, category, age_label, age_min, age_max, total_stock, unassigned_stock, is_available, status, version, created_at, updated_at"
	allocationColumns = "delegate_id, benefit_id, assigned_quantity, remaining_quantity, assigned_at, updated_at"
	deliveryColumns   = "id, benefit_id, delegate_id, recipient_type, recipient_id, parent_affiliate_id, notes, actor_id, delivered_at"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// MySQLAdapter is the LedgerStore backed by MySQL. Transactions use
// REPEATABLE READ with locking reads on the rows they mutate.
type MySQLAdapter struct {
	mysqlReader
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{mysqlReader: mysqlReader{q: db}, db: db}
}

func (m *MySQLAdapter) RunInTx(ctx context.Context, fn func(ctx context.Context, tx port.LedgerTx) error) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return classify(err, "begin tx")
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlTx{mysqlReader{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(err, "commit tx")
	}
	return nil
}

func (m *MySQLAdapter) ReadSnapshot(ctx context.Context, fn func(ctx context.Context, r port.LedgerReader) error) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return classify(err, "begin snapshot")
	}
	defer tx.Rollback()

	if err := fn(ctx, mysqlReader{q: tx}); err != nil {
		return err
	}
	return classify(tx.Commit(), "end snapshot")
}

type mysqlReader struct {
	q queryer
}

func (r mysqlReader) GetBenefit(ctx context.Context, benefitID string) (domain.Benefit, error) {
	return r.benefit(ctx, benefitID, "")
}

func (r mysqlReader) benefit(ctx context.Context, benefitID, lock string) (domain.Benefit, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+benefitColumns+` FROM benefits WHERE id = ?`+lock, benefitID)
	b, err := scanBenefit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Benefit{}, domain.NotFound("benefit %s not found", benefitID)
	}
	if err != nil {
		return domain.Benefit{}, classify(err, "query benefit")
	}
	return b, nil
}

func (r mysqlReader) ListBenefits(ctx context.Context) ([]domain.Benefit, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+benefitColumns+` FROM benefits ORDER BY created_at, id`)
	if err != nil {
		return nil, classify(err, "query benefits")
	}
	defer rows.Close()

	var out []domain.Benefit
	for rows.Next() {
		b, err := scanBenefit(rows)
		if err != nil {
			return nil, classify(err, "scan benefit")
		}
		out = append(out, b)
	}
	return out, classify(rows.Err(), "iterate benefits")
}

func (r mysqlReader) GetAllocation(ctx context.Context, delegateID, benefitID string) (domain.Allocation, error) {
	return r.allocation(ctx, delegateID, benefitID, "")
}

func (r mysqlReader) allocation(ctx context.Context, delegateID, benefitID, lock string) (domain.Allocation, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+allocationColumns+`
		FROM delegate_allocations WHERE delegate_id = ? AND benefit_id = ?`+lock,
		delegateID, benefitID,
	)
	a, err := scanAllocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewAllocation(delegateID, benefitID), nil
	}
	if err != nil {
		return domain.Allocation{}, classify(err, "query allocation")
	}
	return a, nil
}

func (r mysqlReader) ListAllocationsByDelegate(ctx context.Context, delegateID string) ([]domain.Allocation, error) {
	return r.allocations(ctx, `WHERE delegate_id = ? ORDER BY benefit_id`, delegateID)
}

func (r mysqlReader) ListAllocationsByBenefit(ctx context.Context, benefitID string) ([]domain.Allocation, error) {
	return r.allocations(ctx, `WHERE benefit_id = ? ORDER BY delegate_id`, benefitID)
}

func (r mysqlReader) allocations(ctx context.Context, where string, arg string) ([]domain.Allocation, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+allocationColumns+` FROM delegate_allocations `+where, arg)
	if err != nil {
		return nil, classify(err, "query allocations")
	}
	defer rows.Close()

	var out []domain.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, classify(err, "scan allocation")
		}
		out = append(out, a)
	}
	return out, classify(rows.Err(), "iterate allocations")
}

func (r mysqlReader) GetDelivery(ctx context.Context, deliveryID string) (domain.Delivery, error) {
	return r.delivery(ctx, deliveryID, "")
}

func (r mysqlReader) delivery(ctx context.Context, deliveryID, lock string) (domain.Delivery, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+deliveryColumns+` FROM benefit_deliveries WHERE id = ?`+lock, deliveryID)
	d, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Delivery{}, domain.NotFound("delivery %s not found", deliveryID)
	}
	if err != nil {
		return domain.Delivery{}, classify(err, "query delivery")
	}
	return d, nil
}

func (r mysqlReader) ListDeliveries(ctx context.Context, filter domain.DeliveryFilter) ([]domain.Delivery, error) {
	var (
		conds []string
		args  []any
	)
	add := func(column, value string) {
		if value != "" {
			conds = append(conds, column+" = ?")
			args = append(args, value)
		}
	}
	add("delegate_id", filter.DelegateID)
	add("benefit_id", filter.BenefitID)
	add("recipient_type", string(filter.RecipientType))
	add("recipient_id", filter.RecipientID)

	query := `SELECT ` + deliveryColumns + ` FROM benefit_deliveries`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY delivered_at, id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "query deliveries")
	}
	defer rows.Close()

	var out []domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, classify(err, "scan delivery")
		}
		out = append(out, d)
	}
	return out, classify(rows.Err(), "iterate deliveries")
}

type mysqlTx struct {
	mysqlReader
}

func (t *mysqlTx) InsertBenefit(ctx context.Context, b domain.Benefit) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO benefits (`+benefitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Category, b.AgeRange.Label, b.AgeRange.Min, b.AgeRange.Max,
		b.TotalStock, b.UnassignedStock, b.Available, b.Status, b.Version,
		b.CreatedAt, b.UpdatedAt,
	)
	return classify(err, "insert benefit")
}

func (t *mysqlTx) LockBenefit(ctx context.Context, benefitID string) (domain.Benefit, error) {
	return t.benefit(ctx, benefitID, " FOR UPDATE")
}

func (t *mysqlTx) UpdateBenefit(ctx context.Context, b domain.Benefit) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE benefits
		SET name = ?, category = ?, age_label = ?, age_min = ?, age_max = ?,
			total_stock = ?, unassigned_stock = ?, is_available = ?, status = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		b.Name, b.Category, b.AgeRange.Label, b.AgeRange.Min, b.AgeRange.Max,
		b.TotalStock, b.UnassignedStock, b.Available, b.Status,
		b.UpdatedAt, b.ID, b.Version,
	)
	if err != nil {
		return classify(err, "update benefit")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.Busy(ErrOptimisticLock, "benefit %s changed concurrently", b.ID)
	}
	return nil
}

func (t *mysqlTx) LockAllocation(ctx context.Context, delegateID, benefitID string) (domain.Allocation, error) {
	return t.allocation(ctx, delegateID, benefitID, " FOR UPDATE")
}

func (t *mysqlTx) SaveAllocation(ctx context.Context, a domain.Allocation) error {
	if a.IsZero() {
		_, err := t.q.ExecContext(ctx, `
			DELETE FROM delegate_allocations WHERE delegate_id = ? AND benefit_id = ?`,
			a.DelegateID, a.BenefitID,
		)
		return classify(err, "delete allocation")
	}

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO delegate_allocations (`+allocationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			assigned_quantity = VALUES(assigned_quantity),
			remaining_quantity = VALUES(remaining_quantity),
			assigned_at = VALUES(assigned_at),
			updated_at = VALUES(updated_at)`,
		a.DelegateID, a.BenefitID, a.AssignedQuantity, a.RemainingQuantity, a.AssignedAt, a.UpdatedAt,
	)
	return classify(err, "save allocation")
}

func (t *mysqlTx) OutstandingUnits(ctx context.Context, benefitID string) (int, error) {
	var total int
	err := t.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(remaining_quantity), 0)
		FROM delegate_allocations WHERE benefit_id = ? FOR SHARE`, benefitID,
	).Scan(&total)
	if err != nil {
		return 0, classify(err, "sum outstanding units")
	}
	return total, nil
}

func (t *mysqlTx) InsertDelivery(ctx context.Context, d domain.Delivery) error {
	var parent sql.NullString
	if d.Recipient.ParentAffiliateID != "" {
		parent = sql.NullString{String: d.Recipient.ParentAffiliateID, Valid: true}
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO benefit_deliveries (`+deliveryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.BenefitID, d.DelegateID, d.Recipient.Type, d.Recipient.ID, parent,
		d.Notes, d.ActorID, d.DeliveredAt,
	)
	return classify(err, "insert delivery")
}

func (t *mysqlTx) LockDelivery(ctx context.Context, deliveryID string) (domain.Delivery, error) {
	return t.delivery(ctx, deliveryID, " FOR UPDATE")
}

func (t *mysqlTx) DeleteDelivery(ctx context.Context, deliveryID string) error {
	result, err := t.q.ExecContext(ctx, `DELETE FROM benefit_deliveries WHERE id = ?`, deliveryID)
	if err != nil {
		return classify(err, "delete delivery")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.NotFound("delivery %s not found", deliveryID)
	}
	return nil
}

func scanBenefit(s rowScanner) (domain.Benefit, error) {
	var b domain.Benefit
	err := s.Scan(
		&b.ID, &b.Name, &b.Category, &b.AgeRange.Label, &b.AgeRange.Min, &b.AgeRange.Max,
		&b.TotalStock, &b.UnassignedStock, &b.Available, &b.Status, &b.Version,
		&b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

func scanAllocation(s rowScanner) (domain.Allocation, error) {
	var a domain.Allocation
	err := s.Scan(&a.DelegateID, &a.BenefitID, &a.AssignedQuantity, &a.RemainingQuantity, &a.AssignedAt, &a.UpdatedAt)
	return a, err
}

func scanDelivery(s rowScanner) (domain.Delivery, error) {
	var (
		d      domain.Delivery
		parent sql.NullString
	)
	err := s.Scan(
		&d.ID, &d.BenefitID, &d.DelegateID, &d.Recipient.Type, &d.Recipient.ID, &parent,
		&d.Notes, &d.ActorID, &d.DeliveredAt,
	)
	d.Recipient.ParentAffiliateID = parent.String
	return d, err
}

// classify maps driver failures onto the ledger error taxonomy. nil stays nil.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var derr *domain.Error
	if errors.As(err, &derr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return contextError(err, op)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errLockWaitTimeout, errDeadlock:
			return domain.Busy(err, "%s: row lock contention", op)
		case errDuplicateEntry:
			return domain.Conflict("%s: record already exists", op)
		case errNoReferencedRow:
			return domain.NotFound("%s: referenced record not found", op)
		case errCheckConstraint:
			return domain.Corruption("%s: stock constraint violated: %s", op, myErr.Message)
		}
	}
	return domain.Internal(err, "%s", op)
}

// Ping checks the connection; used by the health endpoint.
func (m *MySQLAdapter) Ping(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	return nil
}
