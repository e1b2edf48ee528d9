package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbooks/stockbooks/internal/platform/db"
)

// Repository runs the read aggregations behind the report builders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AccountActivity sums posted journal lines per account. Date bounds
// are optional; header accounts never carry lines so they drop out
// naturally.
func (r *Repository) AccountActivity(ctx context.Context, from, to *time.Time) ([]AccountActivity, error) {
	q := db.From(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT a.id, a.code, a.name, a.type, COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id AND e.status = 'posted'
JOIN accounts a ON a.id = l.account_id
WHERE ($1::timestamptz IS NULL OR e.date >= $1) AND ($2::timestamptz IS NULL OR e.date <= $2)
GROUP BY a.id, a.code, a.name, a.type
ORDER BY a.code`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	activity := []AccountActivity{}
	for rows.Next() {
		var row AccountActivity
		if err := rows.Scan(&row.AccountID, &row.Code, &row.Name, &row.Type, &row.Debit, &row.Credit); err != nil {
			return nil, err
		}
		activity = append(activity, row)
	}
	return activity, rows.Err()
}

// ValuationRows reads current stock balances joined with product and
// warehouse names. warehouseID zero means all warehouses.
func (r *Repository) ValuationRows(ctx context.Context, warehouseID int64) ([]ValuationRow, error) {
	q := db.From(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT b.product_id, p.name, b.warehouse_id, w.name, b.quantity, b.avg_cost
FROM stock_balances b
JOIN products p ON p.id = b.product_id
JOIN warehouses w ON w.id = b.warehouse_id
WHERE ($1=0 OR b.warehouse_id=$1) AND b.quantity <> 0
ORDER BY p.name, w.name`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ValuationRow{}
	for rows.Next() {
		var row ValuationRow
		if err := rows.Scan(&row.ProductID, &row.ProductName, &row.WarehouseID, &row.WarehouseName, &row.Quantity, &row.AvgCost); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
