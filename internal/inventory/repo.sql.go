package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbooks/stockbooks/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL. Methods join an
// active transaction carried in the context, so document posting,
// serial transitions and audit rows commit as one unit.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ErrBalanceNotFound indicates missing balance row.
var ErrBalanceNotFound = errors.New("inventory: balance not found")

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, fn)
}

// GetProduct loads the catalog view of a product.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	q := db.From(ctx, r.pool)
	var p Product
	err := q.QueryRow(ctx, `SELECT id, name, cost_price, track_serial, warranty_months, stock_quantity FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.CostPrice, &p.TrackSerial, &p.WarrantyMonths, &p.StockQuantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// GetWarehouse loads a warehouse by id.
func (r *Repository) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	q := db.From(ctx, r.pool)
	var w Warehouse
	err := q.QueryRow(ctx, `SELECT id, name, address, active, created_at FROM warehouses WHERE id=$1`, id).
		Scan(&w.ID, &w.Name, &w.Address, &w.Active, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, ErrWarehouseNotFound
		}
		return Warehouse{}, err
	}
	return w, nil
}

// ListWarehouses lists all warehouses.
func (r *Repository) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	q := db.From(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT id, name, address, active, created_at FROM warehouses ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	warehouses := []Warehouse{}
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Name, &w.Address, &w.Active, &w.CreatedAt); err != nil {
			return nil, err
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, rows.Err()
}

// CreateWarehouse inserts a warehouse and returns its id.
func (r *Repository) CreateWarehouse(ctx context.Context, w Warehouse) (int64, error) {
	q := db.From(ctx, r.pool)
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO warehouses (name, address, active, created_at) VALUES ($1,$2,$3,NOW()) RETURNING id`,
		w.Name, w.Address, w.Active).Scan(&id)
	return id, err
}

// UpdateWarehouse updates name, address and active flag.
func (r *Repository) UpdateWarehouse(ctx context.Context, w Warehouse) error {
	q := db.From(ctx, r.pool)
	tag, err := q.Exec(ctx, `UPDATE warehouses SET name=$2, address=$3, active=$4 WHERE id=$1`,
		w.ID, w.Name, w.Address, w.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWarehouseNotFound
	}
	return nil
}

// DeleteWarehouse removes a warehouse row.
func (r *Repository) DeleteWarehouse(ctx context.Context, id int64) error {
	q := db.From(ctx, r.pool)
	tag, err := q.Exec(ctx, `DELETE FROM warehouses WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWarehouseNotFound
	}
	return nil
}

// WarehouseStockTotal sums current quantity held in a warehouse.
func (r *Repository) WarehouseStockTotal(ctx context.Context, warehouseID int64) (int64, error) {
	q := db.From(ctx, r.pool)
	var total int64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity),0) FROM stock_balances WHERE warehouse_id=$1`, warehouseID).Scan(&total)
	return total, err
}

// InsertDocument stores a draft document with its lines.
func (r *Repository) InsertDocument(ctx context.Context, doc Document) (int64, error) {
	q := db.From(ctx, r.pool)
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO inventory_docs (doc_number, doc_type, warehouse_id, dest_warehouse_id, status, note, total_items, total_value, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		doc.DocNumber, string(doc.DocType), doc.WarehouseID, nullInt(doc.DestWarehouseID), string(doc.Status), doc.Note, doc.TotalItems, doc.TotalValue, nullInt(doc.CreatedBy)).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, line := range doc.Lines {
		if _, err := q.Exec(ctx, `INSERT INTO inventory_doc_lines (document_id, product_id, quantity, unit_cost, serial_numbers)
VALUES ($1,$2,$3,$4,$5)`, id, line.ProductID, line.Quantity, line.UnitCost, line.SerialNumbers); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// GetDocument loads a document with its lines.
func (r *Repository) GetDocument(ctx context.Context, id int64) (Document, error) {
	q := db.From(ctx, r.pool)
	var doc Document
	var destWarehouse *int64
	err := q.QueryRow(ctx, `SELECT id, doc_number, doc_type, warehouse_id, dest_warehouse_id, status, note, total_items, total_value, created_by, created_at, posted_at
FROM inventory_docs WHERE id=$1`, id).
		Scan(&doc.ID, &doc.DocNumber, &doc.DocType, &doc.WarehouseID, &destWarehouse, &doc.Status, &doc.Note, &doc.TotalItems, &doc.TotalValue, &doc.CreatedBy, &doc.CreatedAt, &doc.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrDocNotFound
		}
		return Document{}, err
	}
	if destWarehouse != nil {
		doc.DestWarehouseID = *destWarehouse
	}
	rows, err := q.Query(ctx, `SELECT id, document_id, product_id, quantity, unit_cost, serial_numbers FROM inventory_doc_lines WHERE document_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Document{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.DocumentID, &line.ProductID, &line.Quantity, &line.UnitCost, &line.SerialNumbers); err != nil {
			return Document{}, err
		}
		doc.Lines = append(doc.Lines, line)
	}
	return doc, rows.Err()
}

// ListDocuments lists document headers, newest first.
func (r *Repository) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, int, error) {
	q := db.From(ctx, r.pool)
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_docs
WHERE ($1='' OR doc_type=$1) AND ($2='' OR status=$2)`, string(filter.DocType), string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT id, doc_number, doc_type, warehouse_id, dest_warehouse_id, status, note, total_items, total_value, created_by, created_at, posted_at
FROM inventory_docs
WHERE ($1='' OR doc_type=$1) AND ($2='' OR status=$2)
ORDER BY id DESC LIMIT $3 OFFSET $4`, string(filter.DocType), string(filter.Status), perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	docs := []Document{}
	for rows.Next() {
		var doc Document
		var destWarehouse *int64
		if err := rows.Scan(&doc.ID, &doc.DocNumber, &doc.DocType, &doc.WarehouseID, &destWarehouse, &doc.Status, &doc.Note, &doc.TotalItems, &doc.TotalValue, &doc.CreatedBy, &doc.CreatedAt, &doc.PostedAt); err != nil {
			return nil, 0, err
		}
		if destWarehouse != nil {
			doc.DestWarehouseID = *destWarehouse
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

// DeleteDocument removes a document row together with its lines.
func (r *Repository) DeleteDocument(ctx context.Context, id int64) error {
	q := db.From(ctx, r.pool)
	if _, err := q.Exec(ctx, `DELETE FROM inventory_doc_lines WHERE document_id=$1`, id); err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `DELETE FROM inventory_docs WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDocNotFound
	}
	return nil
}

// MarkPosted flips a draft document to posted. Returns false when the
// document was no longer draft, which signals a concurrent poster won.
func (r *Repository) MarkPosted(ctx context.Context, id int64, postedAt time.Time) (bool, error) {
	q := db.From(ctx, r.pool)
	tag, err := q.Exec(ctx, `UPDATE inventory_docs SET status='posted', posted_at=$2 WHERE id=$1 AND status='draft'`, id, postedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCancelled flips a draft document to cancelled.
func (r *Repository) MarkCancelled(ctx context.Context, id int64) (bool, error) {
	q := db.From(ctx, r.pool)
	tag, err := q.Exec(ctx, `UPDATE inventory_docs SET status='cancelled' WHERE id=$1 AND status='draft'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GetBalanceForUpdate locks and returns the balance row for the pair.
func (r *Repository) GetBalanceForUpdate(ctx context.Context, productID, warehouseID int64) (Balance, error) {
	q := db.From(ctx, r.pool)
	var bal Balance
	err := q.QueryRow(ctx, `SELECT product_id, warehouse_id, quantity, avg_cost, updated_at FROM stock_balances WHERE product_id=$1 AND warehouse_id=$2 FOR UPDATE`, productID, warehouseID).
		Scan(&bal.ProductID, &bal.WarehouseID, &bal.Quantity, &bal.AvgCost, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{ProductID: productID, WarehouseID: warehouseID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

// UpsertBalance writes the new balance state.
func (r *Repository) UpsertBalance(ctx context.Context, bal Balance) error {
	q := db.From(ctx, r.pool)
	_, err := q.Exec(ctx, `INSERT INTO stock_balances (product_id, warehouse_id, quantity, avg_cost, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (product_id, warehouse_id) DO UPDATE SET quantity=EXCLUDED.quantity, avg_cost=EXCLUDED.avg_cost, updated_at=NOW()`,
		bal.ProductID, bal.WarehouseID, bal.Quantity, bal.AvgCost)
	return err
}

// ListBalances lists balances matching the filter.
func (r *Repository) ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error) {
	q := db.From(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT product_id, warehouse_id, quantity, avg_cost, updated_at FROM stock_balances
WHERE ($1=0 OR product_id=$1) AND ($2=0 OR warehouse_id=$2)
ORDER BY product_id ASC, warehouse_id ASC`, filter.ProductID, filter.WarehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	balances := []Balance{}
	for rows.Next() {
		var bal Balance
		if err := rows.Scan(&bal.ProductID, &bal.WarehouseID, &bal.Quantity, &bal.AvgCost, &bal.UpdatedAt); err != nil {
			return nil, err
		}
		balances = append(balances, bal)
	}
	return balances, rows.Err()
}

// InsertLedgerEntry appends one stock ledger row.
func (r *Repository) InsertLedgerEntry(ctx context.Context, entry LedgerEntry) error {
	q := db.From(ctx, r.pool)
	_, err := q.Exec(ctx, `INSERT INTO stock_ledger (product_id, warehouse_id, document_id, doc_number, entry_type, quantity_change, unit_cost, quantity_after, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())`,
		entry.ProductID, entry.WarehouseID, entry.DocumentID, entry.DocNumber, entry.EntryType, entry.QuantityChange, entry.UnitCost, entry.QuantityAfter)
	return err
}

// ListLedger lists ledger entries matching the filter, oldest first.
func (r *Repository) ListLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	q := db.From(ctx, r.pool)
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := q.Query(ctx, `SELECT id, product_id, warehouse_id, document_id, doc_number, entry_type, quantity_change, unit_cost, quantity_after, created_at
FROM stock_ledger
WHERE ($1=0 OR product_id=$1) AND ($2=0 OR warehouse_id=$2)
AND created_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY id ASC LIMIT $5`, filter.ProductID, filter.WarehouseID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []LedgerEntry{}
	for rows.Next() {
		var entry LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.WarehouseID, &entry.DocumentID, &entry.DocNumber, &entry.EntryType, &entry.QuantityChange, &entry.UnitCost, &entry.QuantityAfter, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// SumBalanceByProduct totals quantity across warehouses for a product.
func (r *Repository) SumBalanceByProduct(ctx context.Context, productID int64) (int64, error) {
	q := db.From(ctx, r.pool)
	var total int64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity),0) FROM stock_balances WHERE product_id=$1`, productID).Scan(&total)
	return total, err
}

// UpdateProductStock writes the denormalized product counter.
func (r *Repository) UpdateProductStock(ctx context.Context, productID, quantity int64) error {
	q := db.From(ctx, r.pool)
	_, err := q.Exec(ctx, `UPDATE products SET stock_quantity=$2 WHERE id=$1`, productID, quantity)
	return err
}

// BalanceProductIDs lists every product with a balance row, for the
// full resync job.
func (r *Repository) BalanceProductIDs(ctx context.Context) ([]int64, error) {
	q := db.From(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT DISTINCT product_id FROM stock_balances ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
