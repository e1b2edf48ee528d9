package serials

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbooks/stockbooks/internal/platform/db"
)

// Repository persists serial items in PostgreSQL. Methods join an
// active transaction carried in the context, so serial transitions
// commit together with the document or order that drives them.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context) error) error {
	if r == nil {
		return errors.New("serials repository not initialised")
	}
	return db.WithTx(ctx, r.pool, fn)
}

// Insert stores a new serial item. Duplicate serial numbers surface as
// ErrDuplicate via the unique index.
func (r *Repository) Insert(ctx context.Context, item Item) (int64, error) {
	q := db.From(ctx, r.pool)
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO serial_items (serial_number, imei, product_id, warehouse_id, status, cost_price, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id`,
		item.SerialNumber, nullStr(item.IMEI), item.ProductID, nullInt(item.WarehouseID), string(item.Status), item.CostPrice).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return id, nil
}

// GetForUpdate locks and returns the serial item by its number.
func (r *Repository) GetForUpdate(ctx context.Context, serialNumber string) (Item, error) {
	return r.get(ctx, serialNumber, true)
}

// Get returns the serial item by its number.
func (r *Repository) Get(ctx context.Context, serialNumber string) (Item, error) {
	return r.get(ctx, serialNumber, false)
}

func (r *Repository) get(ctx context.Context, serialNumber string, forUpdate bool) (Item, error) {
	q := db.From(ctx, r.pool)
	query := `SELECT id, serial_number, COALESCE(imei,''), product_id, COALESCE(warehouse_id,0), status, cost_price, COALESCE(customer_id,0), COALESCE(sale_order_id,0), warranty_start, warranty_end, created_at, updated_at
FROM serial_items WHERE serial_number=$1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var item Item
	err := q.QueryRow(ctx, query, serialNumber).
		Scan(&item.ID, &item.SerialNumber, &item.IMEI, &item.ProductID, &item.WarehouseID, &item.Status, &item.CostPrice, &item.CustomerID, &item.SaleOrderID, &item.WarrantyStart, &item.WarrantyEnd, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// Update writes the mutable state of a serial item.
func (r *Repository) Update(ctx context.Context, item Item) error {
	q := db.From(ctx, r.pool)
	tag, err := q.Exec(ctx, `UPDATE serial_items
SET warehouse_id=$2, status=$3, customer_id=$4, sale_order_id=$5, warranty_start=$6, warranty_end=$7, updated_at=NOW()
WHERE id=$1`,
		item.ID, nullInt(item.WarehouseID), string(item.Status), nullInt(item.CustomerID), nullInt(item.SaleOrderID), item.WarrantyStart, item.WarrantyEnd)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertMovement appends one lifecycle record.
func (r *Repository) InsertMovement(ctx context.Context, m Movement) error {
	q := db.From(ctx, r.pool)
	_, err := q.Exec(ctx, `INSERT INTO serial_movements (serial_id, movement_type, from_warehouse_id, to_warehouse_id, ref_doc_id, ref_doc_number, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())`,
		m.SerialID, m.MovementType, nullInt(m.FromWarehouseID), nullInt(m.ToWarehouseID), nullInt(m.RefDocID), m.RefDocNumber, nullInt(m.ActorID))
	return err
}

// ListMovements returns movements for a serial, oldest first.
func (r *Repository) ListMovements(ctx context.Context, serialID int64) ([]Movement, error) {
	q := db.From(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT id, serial_id, movement_type, COALESCE(from_warehouse_id,0), COALESCE(to_warehouse_id,0), COALESCE(ref_doc_id,0), COALESCE(ref_doc_number,''), COALESCE(actor_id,0), created_at
FROM serial_movements WHERE serial_id=$1 ORDER BY id ASC`, serialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.SerialID, &m.MovementType, &m.FromWarehouseID, &m.ToWarehouseID, &m.RefDocID, &m.RefDocNumber, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// List returns serial items matching the filter.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Item, int, error) {
	q := db.From(ctx, r.pool)
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	search := "%" + filter.Search + "%"
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM serial_items
WHERE ($1=0 OR product_id=$1) AND ($2=0 OR warehouse_id=$2) AND ($3='' OR status=$3)
AND ($4='%%' OR serial_number ILIKE $4 OR imei ILIKE $4)`,
		filter.ProductID, filter.WarehouseID, string(filter.Status), search).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT id, serial_number, COALESCE(imei,''), product_id, COALESCE(warehouse_id,0), status, cost_price, COALESCE(customer_id,0), COALESCE(sale_order_id,0), warranty_start, warranty_end, created_at, updated_at
FROM serial_items
WHERE ($1=0 OR product_id=$1) AND ($2=0 OR warehouse_id=$2) AND ($3='' OR status=$3)
AND ($4='%%' OR serial_number ILIKE $4 OR imei ILIKE $4)
ORDER BY id ASC LIMIT $5 OFFSET $6`,
		filter.ProductID, filter.WarehouseID, string(filter.Status), search, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.SerialNumber, &item.IMEI, &item.ProductID, &item.WarehouseID, &item.Status, &item.CostPrice, &item.CustomerID, &item.SaleOrderID, &item.WarrantyStart, &item.WarrantyEnd, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullStr(value string) any {
	if value == "" {
		return nil
	}
	return value
}
