package sales

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbooks/stockbooks/internal/platform/db"
)

// Repository persists customers and sales orders in PostgreSQL.
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
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, fn)
}

// CreateCustomer inserts a customer and returns its id.
func (r *Repository) CreateCustomer(ctx context.Context, c Customer) (int64, error) {
	q := db.From(ctx, r.pool)
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO customers (name, phone, email, total_orders, total_spent, created_at)
VALUES ($1,$2,$3,0,0,NOW()) RETURNING id`, c.Name, c.Phone, c.Email).Scan(&id)
	return id, err
}

// GetCustomer loads a customer by id.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	q := db.From(ctx, r.pool)
	var c Customer
	err := q.QueryRow(ctx, `SELECT id, name, COALESCE(phone,''), COALESCE(email,''), total_orders, total_spent, created_at FROM customers WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.TotalOrders, &c.TotalSpent, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrCustomerNotFound
		}
		return Customer{}, err
	}
	return c, nil
}

// UpdateCustomer updates contact fields.
func (r *Repository) UpdateCustomer(ctx context.Context, c Customer) error {
	q := db.From(ctx, r.pool)
	tag, err := q.Exec(ctx, `UPDATE customers SET name=$2, phone=$3, email=$4 WHERE id=$1`, c.ID, c.Name, c.Phone, c.Email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

// DeleteCustomer removes a customer row.
func (r *Repository) DeleteCustomer(ctx context.Context, id int64) error {
	q := db.From(ctx, r.pool)
	tag, err := q.Exec(ctx, `DELETE FROM customers WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

// ListCustomers lists customers by id.
func (r *Repository) ListCustomers(ctx context.Context) ([]Customer, error) {
	q := db.From(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT id, name, COALESCE(phone,''), COALESCE(email,''), total_orders, total_spent, created_at FROM customers ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	customers := []Customer{}
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.TotalOrders, &c.TotalSpent, &c.CreatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// CustomerOrderCount counts orders referencing a customer.
func (r *Repository) CustomerOrderCount(ctx context.Context, customerID int64) (int, error) {
	q := db.From(ctx, r.pool)
	var count int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM sales_orders WHERE customer_id=$1`, customerID).Scan(&count)
	return count, err
}

// IncrementCustomerStats bumps the customer's purchase aggregates.
func (r *Repository) IncrementCustomerStats(ctx context.Context, customerID int64, orders int64, spent float64) error {
	q := db.From(ctx, r.pool)
	tag, err := q.Exec(ctx, `UPDATE customers SET total_orders=total_orders+$2, total_spent=total_spent+$3 WHERE id=$1`,
		customerID, orders, spent)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

// InsertOrder stores a draft order with its lines.
func (r *Repository) InsertOrder(ctx context.Context, order Order) (int64, error) {
	q := db.From(ctx, r.pool)
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO sales_orders (order_number, customer_id, warehouse_id, status, note, total_items, total_amount, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		order.OrderNumber, order.CustomerID, order.WarehouseID, string(order.Status), order.Note, order.TotalItems, order.TotalAmount, nullInt(order.CreatedBy)).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, line := range order.Lines {
		if _, err := q.Exec(ctx, `INSERT INTO sales_order_lines (order_id, product_id, quantity, unit_price, serial_numbers)
VALUES ($1,$2,$3,$4,$5)`, id, line.ProductID, line.Quantity, line.UnitPrice, line.SerialNumbers); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// GetOrder loads an order with its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	q := db.From(ctx, r.pool)
	var order Order
	err := q.QueryRow(ctx, `SELECT id, order_number, customer_id, warehouse_id, status, COALESCE(note,''), total_items, total_amount, COALESCE(created_by,0), created_at, completed_at
FROM sales_orders WHERE id=$1`, id).
		Scan(&order.ID, &order.OrderNumber, &order.CustomerID, &order.WarehouseID, &order.Status, &order.Note, &order.TotalItems, &order.TotalAmount, &order.CreatedBy, &order.CreatedAt, &order.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, order_id, product_id, quantity, unit_price, serial_numbers FROM sales_order_lines WHERE order_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.SerialNumbers); err != nil {
			return Order{}, err
		}
		order.Lines = append(order.Lines, line)
	}
	return order, rows.Err()
}

// ListOrders lists order headers, newest first.
func (r *Repository) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, int, error) {
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
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM sales_orders
WHERE ($1=0 OR customer_id=$1) AND ($2='' OR status=$2)`, filter.CustomerID, string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT id, order_number, customer_id, warehouse_id, status, COALESCE(note,''), total_items, total_amount, COALESCE(created_by,0), created_at, completed_at
FROM sales_orders
WHERE ($1=0 OR customer_id=$1) AND ($2='' OR status=$2)
ORDER BY id DESC LIMIT $3 OFFSET $4`, filter.CustomerID, string(filter.Status), perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	orders := []Order{}
	for rows.Next() {
		var order Order
		if err := rows.Scan(&order.ID, &order.OrderNumber, &order.CustomerID, &order.WarehouseID, &order.Status, &order.Note, &order.TotalItems, &order.TotalAmount, &order.CreatedBy, &order.CreatedAt, &order.CompletedAt); err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

// DeleteOrder removes an order row together with its lines.
func (r *Repository) DeleteOrder(ctx context.Context, id int64) error {
	q := db.From(ctx, r.pool)
	if _, err := q.Exec(ctx, `DELETE FROM sales_order_lines WHERE order_id=$1`, id); err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `DELETE FROM sales_orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// SetStatus moves an order from one status to another. Returns false
// when the order was not in the expected state.
func (r *Repository) SetStatus(ctx context.Context, id int64, from []OrderStatus, to OrderStatus, completedAt *time.Time) (bool, error) {
	q := db.From(ctx, r.pool)
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	tag, err := q.Exec(ctx, `UPDATE sales_orders SET status=$2, completed_at=COALESCE($3, completed_at) WHERE id=$1 AND status=ANY($4)`,
		id, string(to), completedAt, states)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
