package sales

import (
	"fmt"
	"time"

	"github.com/stockbooks/stockbooks/internal/shared"
)

// OrderStatus enumerates order lifecycle states. Completed and
// cancelled are terminal.
type OrderStatus string

const (
	StatusDraft     OrderStatus = "draft"
	StatusConfirmed OrderStatus = "confirmed"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
)

// Customer is the buyer record with running purchase aggregates.
type Customer struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	TotalOrders int64     `json:"total_orders"`
	TotalSpent  float64   `json:"total_spent"`
	CreatedAt   time.Time `json:"created_at"`
}

// Order is a sales order header.
type Order struct {
	ID          int64       `json:"id"`
	OrderNumber string      `json:"order_number"`
	CustomerID  int64       `json:"customer_id"`
	WarehouseID int64       `json:"warehouse_id"`
	Status      OrderStatus `json:"status"`
	Note        string      `json:"note,omitempty"`
	TotalItems  int64       `json:"total_items"`
	TotalAmount float64     `json:"total_amount"`
	Lines       []OrderLine `json:"lines"`
	CreatedBy   int64       `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// OrderLine is one product position on an order.
type OrderLine struct {
	ID            int64    `json:"id"`
	OrderID       int64    `json:"order_id"`
	ProductID     int64    `json:"product_id"`
	Quantity      int64    `json:"quantity"`
	UnitPrice     float64  `json:"unit_price"`
	SerialNumbers []string `json:"serial_numbers,omitempty"`
}

// CreateOrderInput describes a new draft order.
type CreateOrderInput struct {
	CustomerID  int64                  `json:"customer_id" validate:"required"`
	WarehouseID int64                  `json:"warehouse_id" validate:"required"`
	Note        string                 `json:"note"`
	Lines       []CreateOrderLineInput `json:"lines" validate:"required,min=1,dive"`
	ActorID     int64                  `json:"-"`
}

// CreateOrderLineInput is one requested line.
type CreateOrderLineInput struct {
	ProductID     int64    `json:"product_id" validate:"required"`
	Quantity      int64    `json:"quantity" validate:"required,gt=0"`
	UnitPrice     float64  `json:"unit_price" validate:"gte=0"`
	SerialNumbers []string `json:"serial_numbers"`
}

// OrderFilter filters order listings.
type OrderFilter struct {
	CustomerID int64
	Status     OrderStatus
	Page       int
	PerPage    int
}

// Sentinel errors.
var (
	ErrOrderNotFound    = fmt.Errorf("sales: order %w", shared.ErrNotFound)
	ErrCustomerNotFound = fmt.Errorf("sales: customer %w", shared.ErrNotFound)
	ErrOrderNotDraft    = fmt.Errorf("sales: order is not draft: %w", shared.ErrConflict)
	ErrOrderNotOpen     = fmt.Errorf("sales: order is already closed: %w", shared.ErrConflict)
	ErrOrderNotReady    = fmt.Errorf("sales: order must be confirmed before completion: %w", shared.ErrConflict)
	ErrCustomerHasSales = fmt.Errorf("sales: customer has orders: %w", shared.ErrConflict)
	ErrStatusChanged    = fmt.Errorf("sales: order status changed concurrently: %w", shared.ErrConcurrency)
)
