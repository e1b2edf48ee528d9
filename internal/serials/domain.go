// Package serials tracks individually identified units through their
// lifecycle. Every state change is appended to a movement log that is
// never rewritten.
package serials

import (
	"fmt"
	"time"

	"github.com/stockbooks/stockbooks/internal/shared"
)

// Status enumerates serial lifecycle states.
type Status string

const (
	StatusInStock  Status = "in_stock"
	StatusSold     Status = "sold"
	StatusWarranty Status = "warranty"
	StatusRepair   Status = "repair"
	StatusReturned Status = "returned"
	StatusScrapped Status = "scrapped"
)

// allowedTransitions lists the legal target states per current state.
// in_stock -> in_stock covers warehouse moves and re-entries. Scrapped
// is terminal.
var allowedTransitions = map[Status][]Status{
	StatusInStock:  {StatusInStock, StatusSold, StatusRepair},
	StatusSold:     {StatusReturned, StatusWarranty, StatusRepair},
	StatusWarranty: {StatusRepair, StatusSold},
	StatusRepair:   {StatusInStock, StatusScrapped},
	StatusReturned: {StatusInStock, StatusRepair},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to Status) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Item is one serialized unit. WarehouseID is zero once the unit has
// left stock.
type Item struct {
	ID            int64      `json:"id"`
	SerialNumber  string     `json:"serial_number"`
	IMEI          string     `json:"imei,omitempty"`
	ProductID     int64      `json:"product_id"`
	WarehouseID   int64      `json:"warehouse_id,omitempty"`
	Status        Status     `json:"status"`
	CostPrice     float64    `json:"cost_price"`
	CustomerID    int64      `json:"customer_id,omitempty"`
	SaleOrderID   int64      `json:"sale_order_id,omitempty"`
	WarrantyStart *time.Time `json:"warranty_start,omitempty"`
	WarrantyEnd   *time.Time `json:"warranty_end,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Movement is one append-only lifecycle record.
type Movement struct {
	ID              int64     `json:"id"`
	SerialID        int64     `json:"serial_id"`
	MovementType    string    `json:"movement_type"`
	FromWarehouseID int64     `json:"from_warehouse_id,omitempty"`
	ToWarehouseID   int64     `json:"to_warehouse_id,omitempty"`
	RefDocID        int64     `json:"ref_doc_id,omitempty"`
	RefDocNumber    string    `json:"ref_doc_number,omitempty"`
	ActorID         int64     `json:"actor_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Movement types recorded in the log.
const (
	MovementReceipt  = "receipt"
	MovementIssue    = "issue"
	MovementTransfer = "transfer"
	MovementSale     = "sale"
	MovementReturn   = "return"
)

// ListFilter filters serial listings. Search matches serial number
// and IMEI.
type ListFilter struct {
	ProductID   int64
	WarehouseID int64
	Status      Status
	Search      string
	Page        int
	PerPage     int
}

// Sentinel errors.
var (
	ErrNotFound  = fmt.Errorf("serials: serial %w", shared.ErrNotFound)
	ErrDuplicate = fmt.Errorf("serials: serial number already registered: %w", shared.ErrConflict)
)

// IllegalTransitionError reports a rejected state change.
type IllegalTransitionError struct {
	SerialNumber string
	From         Status
	To           Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("serials: illegal transition %s -> %s for %s", e.From, e.To, e.SerialNumber)
}

// Unwrap maps illegal transitions onto the conflict class.
func (e *IllegalTransitionError) Unwrap() error { return shared.ErrConflict }

// UnavailableError reports a serial that cannot be attached to a sale.
type UnavailableError struct {
	SerialNumber string
	Status       Status
	WarehouseID  int64
	WantedID     int64
}

func (e *UnavailableError) Error() string {
	if e.Status != StatusInStock {
		return fmt.Sprintf("serials: %s is %s, not in stock", e.SerialNumber, e.Status)
	}
	return fmt.Sprintf("serials: %s is in warehouse %d, not %d", e.SerialNumber, e.WarehouseID, e.WantedID)
}

// Unwrap maps unavailability onto the conflict class.
func (e *UnavailableError) Unwrap() error { return shared.ErrConflict }
