package inventory

import (
	"fmt"
	"time"

	"github.com/stockbooks/stockbooks/internal/shared"
)

// DocType enumerates supported warehouse document kinds.
type DocType string

const (
	DocTypeReceipt    DocType = "receipt"
	DocTypeIssue      DocType = "issue"
	DocTypeTransfer   DocType = "transfer"
	DocTypeAdjustment DocType = "adjustment"
	DocTypeReturn     DocType = "return"
)

// Valid reports whether t is a known document type.
func (t DocType) Valid() bool {
	switch t {
	case DocTypeReceipt, DocTypeIssue, DocTypeTransfer, DocTypeAdjustment, DocTypeReturn:
		return true
	}
	return false
}

// DocStatus enumerates document lifecycle states. Posted is terminal.
type DocStatus string

const (
	DocStatusDraft     DocStatus = "draft"
	DocStatusPosted    DocStatus = "posted"
	DocStatusCancelled DocStatus = "cancelled"
)

// Document is a warehouse transaction header.
type Document struct {
	ID              int64      `json:"id"`
	DocNumber       string     `json:"doc_number"`
	DocType         DocType    `json:"doc_type"`
	WarehouseID     int64      `json:"warehouse_id"`
	DestWarehouseID int64      `json:"dest_warehouse_id,omitempty"`
	Status          DocStatus  `json:"status"`
	Note            string     `json:"note,omitempty"`
	TotalItems      int64      `json:"total_items"`
	TotalValue      float64    `json:"total_value"`
	Lines           []Line     `json:"lines"`
	CreatedBy       int64      `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	PostedAt        *time.Time `json:"posted_at,omitempty"`
}

// Line is one product movement within a document.
type Line struct {
	ID            int64    `json:"id"`
	DocumentID    int64    `json:"document_id"`
	ProductID     int64    `json:"product_id"`
	Quantity      int64    `json:"quantity"`
	UnitCost      float64  `json:"unit_cost"`
	SerialNumbers []string `json:"serial_numbers,omitempty"`
}

// Balance summarises stock per (product, warehouse).
type Balance struct {
	ProductID   int64     `json:"product_id"`
	WarehouseID int64     `json:"warehouse_id"`
	Quantity    int64     `json:"quantity"`
	AvgCost     float64   `json:"avg_cost"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LedgerEntry is one append-only stock movement record.
type LedgerEntry struct {
	ID             int64     `json:"id"`
	ProductID      int64     `json:"product_id"`
	WarehouseID    int64     `json:"warehouse_id"`
	DocumentID     int64     `json:"document_id"`
	DocNumber      string    `json:"doc_number"`
	EntryType      string    `json:"entry_type"`
	QuantityChange int64     `json:"quantity_change"`
	UnitCost       float64   `json:"unit_cost"`
	QuantityAfter  int64     `json:"quantity_after"`
	CreatedAt      time.Time `json:"created_at"`
}

// Ledger entry types. Transfers write a mirrored pair.
const (
	EntryTransferOut = "transfer_out"
	EntryTransferIn  = "transfer_in"
)

// Warehouse is a stock location.
type Warehouse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is the catalog view this engine consumes. StockQuantity is a
// denormalized projection over Balance rows, refreshed after postings.
type Product struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	CostPrice      float64 `json:"cost_price"`
	TrackSerial    bool    `json:"track_serial"`
	WarrantyMonths int     `json:"warranty_months"`
	StockQuantity  int64   `json:"stock_quantity"`
}

// CreateDocumentInput describes a draft document.
type CreateDocumentInput struct {
	DocType         DocType           `json:"doc_type" validate:"required"`
	WarehouseID     int64             `json:"warehouse_id" validate:"required"`
	DestWarehouseID int64             `json:"dest_warehouse_id"`
	Note            string            `json:"note"`
	Lines           []CreateLineInput `json:"lines" validate:"required,min=1,dive"`
	ActorID         int64             `json:"-"`
}

// CreateLineInput is one requested line.
type CreateLineInput struct {
	ProductID     int64    `json:"product_id" validate:"required"`
	Quantity      int64    `json:"quantity" validate:"required,gt=0"`
	UnitCost      float64  `json:"unit_cost" validate:"gte=0"`
	SerialNumbers []string `json:"serial_numbers"`
}

// BalanceFilter filters balance listings.
type BalanceFilter struct {
	ProductID   int64
	WarehouseID int64
}

// LedgerFilter filters ledger listings.
type LedgerFilter struct {
	ProductID   int64
	WarehouseID int64
	From        time.Time
	To          time.Time
	Limit       int
}

// DocumentFilter filters document listings.
type DocumentFilter struct {
	DocType DocType
	Status  DocStatus
	Page    int
	PerPage int
}

// Sentinel errors for document and balance operations.
var (
	ErrDocNotFound       = fmt.Errorf("inventory: document %w", shared.ErrNotFound)
	ErrWarehouseNotFound = fmt.Errorf("inventory: warehouse %w", shared.ErrNotFound)
	ErrProductNotFound   = fmt.Errorf("inventory: product %w", shared.ErrNotFound)
	ErrDocNotDraft       = fmt.Errorf("inventory: document is not draft: %w", shared.ErrConflict)
	ErrDocCancelled      = fmt.Errorf("inventory: document is cancelled: %w", shared.ErrConflict)
	ErrWarehouseInUse    = fmt.Errorf("inventory: warehouse holds stock: %w", shared.ErrConflict)
	ErrStatusChanged     = fmt.Errorf("inventory: document status changed concurrently: %w", shared.ErrConcurrency)
)

// InsufficientStockError carries the product and quantities involved so
// callers can act on the shortfall.
type InsufficientStockError struct {
	ProductID   int64
	WarehouseID int64
	Requested   int64
	Available   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for product %d in warehouse %d: requested %d, available %d",
		e.ProductID, e.WarehouseID, e.Requested, e.Available)
}

// Unwrap maps the shortfall onto the conflict class.
func (e *InsufficientStockError) Unwrap() error { return shared.ErrConflict }
