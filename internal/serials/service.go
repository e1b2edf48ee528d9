package serials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stockbooks/stockbooks/internal/inventory"
	"github.com/stockbooks/stockbooks/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context) error) error
	Insert(ctx context.Context, item Item) (int64, error)
	Get(ctx context.Context, serialNumber string) (Item, error)
	GetForUpdate(ctx context.Context, serialNumber string) (Item, error)
	Update(ctx context.Context, item Item) error
	InsertMovement(ctx context.Context, m Movement) error
	ListMovements(ctx context.Context, serialID int64) ([]Movement, error)
	List(ctx context.Context, filter ListFilter) ([]Item, int, error)
}

// ProductPort resolves the catalog flags registration validates
// against.
type ProductPort interface {
	GetProduct(ctx context.Context, id int64) (inventory.Product, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the serial registry.
type Service struct {
	repo     RepositoryPort
	products ProductPort
	audit    AuditPort
	log      *slog.Logger
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, products ProductPort, audit AuditPort, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, products: products, audit: audit, log: log, now: time.Now}
}

// RegisterInput describes a unit entering stock.
type RegisterInput struct {
	SerialNumber string
	IMEI         string
	ProductID    int64
	WarehouseID  int64
	CostPrice    float64
	MovementType string
	RefDocID     int64
	RefDocNumber string
	ActorID      int64
}

// Register puts a serial into stock. A brand new number is inserted;
// a known number re-enters stock when its current state allows it
// (e.g. a returned unit), otherwise the registration is a conflict.
func (s *Service) Register(ctx context.Context, input RegisterInput) (Item, error) {
	if input.SerialNumber == "" {
		return Item{}, fmt.Errorf("serials: serial number required: %w", shared.ErrValidation)
	}
	if input.ProductID == 0 || input.WarehouseID == 0 {
		return Item{}, fmt.Errorf("serials: product and warehouse required: %w", shared.ErrValidation)
	}
	product, err := s.products.GetProduct(ctx, input.ProductID)
	if err != nil {
		return Item{}, fmt.Errorf("serials: register %s: %w", input.SerialNumber, err)
	}
	if !product.TrackSerial {
		return Item{}, fmt.Errorf("serials: product %d does not track serials: %w", input.ProductID, shared.ErrValidation)
	}
	movementType := input.MovementType
	if movementType == "" {
		movementType = MovementReceipt
	}

	var registered Item
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetForUpdate(ctx, input.SerialNumber)
		switch {
		case errors.Is(err, ErrNotFound):
			item := Item{
				SerialNumber: input.SerialNumber,
				IMEI:         input.IMEI,
				ProductID:    input.ProductID,
				WarehouseID:  input.WarehouseID,
				Status:       StatusInStock,
				CostPrice:    input.CostPrice,
			}
			id, err := s.repo.Insert(ctx, item)
			if err != nil {
				return err
			}
			item.ID = id
			registered = item
		case err != nil:
			return err
		default:
			if existing.ProductID != input.ProductID {
				return ErrDuplicate
			}
			if existing.Status == StatusInStock {
				return ErrDuplicate
			}
			if !CanTransition(existing.Status, StatusInStock) {
				return &IllegalTransitionError{SerialNumber: input.SerialNumber, From: existing.Status, To: StatusInStock}
			}
			existing.Status = StatusInStock
			existing.WarehouseID = input.WarehouseID
			existing.CustomerID = 0
			existing.SaleOrderID = 0
			existing.WarrantyStart = nil
			existing.WarrantyEnd = nil
			if err := s.repo.Update(ctx, existing); err != nil {
				return err
			}
			registered = existing
		}
		return s.repo.InsertMovement(ctx, Movement{
			SerialID:      registered.ID,
			MovementType:  movementType,
			ToWarehouseID: input.WarehouseID,
			RefDocID:      input.RefDocID,
			RefDocNumber:  input.RefDocNumber,
			ActorID:       input.ActorID,
		})
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, input.ActorID, "serial:register", registered.SerialNumber, map[string]any{
		"product_id":   registered.ProductID,
		"warehouse_id": input.WarehouseID,
	})
	return registered, nil
}

// MovementRef links a transition to the document or order driving it.
type MovementRef struct {
	MovementType string
	RefDocID     int64
	RefDocNumber string
	ActorID      int64
}

// Issue moves an in-stock serial out of the given warehouse without a
// sale linkage (warehouse issue documents).
func (s *Service) Issue(ctx context.Context, serialNumber string, warehouseID int64, ref MovementRef) error {
	return s.repo.WithTx(ctx, func(ctx context.Context) error {
		item, err := s.repo.GetForUpdate(ctx, serialNumber)
		if err != nil {
			return err
		}
		if err := available(item, warehouseID); err != nil {
			return err
		}
		from := item.WarehouseID
		item.Status = StatusSold
		item.WarehouseID = 0
		if err := s.repo.Update(ctx, item); err != nil {
			return err
		}
		return s.repo.InsertMovement(ctx, Movement{
			SerialID:        item.ID,
			MovementType:    MovementIssue,
			FromWarehouseID: from,
			RefDocID:        ref.RefDocID,
			RefDocNumber:    ref.RefDocNumber,
			ActorID:         ref.ActorID,
		})
	})
}

// Transfer relocates an in-stock serial to another warehouse.
func (s *Service) Transfer(ctx context.Context, serialNumber string, fromWarehouse, toWarehouse int64, ref MovementRef) error {
	return s.repo.WithTx(ctx, func(ctx context.Context) error {
		item, err := s.repo.GetForUpdate(ctx, serialNumber)
		if err != nil {
			return err
		}
		if err := available(item, fromWarehouse); err != nil {
			return err
		}
		item.WarehouseID = toWarehouse
		if err := s.repo.Update(ctx, item); err != nil {
			return err
		}
		return s.repo.InsertMovement(ctx, Movement{
			SerialID:        item.ID,
			MovementType:    MovementTransfer,
			FromWarehouseID: fromWarehouse,
			ToWarehouseID:   toWarehouse,
			RefDocID:        ref.RefDocID,
			RefDocNumber:    ref.RefDocNumber,
			ActorID:         ref.ActorID,
		})
	})
}

// SellInput describes a sale-driven transition.
type SellInput struct {
	SerialNumber   string
	WarehouseID    int64
	CustomerID     int64
	SaleOrderID    int64
	OrderNumber    string
	WarrantyMonths int
	ActorID        int64
}

// Sell transitions an in-stock serial to sold, stamping warranty dates
// and the sale linkage.
func (s *Service) Sell(ctx context.Context, input SellInput) (Item, error) {
	var sold Item
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		item, err := s.repo.GetForUpdate(ctx, input.SerialNumber)
		if err != nil {
			return err
		}
		if err := available(item, input.WarehouseID); err != nil {
			return err
		}
		from := item.WarehouseID
		now := s.now().UTC()
		item.Status = StatusSold
		item.WarehouseID = 0
		item.CustomerID = input.CustomerID
		item.SaleOrderID = input.SaleOrderID
		if input.WarrantyMonths > 0 {
			end := now.AddDate(0, input.WarrantyMonths, 0)
			item.WarrantyStart = &now
			item.WarrantyEnd = &end
		}
		if err := s.repo.Update(ctx, item); err != nil {
			return err
		}
		sold = item
		return s.repo.InsertMovement(ctx, Movement{
			SerialID:        item.ID,
			MovementType:    MovementSale,
			FromWarehouseID: from,
			RefDocID:        input.SaleOrderID,
			RefDocNumber:    input.OrderNumber,
			ActorID:         input.ActorID,
		})
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, input.ActorID, "serial:sell", sold.SerialNumber, map[string]any{
		"customer_id":   input.CustomerID,
		"sale_order_id": input.SaleOrderID,
	})
	return sold, nil
}

// TransitionInput describes a manual lifecycle step (repair flow).
type TransitionInput struct {
	WarehouseID  int64
	RefDocNumber string
	ActorID      int64
}

// Transition applies a manual state change, used by the repair and
// warranty workflow. Unlisted transitions are rejected.
func (s *Service) Transition(ctx context.Context, serialNumber string, to Status, input TransitionInput) (Item, error) {
	var updated Item
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		item, err := s.repo.GetForUpdate(ctx, serialNumber)
		if err != nil {
			return err
		}
		if !CanTransition(item.Status, to) {
			return &IllegalTransitionError{SerialNumber: serialNumber, From: item.Status, To: to}
		}
		from := item.WarehouseID
		movementType := MovementReturn
		switch to {
		case StatusInStock:
			if input.WarehouseID == 0 {
				return fmt.Errorf("serials: warehouse required to return a unit to stock: %w", shared.ErrValidation)
			}
			item.WarehouseID = input.WarehouseID
		case StatusScrapped, StatusRepair, StatusWarranty, StatusReturned:
			item.WarehouseID = 0
		}
		item.Status = to
		if err := s.repo.Update(ctx, item); err != nil {
			return err
		}
		updated = item
		return s.repo.InsertMovement(ctx, Movement{
			SerialID:        item.ID,
			MovementType:    movementType,
			FromWarehouseID: from,
			ToWarehouseID:   item.WarehouseID,
			RefDocNumber:    input.RefDocNumber,
			ActorID:         input.ActorID,
		})
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, input.ActorID, "serial:transition", serialNumber, map[string]any{"to": string(to)})
	return updated, nil
}

// CheckAvailable verifies a serial can be attached to a sale from the
// given warehouse. Read-only; the authoritative check re-runs under
// lock at completion.
func (s *Service) CheckAvailable(ctx context.Context, serialNumber string, productID, warehouseID int64) error {
	item, err := s.repo.Get(ctx, serialNumber)
	if err != nil {
		return err
	}
	if item.ProductID != productID {
		return fmt.Errorf("serials: %s belongs to product %d, not %d: %w", serialNumber, item.ProductID, productID, shared.ErrValidation)
	}
	return available(item, warehouseID)
}

// Get returns one serial item.
func (s *Service) Get(ctx context.Context, serialNumber string) (Item, error) {
	return s.repo.Get(ctx, serialNumber)
}

// Movements returns the lifecycle log of a serial, oldest first.
func (s *Service) Movements(ctx context.Context, serialNumber string) ([]Movement, error) {
	item, err := s.repo.Get(ctx, serialNumber)
	if err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, item.ID)
}

// List returns serials matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Item, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func available(item Item, warehouseID int64) error {
	if item.Status != StatusInStock {
		return &UnavailableError{SerialNumber: item.SerialNumber, Status: item.Status}
	}
	if warehouseID != 0 && item.WarehouseID != warehouseID {
		return &UnavailableError{SerialNumber: item.SerialNumber, Status: item.Status, WarehouseID: item.WarehouseID, WantedID: warehouseID}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, serialNumber string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "serial",
		EntityID: serialNumber,
		Meta:     meta,
	})
}
