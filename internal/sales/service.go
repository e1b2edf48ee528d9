package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stockbooks/stockbooks/internal/inventory"
	"github.com/stockbooks/stockbooks/internal/serials"
	"github.com/stockbooks/stockbooks/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context) error) error
	CreateCustomer(ctx context.Context, c Customer) (int64, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	UpdateCustomer(ctx context.Context, c Customer) error
	DeleteCustomer(ctx context.Context, id int64) error
	ListCustomers(ctx context.Context) ([]Customer, error)
	CustomerOrderCount(ctx context.Context, customerID int64) (int, error)
	IncrementCustomerStats(ctx context.Context, customerID int64, orders int64, spent float64) error
	InsertOrder(ctx context.Context, order Order) (int64, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, int, error)
	DeleteOrder(ctx context.Context, id int64) error
	SetStatus(ctx context.Context, id int64, from []OrderStatus, to OrderStatus, completedAt *time.Time) (bool, error)
}

// StockPort is the slice of the inventory engine that fulfillment
// drives: product lookup, soft availability reads and locked
// consumption at average cost.
type StockPort interface {
	GetProduct(ctx context.Context, id int64) (inventory.Product, error)
	Available(ctx context.Context, productID, warehouseID int64) (int64, error)
	Consume(ctx context.Context, productID, warehouseID, qty int64, ref inventory.ConsumeRef) (float64, error)
	RefreshProjection(ctx context.Context, productID int64)
}

// SerialPort is the slice of the serial registry fulfillment drives.
type SerialPort interface {
	CheckAvailable(ctx context.Context, serialNumber string, productID, warehouseID int64) error
	Sell(ctx context.Context, input serials.SellInput) (serials.Item, error)
}

// SequencerPort issues order numbers.
type SequencerPort interface {
	Next(ctx context.Context, kind string) (string, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// OrderCompletedEvent is emitted after an order commits.
type OrderCompletedEvent struct {
	OrderID     int64
	OrderNumber string
	CustomerID  int64
	Revenue     float64
	COGS        float64
	CompletedAt time.Time
	ActorID     int64
}

// IntegrationHandler receives completion events. Failures are logged
// and retried out of band; they never roll back the sale.
type IntegrationHandler interface {
	HandleOrderCompleted(ctx context.Context, evt OrderCompletedEvent) error
}

// Service coordinates customers and order fulfillment.
type Service struct {
	repo        RepositoryPort
	stock       StockPort
	serials     SerialPort
	seq         SequencerPort
	audit       AuditPort
	integration IntegrationHandler
	log         *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, stock StockPort, serialPort SerialPort, seq SequencerPort, audit AuditPort, integration IntegrationHandler, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, stock: stock, serials: serialPort, seq: seq, audit: audit, integration: integration, log: log}
}

// CreateCustomer adds a customer.
func (s *Service) CreateCustomer(ctx context.Context, c Customer) (Customer, error) {
	if c.Name == "" {
		return Customer{}, fmt.Errorf("sales: customer name required: %w", shared.ErrValidation)
	}
	id, err := s.repo.CreateCustomer(ctx, c)
	if err != nil {
		return Customer{}, err
	}
	return s.repo.GetCustomer(ctx, id)
}

// UpdateCustomer updates customer contact fields.
func (s *Service) UpdateCustomer(ctx context.Context, c Customer) (Customer, error) {
	if c.Name == "" {
		return Customer{}, fmt.Errorf("sales: customer name required: %w", shared.ErrValidation)
	}
	if err := s.repo.UpdateCustomer(ctx, c); err != nil {
		return Customer{}, err
	}
	return s.repo.GetCustomer(ctx, c.ID)
}

// DeleteCustomer removes a customer without order history.
func (s *Service) DeleteCustomer(ctx context.Context, id int64) error {
	count, err := s.repo.CustomerOrderCount(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrCustomerHasSales
	}
	return s.repo.DeleteCustomer(ctx, id)
}

// GetCustomer loads one customer.
func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// ListCustomers lists all customers.
func (s *Service) ListCustomers(ctx context.Context) ([]Customer, error) {
	return s.repo.ListCustomers(ctx)
}

// CreateOrder validates the input, assigns an order number and stores
// a draft. Stock is untouched until completion.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (Order, error) {
	if len(input.Lines) == 0 {
		return Order{}, fmt.Errorf("sales: order requires at least one line: %w", shared.ErrValidation)
	}
	if _, err := s.repo.GetCustomer(ctx, input.CustomerID); err != nil {
		return Order{}, err
	}

	order := Order{
		CustomerID:  input.CustomerID,
		WarehouseID: input.WarehouseID,
		Status:      StatusDraft,
		Note:        input.Note,
		CreatedBy:   input.ActorID,
	}
	for _, in := range input.Lines {
		if in.Quantity <= 0 {
			return Order{}, fmt.Errorf("sales: line quantity must be positive: %w", shared.ErrValidation)
		}
		if in.UnitPrice < 0 {
			return Order{}, fmt.Errorf("sales: line unit price must be >= 0: %w", shared.ErrValidation)
		}
		product, err := s.stock.GetProduct(ctx, in.ProductID)
		if err != nil {
			return Order{}, err
		}
		if len(in.SerialNumbers) > 0 {
			if !product.TrackSerial {
				return Order{}, fmt.Errorf("sales: product %d does not track serials: %w", in.ProductID, shared.ErrValidation)
			}
			if int64(len(in.SerialNumbers)) != in.Quantity {
				return Order{}, fmt.Errorf("sales: product %d lists %d serials for quantity %d: %w", in.ProductID, len(in.SerialNumbers), in.Quantity, shared.ErrValidation)
			}
		}
		order.Lines = append(order.Lines, OrderLine{
			ProductID:     in.ProductID,
			Quantity:      in.Quantity,
			UnitPrice:     in.UnitPrice,
			SerialNumbers: in.SerialNumbers,
		})
		order.TotalItems += in.Quantity
		order.TotalAmount += float64(in.Quantity) * in.UnitPrice
	}

	number, err := s.seq.Next(ctx, "sales_order")
	if err != nil {
		return Order{}, err
	}
	order.OrderNumber = number

	id, err := s.repo.InsertOrder(ctx, order)
	if err != nil {
		return Order{}, err
	}
	created, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, input.ActorID, "sales:create", created.ID, map[string]any{"order_number": created.OrderNumber})
	return created, nil
}

// ConfirmOrder moves a draft to confirmed after a soft availability
// check. The check narrows the window in which a confirmed order can
// later fail; the authoritative check still runs under lock at
// completion.
func (s *Service) ConfirmOrder(ctx context.Context, id, actorID int64) (Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if order.Status != StatusDraft {
		return Order{}, ErrOrderNotDraft
	}
	for _, line := range order.Lines {
		availableQty, err := s.stock.Available(ctx, line.ProductID, order.WarehouseID)
		if err != nil {
			return Order{}, err
		}
		if availableQty < line.Quantity {
			return Order{}, &inventory.InsufficientStockError{
				ProductID:   line.ProductID,
				WarehouseID: order.WarehouseID,
				Requested:   line.Quantity,
				Available:   availableQty,
			}
		}
		for _, sn := range line.SerialNumbers {
			if err := s.serials.CheckAvailable(ctx, sn, line.ProductID, order.WarehouseID); err != nil {
				return Order{}, err
			}
		}
	}
	ok, err := s.repo.SetStatus(ctx, id, []OrderStatus{StatusDraft}, StatusConfirmed, nil)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		return Order{}, ErrStatusChanged
	}
	order.Status = StatusConfirmed
	s.recordAudit(ctx, actorID, "sales:confirm", id, map[string]any{"order_number": order.OrderNumber})
	return order, nil
}

// CompleteOrder is the commit point of a sale: stock is drawn at
// average cost, serials transition to sold with warranty dates, and
// customer aggregates are bumped, all in one transaction. Completing
// an already completed order succeeds without re-applying effects.
func (s *Service) CompleteOrder(ctx context.Context, id, actorID int64) (Order, error) {
	var order Order
	var evt OrderCompletedEvent
	var alreadyDone bool
	productIDs := map[int64]struct{}{}

	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		loaded, err := s.repo.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		switch loaded.Status {
		case StatusCompleted:
			order = loaded
			alreadyDone = true
			return nil
		case StatusCancelled:
			return ErrOrderNotOpen
		case StatusDraft:
			return ErrOrderNotReady
		}

		now := time.Now().UTC()
		var revenue, cogs float64
		for _, line := range loaded.Lines {
			product, err := s.stock.GetProduct(ctx, line.ProductID)
			if err != nil {
				return err
			}
			productIDs[line.ProductID] = struct{}{}

			// cost basis is read under lock before the decrement
			basis, err := s.stock.Consume(ctx, line.ProductID, loaded.WarehouseID, line.Quantity, inventory.ConsumeRef{
				OrderID:     loaded.ID,
				OrderNumber: loaded.OrderNumber,
			})
			if err != nil {
				return err
			}
			cogs += float64(line.Quantity) * basis
			revenue += float64(line.Quantity) * line.UnitPrice

			for _, sn := range line.SerialNumbers {
				if _, err := s.serials.Sell(ctx, serials.SellInput{
					SerialNumber:   sn,
					WarehouseID:    loaded.WarehouseID,
					CustomerID:     loaded.CustomerID,
					SaleOrderID:    loaded.ID,
					OrderNumber:    loaded.OrderNumber,
					WarrantyMonths: product.WarrantyMonths,
					ActorID:        actorID,
				}); err != nil {
					return err
				}
			}
		}

		if err := s.repo.IncrementCustomerStats(ctx, loaded.CustomerID, 1, loaded.TotalAmount); err != nil {
			return err
		}
		ok, err := s.repo.SetStatus(ctx, id, []OrderStatus{StatusConfirmed}, StatusCompleted, &now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrStatusChanged
		}
		loaded.Status = StatusCompleted
		loaded.CompletedAt = &now
		order = loaded
		evt = OrderCompletedEvent{
			OrderID:     loaded.ID,
			OrderNumber: loaded.OrderNumber,
			CustomerID:  loaded.CustomerID,
			Revenue:     revenue,
			COGS:        cogs,
			CompletedAt: now,
			ActorID:     actorID,
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if alreadyDone {
		return order, nil
	}

	s.recordAudit(ctx, actorID, "sales:complete", order.ID, map[string]any{
		"order_number": order.OrderNumber,
		"total_amount": order.TotalAmount,
	})
	for productID := range productIDs {
		s.stock.RefreshProjection(ctx, productID)
	}
	// Journal posting is best effort, same trade-off as document
	// posting: the sale stays committed even when bookkeeping fails.
	if s.integration != nil {
		if err := s.integration.HandleOrderCompleted(ctx, evt); err != nil {
			s.log.Warn("journal posting for order failed", slog.String("order_number", order.OrderNumber), slog.Any("error", err))
		}
	}
	return order, nil
}

// CancelOrder cancels a draft or confirmed order. Completed orders
// cannot be cancelled.
func (s *Service) CancelOrder(ctx context.Context, id, actorID int64) (Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if order.Status == StatusCompleted || order.Status == StatusCancelled {
		return Order{}, ErrOrderNotOpen
	}
	ok, err := s.repo.SetStatus(ctx, id, []OrderStatus{StatusDraft, StatusConfirmed}, StatusCancelled, nil)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		return Order{}, ErrStatusChanged
	}
	order.Status = StatusCancelled
	s.recordAudit(ctx, actorID, "sales:cancel", id, map[string]any{"order_number": order.OrderNumber})
	return order, nil
}

// DeleteOrder removes a draft order.
func (s *Service) DeleteOrder(ctx context.Context, id, actorID int64) error {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if order.Status != StatusDraft {
		return ErrOrderNotDraft
	}
	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "sales:delete", id, map[string]any{"order_number": order.OrderNumber})
	return nil
}

// GetOrder loads one order with lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders lists order headers.
func (s *Service) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, shared.Pagination, error) {
	orders, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return orders, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sales_order",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
