package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stockbooks/stockbooks/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context) error) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetWarehouse(ctx context.Context, id int64) (Warehouse, error)
	ListWarehouses(ctx context.Context) ([]Warehouse, error)
	CreateWarehouse(ctx context.Context, w Warehouse) (int64, error)
	UpdateWarehouse(ctx context.Context, w Warehouse) error
	DeleteWarehouse(ctx context.Context, id int64) error
	WarehouseStockTotal(ctx context.Context, warehouseID int64) (int64, error)
	InsertDocument(ctx context.Context, doc Document) (int64, error)
	GetDocument(ctx context.Context, id int64) (Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, int, error)
	DeleteDocument(ctx context.Context, id int64) error
	MarkPosted(ctx context.Context, id int64, postedAt time.Time) (bool, error)
	MarkCancelled(ctx context.Context, id int64) (bool, error)
	GetBalanceForUpdate(ctx context.Context, productID, warehouseID int64) (Balance, error)
	UpsertBalance(ctx context.Context, bal Balance) error
	ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error)
	InsertLedgerEntry(ctx context.Context, entry LedgerEntry) error
	ListLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error)
}

// SequencerPort issues document numbers.
type SequencerPort interface {
	Next(ctx context.Context, kind string) (string, error)
}

// SerialRef links a serial transition back to its document.
type SerialRef struct {
	DocumentID   int64
	DocNumber    string
	MovementType string
	ActorID      int64
}

// SerialPort lets document posting drive the serial registry inside
// the same transaction.
type SerialPort interface {
	Register(ctx context.Context, serialNumber string, productID, warehouseID int64, costPrice float64, ref SerialRef) error
	Issue(ctx context.Context, serialNumber string, warehouseID int64, ref SerialRef) error
	Transfer(ctx context.Context, serialNumber string, fromWarehouse, toWarehouse int64, ref SerialRef) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ProjectionPort refreshes the per-product denormalized stock counter.
type ProjectionPort interface {
	Refresh(ctx context.Context, productID int64) error
}

// Service coordinates warehouse document operations.
type Service struct {
	repo        RepositoryPort
	seq         SequencerPort
	serials     SerialPort
	audit       AuditPort
	projection  ProjectionPort
	integration IntegrationHandler
	log         *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, seq SequencerPort, serials SerialPort, audit AuditPort, projection ProjectionPort, integration IntegrationHandler, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, seq: seq, serials: serials, audit: audit, projection: projection, integration: integration, log: log}
}

// CreateDocument validates the input, assigns a document number and
// stores a draft. Stock is untouched until the document is posted.
func (s *Service) CreateDocument(ctx context.Context, input CreateDocumentInput) (Document, error) {
	if !input.DocType.Valid() {
		return Document{}, fmt.Errorf("inventory: unknown doc type %q: %w", input.DocType, shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return Document{}, fmt.Errorf("inventory: document requires at least one line: %w", shared.ErrValidation)
	}
	if input.DocType == DocTypeTransfer {
		if input.DestWarehouseID == 0 {
			return Document{}, fmt.Errorf("inventory: transfer requires a destination warehouse: %w", shared.ErrValidation)
		}
		if input.DestWarehouseID == input.WarehouseID {
			return Document{}, fmt.Errorf("inventory: transfer source and destination must differ: %w", shared.ErrValidation)
		}
	} else if input.DestWarehouseID != 0 {
		return Document{}, fmt.Errorf("inventory: destination warehouse only applies to transfers: %w", shared.ErrValidation)
	}

	if _, err := s.repo.GetWarehouse(ctx, input.WarehouseID); err != nil {
		return Document{}, err
	}
	if input.DestWarehouseID != 0 {
		if _, err := s.repo.GetWarehouse(ctx, input.DestWarehouseID); err != nil {
			return Document{}, err
		}
	}

	doc := Document{
		DocType:         input.DocType,
		WarehouseID:     input.WarehouseID,
		DestWarehouseID: input.DestWarehouseID,
		Status:          DocStatusDraft,
		Note:            input.Note,
		CreatedBy:       input.ActorID,
	}
	for _, in := range input.Lines {
		if in.Quantity <= 0 {
			return Document{}, fmt.Errorf("inventory: line quantity must be positive: %w", shared.ErrValidation)
		}
		if in.UnitCost < 0 {
			return Document{}, fmt.Errorf("inventory: line unit cost must be >= 0: %w", shared.ErrValidation)
		}
		product, err := s.repo.GetProduct(ctx, in.ProductID)
		if err != nil {
			return Document{}, err
		}
		if len(in.SerialNumbers) > 0 {
			if !product.TrackSerial {
				return Document{}, fmt.Errorf("inventory: product %d does not track serials: %w", in.ProductID, shared.ErrValidation)
			}
			if int64(len(in.SerialNumbers)) != in.Quantity {
				return Document{}, fmt.Errorf("inventory: product %d lists %d serials for quantity %d: %w", in.ProductID, len(in.SerialNumbers), in.Quantity, shared.ErrValidation)
			}
		}
		doc.Lines = append(doc.Lines, Line{
			ProductID:     in.ProductID,
			Quantity:      in.Quantity,
			UnitCost:      in.UnitCost,
			SerialNumbers: in.SerialNumbers,
		})
		doc.TotalItems += in.Quantity
		doc.TotalValue += float64(in.Quantity) * in.UnitCost
	}

	number, err := s.seq.Next(ctx, string(input.DocType))
	if err != nil {
		return Document{}, err
	}
	doc.DocNumber = number

	id, err := s.repo.InsertDocument(ctx, doc)
	if err != nil {
		return Document{}, err
	}
	created, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory:create", "inventory_doc", created.ID, map[string]any{
		"doc_number": created.DocNumber,
		"doc_type":   string(created.DocType),
	})
	return created, nil
}

// PostDocument applies the document's stock and serial effects and
// flips it to posted. Posting an already posted document succeeds
// without re-applying effects; posting a cancelled one is a conflict.
func (s *Service) PostDocument(ctx context.Context, id, actorID int64) (Document, error) {
	var doc Document
	var evt DocumentPostedEvent
	var alreadyPosted bool
	productIDs := map[int64]struct{}{}

	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		loaded, err := s.repo.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		if loaded.Status == DocStatusPosted {
			doc = loaded
			alreadyPosted = true
			return nil
		}
		if loaded.Status == DocStatusCancelled {
			return ErrDocCancelled
		}
		if _, err := s.repo.GetWarehouse(ctx, loaded.WarehouseID); err != nil {
			return err
		}
		if loaded.DocType == DocTypeTransfer {
			if loaded.DestWarehouseID == 0 {
				return fmt.Errorf("inventory: transfer requires a destination warehouse: %w", shared.ErrValidation)
			}
			if _, err := s.repo.GetWarehouse(ctx, loaded.DestWarehouseID); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		var totalValue, netChange float64
		for _, line := range loaded.Lines {
			product, err := s.repo.GetProduct(ctx, line.ProductID)
			if err != nil {
				return err
			}
			productIDs[line.ProductID] = struct{}{}

			switch loaded.DocType {
			case DocTypeReceipt, DocTypeReturn:
				if _, _, err := s.applyMovement(ctx, loaded, line.ProductID, loaded.WarehouseID, line.Quantity, line.UnitCost, string(loaded.DocType), false); err != nil {
					return err
				}
				totalValue += float64(line.Quantity) * line.UnitCost
				if err := s.forEachSerial(ctx, product, line, func(sn string) error {
					return s.serials.Register(ctx, sn, line.ProductID, loaded.WarehouseID, line.UnitCost, s.serialRef(loaded, actorID))
				}); err != nil {
					return err
				}

			case DocTypeIssue:
				_, basis, err := s.applyMovement(ctx, loaded, line.ProductID, loaded.WarehouseID, -line.Quantity, 0, string(loaded.DocType), true)
				if err != nil {
					return err
				}
				totalValue += float64(line.Quantity) * basis
				if err := s.forEachSerial(ctx, product, line, func(sn string) error {
					return s.serials.Issue(ctx, sn, loaded.WarehouseID, s.serialRef(loaded, actorID))
				}); err != nil {
					return err
				}

			case DocTypeTransfer:
				_, basis, err := s.applyMovement(ctx, loaded, line.ProductID, loaded.WarehouseID, -line.Quantity, 0, EntryTransferOut, true)
				if err != nil {
					return err
				}
				if _, _, err := s.applyMovement(ctx, loaded, line.ProductID, loaded.DestWarehouseID, line.Quantity, basis, EntryTransferIn, false); err != nil {
					return err
				}
				if err := s.forEachSerial(ctx, product, line, func(sn string) error {
					return s.serials.Transfer(ctx, sn, loaded.WarehouseID, loaded.DestWarehouseID, s.serialRef(loaded, actorID))
				}); err != nil {
					return err
				}

			case DocTypeAdjustment:
				current, err := s.repo.GetBalanceForUpdate(ctx, line.ProductID, loaded.WarehouseID)
				if err != nil && !errors.Is(err, ErrBalanceNotFound) {
					return err
				}
				delta := line.Quantity - current.Quantity
				if delta == 0 {
					continue
				}
				cost := line.UnitCost
				if cost == 0 {
					cost = product.CostPrice
				}
				_, basis, err := s.applyMovement(ctx, loaded, line.ProductID, loaded.WarehouseID, delta, cost, string(loaded.DocType), false)
				if err != nil {
					return err
				}
				netChange += float64(delta) * basis
			}
		}

		ok, err := s.repo.MarkPosted(ctx, id, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrStatusChanged
		}
		loaded.Status = DocStatusPosted
		loaded.PostedAt = &now
		doc = loaded
		evt = DocumentPostedEvent{
			DocumentID: loaded.ID,
			DocNumber:  loaded.DocNumber,
			DocType:    loaded.DocType,
			TotalValue: totalValue,
			NetChange:  netChange,
			PostedAt:   now,
			ActorID:    actorID,
		}
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	if alreadyPosted {
		return doc, nil
	}

	s.recordAudit(ctx, actorID, "inventory:post", "inventory_doc", doc.ID, map[string]any{
		"doc_number": doc.DocNumber,
		"doc_type":   string(doc.DocType),
	})
	for productID := range productIDs {
		if s.projection == nil {
			break
		}
		if err := s.projection.Refresh(ctx, productID); err != nil {
			s.log.Warn("stock projection refresh failed", slog.Int64("product_id", productID), slog.Any("error", err))
		}
	}
	// Journal posting is best effort: the physical stock change stays
	// committed even when bookkeeping fails.
	if s.integration != nil {
		if err := s.integration.HandleDocumentPosted(ctx, evt); err != nil {
			s.log.Warn("journal posting for document failed", slog.String("doc_number", doc.DocNumber), slog.Any("error", err))
		}
	}
	return doc, nil
}

// DeleteDocument removes a draft. Posted documents are immutable.
func (s *Service) DeleteDocument(ctx context.Context, id, actorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context) error {
		doc, err := s.repo.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != DocStatusDraft {
			return ErrDocNotDraft
		}
		if err := s.repo.DeleteDocument(ctx, id); err != nil {
			return err
		}
		s.recordAudit(ctx, actorID, "inventory:delete", "inventory_doc", id, map[string]any{"doc_number": doc.DocNumber})
		return nil
	})
}

// CancelDocument flips a draft to cancelled.
func (s *Service) CancelDocument(ctx context.Context, id, actorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context) error {
		doc, err := s.repo.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != DocStatusDraft {
			return ErrDocNotDraft
		}
		ok, err := s.repo.MarkCancelled(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrStatusChanged
		}
		s.recordAudit(ctx, actorID, "inventory:cancel", "inventory_doc", id, map[string]any{"doc_number": doc.DocNumber})
		return nil
	})
}

// GetDocument loads one document with lines.
func (s *Service) GetDocument(ctx context.Context, id int64) (Document, error) {
	return s.repo.GetDocument(ctx, id)
}

// ListDocuments lists document headers.
func (s *Service) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, shared.Pagination, error) {
	docs, total, err := s.repo.ListDocuments(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return docs, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// GetBalances lists current stock balances.
func (s *Service) GetBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error) {
	return s.repo.ListBalances(ctx, filter)
}

// GetLedger lists stock ledger entries.
func (s *Service) GetLedger(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	return s.repo.ListLedger(ctx, filter)
}

// CreateWarehouse adds a stock location.
func (s *Service) CreateWarehouse(ctx context.Context, w Warehouse, actorID int64) (Warehouse, error) {
	if w.Name == "" {
		return Warehouse{}, fmt.Errorf("inventory: warehouse name required: %w", shared.ErrValidation)
	}
	id, err := s.repo.CreateWarehouse(ctx, w)
	if err != nil {
		return Warehouse{}, err
	}
	created, err := s.repo.GetWarehouse(ctx, id)
	if err != nil {
		return Warehouse{}, err
	}
	s.recordAudit(ctx, actorID, "warehouse:create", "warehouse", id, map[string]any{"name": w.Name})
	return created, nil
}

// UpdateWarehouse updates a stock location.
func (s *Service) UpdateWarehouse(ctx context.Context, w Warehouse, actorID int64) (Warehouse, error) {
	if w.Name == "" {
		return Warehouse{}, fmt.Errorf("inventory: warehouse name required: %w", shared.ErrValidation)
	}
	if err := s.repo.UpdateWarehouse(ctx, w); err != nil {
		return Warehouse{}, err
	}
	updated, err := s.repo.GetWarehouse(ctx, w.ID)
	if err != nil {
		return Warehouse{}, err
	}
	s.recordAudit(ctx, actorID, "warehouse:update", "warehouse", w.ID, map[string]any{"name": w.Name})
	return updated, nil
}

// DeleteWarehouse removes an empty stock location.
func (s *Service) DeleteWarehouse(ctx context.Context, id, actorID int64) error {
	total, err := s.repo.WarehouseStockTotal(ctx, id)
	if err != nil {
		return err
	}
	if total > 0 {
		return ErrWarehouseInUse
	}
	if err := s.repo.DeleteWarehouse(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "warehouse:delete", "warehouse", id, nil)
	return nil
}

// ListWarehouses lists all stock locations.
func (s *Service) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	return s.repo.ListWarehouses(ctx)
}

// ConsumeRef links a sale-driven consumption to its order.
type ConsumeRef struct {
	OrderID     int64
	OrderNumber string
}

// Consume draws stock for a sale at the prevailing average cost and
// returns that cost basis. It must run inside a transaction started by
// the caller so the decrement commits with the rest of the sale.
func (s *Service) Consume(ctx context.Context, productID, warehouseID, qty int64, ref ConsumeRef) (float64, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("inventory: consume quantity must be positive: %w", shared.ErrValidation)
	}
	doc := Document{ID: ref.OrderID, DocNumber: ref.OrderNumber}
	_, basis, err := s.applyMovement(ctx, doc, productID, warehouseID, -qty, 0, "sale", true)
	return basis, err
}

// GetProduct exposes the catalog view used by collaborators.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// Available returns the unlocked current quantity for a position. The
// authoritative check happens under lock during consumption.
func (s *Service) Available(ctx context.Context, productID, warehouseID int64) (int64, error) {
	balances, err := s.repo.ListBalances(ctx, BalanceFilter{ProductID: productID, WarehouseID: warehouseID})
	if err != nil {
		return 0, err
	}
	if len(balances) == 0 {
		return 0, nil
	}
	return balances[0].Quantity, nil
}

// RefreshProjection recomputes the product stock projection, logging
// instead of failing when it cannot.
func (s *Service) RefreshProjection(ctx context.Context, productID int64) {
	if s.projection == nil {
		return
	}
	if err := s.projection.Refresh(ctx, productID); err != nil {
		s.log.Warn("stock projection refresh failed", slog.Int64("product_id", productID), slog.Any("error", err))
	}
}

// applyMovement runs the weighted-average update for one position and
// appends the matching ledger row. Increases with a positive unit cost
// recompute the average; decreases draw at the existing average, which
// is returned as the cost basis. The balance row stays locked until
// the surrounding transaction ends.
func (s *Service) applyMovement(ctx context.Context, doc Document, productID, warehouseID, qtyDelta int64, unitCost float64, entryType string, enforceAvailability bool) (Balance, float64, error) {
	bal, err := s.repo.GetBalanceForUpdate(ctx, productID, warehouseID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return Balance{}, 0, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		bal = Balance{ProductID: productID, WarehouseID: warehouseID}
	}

	basis := unitCost
	if qtyDelta < 0 {
		basis = bal.AvgCost
		if enforceAvailability && bal.Quantity < -qtyDelta {
			return Balance{}, 0, &InsufficientStockError{
				ProductID:   productID,
				WarehouseID: warehouseID,
				Requested:   -qtyDelta,
				Available:   bal.Quantity,
			}
		}
	}

	newQty := bal.Quantity + qtyDelta
	newAvg := bal.AvgCost
	switch {
	case qtyDelta > 0 && unitCost > 0 && newQty != 0:
		newAvg = (float64(bal.Quantity)*bal.AvgCost + float64(qtyDelta)*unitCost) / float64(newQty)
	case newQty == 0:
		newAvg = 0
	}

	bal.Quantity = newQty
	bal.AvgCost = newAvg
	if err := s.repo.UpsertBalance(ctx, bal); err != nil {
		return Balance{}, 0, err
	}
	entry := LedgerEntry{
		ProductID:      productID,
		WarehouseID:    warehouseID,
		DocumentID:     doc.ID,
		DocNumber:      doc.DocNumber,
		EntryType:      entryType,
		QuantityChange: qtyDelta,
		UnitCost:       basis,
		QuantityAfter:  newQty,
	}
	if err := s.repo.InsertLedgerEntry(ctx, entry); err != nil {
		return Balance{}, 0, err
	}
	return bal, basis, nil
}

func (s *Service) forEachSerial(ctx context.Context, product Product, line Line, fn func(string) error) error {
	if s.serials == nil || !product.TrackSerial || len(line.SerialNumbers) == 0 {
		return nil
	}
	for _, sn := range line.SerialNumbers {
		if err := fn(sn); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) serialRef(doc Document, actorID int64) SerialRef {
	return SerialRef{
		DocumentID:   doc.ID,
		DocNumber:    doc.DocNumber,
		MovementType: string(doc.DocType),
		ActorID:      actorID,
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
