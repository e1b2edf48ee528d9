package serials

import (
	"context"

	"github.com/stockbooks/stockbooks/internal/inventory"
)

// DocumentAdapter lets the inventory document engine drive the serial
// registry. Calls run inside the posting transaction carried in the
// context, so serial state and stock state commit together.
type DocumentAdapter struct {
	service *Service
}

// NewDocumentAdapter wraps the service for document posting.
func NewDocumentAdapter(service *Service) *DocumentAdapter {
	return &DocumentAdapter{service: service}
}

// Register puts a serial into stock for receipt and return documents.
func (a *DocumentAdapter) Register(ctx context.Context, serialNumber string, productID, warehouseID int64, costPrice float64, ref inventory.SerialRef) error {
	_, err := a.service.Register(ctx, RegisterInput{
		SerialNumber: serialNumber,
		ProductID:    productID,
		WarehouseID:  warehouseID,
		CostPrice:    costPrice,
		MovementType: movementFor(ref.MovementType),
		RefDocID:     ref.DocumentID,
		RefDocNumber: ref.DocNumber,
		ActorID:      ref.ActorID,
	})
	return err
}

// Issue moves a serial out of stock for issue documents.
func (a *DocumentAdapter) Issue(ctx context.Context, serialNumber string, warehouseID int64, ref inventory.SerialRef) error {
	return a.service.Issue(ctx, serialNumber, warehouseID, MovementRef{
		MovementType: MovementIssue,
		RefDocID:     ref.DocumentID,
		RefDocNumber: ref.DocNumber,
		ActorID:      ref.ActorID,
	})
}

// Transfer relocates a serial for transfer documents.
func (a *DocumentAdapter) Transfer(ctx context.Context, serialNumber string, fromWarehouse, toWarehouse int64, ref inventory.SerialRef) error {
	return a.service.Transfer(ctx, serialNumber, fromWarehouse, toWarehouse, MovementRef{
		MovementType: MovementTransfer,
		RefDocID:     ref.DocumentID,
		RefDocNumber: ref.DocNumber,
		ActorID:      ref.ActorID,
	})
}

func movementFor(docType string) string {
	if docType == "return" {
		return MovementReturn
	}
	return MovementReceipt
}
