package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stockbooks/stockbooks/internal/inventory"
	"github.com/stockbooks/stockbooks/internal/sales"
)

// StockResyncer is the slice of the stock projection the resync task
// drives.
type StockResyncer interface {
	Refresh(ctx context.Context, productID int64) error
	RefreshAll(ctx context.Context) error
}

// NewStockResyncHandler builds the handler for TaskStockResync.
func NewStockResyncHandler(projection StockResyncer, log *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload StockResyncPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.ProductID != 0 {
			if err := projection.Refresh(ctx, payload.ProductID); err != nil {
				return fmt.Errorf("stock resync product %d: %w", payload.ProductID, err)
			}
			log.Info("stock projection resynced", slog.Int64("product_id", payload.ProductID))
			return nil
		}
		if err := projection.RefreshAll(ctx); err != nil {
			return fmt.Errorf("full stock resync: %w", err)
		}
		log.Info("stock projection resynced", slog.String("scope", "all"))
		return nil
	}
}

// NewJournalRetryHandler builds the handler for TaskJournalRetry. The
// original event is replayed through the same posting hooks that
// failed inline.
func NewJournalRetryHandler(docs inventory.IntegrationHandler, orders sales.IntegrationHandler, log *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload JournalRetryPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		switch payload.Source {
		case SourceDocument:
			var evt inventory.DocumentPostedEvent
			if err := json.Unmarshal(payload.Event, &evt); err != nil {
				return asynq.SkipRetry
			}
			if err := docs.HandleDocumentPosted(ctx, evt); err != nil {
				return fmt.Errorf("journal retry for %s: %w", evt.DocNumber, err)
			}
			log.Info("journal retry succeeded", slog.String("reference", evt.DocNumber))
		case SourceOrder:
			var evt sales.OrderCompletedEvent
			if err := json.Unmarshal(payload.Event, &evt); err != nil {
				return asynq.SkipRetry
			}
			if err := orders.HandleOrderCompleted(ctx, evt); err != nil {
				return fmt.Errorf("journal retry for %s: %w", evt.OrderNumber, err)
			}
			log.Info("journal retry succeeded", slog.String("reference", evt.OrderNumber))
		default:
			return asynq.SkipRetry
		}
		return nil
	}
}
