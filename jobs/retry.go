package jobs

import (
	"context"
	"log/slog"

	"github.com/stockbooks/stockbooks/internal/inventory"
	"github.com/stockbooks/stockbooks/internal/sales"
)

// RetryingDocumentHandler wraps a posting hook: when the inline
// posting fails the event is queued for replay instead of being lost.
type RetryingDocumentHandler struct {
	next    inventory.IntegrationHandler
	enqueue func(ctx context.Context, source string, event any) error
	log     *slog.Logger
}

// NewRetryingDocumentHandler decorates the document posting hook with
// queue-backed retries.
func NewRetryingDocumentHandler(next inventory.IntegrationHandler, client *Client, log *slog.Logger) *RetryingDocumentHandler {
	return &RetryingDocumentHandler{next: next, enqueue: clientEnqueue(client), log: log}
}

// HandleDocumentPosted forwards to the wrapped hook, queueing the
// event on failure. The returned error stays nil so the caller's
// commit is never questioned.
func (h *RetryingDocumentHandler) HandleDocumentPosted(ctx context.Context, evt inventory.DocumentPostedEvent) error {
	err := h.next.HandleDocumentPosted(ctx, evt)
	if err == nil {
		return nil
	}
	h.log.Warn("journal posting failed, queueing retry", slog.String("reference", evt.DocNumber), slog.Any("error", err))
	if qErr := h.enqueue(ctx, SourceDocument, evt); qErr != nil {
		h.log.Error("journal retry enqueue failed", slog.String("reference", evt.DocNumber), slog.Any("error", qErr))
	}
	return nil
}

// RetryingOrderHandler is the sales counterpart of
// RetryingDocumentHandler.
type RetryingOrderHandler struct {
	next    sales.IntegrationHandler
	enqueue func(ctx context.Context, source string, event any) error
	log     *slog.Logger
}

// NewRetryingOrderHandler decorates the order posting hook with
// queue-backed retries.
func NewRetryingOrderHandler(next sales.IntegrationHandler, client *Client, log *slog.Logger) *RetryingOrderHandler {
	return &RetryingOrderHandler{next: next, enqueue: clientEnqueue(client), log: log}
}

// HandleOrderCompleted forwards to the wrapped hook, queueing the
// event on failure.
func (h *RetryingOrderHandler) HandleOrderCompleted(ctx context.Context, evt sales.OrderCompletedEvent) error {
	err := h.next.HandleOrderCompleted(ctx, evt)
	if err == nil {
		return nil
	}
	h.log.Warn("journal posting failed, queueing retry", slog.String("reference", evt.OrderNumber), slog.Any("error", err))
	if qErr := h.enqueue(ctx, SourceOrder, evt); qErr != nil {
		h.log.Error("journal retry enqueue failed", slog.String("reference", evt.OrderNumber), slog.Any("error", qErr))
	}
	return nil
}

func clientEnqueue(client *Client) func(ctx context.Context, source string, event any) error {
	return func(ctx context.Context, source string, event any) error {
		_, err := client.EnqueueJournalRetry(ctx, source, event)
		return err
	}
}
