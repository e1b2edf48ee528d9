package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/stockbooks/stockbooks/internal/inventory"
	"github.com/stockbooks/stockbooks/internal/sales"
)

type fakeResyncer struct {
	refreshed []int64
	all       int
}

func (f *fakeResyncer) Refresh(_ context.Context, productID int64) error {
	f.refreshed = append(f.refreshed, productID)
	return nil
}

func (f *fakeResyncer) RefreshAll(_ context.Context) error {
	f.all++
	return nil
}

func TestStockResyncHandlerSingleProduct(t *testing.T) {
	resyncer := &fakeResyncer{}
	handler := NewStockResyncHandler(resyncer, slog.Default())

	task, err := NewStockResyncTask(10, time.Now())
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, []int64{10}, resyncer.refreshed)
	require.Zero(t, resyncer.all)
}

func TestStockResyncHandlerAllProducts(t *testing.T) {
	resyncer := &fakeResyncer{}
	handler := NewStockResyncHandler(resyncer, slog.Default())

	task, err := NewStockResyncTask(0, time.Now())
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, 1, resyncer.all)
	require.Empty(t, resyncer.refreshed)
}

func TestStockResyncHandlerBadPayload(t *testing.T) {
	handler := NewStockResyncHandler(&fakeResyncer{}, slog.Default())
	err := handler(context.Background(), asynq.NewTask(TaskStockResync, []byte("nope")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type recordingDocHandler struct {
	events []inventory.DocumentPostedEvent
	err    error
}

func (r *recordingDocHandler) HandleDocumentPosted(_ context.Context, evt inventory.DocumentPostedEvent) error {
	r.events = append(r.events, evt)
	return r.err
}

type recordingOrderHandler struct {
	events []sales.OrderCompletedEvent
	err    error
}

func (r *recordingOrderHandler) HandleOrderCompleted(_ context.Context, evt sales.OrderCompletedEvent) error {
	r.events = append(r.events, evt)
	return r.err
}

func TestJournalRetryHandlerReplaysDocumentEvent(t *testing.T) {
	docs := &recordingDocHandler{}
	orders := &recordingOrderHandler{}
	handler := NewJournalRetryHandler(docs, orders, slog.Default())

	task, err := NewJournalRetryTask(SourceDocument, inventory.DocumentPostedEvent{
		DocNumber: "PN-20250301-001", DocType: inventory.DocTypeReceipt, TotalValue: 1000,
	})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Len(t, docs.events, 1)
	require.Equal(t, "PN-20250301-001", docs.events[0].DocNumber)
	require.Empty(t, orders.events)
}

func TestJournalRetryHandlerReplaysOrderEvent(t *testing.T) {
	docs := &recordingDocHandler{}
	orders := &recordingOrderHandler{}
	handler := NewJournalRetryHandler(docs, orders, slog.Default())

	task, err := NewJournalRetryTask(SourceOrder, sales.OrderCompletedEvent{OrderNumber: "SO-20250301-001", Revenue: 190})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Len(t, orders.events, 1)
	require.Empty(t, docs.events)
}

func TestJournalRetryHandlerPropagatesFailure(t *testing.T) {
	docs := &recordingDocHandler{err: errors.New("db down")}
	handler := NewJournalRetryHandler(docs, &recordingOrderHandler{}, slog.Default())

	task, err := NewJournalRetryTask(SourceDocument, inventory.DocumentPostedEvent{DocNumber: "PN-1"})
	require.NoError(t, err)
	require.Error(t, handler(context.Background(), task), "failures must surface so asynq retries")
}

func TestJournalRetryHandlerUnknownSource(t *testing.T) {
	handler := NewJournalRetryHandler(&recordingDocHandler{}, &recordingOrderHandler{}, slog.Default())
	task, err := NewJournalRetryTask("imaginary", map[string]any{})
	require.NoError(t, err)
	require.ErrorIs(t, handler(context.Background(), task), asynq.SkipRetry)
}

func TestRetryingDocumentHandlerQueuesOnFailure(t *testing.T) {
	inner := &recordingDocHandler{err: errors.New("journal down")}
	var queued []string
	handler := &RetryingDocumentHandler{
		next: inner,
		enqueue: func(_ context.Context, source string, _ any) error {
			queued = append(queued, source)
			return nil
		},
		log: slog.Default(),
	}

	err := handler.HandleDocumentPosted(context.Background(), inventory.DocumentPostedEvent{DocNumber: "PX-1"})
	require.NoError(t, err, "inline failure must not surface to the poster")
	require.Equal(t, []string{SourceDocument}, queued)

	inner.err = nil
	require.NoError(t, handler.HandleDocumentPosted(context.Background(), inventory.DocumentPostedEvent{DocNumber: "PX-2"}))
	require.Len(t, queued, 1, "successful postings enqueue nothing")
}
