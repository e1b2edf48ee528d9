// Package jobs holds the background task definitions and the Asynq
// worker wrapper. Two concerns live here: resyncing the denormalized
// stock projection and retrying journal entries whose best-effort
// posting failed.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockResync recomputes stock projections from balance rows.
	TaskStockResync = "stock:resync"
	// TaskJournalRetry re-runs a failed automated journal posting.
	TaskJournalRetry = "journal:retry"
)

// StockResyncPayload selects what to recompute. ProductID zero means
// every product with balance rows.
type StockResyncPayload struct {
	ProductID    int64     `json:"product_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockResyncTask constructs a stock resync task.
func NewStockResyncTask(productID int64, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(StockResyncPayload{ProductID: productID, ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockResync, body, asynq.Queue(QueueDefault)), nil
}

// JournalRetryPayload carries the original event so the posting hook
// can be replayed verbatim.
type JournalRetryPayload struct {
	Source string          `json:"source"`
	Event  json.RawMessage `json:"event"`
}

// Journal retry sources.
const (
	SourceDocument = "document"
	SourceOrder    = "order"
)

// retryNamespace keys deterministic retry task ids.
var retryNamespace = uuid.MustParse("7f6c1c1e-9a44-4fd2-8c05-3b1d44c09a71")

// NewJournalRetryTask constructs a journal retry task from the failed
// event. The task id is derived from the event content, so re-enqueuing
// the same failure is a no-op instead of a duplicate journal entry.
func NewJournalRetryTask(source string, event any) (*asynq.Task, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(JournalRetryPayload{Source: source, Event: raw})
	if err != nil {
		return nil, err
	}
	id := uuid.NewSHA1(retryNamespace, append([]byte(source+":"), raw...))
	return asynq.NewTask(TaskJournalRetry, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.TaskID(id.String()),
	), nil
}
