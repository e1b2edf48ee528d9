package inventory

import (
	"context"
	"time"
)

// DocumentPostedEvent is emitted after a document commits. TotalValue
// carries the value moved at the cost basis actually applied; for
// adjustments NetChange carries the signed value delta instead.
type DocumentPostedEvent struct {
	DocumentID int64
	DocNumber  string
	DocType    DocType
	TotalValue float64
	NetChange  float64
	PostedAt   time.Time
	ActorID    int64
}

// IntegrationHandler receives posting events. Failures are logged and
// retried out of band; they never roll back the stock change.
type IntegrationHandler interface {
	HandleDocumentPosted(ctx context.Context, evt DocumentPostedEvent) error
}
