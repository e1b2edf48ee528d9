// Package sequence issues per-day document numbers of the form
// {PREFIX}-{YYYYMMDD}-{NNN}. Counters are persisted per document kind
// and day and incremented atomically, so concurrent postings never
// receive the same number.
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/stockbooks/stockbooks/internal/shared"
)

// Document kinds with a numbering prefix.
const (
	KindReceipt     = "receipt"
	KindIssue       = "issue"
	KindTransfer    = "transfer"
	KindAdjustment  = "adjustment"
	KindReturn      = "return"
	KindSalesOrder  = "sales_order"
	KindJournal     = "journal"
	KindJournalInv  = "journal_inventory"
	KindJournalSale = "journal_sales"
	KindJournalPur  = "journal_purchase"
	KindJournalAdj  = "journal_adjustment"
)

var prefixes = map[string]string{
	KindReceipt:     "PN",
	KindIssue:       "PX",
	KindTransfer:    "CK",
	KindAdjustment:  "KK",
	KindReturn:      "TH",
	KindSalesOrder:  "SO",
	KindJournal:     "JV",
	KindJournalInv:  "INV",
	KindJournalSale: "SL",
	KindJournalPur:  "PU",
	KindJournalAdj:  "DC",
}

// Store increments and returns the counter for a kind on a given day.
type Store interface {
	NextSeq(ctx context.Context, kind string, day string) (int, error)
}

// Generator formats document numbers from persisted counters.
type Generator struct {
	store Store
	now   func() time.Time
}

// NewGenerator returns a Generator backed by the given store.
func NewGenerator(store Store) *Generator {
	return &Generator{store: store, now: time.Now}
}

// Next issues the next number for the kind, e.g. PN-20250301-004.
func (g *Generator) Next(ctx context.Context, kind string) (string, error) {
	prefix, ok := prefixes[kind]
	if !ok {
		return "", fmt.Errorf("sequence: unknown document kind %q: %w", kind, shared.ErrValidation)
	}
	day := g.now().UTC().Format("20060102")
	seq, err := g.store.NextSeq(ctx, kind, day)
	if err != nil {
		return "", fmt.Errorf("sequence: next %s: %w", kind, err)
	}
	return fmt.Sprintf("%s-%s-%03d", prefix, day, seq), nil
}
