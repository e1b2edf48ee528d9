// Package integration turns inventory and sales events into journal
// entries. Posting runs after the triggering transaction has
// committed; a missing account or a storage failure is logged and
// skipped, never propagated back into stock or sales state.
package integration

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/stockbooks/stockbooks/internal/accounting"
	"github.com/stockbooks/stockbooks/internal/inventory"
	"github.com/stockbooks/stockbooks/internal/sales"
)

// Fixed chart of accounts codes the hooks post against.
const (
	CodeCash      = "111"
	CodeInventory = "156"
	CodePayable   = "331"
	CodeRevenue   = "511"
	CodeCOGS      = "632"
	CodeAdjust    = "811"
)

// JournalPort is the slice of the accounting service the hooks drive.
type JournalPort interface {
	GetAccountByCode(ctx context.Context, code string) (accounting.Account, error)
	CreateAndPost(ctx context.Context, input accounting.CreateEntryInput) (accounting.JournalEntry, error)
}

// Hooks implements the inventory and sales event handler interfaces.
type Hooks struct {
	journal JournalPort
	log     *slog.Logger
}

// NewHooks builds Hooks.
func NewHooks(journal JournalPort, log *slog.Logger) *Hooks {
	if log == nil {
		log = slog.Default()
	}
	return &Hooks{journal: journal, log: log}
}

var _ inventory.IntegrationHandler = (*Hooks)(nil)
var _ sales.IntegrationHandler = (*Hooks)(nil)

// HandleDocumentPosted books the value movement of a posted inventory
// document. Transfers move value between warehouses without changing
// the total, so they emit no entry.
func (h *Hooks) HandleDocumentPosted(ctx context.Context, evt inventory.DocumentPostedEvent) error {
	var legs []leg
	var journalType accounting.JournalType

	switch evt.DocType {
	case inventory.DocTypeReceipt, inventory.DocTypeReturn:
		journalType = accounting.JournalInventory
		legs = []leg{
			{code: CodeInventory, debit: evt.TotalValue},
			{code: CodePayable, credit: evt.TotalValue},
		}
	case inventory.DocTypeIssue:
		journalType = accounting.JournalInventory
		legs = []leg{
			{code: CodeCOGS, debit: evt.TotalValue},
			{code: CodeInventory, credit: evt.TotalValue},
		}
	case inventory.DocTypeAdjustment:
		journalType = accounting.JournalAdjustment
		switch {
		case evt.NetChange > 0:
			legs = []leg{
				{code: CodeInventory, debit: evt.NetChange},
				{code: CodeAdjust, credit: evt.NetChange},
			}
		case evt.NetChange < 0:
			legs = []leg{
				{code: CodeAdjust, debit: -evt.NetChange},
				{code: CodeInventory, credit: -evt.NetChange},
			}
		}
	case inventory.DocTypeTransfer:
		return nil
	default:
		return nil
	}

	return h.post(ctx, journalType, string(evt.DocType)+" "+evt.DocNumber, evt.DocNumber, evt.ActorID, legs)
}

// HandleOrderCompleted books revenue and cost of a completed sale in
// one entry: cash against revenue, cost of goods against inventory.
func (h *Hooks) HandleOrderCompleted(ctx context.Context, evt sales.OrderCompletedEvent) error {
	legs := []leg{
		{code: CodeCash, debit: evt.Revenue},
		{code: CodeCOGS, debit: evt.COGS},
		{code: CodeRevenue, credit: evt.Revenue},
		{code: CodeInventory, credit: evt.COGS},
	}
	return h.post(ctx, accounting.JournalSales, "sale "+evt.OrderNumber, evt.OrderNumber, evt.ActorID, legs)
}

type leg struct {
	code   string
	debit  float64
	credit float64
}

// post resolves each leg's account and books a balanced entry. Legs
// with a zero amount are dropped; if fewer than two survive there is
// nothing worth booking and the event is skipped.
func (h *Hooks) post(ctx context.Context, journalType accounting.JournalType, description, reference string, actorID int64, legs []leg) error {
	lines := make([]accounting.CreateLineInput, 0, len(legs))
	for _, l := range legs {
		amount := l.debit + l.credit
		if math.Abs(amount) < 0.005 {
			continue
		}
		account, err := h.journal.GetAccountByCode(ctx, l.code)
		if err != nil {
			h.log.Warn("account missing for automated posting, entry skipped",
				slog.String("code", l.code), slog.String("reference", reference), slog.Any("error", err))
			return nil
		}
		lines = append(lines, accounting.CreateLineInput{
			AccountID:   account.ID,
			Description: description,
			Debit:       l.debit,
			Credit:      l.credit,
		})
	}
	if len(lines) < 2 {
		return nil
	}
	entry, err := h.journal.CreateAndPost(ctx, accounting.CreateEntryInput{
		JournalType: journalType,
		Description: description,
		Reference:   reference,
		ActorID:     actorID,
		Lines:       lines,
	})
	if err != nil {
		return fmt.Errorf("integration: post journal for %s: %w", reference, err)
	}
	h.log.Info("journal entry posted",
		slog.String("entry_number", entry.EntryNumber), slog.String("reference", reference))
	return nil
}
