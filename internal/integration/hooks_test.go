package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockbooks/stockbooks/internal/accounting"
	"github.com/stockbooks/stockbooks/internal/inventory"
	"github.com/stockbooks/stockbooks/internal/sales"
)

type fakeJournal struct {
	accounts map[string]accounting.Account
	posted   []accounting.CreateEntryInput
}

func newFakeJournal(codes ...string) *fakeJournal {
	f := &fakeJournal{accounts: map[string]accounting.Account{}}
	for i, code := range codes {
		f.accounts[code] = accounting.Account{ID: int64(i + 1), Code: code}
	}
	return f
}

func (f *fakeJournal) GetAccountByCode(_ context.Context, code string) (accounting.Account, error) {
	account, ok := f.accounts[code]
	if !ok {
		return accounting.Account{}, accounting.ErrAccountNotFound
	}
	return account, nil
}

func (f *fakeJournal) CreateAndPost(_ context.Context, input accounting.CreateEntryInput) (accounting.JournalEntry, error) {
	f.posted = append(f.posted, input)
	return accounting.JournalEntry{ID: int64(len(f.posted)), EntryNumber: "JV-TEST", Status: accounting.EntryPosted}, nil
}

func allCodes() []string {
	return []string{CodeCash, CodeInventory, CodePayable, CodeRevenue, CodeCOGS, CodeAdjust}
}

func legsByCode(t *testing.T, journal *fakeJournal, input accounting.CreateEntryInput) map[string]accounting.CreateLineInput {
	t.Helper()
	byID := map[int64]string{}
	for code, account := range journal.accounts {
		byID[account.ID] = code
	}
	out := map[string]accounting.CreateLineInput{}
	for _, line := range input.Lines {
		out[byID[line.AccountID]] = line
	}
	return out
}

func requireBalanced(t *testing.T, input accounting.CreateEntryInput) {
	t.Helper()
	var debit, credit float64
	for _, line := range input.Lines {
		debit += line.Debit
		credit += line.Credit
	}
	require.InDelta(t, debit, credit, 0.009)
}

func TestReceiptPostsInventoryAgainstPayable(t *testing.T) {
	journal := newFakeJournal(allCodes()...)
	hooks := NewHooks(journal, nil)

	err := hooks.HandleDocumentPosted(context.Background(), inventory.DocumentPostedEvent{
		DocNumber: "PN-20250301-001", DocType: inventory.DocTypeReceipt, TotalValue: 1000, ActorID: 7,
	})
	require.NoError(t, err)
	require.Len(t, journal.posted, 1)

	entry := journal.posted[0]
	require.Equal(t, accounting.JournalInventory, entry.JournalType)
	require.Equal(t, "PN-20250301-001", entry.Reference)
	requireBalanced(t, entry)
	legs := legsByCode(t, journal, entry)
	require.InDelta(t, 1000, legs[CodeInventory].Debit, 0.001)
	require.InDelta(t, 1000, legs[CodePayable].Credit, 0.001)
}

func TestReturnPostsLikeReceipt(t *testing.T) {
	journal := newFakeJournal(allCodes()...)
	hooks := NewHooks(journal, nil)

	err := hooks.HandleDocumentPosted(context.Background(), inventory.DocumentPostedEvent{
		DocNumber: "TH-20250301-001", DocType: inventory.DocTypeReturn, TotalValue: 90,
	})
	require.NoError(t, err)
	require.Len(t, journal.posted, 1)
	legs := legsByCode(t, journal, journal.posted[0])
	require.InDelta(t, 90, legs[CodeInventory].Debit, 0.001)
	require.InDelta(t, 90, legs[CodePayable].Credit, 0.001)
}

func TestIssuePostsCOGSAgainstInventory(t *testing.T) {
	journal := newFakeJournal(allCodes()...)
	hooks := NewHooks(journal, nil)

	err := hooks.HandleDocumentPosted(context.Background(), inventory.DocumentPostedEvent{
		DocNumber: "PX-20250301-001", DocType: inventory.DocTypeIssue, TotalValue: 400,
	})
	require.NoError(t, err)
	require.Len(t, journal.posted, 1)
	requireBalanced(t, journal.posted[0])
	legs := legsByCode(t, journal, journal.posted[0])
	require.InDelta(t, 400, legs[CodeCOGS].Debit, 0.001)
	require.InDelta(t, 400, legs[CodeInventory].Credit, 0.001)
}

func TestTransferEmitsNoEntry(t *testing.T) {
	journal := newFakeJournal(allCodes()...)
	hooks := NewHooks(journal, nil)

	err := hooks.HandleDocumentPosted(context.Background(), inventory.DocumentPostedEvent{
		DocNumber: "CK-20250301-001", DocType: inventory.DocTypeTransfer, TotalValue: 500,
	})
	require.NoError(t, err)
	require.Empty(t, journal.posted)
}

func TestAdjustmentDirection(t *testing.T) {
	journal := newFakeJournal(allCodes()...)
	hooks := NewHooks(journal, nil)
	ctx := context.Background()

	require.NoError(t, hooks.HandleDocumentPosted(ctx, inventory.DocumentPostedEvent{
		DocNumber: "KK-20250301-001", DocType: inventory.DocTypeAdjustment, NetChange: 250,
	}))
	require.NoError(t, hooks.HandleDocumentPosted(ctx, inventory.DocumentPostedEvent{
		DocNumber: "KK-20250301-002", DocType: inventory.DocTypeAdjustment, NetChange: -120,
	}))
	require.Len(t, journal.posted, 2)

	require.Equal(t, accounting.JournalAdjustment, journal.posted[0].JournalType)
	increase := legsByCode(t, journal, journal.posted[0])
	require.InDelta(t, 250, increase[CodeInventory].Debit, 0.001)
	require.InDelta(t, 250, increase[CodeAdjust].Credit, 0.001)

	decrease := legsByCode(t, journal, journal.posted[1])
	require.InDelta(t, 120, decrease[CodeAdjust].Debit, 0.001)
	require.InDelta(t, 120, decrease[CodeInventory].Credit, 0.001)
}

func TestAdjustmentWithNoNetChangeSkipped(t *testing.T) {
	journal := newFakeJournal(allCodes()...)
	hooks := NewHooks(journal, nil)

	err := hooks.HandleDocumentPosted(context.Background(), inventory.DocumentPostedEvent{
		DocNumber: "KK-20250301-003", DocType: inventory.DocTypeAdjustment, NetChange: 0,
	})
	require.NoError(t, err)
	require.Empty(t, journal.posted)
}

func TestMissingAccountSkipsEntry(t *testing.T) {
	journal := newFakeJournal(CodeInventory) // payable not configured
	hooks := NewHooks(journal, nil)

	err := hooks.HandleDocumentPosted(context.Background(), inventory.DocumentPostedEvent{
		DocNumber: "PN-20250301-002", DocType: inventory.DocTypeReceipt, TotalValue: 1000,
	})
	require.NoError(t, err, "missing account must not fail the triggering operation")
	require.Empty(t, journal.posted)
}

func TestOrderCompletedPostsRevenueAndCOGS(t *testing.T) {
	journal := newFakeJournal(allCodes()...)
	hooks := NewHooks(journal, nil)

	err := hooks.HandleOrderCompleted(context.Background(), sales.OrderCompletedEvent{
		OrderNumber: "SO-20250301-001", Revenue: 190, COGS: 110, ActorID: 7,
	})
	require.NoError(t, err)
	require.Len(t, journal.posted, 1)

	entry := journal.posted[0]
	require.Equal(t, accounting.JournalSales, entry.JournalType)
	require.Len(t, entry.Lines, 4)
	requireBalanced(t, entry)
	legs := legsByCode(t, journal, entry)
	require.InDelta(t, 190, legs[CodeCash].Debit, 0.001)
	require.InDelta(t, 110, legs[CodeCOGS].Debit, 0.001)
	require.InDelta(t, 190, legs[CodeRevenue].Credit, 0.001)
	require.InDelta(t, 110, legs[CodeInventory].Credit, 0.001)
}

func TestOrderWithZeroCOGSStillPosts(t *testing.T) {
	journal := newFakeJournal(allCodes()...)
	hooks := NewHooks(journal, nil)

	err := hooks.HandleOrderCompleted(context.Background(), sales.OrderCompletedEvent{
		OrderNumber: "SO-20250301-002", Revenue: 50, COGS: 0,
	})
	require.NoError(t, err)
	require.Len(t, journal.posted, 1)
	require.Len(t, journal.posted[0].Lines, 2)
	requireBalanced(t, journal.posted[0])
}
