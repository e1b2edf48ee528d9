package accounting

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockbooks/stockbooks/internal/shared"
)

type memoryRepo struct {
	accounts map[int64]Account
	entries  map[int64]JournalEntry
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{accounts: map[int64]Account{}, entries: map[int64]JournalEntry{}}
}

func (m *memoryRepo) WithTx(_ context.Context, fn func(context.Context) error) error {
	return fn(context.Background())
}

func (m *memoryRepo) InsertAccount(_ context.Context, a Account) (int64, error) {
	for _, existing := range m.accounts {
		if existing.Code == a.Code {
			return 0, ErrDuplicateCode
		}
	}
	m.nextID++
	a.ID = m.nextID
	m.accounts[a.ID] = a
	return a.ID, nil
}

func (m *memoryRepo) GetAccount(_ context.Context, id int64) (Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (m *memoryRepo) GetAccountByCode(_ context.Context, code string) (Account, error) {
	for _, a := range m.accounts {
		if a.Code == code {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (m *memoryRepo) UpdateAccount(_ context.Context, a Account) error {
	if _, ok := m.accounts[a.ID]; !ok {
		return ErrAccountNotFound
	}
	for _, existing := range m.accounts {
		if existing.Code == a.Code && existing.ID != a.ID {
			return ErrDuplicateCode
		}
	}
	m.accounts[a.ID] = a
	return nil
}

func (m *memoryRepo) DeleteAccount(_ context.Context, id int64) error {
	if _, ok := m.accounts[id]; !ok {
		return ErrAccountNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *memoryRepo) ListAccounts(_ context.Context) ([]Account, error) {
	out := []Account{}
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (m *memoryRepo) LineCount(_ context.Context, accountID int64, postedOnly bool) (int, error) {
	count := 0
	for _, entry := range m.entries {
		if postedOnly && entry.Status != EntryPosted {
			continue
		}
		for _, line := range entry.Lines {
			if line.AccountID == accountID {
				count++
			}
		}
	}
	return count, nil
}

func (m *memoryRepo) ChildCount(_ context.Context, accountID int64) (int, error) {
	count := 0
	for _, a := range m.accounts {
		if a.ParentID == accountID {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) InsertEntry(_ context.Context, entry JournalEntry) (int64, error) {
	m.nextID++
	entry.ID = m.nextID
	for i := range entry.Lines {
		m.nextID++
		entry.Lines[i].ID = m.nextID
		entry.Lines[i].EntryID = entry.ID
	}
	m.entries[entry.ID] = entry
	return entry.ID, nil
}

func (m *memoryRepo) GetEntry(_ context.Context, id int64) (JournalEntry, error) {
	entry, ok := m.entries[id]
	if !ok {
		return JournalEntry{}, ErrEntryNotFound
	}
	entry.Lines = append([]JournalLine(nil), entry.Lines...)
	return entry, nil
}

func (m *memoryRepo) ListEntries(_ context.Context, filter EntryFilter) ([]JournalEntry, int, error) {
	out := []JournalEntry{}
	for _, entry := range m.entries {
		if filter.JournalType != "" && entry.JournalType != filter.JournalType {
			continue
		}
		if filter.Status != "" && entry.Status != filter.Status {
			continue
		}
		out = append(out, entry)
	}
	return out, len(out), nil
}

func (m *memoryRepo) DeleteEntry(_ context.Context, id int64) error {
	if _, ok := m.entries[id]; !ok {
		return ErrEntryNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *memoryRepo) MarkEntryPosted(_ context.Context, id int64) (bool, error) {
	entry, ok := m.entries[id]
	if !ok || entry.Status != EntryDraft {
		return false, nil
	}
	entry.Status = EntryPosted
	m.entries[id] = entry
	return true, nil
}

type fakeSequencer struct{ seq int }

func (f *fakeSequencer) Next(_ context.Context, kind string) (string, error) {
	f.seq++
	return fmt.Sprintf("%s-20250301-%03d", kind, f.seq), nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	return NewService(repo, &fakeSequencer{}, nil, nil), repo
}

func seedAccounts(t *testing.T, svc *Service) map[string]Account {
	t.Helper()
	ctx := context.Background()
	out := map[string]Account{}
	for _, a := range []Account{
		{Code: "100", Name: "Assets", Type: TypeAsset, IsHeader: true},
		{Code: "111", Name: "Cash", Type: TypeAsset},
		{Code: "156", Name: "Inventory", Type: TypeAsset},
		{Code: "331", Name: "Accounts Payable", Type: TypeLiability},
		{Code: "511", Name: "Revenue", Type: TypeRevenue},
		{Code: "632", Name: "Cost of Goods Sold", Type: TypeExpense},
	} {
		created, err := svc.CreateAccount(ctx, a)
		require.NoError(t, err)
		out[created.Code] = created
	}
	return out
}

func TestCreateAccountGuards(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	accounts := seedAccounts(t, svc)

	_, err := svc.CreateAccount(ctx, Account{Code: "111", Name: "Duplicate", Type: TypeAsset})
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.CreateAccount(ctx, Account{Code: "112", Name: "Bank", Type: TypeAsset, ParentID: accounts["111"].ID})
	require.ErrorIs(t, err, ErrParentNotHeader)

	child, err := svc.CreateAccount(ctx, Account{Code: "112", Name: "Bank", Type: TypeAsset, ParentID: accounts["100"].ID})
	require.NoError(t, err)
	require.True(t, child.IsActive)

	_, err = svc.CreateAccount(ctx, Account{Code: "113", Name: "Weird", Type: "imaginary"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAccountTypeImmutableOncePosted(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	accounts := seedAccounts(t, svc)

	entry, err := svc.CreateEntry(ctx, CreateEntryInput{
		JournalType: JournalGeneral,
		Lines: []CreateLineInput{
			{AccountID: accounts["111"].ID, Debit: 100},
			{AccountID: accounts["511"].ID, Credit: 100},
		},
	})
	require.NoError(t, err)

	// type changes are still allowed while the entry is a draft
	cash := accounts["111"]
	cash.Type = TypeExpense
	updated, err := svc.UpdateAccount(ctx, cash)
	require.NoError(t, err)
	require.Equal(t, TypeExpense, updated.Type)

	_, err = svc.PostEntry(ctx, entry.ID, 7)
	require.NoError(t, err)

	cash.Type = TypeAsset
	_, err = svc.UpdateAccount(ctx, cash)
	require.ErrorIs(t, err, ErrTypeImmutable)

	// renaming without touching the type stays legal
	cash.Type = TypeExpense
	cash.Name = "Cash on Hand"
	_, err = svc.UpdateAccount(ctx, cash)
	require.NoError(t, err)
}

func TestDeleteAccountGuards(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	accounts := seedAccounts(t, svc)

	require.ErrorIs(t, svc.DeleteAccount(ctx, accounts["100"].ID), ErrAccountHasChildren)

	_, err := svc.CreateEntry(ctx, CreateEntryInput{
		JournalType: JournalGeneral,
		Lines: []CreateLineInput{
			{AccountID: accounts["111"].ID, Debit: 50},
			{AccountID: accounts["511"].ID, Credit: 50},
		},
	})
	require.NoError(t, err)
	require.ErrorIs(t, svc.DeleteAccount(ctx, accounts["111"].ID), ErrAccountHasLines)

	require.NoError(t, svc.DeleteAccount(ctx, accounts["632"].ID))
}

func TestCreateEntryBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	accounts := seedAccounts(t, svc)

	var unbalanced *UnbalancedError
	_, err := svc.CreateEntry(ctx, CreateEntryInput{
		JournalType: JournalGeneral,
		Lines: []CreateLineInput{
			{AccountID: accounts["111"].ID, Debit: 100},
			{AccountID: accounts["511"].ID, Credit: 90},
		},
	})
	require.ErrorAs(t, err, &unbalanced)
	require.ErrorIs(t, err, shared.ErrConflict)

	// rounding drift within a cent is accepted
	entry, err := svc.CreateEntry(ctx, CreateEntryInput{
		JournalType: JournalSales,
		Lines: []CreateLineInput{
			{AccountID: accounts["111"].ID, Debit: 100.004},
			{AccountID: accounts["511"].ID, Credit: 100},
		},
	})
	require.NoError(t, err)
	require.Equal(t, EntryDraft, entry.Status)
	require.Contains(t, entry.EntryNumber, "journal_sales")
}

func TestCreateEntryLineRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	accounts := seedAccounts(t, svc)

	_, err := svc.CreateEntry(ctx, CreateEntryInput{
		JournalType: JournalGeneral,
		Lines: []CreateLineInput{
			{AccountID: accounts["100"].ID, Debit: 100},
			{AccountID: accounts["511"].ID, Credit: 100},
		},
	})
	require.ErrorIs(t, err, ErrHeaderAccountLine)

	_, err = svc.CreateEntry(ctx, CreateEntryInput{
		JournalType: JournalGeneral,
		Lines: []CreateLineInput{
			{AccountID: accounts["111"].ID, Debit: 100, Credit: 100},
			{AccountID: accounts["511"].ID, Credit: 0},
		},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateEntry(ctx, CreateEntryInput{
		JournalType: JournalGeneral,
		Lines:       []CreateLineInput{{AccountID: accounts["111"].ID, Debit: 0}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateEntry(ctx, CreateEntryInput{
		JournalType: "imaginary",
		Lines: []CreateLineInput{
			{AccountID: accounts["111"].ID, Debit: 100},
			{AccountID: accounts["511"].ID, Credit: 100},
		},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPostEntryIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	accounts := seedAccounts(t, svc)

	entry, err := svc.CreateEntry(ctx, CreateEntryInput{
		JournalType: JournalInventory,
		Lines: []CreateLineInput{
			{AccountID: accounts["156"].ID, Debit: 500},
			{AccountID: accounts["331"].ID, Credit: 500},
		},
	})
	require.NoError(t, err)

	posted, err := svc.PostEntry(ctx, entry.ID, 7)
	require.NoError(t, err)
	require.Equal(t, EntryPosted, posted.Status)

	again, err := svc.PostEntry(ctx, entry.ID, 7)
	require.NoError(t, err)
	require.Equal(t, EntryPosted, again.Status)
	require.Equal(t, EntryPosted, repo.entries[entry.ID].Status)
}

func TestDeleteEntryDraftOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	accounts := seedAccounts(t, svc)

	entry, err := svc.CreateEntry(ctx, CreateEntryInput{
		JournalType: JournalGeneral,
		Lines: []CreateLineInput{
			{AccountID: accounts["111"].ID, Debit: 10},
			{AccountID: accounts["511"].ID, Credit: 10},
		},
	})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteEntry(ctx, entry.ID, 7))

	entry, err = svc.CreateEntry(ctx, CreateEntryInput{
		JournalType: JournalGeneral,
		Lines: []CreateLineInput{
			{AccountID: accounts["111"].ID, Debit: 10},
			{AccountID: accounts["511"].ID, Credit: 10},
		},
	})
	require.NoError(t, err)
	_, err = svc.PostEntry(ctx, entry.ID, 7)
	require.NoError(t, err)
	require.ErrorIs(t, svc.DeleteEntry(ctx, entry.ID, 7), shared.ErrConflict)
}

func TestCreateAndPost(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	accounts := seedAccounts(t, svc)

	entry, err := svc.CreateAndPost(ctx, CreateEntryInput{
		JournalType: JournalInventory,
		Reference:   "PN-20250301-001",
		Lines: []CreateLineInput{
			{AccountID: accounts["156"].ID, Debit: 1000},
			{AccountID: accounts["331"].ID, Credit: 1000},
		},
	})
	require.NoError(t, err)
	require.Equal(t, EntryPosted, entry.Status)
	require.InDelta(t, 1000, entry.TotalDebit, 0.0001)
	require.InDelta(t, 1000, entry.TotalCredit, 0.0001)
}
