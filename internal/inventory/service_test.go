package inventory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockbooks/stockbooks/internal/shared"
)

type balanceKey struct {
	productID   int64
	warehouseID int64
}

type memoryRepo struct {
	mu         sync.Mutex
	products   map[int64]Product
	warehouses map[int64]Warehouse
	docs       map[int64]Document
	balances   map[balanceKey]Balance
	ledger     []LedgerEntry
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:   map[int64]Product{},
		warehouses: map[int64]Warehouse{},
		docs:       map[int64]Document{},
		balances:   map[balanceKey]Balance{},
	}
}

func (m *memoryRepo) snapshot() (map[int64]Document, map[balanceKey]Balance, []LedgerEntry) {
	docs := make(map[int64]Document, len(m.docs))
	for id, doc := range m.docs {
		copied := doc
		copied.Lines = append([]Line(nil), doc.Lines...)
		docs[id] = copied
	}
	balances := make(map[balanceKey]Balance, len(m.balances))
	for k, v := range m.balances {
		balances[k] = v
	}
	ledger := append([]LedgerEntry(nil), m.ledger...)
	return docs, balances, ledger
}

func (m *memoryRepo) WithTx(_ context.Context, fn func(context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs, balances, ledger := m.snapshot()
	if err := fn(context.Background()); err != nil {
		m.docs, m.balances, m.ledger = docs, balances, ledger
		return err
	}
	return nil
}

func (m *memoryRepo) GetProduct(_ context.Context, id int64) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (m *memoryRepo) GetWarehouse(_ context.Context, id int64) (Warehouse, error) {
	w, ok := m.warehouses[id]
	if !ok {
		return Warehouse{}, ErrWarehouseNotFound
	}
	return w, nil
}

func (m *memoryRepo) ListWarehouses(_ context.Context) ([]Warehouse, error) {
	out := []Warehouse{}
	for _, w := range m.warehouses {
		out = append(out, w)
	}
	return out, nil
}

func (m *memoryRepo) CreateWarehouse(_ context.Context, w Warehouse) (int64, error) {
	m.nextID++
	w.ID = m.nextID
	m.warehouses[w.ID] = w
	return w.ID, nil
}

func (m *memoryRepo) UpdateWarehouse(_ context.Context, w Warehouse) error {
	if _, ok := m.warehouses[w.ID]; !ok {
		return ErrWarehouseNotFound
	}
	m.warehouses[w.ID] = w
	return nil
}

func (m *memoryRepo) DeleteWarehouse(_ context.Context, id int64) error {
	if _, ok := m.warehouses[id]; !ok {
		return ErrWarehouseNotFound
	}
	delete(m.warehouses, id)
	return nil
}

func (m *memoryRepo) WarehouseStockTotal(_ context.Context, warehouseID int64) (int64, error) {
	var total int64
	for k, bal := range m.balances {
		if k.warehouseID == warehouseID {
			total += bal.Quantity
		}
	}
	return total, nil
}

func (m *memoryRepo) InsertDocument(_ context.Context, doc Document) (int64, error) {
	m.nextID++
	doc.ID = m.nextID
	for i := range doc.Lines {
		m.nextID++
		doc.Lines[i].ID = m.nextID
		doc.Lines[i].DocumentID = doc.ID
	}
	m.docs[doc.ID] = doc
	return doc.ID, nil
}

func (m *memoryRepo) GetDocument(_ context.Context, id int64) (Document, error) {
	doc, ok := m.docs[id]
	if !ok {
		return Document{}, ErrDocNotFound
	}
	doc.Lines = append([]Line(nil), doc.Lines...)
	return doc, nil
}

func (m *memoryRepo) ListDocuments(_ context.Context, filter DocumentFilter) ([]Document, int, error) {
	out := []Document{}
	for _, doc := range m.docs {
		if filter.DocType != "" && doc.DocType != filter.DocType {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		out = append(out, doc)
	}
	return out, len(out), nil
}

func (m *memoryRepo) DeleteDocument(_ context.Context, id int64) error {
	if _, ok := m.docs[id]; !ok {
		return ErrDocNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *memoryRepo) MarkPosted(_ context.Context, id int64, postedAt time.Time) (bool, error) {
	doc, ok := m.docs[id]
	if !ok || doc.Status != DocStatusDraft {
		return false, nil
	}
	doc.Status = DocStatusPosted
	doc.PostedAt = &postedAt
	m.docs[id] = doc
	return true, nil
}

func (m *memoryRepo) MarkCancelled(_ context.Context, id int64) (bool, error) {
	doc, ok := m.docs[id]
	if !ok || doc.Status != DocStatusDraft {
		return false, nil
	}
	doc.Status = DocStatusCancelled
	m.docs[id] = doc
	return true, nil
}

func (m *memoryRepo) GetBalanceForUpdate(_ context.Context, productID, warehouseID int64) (Balance, error) {
	bal, ok := m.balances[balanceKey{productID, warehouseID}]
	if !ok {
		return Balance{ProductID: productID, WarehouseID: warehouseID}, ErrBalanceNotFound
	}
	return bal, nil
}

func (m *memoryRepo) UpsertBalance(_ context.Context, bal Balance) error {
	m.balances[balanceKey{bal.ProductID, bal.WarehouseID}] = bal
	return nil
}

func (m *memoryRepo) ListBalances(_ context.Context, filter BalanceFilter) ([]Balance, error) {
	out := []Balance{}
	for _, bal := range m.balances {
		if filter.ProductID != 0 && bal.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != 0 && bal.WarehouseID != filter.WarehouseID {
			continue
		}
		out = append(out, bal)
	}
	return out, nil
}

func (m *memoryRepo) InsertLedgerEntry(_ context.Context, entry LedgerEntry) error {
	entry.ID = int64(len(m.ledger) + 1)
	m.ledger = append(m.ledger, entry)
	return nil
}

func (m *memoryRepo) ListLedger(_ context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	out := []LedgerEntry{}
	for _, entry := range m.ledger {
		if filter.ProductID != 0 && entry.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != 0 && entry.WarehouseID != filter.WarehouseID {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

type fakeSequencer struct {
	mu  sync.Mutex
	seq int
}

func (f *fakeSequencer) Next(_ context.Context, kind string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("%s-20250301-%03d", kind, f.seq), nil
}

type serialCall struct {
	op            string
	serial        string
	warehouseID   int64
	destWarehouse int64
}

type recordingSerials struct {
	calls []serialCall
}

func (r *recordingSerials) Register(_ context.Context, sn string, _, warehouseID int64, _ float64, _ SerialRef) error {
	r.calls = append(r.calls, serialCall{op: "register", serial: sn, warehouseID: warehouseID})
	return nil
}

func (r *recordingSerials) Issue(_ context.Context, sn string, warehouseID int64, _ SerialRef) error {
	r.calls = append(r.calls, serialCall{op: "issue", serial: sn, warehouseID: warehouseID})
	return nil
}

func (r *recordingSerials) Transfer(_ context.Context, sn string, from, to int64, _ SerialRef) error {
	r.calls = append(r.calls, serialCall{op: "transfer", serial: sn, warehouseID: from, destWarehouse: to})
	return nil
}

type recordingIntegration struct {
	mu     sync.Mutex
	events []DocumentPostedEvent
}

func (r *recordingIntegration) HandleDocumentPosted(_ context.Context, evt DocumentPostedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

type testEnv struct {
	repo        *memoryRepo
	serials     *recordingSerials
	integration *recordingIntegration
	service     *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := newMemoryRepo()
	repo.warehouses[1] = Warehouse{ID: 1, Name: "Main", Active: true}
	repo.warehouses[2] = Warehouse{ID: 2, Name: "Branch", Active: true}
	repo.products[10] = Product{ID: 10, Name: "Phone", CostPrice: 90, TrackSerial: true, WarrantyMonths: 12}
	repo.products[11] = Product{ID: 11, Name: "Cable", CostPrice: 5}
	serials := &recordingSerials{}
	integration := &recordingIntegration{}
	svc := NewService(repo, &fakeSequencer{}, serials, nil, nil, integration, nil)
	return &testEnv{repo: repo, serials: serials, integration: integration, service: svc}
}

func (e *testEnv) mustPost(t *testing.T, input CreateDocumentInput) Document {
	t.Helper()
	ctx := context.Background()
	doc, err := e.service.CreateDocument(ctx, input)
	require.NoError(t, err)
	posted, err := e.service.PostDocument(ctx, doc.ID, 7)
	require.NoError(t, err)
	return posted
}

func TestPostReceiptThenIssue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeReceipt,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 10, UnitCost: 100}},
	})
	env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeIssue,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 4}},
	})

	bal, err := env.repo.GetBalanceForUpdate(ctx, 11, 1)
	require.NoError(t, err)
	require.EqualValues(t, 6, bal.Quantity)
	require.InDelta(t, 100, bal.AvgCost, 0.0001)

	entries, err := env.repo.ListLedger(ctx, LedgerFilter{ProductID: 11})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.EqualValues(t, 10, entries[0].QuantityChange)
	require.EqualValues(t, 10, entries[0].QuantityAfter)
	require.EqualValues(t, -4, entries[1].QuantityChange)
	require.EqualValues(t, 6, entries[1].QuantityAfter)
	require.InDelta(t, 100, entries[1].UnitCost, 0.0001)

	require.Len(t, env.integration.events, 2)
	require.InDelta(t, 1000, env.integration.events[0].TotalValue, 0.0001)
	require.InDelta(t, 400, env.integration.events[1].TotalValue, 0.0001)
}

func TestWeightedAverageRecompute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeReceipt,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 10, UnitCost: 100}},
	})
	env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeReceipt,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 10, UnitCost: 200}},
	})

	bal, err := env.repo.GetBalanceForUpdate(ctx, 11, 1)
	require.NoError(t, err)
	require.EqualValues(t, 20, bal.Quantity)
	require.InDelta(t, 150, bal.AvgCost, 0.0001)

	// consumption does not move the average
	env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeIssue,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 5}},
	})
	bal, err = env.repo.GetBalanceForUpdate(ctx, 11, 1)
	require.NoError(t, err)
	require.InDelta(t, 150, bal.AvgCost, 0.0001)
}

func TestIssueInsufficientStockRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeReceipt,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 3, UnitCost: 100}},
	})
	doc, err := env.service.CreateDocument(ctx, CreateDocumentInput{
		DocType:     DocTypeIssue,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 5}},
	})
	require.NoError(t, err)

	_, err = env.service.PostDocument(ctx, doc.ID, 7)
	require.Error(t, err)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.EqualValues(t, 5, insufficient.Requested)
	require.EqualValues(t, 3, insufficient.Available)
	require.ErrorIs(t, err, shared.ErrConflict)

	bal, err := env.repo.GetBalanceForUpdate(ctx, 11, 1)
	require.NoError(t, err)
	require.EqualValues(t, 3, bal.Quantity)

	reloaded, err := env.service.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, DocStatusDraft, reloaded.Status)
}

func TestMultiLineFailureRollsBackAllLines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeReceipt,
		WarehouseID: 1,
		Lines: []CreateLineInput{
			{ProductID: 11, Quantity: 10, UnitCost: 100},
		},
	})
	doc, err := env.service.CreateDocument(ctx, CreateDocumentInput{
		DocType:     DocTypeIssue,
		WarehouseID: 1,
		Lines: []CreateLineInput{
			{ProductID: 11, Quantity: 4},
			{ProductID: 11, Quantity: 40},
		},
	})
	require.NoError(t, err)

	_, err = env.service.PostDocument(ctx, doc.ID, 7)
	require.Error(t, err)

	bal, err := env.repo.GetBalanceForUpdate(ctx, 11, 1)
	require.NoError(t, err)
	require.EqualValues(t, 10, bal.Quantity, "first line must not stick after the second fails")
	entries, err := env.repo.ListLedger(ctx, LedgerFilter{ProductID: 11})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestTransferBetweenWarehouses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeReceipt,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 6, UnitCost: 100}},
	})
	env.mustPost(t, CreateDocumentInput{
		DocType:         DocTypeTransfer,
		WarehouseID:     1,
		DestWarehouseID: 2,
		Lines:           []CreateLineInput{{ProductID: 11, Quantity: 5}},
	})

	src, err := env.repo.GetBalanceForUpdate(ctx, 11, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, src.Quantity)
	require.InDelta(t, 100, src.AvgCost, 0.0001)

	dst, err := env.repo.GetBalanceForUpdate(ctx, 11, 2)
	require.NoError(t, err)
	require.EqualValues(t, 5, dst.Quantity)
	require.InDelta(t, 100, dst.AvgCost, 0.0001)

	entries, err := env.repo.ListLedger(ctx, LedgerFilter{ProductID: 11})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, EntryTransferOut, entries[1].EntryType)
	require.EqualValues(t, -5, entries[1].QuantityChange)
	require.Equal(t, EntryTransferIn, entries[2].EntryType)
	require.EqualValues(t, 5, entries[2].QuantityChange)

	// transfers move no net value
	last := env.integration.events[len(env.integration.events)-1]
	require.Equal(t, DocTypeTransfer, last.DocType)
}

func TestAdjustmentSetsTargetQuantity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeReceipt,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 10, UnitCost: 100}},
	})
	env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeAdjustment,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 7}},
	})

	bal, err := env.repo.GetBalanceForUpdate(ctx, 11, 1)
	require.NoError(t, err)
	require.EqualValues(t, 7, bal.Quantity)

	entries, err := env.repo.ListLedger(ctx, LedgerFilter{ProductID: 11})
	require.NoError(t, err)
	require.EqualValues(t, -3, entries[len(entries)-1].QuantityChange)

	last := env.integration.events[len(env.integration.events)-1]
	require.InDelta(t, -300, last.NetChange, 0.0001)
}

func TestRepostPostedDocumentIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	posted := env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeReceipt,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 10, UnitCost: 100}},
	})

	again, err := env.service.PostDocument(ctx, posted.ID, 7)
	require.NoError(t, err)
	require.Equal(t, DocStatusPosted, again.Status)

	bal, err := env.repo.GetBalanceForUpdate(ctx, 11, 1)
	require.NoError(t, err)
	require.EqualValues(t, 10, bal.Quantity, "re-post must not re-apply effects")
	entries, err := env.repo.ListLedger(ctx, LedgerFilter{ProductID: 11})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, env.integration.events, 1)
}

func TestPostCancelledDocumentRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc, err := env.service.CreateDocument(ctx, CreateDocumentInput{
		DocType:     DocTypeReceipt,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 1, UnitCost: 10}},
	})
	require.NoError(t, err)
	require.NoError(t, env.service.CancelDocument(ctx, doc.ID, 7))

	_, err = env.service.PostDocument(ctx, doc.ID, 7)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestDeletePostedDocumentRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	posted := env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeReceipt,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 1, UnitCost: 10}},
	})
	err := env.service.DeleteDocument(ctx, posted.ID, 7)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestConcurrentIssuesOnlyOneSucceeds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeReceipt,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 10, UnitCost: 100}},
	})

	first, err := env.service.CreateDocument(ctx, CreateDocumentInput{
		DocType:     DocTypeIssue,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 6}},
	})
	require.NoError(t, err)
	second, err := env.service.CreateDocument(ctx, CreateDocumentInput{
		DocType:     DocTypeIssue,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 6}},
	})
	require.NoError(t, err)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []int64{first.ID, second.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.PostDocument(context.Background(), id, 7)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var successes, conflicts int
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		require.ErrorIs(t, err, shared.ErrConflict)
		conflicts++
	}
	require.Equal(t, 1, successes)
	require.Equal(t, 1, conflicts)

	bal, err := env.repo.GetBalanceForUpdate(ctx, 11, 1)
	require.NoError(t, err)
	require.EqualValues(t, 4, bal.Quantity)
}

func TestSerialEffectsPerDocType(t *testing.T) {
	env := newTestEnv(t)

	env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeReceipt,
		WarehouseID: 1,
		Lines: []CreateLineInput{
			{ProductID: 10, Quantity: 2, UnitCost: 90, SerialNumbers: []string{"SN1", "SN2"}},
		},
	})
	env.mustPost(t, CreateDocumentInput{
		DocType:         DocTypeTransfer,
		WarehouseID:     1,
		DestWarehouseID: 2,
		Lines: []CreateLineInput{
			{ProductID: 10, Quantity: 1, SerialNumbers: []string{"SN1"}},
		},
	})
	env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeIssue,
		WarehouseID: 1,
		Lines: []CreateLineInput{
			{ProductID: 10, Quantity: 1, SerialNumbers: []string{"SN2"}},
		},
	})

	require.Len(t, env.serials.calls, 4)
	require.Equal(t, serialCall{op: "register", serial: "SN1", warehouseID: 1}, env.serials.calls[0])
	require.Equal(t, serialCall{op: "register", serial: "SN2", warehouseID: 1}, env.serials.calls[1])
	require.Equal(t, serialCall{op: "transfer", serial: "SN1", warehouseID: 1, destWarehouse: 2}, env.serials.calls[2])
	require.Equal(t, serialCall{op: "issue", serial: "SN2", warehouseID: 1}, env.serials.calls[3])
}

func TestCreateDocumentValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.CreateDocument(ctx, CreateDocumentInput{
		DocType:     DocTypeTransfer,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation, "transfer needs a destination")

	_, err = env.service.CreateDocument(ctx, CreateDocumentInput{
		DocType:     DocTypeReceipt,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 2, SerialNumbers: []string{"X"}}},
	})
	require.ErrorIs(t, err, shared.ErrValidation, "serials on a non-tracked product")

	_, err = env.service.CreateDocument(ctx, CreateDocumentInput{
		DocType:     DocTypeReceipt,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 10, Quantity: 2, UnitCost: 90, SerialNumbers: []string{"X"}}},
	})
	require.ErrorIs(t, err, shared.ErrValidation, "serial count must match quantity")

	_, err = env.service.CreateDocument(ctx, CreateDocumentInput{
		DocType:     DocTypeReceipt,
		WarehouseID: 99,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteWarehouseWithStockRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeReceipt,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 1, UnitCost: 10}},
	})
	err := env.service.DeleteWarehouse(ctx, 1, 7)
	require.ErrorIs(t, err, shared.ErrConflict)

	require.NoError(t, env.service.DeleteWarehouse(ctx, 2, 7))
}

func TestLedgerSumMatchesBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeReceipt,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 10, UnitCost: 100}},
	})
	env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeIssue,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 3}},
	})
	env.mustPost(t, CreateDocumentInput{
		DocType:     DocTypeAdjustment,
		WarehouseID: 1,
		Lines:       []CreateLineInput{{ProductID: 11, Quantity: 12}},
	})
	env.mustPost(t, CreateDocumentInput{
		DocType:         DocTypeTransfer,
		WarehouseID:     1,
		DestWarehouseID: 2,
		Lines:           []CreateLineInput{{ProductID: 11, Quantity: 4}},
	})

	entries, err := env.repo.ListLedger(ctx, LedgerFilter{ProductID: 11, WarehouseID: 1})
	require.NoError(t, err)
	var sum int64
	for _, entry := range entries {
		sum += entry.QuantityChange
	}
	bal, err := env.repo.GetBalanceForUpdate(ctx, 11, 1)
	require.NoError(t, err)
	require.Equal(t, bal.Quantity, sum)
}
