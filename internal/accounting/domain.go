// Package accounting keeps the chart of accounts and the journal
// engine. Entries are double-entry and must balance before they are
// accepted; posting is a one-way status flip.
package accounting

import (
	"fmt"
	"time"

	"github.com/stockbooks/stockbooks/internal/shared"
)

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	TypeAsset     AccountType = "asset"
	TypeLiability AccountType = "liability"
	TypeEquity    AccountType = "equity"
	TypeRevenue   AccountType = "revenue"
	TypeExpense   AccountType = "expense"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case TypeAsset, TypeLiability, TypeEquity, TypeRevenue, TypeExpense:
		return true
	}
	return false
}

// Account is one chart of accounts node. Header accounts group child
// accounts and never carry journal lines themselves.
type Account struct {
	ID        int64       `json:"id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	ParentID  int64       `json:"parent_id,omitempty"`
	IsHeader  bool        `json:"is_header"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// JournalType scopes entry numbering per source.
type JournalType string

const (
	JournalGeneral    JournalType = "general"
	JournalInventory  JournalType = "inventory"
	JournalSales      JournalType = "sales"
	JournalPurchase   JournalType = "purchase"
	JournalAdjustment JournalType = "adjustment"
)

// sequenceKinds maps each journal type onto its numbering counter.
var sequenceKinds = map[JournalType]string{
	JournalGeneral:    "journal",
	JournalInventory:  "journal_inventory",
	JournalSales:      "journal_sales",
	JournalPurchase:   "journal_purchase",
	JournalAdjustment: "journal_adjustment",
}

// Valid reports whether t is a known journal type.
func (t JournalType) Valid() bool {
	_, ok := sequenceKinds[t]
	return ok
}

// EntryStatus enumerates the journal entry lifecycle.
type EntryStatus string

const (
	EntryDraft  EntryStatus = "draft"
	EntryPosted EntryStatus = "posted"
)

// JournalEntry is one double-entry record with its lines.
type JournalEntry struct {
	ID          int64         `json:"id"`
	EntryNumber string        `json:"entry_number"`
	JournalType JournalType   `json:"journal_type"`
	Date        time.Time     `json:"date"`
	Description string        `json:"description,omitempty"`
	Reference   string        `json:"reference,omitempty"`
	Status      EntryStatus   `json:"status"`
	TotalDebit  float64       `json:"total_debit"`
	TotalCredit float64       `json:"total_credit"`
	CreatedBy   int64         `json:"created_by,omitempty"`
	PostedAt    *time.Time    `json:"posted_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Lines       []JournalLine `json:"lines,omitempty"`
}

// JournalLine stores one debit or credit leg.
type JournalLine struct {
	ID          int64   `json:"id"`
	EntryID     int64   `json:"entry_id"`
	AccountID   int64   `json:"account_id"`
	Description string  `json:"description,omitempty"`
	Debit       float64 `json:"debit"`
	Credit      float64 `json:"credit"`
}

// CreateEntryInput groups fields for a new draft entry.
type CreateEntryInput struct {
	JournalType JournalType       `json:"journal_type" validate:"required"`
	Date        time.Time         `json:"date"`
	Description string            `json:"description"`
	Reference   string            `json:"reference"`
	ActorID     int64             `json:"-"`
	Lines       []CreateLineInput `json:"lines" validate:"required,min=2,dive"`
}

// CreateLineInput is one requested leg.
type CreateLineInput struct {
	AccountID   int64   `json:"account_id" validate:"required"`
	Description string  `json:"description"`
	Debit       float64 `json:"debit" validate:"gte=0"`
	Credit      float64 `json:"credit" validate:"gte=0"`
}

// EntryFilter filters entry listings.
type EntryFilter struct {
	JournalType JournalType
	Status      EntryStatus
	DateFrom    *time.Time
	DateTo      *time.Time
	Page        int
	PerPage     int
}

// balanceTolerance absorbs float rounding on totals.
const balanceTolerance = 0.01

// Sentinel errors.
var (
	ErrAccountNotFound    = fmt.Errorf("accounting: account %w", shared.ErrNotFound)
	ErrEntryNotFound      = fmt.Errorf("accounting: journal entry %w", shared.ErrNotFound)
	ErrDuplicateCode      = fmt.Errorf("accounting: account code already exists: %w", shared.ErrConflict)
	ErrParentNotHeader    = fmt.Errorf("accounting: parent account must be a header: %w", shared.ErrValidation)
	ErrTypeImmutable      = fmt.Errorf("accounting: account type is immutable once lines are posted: %w", shared.ErrConflict)
	ErrAccountHasLines    = fmt.Errorf("accounting: account carries journal lines: %w", shared.ErrConflict)
	ErrAccountHasChildren = fmt.Errorf("accounting: account has child accounts: %w", shared.ErrConflict)
	ErrHeaderAccountLine  = fmt.Errorf("accounting: header accounts cannot carry journal lines: %w", shared.ErrValidation)
	ErrEntryPosted        = fmt.Errorf("accounting: entry is posted: %w", shared.ErrConflict)
	ErrStatusChanged      = fmt.Errorf("accounting: entry status changed concurrently: %w", shared.ErrConcurrency)
)

// UnbalancedError reports entry totals that do not match.
type UnbalancedError struct {
	Debit  float64
	Credit float64
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("accounting: entry does not balance: debit %.2f, credit %.2f", e.Debit, e.Credit)
}

// Unwrap maps the imbalance onto the conflict class.
func (e *UnbalancedError) Unwrap() error { return shared.ErrConflict }
