package accounting

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/stockbooks/stockbooks/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context) error) error
	InsertAccount(ctx context.Context, a Account) (int64, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	UpdateAccount(ctx context.Context, a Account) error
	DeleteAccount(ctx context.Context, id int64) error
	ListAccounts(ctx context.Context) ([]Account, error)
	LineCount(ctx context.Context, accountID int64, postedOnly bool) (int, error)
	ChildCount(ctx context.Context, accountID int64) (int, error)
	InsertEntry(ctx context.Context, entry JournalEntry) (int64, error)
	GetEntry(ctx context.Context, id int64) (JournalEntry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]JournalEntry, int, error)
	DeleteEntry(ctx context.Context, id int64) error
	MarkEntryPosted(ctx context.Context, id int64) (bool, error)
}

// SequencerPort issues entry numbers.
type SequencerPort interface {
	Next(ctx context.Context, kind string) (string, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the chart of accounts and journal entries.
type Service struct {
	repo  RepositoryPort
	seq   SequencerPort
	audit AuditPort
	log   *slog.Logger
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, seq SequencerPort, audit AuditPort, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, seq: seq, audit: audit, log: log, now: time.Now}
}

// CreateAccount adds a chart of accounts node.
func (s *Service) CreateAccount(ctx context.Context, a Account) (Account, error) {
	if a.Code == "" || a.Name == "" {
		return Account{}, fmt.Errorf("accounting: account code and name required: %w", shared.ErrValidation)
	}
	if !a.Type.Valid() {
		return Account{}, fmt.Errorf("accounting: unknown account type %q: %w", a.Type, shared.ErrValidation)
	}
	if a.ParentID != 0 {
		parent, err := s.repo.GetAccount(ctx, a.ParentID)
		if err != nil {
			return Account{}, err
		}
		if !parent.IsHeader {
			return Account{}, ErrParentNotHeader
		}
	}
	a.IsActive = true
	id, err := s.repo.InsertAccount(ctx, a)
	if err != nil {
		return Account{}, err
	}
	return s.repo.GetAccount(ctx, id)
}

// UpdateAccount modifies an account. The type is locked once the
// account carries posted lines.
func (s *Service) UpdateAccount(ctx context.Context, a Account) (Account, error) {
	if a.Code == "" || a.Name == "" {
		return Account{}, fmt.Errorf("accounting: account code and name required: %w", shared.ErrValidation)
	}
	if !a.Type.Valid() {
		return Account{}, fmt.Errorf("accounting: unknown account type %q: %w", a.Type, shared.ErrValidation)
	}
	existing, err := s.repo.GetAccount(ctx, a.ID)
	if err != nil {
		return Account{}, err
	}
	if a.Type != existing.Type {
		posted, err := s.repo.LineCount(ctx, a.ID, true)
		if err != nil {
			return Account{}, err
		}
		if posted > 0 {
			return Account{}, ErrTypeImmutable
		}
	}
	if a.ParentID != 0 && a.ParentID != existing.ParentID {
		parent, err := s.repo.GetAccount(ctx, a.ParentID)
		if err != nil {
			return Account{}, err
		}
		if !parent.IsHeader {
			return Account{}, ErrParentNotHeader
		}
	}
	if err := s.repo.UpdateAccount(ctx, a); err != nil {
		return Account{}, err
	}
	return s.repo.GetAccount(ctx, a.ID)
}

// DeleteAccount removes an unused leaf account.
func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	lines, err := s.repo.LineCount(ctx, id, false)
	if err != nil {
		return err
	}
	if lines > 0 {
		return ErrAccountHasLines
	}
	children, err := s.repo.ChildCount(ctx, id)
	if err != nil {
		return err
	}
	if children > 0 {
		return ErrAccountHasChildren
	}
	return s.repo.DeleteAccount(ctx, id)
}

// GetAccount loads one account.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// GetAccountByCode resolves an account by its code.
func (s *Service) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.GetAccountByCode(ctx, code)
}

// ListAccounts returns the chart of accounts.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

// CreateEntry validates and stores a draft journal entry. Totals must
// balance within a cent and no line may target a header account.
func (s *Service) CreateEntry(ctx context.Context, input CreateEntryInput) (JournalEntry, error) {
	entry, err := s.buildEntry(ctx, input)
	if err != nil {
		return JournalEntry{}, err
	}
	id, err := s.repo.InsertEntry(ctx, entry)
	if err != nil {
		return JournalEntry{}, err
	}
	created, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, input.ActorID, "journal:create", created.ID, map[string]any{"entry_number": created.EntryNumber})
	return created, nil
}

// PostEntry flips a draft to posted. Posting an already posted entry
// succeeds without re-applying anything.
func (s *Service) PostEntry(ctx context.Context, id, actorID int64) (JournalEntry, error) {
	var entry JournalEntry
	var alreadyDone bool
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		loaded, err := s.repo.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		if loaded.Status == EntryPosted {
			entry = loaded
			alreadyDone = true
			return nil
		}
		ok, err := s.repo.MarkEntryPosted(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrStatusChanged
		}
		loaded.Status = EntryPosted
		entry = loaded
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if !alreadyDone {
		s.recordAudit(ctx, actorID, "journal:post", entry.ID, map[string]any{"entry_number": entry.EntryNumber})
	}
	return entry, nil
}

// CreateAndPost stores and posts an entry in one transaction. Automated
// posting hooks use this path.
func (s *Service) CreateAndPost(ctx context.Context, input CreateEntryInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		built, err := s.buildEntry(ctx, input)
		if err != nil {
			return err
		}
		id, err := s.repo.InsertEntry(ctx, built)
		if err != nil {
			return err
		}
		if _, err := s.repo.MarkEntryPosted(ctx, id); err != nil {
			return err
		}
		entry, err = s.repo.GetEntry(ctx, id)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, input.ActorID, "journal:post", entry.ID, map[string]any{"entry_number": entry.EntryNumber})
	return entry, nil
}

// DeleteEntry removes a draft entry. Posted entries are immutable.
func (s *Service) DeleteEntry(ctx context.Context, id, actorID int64) error {
	entry, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry.Status != EntryDraft {
		return ErrEntryPosted
	}
	if err := s.repo.DeleteEntry(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "journal:delete", id, map[string]any{"entry_number": entry.EntryNumber})
	return nil
}

// GetEntry loads one entry with lines.
func (s *Service) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.GetEntry(ctx, id)
}

// ListEntries lists entry headers.
func (s *Service) ListEntries(ctx context.Context, filter EntryFilter) ([]JournalEntry, shared.Pagination, error) {
	entries, total, err := s.repo.ListEntries(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) buildEntry(ctx context.Context, input CreateEntryInput) (JournalEntry, error) {
	if !input.JournalType.Valid() {
		return JournalEntry{}, fmt.Errorf("accounting: unknown journal type %q: %w", input.JournalType, shared.ErrValidation)
	}
	if len(input.Lines) < 2 {
		return JournalEntry{}, fmt.Errorf("accounting: entry requires at least two lines: %w", shared.ErrValidation)
	}
	entry := JournalEntry{
		JournalType: input.JournalType,
		Date:        input.Date,
		Description: input.Description,
		Reference:   input.Reference,
		Status:      EntryDraft,
		CreatedBy:   input.ActorID,
	}
	if entry.Date.IsZero() {
		entry.Date = s.now().UTC()
	}
	for _, in := range input.Lines {
		if in.Debit < 0 || in.Credit < 0 {
			return JournalEntry{}, fmt.Errorf("accounting: line amounts must be >= 0: %w", shared.ErrValidation)
		}
		if in.Debit > 0 && in.Credit > 0 {
			return JournalEntry{}, fmt.Errorf("accounting: a line cannot carry both debit and credit: %w", shared.ErrValidation)
		}
		account, err := s.repo.GetAccount(ctx, in.AccountID)
		if err != nil {
			return JournalEntry{}, err
		}
		if account.IsHeader {
			return JournalEntry{}, ErrHeaderAccountLine
		}
		entry.Lines = append(entry.Lines, JournalLine{
			AccountID:   in.AccountID,
			Description: in.Description,
			Debit:       in.Debit,
			Credit:      in.Credit,
		})
		entry.TotalDebit += in.Debit
		entry.TotalCredit += in.Credit
	}
	if math.Abs(entry.TotalDebit-entry.TotalCredit) > balanceTolerance {
		return JournalEntry{}, &UnbalancedError{Debit: entry.TotalDebit, Credit: entry.TotalCredit}
	}
	number, err := s.seq.Next(ctx, sequenceKinds[input.JournalType])
	if err != nil {
		return JournalEntry{}, err
	}
	entry.EntryNumber = number
	return entry, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entryID),
		Meta:     meta,
	})
}
