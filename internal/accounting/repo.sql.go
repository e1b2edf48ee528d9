package accounting

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbooks/stockbooks/internal/platform/db"
)

// Repository persists accounts and journal entries in PostgreSQL.
// Methods join an active transaction carried in the context.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, fn)
}

// InsertAccount stores a new account. Duplicate codes surface as
// ErrDuplicateCode via the unique index.
func (r *Repository) InsertAccount(ctx context.Context, a Account) (int64, error) {
	q := db.From(ctx, r.pool)
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO accounts (code, name, type, parent_id, is_header, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id`,
		a.Code, a.Name, string(a.Type), nullInt(a.ParentID), a.IsHeader, a.IsActive).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, ErrDuplicateCode
		}
		return 0, err
	}
	return id, nil
}

// GetAccount returns one account by id.
func (r *Repository) GetAccount(ctx context.Context, id int64) (Account, error) {
	return r.getAccount(ctx, `WHERE id=$1`, id)
}

// GetAccountByCode returns one account by its code.
func (r *Repository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	return r.getAccount(ctx, `WHERE code=$1`, code)
}

func (r *Repository) getAccount(ctx context.Context, where string, arg any) (Account, error) {
	q := db.From(ctx, r.pool)
	var a Account
	err := q.QueryRow(ctx, `SELECT id, code, name, type, COALESCE(parent_id,0), is_header, is_active, created_at, updated_at FROM accounts `+where, arg).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsHeader, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// UpdateAccount writes the mutable fields of an account.
func (r *Repository) UpdateAccount(ctx context.Context, a Account) error {
	q := db.From(ctx, r.pool)
	tag, err := q.Exec(ctx, `UPDATE accounts SET code=$2, name=$3, type=$4, parent_id=$5, is_header=$6, is_active=$7, updated_at=NOW() WHERE id=$1`,
		a.ID, a.Code, a.Name, string(a.Type), nullInt(a.ParentID), a.IsHeader, a.IsActive)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DeleteAccount removes an account row.
func (r *Repository) DeleteAccount(ctx context.Context, id int64) error {
	q := db.From(ctx, r.pool)
	tag, err := q.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ListAccounts returns the chart of accounts ordered by code.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	q := db.From(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT id, code, name, type, COALESCE(parent_id,0), is_header, is_active, created_at, updated_at FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := []Account{}
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsHeader, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// LineCount counts journal lines referencing the account, optionally
// restricted to posted entries.
func (r *Repository) LineCount(ctx context.Context, accountID int64, postedOnly bool) (int, error) {
	q := db.From(ctx, r.pool)
	query := `SELECT COUNT(*) FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id WHERE l.account_id=$1`
	if postedOnly {
		query += ` AND e.status='posted'`
	}
	var count int
	if err := q.QueryRow(ctx, query, accountID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ChildCount counts accounts whose parent is the given account.
func (r *Repository) ChildCount(ctx context.Context, accountID int64) (int, error) {
	q := db.From(ctx, r.pool)
	var count int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE parent_id=$1`, accountID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// InsertEntry stores a draft entry with its lines.
func (r *Repository) InsertEntry(ctx context.Context, entry JournalEntry) (int64, error) {
	q := db.From(ctx, r.pool)
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO journal_entries (entry_number, journal_type, date, description, reference, status, total_debit, total_credit, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id`,
		entry.EntryNumber, string(entry.JournalType), entry.Date, entry.Description, entry.Reference,
		string(entry.Status), toNumeric(entry.TotalDebit), toNumeric(entry.TotalCredit), nullInt(entry.CreatedBy)).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, line := range entry.Lines {
		if _, err := q.Exec(ctx, `INSERT INTO journal_lines (entry_id, account_id, description, debit, credit)
VALUES ($1,$2,$3,$4,$5)`, id, line.AccountID, line.Description, toNumeric(line.Debit), toNumeric(line.Credit)); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// GetEntry returns one entry with its lines.
func (r *Repository) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	q := db.From(ctx, r.pool)
	var entry JournalEntry
	err := q.QueryRow(ctx, `SELECT id, entry_number, journal_type, date, COALESCE(description,''), COALESCE(reference,''), status, total_debit, total_credit, COALESCE(created_by,0), posted_at, created_at, updated_at
FROM journal_entries WHERE id=$1`, id).
		Scan(&entry.ID, &entry.EntryNumber, &entry.JournalType, &entry.Date, &entry.Description, &entry.Reference,
			&entry.Status, &entry.TotalDebit, &entry.TotalCredit, &entry.CreatedBy, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, entry_id, account_id, COALESCE(description,''), debit, credit FROM journal_lines WHERE entry_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Description, &line.Debit, &line.Credit); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

// ListEntries returns entry headers matching the filter, newest first.
func (r *Repository) ListEntries(ctx context.Context, filter EntryFilter) ([]JournalEntry, int, error) {
	q := db.From(ctx, r.pool)
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	where := `WHERE ($1='' OR journal_type=$1) AND ($2='' OR status=$2)
AND ($3::timestamptz IS NULL OR date >= $3) AND ($4::timestamptz IS NULL OR date <= $4)`
	args := []any{string(filter.JournalType), string(filter.Status), filter.DateFrom, filter.DateTo}
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT id, entry_number, journal_type, date, COALESCE(description,''), COALESCE(reference,''), status, total_debit, total_credit, COALESCE(created_by,0), posted_at, created_at, updated_at
FROM journal_entries `+where+` ORDER BY id DESC LIMIT $5 OFFSET $6`, append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	entries := []JournalEntry{}
	for rows.Next() {
		var entry JournalEntry
		if err := rows.Scan(&entry.ID, &entry.EntryNumber, &entry.JournalType, &entry.Date, &entry.Description, &entry.Reference,
			&entry.Status, &entry.TotalDebit, &entry.TotalCredit, &entry.CreatedBy, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

// DeleteEntry removes an entry and its lines.
func (r *Repository) DeleteEntry(ctx context.Context, id int64) error {
	q := db.From(ctx, r.pool)
	if _, err := q.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, id); err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `DELETE FROM journal_entries WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// MarkEntryPosted flips draft to posted. Returns false when the entry
// was not in draft, so callers can distinguish lost races.
func (r *Repository) MarkEntryPosted(ctx context.Context, id int64) (bool, error) {
	q := db.From(ctx, r.pool)
	tag, err := q.Exec(ctx, `UPDATE journal_entries SET status='posted', posted_at=NOW(), updated_at=NOW() WHERE id=$1 AND status='draft'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func toNumeric(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
