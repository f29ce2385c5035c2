package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ndewijer/depotsync/internal/apperrors"
	"github.com/ndewijer/depotsync/internal/model"
)

// dividendColumns must match the scan order in scanDividend.
const dividendColumns = `id, account_ref, asset_identifier, payment_date, gross_amount, net_amount,
tax_withheld, currency, shares, amount_per_share, source_document_id, created_at`

// timestampLayout is fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DividendRepository provides data access methods for the dividend_event table.
// Each event is unique on its natural key, which the table enforces with a constraint.
type DividendRepository struct {
	db  *sql.DB
	tx  *sql.Tx
	log zerolog.Logger
	now func() time.Time
}

// NewDividendRepository creates a new DividendRepository with the provided database connection.
func NewDividendRepository(db *sql.DB, log zerolog.Logger) *DividendRepository {
	return &DividendRepository{
		db:  db,
		log: log.With().Str("repo", "dividend").Logger(),
		now: time.Now,
	}
}

// WithTx returns a new DividendRepository scoped to the provided transaction.
func (r *DividendRepository) WithTx(tx *sql.Tx) *DividendRepository {
	return &DividendRepository{
		db:  r.db,
		tx:  tx,
		log: r.log,
		now: r.now,
	}
}

// getQuerier returns the active transaction if one is set, otherwise the database connection.
func (r *DividendRepository) getQuerier() interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
} {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// InsertIfNew stores the event unless an event with the same key already exists.
// The lookup and the insert run in one transaction, and a unique constraint
// violation from a concurrent writer is reported as Duplicate.
func (r *DividendRepository) InsertIfNew(ctx context.Context, e model.DividendEvent) (model.InsertResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.NewStoreError(apperrors.ErrWriteFailed, "begin", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	txRepo := r.WithTx(tx)

	exists, err := txRepo.exists(ctx, e.Key())
	if err != nil {
		return 0, apperrors.NewStoreError(apperrors.ErrWriteFailed, "lookup", err)
	}
	if exists {
		r.log.Debug().
			Str("account", string(e.AccountRef)).
			Str("asset", e.AssetIdentifier).
			Str("document", e.SourceDocumentID).
			Msg("Dividend already recorded")
		return model.Duplicate, nil
	}

	if err := txRepo.insert(ctx, &e); err != nil {
		if isUniqueViolation(err) {
			return model.Duplicate, nil
		}
		return 0, apperrors.NewStoreError(apperrors.ErrWriteFailed, "insert", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return model.Duplicate, nil
		}
		return 0, apperrors.NewStoreError(apperrors.ErrWriteFailed, "commit", err)
	}

	r.log.Info().
		Str("account", string(e.AccountRef)).
		Str("asset", e.AssetIdentifier).
		Str("paymentDate", e.PaymentDate.Format(model.DateLayout)).
		Str("net", e.NetAmount.String()).
		Str("currency", e.Currency).
		Msg("Dividend recorded")

	return model.Inserted, nil
}

func (r *DividendRepository) exists(ctx context.Context, key model.DividendKey) (bool, error) {
	query := `
		SELECT 1 FROM dividend_event
		WHERE account_ref = ? AND asset_identifier = ? AND payment_date = ?
		AND net_amount = ? AND source_document_id = ?
	`

	var one int
	err := r.getQuerier().QueryRowContext(ctx, query,
		string(key.AccountRef),
		key.AssetIdentifier,
		key.PaymentDate,
		key.NetAmount,
		key.SourceDocumentID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *DividendRepository) insert(ctx context.Context, e *model.DividendEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}

	query := `
		INSERT INTO dividend_event (` + dividendColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.getQuerier().ExecContext(ctx, query,
		e.ID,
		string(e.AccountRef),
		e.AssetIdentifier,
		e.PaymentDate.Format(model.DateLayout),
		e.GrossAmount.String(),
		e.NetAmount.String(),
		e.TaxWithheld.String(),
		e.Currency,
		nullDecimal(e.Shares),
		nullDecimal(e.AmountPerShare),
		e.SourceDocumentID,
		e.CreatedAt.Format(timestampLayout),
	)
	return err
}

// Query returns the events matching the filter ordered by payment date.
// Events sharing a payment date keep their insertion order.
func (r *DividendRepository) Query(ctx context.Context, f model.DividendFilter) ([]model.DividendEvent, error) {
	where, args := filterClause(f)

	//nolint:gosec // G202: where clause is built from fixed fragments with placeholders
	query := "SELECT " + dividendColumns + " FROM dividend_event" + where +
		" ORDER BY payment_date ASC, created_at ASC, id ASC"

	rows, err := r.getQuerier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dividend_event table: %w", err)
	}
	defer rows.Close()

	events := []model.DividendEvent{}
	for rows.Next() {
		e, err := scanDividend(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dividend_event table: %w", err)
	}

	return events, nil
}

// Count returns the number of events matching the filter.
func (r *DividendRepository) Count(ctx context.Context, f model.DividendFilter) (int, error) {
	where, args := filterClause(f)

	var count int
	//nolint:gosec // G202: where clause is built from fixed fragments with placeholders
	err := r.getQuerier().QueryRowContext(ctx, "SELECT COUNT(*) FROM dividend_event"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count dividend events: %w", err)
	}
	return count, nil
}

// GetByID retrieves a single event.
func (r *DividendRepository) GetByID(ctx context.Context, id string) (model.DividendEvent, error) {
	query := "SELECT " + dividendColumns + " FROM dividend_event WHERE id = ?"

	e, err := scanDividend(r.getQuerier().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.DividendEvent{}, apperrors.ErrDividendNotFound
	}
	if err != nil {
		return model.DividendEvent{}, err
	}
	return e, nil
}

func filterClause(f model.DividendFilter) (string, []any) {
	var conditions []string
	var args []any

	if f.Account != "" {
		conditions = append(conditions, "account_ref = ?")
		args = append(args, string(f.Account))
	}
	if f.Asset != "" {
		conditions = append(conditions, "asset_identifier = ?")
		args = append(args, strings.ToUpper(f.Asset))
	}
	if !f.Range.From.IsZero() {
		conditions = append(conditions, "payment_date >= ?")
		args = append(args, f.Range.From.Format(model.DateLayout))
	}
	if !f.Range.To.IsZero() {
		conditions = append(conditions, "payment_date <= ?")
		args = append(args, f.Range.To.Format(model.DateLayout))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDividend(row scanner) (model.DividendEvent, error) {
	var e model.DividendEvent
	var accountRef, paymentDateStr, createdAtStr string
	var shares, perShare sql.NullString

	err := row.Scan(
		&e.ID,
		&accountRef,
		&e.AssetIdentifier,
		&paymentDateStr,
		&e.GrossAmount,
		&e.NetAmount,
		&e.TaxWithheld,
		&e.Currency,
		&shares,
		&perShare,
		&e.SourceDocumentID,
		&createdAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("failed to scan dividend_event row: %w", err)
	}
	e.AccountRef = model.AccountRef(accountRef)

	e.PaymentDate, err = ParseTime(paymentDateStr)
	if err != nil {
		return e, err
	}
	e.CreatedAt, err = ParseTime(createdAtStr)
	if err != nil {
		return e, err
	}
	if e.Shares, err = parseNullDecimal(shares); err != nil {
		return e, err
	}
	if e.AmountPerShare, err = parseNullDecimal(perShare); err != nil {
		return e, err
	}

	return e, nil
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("failed to parse decimal %q: %w", s.String, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
