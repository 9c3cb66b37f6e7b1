package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mtdbooks/core/internal/model"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements Store backed by a local SQLite database. Dates are
// stored as RFC 3339 UTC strings so lexical comparison matches chronological
// order.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and bootstraps
// the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("execute schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func fmtDate(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored date %q: %w", s, err)
	}
	return t, nil
}

// ----------------------------------------------------------------------------
// Business operations
// ----------------------------------------------------------------------------

func (s *SQLiteStore) SaveBusiness(ctx context.Context, business *model.Business) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO businesses (id, name, nino, utr, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, nino = excluded.nino, utr = excluded.utr`,
		business.ID, business.Name, business.NINO, business.UTR, fmtDate(business.CreatedAt))
	if err != nil {
		return fmt.Errorf("save business: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetBusiness(ctx context.Context, businessID string) (*model.Business, error) {
	var b model.Business
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, nino, utr, created_at FROM businesses WHERE id = ?`, businessID).
		Scan(&b.ID, &b.Name, &b.NINO, &b.UTR, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get business: %w", err)
	}
	if b.CreatedAt, err = parseDate(createdAt); err != nil {
		return nil, fmt.Errorf("get business: %w", err)
	}
	return &b, nil
}

// ----------------------------------------------------------------------------
// Income operations
// ----------------------------------------------------------------------------

func (s *SQLiteStore) CreateIncome(ctx context.Context, income *model.Income) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incomes (id, business_id, date, amount_pence, description, category, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		income.ID, income.BusinessID, fmtDate(income.Date), income.AmountPence,
		income.Description, income.Category, fmtDate(income.CreatedAt), fmtDate(income.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create income: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetIncome(ctx context.Context, incomeID string) (*model.Income, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, business_id, date, amount_pence, description, category, created_at, updated_at
		FROM incomes WHERE id = ?`, incomeID)
	return scanIncome(row)
}

func (s *SQLiteStore) UpdateIncome(ctx context.Context, income *model.Income) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE incomes SET date = ?, amount_pence = ?, description = ?, category = ?, updated_at = ?
		WHERE id = ?`,
		fmtDate(income.Date), income.AmountPence, income.Description, income.Category,
		fmtDate(income.UpdatedAt), income.ID)
	if err != nil {
		return fmt.Errorf("update income: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) DeleteIncome(ctx context.Context, incomeID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM incomes WHERE id = ?`, incomeID)
	if err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) ListIncomes(ctx context.Context, businessID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Income, string, error) {
	query := `SELECT id, business_id, date, amount_pence, description, category, created_at, updated_at
		FROM incomes WHERE business_id = ?`
	args := []any{businessID}
	query, args = appendRangeAndPage(query, args, startDate, endDate, &pageSize, pageToken)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	var out []*model.Income
	for rows.Next() {
		rec, err := scanIncome(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("list incomes: %w", err)
	}
	out2, next := trimPageIncome(out, pageSize)
	return out2, next, nil
}

// ----------------------------------------------------------------------------
// Expense operations
// ----------------------------------------------------------------------------

func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *model.Expense) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, business_id, date, amount_pence, description, category, allowable, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.BusinessID, fmtDate(expense.Date), expense.AmountPence,
		expense.Description, expense.Category, boolToInt(expense.Allowable),
		fmtDate(expense.CreatedAt), fmtDate(expense.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*model.Expense, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, business_id, date, amount_pence, description, category, allowable, created_at, updated_at
		FROM expenses WHERE id = ?`, expenseID)
	return scanExpense(row)
}

func (s *SQLiteStore) UpdateExpense(ctx context.Context, expense *model.Expense) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses SET date = ?, amount_pence = ?, description = ?, category = ?, allowable = ?, updated_at = ?
		WHERE id = ?`,
		fmtDate(expense.Date), expense.AmountPence, expense.Description, expense.Category,
		boolToInt(expense.Allowable), fmtDate(expense.UpdatedAt), expense.ID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) DeleteExpense(ctx context.Context, expenseID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, expenseID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) ListExpenses(ctx context.Context, businessID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Expense, string, error) {
	query := `SELECT id, business_id, date, amount_pence, description, category, allowable, created_at, updated_at
		FROM expenses WHERE business_id = ?`
	args := []any{businessID}
	query, args = appendRangeAndPage(query, args, startDate, endDate, &pageSize, pageToken)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []*model.Expense
	for rows.Next() {
		rec, err := scanExpense(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("list expenses: %w", err)
	}
	out2, next := trimPageExpense(out, pageSize)
	return out2, next, nil
}

// ----------------------------------------------------------------------------
// Window lookup and counts
// ----------------------------------------------------------------------------

func (s *SQLiteStore) ListTransactionsNear(ctx context.Context, businessID string, date time.Time, window time.Duration) ([]*model.TransactionRef, error) {
	start := fmtDate(date.Add(-window))
	end := fmtDate(date.Add(window))

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, 'INCOME', date, amount_pence, description FROM incomes
			WHERE business_id = ? AND date >= ? AND date <= ?
		UNION ALL
		SELECT id, 'EXPENSE', date, amount_pence, description FROM expenses
			WHERE business_id = ? AND date >= ? AND date <= ?
		ORDER BY id`,
		businessID, start, end, businessID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list transactions near: %w", err)
	}
	defer rows.Close()

	var refs []*model.TransactionRef
	for rows.Next() {
		var ref model.TransactionRef
		var typ, dateStr string
		if err := rows.Scan(&ref.ID, &typ, &dateStr, &ref.AmountPence, &ref.Description); err != nil {
			return nil, fmt.Errorf("scan transaction ref: %w", err)
		}
		ref.Type = model.TransactionType(typ)
		if ref.Date, err = parseDate(dateStr); err != nil {
			return nil, fmt.Errorf("list transactions near: %w", err)
		}
		refs = append(refs, &ref)
	}
	return refs, rows.Err()
}

func (s *SQLiteStore) Counts(ctx context.Context, businessID string) (int64, int64, error) {
	var incomes, expenses int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incomes WHERE business_id = ?`, businessID).Scan(&incomes); err != nil {
		return 0, 0, fmt.Errorf("count incomes: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM expenses WHERE business_id = ?`, businessID).Scan(&expenses); err != nil {
		return 0, 0, fmt.Errorf("count expenses: %w", err)
	}
	return incomes, expenses, nil
}

// ----------------------------------------------------------------------------
// Import batch operations
// ----------------------------------------------------------------------------

func (s *SQLiteStore) CreateImportBatch(ctx context.Context, batch *model.ImportBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import batch tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO import_batches (id, business_id, source_file, created_at, imported_count,
			skipped_count, failed_count, total_income_pence, total_expense_pence, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.ID, batch.BusinessID, batch.SourceFile, fmtDate(batch.CreatedAt),
		batch.ImportedCount, batch.SkippedCount, batch.FailedCount,
		batch.TotalIncomePence, batch.TotalExpensePence, string(batch.Status))
	if err != nil {
		return fmt.Errorf("create import batch: %w", err)
	}
	for _, id := range batch.IncomeIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO import_batch_records (batch_id, record_id, record_type) VALUES (?, ?, 'INCOME')`, batch.ID, id); err != nil {
			return fmt.Errorf("create import batch record: %w", err)
		}
	}
	for _, id := range batch.ExpenseIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO import_batch_records (batch_id, record_id, record_type) VALUES (?, ?, 'EXPENSE')`, batch.ID, id); err != nil {
			return fmt.Errorf("create import batch record: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetImportBatch(ctx context.Context, batchID string) (*model.ImportBatch, error) {
	var b model.ImportBatch
	var createdAt, status string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, business_id, source_file, created_at, imported_count, skipped_count,
			failed_count, total_income_pence, total_expense_pence, status
		FROM import_batches WHERE id = ?`, batchID).
		Scan(&b.ID, &b.BusinessID, &b.SourceFile, &createdAt, &b.ImportedCount,
			&b.SkippedCount, &b.FailedCount, &b.TotalIncomePence, &b.TotalExpensePence, &status)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get import batch: %w", err)
	}
	if b.CreatedAt, err = parseDate(createdAt); err != nil {
		return nil, fmt.Errorf("get import batch: %w", err)
	}
	b.Status = model.ImportBatchStatus(status)

	rows, err := s.db.QueryContext(ctx, `SELECT record_id, record_type FROM import_batch_records WHERE batch_id = ? ORDER BY record_id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("get import batch records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, typ string
		if err := rows.Scan(&id, &typ); err != nil {
			return nil, fmt.Errorf("scan import batch record: %w", err)
		}
		if typ == "INCOME" {
			b.IncomeIDs = append(b.IncomeIDs, id)
		} else {
			b.ExpenseIDs = append(b.ExpenseIDs, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get import batch records: %w", err)
	}
	return &b, nil
}

func (s *SQLiteStore) SetImportBatchStatus(ctx context.Context, batchID string, status model.ImportBatchStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE import_batches SET status = ? WHERE id = ?`, string(status), batchID)
	if err != nil {
		return fmt.Errorf("set import batch status: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) ListImportBatches(ctx context.Context, businessID string) ([]*model.ImportBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM import_batches WHERE business_id = ? ORDER BY created_at DESC, id`, businessID)
	if err != nil {
		return nil, fmt.Errorf("list import batches: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan import batch id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list import batches: %w", err)
	}

	out := make([]*model.ImportBatch, 0, len(ids))
	for _, id := range ids {
		b, err := s.GetImportBatch(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// Submission operations
// ----------------------------------------------------------------------------

func (s *SQLiteStore) CreateSubmission(ctx context.Context, record *model.SubmissionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (id, business_id, tax_year, quarter, submitted_at, status,
			hmrc_reference, declaration_id, error_code, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.BusinessID, record.TaxYear, record.Quarter,
		fmtDate(record.SubmittedAt), string(record.Status),
		record.HMRCReference, record.DeclarationID, record.ErrorCode, record.ErrorMessage)
	if err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FinalizeSubmission(ctx context.Context, submissionID string, status model.SubmissionStatus, hmrcReference, errorCode, errorMessage string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions SET status = ?, hmrc_reference = ?, error_code = ?, error_message = ?
		WHERE id = ? AND status = ?`,
		string(status), hmrcReference, errorCode, errorMessage, submissionID,
		string(model.SubmissionPending))
	if err != nil {
		return fmt.Errorf("finalize submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize submission: %w", err)
	}
	if n == 0 {
		// Distinguish a missing record from one already finalized.
		var existing string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM submissions WHERE id = ?`, submissionID).Scan(&existing)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("finalize submission: %w", err)
		}
		return ErrAlreadyFinalized
	}
	return nil
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, submissionID string) (*model.SubmissionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, business_id, tax_year, quarter, submitted_at, status, hmrc_reference,
			declaration_id, error_code, error_message
		FROM submissions WHERE id = ?`, submissionID)
	rec, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, businessID, taxYear string) ([]*model.SubmissionRecord, error) {
	query := `SELECT id, business_id, tax_year, quarter, submitted_at, status, hmrc_reference,
		declaration_id, error_code, error_message FROM submissions WHERE business_id = ?`
	args := []any{businessID}
	if taxYear != "" {
		query += ` AND tax_year = ?`
		args = append(args, taxYear)
	}
	query += ` ORDER BY submitted_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []*model.SubmissionRecord
	for rows.Next() {
		rec, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FindAcceptedSubmission returns the most recent ACCEPTED submission for the
// period, or (nil, nil) if none exists.
func (s *SQLiteStore) FindAcceptedSubmission(ctx context.Context, businessID, taxYear string, quarter int) (*model.SubmissionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, business_id, tax_year, quarter, submitted_at, status, hmrc_reference,
			declaration_id, error_code, error_message
		FROM submissions
		WHERE business_id = ? AND tax_year = ? AND quarter = ? AND status = 'ACCEPTED'
		ORDER BY submitted_at DESC LIMIT 1`,
		businessID, taxYear, quarter)
	rec, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ----------------------------------------------------------------------------
// Scan helpers
// ----------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncome(row rowScanner) (*model.Income, error) {
	var rec model.Income
	var date, createdAt, updatedAt string
	err := row.Scan(&rec.ID, &rec.BusinessID, &date, &rec.AmountPence, &rec.Description,
		&rec.Category, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan income: %w", err)
	}
	if rec.Date, err = parseDate(date); err != nil {
		return nil, fmt.Errorf("scan income: %w", err)
	}
	if rec.CreatedAt, err = parseDate(createdAt); err != nil {
		return nil, fmt.Errorf("scan income: %w", err)
	}
	if rec.UpdatedAt, err = parseDate(updatedAt); err != nil {
		return nil, fmt.Errorf("scan income: %w", err)
	}
	return &rec, nil
}

func scanExpense(row rowScanner) (*model.Expense, error) {
	var rec model.Expense
	var date, createdAt, updatedAt string
	var allowable int
	err := row.Scan(&rec.ID, &rec.BusinessID, &date, &rec.AmountPence, &rec.Description,
		&rec.Category, &allowable, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan expense: %w", err)
	}
	if rec.Date, err = parseDate(date); err != nil {
		return nil, fmt.Errorf("scan expense: %w", err)
	}
	rec.Allowable = allowable != 0
	if rec.CreatedAt, err = parseDate(createdAt); err != nil {
		return nil, fmt.Errorf("scan expense: %w", err)
	}
	if rec.UpdatedAt, err = parseDate(updatedAt); err != nil {
		return nil, fmt.Errorf("scan expense: %w", err)
	}
	return &rec, nil
}

func scanSubmission(row rowScanner) (*model.SubmissionRecord, error) {
	var rec model.SubmissionRecord
	var submittedAt, status string
	err := row.Scan(&rec.ID, &rec.BusinessID, &rec.TaxYear, &rec.Quarter, &submittedAt,
		&status, &rec.HMRCReference, &rec.DeclarationID, &rec.ErrorCode, &rec.ErrorMessage)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scan submission: %w", err)
	}
	if rec.SubmittedAt, err = parseDate(submittedAt); err != nil {
		return nil, fmt.Errorf("scan submission: %w", err)
	}
	rec.Status = model.SubmissionStatus(status)
	return &rec, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// appendRangeAndPage appends date-range filters and keyset pagination to a
// list query. pageSize is bumped by one so the caller can detect a next page.
func appendRangeAndPage(query string, args []any, startDate, endDate *time.Time, pageSize *int32, pageToken string) (string, []any) {
	if startDate != nil {
		query += ` AND date >= ?`
		args = append(args, fmtDate(*startDate))
	}
	if endDate != nil {
		query += ` AND date <= ?`
		args = append(args, fmtDate(*endDate))
	}
	if cursor, err := DecodePageToken(pageToken); err == nil && cursor != "" {
		query += ` AND id > ?`
		args = append(args, cursor)
	}
	if *pageSize <= 0 {
		*pageSize = 100
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, *pageSize+1)
	return query, args
}

func trimPageIncome(rows []*model.Income, pageSize int32) ([]*model.Income, string) {
	if int32(len(rows)) <= pageSize {
		return rows, ""
	}
	rows = rows[:pageSize]
	return rows, EncodePageToken(rows[len(rows)-1].ID)
}

func trimPageExpense(rows []*model.Expense, pageSize int32) ([]*model.Expense, string) {
	if int32(len(rows)) <= pageSize {
		return rows, ""
	}
	rows = rows[:pageSize]
	return rows, EncodePageToken(rows[len(rows)-1].ID)
}
