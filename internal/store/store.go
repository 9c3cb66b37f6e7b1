package store

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/mtdbooks/core/internal/model"
)

// ErrNotFound is returned by Get operations when no record exists.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyFinalized is returned by FinalizeSubmission when the record has
// already left PENDING. Finalized submissions are append-only history.
var ErrAlreadyFinalized = errors.New("submission already finalized")

// Store defines the interface for all persistence operations used by the
// core. ImportBatch and SubmissionRecord histories are append-only: batches
// are marked UNDONE rather than deleted, and submission attempts are
// finalized exactly once.
type Store interface {
	// Business operations
	SaveBusiness(ctx context.Context, business *model.Business) error
	GetBusiness(ctx context.Context, businessID string) (*model.Business, error)

	// Income operations
	CreateIncome(ctx context.Context, income *model.Income) error
	GetIncome(ctx context.Context, incomeID string) (*model.Income, error)
	UpdateIncome(ctx context.Context, income *model.Income) error
	DeleteIncome(ctx context.Context, incomeID string) error
	ListIncomes(ctx context.Context, businessID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Income, string, error)

	// Expense operations
	CreateExpense(ctx context.Context, expense *model.Expense) error
	GetExpense(ctx context.Context, expenseID string) (*model.Expense, error)
	UpdateExpense(ctx context.Context, expense *model.Expense) error
	DeleteExpense(ctx context.Context, expenseID string) error
	ListExpenses(ctx context.Context, businessID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Expense, string, error)

	// ListTransactionsNear returns every income and expense within
	// [date-window, date+window], both types combined. Used by the duplicate
	// matcher.
	ListTransactionsNear(ctx context.Context, businessID string, date time.Time, window time.Duration) ([]*model.TransactionRef, error)

	// Counts reports the number of income and expense records for a business.
	Counts(ctx context.Context, businessID string) (incomes, expenses int64, err error)

	// Import batch operations (append-only)
	CreateImportBatch(ctx context.Context, batch *model.ImportBatch) error
	GetImportBatch(ctx context.Context, batchID string) (*model.ImportBatch, error)
	SetImportBatchStatus(ctx context.Context, batchID string, status model.ImportBatchStatus) error
	ListImportBatches(ctx context.Context, businessID string) ([]*model.ImportBatch, error)

	// Submission operations (append-only; one row per attempt)
	CreateSubmission(ctx context.Context, record *model.SubmissionRecord) error
	FinalizeSubmission(ctx context.Context, submissionID string, status model.SubmissionStatus, hmrcReference, errorCode, errorMessage string) error
	GetSubmission(ctx context.Context, submissionID string) (*model.SubmissionRecord, error)
	ListSubmissions(ctx context.Context, businessID, taxYear string) ([]*model.SubmissionRecord, error)
	FindAcceptedSubmission(ctx context.Context, businessID, taxYear string, quarter int) (*model.SubmissionRecord, error)
}

// EncodePageToken encodes a record ID into a page token.
func EncodePageToken(recordID string) string {
	if recordID == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(recordID))
}

// DecodePageToken decodes a page token back to a record ID.
func DecodePageToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
