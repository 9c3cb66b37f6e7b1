// Package model defines the domain value types shared across the core.
// All monetary amounts are held in pence as int64.
package model

import "time"

// TransactionType distinguishes money in from money out.
type TransactionType string

const (
	TransactionIncome  TransactionType = "INCOME"
	TransactionExpense TransactionType = "EXPENSE"
)

// MaxDescriptionLength is the longest description persisted for a record.
// Descriptions are truncated to this length before any write.
const MaxDescriptionLength = 100

// Business owns all financial records. A single-business installation is the
// common case but nothing below assumes it.
type Business struct {
	ID        string
	Name      string
	NINO      string
	UTR       string
	CreatedAt time.Time
}

// Income is a persisted income record.
type Income struct {
	ID          string
	BusinessID  string
	Date        time.Time
	AmountPence int64
	Description string
	Category    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Expense is a persisted expense record. Allowable marks the expense as an
// HMRC-deductible category; non-allowable expenses are kept but excluded from
// deductible totals.
type Expense struct {
	ID          string
	BusinessID  string
	Date        time.Time
	AmountPence int64
	Description string
	Category    string
	Allowable   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ImportBatchStatus tracks the lifecycle of an import batch.
type ImportBatchStatus string

const (
	// ImportBatchActive means the batch's records exist and the batch may be undone.
	ImportBatchActive ImportBatchStatus = "ACTIVE"
	// ImportBatchUndone means the batch's records were reversed. The batch row
	// itself is retained as an audit trail.
	ImportBatchUndone ImportBatchStatus = "UNDONE"
	// ImportBatchLocked means at least one record in the batch was covered by a
	// filed submission; the batch can no longer be undone.
	ImportBatchLocked ImportBatchStatus = "LOCKED"
)

// ImportBatch groups the records created by one statement import so they can
// be undone atomically. Batches are append-only: they are marked UNDONE, never
// deleted.
type ImportBatch struct {
	ID               string
	BusinessID       string
	SourceFile       string
	CreatedAt        time.Time
	ImportedCount    int
	SkippedCount     int
	FailedCount      int
	TotalIncomePence int64
	TotalExpensePence int64
	IncomeIDs        []string
	ExpenseIDs       []string
	Status           ImportBatchStatus
}

// SubmissionStatus is the lifecycle of one submission attempt.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "PENDING"
	SubmissionAccepted SubmissionStatus = "ACCEPTED"
	SubmissionRejected SubmissionStatus = "REJECTED"
)

// AnnualPeriod is the Quarter value used for an annual final declaration.
const AnnualPeriod = 0

// SubmissionRecord is one submission attempt. History is append-only: a retry
// creates a new record, a terminal record is never mutated.
type SubmissionRecord struct {
	ID            string
	BusinessID    string
	TaxYear       string
	Quarter       int // 1..4, or AnnualPeriod for the annual declaration
	SubmittedAt   time.Time
	Status        SubmissionStatus
	HMRCReference string
	DeclarationID string
	ErrorCode     string
	ErrorMessage  string
}

// IsAnnual reports whether the record is an annual final declaration.
func (r *SubmissionRecord) IsAnnual() bool { return r.Quarter == AnnualPeriod }

// TransactionRef is a read-only projection of an Income or Expense used by
// the duplicate matcher's date-window lookups.
type TransactionRef struct {
	ID          string
	Type        TransactionType
	Date        time.Time
	AmountPence int64
	Description string
}
