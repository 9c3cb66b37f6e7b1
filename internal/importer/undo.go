package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mtdbooks/core/internal/model"
	"github.com/mtdbooks/core/internal/store"
)

// DefaultUndoWindow bounds how old a batch may be and still be undone.
const DefaultUndoWindow = 30 * 24 * time.Hour

// UndoErrorCode identifies why an undo was refused.
type UndoErrorCode string

const (
	UndoNotFound      UndoErrorCode = "NOT_FOUND"
	UndoAlreadyLocked UndoErrorCode = "ALREADY_LOCKED"
	UndoExpired       UndoErrorCode = "EXPIRED"
)

// UndoError is a typed refusal of an undo request. Refusals perform no
// mutation other than marking a batch LOCKED when a filed submission is
// discovered.
type UndoError struct {
	Code    UndoErrorCode
	Message string
}

func (e *UndoError) Error() string { return fmt.Sprintf("[%s] %s", e.Code, e.Message) }

// AsUndoError unwraps an error into an *UndoError if it is one.
func AsUndoError(err error) (*UndoError, bool) {
	var ue *UndoError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// Undo reverses an import batch: the Income and Expense rows it created are
// deleted and the batch is marked UNDONE. The batch row itself is retained
// as an audit trail.
//
// Undo is refused with AlreadyLocked when any record in the batch falls in a
// period with an ACCEPTED submission: filed figures must never be silently
// retracted. Refused with Expired when the batch is older than maxAge
// (DefaultUndoWindow when zero), and with NotFound for unknown or
// already-undone batches.
func Undo(ctx context.Context, st store.Store, batchID string, maxAge time.Duration) error {
	if maxAge <= 0 {
		maxAge = DefaultUndoWindow
	}

	batch, err := st.GetImportBatch(ctx, batchID)
	if errors.Is(err, store.ErrNotFound) {
		return &UndoError{Code: UndoNotFound, Message: fmt.Sprintf("import batch %s does not exist", batchID)}
	}
	if err != nil {
		return fmt.Errorf("load import batch: %w", err)
	}

	switch batch.Status {
	case model.ImportBatchUndone:
		return &UndoError{Code: UndoNotFound, Message: fmt.Sprintf("import batch %s was already undone", batchID)}
	case model.ImportBatchLocked:
		return &UndoError{Code: UndoAlreadyLocked, Message: fmt.Sprintf("import batch %s is covered by a filed submission", batchID)}
	}

	if time.Since(batch.CreatedAt) > maxAge {
		return &UndoError{Code: UndoExpired, Message: fmt.Sprintf("import batch %s is older than the undo window", batchID)}
	}

	locked, err := batchFiled(ctx, st, batch)
	if err != nil {
		return err
	}
	if locked {
		// Remember the lock so later attempts fail without re-checking.
		if err := st.SetImportBatchStatus(ctx, batchID, model.ImportBatchLocked); err != nil {
			log.Printf("[Undo] failed to mark batch %s locked: %v", batchID, err)
		}
		return &UndoError{Code: UndoAlreadyLocked, Message: fmt.Sprintf("import batch %s is covered by a filed submission", batchID)}
	}

	for _, id := range batch.IncomeIDs {
		if err := st.DeleteIncome(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete income %s: %w", id, err)
		}
	}
	for _, id := range batch.ExpenseIDs {
		if err := st.DeleteExpense(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete expense %s: %w", id, err)
		}
	}

	if err := st.SetImportBatchStatus(ctx, batchID, model.ImportBatchUndone); err != nil {
		return fmt.Errorf("mark batch undone: %w", err)
	}
	log.Printf("[Undo] batch %s reversed: %d incomes, %d expenses removed",
		batchID, len(batch.IncomeIDs), len(batch.ExpenseIDs))
	return nil
}

// batchFiled reports whether any record in the batch falls in a quarter (or
// the annual period) with an ACCEPTED submission.
func batchFiled(ctx context.Context, st store.Store, batch *model.ImportBatch) (bool, error) {
	type period struct {
		taxYear string
		quarter int
	}
	periods := make(map[period]bool)

	collect := func(date time.Time) {
		taxYear, quarter := model.QuarterOf(date)
		periods[period{taxYear, quarter}] = true
		periods[period{taxYear, model.AnnualPeriod}] = true
	}

	for _, id := range batch.IncomeIDs {
		rec, err := st.GetIncome(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("load income %s: %w", id, err)
		}
		collect(rec.Date)
	}
	for _, id := range batch.ExpenseIDs {
		rec, err := st.GetExpense(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("load expense %s: %w", id, err)
		}
		collect(rec.Date)
	}

	for p := range periods {
		sub, err := st.FindAcceptedSubmission(ctx, batch.BusinessID, p.taxYear, p.quarter)
		if err != nil {
			return false, fmt.Errorf("check submissions for %s Q%d: %w", p.taxYear, p.quarter, err)
		}
		if sub != nil {
			return true, nil
		}
	}
	return false, nil
}
