package importer

import (
	"context"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mtdbooks/core/internal/model"
	"github.com/mtdbooks/core/internal/store"
)

// ProgressFunc receives fractional progress as rows are committed.
type ProgressFunc func(done, total int)

// ImportOutcome is the aggregate result of executing an import. Per-row
// persistence failures are counted, not raised.
type ImportOutcome struct {
	BatchID       string
	ImportedCount int
	SkippedCount  int
	FailedCount   int
}

// Execute commits the decided rows of a session: every IMPORT row is
// persisted as an Income or Expense record, descriptions truncated to the
// persistence limit, and exactly one ImportBatch records the created IDs for
// later undo.
//
// One bad row never aborts the batch. Cancellation stops further rows but
// already-committed records stay; the batch is still written so the partial
// import remains undoable as a whole.
func Execute(ctx context.Context, st store.Store, session *Session, progress ProgressFunc) (*ImportOutcome, error) {
	if !session.Classified() {
		return nil, fmt.Errorf("session is not fully classified")
	}
	if unresolved := session.Unresolved(); len(unresolved) > 0 {
		return nil, fmt.Errorf("%d rows are still awaiting review", len(unresolved))
	}

	batch := &model.ImportBatch{
		ID:         uuid.New().String(),
		BusinessID: session.BusinessID,
		SourceFile: session.SourceFile,
		CreatedAt:  time.Now().UTC(),
		Status:     model.ImportBatchActive,
	}

	outcome := &ImportOutcome{BatchID: batch.ID}
	total := len(session.Rows)
	var cancelled error

	for i, row := range session.Rows {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		if row.Action != ActionImport {
			outcome.SkippedCount++
			reportProgress(progress, i+1, total)
			continue
		}

		if err := persistRow(ctx, st, session.BusinessID, row, batch); err != nil {
			log.Printf("[Import] row %d failed: %v", row.Line, err)
			outcome.FailedCount++
		} else {
			outcome.ImportedCount++
		}
		reportProgress(progress, i+1, total)
	}

	batch.ImportedCount = outcome.ImportedCount
	batch.SkippedCount = outcome.SkippedCount
	batch.FailedCount = outcome.FailedCount

	// The batch is written even on cancellation so committed rows stay
	// undoable as a group.
	if err := st.CreateImportBatch(context.WithoutCancel(ctx), batch); err != nil {
		return nil, fmt.Errorf("record import batch: %w", err)
	}

	log.Printf("[Import] batch %s: %d imported, %d skipped, %d failed",
		batch.ID, outcome.ImportedCount, outcome.SkippedCount, outcome.FailedCount)

	if cancelled != nil {
		return outcome, cancelled
	}
	return outcome, nil
}

func persistRow(ctx context.Context, st store.Store, businessID string, row *Row, batch *model.ImportBatch) error {
	description := truncateDescription(row.Description)
	now := time.Now().UTC()

	switch row.Type {
	case model.TransactionIncome:
		income := &model.Income{
			ID:          uuid.New().String(),
			BusinessID:  businessID,
			Date:        row.Date,
			AmountPence: row.AmountPence,
			Description: description,
			Category:    row.Category,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := st.CreateIncome(ctx, income); err != nil {
			return err
		}
		batch.IncomeIDs = append(batch.IncomeIDs, income.ID)
		batch.TotalIncomePence += income.AmountPence
	case model.TransactionExpense:
		expense := &model.Expense{
			ID:          uuid.New().String(),
			BusinessID:  businessID,
			Date:        row.Date,
			AmountPence: row.AmountPence,
			Description: description,
			Category:    row.Category,
			Allowable:   CategoryAllowable(row.Category),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := st.CreateExpense(ctx, expense); err != nil {
			return err
		}
		batch.ExpenseIDs = append(batch.ExpenseIDs, expense.ID)
		batch.TotalExpensePence += expense.AmountPence
	default:
		return fmt.Errorf("unknown transaction type %q", row.Type)
	}
	return nil
}

// truncateDescription caps a description at MaxDescriptionLength characters,
// cutting on a rune boundary so multi-byte input stays valid UTF-8.
func truncateDescription(s string) string {
	if utf8.RuneCountInString(s) <= model.MaxDescriptionLength {
		return s
	}
	return string([]rune(s)[:model.MaxDescriptionLength])
}

func reportProgress(progress ProgressFunc, done, total int) {
	if progress != nil {
		progress(done, total)
	}
}
