package importer

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtdbooks/core/internal/model"
	"github.com/mtdbooks/core/internal/store"
)

func classifiedSession(t *testing.T, st *store.MemoryStore, csv string) *Session {
	t.Helper()
	session := newTestSession(t, csv)
	require.NoError(t, session.ClassifyAll(context.Background(), st))
	return session
}

func TestExecuteCommitsImportRows(t *testing.T) {
	st := store.NewMemoryStore()
	session := classifiedSession(t, st, strings.Join([]string{
		"Date,Description,Amount",
		"01/04/2025,SHELL PETROL,-45.20",
		"02/04/2025,INVOICE 42,1200.00",
	}, "\n"))

	var progressCalls int
	outcome, err := Execute(context.Background(), st, session, func(done, total int) {
		progressCalls++
		assert.Equal(t, 2, total)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.ImportedCount)
	assert.Zero(t, outcome.SkippedCount)
	assert.Zero(t, outcome.FailedCount)
	assert.Equal(t, 2, progressCalls)

	incomes, expenses, err := st.Counts(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), incomes)
	assert.Equal(t, int64(1), expenses)

	batch, err := st.GetImportBatch(context.Background(), outcome.BatchID)
	require.NoError(t, err)
	assert.Equal(t, model.ImportBatchActive, batch.Status)
	assert.Equal(t, "statement.csv", batch.SourceFile)
	assert.Equal(t, int64(120000), batch.TotalIncomePence)
	assert.Equal(t, int64(4520), batch.TotalExpensePence)
	assert.Len(t, batch.IncomeIDs, 1)
	assert.Len(t, batch.ExpenseIDs, 1)
}

func TestExecuteSkipsSkipRows(t *testing.T) {
	st := store.NewMemoryStore()
	seedExpense(t, st, "exp-1", day(2025, time.April, 1), 4520, "SHELL PETROL")

	session := classifiedSession(t, st, strings.Join([]string{
		"Date,Description,Amount",
		"01/04/2025,SHELL PETROL,-45.20", // exact duplicate, default SKIP
		"02/04/2025,NEW ROW,-5.00",
	}, "\n"))

	outcome, err := Execute(context.Background(), st, session, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.ImportedCount)
	assert.Equal(t, 1, outcome.SkippedCount)

	_, expenses, err := st.Counts(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), expenses, "the seeded record plus one import, no duplicate")
}

func TestExecuteTruncatesLongDescriptions(t *testing.T) {
	st := store.NewMemoryStore()
	long := strings.Repeat("A", model.MaxDescriptionLength+30)
	session := classifiedSession(t, st, "Date,Description,Amount\n01/04/2025,"+long+",-5.00\n")

	outcome, err := Execute(context.Background(), st, session, nil)
	require.NoError(t, err)
	require.Equal(t, 1, outcome.ImportedCount)

	batch, err := st.GetImportBatch(context.Background(), outcome.BatchID)
	require.NoError(t, err)
	expense, err := st.GetExpense(context.Background(), batch.ExpenseIDs[0])
	require.NoError(t, err)
	assert.Len(t, expense.Description, model.MaxDescriptionLength)
}

func TestExecuteTruncatesOnRuneBoundary(t *testing.T) {
	st := store.NewMemoryStore()
	// The é sits at character 100, so a byte-based cut would split it.
	long := strings.Repeat("a", model.MaxDescriptionLength-1) + "é CAFÉ RECEIPT"
	session := classifiedSession(t, st, "Date,Description,Amount\n01/04/2025,"+long+",-5.00\n")

	outcome, err := Execute(context.Background(), st, session, nil)
	require.NoError(t, err)
	require.Equal(t, 1, outcome.ImportedCount)

	batch, err := st.GetImportBatch(context.Background(), outcome.BatchID)
	require.NoError(t, err)
	expense, err := st.GetExpense(context.Background(), batch.ExpenseIDs[0])
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(expense.Description))
	assert.Equal(t, model.MaxDescriptionLength, utf8.RuneCountInString(expense.Description))
	assert.True(t, strings.HasSuffix(expense.Description, "é"))
}

func TestExecuteSetsAllowableFromCategory(t *testing.T) {
	st := store.NewMemoryStore()
	session := classifiedSession(t, st, strings.Join([]string{
		"Date,Description,Amount",
		"01/04/2025,TESCO STORES 3412,-45.20", // drawings, non-allowable
		"02/04/2025,SCREWFIX LEEDS,-80.00",    // cost of goods, allowable
	}, "\n"))

	outcome, err := Execute(context.Background(), st, session, nil)
	require.NoError(t, err)
	require.Equal(t, 2, outcome.ImportedCount)

	batch, err := st.GetImportBatch(context.Background(), outcome.BatchID)
	require.NoError(t, err)
	allowable := map[bool]int{}
	for _, id := range batch.ExpenseIDs {
		expense, err := st.GetExpense(context.Background(), id)
		require.NoError(t, err)
		allowable[expense.Allowable]++
	}
	assert.Equal(t, 1, allowable[false])
	assert.Equal(t, 1, allowable[true])
}

func TestExecuteRefusesUnclassifiedSession(t *testing.T) {
	st := store.NewMemoryStore()
	session := newTestSession(t, "Date,Description,Amount\n01/04/2025,THING,-1.00\n")

	_, err := Execute(context.Background(), st, session, nil)
	assert.Error(t, err)
}

func TestExecuteRefusesUnresolvedRows(t *testing.T) {
	st := store.NewMemoryStore()
	seedExpense(t, st, "exp-1", day(2025, time.April, 1), 4520, "EXISTING")

	session := classifiedSession(t, st, "Date,Description,Amount\n01/04/2025,DIFFERENT,-45.20\n")
	require.Len(t, session.Unresolved(), 1)

	_, err := Execute(context.Background(), st, session, nil)
	assert.Error(t, err)
}

func TestExecuteCancellationStillWritesBatch(t *testing.T) {
	st := store.NewMemoryStore()
	session := classifiedSession(t, st, strings.Join([]string{
		"Date,Description,Amount",
		"01/04/2025,ROW ONE,-1.00",
		"02/04/2025,ROW TWO,-2.00",
	}, "\n"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := Execute(ctx, st, session, nil)
	require.Error(t, err)
	require.NotNil(t, outcome)

	// No rows committed, but the batch exists as the audit record.
	batch, batchErr := st.GetImportBatch(context.Background(), outcome.BatchID)
	require.NoError(t, batchErr)
	assert.Equal(t, model.ImportBatchActive, batch.Status)
	assert.Zero(t, batch.ImportedCount)
}
