package importer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtdbooks/core/internal/model"
	"github.com/mtdbooks/core/internal/store"
)

func newTestSession(t *testing.T, csv string) *Session {
	t.Helper()
	result, err := Parse(strings.NewReader(csv), DefaultColumnMapping())
	require.NoError(t, err)
	return NewSession("biz-1", "statement.csv", result, DefaultColumnMapping())
}

func seedExpense(t *testing.T, st *store.MemoryStore, id string, date time.Time, pence int64, description string) {
	t.Helper()
	require.NoError(t, st.CreateExpense(context.Background(), &model.Expense{
		ID:          id,
		BusinessID:  "biz-1",
		Date:        date,
		AmountPence: pence,
		Description: description,
		Category:    CategoryOtherExpenses,
		Allowable:   true,
	}))
}

func TestSessionCategorizesOnCreation(t *testing.T) {
	session := newTestSession(t, strings.Join([]string{
		"Date,Description,Amount",
		"01/04/2025,SHELL PETROL STATION,-45.20",
		"02/04/2025,INVOICE 42,1200.00",
	}, "\n"))

	require.Len(t, session.Rows, 2)
	assert.Equal(t, CategoryCarVanTravel, session.Rows[0].Category)
	assert.Equal(t, CategorySales, session.Rows[1].Category)
}

func TestSessionStatementCategoryWins(t *testing.T) {
	mapping := DefaultColumnMapping()
	mapping.CategoryColumn = 3
	result, err := Parse(strings.NewReader(
		"Date,Description,Amount,Category\n01/04/2025,SHELL PETROL,-45.20,Repairs\n"), mapping)
	require.NoError(t, err)

	session := NewSession("biz-1", "statement.csv", result, mapping)
	assert.Equal(t, "Repairs", session.Rows[0].Category)
	assert.Equal(t, 100, session.Rows[0].Confidence)
}

func TestClassifyAllAgainstStore(t *testing.T) {
	st := store.NewMemoryStore()
	seedExpense(t, st, "exp-1", day(2025, time.April, 1), 4520, "TESCO STORES 3412")
	seedExpense(t, st, "exp-2", day(2025, time.April, 2), 9900, "DIFFERENT THING")

	session := newTestSession(t, strings.Join([]string{
		"Date,Description,Amount",
		"01/04/2025,tesco stores 3412,-45.20", // exact, case differs
		"02/04/2025,CARD PAYMENT 11,-99.00",   // likely, amount matches exp-2
		"03/04/2025,BRAND NEW THING,-10.00",   // new
	}, "\n"))

	require.NoError(t, session.ClassifyAll(context.Background(), st))
	require.True(t, session.Classified())

	assert.Equal(t, MatchExact, session.Rows[0].Status)
	assert.Equal(t, "exp-1", session.Rows[0].MatchedID)
	assert.Equal(t, ActionSkip, session.Rows[0].Action)

	assert.Equal(t, MatchLikely, session.Rows[1].Status)
	assert.Equal(t, ActionReview, session.Rows[1].Action)

	assert.Equal(t, MatchNew, session.Rows[2].Status)
	assert.Equal(t, ActionImport, session.Rows[2].Action)
}

func TestClassifyAllInFileDuplicates(t *testing.T) {
	st := store.NewMemoryStore()
	session := newTestSession(t, strings.Join([]string{
		"Date,Description,Amount",
		"01/04/2025,COFFEE SHOP,-3.20",
		"01/04/2025,COFFEE SHOP,-3.20",
	}, "\n"))

	require.NoError(t, session.ClassifyAll(context.Background(), st))

	assert.Equal(t, MatchNew, session.Rows[0].Status)
	assert.Equal(t, MatchExact, session.Rows[1].Status, "repeat of an earlier statement line is an exact duplicate")
	assert.Equal(t, ActionSkip, session.Rows[1].Action)
}

func TestBulkActionsRequireClassification(t *testing.T) {
	session := newTestSession(t, "Date,Description,Amount\n01/04/2025,THING,-1.00\n")

	_, err := session.ImportAllNew()
	assert.Error(t, err)
	_, err = session.SkipAllDuplicates()
	assert.Error(t, err)
}

func TestImportAllNewLeavesLikelyUntouched(t *testing.T) {
	st := store.NewMemoryStore()
	seedExpense(t, st, "exp-1", day(2025, time.April, 2), 9900, "EXISTING PAYMENT")

	session := newTestSession(t, strings.Join([]string{
		"Date,Description,Amount",
		"01/04/2025,NEW ONE,-10.00",
		"02/04/2025,SOMETHING ELSE,-99.00", // likely against exp-1
		"03/04/2025,NEW TWO,-20.00",
	}, "\n"))
	require.NoError(t, session.ClassifyAll(context.Background(), st))

	// Force the NEW rows away from their default so the bulk action has
	// something to change.
	require.NoError(t, session.Resolve(0, ActionSkip))
	require.NoError(t, session.Resolve(2, ActionSkip))
	likelyActionBefore := session.Rows[1].Action

	changed, err := session.ImportAllNew()
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	assert.Equal(t, ActionImport, session.Rows[0].Action)
	assert.Equal(t, ActionImport, session.Rows[2].Action)
	assert.Equal(t, likelyActionBefore, session.Rows[1].Action, "LIKELY rows are never bulk-changed")

	// Running it again changes nothing.
	changed, err = session.ImportAllNew()
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestSkipAllDuplicatesOnlyTouchesExact(t *testing.T) {
	st := store.NewMemoryStore()
	seedExpense(t, st, "exp-1", day(2025, time.April, 1), 4520, "TESCO STORES 3412")

	session := newTestSession(t, strings.Join([]string{
		"Date,Description,Amount",
		"01/04/2025,TESCO STORES 3412,-45.20",
		"02/04/2025,FRESH ROW,-5.00",
	}, "\n"))
	require.NoError(t, session.ClassifyAll(context.Background(), st))

	require.NoError(t, session.Resolve(0, ActionImport)) // user overrode the default
	changed, err := session.SkipAllDuplicates()
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Equal(t, ActionSkip, session.Rows[0].Action)
	assert.Equal(t, ActionImport, session.Rows[1].Action)
}

func TestUnresolved(t *testing.T) {
	st := store.NewMemoryStore()
	seedExpense(t, st, "exp-1", day(2025, time.April, 1), 4520, "SOMETHING")

	session := newTestSession(t, strings.Join([]string{
		"Date,Description,Amount",
		"01/04/2025,OTHER DESC,-45.20", // likely
		"02/04/2025,NEW ROW,-5.00",
	}, "\n"))
	require.NoError(t, session.ClassifyAll(context.Background(), st))

	unresolved := session.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, MatchLikely, unresolved[0].Status)

	require.NoError(t, session.Resolve(0, ActionSkip))
	assert.Empty(t, session.Unresolved())
}
