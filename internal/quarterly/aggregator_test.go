package quarterly

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtdbooks/core/internal/model"
	"github.com/mtdbooks/core/internal/store"
)

const travelCategory = "Car, van and travel expenses"

func seedIncome(t *testing.T, st store.Store, id string, date time.Time, pence int64) {
	t.Helper()
	require.NoError(t, st.CreateIncome(context.Background(), &model.Income{
		ID: id, BusinessID: "biz-1", Date: date, AmountPence: pence,
		Description: "income " + id, Category: "Sales income",
	}))
}

func seedExpense(t *testing.T, st store.Store, id string, date time.Time, pence int64, category string, allowable bool) {
	t.Helper()
	require.NoError(t, st.CreateExpense(context.Background(), &model.Expense{
		ID: id, BusinessID: "biz-1", Date: date, AmountPence: pence,
		Description: "expense " + id, Category: category, Allowable: allowable,
	}))
}

func TestAggregateQuarter(t *testing.T) {
	st := store.NewMemoryStore()
	agg := NewAggregator(st)

	// Q1 of 2025-26: 6 April to 5 July 2025.
	seedIncome(t, st, "inc-1", time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC), 120000)
	seedIncome(t, st, "inc-2", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), 80000)
	seedExpense(t, st, "exp-1", time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC), 4520, travelCategory, true)
	seedExpense(t, st, "exp-2", time.Date(2025, time.May, 9, 0, 0, 0, 0, time.UTC), 3000, travelCategory, true)
	// Non-allowable: excluded from the deductible total, reported separately.
	seedExpense(t, st, "exp-3", time.Date(2025, time.May, 20, 0, 0, 0, 0, time.UTC), 5000, "Personal drawings", false)
	// Outside the quarter.
	seedIncome(t, st, "inc-out", time.Date(2025, time.July, 6, 0, 0, 0, 0, time.UTC), 99999)

	data, err := agg.Aggregate(context.Background(), "biz-1", "2025-26", 1)
	require.NoError(t, err)

	assert.Equal(t, int64(200000), data.TotalIncomePence)
	assert.Equal(t, 2, data.IncomeCount)
	assert.Equal(t, int64(7520), data.TotalExpensePence)
	assert.Equal(t, 2, data.ExpenseCount)
	assert.Equal(t, int64(5000), data.NonAllowablePence)
	assert.Equal(t, 1, data.NonAllowableCount)
	assert.Equal(t, int64(192480), data.ProfitPence())

	travel := data.ExpensesByCategory[travelCategory]
	assert.Equal(t, int64(7520), travel.TotalPence)
	assert.Equal(t, 2, travel.Count)
	assert.NotContains(t, data.ExpensesByCategory, "Personal drawings")
	assert.True(t, data.HasData())
}

func TestAggregateEmptyQuarterIsValid(t *testing.T) {
	st := store.NewMemoryStore()
	agg := NewAggregator(st)

	data, err := agg.Aggregate(context.Background(), "biz-1", "2025-26", 2)
	require.NoError(t, err)
	assert.Zero(t, data.TotalIncomePence)
	assert.Zero(t, data.TotalExpensePence)
	assert.Empty(t, data.ExpensesByCategory)
	assert.False(t, data.HasData())
	assert.Zero(t, data.ProfitPence())
}

func TestAggregateYearCoversAllQuarters(t *testing.T) {
	st := store.NewMemoryStore()
	agg := NewAggregator(st)

	seedIncome(t, st, "q1", time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC), 1000)
	seedIncome(t, st, "q2", time.Date(2025, time.August, 10, 0, 0, 0, 0, time.UTC), 2000)
	seedIncome(t, st, "q3", time.Date(2025, time.November, 10, 0, 0, 0, 0, time.UTC), 3000)
	seedIncome(t, st, "q4", time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC), 4000)
	// The following tax year.
	seedIncome(t, st, "next", time.Date(2026, time.April, 10, 0, 0, 0, 0, time.UTC), 50000)

	data, err := agg.AggregateYear(context.Background(), "biz-1", "2025-26")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), data.TotalIncomePence)
	assert.Equal(t, model.AnnualPeriod, data.Quarter)
}

func TestAggregatePagesThroughLargeQuarters(t *testing.T) {
	st := store.NewMemoryStore()
	agg := NewAggregator(st)

	// More rows than one page.
	for i := 0; i < 1203; i++ {
		seedIncome(t, st, fmt.Sprintf("inc-%04d", i), time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC), 100)
	}

	data, err := agg.Aggregate(context.Background(), "biz-1", "2025-26", 1)
	require.NoError(t, err)
	assert.Equal(t, 1203, data.IncomeCount)
	assert.Equal(t, int64(120300), data.TotalIncomePence)
}

func TestStatus(t *testing.T) {
	st := store.NewMemoryStore()
	agg := NewAggregator(st)
	ctx := context.Background()

	// Before Q2 starts.
	state, err := agg.Status(ctx, "biz-1", "2025-26", 2, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, PeriodFuture, state)

	// During Q2.
	state, err = agg.Status(ctx, "biz-1", "2025-26", 2, time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, PeriodDraft, state)

	// After Q2's deadline (7 November 2025).
	state, err = agg.Status(ctx, "biz-1", "2025-26", 2, time.Date(2025, time.November, 8, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, PeriodOverdue, state)

	// Once accepted, the state is SUBMITTED regardless of the date.
	require.NoError(t, st.CreateSubmission(ctx, &model.SubmissionRecord{
		ID: "sub-1", BusinessID: "biz-1", TaxYear: "2025-26", Quarter: 2,
		SubmittedAt: time.Now().UTC(), Status: model.SubmissionAccepted,
	}))
	state, err = agg.Status(ctx, "biz-1", "2025-26", 2, time.Date(2025, time.November, 8, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, PeriodSubmitted, state)
}

func TestStatusAnnual(t *testing.T) {
	st := store.NewMemoryStore()
	agg := NewAggregator(st)
	ctx := context.Background()

	// Annual deadline for 2025-26 is 31 January 2027.
	state, err := agg.Status(ctx, "biz-1", "2025-26", model.AnnualPeriod, time.Date(2027, time.January, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, PeriodDraft, state)

	state, err = agg.Status(ctx, "biz-1", "2025-26", model.AnnualPeriod, time.Date(2027, time.February, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, PeriodOverdue, state)
}
