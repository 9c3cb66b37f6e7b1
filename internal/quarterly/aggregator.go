// Package quarterly derives the review snapshots reported in MTD quarterly
// updates. Everything here is computed fresh from the store on demand;
// nothing is cached or persisted.
package quarterly

import (
	"context"
	"fmt"
	"time"

	"github.com/mtdbooks/core/internal/model"
	"github.com/mtdbooks/core/internal/store"
)

// CategoryTotal sums one expense category.
type CategoryTotal struct {
	TotalPence int64
	Count      int
}

// ReviewData is the read-only aggregate for one reporting period. For the
// annual period Quarter is model.AnnualPeriod and the range covers the whole
// tax year. A period with no transactions is a valid all-zero snapshot.
type ReviewData struct {
	TaxYear     string
	Quarter     int
	PeriodStart time.Time
	PeriodEnd   time.Time

	TotalIncomePence int64
	IncomeCount      int

	// Allowable expenses only; the deductible figures HMRC receives.
	ExpensesByCategory map[string]CategoryTotal
	TotalExpensePence  int64
	ExpenseCount       int

	// Non-allowable expenses, reported separately for display.
	NonAllowablePence int64
	NonAllowableCount int
}

// ProfitPence is income minus allowable expenses.
func (d *ReviewData) ProfitPence() int64 {
	return d.TotalIncomePence - d.TotalExpensePence
}

// HasData reports whether the period contains any transactions.
func (d *ReviewData) HasData() bool {
	return d.IncomeCount > 0 || d.ExpenseCount > 0 || d.NonAllowableCount > 0
}

// PeriodState classifies a reporting period against the calendar and the
// submission history.
type PeriodState string

const (
	// PeriodFuture means the period has not started yet.
	PeriodFuture PeriodState = "FUTURE"
	// PeriodDraft means the period is open or closed but not yet due.
	PeriodDraft PeriodState = "DRAFT"
	// PeriodOverdue means the filing deadline passed without an accepted
	// submission.
	PeriodOverdue PeriodState = "OVERDUE"
	// PeriodSubmitted means an accepted submission exists.
	PeriodSubmitted PeriodState = "SUBMITTED"
)

// Aggregator computes review snapshots from the store.
type Aggregator struct {
	store store.Store
}

// NewAggregator creates an aggregator over the given store.
func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{store: st}
}

// Aggregate sums the period's income and expenses. Quarter 1-4 selects an
// MTD quarter; model.AnnualPeriod selects the whole tax year.
func (a *Aggregator) Aggregate(ctx context.Context, businessID, taxYear string, quarter int) (*ReviewData, error) {
	var start, end time.Time
	var err error
	if quarter == model.AnnualPeriod {
		start, end, err = model.ParseTaxYear(taxYear)
	} else {
		start, end, err = model.QuarterDates(taxYear, quarter)
	}
	if err != nil {
		return nil, err
	}

	data := &ReviewData{
		TaxYear:            taxYear,
		Quarter:            quarter,
		PeriodStart:        start,
		PeriodEnd:          end,
		ExpensesByCategory: make(map[string]CategoryTotal),
	}

	var pageToken string
	for {
		incomes, nextToken, err := a.store.ListIncomes(ctx, businessID, &start, &end, 500, pageToken)
		if err != nil {
			return nil, fmt.Errorf("list incomes: %w", err)
		}
		for _, inc := range incomes {
			data.TotalIncomePence += inc.AmountPence
			data.IncomeCount++
		}
		if nextToken == "" {
			break
		}
		pageToken = nextToken
	}

	pageToken = ""
	for {
		expenses, nextToken, err := a.store.ListExpenses(ctx, businessID, &start, &end, 500, pageToken)
		if err != nil {
			return nil, fmt.Errorf("list expenses: %w", err)
		}
		for _, exp := range expenses {
			if !exp.Allowable {
				data.NonAllowablePence += exp.AmountPence
				data.NonAllowableCount++
				continue
			}
			data.TotalExpensePence += exp.AmountPence
			data.ExpenseCount++
			ct := data.ExpensesByCategory[exp.Category]
			ct.TotalPence += exp.AmountPence
			ct.Count++
			data.ExpensesByCategory[exp.Category] = ct
		}
		if nextToken == "" {
			break
		}
		pageToken = nextToken
	}

	return data, nil
}

// AggregateYear is the annual equivalent of Aggregate.
func (a *Aggregator) AggregateYear(ctx context.Context, businessID, taxYear string) (*ReviewData, error) {
	return a.Aggregate(ctx, businessID, taxYear, model.AnnualPeriod)
}

// Status derives the period state for a quarter: SUBMITTED once an accepted
// submission exists, FUTURE before the quarter starts, OVERDUE past the
// filing deadline, DRAFT otherwise.
func (a *Aggregator) Status(ctx context.Context, businessID, taxYear string, quarter int, now time.Time) (PeriodState, error) {
	accepted, err := a.store.FindAcceptedSubmission(ctx, businessID, taxYear, quarter)
	if err != nil {
		return "", fmt.Errorf("find accepted submission: %w", err)
	}
	var start time.Time
	var deadline time.Time
	if quarter == model.AnnualPeriod {
		var end time.Time
		start, end, err = model.ParseTaxYear(taxYear)
		if err != nil {
			return "", err
		}
		// Annual final declaration is due 31 January after the tax year ends.
		deadline = time.Date(end.Year()+1, time.January, 31, 23, 59, 59, 0, time.UTC)
	} else {
		start, _, err = model.QuarterDates(taxYear, quarter)
		if err != nil {
			return "", err
		}
		deadline, err = model.QuarterDeadline(taxYear, quarter)
		if err != nil {
			return "", err
		}
	}

	switch {
	case accepted != nil:
		return PeriodSubmitted, nil
	case now.Before(start):
		return PeriodFuture, nil
	case now.After(deadline):
		return PeriodOverdue, nil
	default:
		return PeriodDraft, nil
	}
}
