// Package importer implements the bank-statement import pipeline: CSV
// parsing against a user-declared column mapping, bank format detection,
// transaction categorization, duplicate classification against persisted
// records, and the import executor with undoable batches.
package importer

import "fmt"

// ColumnMapping declares which CSV column holds each field. Column indexes
// are zero-based. Amount is either a single signed column or a separate
// income/expense column pair; when both income and expense columns are set,
// a value present in the expense column is expense-typed regardless of sign.
type ColumnMapping struct {
	DateColumn        int
	DescriptionColumn int

	// Single signed amount column. Used when SeparateAmountColumns is false.
	AmountColumn int
	// NegativeIsExpense controls the sign convention for the single amount
	// column: true means negative values are expenses (the common bank
	// convention), false means positive values are expenses.
	NegativeIsExpense bool

	// Separate income/expense columns. Used when SeparateAmountColumns is true.
	SeparateAmountColumns bool
	IncomeColumn          int
	ExpenseColumn         int

	// Optional category column; -1 when absent.
	CategoryColumn int

	// DateFormat is the user-declared date layout in Go reference time form,
	// e.g. "02/01/2006".
	DateFormat string
}

// DefaultColumnMapping returns a mapping for the common three-column layout
// Date,Description,Amount with UK day-first dates.
func DefaultColumnMapping() ColumnMapping {
	return ColumnMapping{
		DateColumn:        0,
		DescriptionColumn: 1,
		AmountColumn:      2,
		NegativeIsExpense: true,
		CategoryColumn:    -1,
		DateFormat:        "02/01/2006",
	}
}

// Validate checks the mapping before any parsing begins. A broken mapping
// fails fast: nothing is parsed or written.
func (m ColumnMapping) Validate() error {
	if m.DateFormat == "" {
		return fmt.Errorf("date format is required")
	}
	if m.DateColumn < 0 {
		return fmt.Errorf("date column is required")
	}
	if m.DescriptionColumn < 0 {
		return fmt.Errorf("description column is required")
	}
	if m.SeparateAmountColumns {
		if m.IncomeColumn < 0 || m.ExpenseColumn < 0 {
			return fmt.Errorf("income and expense columns are required when using separate amount columns")
		}
		if m.IncomeColumn == m.ExpenseColumn {
			return fmt.Errorf("income and expense columns must differ")
		}
	} else if m.AmountColumn < 0 {
		return fmt.Errorf("amount column is required")
	}
	return nil
}

// maxColumn returns the highest column index the mapping reads.
func (m ColumnMapping) maxColumn() int {
	max := m.DateColumn
	for _, c := range []int{m.DescriptionColumn, m.CategoryColumn} {
		if c > max {
			max = c
		}
	}
	if m.SeparateAmountColumns {
		if m.IncomeColumn > max {
			max = m.IncomeColumn
		}
		if m.ExpenseColumn > max {
			max = m.ExpenseColumn
		}
	} else if m.AmountColumn > max {
		max = m.AmountColumn
	}
	return max
}
