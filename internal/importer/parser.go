package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mtdbooks/core/internal/model"
)

// MaxFileSize bounds statement files before any parsing begins.
const MaxFileSize = 50 * 1024 * 1024

// MatchStatus classifies a parsed row against persisted records.
type MatchStatus string

const (
	// MatchUnknown means classification has not run yet.
	MatchUnknown MatchStatus = "UNKNOWN"
	// MatchNew means no persisted record matches.
	MatchNew MatchStatus = "NEW"
	// MatchExact means a persisted record has the same date, amount and
	// normalized description.
	MatchExact MatchStatus = "EXACT"
	// MatchLikely means a persisted record has the same amount within the
	// date window but a differing description.
	MatchLikely MatchStatus = "LIKELY"
)

// Action is the import decision for one row.
type Action string

const (
	ActionImport Action = "IMPORT"
	ActionSkip   Action = "SKIP"
	ActionReview Action = "REVIEW"
)

// Row is one parsed statement line, session-local. It is mutated by the
// categorizer, the matcher and user edits, then projected into Income/Expense
// records by the executor.
type Row struct {
	Line        int // 1-based CSV line number, for warnings
	Date        time.Time
	Description string
	AmountPence int64
	Type        model.TransactionType
	Category    string
	Confidence  int // 0-100
	Status      MatchStatus
	Action      Action
	Selected    bool
	MatchedID   string // persisted record matched for EXACT/LIKELY
}

// Warning is a recovered row-level input problem. Warnings never abort the
// parse.
type Warning struct {
	Line    int
	Message string
}

func (w Warning) String() string { return fmt.Sprintf("line %d: %s", w.Line, w.Message) }

// ParseResult is the outcome of parsing one statement file.
type ParseResult struct {
	Headers  []string
	Rows     []*Row
	Warnings []Warning
}

// Parse reads a statement from r against the mapping. Individual bad rows are
// collected as warnings and skipped; only structural problems (unreadable
// input, oversize file, invalid mapping) return an error.
func Parse(r io.Reader, mapping ColumnMapping) (*ParseResult, error) {
	if err := mapping.Validate(); err != nil {
		return nil, fmt.Errorf("invalid column mapping: %w", err)
	}

	// Bound memory before parsing: read through a limited reader and reject
	// files that exceed the cap.
	limited := &io.LimitedReader{R: r, N: MaxFileSize + 1}

	reader := csv.NewReader(limited)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("statement file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header line: %w", err)
	}

	result := &ParseResult{Headers: headers}
	minColumns := mapping.maxColumn() + 1

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if limited.N <= 0 {
			return nil, fmt.Errorf("statement file exceeds %d MB limit", MaxFileSize/(1024*1024))
		}
		if err != nil {
			result.Warnings = append(result.Warnings, Warning{Line: line, Message: fmt.Sprintf("unreadable row: %v", err)})
			continue
		}
		if isBlankRecord(record) {
			continue
		}
		if len(record) < minColumns {
			result.Warnings = append(result.Warnings, Warning{Line: line, Message: fmt.Sprintf("expected at least %d columns, got %d", minColumns, len(record))})
			continue
		}

		row, warn := parseRecord(record, mapping, line)
		if warn != nil {
			result.Warnings = append(result.Warnings, *warn)
			continue
		}
		if row == nil {
			// Zero-amount rows carry no financial information.
			continue
		}
		if utf8.RuneCountInString(row.Description) > model.MaxDescriptionLength {
			result.Warnings = append(result.Warnings, Warning{
				Line:    line,
				Message: fmt.Sprintf("description longer than %d characters will be truncated", model.MaxDescriptionLength),
			})
		}
		result.Rows = append(result.Rows, row)
	}
	if limited.N <= 0 {
		return nil, fmt.Errorf("statement file exceeds %d MB limit", MaxFileSize/(1024*1024))
	}

	return result, nil
}

// ParseFile parses a statement file from disk, rejecting oversize files
// before any row is read.
func ParseFile(path string, mapping ColumnMapping) (*ParseResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat statement file: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("statement file exceeds %d MB limit", MaxFileSize/(1024*1024))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open statement file: %w", err)
	}
	defer f.Close()
	return Parse(f, mapping)
}

// parseRecord converts one CSV record to a Row. Returns (nil, nil) for rows
// with no amount in any mapped column.
func parseRecord(record []string, mapping ColumnMapping, line int) (*Row, *Warning) {
	dateStr := strings.TrimSpace(record[mapping.DateColumn])
	date, err := time.Parse(mapping.DateFormat, dateStr)
	if err != nil {
		return nil, &Warning{Line: line, Message: fmt.Sprintf("unparseable date %q (expected format %s)", dateStr, mapping.DateFormat)}
	}
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	description := strings.TrimSpace(record[mapping.DescriptionColumn])

	var amountPence int64
	var txType model.TransactionType

	if mapping.SeparateAmountColumns {
		incomeStr := strings.TrimSpace(record[mapping.IncomeColumn])
		expenseStr := strings.TrimSpace(record[mapping.ExpenseColumn])
		switch {
		case expenseStr != "":
			// A value in the expense column is expense-typed regardless of sign.
			pence, err := ParseAmountPence(expenseStr)
			if err != nil {
				return nil, &Warning{Line: line, Message: fmt.Sprintf("unparseable amount %q: %v", expenseStr, err)}
			}
			amountPence, txType = abs64(pence), model.TransactionExpense
		case incomeStr != "":
			pence, err := ParseAmountPence(incomeStr)
			if err != nil {
				return nil, &Warning{Line: line, Message: fmt.Sprintf("unparseable amount %q: %v", incomeStr, err)}
			}
			amountPence, txType = abs64(pence), model.TransactionIncome
		default:
			return nil, nil
		}
	} else {
		amountStr := strings.TrimSpace(record[mapping.AmountColumn])
		if amountStr == "" {
			return nil, nil
		}
		pence, err := ParseAmountPence(amountStr)
		if err != nil {
			return nil, &Warning{Line: line, Message: fmt.Sprintf("unparseable amount %q: %v", amountStr, err)}
		}
		if pence == 0 {
			return nil, nil
		}
		negative := pence < 0
		if negative == mapping.NegativeIsExpense {
			txType = model.TransactionExpense
		} else {
			txType = model.TransactionIncome
		}
		amountPence = abs64(pence)
	}

	var category string
	if mapping.CategoryColumn >= 0 && mapping.CategoryColumn < len(record) {
		category = strings.TrimSpace(record[mapping.CategoryColumn])
	}

	return &Row{
		Line:        line,
		Date:        date,
		Description: description,
		AmountPence: amountPence,
		Type:        txType,
		Category:    category,
		Status:      MatchUnknown,
		Action:      ActionReview,
		Selected:    true,
	}, nil
}

// ParseAmountPence parses a monetary string into signed pence. Accepts an
// optional currency symbol, thousands separators, parenthesized negatives and
// at most two decimal places.
func ParseAmountPence(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimPrefix(s, "£")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	switch {
	case strings.HasPrefix(s, "-"):
		negative = !negative
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	s = strings.TrimPrefix(s, "£")
	if s == "" {
		return 0, fmt.Errorf("no digits in amount")
	}

	whole := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
		if len(frac) > 2 {
			return 0, fmt.Errorf("more than two decimal places")
		}
	}
	if whole == "" {
		whole = "0"
	}
	for len(frac) < 2 {
		frac += "0"
	}

	var pence int64
	for _, c := range whole + frac {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("unexpected character %q", c)
		}
		pence = pence*10 + int64(c-'0')
	}
	if negative {
		pence = -pence
	}
	return pence, nil
}

// FormatAmountPence renders pence as a plain decimal string, the inverse of
// ParseAmountPence for non-negative values.
func FormatAmountPence(pence int64) string {
	sign := ""
	if pence < 0 {
		sign = "-"
		pence = -pence
	}
	return fmt.Sprintf("%s%d.%02d", sign, pence/100, pence%100)
}

func isBlankRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
