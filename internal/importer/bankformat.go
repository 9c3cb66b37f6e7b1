package importer

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// BankFormat describes a known bank's CSV export: the header signature that
// identifies it and the column mapping it implies. A detected mapping is a
// pre-fill; the user's own mapping always overrides it.
type BankFormat struct {
	Name    string   `yaml:"name"`
	Headers []string `yaml:"headers"`

	DateColumn        int    `yaml:"date_column"`
	DescriptionColumn int    `yaml:"description_column"`
	AmountColumn      int    `yaml:"amount_column"`
	NegativeIsExpense bool   `yaml:"negative_is_expense"`
	SeparateColumns   bool   `yaml:"separate_columns"`
	IncomeColumn      int    `yaml:"income_column"`
	ExpenseColumn     int    `yaml:"expense_column"`
	CategoryColumn    int    `yaml:"category_column"`
	DateFormat        string `yaml:"date_format"`
}

// Mapping converts the format into a ColumnMapping pre-fill.
func (f BankFormat) Mapping() ColumnMapping {
	m := ColumnMapping{
		DateColumn:            f.DateColumn,
		DescriptionColumn:     f.DescriptionColumn,
		AmountColumn:          f.AmountColumn,
		NegativeIsExpense:     f.NegativeIsExpense,
		SeparateAmountColumns: f.SeparateColumns,
		IncomeColumn:          f.IncomeColumn,
		ExpenseColumn:         f.ExpenseColumn,
		CategoryColumn:        f.CategoryColumn,
		DateFormat:            f.DateFormat,
	}
	if !f.SeparateColumns {
		m.IncomeColumn = -1
		m.ExpenseColumn = -1
	}
	return m
}

// builtinFormats covers the common UK bank CSV exports.
var builtinFormats = []BankFormat{
	{
		Name:    "Barclays",
		Headers: []string{"number", "date", "account", "amount", "subcategory", "memo"},
		DateColumn: 1, DescriptionColumn: 5, AmountColumn: 3,
		NegativeIsExpense: true, CategoryColumn: 4, DateFormat: "02/01/2006",
	},
	{
		Name:    "HSBC",
		Headers: []string{"date", "type", "description", "paid out", "paid in", "balance"},
		DateColumn: 0, DescriptionColumn: 2,
		SeparateColumns: true, ExpenseColumn: 3, IncomeColumn: 4,
		CategoryColumn: -1, DateFormat: "02/01/2006",
	},
	{
		Name: "Lloyds",
		Headers: []string{"transaction date", "transaction type", "sort code", "account number",
			"transaction description", "debit amount", "credit amount", "balance"},
		DateColumn: 0, DescriptionColumn: 4,
		SeparateColumns: true, ExpenseColumn: 5, IncomeColumn: 6,
		CategoryColumn: -1, DateFormat: "02/01/2006",
	},
	{
		Name:    "Monzo",
		Headers: []string{"transaction id", "date", "time", "type", "name", "emoji", "category", "amount"},
		DateColumn: 1, DescriptionColumn: 4, AmountColumn: 7,
		NegativeIsExpense: true, CategoryColumn: 6, DateFormat: "02/01/2006",
	},
	{
		Name:    "Starling",
		Headers: []string{"date", "counter party", "reference", "type", "amount (gbp)", "balance (gbp)"},
		DateColumn: 0, DescriptionColumn: 1, AmountColumn: 4,
		NegativeIsExpense: true, CategoryColumn: -1, DateFormat: "02/01/2006",
	},
	{
		Name:    "NatWest",
		Headers: []string{"date", "type", "description", "value", "balance", "account name", "account number"},
		DateColumn: 0, DescriptionColumn: 2, AmountColumn: 3,
		NegativeIsExpense: true, CategoryColumn: -1, DateFormat: "02/01/2006",
	},
	{
		Name:    "Santander",
		Headers: []string{"date", "description", "amount", "balance"},
		DateColumn: 0, DescriptionColumn: 1, AmountColumn: 2,
		NegativeIsExpense: true, CategoryColumn: -1, DateFormat: "02/01/2006",
	},
}

// BankFormatDetector matches CSV headers against known bank signatures.
type BankFormatDetector struct {
	formats []BankFormat
}

// NewBankFormatDetector returns a detector with the built-in UK bank
// signatures.
func NewBankFormatDetector() *BankFormatDetector {
	return &BankFormatDetector{formats: builtinFormats}
}

// LoadBankFormats reads additional signatures from a YAML file. Loaded
// formats take precedence over the built-ins.
func LoadBankFormats(path string) (*BankFormatDetector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bank formats: %w", err)
	}
	var loaded []BankFormat
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse bank formats: %w", err)
	}
	for i, f := range loaded {
		if f.Name == "" || len(f.Headers) == 0 {
			return nil, fmt.Errorf("bank format %d: name and headers are required", i)
		}
	}
	return &BankFormatDetector{formats: append(loaded, builtinFormats...)}, nil
}

// Detect inspects CSV headers and returns the matching bank format. Pure and
// deterministic: the first format whose signature matches wins, exact header
// sets before prefix matches.
func (d *BankFormatDetector) Detect(headers []string) (BankFormat, bool) {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	for _, f := range d.formats {
		if headersEqual(normalized, f.Headers) {
			return f, true
		}
	}
	// Fuzzy pass: a file whose leading headers match a signature (banks
	// occasionally append trailing columns).
	for _, f := range d.formats {
		if headersPrefix(normalized, f.Headers) {
			return f, true
		}
	}
	return BankFormat{}, false
}

func headersEqual(headers, signature []string) bool {
	if len(headers) != len(signature) {
		return false
	}
	for i := range signature {
		if headers[i] != signature[i] {
			return false
		}
	}
	return true
}

func headersPrefix(headers, signature []string) bool {
	if len(headers) <= len(signature) {
		return false
	}
	for i := range signature {
		if headers[i] != signature[i] {
			return false
		}
	}
	return true
}
