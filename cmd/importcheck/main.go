// importcheck parses a bank statement CSV the way an import preview does:
// detect the bank format, parse rows, categorize them, and print the result.
// Useful for checking a new statement export or a custom formats file without
// touching any stored data.
package main

import (
	"flag"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/mtdbooks/core/internal/importer"
	"github.com/mtdbooks/core/internal/model"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed)
)

func main() {
	formatsPath := flag.String("formats", "", "optional YAML file with extra bank formats")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: importcheck [-formats formats.yaml] <statement.csv>")
		os.Exit(1)
	}
	csvPath := flag.Arg(0)

	detector := importer.NewBankFormatDetector()
	if *formatsPath != "" {
		var err error
		detector, err = importer.LoadBankFormats(*formatsPath)
		if err != nil {
			red.Printf("Error loading formats: %v\n", err)
			os.Exit(1)
		}
	}

	mapping := importer.DefaultColumnMapping()
	result, err := importer.ParseFile(csvPath, mapping)
	if err != nil {
		red.Printf("Error parsing %s: %v\n", csvPath, err)
		os.Exit(1)
	}

	if format, ok := detector.Detect(result.Headers); ok {
		green.Printf("Detected format: %s\n", format.Name)
		mapping = format.Mapping()
		result, err = importer.ParseFile(csvPath, mapping)
		if err != nil {
			red.Printf("Error reparsing as %s: %v\n", format.Name, err)
			os.Exit(1)
		}
	} else {
		yellow.Println("No bank format matched; using default column mapping")
	}

	var incomeCount, expenseCount int
	var incomePence, expensePence int64

	fmt.Println()
	for _, row := range result.Rows {
		category, confidence := row.Category, row.Confidence
		if category == "" {
			category, confidence = importer.Categorize(row.Description, row.Type)
		}
		if row.Type == model.TransactionIncome {
			incomeCount++
			incomePence += row.AmountPence
		} else {
			expenseCount++
			expensePence += row.AmountPence
		}
		fmt.Printf("  %s | %-7s | %10s | %-28s | %s (%d%%)\n",
			row.Date.Format("2006-01-02"),
			row.Type,
			importer.FormatAmountPence(row.AmountPence),
			truncate(row.Description, 28),
			category,
			confidence,
		)
	}

	fmt.Println()
	green.Printf("Income:   %3d rows, total %s\n", incomeCount, importer.FormatAmountPence(incomePence))
	green.Printf("Expenses: %3d rows, total %s\n", expenseCount, importer.FormatAmountPence(expensePence))

	if len(result.Warnings) > 0 {
		fmt.Println()
		yellow.Printf("Warnings (%d):\n", len(result.Warnings))
		for _, w := range result.Warnings {
			yellow.Printf("  ⚠ %s\n", w)
		}
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
