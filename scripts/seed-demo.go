//go:build ignore
// +build ignore

// Seeds a local SQLite database with a demo business and a spread of
// transactions across the current tax year. Run with:
//
//	go run scripts/seed-demo.go [path/to/books.db]
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mtdbooks/core/internal/importer"
	"github.com/mtdbooks/core/internal/model"
	"github.com/mtdbooks/core/internal/store"
)

func main() {
	path := "books.db"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	st, err := store.OpenSQLite(path)
	if err != nil {
		log.Fatalf("open %s: %v", path, err)
	}
	defer st.Close()

	ctx := context.Background()
	business := &model.Business{
		ID:        "demo-business",
		Name:      "Jo Plumbing",
		NINO:      "AB123456C",
		UTR:       "1234567890",
		CreatedAt: time.Now().UTC(),
	}
	if err := st.SaveBusiness(ctx, business); err != nil {
		log.Fatalf("save business: %v", err)
	}

	taxYear := model.CurrentTaxYear()
	start, _, err := model.ParseTaxYear(taxYear)
	if err != nil {
		log.Fatalf("parse tax year: %v", err)
	}

	incomeDescs := []string{
		"INVOICE 1001 SMITH BATHROOM", "INVOICE 1002 JONES KITCHEN",
		"INVOICE 1003 BOILER SERVICE", "PAYMENT RECEIVED HARRIS LTD",
	}
	expenseDescs := []string{
		"SCREWFIX LEEDS", "SHELL PETROL STATION", "TOOLSTATION",
		"VODAFONE MOBILE", "SIMPLY BUSINESS INSURANCE", "TESCO STORES 3412",
	}

	created := 0
	for week := 0; week < 40; week++ {
		date := start.AddDate(0, 0, week*7+2)
		if date.After(time.Now().UTC()) {
			break
		}

		inc := &model.Income{
			ID:          uuid.New().String(),
			BusinessID:  business.ID,
			Date:        date,
			AmountPence: int64(25000 + week*1500),
			Description: incomeDescs[week%len(incomeDescs)],
			CreatedAt:   time.Now().UTC(),
			UpdatedAt:   time.Now().UTC(),
		}
		inc.Category, _ = importer.Categorize(inc.Description, model.TransactionIncome)
		if err := st.CreateIncome(ctx, inc); err != nil {
			log.Fatalf("create income: %v", err)
		}
		created++

		desc := expenseDescs[week%len(expenseDescs)]
		category, _ := importer.Categorize(desc, model.TransactionExpense)
		exp := &model.Expense{
			ID:          uuid.New().String(),
			BusinessID:  business.ID,
			Date:        date.AddDate(0, 0, 1),
			AmountPence: int64(1500 + week*320),
			Description: desc,
			Category:    category,
			Allowable:   importer.CategoryAllowable(category),
			CreatedAt:   time.Now().UTC(),
			UpdatedAt:   time.Now().UTC(),
		}
		if err := st.CreateExpense(ctx, exp); err != nil {
			log.Fatalf("create expense: %v", err)
		}
		created++
	}

	fmt.Printf("Seeded %d records for %s (%s) into %s\n", created, business.Name, taxYear, path)
}
