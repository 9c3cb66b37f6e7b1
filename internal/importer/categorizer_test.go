package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mtdbooks/core/internal/model"
)

func TestCategorizeExpenses(t *testing.T) {
	tests := []struct {
		description  string
		wantCategory string
	}{
		{"SHELL PETROL STATION 442", CategoryCarVanTravel},
		{"TRAINLINE LONDON", CategoryCarVanTravel},
		{"RYMAN STATIONERY", CategoryPhoneOfficeCosts},
		{"ADOBE SYSTEMS SUBSCRIPTION", CategoryPhoneOfficeCosts},
		{"BRITISH GAS DIRECT DEBIT", CategoryRentRatesPower},
		{"GOOGLE ADS 99213", CategoryAdvertising},
		{"SCREWFIX LEEDS", CategoryCostOfGoods},
		{"MONTHLY ACCOUNT FEE", CategoryBankCharges},
		{"TESCO STORES 3412", CategoryDrawings},
		{"COMPLETELY OPAQUE REFERENCE 991", CategoryUncategorized},
	}
	for _, tt := range tests {
		category, confidence := Categorize(tt.description, model.TransactionExpense)
		assert.Equal(t, tt.wantCategory, category, "description %q", tt.description)
		if tt.wantCategory == CategoryUncategorized {
			assert.Zero(t, confidence)
		} else {
			assert.Positive(t, confidence)
		}
	}
}

func TestCategorizeIncome(t *testing.T) {
	category, confidence := Categorize("INVOICE 0042 ACME LTD", model.TransactionIncome)
	assert.Equal(t, CategorySales, category)
	assert.GreaterOrEqual(t, confidence, 80)

	category, _ = Categorize("HMRC TAX REFUND", model.TransactionIncome)
	assert.Equal(t, CategoryOtherIncome, category)

	category, confidence = Categorize("UNKNOWN TRANSFER", model.TransactionIncome)
	assert.Equal(t, CategoryUncategorized, category)
	assert.Zero(t, confidence)
}

func TestCategorizeDeterministic(t *testing.T) {
	// A description matching several keywords must always resolve the same
	// way: higher confidence first, then longer keyword, then lexicographic.
	first, firstConf := Categorize("TESCO ESSO EXPRESS", model.TransactionExpense)
	for i := 0; i < 50; i++ {
		category, confidence := Categorize("TESCO ESSO EXPRESS", model.TransactionExpense)
		assert.Equal(t, first, category)
		assert.Equal(t, firstConf, confidence)
	}
	// Esso at 90 beats the Tesco drawings rule at 55.
	assert.Equal(t, CategoryCarVanTravel, first)
}

func TestCategorizeEmptyDescription(t *testing.T) {
	category, confidence := Categorize("   ", model.TransactionExpense)
	assert.Equal(t, CategoryUncategorized, category)
	assert.Zero(t, confidence)
}

func TestCategoryAllowable(t *testing.T) {
	assert.False(t, CategoryAllowable(CategoryDrawings))
	assert.True(t, CategoryAllowable(CategoryCarVanTravel))
	assert.True(t, CategoryAllowable(CategoryUncategorized))
}
