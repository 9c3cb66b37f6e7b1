package importer

import (
	"strings"

	"github.com/mtdbooks/core/internal/model"
)

// SA103 expense box labels used as canonical categories.
const (
	CategoryCostOfGoods      = "Cost of goods"
	CategoryCarVanTravel     = "Car, van and travel expenses"
	CategoryWagesStaff       = "Wages, salaries and other staff costs"
	CategoryRentRatesPower   = "Rent, rates, power and insurance costs"
	CategoryRepairs          = "Repairs and maintenance of property and equipment"
	CategoryPhoneOfficeCosts = "Phone, fax, stationery and other office costs"
	CategoryAdvertising      = "Advertising and business entertainment costs"
	CategoryBankCharges      = "Interest and bank and credit card financial charges"
	CategoryProfessionalFees = "Accountancy, legal and other professional fees"
	CategoryOtherExpenses    = "Other allowable business expenses"
	CategoryDrawings         = "Personal drawings"
	CategorySales            = "Sales income"
	CategoryOtherIncome      = "Other business income"
	CategoryUncategorized    = "Uncategorized"
)

// nonAllowableCategories are excluded from deductible totals.
var nonAllowableCategories = map[string]bool{
	CategoryDrawings:      true,
	CategoryUncategorized: false, // uncategorized still defaults to allowable until reviewed
}

// CategoryAllowable reports whether a category counts toward the deductible
// expense total.
func CategoryAllowable(category string) bool {
	return !nonAllowableCategories[category]
}

// categoryRule maps a description keyword to a category with a match
// confidence (0-100). Longer, more specific keywords carry higher confidence.
type categoryRule struct {
	Category   string
	Confidence int
}

// expenseKeywords is checked against lowercased descriptions, most confident
// rule wins.
var expenseKeywords = map[string]categoryRule{
	// Fuel and travel
	"shell":            {CategoryCarVanTravel, 90},
	"bp ":              {CategoryCarVanTravel, 80},
	"esso":             {CategoryCarVanTravel, 90},
	"texaco":           {CategoryCarVanTravel, 90},
	"trainline":        {CategoryCarVanTravel, 95},
	"gwr":              {CategoryCarVanTravel, 80},
	"national rail":    {CategoryCarVanTravel, 95},
	"tfl":              {CategoryCarVanTravel, 90},
	"uber":             {CategoryCarVanTravel, 85},
	"parking":          {CategoryCarVanTravel, 85},
	"dvla":             {CategoryCarVanTravel, 90},

	// Office, phone, software
	"ryman":            {CategoryPhoneOfficeCosts, 90},
	"staples":          {CategoryPhoneOfficeCosts, 90},
	"viking direct":    {CategoryPhoneOfficeCosts, 90},
	"vodafone":         {CategoryPhoneOfficeCosts, 90},
	"o2":               {CategoryPhoneOfficeCosts, 75},
	"ee limited":       {CategoryPhoneOfficeCosts, 85},
	"bt group":         {CategoryPhoneOfficeCosts, 85},
	"plusnet":          {CategoryPhoneOfficeCosts, 90},
	"microsoft":        {CategoryPhoneOfficeCosts, 80},
	"adobe":            {CategoryPhoneOfficeCosts, 85},
	"dropbox":          {CategoryPhoneOfficeCosts, 85},
	"zoom.us":          {CategoryPhoneOfficeCosts, 85},
	"godaddy":          {CategoryPhoneOfficeCosts, 85},
	"123-reg":          {CategoryPhoneOfficeCosts, 85},
	"amazon web services": {CategoryPhoneOfficeCosts, 90},

	// Premises
	"british gas":      {CategoryRentRatesPower, 85},
	"edf energy":       {CategoryRentRatesPower, 85},
	"octopus energy":   {CategoryRentRatesPower, 85},
	"eon ":             {CategoryRentRatesPower, 75},
	"thames water":     {CategoryRentRatesPower, 85},
	"council tax":      {CategoryRentRatesPower, 80},
	"business rates":   {CategoryRentRatesPower, 95},

	// Marketing
	"facebook ads":     {CategoryAdvertising, 95},
	"google ads":       {CategoryAdvertising, 95},
	"linkedin":         {CategoryAdvertising, 70},
	"mailchimp":        {CategoryAdvertising, 85},
	"vistaprint":       {CategoryAdvertising, 85},

	// Professional fees and insurance
	"accountant":       {CategoryProfessionalFees, 90},
	"accounting":       {CategoryProfessionalFees, 80},
	"solicitor":        {CategoryProfessionalFees, 90},
	"hiscox":           {CategoryRentRatesPower, 85},
	"simply business":  {CategoryRentRatesPower, 85},
	"direct line":      {CategoryRentRatesPower, 75},

	// Bank charges
	"account fee":      {CategoryBankCharges, 90},
	"overdraft":        {CategoryBankCharges, 85},
	"card fee":         {CategoryBankCharges, 85},
	"interest charged": {CategoryBankCharges, 90},

	// Materials and stock
	"screwfix":         {CategoryCostOfGoods, 85},
	"toolstation":      {CategoryCostOfGoods, 85},
	"b&q":              {CategoryCostOfGoods, 75},
	"wickes":           {CategoryCostOfGoods, 80},
	"jewson":           {CategoryCostOfGoods, 85},
	"travis perkins":   {CategoryCostOfGoods, 85},

	// Likely personal: grocery and subscription merchants map to drawings
	// with low confidence so the user reviews them.
	"tesco":            {CategoryDrawings, 55},
	"sainsbury":        {CategoryDrawings, 55},
	"asda":             {CategoryDrawings, 55},
	"morrisons":        {CategoryDrawings, 55},
	"aldi":             {CategoryDrawings, 55},
	"lidl":             {CategoryDrawings, 55},
	"netflix":          {CategoryDrawings, 70},
	"spotify":          {CategoryDrawings, 70},
	"deliveroo":        {CategoryDrawings, 65},
	"just eat":         {CategoryDrawings, 65},
}

// incomeKeywords for money in.
var incomeKeywords = map[string]categoryRule{
	"invoice":   {CategorySales, 85},
	"inv ":      {CategorySales, 70},
	"stripe":    {CategorySales, 80},
	"paypal":    {CategorySales, 65},
	"gocardless": {CategorySales, 80},
	"payment received": {CategorySales, 75},
	"faster payment":   {CategorySales, 50},
	"refund":    {CategoryOtherIncome, 70},
	"interest paid":    {CategoryOtherIncome, 85},
	"hmrc":      {CategoryOtherIncome, 75},
}

// Categorize assigns a category and confidence to a transaction from its
// description. Stateless and deterministic; always user-overridable. Returns
// ("Uncategorized", 0) when nothing matches.
func Categorize(description string, txType model.TransactionType) (string, int) {
	desc := strings.ToLower(strings.TrimSpace(description))
	if desc == "" {
		return CategoryUncategorized, 0
	}

	keywords := expenseKeywords
	if txType == model.TransactionIncome {
		keywords = incomeKeywords
	}

	best := categoryRule{Category: CategoryUncategorized, Confidence: 0}
	bestKeyword := ""
	for keyword, rule := range keywords {
		if !strings.Contains(desc, keyword) {
			continue
		}
		// Prefer higher confidence; tie-break on the longer (more specific)
		// keyword so ties are deterministic.
		if rule.Confidence > best.Confidence ||
			(rule.Confidence == best.Confidence && len(keyword) > len(bestKeyword)) ||
			(rule.Confidence == best.Confidence && len(keyword) == len(bestKeyword) && keyword < bestKeyword) {
			best = rule
			bestKeyword = keyword
		}
	}
	return best.Category, best.Confidence
}
