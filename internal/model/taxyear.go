package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UK tax year: 6 April to 5 April. MTD quarterly update periods follow the
// tax year, with updates due by the 7th of the month after the quarter ends
// (7 Aug, 7 Nov, 7 Feb, 7 May).

// ParseTaxYear converts a tax year label (e.g. "2025-26") to its start and
// end instants.
func ParseTaxYear(label string) (time.Time, time.Time, error) {
	parts := strings.SplitN(label, "-", 2)
	if len(parts) != 2 || len(parts[1]) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid tax year format: %s (expected YYYY-YY)", label)
	}
	startYear, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start year in tax year: %s", label)
	}
	if (startYear+1)%100 != mustAtoi(parts[1]) {
		return time.Time{}, time.Time{}, fmt.Errorf("tax year label %s is not consecutive", label)
	}
	start := time.Date(startYear, time.April, 6, 0, 0, 0, 0, time.UTC)
	end := time.Date(startYear+1, time.April, 5, 23, 59, 59, 0, time.UTC)
	return start, end, nil
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// TaxYearOf returns the tax year label containing the given date.
func TaxYearOf(date time.Time) string {
	startYear := date.Year()
	yearStart := time.Date(date.Year(), time.April, 6, 0, 0, 0, 0, time.UTC)
	if date.Before(yearStart) {
		startYear--
	}
	return TaxYearLabel(startYear)
}

// TaxYearLabel formats a start year as a tax year label, e.g. 2025 -> "2025-26".
func TaxYearLabel(startYear int) string {
	return fmt.Sprintf("%d-%02d", startYear, (startYear+1)%100)
}

// CurrentTaxYear returns the tax year label for the current date.
func CurrentTaxYear() string {
	return TaxYearOf(time.Now().UTC())
}

// QuarterDates returns the start and end instants of an MTD quarter (1..4)
// within a tax year.
func QuarterDates(taxYear string, quarter int) (time.Time, time.Time, error) {
	start, _, err := ParseTaxYear(taxYear)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if quarter < 1 || quarter > 4 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid quarter %d (expected 1-4)", quarter)
	}
	qStart := start.AddDate(0, 3*(quarter-1), 0)
	qEnd := qStart.AddDate(0, 3, -1)
	qEnd = time.Date(qEnd.Year(), qEnd.Month(), qEnd.Day(), 23, 59, 59, 0, time.UTC)
	return qStart, qEnd, nil
}

// QuarterDeadline returns the filing deadline for an MTD quarter: the 7th of
// the month after the quarter ends.
func QuarterDeadline(taxYear string, quarter int) (time.Time, error) {
	_, end, err := QuarterDates(taxYear, quarter)
	if err != nil {
		return time.Time{}, err
	}
	next := end.AddDate(0, 1, 0)
	return time.Date(next.Year(), next.Month(), 7, 23, 59, 59, 0, time.UTC), nil
}

// QuarterOf returns the tax year label and quarter number containing the date.
func QuarterOf(date time.Time) (string, int) {
	taxYear := TaxYearOf(date)
	start, _, _ := ParseTaxYear(taxYear)
	for q := 4; q >= 1; q-- {
		if !date.Before(start.AddDate(0, 3*(q-1), 0)) {
			return taxYear, q
		}
	}
	return taxYear, 1
}
