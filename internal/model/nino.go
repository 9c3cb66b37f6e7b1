package model

import (
	"fmt"
	"regexp"
	"strings"
)

// NINO format: two prefix letters, six digits, suffix A-D. HMRC additionally
// disallows D, F, I, Q, U, V anywhere in the prefix and O as the second
// prefix letter, plus a handful of allocated-but-invalid prefixes.
var ninoPattern = regexp.MustCompile(`^[A-CEGHJ-PR-TW-Z][A-CEGHJ-NPR-TW-Z]\d{6}[A-D]$`)

var invalidNINOPrefixes = map[string]bool{
	"BG": true, "GB": true, "KN": true, "NK": true, "NT": true, "TN": true, "ZZ": true,
}

// NormalizeNINO uppercases and strips spaces from a NINO as entered by a user.
func NormalizeNINO(nino string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(nino), " ", ""))
}

// ValidateNINO checks a National Insurance number against the HMRC format
// rules. Returns nil for a valid NINO.
func ValidateNINO(nino string) error {
	n := NormalizeNINO(nino)
	if n == "" {
		return fmt.Errorf("national insurance number is not set")
	}
	if !ninoPattern.MatchString(n) {
		return fmt.Errorf("invalid national insurance number format: %s", n)
	}
	if invalidNINOPrefixes[n[:2]] {
		return fmt.Errorf("invalid national insurance number prefix: %s", n[:2])
	}
	return nil
}
