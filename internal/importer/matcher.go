package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mtdbooks/core/internal/model"
)

// MatchWindow is how far a bank posting date may drift from an existing
// record and still be considered the same transaction.
const MatchWindow = 24 * time.Hour

// NormalizeDescription canonicalizes a description for matching: unicode
// combining marks stripped, lowercased, interior whitespace collapsed.
func NormalizeDescription(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	normalized, _, err := transform.String(t, s)
	if err != nil {
		normalized = s
	}
	return strings.Join(strings.Fields(strings.ToLower(normalized)), " ")
}

// Fingerprint returns a deterministic digest of a transaction's identifying
// fields: SHA256("{date}|{amount}|{normalized description}"). Equal
// fingerprints within one statement mark in-file duplicates.
func Fingerprint(date time.Time, amountPence int64, description string) string {
	input := fmt.Sprintf("%s|%d|%s", date.UTC().Format("2006-01-02"), amountPence, NormalizeDescription(description))
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Match is the result of classifying one candidate row.
type Match struct {
	Status    MatchStatus
	MatchedID string
}

// Classify compares a candidate against persisted records from the
// surrounding date window.
//
//   - EXACT: identical calendar date, identical amount, and the normalized
//     descriptions are equal.
//   - LIKELY: identical amount within the date window but the description
//     differs or is missing. Requires per-row resolution.
//   - NEW: nothing matches.
//
// When several records match with equal strength the closest date wins, then
// the lowest record ID, so classification is deterministic.
func Classify(candidate *Row, existing []*model.TransactionRef) Match {
	candDesc := NormalizeDescription(candidate.Description)
	candDay := dayOf(candidate.Date)

	var best *model.TransactionRef
	var bestStatus MatchStatus

	for _, rec := range existing {
		if rec.Type != candidate.Type || rec.AmountPence != candidate.AmountPence {
			continue
		}
		delta := candidate.Date.Sub(rec.Date)
		if delta < 0 {
			delta = -delta
		}
		if delta > MatchWindow {
			continue
		}

		status := MatchLikely
		if dayOf(rec.Date) == candDay && NormalizeDescription(rec.Description) == candDesc {
			status = MatchExact
		}

		if best == nil || stronger(status, bestStatus) ||
			(status == bestStatus && closer(candidate.Date, rec, best)) {
			best = rec
			bestStatus = status
		}
	}

	if best == nil {
		return Match{Status: MatchNew}
	}
	return Match{Status: bestStatus, MatchedID: best.ID}
}

// DefaultAction is the policy applied after classification: NEW rows import,
// EXACT duplicates skip, LIKELY duplicates wait for the user.
func DefaultAction(status MatchStatus) Action {
	switch status {
	case MatchNew:
		return ActionImport
	case MatchExact:
		return ActionSkip
	default:
		return ActionReview
	}
}

func dayOf(t time.Time) string { return t.UTC().Format("2006-01-02") }

func stronger(a, b MatchStatus) bool {
	return a == MatchExact && b != MatchExact
}

// closer reports whether rec is a better equal-strength match than best:
// smaller date distance first, then lower ID.
func closer(candidateDate time.Time, rec, best *model.TransactionRef) bool {
	dRec := absDuration(candidateDate.Sub(rec.Date))
	dBest := absDuration(candidateDate.Sub(best.Date))
	if dRec != dBest {
		return dRec < dBest
	}
	return rec.ID < best.ID
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
