// Package submission implements the declaration-gated HMRC submission
// workflow: the legal declaration state machine and the per-attempt
// submission pipeline with transparent re-authentication.
package submission

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DeclarationFlag names one of the six legal acknowledgments a user must
// give before anything is filed.
type DeclarationFlag int

const (
	FlagAccuracy DeclarationFlag = iota
	FlagPenaltiesWarning
	FlagRecordKeeping
	FlagCalculationVerified
	FlagLegalEffect
	FlagIdentityConfirmed

	// FlagCount is the number of acknowledgment flags.
	FlagCount
)

var flagNames = [FlagCount]string{
	"accuracy",
	"penalties-warning",
	"record-keeping",
	"calculation-verification",
	"legal-effect",
	"identity-confirmation",
}

func (f DeclarationFlag) String() string {
	if f < 0 || f >= FlagCount {
		return fmt.Sprintf("flag(%d)", int(f))
	}
	return flagNames[f]
}

// Declaration tracks the acknowledgment flags for one submission attempt.
// It becomes complete exactly when all six flags are set; completing captures
// a timestamp and a deterministic declaration ID. Clearing any flag reverts
// to incomplete and wipes the capture, so a stale completion can never carry
// over into a later attempt.
//
// Not safe for concurrent use; completion is evaluated synchronously on
// every toggle so the caller's submit gate is never stale.
type Declaration struct {
	taxYear string
	flags   [FlagCount]bool

	completedAt time.Time
	id          string

	now func() time.Time
}

// NewDeclaration creates an empty declaration for a tax year.
func NewDeclaration(taxYear string) *Declaration {
	return &Declaration{taxYear: taxYear, now: time.Now}
}

// Set toggles one flag and re-evaluates completion.
func (d *Declaration) Set(flag DeclarationFlag, value bool) error {
	if flag < 0 || flag >= FlagCount {
		return fmt.Errorf("unknown declaration flag %d", int(flag))
	}
	wasComplete := d.IsComplete()
	d.flags[flag] = value
	d.evaluate(wasComplete)
	return nil
}

// Get reports one flag.
func (d *Declaration) Get(flag DeclarationFlag) bool {
	if flag < 0 || flag >= FlagCount {
		return false
	}
	return d.flags[flag]
}

// IsComplete is true iff all six flags are set.
func (d *Declaration) IsComplete() bool {
	for _, v := range d.flags {
		if !v {
			return false
		}
	}
	return true
}

// CompletedAt returns the capture timestamp, zero while incomplete.
func (d *Declaration) CompletedAt() time.Time { return d.completedAt }

// ID returns the declaration ID captured on completion, empty while
// incomplete. The ID is reproducible from the flags, the tax year and the
// completion instant, and unique per completion.
func (d *Declaration) ID() string { return d.id }

// Reset clears every flag and the captured timestamp and ID. Called whenever
// the declaration step is re-entered.
func (d *Declaration) Reset() {
	d.flags = [FlagCount]bool{}
	d.completedAt = time.Time{}
	d.id = ""
}

// evaluate captures or wipes the completion state after a toggle. Each
// incomplete-to-complete transition recaptures the timestamp fresh: an
// earlier capture is never reused.
func (d *Declaration) evaluate(wasComplete bool) {
	if !d.IsComplete() {
		d.completedAt = time.Time{}
		d.id = ""
		return
	}
	if wasComplete {
		return
	}
	d.completedAt = d.now().UTC()
	d.id = declarationID(d.taxYear, d.flags, d.completedAt)
}

// declarationID hashes the declaration content and completion instant.
func declarationID(taxYear string, flags [FlagCount]bool, completedAt time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|", taxYear, completedAt.Format(time.RFC3339Nano))
	for i, v := range flags {
		fmt.Fprintf(h, "%s=%t;", flagNames[i], v)
	}
	return hex.EncodeToString(h.Sum(nil))
}
