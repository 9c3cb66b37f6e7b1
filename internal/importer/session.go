package importer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mtdbooks/core/internal/model"
)

// classifyConcurrency bounds parallel date-window lookups during
// classification.
const classifyConcurrency = 4

// WindowLister is the slice of the store needed by classification.
type WindowLister interface {
	ListTransactionsNear(ctx context.Context, businessID string, date time.Time, window time.Duration) ([]*model.TransactionRef, error)
}

// Session holds the rows of one statement import while the user reviews
// them. Bulk actions stay unavailable until every row has been classified,
// so "import all new" and "skip all duplicates" always operate on a fully
// classified set.
type Session struct {
	BusinessID string
	SourceFile string
	Mapping    ColumnMapping
	Rows       []*Row
	Warnings   []Warning

	classified bool
}

// NewSession builds a session from a parse result and runs categorization on
// every row. Classification against the store is a separate, slower step.
func NewSession(businessID, sourceFile string, result *ParseResult, mapping ColumnMapping) *Session {
	s := &Session{
		BusinessID: businessID,
		SourceFile: sourceFile,
		Mapping:    mapping,
		Rows:       result.Rows,
		Warnings:   result.Warnings,
	}
	for _, row := range s.Rows {
		if row.Category == "" {
			row.Category, row.Confidence = Categorize(row.Description, row.Type)
		} else {
			// The statement supplied its own category; trust it fully.
			row.Confidence = 100
		}
	}
	return s
}

// ClassifyAll classifies every row against persisted records. Rows that
// duplicate an earlier row of the same statement are marked EXACT without a
// store lookup. Lookups run concurrently but the session only becomes
// classified once every row is done.
func (s *Session) ClassifyAll(ctx context.Context, lister WindowLister) error {
	s.classified = false

	// In-file duplicate suppression first, serially: later occurrences of an
	// identical fingerprint are exact duplicates of the first.
	seen := make(map[string]bool, len(s.Rows))
	inFileDup := make([]bool, len(s.Rows))
	for i, row := range s.Rows {
		fp := Fingerprint(row.Date, row.AmountPence, row.Description)
		if seen[fp] {
			inFileDup[i] = true
		}
		seen[fp] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(classifyConcurrency)
	for i, row := range s.Rows {
		if inFileDup[i] {
			row.Status = MatchExact
			row.Action = ActionSkip
			row.MatchedID = ""
			continue
		}
		row := row
		g.Go(func() error {
			existing, err := lister.ListTransactionsNear(gctx, s.BusinessID, row.Date, MatchWindow)
			if err != nil {
				return fmt.Errorf("classify row %d: %w", row.Line, err)
			}
			match := Classify(row, existing)
			row.Status = match.Status
			row.MatchedID = match.MatchedID
			row.Action = DefaultAction(match.Status)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.classified = true
	return nil
}

// Classified reports whether every row has been classified. Bulk actions are
// refused before this.
func (s *Session) Classified() bool { return s.classified }

// ImportAllNew sets the action of every NEW row to IMPORT. Rows with any
// other status, LIKELY in particular, are left untouched. Returns the number
// of rows changed.
func (s *Session) ImportAllNew() (int, error) {
	if !s.classified {
		return 0, fmt.Errorf("rows are not fully classified yet")
	}
	changed := 0
	for _, row := range s.Rows {
		if row.Status == MatchNew && row.Action != ActionImport {
			row.Action = ActionImport
			changed++
		}
	}
	return changed, nil
}

// SkipAllDuplicates sets the action of every EXACT row to SKIP. LIKELY rows
// require per-row resolution and are never bulk-changed.
func (s *Session) SkipAllDuplicates() (int, error) {
	if !s.classified {
		return 0, fmt.Errorf("rows are not fully classified yet")
	}
	changed := 0
	for _, row := range s.Rows {
		if row.Status == MatchExact && row.Action != ActionSkip {
			row.Action = ActionSkip
			changed++
		}
	}
	return changed, nil
}

// Resolve sets the action of a single row, the only way a LIKELY row gets a
// decision.
func (s *Session) Resolve(index int, action Action) error {
	if index < 0 || index >= len(s.Rows) {
		return fmt.Errorf("row index %d out of range", index)
	}
	s.Rows[index].Action = action
	return nil
}

// SetCategory overrides the categorizer's suggestion for one row.
func (s *Session) SetCategory(index int, category string) error {
	if index < 0 || index >= len(s.Rows) {
		return fmt.Errorf("row index %d out of range", index)
	}
	s.Rows[index].Category = category
	s.Rows[index].Confidence = 100
	return nil
}

// Unresolved returns the rows still marked REVIEW. The import executor
// refuses a session with unresolved rows.
func (s *Session) Unresolved() []*Row {
	var out []*Row
	for _, row := range s.Rows {
		if row.Action == ActionReview {
			out = append(out, row)
		}
	}
	return out
}
