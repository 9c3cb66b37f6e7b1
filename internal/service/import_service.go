package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/mtdbooks/core/internal/importer"
	"github.com/mtdbooks/core/internal/model"
	"github.com/mtdbooks/core/internal/store"
)

// ============================================================================
// Import Service
// ============================================================================

// ImportService drives the CSV import workflow: parse and preview a
// statement, classify rows against existing records, execute the import, and
// undo a batch.
type ImportService struct {
	store    store.Store
	detector *importer.BankFormatDetector
	undoAge  time.Duration
}

// NewImportService creates an ImportService with the built-in bank format
// detector and the default undo window.
func NewImportService(st store.Store) *ImportService {
	return &ImportService{
		store:    st,
		detector: importer.NewBankFormatDetector(),
		undoAge:  importer.DefaultUndoWindow,
	}
}

// SetBankFormatDetector replaces the detector, e.g. one loaded from a YAML
// formats file.
func (s *ImportService) SetBankFormatDetector(d *importer.BankFormatDetector) {
	s.detector = d
}

// Preview parses a statement file and returns an unclassified session. A nil
// mapping triggers bank format detection from the header row, falling back to
// the default mapping.
func (s *ImportService) Preview(ctx context.Context, businessID, path string, mapping *importer.ColumnMapping) (*importer.Session, error) {
	if _, err := s.store.GetBusiness(ctx, businessID); err != nil {
		return nil, fmt.Errorf("load business %s: %w", businessID, err)
	}

	resolved, result, err := s.parse(path, mapping)
	if err != nil {
		return nil, err
	}
	session := importer.NewSession(businessID, filepath.Base(path), result, resolved)
	log.Printf("[Import] previewed %s: %d rows, %d warnings", filepath.Base(path), len(session.Rows), len(session.Warnings))
	return session, nil
}

func (s *ImportService) parse(path string, mapping *importer.ColumnMapping) (importer.ColumnMapping, *importer.ParseResult, error) {
	if mapping != nil {
		result, err := importer.ParseFile(path, *mapping)
		return *mapping, result, err
	}

	// Detection needs the header row, so parse with the default mapping
	// first and reparse only when a known format maps columns differently.
	resolved := importer.DefaultColumnMapping()
	result, err := importer.ParseFile(path, resolved)
	if err != nil {
		return resolved, nil, err
	}
	if format, ok := s.detector.Detect(result.Headers); ok {
		log.Printf("[Import] detected bank format: %s", format.Name)
		resolved = format.Mapping()
		result, err = importer.ParseFile(path, resolved)
		if err != nil {
			return resolved, nil, err
		}
	}
	return resolved, result, nil
}

// Classify resolves each session row against the business's existing records.
func (s *ImportService) Classify(ctx context.Context, session *importer.Session) error {
	return session.ClassifyAll(ctx, s.store)
}

// Execute commits the session's resolved rows as a new import batch.
func (s *ImportService) Execute(ctx context.Context, session *importer.Session, progress importer.ProgressFunc) (*importer.ImportOutcome, error) {
	return importer.Execute(ctx, s.store, session, progress)
}

// Undo reverses an import batch within the undo window.
func (s *ImportService) Undo(ctx context.Context, batchID string) error {
	return importer.Undo(ctx, s.store, batchID, s.undoAge)
}

// ListBatches returns the business's import batches, newest first.
func (s *ImportService) ListBatches(ctx context.Context, businessID string) ([]*model.ImportBatch, error) {
	return s.store.ListImportBatches(ctx, businessID)
}

// LoadBankFormats loads extra bank formats from a YAML file if it exists.
// Missing files are not an error; the built-in formats remain.
func (s *ImportService) LoadBankFormats(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	detector, err := importer.LoadBankFormats(path)
	if err != nil {
		return err
	}
	s.detector = detector
	return nil
}
