package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mtdbooks/core/internal/model"
	"github.com/mtdbooks/core/internal/quarterly"
	"github.com/mtdbooks/core/internal/store"
	"github.com/mtdbooks/core/internal/submission"
)

// ============================================================================
// Submission Service
// ============================================================================

// SubmissionService exposes the quarterly review and the submission workflow:
// aggregate a period, check its status, submit it through the pipeline, and
// browse the append-only history.
type SubmissionService struct {
	store    store.Store
	agg      *quarterly.Aggregator
	pipeline *submission.Pipeline
}

// NewSubmissionService wires the service over the shared store and pipeline.
func NewSubmissionService(st store.Store, pipeline *submission.Pipeline) *SubmissionService {
	return &SubmissionService{
		store:    st,
		agg:      quarterly.NewAggregator(st),
		pipeline: pipeline,
	}
}

// Review aggregates one quarter (or the full year for model.AnnualPeriod)
// for display before submission.
func (s *SubmissionService) Review(ctx context.Context, businessID, taxYear string, quarter int) (*quarterly.ReviewData, error) {
	return s.agg.Aggregate(ctx, businessID, taxYear, quarter)
}

// PeriodStatus classifies a period as FUTURE, DRAFT, OVERDUE or SUBMITTED.
func (s *SubmissionService) PeriodStatus(ctx context.Context, businessID, taxYear string, quarter int) (quarterly.PeriodState, error) {
	return s.agg.Status(ctx, businessID, taxYear, quarter, time.Now().UTC())
}

// SubmitQuarter runs a submission attempt for one quarter.
func (s *SubmissionService) SubmitQuarter(ctx context.Context, businessID, taxYear string, quarter int, decl *submission.Declaration, onState submission.StateFunc) (*model.SubmissionRecord, error) {
	if quarter < 1 || quarter > 4 {
		return nil, fmt.Errorf("quarter must be 1..4, got %d", quarter)
	}
	return s.submit(ctx, businessID, taxYear, quarter, decl, onState)
}

// SubmitAnnual runs a submission attempt for the annual final declaration.
func (s *SubmissionService) SubmitAnnual(ctx context.Context, businessID, taxYear string, decl *submission.Declaration, onState submission.StateFunc) (*model.SubmissionRecord, error) {
	return s.submit(ctx, businessID, taxYear, model.AnnualPeriod, decl, onState)
}

// Retry starts a fresh attempt for the period of a rejected submission. The
// rejected record is never mutated; a new record captures the retry.
func (s *SubmissionService) Retry(ctx context.Context, submissionID string, decl *submission.Declaration, onState submission.StateFunc) (*model.SubmissionRecord, error) {
	record, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if record.Status != model.SubmissionRejected {
		return nil, fmt.Errorf("submission %s is %s, only rejected submissions can be retried", submissionID, record.Status)
	}
	return s.submit(ctx, record.BusinessID, record.TaxYear, record.Quarter, decl, onState)
}

// History returns every submission attempt for a business and tax year,
// newest first.
func (s *SubmissionService) History(ctx context.Context, businessID, taxYear string) ([]*model.SubmissionRecord, error) {
	return s.store.ListSubmissions(ctx, businessID, taxYear)
}

func (s *SubmissionService) submit(ctx context.Context, businessID, taxYear string, quarter int, decl *submission.Declaration, onState submission.StateFunc) (*model.SubmissionRecord, error) {
	if _, _, err := model.ParseTaxYear(taxYear); err != nil {
		return nil, err
	}
	business, err := s.store.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("load business %s: %w", businessID, err)
	}
	return s.pipeline.Submit(ctx, business, taxYear, quarter, decl, onState)
}
