package submission

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mtdbooks/core/internal/hmrc"
	"github.com/mtdbooks/core/internal/model"
	"github.com/mtdbooks/core/internal/quarterly"
	"github.com/mtdbooks/core/internal/store"
)

// ==== Submission pipeline ====

// State is one phase of a submission attempt.
type State string

const (
	StateReady      State = "READY"
	StateValidating State = "VALIDATING"
	StateConnecting State = "CONNECTING"
	StateSubmitting State = "SUBMITTING"
	StateAccepted   State = "ACCEPTED"
	StateRejected   State = "REJECTED"
)

// StateFunc receives state transitions during an attempt. Callbacks run on
// the submitting goroutine.
type StateFunc func(State)

type periodKey struct {
	businessID string
	taxYear    string
	quarter    int
}

// Pipeline orchestrates one submission attempt: NINO pre-flight, OAuth
// connection when needed, aggregation, the network submission with a single
// transparent re-auth retry on 401, and the append-only SubmissionRecord.
//
// A given (business, taxYear, quarter) can have at most one attempt in
// flight; concurrent requests for the same period are rejected.
type Pipeline struct {
	store     store.Store
	connector *hmrc.Connector
	client    hmrc.Client
	agg       *quarterly.Aggregator

	mu       sync.Mutex
	inflight map[periodKey]struct{}
}

// NewPipeline creates a pipeline over the given store, connector and client.
func NewPipeline(st store.Store, connector *hmrc.Connector, client hmrc.Client) *Pipeline {
	return &Pipeline{
		store:     st,
		connector: connector,
		client:    client,
		agg:       quarterly.NewAggregator(st),
		inflight:  make(map[periodKey]struct{}),
	}
}

// Submit runs a full submission attempt for the given period. Quarter
// model.AnnualPeriod submits the annual figures. The declaration must be
// complete.
//
// A nil error with a record means the attempt reached a terminal outcome:
// the record status is ACCEPTED or REJECTED. A non-nil error means the
// attempt failed before anything was sent and no record was written.
func (p *Pipeline) Submit(ctx context.Context, business *model.Business, taxYear string, quarter int, decl *Declaration, onState StateFunc) (*model.SubmissionRecord, error) {
	notify := func(s State) {
		log.Printf("[Submit] %s %s %s q=%d", s, business.ID, taxYear, quarter)
		if onState != nil {
			onState(s)
		}
	}
	notify(StateValidating)

	if err := model.ValidateNINO(business.NINO); err != nil {
		return nil, &PipelineError{Code: ErrSettingsRequired, Message: "a valid National Insurance Number is required", Cause: err}
	}
	if !decl.IsComplete() {
		return nil, &PipelineError{Code: ErrDeclarationIncomplete, Message: "all declaration statements must be acknowledged"}
	}

	key := periodKey{business.ID, taxYear, quarter}
	if !p.acquire(key) {
		return nil, &PipelineError{Code: ErrAlreadyInFlight, Message: "a submission for this period is already in progress"}
	}
	defer p.release(key)

	data, err := p.agg.Aggregate(ctx, business.ID, taxYear, quarter)
	if err != nil {
		return nil, err
	}
	update := buildUpdate(business, data, decl)

	if !p.connector.Authenticated() {
		notify(StateConnecting)
		if err := p.connect(ctx); err != nil {
			return nil, err
		}
	}

	notify(StateSubmitting)
	record := &model.SubmissionRecord{
		ID:            uuid.New().String(),
		BusinessID:    business.ID,
		TaxYear:       taxYear,
		Quarter:       quarter,
		SubmittedAt:   time.Now().UTC(),
		Status:        model.SubmissionPending,
		DeclarationID: decl.ID(),
	}
	if err := p.store.CreateSubmission(ctx, record); err != nil {
		return nil, err
	}

	outcome, submitErr := p.send(ctx, update)

	// Expired auth: reconnect and retry the submission exactly once.
	if isAuthExpired(submitErr) {
		notify(StateConnecting)
		if err := p.connect(ctx); err != nil {
			return p.finalize(ctx, record, notify, nil, err)
		}
		notify(StateSubmitting)
		outcome, submitErr = p.send(ctx, update)
	}

	return p.finalize(ctx, record, notify, outcome, submitErr)
}

// Retry starts a fresh attempt for a period whose last record was rejected.
// The declaration must have been re-acknowledged; a retry never mutates the
// rejected record.
func (p *Pipeline) Retry(ctx context.Context, business *model.Business, taxYear string, quarter int, decl *Declaration, onState StateFunc) (*model.SubmissionRecord, error) {
	return p.Submit(ctx, business, taxYear, quarter, decl, onState)
}

func (p *Pipeline) acquire(key periodKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[key]; busy {
		return false
	}
	p.inflight[key] = struct{}{}
	return true
}

func (p *Pipeline) release(key periodKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, key)
}

// connect runs the OAuth flow and maps its failures to pipeline errors.
func (p *Pipeline) connect(ctx context.Context) error {
	err := p.connector.StartConnection(ctx, nil)
	if err == nil {
		return nil
	}
	var clientErr *hmrc.ClientError
	switch {
	case errors.As(err, &clientErr) && clientErr.Code == hmrc.ErrTimeout:
		return &PipelineError{Code: ErrAuthTimeout, Message: "authorization timed out", Cause: err}
	case errors.Is(err, context.Canceled):
		return &PipelineError{Code: ErrCancelled, Message: "authorization cancelled", Cause: err}
	default:
		return &PipelineError{Code: ErrAuthDenied, Message: "authorization failed", Cause: err}
	}
}

func (p *Pipeline) send(ctx context.Context, update *hmrc.Update) (*hmrc.Outcome, error) {
	if update.Quarter == model.AnnualPeriod {
		return p.client.SubmitAnnual(ctx, update)
	}
	return p.client.SubmitQuarterly(ctx, update)
}

// finalize writes the terminal status for the attempt's record. The write
// survives caller cancellation so no record is left PENDING.
func (p *Pipeline) finalize(ctx context.Context, record *model.SubmissionRecord, notify func(State), outcome *hmrc.Outcome, submitErr error) (*model.SubmissionRecord, error) {
	ctx = context.WithoutCancel(ctx)

	if submitErr == nil {
		record.Status = model.SubmissionAccepted
		record.HMRCReference = outcome.Reference
		if err := p.store.FinalizeSubmission(ctx, record.ID, model.SubmissionAccepted, outcome.Reference, "", ""); err != nil {
			return nil, err
		}
		notify(StateAccepted)
		return record, nil
	}

	code, message := rejectionDetails(submitErr)
	record.Status = model.SubmissionRejected
	record.ErrorCode = code
	record.ErrorMessage = message
	if err := p.store.FinalizeSubmission(ctx, record.ID, model.SubmissionRejected, "", code, message); err != nil {
		return nil, err
	}
	notify(StateRejected)
	return record, nil
}

func buildUpdate(business *model.Business, data *quarterly.ReviewData, decl *Declaration) *hmrc.Update {
	update := &hmrc.Update{
		NINO:            model.NormalizeNINO(business.NINO),
		BusinessID:      business.ID,
		TaxYear:         data.TaxYear,
		Quarter:         data.Quarter,
		PeriodStart:     data.PeriodStart,
		PeriodEnd:       data.PeriodEnd,
		IncomePence:     data.TotalIncomePence,
		DeclarationID:   decl.ID(),
		DeclarationTime: decl.CompletedAt(),
	}
	for category, total := range data.ExpensesByCategory {
		update.Expenses = append(update.Expenses, hmrc.CategoryAmount{
			Category:    category,
			AmountPence: total.TotalPence,
			Count:       total.Count,
		})
	}
	update.SortExpenses()
	return update
}

func isAuthExpired(err error) bool {
	var clientErr *hmrc.ClientError
	return errors.As(err, &clientErr) && clientErr.Code == hmrc.ErrAuthExpired
}

func rejectionDetails(err error) (code, message string) {
	var clientErr *hmrc.ClientError
	if errors.As(err, &clientErr) {
		code = string(clientErr.Code)
		if clientErr.RemoteCode != "" {
			code = clientErr.RemoteCode
		}
		return code, clientErr.Message
	}
	return "SUBMISSION_FAILED", err.Error()
}
