package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mtdbooks/core/internal/model"
)

// MemoryStore implements Store with in-memory storage. Used for tests and
// local development.
type MemoryStore struct {
	mu sync.RWMutex

	businesses    map[string]*model.Business
	incomes       map[string]*model.Income
	expenses      map[string]*model.Expense
	importBatches map[string]*model.ImportBatch
	submissions   map[string]*model.SubmissionRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses:    make(map[string]*model.Business),
		incomes:       make(map[string]*model.Income),
		expenses:      make(map[string]*model.Expense),
		importBatches: make(map[string]*model.ImportBatch),
		submissions:   make(map[string]*model.SubmissionRecord),
	}
}

// paginateIDs applies cursor-based pagination to a sorted slice of IDs.
// Returns the paginated IDs and the next page token (empty if no more pages).
func paginateIDs(ids []string, pageSize int32, pageToken string) ([]string, string) {
	if pageSize <= 0 {
		pageSize = 100
	}
	sort.Strings(ids)

	startIdx := 0
	if pageToken != "" {
		cursorID, err := DecodePageToken(pageToken)
		if err == nil {
			for i, id := range ids {
				if id > cursorID {
					startIdx = i
					break
				}
				if i == len(ids)-1 {
					startIdx = len(ids)
				}
			}
		}
	}

	endIdx := startIdx + int(pageSize)
	if endIdx > len(ids) {
		endIdx = len(ids)
	}
	page := ids[startIdx:endIdx]

	nextToken := ""
	if endIdx < len(ids) && len(page) > 0 {
		nextToken = EncodePageToken(page[len(page)-1])
	}
	return page, nextToken
}

func inRange(date time.Time, start, end *time.Time) bool {
	if start != nil && date.Before(*start) {
		return false
	}
	if end != nil && date.After(*end) {
		return false
	}
	return true
}

// ----------------------------------------------------------------------------
// Business operations
// ----------------------------------------------------------------------------

func (m *MemoryStore) SaveBusiness(_ context.Context, business *model.Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := *business
	m.businesses[business.ID] = &b
	return nil
}

func (m *MemoryStore) GetBusiness(_ context.Context, businessID string) (*model.Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.businesses[businessID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *b
	return &out, nil
}

// ----------------------------------------------------------------------------
// Income operations
// ----------------------------------------------------------------------------

func (m *MemoryStore) CreateIncome(_ context.Context, income *model.Income) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := *income
	m.incomes[income.ID] = &rec
	return nil
}

func (m *MemoryStore) GetIncome(_ context.Context, incomeID string) (*model.Income, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.incomes[incomeID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (m *MemoryStore) UpdateIncome(_ context.Context, income *model.Income) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.incomes[income.ID]; !ok {
		return ErrNotFound
	}
	rec := *income
	m.incomes[income.ID] = &rec
	return nil
}

func (m *MemoryStore) DeleteIncome(_ context.Context, incomeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.incomes[incomeID]; !ok {
		return ErrNotFound
	}
	delete(m.incomes, incomeID)
	return nil
}

func (m *MemoryStore) ListIncomes(_ context.Context, businessID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Income, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, rec := range m.incomes {
		if rec.BusinessID == businessID && inRange(rec.Date, startDate, endDate) {
			ids = append(ids, id)
		}
	}
	page, nextToken := paginateIDs(ids, pageSize, pageToken)

	out := make([]*model.Income, 0, len(page))
	for _, id := range page {
		rec := *m.incomes[id]
		out = append(out, &rec)
	}
	return out, nextToken, nil
}

// ----------------------------------------------------------------------------
// Expense operations
// ----------------------------------------------------------------------------

func (m *MemoryStore) CreateExpense(_ context.Context, expense *model.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := *expense
	m.expenses[expense.ID] = &rec
	return nil
}

func (m *MemoryStore) GetExpense(_ context.Context, expenseID string) (*model.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.expenses[expenseID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (m *MemoryStore) UpdateExpense(_ context.Context, expense *model.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.expenses[expense.ID]; !ok {
		return ErrNotFound
	}
	rec := *expense
	m.expenses[expense.ID] = &rec
	return nil
}

func (m *MemoryStore) DeleteExpense(_ context.Context, expenseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.expenses[expenseID]; !ok {
		return ErrNotFound
	}
	delete(m.expenses, expenseID)
	return nil
}

func (m *MemoryStore) ListExpenses(_ context.Context, businessID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Expense, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, rec := range m.expenses {
		if rec.BusinessID == businessID && inRange(rec.Date, startDate, endDate) {
			ids = append(ids, id)
		}
	}
	page, nextToken := paginateIDs(ids, pageSize, pageToken)

	out := make([]*model.Expense, 0, len(page))
	for _, id := range page {
		rec := *m.expenses[id]
		out = append(out, &rec)
	}
	return out, nextToken, nil
}

// ----------------------------------------------------------------------------
// Window lookup and counts
// ----------------------------------------------------------------------------

func (m *MemoryStore) ListTransactionsNear(_ context.Context, businessID string, date time.Time, window time.Duration) ([]*model.TransactionRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := date.Add(-window)
	end := date.Add(window)

	var refs []*model.TransactionRef
	for _, rec := range m.incomes {
		if rec.BusinessID == businessID && !rec.Date.Before(start) && !rec.Date.After(end) {
			refs = append(refs, &model.TransactionRef{
				ID:          rec.ID,
				Type:        model.TransactionIncome,
				Date:        rec.Date,
				AmountPence: rec.AmountPence,
				Description: rec.Description,
			})
		}
	}
	for _, rec := range m.expenses {
		if rec.BusinessID == businessID && !rec.Date.Before(start) && !rec.Date.After(end) {
			refs = append(refs, &model.TransactionRef{
				ID:          rec.ID,
				Type:        model.TransactionExpense,
				Date:        rec.Date,
				AmountPence: rec.AmountPence,
				Description: rec.Description,
			})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

func (m *MemoryStore) Counts(_ context.Context, businessID string) (int64, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var incomes, expenses int64
	for _, rec := range m.incomes {
		if rec.BusinessID == businessID {
			incomes++
		}
	}
	for _, rec := range m.expenses {
		if rec.BusinessID == businessID {
			expenses++
		}
	}
	return incomes, expenses, nil
}

// ----------------------------------------------------------------------------
// Import batch operations
// ----------------------------------------------------------------------------

func (m *MemoryStore) CreateImportBatch(_ context.Context, batch *model.ImportBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := *batch
	rec.IncomeIDs = append([]string(nil), batch.IncomeIDs...)
	rec.ExpenseIDs = append([]string(nil), batch.ExpenseIDs...)
	m.importBatches[batch.ID] = &rec
	return nil
}

func (m *MemoryStore) GetImportBatch(_ context.Context, batchID string) (*model.ImportBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.importBatches[batchID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	out.IncomeIDs = append([]string(nil), rec.IncomeIDs...)
	out.ExpenseIDs = append([]string(nil), rec.ExpenseIDs...)
	return &out, nil
}

func (m *MemoryStore) SetImportBatchStatus(_ context.Context, batchID string, status model.ImportBatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.importBatches[batchID]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	return nil
}

func (m *MemoryStore) ListImportBatches(_ context.Context, businessID string) ([]*model.ImportBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.ImportBatch
	for _, rec := range m.importBatches {
		if rec.BusinessID == businessID {
			b := *rec
			b.IncomeIDs = append([]string(nil), rec.IncomeIDs...)
			b.ExpenseIDs = append([]string(nil), rec.ExpenseIDs...)
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ----------------------------------------------------------------------------
// Submission operations
// ----------------------------------------------------------------------------

func (m *MemoryStore) CreateSubmission(_ context.Context, record *model.SubmissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := *record
	m.submissions[record.ID] = &rec
	return nil
}

func (m *MemoryStore) FinalizeSubmission(_ context.Context, submissionID string, status model.SubmissionStatus, hmrcReference, errorCode, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.submissions[submissionID]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != model.SubmissionPending {
		return ErrAlreadyFinalized
	}
	rec.Status = status
	rec.HMRCReference = hmrcReference
	rec.ErrorCode = errorCode
	rec.ErrorMessage = errorMessage
	return nil
}

func (m *MemoryStore) GetSubmission(_ context.Context, submissionID string) (*model.SubmissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.submissions[submissionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (m *MemoryStore) ListSubmissions(_ context.Context, businessID, taxYear string) ([]*model.SubmissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.SubmissionRecord
	for _, rec := range m.submissions {
		if rec.BusinessID == businessID && (taxYear == "" || rec.TaxYear == taxYear) {
			r := *rec
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

// FindAcceptedSubmission returns the most recent ACCEPTED submission for the
// period, or (nil, nil) if none exists.
func (m *MemoryStore) FindAcceptedSubmission(_ context.Context, businessID, taxYear string, quarter int) (*model.SubmissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *model.SubmissionRecord
	for _, rec := range m.submissions {
		if rec.BusinessID != businessID || rec.TaxYear != taxYear || rec.Quarter != quarter {
			continue
		}
		if rec.Status != model.SubmissionAccepted {
			continue
		}
		if found == nil || rec.SubmittedAt.After(found.SubmittedAt) {
			found = rec
		}
	}
	if found == nil {
		return nil, nil
	}
	out := *found
	return &out, nil
}
