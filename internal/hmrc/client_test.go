package hmrc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func staticTokens() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: "test-token",
		Expiry:      time.Now().Add(time.Hour),
	})
}

func testUpdate() *Update {
	return &Update{
		NINO:        "AB123456C",
		BusinessID:  "biz-1",
		TaxYear:     "2025-26",
		Quarter:     1,
		IncomePence: 200000,
		Expenses: []CategoryAmount{
			{Category: "Car, van and travel expenses", AmountPence: 7520, Count: 2},
		},
		DeclarationID:   "decl-hash",
		DeclarationTime: time.Now().UTC(),
	}
}

func fastClient(baseURL string, tokens oauth2.TokenSource) *HTTPClient {
	c := NewHTTPClient(baseURL, tokens)
	c.retryCfg = RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2.0}
	return c
}

func TestSubmitQuarterlyAccepted(t *testing.T) {
	var gotAuth string
	var gotUpdate Update
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotUpdate))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Outcome{Reference: "XAIT000111222"})
	}))
	defer server.Close()

	outcome, err := fastClient(server.URL, staticTokens()).SubmitQuarterly(context.Background(), testUpdate())
	require.NoError(t, err)
	assert.Equal(t, "XAIT000111222", outcome.Reference)
	assert.False(t, outcome.ReceivedAt.IsZero())
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "AB123456C", gotUpdate.NINO)
	assert.Equal(t, int64(200000), gotUpdate.IncomePence)
}

func TestSubmitUnauthorizedIsAuthExpired(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := fastClient(server.URL, staticTokens()).SubmitQuarterly(context.Background(), testUpdate())
	var clientErr *ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, ErrAuthExpired, clientErr.Code)
	assert.False(t, clientErr.Retryable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "401 must not be retried by the transport")
}

func TestSubmitRejectionCarriesRemoteCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "RULE_INCORRECT_GOV_TEST_SCENARIO",
			"message": "invalid period",
		})
	}))
	defer server.Close()

	_, err := fastClient(server.URL, staticTokens()).SubmitQuarterly(context.Background(), testUpdate())
	var clientErr *ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, ErrRemoteRejected, clientErr.Code)
	assert.Equal(t, "RULE_INCORRECT_GOV_TEST_SCENARIO", clientErr.RemoteCode)
	assert.False(t, clientErr.Retryable)
}

func TestSubmitRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Outcome{Reference: "REF-1"})
	}))
	defer server.Close()

	outcome, err := fastClient(server.URL, staticTokens()).SubmitAnnual(context.Background(), testUpdate())
	require.NoError(t, err)
	assert.Equal(t, "REF-1", outcome.Reference)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSubmitNoTokenIsAuthExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the server without a token")
	}))
	defer server.Close()

	connector := NewConnector(&oauth2.Config{}, BrowserOpenerFunc(func(string) error { return nil }))
	_, err := fastClient(server.URL, connector.Tokens()).SubmitQuarterly(context.Background(), testUpdate())
	var clientErr *ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, ErrAuthExpired, clientErr.Code)
}

func TestUpdateSortExpensesDeterministic(t *testing.T) {
	update := &Update{Expenses: []CategoryAmount{
		{Category: "b"}, {Category: "a"}, {Category: "c"},
	}}
	update.SortExpenses()
	assert.Equal(t, "a", update.Expenses[0].Category)
	assert.Equal(t, "b", update.Expenses[1].Category)
	assert.Equal(t, "c", update.Expenses[2].Category)
}
