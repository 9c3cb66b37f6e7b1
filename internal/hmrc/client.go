package hmrc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"golang.org/x/oauth2"
)

// defaultRequestTimeout bounds one submission HTTP round trip.
const defaultRequestTimeout = 30 * time.Second

// CategoryAmount is one expense category total in an update.
type CategoryAmount struct {
	Category    string `json:"category"`
	AmountPence int64  `json:"amountPence"`
	Count       int    `json:"transactionCount"`
}

// Update is the payload for a quarterly update or the annual final
// declaration (Quarter 0).
type Update struct {
	NINO        string    `json:"nino"`
	BusinessID  string    `json:"businessId"`
	TaxYear     string    `json:"taxYear"`
	Quarter     int       `json:"quarter"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`

	IncomePence int64            `json:"incomePence"`
	Expenses    []CategoryAmount `json:"expenses"`

	DeclarationID   string    `json:"declarationId"`
	DeclarationTime time.Time `json:"declarationTimestamp"`
}

// SortExpenses orders the category totals so a payload serializes
// deterministically.
func (u *Update) SortExpenses() {
	sort.Slice(u.Expenses, func(i, j int) bool { return u.Expenses[i].Category < u.Expenses[j].Category })
}

// Outcome is a successful submission acknowledgment.
type Outcome struct {
	Reference  string    `json:"reference"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Client is the HMRC submission contract the pipeline depends on.
type Client interface {
	SubmitQuarterly(ctx context.Context, update *Update) (*Outcome, error)
	SubmitAnnual(ctx context.Context, update *Update) (*Outcome, error)
}

// HTTPClient submits updates over HTTPS with a bearer token from the OAuth
// token source. Transient gateway failures are retried with backoff; a 401
// is surfaced immediately as AUTH_EXPIRED so the pipeline can re-authenticate.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	retryCfg   RetryConfig
}

// NewHTTPClient creates a client against baseURL using tokens for bearer
// auth.
func NewHTTPClient(baseURL string, tokens oauth2.TokenSource) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		tokens:     tokens,
		retryCfg:   DefaultSubmitRetryConfig,
	}
}

func (c *HTTPClient) SubmitQuarterly(ctx context.Context, update *Update) (*Outcome, error) {
	path := fmt.Sprintf("/self-employment/%s/quarterly-updates", update.NINO)
	return c.submit(ctx, path, update)
}

func (c *HTTPClient) SubmitAnnual(ctx context.Context, update *Update) (*Outcome, error) {
	path := fmt.Sprintf("/self-employment/%s/final-declaration", update.NINO)
	return c.submit(ctx, path, update)
}

func (c *HTTPClient) submit(ctx context.Context, path string, update *Update) (*Outcome, error) {
	update.SortExpenses()
	body, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("encode update: %w", err)
	}

	return WithRetry(ctx, c.retryCfg, func(ctx context.Context) (*Outcome, error) {
		return c.doSubmit(ctx, path, body)
	})
}

func (c *HTTPClient) doSubmit(ctx context.Context, path string, body []byte) (*Outcome, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, &ClientError{Code: ErrAuthExpired, Message: "no valid access token", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	token.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &ClientError{Code: ErrTimeout, Message: "submission request timed out", Retryable: true, Cause: err}
		}
		return nil, &ClientError{Code: ErrUnavailable, Message: "submission request failed", Retryable: true, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ClientError{Code: ErrUnavailable, Message: "read response", Retryable: true, Cause: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var outcome Outcome
		if err := json.Unmarshal(data, &outcome); err != nil {
			return nil, &ClientError{Code: ErrUnavailable, Message: "decode response", Cause: err}
		}
		if outcome.ReceivedAt.IsZero() {
			outcome.ReceivedAt = time.Now().UTC()
		}
		return &outcome, nil

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &ClientError{Code: ErrAuthExpired, Message: "authorization expired"}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		remote := decodeRemoteError(data)
		return nil, &ClientError{
			Code:       ErrRemoteRejected,
			Message:    remote.Message,
			RemoteCode: remote.Code,
		}

	default:
		return nil, &ClientError{
			Code:      ErrUnavailable,
			Message:   fmt.Sprintf("unexpected status %d", resp.StatusCode),
			Retryable: true,
		}
	}
}

type remoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeRemoteError(data []byte) remoteError {
	var re remoteError
	if err := json.Unmarshal(data, &re); err != nil || re.Code == "" {
		return remoteError{Code: "REJECTED", Message: string(data)}
	}
	return re
}
