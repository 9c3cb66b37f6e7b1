package hmrc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultAuthTimeout bounds how long a connection attempt waits for the user
// to complete authorization in the browser.
const DefaultAuthTimeout = 120 * time.Second

// ConnectionStatus tracks the phases of the authorization-code flow.
type ConnectionStatus string

const (
	StatusConnecting      ConnectionStatus = "CONNECTING"
	StatusAwaitingUser    ConnectionStatus = "AWAITING_USER"
	StatusExchangingToken ConnectionStatus = "EXCHANGING_TOKEN"
	StatusSuccess         ConnectionStatus = "SUCCESS"
	StatusFailure         ConnectionStatus = "FAILURE"
)

// ConnectionUpdate is one status transition emitted during a connection
// attempt.
type ConnectionUpdate struct {
	Status  ConnectionStatus
	Message string
}

// BrowserOpener launches the system browser at the authorization URL.
type BrowserOpener interface {
	Open(url string) error
}

// BrowserOpenerFunc adapts a function to the BrowserOpener interface.
type BrowserOpenerFunc func(url string) error

func (f BrowserOpenerFunc) Open(url string) error { return f(url) }

type pendingAuth struct {
	state    string
	authURL  string
	codeCh   chan authResult
	cancelCh chan struct{}
}

type authResult struct {
	code string
	err  error
}

// Connector runs the OAuth authorization-code flow against HMRC and holds the
// resulting token for the submission client. One connection attempt may be in
// flight at a time.
type Connector struct {
	config  *oauth2.Config
	browser BrowserOpener
	timeout time.Duration

	mu      sync.Mutex
	pending *pendingAuth
	token   *oauth2.Token
}

// NewConnector creates a connector for the given OAuth configuration.
func NewConnector(config *oauth2.Config, browser BrowserOpener) *Connector {
	return &Connector{
		config:  config,
		browser: browser,
		timeout: DefaultAuthTimeout,
	}
}

// SetTimeout overrides the bounded wait for user authorization.
func (c *Connector) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

// Authenticated reports whether a usable token is held.
func (c *Connector) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != nil && c.token.Valid()
}

// TokenSource returns a source that refreshes the held token as needed.
// Returns an AUTH_EXPIRED error when no connection has been established.
func (c *Connector) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return nil, &ClientError{Code: ErrAuthExpired, Message: "not connected to HMRC"}
	}
	return c.config.TokenSource(ctx, c.token), nil
}

// Tokens returns an oauth2.TokenSource backed by the connector's current
// token. It picks up new tokens after re-authentication, and fails with
// AUTH_EXPIRED while no connection is established.
func (c *Connector) Tokens() oauth2.TokenSource {
	return connectorTokens{c}
}

type connectorTokens struct{ c *Connector }

func (t connectorTokens) Token() (*oauth2.Token, error) {
	source, err := t.c.TokenSource(context.Background())
	if err != nil {
		return nil, err
	}
	token, err := source.Token()
	if err != nil {
		return nil, &ClientError{Code: ErrAuthExpired, Message: "token refresh failed", Cause: err}
	}
	t.c.SetToken(token)
	return token, nil
}

// SetToken installs a previously persisted token.
func (c *Connector) SetToken(token *oauth2.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the currently held token, or nil.
func (c *Connector) Token() *oauth2.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// StartConnection runs the full authorization-code flow: opens the browser at
// the consent page, waits (bounded) for CompleteAuthorization to deliver the
// code, then exchanges it for a token. Status transitions are reported
// through onUpdate, which may be nil.
func (c *Connector) StartConnection(ctx context.Context, onUpdate func(ConnectionUpdate)) error {
	notify := func(status ConnectionStatus, message string) {
		log.Printf("[Connect] %s %s", status, message)
		if onUpdate != nil {
			onUpdate(ConnectionUpdate{Status: status, Message: message})
		}
	}

	c.mu.Lock()
	if c.pending != nil {
		c.mu.Unlock()
		return fmt.Errorf("connection attempt already in progress")
	}
	state, err := randomState()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("generate state: %w", err)
	}
	pending := &pendingAuth{
		state:    state,
		authURL:  c.config.AuthCodeURL(state, oauth2.AccessTypeOffline),
		codeCh:   make(chan authResult, 1),
		cancelCh: make(chan struct{}),
	}
	c.pending = pending
	timeout := c.timeout
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.pending == pending {
			c.pending = nil
		}
		c.mu.Unlock()
	}()

	notify(StatusConnecting, "starting authorization")
	if err := c.browser.Open(pending.authURL); err != nil {
		notify(StatusFailure, "could not open browser")
		return fmt.Errorf("open browser: %w", err)
	}
	notify(StatusAwaitingUser, "waiting for authorization in browser")

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result authResult
	select {
	case result = <-pending.codeCh:
	case <-pending.cancelCh:
		notify(StatusFailure, "connection cancelled")
		return fmt.Errorf("connection cancelled")
	case <-timer.C:
		notify(StatusFailure, "timed out waiting for authorization")
		return &ClientError{Code: ErrTimeout, Message: "authorization timed out"}
	case <-ctx.Done():
		notify(StatusFailure, "connection aborted")
		return ctx.Err()
	}
	if result.err != nil {
		notify(StatusFailure, result.err.Error())
		return result.err
	}

	notify(StatusExchangingToken, "exchanging authorization code")
	token, err := c.config.Exchange(ctx, result.code)
	if err != nil {
		notify(StatusFailure, "token exchange failed")
		return &ClientError{Code: ErrAuthExpired, Message: "token exchange failed", Cause: err}
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	notify(StatusSuccess, "connected to HMRC")
	return nil
}

// CompleteAuthorization delivers the authorization code from the redirect
// handler. The state must match the value issued for the in-flight attempt.
func (c *Connector) CompleteAuthorization(code, state string) error {
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()

	if pending == nil {
		return fmt.Errorf("no connection attempt in progress")
	}
	if state != pending.state {
		err := fmt.Errorf("state mismatch")
		select {
		case pending.codeCh <- authResult{err: err}:
		default:
		}
		return err
	}
	select {
	case pending.codeCh <- authResult{code: code}:
		return nil
	default:
		return fmt.Errorf("authorization already delivered")
	}
}

// ReopenBrowser relaunches the consent page for the in-flight attempt.
func (c *Connector) ReopenBrowser() error {
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending == nil {
		return fmt.Errorf("no connection attempt in progress")
	}
	return c.browser.Open(pending.authURL)
}

// Cancel aborts the in-flight connection attempt, if any.
func (c *Connector) Cancel() {
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending == nil {
		return
	}
	select {
	case <-pending.cancelCh:
	default:
		close(pending.cancelCh)
	}
}

func randomState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
