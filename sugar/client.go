// Package sugar is a client for the Sugar REST API. It owns the OAuth2
// token lifecycle (login, refresh, logout, persistence) and stamps the
// current access token onto endpoints resolved from its registry.
package sugar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alexjbarnes/sugarapi/endpoint"
	"golang.org/x/sync/singleflight"
)

// Client is the authentication and dispatch layer of the SDK. It is safe
// for concurrent use. Login, RefreshToken and Logout each perform at most
// one request and are serialized per client.
type Client struct {
	mu          sync.RWMutex
	server      string
	apiURL      string
	credentials Credentials
	token       *Token
	expiration  time.Time

	// flowMu serializes the request/SetToken/Persist sequence of
	// authentication flows.
	flowMu  sync.Mutex
	refresh singleflight.Group

	registry *endpoint.Registry
	store    TokenStore
	logger   *slog.Logger
	now      func() time.Time
}

type options struct {
	store         TokenStore
	httpClient    *http.Client
	logger        *slog.Logger
	defaultServer string
	defaultCreds  Credentials
	catalog       []endpoint.Definition
	endpoints     map[string]endpoint.Factory
	now           func() time.Time
}

// Option configures a Client.
type Option func(*options)

// WithTokenStore sets where tokens are persisted. Defaults to a fresh
// MemoryStore owned by the client.
func WithTokenStore(s TokenStore) Option {
	return func(o *options) { o.store = s }
}

// WithHTTPClient sets the HTTP client used by catalog endpoints.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets the logger. Defaults to discarding output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDefaults sets the server and credentials used when New is called
// with empty values.
func WithDefaults(server string, creds Credentials) Option {
	return func(o *options) {
		o.defaultServer = server
		o.defaultCreds = creds
	}
}

// WithCatalog replaces the built-in endpoint catalog.
func WithCatalog(defs []endpoint.Definition) Option {
	return func(o *options) { o.catalog = defs }
}

// WithEndpoints registers extra factories after the catalog. Entries
// override catalog entries of the same name.
func WithEndpoints(fs map[string]endpoint.Factory) Option {
	return func(o *options) { o.endpoints = fs }
}

// WithClock overrides the time source used for token expiration.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a client for server using creds. Empty arguments fall back
// to WithDefaults. Server and credentials are resolved first, then the
// registry is populated, then a stored token for the client_id (if any)
// is installed.
func New(server string, creds Credentials, opts ...Option) *Client {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if server == "" {
		server = o.defaultServer
	}

	if len(creds) == 0 {
		creds = o.defaultCreds
	}

	if o.store == nil {
		o.store = NewMemoryStore()
	}

	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		registry: endpoint.NewRegistry(),
		store:    o.store,
		logger:   o.logger,
		now:      o.now,
	}

	c.SetServer(server)
	c.registerEndpoints(o)
	c.SetCredentials(creds)

	return c
}

func (c *Client) registerEndpoints(o options) {
	defs := o.catalog
	if defs == nil {
		var err error

		defs, err = endpoint.DefaultCatalog()
		if err != nil {
			c.logger.Error("built-in endpoint catalog unavailable", slog.String("error", err.Error()))
		}
	}

	if err := c.registry.RegisterAll(endpoint.Factories(defs, o.httpClient)); err != nil {
		c.logger.Error("registering catalog endpoints", slog.String("error", err.Error()))
	}

	if err := c.registry.RegisterAll(o.endpoints); err != nil {
		c.logger.Error("registering custom endpoints", slog.String("error", err.Error()))
	}
}

// SetServer stores the server address and recomputes the API URL.
func (c *Client) SetServer(server string) {
	c.mu.Lock()
	c.server = server
	c.apiURL = APIURL(server)
	c.mu.Unlock()
}

// Server returns the configured server address.
func (c *Client) Server() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.server
}

// APIURL returns the REST base URL derived from the server.
func (c *Client) APIURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.apiURL
}

// SetCredentials replaces the credentials. When they carry a client_id
// with a stored token, that token is installed, which may change the
// authentication state.
func (c *Client) SetCredentials(creds Credentials) {
	creds = creds.clone()

	c.mu.Lock()
	c.credentials = creds
	c.mu.Unlock()

	clientID, ok := creds[KeyClientID]
	if !ok {
		return
	}

	c.hydrate(clientID)
}

func (c *Client) hydrate(clientID string) {
	logger := c.logger.With(slog.String("client_id", clientID))

	tok, err := c.store.Retrieve(clientID)
	if err != nil {
		logger.Warn("reading stored token", slog.String("error", err.Error()))
		return
	}

	if tok == nil {
		return
	}

	if err := c.SetToken(tok); err != nil {
		logger.Warn("ignoring stored token", slog.String("error", err.Error()))
		return
	}

	logger.Debug("restored stored token", slog.Time("expires", c.Expiration()))
}

// Credentials returns a copy of the current credentials.
func (c *Client) Credentials() Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.credentials.clone()
}

// SetToken installs t and sets the expiration to now + t.ExpiresIn. An
// invalid token is rejected with *InvalidTokenError and the previous
// token stays in place.
func (c *Client) SetToken(t *Token) error {
	if err := t.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	c.token = t.clone()
	c.expiration = c.now().Add(time.Duration(t.ExpiresIn) * time.Second)
	c.mu.Unlock()

	return nil
}

// Token returns a copy of the current token, or nil.
func (c *Client) Token() *Token {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.token.clone()
}

// Expiration returns the absolute expiry of the current token. The zero
// time means no token is set.
func (c *Client) Expiration() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.expiration
}

// Authenticated reports whether a token is set and has not expired.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.authenticatedLocked()
}

func (c *Client) authenticatedLocked() bool {
	return c.token != nil && c.now().Before(c.expiration)
}

func (c *Client) clearToken() {
	c.mu.Lock()
	c.token = nil
	c.expiration = time.Time{}
	c.mu.Unlock()
}

// RegisterEndpoint installs or replaces the factory for name.
func (c *Client) RegisterEndpoint(name string, f endpoint.Factory) error {
	return c.registry.Register(name, f)
}

// Endpoints returns the registered endpoint names in sorted order.
func (c *Client) Endpoints() []string {
	return c.registry.Names()
}

// Dispatch resolves a fresh endpoint for name. When the endpoint requires
// auth and the client is authenticated, it is stamped with the access
// token. An unauthenticated client returns the endpoint unstamped and
// leaves the rejection to the server.
func (c *Client) Dispatch(name string, args ...string) (endpoint.Endpoint, error) {
	c.mu.RLock()
	apiURL := c.apiURL
	c.mu.RUnlock()

	ep, err := c.registry.Resolve(name, apiURL, args...)
	if err != nil {
		return nil, err
	}

	if !ep.AuthRequired() {
		return ep, nil
	}

	c.mu.RLock()
	if c.authenticatedLocked() {
		ep.SetAuth(c.token.AccessToken)
	}
	c.mu.RUnlock()

	return ep, nil
}

// Login requests a token with the full credential set. It returns false
// without a request when no credentials are set. A non-200 response
// returns *AuthenticationError.
func (c *Client) Login(ctx context.Context) (bool, error) {
	c.flowMu.Lock()
	defer c.flowMu.Unlock()

	creds := c.Credentials()
	if len(creds) == 0 {
		return false, nil
	}

	payload := make(map[string]string, len(creds))
	for k, v := range creds {
		payload[k] = v
	}

	resp, err := c.execute(ctx, endpoint.TokenName, payload)
	if err != nil {
		return false, fmt.Errorf("logging in: %w", err)
	}

	if !resp.OK() {
		return false, newAuthenticationError("Login", resp)
	}

	if err := c.install(resp, creds.ClientID()); err != nil {
		return false, fmt.Errorf("logging in: %w", err)
	}

	c.logger.Info("logged in",
		slog.String("client_id", creds.ClientID()),
		slog.Time("expires", c.Expiration()),
	)

	return true, nil
}

// RefreshToken exchanges the refresh token for a new token. It returns
// false without a request unless client_id, client_secret and a token
// are all present. Concurrent calls share a single request, which is not
// cancelled when one caller gives up; each caller stops waiting when its
// own ctx is done.
func (c *Client) RefreshToken(ctx context.Context) (bool, error) {
	shared := context.WithoutCancel(ctx)

	ch := c.refresh.DoChan("refresh", func() (any, error) {
		ok, err := c.refreshToken(shared)
		return ok, err
	})

	select {
	case <-ctx.Done():
		return false, fmt.Errorf("refreshing token: %w", ctx.Err())
	case res := <-ch:
		ok, _ := res.Val.(bool)
		return ok, res.Err
	}
}

func (c *Client) refreshToken(ctx context.Context) (bool, error) {
	c.flowMu.Lock()
	defer c.flowMu.Unlock()

	c.mu.RLock()
	clientID := c.credentials.ClientID()
	secret := c.credentials.ClientSecret()
	tok := c.token.clone()
	c.mu.RUnlock()

	if clientID == "" || secret == "" || tok == nil {
		return false, nil
	}

	payload := map[string]string{
		KeyClientID:     clientID,
		KeyClientSecret: secret,
		KeyRefreshToken: tok.RefreshToken,
	}

	resp, err := c.execute(ctx, endpoint.RefreshName, payload)
	if err != nil {
		return false, fmt.Errorf("refreshing token: %w", err)
	}

	if !resp.OK() {
		return false, newAuthenticationError("Refresh", resp)
	}

	if err := c.install(resp, clientID); err != nil {
		return false, fmt.Errorf("refreshing token: %w", err)
	}

	c.logger.Info("token refreshed",
		slog.String("client_id", clientID),
		slog.Time("expires", c.Expiration()),
	)

	return true, nil
}

// Logout revokes the current token. It returns false without a request
// when the client is not authenticated. On success the local token is
// cleared; credentials and the stored token are kept.
func (c *Client) Logout(ctx context.Context) (bool, error) {
	c.flowMu.Lock()
	defer c.flowMu.Unlock()

	if !c.Authenticated() {
		return false, nil
	}

	resp, err := c.execute(ctx, endpoint.LogoutName, nil)
	if err != nil {
		return false, fmt.Errorf("logging out: %w", err)
	}

	if !resp.OK() {
		return false, newAuthenticationError("Logout", resp)
	}

	c.clearToken()
	c.logger.Info("logged out", slog.String("client_id", c.Credentials().ClientID()))

	return true, nil
}

func (c *Client) execute(ctx context.Context, name string, payload any) (*endpoint.Response, error) {
	ep, err := c.Dispatch(name)
	if err != nil {
		return nil, err
	}

	resp, err := ep.Execute(ctx, payload)
	if err != nil {
		return nil, err
	}

	if resp == nil {
		return nil, fmt.Errorf("%s: endpoint returned no response", name)
	}

	return resp, nil
}

// install parses a token response, installs it and persists it under
// clientID. A persistence failure is logged; the token stays installed.
func (c *Client) install(resp *endpoint.Response, clientID string) error {
	tok, err := ParseToken(resp.Body)
	if err != nil {
		return err
	}

	if err := c.SetToken(tok); err != nil {
		return err
	}

	if clientID == "" {
		return nil
	}

	if err := c.store.Persist(tok, clientID); err != nil {
		c.logger.Warn("failed to save token",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}
