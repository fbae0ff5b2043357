package sugar

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testCredentials = Credentials{
	"username":      "admin",
	"password":      "password",
	"client_id":     "sugar_client_test",
	"client_secret": "sdk_test_secret",
	"platform":      "api",
}

func testToken() *Token {
	return &Token{
		AccessToken:      "1234",
		RefreshToken:     "5678",
		ExpiresIn:        3600,
		TokenType:        "bearer",
		RefreshExpiresIn: 1209600,
		DownloadToken:    "101010",
	}
}

func tokenJSON(access, refresh string, expiresIn int) string {
	return fmt.Sprintf(`{"access_token":%q,"refresh_token":%q,"expires_in":%d,"token_type":"bearer","refresh_expires_in":1209600}`,
		access, refresh, expiresIn)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSugar is an httptest server that records requests per path.
type fakeSugar struct {
	*httptest.Server

	mu     sync.Mutex
	hits   map[string]int
	bodies map[string][]map[string]string
	tokens map[string]string // path -> OAuth-Token header of last request
}

// newFakeSugar starts a server routing /rest/v10/<path> to handlers.
// Unrouted paths answer 404.
func newFakeSugar(t *testing.T, handlers map[string]http.HandlerFunc) *fakeSugar {
	t.Helper()

	f := &fakeSugar{
		hits:   make(map[string]int),
		bodies: make(map[string][]map[string]string),
		tokens: make(map[string]string),
	}

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path[len("/rest/v10/"):]

		var body map[string]string
		if r.Body != nil && r.ContentLength != 0 {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}

		f.mu.Lock()
		f.hits[path]++
		f.bodies[path] = append(f.bodies[path], body)
		f.tokens[path] = r.Header.Get("OAuth-Token")
		f.mu.Unlock()

		h, ok := handlers[path]
		if !ok {
			http.NotFound(w, r)
			return
		}

		h(w, r)
	}))
	t.Cleanup(f.Close)

	return f
}

func (f *fakeSugar) Hits(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeSugar) LastBody(path string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	bodies := f.bodies[path]
	if len(bodies) == 0 {
		return nil
	}
	return bodies[len(bodies)-1]
}

func (f *fakeSugar) LastToken(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[path]
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

// newTestClient creates a client pointed at the fake server.
func newTestClient(t *testing.T, srv *fakeSugar, creds Credentials, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithHTTPClient(srv.Client())}, opts...)
	c := New(srv.URL, creds, opts...)
	require.NotNil(t, c)
	return c
}

// failingStore is a TokenStore whose operations fail on demand.
type failingStore struct {
	mu          sync.Mutex
	retrieveErr error
	persistErr  error
	token       *Token
	persisted   int
}

func (s *failingStore) Retrieve(string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retrieveErr != nil {
		return nil, s.retrieveErr
	}
	return s.token.clone(), nil
}

func (s *failingStore) Persist(*Token, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted++
	return s.persistErr
}

var errDiskFull = errors.New("disk full")
