package e2e_test

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alexjbarnes/sugarapi/state"
	"github.com/alexjbarnes/sugarapi/sugar"
	"github.com/stretchr/testify/require"
)

const (
	testUsername = "admin"
	testPassword = "asdf"
	testClientID = "e2e-test-client"
	testSecret   = "e2e-test-secret-value"
	testPlatform = "e2e"
)

func testCredentials() sugar.Credentials {
	return sugar.Credentials{
		"username":      testUsername,
		"password":      testPassword,
		"client_id":     testClientID,
		"client_secret": testSecret,
		"platform":      testPlatform,
	}
}

// harness holds the e2e stack: a fake Sugar instance behind a real HTTP
// server and a bbolt-backed token store.
type harness struct {
	URL    string
	Sugar  *fakeInstance
	DBPath string
	Client *http.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	inst := newFakeInstance()
	ts := httptest.NewServer(inst)
	t.Cleanup(ts.Close)

	return &harness{
		URL:    ts.URL,
		Sugar:  inst,
		DBPath: filepath.Join(t.TempDir(), "tokens.db"),
		Client: ts.Client(),
	}
}

// openStore opens the harness token database. Bolt holds an exclusive
// lock, so callers close the store before opening it again.
func (h *harness) openStore(t *testing.T, opts ...state.Option) *state.State {
	t.Helper()

	s, err := state.Open(h.DBPath, opts...)
	require.NoError(t, err)

	return s
}

// newClient creates a sugar client against the harness server.
func (h *harness) newClient(t *testing.T, store sugar.TokenStore, creds sugar.Credentials) *sugar.Client {
	t.Helper()

	return sugar.New(h.URL, creds,
		sugar.WithTokenStore(store),
		sugar.WithHTTPClient(h.Client),
	)
}

// fakeInstance imitates the parts of a Sugar instance the SDK talks to:
// the oauth2 token endpoints and a handful of record routes guarded by
// the OAuth-Token header.
type fakeInstance struct {
	mu       sync.Mutex
	access   map[string]string // access token -> refresh token
	refresh  map[string]bool
	records  map[string]map[string]any
	files    map[string][]byte
	requests []string
}

func newFakeInstance() *fakeInstance {
	return &fakeInstance{
		access:  make(map[string]string),
		refresh: make(map[string]bool),
		records: map[string]map[string]any{
			"Accounts/1": {"id": "1", "name": "Acme"},
		},
		files: make(map[string][]byte),
	}
}

func (f *fakeInstance) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path, ok := strings.CutPrefix(r.URL.Path, "/rest/v10/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+path)
	f.mu.Unlock()

	switch path {
	case "oauth2/token":
		f.token(w, r)
		return
	case "oauth2/logout":
		if !f.authorized(w, r) {
			return
		}

		f.revoke(r.Header.Get("OAuth-Token"))
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

		return
	}

	if !f.authorized(w, r) {
		return
	}

	switch {
	case path == "me":
		writeJSON(w, http.StatusOK, map[string]any{"current_user": map[string]any{"user_name": testUsername}})
	case strings.Contains(path, "/file/"):
		f.file(w, r, path)
	default:
		f.record(w, r, path)
	}
}

func (f *fakeInstance) token(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON")
		return
	}

	if body["client_id"] != testClientID || body["client_secret"] != testSecret {
		writeError(w, http.StatusUnauthorized, "invalid_client", "Client authentication failed")
		return
	}

	switch body["grant_type"] {
	case "password":
		if body["username"] != testUsername || body["password"] != testPassword {
			writeError(w, http.StatusUnauthorized, "need_login", "You must specify a valid username and password.")
			return
		}
	case "refresh_token":
		f.mu.Lock()
		valid := f.refresh[body["refresh_token"]]
		delete(f.refresh, body["refresh_token"])
		f.mu.Unlock()

		if !valid {
			writeError(w, http.StatusBadRequest, "invalid_grant", "Invalid refresh token")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "unsupported_grant_type", "Unsupported grant type")
		return
	}

	access, refresh := randomToken(), randomToken()

	f.mu.Lock()
	f.access[access] = refresh
	f.refresh[refresh] = true
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":       access,
		"refresh_token":      refresh,
		"expires_in":         3600,
		"token_type":         "bearer",
		"scope":              nil,
		"refresh_expires_in": 1209600,
		"download_token":     randomToken(),
	})
}

func (f *fakeInstance) authorized(w http.ResponseWriter, r *http.Request) bool {
	f.mu.Lock()
	_, ok := f.access[r.Header.Get("OAuth-Token")]
	f.mu.Unlock()

	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_grant", "The access token provided is invalid.")
	}

	return ok
}

func (f *fakeInstance) revoke(access string) {
	f.mu.Lock()
	delete(f.access, access)
	f.mu.Unlock()
}

func (f *fakeInstance) record(w http.ResponseWriter, r *http.Request, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		rec, ok := f.records[path]
		if !ok {
			writeError(w, http.StatusNotFound, "not_found", "Could not find record")
			return
		}

		writeJSON(w, http.StatusOK, rec)
	case http.MethodPost:
		var rec map[string]any
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON")
			return
		}

		id := randomToken()[:8]
		rec["id"] = id
		f.records[path+"/"+id] = rec
		writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		delete(f.records, path)
		writeJSON(w, http.StatusOK, map[string]any{"id": path[strings.LastIndex(path, "/")+1:]})
	default:
		writeError(w, http.StatusMethodNotAllowed, "not_allowed", r.Method)
	}
}

func (f *fakeInstance) file(w http.ResponseWriter, r *http.Request, path string) {
	field := path[strings.LastIndex(path, "/")+1:]

	switch r.Method {
	case http.MethodPost:
		file, _, err := r.FormFile(field)
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing_file", err.Error())
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing_file", err.Error())
			return
		}

		f.mu.Lock()
		f.files[path] = data
		f.mu.Unlock()

		writeJSON(w, http.StatusOK, map[string]any{field: map[string]any{"name": field, "size": len(data)}})
	case http.MethodGet:
		f.mu.Lock()
		data, ok := f.files[path]
		f.mu.Unlock()

		if !ok {
			writeError(w, http.StatusNotFound, "not_found", "File not found")
			return
		}

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
	default:
		writeError(w, http.StatusMethodNotAllowed, "not_allowed", r.Method)
	}
}

// Requests returns "METHOD path" for every request received so far.
func (f *fakeInstance) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.requests...)
}

// Revoke invalidates an access token server side.
func (f *fakeInstance) Revoke(access string) { f.revoke(access) }

// Active reports whether the server still accepts access.
func (f *fakeInstance) Active(access string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.access[access]

	return ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "error_message": msg})
}

func randomToken() string {
	b := make([]byte, 16)
	rand.Read(b)

	return hex.EncodeToString(b)
}
