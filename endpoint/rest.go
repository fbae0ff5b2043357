package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client.
	httpClientTimeout = 30 * time.Second

	// maxResponseBytes caps response body reads. Attachment downloads
	// go through the same path, so the cap is generous.
	maxResponseBytes = 64 << 20

	// authHeader carries the access token on authenticated requests.
	authHeader = "OAuth-Token"
)

// Upload is a multipart file payload for attachment endpoints.
type Upload struct {
	// Field is the form field holding the file. Defaults to the
	// endpoint's {field} path argument.
	Field    string
	Filename string
	Content  io.Reader
	// Fields are extra form values sent alongside the file.
	Fields map[string]string
}

// REST is an Endpoint backed by an HTTP request against the Sugar API.
type REST struct {
	def         Definition
	httpClient  *http.Client
	url         string
	params      map[string]string
	accessToken string
	response    *Response
}

// DefaultHTTPClient returns the client used when none is configured: a
// 30-second timeout and a same-host redirect policy.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout:       httpClientTimeout,
		CheckRedirect: sameHostRedirectPolicy,
	}
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host, so the OAuth-Token header never
// reaches a third-party domain.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewREST binds def to apiURL, filling path placeholders from args.
// A nil httpClient selects DefaultHTTPClient.
func NewREST(def Definition, httpClient *http.Client, apiURL string, args ...string) (*REST, error) {
	path, params, err := buildPath(def.Path, args)
	if err != nil {
		return nil, err
	}

	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}

	return &REST{
		def:        def,
		httpClient: httpClient,
		url:        apiURL + path,
		params:     params,
	}, nil
}

// buildPath substitutes {placeholder} segments positionally. Missing or
// empty trailing args drop their segment so list-style calls (e.g.
// getRelated without a related id) address the collection. An empty arg
// followed by a non-empty one is an error, since dropping it would
// address a different resource.
func buildPath(tmpl string, args []string) (string, map[string]string, error) {
	segments := strings.Split(tmpl, "/")
	out := make([]string, 0, len(segments))
	params := make(map[string]string)
	next := 0
	gap := ""

	for _, seg := range segments {
		if !isPlaceholder(seg) {
			if seg != "" {
				out = append(out, seg)
			}

			continue
		}

		if next >= len(args) {
			continue
		}

		val := args[next]
		next++

		if val == "" {
			if gap == "" {
				gap = seg
			}

			continue
		}

		if gap != "" {
			return "", nil, fmt.Errorf("empty argument for %s in path %q", gap, tmpl)
		}

		params[seg[1:len(seg)-1]] = val
		out = append(out, url.PathEscape(val))
	}

	if next < len(args) {
		return "", nil, fmt.Errorf("too many arguments: path %q takes %d, got %d", tmpl, next, len(args))
	}

	return strings.Join(out, "/"), params, nil
}

func isPlaceholder(seg string) bool {
	return len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}'
}

// Name returns the catalog name of the endpoint.
func (e *REST) Name() string { return e.def.Name }

// URL returns the fully built request URL without query parameters.
func (e *REST) URL() string { return e.url }

// Method returns the HTTP method of the endpoint.
func (e *REST) Method() string { return e.def.Method }

// AuthRequired reports whether the endpoint needs an access token.
func (e *REST) AuthRequired() bool { return e.def.Auth }

// SetAuth stamps the endpoint with an access token.
func (e *REST) SetAuth(accessToken string) { e.accessToken = accessToken }

// AccessToken returns the stamped access token.
func (e *REST) AccessToken() string { return e.accessToken }

// Response returns the last response, or nil before Execute.
func (e *REST) Response() *Response { return e.response }

// Execute sends the request. Network failures are returned as
// *TransientError; any HTTP status is returned as a Response.
func (e *REST) Execute(ctx context.Context, payload any) (*Response, error) {
	payload = e.withDefaults(payload)

	target := e.url

	var (
		body        io.Reader
		contentType string
	)

	switch p := payload.(type) {
	case nil:
	case *Upload:
		buf, ct, err := e.multipartBody(p)
		if err != nil {
			return nil, err
		}

		body, contentType = buf, ct
	default:
		if q, ok := queryValues(p); ok && (e.def.Method == http.MethodGet || e.def.Method == http.MethodDelete) {
			if len(q) > 0 {
				target += "?" + q.Encode()
			}

			break
		}

		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshalling %s payload: %w", e.def.Name, err)
		}

		body, contentType = bytes.NewReader(data), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, e.def.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", e.def.Name, err)
	}

	req.Header.Set("Accept", "application/json")

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if e.accessToken != "" {
		req.Header.Set(authHeader, e.accessToken)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		// Timeouts, refused connections and DNS failures are transient.
		return nil, &TransientError{Err: fmt.Errorf("sending %s request: %w", e.def.Name, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", e.def.Name, err)
	}

	e.response = &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}

	return e.response, nil
}

// withDefaults merges the definition defaults into map payloads without
// overriding caller-supplied keys.
func (e *REST) withDefaults(payload any) any {
	if len(e.def.Defaults) == 0 {
		return payload
	}

	switch p := payload.(type) {
	case nil:
		out := make(map[string]string, len(e.def.Defaults))
		for k, v := range e.def.Defaults {
			out[k] = v
		}

		return out
	case map[string]string:
		out := make(map[string]string, len(p)+len(e.def.Defaults))
		for k, v := range e.def.Defaults {
			out[k] = v
		}

		for k, v := range p {
			out[k] = v
		}

		return out
	case map[string]any:
		out := make(map[string]any, len(p)+len(e.def.Defaults))
		for k, v := range e.def.Defaults {
			out[k] = v
		}

		for k, v := range p {
			out[k] = v
		}

		return out
	}

	return payload
}

func (e *REST) multipartBody(u *Upload) (io.Reader, string, error) {
	if u.Content == nil {
		return nil, "", fmt.Errorf("%s: upload has no content", e.def.Name)
	}

	field := u.Field
	if field == "" {
		field = e.params["field"]
	}

	if field == "" {
		return nil, "", fmt.Errorf("%s: upload field name is required", e.def.Name)
	}

	var buf bytes.Buffer

	w := multipart.NewWriter(&buf)

	for k, v := range u.Fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("writing form field %s: %w", k, err)
		}
	}

	part, err := w.CreateFormFile(field, u.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}

	if _, err := io.Copy(part, u.Content); err != nil {
		return nil, "", fmt.Errorf("copying upload content: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}

func queryValues(payload any) (url.Values, bool) {
	switch p := payload.(type) {
	case url.Values:
		return p, true
	case map[string]string:
		q := make(url.Values, len(p))
		for k, v := range p {
			q.Set(k, v)
		}

		return q, true
	}

	return nil, false
}

// Snippet returns the body truncated to 256 bytes with control
// characters replaced, for inclusion in error messages and logs.
func (r *Response) Snippet() string {
	const maxLen = 256

	body := r.Body
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		c, size := utf8.DecodeRune(body)
		if c == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if c < 0x20 && c != '\n' && c != '\r' && c != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}
