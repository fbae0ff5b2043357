// Package endpoint defines the callable remote operations of the Sugar REST
// API, the registry that maps operation names to constructors, and the
// built-in catalog of operations shipped with the SDK.
package endpoint

//go:generate mockgen -source=endpoint.go -destination=../internal/mocks/mock_endpoint.go -package=mocks

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/tidwall/gjson"
)

// Endpoint is a single callable remote operation. Instances are produced
// fresh for every dispatch and are not safe for concurrent use.
type Endpoint interface {
	// Name returns the registry name the endpoint was resolved under.
	Name() string

	// Execute performs the request. Non-2xx statuses are not errors at
	// this layer; callers inspect the returned Response.
	Execute(ctx context.Context, payload any) (*Response, error)

	// Response returns the response of the last Execute, or nil.
	Response() *Response

	// AuthRequired reports whether the remote operation expects an
	// access token.
	AuthRequired() bool

	// SetAuth stamps the endpoint with an access token.
	SetAuth(accessToken string)

	// AccessToken returns the token stamped by SetAuth, or "".
	AccessToken() string
}

// Factory builds a fresh Endpoint bound to apiURL. args fill the path
// placeholders of the operation in order.
type Factory func(apiURL string, args ...string) (Endpoint, error)

// Response is the result of executing an Endpoint.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Status returns the HTTP status code as a decimal string.
func (r *Response) Status() string {
	return strconv.Itoa(r.StatusCode)
}

// OK reports whether the server answered 200.
func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Get returns the value at the gjson path in the body.
func (r *Response) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// APIError extracts the error code and message the API reports in a
// failed response. Sugar uses "error_message" for OAuth failures and
// "message" elsewhere.
func (r *Response) APIError() (code, message string) {
	code = r.Get("error").String()

	message = r.Get("error_message").String()
	if message == "" {
		message = r.Get("message").String()
	}

	return code, message
}
