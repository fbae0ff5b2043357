package sugar

import (
	"fmt"

	"github.com/alexjbarnes/sugarapi/endpoint"
)

// InvalidTokenError is returned when a token record is malformed.
type InvalidTokenError struct {
	Reason string
}

func (e *InvalidTokenError) Error() string {
	return "invalid token: " + e.Reason
}

// AuthenticationError is returned when the server rejects a login,
// refresh or logout request. Code and Message are copied verbatim from
// the response body.
type AuthenticationError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s Response [%s] %s", e.Op, e.Code, e.Message)
}

func newAuthenticationError(op string, resp *endpoint.Response) *AuthenticationError {
	code, msg := resp.APIError()
	if code == "" && msg == "" {
		msg = resp.Snippet()
	}

	return &AuthenticationError{
		Op:      op,
		Status:  resp.StatusCode,
		Code:    code,
		Message: msg,
	}
}
