package errors

import "errors"

// Command errors.
var (
	ErrUsage            = errors.New("invalid usage")
	ErrNoCredentials    = errors.New("no credentials configured")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Server/transport errors.
var (
	ErrRequestFailed = errors.New("API request failed")
)
