package sugar

import (
	"encoding/json"
	"math"
	"time"

	"github.com/tidwall/gjson"
)

// Credential keys recognized by the SDK. Credentials may carry others;
// they are sent verbatim with the login request.
const (
	KeyClientID     = "client_id"
	KeyClientSecret = "client_secret"
	KeyUsername     = "username"
	KeyPassword     = "password"
	KeyPlatform     = "platform"
	KeyRefreshToken = "refresh_token"
)

// Credentials is the login credential set. It is replaced wholesale on
// SetCredentials and never mutated in place by the client.
type Credentials map[string]string

// ClientID returns the client_id credential, or "".
func (c Credentials) ClientID() string { return c[KeyClientID] }

// ClientSecret returns the client_secret credential, or "".
func (c Credentials) ClientSecret() string { return c[KeyClientSecret] }

func (c Credentials) clone() Credentials {
	if c == nil {
		return Credentials{}
	}

	out := make(Credentials, len(c))
	for k, v := range c {
		out[k] = v
	}

	return out
}

// Token is the OAuth2 token record returned by the token endpoint.
// ExpiresIn is relative to the moment the client installs the token.
type Token struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	TokenType        string `json:"token_type,omitempty"`
	RefreshExpiresIn int64  `json:"refresh_expires_in,omitempty"`
	DownloadToken    string `json:"download_token,omitempty"`
	Scope            string `json:"scope,omitempty"`

	// Extra holds payload fields not modeled above so they survive a
	// round trip through a TokenStore.
	Extra map[string]json.RawMessage `json:"-"`
}

// maxExpiresIn is the largest lifetime, in seconds, that fits a
// time.Duration.
const maxExpiresIn = math.MaxInt64 / int64(time.Second)

// tokenFields are the payload keys mapped onto Token fields.
var tokenFields = map[string]struct{}{
	"access_token":       {},
	"refresh_token":      {},
	"expires_in":         {},
	"token_type":         {},
	"refresh_expires_in": {},
	"download_token":     {},
	"scope":              {},
}

// plainToken has Token's fields without its JSON methods.
type plainToken Token

// UnmarshalJSON decodes the modeled fields and keeps the rest in Extra.
func (t *Token) UnmarshalJSON(data []byte) error {
	var p plainToken
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	for k := range tokenFields {
		delete(all, k)
	}

	p.Extra = nil
	if len(all) > 0 {
		p.Extra = all
	}

	*t = Token(p)

	return nil
}

// MarshalJSON encodes the modeled fields followed by Extra. Modeled
// fields win over Extra entries of the same name.
func (t Token) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(plainToken(t))
	if err != nil || len(t.Extra) == 0 {
		return data, err
	}

	out := make(map[string]json.RawMessage, len(t.Extra)+len(tokenFields))
	for k, v := range t.Extra {
		out[k] = v
	}

	var known map[string]json.RawMessage
	if err := json.Unmarshal(data, &known); err != nil {
		return nil, err
	}

	for k, v := range known {
		out[k] = v
	}

	return json.Marshal(out)
}

// requiredTokenFields must be present in a token payload.
var requiredTokenFields = []string{"access_token", "refresh_token", "expires_in"}

// Validate checks that t is a complete token record.
func (t *Token) Validate() error {
	switch {
	case t == nil:
		return &InvalidTokenError{Reason: "token is nil"}
	case t.AccessToken == "":
		return &InvalidTokenError{Reason: "access_token is empty"}
	case t.RefreshToken == "":
		return &InvalidTokenError{Reason: "refresh_token is empty"}
	case t.ExpiresIn < 0:
		return &InvalidTokenError{Reason: "expires_in is negative"}
	case t.ExpiresIn > maxExpiresIn:
		return &InvalidTokenError{Reason: "expires_in is out of range"}
	}

	return nil
}

func (t *Token) clone() *Token {
	if t == nil {
		return nil
	}

	cp := *t

	if t.Extra != nil {
		cp.Extra = make(map[string]json.RawMessage, len(t.Extra))
		for k, v := range t.Extra {
			cp.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}

	return &cp
}

// ParseToken decodes a token endpoint payload, rejecting anything that
// is not a JSON object carrying the required fields.
func ParseToken(data []byte) (*Token, error) {
	if !gjson.ValidBytes(data) {
		return nil, &InvalidTokenError{Reason: "payload is not valid JSON"}
	}

	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return nil, &InvalidTokenError{Reason: "payload is not a JSON object"}
	}

	for _, field := range requiredTokenFields {
		if !res.Get(field).Exists() {
			return nil, &InvalidTokenError{Reason: "missing " + field}
		}
	}

	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, &InvalidTokenError{Reason: err.Error()}
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return &t, nil
}
