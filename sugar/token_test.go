package sugar

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToken(t *testing.T) {
	tok, err := ParseToken([]byte(`{
		"access_token": "abc",
		"refresh_token": "def",
		"expires_in": 3600,
		"token_type": "bearer",
		"scope": null,
		"refresh_expires_in": 1209600,
		"download_token": "ghi"
	}`))
	require.NoError(t, err)

	assert.Equal(t, &Token{
		AccessToken:      "abc",
		RefreshToken:     "def",
		ExpiresIn:        3600,
		TokenType:        "bearer",
		RefreshExpiresIn: 1209600,
		DownloadToken:    "ghi",
	}, tok)
}

func TestParseToken_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		reason  string
	}{
		{"not json", `Bad Gateway`, "not valid JSON"},
		{"array", `[1,2,3]`, "not a JSON object"},
		{"empty object", `{}`, "missing access_token"},
		{"missing refresh", `{"access_token":"a","expires_in":10}`, "missing refresh_token"},
		{"missing expiry", `{"access_token":"a","refresh_token":"r"}`, "missing expires_in"},
		{"empty access", `{"access_token":"","refresh_token":"r","expires_in":10}`, "access_token is empty"},
		{"negative expiry", `{"access_token":"a","refresh_token":"r","expires_in":-5}`, "expires_in is negative"},
		{"expiry out of range", `{"access_token":"a","refresh_token":"r","expires_in":9223372036854775}`, "expires_in is out of range"},
		{"wrong type", `{"access_token":"a","refresh_token":"r","expires_in":"soon"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := ParseToken([]byte(tt.payload))
			require.Error(t, err)
			assert.Nil(t, tok)

			var invalid *InvalidTokenError
			require.True(t, errors.As(err, &invalid))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestToken_Validate(t *testing.T) {
	assert.NoError(t, testToken().Validate())
	assert.NoError(t, (&Token{AccessToken: "a", RefreshToken: "r"}).Validate(), "zero lifetime is valid")

	var nilToken *Token
	assert.Error(t, nilToken.Validate())
}

func TestCredentials_Accessors(t *testing.T) {
	assert.Equal(t, "sugar_client_test", testCredentials.ClientID())
	assert.Equal(t, "sdk_test_secret", testCredentials.ClientSecret())

	var empty Credentials
	assert.Empty(t, empty.ClientID())
	assert.Empty(t, empty.ClientSecret())
}

func TestAuthenticationError_Format(t *testing.T) {
	err := &AuthenticationError{Op: "Login", Status: 401, Code: "need_login", Message: "denied"}
	assert.Equal(t, "Login Response [need_login] denied", err.Error())
}

func TestParseToken_KeepsExtraFields(t *testing.T) {
	tok, err := ParseToken([]byte(`{"access_token":"a","refresh_token":"r","expires_in":60,"id_token":"xyz","custom":{"n":1}}`))
	require.NoError(t, err)

	assert.Equal(t, map[string]json.RawMessage{
		"id_token": json.RawMessage(`"xyz"`),
		"custom":   json.RawMessage(`{"n":1}`),
	}, tok.Extra)
}

func TestToken_JSONRoundTripKeepsExtra(t *testing.T) {
	tok := testToken()
	tok.Extra = map[string]json.RawMessage{
		"id_token":     json.RawMessage(`"xyz"`),
		"access_token": json.RawMessage(`"shadowed"`),
	}

	data, err := json.Marshal(tok)
	require.NoError(t, err)

	var got Token
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "1234", got.AccessToken, "modeled fields win over Extra")
	assert.Equal(t, map[string]json.RawMessage{"id_token": json.RawMessage(`"xyz"`)}, got.Extra)
}

func TestToken_JSONWithoutExtra(t *testing.T) {
	data, err := json.Marshal(testToken())
	require.NoError(t, err)

	var got Token
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, testToken(), &got)
}

func TestToken_CloneCopiesExtra(t *testing.T) {
	tok := testToken()
	tok.Extra = map[string]json.RawMessage{"id_token": json.RawMessage(`"xyz"`)}

	cp := tok.clone()
	cp.Extra["id_token"] = json.RawMessage(`"changed"`)

	assert.Equal(t, json.RawMessage(`"xyz"`), tok.Extra["id_token"])
}
