package endpoint

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Names of the operations the authentication flow depends on.
const (
	TokenName   = "oauth2Token"
	RefreshName = "oauth2Refresh"
	LogoutName  = "oauth2Logout"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// Definition describes one REST operation.
type Definition struct {
	Name     string            `yaml:"name"`
	Method   string            `yaml:"method"`
	Path     string            `yaml:"path"`
	Auth     bool              `yaml:"auth"`
	Defaults map[string]string `yaml:"defaults,omitempty"`
}

var loadDefault = sync.OnceValues(func() ([]Definition, error) {
	return LoadCatalog(bytes.NewReader(builtinCatalog))
})

// DefaultCatalog returns the built-in operation definitions. The returned
// slice is a copy and may be modified by the caller.
func DefaultCatalog() ([]Definition, error) {
	defs, err := loadDefault()
	if err != nil {
		return nil, fmt.Errorf("loading built-in catalog: %w", err)
	}

	out := make([]Definition, len(defs))
	copy(out, defs)

	return out, nil
}

// LoadCatalog parses and validates a YAML list of definitions.
func LoadCatalog(r io.Reader) ([]Definition, error) {
	var defs []Definition

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&defs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}

		return nil, fmt.Errorf("decoding catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(defs))

	for i := range defs {
		d := &defs[i]
		d.Method = strings.ToUpper(strings.TrimSpace(d.Method))
		d.Path = strings.Trim(strings.TrimSpace(d.Path), "/")

		if err := d.validate(i); err != nil {
			return nil, err
		}

		if _, dup := seen[d.Name]; dup {
			return nil, &DefinitionError{Index: i, Name: d.Name, Reason: "duplicate name"}
		}

		seen[d.Name] = struct{}{}
	}

	return defs, nil
}

func (d *Definition) validate(i int) error {
	if d.Name == "" {
		return &DefinitionError{Index: i, Reason: "name is required"}
	}

	switch d.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	case "":
		return &DefinitionError{Index: i, Name: d.Name, Reason: "method is required"}
	default:
		return &DefinitionError{Index: i, Name: d.Name, Reason: fmt.Sprintf("unsupported method %q", d.Method)}
	}

	if d.Path == "" {
		return &DefinitionError{Index: i, Name: d.Name, Reason: "path is required"}
	}

	return nil
}

// Factory returns a factory producing REST endpoints for d.
func (d Definition) Factory(httpClient *http.Client) Factory {
	return func(apiURL string, args ...string) (Endpoint, error) {
		return NewREST(d, httpClient, apiURL, args...)
	}
}

// Factories turns definitions into a name-to-factory table.
func Factories(defs []Definition, httpClient *http.Client) map[string]Factory {
	out := make(map[string]Factory, len(defs))
	for _, d := range defs {
		out[d.Name] = d.Factory(httpClient)
	}

	return out
}
