// Package api carries the service's OpenAPI contract. The yaml document
// is embedded so binaries can serve and validate it without touching
// the filesystem.
package api

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// Document is the raw OpenAPI contract, served at /openapi.yaml.
//
//go:embed openapi.yaml
var Document []byte

// Load parses the embedded contract.
func Load() (*openapi3.T, error) {
	doc, err := openapi3.NewLoader().LoadFromData(Document)
	if err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	return doc, nil
}

// Validate parses the embedded contract and checks it is a valid
// OpenAPI 3 document.
func Validate(ctx context.Context) (*openapi3.T, error) {
	doc, err := Load()
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return doc, nil
}
