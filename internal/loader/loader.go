// Package loader reads workflow definitions from JSON, YAML or HCL documents.
// Every document is checked against the workflow JSON Schema before it is
// decoded, so the builder only ever sees structurally sound definitions.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/flowplan/internal/validation"
	"github.com/rendis/flowplan/pkg/schema"
	"gopkg.in/yaml.v3"
)

// Format names a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// ParseFormat accepts json, yaml, yml and hcl, ignoring case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "hcl":
		return FormatHCL, nil
	}
	return "", schema.NewErrorf(schema.ErrCodeInvalidDocument, "unsupported document format %q", s)
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", schema.NewErrorf(schema.ErrCodeInvalidDocument, "cannot infer document format of %q", path)
	}
	return ParseFormat(ext)
}

// Loader decodes and validates workflow documents. It is safe for
// concurrent use.
type Loader struct {
	validator *validation.DocumentValidator
}

// New compiles the workflow schema and returns a Loader.
func New() (*Loader, error) {
	v, err := validation.NewDocumentValidator()
	if err != nil {
		return nil, err
	}
	return &Loader{validator: v}, nil
}

// LoadFile reads path and decodes it in the format its extension names.
func (l *Loader) LoadFile(path string) (*schema.WorkflowDefinition, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}
	return l.Load(data, format, path)
}

// Load decodes data. filename is only used in HCL diagnostics and may be empty.
func (l *Loader) Load(data []byte, format Format, filename string) (*schema.WorkflowDefinition, error) {
	switch format {
	case FormatJSON:
		return l.loadJSON(data)
	case FormatYAML:
		return l.loadYAML(data)
	case FormatHCL:
		return l.loadHCL(data, filename)
	}
	return nil, schema.NewErrorf(schema.ErrCodeInvalidDocument, "unsupported document format %q", format)
}

func (l *Loader) loadJSON(data []byte) (*schema.WorkflowDefinition, error) {
	if err := l.validator.ValidateJSON(data); err != nil {
		return nil, err
	}
	var def schema.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidDocument, "decode workflow JSON").WithCause(err)
	}
	return &def, nil
}

func (l *Loader) loadYAML(data []byte) (*schema.WorkflowDefinition, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidDocument, "workflow document is not valid YAML").WithCause(err)
	}
	if err := l.validator.ValidateValue(doc); err != nil {
		return nil, err
	}
	var def schema.WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidDocument, "decode workflow YAML").WithCause(err)
	}
	return &def, nil
}
