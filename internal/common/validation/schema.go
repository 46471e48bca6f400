// Package validation validates structured assessment payloads against the
// JSON schema each persona requires.
package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validate checks a JSON document against a JSON schema document.
func Validate(doc []byte, schemaJSON string) (*Result, error) {
	res, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	out := &Result{Valid: res.Valid()}
	for _, e := range res.Errors() {
		out.Errors = append(out.Errors, FieldError{
			Field:   e.Field(),
			Message: e.Description(),
		})
	}
	return out, nil
}

// Describe flattens validation errors into a single diagnostic string.
func (r *Result) Describe() string {
	if r.Valid {
		return ""
	}
	msg := ""
	for i, e := range r.Errors {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return msg
}
