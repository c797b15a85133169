package webhook

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrMissingSignature = errors.New("signature header is required")
	ErrMalformedPayload = errors.New("payload is not a JSON object")
	ErrStaleTimestamp   = errors.New("payload timestamp is outside the allowed tolerance")
	ErrInvalidSignature = errors.New("invalid signature")
)

// SchemaError lists per-field validation failures keyed by JSON field name.
type SchemaError struct {
	Fields map[string]string
}

func (e *SchemaError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid payload: " + strings.Join(parts, ", ")
}

func (e *SchemaError) add(field, rule string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = rule
	}
}
