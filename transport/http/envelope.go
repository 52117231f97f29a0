package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/layer-3/folio/core"
)

// envelopeField is the key some endpoints wrap their payload under
const envelopeField = "data"

// unwrap returns the value under "data" when the payload is an object that
// has that field, and the payload itself otherwise
func unwrap(raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] != '{' {
		return json.RawMessage(trimmed), nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if data, ok := hasField(fields, envelopeField); ok {
		return data, nil
	}
	return json.RawMessage(trimmed), nil
}

func hasField(fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	value, ok := fields[name]
	return value, ok
}

// statusError classifies a non-2xx response
func statusError(r *request, status int, body []byte) *core.RequestError {
	kind := core.KindValidation
	switch {
	case status == http.StatusUnauthorized:
		kind = core.KindUnauthorized
	case status >= 500:
		kind = core.KindServer
	}
	return &core.RequestError{
		Kind:    kind,
		Method:  r.method,
		Path:    r.path,
		Status:  status,
		Message: errorMessage(body),
	}
}

// errorMessage extracts a human readable message from an error body
func errorMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}

	var msg string
	if err := json.Unmarshal(payload.Error, &msg); err == nil {
		return msg
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload.Error, &nested); err == nil {
		return nested.Message
	}
	return ""
}
