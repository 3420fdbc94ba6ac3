package ecoapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// proxyEnvelope is the {statusCode, body} wrapper some deployments put around every payload.
type proxyEnvelope struct {
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body"`
}

// envelopeError carries the status of a failed envelope so the caller can map it to a Kind.
type envelopeError struct {
	status int
	detail string
}

func (e *envelopeError) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("envelope status %d: %s", e.status, e.detail)
	}
	return fmt.Sprintf("envelope status %d", e.status)
}

// unwrapEnvelope returns the payload of a response body, whether it was sent directly
// or wrapped as {statusCode, body} with body inline or JSON-encoded as a string.
func unwrapEnvelope(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		// 不是 JSON 对象，交给调用方按原样解析
		return trimmed, nil
	}
	_, hasStatus := probe["statusCode"]
	_, hasBody := probe["body"]
	if !hasStatus || !hasBody {
		return trimmed, nil
	}

	var env proxyEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	body := bodyPayload(env.Body)

	if env.StatusCode != http.StatusOK && env.StatusCode != http.StatusCreated {
		return nil, &envelopeError{status: env.StatusCode, detail: errorDetail(body)}
	}
	return body, nil
}

// bodyPayload decodes a JSON string body to its text; any other JSON value is returned as is.
func bodyPayload(body json.RawMessage) []byte {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '"' {
		var s string
		if err := json.Unmarshal(body, &s); err == nil {
			return bytes.TrimSpace([]byte(s))
		}
	}
	if bytes.Equal(body, []byte("null")) {
		return nil
	}
	return body
}

func errorDetail(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		return payload.Message
	}
	return string(body)
}

func asEnvelopeError(err error) (*envelopeError, bool) {
	var envErr *envelopeError
	ok := errors.As(err, &envErr)
	return envErr, ok
}
