package hashkey

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrTransport marks network-level failures (timeout, refused, DNS). Callers
// get no response body in that case.
var ErrTransport = errors.New("hashkey: request error")

// APIError is an upstream rejection. Body keeps the exchange payload verbatim.
type APIError struct {
	HTTPStatus int
	Code       string
	Msg        string
	Body       json.RawMessage
}

func (e *APIError) Error() string {
	if e.Code != "" || e.Msg != "" {
		return fmt.Sprintf("hashkey api error %s (http %d): %s", e.Code, e.HTTPStatus, e.Msg)
	}
	return fmt.Sprintf("hashkey http error %d: %s", e.HTTPStatus, strings.TrimSpace(string(e.Body)))
}

// AsAPIError extracts an *APIError from err.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return nil, false
	}
	return apiErr, true
}

type errorEnvelope struct {
	Code json.RawMessage `json:"code"`
	Msg  string          `json:"msg"`
}

// parseAPIError inspects a response and returns an *APIError when the
// exchange rejected the call, or nil when the body represents success.
func parseAPIError(status int, body []byte) error {
	trimmed := bytes.TrimSpace(body)
	var env errorEnvelope
	isObject := len(trimmed) > 0 && trimmed[0] == '{'
	if isObject {
		_ = json.Unmarshal(trimmed, &env)
	}
	code := normalizeCode(env.Code)

	if status >= http.StatusMultipleChoices {
		return &APIError{HTTPStatus: status, Code: code, Msg: env.Msg, Body: rawOrString(trimmed)}
	}
	// 2xx with an error envelope; "0" and "200" are success codes.
	if isObject && code != "" && code != "0" && code != "200" && env.Msg != "" {
		return &APIError{HTTPStatus: status, Code: code, Msg: env.Msg, Body: rawOrString(trimmed)}
	}
	return nil
}

func normalizeCode(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// rawOrString keeps valid JSON as-is and quotes anything else.
func rawOrString(b []byte) json.RawMessage {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}
