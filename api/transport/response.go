package transport

import (
	"bytes"
	"encoding/json"
)

// Envelope is the standard API response wrapper: {success, statusCode, message, data}.
type Envelope struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"statusCode,omitempty"`
	Message    string          `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Result is the effective content of a response body after envelope interpretation.
// Message and Success are only set when the body was an envelope.
type Result struct {
	Payload json.RawMessage
	Message string
	Success *bool
}

// Enveloped reports whether the body carried the success flag.
func (r Result) Enveloped() bool {
	return r.Success != nil
}

// Empty reports whether the payload is absent, null or an empty object.
func (r Result) Empty() bool {
	p := bytes.TrimSpace(r.Payload)
	return len(p) == 0 || bytes.Equal(p, []byte("null")) || bytes.Equal(p, []byte("{}"))
}

// Unwrap returns the effective payload of a raw body. An object with a boolean
// "success" key is treated as an Envelope; anything else is the payload itself.
// Malformed or missing bodies never fail: absent parts stay zero.
func Unwrap(body []byte) Result {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Result{}
	}
	if trimmed[0] != '{' {
		return Result{Payload: json.RawMessage(trimmed)}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Result{Payload: json.RawMessage(trimmed)}
	}

	rawSuccess, ok := fields["success"]
	if !ok {
		return Result{Payload: json.RawMessage(trimmed)}
	}
	var success bool
	if err := json.Unmarshal(rawSuccess, &success); err != nil {
		return Result{Payload: json.RawMessage(trimmed)}
	}

	res := Result{Payload: fields["data"], Success: &success}
	if rawMsg, ok := fields["message"]; ok {
		_ = json.Unmarshal(rawMsg, &res.Message)
	}
	return res
}

// Decode unwraps the body and unmarshals the payload into T.
// An empty payload yields the zero value of T.
func Decode[T any](body []byte) (T, Result, error) {
	var out T
	res := Unwrap(body)
	p := bytes.TrimSpace(res.Payload)
	if len(p) == 0 || bytes.Equal(p, []byte("null")) {
		return out, res, nil
	}
	if err := json.Unmarshal(p, &out); err != nil {
		return out, res, err
	}
	return out, res, nil
}

// ErrorMessage extracts the "message" field of an error body, enveloped or not.
func ErrorMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return ""
	}
	return payload.Message
}

// NewSuccess returns a success envelope; used by test doubles of the API.
func NewSuccess(status int, message string, data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"success":    true,
		"statusCode": status,
		"message":    message,
		"data":       data,
	}
}

// NewError returns a failure envelope.
func NewError(status int, message string) map[string]interface{} {
	return map[string]interface{}{
		"success":    false,
		"statusCode": status,
		"message":    message,
	}
}
