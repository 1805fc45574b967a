package response

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Response is the standard API envelope
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorData      `json:"error,omitempty"`
	Meta    json.RawMessage `json:"meta,omitempty"`
}

// ErrorData is the error part of the envelope
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// errorBody covers the flat error shapes: {"error": "..."} and {"message": "..."}.
// The error field may also hold an ErrorData object.
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

// ParseError extracts a machine code and a human message from an error body.
// The error field takes precedence over message. A body that is not JSON is
// returned trimmed as the message.
func ParseError(body []byte) (code, message string) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", ""
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		if body[0] == '{' || body[0] == '[' {
			return "", ""
		}
		return "", truncate(string(body), 200)
	}

	code = eb.Code
	if len(eb.Error) > 0 && string(eb.Error) != "null" {
		var s string
		if err := json.Unmarshal(eb.Error, &s); err == nil && s != "" {
			return code, s
		}
		var ed ErrorData
		if err := json.Unmarshal(eb.Error, &ed); err == nil {
			if ed.Code != "" {
				code = ed.Code
			}
			if ed.Message != "" {
				return code, ed.Message
			}
		}
	}
	return code, eb.Message
}

// Unwrap returns the data payload if body is a {"success": ..., "data": ...}
// envelope, and body unchanged otherwise.
func Unwrap(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return body
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return body
	}
	if _, ok := probe["success"]; !ok {
		return body
	}
	data, ok := probe["data"]
	if !ok {
		return body
	}
	return data
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
