package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// ErrServer covers transport failures and non-2xx backend responses.
var ErrServer = errors.New("backend request failed")

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	StatusCode int
	// Detail is the message/error/detail field of a JSON body, if any.
	Detail string
	// Message is Detail, else "status <code>: " followed by the body text or
	// the status text.
	Message string
	Body    []byte
}

func (e *StatusError) Error() string { return e.Message }

// Unwrap lets errors.Is match ErrServer.
func (e *StatusError) Unwrap() error { return ErrServer }

const maxErrorText = 512

func newStatusError(status int, body []byte) *StatusError {
	detail := jsonDetail(body)
	msg := detail
	if msg == "" {
		text := truncate(strings.TrimSpace(string(body)), maxErrorText)
		if text == "" {
			text = http.StatusText(status)
		}
		msg = fmt.Sprintf("status %d", status)
		if text != "" {
			msg += ": " + text
		}
	}
	return &StatusError{StatusCode: status, Detail: detail, Message: msg, Body: body}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func jsonDetail(body []byte) string {
	var doc map[string]json.RawMessage
	if json.Unmarshal(body, &doc) != nil {
		return ""
	}
	for _, key := range []string{"message", "error", "detail"} {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
