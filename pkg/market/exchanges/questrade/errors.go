package questrade

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"qtcache/pkg/market"
)

// APIError is a non-2xx response from the Questrade API. It unwraps to
// market.ErrNotFound or market.ErrTransient when the status maps to one.
type APIError struct {
	Status  int
	Code    int
	Message string
	kind    error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != 0 {
		return fmt.Sprintf("questrade: http %d (code %d): %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("questrade: http %d: %s", e.Status, msg)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

// Retryable reports whether the status is worth another attempt.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var payload apiErrorBody
	if err := json.Unmarshal(body, &payload); err == nil && (payload.Code != 0 || payload.Message != "") {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	switch {
	case status == http.StatusNotFound:
		apiErr.kind = market.ErrNotFound
	case apiErr.Retryable():
		apiErr.kind = market.ErrTransient
	}
	return apiErr
}
