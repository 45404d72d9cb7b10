package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic-stacker/stacker/faults"
)

// StatusError is a decoded non-2xx response. Both API families wrap
// failures in JSON bodies carrying either a flat "message" field or a
// nested "error" object with "type" and "reason"; anything else falls
// back to the HTTP status line.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	ErrorType  string
	ErrorBody  string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s %s failed: %s", e.Method, e.URL, e.Reason())
}

func (e *StatusError) Reason() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.ErrorType != "" && e.ErrorBody != "":
		return fmt.Sprintf("%s: %s", e.ErrorType, e.ErrorBody)
	case e.ErrorBody != "":
		return e.ErrorBody
	default:
		return e.Status
	}
}

func decodeStatusError(method string, targetURL string, response *http.Response, raw []byte) *StatusError {
	statusErr := &StatusError{
		Method:     method,
		URL:        targetURL,
		StatusCode: response.StatusCode,
		Status:     response.Status,
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return statusErr
	}

	if message, ok := body["message"].(string); ok {
		statusErr.Message = collapseLines(message)
		return statusErr
	}

	switch errValue := body["error"].(type) {
	case map[string]any:
		if errType, ok := errValue["type"].(string); ok {
			statusErr.ErrorType = errType
		}
		if reason, ok := errValue["reason"].(string); ok {
			statusErr.ErrorBody = collapseLines(reason)
		}
	case string:
		statusErr.ErrorBody = collapseLines(errValue)
	}
	return statusErr
}

func collapseLines(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func categoryForStatus(statusCode int) faults.ErrorCategory {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return faults.AuthError
	case http.StatusNotFound:
		return faults.NotFoundError
	case http.StatusConflict:
		return faults.ConflictError
	default:
		return faults.TransportError
	}
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	return faults.IsCategory(err, faults.NotFoundError)
}

// IsAlreadyExists reports the Elasticsearch "resource already exists"
// conflict, which immutable-resource creation treats as a no-op.
func IsAlreadyExists(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.ErrorType == "resource_already_exists_exception"
}
