package comdirect

import (
	"errors"
	"fmt"
)

// ErrUnreachable is returned when the broker could not be reached after all
// retries, or while the circuit breaker for the account is open.
var ErrUnreachable = errors.New("comdirect: upstream unreachable")

// HTTPError is a non-2xx response from the broker.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("comdirect: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("comdirect: status %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == code
}

// IsClientError reports whether err is a 4xx response.
func IsClientError(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode >= 400 && he.StatusCode < 500
}

// errorBody covers both the OAuth and the REST error shapes.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Code             string `json:"code"`
	Message          string `json:"message"`
	Messages         []struct {
		Key     string `json:"key"`
		Message string `json:"message"`
	} `json:"messages"`
}

func (b errorBody) toHTTPError(status int, fallback string) *HTTPError {
	e := &HTTPError{StatusCode: status, Code: b.Error, Message: b.ErrorDescription}
	if e.Code == "" {
		e.Code = b.Code
	}
	if e.Message == "" {
		e.Message = b.Message
	}
	if e.Message == "" && len(b.Messages) > 0 {
		e.Message = b.Messages[0].Message
		if e.Code == "" {
			e.Code = b.Messages[0].Key
		}
	}
	if e.Message == "" {
		e.Message = fallback
	}
	return e
}
