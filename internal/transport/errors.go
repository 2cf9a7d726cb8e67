package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidServiceRoot is returned when the service root is not an absolute http(s) URL
var ErrInvalidServiceRoot = errors.New("invalid service root")

// StatusError is returned for non-2xx responses
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

// Error implements the error interface
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if len(e.Body) > 0 {
		body := e.Body
		if len(body) > 512 {
			body = body[:512]
		}
		msg += ": " + string(body)
	}
	return msg
}

// IsStatus returns true if err is a StatusError with the given code
func IsStatus(err error, code int) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.StatusCode == code
}

// IsNotFound returns true if the service answered 404
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

// IsPreconditionFailed returns true if the service rejected a concurrency precondition
func IsPreconditionFailed(err error) bool {
	return IsStatus(err, http.StatusPreconditionFailed)
}
