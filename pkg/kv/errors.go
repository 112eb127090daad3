package kv

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRequest is an unclassified client-side (4xx) failure.
	ErrRequest = errors.New("kv: request error")
	// ErrBadRequest is returned for 400 responses.
	ErrBadRequest = errors.New("kv: bad request")
	// ErrACLDisabled is returned for 401 responses.
	ErrACLDisabled = errors.New("kv: acl disabled")
	// ErrForbidden is returned for 403 responses.
	ErrForbidden = errors.New("kv: forbidden")
	// ErrNotFound is returned when a key is missing and no default was given.
	ErrNotFound = errors.New("kv: key not found")
	// ErrConflict is returned for 409 responses.
	ErrConflict = errors.New("kv: conflict")
	// ErrServer is returned for 5xx responses.
	ErrServer = errors.New("kv: server error")
	// ErrLockFailure is returned by AcquireLock when the service refused the lock.
	ErrLockFailure = errors.New("kv: lock not acquired")
	// ErrTreeConflict signals a key that is both a leaf and a parent in a tree.
	ErrTreeConflict = errors.New("kv: conflicting tree shape")
)

// Error describes a failed round trip. It unwraps to one of the sentinel
// errors above, so callers match with errors.Is.
type Error struct {
	Kind       error
	StatusCode int
	Method     string
	Path       string
	Body       []byte
	Meta       Metadata
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v: %d %q for %s %s\nresponse content: %s\n%s",
		e.Kind, e.StatusCode, http.StatusText(e.StatusCode), e.Method, e.Path, string(e.Body), e.Meta)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Kind
}

// statusKind maps a response status to its error kind. 404 and success codes
// map to nil; 404 is decided by the caller.
func statusKind(status int) error {
	switch {
	case status == http.StatusNotFound:
		return nil
	case status == http.StatusBadRequest:
		return ErrBadRequest
	case status == http.StatusUnauthorized:
		return ErrACLDisabled
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusConflict:
		return ErrConflict
	case status >= 400 && status < 500:
		return ErrRequest
	case status >= 500:
		return ErrServer
	default:
		return nil
	}
}

// checkStatus converts an error status into an *Error.
func checkStatus(req *Request, resp *Response) error {
	kind := statusKind(resp.StatusCode)
	if kind == nil {
		return nil
	}
	return &Error{
		Kind:       kind,
		StatusCode: resp.StatusCode,
		Method:     req.Method,
		Path:       req.Path,
		Body:       resp.Body,
		Meta:       ExtractMetadata(resp.Header),
	}
}
