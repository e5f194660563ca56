package cache

import "errors"

// StatusCustomError is the status every store failure is reported with.
const StatusCustomError = "CUSTOM_ERROR"

// ErrNotFound marks a missing resource. Fetchers wrap it and the cache passes
// it through untouched, so callers can tell it apart from a store failure.
var ErrNotFound = errors.New("resource not found")

// Error is the only error shape queries and mutations return for store failures.
type Error struct {
	Status  string `json:"status"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	return e.Message
}

func storeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	msg := err.Error()
	if msg == "" {
		msg = "Unknown error"
	}
	return &Error{Status: StatusCustomError, Message: msg}
}

// IsNotFound reports whether err marks a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
