package llm

import "errors"

// classified records whether the caller may retry the failed request.
type classified struct {
	err       error
	transient bool
}

func (e *classified) Error() string { return e.err.Error() }

func (e *classified) Unwrap() error { return e.err }

// NewTransientError marks err as retryable: the same endpoint may be
// attempted again after a backoff.
func NewTransientError(err error) error {
	return &classified{err: err, transient: true}
}

// NewFatalError marks err as permanent. Fatal errors also stop endpoint
// fallback, since the next endpoint would reject the request for the
// same reason.
func NewFatalError(err error) error {
	return &classified{err: err}
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	var c *classified
	return errors.As(err, &c) && c.transient
}

// IsFatal reports whether err is permanent and retrying is pointless.
func IsFatal(err error) bool {
	var c *classified
	return errors.As(err, &c) && !c.transient
}
