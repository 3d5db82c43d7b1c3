package ingest

import "errors"

// TerminalError marks a job failure that retrying cannot fix: an unreadable
// or corrupt file, a malformed payload. The queue dead-letters such jobs
// immediately instead of burning the remaining attempts.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return e.Err.Error() }
func (e *TerminalError) Unwrap() error { return e.Err }

// Terminal wraps err as a TerminalError. Wrapping nil returns nil.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

// IsTerminal reports whether err is (or wraps) a TerminalError.
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}
