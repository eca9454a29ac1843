package service

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"syscall"
	"time"

	"google.golang.org/api/googleapi"
)

// temporaryError marks an error as transient: the job can be retried
type temporaryError struct{ err error }

func (e *temporaryError) Error() string { return e.err.Error() }
func (e *temporaryError) Unwrap() error { return e.err }
func (e *temporaryError) Temporary() bool {
	return true
}

// fatalError marks an error as definitive: retrying the job is useless
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }
func (e *fatalError) Fatal() bool {
	return true
}

// MakeTemporary tags err as temporary
func MakeTemporary(err error) error { return &temporaryError{err} }

// MakeFatal tags err as fatal
func MakeFatal(err error) error { return &fatalError{err} }

// temporaryErrnos are considered transient whatever syscall.Errno.Temporary says
var temporaryErrnos = map[syscall.Errno]bool{
	syscall.EIO:          true,
	syscall.EBUSY:        true,
	syscall.ECANCELED:    true,
	syscall.ECONNABORTED: true,
	syscall.ECONNRESET:   true,
	syscall.ENOMEM:       true,
	syscall.EPIPE:        true,
}

// Temporary returns true if an error of the chain is tagged as transient
// (explicitly, by a googleapi status code, a known errno or a context error)
func Temporary(err error) bool {
	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && temporaryErrnos[errno] {
		return true
	}
	var tagged interface{ Temporary() bool }
	if errors.As(err, &tagged) {
		return tagged.Temporary()
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return TemporaryHTTPStatus(apiErr.Code)
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Fatal returns true if an error of the chain is tagged as fatal
func Fatal(err error) bool {
	var tagged interface{ Fatal() bool }
	return errors.As(err, &tagged) && tagged.Fatal()
}

// MergeErrors appends the messages of newErrs to err. The wrapped error (driving Temporary and Fatal) is chosen:
//   - priorityToError: a non temporary error is preferred
//   - !priorityToError: nil is returned as soon as one of newErrs is nil, a temporary error is preferred
func MergeErrors(priorityToError bool, err error, newErrs ...error) error {
	for _, newErr := range newErrs {
		switch {
		case newErr == nil:
			if !priorityToError {
				return nil
			}
		case err == nil:
			err = newErr
		case priorityToError != Temporary(err):
			err = fmt.Errorf("%w\n %v", err, newErr)
		default:
			err = fmt.Errorf("%w\n %v", newErr, err)
		}
	}
	return err
}

// TemporaryHTTPStatus returns true if the status code denotes a transient failure of the server
func TemporaryHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 501, 502, 503, 504:
		return true
	}
	return false
}

// HTTPError returns an error tagged according to the status code:
// temporary for 408, 429 and 5xx, fatal for 401 and 403.
func HTTPError(code int, err error) error {
	switch {
	case TemporaryHTTPStatus(code):
		return MakeTemporary(err)
	case code == 401 || code == 403:
		return MakeFatal(err)
	}
	return err
}

// Retriable calls f until it succeeds, returns a fatal error or nbTries is reached.
// It waits <wait> between two tries (doubled at each try) and returns the last error.
func Retriable(ctx context.Context, f func() error, wait time.Duration, nbTries int) error {
	var err error
	for i := 0; i < nbTries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return MergeErrors(true, ctx.Err(), err)
			case <-time.After(wait):
			}
			wait *= 2
		}
		if err = f(); err == nil || Fatal(err) {
			return err
		}
	}
	return err
}
