package worker

import (
	"errors"

	"go.temporal.io/sdk/temporal"

	selerrs "github.com/jdholdren/selvedge/internal/errors"
)

// Unwraps the application error from temporal into a selerr if possible.
//
// Returns true if the error is convertible to a structured error.
// Returns false otherwise.
func asSelerr(err error, selerr **selerrs.Error) bool {
	if err == nil {
		return false
	}

	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) || !appErr.HasDetails() {
		return false
	}
	return appErr.Details(selerr) == nil
}

// errMessage digs the innermost application message out of a temporal error
// chain, falling back to the error text.
func errMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message()
	}
	return err.Error()
}

// hasErrType reports whether an application error of type t is anywhere in err's chain.
func hasErrType(err error, t string) bool {
	var appErr *temporal.ApplicationError
	for errors.As(err, &appErr) {
		if appErr.Type() == t {
			return true
		}
		err = appErr.Unwrap()
	}
	return false
}
