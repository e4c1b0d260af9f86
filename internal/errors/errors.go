package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is the structured error passed between the api, the worker and temporal.
//
// It serializes to JSON so it survives being carried as application error details.
type Error struct {
	Status  int
	Code    Code  // Machine readable reason, optional
	Err     error // The error this wraps
	Details []Detail
}

// Code is a short, stable identifier for a class of failure.
type Code string

const (
	CodeInvalidPlatform Code = "invalid_platform"
	CodeNotFound        Code = "not_found"
	CodeAdapter         Code = "adapter_error"
	CodeRateLimited     Code = "rate_limited"
)

type Detail struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d (%s): %s, details: %v", e.Status, e.Code, e.Err, e.Details)
	}
	return fmt.Sprintf("%d: %s, details: %v", e.Status, e.Err, e.Details)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type transport struct {
	Message string   `json:"message"`
	Code    Code     `json:"code,omitempty"`
	Details []Detail `json:"details,omitempty"`
	Status  int      `json:"status"`
}

func (e *Error) MarshalJSON() ([]byte, error) {
	msg := http.StatusText(e.Status)
	if e.Err != nil {
		msg = e.Err.Error()
	}

	return json.Marshal(transport{
		Message: msg,
		Code:    e.Code,
		Details: e.Details,
		Status:  e.Status,
	})
}

func (e *Error) UnmarshalJSON(byts []byte) error {
	t := transport{}
	if err := json.Unmarshal(byts, &t); err != nil {
		return err
	}

	e.Err = errors.New(t.Message)
	e.Code = t.Code
	e.Details = t.Details
	e.Status = t.Status
	return nil
}

// E builds an [Error] from its arguments, switching on their type:
// a string or error becomes the cause, an int the status, a [Code] the code,
// and any [Detail] is appended.
func E(args ...any) *Error {
	ret := &Error{
		Status: http.StatusInternalServerError,
	}

	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			ret.Err = errors.New(arg)
		case Code:
			ret.Code = arg
		case error:
			ret.Err = arg
		case int:
			ret.Status = arg
		case Detail:
			ret.Details = append(ret.Details, arg)
		case []Detail:
			ret.Details = append(ret.Details, arg...)
		}
	}

	return ret
}

// StatusOf reports the HTTP status carried by err, or 500 when err is not structured.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}
