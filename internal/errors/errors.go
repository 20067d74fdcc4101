package errors

import (
	"errors"
	"fmt"
)

var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

// codedError is immutable; the With* methods return copies so an error can
// be shared between the sampling loop and its readers.
type codedError struct {
	code    ErrorCode
	message string
	cause   error
	data    any
}

func (e codedError) Error() string {
	msg := e.message
	if msg == "" {
		msg = GetErrorMessage(e.code)
	}

	switch {
	case e.data != nil:
		return fmt.Sprintf("%s: %v", msg, e.data)
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", msg, e.cause)
	default:
		return msg
	}
}

func (e codedError) Code() ErrorCode { return e.code }
func (e codedError) GetData() any    { return e.data }
func (e codedError) Unwrap() error   { return e.cause }

func (e codedError) WithMessage(msg string) Error {
	e.message = msg
	return e
}

func (e codedError) WithData(data any) Error {
	e.data = data
	return e
}

type factory struct{}

// New returns the Factory used to build coded errors.
func New() Factory { return factory{} }

func (factory) New(code ErrorCode) Error { return codedError{code: code} }

func (factory) Wrap(code ErrorCode, err error) Error {
	return codedError{code: code, cause: err}
}

func (factory) WithMessage(code ErrorCode, msg string) Error {
	return codedError{code: code, message: msg}
}

func (factory) WithData(code ErrorCode, data any) Error {
	return codedError{code: code, data: data}
}

// HasCode reports whether err, or any error it wraps, carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var coded Error
		if !As(err, &coded) {
			return false
		}
		if coded.Code() == code {
			return true
		}
		err = coded.Unwrap()
	}

	return false
}
