package jsonrpc2

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Standard JSONRPC 2.0 error codes.
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

// Client error codes, taken from the implementation-defined server range.
const (
	ErrCodeNoError         = -32000
	ErrCodeTimeoutExceeded = -32001
	ErrCodeInvalidState    = -32002
	ErrCodeConnectionLost  = -32003
)

// builtin is the canonical table of built-in errors. Errors reads from it,
// so it does not depend on the package variables below.
var builtin = map[string]Error{
	"PARSE_ERROR":       {code: ErrCodeParse, message: "Parse error"},
	"INVALID_REQUEST":   {code: ErrCodeInvalidRequest, message: "Invalid Request"},
	"METHOD_NOT_FOUND":  {code: ErrCodeMethodNotFound, message: "Method not found"},
	"INVALID_PARAMS":    {code: ErrCodeInvalidParams, message: "Invalid params"},
	"INTERNAL_ERROR":    {code: ErrCodeInternal, message: "Internal error"},
	"NO_ERROR":          {code: ErrCodeNoError, message: "No error"},
	"TIMEOUT_EXCEEDED":  {code: ErrCodeTimeoutExceeded, message: "Waiting for response timeout exceeded"},
	"INVALID_STATE_ERR": {code: ErrCodeInvalidState, message: "WebSocket is already in CLOSING or CLOSED state"},
	"CONNECTION_LOST":   {code: ErrCodeConnectionLost, message: "Connection lost before response arrived"},
}

// Built-in error values. They are variables only so they can be used with
// errors.Is and WithData; never assign to them. Comparisons go through the
// code, and Errors always returns the canonical values.
var (
	ErrParse          = builtin["PARSE_ERROR"]
	ErrInvalidRequest = builtin["INVALID_REQUEST"]
	ErrMethodNotFound = builtin["METHOD_NOT_FOUND"]
	ErrInvalidParams  = builtin["INVALID_PARAMS"]
	ErrInternal       = builtin["INTERNAL_ERROR"]

	NoError            = builtin["NO_ERROR"]
	ErrTimeoutExceeded = builtin["TIMEOUT_EXCEEDED"]
	ErrInvalidState    = builtin["INVALID_STATE_ERR"]
	ErrConnectionLost  = builtin["CONNECTION_LOST"]
)

// ErrInvalidErrorCode is returned by ParseError when the error object does
// not carry an integer code.
var ErrInvalidErrorCode = errors.New("jsonrpc2: error code must be an integer")

// Errors returns a fresh copy of the built-in error values keyed by their
// symbolic names.
func Errors() map[string]Error {
	out := make(map[string]Error, len(builtin))
	for name, e := range builtin {
		out[name] = e
	}
	return out
}

// Error is an immutable JSONRPC error value. Copies with attached data are
// made with WithData; the original is never modified.
type Error struct {
	code    int
	message string
	data    interface{}
}

var _ error = Error{}

// NewError returns an error value with the given code, message and optional
// data.
func NewError(code int, message string, data interface{}) Error {
	return Error{code: code, message: message, data: data}
}

// ParseError decodes a wire error object.
func ParseError(raw json.RawMessage) (Error, error) {
	var obj struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data,omitempty"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Error{}, err
	}
	if !isInteger(obj.Code) {
		return Error{}, ErrInvalidErrorCode
	}
	var code int
	if err := json.Unmarshal(obj.Code, &code); err != nil {
		return Error{}, ErrInvalidErrorCode
	}
	e := Error{code: code, message: obj.Message}
	if len(obj.Data) > 0 {
		e.data = obj.Data
	}
	return e, nil
}

// StatusOf presents err as an error value: nil is NoError, an Error is
// returned as is and anything else is an internal error carrying the
// original error text.
func StatusOf(err error) Error {
	if err == nil {
		return NoError
	}
	var e Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.WithData(err.Error())
}

// Code returns the JSONRPC error code.
func (e Error) Code() int {
	return e.code
}

// Message returns the human readable description.
func (e Error) Message() string {
	return e.message
}

// Data returns the attached data, if any.
func (e Error) Data() interface{} {
	return e.data
}

// ErrorCode is the same as Code.
func (e Error) ErrorCode() int {
	return e.code
}

// WithData returns a copy of e carrying data.
func (e Error) WithData(data interface{}) Error {
	e.data = data
	return e
}

func (e Error) Error() string {
	return fmt.Sprintf("%d: %s", e.code, e.message)
}

// Is matches errors by code, so values carrying data still match their
// built-in counterpart.
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t.code == e.code
}

type wireError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireError{e.code, e.message, e.data})
}

func (e *Error) UnmarshalJSON(data []byte) error {
	parsed, err := ParseError(data)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
