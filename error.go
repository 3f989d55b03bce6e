package mssql

import (
	"fmt"
)

// Error represents an error message returned by the server inside an
// ERROR token. It is statement scoped: the connection stays usable once
// the terminating DONE token has been drained.
type Error struct {
	Number     int32
	State      uint8
	Class      uint8
	Message    string
	ServerName string
	ProcName   string
	LineNo     int32
}

func (e Error) Error() string {
	return "mssql: " + e.Message
}

// SQLErrorNumber returns the server error number.
func (e Error) SQLErrorNumber() int32 {
	return e.Number
}

func (e Error) SQLErrorState() uint8 {
	return e.State
}

func (e Error) SQLErrorClass() uint8 {
	return e.Class
}

func (e Error) SQLErrorMessage() string {
	return e.Message
}

func (e Error) SQLErrorServerName() string {
	return e.ServerName
}

func (e Error) SQLErrorProcName() string {
	return e.ProcName
}

func (e Error) SQLErrorLineNo() int32 {
	return e.LineNo
}

// StreamError is returned for invalid data in the wire stream. Once it
// is raised the connection is in an unknown state and must be discarded.
type StreamError struct {
	InnerError error
}

func (e StreamError) Error() string {
	return "Invalid TDS stream: " + e.InnerError.Error()
}

func (e StreamError) Unwrap() error {
	return e.InnerError
}

func streamErrorf(format string, v ...interface{}) StreamError {
	return StreamError{InnerError: fmt.Errorf(format, v...)}
}

// badStreamPanic is used by token parsers to bail out of deeply nested
// decoding on a truncated stream; it is recovered at the token loop
// boundary and converted back into an error return.
func badStreamPanic(err error) {
	panic(StreamError{InnerError: err})
}

func badStreamPanicf(format string, v ...interface{}) {
	panic(streamErrorf(format, v...))
}
