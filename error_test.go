package mssql

import (
	"errors"
	"io"
	"testing"
)

func TestErrorImplementsSQLErrorInterfaces(t *testing.T) {
	err := Error{
		Number:     1045,
		State:      2,
		Class:      16,
		Message:    "some error",
		ServerName: "localhost",
		ProcName:   "sp_x",
		LineNo:     7,
	}

	if err.SQLErrorNumber() != 1045 {
		t.Errorf("SQLErrorNumber() = %d, want 1045", err.SQLErrorNumber())
	}
	if err.SQLErrorState() != 2 {
		t.Errorf("SQLErrorState() = %d, want 2", err.SQLErrorState())
	}
	if err.SQLErrorClass() != 16 {
		t.Errorf("SQLErrorClass() = %d, want 16", err.SQLErrorClass())
	}
	if err.SQLErrorMessage() != "some error" {
		t.Errorf("SQLErrorMessage() = %q", err.SQLErrorMessage())
	}
	if err.SQLErrorServerName() != "localhost" {
		t.Errorf("SQLErrorServerName() = %q", err.SQLErrorServerName())
	}
	if err.SQLErrorProcName() != "sp_x" {
		t.Errorf("SQLErrorProcName() = %q", err.SQLErrorProcName())
	}
	if err.SQLErrorLineNo() != 7 {
		t.Errorf("SQLErrorLineNo() = %d, want 7", err.SQLErrorLineNo())
	}
	if err.Error() != "mssql: some error" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestStreamErrorUnwrap(t *testing.T) {
	serr := StreamError{InnerError: io.ErrUnexpectedEOF}

	if !errors.Is(serr, io.ErrUnexpectedEOF) {
		t.Error("StreamError should unwrap to its inner error")
	}
	if serr.Error() == "" {
		t.Error("StreamError should render a message")
	}
}
