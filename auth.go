package mssql

// Auth is the SSPI-style challenge/response engine driven by the login
// sequence. InitialBytes seeds the LOGIN7 SSPI field, NextBytes answers
// each server challenge.
type Auth interface {
	InitialBytes() ([]byte, error)
	NextBytes([]byte) ([]byte, error)
	Free()
}
