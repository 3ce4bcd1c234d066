package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrIndexNotFound = errors.New("db: index not found")
	ErrIndexExists   = errors.New("db: index already exists")
	ErrKeyNotFound   = errors.New("db: key not found")
)

// Op constants name the failing command for error context.
const (
	OpCreateIndex = "FT.CREATE"
	OpScan        = "SCAN"
	OpIndexInfo   = "FT.INFO"
	OpSearch      = "FT.SEARCH"
	OpHSet        = "HSET"
	OpGet         = "GET"
	OpSet         = "SET"
	OpPersist     = "PERSIST"
	OpLoad        = "LOAD"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
