// Package wire defines the on-the-wire types shared by the dispatcher and
// its clients: error codes, the tag handle descriptor and frame encoding.
package wire

import "fmt"

// Code is the abstract error taxonomy of section 7. The wire representation
// is a single host-order int32 carried as the payload of an error response.
type Code int32

const (
	OK Code = iota
	ErrArg
	ErrNotFound
	ErrDupl
	Err2Big
	ErrAlloc
	ErrBadType
	ErrReadOnly
	ErrWriteOnly
	ErrDeleted
	ErrIllegal
	ErrEmpty
	ErrTimeout
	ErrNotImplemented
)

var names = map[Code]string{
	OK:                "OK",
	ErrArg:            "ARG",
	ErrNotFound:       "NOTFOUND",
	ErrDupl:           "DUPL",
	Err2Big:           "2BIG",
	ErrAlloc:          "ALLOC",
	ErrBadType:        "BADTYPE",
	ErrReadOnly:       "READONLY",
	ErrWriteOnly:      "WRITEONLY",
	ErrDeleted:        "DELETED",
	ErrIllegal:        "ILLEGAL",
	ErrEmpty:          "EMPTY",
	ErrTimeout:        "TIMEOUT",
	ErrNotImplemented: "NOTIMPLEMENTED",
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("CODE(%d)", int32(c))
}

// Error wraps a Code as a Go error, so handlers can return it directly and
// callers can compare with errors.Is against the sentinels below.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Is lets errors.Is(err, wire.ErrNotFoundErr) match regardless of Msg.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code Code, msg string) *Error { return &Error{Code: code, Msg: msg} }

// Sentinels for errors.Is comparisons, mirroring the taxonomy table.
var (
	ErrArgErr            = &Error{Code: ErrArg}
	ErrNotFoundErr       = &Error{Code: ErrNotFound}
	ErrDuplErr           = &Error{Code: ErrDupl}
	Err2BigErr           = &Error{Code: Err2Big}
	ErrAllocErr          = &Error{Code: ErrAlloc}
	ErrBadTypeErr        = &Error{Code: ErrBadType}
	ErrReadOnlyErr       = &Error{Code: ErrReadOnly}
	ErrWriteOnlyErr      = &Error{Code: ErrWriteOnly}
	ErrDeletedErr        = &Error{Code: ErrDeleted}
	ErrIllegalErr        = &Error{Code: ErrIllegal}
	ErrEmptyErr          = &Error{Code: ErrEmpty}
	ErrTimeoutErr        = &Error{Code: ErrTimeout}
	ErrNotImplementedErr = &Error{Code: ErrNotImplemented}
)
