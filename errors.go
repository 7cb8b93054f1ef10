package ktable

import (
	"errors"
	"fmt"
)

var (
	ErrNoSlot        = errors.New("ktable: no free slot")
	ErrNotReadable   = errors.New("ktable: file not readable")
	ErrNotWritable   = errors.New("ktable: file not writable")
	ErrShortTransfer = errors.New("ktable: transfer incomplete")
)

// InvariantError is the panic value raised when a table detects internal
// corruption or a broken caller contract. It is never returned as an error.
type InvariantError struct {
	Op  string
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// IsFatal reports whether v, typically the result of recover, is an
// invariant violation raised by this package.
func IsFatal(v interface{}) bool {
	_, ok := v.(*InvariantError)
	return ok
}

func fatal(op, format string, args ...interface{}) {
	e := &InvariantError{Op: op, Msg: fmt.Sprintf(format, args...)}
	plog.WithField("op", op).Error(e.Msg)
	panic(e)
}
