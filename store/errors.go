package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a template, record or file does not exist.
var ErrNotFound = errors.New("store: not found")

// StoreIOError reports a failed read or write of a store file.
type StoreIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreIOError) Unwrap() error { return e.Err }

// ValidationError reports JSON that does not match the expected shape.
// Index is -1 when the problem is not tied to an array element.
type ValidationError struct {
	File   string
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Index >= 0 && e.Field != "":
		return fmt.Sprintf("store: %s[%d].%s: %s", e.File, e.Index, e.Field, e.Reason)
	case e.Index >= 0:
		return fmt.Sprintf("store: %s[%d]: %s", e.File, e.Index, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("store: %s: %s: %s", e.File, e.Field, e.Reason)
	}
	return fmt.Sprintf("store: %s: %s", e.File, e.Reason)
}
