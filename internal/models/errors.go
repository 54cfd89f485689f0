package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFormat marks input that is not XML or not the expected document kind.
	ErrFormat = errors.New("not a recognized ASPEN file")
	// ErrInvalidArgument marks an unknown object type or action in a query.
	ErrInvalidArgument = errors.New("invalid argument")
)

// FormatError names the format a caller expected to read.
type FormatError struct {
	Path     string
	Expected string
	Err      error
}

func (e *FormatError) Error() string {
	var b strings.Builder
	b.WriteString(ErrFormat.Error())
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Expected != "" {
		b.WriteString(": expected ")
		b.WriteString(e.Expected)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *FormatError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrFormat) match any FormatError.
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// InvalidArgumentError lists the accepted values so a terminal user can fix the call.
type InvalidArgumentError struct {
	Name  string
	Value string
	Valid []string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s: %s %q not recognized, valid values: %s",
		ErrInvalidArgument, e.Name, e.Value, strings.Join(e.Valid, ", "))
}

func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }
