package report

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch covers authentication, transport and non-success responses
	// from the report endpoint.
	ErrFetch = errors.New("report fetch failed")
	// ErrMissingColumn means the report header lacks a required column.
	ErrMissingColumn = errors.New("missing report column")
	// ErrMalformedRecord means a data row could not be coerced into a Record.
	ErrMalformedRecord = errors.New("malformed report record")
)

// MissingColumnError names the absent header column.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMissingColumn, e.Column)
}

func (e *MissingColumnError) Is(target error) bool { return target == ErrMissingColumn }

// MalformedRecordError points at the offending cell. Row is 1-based and
// counts the header, so it matches what a spreadsheet shows.
type MalformedRecordError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	msg := fmt.Sprintf("%s: row %d", ErrMalformedRecord, e.Row)
	if e.Column != "" {
		msg += fmt.Sprintf(", column %q, value %q", e.Column, e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

func (e *MalformedRecordError) Unwrap() error { return e.Err }
