// Package errs defines the typed error taxonomy for the loss aggregation
// engine. Every fatal condition the engine can raise is one of these kinds;
// callers distinguish them with a type switch or errors.As rather than
// string matching.
package errs

import "fmt"

// FileOpenError reports that the input file could not be opened.
type FileOpenError struct {
	Path string
	Err  error
}

func (e *FileOpenError) Error() string {
	return fmt.Sprintf("open %q: %v", e.Path, e.Err)
}

func (e *FileOpenError) Unwrap() error { return e.Err }

// HeaderMalformedError reports that the file's first non-comment line was
// not `_numIter = <positive integer>`.
type HeaderMalformedError struct {
	Reason string
}

func (e *HeaderMalformedError) Error() string {
	return fmt.Sprintf("malformed header: %s", e.Reason)
}

// ColumnCountUnsupportedError reports a tab count other than 5, 6, or 7 on
// the column header line.
type ColumnCountUnsupportedError struct {
	N int
}

func (e *ColumnCountUnsupportedError) Error() string {
	return fmt.Sprintf("unsupported column count: %d", e.N)
}

// LineTooLongError reports a line exceeding the BlockReader's block size.
type LineTooLongError struct {
	Thread int
	Line   int64
}

func (e *LineTooLongError) Error() string {
	return fmt.Sprintf("line too long: thread %d, line %d", e.Thread, e.Line)
}

// FieldParseError reports a row or field that failed to parse. The
// ingestor raises it for a row with fewer fields than the detected
// schema, logs it, and skips the row.
type FieldParseError struct {
	Line    int64
	Column  string
	Content string
	Err     error
}

func (e *FieldParseError) Error() string {
	return fmt.Sprintf("line %d: column %s: invalid value %q: %v", e.Line, e.Column, e.Content, e.Err)
}

func (e *FieldParseError) Unwrap() error { return e.Err }

// EventIdMismatchError reports that merge_add combined two events whose
// event ids differ and whose risk group does not end in "TERR". This kind
// is never returned by the engine's public API: it is logged and
// swallowed at the point of occurrence (spec §4.1/§7). It is exported so
// callers that want to observe the condition via a hook can still type
// against it.
type EventIdMismatchError struct {
	A, B      int
	RiskGroup string
}

func (e *EventIdMismatchError) Error() string {
	return fmt.Sprintf("event id mismatch: %d != %d (risk group %s)", e.A, e.B, e.RiskGroup)
}

// NoncatSlotOverflowError reports that no free slot remained in the
// thousand-block used to reassign a colliding Noncat-<mfid> synthetic
// event.
type NoncatSlotOverflowError struct {
	SeqID int
}

func (e *NoncatSlotOverflowError) Error() string {
	return fmt.Sprintf("noncat slot overflow at sequence id %d", e.SeqID)
}

// IterCountMismatchError reports that two non-empty Simulations with
// different NumIter values were combined.
type IterCountMismatchError struct {
	Self, Other int
}

func (e *IterCountMismatchError) Error() string {
	return fmt.Sprintf("iteration count mismatch: %d != %d", e.Self, e.Other)
}
