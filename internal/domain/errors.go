package domain

import "fmt"

// MissingInputError reports an absent archive or dataset file. The job
// aborts before writing anything when it sees one.
type MissingInputError struct {
	Path string
	What string // "archive", "dataset", "model", ...
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.What, e.Path)
}

// SchemaMismatchError reports a CSV row that does not fit the positional
// transaction layout.
type SchemaMismatchError struct {
	Path   string
	Line   int
	Column int // -1 when the whole row is wrong
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	if e.Column < 0 {
		return fmt.Sprintf("%s:%d: schema mismatch: %s", e.Path, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s:%d: schema mismatch in column %d: %s", e.Path, e.Line, e.Column, e.Reason)
}

// EmptyDatasetError reports a dataset with zero rows.
type EmptyDatasetError struct {
	Name string
}

func (e *EmptyDatasetError) Error() string {
	return fmt.Sprintf("%s dataset is empty", e.Name)
}

// PersistenceError reports a failed artifact write or read.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
