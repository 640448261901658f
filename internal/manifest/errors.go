package manifest

import "fmt"

// ParseError reports upload tool output that is not a JSON object.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse upload output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError reports valid JSON that lacks a field the manifest needs.
// Index is the position in the created list, or -1 for document-level problems.
type SchemaError struct {
	Index int
	Field string
	Cause string
}

func (e *SchemaError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("upload output: %s: %s", e.Field, e.Cause)
	}
	return fmt.Sprintf("upload output: created[%d].%s: %s", e.Index, e.Field, e.Cause)
}

// WriteError reports a failure to persist the manifest file.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write manifest %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
