package query

import "fmt"

// ParseError reports a statement the parser could not understand.
type ParseError struct {
	msg string
}

func parseErrorf(format string, args ...any) error {
	return &ParseError{msg: fmt.Sprintf(format, args...)}
}

func (e *ParseError) Error() string {
	return "parse error: " + e.msg
}

// SchemaError reports a statement that parsed but does not fit the schema:
// unknown tables or columns, type mismatches, or predicates the partitioning
// scheme cannot serve.
type SchemaError struct {
	msg string
}

func schemaErrorf(format string, args ...any) error {
	return &SchemaError{msg: fmt.Sprintf(format, args...)}
}

func (e *SchemaError) Error() string {
	return "schema error: " + e.msg
}
