package edm

import (
	"errors"
	"strings"
)

// ErrSchemaValidation is matched by every *SchemaValidationError
var ErrSchemaValidation = errors.New("schema validation failed")

// SchemaValidationError reports a schema invariant violation with the offending element
type SchemaValidationError struct {
	Schema  string // namespace of the schema being validated
	Element string // kind of element, e.g. "entity type", "association"
	Name    string // name of the offending element
	Message string
	Hint    string
}

// Error implements the error interface
func (e *SchemaValidationError) Error() string {
	var b strings.Builder

	b.WriteString("schema")
	if e.Schema != "" {
		b.WriteString(" ")
		b.WriteString(e.Schema)
	}
	b.WriteString(": ")

	if e.Element != "" {
		b.WriteString(e.Element)
		if e.Name != "" {
			b.WriteString(" ")
			b.WriteString(e.Name)
		}
		b.WriteString(": ")
	}

	b.WriteString(e.Message)

	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}

	return b.String()
}

// Is reports whether target is ErrSchemaValidation
func (e *SchemaValidationError) Is(target error) bool {
	return target == ErrSchemaValidation
}

// IsSchemaValidation returns true if err is a schema validation failure
func IsSchemaValidation(err error) bool {
	return errors.Is(err, ErrSchemaValidation)
}
