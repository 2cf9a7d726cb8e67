package metadata

import (
	"errors"
	"fmt"
	"strings"
)

// Resolution failure kinds
var (
	// ErrUnknownCollection is returned when no entity set matches a collection name
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrAmbiguousCollection is returned when several entity sets homogenize to the same name
	ErrAmbiguousCollection = errors.New("ambiguous collection")

	// ErrUnknownNavigationProperty is returned when no navigation property matches
	ErrUnknownNavigationProperty = errors.New("unknown navigation property")

	// ErrAmbiguousNavigationProperty is returned when several navigation properties homogenize to the same name
	ErrAmbiguousNavigationProperty = errors.New("ambiguous navigation property")

	// ErrUnknownProperty is returned when no structural property matches
	ErrUnknownProperty = errors.New("unknown property")

	// ErrAmbiguousProperty is returned when several structural properties homogenize to the same name
	ErrAmbiguousProperty = errors.New("ambiguous property")

	// ErrUnknownFunction is returned when no function import matches
	ErrUnknownFunction = errors.New("unknown function")

	// ErrAmbiguousFunction is returned when several function imports homogenize to the same name
	ErrAmbiguousFunction = errors.New("ambiguous function")
)

// ResolutionError describes a caller-supplied name that did not resolve to exactly one schema element
type ResolutionError struct {
	Op          string   // resolver operation, e.g. "resolve entity set"
	Name        string   // the name as supplied by the caller
	Kind        error    // one of the Err* sentinels above
	Candidates  []string // competing exact names for ambiguous matches
	Suggestions []string // close names for unknown matches
}

// Error implements the error interface
func (e *ResolutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q: %v", e.Op, e.Name, e.Kind)
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&b, " (matches %s)", strings.Join(e.Candidates, ", "))
	}
	if len(e.Suggestions) > 0 {
		fmt.Fprintf(&b, " (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}
	return b.String()
}

// Unwrap returns the failure kind
func (e *ResolutionError) Unwrap() error {
	return e.Kind
}

// IsUnknownCollection returns true if the error is ErrUnknownCollection
func IsUnknownCollection(err error) bool {
	return errors.Is(err, ErrUnknownCollection)
}

// IsAmbiguousCollection returns true if the error is ErrAmbiguousCollection
func IsAmbiguousCollection(err error) bool {
	return errors.Is(err, ErrAmbiguousCollection)
}

// IsUnknownNavigationProperty returns true if the error is ErrUnknownNavigationProperty
func IsUnknownNavigationProperty(err error) bool {
	return errors.Is(err, ErrUnknownNavigationProperty)
}

// IsAmbiguousNavigationProperty returns true if the error is ErrAmbiguousNavigationProperty
func IsAmbiguousNavigationProperty(err error) bool {
	return errors.Is(err, ErrAmbiguousNavigationProperty)
}

// IsResolutionError returns true for any name resolution failure
func IsResolutionError(err error) bool {
	var rerr *ResolutionError
	return errors.As(err, &rerr)
}
