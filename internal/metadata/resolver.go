// Package metadata resolves loosely specified caller names against an immutable
// service model. Every lookup tries an exact match first and then a homogenized
// match (case-insensitive, underscores and whitespace ignored), so "Order_Details",
// "orderDetails" and "OrderDetails" all address the same entity set.
package metadata

import (
	"strings"

	"github.com/conduit-lang/odata/internal/edm"
)

// Resolver answers read-only queries over one model.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	model *edm.Model
}

// NewResolver creates a resolver over the given model
func NewResolver(model *edm.Model) *Resolver {
	return &Resolver{model: model}
}

// Model returns the underlying model
func (r *Resolver) Model() *edm.Model {
	return r.model
}

// ResolveEntitySet resolves a collection name to its entity set and declared entity type
func (r *Resolver) ResolveEntitySet(name string) (*edm.EntitySet, *edm.EntityType, error) {
	b, err := r.resolveSet("resolve entity set", name, strings.Trim(strings.TrimSpace(name), "/"))
	if err != nil {
		return nil, nil, err
	}
	return b.Set, b.Type, nil
}

// ResolveConcreteEntitySet resolves a collection path that may carry a key
// predicate and type-cast segments, such as "Products(1)" or
// "Products/NorthwindModel.DiscontinuedProduct". The returned type is the
// most-derived type named by the path, or the set's declared type when the
// path has no type-cast segment.
func (r *Resolver) ResolveConcreteEntitySet(path string) (*edm.EntitySet, *edm.EntityType, error) {
	const op = "resolve concrete entity set"

	segments := strings.Split(strings.Trim(strings.TrimSpace(path), "/"), "/")
	b, err := r.resolveSet(op, path, stripKeyPredicate(segments[0]))
	if err != nil {
		return nil, nil, err
	}

	current := b.Type
	for _, segment := range segments[1:] {
		segment = stripKeyPredicate(segment)
		if segment == "" {
			continue
		}
		derived, ok := r.resolveDerivedType(current, segment)
		if !ok {
			return nil, nil, &ResolutionError{
				Op:          op,
				Name:        path,
				Kind:        ErrUnknownCollection,
				Suggestions: similarNames(segment, r.derivedTypeNames(current)),
			}
		}
		current = derived
	}

	return b.Set, current, nil
}

func (r *Resolver) resolveSet(op, original, name string) (edm.EntitySetBinding, error) {
	if exact := r.model.EntitySetsByName(name); len(exact) > 0 {
		return exact[0], nil
	}

	matches := r.model.EntitySetsByKey(edm.Homogenize(name))
	switch len(matches) {
	case 0:
		return edm.EntitySetBinding{}, &ResolutionError{
			Op:          op,
			Name:        original,
			Kind:        ErrUnknownCollection,
			Suggestions: similarNames(name, r.entitySetNames()),
		}
	case 1:
		return matches[0], nil
	default:
		candidates := make([]string, 0, len(matches))
		for _, m := range matches {
			candidates = append(candidates, m.Set.Name)
		}
		return edm.EntitySetBinding{}, &ResolutionError{
			Op:         op,
			Name:       original,
			Kind:       ErrAmbiguousCollection,
			Candidates: candidates,
		}
	}
}

// resolveDerivedType finds a type named by segment among base and its descendants.
// Qualified names must match exactly; bare names match exactly and then homogenized.
func (r *Resolver) resolveDerivedType(base *edm.EntityType, segment string) (*edm.EntityType, bool) {
	if et, ok := r.model.EntityType(segment); ok && r.model.IsAssignableTo(et, base) {
		return et, true
	}

	descendants := r.descendants(base)
	for _, et := range descendants {
		if et.Name == segment {
			return et, true
		}
	}

	var match *edm.EntityType
	key := edm.Homogenize(segment)
	for _, et := range descendants {
		if edm.Homogenize(et.Name) == key {
			if match != nil {
				return nil, false
			}
			match = et
		}
	}
	return match, match != nil
}

func (r *Resolver) descendants(base *edm.EntityType) []*edm.EntityType {
	out := []*edm.EntityType{base}
	for i := 0; i < len(out); i++ {
		out = append(out, r.model.DerivedTypes(out[i])...)
	}
	return out
}

// ListStructuralPropertyNames returns own and inherited property names, base first.
// Navigation properties are excluded.
func (r *Resolver) ListStructuralPropertyNames(et *edm.EntityType) []string {
	props := r.model.StructuralProperties(et)
	names := make([]string, 0, len(props))
	for _, p := range props {
		names = append(names, p.Name)
	}
	return names
}

// ResolvePropertyName returns the exact name of the structural property matching looseName
func (r *Resolver) ResolvePropertyName(et *edm.EntityType, looseName string) (string, error) {
	const op = "resolve property"

	props := r.model.StructuralProperties(et)
	names := make([]string, 0, len(props))
	for _, p := range props {
		if p.Name == looseName {
			return p.Name, nil
		}
		names = append(names, p.Name)
	}

	matches := r.model.PropertiesByKey(et, edm.Homogenize(looseName))
	switch len(matches) {
	case 0:
		return "", &ResolutionError{Op: op, Name: looseName, Kind: ErrUnknownProperty, Suggestions: similarNames(looseName, names)}
	case 1:
		return matches[0].Name, nil
	default:
		candidates := make([]string, 0, len(matches))
		for _, p := range matches {
			candidates = append(candidates, p.Name)
		}
		return "", &ResolutionError{Op: op, Name: looseName, Kind: ErrAmbiguousProperty, Candidates: candidates}
	}
}

// ResolveNavigationPropertyName returns the exact name of the navigation property matching looseName
func (r *Resolver) ResolveNavigationPropertyName(et *edm.EntityType, looseName string) (string, error) {
	nav, err := r.resolveNavigation(et, looseName)
	if err != nil {
		return "", err
	}
	return nav.Name, nil
}

func (r *Resolver) resolveNavigation(et *edm.EntityType, looseName string) (*edm.NavigationProperty, error) {
	const op = "resolve navigation property"

	navs := r.model.NavigationProperties(et)
	names := make([]string, 0, len(navs))
	for _, n := range navs {
		if n.Name == looseName {
			return n, nil
		}
		names = append(names, n.Name)
	}

	matches := r.model.NavigationPropertiesByKey(et, edm.Homogenize(looseName))
	switch len(matches) {
	case 0:
		return nil, &ResolutionError{
			Op:          op,
			Name:        looseName,
			Kind:        ErrUnknownNavigationProperty,
			Suggestions: similarNames(looseName, names),
		}
	case 1:
		return matches[0], nil
	default:
		candidates := make([]string, 0, len(matches))
		for _, n := range matches {
			candidates = append(candidates, n.Name)
		}
		return nil, &ResolutionError{
			Op:         op,
			Name:       looseName,
			Kind:       ErrAmbiguousNavigationProperty,
			Candidates: candidates,
		}
	}
}

// IsNavigationPropertyCollection returns true if the "to" end of the navigation
// property's association has multiplicity many
func (r *Resolver) IsNavigationPropertyCollection(et *edm.EntityType, navPropName string) (bool, error) {
	nav, err := r.resolveNavigation(et, navPropName)
	if err != nil {
		return false, err
	}
	end, ok := r.model.NavigationTarget(nav)
	if !ok {
		return false, &ResolutionError{Op: "resolve navigation target", Name: navPropName, Kind: ErrUnknownNavigationProperty}
	}
	return end.Multiplicity == edm.MultiplicityMany, nil
}

// RequiresConcurrencyCheck returns true if any own or inherited structural property
// is a concurrency token
func (r *Resolver) RequiresConcurrencyCheck(et *edm.EntityType) bool {
	return r.model.HasConcurrencyToken(et)
}

// KeyNames returns the effective key property names of et
func (r *Resolver) KeyNames(et *edm.EntityType) []string {
	return r.model.KeyNames(et)
}

// ResolveFunctionImport resolves a loose function import name
func (r *Resolver) ResolveFunctionImport(looseName string) (*edm.FunctionImport, error) {
	const op = "resolve function import"

	fns := r.model.FunctionImports()
	names := make([]string, 0, len(fns))
	for _, fn := range fns {
		if fn.Name == looseName {
			return fn, nil
		}
		names = append(names, fn.Name)
	}

	matches := r.model.FunctionImportsByKey(edm.Homogenize(looseName))
	switch len(matches) {
	case 0:
		return nil, &ResolutionError{Op: op, Name: looseName, Kind: ErrUnknownFunction, Suggestions: similarNames(looseName, names)}
	case 1:
		return matches[0], nil
	default:
		candidates := make([]string, 0, len(matches))
		for _, fn := range matches {
			candidates = append(candidates, fn.Name)
		}
		return nil, &ResolutionError{Op: op, Name: looseName, Kind: ErrAmbiguousFunction, Candidates: candidates}
	}
}

func (r *Resolver) entitySetNames() []string {
	sets := r.model.EntitySets()
	names := make([]string, 0, len(sets))
	for _, b := range sets {
		names = append(names, b.Set.Name)
	}
	return names
}

func (r *Resolver) derivedTypeNames(base *edm.EntityType) []string {
	var names []string
	for _, et := range r.descendants(base) {
		names = append(names, et.Name)
	}
	return names
}

// stripKeyPredicate removes a trailing key predicate: "Products(1)" -> "Products"
func stripKeyPredicate(segment string) string {
	if idx := strings.IndexByte(segment, '('); idx != -1 {
		return segment[:idx]
	}
	return segment
}
