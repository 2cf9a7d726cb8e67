// Package edm provides the in-memory representation of an OData service schema.
// It defines entity types, properties, associations, containers, enumerations and
// function imports, and validates them into an immutable Model that is shared by
// every request issued over a connection.
package edm

import (
	"fmt"
	"strings"
)

// TypeKind classifies the target of a property type reference
type TypeKind int

const (
	// KindUnknown is a reference that could not be classified
	KindUnknown TypeKind = iota
	// KindPrimitive is one of the Edm.* primitive types
	KindPrimitive
	// KindComplex references a ComplexType
	KindComplex
	// KindEnum references an EnumType
	KindEnum
	// KindEntity references an EntityType
	KindEntity
)

// String returns the string representation of the type kind
func (k TypeKind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindComplex:
		return "complex"
	case KindEnum:
		return "enum"
	case KindEntity:
		return "entity"
	default:
		return "unknown"
	}
}

// PrimitivePrefix is the namespace shared by all primitive types
const PrimitivePrefix = "Edm."

const collectionPrefix = "Collection("

// PropertyType describes the type of a property, parameter or return value
type PropertyType struct {
	Kind       TypeKind
	Name       string // qualified name, e.g. Edm.String or NorthwindModel.Address
	Collection bool
}

// ParsePropertyType parses a wire type string such as "Edm.Int32" or
// "Collection(NorthwindModel.Address)". The kind of non-primitive types is
// left unknown until the model classifies it.
func ParsePropertyType(s string) (PropertyType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PropertyType{}, fmt.Errorf("empty type name")
	}

	var t PropertyType
	if strings.HasPrefix(s, collectionPrefix) {
		if !strings.HasSuffix(s, ")") {
			return PropertyType{}, fmt.Errorf("malformed collection type: %s", s)
		}
		t.Collection = true
		s = strings.TrimSpace(s[len(collectionPrefix) : len(s)-1])
		if s == "" || strings.HasPrefix(s, collectionPrefix) {
			return PropertyType{}, fmt.Errorf("malformed collection type: Collection(%s)", s)
		}
	}

	t.Name = s
	if strings.HasPrefix(s, PrimitivePrefix) {
		t.Kind = KindPrimitive
	}
	return t, nil
}

// MustParsePropertyType is like ParsePropertyType but panics on error
func MustParsePropertyType(s string) PropertyType {
	t, err := ParsePropertyType(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the wire form of the type
func (t PropertyType) String() string {
	if t.Collection {
		return collectionPrefix + t.Name + ")"
	}
	return t.Name
}

// IsPrimitive returns true if the type is an Edm.* primitive (or a collection of one)
func (t PropertyType) IsPrimitive() bool {
	return t.Kind == KindPrimitive
}

// Multiplicity is the cardinality of one end of an association
type Multiplicity int

const (
	// MultiplicityZeroOrOne is "0..1"
	MultiplicityZeroOrOne Multiplicity = iota
	// MultiplicityOne is "1"
	MultiplicityOne
	// MultiplicityMany is "*"
	MultiplicityMany
)

// String returns the wire representation of the multiplicity
func (m Multiplicity) String() string {
	switch m {
	case MultiplicityZeroOrOne:
		return "0..1"
	case MultiplicityOne:
		return "1"
	case MultiplicityMany:
		return "*"
	default:
		return "unknown"
	}
}

// ParseMultiplicity converts a wire string to a Multiplicity
func ParseMultiplicity(s string) (Multiplicity, error) {
	switch strings.TrimSpace(s) {
	case "0..1":
		return MultiplicityZeroOrOne, nil
	case "1":
		return MultiplicityOne, nil
	case "*":
		return MultiplicityMany, nil
	default:
		return 0, fmt.Errorf("unknown multiplicity: %s", s)
	}
}

// ConcurrencyMode marks properties that take part in optimistic concurrency
type ConcurrencyMode int

const (
	ConcurrencyNone ConcurrencyMode = iota
	ConcurrencyFixed
)

// String returns the wire representation of the concurrency mode
func (c ConcurrencyMode) String() string {
	if c == ConcurrencyFixed {
		return "Fixed"
	}
	return "None"
}

// ParseConcurrencyMode converts a wire string to a ConcurrencyMode.
// An empty string means None.
func ParseConcurrencyMode(s string) (ConcurrencyMode, error) {
	switch strings.TrimSpace(s) {
	case "", "None":
		return ConcurrencyNone, nil
	case "Fixed":
		return ConcurrencyFixed, nil
	default:
		return 0, fmt.Errorf("unknown concurrency mode: %s", s)
	}
}

// Property is a structural property of an entity or complex type
type Property struct {
	Name            string
	Type            PropertyType
	Nullable        bool
	ConcurrencyMode ConcurrencyMode
}

// IsConcurrencyToken returns true if the property participates in optimistic concurrency checks
func (p *Property) IsConcurrencyToken() bool {
	return p.ConcurrencyMode == ConcurrencyFixed
}

// NavigationProperty links an entity type to the other end of an association
type NavigationProperty struct {
	Name         string
	Relationship string // qualified association name
	FromRole     string
	ToRole       string
}

// EntityType is a keyed, addressable structured type
type EntityType struct {
	Namespace            string
	Name                 string
	BaseType             string // qualified or bare name, empty for root types
	Abstract             bool
	OpenType             bool
	Key                  []string
	Properties           []*Property
	NavigationProperties []*NavigationProperty
}

// QualifiedName returns Namespace.Name
func (t *EntityType) QualifiedName() string {
	return qualify(t.Namespace, t.Name)
}

// ComplexType is an unkeyed structured type
type ComplexType struct {
	Namespace  string
	Name       string
	BaseType   string
	Properties []*Property
}

// QualifiedName returns Namespace.Name
func (t *ComplexType) QualifiedName() string {
	return qualify(t.Namespace, t.Name)
}

// EnumMember is a named value of an EnumType.
// Value holds the literal from the schema document (empty when implicit);
// EvaluatedValue is assigned by NewModel.
type EnumMember struct {
	Name           string
	Value          string
	EvaluatedValue int64
}

// EnumType is a named set of integral values
type EnumType struct {
	Namespace      string
	Name           string
	UnderlyingType string
	IsFlags        bool
	Members        []EnumMember
}

// QualifiedName returns Namespace.Name
func (t *EnumType) QualifiedName() string {
	return qualify(t.Namespace, t.Name)
}

// Member returns the member with the given name
func (t *EnumType) Member(name string) (EnumMember, bool) {
	for _, m := range t.Members {
		if m.Name == name {
			return m, true
		}
	}
	return EnumMember{}, false
}

// AssociationEnd is one side of an association
type AssociationEnd struct {
	Role         string
	Type         string // qualified entity type name
	Multiplicity Multiplicity
}

// ReferentialConstraintEnd lists the properties of one role in a constraint
type ReferentialConstraintEnd struct {
	Role       string
	Properties []string
}

// ReferentialConstraint ties dependent properties to principal properties
type ReferentialConstraint struct {
	Principal ReferentialConstraintEnd
	Dependent ReferentialConstraintEnd
}

// Association relates two entity types
type Association struct {
	Namespace             string
	Name                  string
	Ends                  [2]AssociationEnd
	ReferentialConstraint *ReferentialConstraint
}

// QualifiedName returns Namespace.Name
func (a *Association) QualifiedName() string {
	return qualify(a.Namespace, a.Name)
}

// End returns the end with the given role
func (a *Association) End(role string) (AssociationEnd, bool) {
	for _, end := range a.Ends {
		if end.Role == role {
			return end, true
		}
	}
	return AssociationEnd{}, false
}

// EntitySet is a named collection exposed by the service
type EntitySet struct {
	Name       string
	EntityType string
}

// AssociationSetEnd binds an association role to an entity set
type AssociationSetEnd struct {
	Role      string
	EntitySet string
}

// AssociationSet binds an association to concrete entity sets
type AssociationSet struct {
	Name        string
	Association string
	Ends        [2]AssociationSetEnd
}

// Parameter is a function import parameter
type Parameter struct {
	Name string
	Type PropertyType
	Mode string
}

// FunctionImport is a service operation exposed by a container
type FunctionImport struct {
	Name       string
	HTTPMethod string
	EntitySet  string
	ReturnType *PropertyType
	Parameters []Parameter
}

// EntityContainer groups the sets and operations exposed by a service
type EntityContainer struct {
	Namespace       string
	Name            string
	IsDefault       bool
	EntitySets      []*EntitySet
	AssociationSets []*AssociationSet
	FunctionImports []*FunctionImport
}

// EntitySet returns the set with the given exact name
func (c *EntityContainer) EntitySet(name string) (*EntitySet, bool) {
	for _, set := range c.EntitySets {
		if set.Name == name {
			return set, true
		}
	}
	return nil, false
}

// Schema is the content of one schema document namespace, as produced by a parser
type Schema struct {
	Namespace        string
	Alias            string
	EntityTypes      []*EntityType
	ComplexTypes     []*ComplexType
	EnumTypes        []*EnumType
	Associations     []*Association
	EntityContainers []*EntityContainer
}

func qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}

// splitQualified splits "A.B.Name" into ("A.B", "Name")
func splitQualified(name string) (string, string) {
	idx := strings.LastIndex(name, ".")
	if idx == -1 {
		return "", name
	}
	return name[:idx], name[idx+1:]
}
