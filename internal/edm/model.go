package edm

import (
	"fmt"
	"slices"
	"strings"
)

// EntitySetBinding is an entity set together with its container and resolved type
type EntitySetBinding struct {
	Container *EntityContainer
	Set       *EntitySet
	Type      *EntityType
}

// Model is a validated, immutable view over one or more schemas.
// It is built once per service connection and may be shared by any number of
// goroutines; nothing reachable from a Model may be modified after NewModel returns.
type Model struct {
	schemas []*Schema

	entityTypes  map[string]*EntityType
	complexTypes map[string]*ComplexType
	enumTypes    map[string]*EnumType
	associations map[string]*Association
	aliases      map[string]string // alias -> namespace
	bareTypes    map[string][]*EntityType
	containers   []*EntityContainer

	// Inheritance, flattened once.
	bases          map[*EntityType]*EntityType
	derived        map[*EntityType][]*EntityType
	complexBases   map[*ComplexType]*ComplexType
	structural     map[*EntityType][]*Property
	navigation     map[*EntityType][]*NavigationProperty
	complexProps   map[*ComplexType][]*Property
	keys           map[*EntityType][]string
	targets        map[*NavigationProperty]AssociationEnd
	concurrency    map[*EntityType]bool
	typeOwners     map[*EntityType]*Schema
	complexOwners  map[*ComplexType]*Schema
	functions      []*FunctionImport
	sets           []EntitySetBinding
	setsByName     map[string][]int
	setsByKey      map[string][]int
	navByKey       map[*EntityType]map[string][]*NavigationProperty
	propsByKey     map[*EntityType]map[string][]*Property
	functionsByKey map[string][]*FunctionImport
}

// NewModel validates the given schemas and builds an immutable Model from a deep copy
// of them. Any invariant violation yields a *SchemaValidationError.
func NewModel(schemas ...*Schema) (*Model, error) {
	m := &Model{
		entityTypes:    make(map[string]*EntityType),
		complexTypes:   make(map[string]*ComplexType),
		enumTypes:      make(map[string]*EnumType),
		associations:   make(map[string]*Association),
		aliases:        make(map[string]string),
		bareTypes:      make(map[string][]*EntityType),
		bases:          make(map[*EntityType]*EntityType),
		derived:        make(map[*EntityType][]*EntityType),
		complexBases:   make(map[*ComplexType]*ComplexType),
		structural:     make(map[*EntityType][]*Property),
		navigation:     make(map[*EntityType][]*NavigationProperty),
		complexProps:   make(map[*ComplexType][]*Property),
		keys:           make(map[*EntityType][]string),
		targets:        make(map[*NavigationProperty]AssociationEnd),
		concurrency:    make(map[*EntityType]bool),
		typeOwners:     make(map[*EntityType]*Schema),
		complexOwners:  make(map[*ComplexType]*Schema),
		setsByName:     make(map[string][]int),
		setsByKey:      make(map[string][]int),
		navByKey:       make(map[*EntityType]map[string][]*NavigationProperty),
		propsByKey:     make(map[*EntityType]map[string][]*Property),
		functionsByKey: make(map[string][]*FunctionImport),
	}

	for _, s := range schemas {
		if s == nil {
			continue
		}
		m.schemas = append(m.schemas, cloneSchema(s))
	}

	steps := []func() error{
		m.registerTypes,
		m.evaluateEnums,
		m.resolveBaseTypes,
		m.flattenTypes,
		m.validateKeys,
		m.validateAssociations,
		m.resolveNavigationProperties,
		m.registerContainers,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	m.buildIndexes()
	return m, nil
}

// registerTypes indexes every named type and enforces per-schema name uniqueness
func (m *Model) registerTypes() error {
	for _, s := range m.schemas {
		if s.Alias != "" {
			if ns, exists := m.aliases[s.Alias]; exists && ns != s.Namespace {
				return &SchemaValidationError{
					Schema:  s.Namespace,
					Message: fmt.Sprintf("alias %s already refers to namespace %s", s.Alias, ns),
				}
			}
			m.aliases[s.Alias] = s.Namespace
		}

		names := make(map[string]string)
		claim := func(element, name string) error {
			if name == "" {
				return &SchemaValidationError{Schema: s.Namespace, Element: element, Message: "missing name"}
			}
			if other, exists := names[name]; exists {
				return &SchemaValidationError{
					Schema:  s.Namespace,
					Element: element,
					Name:    name,
					Message: fmt.Sprintf("name already declared by %s", other),
				}
			}
			if _, exists := m.lookupQualified(qualify(s.Namespace, name)); exists {
				return &SchemaValidationError{
					Schema:  s.Namespace,
					Element: element,
					Name:    name,
					Message: "name already declared in another schema with the same namespace",
				}
			}
			names[name] = element
			return nil
		}

		for _, et := range s.EntityTypes {
			et.Namespace = s.Namespace
			if err := claim("entity type", et.Name); err != nil {
				return err
			}
			m.entityTypes[et.QualifiedName()] = et
			m.bareTypes[et.Name] = append(m.bareTypes[et.Name], et)
			m.typeOwners[et] = s
		}
		for _, ct := range s.ComplexTypes {
			ct.Namespace = s.Namespace
			if err := claim("complex type", ct.Name); err != nil {
				return err
			}
			m.complexTypes[ct.QualifiedName()] = ct
			m.complexOwners[ct] = s
		}
		for _, en := range s.EnumTypes {
			en.Namespace = s.Namespace
			if err := claim("enum type", en.Name); err != nil {
				return err
			}
			m.enumTypes[en.QualifiedName()] = en
		}

		assocNames := make(map[string]bool)
		for _, a := range s.Associations {
			a.Namespace = s.Namespace
			if a.Name == "" || assocNames[a.Name] {
				return &SchemaValidationError{
					Schema:  s.Namespace,
					Element: "association",
					Name:    a.Name,
					Message: "association name missing or declared twice",
				}
			}
			assocNames[a.Name] = true
			m.associations[a.QualifiedName()] = a
		}
	}
	return nil
}

func (m *Model) lookupQualified(name string) (any, bool) {
	if t, ok := m.entityTypes[name]; ok {
		return t, true
	}
	if t, ok := m.complexTypes[name]; ok {
		return t, true
	}
	if t, ok := m.enumTypes[name]; ok {
		return t, true
	}
	return nil, false
}

func (m *Model) evaluateEnums() error {
	for _, s := range m.schemas {
		for _, en := range s.EnumTypes {
			if err := evaluateMembers(en); err != nil {
				return &SchemaValidationError{
					Schema:  s.Namespace,
					Element: "enum type",
					Name:    en.Name,
					Message: err.Error(),
				}
			}
		}
	}
	return nil
}

// localName resolves a type reference that must live in schema s.
// It accepts bare names and names qualified by the namespace or alias of s.
func localName(s *Schema, ref string) (string, bool) {
	ns, name := splitQualified(ref)
	switch ns {
	case "", s.Namespace:
		return name, true
	}
	if s.Alias != "" && ns == s.Alias {
		return name, true
	}
	return "", false
}

func (m *Model) resolveBaseTypes() error {
	for _, s := range m.schemas {
		for _, et := range s.EntityTypes {
			if et.BaseType == "" {
				continue
			}
			name, ok := localName(s, et.BaseType)
			base := m.entityTypes[qualify(s.Namespace, name)]
			if !ok || base == nil {
				return &SchemaValidationError{
					Schema:  s.Namespace,
					Element: "entity type",
					Name:    et.Name,
					Message: fmt.Sprintf("base type %s does not resolve within the schema", et.BaseType),
				}
			}
			m.bases[et] = base
		}
		for _, ct := range s.ComplexTypes {
			if ct.BaseType == "" {
				continue
			}
			name, ok := localName(s, ct.BaseType)
			base := m.complexTypes[qualify(s.Namespace, name)]
			if !ok || base == nil {
				return &SchemaValidationError{
					Schema:  s.Namespace,
					Element: "complex type",
					Name:    ct.Name,
					Message: fmt.Sprintf("base type %s does not resolve within the schema", ct.BaseType),
				}
			}
			m.complexBases[ct] = base
		}

		for _, et := range s.EntityTypes {
			if cycle := walkChain(et, m.bases, func(t *EntityType) string { return t.Name }); cycle != nil {
				return &SchemaValidationError{
					Schema:  s.Namespace,
					Element: "entity type",
					Name:    et.Name,
					Message: "base type chain is cyclic: " + strings.Join(cycle, " -> "),
				}
			}
		}
		for _, ct := range s.ComplexTypes {
			if cycle := walkChain(ct, m.complexBases, func(t *ComplexType) string { return t.Name }); cycle != nil {
				return &SchemaValidationError{
					Schema:  s.Namespace,
					Element: "complex type",
					Name:    ct.Name,
					Message: "base type chain is cyclic: " + strings.Join(cycle, " -> "),
				}
			}
		}
	}

	for derived, base := range m.bases {
		m.derived[base] = append(m.derived[base], derived)
	}
	for base := range m.derived {
		slices.SortFunc(m.derived[base], func(a, b *EntityType) int {
			return strings.Compare(a.QualifiedName(), b.QualifiedName())
		})
	}
	return nil
}

// walkChain follows base links from start with a visited set and returns the
// offending path if the chain revisits a node, or nil if it terminates.
func walkChain[T comparable](start T, bases map[T]T, name func(T) string) []string {
	visited := map[T]bool{start: true}
	path := []string{name(start)}
	cur, ok := bases[start]
	for ok {
		path = append(path, name(cur))
		if visited[cur] {
			return path
		}
		visited[cur] = true
		cur, ok = bases[cur]
	}
	return nil
}

func (m *Model) flattenTypes() error {
	for _, s := range m.schemas {
		for _, et := range s.EntityTypes {
			if _, err := m.flattenEntity(s, et); err != nil {
				return err
			}
		}
		for _, ct := range s.ComplexTypes {
			if _, err := m.flattenComplex(s, ct); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Model) flattenEntity(s *Schema, et *EntityType) ([]*Property, error) {
	if props, done := m.structural[et]; done {
		return props, nil
	}

	var inherited []*Property
	var inheritedNav []*NavigationProperty
	if base, ok := m.bases[et]; ok {
		var err error
		inherited, err = m.flattenEntity(m.typeOwners[base], base)
		if err != nil {
			return nil, err
		}
		inheritedNav = m.navigation[base]
	}

	members := make(map[string]bool, len(inherited)+len(inheritedNav))
	for _, p := range inherited {
		members[p.Name] = true
	}
	for _, n := range inheritedNav {
		members[n.Name] = true
	}

	props := slices.Clone(inherited)
	for _, p := range et.Properties {
		if p.Name == "" || members[p.Name] {
			return nil, &SchemaValidationError{
				Schema:  s.Namespace,
				Element: "entity type",
				Name:    et.Name,
				Message: fmt.Sprintf("property %q is empty or declared more than once", p.Name),
			}
		}
		members[p.Name] = true
		m.classify(&p.Type, s)
		props = append(props, p)
	}

	nav := slices.Clone(inheritedNav)
	for _, n := range et.NavigationProperties {
		if n.Name == "" || members[n.Name] {
			return nil, &SchemaValidationError{
				Schema:  s.Namespace,
				Element: "entity type",
				Name:    et.Name,
				Message: fmt.Sprintf("navigation property %q is empty or declared more than once", n.Name),
			}
		}
		members[n.Name] = true
		nav = append(nav, n)
	}

	m.structural[et] = props
	m.navigation[et] = nav
	for _, p := range props {
		if p.IsConcurrencyToken() {
			m.concurrency[et] = true
			break
		}
	}
	return props, nil
}

func (m *Model) flattenComplex(s *Schema, ct *ComplexType) ([]*Property, error) {
	if props, done := m.complexProps[ct]; done {
		return props, nil
	}

	var inherited []*Property
	if base, ok := m.complexBases[ct]; ok {
		var err error
		inherited, err = m.flattenComplex(m.complexOwners[base], base)
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool, len(inherited))
	for _, p := range inherited {
		seen[p.Name] = true
	}
	props := slices.Clone(inherited)
	for _, p := range ct.Properties {
		if p.Name == "" || seen[p.Name] {
			return nil, &SchemaValidationError{
				Schema:  s.Namespace,
				Element: "complex type",
				Name:    ct.Name,
				Message: fmt.Sprintf("property %q is empty or declared more than once", p.Name),
			}
		}
		seen[p.Name] = true
		m.classify(&p.Type, s)
		props = append(props, p)
	}
	m.complexProps[ct] = props
	return props, nil
}

// classify fills in the kind of a non-primitive type reference when it resolves.
// References to types outside the model keep KindUnknown.
func (m *Model) classify(t *PropertyType, s *Schema) {
	if t.Kind == KindPrimitive {
		return
	}
	name := t.Name
	ns, bare := splitQualified(name)
	if ns == "" {
		name = qualify(s.Namespace, bare)
	} else if target, ok := m.aliases[ns]; ok {
		name = qualify(target, bare)
	}
	switch {
	case m.complexTypes[name] != nil:
		t.Kind = KindComplex
	case m.enumTypes[name] != nil:
		t.Kind = KindEnum
	case m.entityTypes[name] != nil:
		t.Kind = KindEntity
	default:
		return
	}
	t.Name = name
}

func (m *Model) validateKeys() error {
	for _, s := range m.schemas {
		for _, et := range s.EntityTypes {
			if err := m.validateKey(s, et); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Model) validateKey(s *Schema, et *EntityType) error {
	base, derived := m.bases[et]
	if derived && len(et.Key) > 0 {
		return &SchemaValidationError{
			Schema:  s.Namespace,
			Element: "entity type",
			Name:    et.Name,
			Message: "derived entity type cannot declare its own key",
		}
	}

	if !derived {
		if len(et.Key) == 0 && !et.Abstract {
			return &SchemaValidationError{
				Schema:  s.Namespace,
				Element: "entity type",
				Name:    et.Name,
				Message: "entity type has no key",
				Hint:    "declare a Key element or mark the type abstract",
			}
		}
		known := make(map[string]bool)
		for _, p := range m.structural[et] {
			known[p.Name] = true
		}
		for _, name := range et.Key {
			if !known[name] {
				return &SchemaValidationError{
					Schema:  s.Namespace,
					Element: "entity type",
					Name:    et.Name,
					Message: fmt.Sprintf("key property %s is not declared", name),
				}
			}
		}
		m.keys[et] = slices.Clone(et.Key)
		return nil
	}

	// Derived types inherit the root key.
	root := base
	for {
		next, ok := m.bases[root]
		if !ok {
			break
		}
		root = next
	}
	m.keys[et] = slices.Clone(root.Key)
	return nil
}

func (m *Model) validateAssociations() error {
	for _, s := range m.schemas {
		for _, a := range s.Associations {
			for i, end := range a.Ends {
				if end.Role == "" {
					return &SchemaValidationError{
						Schema:  s.Namespace,
						Element: "association",
						Name:    a.Name,
						Message: fmt.Sprintf("end %d has no role", i+1),
					}
				}
				et, ok := m.resolveEntityRef(s, end.Type)
				if !ok {
					return &SchemaValidationError{
						Schema:  s.Namespace,
						Element: "association",
						Name:    a.Name,
						Message: fmt.Sprintf("end %s references unknown entity type %s", end.Role, end.Type),
					}
				}
				a.Ends[i].Type = et.QualifiedName()
			}
			if a.Ends[0].Role == a.Ends[1].Role {
				return &SchemaValidationError{
					Schema:  s.Namespace,
					Element: "association",
					Name:    a.Name,
					Message: fmt.Sprintf("both ends use role %s", a.Ends[0].Role),
				}
			}

			rc := a.ReferentialConstraint
			if rc == nil {
				continue
			}
			if len(rc.Principal.Properties) != len(rc.Dependent.Properties) {
				return &SchemaValidationError{
					Schema:  s.Namespace,
					Element: "association",
					Name:    a.Name,
					Message: fmt.Sprintf("referential constraint has %d principal and %d dependent properties",
						len(rc.Principal.Properties), len(rc.Dependent.Properties)),
				}
			}
			for _, role := range []string{rc.Principal.Role, rc.Dependent.Role} {
				if _, ok := a.End(role); !ok {
					return &SchemaValidationError{
						Schema:  s.Namespace,
						Element: "association",
						Name:    a.Name,
						Message: fmt.Sprintf("referential constraint names unknown role %s", role),
					}
				}
			}
		}
	}
	return nil
}

// resolveEntityRef resolves an entity type reference made from schema s
func (m *Model) resolveEntityRef(s *Schema, ref string) (*EntityType, bool) {
	if et, ok := m.lookupEntityType(ref); ok {
		return et, true
	}
	if name, ok := localName(s, ref); ok {
		et, ok := m.entityTypes[qualify(s.Namespace, name)]
		return et, ok
	}
	return nil, false
}

func (m *Model) resolveAssociationRef(s *Schema, ref string) (*Association, bool) {
	if a, ok := m.associations[ref]; ok {
		return a, true
	}
	ns, name := splitQualified(ref)
	if target, ok := m.aliases[ns]; ok {
		a, ok := m.associations[qualify(target, name)]
		return a, ok
	}
	if ns == "" {
		a, ok := m.associations[qualify(s.Namespace, name)]
		return a, ok
	}
	return nil, false
}

func (m *Model) resolveNavigationProperties() error {
	for _, s := range m.schemas {
		for _, et := range s.EntityTypes {
			for _, nav := range et.NavigationProperties {
				a, ok := m.resolveAssociationRef(s, nav.Relationship)
				if !ok {
					return &SchemaValidationError{
						Schema:  s.Namespace,
						Element: "entity type",
						Name:    et.Name,
						Message: fmt.Sprintf("navigation property %s references unknown association %s",
							nav.Name, nav.Relationship),
					}
				}

				var to AssociationEnd
				pairings := 0
				for i, from := range a.Ends {
					other := a.Ends[1-i]
					if from.Role == nav.FromRole && other.Role == nav.ToRole {
						pairings++
						to = other
					}
				}
				if pairings != 1 {
					return &SchemaValidationError{
						Schema:  s.Namespace,
						Element: "entity type",
						Name:    et.Name,
						Message: fmt.Sprintf("navigation property %s roles %s -> %s do not match association %s",
							nav.Name, nav.FromRole, nav.ToRole, a.QualifiedName()),
					}
				}
				nav.Relationship = a.QualifiedName()
				m.targets[nav] = to
			}
		}
	}
	return nil
}

func (m *Model) registerContainers() error {
	// Default container first so exact and loose lookups prefer it.
	var ordered []*EntityContainer
	for _, s := range m.schemas {
		for _, c := range s.EntityContainers {
			c.Namespace = s.Namespace
			if c.IsDefault {
				ordered = append([]*EntityContainer{c}, ordered...)
			} else {
				ordered = append(ordered, c)
			}
		}
	}

	for _, c := range ordered {
		s := m.schemaFor(c.Namespace)
		names := make(map[string]bool, len(c.EntitySets))
		for _, set := range c.EntitySets {
			if set.Name == "" || names[set.Name] {
				return &SchemaValidationError{
					Schema:  c.Namespace,
					Element: "entity container",
					Name:    c.Name,
					Message: fmt.Sprintf("entity set %q is empty or declared more than once", set.Name),
				}
			}
			names[set.Name] = true

			et, ok := m.resolveEntityRef(s, set.EntityType)
			if !ok {
				return &SchemaValidationError{
					Schema:  c.Namespace,
					Element: "entity set",
					Name:    set.Name,
					Message: fmt.Sprintf("unknown entity type %s", set.EntityType),
				}
			}
			set.EntityType = et.QualifiedName()
			m.sets = append(m.sets, EntitySetBinding{Container: c, Set: set, Type: et})
		}

		for _, as := range c.AssociationSets {
			a, ok := m.resolveAssociationRef(s, as.Association)
			if !ok {
				return &SchemaValidationError{
					Schema:  c.Namespace,
					Element: "association set",
					Name:    as.Name,
					Message: fmt.Sprintf("unknown association %s", as.Association),
				}
			}
			as.Association = a.QualifiedName()
			for _, end := range as.Ends {
				if _, ok := a.End(end.Role); !ok {
					return &SchemaValidationError{
						Schema:  c.Namespace,
						Element: "association set",
						Name:    as.Name,
						Message: fmt.Sprintf("role %s is not an end of %s", end.Role, a.QualifiedName()),
					}
				}
				if !names[end.EntitySet] {
					return &SchemaValidationError{
						Schema:  c.Namespace,
						Element: "association set",
						Name:    as.Name,
						Message: fmt.Sprintf("end %s names unknown entity set %s", end.Role, end.EntitySet),
					}
				}
			}
		}

		for _, fn := range c.FunctionImports {
			if fn.EntitySet != "" && !names[fn.EntitySet] {
				return &SchemaValidationError{
					Schema:  c.Namespace,
					Element: "function import",
					Name:    fn.Name,
					Message: fmt.Sprintf("unknown entity set %s", fn.EntitySet),
				}
			}
			if fn.ReturnType != nil {
				m.classify(fn.ReturnType, s)
			}
			for i := range fn.Parameters {
				m.classify(&fn.Parameters[i].Type, s)
			}
			m.functions = append(m.functions, fn)
		}
	}

	m.containers = ordered
	return nil
}

func (m *Model) schemaFor(namespace string) *Schema {
	for _, s := range m.schemas {
		if s.Namespace == namespace {
			return s
		}
	}
	return &Schema{Namespace: namespace}
}

func (m *Model) buildIndexes() {
	for i, b := range m.sets {
		m.setsByName[b.Set.Name] = append(m.setsByName[b.Set.Name], i)
		qualified := b.Container.Name + "." + b.Set.Name
		m.setsByName[qualified] = append(m.setsByName[qualified], i)

		key := Homogenize(b.Set.Name)
		m.setsByKey[key] = append(m.setsByKey[key], i)
	}

	for et, navs := range m.navigation {
		idx := make(map[string][]*NavigationProperty, len(navs))
		for _, n := range navs {
			key := Homogenize(n.Name)
			idx[key] = append(idx[key], n)
		}
		m.navByKey[et] = idx
	}

	for et, props := range m.structural {
		idx := make(map[string][]*Property, len(props))
		for _, p := range props {
			key := Homogenize(p.Name)
			idx[key] = append(idx[key], p)
		}
		m.propsByKey[et] = idx
	}

	for _, fn := range m.functions {
		key := Homogenize(fn.Name)
		m.functionsByKey[key] = append(m.functionsByKey[key], fn)
	}
}
