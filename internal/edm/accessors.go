package edm

import (
	"slices"
)

// Schemas returns the validated schemas backing the model
func (m *Model) Schemas() []*Schema {
	return slices.Clone(m.schemas)
}

// EntityType looks up an entity type by qualified name, alias-qualified name,
// or bare name when the bare name is unique across the model
func (m *Model) EntityType(name string) (*EntityType, bool) {
	return m.lookupEntityType(name)
}

func (m *Model) lookupEntityType(name string) (*EntityType, bool) {
	if et, ok := m.entityTypes[name]; ok {
		return et, true
	}
	ns, bare := splitQualified(name)
	if ns == "" {
		if candidates := m.bareTypes[bare]; len(candidates) == 1 {
			return candidates[0], true
		}
		return nil, false
	}
	if target, ok := m.aliases[ns]; ok {
		et, ok := m.entityTypes[qualify(target, bare)]
		return et, ok
	}
	return nil, false
}

// ComplexType looks up a complex type by qualified or alias-qualified name
func (m *Model) ComplexType(name string) (*ComplexType, bool) {
	if ct, ok := m.complexTypes[name]; ok {
		return ct, true
	}
	ns, bare := splitQualified(name)
	if target, ok := m.aliases[ns]; ok {
		ct, ok := m.complexTypes[qualify(target, bare)]
		return ct, ok
	}
	return nil, false
}

// EnumType looks up an enum type by qualified or alias-qualified name
func (m *Model) EnumType(name string) (*EnumType, bool) {
	if en, ok := m.enumTypes[name]; ok {
		return en, true
	}
	ns, bare := splitQualified(name)
	if target, ok := m.aliases[ns]; ok {
		en, ok := m.enumTypes[qualify(target, bare)]
		return en, ok
	}
	return nil, false
}

// Association looks up an association by qualified or alias-qualified name
func (m *Model) Association(name string) (*Association, bool) {
	if a, ok := m.associations[name]; ok {
		return a, true
	}
	ns, bare := splitQualified(name)
	if target, ok := m.aliases[ns]; ok {
		a, ok := m.associations[qualify(target, bare)]
		return a, ok
	}
	return nil, false
}

// EntityContainers returns all containers, the default container first
func (m *Model) EntityContainers() []*EntityContainer {
	return slices.Clone(m.containers)
}

// DefaultContainer returns the container marked as default, or the first one
func (m *Model) DefaultContainer() (*EntityContainer, bool) {
	if len(m.containers) == 0 {
		return nil, false
	}
	return m.containers[0], true
}

// EntitySets returns every entity set in container order
func (m *Model) EntitySets() []EntitySetBinding {
	return slices.Clone(m.sets)
}

// EntitySetsByName returns the sets whose name, or Container.Name, matches exactly
func (m *Model) EntitySetsByName(name string) []EntitySetBinding {
	return m.bindings(m.setsByName[name])
}

// EntitySetsByKey returns the sets whose homogenized name equals key
func (m *Model) EntitySetsByKey(key string) []EntitySetBinding {
	return m.bindings(m.setsByKey[key])
}

func (m *Model) bindings(indexes []int) []EntitySetBinding {
	if len(indexes) == 0 {
		return nil
	}
	out := make([]EntitySetBinding, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, m.sets[i])
	}
	return out
}

// BaseType returns the direct base type of et
func (m *Model) BaseType(et *EntityType) (*EntityType, bool) {
	base, ok := m.bases[et]
	return base, ok
}

// DerivedTypes returns the types that directly derive from et
func (m *Model) DerivedTypes(et *EntityType) []*EntityType {
	return slices.Clone(m.derived[et])
}

// IsAssignableTo returns true if et is base or derives from it
func (m *Model) IsAssignableTo(et, base *EntityType) bool {
	for cur, ok := et, true; ok; cur, ok = m.bases[cur] {
		if cur == base {
			return true
		}
	}
	return false
}

// StructuralProperties returns own and inherited properties in base-to-derived order
func (m *Model) StructuralProperties(et *EntityType) []*Property {
	return slices.Clone(m.structural[et])
}

// ComplexProperties returns own and inherited properties of a complex type
func (m *Model) ComplexProperties(ct *ComplexType) []*Property {
	return slices.Clone(m.complexProps[ct])
}

// NavigationProperties returns own and inherited navigation properties in base-to-derived order
func (m *Model) NavigationProperties(et *EntityType) []*NavigationProperty {
	return slices.Clone(m.navigation[et])
}

// KeyNames returns the effective key of et, inherited from the root type if necessary
func (m *Model) KeyNames(et *EntityType) []string {
	return slices.Clone(m.keys[et])
}

// HasConcurrencyToken returns true if any own or inherited property is a concurrency token
func (m *Model) HasConcurrencyToken(et *EntityType) bool {
	return m.concurrency[et]
}

// NavigationTarget returns the association end on the "to" side of nav
func (m *Model) NavigationTarget(nav *NavigationProperty) (AssociationEnd, bool) {
	end, ok := m.targets[nav]
	return end, ok
}

// NavigationPropertiesByKey returns the navigation properties of et whose homogenized name equals key
func (m *Model) NavigationPropertiesByKey(et *EntityType, key string) []*NavigationProperty {
	return slices.Clone(m.navByKey[et][key])
}

// PropertiesByKey returns the structural properties of et whose homogenized name equals key
func (m *Model) PropertiesByKey(et *EntityType, key string) []*Property {
	return slices.Clone(m.propsByKey[et][key])
}

// FunctionImports returns all function imports, default container first
func (m *Model) FunctionImports() []*FunctionImport {
	return slices.Clone(m.functions)
}

// FunctionImportsByKey returns the function imports whose homogenized name equals key
func (m *Model) FunctionImportsByKey(key string) []*FunctionImport {
	return slices.Clone(m.functionsByKey[key])
}
