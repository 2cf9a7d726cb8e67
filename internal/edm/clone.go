package edm

import "slices"

// cloneSchema deep-copies a parser-produced schema so that later changes by the
// caller cannot leak into a Model.
func cloneSchema(s *Schema) *Schema {
	out := &Schema{
		Namespace: s.Namespace,
		Alias:     s.Alias,
	}

	for _, et := range s.EntityTypes {
		c := *et
		c.Key = slices.Clone(et.Key)
		c.Properties = cloneProperties(et.Properties)
		c.NavigationProperties = make([]*NavigationProperty, 0, len(et.NavigationProperties))
		for _, n := range et.NavigationProperties {
			nc := *n
			c.NavigationProperties = append(c.NavigationProperties, &nc)
		}
		out.EntityTypes = append(out.EntityTypes, &c)
	}

	for _, ct := range s.ComplexTypes {
		c := *ct
		c.Properties = cloneProperties(ct.Properties)
		out.ComplexTypes = append(out.ComplexTypes, &c)
	}

	for _, en := range s.EnumTypes {
		c := *en
		c.Members = slices.Clone(en.Members)
		out.EnumTypes = append(out.EnumTypes, &c)
	}

	for _, a := range s.Associations {
		c := *a
		if a.ReferentialConstraint != nil {
			rc := *a.ReferentialConstraint
			rc.Principal.Properties = slices.Clone(rc.Principal.Properties)
			rc.Dependent.Properties = slices.Clone(rc.Dependent.Properties)
			c.ReferentialConstraint = &rc
		}
		out.Associations = append(out.Associations, &c)
	}

	for _, container := range s.EntityContainers {
		c := *container
		c.EntitySets = make([]*EntitySet, 0, len(container.EntitySets))
		for _, set := range container.EntitySets {
			sc := *set
			c.EntitySets = append(c.EntitySets, &sc)
		}
		c.AssociationSets = make([]*AssociationSet, 0, len(container.AssociationSets))
		for _, as := range container.AssociationSets {
			ac := *as
			c.AssociationSets = append(c.AssociationSets, &ac)
		}
		c.FunctionImports = make([]*FunctionImport, 0, len(container.FunctionImports))
		for _, fn := range container.FunctionImports {
			fc := *fn
			if fn.ReturnType != nil {
				rt := *fn.ReturnType
				fc.ReturnType = &rt
			}
			fc.Parameters = slices.Clone(fn.Parameters)
			c.FunctionImports = append(c.FunctionImports, &fc)
		}
		out.EntityContainers = append(out.EntityContainers, &c)
	}

	return out
}

func cloneProperties(props []*Property) []*Property {
	out := make([]*Property, 0, len(props))
	for _, p := range props {
		c := *p
		out = append(out, &c)
	}
	return out
}
