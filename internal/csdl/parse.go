// Package csdl reads EDMX/CSDL metadata documents (OData v1-v3) into schema model values.
package csdl

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/conduit-lang/odata/internal/edm"
)

// ErrUnsupportedVersion is returned for EDMX documents newer than v3
var ErrUnsupportedVersion = errors.New("unsupported EDMX version")

// ParseError reports a malformed element
type ParseError struct {
	Element string
	Name    string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("csdl: %s: %v", e.Element, e.Err)
	}
	return fmt.Sprintf("csdl: %s %q: %v", e.Element, e.Name, e.Err)
}

// Unwrap returns the underlying error
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse decodes a metadata document into schemas. The schemas are not
// validated; pass them to edm.NewModel.
func Parse(r io.Reader) ([]*edm.Schema, error) {
	var doc edmx
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, &ParseError{Element: "document", Err: err}
	}
	if v := doc.Version; v != "" && v != "1.0" && v != "2.0" && v != "3.0" {
		return nil, &ParseError{Element: "document", Err: fmt.Errorf("%w: %s", ErrUnsupportedVersion, v)}
	}
	if len(doc.DataServices.Schema) == 0 {
		return nil, &ParseError{Element: "document", Err: errors.New("no schemas found")}
	}

	schemas := make([]*edm.Schema, 0, len(doc.DataServices.Schema))
	for _, s := range doc.DataServices.Schema {
		converted, err := convertSchema(s)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, converted)
	}
	return schemas, nil
}

// ParseModel decodes a metadata document and builds a validated model
func ParseModel(r io.Reader) (*edm.Model, error) {
	schemas, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return edm.NewModel(schemas...)
}

func convertSchema(s schema) (*edm.Schema, error) {
	out := &edm.Schema{Namespace: s.Namespace, Alias: s.Alias}

	for _, et := range s.EntityType {
		converted, err := convertEntityType(s.Namespace, et)
		if err != nil {
			return nil, err
		}
		out.EntityTypes = append(out.EntityTypes, converted)
	}

	for _, ct := range s.ComplexType {
		props, err := convertProperties("complex type", ct.Name, ct.Property)
		if err != nil {
			return nil, err
		}
		out.ComplexTypes = append(out.ComplexTypes, &edm.ComplexType{
			Namespace:  s.Namespace,
			Name:       ct.Name,
			BaseType:   ct.BaseType,
			Properties: props,
		})
	}

	for _, en := range s.EnumType {
		enum := &edm.EnumType{
			Namespace:      s.Namespace,
			Name:           en.Name,
			UnderlyingType: en.UnderlyingType,
			IsFlags:        en.IsFlags,
		}
		for _, m := range en.Member {
			enum.Members = append(enum.Members, edm.EnumMember{Name: m.Name, Value: m.Value})
		}
		out.EnumTypes = append(out.EnumTypes, enum)
	}

	for _, a := range s.Association {
		converted, err := convertAssociation(s.Namespace, a)
		if err != nil {
			return nil, err
		}
		out.Associations = append(out.Associations, converted)
	}

	for _, c := range s.EntityContainer {
		converted, err := convertContainer(s.Namespace, c)
		if err != nil {
			return nil, err
		}
		out.EntityContainers = append(out.EntityContainers, converted)
	}

	return out, nil
}

func convertEntityType(namespace string, et entityType) (*edm.EntityType, error) {
	props, err := convertProperties("entity type", et.Name, et.Property)
	if err != nil {
		return nil, err
	}

	out := &edm.EntityType{
		Namespace:  namespace,
		Name:       et.Name,
		BaseType:   et.BaseType,
		Abstract:   et.Abstract,
		OpenType:   et.OpenType,
		Properties: props,
	}
	for _, ref := range et.Key.PropertyRef {
		out.Key = append(out.Key, ref.Name)
	}
	for _, nav := range et.NavigationProperty {
		out.NavigationProperties = append(out.NavigationProperties, &edm.NavigationProperty{
			Name:         nav.Name,
			Relationship: nav.Relationship,
			FromRole:     nav.FromRole,
			ToRole:       nav.ToRole,
		})
	}
	return out, nil
}

func convertProperties(element, owner string, in []property) ([]*edm.Property, error) {
	out := make([]*edm.Property, 0, len(in))
	for _, p := range in {
		typ, err := edm.ParsePropertyType(p.Type)
		if err != nil {
			return nil, &ParseError{Element: element, Name: owner + "." + p.Name, Err: err}
		}
		mode, err := edm.ParseConcurrencyMode(p.ConcurrencyMode)
		if err != nil {
			return nil, &ParseError{Element: element, Name: owner + "." + p.Name, Err: err}
		}
		nullable := true
		if p.Nullable != "" {
			nullable, err = strconv.ParseBool(p.Nullable)
			if err != nil {
				return nil, &ParseError{Element: element, Name: owner + "." + p.Name, Err: err}
			}
		}
		out = append(out, &edm.Property{
			Name:            p.Name,
			Type:            typ,
			Nullable:        nullable,
			ConcurrencyMode: mode,
		})
	}
	return out, nil
}

func convertAssociation(namespace string, a association) (*edm.Association, error) {
	if len(a.End) != 2 {
		return nil, &ParseError{Element: "association", Name: a.Name, Err: fmt.Errorf("expected 2 ends, found %d", len(a.End))}
	}

	out := &edm.Association{Namespace: namespace, Name: a.Name}
	for i, end := range a.End {
		m, err := edm.ParseMultiplicity(end.Multiplicity)
		if err != nil {
			return nil, &ParseError{Element: "association", Name: a.Name, Err: err}
		}
		out.Ends[i] = edm.AssociationEnd{Role: end.Role, Type: end.Type, Multiplicity: m}
	}

	if rc := a.ReferentialConstraint; rc != nil {
		out.ReferentialConstraint = &edm.ReferentialConstraint{
			Principal: edm.ReferentialConstraintEnd{Role: rc.Principal.Role, Properties: refNames(rc.Principal.PropertyRef)},
			Dependent: edm.ReferentialConstraintEnd{Role: rc.Dependent.Role, Properties: refNames(rc.Dependent.PropertyRef)},
		}
	}
	return out, nil
}

func convertContainer(namespace string, c entityContainer) (*edm.EntityContainer, error) {
	out := &edm.EntityContainer{
		Namespace: namespace,
		Name:      c.Name,
		IsDefault: c.IsDefaultEntityContainer,
	}

	for _, es := range c.EntitySet {
		out.EntitySets = append(out.EntitySets, &edm.EntitySet{Name: es.Name, EntityType: es.EntityType})
	}

	for _, as := range c.AssociationSet {
		if len(as.End) != 2 {
			return nil, &ParseError{Element: "association set", Name: as.Name, Err: fmt.Errorf("expected 2 ends, found %d", len(as.End))}
		}
		out.AssociationSets = append(out.AssociationSets, &edm.AssociationSet{
			Name:        as.Name,
			Association: as.Association,
			Ends: [2]edm.AssociationSetEnd{
				{Role: as.End[0].Role, EntitySet: as.End[0].EntitySet},
				{Role: as.End[1].Role, EntitySet: as.End[1].EntitySet},
			},
		})
	}

	for _, fi := range c.FunctionImport {
		fn := &edm.FunctionImport{
			Name:       fi.Name,
			HTTPMethod: strings.ToUpper(fi.HTTPMethod),
			EntitySet:  fi.EntitySet,
		}
		if fi.ReturnType != "" {
			rt, err := edm.ParsePropertyType(fi.ReturnType)
			if err != nil {
				return nil, &ParseError{Element: "function import", Name: fi.Name, Err: err}
			}
			fn.ReturnType = &rt
		}
		for _, p := range fi.Parameter {
			pt, err := edm.ParsePropertyType(p.Type)
			if err != nil {
				return nil, &ParseError{Element: "function import", Name: fi.Name + "." + p.Name, Err: err}
			}
			fn.Parameters = append(fn.Parameters, edm.Parameter{Name: p.Name, Type: pt, Mode: p.Mode})
		}
		out.FunctionImports = append(out.FunctionImports, fn)
	}

	return out, nil
}

func refNames(refs []propertyRef) []string {
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r.Name)
	}
	return names
}
