package csdl

// XML shapes of an EDMX v1-v3 metadata document. Element names are matched by
// local name so every CSDL namespace revision decodes into the same structs.

type edmx struct {
	Version      string       `xml:"Version,attr"`
	DataServices dataServices `xml:"DataServices"`
}

type dataServices struct {
	Schema []schema `xml:"Schema"`
}

type schema struct {
	Namespace       string            `xml:"Namespace,attr"`
	Alias           string            `xml:"Alias,attr"`
	EntityType      []entityType      `xml:"EntityType"`
	ComplexType     []complexType     `xml:"ComplexType"`
	EnumType        []enumType        `xml:"EnumType"`
	Association     []association     `xml:"Association"`
	EntityContainer []entityContainer `xml:"EntityContainer"`
}

type entityType struct {
	Name               string               `xml:"Name,attr"`
	BaseType           string               `xml:"BaseType,attr"`
	Abstract           bool                 `xml:"Abstract,attr"`
	OpenType           bool                 `xml:"OpenType,attr"`
	Key                key                  `xml:"Key"`
	Property           []property           `xml:"Property"`
	NavigationProperty []navigationProperty `xml:"NavigationProperty"`
}

type key struct {
	PropertyRef []propertyRef `xml:"PropertyRef"`
}

type propertyRef struct {
	Name string `xml:"Name,attr"`
}

type property struct {
	Name            string `xml:"Name,attr"`
	Type            string `xml:"Type,attr"`
	Nullable        string `xml:"Nullable,attr"`
	ConcurrencyMode string `xml:"ConcurrencyMode,attr"`
}

type navigationProperty struct {
	Name         string `xml:"Name,attr"`
	Relationship string `xml:"Relationship,attr"`
	FromRole     string `xml:"FromRole,attr"`
	ToRole       string `xml:"ToRole,attr"`
}

type complexType struct {
	Name     string     `xml:"Name,attr"`
	BaseType string     `xml:"BaseType,attr"`
	Property []property `xml:"Property"`
}

type enumType struct {
	Name           string   `xml:"Name,attr"`
	UnderlyingType string   `xml:"UnderlyingType,attr"`
	IsFlags        bool     `xml:"IsFlags,attr"`
	Member         []member `xml:"Member"`
}

type member struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:"Value,attr"`
}

type association struct {
	Name                  string                 `xml:"Name,attr"`
	End                   []associationEnd       `xml:"End"`
	ReferentialConstraint *referentialConstraint `xml:"ReferentialConstraint"`
}

type associationEnd struct {
	Role         string `xml:"Role,attr"`
	Type         string `xml:"Type,attr"`
	Multiplicity string `xml:"Multiplicity,attr"`
}

type referentialConstraint struct {
	Principal constraintEnd `xml:"Principal"`
	Dependent constraintEnd `xml:"Dependent"`
}

type constraintEnd struct {
	Role        string        `xml:"Role,attr"`
	PropertyRef []propertyRef `xml:"PropertyRef"`
}

type entityContainer struct {
	Name                     string           `xml:"Name,attr"`
	IsDefaultEntityContainer bool             `xml:"IsDefaultEntityContainer,attr"`
	EntitySet                []entitySet      `xml:"EntitySet"`
	AssociationSet           []associationSet `xml:"AssociationSet"`
	FunctionImport           []functionImport `xml:"FunctionImport"`
}

type entitySet struct {
	Name       string `xml:"Name,attr"`
	EntityType string `xml:"EntityType,attr"`
}

type associationSet struct {
	Name        string              `xml:"Name,attr"`
	Association string              `xml:"Association,attr"`
	End         []associationSetEnd `xml:"End"`
}

type associationSetEnd struct {
	Role      string `xml:"Role,attr"`
	EntitySet string `xml:"EntitySet,attr"`
}

type functionImport struct {
	Name       string      `xml:"Name,attr"`
	ReturnType string      `xml:"ReturnType,attr"`
	EntitySet  string      `xml:"EntitySet,attr"`
	HTTPMethod string      `xml:"HttpMethod,attr"`
	Parameter  []parameter `xml:"Parameter"`
}

type parameter struct {
	Name string `xml:"Name,attr"`
	Type string `xml:"Type,attr"`
	Mode string `xml:"Mode,attr"`
}
