// Package edmtest provides schema fixtures for tests that need a realistic model.
package edmtest

import (
	"github.com/conduit-lang/odata/internal/edm"
)

// Namespace of the Northwind fixture
const Namespace = "NorthwindModel"

func prop(name, typ string, nullable bool) *edm.Property {
	return &edm.Property{Name: name, Type: edm.MustParsePropertyType(typ), Nullable: nullable}
}

func nav(name, relationship, from, to string) *edm.NavigationProperty {
	return &edm.NavigationProperty{Name: name, Relationship: Namespace + "." + relationship, FromRole: from, ToRole: to}
}

func assoc(name string, a edm.AssociationEnd, b edm.AssociationEnd) *edm.Association {
	return &edm.Association{Name: name, Ends: [2]edm.AssociationEnd{a, b}}
}

func end(role, typ string, m edm.Multiplicity) edm.AssociationEnd {
	return edm.AssociationEnd{Role: role, Type: Namespace + "." + typ, Multiplicity: m}
}

// NorthwindSchema returns a fresh copy of a trimmed Northwind schema:
//
//	Products      -> Product (ProductID, ProductName, UnitPrice), derived DiscontinuedProduct
//	Categories    -> Category
//	Orders        -> Order
//	Order_Details -> Order_Detail (composite key OrderID, ProductID)
//	Customers     -> Customer (Version is a concurrency token)
func NorthwindSchema() *edm.Schema {
	return &edm.Schema{
		Namespace: Namespace,
		Alias:     "Self",
		EntityTypes: []*edm.EntityType{
			{
				Name: "Product",
				Key:  []string{"ProductID"},
				Properties: []*edm.Property{
					prop("ProductID", "Edm.Int32", false),
					prop("ProductName", "Edm.String", false),
					prop("UnitPrice", "Edm.Decimal", true),
				},
				NavigationProperties: []*edm.NavigationProperty{
					nav("Category", "Product_Category", "Product", "Category"),
					nav("Order_Details", "Order_Detail_Product", "Product", "Order_Details"),
				},
			},
			{
				Name:     "DiscontinuedProduct",
				BaseType: "Self.Product",
				Properties: []*edm.Property{
					prop("DiscontinuedDate", "Edm.DateTime", true),
				},
			},
			{
				Name: "Category",
				Key:  []string{"CategoryID"},
				Properties: []*edm.Property{
					prop("CategoryID", "Edm.Int32", false),
					prop("CategoryName", "Edm.String", false),
				},
				NavigationProperties: []*edm.NavigationProperty{
					nav("Products", "Product_Category", "Category", "Product"),
				},
			},
			{
				Name: "Order",
				Key:  []string{"OrderID"},
				Properties: []*edm.Property{
					prop("OrderID", "Edm.Int32", false),
					prop("CustomerID", "Edm.String", true),
					prop("OrderDate", "Edm.DateTime", true),
					prop("ShipAddress", "NorthwindModel.Address", true),
				},
				NavigationProperties: []*edm.NavigationProperty{
					nav("Customer", "Customer_Orders", "Orders", "Customer"),
					nav("Order_Details", "Order_Detail_Order", "Order", "Order_Details"),
				},
			},
			{
				Name: "Order_Detail",
				Key:  []string{"OrderID", "ProductID"},
				Properties: []*edm.Property{
					prop("OrderID", "Edm.Int32", false),
					prop("ProductID", "Edm.Int32", false),
					prop("UnitPrice", "Edm.Decimal", false),
					prop("Quantity", "Edm.Int16", false),
				},
				NavigationProperties: []*edm.NavigationProperty{
					nav("Order", "Order_Detail_Order", "Order_Details", "Order"),
					nav("Product", "Order_Detail_Product", "Order_Details", "Product"),
				},
			},
			{
				Name: "Customer",
				Key:  []string{"CustomerID"},
				Properties: []*edm.Property{
					prop("CustomerID", "Edm.String", false),
					prop("CompanyName", "Edm.String", false),
					{Name: "Version", Type: edm.MustParsePropertyType("Edm.Binary"), ConcurrencyMode: edm.ConcurrencyFixed},
				},
				NavigationProperties: []*edm.NavigationProperty{
					nav("Orders", "Customer_Orders", "Customer", "Orders"),
				},
			},
		},
		ComplexTypes: []*edm.ComplexType{
			{
				Name: "Address",
				Properties: []*edm.Property{
					prop("Street", "Edm.String", true),
					prop("City", "Edm.String", true),
				},
			},
		},
		EnumTypes: []*edm.EnumType{
			{
				Name:           "ShippingMethod",
				UnderlyingType: "Edm.Int32",
				Members:        []edm.EnumMember{{Name: "Ground"}, {Name: "Air"}, {Name: "Sea", Value: "10"}},
			},
		},
		Associations: []*edm.Association{
			assoc("Product_Category",
				end("Product", "Product", edm.MultiplicityMany),
				end("Category", "Category", edm.MultiplicityZeroOrOne)),
			assoc("Order_Detail_Product",
				end("Product", "Product", edm.MultiplicityOne),
				end("Order_Details", "Order_Detail", edm.MultiplicityMany)),
			assoc("Order_Detail_Order",
				end("Order", "Order", edm.MultiplicityOne),
				end("Order_Details", "Order_Detail", edm.MultiplicityMany)),
			assoc("Customer_Orders",
				end("Customer", "Customer", edm.MultiplicityZeroOrOne),
				end("Orders", "Order", edm.MultiplicityMany)),
		},
		EntityContainers: []*edm.EntityContainer{
			{
				Name:      "NorthwindEntities",
				IsDefault: true,
				EntitySets: []*edm.EntitySet{
					{Name: "Products", EntityType: "NorthwindModel.Product"},
					{Name: "Categories", EntityType: "NorthwindModel.Category"},
					{Name: "Orders", EntityType: "NorthwindModel.Order"},
					{Name: "Order_Details", EntityType: "NorthwindModel.Order_Detail"},
					{Name: "Customers", EntityType: "NorthwindModel.Customer"},
				},
				AssociationSets: []*edm.AssociationSet{
					{
						Name:        "Products_Category",
						Association: "NorthwindModel.Product_Category",
						Ends: [2]edm.AssociationSetEnd{
							{Role: "Product", EntitySet: "Products"},
							{Role: "Category", EntitySet: "Categories"},
						},
					},
				},
				FunctionImports: []*edm.FunctionImport{
					{
						Name:       "ProductsByCategory",
						HTTPMethod: "GET",
						EntitySet:  "Products",
						ReturnType: typeRef("Collection(NorthwindModel.Product)"),
						Parameters: []edm.Parameter{{Name: "categoryName", Type: edm.MustParsePropertyType("Edm.String"), Mode: "In"}},
					},
					{
						Name:       "DiscontinueProduct",
						HTTPMethod: "POST",
						Parameters: []edm.Parameter{{Name: "productID", Type: edm.MustParsePropertyType("Edm.Int32"), Mode: "In"}},
					},
				},
			},
		},
	}
}

func typeRef(s string) *edm.PropertyType {
	t := edm.MustParsePropertyType(s)
	return &t
}

// NorthwindModel builds a validated model from NorthwindSchema and panics on failure
func NorthwindModel() *edm.Model {
	m, err := edm.NewModel(NorthwindSchema())
	if err != nil {
		panic(err)
	}
	return m
}
