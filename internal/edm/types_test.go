package edm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePropertyType(t *testing.T) {
	tests := []struct {
		input      string
		name       string
		kind       TypeKind
		collection bool
	}{
		{"Edm.String", "Edm.String", KindPrimitive, false},
		{"Collection(Edm.Int32)", "Edm.Int32", KindPrimitive, true},
		{"NorthwindModel.Address", "NorthwindModel.Address", KindUnknown, false},
		{" Collection( NorthwindModel.Address ) ", "NorthwindModel.Address", KindUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			pt, err := ParsePropertyType(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.name, pt.Name)
			assert.Equal(t, tt.kind, pt.Kind)
			assert.Equal(t, tt.collection, pt.Collection)
		})
	}

	for _, bad := range []string{"", "Collection(Edm.String", "Collection()", "Collection(Collection(Edm.String))"} {
		_, err := ParsePropertyType(bad)
		assert.Error(t, err, bad)
	}

	assert.Equal(t, "Collection(Edm.Int32)", MustParsePropertyType("Collection(Edm.Int32)").String())
}

func TestParseMultiplicity(t *testing.T) {
	for wire, want := range map[string]Multiplicity{
		"0..1": MultiplicityZeroOrOne,
		"1":    MultiplicityOne,
		"*":    MultiplicityMany,
	} {
		got, err := ParseMultiplicity(wire)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, wire, got.String())
	}

	_, err := ParseMultiplicity("many")
	assert.Error(t, err)
}

func TestParseConcurrencyMode(t *testing.T) {
	mode, err := ParseConcurrencyMode("Fixed")
	require.NoError(t, err)
	assert.Equal(t, ConcurrencyFixed, mode)

	mode, err = ParseConcurrencyMode("")
	require.NoError(t, err)
	assert.Equal(t, ConcurrencyNone, mode)

	_, err = ParseConcurrencyMode("Optimistic")
	assert.Error(t, err)
}

func TestHomogenize(t *testing.T) {
	assert.Equal(t, "orderdetails", Homogenize("Order_Details"))
	assert.Equal(t, "orderdetails", Homogenize("OrderDetails"))
	assert.Equal(t, "orderdetails", Homogenize(" order details "))
	assert.Equal(t, "productname", Homogenize("PRODUCT_NAME"))
}

func TestEvaluateMembers(t *testing.T) {
	values := func(en *EnumType) []int64 {
		out := make([]int64, 0, len(en.Members))
		for _, m := range en.Members {
			out = append(out, m.EvaluatedValue)
		}
		return out
	}

	t.Run("sequential from zero", func(t *testing.T) {
		en := &EnumType{Members: []EnumMember{{Name: "A"}, {Name: "B"}, {Name: "C"}}}
		require.NoError(t, evaluateMembers(en))
		assert.Equal(t, []int64{0, 1, 2}, values(en))
	})

	t.Run("explicit value wins and implicit continues after it", func(t *testing.T) {
		en := &EnumType{Members: []EnumMember{{Name: "A"}, {Name: "B", Value: "5"}, {Name: "C"}}}
		require.NoError(t, evaluateMembers(en))
		assert.Equal(t, []int64{0, 5, 6}, values(en))
	})

	t.Run("flags take next unused power of two", func(t *testing.T) {
		en := &EnumType{IsFlags: true, Members: []EnumMember{
			{Name: "Read"}, {Name: "Write", Value: "2"}, {Name: "Execute"}, {Name: "All", Value: "7"},
		}}
		require.NoError(t, evaluateMembers(en))
		assert.Equal(t, []int64{1, 2, 4, 7}, values(en))
	})

	t.Run("explicit aliases share a value", func(t *testing.T) {
		en := &EnumType{Members: []EnumMember{{Name: "A", Value: "0"}, {Name: "Alias", Value: "0"}, {Name: "B"}}}
		require.NoError(t, evaluateMembers(en))
		assert.Equal(t, []int64{0, 0, 1}, values(en))
	})

	t.Run("explicit value may repeat an implicit one", func(t *testing.T) {
		en := &EnumType{Members: []EnumMember{{Name: "A"}, {Name: "B", Value: "0"}}}
		require.NoError(t, evaluateMembers(en))
		assert.Equal(t, []int64{0, 0}, values(en))
	})

	t.Run("non-integral literal", func(t *testing.T) {
		en := &EnumType{Members: []EnumMember{{Name: "A", Value: "one"}}}
		assert.Error(t, evaluateMembers(en))
	})
}
