package request

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/odata/internal/edm"
)

func TestFormatLiteral(t *testing.T) {
	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		typ   string
		value any
		want  string
	}{
		{"string", "Edm.String", "Chai", "'Chai'"},
		{"quoted string", "Edm.String", "O'Brien", "'O''Brien'"},
		{"int32", "Edm.Int32", 42, "42"},
		{"int64", "Edm.Int64", int64(42), "42L"},
		{"decimal", "Edm.Decimal", 18.5, "18.5M"},
		{"decimal int", "Edm.Decimal", 18, "18M"},
		{"double", "Edm.Double", 1.25, "1.25"},
		{"bool", "Edm.Boolean", true, "true"},
		{"guid", "Edm.Guid", id, "guid'0f8fad5b-d9cb-469f-a165-70867728950e'"},
		{"guid string", "Edm.Guid", "0F8FAD5B-D9CB-469F-A165-70867728950E", "guid'0f8fad5b-d9cb-469f-a165-70867728950e'"},
		{"datetime", "Edm.DateTime", ts, "datetime'2024-03-01T12:30:00'"},
		{"datetimeoffset", "Edm.DateTimeOffset", ts, "datetimeoffset'2024-03-01T12:30:00Z'"},
		{"binary", "Edm.Binary", []byte{0xca, 0xfe}, "X'CAFE'"},
		{"null", "Edm.String", nil, "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatLiteral(edm.MustParsePropertyType(tt.typ), tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FormatLiteral(edm.MustParsePropertyType("Edm.Guid"), "not-a-guid")
	assert.Error(t, err)

	_, err = FormatLiteral(edm.MustParsePropertyType("Edm.String"), struct{}{})
	assert.Error(t, err)
}

func TestFormatKeyPredicate(t *testing.T) {
	props := []*edm.Property{
		{Name: "OrderID", Type: edm.MustParsePropertyType("Edm.Int32")},
		{Name: "ProductID", Type: edm.MustParsePropertyType("Edm.Int32")},
		{Name: "Code", Type: edm.MustParsePropertyType("Edm.String")},
	}

	got, err := FormatKeyPredicate(props, []string{"Code"}, map[string]any{"Code": "A1"})
	require.NoError(t, err)
	assert.Equal(t, "('A1')", got)

	got, err = FormatKeyPredicate(props, []string{"OrderID", "ProductID"}, map[string]any{"OrderID": 1, "ProductID": 2})
	require.NoError(t, err)
	assert.Equal(t, "(OrderID=1,ProductID=2)", got)

	_, err = FormatKeyPredicate(props, []string{"OrderID", "ProductID"}, map[string]any{"OrderID": 1})
	assert.ErrorIs(t, err, ErrMissingKey)
}
