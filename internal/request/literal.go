package request

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-lang/odata/internal/edm"
)

// FormatLiteral renders a Go value as a URI literal for the given property type.
// Strings and temporal values are prefixed and quoted the way OData v3 expects.
func FormatLiteral(t edm.PropertyType, v any) (string, error) {
	if v == nil {
		return "null", nil
	}

	switch t.Name {
	case "Edm.Guid":
		switch g := v.(type) {
		case uuid.UUID:
			return "guid'" + g.String() + "'", nil
		case string:
			parsed, err := uuid.Parse(g)
			if err != nil {
				return "", fmt.Errorf("invalid guid literal %q: %w", g, err)
			}
			return "guid'" + parsed.String() + "'", nil
		}
	case "Edm.DateTime":
		if ts, ok := v.(time.Time); ok {
			return "datetime'" + ts.UTC().Format("2006-01-02T15:04:05.9999999") + "'", nil
		}
		if s, ok := v.(string); ok {
			return "datetime'" + s + "'", nil
		}
	case "Edm.DateTimeOffset":
		if ts, ok := v.(time.Time); ok {
			return "datetimeoffset'" + ts.Format(time.RFC3339Nano) + "'", nil
		}
		if s, ok := v.(string); ok {
			return "datetimeoffset'" + s + "'", nil
		}
	case "Edm.Binary":
		if b, ok := v.([]byte); ok {
			return "X'" + strings.ToUpper(hex.EncodeToString(b)) + "'", nil
		}
	case "Edm.Int64":
		if n, ok := integer(v); ok {
			return strconv.FormatInt(n, 10) + "L", nil
		}
	case "Edm.Decimal":
		switch n := v.(type) {
		case float64:
			return strconv.FormatFloat(n, 'f', -1, 64) + "M", nil
		case string:
			return n + "M", nil
		}
		if n, ok := integer(v); ok {
			return strconv.FormatInt(n, 10) + "M", nil
		}
	}

	if t.Kind == edm.KindEnum {
		if s, ok := v.(string); ok {
			return t.Name + "'" + s + "'", nil
		}
	}

	switch x := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case bool:
		return strconv.FormatBool(x), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case uuid.UUID:
		return "guid'" + x.String() + "'", nil
	case time.Time:
		return "datetime'" + x.UTC().Format("2006-01-02T15:04:05.9999999") + "'", nil
	}
	if n, ok := integer(v); ok {
		return strconv.FormatInt(n, 10), nil
	}
	return "", fmt.Errorf("cannot format %T as %s literal", v, t.Name)
}

func integer(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

// FormatKeyPredicate renders "(1)" for single keys and "(A=1,B=2)" for composite keys.
// Key values are looked up by exact property name.
func FormatKeyPredicate(props []*edm.Property, keyNames []string, key map[string]any) (string, error) {
	types := make(map[string]edm.PropertyType, len(props))
	for _, p := range props {
		types[p.Name] = p.Type
	}

	parts := make([]string, 0, len(keyNames))
	for _, name := range keyNames {
		v, ok := key[name]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingKey, name)
		}
		lit, err := FormatLiteral(types[name], v)
		if err != nil {
			return "", fmt.Errorf("key %s: %w", name, err)
		}
		if len(keyNames) == 1 {
			return "(" + lit + ")", nil
		}
		parts = append(parts, name+"="+lit)
	}
	return "(" + strings.Join(parts, ",") + ")", nil
}
