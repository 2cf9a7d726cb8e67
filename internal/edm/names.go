package edm

import (
	"strings"
	"unicode"
)

// Homogenize normalizes a name for loose matching: it lower-cases the name and
// drops underscores and whitespace, so "Order_Details", "order details" and
// "OrderDetails" share the key "orderdetails".
func Homogenize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r == '_' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
