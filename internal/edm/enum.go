package edm

import (
	"fmt"
	"strconv"
	"strings"
)

// evaluateMembers assigns EvaluatedValue to every member of the enum.
// An explicit literal always wins. Implicit members of a plain enum take the
// previous member's value plus one (zero for the first member); implicit
// members of a flags enum take the smallest power of two not yet in use.
// Members may share a value; the later one is an alias.
func evaluateMembers(t *EnumType) error {
	used := make(map[int64]bool, len(t.Members))
	explicit := make(map[int]bool, len(t.Members))

	// Explicit values first so flags members never collide with a later literal.
	for i := range t.Members {
		m := &t.Members[i]
		literal := strings.TrimSpace(m.Value)
		if literal == "" {
			continue
		}
		v, err := strconv.ParseInt(literal, 0, 64)
		if err != nil {
			return fmt.Errorf("member %s has non-integral value %q", m.Name, m.Value)
		}
		m.EvaluatedValue = v
		used[v] = true
		explicit[i] = true
	}

	var next int64
	for i := range t.Members {
		m := &t.Members[i]
		if explicit[i] {
			next = m.EvaluatedValue + 1
			continue
		}

		var v int64
		if t.IsFlags {
			v = 1
			for {
				if !used[v] {
					break
				}
				if v > 1<<61 {
					return fmt.Errorf("member %s: no free flag value", m.Name)
				}
				v <<= 1
			}
		} else {
			v = next
			next = v + 1
		}

		m.EvaluatedValue = v
		used[v] = true
	}

	return nil
}
