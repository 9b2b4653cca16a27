package variables

import (
	"sort"
	"strings"
)

// Context is the flat key/value map describing one lead. Keys may use any
// spelling known to the alias table.
type Context map[string]string

// Lookup finds the value for name under any of its spellings. Empty values
// count as absent.
func (c Context) Lookup(aliases *AliasTable, name string) (string, bool) {
	for _, spelling := range aliases.Spellings(name) {
		if v, ok := c[spelling]; ok && strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	if v, ok := c[name]; ok && strings.TrimSpace(v) != "" {
		return v, true
	}
	return "", false
}

// Clone returns an independent copy.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// With returns a copy with key set to value; blank values are skipped.
func (c Context) With(key, value string) Context {
	out := c.Clone()
	if strings.TrimSpace(value) != "" {
		out[key] = value
	}
	return out
}

// Keys returns the keys in ascending order.
func (c Context) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
