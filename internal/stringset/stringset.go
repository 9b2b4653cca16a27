// Package stringset is a small set-of-strings type with a stable JSON form.
package stringset

import (
	"encoding/json"
	"sort"
	"strings"
)

// Set holds unique, trimmed, non-empty strings.
type Set map[string]struct{}

// New builds a set from the given values.
func New(values ...string) Set {
	s := make(Set, len(values))
	s.Add(values...)
	return s
}

// Add inserts values, ignoring blanks.
func (s Set) Add(values ...string) {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		s[v] = struct{}{}
	}
}

// Remove deletes values.
func (s Set) Remove(values ...string) {
	for _, v := range values {
		delete(s, strings.TrimSpace(v))
	}
}

// Has reports membership.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// HasFold reports membership ignoring case.
func (s Set) HasFold(v string) bool {
	for k := range s {
		if strings.EqualFold(k, v) {
			return true
		}
	}
	return false
}

func (s Set) Len() int { return len(s) }

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Union returns a new set holding the members of s and other.
func (s Set) Union(other Set) Set {
	out := s.Clone()
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = New(values...)
	return nil
}
