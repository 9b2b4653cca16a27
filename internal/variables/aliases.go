package variables

import (
	"sort"
	"strings"
)

// AliasTable maps every surface spelling of a variable to one canonical key.
// Flat names (lead_name) and dotted paths (lead.first_name) that denote the
// same value are registered in one group.
type AliasTable struct {
	canonical map[string]string
	spellings map[string][]string
}

// NewAliasTable builds a table from canonical key -> alternative spellings.
// The canonical key is always a spelling of itself.
func NewAliasTable(groups map[string][]string) *AliasTable {
	t := &AliasTable{
		canonical: make(map[string]string),
		spellings: make(map[string][]string),
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		t.Register(key, groups[key]...)
	}
	return t
}

// Register adds spellings for canonical. Later registrations of an existing
// spelling are ignored so the first group wins.
func (t *AliasTable) Register(canonical string, spellings ...string) {
	canonical = normalize(canonical)
	if canonical == "" {
		return
	}
	all := append([]string{canonical}, spellings...)
	for _, s := range all {
		s = normalize(s)
		if s == "" {
			continue
		}
		if _, taken := t.canonical[s]; taken {
			continue
		}
		t.canonical[s] = canonical
		t.spellings[canonical] = append(t.spellings[canonical], s)
	}
}

// Canonical returns the canonical key for name. Unknown names are their own
// canonical key.
func (t *AliasTable) Canonical(name string) string {
	name = normalize(name)
	if t == nil {
		return name
	}
	if c, ok := t.canonical[name]; ok {
		return c
	}
	return name
}

// Spellings lists every spelling registered for the canonical form of name.
func (t *AliasTable) Spellings(name string) []string {
	c := t.Canonical(name)
	if t == nil || len(t.spellings[c]) == 0 {
		return []string{c}
	}
	out := make([]string, len(t.spellings[c]))
	copy(out, t.spellings[c])
	return out
}

// Groups returns a copy of canonical -> spellings.
func (t *AliasTable) Groups() map[string][]string {
	out := make(map[string][]string, len(t.spellings))
	for k, v := range t.spellings {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DefaultAliases covers the lead, company, event and sender fields callers
// assemble into a LeadContext.
func DefaultAliases() *AliasTable {
	return NewAliasTable(map[string][]string{
		"lead_name":      {"lead.first_name", "lead.name", "first_name"},
		"lead_last_name": {"lead.last_name", "last_name"},
		"lead_full_name": {"lead.full_name", "full_name"},
		"lead_email":     {"lead.email"},
		"lead_title":     {"lead.title", "job_title"},
		"company_name":   {"company.name", "lead.company", "lead_company", "company"},
		"industry":       {"company.industry", "lead.industry"},
		"company_size":   {"company.size"},
		"event_name":     {"event.name"},
		"event_date":     {"event.date"},
		"event_location": {"event.location"},
		"sender_name":    {"sender.name"},
		"sender_title":   {"sender.title"},
		"sender_company": {"sender.company"},
		"sender_email":   {"sender.email"},
		"topic":          {"conversation.topic", "conversation_topic"},
		"cta_text":       {"cta.text"},
		"cta_url":        {"cta.url"},
		"tone":           {"draft.tone"},
		"language":       {"draft.language"},
	})
}
