// Package variables resolves {{identifier}} placeholders against a lead
// context. Resolution is pure: the same content, allow-list and context always
// produce the same text.
package variables

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/stringset"
)

var (
	placeholderPattern = regexp.MustCompile(`\{\{([^{}]*)\}\}`)
	identifierPattern  = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)?$`)
)

// Token is one placeholder occurrence.
type Token struct {
	Raw       string `json:"raw"`
	Name      string `json:"name"`
	Canonical string `json:"canonical"`
	Offset    int    `json:"offset"`
}

// Malformed is a placeholder whose identifier breaks the token syntax.
type Malformed struct {
	Raw    string `json:"raw"`
	Offset int    `json:"offset"`
}

// Warning reports an allowed token that the context could not fill. The
// placeholder is left in the rendered text.
type Warning struct {
	Token   string `json:"token"`
	Key     string `json:"key"`
	Message string `json:"message"`
}

// Result is the rendered text plus non-fatal warnings.
type Result struct {
	Text     string    `json:"text"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// Scan lists every well-formed token and every malformed placeholder in content.
func Scan(content string, aliases *AliasTable) ([]Token, []Malformed) {
	var tokens []Token
	var malformed []Malformed
	matches := placeholderPattern.FindAllStringSubmatchIndex(content, -1)
	covered := 0
	for _, m := range matches {
		if strings.Contains(content[covered:m[0]], "{{") {
			idx := strings.Index(content[covered:m[0]], "{{") + covered
			malformed = append(malformed, Malformed{Raw: content[idx:m[0]], Offset: idx})
		}
		covered = m[1]
		raw := content[m[0]:m[1]]
		name := content[m[2]:m[3]]
		if !identifierPattern.MatchString(name) {
			malformed = append(malformed, Malformed{Raw: raw, Offset: m[0]})
			continue
		}
		tokens = append(tokens, Token{
			Raw:       raw,
			Name:      name,
			Canonical: aliases.Canonical(name),
			Offset:    m[0],
		})
	}
	if idx := strings.Index(content[covered:], "{{"); idx >= 0 {
		start := covered + idx
		malformed = append(malformed, Malformed{Raw: content[start:], Offset: start})
	}
	return tokens, malformed
}

// Placeholders returns every placeholder left in text, well-formed or not,
// in order of appearance.
func Placeholders(text string) []string {
	tokens, malformed := Scan(text, nil)
	type hit struct {
		raw    string
		offset int
	}
	hits := make([]hit, 0, len(tokens)+len(malformed))
	for _, t := range tokens {
		hits = append(hits, hit{t.Raw, t.Offset})
	}
	for _, m := range malformed {
		hits = append(hits, hit{m.Raw, m.Offset})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].offset < hits[j].offset })
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.raw
	}
	return out
}

// CanonicalSet maps every member of allowed to its canonical key.
func CanonicalSet(aliases *AliasTable, allowed stringset.Set) stringset.Set {
	out := make(stringset.Set, len(allowed))
	for v := range allowed {
		out.Add(aliases.Canonical(v))
	}
	return out
}

// Check reports every token in content that is malformed or outside allowed.
// It is the save-time counterpart of Resolve.
func Check(content string, allowed stringset.Set, aliases *AliasTable) []apperr.Issue {
	tokens, malformed := Scan(content, aliases)
	allowedCanon := CanonicalSet(aliases, allowed)
	var issues []apperr.Issue
	for _, m := range malformed {
		issues = append(issues, apperr.Issue{Token: m.Raw, Message: "malformed variable token"})
	}
	for _, tok := range tokens {
		if !allowedCanon.Has(tok.Canonical) {
			issues = append(issues, apperr.Issue{Token: tok.Name, Message: "variable not in allowed_vars"})
		}
	}
	return issues
}

// Resolver renders content against a context using an alias table.
type Resolver struct {
	aliases *AliasTable
}

// NewResolver builds a resolver; a nil table falls back to DefaultAliases.
func NewResolver(aliases *AliasTable) *Resolver {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	return &Resolver{aliases: aliases}
}

// Aliases exposes the table the resolver normalizes with.
func (r *Resolver) Aliases() *AliasTable { return r.aliases }

// Resolve substitutes every token in content. A malformed token or a token
// outside allowed aborts with an ErrResolution error; nothing is rendered
// blank. Allowed tokens missing from ctx stay literal and produce a warning.
func (r *Resolver) Resolve(content string, allowed stringset.Set, ctx Context) (Result, error) {
	tokens, malformed := Scan(content, r.aliases)
	if len(malformed) > 0 {
		return Result{}, apperr.Resolution("variables: resolve", "", malformed[0].Raw, "malformed variable token")
	}
	allowedCanon := CanonicalSet(r.aliases, allowed)
	for _, tok := range tokens {
		if !allowedCanon.Has(tok.Canonical) {
			return Result{}, apperr.Resolution("variables: resolve", "", tok.Name,
				fmt.Sprintf("variable %q is not in allowed_vars", tok.Name))
		}
	}

	var b strings.Builder
	var warnings []Warning
	seen := make(map[string]bool)
	last := 0
	for _, tok := range tokens {
		b.WriteString(content[last:tok.Offset])
		last = tok.Offset + len(tok.Raw)
		value, ok := ctx.Lookup(r.aliases, tok.Name)
		if !ok {
			b.WriteString(tok.Raw)
			if !seen[tok.Canonical] {
				seen[tok.Canonical] = true
				warnings = append(warnings, Warning{
					Token:   tok.Name,
					Key:     tok.Canonical,
					Message: fmt.Sprintf("no value for %q; placeholder left in place", tok.Name),
				})
			}
			continue
		}
		b.WriteString(value)
	}
	b.WriteString(content[last:])
	return Result{Text: b.String(), Warnings: warnings}, nil
}

// Referenced returns the canonical keys used by content, ignoring malformed tokens.
func (r *Resolver) Referenced(content string) stringset.Set {
	tokens, _ := Scan(content, r.aliases)
	out := make(stringset.Set, len(tokens))
	for _, tok := range tokens {
		out.Add(tok.Canonical)
	}
	return out
}

// ValidIdentifier reports whether name is usable as a token identifier.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}
