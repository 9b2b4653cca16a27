// Package guardrails checks an assembled draft against deterministic
// authoring rules. It only reports; it never edits the draft.
package guardrails

import (
	"fmt"
	"regexp"
	"strings"
)

// ViolationKind names the rule that fired.
type ViolationKind string

const (
	KindLength         ViolationKind = "length"
	KindForbiddenClaim ViolationKind = "forbidden_claim"
)

// Field identifies which part of the draft a violation points at.
type Field string

const (
	FieldSubject Field = "subject"
	FieldBody    Field = "body"
)

// Violation is a single rule breach.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Field   Field         `json:"field"`
	Count   int           `json:"count,omitempty"`
	Max     int           `json:"max,omitempty"`
	Phrase  string        `json:"phrase,omitempty"`
	Offset  int           `json:"offset"`
	Message string        `json:"message"`
}

// Rules are the per-template guardrails. MaxWords nil means unlimited.
type Rules struct {
	MaxWords        *int     `json:"max_words,omitempty"`
	ForbiddenClaims []string `json:"forbidden_claims,omitempty"`
}

// Input is the draft under test.
type Input struct {
	Subject string
	Body    string
}

// WordCount splits on whitespace.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Validate runs every rule. The returned list is ordered: length first, then
// forbidden claims by rule order, subject before body, ascending offset.
func Validate(in Input, rules Rules) []Violation {
	var out []Violation
	if rules.MaxWords != nil {
		if n := WordCount(in.Body); n > *rules.MaxWords {
			out = append(out, Violation{
				Kind:    KindLength,
				Field:   FieldBody,
				Count:   n,
				Max:     *rules.MaxWords,
				Message: fmt.Sprintf("body has %d words; limit is %d", n, *rules.MaxWords),
			})
		}
	}
	for _, claim := range rules.ForbiddenClaims {
		re := claimPattern(claim)
		if re == nil {
			continue
		}
		out = append(out, findClaims(re, claim, FieldSubject, in.Subject)...)
		out = append(out, findClaims(re, claim, FieldBody, in.Body)...)
	}
	return out
}

// Blocking reports whether any violation should stop automated sending.
func Blocking(violations []Violation) bool {
	return len(violations) > 0
}

func findClaims(re *regexp.Regexp, claim string, field Field, text string) []Violation {
	var out []Violation
	for _, loc := range re.FindAllStringIndex(text, -1) {
		out = append(out, Violation{
			Kind:    KindForbiddenClaim,
			Field:   field,
			Phrase:  claim,
			Offset:  loc[0],
			Message: fmt.Sprintf("%s contains forbidden claim %q", field, text[loc[0]:loc[1]]),
		})
	}
	return out
}

// claimPattern matches a phrase case-insensitively; any run of whitespace in
// the phrase matches any run of whitespace in the text.
func claimPattern(claim string) *regexp.Regexp {
	words := strings.Fields(claim)
	if len(words) == 0 {
		return nil
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(words, `\s+`))
}
