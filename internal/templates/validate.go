package templates

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/stringset"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/variables"
)

const maxNameLength = 200

var languagePattern = regexp.MustCompile(`^[A-Za-z]{2,3}([-_][A-Za-z0-9]{2,8})?$`)

// Validate checks every structural invariant of t and returns all issues
// found. An empty result means t may be persisted.
func Validate(t *Template, aliases *variables.AliasTable) []apperr.Issue {
	var issues []apperr.Issue
	add := func(field, msg string) {
		issues = append(issues, apperr.Issue{Field: field, Message: msg})
	}

	name := strings.TrimSpace(t.Name)
	switch {
	case name == "":
		add("name", "required")
	case len(name) > maxNameLength:
		add("name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
	if !t.Category.Valid() {
		add("category", fmt.Sprintf("unknown category %q", t.Category))
	}
	if !t.Goal.Valid() {
		add("goal", fmt.Sprintf("unknown goal %q", t.Goal))
	}
	if !t.Status.Valid() {
		add("status", fmt.Sprintf("unknown status %q", t.Status))
	}
	if !languagePattern.MatchString(t.Language) {
		add("language", fmt.Sprintf("invalid language code %q", t.Language))
	}
	if t.MaxWords != nil && *t.MaxWords <= 0 {
		add("max_words", "must be a positive integer")
	}

	if len(t.Subjects) == 0 {
		add("subjects", "at least one subject is required")
	}
	if len(t.Blocks) == 0 {
		add("blocks", "at least one block is required")
	}
	issues = append(issues, checkDense("subjects", subjectOrders(t.Subjects))...)
	issues = append(issues, checkDense("blocks", blockOrders(t.Blocks))...)

	templateVars := t.AllowedVars()
	for i, s := range t.Subjects {
		field := fmt.Sprintf("subjects[%d].subject", i)
		if strings.TrimSpace(s.Text) == "" {
			add(field, "required")
			continue
		}
		for _, issue := range variables.Check(s.Text, templateVars, aliases) {
			issue.Field = field
			issues = append(issues, issue)
		}
	}

	for i, b := range t.Blocks {
		label := blockLabel(b)
		if !b.BlockType.Valid() {
			issues = append(issues, apperr.Issue{
				Field:   fmt.Sprintf("blocks[%d].block_type", i),
				Block:   label,
				Message: fmt.Sprintf("unknown block type %q", b.BlockType),
			})
		}
		for _, v := range b.AllowedVars.Sorted() {
			if !variables.ValidIdentifier(v) {
				issues = append(issues, apperr.Issue{
					Field:   fmt.Sprintf("blocks[%d].allowed_vars", i),
					Block:   label,
					Token:   v,
					Message: "invalid variable name",
				})
			}
		}
		if strings.TrimSpace(b.Content) == "" {
			issues = append(issues, apperr.Issue{
				Field:   fmt.Sprintf("blocks[%d].content", i),
				Block:   label,
				Message: "required",
			})
			continue
		}
		for _, issue := range variables.Check(b.Content, b.AllowedVars, aliases) {
			issue.Field = fmt.Sprintf("blocks[%d].content", i)
			issue.Block = label
			issues = append(issues, issue)
		}
	}

	if t.CTA != nil {
		issues = append(issues, validateCTA(t.CTA, templateVars, aliases)...)
	}

	if t.Status == StatusEnabled && len(t.Subjects) > 0 && len(t.ActiveSubjects()) == 0 {
		add("subjects", "an enabled template needs at least one active subject")
	}
	return issues
}

func validateCTA(c *CTA, allowed stringset.Set, aliases *variables.AliasTable) []apperr.Issue {
	var issues []apperr.Issue
	if !c.Type.Valid() {
		issues = append(issues, apperr.Issue{Field: "cta.cta_type", Message: fmt.Sprintf("unknown cta type %q", c.Type)})
	}
	if strings.TrimSpace(c.Text) == "" {
		issues = append(issues, apperr.Issue{Field: "cta.cta_text", Message: "required"})
	} else {
		for _, issue := range variables.Check(c.Text, allowed, aliases) {
			issue.Field = "cta.cta_text"
			issues = append(issues, issue)
		}
	}
	switch {
	case c.URL == nil || strings.TrimSpace(*c.URL) == "":
		if c.Type != CTAReply {
			issues = append(issues, apperr.Issue{Field: "cta.cta_url", Message: "required unless cta_type is reply"})
		}
	default:
		u, err := url.Parse(strings.TrimSpace(*c.URL))
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			issues = append(issues, apperr.Issue{Field: "cta.cta_url", Message: "must be an absolute http(s) URL"})
		}
	}
	return issues
}

// checkDense requires orders to be exactly 1..N with no repeats.
func checkDense(field string, orders []int) []apperr.Issue {
	var issues []apperr.Issue
	seen := make(map[int]bool, len(orders))
	for _, o := range orders {
		if seen[o] {
			issues = append(issues, apperr.Issue{Field: field, Message: fmt.Sprintf("duplicate sort_order %d", o)})
		}
		seen[o] = true
	}
	for i := 1; i <= len(orders); i++ {
		if !seen[i] {
			issues = append(issues, apperr.Issue{
				Field:   field,
				Message: fmt.Sprintf("sort_order must be dense 1..%d; %d is missing", len(orders), i),
			})
			break
		}
	}
	return issues
}

// checkUnique requires distinct sort orders without demanding density.
func checkUnique(field string, orders []int) []apperr.Issue {
	var issues []apperr.Issue
	seen := make(map[int]bool, len(orders))
	for _, o := range orders {
		if seen[o] {
			issues = append(issues, apperr.Issue{Field: field, Message: fmt.Sprintf("duplicate sort_order %d", o)})
		}
		seen[o] = true
	}
	return issues
}

func subjectOrders(subjects []Subject) []int {
	out := make([]int, len(subjects))
	for i, s := range subjects {
		out[i] = s.SortOrder
	}
	return out
}

func blockOrders(blocks []Block) []int {
	out := make([]int, len(blocks))
	for i, b := range blocks {
		out[i] = b.SortOrder
	}
	return out
}

func blockLabel(b Block) string {
	return fmt.Sprintf("%s#%d", b.BlockType, b.SortOrder)
}

// densifySubjects orders subjects by SortOrder and renumbers them 1..N.
func densifySubjects(subjects []Subject) []Subject {
	sort.SliceStable(subjects, func(i, j int) bool { return subjects[i].SortOrder < subjects[j].SortOrder })
	for i := range subjects {
		subjects[i].SortOrder = i + 1
	}
	return subjects
}

func densifyBlocks(blocks []Block) []Block {
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].SortOrder < blocks[j].SortOrder })
	for i := range blocks {
		blocks[i].SortOrder = i + 1
	}
	return blocks
}
