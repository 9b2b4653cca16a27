package drafts

import (
	"fmt"
	"strings"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/guardrails"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/templates"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/variables"
)

const assembleOp = "drafts: assemble"

// Assembler renders templates deterministically. It has no dependencies
// beyond the resolver and is safe for concurrent use.
type Assembler struct {
	resolver  *variables.Resolver
	separator string
}

func NewAssembler(aliases *variables.AliasTable, separator string) *Assembler {
	if separator == "" {
		separator = DefaultSeparator
	}
	return &Assembler{resolver: variables.NewResolver(aliases), separator: separator}
}

// Assemble renders every block in sort order, joins them, renders the
// subject(s) and runs the guardrails. A resolution error in any block or
// subject aborts with no draft.
func (a *Assembler) Assemble(t *templates.Template, lead variables.Context, opts Options) (*Draft, error) {
	tone := firstNonEmpty(opts.Tone, t.Tone)
	language := firstNonEmpty(opts.Language, t.Language)
	ctx := lead.Clone().With("tone", tone).With("language", language)
	if t.CTA != nil {
		ctx = ctx.With("cta_text", t.CTA.Text)
		if t.CTA.URL != nil {
			ctx = ctx.With("cta_url", *t.CTA.URL)
		}
	}

	draft := &Draft{
		TemplateID:      t.ID,
		TemplateVersion: t.Version,
		Tone:            tone,
		Language:        language,
	}

	parts := make([]string, 0, len(t.Blocks))
	for _, b := range t.SortedBlocks() {
		res, err := a.resolver.Resolve(b.Content, b.AllowedVars, ctx)
		if err != nil {
			return nil, blockError(blockLabel(b), err)
		}
		for _, w := range res.Warnings {
			draft.Warnings = append(draft.Warnings, Warning{Block: blockLabel(b), Token: w.Token, Message: w.Message})
		}
		if text := strings.TrimSpace(res.Text); text != "" {
			parts = append(parts, text)
		}
	}
	separator := a.separator
	if opts.BlockSeparator != nil {
		separator = *opts.BlockSeparator
	}
	draft.Body = strings.Join(parts, separator)

	active := t.ActiveSubjects()
	if len(active) == 0 {
		return nil, apperr.Validation(assembleOp, apperr.Issue{Field: "subjects", Message: "template has no active subject"})
	}
	want := opts.SubjectVariants
	if want < 1 {
		want = 1
	}
	if want > len(active) {
		want = len(active)
	}
	subjectVars := t.AllowedVars()
	for _, s := range active[:want] {
		res, err := a.resolver.Resolve(s.Text, subjectVars, ctx)
		if err != nil {
			return nil, blockError(fmt.Sprintf("subject[%d]", s.SortOrder), err)
		}
		for _, w := range res.Warnings {
			draft.Warnings = append(draft.Warnings, Warning{Subject: s.SortOrder, Token: w.Token, Message: w.Message})
		}
		text := strings.TrimSpace(res.Text)
		draft.Variants = append(draft.Variants, SubjectVariant{
			SortOrder:  s.SortOrder,
			Text:       text,
			Violations: subjectViolations(guardrails.Validate(guardrails.Input{Subject: text}, rulesOf(t))),
		})
	}
	draft.Subject = draft.Variants[0].Text
	if opts.SubjectVariants < 2 {
		draft.Variants = nil
	}

	if t.CTA != nil {
		draft.CTA = &CTA{Type: t.CTA.Type, Text: t.CTA.Text}
		if t.CTA.URL != nil {
			draft.CTA.URL = *t.CTA.URL
		}
	}
	a.finish(draft, t)
	return draft, nil
}

// finish validates the current subject and body and stamps the hash.
func (a *Assembler) finish(d *Draft, t *templates.Template) {
	d.Violations = guardrails.Validate(guardrails.Input{Subject: d.Subject, Body: d.Body}, rulesOf(t))
	if d.Violations == nil {
		d.Violations = []guardrails.Violation{}
	}
	d.Hash = Hash(d.Subject, d.Body)
}

func rulesOf(t *templates.Template) guardrails.Rules {
	return guardrails.Rules{MaxWords: t.MaxWords, ForbiddenClaims: t.ForbiddenClaims.Sorted()}
}

func subjectViolations(in []guardrails.Violation) []guardrails.Violation {
	var out []guardrails.Violation
	for _, v := range in {
		if v.Field == guardrails.FieldSubject {
			out = append(out, v)
		}
	}
	return out
}

// blockError re-issues a resolver failure with the block that caused it.
func blockError(block string, err error) error {
	token, msg := "", err.Error()
	if issues := apperr.IssuesOf(err); len(issues) > 0 {
		token, msg = issues[0].Token, issues[0].Message
	}
	return apperr.Resolution(assembleOp, block, token, msg)
}

func blockLabel(b templates.Block) string {
	return fmt.Sprintf("%s#%d", b.BlockType, b.SortOrder)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
