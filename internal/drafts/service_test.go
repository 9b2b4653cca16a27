package drafts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/activity"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/guardrails"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/llm"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/stringset"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/templates"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/variables"
)

func TestAssembleScenario(t *testing.T) {
	h := newHarness(t)
	tmpl := h.create(t, scenarioInput())

	d, err := h.service.AssembleDraft(context.Background(), tmpl.ID, "lead-1", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Hi Sarah", d.Subject)
	assert.Equal(t, "Hi Sarah\n\nThanks,\nAlex", d.Body)
	assert.True(t, strings.HasSuffix(d.Body, "Alex"))
	assert.Empty(t, d.Violations)
	assert.Empty(t, d.Warnings)
	assert.False(t, d.Blocking())
	assert.Equal(t, "lead-1", d.LeadID)
	assert.Equal(t, tmpl.Version, d.TemplateVersion)

	got, err := h.templates.Get(context.Background(), tmpl.ID)
	require.NoError(t, err)
	assert.Zero(t, got.UsageCount, "assembly never records usage")
}

func TestAssembleIsIdempotent(t *testing.T) {
	h := newHarness(t)
	tmpl := h.create(t, richInput())

	first, err := h.service.AssembleDraft(context.Background(), tmpl.ID, "lead-1", Options{SubjectVariants: 2})
	require.NoError(t, err)
	second, err := h.service.AssembleDraft(context.Background(), tmpl.ID, "lead-1", Options{SubjectVariants: 2})
	require.NoError(t, err)

	assert.Equal(t, first.Subject, second.Subject)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, first.Variants, second.Variants)
}

func TestAssembleFillsDraftContextAndWarns(t *testing.T) {
	h := newHarness(t)
	tmpl := h.create(t, richInput())

	d, err := h.service.AssembleDraft(context.Background(), tmpl.ID, "lead-1", Options{})
	require.NoError(t, err)
	assert.Equal(t,
		"Hi Sarah, in a friendly note.\n\nAcme in {{industry}} could run leaner events.\n\nBook a call: https://eventra.app/meet",
		d.Body)
	require.Len(t, d.Warnings, 1)
	assert.Equal(t, "value_prop#2", d.Warnings[0].Block)
	assert.Equal(t, "industry", d.Warnings[0].Token)
	require.NotNil(t, d.CTA)
	assert.Equal(t, "https://eventra.app/meet", d.CTA.URL)
	assert.Nil(t, d.Variants)
}

func TestRegenerationWithDifferentTone(t *testing.T) {
	h := newHarness(t)
	tmpl := h.create(t, richInput())

	friendly, err := h.service.AssembleDraft(context.Background(), tmpl.ID, "lead-1", Options{})
	require.NoError(t, err)
	formal, err := h.service.AssembleDraft(context.Background(), tmpl.ID, "lead-1", Options{Tone: "formal"})
	require.NoError(t, err)

	assert.Contains(t, friendly.Body, "in a friendly note")
	assert.Contains(t, formal.Body, "in a formal note")
	assert.NotContains(t, formal.Body, "friendly")
	assert.Equal(t, "formal", formal.Tone)
	assert.NotEqual(t, friendly.Hash, formal.Hash)
}

func TestSubjectVariantsAreValidatedIndependently(t *testing.T) {
	h := newHarness(t)
	tmpl := h.create(t, richInput())

	d, err := h.service.AssembleDraft(context.Background(), tmpl.ID, "lead-1", Options{SubjectVariants: 5})
	require.NoError(t, err)
	require.Len(t, d.Variants, 2)
	assert.Equal(t, "Hi Sarah", d.Variants[0].Text)
	assert.Empty(t, d.Variants[0].Violations)
	assert.Equal(t, "Guaranteed ROI for Acme", d.Variants[1].Text)
	require.Len(t, d.Variants[1].Violations, 1)
	assert.Equal(t, guardrails.KindForbiddenClaim, d.Variants[1].Violations[0].Kind)
	assert.Equal(t, "Hi Sarah", d.Subject)
	assert.Empty(t, d.Violations)
}

func TestCustomSeparator(t *testing.T) {
	h := newHarness(t)
	tmpl := h.create(t, scenarioInput())

	d, err := h.service.AssembleDraft(context.Background(), tmpl.ID, "lead-1", Options{BlockSeparator: strPtr("\n---\n")})
	require.NoError(t, err)
	assert.Equal(t, "Hi Sarah\n---\nThanks,\nAlex", d.Body)
}

func TestAssembleRequiresEnabledTemplate(t *testing.T) {
	h := newHarness(t)
	in := scenarioInput()
	in.Status = templates.StatusDisabled
	tmpl := h.create(t, in)

	_, err := h.service.AssembleDraft(context.Background(), tmpl.ID, "lead-1", Options{})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = h.service.AssembleDraft(context.Background(), "nope", "lead-1", Options{})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = h.service.AssembleDraft(context.Background(), tmpl.ID, "ghost", Options{})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestAssemblerNamesOffendingBlock(t *testing.T) {
	tmpl := &templates.Template{
		ID:       "t1",
		Status:   templates.StatusEnabled,
		Subjects: []templates.Subject{{SortOrder: 1, Text: "Hello", IsActive: true}},
		Blocks: []templates.Block{
			{BlockType: templates.BlockOpening, SortOrder: 1, Content: "Hi {{lead_name}}", AllowedVars: stringset.New("lead_name")},
			{BlockType: templates.BlockProof, SortOrder: 2, Content: "Deals like {{deal_size}}", AllowedVars: stringset.New("lead_name")},
		},
	}
	a := NewAssembler(nil, "")

	d, err := a.Assemble(tmpl, variables.Context{"lead_name": "Sarah", "deal_size": "$1M"}, Options{})
	require.Error(t, err)
	assert.Nil(t, d, "no partial draft")
	assert.True(t, errors.Is(err, apperr.ErrResolution))
	issues := apperr.IssuesOf(err)
	require.Len(t, issues, 1)
	assert.Equal(t, "proof#2", issues[0].Block)
	assert.Equal(t, "deal_size", issues[0].Token)
}

func TestAssemblerLengthViolation(t *testing.T) {
	tmpl := &templates.Template{
		ID:       "t1",
		Status:   templates.StatusEnabled,
		MaxWords: intPtr(150),
		Subjects: []templates.Subject{{SortOrder: 1, Text: "Hello", IsActive: true}},
		Blocks: []templates.Block{
			{BlockType: templates.BlockValueProp, SortOrder: 1, Content: strings.TrimSpace(strings.Repeat("word ", 151))},
		},
	}
	d, err := NewAssembler(nil, "").Assemble(tmpl, variables.Context{}, Options{})
	require.NoError(t, err)
	require.Len(t, d.Violations, 1)
	assert.Equal(t, guardrails.KindLength, d.Violations[0].Kind)
	assert.Equal(t, 151, d.Violations[0].Count)
	assert.True(t, d.Blocking())
}

func TestConfirmSentRecordsUsageOnce(t *testing.T) {
	h := newHarness(t)
	tmpl := h.create(t, scenarioInput())
	d, err := h.service.AssembleDraft(context.Background(), tmpl.ID, "lead-1", Options{})
	require.NoError(t, err)

	req := ConfirmRequest{TemplateID: tmpl.ID, LeadID: "lead-1", Subject: d.Subject, Body: d.Body, Automated: true}
	conf, err := h.service.ConfirmSent(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, conf.Duplicate)
	assert.Equal(t, int64(1), conf.UsageCount)
	assert.Equal(t, d.Hash, conf.DraftHash)

	again, err := h.service.ConfirmSent(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)

	got, err := h.templates.Get(context.Background(), tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UsageCount)
	assert.Equal(t, tmpl.Version, got.Version, "usage does not bump the version")

	h.notifier.Wait()
	entries := h.timeline.Entries("lead-1")
	require.Len(t, entries, 1)
	assert.Equal(t, activity.EventEmailSent, entries[0].Type)
	assert.Equal(t, tmpl.ID, entries[0].TemplateID)
	assert.True(t, entries[0].Automated)
	assert.Equal(t, fixedNow, entries[0].OccurredAt)
}

func TestAutomatedSendRefusesViolations(t *testing.T) {
	h := newHarness(t)
	tmpl := h.create(t, richInput())

	req := ConfirmRequest{TemplateID: tmpl.ID, LeadID: "lead-1", Subject: "Hi", Body: "Guaranteed ROI in 30 days", Automated: true}
	_, err := h.service.ConfirmSent(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	req.Automated = false
	conf, err := h.service.ConfirmSent(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), conf.UsageCount)
	h.notifier.Wait()
}

func TestAutomatedSendRefusesUnfilledPlaceholders(t *testing.T) {
	h := newHarness(t)
	tmpl := h.create(t, scenarioInput())

	req := ConfirmRequest{TemplateID: tmpl.ID, LeadID: "lead-1", Subject: "Hi {{lead_name}}", Body: "Hi {{lead_name}},\n\nBest,\nAlex", Automated: true}
	_, err := h.service.ConfirmSent(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	issues := apperr.IssuesOf(err)
	require.Len(t, issues, 2)
	assert.Equal(t, "subject", issues[0].Field)
	assert.Equal(t, "{{lead_name}}", issues[0].Token)
	assert.Equal(t, "body", issues[1].Field)

	req.Automated = false
	conf, err := h.service.ConfirmSent(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), conf.UsageCount)
	h.notifier.Wait()
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, activity.Entry) error {
	return errors.New("timeline down")
}

func TestConfirmSentSurvivesTimelineFailure(t *testing.T) {
	notifier := activity.NewNotifier(failingRecorder{}, 0, nil)
	h := newHarness(t, WithNotifier(notifier))
	tmpl := h.create(t, scenarioInput())

	conf, err := h.service.ConfirmSent(context.Background(), ConfirmRequest{
		TemplateID: tmpl.ID, LeadID: "lead-1", Subject: "Hi Sarah", Body: "Hi Sarah",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), conf.UsageCount)
	notifier.Wait()
}

func TestPolishRevalidates(t *testing.T) {
	client := llm.ClientFunc(func(_ context.Context, req llm.Request) (llm.Response, error) {
		if !strings.Contains(req.Messages[0].Content, "keep it to one sentence") {
			return llm.Response{}, errors.New("guidance missing from prompt")
		}
		return llm.Response{Text: "Sarah, Acme will see guaranteed ROI. Book a call: https://eventra.app/meet"}, nil
	})
	h := newHarness(t, WithPolisher(NewPolisher(llm.NewGuarded(client, 0, nil, nil), "m")))
	in := richInput()
	in.Blocks[1].Content = "{{company_name}} could run leaner events."
	in.Blocks[1].AllowedVars = []string{"company_name"}
	tmpl := h.create(t, in)

	d, err := h.service.AssembleDraft(context.Background(), tmpl.ID, "lead-1", Options{Polish: true})
	require.NoError(t, err)
	assert.True(t, d.Polished)
	assert.Equal(t, "Sarah, Acme will see guaranteed ROI. Book a call: https://eventra.app/meet", d.Body)
	require.Len(t, d.Violations, 1)
	assert.Equal(t, guardrails.KindForbiddenClaim, d.Violations[0].Kind)
	assert.Equal(t, Hash(d.Subject, d.Body), d.Hash)
}

func TestPolishRejectsNewTokens(t *testing.T) {
	client := llm.ClientFunc(func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{Text: "Hi {{lead_name}}, talk soon. {{deal_size}}"}, nil
	})
	h := newHarness(t, WithPolisher(NewPolisher(llm.NewGuarded(client, 0, nil, nil), "m")))
	tmpl := h.create(t, scenarioInput())

	_, err := h.service.AssembleDraft(context.Background(), tmpl.ID, "lead-1", Options{Polish: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrResolution))
}

func TestPolishFailureIsFatal(t *testing.T) {
	client := llm.ClientFunc(func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{}, errors.New("provider down")
	})
	h := newHarness(t, WithPolisher(NewPolisher(llm.NewGuarded(client, 0, nil, nil), "m")))
	tmpl := h.create(t, scenarioInput())

	_, err := h.service.AssembleDraft(context.Background(), tmpl.ID, "lead-1", Options{Polish: true})
	assert.True(t, errors.Is(err, apperr.ErrExternalCapability))

	plain := newHarness(t)
	tmpl = plain.create(t, scenarioInput())
	_, err = plain.service.AssembleDraft(context.Background(), tmpl.ID, "lead-1", Options{Polish: true})
	assert.True(t, errors.Is(err, apperr.ErrExternalCapability))
}
