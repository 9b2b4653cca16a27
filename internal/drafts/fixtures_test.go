package drafts

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/activity"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/leads"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/templates"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

var fixedNow = time.Date(2026, 3, 5, 9, 30, 0, 0, time.UTC)

type harness struct {
	templates *templates.Service
	leads     *leads.InMemoryRepository
	timeline  *activity.MemoryTimeline
	notifier  *activity.Notifier
	service   *Service
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	var n atomic.Int64
	h := &harness{
		templates: templates.NewService(templates.NewInMemoryRepository(), logging.Default(),
			templates.WithClock(func() time.Time { return fixedNow }),
			templates.WithIDGenerator(func() string { return fmt.Sprintf("id-%d", n.Add(1)) }),
		),
		leads:    leads.NewInMemoryRepository(),
		timeline: activity.NewMemoryTimeline(),
	}
	h.notifier = activity.NewNotifier(h.timeline, time.Second, nil)
	base := []Option{WithClock(func() time.Time { return fixedNow }), WithNotifier(h.notifier)}
	h.service = NewService(h.templates, h.leads, Config{BatchConcurrency: 2}, nil, append(base, opts...)...)
	h.leads.Put(&leads.Lead{
		ID:         "lead-1",
		FirstName:  "Sarah",
		Email:      "sarah@acme.io",
		Company:    "Acme",
		SenderName: "Alex",
		Stage:      leads.StageEngaged,
		Language:   "en",
	})
	return h
}

func (h *harness) create(t *testing.T, in templates.Input) *templates.Template {
	t.Helper()
	tmpl, err := h.templates.Create(context.Background(), in)
	require.NoError(t, err)
	return tmpl
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

// scenarioInput is the two-block greeting/signature template.
func scenarioInput() templates.Input {
	return templates.Input{
		Name:     "Greeting",
		Category: templates.CategoryFollowUp,
		Goal:     templates.GoalBookMeeting,
		Subjects: []templates.SubjectInput{{SortOrder: 1, Subject: "Hi {{lead_name}}"}},
		Blocks: []templates.BlockInput{
			{BlockType: templates.BlockOpening, SortOrder: 1, Content: "Hi {{lead_name}}", AllowedVars: []string{"lead_name"}},
			{BlockType: templates.BlockSignature, SortOrder: 2, Content: "Thanks,\n{{sender_name}}", AllowedVars: []string{"sender_name"}},
		},
	}
}

func richInput() templates.Input {
	return templates.Input{
		Name:            "Follow up",
		Category:        templates.CategoryFollowUp,
		Goal:            templates.GoalBookMeeting,
		Tone:            "friendly",
		ForbiddenClaims: []string{"guaranteed ROI"},
		Subjects: []templates.SubjectInput{
			{SortOrder: 1, Subject: "Hi {{lead_name}}"},
			{SortOrder: 2, Subject: "Guaranteed ROI for {{company_name}}"},
		},
		Blocks: []templates.BlockInput{
			{BlockType: templates.BlockOpening, SortOrder: 1, Content: "Hi {{lead_name}}, in a {{tone}} note.", AllowedVars: []string{"lead_name", "tone"}},
			{BlockType: templates.BlockValueProp, SortOrder: 2, Content: "{{company_name}} in {{industry}} could run leaner events.",
				AllowedVars: []string{"company_name", "industry"}, AIGuidance: strPtr("keep it to one sentence")},
			{BlockType: templates.BlockCTA, SortOrder: 3, Content: "{{cta_text}}: {{cta_url}}", AllowedVars: []string{"cta_text", "cta_url"}},
		},
		CTA: &templates.CTAInput{Type: templates.CTABookCall, Text: "Book a call", URL: strPtr("https://eventra.app/meet")},
	}
}
