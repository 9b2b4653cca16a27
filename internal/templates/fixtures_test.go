package templates

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

var fixedNow = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func newTestService(repo Repository, opts ...Option) *Service {
	if repo == nil {
		repo = NewInMemoryRepository()
	}
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(sequentialIDs()),
	}
	return NewService(repo, logging.Default(), append(base, opts...)...)
}

func sampleInput() Input {
	return Input{
		Name:            "Post-event follow up",
		Category:        CategoryFollowUp,
		Goal:            GoalBookMeeting,
		Tone:            "friendly",
		Personas:        []string{"vp_marketing"},
		ForbiddenClaims: []string{"guaranteed ROI"},
		Subjects: []SubjectInput{
			{SortOrder: 1, Subject: "Hi {{lead_name}}"},
			{SortOrder: 2, Subject: "Quick question about {{company_name}}"},
		},
		Blocks: []BlockInput{
			{BlockType: BlockOpening, SortOrder: 1, Content: "Hi {{lead_name}},", AllowedVars: []string{"lead_name"}},
			{BlockType: BlockValueProp, SortOrder: 2, Content: "{{company_name}} could run leaner events.", AllowedVars: []string{"company_name"}},
			{BlockType: BlockSignature, SortOrder: 3, Content: "Best,\n{{sender_name}}", AllowedVars: []string{"sender_name"}},
		},
		CTA: &CTAInput{Type: CTABookCall, Text: "Book a call", URL: strPtr("https://eventra.app/meet")},
	}
}
