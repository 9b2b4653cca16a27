// Package activity records confirmed sends on a lead's timeline and serves
// the contact signals the recommendation engine scores against.
package activity

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// EventType names a timeline entry kind.
type EventType string

const EventEmailSent EventType = "email_sent"

// Entry is one timeline event.
type Entry struct {
	LeadID          string    `json:"lead_id" dynamodbav:"leadId"`
	SortKey         string    `json:"-" dynamodbav:"sk"`
	Type            EventType `json:"type" dynamodbav:"type"`
	TemplateID      string    `json:"template_id" dynamodbav:"templateId"`
	TemplateVersion int       `json:"template_version" dynamodbav:"templateVersion"`
	Subject         string    `json:"subject,omitempty" dynamodbav:"subject,omitempty"`
	DraftHash       string    `json:"draft_hash,omitempty" dynamodbav:"draftHash,omitempty"`
	Automated       bool      `json:"automated" dynamodbav:"automated"`
	OccurredAt      time.Time `json:"occurred_at" dynamodbav:"occurredAt"`
}

// Signals summarizes a lead's outreach history.
type Signals struct {
	LastContactAt   *time.Time `json:"last_contact_at,omitempty"`
	PriorEmailCount int        `json:"prior_email_count"`
	LastTemplateID  string     `json:"last_template_id,omitempty"`
}

// ContactedWithin reports whether the last contact falls inside window.
func (s Signals) ContactedWithin(now time.Time, window time.Duration) bool {
	return s.LastContactAt != nil && now.Sub(*s.LastContactAt) < window
}

// Recorder appends entries to a timeline.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// SignalSource derives Signals for a lead.
type SignalSource interface {
	Signals(ctx context.Context, leadID string) (Signals, error)
}

// Timeline both records and summarizes.
type Timeline interface {
	Recorder
	SignalSource
}

// ErrInvalidEntry is returned for entries without a lead id.
var ErrInvalidEntry = errors.New("activity: entry requires lead id")

// MemoryTimeline keeps entries in process memory.
type MemoryTimeline struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

func NewMemoryTimeline() *MemoryTimeline {
	return &MemoryTimeline{entries: make(map[string][]Entry)}
}

func (m *MemoryTimeline) Record(_ context.Context, e Entry) error {
	if e.LeadID == "" {
		return ErrInvalidEntry
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.LeadID] = append(m.entries[e.LeadID], e)
	return nil
}

func (m *MemoryTimeline) Signals(_ context.Context, leadID string) (Signals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return summarize(m.entries[leadID]), nil
}

// Entries returns a lead's entries oldest first.
func (m *MemoryTimeline) Entries(leadID string) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]Entry(nil), m.entries[leadID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out
}

func summarize(entries []Entry) Signals {
	var s Signals
	for _, e := range entries {
		if e.Type != EventEmailSent {
			continue
		}
		s.PriorEmailCount++
		if s.LastContactAt == nil || e.OccurredAt.After(*s.LastContactAt) {
			at := e.OccurredAt
			s.LastContactAt = &at
			s.LastTemplateID = e.TemplateID
		}
	}
	return s
}

// Fanout records to every recorder and joins their errors.
type Fanout []Recorder

func (f Fanout) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, r := range f {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
