// Package drafts assembles personalized emails from templates and records
// confirmed sends.
package drafts

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/guardrails"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/templates"
)

const DefaultSeparator = "\n\n"

// Options shape one assembly. Zero values take the template's own settings.
type Options struct {
	Tone     string `json:"tone,omitempty" validate:"max=50"`
	Language string `json:"language,omitempty" validate:"max=10"`
	// SubjectVariants asks for up to N rendered active subjects.
	SubjectVariants int  `json:"subject_variants,omitempty" validate:"gte=0,lte=10"`
	Polish          bool `json:"polish,omitempty"`
	// BlockSeparator nil means DefaultSeparator.
	BlockSeparator *string `json:"block_separator,omitempty"`
}

// Warning is an allowed variable the lead context could not fill.
type Warning struct {
	Block   string `json:"block,omitempty"`
	Subject int    `json:"subject,omitempty"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

// SubjectVariant is one rendered subject line.
type SubjectVariant struct {
	SortOrder  int                    `json:"sort_order"`
	Text       string                 `json:"text"`
	Violations []guardrails.Violation `json:"violations,omitempty"`
}

type CTA struct {
	Type templates.CTAType `json:"cta_type"`
	Text string            `json:"cta_text"`
	URL  string            `json:"cta_url,omitempty"`
}

// Draft is the assembled email. Violations never stop a draft from being
// returned; they gate automated sending only.
type Draft struct {
	TemplateID      string                 `json:"template_id"`
	TemplateVersion int                    `json:"template_version"`
	LeadID          string                 `json:"lead_id,omitempty"`
	Subject         string                 `json:"subject"`
	Body            string                 `json:"body"`
	Variants        []SubjectVariant       `json:"subject_variants,omitempty"`
	Violations      []guardrails.Violation `json:"violations"`
	Warnings        []Warning              `json:"warnings,omitempty"`
	CTA             *CTA                   `json:"cta,omitempty"`
	Tone            string                 `json:"tone,omitempty"`
	Language        string                 `json:"language,omitempty"`
	Polished        bool                   `json:"polished"`
	Hash            string                 `json:"hash"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

// Blocking reports whether automated sending must refuse this draft.
func (d *Draft) Blocking() bool {
	return guardrails.Blocking(d.Violations)
}

// Hash identifies a draft by its subject and body.
func Hash(subject, body string) string {
	sum := sha256.Sum256([]byte(subject + "\x00" + body))
	return hex.EncodeToString(sum[:])
}
