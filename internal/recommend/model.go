// Package recommend ranks enabled templates for one lead and decides
// whether to send now, wait, or not send at all.
package recommend

import (
	"time"
)

// Decision is the send verdict.
type Decision string

const (
	DecisionYes  Decision = "yes"
	DecisionWait Decision = "wait"
	DecisionNo   Decision = "no"
)

// Candidate is one ranked template. Every candidate carries at least one reason.
type Candidate struct {
	TemplateID      string   `json:"template_id"`
	TemplateName    string   `json:"template_name"`
	TemplateVersion int      `json:"template_version"`
	Score           int      `json:"score"`
	RuleScore       int      `json:"rule_score"`
	AIScore         *int     `json:"ai_score,omitempty"`
	Reasons         []string `json:"reasons"`
	MissingVars     []string `json:"missing_vars,omitempty"`
}

// Risk flag codes.
const (
	FlagDoNotContact   = "do_not_contact"
	FlagNoEmail        = "no_email"
	FlagRecentContact  = "recent_contact"
	FlagHighFrequency  = "high_frequency"
	FlagMissingVars    = "missing_variables"
	FlagLeadLost       = "lead_lost"
	FlagNoCandidates   = "no_eligible_templates"
	FlagHistoryUnknown = "activity_unavailable"
)

// RiskFlag is a warning attached to the recommendation. Blocking flags force
// DecisionNo regardless of score.
type RiskFlag struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Blocking bool   `json:"blocking"`
}

// Recommendation is the ranked output for a lead.
type Recommendation struct {
	LeadID         string      `json:"lead_id"`
	ShouldSend     Decision    `json:"should_send"`
	Ranked         []Candidate `json:"ranked"`
	RiskFlags      []RiskFlag  `json:"risk_flags"`
	Fallback       bool        `json:"fallback"`
	FallbackReason string      `json:"fallback_reason,omitempty"`
	Filtered       int         `json:"filtered"`
	GeneratedAt    time.Time   `json:"generated_at"`
}

// Top returns the best candidate, if any.
func (r *Recommendation) Top() (Candidate, bool) {
	if r == nil || len(r.Ranked) == 0 {
		return Candidate{}, false
	}
	return r.Ranked[0], true
}

// Config tunes scoring and decisions.
type Config struct {
	SendThreshold       int
	WaitThreshold       int
	RecentContactWindow time.Duration
	// AIWeight is the share of the combined score taken from the model, 0..1.
	AIWeight float64
}

const (
	DefaultSendThreshold = 70
	DefaultWaitThreshold = 40
	DefaultRecentWindow  = 24 * time.Hour
	DefaultAIWeight      = 0.5

	frequencyWindow    = 72 * time.Hour
	frequencyThreshold = 3
)

func (c Config) withDefaults() Config {
	if c.SendThreshold <= 0 {
		c.SendThreshold = DefaultSendThreshold
	}
	if c.WaitThreshold <= 0 {
		c.WaitThreshold = DefaultWaitThreshold
	}
	if c.WaitThreshold > c.SendThreshold {
		c.WaitThreshold = c.SendThreshold
	}
	if c.RecentContactWindow <= 0 {
		c.RecentContactWindow = DefaultRecentWindow
	}
	if c.AIWeight <= 0 || c.AIWeight > 1 {
		c.AIWeight = DefaultAIWeight
	}
	return c
}
