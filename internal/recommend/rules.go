package recommend

import (
	"fmt"
	"strings"
	"time"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/activity"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/leads"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/stringset"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/templates"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/variables"
)

const (
	baseScore           = 40
	personaMatchBonus   = 25
	personaOpenBonus    = 10
	personaMissPenalty  = 10
	industryBonus       = 10
	languageMatchBonus  = 10
	languageMissPenalty = 20
	firstTouchBonus     = 10
	followUpBonus       = 15
	repeatPenalty       = 15
	stageGoalBonus      = 10
	missingVarPenalty   = 5
	missingVarCap       = 20
)

// draftSupplied are filled by the assembly step, not the lead.
var draftSupplied = stringset.New("cta_text", "cta_url", "tone", "language")

// input is everything rule scoring looks at for one lead.
type input struct {
	lead    *leads.Lead
	ctx     variables.Context
	signals activity.Signals
	now     time.Time
}

// scoreRules is deterministic: the same lead, signals and template always
// give the same score and reasons.
func scoreRules(in input, t *templates.Template, resolver *variables.Resolver) Candidate {
	score := baseScore
	reasons := []string{fmt.Sprintf("%s/%s fits a %s lead", t.Category, t.Goal, in.lead.Stage)}

	persona := strings.ToLower(strings.TrimSpace(in.lead.Persona))
	switch {
	case len(t.Personas) == 0:
		score += personaOpenBonus
		reasons = append(reasons, "written for any persona")
	case persona != "" && t.Personas.HasFold(persona):
		score += personaMatchBonus
		reasons = append(reasons, fmt.Sprintf("targets persona %q", persona))
	case persona != "":
		score -= personaMissPenalty
		reasons = append(reasons, fmt.Sprintf("persona %q not targeted", persona))
	}

	referenced := referencedVars(t, resolver)
	if referenced.Has("industry") && strings.TrimSpace(in.lead.Industry) != "" {
		score += industryBonus
		reasons = append(reasons, fmt.Sprintf("personalizes on industry %q", in.lead.Industry))
	}

	if lang := strings.TrimSpace(in.lead.Language); lang != "" && t.Language != "" {
		if strings.EqualFold(lang, t.Language) {
			score += languageMatchBonus
			reasons = append(reasons, "matches lead language")
		} else {
			score -= languageMissPenalty
			reasons = append(reasons, fmt.Sprintf("template language %s differs from lead language %s", t.Language, lang))
		}
	}

	switch {
	case in.signals.PriorEmailCount == 0 && t.Category != templates.CategoryFollowUp:
		score += firstTouchBonus
		reasons = append(reasons, "suits a first touch")
	case in.signals.PriorEmailCount > 0 && t.Category == templates.CategoryFollowUp:
		score += followUpBonus
		reasons = append(reasons, fmt.Sprintf("follows %d earlier email(s)", in.signals.PriorEmailCount))
	}
	if in.signals.LastTemplateID != "" && in.signals.LastTemplateID == t.ID {
		score -= repeatPenalty
		reasons = append(reasons, "same template as the last send")
	}

	if t.Goal == templates.GoalBookMeeting &&
		(in.lead.Stage == leads.StageQualified || in.lead.Stage == leads.StageNegotiation) {
		score += stageGoalBonus
		reasons = append(reasons, "meeting ask suits a late-stage lead")
	}

	missing := missingVars(referenced, in.ctx, resolver.Aliases())
	if len(missing) > 0 {
		penalty := missingVarPenalty * len(missing)
		if penalty > missingVarCap {
			penalty = missingVarCap
		}
		score -= penalty
		reasons = append(reasons, fmt.Sprintf("no lead data for %s", strings.Join(missing, ", ")))
	}

	score = clamp(score)
	return Candidate{
		TemplateID:      t.ID,
		TemplateName:    t.Name,
		TemplateVersion: t.Version,
		Score:           score,
		RuleScore:       score,
		Reasons:         reasons,
		MissingVars:     missing,
	}
}

func referencedVars(t *templates.Template, resolver *variables.Resolver) stringset.Set {
	out := stringset.New()
	for _, s := range t.ActiveSubjects() {
		out = out.Union(resolver.Referenced(s.Text))
	}
	for _, b := range t.Blocks {
		out = out.Union(resolver.Referenced(b.Content))
	}
	return out
}

func missingVars(referenced stringset.Set, ctx variables.Context, aliases *variables.AliasTable) []string {
	var missing []string
	for _, key := range referenced.Sorted() {
		if draftSupplied.Has(key) {
			continue
		}
		if _, ok := ctx.Lookup(aliases, key); !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

func clamp(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}

// riskFlags derives warnings that are independent of the chosen template.
func riskFlags(in input, window time.Duration) []RiskFlag {
	var flags []RiskFlag
	if in.lead.DoNotContact {
		flags = append(flags, RiskFlag{Code: FlagDoNotContact, Message: "lead opted out of contact", Blocking: true})
	}
	if strings.TrimSpace(in.lead.Email) == "" {
		flags = append(flags, RiskFlag{Code: FlagNoEmail, Message: "lead has no email address", Blocking: true})
	}
	if in.signals.ContactedWithin(in.now, window) {
		flags = append(flags, RiskFlag{
			Code:     FlagRecentContact,
			Message:  fmt.Sprintf("contacted within last %s", humanWindow(window)),
			Blocking: true,
		})
	} else if in.signals.ContactedWithin(in.now, frequencyWindow) && in.signals.PriorEmailCount >= frequencyThreshold {
		flags = append(flags, RiskFlag{
			Code:    FlagHighFrequency,
			Message: fmt.Sprintf("%d emails sent, last one within %s", in.signals.PriorEmailCount, humanWindow(frequencyWindow)),
		})
	}
	if in.lead.Stage == leads.StageLost {
		flags = append(flags, RiskFlag{Code: FlagLeadLost, Message: "lead is marked lost"})
	}
	return flags
}

func humanWindow(d time.Duration) string {
	if d%(24*time.Hour) == 0 && d >= 48*time.Hour {
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	}
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return d.String()
}
