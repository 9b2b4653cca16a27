package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/activity"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/leads"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/llm"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/templates"
)

// AIScore is the model's verdict on one template.
type AIScore struct {
	Score   int
	Reasons []string
}

// Scorer is the optional qualitative pass. Templates missing from the
// returned map, or returned without reasons, are dropped from the ranking.
type Scorer interface {
	Score(ctx context.Context, lead *leads.Lead, signals activity.Signals, candidates []*templates.Template) (map[string]AIScore, error)
}

const scoringPrompt = `You rank outbound sales email templates for one lead.
Return only JSON: {"scores":[{"template_id":"...","score":0-100,"reasons":["..."]}]}.
Give every template at least one short, concrete reason. Do not rewrite templates.`

// LLMScorer asks the language model for a score and reasons per template.
type LLMScorer struct {
	llm   *llm.Guarded
	model string
}

func NewLLMScorer(client *llm.Guarded, model string) *LLMScorer {
	return &LLMScorer{llm: client, model: model}
}

type scoringLead struct {
	Stage        leads.Stage `json:"stage"`
	Title        string      `json:"title,omitempty"`
	Persona      string      `json:"persona,omitempty"`
	Industry     string      `json:"industry,omitempty"`
	CompanySize  string      `json:"company_size,omitempty"`
	Language     string      `json:"language,omitempty"`
	EventName    string      `json:"event_name,omitempty"`
	Topic        string      `json:"topic,omitempty"`
	PriorEmails  int         `json:"prior_emails"`
	LastTemplate string      `json:"last_template_id,omitempty"`
}

type scoringTemplate struct {
	ID       string   `json:"template_id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Goal     string   `json:"goal"`
	Tone     string   `json:"tone,omitempty"`
	Personas []string `json:"personas,omitempty"`
	Subject  string   `json:"subject,omitempty"`
	Body     string   `json:"body"`
}

type scoringReply struct {
	Scores []struct {
		TemplateID string   `json:"template_id"`
		Score      float64  `json:"score"`
		Reasons    []string `json:"reasons"`
	} `json:"scores"`
}

func (s *LLMScorer) Score(ctx context.Context, lead *leads.Lead, signals activity.Signals, candidates []*templates.Template) (map[string]AIScore, error) {
	payload := struct {
		Lead      scoringLead       `json:"lead"`
		Templates []scoringTemplate `json:"templates"`
	}{
		Lead: scoringLead{
			Stage:        lead.Stage,
			Title:        lead.Title,
			Persona:      lead.Persona,
			Industry:     lead.Industry,
			CompanySize:  lead.CompanySize,
			Language:     lead.Language,
			EventName:    lead.EventName,
			Topic:        lead.Topic,
			PriorEmails:  signals.PriorEmailCount,
			LastTemplate: signals.LastTemplateID,
		},
	}
	for _, t := range candidates {
		st := scoringTemplate{
			ID:       t.ID,
			Name:     t.Name,
			Category: string(t.Category),
			Goal:     string(t.Goal),
			Tone:     t.Tone,
			Personas: t.Personas.Sorted(),
		}
		if subjects := t.ActiveSubjects(); len(subjects) > 0 {
			st.Subject = subjects[0].Text
		}
		parts := make([]string, 0, len(t.Blocks))
		for _, b := range t.SortedBlocks() {
			parts = append(parts, b.Content)
		}
		st.Body = strings.Join(parts, "\n\n")
		payload.Templates = append(payload.Templates, st)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("recommend: encode scoring prompt: %w", err)
	}

	resp, err := s.llm.Call(ctx, llm.PurposeScoring, llm.Request{
		Model:       s.model,
		System:      []string{scoringPrompt},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: string(body)}},
		MaxTokens:   800,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	var reply scoringReply
	if err := llm.DecodeJSON(resp.Text, &reply); err != nil {
		return nil, fmt.Errorf("recommend: parse scoring reply: %w", err)
	}
	out := make(map[string]AIScore, len(reply.Scores))
	for _, sc := range reply.Scores {
		id := strings.TrimSpace(sc.TemplateID)
		if id == "" {
			continue
		}
		out[id] = AIScore{Score: normalize(sc.Score), Reasons: cleanReasons(sc.Reasons)}
	}
	return out, nil
}

// normalize clamps a model score into 0..100. Scores on a 0..1 scale are
// stretched first.
func normalize(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v > 0 && v < 1 {
		v *= 100
	}
	return clamp(int(math.Round(v)))
}

func cleanReasons(in []string) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
