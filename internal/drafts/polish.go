package drafts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/llm"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/templates"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/variables"
)

const polishOp = "drafts: polish"

const polishPrompt = `You edit outbound sales emails.
Rewrite the body for clarity and flow in the requested tone and language.
Keep every fact, name, link and the call to action. Do not add claims, numbers or promises.
Never output {{placeholders}}. Return only the rewritten body text.`

// Polisher rewrites an assembled body with the language model. The result
// is checked again by the guardrails; the model is never trusted to.
type Polisher struct {
	llm   *llm.Guarded
	model string
}

func NewPolisher(client *llm.Guarded, model string) *Polisher {
	return &Polisher{llm: client, model: model}
}

func (p *Polisher) Polish(ctx context.Context, t *templates.Template, d *Draft) (string, error) {
	var guidance []string
	for _, b := range t.SortedBlocks() {
		if b.AIGuidance != nil && strings.TrimSpace(*b.AIGuidance) != "" {
			guidance = append(guidance, fmt.Sprintf("- %s: %s", b.BlockType, strings.TrimSpace(*b.AIGuidance)))
		}
	}
	var user strings.Builder
	fmt.Fprintf(&user, "Tone: %s\nLanguage: %s\n", firstNonEmpty(d.Tone, "neutral"), firstNonEmpty(d.Language, "en"))
	if t.MaxWords != nil {
		fmt.Fprintf(&user, "Stay under %d words.\n", *t.MaxWords)
	}
	if len(guidance) > 0 {
		user.WriteString("Section guidance:\n")
		user.WriteString(strings.Join(guidance, "\n"))
		user.WriteString("\n")
	}
	user.WriteString("\nBody:\n")
	user.WriteString(d.Body)

	resp, err := p.llm.Call(ctx, llm.PurposePolish, llm.Request{
		Model:       p.model,
		System:      []string{polishPrompt},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: user.String()}},
		MaxTokens:   1024,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", apperr.External(polishOp, errors.New("model returned an empty body"))
	}
	return text, nil
}

// checkPolished rejects model output that introduces placeholders the
// deterministic body did not already carry.
func checkPolished(original, polished string, aliases *variables.AliasTable) error {
	before, _ := variables.Scan(original, aliases)
	kept := make(map[string]bool, len(before))
	for _, tok := range before {
		kept[tok.Raw] = true
	}
	after, malformed := variables.Scan(polished, aliases)
	if len(malformed) > 0 {
		return apperr.Resolution(polishOp, "body", malformed[0].Raw, "polished body contains a malformed placeholder")
	}
	for _, tok := range after {
		if !kept[tok.Raw] {
			return apperr.Resolution(polishOp, "body", tok.Name, "polished body introduced a variable token")
		}
	}
	return nil
}
