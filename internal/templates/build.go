package templates

import (
	"fmt"
	"strings"
	"time"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/stringset"
)

const defaultLanguage = "en"

func fromInput(in Input, newID func() string, now time.Time) *Template {
	t := &Template{
		ID:              newID(),
		Name:            strings.TrimSpace(in.Name),
		Category:        in.Category,
		Goal:            in.Goal,
		Tone:            strings.TrimSpace(in.Tone),
		Language:        strings.TrimSpace(in.Language),
		Status:          in.Status,
		Personas:        stringset.New(in.Personas...),
		MaxWords:        copyInt(in.MaxWords),
		ForbiddenClaims: stringset.New(in.ForbiddenClaims...),
		Notes:           in.Notes,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if t.Language == "" {
		t.Language = defaultLanguage
	}
	if t.Status == "" {
		t.Status = StatusEnabled
	}
	for _, s := range in.Subjects {
		t.Subjects = append(t.Subjects, subjectFromInput(s, newID()))
	}
	for _, b := range in.Blocks {
		t.Blocks = append(t.Blocks, blockFromInput(b, newID()))
	}
	if in.CTA != nil {
		t.CTA = ctaFromInput(*in.CTA, newID())
	}
	return t
}

func subjectFromInput(in SubjectInput, id string) Subject {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return Subject{ID: id, SortOrder: in.SortOrder, Text: in.Subject, IsActive: active}
}

func blockFromInput(in BlockInput, id string) Block {
	return Block{
		ID:          id,
		BlockType:   in.BlockType,
		SortOrder:   in.SortOrder,
		Content:     in.Content,
		AllowedVars: stringset.New(in.AllowedVars...),
		AIGuidance:  copyString(in.AIGuidance),
	}
}

func ctaFromInput(in CTAInput, id string) *CTA {
	c := &CTA{ID: id, Type: in.Type, Text: strings.TrimSpace(in.Text)}
	if in.URL != nil && strings.TrimSpace(*in.URL) != "" {
		u := strings.TrimSpace(*in.URL)
		c.URL = &u
	}
	return c
}

// applyPatch returns a patched copy of cur. Issues found while applying
// collection edits (duplicate orders, unknown ids) are returned alongside.
func applyPatch(cur *Template, p Patch, newID func() string) (*Template, []apperr.Issue) {
	t := cur.Clone()
	var issues []apperr.Issue

	if p.Name != nil {
		t.Name = strings.TrimSpace(*p.Name)
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Goal != nil {
		t.Goal = *p.Goal
	}
	if p.Tone != nil {
		t.Tone = strings.TrimSpace(*p.Tone)
	}
	if p.Language != nil {
		t.Language = strings.TrimSpace(*p.Language)
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Personas != nil {
		t.Personas = stringset.New(*p.Personas...)
	}
	t.Personas.Add(p.AddPersonas...)
	t.Personas.Remove(p.RemovePersonas...)
	if p.ClearMaxWords {
		t.MaxWords = nil
	}
	if p.MaxWords != nil {
		t.MaxWords = copyInt(p.MaxWords)
	}
	if p.ForbiddenClaims != nil {
		t.ForbiddenClaims = stringset.New(*p.ForbiddenClaims...)
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}

	if p.Subjects != nil {
		orders := make([]int, len(*p.Subjects))
		subjects := make([]Subject, 0, len(*p.Subjects))
		for i, in := range *p.Subjects {
			orders[i] = in.SortOrder
			subjects = append(subjects, subjectFromInput(in, keepOrNewID(in.ID, newID)))
		}
		issues = append(issues, checkUnique("subjects", orders)...)
		t.Subjects = subjects
	}
	t.Subjects = densifySubjects(t.Subjects)
	for _, id := range p.RemoveSubjects {
		idx := indexSubject(t.Subjects, id)
		if idx < 0 {
			issues = append(issues, apperr.Issue{Field: "remove_subjects", Message: fmt.Sprintf("subject %q not found", id)})
			continue
		}
		t.Subjects = append(t.Subjects[:idx], t.Subjects[idx+1:]...)
	}
	for _, in := range p.AddSubjects {
		s := subjectFromInput(in, newID())
		t.Subjects = insertAt(t.Subjects, in.SortOrder, s)
	}
	t.Subjects = renumberSubjects(t.Subjects)

	if p.Blocks != nil {
		orders := make([]int, len(*p.Blocks))
		blocks := make([]Block, 0, len(*p.Blocks))
		for i, in := range *p.Blocks {
			orders[i] = in.SortOrder
			blocks = append(blocks, blockFromInput(in, keepOrNewID(in.ID, newID)))
		}
		issues = append(issues, checkUnique("blocks", orders)...)
		t.Blocks = blocks
	}
	t.Blocks = densifyBlocks(t.Blocks)
	for _, id := range p.RemoveBlocks {
		idx := indexBlock(t.Blocks, id)
		if idx < 0 {
			issues = append(issues, apperr.Issue{Field: "remove_blocks", Message: fmt.Sprintf("block %q not found", id)})
			continue
		}
		t.Blocks = append(t.Blocks[:idx], t.Blocks[idx+1:]...)
	}
	for _, in := range p.AddBlocks {
		b := blockFromInput(in, newID())
		t.Blocks = insertAt(t.Blocks, in.SortOrder, b)
	}
	t.Blocks = renumberBlocks(t.Blocks)

	if p.RemoveCTA {
		t.CTA = nil
	}
	if p.CTA != nil {
		id := newID()
		if t.CTA != nil {
			id = t.CTA.ID
		}
		t.CTA = ctaFromInput(*p.CTA, id)
	}
	return t, issues
}

// duplicateOf deep-copies src under a new identity.
func duplicateOf(src *Template, name string, newID func() string, now time.Time) *Template {
	t := src.Clone()
	t.ID = newID()
	t.Name = name
	t.Version = 1
	t.UsageCount = 0
	t.IsSystem = false
	t.CreatedAt = now
	t.UpdatedAt = now
	t.DeletedAt = nil
	for i := range t.Subjects {
		t.Subjects[i].ID = newID()
	}
	for i := range t.Blocks {
		t.Blocks[i].ID = newID()
	}
	if t.CTA != nil {
		t.CTA.ID = newID()
	}
	return t
}

// insertAt places v at 1-based position pos; out-of-range positions append.
func insertAt[T any](items []T, pos int, v T) []T {
	if pos < 1 || pos > len(items) {
		return append(items, v)
	}
	items = append(items, v)
	copy(items[pos:], items[pos-1:])
	items[pos-1] = v
	return items
}

func renumberSubjects(subjects []Subject) []Subject {
	for i := range subjects {
		subjects[i].SortOrder = i + 1
	}
	return subjects
}

func renumberBlocks(blocks []Block) []Block {
	for i := range blocks {
		blocks[i].SortOrder = i + 1
	}
	return blocks
}

func indexSubject(subjects []Subject, id string) int {
	for i, s := range subjects {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func indexBlock(blocks []Block, id string) int {
	for i, b := range blocks {
		if b.ID == id {
			return i
		}
	}
	return -1
}

func keepOrNewID(id string, newID func() string) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	return newID()
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
