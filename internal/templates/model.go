package templates

import (
	"sort"
	"time"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/stringset"
)

// Category groups templates by where they sit in an outreach sequence.
type Category string

const (
	CategoryFollowUp    Category = "follow_up"
	CategoryWarmUp      Category = "warm_up"
	CategoryProductInfo Category = "product_info"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryFollowUp, CategoryWarmUp, CategoryProductInfo:
		return true
	}
	return false
}

// Goal is the outcome a template is written to drive.
type Goal string

const (
	GoalBookMeeting Goal = "book_meeting"
	GoalShareInfo   Goal = "share_info"
	GoalReengage    Goal = "reengage"
	GoalQualify     Goal = "qualify"
)

func (g Goal) Valid() bool {
	switch g {
	case GoalBookMeeting, GoalShareInfo, GoalReengage, GoalQualify:
		return true
	}
	return false
}

type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
)

func (s Status) Valid() bool {
	return s == StatusEnabled || s == StatusDisabled
}

// BlockType names the role a block plays in the body.
type BlockType string

const (
	BlockOpening      BlockType = "opening"
	BlockEventContext BlockType = "event_context"
	BlockValueProp    BlockType = "value_prop"
	BlockProof        BlockType = "proof"
	BlockCTA          BlockType = "cta"
	BlockSignature    BlockType = "signature"
)

func (b BlockType) Valid() bool {
	switch b {
	case BlockOpening, BlockEventContext, BlockValueProp, BlockProof, BlockCTA, BlockSignature:
		return true
	}
	return false
}

type CTAType string

const (
	CTABookCall  CTAType = "book_call"
	CTAReply     CTAType = "reply"
	CTADownload  CTAType = "download"
	CTAVisitPage CTAType = "visit_page"
)

func (c CTAType) Valid() bool {
	switch c {
	case CTABookCall, CTAReply, CTADownload, CTAVisitPage:
		return true
	}
	return false
}

// Template is a reusable multi-part outbound email. Subjects, blocks and the
// CTA are owned by the template and share its lifecycle.
type Template struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Category        Category      `json:"category"`
	Goal            Goal          `json:"goal"`
	Tone            string        `json:"tone"`
	Language        string        `json:"language"`
	Status          Status        `json:"status"`
	IsSystem        bool          `json:"is_system"`
	Personas        stringset.Set `json:"personas"`
	MaxWords        *int          `json:"max_words,omitempty"`
	ForbiddenClaims stringset.Set `json:"forbidden_claims"`
	Notes           string        `json:"notes"`
	Version         int           `json:"version"`
	UsageCount      int64         `json:"usage_count"`
	Subjects        []Subject     `json:"subjects"`
	Blocks          []Block       `json:"blocks"`
	CTA             *CTA          `json:"cta,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	DeletedAt       *time.Time    `json:"deleted_at,omitempty"`
}

// Subject is one candidate subject line. SortOrder is 1-based and dense.
type Subject struct {
	ID        string `json:"id"`
	SortOrder int    `json:"sort_order"`
	Text      string `json:"subject"`
	IsActive  bool   `json:"is_active"`
}

// Block is one ordered section of the body. Every token in Content must be
// listed in AllowedVars.
type Block struct {
	ID          string        `json:"id"`
	BlockType   BlockType     `json:"block_type"`
	SortOrder   int           `json:"sort_order"`
	Content     string        `json:"content"`
	AllowedVars stringset.Set `json:"allowed_vars"`
	AIGuidance  *string       `json:"ai_guidance,omitempty"`
}

// CTA is the template's call to action. URL is required unless Type is reply.
type CTA struct {
	ID   string  `json:"id"`
	Type CTAType `json:"cta_type"`
	Text string  `json:"cta_text"`
	URL  *string `json:"cta_url,omitempty"`
}

// Deleted reports whether the template was soft-deleted.
func (t *Template) Deleted() bool { return t.DeletedAt != nil }

// Enabled reports whether the template can be recommended and assembled.
func (t *Template) Enabled() bool { return t.Status == StatusEnabled && !t.Deleted() }

// ActiveSubjects returns the active subjects in sort order.
func (t *Template) ActiveSubjects() []Subject {
	var out []Subject
	for _, s := range t.SortedSubjects() {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out
}

// SortedSubjects returns a copy of the subjects ordered by SortOrder.
func (t *Template) SortedSubjects() []Subject {
	out := append([]Subject(nil), t.Subjects...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}

// SortedBlocks returns a copy of the blocks ordered by SortOrder.
func (t *Template) SortedBlocks() []Block {
	out := append([]Block(nil), t.Blocks...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}

// AllowedVars is the union of every block's allow-list. Subjects and the CTA
// are checked against it.
func (t *Template) AllowedVars() stringset.Set {
	out := stringset.New()
	for _, b := range t.Blocks {
		out = out.Union(b.AllowedVars)
	}
	return out
}

// HasBlockType reports whether any block has the given type.
func (t *Template) HasBlockType(bt BlockType) bool {
	for _, b := range t.Blocks {
		if b.BlockType == bt {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	out := *t
	out.Personas = t.Personas.Clone()
	out.ForbiddenClaims = t.ForbiddenClaims.Clone()
	if t.MaxWords != nil {
		v := *t.MaxWords
		out.MaxWords = &v
	}
	if t.DeletedAt != nil {
		v := *t.DeletedAt
		out.DeletedAt = &v
	}
	out.Subjects = append([]Subject(nil), t.Subjects...)
	out.Blocks = make([]Block, len(t.Blocks))
	for i, b := range t.Blocks {
		nb := b
		nb.AllowedVars = b.AllowedVars.Clone()
		if b.AIGuidance != nil {
			v := *b.AIGuidance
			nb.AIGuidance = &v
		}
		out.Blocks[i] = nb
	}
	if t.CTA != nil {
		c := *t.CTA
		if t.CTA.URL != nil {
			v := *t.CTA.URL
			c.URL = &v
		}
		out.CTA = &c
	}
	return &out
}

// Input describes a template to create. It is also the YAML seed shape.
type Input struct {
	Name            string         `json:"name" yaml:"name" validate:"required,max=200"`
	Category        Category       `json:"category" yaml:"category" validate:"required"`
	Goal            Goal           `json:"goal" yaml:"goal" validate:"required"`
	Tone            string         `json:"tone" yaml:"tone"`
	Language        string         `json:"language" yaml:"language"`
	Status          Status         `json:"status" yaml:"status"`
	Personas        []string       `json:"personas" yaml:"personas"`
	MaxWords        *int           `json:"max_words,omitempty" yaml:"max_words,omitempty" validate:"omitempty,gt=0"`
	ForbiddenClaims []string       `json:"forbidden_claims" yaml:"forbidden_claims"`
	Notes           string         `json:"notes" yaml:"notes"`
	Subjects        []SubjectInput `json:"subjects" yaml:"subjects" validate:"required,min=1,dive"`
	Blocks          []BlockInput   `json:"blocks" yaml:"blocks" validate:"required,min=1,dive"`
	CTA             *CTAInput      `json:"cta,omitempty" yaml:"cta,omitempty"`
}

// SubjectInput describes a subject. IsActive defaults to true when absent.
// ID is only honored by update replacements.
type SubjectInput struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	SortOrder int    `json:"sort_order" yaml:"sort_order"`
	Subject   string `json:"subject" yaml:"subject" validate:"required"`
	IsActive  *bool  `json:"is_active,omitempty" yaml:"is_active,omitempty"`
}

type BlockInput struct {
	ID          string    `json:"id,omitempty" yaml:"id,omitempty"`
	BlockType   BlockType `json:"block_type" yaml:"block_type" validate:"required"`
	SortOrder   int       `json:"sort_order" yaml:"sort_order"`
	Content     string    `json:"content" yaml:"content" validate:"required"`
	AllowedVars []string  `json:"allowed_vars" yaml:"allowed_vars"`
	AIGuidance  *string   `json:"ai_guidance,omitempty" yaml:"ai_guidance,omitempty"`
}

type CTAInput struct {
	Type CTAType `json:"cta_type" yaml:"cta_type" validate:"required"`
	Text string  `json:"cta_text" yaml:"cta_text" validate:"required"`
	URL  *string `json:"cta_url,omitempty" yaml:"cta_url,omitempty"`
}

// Patch is a partial update. Version must be the version the caller read.
// Subjects/Blocks replace the whole collection; Add*/Remove* edit it in place.
// Sort orders are rewritten to 1..N afterwards.
type Patch struct {
	Version         int             `json:"version" validate:"required,gt=0"`
	Name            *string         `json:"name,omitempty"`
	Category        *Category       `json:"category,omitempty"`
	Goal            *Goal           `json:"goal,omitempty"`
	Tone            *string         `json:"tone,omitempty"`
	Language        *string         `json:"language,omitempty"`
	Status          *Status         `json:"status,omitempty"`
	Personas        *[]string       `json:"personas,omitempty"`
	AddPersonas     []string        `json:"add_personas,omitempty"`
	RemovePersonas  []string        `json:"remove_personas,omitempty"`
	MaxWords        *int            `json:"max_words,omitempty"`
	ClearMaxWords   bool            `json:"clear_max_words,omitempty"`
	ForbiddenClaims *[]string       `json:"forbidden_claims,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	Subjects        *[]SubjectInput `json:"subjects,omitempty"`
	AddSubjects     []SubjectInput  `json:"add_subjects,omitempty"`
	RemoveSubjects  []string        `json:"remove_subjects,omitempty"`
	Blocks          *[]BlockInput   `json:"blocks,omitempty"`
	AddBlocks       []BlockInput    `json:"add_blocks,omitempty"`
	RemoveBlocks    []string        `json:"remove_blocks,omitempty"`
	CTA             *CTAInput       `json:"cta,omitempty"`
	RemoveCTA       bool            `json:"remove_cta,omitempty"`
}

// Structural reports whether the patch touches anything besides status.
func (p Patch) Structural() bool {
	return p.Name != nil || p.Category != nil || p.Goal != nil || p.Tone != nil || p.Language != nil ||
		p.Personas != nil || len(p.AddPersonas) > 0 || len(p.RemovePersonas) > 0 ||
		p.MaxWords != nil || p.ClearMaxWords || p.ForbiddenClaims != nil || p.Notes != nil ||
		p.Subjects != nil || len(p.AddSubjects) > 0 || len(p.RemoveSubjects) > 0 ||
		p.Blocks != nil || len(p.AddBlocks) > 0 || len(p.RemoveBlocks) > 0 ||
		p.CTA != nil || p.RemoveCTA
}

// ListFilter narrows listTemplates. Zero values match everything.
type ListFilter struct {
	Category       Category
	Goal           Goal
	Status         Status
	Language       string
	Persona        string
	IsSystem       *bool
	IncludeDeleted bool
	Query          string
	Limit          int
	Offset         int
}
