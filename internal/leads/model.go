package leads

import (
	"strings"
	"time"

	"github.com/badoux/checkmail"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/variables"
)

// Stage is where a lead sits in the sales cycle.
type Stage string

const (
	StageNew         Stage = "new"
	StageEngaged     Stage = "engaged"
	StageQualified   Stage = "qualified"
	StageNegotiation Stage = "negotiation"
	StageCustomer    Stage = "customer"
	StageLost        Stage = "lost"
)

func (s Stage) Valid() bool {
	switch s {
	case StageNew, StageEngaged, StageQualified, StageNegotiation, StageCustomer, StageLost:
		return true
	}
	return false
}

// Lead is a contact met at, or invited to, an event.
type Lead struct {
	ID            string            `json:"id"`
	FirstName     string            `json:"first_name"`
	LastName      string            `json:"last_name,omitempty"`
	Email         string            `json:"email,omitempty"`
	Title         string            `json:"title,omitempty"`
	Company       string            `json:"company,omitempty"`
	Industry      string            `json:"industry,omitempty"`
	CompanySize   string            `json:"company_size,omitempty"`
	Persona       string            `json:"persona,omitempty"`
	Stage         Stage             `json:"stage"`
	Language      string            `json:"language,omitempty"`
	EventName     string            `json:"event_name,omitempty"`
	EventDate     string            `json:"event_date,omitempty"`
	EventLocation string            `json:"event_location,omitempty"`
	Topic         string            `json:"topic,omitempty"`
	SenderName    string            `json:"sender_name,omitempty"`
	SenderTitle   string            `json:"sender_title,omitempty"`
	SenderCompany string            `json:"sender_company,omitempty"`
	SenderEmail   string            `json:"sender_email,omitempty"`
	DoNotContact  bool              `json:"do_not_contact"`
	Tags          []string          `json:"tags,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// FullName joins first and last name.
func (l *Lead) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}

// Context builds the variable context for personalization. Free-form
// attributes fill in keys the structured fields leave empty.
func (l *Lead) Context() variables.Context {
	ctx := variables.Context{}.
		With("lead_name", l.FirstName).
		With("lead_last_name", l.LastName).
		With("lead_full_name", l.FullName()).
		With("lead_email", l.Email).
		With("lead_title", l.Title).
		With("company_name", l.Company).
		With("industry", l.Industry).
		With("company_size", l.CompanySize).
		With("event_name", l.EventName).
		With("event_date", l.EventDate).
		With("event_location", l.EventLocation).
		With("topic", l.Topic).
		With("sender_name", l.SenderName).
		With("sender_title", l.SenderTitle).
		With("sender_company", l.SenderCompany).
		With("sender_email", l.SenderEmail)
	for k, v := range l.Attributes {
		key := strings.ToLower(strings.TrimSpace(k))
		if _, taken := ctx[key]; !taken {
			ctx = ctx.With(key, v)
		}
	}
	return ctx
}

// CreateLeadRequest represents the request body for creating a lead
type CreateLeadRequest struct {
	FirstName     string            `json:"first_name" validate:"required,max=100"`
	LastName      string            `json:"last_name" validate:"max=100"`
	Email         string            `json:"email"`
	Title         string            `json:"title"`
	Company       string            `json:"company"`
	Industry      string            `json:"industry"`
	CompanySize   string            `json:"company_size"`
	Persona       string            `json:"persona"`
	Stage         Stage             `json:"stage"`
	Language      string            `json:"language"`
	EventName     string            `json:"event_name"`
	EventDate     string            `json:"event_date"`
	EventLocation string            `json:"event_location"`
	Topic         string            `json:"topic"`
	SenderName    string            `json:"sender_name"`
	SenderTitle   string            `json:"sender_title"`
	SenderCompany string            `json:"sender_company"`
	SenderEmail   string            `json:"sender_email"`
	DoNotContact  bool              `json:"do_not_contact"`
	Tags          []string          `json:"tags"`
	Attributes    map[string]string `json:"attributes"`
}

// Validate validates the create lead request
func (r *CreateLeadRequest) Validate() error {
	var issues []apperr.Issue
	if strings.TrimSpace(r.FirstName) == "" {
		issues = append(issues, apperr.Issue{Field: "first_name", Message: "required"})
	}
	if email := strings.TrimSpace(r.Email); email != "" {
		if err := checkmail.ValidateFormat(email); err != nil {
			issues = append(issues, apperr.Issue{Field: "email", Message: "invalid email format"})
		}
	}
	if r.SenderEmail != "" {
		if err := checkmail.ValidateFormat(strings.TrimSpace(r.SenderEmail)); err != nil {
			issues = append(issues, apperr.Issue{Field: "sender_email", Message: "invalid email format"})
		}
	}
	if r.Stage != "" && !r.Stage.Valid() {
		issues = append(issues, apperr.Issue{Field: "stage", Message: "unknown stage " + string(r.Stage)})
	}
	if len(issues) > 0 {
		return apperr.Validation("leads: create", issues...)
	}
	return nil
}

// toLead normalizes a validated request.
func (r *CreateLeadRequest) toLead(id string, now time.Time) *Lead {
	stage := r.Stage
	if stage == "" {
		stage = StageNew
	}
	lang := strings.TrimSpace(r.Language)
	if lang == "" {
		lang = "en"
	}
	return &Lead{
		ID:            id,
		FirstName:     strings.TrimSpace(r.FirstName),
		LastName:      strings.TrimSpace(r.LastName),
		Email:         strings.ToLower(strings.TrimSpace(r.Email)),
		Title:         strings.TrimSpace(r.Title),
		Company:       strings.TrimSpace(r.Company),
		Industry:      strings.TrimSpace(r.Industry),
		CompanySize:   strings.TrimSpace(r.CompanySize),
		Persona:       strings.TrimSpace(r.Persona),
		Stage:         stage,
		Language:      lang,
		EventName:     strings.TrimSpace(r.EventName),
		EventDate:     strings.TrimSpace(r.EventDate),
		EventLocation: strings.TrimSpace(r.EventLocation),
		Topic:         strings.TrimSpace(r.Topic),
		SenderName:    strings.TrimSpace(r.SenderName),
		SenderTitle:   strings.TrimSpace(r.SenderTitle),
		SenderCompany: strings.TrimSpace(r.SenderCompany),
		SenderEmail:   strings.TrimSpace(r.SenderEmail),
		DoNotContact:  r.DoNotContact,
		Tags:          append([]string(nil), r.Tags...),
		Attributes:    cloneAttributes(r.Attributes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func cloneAttributes(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (l *Lead) clone() *Lead {
	c := *l
	c.Tags = append([]string(nil), l.Tags...)
	c.Attributes = cloneAttributes(l.Attributes)
	return &c
}

// ListFilter narrows List.
type ListFilter struct {
	Stage   Stage
	Persona string
	Limit   int
	Offset  int
}
