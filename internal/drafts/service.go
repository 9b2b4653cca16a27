package drafts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/activity"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/guardrails"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/leads"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/observability/metrics"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/recommend"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/templates"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/variables"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

var draftsTracer = otel.Tracer("eventra.internal.drafts")

// TemplateStore is the slice of the template service drafts need.
type TemplateStore interface {
	Get(ctx context.Context, id string) (*templates.Template, error)
	RecordUsage(ctx context.Context, id string) (int64, error)
}

type LeadSource interface {
	GetByID(ctx context.Context, id string) (*leads.Lead, error)
}

// Recommender picks a template when a batch asks for "auto".
type Recommender interface {
	RecommendFor(ctx context.Context, lead *leads.Lead) (*recommend.Recommendation, error)
}

// ActivityNotifier receives confirmed sends without blocking the caller.
type ActivityNotifier interface {
	Notify(e activity.Entry)
}

type Config struct {
	Separator        string
	BatchConcurrency int
	SendTTL          time.Duration
}

// Service is the draft API: assemble, confirm and batch.
type Service struct {
	templates   TemplateStore
	leads       LeadSource
	assembler   *Assembler
	aliases     *variables.AliasTable
	recommender Recommender
	polisher    *Polisher
	guard       SendGuard
	notifier    ActivityNotifier
	cfg         Config
	metrics     *metrics.EngineMetrics
	logger      *logging.Logger
	now         func() time.Time
}

type Option func(*Service)

func WithRecommender(r Recommender) Option { return func(s *Service) { s.recommender = r } }
func WithPolisher(p *Polisher) Option      { return func(s *Service) { s.polisher = p } }
func WithSendGuard(g SendGuard) Option     { return func(s *Service) { s.guard = g } }
func WithNotifier(n ActivityNotifier) Option {
	return func(s *Service) { s.notifier = n }
}
func WithMetrics(m *metrics.EngineMetrics) Option { return func(s *Service) { s.metrics = m } }
func WithAliases(a *variables.AliasTable) Option  { return func(s *Service) { s.aliases = a } }
func WithClock(now func() time.Time) Option       { return func(s *Service) { s.now = now } }

func NewService(store TemplateStore, leadSrc LeadSource, cfg Config, logger *logging.Logger, opts ...Option) *Service {
	if store == nil || leadSrc == nil {
		panic("drafts: template store and lead source are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 4
	}
	if cfg.SendTTL <= 0 {
		cfg.SendTTL = DefaultSendTTL
	}
	s := &Service{
		templates: store,
		leads:     leadSrc,
		cfg:       cfg,
		logger:    logger.Component("drafts"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.aliases == nil {
		s.aliases = variables.DefaultAliases()
	}
	if s.guard == nil {
		s.guard = NewMemorySendGuard()
	}
	s.assembler = NewAssembler(s.aliases, cfg.Separator)
	return s
}

// AssembleDraft renders templateID for leadID. It never records usage.
func (s *Service) AssembleDraft(ctx context.Context, templateID, leadID string, opts Options) (*Draft, error) {
	ctx, span := draftsTracer.Start(ctx, "drafts.assemble",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("eventra.template_id", templateID),
			attribute.String("eventra.lead_id", leadID),
		),
	)
	defer span.End()

	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("drafts: load lead: %w", err)
	}
	d, err := s.assembleFor(ctx, templateID, lead, opts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("eventra.draft.template_version", d.TemplateVersion),
		attribute.Int("eventra.draft.violations", len(d.Violations)),
	)
	return d, nil
}

func (s *Service) assembleFor(ctx context.Context, templateID string, lead *leads.Lead, opts Options) (*Draft, error) {
	t, err := s.loadEnabled(ctx, templateID)
	if err != nil {
		s.metrics.ObserveDraft("error")
		return nil, err
	}
	d, err := s.assembler.Assemble(t, lead.Context(), opts)
	if err != nil {
		s.metrics.ObserveDraft("error")
		return nil, err
	}
	d.LeadID = lead.ID
	d.GeneratedAt = s.now().UTC()

	if opts.Polish {
		if err := s.polish(ctx, t, d); err != nil {
			s.metrics.ObserveDraft("error")
			return nil, err
		}
	}

	status := "ok"
	if d.Blocking() {
		status = "blocked"
	}
	s.metrics.ObserveDraft(status)
	for _, v := range d.Violations {
		s.metrics.ObserveViolation(string(v.Kind))
	}
	s.logger.Info("draft assembled",
		"template_id", t.ID,
		"template_version", t.Version,
		"lead_id", lead.ID,
		"violations", len(d.Violations),
		"warnings", len(d.Warnings),
		"polished", d.Polished,
	)
	return d, nil
}

func (s *Service) polish(ctx context.Context, t *templates.Template, d *Draft) error {
	if s.polisher == nil {
		return apperr.External(polishOp, errors.New("language model is not configured"))
	}
	text, err := s.polisher.Polish(ctx, t, d)
	if err != nil {
		return err
	}
	if err := checkPolished(d.Body, text, s.aliases); err != nil {
		return err
	}
	d.Body = text
	d.Polished = true
	s.assembler.finish(d, t)
	return nil
}

func (s *Service) loadEnabled(ctx context.Context, id string) (*templates.Template, error) {
	t, err := s.templates.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Enabled() {
		return nil, apperr.NotFound(assembleOp, "enabled template", id)
	}
	return t, nil
}

// ConfirmRequest is what the caller actually sent.
type ConfirmRequest struct {
	TemplateID string `json:"template_id" validate:"required"`
	LeadID     string `json:"lead_id" validate:"required"`
	Subject    string `json:"subject" validate:"required"`
	Body       string `json:"body" validate:"required"`
	Automated  bool   `json:"automated"`
}

type Confirmation struct {
	TemplateID string `json:"template_id"`
	LeadID     string `json:"lead_id"`
	DraftHash  string `json:"draft_hash"`
	UsageCount int64  `json:"usage_count,omitempty"`
	Duplicate  bool   `json:"duplicate"`
}

// ConfirmSent records one send: usage_count+1 and a timeline entry. Repeat
// confirmations of the same draft are acknowledged without counting twice.
// Automated sends are refused when the guardrails flag the sent text or a
// placeholder was left unfilled.
func (s *Service) ConfirmSent(ctx context.Context, req ConfirmRequest) (*Confirmation, error) {
	const op = "drafts: confirm sent"
	ctx, span := draftsTracer.Start(ctx, "drafts.confirm")
	defer span.End()
	span.SetAttributes(
		attribute.String("eventra.template_id", req.TemplateID),
		attribute.String("eventra.lead_id", req.LeadID),
		attribute.Bool("eventra.automated", req.Automated),
	)

	t, err := s.templates.Get(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if _, err := s.leads.GetByID(ctx, req.LeadID); err != nil {
		return nil, fmt.Errorf("drafts: load lead: %w", err)
	}

	if req.Automated {
		violations := guardrails.Validate(guardrails.Input{Subject: req.Subject, Body: req.Body}, rulesOf(t))
		if guardrails.Blocking(violations) {
			s.metrics.ObserveSend("blocked")
			issues := make([]apperr.Issue, 0, len(violations))
			for _, v := range violations {
				issues = append(issues, apperr.Issue{Field: string(v.Field), Message: v.Message})
			}
			return nil, apperr.Validation(op, issues...)
		}
		if issues := leftoverPlaceholders(req.Subject, req.Body); len(issues) > 0 {
			s.metrics.ObserveSend("blocked")
			return nil, apperr.Validation(op, issues...)
		}
	}

	conf := &Confirmation{TemplateID: t.ID, LeadID: req.LeadID, DraftHash: Hash(req.Subject, req.Body)}
	key := sendKey(t.ID, req.LeadID, conf.DraftHash)
	first, err := s.guard.Acquire(ctx, key, s.cfg.SendTTL)
	if err != nil {
		// An unavailable guard counts as a first send.
		s.logger.Warn("send guard unavailable", "template_id", t.ID, "lead_id", req.LeadID, "error", err)
		first = true
	}
	if !first {
		conf.Duplicate = true
		s.metrics.ObserveSend("duplicate")
		s.logger.Info("duplicate send confirmation ignored", "template_id", t.ID, "lead_id", req.LeadID)
		return conf, nil
	}

	count, err := s.templates.RecordUsage(ctx, t.ID)
	if err != nil {
		if relErr := s.guard.Release(context.WithoutCancel(ctx), key); relErr != nil {
			s.logger.Warn("send guard release failed", "key", key, "error", relErr)
		}
		s.metrics.ObserveSend("error")
		return nil, err
	}
	conf.UsageCount = count

	if s.notifier != nil {
		s.notifier.Notify(activity.Entry{
			LeadID:          req.LeadID,
			Type:            activity.EventEmailSent,
			TemplateID:      t.ID,
			TemplateVersion: t.Version,
			Subject:         req.Subject,
			DraftHash:       conf.DraftHash,
			Automated:       req.Automated,
			OccurredAt:      s.now().UTC(),
		})
	}
	s.metrics.ObserveSend("recorded")
	s.logger.Info("send confirmed", "template_id", t.ID, "lead_id", req.LeadID, "usage_count", count, "automated", req.Automated)
	return conf, nil
}

func leftoverPlaceholders(subject, body string) []apperr.Issue {
	var issues []apperr.Issue
	for _, f := range []struct{ field, text string }{{"subject", subject}, {"body", body}} {
		for _, raw := range variables.Placeholders(f.text) {
			issues = append(issues, apperr.Issue{Field: f.field, Token: raw, Message: "unresolved placeholder"})
		}
	}
	return issues
}
