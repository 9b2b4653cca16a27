package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/activity"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/leads"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/observability/metrics"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/templates"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/variables"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

var recommendTracer = otel.Tracer("eventra.internal.recommend")

// LeadSource loads the lead being scored.
type LeadSource interface {
	GetByID(ctx context.Context, id string) (*leads.Lead, error)
}

// TemplateSource lists the enabled candidate set.
type TemplateSource interface {
	ListEnabled(ctx context.Context) ([]*templates.Template, error)
}

// Service produces recommendations. It only reads from its sources.
type Service struct {
	leads     LeadSource
	templates TemplateSource
	signals   activity.SignalSource
	scorer    Scorer
	resolver  *variables.Resolver
	cfg       Config
	metrics   *metrics.EngineMetrics
	logger    *logging.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithScorer enables the model-assisted pass.
func WithScorer(s Scorer) Option { return func(svc *Service) { svc.scorer = s } }

func WithMetrics(m *metrics.EngineMetrics) Option { return func(svc *Service) { svc.metrics = m } }

func WithAliases(a *variables.AliasTable) Option {
	return func(svc *Service) { svc.resolver = variables.NewResolver(a) }
}

func WithClock(now func() time.Time) Option { return func(svc *Service) { svc.now = now } }

func NewService(leadSrc LeadSource, tmplSrc TemplateSource, signals activity.SignalSource, cfg Config, logger *logging.Logger, opts ...Option) *Service {
	if leadSrc == nil || tmplSrc == nil {
		panic("recommend: lead and template sources are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		leads:     leadSrc,
		templates: tmplSrc,
		signals:   signals,
		resolver:  variables.NewResolver(nil),
		cfg:       cfg.withDefaults(),
		logger:    logger.Component("recommend"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Recommend loads the lead and scores every enabled template for it.
func (s *Service) Recommend(ctx context.Context, leadID string) (*Recommendation, error) {
	ctx, span := recommendTracer.Start(ctx, "recommend.lead",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("eventra.lead_id", leadID)),
	)
	defer span.End()

	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("recommend: load lead: %w", err)
	}
	return s.RecommendFor(ctx, lead)
}

// RecommendFor scores templates for an already loaded lead.
func (s *Service) RecommendFor(ctx context.Context, lead *leads.Lead) (*Recommendation, error) {
	var (
		candidates []*templates.Template
		signals    activity.Signals
		signalsErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.templates.ListEnabled(gctx)
		if err != nil {
			return fmt.Errorf("recommend: list templates: %w", err)
		}
		candidates = list
		return nil
	})
	if s.signals != nil {
		g.Go(func() error {
			// Missing history degrades to a risk flag rather than failing.
			signals, signalsErr = s.signals.Signals(gctx, lead.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in := input{lead: lead, ctx: lead.Context(), signals: signals, now: s.now().UTC()}
	rec := &Recommendation{LeadID: lead.ID, GeneratedAt: in.now}
	rec.RiskFlags = riskFlags(in, s.cfg.RecentContactWindow)
	if signalsErr != nil {
		s.logger.Warn("activity signals unavailable", "lead_id", lead.ID, "error", signalsErr)
		rec.RiskFlags = append(rec.RiskFlags, RiskFlag{Code: FlagHistoryUnknown, Message: "contact history unavailable"})
	}

	eligible := make([]*templates.Template, 0, len(candidates))
	for _, t := range candidates {
		if t.Enabled() && Eligible(lead.Stage, t) {
			eligible = append(eligible, t)
		}
	}
	rec.Filtered = len(candidates) - len(eligible)

	ranked := make([]Candidate, 0, len(eligible))
	for _, t := range eligible {
		ranked = append(ranked, scoreRules(in, t, s.resolver))
	}

	if s.scorer != nil && len(ranked) > 0 {
		ai, err := s.scorer.Score(ctx, lead, signals, eligible)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			rec.Fallback = true
			rec.FallbackReason = fallbackReason(err)
			s.logger.Warn("model scoring unavailable, using rules only", "lead_id", lead.ID, "error", err)
		} else if combined := s.combine(ranked, ai); len(combined) > 0 {
			ranked = combined
		} else {
			rec.Fallback = true
			rec.FallbackReason = unusableReply
			s.logger.Warn("model scoring explained no candidate, using rules only", "lead_id", lead.ID, "candidates", len(ranked))
		}
	} else {
		rec.Fallback = true
		rec.FallbackReason = "model scoring disabled"
	}

	Rank(ranked)
	rec.Ranked = ranked
	if top, ok := rec.Top(); ok && len(top.MissingVars) > 0 {
		rec.RiskFlags = append(rec.RiskFlags, RiskFlag{
			Code:    FlagMissingVars,
			Message: fmt.Sprintf("top template has no lead data for %v", top.MissingVars),
		})
	}
	if len(rec.Ranked) == 0 {
		rec.RiskFlags = append(rec.RiskFlags, RiskFlag{Code: FlagNoCandidates, Message: "no enabled template fits this lead"})
	}
	rec.ShouldSend = decide(rec, s.cfg)

	s.metrics.ObserveRecommendation(string(rec.ShouldSend), rec.Fallback)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("eventra.recommend.decision", string(rec.ShouldSend)),
		attribute.Bool("eventra.recommend.fallback", rec.Fallback),
		attribute.Int("eventra.recommend.candidates", len(rec.Ranked)),
	)
	s.logger.Info("recommendation ready",
		"lead_id", lead.ID,
		"decision", rec.ShouldSend,
		"candidates", len(rec.Ranked),
		"filtered", rec.Filtered,
		"fallback", rec.Fallback,
	)
	return rec, nil
}

// combine blends rule and model scores. A template the model returned no
// reasons for is dropped.
func (s *Service) combine(ranked []Candidate, ai map[string]AIScore) []Candidate {
	out := make([]Candidate, 0, len(ranked))
	for _, c := range ranked {
		sc, ok := ai[c.TemplateID]
		if !ok || len(sc.Reasons) == 0 {
			s.logger.Debug("dropping unexplained candidate", "template_id", c.TemplateID)
			continue
		}
		aiScore := sc.Score
		c.AIScore = &aiScore
		blended := float64(c.RuleScore)*(1-s.cfg.AIWeight) + float64(aiScore)*s.cfg.AIWeight
		c.Score = clamp(int(math.Round(blended)))
		c.Reasons = append(append([]string(nil), c.Reasons...), sc.Reasons...)
		out = append(out, c)
	}
	return out
}

// Rank orders candidates by score, then version, then name, then id.
func Rank(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		a, b := c[i], c[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TemplateVersion != b.TemplateVersion {
			return a.TemplateVersion > b.TemplateVersion
		}
		if a.TemplateName != b.TemplateName {
			return a.TemplateName < b.TemplateName
		}
		return a.TemplateID < b.TemplateID
	})
}

func decide(rec *Recommendation, cfg Config) Decision {
	top, ok := rec.Top()
	if !ok {
		return DecisionNo
	}
	advisory := false
	for _, f := range rec.RiskFlags {
		if f.Blocking {
			return DecisionNo
		}
		advisory = true
	}
	switch {
	case top.Score < cfg.WaitThreshold:
		return DecisionNo
	case top.Score >= cfg.SendThreshold && !advisory:
		return DecisionYes
	default:
		return DecisionWait
	}
}

const unusableReply = "model scoring returned an unusable reply"

func fallbackReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "model scoring timed out"
	}
	if errors.Is(err, apperr.ErrExternalCapability) {
		return "model scoring unavailable"
	}
	return unusableReply
}
