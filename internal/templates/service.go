package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/observability/metrics"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/variables"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

const maxListLimit = 200

// Service owns the template lifecycle. Every mutation validates the whole
// template before touching the repository and commits with a version check.
type Service struct {
	repo      Repository
	snapshots Snapshotter
	aliases   *variables.AliasTable
	metrics   *metrics.EngineMetrics
	logger    *logging.Logger
	now       func() time.Time
	newID     func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithSnapshotter stores every committed version through s.
func WithSnapshotter(s Snapshotter) Option {
	return func(svc *Service) { svc.snapshots = s }
}

func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(svc *Service) { svc.metrics = m }
}

func WithAliases(a *variables.AliasTable) Option {
	return func(svc *Service) {
		if a != nil {
			svc.aliases = a
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(svc *Service) {
		if now != nil {
			svc.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(svc *Service) {
		if newID != nil {
			svc.newID = newID
		}
	}
}

func NewService(repo Repository, logger *logging.Logger, opts ...Option) *Service {
	if repo == nil {
		panic("templates: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:    repo,
		aliases: variables.DefaultAliases(),
		logger:  logger.Component("templates"),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Aliases returns the alias table used for token validation.
func (s *Service) Aliases() *variables.AliasTable { return s.aliases }

// Create validates in and persists it as version 1.
func (s *Service) Create(ctx context.Context, in Input) (*Template, error) {
	return s.create(ctx, in, false)
}

func (s *Service) create(ctx context.Context, in Input, system bool) (*Template, error) {
	t := fromInput(in, s.newID, s.now())
	t.IsSystem = system
	if issues := Validate(t, s.aliases); len(issues) > 0 {
		s.metrics.ObserveTemplateMutation("create", "invalid")
		return nil, apperr.Validation("templates: create", issues...)
	}
	if err := s.repo.Insert(ctx, t); err != nil {
		s.metrics.ObserveTemplateMutation("create", "error")
		return nil, err
	}
	s.snapshot(ctx, t)
	s.metrics.ObserveTemplateMutation("create", "ok")
	s.logger.Info("template created", "template_id", t.ID, "name", t.Name, "is_system", t.IsSystem)
	return t, nil
}

// Get returns a live template. Soft-deleted templates are not found.
func (s *Service) Get(ctx context.Context, id string) (*Template, error) {
	t, err := s.load(ctx, "templates: get", id)
	if err != nil {
		return nil, err
	}
	if t.Deleted() {
		return nil, apperr.NotFound("templates: get", "template", id)
	}
	return t, nil
}

// GetVersion returns the template as it was at version. Older versions are
// served from snapshots.
func (s *Service) GetVersion(ctx context.Context, id string, version int) (*Template, error) {
	const op = "templates: get version"
	cur, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if version == cur.Version {
		return cur, nil
	}
	if version < 1 || version > cur.Version || s.snapshots == nil {
		return nil, apperr.NotFound(op, "template version", fmt.Sprintf("%s@%d", id, version))
	}
	t, err := s.snapshots.Load(ctx, id, version)
	if errors.Is(err, ErrSnapshotNotFound) {
		return nil, apperr.NotFound(op, "template version", fmt.Sprintf("%s@%d", id, version))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// ListResult is one page of templates plus the total before pagination.
type ListResult struct {
	Items []*Template `json:"items"`
	Total int         `json:"total"`
}

// List filters templates, ranks them by fuzzy name match when a query is
// given and pages the result.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		names := make([]string, len(items))
		for i, t := range items {
			names[i] = t.Name
		}
		matches := fuzzy.Find(q, names)
		ranked := make([]*Template, 0, len(matches))
		for _, m := range matches {
			ranked = append(ranked, items[m.Index])
		}
		items = ranked
	}

	total := len(items)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if filter.Limit > 0 {
		limit := filter.Limit
		if limit > maxListLimit {
			limit = maxListLimit
		}
		if offset+limit < end {
			end = offset + limit
		}
	}
	return ListResult{Items: items[offset:end], Total: total}, nil
}

// ListEnabled returns every enabled, live template. It is the candidate set
// for recommendations.
func (s *Service) ListEnabled(ctx context.Context) ([]*Template, error) {
	return s.repo.List(ctx, ListFilter{Status: StatusEnabled})
}

// Update applies p to the template, revalidates it and commits version+1.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*Template, error) {
	const op = "templates: update"
	cur, err := s.loadForWrite(ctx, op, id)
	if err == nil && cur.Deleted() {
		err = apperr.NotFound(op, "template", id)
	}
	if err != nil {
		return nil, err
	}
	if p.Version != cur.Version {
		s.metrics.ObserveTemplateMutation("update", "conflict")
		return nil, apperr.Conflict(op, id, p.Version, cur.Version)
	}

	next, issues := applyPatch(cur, p, s.newID)
	issues = append(issues, Validate(next, s.aliases)...)
	if len(issues) > 0 {
		s.metrics.ObserveTemplateMutation("update", "invalid")
		return nil, apperr.Validation(op, issues...)
	}
	next.Version = cur.Version + 1
	next.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, next, p.Version); err != nil {
		s.metrics.ObserveTemplateMutation("update", mutationStatus(err))
		return nil, s.mapErr(op, id, err)
	}
	next.UsageCount = cur.UsageCount
	s.snapshot(ctx, next)
	s.metrics.ObserveTemplateMutation("update", "ok")
	s.logger.Info("template updated", "template_id", id, "version", next.Version)
	return next, nil
}

// SetStatus enables or disables a template.
func (s *Service) SetStatus(ctx context.Context, id string, version int, status Status) (*Template, error) {
	return s.Update(ctx, id, Patch{Version: version, Status: &status})
}

// Duplicate deep-copies a template under a new name. The copy is never a
// system template and starts at version 1 with no usage.
func (s *Service) Duplicate(ctx context.Context, id, newName string) (*Template, error) {
	const op = "templates: duplicate"
	src, err := s.loadLive(ctx, op, id)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(newName)
	if name == "" {
		name = src.Name + " (copy)"
	}
	dup := duplicateOf(src, name, s.newID, s.now())
	if issues := Validate(dup, s.aliases); len(issues) > 0 {
		return nil, apperr.Validation(op, issues...)
	}
	if err := s.repo.Insert(ctx, dup); err != nil {
		s.metrics.ObserveTemplateMutation("duplicate", "error")
		return nil, err
	}
	s.snapshot(ctx, dup)
	s.metrics.ObserveTemplateMutation("duplicate", "ok")
	s.logger.Info("template duplicated", "source_id", id, "template_id", dup.ID)
	return dup, nil
}

// Delete removes a template. A soft delete stamps deleted_at and bumps the
// version; a hard delete removes the row. System templates are never deleted.
func (s *Service) Delete(ctx context.Context, id string, version int, hard bool) error {
	const op = "templates: delete"
	cur, err := s.loadForWrite(ctx, op, id)
	if err != nil {
		return err
	}
	if cur.IsSystem {
		s.metrics.ObserveTemplateMutation("delete", "forbidden")
		return apperr.Forbidden(op, "system templates cannot be deleted")
	}
	if cur.Version != version {
		s.metrics.ObserveTemplateMutation("delete", "conflict")
		return apperr.Conflict(op, id, version, cur.Version)
	}

	if hard {
		if err := s.repo.Delete(ctx, id, version); err != nil {
			s.metrics.ObserveTemplateMutation("delete", mutationStatus(err))
			return s.mapErr(op, id, err)
		}
		s.metrics.ObserveTemplateMutation("delete", "ok")
		s.logger.Info("template deleted", "template_id", id, "hard", true)
		return nil
	}

	if cur.Deleted() {
		return apperr.NotFound(op, "template", id)
	}
	now := s.now()
	next := cur.Clone()
	next.DeletedAt = &now
	next.UpdatedAt = now
	next.Version = cur.Version + 1
	if err := s.repo.Update(ctx, next, version); err != nil {
		s.metrics.ObserveTemplateMutation("delete", mutationStatus(err))
		return s.mapErr(op, id, err)
	}
	s.metrics.ObserveTemplateMutation("delete", "ok")
	s.logger.Info("template deleted", "template_id", id, "hard", false)
	return nil
}

// RecordUsage increments the usage counter. It is an atomic counter and
// does not participate in versioning.
func (s *Service) RecordUsage(ctx context.Context, id string) (int64, error) {
	n, err := s.repo.IncrementUsage(ctx, id)
	if err != nil {
		return 0, s.mapErr("templates: record usage", id, err)
	}
	return n, nil
}

// EnsureSystemTemplates creates every seed whose name is not already taken
// by a system template. It returns the number created.
func (s *Service) EnsureSystemTemplates(ctx context.Context, seeds []Input) (int, error) {
	system := true
	existing, err := s.repo.List(ctx, ListFilter{IsSystem: &system, IncludeDeleted: true})
	if err != nil {
		return 0, fmt.Errorf("templates: list system templates: %w", err)
	}
	names := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		names[strings.ToLower(strings.TrimSpace(t.Name))] = struct{}{}
	}

	created := 0
	for _, in := range seeds {
		key := strings.ToLower(strings.TrimSpace(in.Name))
		if _, ok := names[key]; ok {
			continue
		}
		if _, err := s.create(ctx, in, true); err != nil {
			return created, fmt.Errorf("templates: seed %q: %w", in.Name, err)
		}
		names[key] = struct{}{}
		created++
	}
	return created, nil
}

func (s *Service) load(ctx context.Context, op, id string) (*Template, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.mapErr(op, id, err)
	}
	return t, nil
}

// loadForWrite bypasses any read cache so version checks see the stored row.
func (s *Service) loadForWrite(ctx context.Context, op, id string) (*Template, error) {
	fr, ok := s.repo.(FreshReader)
	if !ok {
		return s.load(ctx, op, id)
	}
	t, err := fr.GetFresh(ctx, id)
	if err != nil {
		return nil, s.mapErr(op, id, err)
	}
	return t, nil
}

func (s *Service) loadLive(ctx context.Context, op, id string) (*Template, error) {
	t, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if t.Deleted() {
		return nil, apperr.NotFound(op, "template", id)
	}
	return t, nil
}

func (s *Service) mapErr(op, id string, err error) error {
	if errors.Is(err, ErrTemplateNotFound) {
		return apperr.NotFound(op, "template", id)
	}
	return err
}

func (s *Service) snapshot(ctx context.Context, t *Template) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Put(ctx, t); err != nil {
		s.logger.Warn("template snapshot failed", "template_id", t.ID, "version", t.Version, "error", err)
	}
}

func mutationStatus(err error) string {
	switch {
	case errors.Is(err, apperr.ErrConflict):
		return "conflict"
	case errors.Is(err, ErrTemplateNotFound):
		return "not_found"
	default:
		return "error"
	}
}
