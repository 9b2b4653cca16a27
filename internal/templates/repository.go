package templates

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
)

// ErrTemplateNotFound is wrapped by repositories when no row matches.
var ErrTemplateNotFound = errors.New("template not found")

// Repository persists templates. Update and Delete compare expectedVersion
// with the stored version and fail with apperr.ErrConflict on mismatch.
type Repository interface {
	Insert(ctx context.Context, t *Template) error
	Get(ctx context.Context, id string) (*Template, error)
	List(ctx context.Context, filter ListFilter) ([]*Template, error)
	Update(ctx context.Context, t *Template, expectedVersion int) error
	IncrementUsage(ctx context.Context, id string) (int64, error)
	Delete(ctx context.Context, id string, expectedVersion int) error
}

// InMemoryRepository keeps templates in process memory.
type InMemoryRepository struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{templates: make(map[string]*Template)}
}

func (r *InMemoryRepository) Insert(ctx context.Context, t *Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.templates[t.ID]; exists {
		return apperr.Validation("templates: insert", apperr.Issue{Field: "id", Message: "already exists"})
	}
	r.templates[t.ID] = t.Clone()
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return t.Clone(), nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Template, 0, len(r.templates))
	for _, t := range r.templates {
		if matchesFilter(t, filter) {
			out = append(out, t.Clone())
		}
	}
	sortByName(out)
	return out, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, t *Template, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.templates[t.ID]
	if !ok {
		return ErrTemplateNotFound
	}
	if cur.Version != expectedVersion {
		return apperr.Conflict("templates: update", t.ID, expectedVersion, cur.Version)
	}
	stored := t.Clone()
	stored.UsageCount = cur.UsageCount
	r.templates[t.ID] = stored
	return nil
}

func (r *InMemoryRepository) IncrementUsage(ctx context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.templates[id]
	if !ok || cur.Deleted() {
		return 0, ErrTemplateNotFound
	}
	cur.UsageCount++
	return cur.UsageCount, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.templates[id]
	if !ok {
		return ErrTemplateNotFound
	}
	if cur.Version != expectedVersion {
		return apperr.Conflict("templates: delete", id, expectedVersion, cur.Version)
	}
	delete(r.templates, id)
	return nil
}

func matchesFilter(t *Template, f ListFilter) bool {
	if t.Deleted() && !f.IncludeDeleted {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Goal != "" && t.Goal != f.Goal {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Language != "" && !strings.EqualFold(t.Language, f.Language) {
		return false
	}
	if f.Persona != "" && !t.Personas.HasFold(f.Persona) {
		return false
	}
	if f.IsSystem != nil && t.IsSystem != *f.IsSystem {
		return false
	}
	return true
}

func sortByName(list []*Template) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := strings.ToLower(list[i].Name), strings.ToLower(list[j].Name)
		if a != b {
			return a < b
		}
		return list[i].ID < list[j].ID
	})
}
