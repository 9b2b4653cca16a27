package leads

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
)

// Repository defines the interface for lead storage
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	List(ctx context.Context, filter ListFilter) ([]*Lead, error)
	UpdateStage(ctx context.Context, id string, stage Stage) (*Lead, error)
}

func notFound(op, id string) error {
	return apperr.NotFound(op, "lead", id)
}

func invalidStage(op string, stage Stage) error {
	return apperr.Validation(op, apperr.Issue{Field: "stage", Message: "unknown stage " + string(stage)})
}

// InMemoryRepository keeps leads in process memory.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
	}
}

// Create creates a new lead in memory
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	lead := req.toLead(uuid.New().String(), time.Now().UTC())

	r.mu.Lock()
	r.leads[lead.ID] = lead
	r.mu.Unlock()

	return lead.clone(), nil
}

// Put stores lead as-is. Useful for fixtures and imports.
func (r *InMemoryRepository) Put(lead *Lead) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leads[lead.ID] = lead.clone()
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, notFound("leads: get", id)
	}
	return lead.clone(), nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Lead
	for _, l := range r.leads {
		if filter.Stage != "" && l.Stage != filter.Stage {
			continue
		}
		if filter.Persona != "" && !strings.EqualFold(l.Persona, filter.Persona) {
			continue
		}
		out = append(out, l.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *InMemoryRepository) UpdateStage(ctx context.Context, id string, stage Stage) (*Lead, error) {
	if !stage.Valid() {
		return nil, invalidStage("leads: update stage", stage)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return nil, notFound("leads: update stage", id)
	}
	lead.Stage = stage
	lead.UpdatedAt = time.Now().UTC()
	return lead.clone(), nil
}
