package drafts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/recommend"
)

// AutoTemplate asks the batch to use each lead's top recommendation.
const AutoTemplate = "auto"

const maxBatchLeads = 500

type BatchRequest struct {
	LeadIDs    []string `json:"lead_ids" validate:"required,min=1,max=500,dive,required"`
	TemplateID string   `json:"template_id" validate:"required"`
	Options    Options  `json:"options"`
}

// BatchItem is the independent outcome for one lead.
type BatchItem struct {
	LeadID     string             `json:"lead_id"`
	TemplateID string             `json:"template_id,omitempty"`
	Decision   recommend.Decision `json:"decision,omitempty"`
	Draft      *Draft             `json:"draft,omitempty"`
	Error      string             `json:"error,omitempty"`
	Issues     []apperr.Issue     `json:"issues,omitempty"`
	Status     int                `json:"status"`
}

type BatchResult struct {
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// AssembleBatch drafts for many leads with at most BatchConcurrency in
// flight. A failure on one lead is reported on its item and does not stop
// the others. Items keep the order of req.LeadIDs.
func (s *Service) AssembleBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if len(req.LeadIDs) == 0 {
		return nil, apperr.Validation("drafts: batch", apperr.Issue{Field: "lead_ids", Message: "at least one lead is required"})
	}
	if len(req.LeadIDs) > maxBatchLeads {
		return nil, apperr.Validation("drafts: batch", apperr.Issue{Field: "lead_ids", Message: fmt.Sprintf("at most %d leads per batch", maxBatchLeads)})
	}
	auto := strings.EqualFold(strings.TrimSpace(req.TemplateID), AutoTemplate)
	if auto && s.recommender == nil {
		return nil, apperr.Validation("drafts: batch", apperr.Issue{Field: "template_id", Message: "auto selection is not available"})
	}

	items := make([]BatchItem, len(req.LeadIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, leadID := range req.LeadIDs {
		g.Go(func() error {
			items[i] = s.batchItem(gctx, leadID, req.TemplateID, auto, req.Options)
			return nil
		})
	}
	_ = g.Wait()

	res := &BatchResult{Items: items}
	for _, it := range items {
		if it.Draft != nil {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	s.logger.Info("batch assembled", "leads", len(items), "succeeded", res.Succeeded, "failed", res.Failed, "auto", auto)
	return res, nil
}

func (s *Service) batchItem(ctx context.Context, leadID, templateID string, auto bool, opts Options) BatchItem {
	item := BatchItem{LeadID: leadID}
	if err := ctx.Err(); err != nil {
		return failed(item, err)
	}
	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return failed(item, err)
	}
	if auto {
		rec, err := s.recommender.RecommendFor(ctx, lead)
		if err != nil {
			return failed(item, err)
		}
		item.Decision = rec.ShouldSend
		top, ok := rec.Top()
		if !ok {
			return failed(item, apperr.NotFound("drafts: batch", "recommended template for lead", leadID))
		}
		templateID = top.TemplateID
	}
	item.TemplateID = templateID
	d, err := s.assembleFor(ctx, templateID, lead, opts)
	if err != nil {
		return failed(item, err)
	}
	item.Draft = d
	item.Status = http.StatusOK
	return item
}

func failed(item BatchItem, err error) BatchItem {
	item.Error = err.Error()
	item.Issues = apperr.IssuesOf(err)
	item.Status = apperr.HTTPStatus(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		item.Status = http.StatusRequestTimeout
	}
	return item
}
