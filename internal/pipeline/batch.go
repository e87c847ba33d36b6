package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sniffer-group/propintel-cli/internal/model"
	"github.com/sniffer-group/propintel-cli/internal/store"
)

// BulkRefreshPrices selects stale projects and refreshes their price
// columns concurrently. Every selected row is processed; per-item failures
// are recorded in the summary instead of aborting the run.
func (p *Pipeline) BulkRefreshPrices(ctx context.Context, f store.StaleFilter, sources []string, concurrency int) (*model.BatchSummary, error) {
	refs, err := p.store.SelectStaleProjects(ctx, f)
	if err != nil {
		return nil, err
	}

	summary := &model.BatchSummary{
		TableName:     "approved_projects",
		TotalSelected: len(refs),
		Results:       []model.BatchItemResult{},
	}
	if len(refs) == 0 {
		return summary, nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("starting bulk price refresh",
		zap.Int("selected", len(refs)),
		zap.Int("concurrency", concurrency),
		zap.Strings("sources", model.FilterPriceSources(sources)))

	// One sequential primer before the workers fan out. A failed primer
	// only costs the cache warm-up, never the run.
	if err := p.extract.warmCache(ctx, extractSystemText); err != nil {
		zap.L().Warn("prompt cache primer failed", zap.Error(err))
	}

	results := make([]model.BatchItemResult, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, ref := range refs {
		g.Go(func() error {
			outcome := p.RefreshPricesOnly(gctx, ref, sources)
			if outcome.UpdatedColumns == nil {
				outcome.UpdatedColumns = []string{}
			}
			results[i] = model.BatchItemResult{
				ID:             ref.ID,
				ProjectName:    ref.ProjectName,
				City:           ref.City,
				Status:         outcome.Status,
				UpdatedColumns: outcome.UpdatedColumns,
				Message:        outcome.Message,
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		summary.Processed++
		if r.Status == model.StatusSuccess {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	summary.Results = results

	zap.L().Info("bulk price refresh finished",
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// BulkRefreshLenderTerms refreshes the home-loan terms of stale registry
// lenders concurrently. Item results carry the lender name in the name
// field shared with project runs.
func (p *Pipeline) BulkRefreshLenderTerms(ctx context.Context, days, limit, concurrency int) (*model.BatchSummary, error) {
	lenders, err := p.store.SelectStaleLenders(ctx, days, limit)
	if err != nil {
		return nil, err
	}

	summary := &model.BatchSummary{
		TableName:     "lenders",
		TotalSelected: len(lenders),
		Results:       []model.BatchItemResult{},
	}
	if len(lenders) == 0 {
		return summary, nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("starting bulk lender refresh",
		zap.Int("selected", len(lenders)),
		zap.Int("concurrency", concurrency))

	if err := p.extract.warmCache(ctx, lenderSystemText); err != nil {
		zap.L().Warn("prompt cache primer failed", zap.Error(err))
	}

	results := make([]model.BatchItemResult, len(lenders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, lender := range lenders {
		g.Go(func() error {
			item := model.BatchItemResult{
				ID:             lender.ID,
				ProjectName:    lender.LenderName,
				UpdatedColumns: []string{},
			}
			if _, err := p.RefreshLenderTerms(gctx, lender); err != nil {
				item.Status = model.StatusError
				item.Message = err.Error()
			} else {
				item.Status = model.StatusSuccess
			}
			results[i] = item
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		summary.Processed++
		if r.Status == model.StatusSuccess {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	summary.Results = results

	zap.L().Info("bulk lender refresh finished",
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))
	return summary, nil
}
