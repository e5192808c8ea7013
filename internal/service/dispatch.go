package service

import (
	"context"
	"sync"

	"github.com/segyhp/payout-engine/internal/domain"
	"golang.org/x/sync/errgroup"
)

// itemFunc processes one entity of a batch and reports its outcome together
// with any notifications it produced. It never aborts the batch.
type itemFunc[T any] func(ctx context.Context, item T) (domain.ItemResult, []domain.Notification)

// dispatch runs fn over items with at most limit calls in flight and folds
// every outcome into report.
func dispatch[T any](ctx context.Context, limit int, items []T, report *domain.BatchReport, fn itemFunc[T]) {
	if limit <= 0 {
		limit = 1
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(limit)

	for _, item := range items {
		g.Go(func() error {
			result, notifications := fn(ctx, item)

			mu.Lock()
			defer mu.Unlock()
			report.Add(result)
			for _, n := range notifications {
				report.Notify(n)
			}
			return nil
		})
	}
	_ = g.Wait()
}
