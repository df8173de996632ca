package search

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"scuba/searchservice/internal/domain"
)

// startPrefetch requests every non-general category of the query in the
// background, at most prefetchConcurrency at a time. Results land through
// apply like any other response, so they are cached but only rendered if the
// user has switched to that category meanwhile.
func (s *Service) startPrefetch(ctx context.Context, tabID string, query domain.SearchQuery) {
	targets := s.claimPrefetch(tabID, query)
	if len(targets) == 0 {
		return
	}
	detached := context.WithoutCancel(ctx)

	s.background.Add(1)
	go func() {
		defer s.background.Done()

		sem := semaphore.NewWeighted(s.prefetchConcurrency)
		var group errgroup.Group
		for _, category := range targets {
			group.Go(func() error {
				if err := sem.Acquire(detached, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				if !s.stillCurrent(tabID, query.ID) {
					s.releaseInflight(tabID, query.ID, category)
					return nil
				}
				set, err := s.client.Search(detached, query.Text, s.optionsFor(category))
				s.apply(tabID, query, category, set, err)
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			s.logger.Debug("prefetch stopped", slog.String("tabId", tabID), slog.String("error", err.Error()))
		}
	}()
}

// claimPrefetch marks the categories that still need a request as in flight.
func (s *Service) claimPrefetch(tabID string, query domain.SearchQuery) []domain.Category {
	sess, err := s.lookup(tabID)
	if err != nil {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed || sess.currentQueryIDLocked() != query.ID {
		return nil
	}

	targets := make([]domain.Category, 0, len(domain.Categories)-1)
	for _, category := range domain.Categories {
		if category == domain.CategoryGeneral {
			continue
		}
		if sess.inflight[category] == query.ID {
			continue
		}
		if _, ok := s.cache.Get(tabID, category); ok {
			continue
		}
		sess.inflight[category] = query.ID
		targets = append(targets, category)
	}
	return targets
}

func (s *Service) stillCurrent(tabID, queryID string) bool {
	sess, err := s.lookup(tabID)
	if err != nil {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return !sess.closed && sess.currentQueryIDLocked() == queryID
}

func (s *Service) releaseInflight(tabID, queryID string, category domain.Category) {
	sess, err := s.lookup(tabID)
	if err != nil {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.inflight[category] == queryID {
		delete(sess.inflight, category)
	}
}
