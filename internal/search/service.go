package search

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Service is the facade that tries Meilisearch first and falls back to PG
// FTS. Either backend may be nil.
type Service struct {
	meili  *Meili
	pgfts  *PgFTS
	logger logrus.FieldLogger

	pending sync.WaitGroup
}

func NewService(meili *Meili, pgfts *PgFTS, logger logrus.FieldLogger) *Service {
	return &Service{meili: meili, pgfts: pgfts, logger: logger}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.WithError(err).Warn("meilisearch error, falling back to pgfts")
	}
	if s.pgfts == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		s.logger.WithError(err).Error("pgfts search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexNote indexes a page without blocking the caller. Wait blocks until
// queued index calls finish.
func (s *Service) IndexNote(rec NoteRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.meili.IndexNote(rec); err != nil {
			s.logger.WithError(err).Warnf("index note %s", rec.Filename)
		}
	}()
}

func (s *Service) Wait() {
	s.pending.Wait()
}

// Close waits for pending index calls and stops the health monitor.
func (s *Service) Close() {
	s.Wait()
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
