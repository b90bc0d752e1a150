package enrichment

import (
	"context"
	"errors"

	"github.com/gitter-badger/xread/internal/domain"
	"github.com/gitter-badger/xread/internal/logger"
)

// Submitter accepts tasks without blocking: the local Queue or a dispatcher
// fanout to external queues.
type Submitter interface {
	Submit(ctx context.Context, task domain.Task) error
}

// Scheduler turns stored articles into enrichment tasks.
type Scheduler struct {
	sink     Submitter
	keywords bool
	log      logger.Logger
}

// NewScheduler schedules a topic task per article, plus a keyword task when
// keywords is set.
func NewScheduler(sink Submitter, keywords bool, log logger.Logger) *Scheduler {
	return &Scheduler{sink: sink, keywords: keywords, log: logger.Ensure(log)}
}

// ArticleStored submits the tasks for article. It never blocks on classifier work.
func (s *Scheduler) ArticleStored(ctx context.Context, article domain.Article) error {
	kinds := []domain.TaskKind{domain.TaskTopic}
	if s.keywords {
		kinds = append(kinds, domain.TaskKeywords)
	}

	var errs []error
	for _, kind := range kinds {
		task := domain.NewTask(kind, article.ID)
		if err := s.sink.Submit(ctx, task); err != nil {
			errs = append(errs, err)
			continue
		}
		s.log.DebugObj("enrichment task scheduled", "enrichment_task", task)
	}
	return errors.Join(errs...)
}
