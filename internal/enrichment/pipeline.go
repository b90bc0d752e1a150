// Package enrichment labels stored articles in the background: topic
// classification and keyword extraction run on a bounded worker queue.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gitter-badger/xread/internal/domain"
	"github.com/gitter-badger/xread/internal/logger"
	"github.com/gitter-badger/xread/pkg/classifier"
)

// Store is the slice of the catalog the pipeline reads and writes.
type Store interface {
	GetArticle(ctx context.Context, id string) (domain.Article, error)
	SetTopic(ctx context.Context, id, topic string) error
	AddTags(ctx context.Context, id string, tags []string) error
}

const defaultClassifierTimeout = 10 * time.Second

// Pipeline runs classifier calls for articles and writes the labels back.
type Pipeline struct {
	store      Store
	classifier classifier.Classifier
	timeout    time.Duration
	log        logger.Logger
}

// NewPipeline wires a pipeline. timeout bounds every classifier call.
func NewPipeline(store Store, cls classifier.Classifier, timeout time.Duration, log logger.Logger) *Pipeline {
	if cls == nil {
		cls = classifier.Disabled{}
	}
	if timeout <= 0 {
		timeout = defaultClassifierTimeout
	}
	return &Pipeline{store: store, classifier: cls, timeout: timeout, log: logger.Ensure(log)}
}

// Handle runs one task against the current state of its article. A
// classifier failure or a vanished article ends the task without a label
// and returns nil; only store failures are returned, so queue consumers
// redeliver just the tasks a later attempt can finish.
func (p *Pipeline) Handle(ctx context.Context, task domain.Task) error {
	if p == nil {
		return fmt.Errorf("enrichment pipeline is nil")
	}
	if err := task.Validate(); err != nil {
		return err
	}

	article, err := p.store.GetArticle(ctx, task.ArticleID)
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidCursor):
		p.log.WarnObj("enrichment task for unknown article", "enrichment_task", map[string]any{
			"task_id":    task.ID,
			"article_id": task.ArticleID,
			"error":      err.Error(),
		})
		return nil
	case err != nil:
		return fmt.Errorf("load article for task %s: %w", task.ID, err)
	}

	switch task.Kind {
	case domain.TaskKeywords:
		_, err = p.ExtractKeywords(ctx, article)
	default:
		_, err = p.ClassifyTopic(ctx, article)
	}
	if errors.Is(err, domain.ErrClassifierFailure) {
		// logged by classifierError; the article stays unlabelled
		return nil
	}
	return err
}

// ClassifyTopic asks the classifier for the article's categories and stores
// the first one. An empty topic with a nil error means "no label".
func (p *Pipeline) ClassifyTopic(ctx context.Context, article domain.Article) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res, err := p.classifier.Topic(callCtx, classifier.PlainText(article.Summary), article.Title)
	if err != nil {
		return "", p.classifierError("topic", article.ID, err)
	}
	topic, ok := res.Primary()
	if !ok {
		p.log.DebugObj("no topic for article", "enrichment_topic", map[string]any{"article_id": article.ID})
		return "", nil
	}

	if err := p.store.SetTopic(ctx, article.ID, topic); err != nil {
		return "", fmt.Errorf("store topic: %w", err)
	}
	p.log.InfoObj("article topic set", "enrichment_topic", map[string]any{
		"article_id": article.ID,
		"topic":      topic,
	})
	return topic, nil
}

// ExtractKeywords asks the classifier for keywords and unions them into the
// article tags.
func (p *Pipeline) ExtractKeywords(ctx context.Context, article domain.Article) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res, err := p.classifier.Keywords(callCtx, classifier.PlainText(article.Summary), article.Title)
	if err != nil {
		return nil, p.classifierError("keywords", article.ID, err)
	}
	tags := res.Tags()
	if len(tags) == 0 {
		return nil, nil
	}

	if err := p.store.AddTags(ctx, article.ID, tags); err != nil {
		return nil, fmt.Errorf("store tags: %w", err)
	}
	p.log.InfoObj("article tags added", "enrichment_keywords", map[string]any{
		"article_id": article.ID,
		"tags":       tags,
	})
	return tags, nil
}

func (p *Pipeline) classifierError(op, articleID string, err error) error {
	p.log.WarnObj("classifier call failed", "enrichment_error", map[string]any{
		"operation":  op,
		"article_id": articleID,
		"error":      err.Error(),
	})
	return fmt.Errorf("%w: %s for %s: %v", domain.ErrClassifierFailure, op, articleID, err)
}
