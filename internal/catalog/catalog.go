// Package catalog exposes the feed and article operations offered to callers:
// lookups, paginated listings, idempotent upserts and label listings.
package catalog

import (
	"context"
	"fmt"

	"github.com/gitter-badger/xread/internal/domain"
	"github.com/gitter-badger/xread/internal/logger"
	"github.com/gitter-badger/xread/internal/pagination"
	"github.com/gitter-badger/xread/internal/storage"
)

// Notifier is told about every article that was stored successfully. It must
// not block; a returned error is logged and never fails the upsert.
type Notifier interface {
	ArticleStored(ctx context.Context, article domain.Article) error
}

// Service implements the catalog operations on top of a storage driver.
type Service struct {
	driver   storage.Driver
	pages    *pagination.Engine
	notifier Notifier
	log      logger.Logger
}

// NewService wires a catalog over driver.
func NewService(driver storage.Driver, pages *pagination.Engine, log logger.Logger) *Service {
	log = logger.Ensure(log)
	if pages == nil {
		pages = pagination.NewEngine(driver, pagination.Config{}, log)
	}
	return &Service{driver: driver, pages: pages, log: log}
}

// SetNotifier registers the receiver of article-stored notifications.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// FeedInput carries the fields of an AddFeed call.
type FeedInput struct {
	Link  string `json:"link"`
	Title string `json:"title"`
}

// ArticleInput carries the fields of an AddArticle call. FeedID is optional.
type ArticleInput struct {
	Link    string `json:"link"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Time    int64  `json:"time"`
	FeedID  string `json:"feedId,omitempty"`
}

// GetFeed returns the feed with the given external id.
func (s *Service) GetFeed(ctx context.Context, id string) (domain.Feed, error) {
	var feed domain.Feed
	doc, err := s.get(ctx, domain.FeedCollection, id)
	if err != nil {
		return feed, err
	}
	return s.feedFrom(doc)
}

// ListFeeds pages through feeds.
func (s *Service) ListFeeds(ctx context.Context, req pagination.Request) ([]domain.Feed, error) {
	docs, err := s.pages.List(ctx, pagination.Feeds, req)
	if err != nil {
		s.logFailure("list feeds", err)
		return nil, err
	}
	feeds := make([]domain.Feed, 0, len(docs))
	for _, doc := range docs {
		feed, err := s.feedFrom(doc)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}
	return feeds, nil
}

// AddFeed inserts or updates the feed identified by its link.
func (s *Service) AddFeed(ctx context.Context, in FeedInput) (domain.Feed, error) {
	doc, err := s.upsert(ctx, domain.FeedCollection,
		[]storage.Cond{{Field: "link", Value: in.Link}},
		map[string]any{"link": in.Link, "title": in.Title},
	)
	if err != nil {
		return domain.Feed{}, err
	}
	return s.feedFrom(doc)
}

// GetArticle returns the article with the given external id.
func (s *Service) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	doc, err := s.get(ctx, domain.ArticleCollection, id)
	if err != nil {
		return domain.Article{}, err
	}
	return s.articleFrom(doc)
}

// ListArticles pages through articles, optionally filtered by feedId, tag and topic.
func (s *Service) ListArticles(ctx context.Context, req pagination.Request) ([]domain.Article, error) {
	s.log.DebugObj("list articles", "articles_request", req)
	docs, err := s.pages.List(ctx, pagination.Articles, req)
	if err != nil {
		s.logFailure("list articles", err)
		return nil, err
	}
	articles := make([]domain.Article, 0, len(docs))
	for _, doc := range docs {
		article, err := s.articleFrom(doc)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}
	return articles, nil
}

// AddArticle inserts or updates the article identified by (title, link) and
// then notifies the enrichment side. Notification failures never change the
// result of the upsert.
func (s *Service) AddArticle(ctx context.Context, in ArticleInput) (domain.Article, error) {
	set := map[string]any{
		"link":    in.Link,
		"title":   in.Title,
		"summary": in.Summary,
		"time":    in.Time,
	}
	if in.FeedID != "" {
		set["feedId"] = in.FeedID
	}

	doc, err := s.upsert(ctx, domain.ArticleCollection,
		[]storage.Cond{{Field: "title", Value: in.Title}, {Field: "link", Value: in.Link}},
		set,
	)
	if err != nil {
		return domain.Article{}, err
	}
	article, err := s.articleFrom(doc)
	if err != nil {
		return domain.Article{}, err
	}

	if s.notifier != nil {
		if err := s.notifier.ArticleStored(ctx, article); err != nil {
			s.log.WarnObj("article enrichment not scheduled", "enrichment_error", map[string]any{
				"article_id": article.ID,
				"error":      err.Error(),
			})
		}
	}
	return article, nil
}

// AllTags lists every distinct article tag.
func (s *Service) AllTags(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "tags")
}

// AllTopics lists every distinct article topic.
func (s *Service) AllTopics(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "topic")
}

// Tags lists tags as {id, name} items.
func (s *Service) Tags(ctx context.Context) ([]domain.Label, error) {
	tags, err := s.AllTags(ctx)
	if err != nil {
		return nil, err
	}
	return domain.Labels(tags), nil
}

// Topics lists topics as {id, name} items.
func (s *Service) Topics(ctx context.Context) ([]domain.Label, error) {
	topics, err := s.AllTopics(ctx)
	if err != nil {
		return nil, err
	}
	return domain.Labels(topics), nil
}

// SetTopic overwrites the article topic; concurrent writers resolve last-write-wins.
func (s *Service) SetTopic(ctx context.Context, id, topic string) error {
	return s.updateArticle(ctx, id, storage.Update{Set: map[string]any{"topic": topic}})
}

// AddTags unions tags into the article tag set.
func (s *Service) AddTags(ctx context.Context, id string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	return s.updateArticle(ctx, id, storage.Update{AddToSet: map[string][]string{"tags": tags}})
}

func (s *Service) get(ctx context.Context, collection, id string) (storage.Document, error) {
	key, err := s.driver.Codec().Decode(id)
	if err != nil {
		return nil, err
	}
	doc, err := storage.Within(ctx, s.driver, func(h storage.Handle) (storage.Document, error) {
		return h.Collection(collection).FindOne(ctx, storage.Filter{Key: key})
	})
	if err != nil {
		s.logFailure("get "+collection, err)
		return nil, fmt.Errorf("get %s %s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *Service) updateArticle(ctx context.Context, id string, update storage.Update) error {
	key, err := s.driver.Codec().Decode(id)
	if err != nil {
		return err
	}
	res, err := storage.Within(ctx, s.driver, func(h storage.Handle) (storage.UpdateResult, error) {
		return h.Collection(domain.ArticleCollection).UpdateOne(ctx, storage.Filter{Key: key}, update, false)
	})
	if err != nil {
		s.logFailure("update article", err)
		return fmt.Errorf("update article %s: %w", id, err)
	}
	if res.Matched == 0 {
		return fmt.Errorf("update article %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Service) distinct(ctx context.Context, field string) ([]string, error) {
	values, err := storage.Within(ctx, s.driver, func(h storage.Handle) ([]string, error) {
		return h.Collection(domain.ArticleCollection).Distinct(ctx, field)
	})
	if err != nil {
		s.logFailure("distinct "+field, err)
		return nil, fmt.Errorf("distinct %s: %w", field, err)
	}
	return values, nil
}

func (s *Service) feedFrom(doc storage.Document) (domain.Feed, error) {
	var feed domain.Feed
	if err := doc.Decode(&feed); err != nil {
		return feed, fmt.Errorf("decode feed: %w", err)
	}
	feed.ID = s.pages.ID(doc)
	return feed, nil
}

func (s *Service) articleFrom(doc storage.Document) (domain.Article, error) {
	var article domain.Article
	if err := doc.Decode(&article); err != nil {
		return article, fmt.Errorf("decode article: %w", err)
	}
	article.ID = s.pages.ID(doc)
	return article, nil
}

func (s *Service) logFailure(op string, err error) {
	s.log.ErrorObj("catalog operation failed", "catalog_error", map[string]any{
		"operation": op,
		"error":     err.Error(),
	})
}
