// Package importer pulls RSS and Atom feeds into the catalog.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/gitter-badger/xread/internal/catalog"
	"github.com/gitter-badger/xread/internal/domain"
	"github.com/gitter-badger/xread/internal/logger"
	"github.com/gitter-badger/xread/pkg/httpclient"
)

// Catalog is the write side the importer needs.
type Catalog interface {
	AddFeed(ctx context.Context, in catalog.FeedInput) (domain.Feed, error)
	AddArticle(ctx context.Context, in catalog.ArticleInput) (domain.Article, error)
}

// Result summarises one import.
type Result struct {
	Feed     domain.Feed `json:"feed"`
	Articles int         `json:"articles"`
	Failed   int         `json:"failed"`
}

// Service fetches feeds and upserts their entries.
type Service struct {
	client  httpclient.Client
	parser  *gofeed.Parser
	catalog Catalog
	log     logger.Logger
	now     func() time.Time
}

// NewService wires an importer. A nil client gets a resty client with timeout.
func NewService(client httpclient.Client, cat Catalog, timeout time.Duration, log logger.Logger) *Service {
	if client == nil {
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = httpclient.NewRestyClient(timeout)
	}
	return &Service{
		client:  client,
		parser:  gofeed.NewParser(),
		catalog: cat,
		log:     logger.Ensure(log),
		now:     time.Now,
	}
}

// Import fetches src, upserts the feed keyed by its URL and every entry
// keyed by (title, link). Entry failures are counted, not fatal.
func (s *Service) Import(ctx context.Context, src Source) (Result, error) {
	if s == nil || s.catalog == nil {
		return Result{}, fmt.Errorf("importer is not initialized")
	}

	parsed, err := s.fetch(ctx, src)
	if err != nil {
		return Result{}, err
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		title = src.Name
	}
	feed, err := s.catalog.AddFeed(ctx, catalog.FeedInput{Link: src.URL, Title: title})
	if err != nil {
		return Result{}, fmt.Errorf("store feed %s: %w", src.URL, err)
	}

	res := Result{Feed: feed}
	for _, item := range parsed.Items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		in, ok := s.articleInput(item, feed.ID)
		if !ok {
			continue
		}
		if in.Summary == "" && src.ScrapeSummary && in.Link != "" {
			s.fillFromPage(ctx, src, &in)
		}
		if _, err := s.catalog.AddArticle(ctx, in); err != nil {
			res.Failed++
			s.log.WarnObj("feed entry not stored", "import_error", map[string]any{
				"source_id": src.ID,
				"link":      in.Link,
				"error":     err.Error(),
			})
			continue
		}
		res.Articles++
	}

	s.log.InfoObj("feed imported", "import_result", map[string]any{
		"source_id": src.ID,
		"feed_id":   feed.ID,
		"articles":  res.Articles,
		"failed":    res.Failed,
	})
	return res, nil
}

// ImportAll imports every source in order, pausing between sources.
func (s *Service) ImportAll(ctx context.Context, srcs []Source) error {
	if len(srcs) == 0 {
		return fmt.Errorf("no sources configured for import")
	}

	var errs []error
	for i, src := range srcs {
		if _, err := s.Import(ctx, src); err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", src.ID, err))
			s.log.ErrorObj("source import failed", "import_error", map[string]any{
				"source_id": src.ID,
				"error":     err.Error(),
			})
		}
		if i < len(srcs)-1 {
			timer := time.NewTimer(src.RequestDelay())
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(append(errs, ctx.Err())...)
			case <-timer.C:
			}
		}
	}
	return errors.Join(errs...)
}

// Run imports srcs immediately and then every interval until ctx ends.
func (s *Service) Run(ctx context.Context, srcs []Source, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("import interval must be positive, got %s", interval)
	}
	if len(srcs) == 0 {
		s.log.WarnObj("no sources configured; importer idle", "import_state", nil)
		<-ctx.Done()
		return nil
	}

	s.log.InfoObj("import loop starting", "import_state", map[string]any{
		"sources_count": len(srcs),
		"interval":      interval.String(),
	})
	s.runOnce(ctx, srcs)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.InfoObj("import loop exiting", "import_state", map[string]any{"reason": ctx.Err().Error()})
			return nil
		case <-ticker.C:
			s.runOnce(ctx, srcs)
		}
	}
}

func (s *Service) runOnce(ctx context.Context, srcs []Source) {
	start := time.Now()
	if err := s.ImportAll(ctx, srcs); err != nil && ctx.Err() == nil {
		s.log.ErrorObj("import pass failed", "import_error", map[string]any{"error": err.Error()})
		return
	}
	s.log.InfoObj("import pass completed", "import_meta", map[string]any{
		"sources_count": len(srcs),
		"elapsed_ms":    time.Since(start).Milliseconds(),
	})
}

func (s *Service) fillFromPage(ctx context.Context, src Source, in *catalog.ArticleInput) {
	meta, err := s.describe(ctx, src, in.Link)
	if err != nil {
		s.log.WarnObj("entry page scrape failed", "metadata_error", map[string]any{
			"source_id": src.ID,
			"link":      in.Link,
			"error":     err.Error(),
		})
		return
	}
	in.Summary = meta.Description
	if in.Title == "" {
		in.Title = meta.Title
	}
}

func (s *Service) fetch(ctx context.Context, src Source) (*gofeed.Feed, error) {
	resp, err := s.client.Get(ctx, src.URL, src.Headers)
	if err != nil {
		return nil, fmt.Errorf("http fetch %s: %w", src.URL, err)
	}
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("http fetch %s: status %d", src.URL, resp.StatusCode())
	}

	parsed, err := s.parser.Parse(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", src.URL, err)
	}
	return parsed, nil
}

func (s *Service) articleInput(item *gofeed.Item, feedID string) (catalog.ArticleInput, bool) {
	if item == nil {
		return catalog.ArticleInput{}, false
	}
	link := strings.TrimSpace(item.Link)
	title := strings.TrimSpace(item.Title)
	if link == "" && title == "" {
		return catalog.ArticleInput{}, false
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	published := s.now()
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = *item.UpdatedParsed
	}

	return catalog.ArticleInput{
		Link:    link,
		Title:   title,
		Summary: summary,
		Time:    published.UnixMilli(),
		FeedID:  feedID,
	}, true
}
